package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// RecordedRequest captures one request received by the mock upstream.
type RecordedRequest struct {
	Method     string
	Path       string
	Headers    http.Header
	Body       map[string]any
	ReceivedAt time.Time
}

type queuedResponse struct {
	status int
	body   any
	delay  time.Duration
}

// MockUpstream simulates the third-party generation APIs that provider
// descriptors point at. Tests queue responses per path and later assert on
// the recorded requests.
type MockUpstream struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	queues   map[string][]queuedResponse
	defaults map[string]any
	requests map[string][]RecordedRequest
}

func newMockUpstream(t *testing.T) *MockUpstream {
	t.Helper()

	m := &MockUpstream{
		t:        t,
		queues:   make(map[string][]queuedResponse),
		defaults: make(map[string]any),
		requests: make(map[string][]RecordedRequest),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.server.Close)
	return m
}

// URL returns the upstream's base URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// SetDefault sets the response body returned for a path when no queued
// response is pending.
func (m *MockUpstream) SetDefault(path string, body any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults[path] = body
}

// Respond queues a one-shot response for a path. Queued responses are
// consumed in order before the default applies again.
func (m *MockUpstream) Respond(path string, status int, body any) {
	m.RespondWithDelay(path, status, body, 0)
}

// RespondWithDelay queues a one-shot response served after the given delay.
func (m *MockUpstream) RespondWithDelay(path string, status int, body any, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[path] = append(m.queues[path], queuedResponse{status: status, body: body, delay: delay})
}

// Requests returns all requests received on a path so far.
func (m *MockUpstream) Requests(path string) []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests[path]))
	copy(out, m.requests[path])
	return out
}

func (m *MockUpstream) handle(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)

	rec := RecordedRequest{
		Method:     r.Method,
		Path:       r.URL.Path,
		Headers:    r.Header.Clone(),
		ReceivedAt: time.Now(),
	}
	if len(raw) > 0 {
		json.Unmarshal(raw, &rec.Body)
	}

	m.mu.Lock()
	m.requests[r.URL.Path] = append(m.requests[r.URL.Path], rec)

	var resp queuedResponse
	if q := m.queues[r.URL.Path]; len(q) > 0 {
		resp = q[0]
		m.queues[r.URL.Path] = q[1:]
	} else if body, ok := m.defaults[r.URL.Path]; ok {
		resp = queuedResponse{status: http.StatusOK, body: body}
	} else {
		resp = queuedResponse{
			status: http.StatusNotFound,
			body:   map[string]any{"error": "no response configured for " + r.URL.Path},
		}
	}
	m.mu.Unlock()

	if resp.delay > 0 {
		time.Sleep(resp.delay)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	json.NewEncoder(w).Encode(resp.body)
}

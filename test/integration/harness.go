// Package integration provides a reusable test harness for end-to-end
// testing of the gateway. It starts a full HTTP server with in-memory
// stores, a mock upstream provider API, and an HS256 test token signer.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/genway/genway/internal/config"
	"github.com/genway/genway/internal/dispatch"
	"github.com/genway/genway/internal/registry"
	"github.com/genway/genway/internal/transport"
	"github.com/genway/genway/internal/workflow"
	"github.com/genway/genway/model"
)

const harnessSecret = "integration-test-secret"

// TestHarness encapsulates a fully wired gateway instance with a mock
// upstream for integration testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server

	Registry    *registry.Registry
	Results     *dispatch.MemoryResultStore
	RunStore    *workflow.MemoryRunStore
	Idempotency *dispatch.MemoryIdempotencyStore
	Engine      *workflow.Engine
	Upstream    *MockUpstream
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	dispatchTimeout time.Duration
	idempotency     bool
}

// WithDispatchTimeout sets the per-call upstream timeout.
func WithDispatchTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) { c.dispatchTimeout = d }
}

// WithIdempotency enables the in-memory idempotency store.
func WithIdempotency() HarnessOption {
	return func(c *harnessConfig) { c.idempotency = true }
}

// NewTestHarness creates and starts a full gateway test instance. Two
// providers are pre-registered against the mock upstream: "story" (text,
// path /text) and "art" (image, path /image). The server is cleaned up when
// the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()
	t.Setenv("GENWAY_AUTH_SECRET", harnessSecret)

	hc := &harnessConfig{dispatchTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(hc)
	}

	logger := zap.NewNop()
	cfg := config.Defaults()
	cfg.Server.HandlerTimeout = 15 * time.Second

	h := &TestHarness{
		t:        t,
		Results:  dispatch.NewMemoryResultStore(),
		RunStore: workflow.NewMemoryRunStore(),
		Upstream: newMockUpstream(t),
	}

	reg, err := registry.New(context.Background(), registry.NewMemoryStore(), logger)
	require.NoError(t, err, "registry init")
	h.Registry = reg

	h.Upstream.SetDefault("/text", map[string]any{
		"choices": []any{map[string]any{"text": "a story about nothing"}},
	})
	h.Upstream.SetDefault("/image", map[string]any{
		"data": []any{map[string]any{"url": "https://cdn.example.com/img-1.png"}},
	})
	for _, desc := range []model.ProviderDescriptor{
		{
			Name:    "story",
			Kind:    model.KindText,
			BaseURL: h.Upstream.URL() + "/text",
			Method:  "POST",
			Headers: []model.Header{{Name: "Authorization", Value: "Bearer upstream-key"}},
			RequestBodyTemplate: map[string]any{
				"model":       "{model}",
				"prompt":      "{prompt}",
				"temperature": "{temperature}",
			},
			ResponseParser: model.ResponseParser{ContentPath: "choices.0.text"},
			Models:         []string{"story-large", "story-small"},
			IsActive:       true,
		},
		{
			Name:    "art",
			Kind:    model.KindImage,
			BaseURL: h.Upstream.URL() + "/image",
			Method:  "POST",
			RequestBodyTemplate: map[string]any{
				"model":  "{model}",
				"prompt": "{prompt}",
				"n":      "{number_of_images}",
				"size":   "{aspect_ratio}",
			},
			ResponseParser: model.ResponseParser{ContentPath: "data.0.url"},
			Models:         []string{"art-v2"},
			IsActive:       true,
		},
	} {
		require.NoError(t, reg.Upsert(context.Background(), desc), "registering %s", desc.Name)
	}

	dispatchOpts := []dispatch.Option{dispatch.WithTimeout(hc.dispatchTimeout)}
	if hc.idempotency {
		h.Idempotency = dispatch.NewMemoryIdempotencyStore()
		dispatchOpts = append(dispatchOpts, dispatch.WithIdempotency(h.Idempotency, time.Hour))
	}
	dispatcher := dispatch.NewDispatcher(reg, h.Results, logger, dispatchOpts...)

	h.Engine = workflow.NewEngine(dispatcher, h.RunStore, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.Engine.Shutdown(ctx)
	})

	authenticator, err := transport.NewJWTAuthenticator(cfg.Auth)
	require.NoError(t, err, "authenticator init")

	router := transport.NewRouter(transport.Dependencies{
		Config:        cfg,
		Logger:        logger,
		Authenticator: authenticator,
		Registry:      reg,
		Generator:     dispatcher,
		Results:       h.Results,
		Workflows:     h.Engine,
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)
	return h
}

// Token signs a valid HS256 token for the given subject and roles.
func (h *TestHarness) Token(sub string, roles ...string) string {
	h.t.Helper()
	claims := jwt.MapClaims{
		"sub": sub,
		"iat": jwt.NewNumericDate(time.Now()),
		"exp": jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	if len(roles) > 0 {
		claims["roles"] = roles
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(harnessSecret))
	require.NoError(h.t, err, "signing token")
	return signed
}

// AdminToken signs a token carrying the admin role.
func (h *TestHarness) AdminToken() string {
	return h.Token("admin-1", "admin")
}

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.do(http.MethodGet, path, nil, token, nil)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.do(http.MethodPost, path, body, token, nil)
}

// POSTWithHeaders performs a POST with additional request headers.
func (h *TestHarness) POSTWithHeaders(path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.do(http.MethodPost, path, body, token, headers)
}

// PUT performs an authenticated PUT request with a JSON body.
func (h *TestHarness) PUT(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.do(http.MethodPut, path, body, token, nil)
}

// DELETE performs an authenticated DELETE request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.do(http.MethodDelete, path, nil, token, nil)
}

func (h *TestHarness) do(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(h.t, err, "marshal request body")
		reader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, reader)
	require.NoError(h.t, err, "build request")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 20 * time.Second}
	resp, err := client.Do(req)
	require.NoError(h.t, err, "%s %s", method, path)
	return resp
}

// ParseJSON asserts the response status and unmarshals the body.
func (h *TestHarness) ParseJSON(resp *http.Response, wantStatus int, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err, "read response body")
	require.Equal(h.t, wantStatus, resp.StatusCode, "body: %s", data)
	if target != nil {
		require.NoError(h.t, json.Unmarshal(data, target), "body: %s", data)
	}
}

// ReadBody reads and returns the response body.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err, "read response body")
	return data
}

// ParseError asserts the response status and returns the error envelope.
func (h *TestHarness) ParseError(resp *http.Response, wantStatus int) model.ErrorEnvelope {
	h.t.Helper()
	var body struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	h.ParseJSON(resp, wantStatus, &body)
	return body.Error
}

// WaitForRun polls until the run reaches a terminal status or the deadline
// passes.
func (h *TestHarness) WaitForRun(userID, runID string) model.WorkflowRun {
	h.t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		run, err := h.RunStore.Get(context.Background(), userID, runID)
		require.NoError(h.t, err, "polling run")
		if run.Terminal() {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	h.t.Fatalf("run %s did not finish in time", runID)
	return model.WorkflowRun{}
}

package transport

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"go.uber.org/zap"
)

func TestRecovery_convertsPanicTo500(t *testing.T) {
	handler := Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestCorrelationID_echoesInbound(t *testing.T) {
	var got string
	handler := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = correlationIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Correlation-Id", "corr-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got != "corr-1" {
		t.Errorf("context correlation id = %q", got)
	}
	if rec.Header().Get("X-Correlation-Id") != "corr-1" {
		t.Errorf("response header = %q", rec.Header().Get("X-Correlation-Id"))
	}
}

func TestCorrelationID_generatesWhenAbsent(t *testing.T) {
	handler := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Header().Get("X-Correlation-Id") == "" {
		t.Error("no correlation id generated")
	}
}

func TestClaimStringSlice(t *testing.T) {
	cases := []struct {
		name   string
		claims map[string]any
		want   []string
	}{
		{"json array", map[string]any{"roles": []any{"admin", "user"}}, []string{"admin", "user"}},
		{"string slice", map[string]any{"roles": []string{"admin"}}, []string{"admin"}},
		{"space separated", map[string]any{"roles": "admin user"}, []string{"admin", "user"}},
		{"empty string", map[string]any{"roles": ""}, nil},
		{"missing", map[string]any{}, nil},
		{"mixed types", map[string]any{"roles": []any{"admin", 42}}, []string{"admin"}},
	}
	for _, tc := range cases {
		if got := claimStringSlice(tc.claims, "roles"); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if _, err := bearerToken(req); err == nil {
		t.Error("missing header should fail")
	}

	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if _, err := bearerToken(req); err == nil {
		t.Error("non-bearer scheme should fail")
	}

	req.Header.Set("Authorization", "bearer tok-123")
	tok, err := bearerToken(req)
	if err != nil || tok != "tok-123" {
		t.Errorf("lowercase bearer: token %q err %v", tok, err)
	}
}

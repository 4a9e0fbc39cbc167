package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/genway/genway/internal/registry"
	"github.com/genway/genway/model"
)

func userContext(t *testing.T) context.Context {
	t.Helper()
	return model.WithRequestContext(context.Background(), &model.RequestContext{
		SubjectID: "user-1",
	})
}

func textDescriptor(baseURL string) model.ProviderDescriptor {
	return model.ProviderDescriptor{
		Name:    "testprov",
		Kind:    model.KindText,
		BaseURL: baseURL,
		Method:  "POST",
		Headers: []model.Header{
			{Name: "Authorization", Value: "Bearer test-key"},
		},
		RequestBodyTemplate: map[string]any{
			"model": "{model}",
			"messages": []any{
				map[string]any{"role": "user", "content": "{prompt}"},
			},
			"temperature": "{temperature}",
			"max_tokens":  "{max_tokens}",
		},
		ResponseParser: model.ResponseParser{ContentPath: "choices.0.message.content"},
		Models:         []string{"m-large", "m-small"},
		IsActive:       true,
	}
}

func newTestDispatcher(t *testing.T, desc model.ProviderDescriptor, opts ...Option) (*Dispatcher, *MemoryResultStore) {
	t.Helper()
	reg, err := registry.New(context.Background(), registry.NewMemoryStore(), zap.NewNop())
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	if err := reg.Upsert(context.Background(), desc); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	results := NewMemoryResultStore()
	return NewDispatcher(reg, results, zap.NewNop(), opts...), results
}

func TestGenerate_success(t *testing.T) {
	var gotBody map[string]any
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding upstream body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"a quick answer"}}]}`))
	}))
	defer server.Close()

	d, results := newTestDispatcher(t, textDescriptor(server.URL))
	result, err := d.Generate(userContext(t), model.GenerationRequest{
		Provider: "testprov",
		Model:    "m-small",
		Kind:     model.KindText,
		Prompt:   "say something quick",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if result.Status != model.GenerationSuccess {
		t.Errorf("status = %q", result.Status)
	}
	if result.Content != "a quick answer" || result.ContentType != model.ContentText {
		t.Errorf("content = %q (%s)", result.Content, result.ContentType)
	}
	if result.UserID != "user-1" {
		t.Errorf("user id = %q", result.UserID)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header = %q", gotAuth)
	}

	// Whole-token placeholders keep their native JSON types on the wire.
	if gotBody["temperature"] != 0.7 {
		t.Errorf("temperature = %v (%T), want number 0.7", gotBody["temperature"], gotBody["temperature"])
	}
	if gotBody["max_tokens"] != float64(1024) {
		t.Errorf("max_tokens = %v (%T), want number 1024", gotBody["max_tokens"], gotBody["max_tokens"])
	}
	msgs := gotBody["messages"].([]any)
	if msgs[0].(map[string]any)["content"] != "say something quick" {
		t.Errorf("prompt not substituted: %v", msgs[0])
	}

	if results.Len() != 1 {
		t.Errorf("persisted %d results, want exactly 1", results.Len())
	}
}

func TestGenerate_defaultModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	d, _ := newTestDispatcher(t, textDescriptor(server.URL))
	result, err := d.Generate(userContext(t), model.GenerationRequest{
		Provider: "testprov",
		Kind:     model.KindText,
		Prompt:   "p",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Model != "m-large" {
		t.Errorf("model = %q, want first listed model", result.Model)
	}
}

func TestGenerate_upstreamHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	d, results := newTestDispatcher(t, textDescriptor(server.URL))
	result, err := d.Generate(userContext(t), model.GenerationRequest{
		Provider: "testprov", Kind: model.KindText, Prompt: "p",
	})

	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrUpstreamHTTP {
		t.Fatalf("expected UPSTREAM_HTTP, got %v", err)
	}
	if result.Status != model.GenerationFailed || result.ErrorCode != model.ErrUpstreamHTTP {
		t.Errorf("failed result not returned: %+v", result)
	}
	if results.Len() != 1 {
		t.Errorf("persisted %d results, want exactly 1 (failures are history too)", results.Len())
	}
}

func TestGenerate_responseShapeMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"unexpected":"shape"}`))
	}))
	defer server.Close()

	d, results := newTestDispatcher(t, textDescriptor(server.URL))
	_, err := d.Generate(userContext(t), model.GenerationRequest{
		Provider: "testprov", Kind: model.KindText, Prompt: "p",
	})

	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrResponseShape {
		t.Fatalf("expected RESPONSE_SHAPE, got %v", err)
	}
	if results.Len() != 1 {
		t.Errorf("persisted %d results, want 1", results.Len())
	}
}

func TestGenerate_upstreamTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	d, results := newTestDispatcher(t, textDescriptor(server.URL), WithTimeout(50*time.Millisecond))
	_, err := d.Generate(userContext(t), model.GenerationRequest{
		Provider: "testprov", Kind: model.KindText, Prompt: "p",
	})

	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrUpstreamTimeout {
		t.Fatalf("expected UPSTREAM_TIMEOUT, got %v", err)
	}
	if results.Len() != 1 {
		t.Errorf("persisted %d results, want 1", results.Len())
	}
}

func TestGenerate_unknownProvider(t *testing.T) {
	d, results := newTestDispatcher(t, textDescriptor("https://unused.example.com"))
	_, err := d.Generate(userContext(t), model.GenerationRequest{
		Provider: "nope", Kind: model.KindText, Prompt: "p",
	})

	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrProviderNotFound {
		t.Fatalf("expected PROVIDER_NOT_FOUND, got %v", err)
	}
	if results.Len() != 1 {
		t.Fatalf("persisted %d results, want exactly 1 (rejections are history too)", results.Len())
	}
	rows, err := results.List(context.Background(), "user-1", ResultFilters{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if rows[0].Status != model.GenerationFailed || rows[0].ErrorCode != model.ErrProviderNotFound {
		t.Errorf("persisted row = %+v, want failed PROVIDER_NOT_FOUND", rows[0])
	}
}

func TestGenerate_inactiveProviderNotFound(t *testing.T) {
	desc := textDescriptor("https://unused.example.com")
	desc.IsActive = false
	d, results := newTestDispatcher(t, desc)

	_, err := d.Generate(userContext(t), model.GenerationRequest{
		Provider: "testprov", Kind: model.KindText, Prompt: "p",
	})
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrProviderNotFound {
		t.Fatalf("expected PROVIDER_NOT_FOUND for inactive provider, got %v", err)
	}
	if results.Len() != 1 {
		t.Errorf("persisted %d results, want 1", results.Len())
	}
}

func TestGenerate_invalidModel(t *testing.T) {
	d, results := newTestDispatcher(t, textDescriptor("https://unused.example.com"))
	result, err := d.Generate(userContext(t), model.GenerationRequest{
		Provider: "testprov", Model: "other", Kind: model.KindText, Prompt: "p",
	})

	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrInvalidModel {
		t.Fatalf("expected INVALID_MODEL, got %v", err)
	}
	if result.Status != model.GenerationFailed || result.ErrorCode != model.ErrInvalidModel {
		t.Errorf("failed result not returned: %+v", result)
	}
	if results.Len() != 1 {
		t.Errorf("persisted %d results, want 1", results.Len())
	}
}

func TestGenerate_validation(t *testing.T) {
	d, results := newTestDispatcher(t, textDescriptor("https://unused.example.com"))
	_, err := d.Generate(userContext(t), model.GenerationRequest{
		Provider: "testprov", Kind: model.KindText,
	})

	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrValidationError {
		t.Fatalf("expected VALIDATION_ERROR for missing prompt, got %v", err)
	}
	if results.Len() != 0 {
		t.Error("no result should be persisted for rejected input")
	}
}

func TestGenerate_imageURLNormalization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"url":"https://cdn.example.com/img.png"}]}`))
	}))
	defer server.Close()

	desc := textDescriptor(server.URL)
	desc.Kind = model.KindImage
	desc.ResponseParser.ContentPath = "data.0.url"
	d, _ := newTestDispatcher(t, desc)

	result, err := d.Generate(userContext(t), model.GenerationRequest{
		Provider: "testprov", Kind: model.KindImage, Prompt: "a red fox",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.ContentType != model.ContentURL {
		t.Errorf("content type = %q, want url", result.ContentType)
	}
}

func TestGenerate_imageBase64Normalization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"b64_json":"aGVsbG8="}]}`))
	}))
	defer server.Close()

	desc := textDescriptor(server.URL)
	desc.Kind = model.KindImage
	desc.ResponseParser.ContentPath = "data.0.b64_json"
	d, _ := newTestDispatcher(t, desc)

	result, err := d.Generate(userContext(t), model.GenerationRequest{
		Provider: "testprov", Kind: model.KindImage, Prompt: "a red fox",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.ContentType != model.ContentBase64 {
		t.Errorf("content type = %q, want base64", result.ContentType)
	}
}

func TestGenerate_idempotencyReplay(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"choices":[{"message":{"content":"once"}}]}`))
	}))
	defer server.Close()

	d, results := newTestDispatcher(t, textDescriptor(server.URL),
		WithIdempotency(NewMemoryIdempotencyStore(), time.Hour))

	req := model.GenerationRequest{
		Provider: "testprov", Kind: model.KindText, Prompt: "p",
		IdempotencyKey: "key-1",
	}
	first, err := d.Generate(userContext(t), req)
	if err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	second, err := d.Generate(userContext(t), req)
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}

	if calls.Load() != 1 {
		t.Errorf("upstream called %d times, want 1", calls.Load())
	}
	if first.ID != second.ID {
		t.Errorf("replay returned a different result: %q vs %q", first.ID, second.ID)
	}
	if results.Len() != 1 {
		t.Errorf("persisted %d results, want 1", results.Len())
	}
}

func TestGenerate_idempotencyConflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"once"}}]}`))
	}))
	defer server.Close()

	d, _ := newTestDispatcher(t, textDescriptor(server.URL),
		WithIdempotency(NewMemoryIdempotencyStore(), time.Hour))

	base := model.GenerationRequest{
		Provider: "testprov", Kind: model.KindText, Prompt: "p",
		IdempotencyKey: "key-1",
	}
	if _, err := d.Generate(userContext(t), base); err != nil {
		t.Fatalf("first Generate: %v", err)
	}

	changed := base
	changed.Prompt = "different"
	_, err := d.Generate(userContext(t), changed)
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrConflict {
		t.Fatalf("expected CONFLICT for reused key with new input, got %v", err)
	}
}

func TestGenerate_failureNotCachedForReplay(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"recovered"}}]}`))
	}))
	defer server.Close()

	d, _ := newTestDispatcher(t, textDescriptor(server.URL),
		WithIdempotency(NewMemoryIdempotencyStore(), time.Hour))

	req := model.GenerationRequest{
		Provider: "testprov", Kind: model.KindText, Prompt: "p",
		IdempotencyKey: "key-1",
	}
	if _, err := d.Generate(userContext(t), req); err == nil {
		t.Fatal("expected first call to fail")
	}
	result, err := d.Generate(userContext(t), req)
	if err != nil {
		t.Fatalf("retry after failure should reach upstream: %v", err)
	}
	if result.Content != "recovered" {
		t.Errorf("content = %q", result.Content)
	}
}

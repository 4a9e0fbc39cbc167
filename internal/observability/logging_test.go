package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/genway/genway/internal/config"
	"github.com/genway/genway/model"
)

func TestNewLogger_invalidLevelFallsBack(t *testing.T) {
	logger, err := NewLogger(config.ObservabilityConfig{LogLevel: "nonsense"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger == nil {
		t.Fatal("nil logger")
	}
}

func TestLoggerFrom_fallback(t *testing.T) {
	fallback := zap.NewNop()
	if got := LoggerFrom(context.Background(), fallback); got != fallback {
		t.Error("expected fallback logger for empty context")
	}

	stored := zap.NewNop()
	ctx := WithLogger(context.Background(), stored)
	if got := LoggerFrom(ctx, fallback); got != stored {
		t.Error("expected stored logger from context")
	}
}

func TestRedactBody_nestedSensitiveFields(t *testing.T) {
	body := map[string]any{
		"prompt": "a red fox",
		"auth": map[string]any{
			"api_key": "sk-live-abc",
		},
		"custom_secret": "x",
	}
	got := RedactBody(body, []string{"custom_secret"})

	if got["prompt"] != "a red fox" {
		t.Errorf("prompt redacted: %v", got["prompt"])
	}
	nested := got["auth"].(map[string]any)
	if nested["api_key"] != "[REDACTED]" {
		t.Errorf("api_key not redacted: %v", nested["api_key"])
	}
	if got["custom_secret"] != "[REDACTED]" {
		t.Errorf("custom field not redacted: %v", got["custom_secret"])
	}
	// Original untouched.
	if body["custom_secret"] != "x" {
		t.Error("RedactBody mutated its input")
	}
}

func TestRedactHeaders(t *testing.T) {
	headers := []model.Header{
		{Name: "Content-Type", Value: "application/json"},
		{Name: "Authorization", Value: "Bearer sk-live-abc"},
		{Name: "X-Api-Key", Value: "sk-live-def"},
	}
	got := RedactHeaders(headers)

	if got[0].Value != "application/json" {
		t.Errorf("content type redacted: %q", got[0].Value)
	}
	if got[1].Value != "[REDACTED]" || got[2].Value != "[REDACTED]" {
		t.Errorf("credentials not redacted: %#v", got)
	}
	if headers[1].Value != "Bearer sk-live-abc" {
		t.Error("RedactHeaders mutated its input")
	}
}

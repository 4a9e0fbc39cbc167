package model

import "time"

// Generation result statuses.
const (
	GenerationSuccess = "success"
	GenerationFailed  = "failed"
)

// ContentType tags how GenerationResult.Content should be interpreted.
type ContentType string

// Content representations.
const (
	ContentText   ContentType = "text"
	ContentURL    ContentType = "url"
	ContentBase64 ContentType = "base64"
)

// GenerationRequest is the ephemeral input to a single dispatch. It is
// constructed per call and never persisted; only the resolved result is.
type GenerationRequest struct {
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	Kind     GenerationKind `json:"kind"`
	Prompt   string         `json:"prompt"`

	// Kind-specific knobs. Zero values mean "apply the documented default".
	NumberOfImages  int      `json:"number_of_images,omitempty"`
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
	DurationSeconds int      `json:"duration_seconds,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxTokens       *int     `json:"max_tokens,omitempty"`

	// Extra carries additional template parameters not covered above.
	Extra map[string]any `json:"extra,omitempty"`

	// IdempotencyKey, when set, dedupes repeated identical calls.
	IdempotencyKey string `json:"-"`
}

// GenerationResult is the persisted outcome of one dispatch. Exactly one
// result is written per Generate call, success or failure, and results are
// never mutated afterwards.
type GenerationResult struct {
	ID       string         `json:"id"`
	UserID   string         `json:"user_id"`
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	Kind     GenerationKind `json:"kind"`

	InputParams map[string]any `json:"input_params,omitempty"`

	Content     string      `json:"content,omitempty"`
	ContentType ContentType `json:"content_type,omitempty"`

	Status      string    `json:"status"`
	ErrorCode   string    `json:"error_code,omitempty"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

package model

import (
	"fmt"
	"strings"
	"time"
)

// GenerationKind classifies what a provider produces.
type GenerationKind string

// Supported generation kinds.
const (
	KindText   GenerationKind = "text"
	KindImage  GenerationKind = "image"
	KindVideo  GenerationKind = "video"
	KindSocial GenerationKind = "social"
)

// Valid reports whether the kind is one of the supported values.
func (k GenerationKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindVideo, KindSocial:
		return true
	}
	return false
}

// Header is a single HTTP header entry. Headers are kept as an ordered list
// rather than a map so that the order an operator authored them in survives
// serialization round trips.
type Header struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// ResponseParser locates the generated artifact inside a provider's JSON
// response.
type ResponseParser struct {
	// ContentPath is a dot-separated path expression; purely numeric
	// segments index into arrays (e.g. "data.0.url").
	ContentPath string `json:"content_path" yaml:"content_path"`
}

// ProviderDescriptor describes one third-party generation API as data.
// A single generic engine interprets descriptors; there are no per-vendor
// adapters. Descriptors are authored by admins either as curl text or as
// this JSON shape; both encodings parse to the identical descriptor.
type ProviderDescriptor struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Kind        GenerationKind `json:"kind" yaml:"kind"`

	BaseURL string   `json:"base_url" yaml:"base_url"`
	Method  string   `json:"method" yaml:"method"`
	Headers []Header `json:"headers,omitempty" yaml:"headers,omitempty"`

	// RequestBodyTemplate is an arbitrarily nested JSON-like tree whose
	// string leaves may contain {placeholder} tokens.
	RequestBodyTemplate map[string]any `json:"request_body_template,omitempty" yaml:"request_body_template,omitempty"`

	ResponseParser ResponseParser `json:"response_parser" yaml:"response_parser"`

	Models   []string `json:"models" yaml:"models"`
	IsActive bool     `json:"is_active" yaml:"is_active"`

	CreatedAt time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Validate checks the invariants a descriptor must satisfy before it can be
// stored: name, kind, URL, at least one model, and a non-empty content path.
func (d *ProviderDescriptor) Validate() []FieldError {
	var errs []FieldError

	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, FieldError{Field: "name", Code: "required", Message: "name is required"})
	}
	if !d.Kind.Valid() {
		errs = append(errs, FieldError{Field: "kind", Code: "invalid",
			Message: fmt.Sprintf("kind must be one of text, image, video, social; got %q", d.Kind)})
	}
	if !strings.HasPrefix(d.BaseURL, "http://") && !strings.HasPrefix(d.BaseURL, "https://") {
		errs = append(errs, FieldError{Field: "base_url", Code: "invalid", Message: "base_url must be an http(s) URL"})
	}
	if len(d.Models) == 0 {
		errs = append(errs, FieldError{Field: "models", Code: "required", Message: "at least one model is required"})
	}
	if strings.TrimSpace(d.ResponseParser.ContentPath) == "" {
		errs = append(errs, FieldError{Field: "response_parser.content_path", Code: "required",
			Message: "content_path is required for the provider to be usable"})
	}
	return errs
}

// HasModel reports whether the model identifier is offered by this provider.
func (d *ProviderDescriptor) HasModel(model string) bool {
	for _, m := range d.Models {
		if m == model {
			return true
		}
	}
	return false
}

// SetHeader sets a header value, overwriting an existing entry with the same
// name (case-insensitive) while preserving its position, or appending.
func (d *ProviderDescriptor) SetHeader(name, value string) {
	for i := range d.Headers {
		if strings.EqualFold(d.Headers[i].Name, name) {
			d.Headers[i].Value = value
			return
		}
	}
	d.Headers = append(d.Headers, Header{Name: name, Value: value})
}

// ProviderSummary is the end-user visible projection of a descriptor.
// Headers and body templates are omitted: they may carry API keys.
type ProviderSummary struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Kind        GenerationKind `json:"kind"`
	Models      []string       `json:"models"`
}

// Summary returns the end-user projection of the descriptor.
func (d *ProviderDescriptor) Summary() ProviderSummary {
	return ProviderSummary{
		Name:        d.Name,
		Description: d.Description,
		Kind:        d.Kind,
		Models:      d.Models,
	}
}

package model

import (
	"context"
	"fmt"
)

// RequestContext carries the identity and request-scoped metadata extracted
// by the transport layer. It travels through every component via context.
type RequestContext struct {
	SubjectID     string
	Email         string
	Roles         []string
	CorrelationID string
	TraceID       string
	Claims        map[string]any
}

// Validate checks that the minimum identity fields are present.
func (rc *RequestContext) Validate() error {
	if rc.SubjectID == "" {
		return fmt.Errorf("request context: subject_id is required")
	}
	return nil
}

// HasRole returns true if the subject carries the given role.
func (rc *RequestContext) HasRole(role string) bool {
	for _, r := range rc.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the subject may perform registry mutations.
func (rc *RequestContext) IsAdmin() bool {
	return rc.HasRole("admin")
}

type requestContextKey struct{}

// WithRequestContext stores a RequestContext in the context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rctx)
}

// RequestContextFrom returns the RequestContext stored in the context, or nil.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rctx
}

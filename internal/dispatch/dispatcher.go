// Package dispatch executes generation requests against registered providers.
// A single generic pipeline serves every provider: resolve the descriptor,
// render its request template, call the upstream API, and extract the
// generated artifact via the descriptor's content path. There are no
// per-vendor adapters.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/genway/genway/internal/extract"
	"github.com/genway/genway/internal/observability"
	"github.com/genway/genway/internal/registry"
	"github.com/genway/genway/internal/render"
	"github.com/genway/genway/model"
)

// Request parameter defaults applied when the caller leaves a knob unset.
const (
	DefaultTemperature     = 0.7
	DefaultMaxTokens       = 1024
	DefaultNumberOfImages  = 1
	DefaultAspectRatio     = "1:1"
	DefaultDurationSeconds = 5
)

// Dispatcher executes generation requests. Exactly one GenerationResult is
// persisted per Generate call, success or failure; the result is written
// before the error is propagated to the caller. Requests rejected by field
// validation or an idempotency conflict persist nothing: no provider was
// resolved, so there is no row to write.
type Dispatcher struct {
	registry *registry.Registry
	results  ResultStore
	logger   *zap.Logger

	idem    IdempotencyStore
	idemTTL time.Duration

	client           *http.Client
	timeout          time.Duration
	maxResponseBytes int64

	metrics *observability.Metrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the upstream HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) { d.client = client }
}

// WithTimeout sets the per-call upstream deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithMaxResponseBytes bounds how much of an upstream response is read.
func WithMaxResponseBytes(n int64) Option {
	return func(d *Dispatcher) { d.maxResponseBytes = n }
}

// WithIdempotency enables idempotency-key deduplication.
func WithIdempotency(store IdempotencyStore, ttl time.Duration) Option {
	return func(d *Dispatcher) {
		d.idem = store
		d.idemTTL = ttl
	}
}

// WithMetrics attaches metric instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(reg *registry.Registry, results ResultStore, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:         reg,
		results:          results,
		logger:           logger,
		timeout:          60 * time.Second,
		maxResponseBytes: 10 << 20,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.client == nil {
		d.client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	return d
}

// Generate executes one generation request end to end. On failure the
// returned result carries the failed status and error code of the returned
// *model.ErrorEnvelope; both describe the same persisted row.
func (d *Dispatcher) Generate(ctx context.Context, req model.GenerationRequest) (model.GenerationResult, error) {
	ctx, span := observability.StartSpan(ctx, "dispatch.Generate",
		observability.AttrProvider.String(req.Provider),
		observability.AttrKind.String(string(req.Kind)),
	)
	var outErr error
	defer func() { observability.EndSpanWithError(span, outErr) }()

	logger := observability.RequestLogger(ctx, d.logger)
	start := time.Now()

	userID := ""
	if rctx := model.RequestContextFrom(ctx); rctx != nil {
		userID = rctx.SubjectID
	}

	// Validation failures produce no result row: nothing was dispatched.
	if err := validateRequest(req); err != nil {
		outErr = err
		return model.GenerationResult{}, err
	}

	desc, ok := d.registry.GetActive(req.Provider, req.Kind)
	if !ok {
		ee := model.NewProviderNotFoundError(req.Provider, req.Kind)
		outErr = ee
		return d.persistRejection(ctx, logger, userID, req, ee, start), ee
	}

	if req.Model == "" {
		req.Model = desc.Models[0]
	} else if !desc.HasModel(req.Model) {
		ee := model.NewInvalidModelError(req.Model, req.Provider)
		outErr = ee
		return d.persistRejection(ctx, logger, userID, req, ee, start), ee
	}
	span.SetAttributes(
		observability.AttrModel.String(req.Model),
		observability.AttrSubjectID.String(userID),
	)

	// Idempotency replay check.
	var idemKey, inputHash string
	if d.idem != nil && req.IdempotencyKey != "" {
		idemKey = FormatIdempotencyKey(userID, req.IdempotencyKey)
		inputHash = HashRequest(req)
		cached, found, err := d.idem.Check(ctx, idemKey, inputHash)
		if err != nil {
			if ee, ok := err.(*model.ErrorEnvelope); ok {
				if d.metrics != nil {
					d.metrics.RecordIdempotencyHit("conflict")
				}
				outErr = ee
				return model.GenerationResult{}, ee
			}
			// A broken idempotency store must not block generation.
			logger.Warn("idempotency check failed", zap.Error(err))
		} else if found {
			if d.metrics != nil {
				d.metrics.RecordIdempotencyHit("replay")
			}
			logger.Info("idempotency replay",
				zap.String("provider", req.Provider),
				zap.String("result_id", cached.ID))
			return *cached, nil
		}
	}

	params := buildParams(req)
	result := model.GenerationResult{
		ID:          uuid.NewString(),
		UserID:      userID,
		Provider:    req.Provider,
		Model:       req.Model,
		Kind:        req.Kind,
		InputParams: params,
		CreatedAt:   time.Now().UTC(),
	}

	content, contentType, respBytes, callErr := d.callUpstream(ctx, desc, params)
	if callErr != nil {
		result.Status = model.GenerationFailed
		result.ErrorCode = callErr.Code
		result.ErrorDetail = callErr.Message
	} else {
		result.Status = model.GenerationSuccess
		result.Content = content
		result.ContentType = contentType
	}

	// The result row is written before the outcome is reported, so history
	// and the caller can never disagree about what happened. A cancelled
	// request context must not take the write down with it.
	persistCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		persistCtx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	if err := d.results.Create(persistCtx, result); err != nil {
		logger.Error("persisting generation result",
			zap.String("result_id", result.ID), zap.Error(err))
		outErr = model.NewInternalError()
		return model.GenerationResult{}, outErr
	}

	if d.metrics != nil {
		d.metrics.RecordDispatch(req.Provider, string(req.Kind), result.Status,
			time.Since(start), respBytes)
	}

	if callErr != nil {
		logger.Warn("dispatch failed",
			zap.String("provider", req.Provider),
			zap.String("model", req.Model),
			zap.String("error_code", callErr.Code),
			zap.Duration("duration", time.Since(start)))
		outErr = callErr
		return result, callErr
	}

	if idemKey != "" {
		if err := d.idem.Store(ctx, idemKey, inputHash, result, d.idemTTL); err != nil {
			logger.Warn("storing idempotency entry", zap.Error(err))
		}
	}

	logger.Info("dispatch succeeded",
		zap.String("provider", req.Provider),
		zap.String("model", req.Model),
		zap.String("result_id", result.ID),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}

// persistRejection writes the result row for a request that named an unknown
// provider or model. History records these alongside upstream failures, so
// the one-row-per-call rule holds for every resolved dispatch.
func (d *Dispatcher) persistRejection(ctx context.Context, logger *zap.Logger, userID string, req model.GenerationRequest, ee *model.ErrorEnvelope, start time.Time) model.GenerationResult {
	result := model.GenerationResult{
		ID:          uuid.NewString(),
		UserID:      userID,
		Provider:    req.Provider,
		Model:       req.Model,
		Kind:        req.Kind,
		Status:      model.GenerationFailed,
		ErrorCode:   ee.Code,
		ErrorDetail: ee.Message,
		CreatedAt:   time.Now().UTC(),
	}
	if err := d.results.Create(ctx, result); err != nil {
		logger.Error("persisting generation result",
			zap.String("result_id", result.ID), zap.Error(err))
	}
	if d.metrics != nil {
		d.metrics.RecordDispatch(req.Provider, string(req.Kind), result.Status,
			time.Since(start), 0)
	}
	logger.Warn("dispatch failed",
		zap.String("provider", req.Provider),
		zap.String("model", req.Model),
		zap.String("error_code", ee.Code))
	return result
}

// callUpstream renders the descriptor, performs the HTTP call, and extracts
// the generated artifact. All failures come back as typed envelopes.
func (d *Dispatcher) callUpstream(ctx context.Context, desc model.ProviderDescriptor, params map[string]any) (content string, contentType model.ContentType, respBytes int, callErr *model.ErrorEnvelope) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var body io.Reader
	if desc.RequestBodyTemplate != nil {
		rendered := render.Render(desc.RequestBodyTemplate, params)
		raw, err := json.Marshal(rendered)
		if err != nil {
			return "", "", 0, model.NewInternalError()
		}
		body = bytes.NewReader(raw)
	}

	reqURL := render.RenderString(desc.BaseURL, params)
	req, err := http.NewRequestWithContext(ctx, desc.Method, reqURL, body)
	if err != nil {
		return "", "", 0, model.NewBadRequestError(
			fmt.Sprintf("building upstream request: %v", err))
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, h := range render.RenderHeaders(desc.Headers, params) {
		req.Header.Set(sanitizeHeader(h.Name), sanitizeHeader(h.Value))
	}
	observability.InjectTraceHeaders(ctx, req.Header)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", "", 0, classifyCallError(ctx, desc.Name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, d.maxResponseBytes))
	if err != nil {
		return "", "", 0, classifyCallError(ctx, desc.Name, err)
	}
	respBytes = len(respBody)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", respBytes, model.NewUpstreamHTTPError(
			desc.Name, resp.StatusCode, snippet(respBody))
	}

	var parsed any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", "", respBytes, model.NewResponseShapeError(
			desc.Name, "response body is not valid JSON")
	}

	value, err := extract.Extract(parsed, desc.ResponseParser.ContentPath)
	if err != nil {
		var nf *extract.NotFoundError
		if errors.As(err, &nf) {
			return "", "", respBytes, model.NewResponseShapeError(desc.Name,
				fmt.Sprintf("path %q failed at segment %q", nf.Path, nf.Segment))
		}
		return "", "", respBytes, model.NewResponseShapeError(desc.Name, err.Error())
	}

	content, ok := scalarString(value)
	if !ok {
		return "", "", respBytes, model.NewResponseShapeError(desc.Name,
			fmt.Sprintf("content at path %q is not a scalar", desc.ResponseParser.ContentPath))
	}

	return content, normalizeContentType(desc.Kind, content), respBytes, nil
}

// validateRequest checks the caller-supplied fields before any work happens.
func validateRequest(req model.GenerationRequest) error {
	var errs []model.FieldError
	if strings.TrimSpace(req.Provider) == "" {
		errs = append(errs, model.FieldError{Field: "provider", Code: "required", Message: "provider is required"})
	}
	if !req.Kind.Valid() {
		errs = append(errs, model.FieldError{Field: "kind", Code: "invalid",
			Message: fmt.Sprintf("kind must be one of text, image, video, social; got %q", req.Kind)})
	}
	if strings.TrimSpace(req.Prompt) == "" {
		errs = append(errs, model.FieldError{Field: "prompt", Code: "required", Message: "prompt is required"})
	}
	if req.NumberOfImages < 0 || req.NumberOfImages > 10 {
		errs = append(errs, model.FieldError{Field: "number_of_images", Code: "range",
			Message: "number_of_images must be between 1 and 10"})
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		errs = append(errs, model.FieldError{Field: "temperature", Code: "range",
			Message: "temperature must be between 0 and 2"})
	}
	if len(errs) > 0 {
		return model.NewValidationError(errs)
	}
	return nil
}

// buildParams assembles the template parameter map: caller extras first,
// then the core fields with documented defaults, which always win.
func buildParams(req model.GenerationRequest) map[string]any {
	params := make(map[string]any, len(req.Extra)+8)
	for k, v := range req.Extra {
		params[k] = v
	}

	params["prompt"] = req.Prompt
	params["model"] = req.Model

	temperature := DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	params["temperature"] = temperature

	maxTokens := DefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	params["max_tokens"] = maxTokens

	n := req.NumberOfImages
	if n == 0 {
		n = DefaultNumberOfImages
	}
	params["number_of_images"] = n

	ratio := req.AspectRatio
	if ratio == "" {
		ratio = DefaultAspectRatio
	}
	params["aspect_ratio"] = ratio

	duration := req.DurationSeconds
	if duration == 0 {
		duration = DefaultDurationSeconds
	}
	params["duration_seconds"] = duration

	return params
}

// scalarString converts a scalar extracted value to its string form.
func scalarString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case float64, bool, json.Number:
		return fmt.Sprint(v), true
	case nil:
		return "", false
	default:
		return "", false
	}
}

// normalizeContentType tags how the extracted content should be read.
// Text-like kinds are always text; binary kinds distinguish URLs from
// inline base64 payloads.
func normalizeContentType(kind model.GenerationKind, content string) model.ContentType {
	switch kind {
	case model.KindText, model.KindSocial:
		return model.ContentText
	default:
		if strings.HasPrefix(content, "http://") || strings.HasPrefix(content, "https://") {
			return model.ContentURL
		}
		return model.ContentBase64
	}
}

// classifyCallError maps transport failures to the error taxonomy.
func classifyCallError(ctx context.Context, provider string, err error) *model.ErrorEnvelope {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return model.NewCancelledError(
			fmt.Sprintf("call to provider %q was cancelled", provider))
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return model.NewUpstreamTimeoutError(provider)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return model.NewUpstreamTimeoutError(provider)
	}
	// DNS failures, refused connections, and everything else transport-level.
	return model.NewUpstreamUnavailableError(provider)
}

// sanitizeHeader strips newlines and carriage returns to prevent header
// injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", "")
}

// snippet truncates an upstream error body for the envelope message.
func snippet(body []byte) string {
	const max = 512
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

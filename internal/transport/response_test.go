package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/genway/genway/model"
)

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) model.ErrorEnvelope {
	t.Helper()
	var body struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body.Error
}

func TestWriteError_statusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{model.NewBadRequestError("x"), http.StatusBadRequest},
		{model.NewProviderNotFoundError("p", model.KindText), http.StatusNotFound},
		{model.NewInvalidModelError("m", "p"), http.StatusUnprocessableEntity},
		{model.NewUpstreamTimeoutError("p"), http.StatusGatewayTimeout},
		{model.NewUpstreamHTTPError("p", 500, "boom"), http.StatusBadGateway},
		{model.NewUpstreamUnavailableError("p"), http.StatusBadGateway},
		{model.NewResponseShapeError("p", "d"), http.StatusBadGateway},
		{model.NewUnresolvedBindingError("a", "b"), http.StatusUnprocessableEntity},
		{model.NewRunNotActiveError("x"), http.StatusConflict},
		{model.NewCancelledError("x"), http.StatusConflict},
		{model.NewMalformedBodyError("{", nil), http.StatusBadRequest},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		WriteError(rec, tc.err)
		if rec.Code != tc.status {
			ee := tc.err.(*model.ErrorEnvelope)
			t.Errorf("%s: status = %d, want %d", ee.Code, rec.Code, tc.status)
		}
	}
}

func TestWriteError_wrapsEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, model.NewNotFoundError("no such thing"))

	got := decodeErrorBody(t, rec)
	if got.Code != model.ErrNotFound || got.Message != "no such thing" {
		t.Errorf("envelope = %+v", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestWriteError_nonEnvelopeBecomesInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.ErrServerClosed)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeErrorBody(t, rec); got.Code != model.ErrInternalError {
		t.Errorf("code = %q", got.Code)
	}
}

package integration

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/genway/genway/model"
)

func TestAdmin_importCurlThenGenerate(t *testing.T) {
	h := NewTestHarness(t)
	h.Upstream.SetDefault("/haiku", map[string]any{
		"output": map[string]any{"text": "five seven five"},
	})

	command := fmt.Sprintf(
		`curl -X POST %s/haiku -H "Authorization: Bearer sk-haiku" -H "Content-Type: application/json" -d '{"model":"{model}","prompt":"{prompt}"}'`,
		h.Upstream.URL())

	resp := h.POST("/v1/admin/providers/import-curl", map[string]any{
		"command":      command,
		"name":         "haiku",
		"kind":         "text",
		"models":       []string{"haiku-v1"},
		"content_path": "output.text",
		"is_active":    true,
	}, h.AdminToken())

	var imported model.ProviderDescriptor
	h.ParseJSON(resp, http.StatusCreated, &imported)
	require.Equal(t, "haiku", imported.Name)
	for _, header := range imported.Headers {
		require.NotContains(t, header.Value, "sk-haiku", "echoed descriptor must not leak credentials")
	}

	// The imported provider serves traffic immediately.
	var result model.GenerationResult
	h.ParseJSON(h.POST("/v1/generate", map[string]any{
		"provider": "haiku", "kind": "text", "prompt": "gophers in spring",
	}, h.Token("user-1")), http.StatusOK, &result)
	require.Equal(t, "five seven five", result.Content)

	reqs := h.Upstream.Requests("/haiku")
	require.Len(t, reqs, 1)
	require.Equal(t, "Bearer sk-haiku", reqs[0].Headers.Get("Authorization"),
		"the stored descriptor keeps the real credential")
}

func TestAdmin_deactivationBlocksDispatch(t *testing.T) {
	h := NewTestHarness(t)
	token := h.Token("user-1")

	desc, ok := h.Registry.Get("story", model.KindText)
	require.True(t, ok)
	desc.IsActive = false
	h.ParseJSON(h.PUT("/v1/admin/providers", desc, h.AdminToken()), http.StatusOK, nil)

	resp := h.POST("/v1/generate", map[string]any{
		"provider": "story", "kind": "text", "prompt": "x",
	}, token)
	ee := h.ParseError(resp, http.StatusNotFound)
	require.Equal(t, model.ErrProviderNotFound, ee.Code)

	// Inactive providers disappear from the user-facing catalog but stay
	// visible to admins.
	var userList struct {
		Providers []model.ProviderSummary `json:"providers"`
	}
	h.ParseJSON(h.GET("/v1/providers?kind=text", token), http.StatusOK, &userList)
	for _, p := range userList.Providers {
		require.NotEqual(t, "story", p.Name)
	}

	var adminList struct {
		Providers []model.ProviderDescriptor `json:"providers"`
	}
	h.ParseJSON(h.GET("/v1/admin/providers", h.AdminToken()), http.StatusOK, &adminList)
	found := false
	for _, p := range adminList.Providers {
		if p.Name == "story" && !p.IsActive {
			found = true
		}
	}
	require.True(t, found, "admin listing includes the deactivated provider")
}

func TestAdmin_nonAdminForbidden(t *testing.T) {
	h := NewTestHarness(t)
	token := h.Token("user-1")

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/v1/admin/providers"},
		{http.MethodPut, "/v1/admin/providers"},
		{http.MethodPost, "/v1/admin/providers/import-curl"},
		{http.MethodDelete, "/v1/admin/providers/text/story"},
	} {
		var resp *http.Response
		switch tc.method {
		case http.MethodGet:
			resp = h.GET(tc.path, token)
		case http.MethodPut:
			resp = h.PUT(tc.path, map[string]any{}, token)
		case http.MethodPost:
			resp = h.POST(tc.path, map[string]any{}, token)
		case http.MethodDelete:
			resp = h.DELETE(tc.path, token)
		}
		ee := h.ParseError(resp, http.StatusForbidden)
		require.Equal(t, model.ErrForbidden, ee.Code, "%s %s", tc.method, tc.path)
	}
}

func TestAdmin_deleteProvider(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.DELETE("/v1/admin/providers/image/art", h.AdminToken())
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	gen := h.POST("/v1/generate", map[string]any{
		"provider": "art", "kind": "image", "prompt": "x",
	}, h.Token("user-1"))
	ee := h.ParseError(gen, http.StatusNotFound)
	require.Equal(t, model.ErrProviderNotFound, ee.Code)
}

func TestProviders_userListingOmitsSecrets(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/v1/providers", h.Token("user-1"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := string(h.ReadBody(resp))
	require.False(t, strings.Contains(body, "upstream-key"), "user listing leaked a credential")
	require.False(t, strings.Contains(body, "request_body_template"), "user listing leaked templates")
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geodex-labs/geodex/internal/catalog/memory"
	"github.com/geodex-labs/geodex/pkg/apierr"
)

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(context.Context) error { return p.err }

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHealthHandler_Healthz(t *testing.T) {
	h := NewHealthHandler(memory.New(), nil)
	w := httptest.NewRecorder()

	h.Healthz(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestHealthHandler_Readyz_SearchDisabled(t *testing.T) {
	h := NewHealthHandler(memory.New(), nil)
	w := httptest.NewRecorder()

	h.Readyz(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := decodeHealth(t, w); resp["search"] != "disabled" {
		t.Errorf("expected search disabled, got %q", resp["search"])
	}
}

func TestHealthHandler_Readyz_SearchUnreachable(t *testing.T) {
	h := NewHealthHandler(memory.New(), &fakePinger{err: errors.New("connection refused")})
	w := httptest.NewRecorder()

	h.Readyz(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	// Search being down degrades the report, not readiness.
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := decodeHealth(t, w); resp["search"] != "unreachable" {
		t.Errorf("expected search unreachable, got %q", resp["search"])
	}
}

func TestHealthHandler_Readyz_CatalogDown(t *testing.T) {
	cat := memory.New()
	cat.SetHealthy(false)
	h := NewHealthHandler(cat, nil)
	w := httptest.NewRecorder()

	h.Readyz(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var resp apierr.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Error.Code != apierr.CodeCatalogNotReady {
		t.Errorf("expected code %s, got %s", apierr.CodeCatalogNotReady, resp.Error.Code)
	}
}

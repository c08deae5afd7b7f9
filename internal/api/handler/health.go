package handler

import (
	"context"
	"net/http"

	"github.com/geodex-labs/geodex/internal/catalog"
	"github.com/geodex-labs/geodex/pkg/apierr"
)

// Pinger is anything with a health probe; the search client satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	catalog catalog.Catalog
	search  Pinger // nil when no search engine is configured
}

func NewHealthHandler(cat catalog.Catalog, search Pinger) *HealthHandler {
	return &HealthHandler{catalog: cat, search: search}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reports ready only when the catalog answers. The search engine
// is reported but not required: builds fail loudly on their own when it
// is down, and the declaration surface still works.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Ping(r.Context()); err != nil {
		writeAPIError(w, nil, apierr.CatalogNotReady())
		return
	}

	searchStatus := "ok"
	if h.search != nil {
		if err := h.search.Ping(r.Context()); err != nil {
			searchStatus = "unreachable"
		}
	} else {
		searchStatus = "disabled"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"search": searchStatus,
	})
}

package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/geodex-labs/geodex/internal/catalog"
	"github.com/geodex-labs/geodex/internal/dispatch"
	"github.com/geodex-labs/geodex/internal/lifecycle"
	"github.com/geodex-labs/geodex/pkg/apierr"
	"github.com/geodex-labs/geodex/pkg/models"
)

type IndexHandler struct {
	logger  *slog.Logger
	catalog catalog.Catalog
	engine  *lifecycle.Engine
}

func NewIndexHandler(logger *slog.Logger, cat catalog.Catalog, engine *lifecycle.Engine) *IndexHandler {
	return &IndexHandler{logger: logger, catalog: cat, engine: engine}
}

func (h *IndexHandler) Declare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IndexType  string `json:"index_type"`
		DataSource string `json:"data_source"`
		Region     string `json:"region"`
		Force      bool   `json:"force"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, h.logger, apierr.InvalidRequestBody())
		return
	}

	if err := validateIndexType(req.IndexType); err != nil {
		writeAPIError(w, h.logger, err)
		return
	}
	if err := validateDataSource(req.DataSource); err != nil {
		writeAPIError(w, h.logger, err)
		return
	}
	if err := validateRegion(req.Region); err != nil {
		writeAPIError(w, h.logger, err)
		return
	}

	idx, started, err := h.engine.Declare(r.Context(), lifecycle.DeclareParams{
		IndexType:  models.IndexType(req.IndexType),
		DataSource: req.DataSource,
		Region:     req.Region,
		Force:      req.Force,
	})
	if err != nil {
		writeAPIError(w, h.logger, indexError(err, req.IndexType, apierr.DeclareFailed))
		return
	}

	// 201 when this call kicked off a build, 200 for idempotent answers.
	status := http.StatusOK
	if started {
		status = http.StatusCreated
	}
	writeJSON(w, status, idx)
}

func (h *IndexHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	filter := catalog.Filter{Limit: limit, Offset: offset}
	if t := q.Get("type"); t != "" {
		if err := validateIndexType(t); err != nil {
			writeAPIError(w, h.logger, err)
			return
		}
		filter.Type = models.IndexType(t)
	}
	if region := q.Get("region"); region != "" {
		filter.Region = region
	}
	if st := q.Get("status"); st != "" {
		kind := models.StatusKind(st)
		if !kind.Valid() {
			writeAPIError(w, h.logger, apierr.InvalidStatusFilter())
			return
		}
		filter.Status = kind
	}

	indexes, err := h.catalog.List(r.Context(), filter)
	if err != nil {
		writeAPIError(w, h.logger, indexError(err, "", apierr.IndexListFailed))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"indexes": indexes,
		"total":   len(indexes),
	})
}

func (h *IndexHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "indexID"), 10, 64)
	if err != nil {
		writeAPIError(w, h.logger, apierr.InvalidID("index"))
		return
	}

	idx, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		writeAPIError(w, h.logger, indexError(err, "", apierr.InternalError))
		return
	}

	writeJSON(w, http.StatusOK, idx)
}

func (h *IndexHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "indexID"), 10, 64)
	if err != nil {
		writeAPIError(w, h.logger, apierr.InvalidID("index"))
		return
	}

	idx, err := h.engine.ForceReset(r.Context(), id)
	if err != nil {
		writeAPIError(w, h.logger, indexError(err, "", apierr.ResetFailed))
		return
	}

	writeJSON(w, http.StatusOK, idx)
}

// indexError maps engine and catalog failures onto API errors; fallback
// covers whatever is left.
func indexError(err error, indexType string, fallback func(error) *apierr.Error) *apierr.Error {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return apierr.IndexNotFound()
	case errors.Is(err, catalog.ErrConflict):
		return apierr.IndexExists(err)
	case errors.Is(err, catalog.ErrUnavailable):
		return apierr.StoreUnavailable(err)
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return apierr.InvalidTransition(err)
	case errors.Is(err, dispatch.ErrUnsupportedSource):
		return apierr.UnsupportedSource(indexType)
	case errors.Is(err, dispatch.ErrAlreadyRunning):
		return apierr.BuildAlreadyRunning()
	default:
		return fallback(err)
	}
}

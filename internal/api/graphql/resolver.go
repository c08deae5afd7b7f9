package graphql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/geodex-labs/geodex/internal/catalog"
	"github.com/geodex-labs/geodex/internal/dispatch"
	"github.com/geodex-labs/geodex/internal/lifecycle"
	"github.com/geodex-labs/geodex/pkg/apierr"
	"github.com/geodex-labs/geodex/pkg/models"
)

// Resolver executes the root fields against the catalog and the
// lifecycle engine. It mirrors the REST handlers; both surfaces go
// through the same engine so the state machine rules hold everywhere.
type Resolver struct {
	logger  *slog.Logger
	catalog catalog.Catalog
	engine  *lifecycle.Engine
}

func NewResolver(logger *slog.Logger, cat catalog.Catalog, engine *lifecycle.Engine) *Resolver {
	return &Resolver{
		logger:  logger,
		catalog: cat,
		engine:  engine,
	}
}

func (r *Resolver) resolveQuery(ctx context.Context, field *ast.Field, args map[string]any) (any, error) {
	switch field.Name {
	case "indexes":
		return r.indexes(ctx, field, args)
	case "index":
		return r.index(ctx, field, args)
	case "__typename":
		return "Query", nil
	}
	return nil, fmt.Errorf("unknown query field %q", field.Name)
}

func (r *Resolver) resolveMutation(ctx context.Context, field *ast.Field, args map[string]any) (any, error) {
	switch field.Name {
	case "declareIndex":
		return r.declareIndex(ctx, field, args)
	case "forceReset":
		return r.forceReset(ctx, field, args)
	case "__typename":
		return "Mutation", nil
	}
	return nil, fmt.Errorf("unknown mutation field %q", field.Name)
}

func (r *Resolver) indexes(ctx context.Context, field *ast.Field, args map[string]any) (any, error) {
	filter := catalog.Filter{}
	if v, ok := args["indexType"].(string); ok && v != "" {
		filter.Type = indexTypeFromGQL(v)
	}
	if v, ok := args["region"].(string); ok {
		filter.Region = v
	}
	if v, ok := args["status"].(string); ok && v != "" {
		filter.Status = statusKindFromGQL(v)
	}

	list, err := r.catalog.List(ctx, filter)
	if err != nil {
		return nil, r.mapError(err, "")
	}

	out := make([]any, 0, len(list))
	for _, idx := range list {
		out = append(out, marshalIndex(field.SelectionSet, idx))
	}
	return out, nil
}

func (r *Resolver) index(ctx context.Context, field *ast.Field, args map[string]any) (any, error) {
	id, err := parseID(args["id"])
	if err != nil {
		return nil, apierr.InvalidID("index")
	}

	idx, err := r.catalog.Get(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		// The field is nullable; an unknown id is an empty result, not an error.
		return nil, nil
	}
	if err != nil {
		return nil, r.mapError(err, "")
	}
	return marshalIndex(field.SelectionSet, idx), nil
}

func (r *Resolver) declareIndex(ctx context.Context, field *ast.Field, args map[string]any) (any, error) {
	input, ok := args["input"].(map[string]any)
	if !ok {
		return nil, apierr.InvalidRequestBody()
	}

	params := lifecycle.DeclareParams{}
	if v, ok := input["indexType"].(string); ok {
		params.IndexType = indexTypeFromGQL(v)
	}
	if v, ok := input["dataSource"].(string); ok {
		params.DataSource = v
	}
	if v, ok := input["region"].(string); ok {
		params.Region = v
	}
	if v, ok := input["force"].(bool); ok {
		params.Force = v
	}

	if params.DataSource == "" {
		return nil, apierr.DataSourceRequired()
	}
	if params.Region == "" {
		return nil, apierr.RegionRequired()
	}
	if !models.ValidRegion(params.Region) {
		return nil, apierr.RegionInvalid()
	}

	idx, _, err := r.engine.Declare(ctx, params)
	if err != nil {
		return nil, r.mapError(err, string(params.IndexType))
	}
	return marshalIndex(field.SelectionSet, idx), nil
}

func (r *Resolver) forceReset(ctx context.Context, field *ast.Field, args map[string]any) (any, error) {
	id, err := parseID(args["id"])
	if err != nil {
		return nil, apierr.InvalidID("index")
	}

	idx, err := r.engine.ForceReset(ctx, id)
	if err != nil {
		return nil, r.mapError(err, "")
	}
	return marshalIndex(field.SelectionSet, idx), nil
}

// mapError translates domain errors into API errors so the presenter can
// attach a stable code. Unexpected failures are logged here because the
// transport only sees the presented message.
func (r *Resolver) mapError(err error, indexType string) error {
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
	}
	r.logger.Error("graphql resolver failed", slog.String("error", err.Error()))
	return apierr.InternalError(err)
}

// Package graphql exposes the catalog over GraphQL. The executor is
// hand-rolled on gqlparser: the schema is small enough that parsing,
// validating and walking the selection set directly beats carrying a
// code generator.
package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
)

// Request is the standard GraphQL POST body.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

type response struct {
	Data   any           `json:"data,omitempty"`
	Errors gqlerror.List `json:"errors,omitempty"`
}

// Handler executes GraphQL operations over POST and serves the SDL.
type Handler struct {
	logger   *slog.Logger
	resolver *Resolver
}

func NewHandler(logger *slog.Logger, resolver *Resolver) *Handler {
	return &Handler{
		logger:   logger,
		resolver: resolver,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// UseNumber keeps numeric variables as json.Number, which the
	// validator accepts for ID coercion where float64 is rejected.
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var req Request
	if err := dec.Decode(&req); err != nil {
		writeResponse(w, response{Errors: gqlerror.List{gqlerror.Errorf("invalid request body")}})
		return
	}

	doc, listErr := gqlparser.LoadQuery(parsedSchema, req.Query)
	if len(listErr) > 0 {
		writeResponse(w, response{Errors: listErr})
		return
	}

	op := pickOperation(doc, req.OperationName)
	if op == nil {
		writeResponse(w, response{Errors: gqlerror.List{gqlerror.Errorf("operation %q not found", req.OperationName)}})
		return
	}
	if op.Operation == ast.Subscription {
		writeResponse(w, response{Errors: gqlerror.List{gqlerror.Errorf("subscriptions are not supported; use the websocket event feed")}})
		return
	}

	vars, verr := validator.VariableValues(parsedSchema, op, req.Variables)
	if verr != nil {
		writeResponse(w, response{Errors: gqlerror.List{asGQLError(verr)}})
		return
	}

	data, errs := h.execute(r.Context(), op, vars)
	writeResponse(w, response{Data: data, Errors: errs})
}

// Serve the schema so clients can introspect without a query.
func (h *Handler) SchemaSDL(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/graphql; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(Schema))
}

// execute runs the operation's top-level fields in order. Mutations are
// serial per the GraphQL spec; running queries the same way keeps the
// executor simple.
func (h *Handler) execute(ctx context.Context, op *ast.OperationDefinition, vars map[string]any) (map[string]any, gqlerror.List) {
	var errs gqlerror.List
	data := make(map[string]any)

	for _, f := range fields(op.SelectionSet) {
		args := f.ArgumentMap(vars)

		var (
			result any
			err    error
		)
		switch op.Operation {
		case ast.Mutation:
			result, err = h.resolver.resolveMutation(ctx, f, args)
		default:
			result, err = h.resolver.resolveQuery(ctx, f, args)
		}

		if err != nil {
			errs = append(errs, presentError(f, err))
			data[key(f)] = nil
			continue
		}
		data[key(f)] = result
	}

	return data, errs
}

func pickOperation(doc *ast.QueryDocument, name string) *ast.OperationDefinition {
	if name == "" {
		if len(doc.Operations) == 1 {
			return doc.Operations[0]
		}
		return nil
	}
	for _, op := range doc.Operations {
		if op.Name == name {
			return op
		}
	}
	return nil
}

func asGQLError(err error) *gqlerror.Error {
	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		return gqlErr
	}
	return gqlerror.Errorf("%s", err.Error())
}

func writeResponse(w http.ResponseWriter, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

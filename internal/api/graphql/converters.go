package graphql

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/geodex-labs/geodex/pkg/models"
)

// marshalIndex shapes an index according to the query's selection set,
// honoring aliases. IDs go out as strings, times as RFC 3339 UTC.
func marshalIndex(sel ast.SelectionSet, idx models.Index) map[string]any {
	out := make(map[string]any)
	for _, f := range fields(sel) {
		switch f.Name {
		case "id":
			out[key(f)] = strconv.FormatInt(idx.ID, 10)
		case "indexType":
			out[key(f)] = indexTypeToGQL(idx.IndexType)
		case "dataSource":
			out[key(f)] = idx.DataSource
		case "region":
			out[key(f)] = idx.Region
		case "status":
			out[key(f)] = marshalStatus(f.SelectionSet, idx.Status)
		case "createdAt":
			out[key(f)] = idx.CreatedAt.UTC().Format(time.RFC3339)
		case "updatedAt":
			out[key(f)] = idx.UpdatedAt.UTC().Format(time.RFC3339)
		case "__typename":
			out[key(f)] = "Index"
		}
	}
	return out
}

// marshalStatus flattens the status variant: kind is always set, the
// payload fields of the other variants come back null.
func marshalStatus(sel ast.SelectionSet, s models.Status) map[string]any {
	out := make(map[string]any)
	for _, f := range fields(sel) {
		switch f.Name {
		case "kind":
			out[key(f)] = statusKindToGQL(s.Kind)
		case "startedAt":
			out[key(f)] = nullableTime(s.StartedAt)
		case "builtAt":
			out[key(f)] = nullableTime(s.BuiltAt)
		case "documentCount":
			if s.Kind == models.StatusKindAvailable {
				out[key(f)] = s.DocumentCount
			} else {
				out[key(f)] = nil
			}
		case "reason":
			if s.Kind == models.StatusKindError {
				out[key(f)] = s.Reason
			} else {
				out[key(f)] = nil
			}
		case "failedAt":
			out[key(f)] = nullableTime(s.FailedAt)
		case "__typename":
			out[key(f)] = "IndexStatus"
		}
	}
	return out
}

// fields flattens a selection set, expanding fragments. The validator has
// already linked fragment definitions and checked type conditions.
func fields(sel ast.SelectionSet) []*ast.Field {
	var out []*ast.Field
	for _, s := range sel {
		switch s := s.(type) {
		case *ast.Field:
			out = append(out, s)
		case *ast.InlineFragment:
			out = append(out, fields(s.SelectionSet)...)
		case *ast.FragmentSpread:
			if s.Definition != nil {
				out = append(out, fields(s.Definition.SelectionSet)...)
			}
		}
	}
	return out
}

func key(f *ast.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func indexTypeToGQL(t models.IndexType) string {
	return strings.ToUpper(string(t))
}

func indexTypeFromGQL(v string) models.IndexType {
	return models.IndexType(strings.ToLower(v))
}

func statusKindToGQL(k models.StatusKind) string {
	switch k {
	case models.StatusKindNotAvailable:
		return "NOT_AVAILABLE"
	case models.StatusKindRunning:
		return "RUNNING"
	case models.StatusKindAvailable:
		return "AVAILABLE"
	case models.StatusKindError:
		return "ERROR"
	}
	return strings.ToUpper(string(k))
}

func statusKindFromGQL(v string) models.StatusKind {
	switch v {
	case "NOT_AVAILABLE":
		return models.StatusKindNotAvailable
	case "RUNNING":
		return models.StatusKindRunning
	case "AVAILABLE":
		return models.StatusKindAvailable
	case "ERROR":
		return models.StatusKindError
	}
	return models.StatusKind(v)
}

// parseID accepts the representations an ID can arrive in: a string from
// variables or literals, an int64 from inline int literals, or a
// json.Number when clients send bare ints in variables.
func parseID(v any) (int64, error) {
	switch v := v.(type) {
	case string:
		return strconv.ParseInt(v, 10, 64)
	case int64:
		return v, nil
	case json.Number:
		return v.Int64()
	case float64:
		return int64(v), nil
	}
	return 0, fmt.Errorf("invalid id %v", v)
}

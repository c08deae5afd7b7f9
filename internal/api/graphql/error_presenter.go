package graphql

import (
	"errors"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/geodex-labs/geodex/pkg/apierr"
)

// presentError shapes a resolver failure as a GraphQL error on the given
// field, putting apierr codes into the extensions so clients can branch
// on them the same way they do against the REST surface.
func presentError(field *ast.Field, err error) *gqlerror.Error {
	gqlErr := &gqlerror.Error{
		Message: err.Error(),
		Path:    ast.Path{ast.PathName(key(field))},
	}

	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		gqlErr.Message = apiErr.Message()
		gqlErr.Extensions = map[string]interface{}{
			"code": string(apiErr.Code()),
		}
	}

	return gqlErr
}

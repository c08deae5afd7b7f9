package apierr

import (
	"fmt"
	"net/http"
)

// --- Common ---

func InvalidRequestBody() *Error {
	return New(CodeInvalidRequestBody, http.StatusBadRequest, "Invalid request body")
}

func InvalidID(entity string) *Error {
	return New(CodeInvalidID, http.StatusBadRequest, "Invalid "+entity+" ID")
}

func InternalError(cause error) *Error {
	return Wrap(CodeInternalError, http.StatusInternalServerError, "Internal server error", cause)
}

// --- Index ---

func IndexNotFound() *Error {
	return New(CodeIndexNotFound, http.StatusNotFound, "Index not found")
}

func IndexExists(cause error) *Error {
	return Wrap(CodeIndexExists, http.StatusConflict, "Index already declared for this type, data source and region", cause)
}

func InvalidTransition(cause error) *Error {
	return Wrap(CodeInvalidTransition, http.StatusConflict, "Status transition not allowed from the current state", cause)
}

func DeclareFailed(cause error) *Error {
	return Wrap(CodeDeclareFailed, http.StatusInternalServerError, "Failed to declare index", cause)
}

func IndexListFailed(cause error) *Error {
	return Wrap(CodeIndexListFailed, http.StatusInternalServerError, "Failed to list indexes", cause)
}

func ResetFailed(cause error) *Error {
	return Wrap(CodeResetFailed, http.StatusInternalServerError, "Failed to reset index", cause)
}

// --- Build ---

func UnsupportedSource(indexType string) *Error {
	return New(CodeUnsupportedSource, http.StatusBadRequest,
		fmt.Sprintf("No ingestion toolchain registered for index type %q", indexType))
}

func BuildAlreadyRunning() *Error {
	return New(CodeBuildAlreadyRunning, http.StatusConflict, "A build is already running for this index")
}

// --- Validation ---

func InvalidIndexType() *Error {
	return New(CodeInvalidIndexType, http.StatusBadRequest, "index_type must be one of: osm, cosmogony, bano, openaddresses")
}

func DataSourceRequired() *Error {
	return New(CodeDataSourceRequired, http.StatusBadRequest, "data_source is required")
}

func RegionRequired() *Error {
	return New(CodeRegionRequired, http.StatusBadRequest, "region is required")
}

func RegionInvalid() *Error {
	return New(CodeInvalidRegion, http.StatusBadRequest, "region must be lowercase alphanumeric with - or _ separators")
}

func InvalidStatusFilter() *Error {
	return New(CodeInvalidStatusFilter, http.StatusBadRequest, "status must be one of: NotAvailable, Running, Available, Error")
}

// --- Events ---

func SubscribeFailed(cause error) *Error {
	return Wrap(CodeSubscribeFailed, http.StatusInternalServerError, "Failed to subscribe to index events", cause)
}

// --- Health ---

func StoreUnavailable(cause error) *Error {
	return Wrap(CodeStoreUnavailable, http.StatusServiceUnavailable, "Catalog store is unavailable", cause)
}

func CatalogNotReady() *Error {
	return New(CodeCatalogNotReady, http.StatusServiceUnavailable, "Catalog not ready")
}

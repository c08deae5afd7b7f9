package apierr

// Code is a machine-readable error code returned in API responses.
type Code string

// Common errors.
const (
	CodeInvalidRequestBody Code = "INVALID_REQUEST_BODY"
	CodeInvalidID          Code = "INVALID_ID"
	CodeInternalError      Code = "INTERNAL_ERROR"
)

// Index errors.
const (
	CodeIndexNotFound     Code = "INDEX_NOT_FOUND"
	CodeIndexExists       Code = "INDEX_EXISTS"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeDeclareFailed     Code = "DECLARE_FAILED"
	CodeIndexListFailed   Code = "INDEX_LIST_FAILED"
	CodeResetFailed       Code = "RESET_FAILED"
)

// Build errors.
const (
	CodeUnsupportedSource   Code = "UNSUPPORTED_SOURCE"
	CodeBuildAlreadyRunning Code = "BUILD_ALREADY_RUNNING"
)

// Validation errors.
const (
	CodeInvalidIndexType    Code = "INVALID_INDEX_TYPE"
	CodeDataSourceRequired  Code = "DATA_SOURCE_REQUIRED"
	CodeRegionRequired      Code = "REGION_REQUIRED"
	CodeInvalidRegion       Code = "INVALID_REGION"
	CodeInvalidStatusFilter Code = "INVALID_STATUS_FILTER"
)

// Event stream errors.
const (
	CodeSubscribeFailed Code = "SUBSCRIBE_FAILED"
)

// Health errors.
const (
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	CodeCatalogNotReady  Code = "CATALOG_NOT_READY"
)

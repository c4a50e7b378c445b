package errors

import "net/http"

// Code is the stable, machine-readable error identifier returned to clients.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeStateConflict     Code = "STATE_CONFLICT"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeIdempotency       Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit         Code = "RATE_LIMIT_EXCEEDED"
	CodeUnsupported       Code = "UNSUPPORTED"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Metadata decides how much of an Error reaches the client.
type Metadata struct {
	HTTPStatus int
	// Retryable tells clients the same request may succeed later.
	Retryable bool
	// PublicMessage replaces the error's own message unless ExposeMessage is set.
	PublicMessage  string
	ExposeMessage  bool
	DetailsAllowed bool
}

func clientError(status int, public string, details bool) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: public, ExposeMessage: true, DetailsAllowed: details}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:        clientError(http.StatusBadRequest, "validation failed", true),
	CodeUnauthorized:      clientError(http.StatusUnauthorized, "authentication required", false),
	CodeForbidden:         clientError(http.StatusForbidden, "access denied", false),
	CodeNotFound:          clientError(http.StatusNotFound, "resource not found", false),
	CodeConflict:          clientError(http.StatusConflict, "conflict detected", false),
	CodeStateConflict:     clientError(http.StatusUnprocessableEntity, "state transition disallowed", true),
	CodeInsufficientStock: clientError(http.StatusConflict, "insufficient stock", true),
	CodeIdempotency:       clientError(http.StatusConflict, "idempotency key reused", true),
	CodeRateLimit:         {HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded", ExposeMessage: true, Retryable: true},
	CodeUnsupported:       {HTTPStatus: http.StatusNotImplemented, PublicMessage: "operation not supported by this backend", ExposeMessage: true, DetailsAllowed: true},
	CodeInternal:          {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error", Retryable: true},
	CodeDependency:        {HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "dependency unavailable", Retryable: true},
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

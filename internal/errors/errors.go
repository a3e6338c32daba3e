package errors

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stwalsh4118/landb/internal/middleware"
)

// Error code constants for standardized error responses
const (
	ErrNotFound        = "NOT_FOUND"
	ErrBadRequest      = "BAD_REQUEST"
	ErrInternalServer  = "INTERNAL_SERVER_ERROR"
	ErrValidation      = "VALIDATION_ERROR"
	ErrTooManyRequests = "TOO_MANY_REQUESTS"
	ErrSnapshotMissing = "SNAPSHOT_UNAVAILABLE"
	ErrUpstream        = "UPSTREAM_ERROR"
	ErrConflict        = "CONFLICT"
)

// ErrorResponse is the top-level error response structure.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// respond logs through the request logger and writes the error envelope.
// A nil err logs at warn level, anything else at error level.
func respond(c *gin.Context, status int, code, message string, details map[string]interface{}, err error) {
	requestID := middleware.GetRequestID(c)

	if log := middleware.GetLogger(c); log != nil {
		fields := map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
			"path":       c.Request.URL.Path,
		}
		if details != nil {
			fields["details"] = details
		}
		if err != nil {
			fields["method"] = c.Request.Method
			log.Error("Request failed", err, fields)
		} else {
			log.Warn("Request rejected", fields)
		}
	}

	c.JSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: requestID,
		},
	})
}

// NotFound returns a 404 Not Found error response.
func NotFound(c *gin.Context, message string) {
	respond(c, http.StatusNotFound, ErrNotFound, message, nil, nil)
}

// BadRequest returns a 400 Bad Request error response with optional details.
func BadRequest(c *gin.Context, message string, details map[string]interface{}) {
	respond(c, http.StatusBadRequest, ErrBadRequest, message, details, nil)
}

// TooManyRequests returns a 429 response telling the client when to retry.
// It sets Retry-After in whole seconds, never less than one.
func TooManyRequests(c *gin.Context, message string, retryAt time.Time) {
	wait := int(time.Until(retryAt).Seconds() + 0.999)
	if wait < 1 {
		wait = 1
	}
	c.Header("Retry-After", strconv.Itoa(wait))
	respond(c, http.StatusTooManyRequests, ErrTooManyRequests, message, map[string]interface{}{
		"next_allowed_at": retryAt.UTC().Format(time.RFC3339),
	}, nil)
}

// SnapshotUnavailable returns a 503 when no land snapshot has been fetched yet.
func SnapshotUnavailable(c *gin.Context, message string) {
	respond(c, http.StatusServiceUnavailable, ErrSnapshotMissing, message, nil, nil)
}

// BadGateway returns a 502 when the remote registry could not be read.
// The upstream error is logged but not exposed.
func BadGateway(c *gin.Context, message string, err error) {
	respond(c, http.StatusBadGateway, ErrUpstream, message, nil, err)
}

// Conflict returns a 409 for an operation the current state does not allow.
func Conflict(c *gin.Context, message string) {
	respond(c, http.StatusConflict, ErrConflict, message, nil, nil)
}

// InternalServerError returns a 500 Internal Server Error response.
// The actual error is logged and never sent to the client.
func InternalServerError(c *gin.Context, message string, err error) {
	respond(c, http.StatusInternalServerError, ErrInternalServer, message, nil, err)
}

// ValidationError returns a 400 Bad Request error response with field-specific validation errors.
func ValidationError(c *gin.Context, validationErrors validator.ValidationErrors) {
	details := make(map[string]interface{}, len(validationErrors))
	for _, err := range validationErrors {
		details[err.Field()] = formatValidationError(err)
	}
	respond(c, http.StatusBadRequest, ErrValidation, "Validation failed for one or more fields", details, nil)
}

// formatValidationError converts a validator.FieldError to a human-readable message.
func formatValidationError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return "Value is too short or small (minimum: " + err.Param() + ")"
	case "max":
		return "Value is too long or large (maximum: " + err.Param() + ")"
	case "gte":
		return "Must be greater than or equal to " + err.Param()
	case "lte":
		return "Must be less than or equal to " + err.Param()
	case "oneof":
		return "Must be one of: " + err.Param()
	case "hexadecimal":
		return "Must be a hexadecimal address"
	default:
		return "Validation failed for tag: " + err.Tag()
	}
}

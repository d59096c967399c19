package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
)

// APIError represents a structured API error response
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// ValidationError represents a single field validation failure
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates a new APIError with the given parameters
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates a new APIError with additional details
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// Predefined error types for common scenarios
var (
	ErrInvalidRequest    = New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
	ErrNotFound          = New(http.StatusNotFound, "NOT_FOUND", "Resource not found")
	ErrRateLimitExceeded = New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")
	ErrInternalServer    = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
	ErrQueueFull         = New(http.StatusServiceUnavailable, "QUEUE_FULL", "Job queue is full")
)

// Conflict reports a request that clashes with the current state of a resource.
func Conflict(message string) *APIError {
	return New(http.StatusConflict, "CONFLICT", message)
}

// InvalidRequestWithError creates an invalid request error with details
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
}

// NewValidationErrors creates validation errors from multiple fields
func NewValidationErrors(errs []ValidationError) *APIError {
	return NewWithDetails(
		http.StatusBadRequest,
		"VALIDATION_FAILED",
		"Request validation failed",
		errs,
	)
}

// FromAppError maps the calibration taxonomy onto HTTP semantics.
// Insufficient data and ill-conditioned systems are well-formed requests the
// engine cannot fit, so they are reported as 422.
func FromAppError(appErr *AppError) *APIError {
	status := http.StatusInternalServerError
	switch appErr.Type {
	case ErrTypeOutOfBounds, ErrTypeValidation, ErrTypeParsing:
		status = http.StatusBadRequest
	case ErrTypeDataInsufficiency, ErrTypeIllConditioned:
		status = http.StatusUnprocessableEntity
	case ErrTypeNotFound:
		status = http.StatusNotFound
	}

	var details interface{}
	if len(appErr.Context) > 0 {
		details = appErr.Context
	}
	return NewWithDetails(status, string(appErr.Type), appErr.Error(), details)
}

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON flattens extensions into the top-level object
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{}, len(pd.Extensions)+5)
	for k, v := range pd.Extensions {
		data[k] = v
	}

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status
	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	return json.Marshal(data)
}

// problemType maps an error code to its problem type URI
func problemType(errorCode string) string {
	switch errorCode {
	case "VALIDATION_FAILED", "INVALID_REQUEST", string(ErrTypeOutOfBounds), string(ErrTypeValidation):
		return "/errors/validation"
	case string(ErrTypeDataInsufficiency):
		return "/errors/calibration/insufficient-data"
	case string(ErrTypeIllConditioned):
		return "/errors/calibration/ill-conditioned"
	case string(ErrTypeNotFound):
		return "/errors/not-found"
	case "RATE_LIMIT_EXCEEDED":
		return "/errors/rate-limit"
	case "QUEUE_FULL":
		return "/errors/queue-full"
	case "CONFLICT":
		return "/errors/conflict"
	case "PAYLOAD_TOO_LARGE":
		return "/errors/payload-too-large"
	case "UNSUPPORTED_MEDIA_TYPE":
		return "/errors/unsupported-media-type"
	default:
		return "/errors/internal"
	}
}

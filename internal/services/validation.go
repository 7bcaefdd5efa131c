package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Error kinds crossing the service boundary. Collaborator failures are mapped
// to one of these before reaching a response; provider error bodies stay in
// the server log only.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeAuthentication = "AUTHENTICATION_ERROR"
	CodeAuthorization  = "AUTHORIZATION_ERROR"
	CodeRateLimited    = "RATE_LIMITED"
	CodeExpired        = "EXPIRED"
	CodeUpstream       = "UPSTREAM_ERROR"
)

// FlowError is a service-level failure with a machine-readable kind and a
// stable, deliberately low-detail message. RetryAfter carries the resend
// cooldown countdown when the kind is RATE_LIMITED.
type FlowError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"` // seconds
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus maps the error kind to its response status. EXPIRED is a 401
// like AUTHENTICATION_ERROR; the distinct code exists for metrics.
func (e *FlowError) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeAuthentication, CodeExpired:
		return http.StatusUnauthorized
	case CodeAuthorization:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func NewFlowError(code, message string) *FlowError {
	return &FlowError{Code: code, Message: message}
}

// SendFlowError writes a FlowError (or a generic 500 for anything else) in
// the standard error envelope.
func SendFlowError(w http.ResponseWriter, err error) {
	var fe *FlowError
	if !errors.As(err, &fe) {
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(fe.HTTPStatus())
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:      fe.Message,
		Code:       fe.Code,
		RetryAfter: fe.RetryAfter,
	})
}

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error      string            `json:"error"`                // Error message
	Code       string            `json:"code,omitempty"`       // Machine-readable kind
	RetryAfter int               `json:"retryAfter,omitempty"` // Cooldown hint, seconds
	Details    map[string]string `json:"details,omitempty"`    // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	if statusCode == http.StatusBadRequest {
		errorResp.Code = CodeValidation
	}
	if validationErr != nil {
		errorResp.Details = make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(validationErr, &verrs) {
			for _, err := range verrs {
				errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
			}
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}

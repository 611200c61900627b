package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeEvaluation        ErrorType = "evaluation"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeInvalidTransition ErrorType = "invalid_transition"
	ErrorTypeIncomparable      ErrorType = "incomparable"
	ErrorTypeStorage           ErrorType = "storage"
	ErrorTypeInternal          ErrorType = "internal"
)

// Error codes for different error scenarios
const (
	// Validation error codes
	CodeInvalidInput     = "INVALID_INPUT"
	CodeMissingField     = "MISSING_FIELD"
	CodeUnsupportedType  = "UNSUPPORTED_MODEL_TYPE"
	CodeInvalidArtifact  = "INVALID_ARTIFACT"
	CodeInvalidStage     = "INVALID_STAGE"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeTargetNotEmpty   = "TARGET_NOT_EMPTY"

	// Evaluation error codes
	CodeEmptyHoldout       = "EMPTY_HOLDOUT"
	CodeFeatureMismatch    = "FEATURE_MISMATCH"
	CodeInferenceFailed    = "INFERENCE_FAILED"
	CodeEmptyMetrics       = "EMPTY_METRICS"
	CodeEvaluationTimeout  = "EVALUATION_TIMEOUT"
	CodeEvaluationCanceled = "EVALUATION_CANCELED"

	// Lookup error codes
	CodeRecordNotFound   = "RECORD_NOT_FOUND"
	CodeArtifactNotFound = "ARTIFACT_NOT_FOUND"

	// Lifecycle error codes
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeModelTypeMismatch = "MODEL_TYPE_MISMATCH"
	CodeUnknownRecord     = "UNKNOWN_RECORD"

	// Storage error codes
	CodeStorageError     = "STORAGE_ERROR"
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeWriteFailed      = "WRITE_FAILED"
	CodeReadFailed       = "READ_FAILED"
	CodeStorageTimeout   = "STORAGE_TIMEOUT"
	CodeTxConflict       = "TRANSACTION_CONFLICT"
	CodeCorruptArtifact  = "CORRUPT_ARTIFACT"
	CodeInvalidConfig    = "INVALID_CONFIG"

	// Internal error codes
	CodeInternalError = "INTERNAL_ERROR"
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Retryable  bool                   `json:"retryable"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != "" {
		msg = fmt.Sprintf("%s - %s", msg, e.Details)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause attaches the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		Retryable:  errType == ErrorTypeStorage,
		HTTPStatus: getDefaultHTTPStatus(errType),
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	appErr := NewAppError(errType, code, message)
	appErr.Cause = err
	return appErr
}

// NewValidationError creates a validation error
func NewValidationError(code, message string) *AppError {
	return NewAppError(ErrorTypeValidation, code, message)
}

// NewEvaluationError creates an evaluation error
func NewEvaluationError(code, message string) *AppError {
	return NewAppError(ErrorTypeEvaluation, code, message)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(code, message string) *AppError {
	return NewAppError(ErrorTypeNotFound, code, message)
}

// NewInvalidTransitionError creates an invalid stage transition error
func NewInvalidTransitionError(from, to string) *AppError {
	return NewAppError(ErrorTypeInvalidTransition, CodeInvalidTransition,
		fmt.Sprintf("transition from %q to %q is not allowed", from, to))
}

// NewIncomparableError creates an error for records that cannot be compared
func NewIncomparableError(code, message string) *AppError {
	return NewAppError(ErrorTypeIncomparable, code, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, CodeInternalError, message)
}

// FromContext converts a context error into a typed failure of the given kind.
// It returns nil when err is not a context error.
func FromContext(err error, errType ErrorType, operation string) *AppError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code := CodeStorageTimeout
		if errType == ErrorTypeEvaluation {
			code = CodeEvaluationTimeout
		}
		return WrapError(err, errType, code, fmt.Sprintf("%s timed out", operation))
	case errors.Is(err, context.Canceled):
		code := CodeStorageError
		if errType == ErrorTypeEvaluation {
			code = CodeEvaluationCanceled
		}
		return WrapError(err, errType, code, fmt.Sprintf("%s canceled", operation))
	}
	return nil
}

// IsValidation reports whether err carries a validation error
func IsValidation(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsEvaluation reports whether err carries an evaluation error
func IsEvaluation(err error) bool { return hasType(err, ErrorTypeEvaluation) }

// IsNotFound reports whether err carries a not found error
func IsNotFound(err error) bool { return hasType(err, ErrorTypeNotFound) }

// IsInvalidTransition reports whether err carries an invalid transition error
func IsInvalidTransition(err error) bool { return hasType(err, ErrorTypeInvalidTransition) }

// IsIncomparable reports whether err carries an incomparable error
func IsIncomparable(err error) bool { return hasType(err, ErrorTypeIncomparable) }

// IsStorage reports whether err carries a storage failure
func IsStorage(err error) bool { return hasType(err, ErrorTypeStorage) }

// AsAppError returns the outermost AppError in err's chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// TypeOf returns the type of the outermost AppError in the chain, or internal.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// HTTPStatusOf returns the HTTP status for err
func HTTPStatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// hasType walks every AppError in the chain, including causes of outer AppErrors.
func hasType(err error, errType ErrorType) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Type == errType {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// getDefaultHTTPStatus returns the default HTTP status for an error type
func getDefaultHTTPStatus(errType ErrorType) int {
	switch errType {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeEvaluation, ErrorTypeIncomparable:
		return http.StatusUnprocessableEntity
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeInvalidTransition:
		return http.StatusConflict
	case ErrorTypeStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse represents an error response for APIs
type ErrorResponse struct {
	Error     *AppError `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp string    `json:"timestamp"`
	Path      string    `json:"path,omitempty"`
}

// Package errors defines the structured error type used by the layers around
// the provider registries: configuration, manifests, sessions and the
// extension-host transport. The registries themselves never fail.
package errors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeProvider   ErrorType = "provider"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// DocfeatError is a structured error type with context.
type DocfeatError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	Feature     string
	Recoverable bool
}

// Error implements the error interface.
func (e *DocfeatError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	if e.Feature != "" {
		parts = append(parts, "feature:"+e.Feature)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *DocfeatError) Unwrap() error {
	return e.Cause
}

// Is matches on type and code, so sentinel-style comparisons work:
//
//	errors.Is(err, errors.NewValidationError(ErrCodeUnknownFeature, ""))
func (e *DocfeatError) Is(target error) bool {
	var t *DocfeatError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *DocfeatError) WithContext(key string, value interface{}) *DocfeatError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithComponent adds component context.
func (e *DocfeatError) WithComponent(component string) *DocfeatError {
	e.Component = component

	return e
}

// WithFeature records the feature the error relates to.
func (e *DocfeatError) WithFeature(feature string) *DocfeatError {
	e.Feature = feature

	return e
}

// WithCause sets the underlying cause.
func (e *DocfeatError) WithCause(cause error) *DocfeatError {
	e.Cause = cause

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *DocfeatError {
	return &DocfeatError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *DocfeatError {
	return &DocfeatError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewNetworkError creates a network error. Network errors are recoverable:
// the peer may reconnect and register again.
func NewNetworkError(code, message string, cause error) *DocfeatError {
	return &DocfeatError{
		Type:        ErrorTypeNetwork,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewProviderError wraps an error returned by a feature provider.
func NewProviderError(feature string, cause error) *DocfeatError {
	return &DocfeatError{
		Type:        ErrorTypeProvider,
		Code:        ErrCodeProviderFailed,
		Message:     "provider failed",
		Cause:       cause,
		Feature:     feature,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *DocfeatError {
	return &DocfeatError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var de *DocfeatError
	if errors.As(err, &de) {
		return de.Recoverable
	}

	return false
}

// HasCode reports whether err is a DocfeatError with the given code.
func HasCode(err error, code string) bool {
	var de *DocfeatError
	if errors.As(err, &de) {
		return de.Code == code
	}

	return false
}

// ErrorHandler provides centralized error logging.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err at a level that matches its type. Recoverable errors are
// warnings.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var de *DocfeatError
	if !errors.As(err, &de) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	fields := []interface{}{"type", string(de.Type), "code", de.Code}
	if de.Component != "" {
		fields = append(fields, "component", de.Component)
	}
	if de.Feature != "" {
		fields = append(fields, "feature", de.Feature)
	}
	keys := make([]string, 0, len(de.Context))
	for k := range de.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, k, de.Context[k])
	}

	if de.Recoverable {
		h.logger.Warn(ctx, err, "Recoverable error occurred", fields...)
	} else {
		h.logger.Error(ctx, err, "Error occurred", fields...)
	}
}

// Common error codes.
const (
	ErrCodeUnknownFeature        = "ERR_UNKNOWN_FEATURE"
	ErrCodeDuplicateRegistration = "ERR_DUPLICATE_REGISTRATION"
	ErrCodeUnknownRegistration   = "ERR_UNKNOWN_REGISTRATION"
	ErrCodeSessionClosed         = "ERR_SESSION_CLOSED"
	ErrCodeManifestInvalid       = "ERR_MANIFEST_INVALID"
	ErrCodeConfigInvalid         = "ERR_CONFIG_INVALID"
	ErrCodeFileNotFound          = "ERR_FILE_NOT_FOUND"
	ErrCodeProviderFailed        = "ERR_PROVIDER_FAILED"
	ErrCodeRequestTimeout        = "ERR_REQUEST_TIMEOUT"
	ErrCodeConnectionClosed      = "ERR_CONNECTION_CLOSED"
	ErrCodeProtocol              = "ERR_PROTOCOL"
	ErrCodeValidationFailed      = "ERR_VALIDATION_FAILED"
)

// FieldValidationError reports a problem with one field of an input.
type FieldValidationError struct {
	FieldName    string
	FieldValue   interface{}
	ErrorMessage string
}

// Error implements the error interface.
func (fve *FieldValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", fve.FieldName, fve.ErrorMessage)
}

// NewFieldValidationError creates a new field validation error.
func NewFieldValidationError(field string, value interface{}, message string) *FieldValidationError {
	return &FieldValidationError{
		FieldName:    field,
		FieldValue:   value,
		ErrorMessage: message,
	}
}

// ValidationErrorCollection represents a collection of validation errors.
type ValidationErrorCollection struct {
	Errors []*FieldValidationError
}

// Error implements the error interface.
func (vec *ValidationErrorCollection) Error() string {
	switch len(vec.Errors) {
	case 0:
		return "no validation errors"
	case 1:
		return vec.Errors[0].Error()
	}

	msgs := make([]string, len(vec.Errors))
	for i, err := range vec.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("validation failed with %d errors: %s", len(vec.Errors), strings.Join(msgs, "; "))
}

// AddField adds a field validation error to the collection.
func (vec *ValidationErrorCollection) AddField(field string, value interface{}, message string) {
	vec.Errors = append(vec.Errors, NewFieldValidationError(field, value, message))
}

// HasErrors returns true if there are any validation errors.
func (vec *ValidationErrorCollection) HasErrors() bool {
	return len(vec.Errors) > 0
}

// Err returns the collection as a validation error with the given code, or
// nil when it is empty.
func (vec *ValidationErrorCollection) Err(code, message string) error {
	if !vec.HasErrors() {
		return nil
	}
	return NewValidationError(code, message).WithCause(vec)
}

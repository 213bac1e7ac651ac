package rbac

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a role definition, object role, or
// assignment does not exist. Remove operations treat it as a no-op.
var ErrNotFound = errors.New("not found")

// ValidationError indicates that a role definition or an assignment
// request is not well-formed. API layers should surface it as a 4xx.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError with a formatted message.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PermissionDenied indicates the caller lacks the meta-permission to
// perform an assignment operation. API layers should surface it as 403.
type PermissionDenied struct {
	Message string
}

func (e *PermissionDenied) Error() string {
	return e.Message
}

// IsPermissionDenied reports whether err is (or wraps) a PermissionDenied.
func IsPermissionDenied(err error) bool {
	var pd *PermissionDenied
	return errors.As(err, &pd)
}

// ConfigError indicates a misuse of the registry or engine setup:
// registering a type after startup, duplicate type names, parent cycles,
// or an unsupported primary key kind. The engine refuses to operate.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// NewConfigError creates a ConfigError with a formatted message.
func NewConfigError(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

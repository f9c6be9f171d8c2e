package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool   = errors.New("external service error")
	ErrValidation     = errors.New("validation error")
	ErrConfiguration  = errors.New("configuration error")
	ErrNotFound       = errors.New("not found")
	ErrTimeout        = errors.New("timeout")
	ErrTransient      = errors.New("transient failure")
	ErrLockContention = errors.New("lock contention")
	ErrUnsupported    = errors.New("unsupported operation")
)

// Details is the structured view of an error produced by Wrap.
type Details struct {
	Marker    error
	Component string
	Operation string
	Message   string
	Cause     error
}

type wrappedError struct {
	details Details
}

func (e *wrappedError) Error() string {
	detail := buildDetail(e.details.Component, e.details.Operation, e.details.Message)
	if e.details.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.details.Marker, detail, e.details.Cause)
	}
	return fmt.Sprintf("%s: %s", e.details.Marker, detail)
}

func (e *wrappedError) Unwrap() []error {
	if e.details.Cause == nil {
		return []error{e.details.Marker}
	}
	return []error{e.details.Marker, e.details.Cause}
}

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &wrappedError{details: Details{
		Marker:    marker,
		Component: strings.TrimSpace(component),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}}
}

// DetailsOf extracts the outermost Wrap details from err.
func DetailsOf(err error) (Details, bool) {
	var wrapped *wrappedError
	if errors.As(err, &wrapped) {
		return wrapped.details, true
	}
	return Details{}, false
}

// Hint returns a short operator-facing next step for the error class.
func Hint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "check the daemon configuration file"
	case errors.Is(err, ErrValidation):
		return "check the submitted job parameters"
	case errors.Is(err, ErrNotFound):
		return "the referenced catalog row no longer exists; refresh the library view"
	case errors.Is(err, ErrLockContention):
		return "the catalog is busy; retry the job once other jobs finish"
	case errors.Is(err, ErrExternalTool), errors.Is(err, ErrTransient), errors.Is(err, ErrTimeout):
		return "the gateway or provider is unreachable; retry later"
	case errors.Is(err, ErrUnsupported):
		return "choose a provider that supports this operation"
	default:
		return "check daemon logs for details"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component != "" {
		parts = append(parts, component)
	}
	if operation != "" {
		parts = append(parts, operation)
	}
	if message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

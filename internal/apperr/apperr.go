package apperr

import (
	"errors"
	"fmt"
)

// Kind categorizes failures by how the client must react to them.
type Kind string

const (
	KindUnsupportedType   Kind = "unsupported_type"
	KindInvalidInput      Kind = "invalid_input"
	KindDeviceUnavailable Kind = "device_unavailable"
	KindAnalysis          Kind = "analysis"
	KindChat              Kind = "chat"
	KindConfig            Kind = "config"
)

// Fallback is shown when an error carries no user-facing message.
const Fallback = "An unexpected error occurred. Please try again later."

// Error is a classified failure with a message fit for display.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// UnsupportedType reports an upload whose MIME type is not an image.
func UnsupportedType(mimeType string) *Error {
	return &Error{
		Kind:    KindUnsupportedType,
		Message: "Please upload an image file",
		Cause:   fmt.Errorf("unsupported media type %q", mimeType),
	}
}

// InvalidInput reports an upload source that could not be read.
func InvalidInput(message string, cause error) *Error {
	return &Error{Kind: KindInvalidInput, Message: message, Cause: cause}
}

// DeviceUnavailable reports a camera that could not be acquired or read.
func DeviceUnavailable(message string, cause error) *Error {
	if message == "" {
		message = "Failed to access camera. Please ensure you have granted camera permissions."
	}
	return &Error{Kind: KindDeviceUnavailable, Message: message, Cause: cause}
}

// Analysis reports a failed call to the analysis service.
func Analysis(message string, status int, cause error) *Error {
	return &Error{Kind: KindAnalysis, Message: message, Status: status, Cause: cause}
}

// Chat reports a failed call to the chat service.
func Chat(message string, status int, cause error) *Error {
	return &Error{Kind: KindChat, Message: message, Status: status, Cause: cause}
}

// Config reports an invalid runtime setting.
func Config(message string, cause error) *Error {
	return &Error{Kind: KindConfig, Message: message, Cause: cause}
}

// IsKind reports whether any error in err's chain is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// Message returns the user-facing text for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return Fallback
}

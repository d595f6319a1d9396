package issuance

import (
	"errors"
	"fmt"
)

// ErrorKind classifies issuance failures. The kind determines the HTTP status.
type ErrorKind int

const (
	// KindValidation is bad or missing input. It is returned before any side effect.
	KindValidation ErrorKind = iota + 1

	// KindStorage is a failed upload of the pass archive.
	KindStorage

	// KindEmail is a failed notification to the recipient.
	KindEmail

	// KindTooLarge is a body that exceeded the request size limit while being read.
	KindTooLarge

	// KindUnhandled is any other failure (photo, template, signing).
	KindUnhandled
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStorage:
		return "storage"
	case KindEmail:
		return "email"
	case KindTooLarge:
		return "too_large"
	case KindUnhandled:
		return "unhandled"
	default:
		return "unknown"
	}
}

// Public messages returned to the caller
const (
	MsgPassCreated       = "Pass Created"
	MsgMissingFields     = "Missing required fields"
	MsgInvalidEmail      = "Invalid email"
	MsgInvalidImage      = "Invalid image"
	MsgInvalidBody       = "Invalid request body"
	MsgFailedSendingPass = "Failed sending pass"
)

// IssuanceError is a failure at one stage of the issuance pipeline.
type IssuanceError struct {
	kind ErrorKind

	// stage is the pipeline stage that failed (see the metrics package)
	stage string

	// message is the text returned to the caller
	message string

	wrapped error
}

func (e *IssuanceError) Error() string {
	if e.wrapped != nil && e.wrapped.Error() != e.message {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *IssuanceError) Kind() ErrorKind { return e.kind }
func (e *IssuanceError) Stage() string   { return e.stage }
func (e *IssuanceError) Unwrap() error   { return e.wrapped }

// PublicMessage is the message sent in the response body.
func (e *IssuanceError) PublicMessage() string { return e.message }

// NewValidationError creates an error for a rejected submission.
// msg is returned to the caller as is.
func NewValidationError(msg string) error {
	return &IssuanceError{kind: KindValidation, stage: "validate", message: msg}
}

// NewTooLargeError reports a body cut off at limit bytes.
func NewTooLargeError(limit int64) error {
	return &IssuanceError{
		kind:    KindTooLarge,
		stage:   "validate",
		message: fmt.Sprintf("Request body exceeds maximum allowed size (%d bytes)", limit),
	}
}

// WrapStorageError wraps an upload failure. The caller receives the underlying error message.
func WrapStorageError(err error, stage string) error {
	return &IssuanceError{kind: KindStorage, stage: stage, message: err.Error(), wrapped: err}
}

// WrapEmailError wraps a notification failure. The underlying error is logged only.
func WrapEmailError(err error, stage string) error {
	return &IssuanceError{kind: KindEmail, stage: stage, message: MsgFailedSendingPass, wrapped: err}
}

// WrapUnhandledError wraps any other pipeline failure. The caller receives the underlying error message.
func WrapUnhandledError(err error, stage string) error {
	return &IssuanceError{kind: KindUnhandled, stage: stage, message: err.Error(), wrapped: err}
}

// KindOf returns the kind of err, or KindUnhandled if err is not an IssuanceError.
func KindOf(err error) ErrorKind {
	var ie *IssuanceError
	if errors.As(err, &ie) {
		return ie.kind
	}
	return KindUnhandled
}

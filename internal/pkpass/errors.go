package pkpass

import "fmt"

// Error represents a structured error from the pkpass package
type Error interface {
	error
	Code() ErrorCode
	Unwrap() error
}

type ErrorCode string

const (
	ErrCodeTemplate    ErrorCode = "template"
	ErrCodeValidation  ErrorCode = "validation"
	ErrCodeManifest    ErrorCode = "manifest"
	ErrCodeSignature   ErrorCode = "signature"
	ErrCodeCertificate ErrorCode = "certificate"
	ErrCodeKey         ErrorCode = "key"
	ErrCodeInternal    ErrorCode = "internal"
)

// PassError represents a structured error from the pkpass package
type PassError struct {

	// code is the pass error code
	code ErrorCode

	// message is a human-readable error message
	message string

	// wrapped is the optional underlying error
	wrapped error
}

func (e *PassError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *PassError) Code() ErrorCode { return e.code }
func (e *PassError) Unwrap() error   { return e.wrapped }

// NewTemplateError creates a template error.
// Use this for a model directory that is missing, unreadable or has an invalid pass.json.
//
// The returned error will have code ErrCodeTemplate.
func NewTemplateError(msg string) error {
	return &PassError{code: ErrCodeTemplate, message: msg}
}

// WrapTemplateError wraps an existing error as a template error.
//
// The returned error will have code ErrCodeTemplate.
func WrapTemplateError(err error, msg string) error {
	return &PassError{code: ErrCodeTemplate, message: msg, wrapped: err}
}

// NewValidationError creates a validation error for invalid pass content
// (bad file names, missing fields, duplicate keys).
//
// The returned error will have code ErrCodeValidation.
func NewValidationError(msg string) error {
	return &PassError{code: ErrCodeValidation, message: msg}
}

// WrapValidationError wraps an existing error as a validation error.
//
// The returned error will have code ErrCodeValidation.
func WrapValidationError(err error, msg string) error {
	return &PassError{code: ErrCodeValidation, message: msg, wrapped: err}
}

// NewManifestError creates a manifest error.
// Use this for digest mismatches or files missing from (or not listed in) manifest.json.
//
// The returned error will have code ErrCodeManifest.
func NewManifestError(msg string) error {
	return &PassError{code: ErrCodeManifest, message: msg}
}

// WrapManifestError wraps an existing error as a manifest error.
//
// The returned error will have code ErrCodeManifest.
func WrapManifestError(err error, msg string) error {
	return &PassError{code: ErrCodeManifest, message: msg, wrapped: err}
}

// NewSignatureError creates a signature error.
// Use this for PKCS#7 signing failures or a signature that does not verify.
//
// The returned error will have code ErrCodeSignature.
func NewSignatureError(msg string) error {
	return &PassError{code: ErrCodeSignature, message: msg}
}

// WrapSignatureError wraps an existing error as a signature error.
//
// The returned error will have code ErrCodeSignature.
func WrapSignatureError(err error, msg string) error {
	return &PassError{code: ErrCodeSignature, message: msg, wrapped: err}
}

// NewCertificateError creates a certificate error.
// Use this for unreadable certificates, expired certificates or chain validation failures.
//
// The returned error will have code ErrCodeCertificate.
func NewCertificateError(msg string) error {
	return &PassError{code: ErrCodeCertificate, message: msg}
}

// WrapCertificateError wraps an existing error as a certificate error.
//
// The returned error will have code ErrCodeCertificate.
func WrapCertificateError(err error, msg string) error {
	return &PassError{code: ErrCodeCertificate, message: msg, wrapped: err}
}

// NewKeyError creates a signing key error.
// Use this for unreadable keys, a wrong passphrase or a key that does not match the signer certificate.
//
// The returned error will have code ErrCodeKey.
func NewKeyError(msg string) error {
	return &PassError{code: ErrCodeKey, message: msg}
}

// WrapKeyError wraps an existing error as a signing key error.
//
// The returned error will have code ErrCodeKey.
func WrapKeyError(err error, msg string) error {
	return &PassError{code: ErrCodeKey, message: msg, wrapped: err}
}

// NewInternalError creates an internal error for unexpected failures.
//
// The returned error will have code ErrCodeInternal.
func NewInternalError(msg string) error {
	return &PassError{code: ErrCodeInternal, message: msg}
}

// WrapInternalError wraps an existing error as an internal error.
// Use this for zip and I/O failures that should not normally occur.
//
// The returned error will have code ErrCodeInternal.
func WrapInternalError(err error, msg string) error {
	return &PassError{code: ErrCodeInternal, message: msg, wrapped: err}
}

package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeUnavailable      = "UNAVAILABLE"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// Validation errors
var (
	ErrInvalidCategory      = NewDomainError(ErrCodeValidation, "invalid book category")
	ErrInvalidAtomType      = NewDomainError(ErrCodeValidation, "invalid atom type")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrBookNotFound     = NewDomainError(ErrCodeNotFound, "book not found")
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "source document not found")
	ErrPageOutOfRange   = NewDomainError(ErrCodeValidation, "page number out of range")
)

// External collaborator errors
var (
	ErrNoParseCredential   = NewDomainError(ErrCodeUnavailable, "cloud parse credential not configured")
	ErrNoVisionModel       = NewDomainError(ErrCodeUnavailable, "vision model not configured")
	ErrUnsupportedDocument = NewDomainError(ErrCodeValidation, "unsupported document format")
)

// Ingestion errors
var (
	ErrLowQualityParse  = NewDomainError(ErrCodeInvalidOperation, "layout parse quality below threshold")
	ErrIngestionFailed  = NewDomainError(ErrCodeInternalError, "all ingestion strategies failed")
	ErrIndexUnavailable = NewDomainError(ErrCodeUnavailable, "vector index unavailable")
)

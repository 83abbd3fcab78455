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
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeCollaborator     = "COLLABORATOR_ERROR"
)

// Validation errors
var (
	ErrEmptyDocument        = NewDomainError(ErrCodeValidation, "document has no pages")
	ErrInvalidChunkSize     = NewDomainError(ErrCodeValidation, "pages per chunk must be positive")
	ErrInvalidBatchSize     = NewDomainError(ErrCodeValidation, "batch size must be positive")
	ErrInvalidJobStatus     = NewDomainError(ErrCodeValidation, "invalid job status")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
	ErrJobNotFound      = NewDomainError(ErrCodeNotFound, "job not found")
	ErrChunkNotFound    = NewDomainError(ErrCodeNotFound, "chunk not found")
)

// Already exists errors
var (
	ErrDocumentAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "document already exists")
)

// Conflict errors
var (
	// ErrDuplicateActiveJob is advisory: the check in the tracker is not backed by a
	// database constraint, so callers racing past it must treat the second create as
	// this same recoverable error, not corruption.
	ErrDuplicateActiveJob = NewDomainError(ErrCodeConflict, "an active job already exists for this document")
)

// Operation errors
var (
	// ErrJobAlreadyTerminal signals a late update against a completed or failed job.
	// The job's terminal state is authoritative; callers log and move on.
	ErrJobAlreadyTerminal = NewDomainError(ErrCodeInvalidOperation, "job is already in a terminal state")
)

// Collaborator errors
var (
	ErrExtractionFailed   = NewDomainError(ErrCodeCollaborator, "page text extraction failed")
	ErrGenerationFailed   = NewDomainError(ErrCodeCollaborator, "flashcard generation failed")
	ErrImportSinkFailed   = NewDomainError(ErrCodeCollaborator, "flashcard import failed")
	ErrDocumentUnreadable = NewDomainError(ErrCodeCollaborator, "document could not be read")
)

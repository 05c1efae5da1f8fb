// Package errors provides the error taxonomy shared by the pdfchat backends,
// stores and dispatcher.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the machine-readable class of a failure.
type Kind string

const (
	KindInvalidInput        Kind = "InvalidInput"
	KindUnsupportedFileType Kind = "UnsupportedFileType"
	KindBackendUnavailable  Kind = "BackendUnavailable"
	KindInvalidBackend      Kind = "InvalidBackend"
	KindStorageFailure      Kind = "StorageFailure"
	KindSessionNotFound     Kind = "SessionNotFound"
	KindTimeout             Kind = "Timeout"
	KindInternal            Kind = "Internal"
)

// Sentinel errors for each kind
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrBackendUnavailable  = errors.New("backend unavailable")
	ErrInvalidBackend      = errors.New("invalid backend")
	ErrStorageFailure      = errors.New("storage failure")
	ErrSessionNotFound     = errors.New("session not found")
	ErrTimeout             = errors.New("request timed out")
)

// InputError represents a missing or malformed request field
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Message)
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Message)
}

// Is allows comparison with sentinel errors
func (e *InputError) Is(target error) bool {
	if target == ErrInvalidInput {
		return true
	}
	_, ok := target.(*InputError)
	return ok
}

// NewInputError creates a new InputError
func NewInputError(field, message string) *InputError {
	return &InputError{Field: field, Message: message}
}

// FileTypeError represents an upload whose extension is not allow-listed
type FileTypeError struct {
	Name    string
	Ext     string
	Allowed []string
}

func (e *FileTypeError) Error() string {
	ext := e.Ext
	if ext == "" {
		ext = "(none)"
	}
	return fmt.Sprintf("unsupported file type %s for %q (allowed: %v)", ext, e.Name, e.Allowed)
}

// Is allows comparison with sentinel errors
func (e *FileTypeError) Is(target error) bool {
	if target == ErrUnsupportedFileType {
		return true
	}
	_, ok := target.(*FileTypeError)
	return ok
}

// NewFileTypeError creates a new FileTypeError
func NewFileTypeError(name, ext string, allowed []string) *FileTypeError {
	return &FileTypeError{Name: name, Ext: ext, Allowed: allowed}
}

// BackendError represents a network or backend-side failure
type BackendError struct {
	Backend    string
	Endpoint   string
	StatusCode int
	Message    string
	Body       string
	Cause      error
}

func (e *BackendError) Error() string {
	msg := fmt.Sprintf("%s backend unavailable", e.Backend)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" [%d]", e.StatusCode)
	}
	if e.Endpoint != "" {
		msg += " at " + e.Endpoint
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *BackendError) Unwrap() error {
	return e.Cause
}

// Is allows comparison with sentinel errors
func (e *BackendError) Is(target error) bool {
	if target == ErrBackendUnavailable {
		return true
	}
	_, ok := target.(*BackendError)
	return ok
}

// WithBody attaches a truncated response body for diagnostics
func (e *BackendError) WithBody(body string) *BackendError {
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody] + "..."
	}
	e.Body = body
	return e
}

// NewBackendError creates a new BackendError
func NewBackendError(backend, endpoint, message string) *BackendError {
	return &BackendError{Backend: backend, Endpoint: endpoint, Message: message}
}

// NewBackendErrorWithStatus creates a BackendError for a non-success HTTP status
func NewBackendErrorWithStatus(backend, endpoint string, status int, message string) *BackendError {
	return &BackendError{Backend: backend, Endpoint: endpoint, StatusCode: status, Message: message}
}

// NewBackendErrorWithCause creates a BackendError wrapping a transport or parse error
func NewBackendErrorWithCause(backend, endpoint, message string, cause error) *BackendError {
	return &BackendError{Backend: backend, Endpoint: endpoint, Message: message, Cause: cause}
}

// InvalidBackendError represents an unrecognized backend discriminator
type InvalidBackendError struct {
	Value string
	Known []string
}

func (e *InvalidBackendError) Error() string {
	return fmt.Sprintf("invalid backend %q: must be one of %v", e.Value, e.Known)
}

// Is allows comparison with sentinel errors
func (e *InvalidBackendError) Is(target error) bool {
	if target == ErrInvalidBackend {
		return true
	}
	_, ok := target.(*InvalidBackendError)
	return ok
}

// NewInvalidBackendError creates a new InvalidBackendError
func NewInvalidBackendError(value string, known []string) *InvalidBackendError {
	return &InvalidBackendError{Value: value, Known: known}
}

// StorageError represents a disk read or write failure
type StorageError struct {
	Op    string
	Path  string
	Cause error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("storage failure: %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("storage failure: %s %s: %v", e.Op, e.Path, e.Cause)
}

// Unwrap returns the underlying cause
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// Is allows comparison with sentinel errors
func (e *StorageError) Is(target error) bool {
	if target == ErrStorageFailure {
		return true
	}
	_, ok := target.(*StorageError)
	return ok
}

// NewStorageError creates a new StorageError
func NewStorageError(op, path string, cause error) *StorageError {
	return &StorageError{Op: op, Path: path, Cause: cause}
}

// SessionNotFoundError is returned when a store rejects implicit creation
type SessionNotFoundError struct {
	ID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.ID)
}

// Is allows comparison with sentinel errors
func (e *SessionNotFoundError) Is(target error) bool {
	if target == ErrSessionNotFound {
		return true
	}
	_, ok := target.(*SessionNotFoundError)
	return ok
}

// NewSessionNotFoundError creates a new SessionNotFoundError
func NewSessionNotFoundError(id string) *SessionNotFoundError {
	return &SessionNotFoundError{ID: id}
}

// TimeoutError represents a backend call that exceeded its deadline
type TimeoutError struct {
	Backend string
	Message string
	Cause   error
}

func (e *TimeoutError) Error() string {
	msg := "request timed out"
	if e.Backend != "" {
		msg = fmt.Sprintf("%s backend request timed out", e.Backend)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// Is allows comparison with sentinel errors
func (e *TimeoutError) Is(target error) bool {
	if target == ErrTimeout {
		return true
	}
	_, ok := target.(*TimeoutError)
	return ok
}

// NewTimeoutError creates a new TimeoutError
func NewTimeoutError(backend, message string, cause error) *TimeoutError {
	return &TimeoutError{Backend: backend, Message: message, Cause: cause}
}

// FromTransport classifies an error returned while talking to a backend.
// Deadline expiry becomes a TimeoutError, everything else a BackendError.
// Cancellation by the caller is returned unchanged.
func FromTransport(backend, endpoint string, err error) error {
	if err == nil {
		return nil
	}
	var te *TimeoutError
	var be *BackendError
	switch {
	case errors.As(err, &te), errors.As(err, &be):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return NewTimeoutError(backend, endpoint, err)
	case errors.Is(err, context.Canceled):
		return err
	case isNetTimeout(err):
		return NewTimeoutError(backend, endpoint, err)
	}
	return NewBackendErrorWithCause(backend, endpoint, "request failed", err)
}

// isNetTimeout reports transport timeouts such as http.Client.Timeout, which
// do not wrap context.DeadlineExceeded.
func isNetTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// KindOf returns the Kind for err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrUnsupportedFileType):
		return KindUnsupportedFileType
	case errors.Is(err, ErrInvalidBackend):
		return KindInvalidBackend
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrBackendUnavailable):
		return KindBackendUnavailable
	case errors.Is(err, ErrSessionNotFound):
		return KindSessionNotFound
	case errors.Is(err, ErrStorageFailure):
		return KindStorageFailure
	}
	return KindInternal
}

// Response is the structured error shape handed back to callers.
type Response struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// ToResponse converts err into a Response. A nil error yields nil.
func ToResponse(err error) *Response {
	if err == nil {
		return nil
	}
	return &Response{Kind: KindOf(err), Message: err.Error()}
}

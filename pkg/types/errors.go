package types

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidationFailed = errors.New("validation failed")
	ErrCopyFailed       = errors.New("copy failed")
	ErrCleanupFailed    = errors.New("cleanup failed")
	ErrConfig           = errors.New("configuration error")
	ErrPermissionDenied = errors.New("permission denied")
	ErrConcurrentAccess = errors.New("concurrent access")
	ErrNotFound         = errors.New("not found")
	ErrReadFailure      = errors.New("read failure")
	ErrIndexCorrupt     = errors.New("archive index corrupt")
	ErrUnknownBackend   = errors.New("unknown index backend")
)

// Error carries an error kind together with the operation and path that
// produced it.
type Error struct {
	Kind error  // one of the Err* sentinels
	Op   string // operation, e.g. "copy" or "load config"
	Path string // file or directory involved, may be empty
	Err  error  // underlying cause, may be nil
}

// NewError builds an *Error.
func NewError(kind error, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return fmt.Sprintf("%s: %v", msg, e.Kind)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the error kind.
func (e *Error) Is(target error) bool { return e.Kind == target }

// ErrorCode is a stable, machine-readable error identifier.
type ErrorCode string

// Error codes reported in results and CLI output.
const (
	CodeNone             ErrorCode = ""
	CodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	CodeCopyFailed       ErrorCode = "COPY_FAILED"
	CodeCleanupFailed    ErrorCode = "CLEANUP_FAILED"
	CodeConfig           ErrorCode = "CONFIG_ERROR"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeConcurrentAccess ErrorCode = "CONCURRENT_ACCESS"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeReadFailure      ErrorCode = "READ_FAILURE"
	CodeIndexCorrupt     ErrorCode = "INDEX_CORRUPT"
	CodeUnknown          ErrorCode = "UNKNOWN"
)

var errorCodes = []struct {
	kind error
	code ErrorCode
}{
	{ErrValidationFailed, CodeValidationFailed},
	{ErrCopyFailed, CodeCopyFailed},
	{ErrCleanupFailed, CodeCleanupFailed},
	{ErrConfig, CodeConfig},
	{ErrPermissionDenied, CodePermissionDenied},
	{ErrConcurrentAccess, CodeConcurrentAccess},
	{ErrNotFound, CodeNotFound},
	{ErrReadFailure, CodeReadFailure},
	{ErrIndexCorrupt, CodeIndexCorrupt},
}

// CodeOf maps err to its ErrorCode. A nil error maps to CodeNone and an
// error of no known kind maps to CodeUnknown.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeNone
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.kind) {
			return ec.code
		}
	}
	return CodeUnknown
}

// Package errors provides structured errors for routelens.
// Errors carry a code for programmatic handling, key/value context and the
// stack at creation.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Code identifies an error class.
type Code string

const (
	// Source errors (1xx)
	CodeFileNotFound  Code = "E101"
	CodeInvalidFormat Code = "E103"
	CodeReadFailed    Code = "E104"

	// Processing errors (2xx)
	CodeJSONParse     Code = "E202"
	CodeUnknownTarget Code = "E203"

	// Output errors (3xx)
	CodeWriteFailed   Code = "E301"
	CodePublishFailed Code = "E302"

	// System errors (4xx)
	CodeContextCanceled Code = "E401"
	CodeTimeout         Code = "E402"
	CodeConfig          Code = "E403"

	// Backend errors (5xx)
	CodeDuckDBInit  Code = "E501"
	CodeDuckDBWrite Code = "E503"
	CodeRedis       Code = "E504"
	CodeS3          Code = "E505"

	CodeUnknown Code = "E999"
)

// RouteLensError is the error type returned across package boundaries.
type RouteLensError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]any
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface. Context keys are printed sorted.
func (e *RouteLensError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Code, e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", k, e.Context[k])
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *RouteLensError) Unwrap() error {
	return e.Cause
}

// Is matches any RouteLensError with the same code.
func (e *RouteLensError) Is(target error) bool {
	if t, ok := target.(*RouteLensError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *RouteLensError) WithContext(key string, value any) *RouteLensError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// New creates a new RouteLensError.
func New(code Code, message string) *RouteLensError {
	return &RouteLensError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps err with a code and message. It returns nil for a nil err.
func Wrap(err error, code Code, message string) *RouteLensError {
	if err == nil {
		return nil
	}
	return &RouteLensError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...any) *RouteLensError {
	if err == nil {
		return nil
	}
	e := Wrap(err, code, fmt.Sprintf(format, args...))
	e.StackTrace = captureStack(2)
	return e
}

func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)

	cf := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *RouteLensError) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		fmt.Fprintf(&sb, "  at %s\n    %s:%d\n", f.Function, f.File, f.Line)
	}
	return sb.String()
}

// --- Convenience constructors ---

// FileNotFound reports a missing file or object.
func FileNotFound(path string) *RouteLensError {
	return New(CodeFileNotFound, "file not found").WithContext("path", path)
}

// ReadFailed reports an I/O failure other than absence.
func ReadFailed(path string, err error) *RouteLensError {
	return Wrap(err, CodeReadFailed, "read failed").WithContext("path", path)
}

// JSONParse reports a file whose contents are not valid JSON for the target.
func JSONParse(path string, err error) *RouteLensError {
	return Wrap(err, CodeJSONParse, "invalid JSON").WithContext("path", path)
}

// UnknownProfile reports a profile that has no loaded data.
func UnknownProfile(name string) *RouteLensError {
	return New(CodeUnknownTarget, "unknown profile").WithContext("profile", name)
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string) *RouteLensError {
	return New(CodeContextCanceled, "operation canceled").
		WithContext("operation", operation)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var rlErr *RouteLensError
	if errors.As(err, &rlErr) {
		return rlErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var rlErr *RouteLensError
	if errors.As(err, &rlErr) {
		return rlErr.Code
	}
	return CodeUnknown
}

// IsNotFound reports whether err is a missing file.
func IsNotFound(err error) bool {
	return IsCode(err, CodeFileNotFound)
}

// IsRetryable returns true for transient backend failures.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeTimeout, CodeRedis, CodeS3:
		return true
	default:
		return false
	}
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d errors occurred:\n", len(m.Errors))
	for i, err := range m.Errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}

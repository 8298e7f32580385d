package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrorCode classifies the cause of a storage error
type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeNotFound
	ErrCodeDuplicate
	ErrCodeConstraint
	ErrCodeConnection
	ErrCodeTransaction
	ErrCodeTimeout
	ErrCodeValidation
	ErrCodePermission
	ErrCodeDiskSpace
	ErrCodeCorruption
	ErrCodeInternal
	ErrCodeBusy
	ErrCodeSchema
)

var codeNames = map[ErrorCode]string{
	ErrCodeNotFound:    "NOT_FOUND",
	ErrCodeDuplicate:   "DUPLICATE",
	ErrCodeConstraint:  "CONSTRAINT",
	ErrCodeConnection:  "CONNECTION",
	ErrCodeTransaction: "TRANSACTION",
	ErrCodeTimeout:     "TIMEOUT",
	ErrCodeValidation:  "VALIDATION",
	ErrCodePermission:  "PERMISSION",
	ErrCodeDiskSpace:   "DISK_SPACE",
	ErrCodeCorruption:  "CORRUPTION",
	ErrCodeInternal:    "INTERNAL",
	ErrCodeBusy:        "BUSY",
	ErrCodeSchema:      "SCHEMA",
}

// String returns a string representation of the error code
func (e ErrorCode) String() string {
	if name, ok := codeNames[e]; ok {
		return name
	}
	return "UNKNOWN"
}

// ErrorKind is the engine-level error taxonomy: which contract failed
type ErrorKind int

const (
	KindUnspecified ErrorKind = iota
	KindSchema                // schema creation or migration failed; fatal to startup
	KindWrite                 // an event or aggregate upsert failed; reported to that caller
	KindQuery                 // malformed request or storage read failure
)

func (k ErrorKind) String() string {
	switch k {
	case KindSchema:
		return "schema"
	case KindWrite:
		return "write"
	case KindQuery:
		return "query"
	default:
		return "unspecified"
	}
}

// RepositoryError represents a storage error with classification and context
type RepositoryError struct {
	Op        string            // operation name
	Err       error             // underlying error
	Code      ErrorCode         // cause classification
	Kind      ErrorKind         // which contract failed
	Retryable bool              // whether the error is retryable
	Context   map[string]string // additional context information
	Timestamp time.Time         // when the error occurred
}

func (e *RepositoryError) Error() string {
	if e == nil {
		return "repository error"
	}

	var parts []string
	if e.Op != "" {
		parts = append(parts, "op="+e.Op)
	}
	if e.Kind != KindUnspecified {
		parts = append(parts, "kind="+e.Kind.String())
	}
	if e.Code != ErrCodeUnknown {
		parts = append(parts, "code="+e.Code.String())
	}
	if e.Retryable {
		parts = append(parts, "retryable=true")
	}

	// Context keys are sorted so messages are stable
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, e.Context[k]))
	}

	suffix := ""
	if len(parts) > 0 {
		suffix = " [" + strings.Join(parts, " ") + "]"
	}
	if e.Err != nil {
		return e.Err.Error() + suffix
	}
	return "repository error" + suffix
}

func (e *RepositoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another *RepositoryError by code, otherwise defers to the wrapped error
func (e *RepositoryError) Is(target error) bool {
	if e == nil {
		return false
	}
	if t, ok := target.(*RepositoryError); ok {
		return e.Code == t.Code
	}
	if e.Err != nil {
		return errors.Is(e.Err, target)
	}
	return false
}

// IsRetryable returns whether the error is retryable
func (e *RepositoryError) IsRetryable() bool {
	if e == nil {
		return false
	}
	return e.Retryable
}

// GetCode returns the error code as a string (for logging interface compatibility)
func (e *RepositoryError) GetCode() string {
	if e == nil {
		return ErrCodeUnknown.String()
	}
	return e.Code.String()
}

// GetKind returns the taxonomy kind as a string (for logging interface compatibility)
func (e *RepositoryError) GetKind() string {
	if e == nil {
		return KindUnspecified.String()
	}
	return e.Kind.String()
}

// GetContext returns the error context (for logging interface compatibility)
func (e *RepositoryError) GetContext() map[string]string {
	if e == nil || e.Context == nil {
		return make(map[string]string)
	}
	return e.Context
}

// GetTimestamp returns the error timestamp (for logging interface compatibility)
func (e *RepositoryError) GetTimestamp() time.Time {
	if e == nil {
		return time.Time{}
	}
	return e.Timestamp
}

// WithContext adds a context entry by mutating the receiver.
// Not safe once the error has been shared with other goroutines.
func (e *RepositoryError) WithContext(key, value string) *RepositoryError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// NewRepositoryError creates a new repository error with the given parameters
func NewRepositoryError(op string, err error, code ErrorCode) *RepositoryError {
	return &RepositoryError{
		Op:        op,
		Err:       err,
		Code:      code,
		Retryable: isRetryableError(code, err),
		Context:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// NewRepositoryErrorWithContext creates a new repository error with a copy of context
func NewRepositoryErrorWithContext(op string, err error, code ErrorCode, context map[string]string) *RepositoryError {
	repoErr := NewRepositoryError(op, err, code)
	for k, v := range context {
		repoErr.Context[k] = v
	}
	return repoErr
}

func newKindError(kind ErrorKind, op string, err error, context map[string]string) *RepositoryError {
	var existing *RepositoryError
	if errors.As(err, &existing) {
		// Keep the original classification, only tag the contract
		repoErr := NewRepositoryErrorWithContext(op, existing.Err, existing.Code, existing.Context)
		repoErr.Kind = kind
		for k, v := range context {
			repoErr.Context[k] = v
		}
		return repoErr
	}
	repoErr := NewRepositoryErrorWithContext(op, err, ClassifyError(err), context)
	repoErr.Kind = kind
	return repoErr
}

// NewSchemaError wraps a schema creation or migration failure
func NewSchemaError(op string, err error, context map[string]string) *RepositoryError {
	return newKindError(KindSchema, op, err, context)
}

// NewWriteError wraps a failed event or aggregate write
func NewWriteError(op string, err error, context map[string]string) *RepositoryError {
	return newKindError(KindWrite, op, err, context)
}

// NewQueryError wraps a malformed query or a failed read
func NewQueryError(op string, err error, context map[string]string) *RepositoryError {
	return newKindError(KindQuery, op, err, context)
}

// isRetryableError determines if an error is retryable based on its type
func isRetryableError(code ErrorCode, err error) bool {
	switch code {
	case ErrCodeConnection, ErrCodeTimeout, ErrCodeTransaction, ErrCodeBusy:
		return true
	case ErrCodeUnknown:
		if err == nil {
			return false
		}
		errStr := strings.ToLower(err.Error())
		return strings.Contains(errStr, "temporary") ||
			strings.Contains(errStr, "busy") ||
			strings.Contains(errStr, "locked")
	default:
		// Disk space needs operator intervention, the rest are deterministic
		return false
	}
}

// HasCode reports whether err is a RepositoryError with the given code
func HasCode(err error, code ErrorCode) bool {
	var repoErr *RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.Code == code
	}
	return false
}

func hasKind(err error, kind ErrorKind) bool {
	var repoErr *RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.Kind == kind
	}
	return false
}

// IsSchemaError checks if the error is a schema/migration failure
func IsSchemaError(err error) bool { return hasKind(err, KindSchema) }

// IsWriteError checks if the error is a failed write
func IsWriteError(err error) bool { return hasKind(err, KindWrite) }

// IsQueryError checks if the error is a failed or malformed query
func IsQueryError(err error) bool { return hasKind(err, KindQuery) }

// IsNotFound checks if the error is a "not found" error
func IsNotFound(err error) bool { return HasCode(err, ErrCodeNotFound) }

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool { return HasCode(err, ErrCodeValidation) }

// IsBusy checks if the error is a busy/locked error
func IsBusy(err error) bool { return HasCode(err, ErrCodeBusy) }

// IsTimeout checks if the error is a "timeout" error
func IsTimeout(err error) bool { return HasCode(err, ErrCodeTimeout) }

// IsConnection checks if the error is a "connection" error
func IsConnection(err error) bool { return HasCode(err, ErrCodeConnection) }

// IsRetryable checks if the error is retryable
func IsRetryable(err error) bool {
	var repoErr *RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.Retryable
	}
	return false
}

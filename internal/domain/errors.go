package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Errors crossing a package boundary wrap one of
// these so callers can branch with errors.Is without knowing the source.
var (
	ErrHardwareAccess   = fmt.Errorf("hardware access failed")
	ErrModelUnavailable = fmt.Errorf("model unavailable")
	ErrModelTimeout     = fmt.Errorf("model timed out")
	ErrNotUnderstood    = fmt.Errorf("command not understood")
	ErrInvalidConfig    = fmt.Errorf("invalid configuration")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrStoreFailure     = fmt.Errorf("history store failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Controller.StartBlink")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsModelDegraded reports whether err means the model path should fall
// back to rules-only behavior rather than surface a failure.
func IsModelDegraded(err error) bool {
	return errors.Is(err, ErrModelUnavailable) || errors.Is(err, ErrModelTimeout)
}

// ErrorCode is a machine-parseable error category for logs and status output.
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeHardwareAccess   ErrorCode = "HARDWARE_ACCESS"
	CodeModelUnavailable ErrorCode = "MODEL_UNAVAILABLE"
	CodeModelTimeout     ErrorCode = "MODEL_TIMEOUT"
	CodeNotUnderstood    ErrorCode = "NOT_UNDERSTOOD"
	CodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeStoreFailure     ErrorCode = "STORE_FAILURE"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrHardwareAccess:   CodeHardwareAccess,
	ErrModelUnavailable: CodeModelUnavailable,
	ErrModelTimeout:     CodeModelTimeout,
	ErrNotUnderstood:    CodeNotUnderstood,
	ErrInvalidConfig:    CodeInvalidConfig,
	ErrInvalidInput:     CodeInvalidInput,
	ErrStoreFailure:     CodeStoreFailure,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

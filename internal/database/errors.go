package database

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// ❌ 连接池错误
// =============================================================================

// ErrorCode 连接池错误码
type ErrorCode string

const (
	CodeConfiguration  ErrorCode = "POOL_CONFIGURATION"
	CodeInitialization ErrorCode = "POOL_INITIALIZATION"
	CodeValidation     ErrorCode = "CONNECTION_VALIDATION"
	CodeAcquireTimeout ErrorCode = "POOL_ACQUIRE_TIMEOUT"
	CodeClosed         ErrorCode = "POOL_CLOSED"
	CodeNotInitialized ErrorCode = "POOL_NOT_INITIALIZED"
	CodeUnavailable    ErrorCode = "POOL_UNAVAILABLE"
	CodeInvalidState   ErrorCode = "POOL_INVALID_STATE"
)

// ValidationReason 连接校验失败原因
type ValidationReason string

const (
	ReasonTimeout          ValidationReason = "timeout"
	ReasonUnexpectedResult ValidationReason = "unexpected_result"
	ReasonTransport        ValidationReason = "transport"
)

// PoolCounts 出错时刻的连接数
type PoolCounts struct {
	Total   int `json:"total"`
	Idle    int `json:"idle"`
	Active  int `json:"active"`
	Waiting int `json:"waiting"`
}

// Error 连接池结构化错误
type Error struct {
	Code       ErrorCode
	Message    string
	Suggestion string
	Fields     []string
	Reason     ValidationReason
	Counts     *PoolCounts
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Code))
	b.WriteString("] ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	if e.Suggestion != "" {
		b.WriteString(". Suggestion: ")
		b.WriteString(e.Suggestion)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 同错误码即视为匹配，哨兵错误只携带错误码
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// 哨兵错误，配合 errors.Is 使用
var (
	ErrConfiguration  = &Error{Code: CodeConfiguration, Message: "invalid pool configuration"}
	ErrInitialization = &Error{Code: CodeInitialization, Message: "pool initialization failed"}
	ErrValidation     = &Error{Code: CodeValidation, Message: "connection validation failed"}
	ErrAcquireTimeout = &Error{Code: CodeAcquireTimeout, Message: "connection acquisition timed out"}
	ErrPoolClosed     = &Error{Code: CodeClosed, Message: "pool is closed"}
	ErrNotInitialized = &Error{Code: CodeNotInitialized, Message: "pool not initialized"}
	ErrUnavailable    = &Error{Code: CodeUnavailable, Message: "pool temporarily unavailable"}
	ErrInvalidState   = &Error{Code: CodeInvalidState, Message: "operation not allowed in current state"}
)

// GetErrorCode extracts the pool error code from an error chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// =============================================================================
// 🔧 构造函数
// =============================================================================

func newConfigurationError(fields []string, problems []string, suggestions []string) *Error {
	return &Error{
		Code:       CodeConfiguration,
		Message:    "invalid pool configuration: " + strings.Join(problems, "; "),
		Suggestion: strings.Join(suggestions, "; "),
		Fields:     fields,
	}
}

func newInitializationError(cfg *PoolConfig, cause error) *Error {
	return &Error{
		Code: CodeInitialization,
		Message: fmt.Sprintf("failed to initialize pool (min_size=%d, max_size=%d, target=%s)",
			cfg.MinSize(), cfg.MaxSize(), cfg.Target()),
		Suggestion: "verify the database is running and the connection credentials are correct",
		Cause:      cause,
	}
}

func newAcquireTimeoutError(timeout fmt.Stringer, counts PoolCounts, cause error) *Error {
	return &Error{
		Code: CodeAcquireTimeout,
		Message: fmt.Sprintf("connection acquisition timeout after %s (pool state: %d total, %d active, %d idle, %d waiting)",
			timeout, counts.Total, counts.Active, counts.Idle, counts.Waiting),
		Suggestion: "increase max_size or optimize query performance",
		Counts:     &counts,
		Cause:      cause,
	}
}

func newClosedError(op string, state PoolState) *Error {
	return &Error{
		Code:       CodeClosed,
		Message:    fmt.Sprintf("cannot %s: pool state is %s", op, state),
		Suggestion: "check pool lifecycle management and shutdown sequence",
	}
}

func newNotInitializedError(op string) *Error {
	return &Error{
		Code:       CodeNotInitialized,
		Message:    fmt.Sprintf("cannot %s: pool not initialized", op),
		Suggestion: "call Initialize before using the pool",
	}
}

func newUnavailableError(op string, state PoolState) *Error {
	return &Error{
		Code:       CodeUnavailable,
		Message:    fmt.Sprintf("cannot %s: pool state is %s", op, state),
		Suggestion: "retry after recovery completes",
	}
}

func newInvalidStateError(op string, state PoolState) *Error {
	return &Error{
		Code:    CodeInvalidState,
		Message: fmt.Sprintf("cannot %s in state %s", op, state),
	}
}

// newValidationError reason 为空时按 transport 处理
func newValidationError(reason ValidationReason, message string, cause error) *Error {
	if reason == "" {
		reason = ReasonTransport
	}
	e := &Error{
		Code:    CodeValidation,
		Message: message,
		Reason:  reason,
		Cause:   cause,
	}
	switch reason {
	case ReasonTimeout:
		e.Suggestion = "check database load or increase command_timeout"
	case ReasonUnexpectedResult:
		e.Suggestion = "verify the target is the expected database server"
	}
	return e
}

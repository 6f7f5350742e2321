// Package errors provides centralized error definitions and error handling utilities
// for fanout. It defines the sentinel errors of the messaging layer, domain error
// types that carry channel and agent context, and classification helpers that
// decide whether a failure is fatal to its actor or may be retried next cycle.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - ChannelError: errors opening, attaching to, writing or draining a channel
//   - AgentError: errors launching or supervising a publisher agent
//
// Semantic errors represent common error conditions:
//   - ValidationError: invalid input or configuration
//
// # Usage
//
//	err := errors.NewChannelError("attach subscriber", errors.ErrCapacityExceeded).
//		WithChannel("testing0").
//		WithPort("subscriber")
//
//	if errors.Is(err, errors.ErrCapacityExceeded) { ... }
//
//	var chErr *errors.ChannelError
//	if errors.As(err, &chErr) { ... }
//
// # Error Classification
//
// Transport and capacity errors are fatal to the actor that triggers them. Drain
// failures are retryable: the orchestrator logs them and tries again on the next
// poll cycle. Use [IsRetryable] and [IsFatal] rather than matching sentinels at
// call sites.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Channel-related sentinel errors
var (
	// ErrCapacityExceeded indicates that a channel has no free publisher or subscriber slot.
	ErrCapacityExceeded = New("channel capacity exceeded")
	// ErrConfigMismatch indicates that a channel exists with a different configuration.
	ErrConfigMismatch = New("channel configuration mismatch")
	// ErrChannelClosed indicates an operation on a closed channel handle or port.
	ErrChannelClosed = New("channel closed")
	// ErrInvalidName indicates that a channel name cannot be used as an identifier.
	ErrInvalidName = New("invalid channel name")
	// ErrCorrupted indicates that channel memory does not hold a valid segment.
	ErrCorrupted = New("channel segment corrupted")
)

// Agent-related sentinel errors
var (
	// ErrAgentLaunch indicates that a publisher agent could not be started.
	ErrAgentLaunch = New("agent launch failed")
	// ErrAgentExited indicates that a publisher agent exited with a failure.
	ErrAgentExited = New("agent exited with failure")
)

// General sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// FanoutError is the base interface for all fanout errors.
type FanoutError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the operation may succeed on a later attempt.
	IsRetryable() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

func formatWithContext(kind string, parts []string, message string, cause error) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// ChannelError represents errors related to a shared channel.
//
// Example:
//
//	err := errors.NewChannelError("open", errors.ErrConfigMismatch).WithChannel("testing0")
//	fmt.Println(err) // "channel error [channel=testing0]: open: channel configuration mismatch"
type ChannelError struct {
	baseError
	Channel string
	Port    string
}

// NewChannelError creates a new ChannelError. Channel errors are fatal to the
// actor unless marked retryable.
func NewChannelError(message string, cause error) *ChannelError {
	return &ChannelError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithChannel adds the channel name to the error context.
func (e *ChannelError) WithChannel(name string) *ChannelError {
	e.Channel = name
	return e
}

// WithPort adds the port kind ("publisher" or "subscriber") to the error context.
func (e *ChannelError) WithPort(kind string) *ChannelError {
	e.Port = kind
	return e
}

// WithSeverity sets the error severity.
func (e *ChannelError) WithSeverity(s Severity) *ChannelError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *ChannelError) WithRetryable(r bool) *ChannelError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *ChannelError) Error() string {
	var parts []string
	if e.Channel != "" {
		parts = append(parts, fmt.Sprintf("channel=%s", e.Channel))
	}
	if e.Port != "" {
		parts = append(parts, fmt.Sprintf("port=%s", e.Port))
	}
	return formatWithContext("channel error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *ChannelError) Is(target error) bool {
	if _, ok := target.(*ChannelError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// AgentError represents errors related to launching or supervising an agent.
//
// Example:
//
//	err := errors.NewAgentError("start process", execErr).WithAgent("testing1")
type AgentError struct {
	baseError
	Agent string
	PID   int
}

// NewAgentError creates a new AgentError.
func NewAgentError(message string, cause error) *AgentError {
	return &AgentError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithAgent adds the agent name to the error context.
func (e *AgentError) WithAgent(name string) *AgentError {
	e.Agent = name
	return e
}

// WithPID adds the agent process id to the error context.
func (e *AgentError) WithPID(pid int) *AgentError {
	e.PID = pid
	return e
}

// WithSeverity sets the error severity.
func (e *AgentError) WithSeverity(s Severity) *AgentError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *AgentError) Error() string {
	var parts []string
	if e.Agent != "" {
		parts = append(parts, fmt.Sprintf("agent=%s", e.Agent))
	}
	if e.PID > 0 {
		parts = append(parts, fmt.Sprintf("pid=%d", e.PID))
	}
	return formatWithContext("agent error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *AgentError) Is(target error) bool {
	if _, ok := target.(*AgentError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input or configuration.
type ValidationError struct {
	message string
	Field   string
	Value   any
	cause   error
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{message: message}
}

// WithField sets the offending field.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue sets the offending value.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// Reason returns the message without field or value context.
func (e *ValidationError) Reason() string {
	return e.message
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation error")
	if e.Field != "" {
		sb.WriteString(fmt.Sprintf(" [%s]", e.Field))
	}
	sb.WriteString(": ")
	sb.WriteString(e.message)
	if e.Value != nil {
		sb.WriteString(fmt.Sprintf(" (got: %v)", e.Value))
	}
	return sb.String()
}

// Unwrap returns ErrInvalidInput so callers can match any validation failure.
func (e *ValidationError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return ErrInvalidInput
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition that
// may succeed on a later attempt, such as a drain hiccup.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var fanoutErr FanoutError
	if As(err, &fanoutErr) {
		return fanoutErr.IsRetryable()
	}

	return false
}

// IsFatal returns true if the error must abort the actor that observed it:
// capacity and configuration conflicts, corrupted or closed channels, and
// agent launch failures. Cancellation is never fatal.
func IsFatal(err error) bool {
	if err == nil || Is(err, context.Canceled) || Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsRetryable(err) {
		return false
	}
	return Is(err, ErrCapacityExceeded) ||
		Is(err, ErrConfigMismatch) ||
		Is(err, ErrCorrupted) ||
		Is(err, ErrChannelClosed) ||
		Is(err, ErrInvalidName) ||
		Is(err, ErrAgentLaunch) ||
		GetSeverity(err) >= SeverityCritical
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement FanoutError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var fanoutErr FanoutError
	if As(err, &fanoutErr) {
		return fanoutErr.Severity()
	}

	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

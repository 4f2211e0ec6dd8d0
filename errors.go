package audiotab

import (
	"errors"
	"fmt"
)

// Error represents a structured engine error with context, following the
// taxonomy of the engine's error handling design.
type Error struct {
	Op         string    // Operation that failed (e.g., "FromJSON", "Pipeline.Start")
	PipelineID string    // Pipeline identifier, empty if not applicable
	NodeID     string    // Node identifier, empty if not applicable
	Code       ErrorCode // High-level error category
	Msg        string    // Human-readable message
	Inner      error     // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.PipelineID != "" {
		parts = append(parts, fmt.Sprintf("pipeline=%s", e.PipelineID))
	}
	if e.NodeID != "" {
		parts = append(parts, fmt.Sprintf("node=%s", e.NodeID))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("audiotab: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("audiotab: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support against both structured errors and the
// legacy sentinel-string constants below.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if ue, ok := target.(SentinelError); ok {
		return e.Code == ErrorCode(ue)
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode represents the high-level error taxonomy from the error
// handling design: InvalidConfig, InvalidTransition, BackendFailure,
// ConversionFailure, MappingFailure, NodeFailure, DuplicateUserName,
// NotFound, Poisoned.
type ErrorCode string

const (
	ErrCodeInvalidConfig      ErrorCode = "invalid config"
	ErrCodeUnknownNodeType    ErrorCode = "unknown node type"
	ErrCodeMultipleSources    ErrorCode = "multiple sources"
	ErrCodeInvalidTransition  ErrorCode = "invalid transition"
	ErrCodeBackendFailure     ErrorCode = "backend failure"
	ErrCodeConversionFailure  ErrorCode = "conversion failure"
	ErrCodeMappingFailure     ErrorCode = "mapping failure"
	ErrCodeNodeFailure        ErrorCode = "node failure"
	ErrCodeDuplicateUserName  ErrorCode = "duplicate user name"
	ErrCodeNotFound           ErrorCode = "not found"
	ErrCodePoisoned           ErrorCode = "poisoned"
	ErrCodeAlreadyStreaming   ErrorCode = "already streaming"
	ErrCodeUnsupportedPayload ErrorCode = "unsupported payload"
)

// SentinelError is a legacy plain-string error type, kept alongside the
// structured Error so simple call sites can still do errors.Is(err,
// ErrNotFound) without constructing a *Error.
type SentinelError string

func (e SentinelError) Error() string {
	return string(e)
}

// Sentinel error constants for simple comparisons.
const (
	ErrNotFound          SentinelError = "not found"
	ErrDuplicateUserName SentinelError = "duplicate user name"
	ErrAlreadyStreaming  SentinelError = "already streaming"
	ErrInvalidTransition SentinelError = "invalid transition"
	ErrMultipleSources   SentinelError = "multiple sources"
	ErrUnknownNodeType   SentinelError = "unknown node type"
)

// NewError creates a new structured error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewPipelineError creates a pipeline-scoped structured error.
func NewPipelineError(op, pipelineID string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, PipelineID: pipelineID, Code: code, Msg: msg}
}

// NewNodeError creates a node-scoped structured error.
func NewNodeError(op, pipelineID, nodeID string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, PipelineID: pipelineID, NodeID: nodeID, Code: code, Msg: msg}
}

// WrapError wraps an existing error with engine context, preserving the
// inner error's code and scope when it is already a structured Error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ue, ok := inner.(*Error); ok {
		return &Error{
			Op:         op,
			PipelineID: ue.PipelineID,
			NodeID:     ue.NodeID,
			Code:       ue.Code,
			Msg:        ue.Msg,
			Inner:      ue.Inner,
		}
	}
	return &Error{Op: op, Code: ErrCodeBackendFailure, Msg: inner.Error(), Inner: inner}
}

// IsCode checks if an error matches a specific error code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

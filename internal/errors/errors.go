// Package errors defines the structured error taxonomy that every CRIT
// component returns, so callers can switch on Code rather than parsing
// message strings.
package errors

import "fmt"

// Code identifies a category of CRIT failure.
type Code int

const (
	CodeUnknown Code = iota
	CodeSamePID
	CodeAlreadyJoined
	CodeBagWithConflictHandler
	CodeUnknownPauseMonitor
	CodeUnknownDumpRef
	CodeAssertPaused
	CodeTimeout
	CodeAggregatorCrashed
	CodeJoinStepFailed
	CodeNotFullyConnected
	CodeOverlappingSegments
	CodeMismatchedJoinRef
	CodeInvalidRecord
	CodeLockUnavailable
)

func (c Code) String() string {
	switch c {
	case CodeSamePID:
		return "same_pid"
	case CodeAlreadyJoined:
		return "already_joined"
	case CodeBagWithConflictHandler:
		return "bag_with_conflict_handler"
	case CodeUnknownPauseMonitor:
		return "unknown_pause_monitor"
	case CodeUnknownDumpRef:
		return "unknown_dump_ref"
	case CodeAssertPaused:
		return "assert_paused"
	case CodeTimeout:
		return "timeout"
	case CodeAggregatorCrashed:
		return "aggregator_crashed"
	case CodeJoinStepFailed:
		return "join_step_failed"
	case CodeNotFullyConnected:
		return "not_fully_connected"
	case CodeOverlappingSegments:
		return "overlapping_segments"
	case CodeMismatchedJoinRef:
		return "mismatched_join_ref"
	case CodeInvalidRecord:
		return "invalid_record"
	case CodeLockUnavailable:
		return "lock_unavailable"
	default:
		return "unknown"
	}
}

// CritError is the structured error type returned by every public CRIT
// operation that can fail for a reason richer than "some error occurred."
type CritError struct {
	Code    Code
	Message string
	Details map[string]any
	Cause   error
}

func (e *CritError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CritError) Unwrap() error {
	return e.Cause
}

func New(code Code, message string, cause error) *CritError {
	return &CritError{Code: code, Message: message, Details: make(map[string]any), Cause: cause}
}

func (e *CritError) With(key string, value any) *CritError {
	e.Details[key] = value
	return e
}

// Convenience constructors, one per taxonomy entry in the error design.

func SamePID(pid string) *CritError {
	return New(CodeSamePID, "cannot join a server to itself", nil).With("pid", pid)
}

func AlreadyJoined(local, remote string) *CritError {
	return New(CodeAlreadyJoined, "remote is already a peer of local", nil).
		With("local", local).With("remote", remote)
}

func BagWithConflictHandler() *CritError {
	return New(CodeBagWithConflictHandler, "bag tables cannot have a conflict handler", nil)
}

func UnknownPauseMonitor(token string) *CritError {
	return New(CodeUnknownPauseMonitor, "pause token was never issued or already consumed", nil).
		With("token", token)
}

func UnknownDumpRef(ref string) *CritError {
	return New(CodeUnknownDumpRef, "dump reference is stale or was never staged", nil).With("dump_ref", ref)
}

func AssertPaused(server, side string) *CritError {
	return New(CodeAssertPaused, "server is not paused", nil).With("server", server).With("side", side)
}

func Timeout(token string) *CritError {
	return New(CodeTimeout, "wait_response timed out", nil).With("token", token)
}

func AggregatorCrashed(reason error) *CritError {
	return New(CodeAggregatorCrashed, "ack aggregator crashed", reason)
}

func JoinStepFailed(step string, cause error) *CritError {
	return New(CodeJoinStepFailed, fmt.Sprintf("join step %q failed", step), cause).With("step", step)
}

func NotFullyConnected(side string, detail string) *CritError {
	return New(CodeNotFullyConnected, "segment members do not agree on membership", nil).
		With("side", side).With("detail", detail)
}

func OverlappingSegments() *CritError {
	return New(CodeOverlappingSegments, "local and remote segments overlap", nil)
}

func MismatchedJoinRef(side string) *CritError {
	return New(CodeMismatchedJoinRef, "segment members disagree on join reference", nil).With("side", side)
}

func InvalidRecord(reason string) *CritError {
	return New(CodeInvalidRecord, reason, nil)
}

func LockUnavailable(key string, cause error) *CritError {
	return New(CodeLockUnavailable, fmt.Sprintf("could not acquire lock %q", key), cause).With("key", key)
}

// Is reports whether err is a *CritError carrying the given code.
func Is(err error, code Code) bool {
	var ce *CritError
	for err != nil {
		if c, ok := err.(*CritError); ok {
			ce = c
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ce != nil && ce.Code == code
}

package state

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies errors produced by the state core.
type ErrorKind uint8

const (
	// KindRuntime is an error raised by user code.
	KindRuntime ErrorKind = iota
	KindStackOverflow
	KindCallDepthExceeded
	KindYieldAcrossBoundary
	KindResumeNonSuspended
	KindUnprotected
	KindCloseHandler
	KindMemory
	KindAPI

	kindYield
)

var kindNames = [...]string{
	KindRuntime:             "runtime",
	KindStackOverflow:       "stack overflow",
	KindCallDepthExceeded:   "call depth exceeded",
	KindYieldAcrossBoundary: "yield across boundary",
	KindResumeNonSuspended:  "resume non-suspended",
	KindUnprotected:         "unprotected error",
	KindCloseHandler:        "close handler",
	KindMemory:              "memory",
	KindAPI:                 "api misuse",
	kindYield:               "yield",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Error is an error travelling through the VM. Value is the error object as
// the running program sees it; Status is the code a protected region reports
// when it catches the error.
type Error struct {
	Kind   ErrorKind
	Status Status
	Value  Value

	cause    error
	sentinel bool
}

func (e *Error) Error() string {
	if e.Value == nil {
		if e.cause != nil {
			return e.cause.Error()
		}
		return e.Kind.String()
	}
	return ToString(e.Value)
}

// Unwrap returns the error this one was derived from, if any.
func (e *Error) Unwrap() error { return e.cause }

// Is matches e against the kind sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.sentinel && t.Kind == e.Kind
}

func sentinel(kind ErrorKind) *Error {
	return &Error{Kind: kind, Status: StatusRuntimeError, sentinel: true}
}

// Kind sentinels. Match them with errors.Is.
var (
	ErrStackOverflow       = sentinel(KindStackOverflow)
	ErrCallDepthExceeded   = sentinel(KindCallDepthExceeded)
	ErrYieldAcrossBoundary = sentinel(KindYieldAcrossBoundary)
	ErrResumeNonSuspended  = sentinel(KindResumeNonSuspended)
	ErrUnprotected         = sentinel(KindUnprotected)
	ErrCloseHandler        = sentinel(KindCloseHandler)
	ErrMemory              = sentinel(KindMemory)
)

// Resume failures. Each of them also matches ErrResumeNonSuspended.
var (
	ErrResumeRunning = &Error{Kind: KindResumeNonSuspended, Status: StatusRuntimeError, Value: "cannot resume non-suspended coroutine"}
	ErrResumeNormal  = &Error{Kind: KindResumeNonSuspended, Status: StatusRuntimeError, Value: "cannot resume non-suspended coroutine (normal)"}
	ErrResumeDead    = &Error{Kind: KindResumeNonSuspended, Status: StatusRuntimeError, Value: "cannot resume dead coroutine"}
)

// API misuse. These are returned directly and never raised.
var (
	ErrFrameUnderflow         = errors.New("cannot pop the base frame")
	ErrUnbalancedNonYieldable = errors.New("non-yieldable region exited more often than entered")
	ErrCheckpointOrder        = errors.New("protected regions must be exited in reverse order of entry")
	ErrVMAborted              = errors.New("vm aborted after an unprotected error")
	ErrNoExecutor             = errors.New("no executor installed for interpreted functions")
	ErrCloseMainThread        = errors.New("cannot close the main thread")
	ErrCrossGlobal            = errors.New("threads belong to different global states")
)

// errYield travels from Yield up to the resume that started the coroutine.
// Protected regions let it pass.
var errYield = &Error{Kind: kindYield, Status: StatusYield, Value: "yield"}

func isYield(err error) bool {
	return errors.Is(err, errYield)
}

// runtimeError builds a runtime error carrying a formatted message.
func runtimeError(kind ErrorKind, status Status, format string, args ...any) *Error {
	return &Error{Kind: kind, Status: status, Value: fmt.Sprintf(format, args...)}
}

// asError turns anything a native function returned into an *Error. Errors
// that are already *Error keep their identity.
func asError(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	kind := KindRuntime
	status := StatusRuntimeError
	var inner *Error
	if errors.As(err, &inner) {
		kind, status = inner.Kind, inner.Status
	}
	return &Error{Kind: kind, Status: status, Value: err.Error(), cause: err}
}

// closeHandlerError wraps an error returned by a close handler.
func closeHandlerError(err error) *Error {
	st := StatusRuntimeError
	var v Value = err.Error()
	if e, ok := err.(*Error); ok {
		st, v = e.Status, e.Value
	}
	return &Error{Kind: KindCloseHandler, Status: st, Value: v, cause: err}
}

package state

import "strconv"

// Status is the outcome code of a protected region or a coroutine.
type Status uint8

const (
	StatusOK Status = iota
	StatusYield
	StatusRuntimeError
	StatusSyntaxError
	StatusMemoryError
	StatusErrorInHandler
	// StatusRunning marks a protected region that has not completed yet.
	StatusRunning
)

var statusNames = [...]string{
	StatusOK:             "ok",
	StatusYield:          "yield",
	StatusRuntimeError:   "runtime error",
	StatusSyntaxError:    "syntax error",
	StatusMemoryError:    "memory error",
	StatusErrorInHandler: "error in error handling",
	StatusRunning:        "running",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// IsError reports whether s is one of the error codes.
func (s Status) IsError() bool {
	return s != StatusOK && s != StatusYield && s != StatusRunning
}

// ResumeState is what a Resume call reports back to the resumer.
type ResumeState uint8

const (
	// ResumeOK means the coroutine body returned; the results are its return
	// values and the coroutine is now dead.
	ResumeOK ResumeState = iota
	// ResumeYield means the coroutine yielded; the results are the yielded
	// values.
	ResumeYield
	// ResumeError means the resume failed; see the returned error.
	ResumeError
)

func (r ResumeState) String() string {
	switch r {
	case ResumeOK:
		return "ok"
	case ResumeYield:
		return "yield"
	case ResumeError:
		return "error"
	}
	return "resume(" + strconv.Itoa(int(r)) + ")"
}

// CoStatus is the status of a coroutine as seen from another thread.
type CoStatus uint8

const (
	CoRunning CoStatus = iota
	CoSuspended
	CoNormal
	CoDead
)

func (c CoStatus) String() string {
	switch c {
	case CoRunning:
		return "running"
	case CoSuspended:
		return "suspended"
	case CoNormal:
		return "normal"
	case CoDead:
		return "dead"
	}
	return "costatus(" + strconv.Itoa(int(c)) + ")"
}

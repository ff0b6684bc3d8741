package state

import (
	"fmt"
	"strconv"
)

// Value is a VM value. The core recognises nil, bool, int64, float64,
// string, *String, Function, *Closure, *Thread and *Userdata. Any other Go value is
// treated as opaque userdata.
type Value = any

// Type is the tag of a Value.
type Type uint8

const (
	TypeNil Type = iota
	TypeBoolean
	TypeNumber
	TypeString
	TypeFunction
	TypeUserdata
	TypeThread
)

var typeNames = [...]string{
	TypeNil:      "nil",
	TypeBoolean:  "boolean",
	TypeNumber:   "number",
	TypeString:   "string",
	TypeFunction: "function",
	TypeUserdata: "userdata",
	TypeThread:   "thread",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// TypeOf returns the tag of v.
func TypeOf(v Value) Type {
	switch v.(type) {
	case nil:
		return TypeNil
	case bool:
		return TypeBoolean
	case int64, float64:
		return TypeNumber
	case string, *String:
		return TypeString
	case Function, func(*Thread) (int, error), *Closure:
		return TypeFunction
	case *Thread:
		return TypeThread
	default:
		return TypeUserdata
	}
}

// IsFalsy reports whether v counts as false in a condition.
func IsFalsy(v Value) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	}
	return false
}

// ToString renders v the way error messages and traces show it.
func ToString(v Value) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', 14, 64)
	case *String:
		return x.s
	case string:
		return x
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%s: %p", TypeOf(v), v)
	}
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// Function is a native function. It reads its arguments from the current
// frame, pushes its results and returns how many of them there are.
type Function func(t *Thread) (int, error)

// Continuation resumes a native function whose call or protected call was
// interrupted by a yield, or finishes one whose protected call was recovered
// after an error. status is StatusYield on a plain resume and the error
// status when a yieldable protected call caught an error.
type Continuation func(t *Thread, status Status, ctx int) (int, error)

// Proto describes a compiled function. Code is opaque to this package and
// only meaningful to the Executor.
type Proto struct {
	NumParams int
	MaxStack  int
	Vararg    bool
	Source    string
	Code      any
}

// Closure is an interpreted function together with its upvalues.
type Closure struct {
	Proto  *Proto
	Upvals []*UpVal
}

func (*Closure) Type() Type { return TypeFunction }

// Userdata is a host value tracked by the collector registry.
type Userdata struct {
	Value any
}

func (*Userdata) Type() Type { return TypeUserdata }

// Executor runs interpreted frames. Execute is handed a frame whose function
// slot holds a *Closure and runs it until that frame returns, leaving its
// results on top of the stack. The same call finishes a frame that was
// interrupted by a yield; ci.SavedPC tells where to continue.
type Executor interface {
	Execute(t *Thread, ci *CallFrame) (int, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(t *Thread, ci *CallFrame) (int, error)

func (f ExecutorFunc) Execute(t *Thread, ci *CallFrame) (int, error) { return f(t, ci) }

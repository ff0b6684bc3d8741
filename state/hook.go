package state

import "strings"

// HookEvent identifies why a hook was called.
type HookEvent uint8

const (
	HookCall HookEvent = iota
	HookReturn
	HookLine
	HookCount
	HookTailCall
)

func (e HookEvent) String() string {
	switch e {
	case HookCall:
		return "call"
	case HookReturn:
		return "return"
	case HookLine:
		return "line"
	case HookCount:
		return "count"
	case HookTailCall:
		return "tail call"
	}
	return "unknown"
}

// HookMask selects the events a hook receives.
type HookMask uint8

const (
	MaskCall HookMask = 1 << iota
	MaskReturn
	MaskLine
	MaskCount
)

func (m HookMask) String() string {
	var parts []string
	if m&MaskCall != 0 {
		parts = append(parts, "call")
	}
	if m&MaskReturn != 0 {
		parts = append(parts, "return")
	}
	if m&MaskLine != 0 {
		parts = append(parts, "line")
	}
	if m&MaskCount != 0 {
		parts = append(parts, "count")
	}
	return strings.Join(parts, "|")
}

// Debug describes the event a hook is called for.
type Debug struct {
	Event       HookEvent
	CurrentLine int
	// Results is the number of values being returned, for return events.
	Results int
	Frame   *CallFrame
}

// Hook is a debug hook. An error returned by a hook is raised in the
// hooked thread.
type Hook func(t *Thread, ar *Debug) error

// SetHook installs fn for the events in mask. count is the instruction
// interval for count events. A nil fn or empty mask turns hooks off.
func (t *Thread) SetHook(fn Hook, mask HookMask, count int) {
	if fn == nil || mask == 0 {
		mask = 0
		fn = nil
	}
	if count <= 0 {
		mask &^= MaskCount
		count = 0
	}
	t.hook = fn
	t.hookMask = mask
	t.baseHookCount = count
	t.resetHookCount()
}

func (t *Thread) Hook() Hook         { return t.hook }
func (t *Thread) HookMask() HookMask { return t.hookMask }
func (t *Thread) HookCount() int     { return t.baseHookCount }
func (t *Thread) HooksAllowed() bool { return t.allowHook }

func (t *Thread) resetHookCount() { t.hookCount = t.baseHookCount }

// runHook calls the hook for event. The hook runs with further hooks
// disabled and may not yield. The stack top is restored afterwards.
func (t *Thread) runHook(event HookEvent, line, nres int) error {
	if t.hook == nil || !t.allowHook {
		return nil
	}
	ci := t.ci
	top := t.stack.top
	ciTop := ci.Top
	if err := t.GrowStack(MinStack); err != nil {
		return err
	}
	if ci.Top < top+MinStack {
		ci.Top = top + MinStack
	}
	t.allowHook = false
	ci.Kind |= CallHooked
	t.nCcalls += nonYieldableUnit
	err := t.hook(t, &Debug{Event: event, CurrentLine: line, Results: nres, Frame: ci})
	ci.Kind &^= CallHooked
	ci.Top = ciTop
	if e, ok := err.(*Error); ok && e == t.errInFlight {
		// Already unwound: the checkpoint restored the counters and top.
		return err
	}
	t.nCcalls -= nonYieldableUnit
	t.allowHook = true
	t.stack.setTop(top)
	return err
}

func (t *Thread) callHook(ci *CallFrame, event HookEvent) error {
	return t.runHook(event, -1, 0)
}

func (t *Thread) returnHook(ci *CallFrame, nres int) error {
	return t.runHook(HookReturn, -1, nres)
}

// TraceInstruction is called by the dispatch loop before executing the
// instruction at pc of the current interpreted frame, which belongs to
// source line line. It fires count and line events as configured.
func (t *Thread) TraceInstruction(pc, line int) error {
	mask := t.hookMask
	if mask&(MaskLine|MaskCount) == 0 {
		return nil
	}
	ci := t.ci
	if mask&MaskCount != 0 {
		t.hookCount--
		if t.hookCount == 0 {
			t.resetHookCount()
			if err := t.runHook(HookCount, -1, 0); err != nil {
				return err
			}
		}
	}
	if mask&MaskLine != 0 {
		// New function, backward jump or new line.
		if pc == 0 || pc <= t.oldPC || line != t.oldLine {
			if err := t.runHook(HookLine, line, 0); err != nil {
				return err
			}
		}
	}
	t.oldPC = pc
	t.oldLine = line
	ci.SavedPC = pc
	ci.line = line
	return nil
}

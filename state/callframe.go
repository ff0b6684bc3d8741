package state

import "strings"

// CallStatus holds the kind flags of a frame.
type CallStatus uint16

const (
	// CallLua marks a frame running an interpreted function.
	CallLua CallStatus = 1 << iota
	// CallNative marks a frame running a native function.
	CallNative
	// CallTail marks a frame that was reused by a tail call.
	CallTail
	// CallBase marks the bottom sentinel frame of a thread.
	CallBase
	// CallFresh marks an interpreted frame entered from Go rather than
	// from another interpreted frame.
	CallFresh
	// CallHooked marks a frame whose hook is currently running.
	CallHooked
	// CallYieldablePCall marks a native frame with a protected call that
	// may be interrupted by a yield.
	CallYieldablePCall
)

var callStatusNames = []struct {
	flag CallStatus
	name string
}{
	{CallLua, "lua"},
	{CallNative, "native"},
	{CallTail, "tail"},
	{CallBase, "base"},
	{CallFresh, "fresh"},
	{CallHooked, "hooked"},
	{CallYieldablePCall, "ypcall"},
}

func (s CallStatus) String() string {
	var parts []string
	for _, n := range callStatusNames {
		if s&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// CallFrame is one activation on a thread's frame chain. Func is the slot
// of the called function; arguments and locals follow it. Top is the
// highest slot the frame may use.
type CallFrame struct {
	Func     int
	Top      int
	NResults int
	Kind     CallStatus
	SavedPC  int

	prev, next *CallFrame
	depth      int
	line       int

	// Native frames.
	k             Continuation
	ctx           int
	pcallFunc     int
	oldErrFunc    int
	oldAllowHook  bool
	recoverStatus Status
}

func (ci *CallFrame) Prev() *CallFrame { return ci.prev }
func (ci *CallFrame) Depth() int       { return ci.depth }
func (ci *CallFrame) IsLua() bool      { return ci.Kind&CallLua != 0 }
func (ci *CallFrame) IsNative() bool   { return ci.Kind&CallNative != 0 }
func (ci *CallFrame) IsBase() bool     { return ci.Kind&CallBase != 0 }

// Context returns the value a native function passed along with its
// continuation.
func (ci *CallFrame) Context() int { return ci.ctx }

// CurrentFrame returns the innermost frame.
func (t *Thread) CurrentFrame() *CallFrame { return t.ci }

// BaseFrame returns the bottom sentinel frame.
func (t *Thread) BaseFrame() *CallFrame { return &t.baseCI }

// Frames returns the frame chain from the base frame up.
func (t *Thread) Frames() []*CallFrame {
	out := make([]*CallFrame, t.depth+1)
	i := t.depth
	for ci := t.ci; ci != nil; ci = ci.prev {
		out[i] = ci
		i--
	}
	return out
}

// checkDepth fails when one more frame would pass MaxCallDepth. A message
// handler running after an overflow gets a tenth more room before that
// becomes an error in error handling.
func (t *Thread) checkDepth() error {
	limit := t.g.opts.MaxCallDepth
	if t.depth < limit {
		return nil
	}
	if t.handlingErr > 0 {
		if t.depth < limit+limit/10 {
			return nil
		}
		return runtimeError(KindCallDepthExceeded, StatusErrorInHandler, "error in error handling (call depth)")
	}
	return runtimeError(KindCallDepthExceeded, StatusRuntimeError, "stack overflow (more than %d nested calls)", limit)
}

// nextFrame returns a frame node above the current one, reusing a cached
// node when there is one.
func (t *Thread) nextFrame() *CallFrame {
	ci := t.ci.next
	if ci == nil {
		ci = &CallFrame{prev: t.ci}
		t.ci.next = ci
		return ci
	}
	next := ci.next
	*ci = CallFrame{prev: t.ci, next: next}
	return ci
}

// PushFrame pushes a frame of the given kind whose function sits at slot
// fn. The chain is left unchanged when the depth limit is reached.
func (t *Thread) PushFrame(kind CallStatus, fn, nresults int) (*CallFrame, error) {
	if err := t.GrowStack(MinStack); err != nil {
		return nil, err
	}
	return t.pushFrame(kind, fn, nresults, t.stack.top+MinStack)
}

func (t *Thread) pushFrame(kind CallStatus, fn, nresults, top int) (*CallFrame, error) {
	if err := t.checkDepth(); err != nil {
		return nil, err
	}
	ci := t.nextFrame()
	ci.Func = fn
	ci.Top = top
	ci.NResults = nresults
	ci.Kind = kind
	t.depth++
	ci.depth = t.depth
	t.ci = ci
	if t.hookMask&MaskCall != 0 {
		if err := t.callHook(ci, HookCall); err != nil {
			return ci, err
		}
	}
	return ci, nil
}

// PopFrame fires the return hook and removes the current frame together
// with its slots.
func (t *Thread) PopFrame() error {
	ci := t.ci
	if ci == &t.baseCI {
		return ErrFrameUnderflow
	}
	if t.hookMask&MaskReturn != 0 {
		if err := t.returnHook(ci, 0); err != nil {
			return err
		}
	}
	t.stack.setTop(ci.Func)
	t.unlinkFrame()
	return nil
}

func (t *Thread) unlinkFrame() {
	ci := t.ci
	t.ci = ci.prev
	t.depth--
	if t.ci.IsLua() {
		t.oldPC = t.ci.SavedPC
		t.oldLine = t.ci.line
	}
}

// shrinkFrames frees half of the cached frame nodes above the current
// frame.
func (t *Thread) shrinkFrames() {
	cached := 0
	for ci := t.ci.next; ci != nil; ci = ci.next {
		cached++
	}
	keep := cached - cached/2
	ci := t.ci
	for i := 0; i < keep && ci.next != nil; i++ {
		ci = ci.next
	}
	ci.next = nil
}

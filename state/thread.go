package state

import (
	"github.com/google/uuid"
)

const (
	// nonYieldableUnit is one level of non-yieldable nesting in nCcalls.
	nonYieldableUnit = 0x10000
	nativeCallsMask  = 0xffff
)

// Thread is the execution state of one coroutine: its stack, frame chain,
// protected regions, to-be-closed variables, open upvalues and hook policy.
// A Thread is not safe for concurrent use; all threads of a Global run on
// one goroutine at a time.
type Thread struct {
	id uuid.UUID
	g  *Global

	// status is OK, Yield while suspended, or the error code the coroutine
	// died with.
	status        Status
	lastProtected Status
	deathErr      *Error

	stack Stack

	ci     *CallFrame
	baseCI CallFrame
	depth  int
	// nCcalls counts nested native calls in the low 16 bits and
	// non-yieldable regions in units of nonYieldableUnit above them.
	nCcalls uint32

	errorJmp    *Checkpoint
	errFunc     int
	errInFlight *Error
	// recovered is set when errInFlight was caught by a yieldable
	// protected call instead of unwinding a checkpoint.
	recovered   bool
	handlingErr int

	tbc []tbcEntry

	openUpval  *UpVal
	nOpenUpval int
	twups      *Thread
	inTwups    bool

	hook          Hook
	hookMask      HookMask
	baseHookCount int
	hookCount     int
	allowHook     bool
	oldPC         int
	oldLine       int

	nYield int

	// closed is set once CloseThread has released the stack.
	closed bool
}

func newThread(g *Global) *Thread {
	t := &Thread{
		id:        uuid.New(),
		g:         g,
		allowHook: true,
	}
	t.initStack()
	return t
}

// NewThread creates a coroutine in the same Global. Unless the Global was
// configured otherwise, the new thread starts with t's hook.
func (t *Thread) NewThread() (*Thread, error) {
	g := t.g
	if g.aborted != nil {
		return nil, ErrVMAborted
	}
	if err := g.opts.Allocator.Resize(0, int64(g.opts.InitialStack+g.opts.ExtraStack)*SlotBytes); err != nil {
		return nil, err
	}
	nt := newThread(g)
	if !g.opts.NoInheritHooks {
		nt.hook = t.hook
		nt.hookMask = t.hookMask
		nt.baseHookCount = t.baseHookCount
		nt.resetHookCount()
	}
	g.Register(nt)
	log.Debugf("thread %s: created by %s", nt.id, t.id)
	return nt, nil
}

func (t *Thread) initStack() {
	opts := t.g.opts
	t.stack = Stack{
		slots:   make([]Value, opts.InitialStack+opts.ExtraStack),
		reserve: opts.ExtraStack,
	}
	// Slot 0 is the function slot of the base frame.
	t.stack.top = 1
	t.baseCI = CallFrame{
		Func:     0,
		Top:      1 + MinStack,
		NResults: 0,
		Kind:     CallNative | CallBase,
	}
	t.ci = &t.baseCI
	t.depth = 0
}

func (*Thread) Type() Type { return TypeThread }

func (t *Thread) ID() uuid.UUID   { return t.id }
func (t *Thread) Global() *Global { return t.g }
func (t *Thread) IsMain() bool    { return t == t.g.main }
func (t *Thread) Status() Status  { return t.status }
func (t *Thread) Depth() int      { return t.depth }
func (t *Thread) String() string  { return "thread: " + t.id.String() }
func (t *Thread) Stack() *Stack   { return &t.stack }
func (t *Thread) DeathError() error {
	if t.deathErr == nil {
		return nil
	}
	return t.deathErr
}

// ProtectedStatus returns the outcome of the most recently completed
// protected region, or StatusRunning while one is open.
func (t *Thread) ProtectedStatus() Status { return t.lastProtected }

// NativeDepth returns the number of nested native calls.
func (t *Thread) NativeDepth() int { return int(t.nCcalls & nativeCallsMask) }

// NonYieldableDepth returns how many non-yieldable regions are open.
func (t *Thread) NonYieldableDepth() int { return int(t.nCcalls >> 16) }

// IsYieldable reports whether Yield would succeed right now.
func (t *Thread) IsYieldable() bool { return t.nCcalls&^nativeCallsMask == 0 }

// EnterNonYieldable opens a region in which Yield fails.
func (t *Thread) EnterNonYieldable() { t.nCcalls += nonYieldableUnit }

// ExitNonYieldable closes the innermost non-yieldable region.
func (t *Thread) ExitNonYieldable() error {
	floor := 0
	if t.IsMain() {
		floor = 1
	}
	if t.NonYieldableDepth() <= floor {
		return ErrUnbalancedNonYieldable
	}
	t.nCcalls -= nonYieldableUnit
	return nil
}

// CheckpointDepth returns the number of open protected regions.
func (t *Thread) CheckpointDepth() int {
	n := 0
	for cp := t.errorJmp; cp != nil; cp = cp.prev {
		n++
	}
	return n
}

// ToBeClosed returns the stack indices of pending to-be-closed variables in
// declaration order.
func (t *Thread) ToBeClosed() []int {
	out := make([]int, len(t.tbc))
	for i, e := range t.tbc {
		out[i] = e.index
	}
	return out
}

// OpenUpvals returns the stack indices of open upvalues, highest first.
func (t *Thread) OpenUpvals() []int {
	out := make([]int, 0, t.nOpenUpval)
	for uv := t.openUpval; uv != nil; uv = uv.next {
		out = append(out, uv.index)
	}
	return out
}

// Registered reports whether t is on the list of threads with open
// upvalues.
func (t *Thread) Registered() bool { return t.inTwups }

// ResetThread abandons every frame, closes pending upvalues and
// to-be-closed variables and leaves t as a fresh, empty thread. A coroutine
// that died with an error passes that error to the close handlers and gets
// it back as the result.
func (t *Thread) ResetThread() (Status, error) {
	status := t.status
	cur := t.deathErr
	if status == StatusYield {
		status = StatusOK
	}
	t.status = StatusOK
	t.ci = &t.baseCI
	t.depth = 0
	t.errorJmp = nil
	t.errInFlight = nil
	t.errFunc = 0
	t.handlingErr = 0
	t.allowHook = true
	t.nCcalls = 0
	if t.IsMain() {
		t.nCcalls = nonYieldableUnit
	}
	if t.stack.top < 1 {
		t.stack.top = 1
	}
	e := t.closeProtected(1, cur)
	t.stack.setTop(1)
	t.baseCI.Top = 1 + MinStack
	t.deathErr = nil
	t.ShrinkStack()
	if e != nil {
		return e.Status, e
	}
	return status, nil
}

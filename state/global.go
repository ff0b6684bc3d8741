package state

import (
	"github.com/google/uuid"
)

// Default limits.
const (
	DefaultMaxStack       = 1000000
	DefaultMaxCallDepth   = 200
	DefaultMaxNativeCalls = 200
	DefaultExtraStack     = 5

	// MinStack is the number of free slots every native function may use
	// without asking for more.
	MinStack = 20

	// MultRet asks a call to keep every result.
	MultRet = -1

	// errorStackExtra is how far the stack may grow past MaxStack while an
	// overflow error is being handled.
	errorStackExtra = 200
)

// Options configures a Global. Zero fields take their defaults.
type Options struct {
	MaxStack       int
	MaxCallDepth   int
	MaxNativeCalls int
	InitialStack   int
	ExtraStack     int
	MemoryLimit    int64

	// NoInheritHooks makes new coroutines start without the creator's hook.
	NoInheritHooks bool

	// Allocator replaces the default limit allocator.
	Allocator Allocator
}

// DefaultOptions returns the options NewGlobal uses for zero fields.
func DefaultOptions() Options {
	return Options{
		MaxStack:       DefaultMaxStack,
		MaxCallDepth:   DefaultMaxCallDepth,
		MaxNativeCalls: DefaultMaxNativeCalls,
		InitialStack:   2 * MinStack,
		ExtraStack:     DefaultExtraStack,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxStack <= 0 {
		o.MaxStack = d.MaxStack
	}
	if o.MaxCallDepth <= 0 {
		o.MaxCallDepth = d.MaxCallDepth
	}
	if o.MaxNativeCalls <= 0 {
		o.MaxNativeCalls = d.MaxNativeCalls
	}
	if o.InitialStack <= 0 {
		o.InitialStack = d.InitialStack
	}
	if o.InitialStack < MinStack {
		o.InitialStack = MinStack
	}
	if o.InitialStack > o.MaxStack {
		o.InitialStack = o.MaxStack
	}
	if o.ExtraStack <= 0 {
		o.ExtraStack = d.ExtraStack
	}
	if o.Allocator == nil {
		o.Allocator = NewLimitAllocator(o.MemoryLimit)
	}
	return o
}

// Object is anything tracked by the collector registry.
type Object interface {
	Type() Type
}

// StackObserver is told before and after a thread's stack is reallocated.
type StackObserver interface {
	BeforeStackResize(t *Thread, oldSize, newSize int)
	AfterStackResize(t *Thread, oldSize, newSize int)
}

// PanicFunc is called when an error is raised with no protected region to
// catch it.
type PanicFunc func(t *Thread, err *Error)

// Global is the state shared by every thread of one VM.
type Global struct {
	id   uuid.UUID
	opts Options

	main    *Thread
	running *Thread

	strings   *stringTable
	objects   map[Object]struct{}
	observers []StackObserver

	// twups is the list of non-main threads with open upvalues.
	twups *Thread

	executor Executor
	panicFn  PanicFunc
	aborted  *Error
}

// NewGlobal creates a VM and its main thread.
func NewGlobal(opts Options) *Global {
	g := &Global{
		id:      uuid.New(),
		opts:    opts.withDefaults(),
		strings: newStringTable(),
		objects: make(map[Object]struct{}),
	}
	_ = g.opts.Allocator.Resize(0, int64(g.opts.InitialStack+g.opts.ExtraStack)*SlotBytes)
	g.main = newThread(g)
	// The main thread cannot yield.
	g.main.nCcalls = nonYieldableUnit
	g.running = g.main
	g.Register(g.main)
	log.Debugf("vm %s: created (max stack %d, max depth %d)", g.id, g.opts.MaxStack, g.opts.MaxCallDepth)
	return g
}

func (g *Global) ID() uuid.UUID        { return g.id }
func (g *Global) Options() Options     { return g.opts }
func (g *Global) MainThread() *Thread  { return g.main }
func (g *Global) Allocator() Allocator { return g.opts.Allocator }

// Running returns the thread that is currently executing.
func (g *Global) Running() *Thread { return g.running }

// Err returns the unprotected error that aborted the VM, or nil.
func (g *Global) Err() error {
	if g.aborted == nil {
		return nil
	}
	return g.aborted
}

// SetExecutor installs the dispatch loop used for interpreted functions.
func (g *Global) SetExecutor(e Executor) { g.executor = e }

// SetPanic installs the handler for unprotected errors. A nil handler
// restores the default, which logs the error.
func (g *Global) SetPanic(fn PanicFunc) { g.panicFn = fn }

// Observe registers o for stack resize notifications.
func (g *Global) Observe(o StackObserver) {
	g.observers = append(g.observers, o)
}

// ---------------------------------------------------------------------------
// Object registry
// ---------------------------------------------------------------------------

// Register adds obj to the set of objects the collector knows about.
func (g *Global) Register(obj Object) {
	g.objects[obj] = struct{}{}
}

// Unregister removes obj from the registry.
func (g *Global) Unregister(obj Object) {
	delete(g.objects, obj)
}

// Objects returns every registered object in no particular order.
func (g *Global) Objects() []Object {
	out := make([]Object, 0, len(g.objects))
	for o := range g.objects {
		out = append(out, o)
	}
	return out
}

// Threads returns every live thread, main thread first.
func (g *Global) Threads() []*Thread {
	out := []*Thread{g.main}
	for o := range g.objects {
		if t, ok := o.(*Thread); ok && t != g.main {
			out = append(out, t)
		}
	}
	return out
}

// NewClosure creates and registers an interpreted function with nup empty
// upvalue slots.
func (g *Global) NewClosure(p *Proto, nup int) *Closure {
	cl := &Closure{Proto: p, Upvals: make([]*UpVal, nup)}
	g.Register(cl)
	return cl
}

// NewUserdata wraps v and registers it.
func (g *Global) NewUserdata(v any) *Userdata {
	u := &Userdata{Value: v}
	g.Register(u)
	return u
}

// AfterCollect is called by the collector once a cycle has finished. It
// gives every thread the chance to shrink its stack.
func (g *Global) AfterCollect() {
	for _, t := range g.Threads() {
		t.ShrinkStack()
	}
}

// ---------------------------------------------------------------------------
// Thread lifecycle
// ---------------------------------------------------------------------------

// NewThread creates a coroutine sharing this Global.
func (g *Global) NewThread() (*Thread, error) {
	return g.main.NewThread()
}

// CloseThread closes a coroutine's pending upvalues and to-be-closed
// variables, resets it, releases its stack and removes it from the
// registries. It returns the error the coroutine died with, or the first
// error a close handler raised. A closed thread is dead; closing it again
// does nothing.
func (g *Global) CloseThread(t *Thread) (Status, error) {
	if t.g != g {
		return StatusRuntimeError, ErrCrossGlobal
	}
	if t == g.main {
		return StatusRuntimeError, ErrCloseMainThread
	}
	if t.closed {
		return StatusOK, nil
	}
	if t.status == StatusOK && t.ci != &t.baseCI {
		if t == g.running {
			return StatusRuntimeError, runtimeError(KindAPI, StatusRuntimeError, "cannot close a running coroutine")
		}
		return StatusRuntimeError, runtimeError(KindAPI, StatusRuntimeError, "cannot close a normal coroutine")
	}
	status, err := t.ResetThread()
	t.freeStack()
	t.closed = true
	g.removeFromRegistry(t)
	g.Unregister(t)
	log.Debugf("thread %s: closed (%s)", t.id, status)
	return status, err
}

package state

import "testing"

// goCode is the Proto.Code understood by goExecutor. Returning -1 means the
// frame was reused by a tail call and the new function should run.
type goCode func(th *Thread, ci *CallFrame) (int, error)

var goExecutor = ExecutorFunc(func(th *Thread, ci *CallFrame) (int, error) {
	for {
		cl := th.stack.slots[ci.Func].(*Closure)
		n, err := cl.Proto.Code.(goCode)(th, ci)
		if err != nil {
			return 0, err
		}
		if n >= 0 {
			return n, nil
		}
	}
})

func newTestGlobal(t *testing.T, opts Options) *Global {
	t.Helper()
	g := NewGlobal(opts)
	g.SetExecutor(goExecutor)
	g.SetPanic(func(th *Thread, err *Error) {
		t.Logf("unprotected error: %v", err)
	})
	return g
}

func mustPush(t *testing.T, th *Thread, vs ...Value) {
	t.Helper()
	if err := th.Push(vs...); err != nil {
		t.Fatalf("Push: %v", err)
	}
}

func nop(th *Thread) (int, error) { return 0, nil }

// recordingObserver remembers every stack resize it is told about.
type recordingObserver struct {
	before  [][2]int
	after   [][2]int
	onAfter func(th *Thread)
}

func (o *recordingObserver) BeforeStackResize(th *Thread, oldSize, newSize int) {
	o.before = append(o.before, [2]int{oldSize, newSize})
}

func (o *recordingObserver) AfterStackResize(th *Thread, oldSize, newSize int) {
	o.after = append(o.after, [2]int{oldSize, newSize})
	if o.onAfter != nil {
		o.onAfter(th)
	}
}

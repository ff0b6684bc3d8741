package state

import (
	"errors"
	"testing"
)

// newCoroutine creates a coroutine whose body is fn.
func newCoroutine(t *testing.T, g *Global, fn Function) *Thread {
	t.Helper()
	co, err := g.NewThread()
	if err != nil {
		t.Fatalf("NewThread: %v", err)
	}
	mustPush(t, co, fn)
	return co
}

func TestResumeYieldRoundTrip(t *testing.T) {
	g := newTestGlobal(t, Options{})
	main := g.MainThread()

	// Yields its argument doubled, then returns the sum of what it was
	// resumed with.
	co := newCoroutine(t, g, func(th *Thread) (int, error) {
		x := th.Get(1).(int64)
		if err := th.Push(x * 2); err != nil {
			return 0, err
		}
		return th.YieldK(1, 0, func(th *Thread, status Status, ctx int) (int, error) {
			if status != StatusYield {
				t.Errorf("continuation status = %v, want yield", status)
			}
			a, b := th.Get(-2).(int64), th.Get(-1).(int64)
			return 1, th.Push(a + b)
		})
	})

	state, vals, err := co.Resume(main, int64(21))
	if err != nil || state != ResumeYield {
		t.Fatalf("first resume = %v, %v", state, err)
	}
	if len(vals) != 1 || vals[0] != int64(42) {
		t.Errorf("yielded %v, want [42]", vals)
	}
	if main.CoroutineStatus(co) != CoSuspended {
		t.Errorf("status after yield = %v, want suspended", main.CoroutineStatus(co))
	}

	state, vals, err = co.Resume(main, int64(3), int64(4))
	if err != nil || state != ResumeOK {
		t.Fatalf("second resume = %v, %v", state, err)
	}
	if len(vals) != 1 || vals[0] != int64(7) {
		t.Errorf("returned %v, want [7]", vals)
	}
	if main.CoroutineStatus(co) != CoDead {
		t.Errorf("status after return = %v, want dead", main.CoroutineStatus(co))
	}

	_, _, err = co.Resume(main)
	if !errors.Is(err, ErrResumeDead) || !errors.Is(err, ErrResumeNonSuspended) {
		t.Errorf("resuming a dead coroutine = %v, want ErrResumeDead", err)
	}
}

func TestYieldWithoutContinuationReturnsResumeArgs(t *testing.T) {
	g := newTestGlobal(t, Options{})
	var got []Value
	co := newCoroutine(t, g, func(th *Thread) (int, error) {
		if err := th.Push(Function(func(th *Thread) (int, error) {
			return th.Yield(0)
		})); err != nil {
			return 0, err
		}
		return 0, th.CallK(0, MultRet, 0, func(th *Thread, status Status, ctx int) (int, error) {
			for i := 1; i <= th.Top(); i++ {
				got = append(got, th.Get(i))
			}
			return 0, nil
		})
	})
	if state, _, err := co.Resume(nil); err != nil || state != ResumeYield {
		t.Fatalf("first resume = %v, %v", state, err)
	}
	if state, _, err := co.Resume(nil, "a", "b"); err != nil || state != ResumeOK {
		t.Fatalf("second resume = %v, %v", state, err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("continuation saw %v, want [a b]", got)
	}
}

func TestResumeNonSuspended(t *testing.T) {
	g := newTestGlobal(t, Options{})
	main := g.MainThread()

	var outer, inner *Thread
	var selfErr, normalErr error
	var normalStatus CoStatus
	inner = newCoroutine(t, g, func(th *Thread) (int, error) {
		_, _, normalErr = outer.Resume(th)
		normalStatus = th.CoroutineStatus(outer)
		return 0, nil
	})
	outer = newCoroutine(t, g, func(th *Thread) (int, error) {
		_, _, selfErr = th.Resume(th)
		if st := th.CoroutineStatus(th); st != CoRunning {
			t.Errorf("own status = %v, want running", st)
		}
		if _, _, err := inner.Resume(th); err != nil {
			return 0, err
		}
		return 0, nil
	})

	if _, _, err := outer.Resume(main); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !errors.Is(selfErr, ErrResumeRunning) || !errors.Is(selfErr, ErrResumeNonSuspended) {
		t.Errorf("resuming the running coroutine = %v, want ErrResumeRunning", selfErr)
	}
	if !errors.Is(normalErr, ErrResumeNormal) {
		t.Errorf("resuming a normal coroutine = %v, want ErrResumeNormal", normalErr)
	}
	if normalStatus != CoNormal {
		t.Errorf("resumer status = %v, want normal", normalStatus)
	}
	if g.Running() != main {
		t.Errorf("running thread not restored to main")
	}
}

func TestResumeFailureHasNoSideEffects(t *testing.T) {
	g := newTestGlobal(t, Options{})
	co := newCoroutine(t, g, func(th *Thread) (int, error) { return th.Yield(0) })
	if _, _, err := co.Resume(nil); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	main := g.MainThread()
	// Fill the resumer's native depth.
	main.nCcalls += uint32(g.Options().MaxNativeCalls)
	top, status := co.Stack().Top(), co.Status()

	_, _, err := co.Resume(main, int64(1))
	if !errors.Is(err, ErrCallDepthExceeded) {
		t.Fatalf("Resume = %v, want call depth exceeded", err)
	}
	if co.Stack().Top() != top || co.Status() != status {
		t.Errorf("failed resume changed the coroutine")
	}
}

func TestYieldAcrossNonYieldableBoundary(t *testing.T) {
	g := newTestGlobal(t, Options{})
	co := newCoroutine(t, g, func(th *Thread) (int, error) {
		th.EnterNonYieldable()
		top, depth := th.Stack().Top(), th.Depth()
		_, err := th.Yield(0)
		if !errors.Is(err, ErrYieldAcrossBoundary) {
			t.Errorf("yield inside region = %v, want yield across boundary", err)
		}
		if th.Stack().Top() != top || th.Depth() != depth || th.Status() != StatusOK {
			t.Errorf("failed yield changed the thread")
		}
		if err := th.ExitNonYieldable(); err != nil {
			return 0, err
		}
		return th.Yield(0)
	})
	state, _, err := co.Resume(nil)
	if err != nil || state != ResumeYield {
		t.Fatalf("Resume = %v, %v, want a yield once the region is closed", state, err)
	}
}

func TestYieldFromMainThread(t *testing.T) {
	g := newTestGlobal(t, Options{})
	main := g.MainThread()
	_, err := main.Yield(0)
	if !errors.Is(err, ErrYieldAcrossBoundary) {
		t.Fatalf("Yield on main = %v", err)
	}
	if err.Error() != "attempt to yield from outside a coroutine" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestYieldThroughPlainCallFails(t *testing.T) {
	g := newTestGlobal(t, Options{})
	co := newCoroutine(t, g, func(th *Thread) (int, error) {
		if err := th.Push(Function(func(th *Thread) (int, error) { return th.Yield(0) })); err != nil {
			return 0, err
		}
		// No continuation: the callee runs non-yieldable.
		return 0, th.Call(0, 0)
	})
	state, _, err := co.Resume(nil)
	if state != ResumeError || !errors.Is(err, ErrYieldAcrossBoundary) {
		t.Fatalf("Resume = %v, %v", state, err)
	}
	if co.Status() != StatusRuntimeError {
		t.Errorf("status = %v, want runtime error", co.Status())
	}
}

func TestCoroutineErrorKillsIt(t *testing.T) {
	g := newTestGlobal(t, Options{})
	closed := false
	co := newCoroutine(t, g, func(th *Thread) (int, error) {
		if err := th.Push("res"); err != nil {
			return 0, err
		}
		if err := th.MarkToBeClosed(-1, func(*Thread, Value, error) error {
			closed = true
			return nil
		}); err != nil {
			return 0, err
		}
		th.FindUpval(th.Stack().Top() - 1)
		return 0, th.Raise(StatusRuntimeError, "crash")
	})
	state, _, err := co.Resume(nil)
	if state != ResumeError || err == nil || err.Error() != "crash" {
		t.Fatalf("Resume = %v, %v", state, err)
	}
	if !closed {
		t.Errorf("to-be-closed variable not closed when the coroutine died")
	}
	if co.Registered() || co.OpenUpvalCount() != 0 {
		t.Errorf("dead coroutine still holds upvalues")
	}
	if g.MainThread().CoroutineStatus(co) != CoDead {
		t.Errorf("status = %v, want dead", g.MainThread().CoroutineStatus(co))
	}
	if co.DeathError() == nil {
		t.Errorf("DeathError not recorded")
	}
}

// TestYieldablePCallRecovers yields inside a PCallK, then fails after
// resumption; the error lands in the PCallK's continuation instead of
// killing the coroutine.
func TestYieldReleasesOpenCheckpoints(t *testing.T) {
	g := newTestGlobal(t, Options{})
	var inner *Checkpoint
	co := newCoroutine(t, g, func(th *Thread) (int, error) {
		inner = th.EnterProtected()
		th.EnterProtected()
		return th.Yield(0)
	})
	rs, _, err := co.Resume(nil)
	if err != nil || rs != ResumeYield {
		t.Fatalf("Resume = %v, %v", rs, err)
	}
	if n := co.CheckpointDepth(); n != 0 {
		t.Errorf("%d checkpoints open on the suspended coroutine", n)
	}
	if inner.Status() != StatusYield || inner.Tripped() {
		t.Errorf("inner region status %v, tripped %v", inner.Status(), inner.Tripped())
	}
	if err := co.ExitProtected(inner); err != nil {
		t.Errorf("exiting a region left by a yield = %v", err)
	}

	rs, _, err = co.Resume(nil)
	if err != nil || rs != ResumeOK {
		t.Fatalf("second Resume = %v, %v", rs, err)
	}
	if n := co.CheckpointDepth(); n != 0 {
		t.Errorf("%d checkpoints open on the finished coroutine", n)
	}
}

func TestCoroutineDiesWithErrorFromAbandonedRegion(t *testing.T) {
	g := newTestGlobal(t, Options{})
	co := newCoroutine(t, g, func(th *Thread) (int, error) {
		th.EnterProtected()
		return 0, th.Raise(StatusRuntimeError, "boom")
	})
	rs, _, err := co.Resume(nil)
	var e *Error
	if rs != ResumeError || !errors.As(err, &e) || e.Value != "boom" {
		t.Fatalf("Resume = %v, %v", rs, err)
	}
	if st := g.MainThread().CoroutineStatus(co); st != CoDead {
		t.Errorf("status = %v, want dead", st)
	}
	if n := co.CheckpointDepth(); n != 0 {
		t.Errorf("%d checkpoints open on the dead coroutine", n)
	}
}

func TestYieldablePCallRecovers(t *testing.T) {
	g := newTestGlobal(t, Options{})
	var kStatus Status
	var kValue Value
	co := newCoroutine(t, g, func(th *Thread) (int, error) {
		failing := Function(func(th *Thread) (int, error) {
			return th.YieldK(0, 0, func(th *Thread, _ Status, _ int) (int, error) {
				return 0, th.Raise(StatusRuntimeError, "after resume")
			})
		})
		if err := th.Push(failing); err != nil {
			return 0, err
		}
		return 0, th.PCallK(0, 0, 0, 9, func(th *Thread, status Status, ctx int) (int, error) {
			kStatus, kValue = status, th.Get(-1)
			if ctx != 9 {
				t.Errorf("ctx = %d, want 9", ctx)
			}
			return 1, th.Push("recovered")
		})
	})

	if state, _, err := co.Resume(nil); err != nil || state != ResumeYield {
		t.Fatalf("first resume = %v, %v", state, err)
	}
	if co.CheckpointDepth() != 0 {
		t.Errorf("%d checkpoints held across the yield", co.CheckpointDepth())
	}
	state, vals, err := co.Resume(nil)
	if err != nil || state != ResumeOK {
		t.Fatalf("second resume = %v, %v", state, err)
	}
	if kStatus != StatusRuntimeError || kValue != "after resume" {
		t.Errorf("continuation got %v / %v", kStatus, kValue)
	}
	if len(vals) != 1 || vals[0] != "recovered" {
		t.Errorf("results = %v, want [recovered]", vals)
	}
}

func TestNativeDepthInheritedFromResumer(t *testing.T) {
	g := newTestGlobal(t, Options{})
	var seen int
	co := newCoroutine(t, g, func(th *Thread) (int, error) {
		seen = th.NativeDepth()
		return 0, nil
	})
	main := g.MainThread()
	main.nCcalls += 5
	if _, _, err := co.Resume(main); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	// 5 from the resumer and 1 for the resume itself.
	if seen != 6 {
		t.Errorf("native depth inside the coroutine = %d, want 6", seen)
	}
}

func TestCloseSuspendedCoroutine(t *testing.T) {
	g := newTestGlobal(t, Options{})
	var closedWith error = errors.New("unset")
	co := newCoroutine(t, g, func(th *Thread) (int, error) {
		if err := th.Push("res"); err != nil {
			return 0, err
		}
		if err := th.MarkToBeClosed(-1, func(_ *Thread, _ Value, err error) error {
			closedWith = err
			return nil
		}); err != nil {
			return 0, err
		}
		return th.Yield(0)
	})
	if _, _, err := co.Resume(nil); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	status, err := g.CloseThread(co)
	if err != nil || status != StatusOK {
		t.Fatalf("CloseThread = %v, %v", status, err)
	}
	if closedWith != nil {
		t.Errorf("close handler got %v, want nil", closedWith)
	}
	for _, o := range g.Objects() {
		if o == co {
			t.Errorf("closed thread still registered")
		}
	}
	if _, err := g.CloseThread(g.MainThread()); !errors.Is(err, ErrCloseMainThread) {
		t.Errorf("closing main = %v", err)
	}
}

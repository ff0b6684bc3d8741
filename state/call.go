package state

// Call calls the function sitting below the top nargs arguments and leaves
// nresults results in its place (all of them for MultRet). The call is
// non-yieldable.
func (t *Thread) Call(nargs, nresults int) error {
	return t.CallK(nargs, nresults, 0, nil)
}

// CallK is Call with a continuation. When the thread can yield, a yield
// inside the callee suspends the coroutine and on resumption k finishes the
// calling native function.
func (t *Thread) CallK(nargs, nresults, ctx int, k Continuation) error {
	fn := t.stack.top - nargs - 1
	if fn <= t.ci.Func {
		return runtimeError(KindAPI, StatusRuntimeError, "not enough elements for a call")
	}
	var err error
	if k != nil && t.IsYieldable() {
		t.ci.k = k
		t.ci.ctx = ctx
		err = t.call(fn, nresults, 1)
	} else {
		err = t.call(fn, nresults, nonYieldableUnit|1)
	}
	if err != nil {
		if t.errorJmp == nil && !isYield(err) {
			return t.raise(asError(err))
		}
		return err
	}
	t.adjustResults(nresults)
	return nil
}

// call runs the function at slot fn. inc is added to nCcalls for the
// duration of the call and removed again only on a normal return; protected
// regions restore the counter on errors.
func (t *Thread) call(fn, nresults int, inc uint32) error {
	t.nCcalls += inc
	if t.NativeDepth() >= t.g.opts.MaxNativeCalls {
		if err := t.checkNativeStack(); err != nil {
			return err
		}
	}
	var err error
	switch f := t.stack.slots[fn].(type) {
	case Function:
		err = t.callNative(fn, nresults, f)
	case func(*Thread) (int, error):
		err = t.callNative(fn, nresults, f)
	case *Closure:
		err = t.callLua(fn, nresults, f)
	default:
		err = runtimeError(KindRuntime, StatusRuntimeError, "attempt to call a %s value", TypeOf(f))
	}
	if err != nil {
		return err
	}
	t.nCcalls -= inc
	return nil
}

// checkNativeStack is called when the native depth reaches its ceiling.
// Past a tenth beyond the ceiling, while the overflow error itself is being
// handled, it is an error in error handling.
func (t *Thread) checkNativeStack() error {
	limit := t.g.opts.MaxNativeCalls
	depth := t.NativeDepth()
	if depth == limit {
		return runtimeError(KindCallDepthExceeded, StatusRuntimeError, "native call stack overflow")
	}
	if depth >= limit/10*11 {
		return runtimeError(KindCallDepthExceeded, StatusErrorInHandler, "error in error handling (native call stack overflow)")
	}
	return nil
}

func (t *Thread) callNative(fn, nresults int, f Function) error {
	if err := t.GrowStack(MinStack); err != nil {
		return err
	}
	ci, err := t.pushFrame(CallNative, fn, nresults, t.stack.top+MinStack)
	if err != nil {
		return err
	}
	n, err := f(t)
	if err != nil {
		return t.raiseAtBoundary(err)
	}
	if n < 0 || n > t.stack.top-(ci.Func+1) {
		return t.raise(runtimeError(KindAPI, StatusRuntimeError, "native function returned %d results but left %d", n, t.stack.top-(ci.Func+1)))
	}
	return t.posCall(ci, n)
}

func (t *Thread) callLua(fn, nresults int, cl *Closure) error {
	exec := t.g.executor
	if exec == nil {
		return ErrNoExecutor
	}
	p := cl.Proto
	if err := t.GrowStack(p.MaxStack); err != nil {
		return err
	}
	nargs := t.stack.top - fn - 1
	for ; nargs < p.NumParams; nargs++ {
		t.stack.slots[t.stack.top] = nil
		t.stack.top++
	}
	ci, err := t.pushFrame(CallLua|CallFresh, fn, nresults, fn+1+p.MaxStack)
	if err != nil {
		return err
	}
	t.oldPC = 0
	t.oldLine = -1
	n, err := exec.Execute(t, ci)
	if err != nil {
		return err
	}
	return t.posCall(ci, n)
}

// posCall finishes frame ci, whose n results are on top of the stack:
// fires the return hook, moves the results into place and pops the frame.
func (t *Thread) posCall(ci *CallFrame, n int) error {
	if t.hookMask&MaskReturn != 0 {
		if err := t.returnHook(ci, n); err != nil {
			return err
		}
	}
	t.moveResults(ci.Func, n, ci.NResults)
	t.unlinkFrame()
	return nil
}

// moveResults moves the n values on top of the stack to res, adjusting
// their number to wanted.
func (t *Thread) moveResults(res, n, wanted int) {
	s := &t.stack
	first := s.top - n
	switch wanted {
	case 0:
		s.setTop(res)
		return
	case 1:
		if n == 0 {
			s.slots[res] = nil
		} else {
			s.slots[res] = s.slots[first]
		}
		s.setTop(res + 1)
		return
	case MultRet:
		wanted = n
	}
	copied := min(n, wanted)
	copy(s.slots[res:res+copied], s.slots[first:first+copied])
	end := res + wanted
	clear(s.slots[res+copied : end])
	if end < s.top {
		clear(s.slots[end:s.top])
	}
	s.top = end
}

// adjustResults keeps the current frame's Top above values a MultRet call
// left behind.
func (t *Thread) adjustResults(nresults int) {
	if nresults == MultRet && t.ci.Top < t.stack.top {
		t.ci.Top = t.stack.top
	}
}

// TailCall is called by the dispatch loop for a call in tail position of
// the current interpreted frame. The callee sits at slot fn followed by
// nargs arguments. An interpreted callee reuses the current frame and
// TailCall returns -1: the dispatch loop should continue with the frame's
// new function. A native callee is called normally and the number of
// results it left at fn is returned.
func (t *Thread) TailCall(fn, nargs int) (int, error) {
	ci := t.ci
	if !ci.IsLua() {
		return 0, runtimeError(KindAPI, StatusRuntimeError, "tail call outside an interpreted frame")
	}
	switch f := t.stack.slots[fn].(type) {
	case Function:
		return t.tailCallNative(fn, f)
	case func(*Thread) (int, error):
		return t.tailCallNative(fn, f)
	case *Closure:
		p := f.Proto
		if err := t.GrowStack(p.MaxStack); err != nil {
			return 0, err
		}
		copy(t.stack.slots[ci.Func:], t.stack.slots[fn:fn+1+nargs])
		top := ci.Func + 1 + nargs
		t.stack.setTop(top)
		for ; nargs < p.NumParams; nargs++ {
			t.stack.slots[t.stack.top] = nil
			t.stack.top++
		}
		ci.Top = ci.Func + 1 + p.MaxStack
		ci.SavedPC = 0
		ci.Kind |= CallTail
		t.oldPC = 0
		t.oldLine = -1
		if t.hookMask&MaskCall != 0 {
			if err := t.callHook(ci, HookTailCall); err != nil {
				return 0, err
			}
		}
		return -1, nil
	default:
		return 0, runtimeError(KindRuntime, StatusRuntimeError, "attempt to call a %s value", TypeOf(f))
	}
}

func (t *Thread) tailCallNative(fn int, f Function) (int, error) {
	t.stack.setTop(max(t.stack.top, fn+1))
	if err := t.callNative(fn, MultRet, f); err != nil {
		return 0, err
	}
	return t.stack.top - fn, nil
}

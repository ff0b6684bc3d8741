package state

// Resume starts or continues the coroutine t on behalf of from, passing
// args. It returns ResumeYield with the yielded values, ResumeOK with the
// body's return values once it finishes, or ResumeError. A coroutine that is
// not suspended is left untouched and the error matches
// ErrResumeNonSuspended.
func (t *Thread) Resume(from *Thread, args ...Value) (ResumeState, []Value, error) {
	g := t.g
	if g.aborted != nil {
		return ResumeError, nil, ErrVMAborted
	}
	if from != nil && from.g != g {
		return ResumeError, nil, ErrCrossGlobal
	}
	if err := t.checkResumable(); err != nil {
		return ResumeError, nil, err
	}
	var base uint32
	if from != nil {
		base = from.nCcalls & nativeCallsMask
	}
	if int(base) >= g.opts.MaxNativeCalls {
		return ResumeError, nil, runtimeError(KindCallDepthExceeded, StatusRuntimeError, "native call stack overflow")
	}
	if !t.CheckStack(len(args)) {
		return ResumeError, nil, runtimeError(KindStackOverflow, StatusRuntimeError, "too many arguments to resume")
	}

	prevRunning := g.running
	g.running = t
	t.nCcalls = base + 1
	cp := t.enterProtectedAt(t.stack.top, &t.baseCI, 0)
	copy(t.stack.slots[t.stack.top:], args)
	t.stack.top += len(args)

	var err error
	if t.status == StatusOK {
		err = t.call(t.stack.top-len(args)-1, MultRet, 0)
	} else {
		t.status = StatusOK
		err = t.resumeYielded(len(args))
	}
	for err != nil && !isYield(err) {
		t.raiseOwned(cp, err)
		if cp.done {
			break
		}
		// Recovered into a yieldable protected call.
		t.errInFlight = nil
		err = t.unroll()
	}
	g.running = prevRunning

	switch {
	case err == nil:
		_ = t.ExitProtected(cp)
		results := t.popResults(t.stack.top - (t.baseCI.Func + 1))
		log.Debugf("thread %s: finished with %d results", t.id, len(results))
		return ResumeOK, results, nil
	case isYield(err):
		t.releaseCheckpoint(cp)
		results := t.popResults(t.nYield)
		return ResumeYield, results, nil
	}
	e := cp.err
	t.errInFlight = nil
	t.lastProtected = e.Status
	// A dead coroutine keeps nothing open.
	if ce := t.closeProtected(1, e); ce != nil {
		e = ce
	}
	t.stack.setTop(1)
	t.status = e.Status
	t.deathErr = e
	log.Debugf("thread %s: died: %s", t.id, e.Error())
	return ResumeError, nil, e
}

func (t *Thread) checkResumable() error {
	g := t.g
	if t.closed {
		return ErrResumeDead
	}
	switch t.status {
	case StatusYield:
		return nil
	case StatusOK:
		if t == g.main || t.ci != &t.baseCI {
			if t == g.running {
				return ErrResumeRunning
			}
			return ErrResumeNormal
		}
		if t.stack.top == t.baseCI.Func+1 {
			return ErrResumeDead
		}
		return nil
	default:
		return ErrResumeDead
	}
}

// popResults removes the top n values and returns them.
func (t *Thread) popResults(n int) []Value {
	out := make([]Value, n)
	copy(out, t.stack.slots[t.stack.top-n:t.stack.top])
	t.stack.setTop(t.stack.top - n)
	return out
}

// resumeYielded continues a coroutine suspended in a native frame. The
// resume arguments become the results of the yield, or are handed to the
// frame's continuation.
func (t *Thread) resumeYielded(nargs int) error {
	ci := t.ci
	n := nargs
	if ci.k != nil {
		var err error
		t.adjustResults(MultRet)
		n, err = ci.k(t, StatusYield, ci.ctx)
		if err != nil {
			return t.raiseAtBoundary(err)
		}
	}
	if err := t.posCall(ci, n); err != nil {
		return err
	}
	return t.unroll()
}

// unroll finishes every frame that was interrupted by a yield, from the
// innermost down to the base frame.
func (t *Thread) unroll() error {
	for t.ci != &t.baseCI {
		ci := t.ci
		if ci.IsLua() {
			exec := t.g.executor
			if exec == nil {
				return ErrNoExecutor
			}
			n, err := exec.Execute(t, ci)
			if err != nil {
				return err
			}
			if err := t.posCall(ci, n); err != nil {
				return err
			}
			continue
		}
		if err := t.finishNativeCall(ci); err != nil {
			return err
		}
	}
	return nil
}

func (t *Thread) finishNativeCall(ci *CallFrame) error {
	status := StatusYield
	if ci.Kind&CallYieldablePCall != 0 {
		status = t.finishPCallK(ci)
	}
	t.adjustResults(MultRet)
	if ci.k == nil {
		return t.posCall(ci, t.stack.top-(ci.Func+1))
	}
	n, err := ci.k(t, status, ci.ctx)
	if err != nil {
		return t.raiseAtBoundary(err)
	}
	return t.posCall(ci, n)
}

// Yield suspends the coroutine, handing the top n values to the resumer.
// A native function yields by returning the result of Yield.
func (t *Thread) Yield(n int) (int, error) {
	return t.YieldK(n, 0, nil)
}

// YieldK is Yield with a continuation that finishes the native function
// when the coroutine is resumed. Without one, the resume arguments become
// the function's results. Yield fails, leaving t untouched, inside a
// non-yieldable region.
func (t *Thread) YieldK(n, ctx int, k Continuation) (int, error) {
	if !t.IsYieldable() {
		if t.IsMain() {
			return 0, runtimeError(KindYieldAcrossBoundary, StatusRuntimeError, "attempt to yield from outside a coroutine")
		}
		return 0, runtimeError(KindYieldAcrossBoundary, StatusRuntimeError, "attempt to yield across a native-call boundary")
	}
	if n < 0 || n > t.Top() {
		return 0, runtimeError(KindAPI, StatusRuntimeError, "not enough values to yield")
	}
	t.status = StatusYield
	t.nYield = n
	t.ci.k = k
	t.ci.ctx = ctx
	return 0, errYield
}

// CoroutineStatus reports the status of co as seen from t.
func (t *Thread) CoroutineStatus(co *Thread) CoStatus {
	if t == co {
		return CoRunning
	}
	switch co.status {
	case StatusYield:
		return CoSuspended
	case StatusOK:
		if co == co.g.running {
			return CoRunning
		}
		if co.IsMain() || co.ci != &co.baseCI {
			return CoNormal
		}
		if co.stack.top == co.baseCI.Func+1 {
			return CoDead
		}
		return CoSuspended
	default:
		return CoDead
	}
}

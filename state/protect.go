package state

// Checkpoint is the record of an open protected region. Raising an error
// inside the region restores everything the checkpoint saved, runs pending
// close handlers above its rollback point and records the outcome.
type Checkpoint struct {
	prev *Checkpoint

	top       int
	ci        *CallFrame
	depth     int
	nCcalls   uint32
	allowHook bool
	errFunc   int

	status Status
	err    *Error
	done   bool
}

// Status returns the outcome of the region, StatusRunning while it is open.
func (cp *Checkpoint) Status() Status { return cp.status }

// Tripped reports whether an error unwound the region.
func (cp *Checkpoint) Tripped() bool { return cp.done && cp.err != nil }

// EnterProtected opens a protected region whose rollback point is the
// current top.
func (t *Thread) EnterProtected() *Checkpoint {
	return t.enterProtectedAt(t.stack.top, t.ci, t.depth)
}

func (t *Thread) enterProtectedAt(top int, ci *CallFrame, depth int) *Checkpoint {
	cp := &Checkpoint{
		prev:      t.errorJmp,
		top:       top,
		ci:        ci,
		depth:     depth,
		nCcalls:   t.nCcalls,
		allowHook: t.allowHook,
		errFunc:   t.errFunc,
		status:    StatusRunning,
	}
	t.errorJmp = cp
	t.lastProtected = StatusRunning
	return cp
}

// ExitProtected closes the region opened by cp. If an error unwound the
// region, that error is returned. A region left by a yield is released
// without recording an outcome.
func (t *Thread) ExitProtected(cp *Checkpoint) error {
	if cp.done {
		if cp.err == nil {
			return nil
		}
		if t.errInFlight == cp.err {
			t.errInFlight = nil
		}
		t.lastProtected = cp.status
		return cp.err
	}
	if t.errorJmp != cp {
		log.Warningf("thread %s: protected region exited out of order", t.id)
		return ErrCheckpointOrder
	}
	if t.status == StatusYield {
		t.releaseCheckpoint(cp)
		return nil
	}
	t.errorJmp = cp.prev
	cp.done = true
	cp.status = StatusOK
	t.lastProtected = StatusOK
	return nil
}

// releaseCheckpoint drops cp and every region opened after it, as a yield
// leaves all of them. Regions already closed are only marked.
func (t *Thread) releaseCheckpoint(cp *Checkpoint) {
	if t.onChain(cp) {
		for c := t.errorJmp; c != cp; c = c.prev {
			c.done = true
			c.status = StatusYield
		}
		t.errorJmp = cp.prev
	}
	cp.done = true
	cp.status = StatusYield
}

func (t *Thread) onChain(cp *Checkpoint) bool {
	for c := t.errorJmp; c != nil; c = c.prev {
		if c == cp {
			return true
		}
	}
	return false
}

// Protect runs fn in a protected region and returns the error that
// unwound it, or nil.
func (t *Thread) Protect(fn func() error) error {
	if e := t.runProtected(fn); e != nil {
		return e
	}
	return nil
}

func (t *Thread) runProtected(fn func() error) *Error {
	cp := t.EnterProtected()
	err := fn()
	if err != nil && !isYield(err) {
		t.raiseOwned(cp, err)
	}
	if err != nil && isYield(err) {
		t.releaseCheckpoint(cp)
		return asError(err)
	}
	if xerr := t.ExitProtected(cp); xerr != nil {
		return asError(xerr)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Raising
// ---------------------------------------------------------------------------

// Raise raises an error with the given status and error object. The
// innermost protected region is unwound before Raise returns; the caller
// must return the result unchanged so that it reaches the region's owner.
// Without a protected region the error is fatal to the VM.
func (t *Thread) Raise(status Status, v Value) error {
	if status == StatusOK || status == StatusYield || status == StatusRunning {
		status = StatusRuntimeError
	}
	return t.raise(&Error{Kind: KindRuntime, Status: status, Value: v})
}

// RaiseError raises err, keeping it as the cause of the raised error.
func (t *Thread) RaiseError(err error) error {
	return t.raise(asError(err))
}

func (t *Thread) raise(e *Error) *Error {
	if t.errInFlight != nil {
		// Something is already unwinding; the frames in between are dead.
		return t.errInFlight
	}
	cp := t.errorJmp
	if cp == nil {
		return t.fatal(e)
	}
	if e.Status == StatusRuntimeError && t.errFunc != 0 {
		e = t.callMessageHandler(e)
	}
	f := t.findYieldablePCall(cp)
	if f != nil {
		e = t.recoverInto(f, cp, e)
	} else {
		e = t.unwind(cp, e)
	}
	t.errInFlight = e
	t.recovered = f != nil
	return e
}

// raiseOwned trips cp, a region owned by the caller, with err unless an
// error already ended it. An error still in flight at this point unwound an
// inner region whose owner returned it without exiting that region, so it
// is raised again here. An error recovered into a yieldable protected call
// is left alone.
func (t *Thread) raiseOwned(cp *Checkpoint, err error) {
	if cp.done {
		return
	}
	if t.errInFlight != nil && !t.recovered {
		t.errInFlight = nil
	}
	t.raise(asError(err))
}

// raiseAtBoundary raises an error that came back from a native call unless
// it is already unwinding or is a yield.
func (t *Thread) raiseAtBoundary(err error) error {
	if isYield(err) {
		return err
	}
	if e, ok := err.(*Error); ok && (e == t.errInFlight || e.Kind == KindUnprotected) {
		return e
	}
	return t.raise(asError(err))
}

// unwind restores the state saved by cp, closes what was opened above its
// rollback point and pops it. It returns the error the region ends with.
func (t *Thread) unwind(cp *Checkpoint, e *Error) *Error {
	t.errorJmp = cp.prev
	t.ci = cp.ci
	t.depth = cp.depth
	t.nCcalls = cp.nCcalls
	t.allowHook = cp.allowHook
	e = t.closeProtected(cp.top, e)
	t.errFunc = cp.errFunc
	t.stack.setTop(cp.top)
	t.ShrinkStack()
	cp.status = e.Status
	cp.err = e
	cp.done = true
	t.lastProtected = e.Status
	return e
}

// findYieldablePCall returns the innermost frame above cp's frame that has
// a yieldable protected call in progress.
func (t *Thread) findYieldablePCall(cp *Checkpoint) *CallFrame {
	for ci := t.ci; ci != nil && ci != cp.ci; ci = ci.prev {
		if ci.Kind&CallYieldablePCall != 0 {
			return ci
		}
	}
	return nil
}

// recoverInto catches e in the yieldable protected call of frame f. The
// checkpoint of the resume stays open; the frame's continuation will see
// the error status when the coroutine is unrolled.
func (t *Thread) recoverInto(f *CallFrame, cp *Checkpoint, e *Error) *Error {
	t.ci = f
	t.depth = f.depth
	t.nCcalls = cp.nCcalls
	t.allowHook = f.oldAllowHook
	e = t.closeProtected(f.pcallFunc, e)
	t.stack.slots[f.pcallFunc] = e.Value
	t.stack.setTop(f.pcallFunc + 1)
	t.errFunc = f.oldErrFunc
	f.recoverStatus = e.Status
	t.lastProtected = e.Status
	t.ShrinkStack()
	return e
}

// callMessageHandler runs the message handler on a runtime error and
// returns the error carrying the handler's result. The handler itself runs
// without a handler; if it fails the result is an error in error handling.
func (t *Thread) callMessageHandler(e *Error) *Error {
	h := t.stack.slots[t.errFunc]
	if TypeOf(h) != TypeFunction {
		return &Error{Kind: e.Kind, Status: StatusErrorInHandler, Value: "error in error handling", cause: e}
	}
	saved := t.errFunc
	t.errFunc = 0
	t.handlingErr++
	var result Value
	herr := t.runProtected(func() error {
		if err := t.Push(h, e.Value); err != nil {
			return err
		}
		if err := t.call(t.stack.top-2, 1, nonYieldableUnit|1); err != nil {
			return err
		}
		result = t.stack.slots[t.stack.top-1]
		t.stack.setTop(t.stack.top - 1)
		return nil
	})
	t.handlingErr--
	t.errFunc = saved
	if herr != nil {
		return &Error{Kind: herr.Kind, Status: StatusErrorInHandler, Value: herr.Value, cause: e}
	}
	return &Error{Kind: e.Kind, Status: e.Status, Value: result, cause: e}
}

// fatal handles an error nothing is going to catch: the panic handler
// runs, the thread is reset and the VM refuses further work.
func (t *Thread) fatal(e *Error) *Error {
	if e.Kind == KindUnprotected {
		return e
	}
	fe := &Error{Kind: KindUnprotected, Status: e.Status, Value: e.Value, cause: e}
	g := t.g
	g.aborted = fe
	if g.panicFn != nil {
		g.panicFn(t, fe)
	} else {
		defaultPanic(t, fe)
	}
	t.errInFlight = nil
	t.status = e.Status
	t.deathErr = e
	_, _ = t.ResetThread()
	t.status = e.Status
	t.deathErr = e
	return fe
}

// ---------------------------------------------------------------------------
// Protected calls
// ---------------------------------------------------------------------------

// PCall calls the function below the top nargs arguments in protected
// mode. msgh is the stack index of a message handler, or 0. On error the
// error object replaces the function and the call's arguments, and the
// error is returned.
func (t *Thread) PCall(nargs, nresults, msgh int) error {
	return t.PCallK(nargs, nresults, msgh, 0, nil)
}

// PCallK is PCall with a continuation. When the thread can yield, a yield
// inside the call suspends the coroutine; on resumption k finishes the
// calling function, receiving StatusYield or the error status if the call
// failed after resumption.
func (t *Thread) PCallK(nargs, nresults, msgh, ctx int, k Continuation) error {
	if t.g.aborted != nil {
		return ErrVMAborted
	}
	fn := t.stack.top - nargs - 1
	if fn <= t.ci.Func {
		return runtimeError(KindAPI, StatusRuntimeError, "not enough elements for a protected call")
	}
	errFunc := 0
	if msgh != 0 {
		errFunc = t.AbsIndex(msgh)
	}
	ci := t.ci
	oldErrFunc := t.errFunc
	oldAllowHook := t.allowHook
	cp := t.enterProtectedAt(fn, ci, t.depth)
	t.errFunc = errFunc

	var err error
	if k != nil && t.IsYieldable() {
		ci.k = k
		ci.ctx = ctx
		ci.pcallFunc = fn
		ci.oldErrFunc = oldErrFunc
		ci.oldAllowHook = oldAllowHook
		ci.Kind |= CallYieldablePCall
		err = t.call(fn, nresults, 1)
	} else {
		err = t.call(fn, nresults, nonYieldableUnit|1)
	}

	switch {
	case err == nil:
		ci.Kind &^= CallYieldablePCall
		t.errFunc = oldErrFunc
		_ = t.ExitProtected(cp)
		t.adjustResults(nresults)
		return nil
	case isYield(err):
		t.releaseCheckpoint(cp)
		return err
	}
	t.raiseOwned(cp, err)
	ci.Kind &^= CallYieldablePCall
	e := cp.err
	_ = t.ExitProtected(cp)
	t.stack.slots[fn] = e.Value
	t.stack.setTop(fn + 1)
	return e
}

// finishPCallK completes a yieldable protected call of ci after the
// coroutine was resumed and returns the status its continuation sees.
func (t *Thread) finishPCallK(ci *CallFrame) Status {
	status := ci.recoverStatus
	if status == StatusOK || status == StatusYield {
		status = StatusYield
	} else {
		ci.recoverStatus = StatusOK
	}
	ci.Kind &^= CallYieldablePCall
	t.errFunc = ci.oldErrFunc
	return status
}

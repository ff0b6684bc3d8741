package state

import "sort"

// CloseHandler is run when a to-be-closed variable goes out of scope. v is
// the variable's value and err the error being propagated, nil on a normal
// exit. Returning an error replaces err; to keep err in the chain, wrap it.
type CloseHandler func(t *Thread, v Value, err error) error

type tbcEntry struct {
	index   int
	handler CloseHandler
}

// MarkToBeClosed marks the slot at idx as a to-be-closed variable. nil and
// false values need no closing and are ignored.
func (t *Thread) MarkToBeClosed(idx int, h CloseHandler) error {
	i := t.AbsIndex(idx)
	if i <= t.ci.Func || i >= t.stack.top {
		return runtimeError(KindAPI, StatusRuntimeError, "invalid index %d for to-be-closed variable", idx)
	}
	if IsFalsy(t.stack.slots[i]) {
		return nil
	}
	if h == nil {
		return runtimeError(KindRuntime, StatusRuntimeError, "variable got a non-closable value")
	}
	pos := sort.Search(len(t.tbc), func(j int) bool { return t.tbc[j].index >= i })
	if pos < len(t.tbc) && t.tbc[pos].index == i {
		return runtimeError(KindAPI, StatusRuntimeError, "slot %d is already to-be-closed", i)
	}
	t.tbc = append(t.tbc, tbcEntry{})
	copy(t.tbc[pos+1:], t.tbc[pos:])
	t.tbc[pos] = tbcEntry{index: i, handler: h}
	return nil
}

// ToBeClosedCount returns the number of pending to-be-closed variables.
func (t *Thread) ToBeClosedCount() int { return len(t.tbc) }

func (t *Thread) hasToBeClosed(level int) bool {
	n := len(t.tbc)
	return n > 0 && t.tbc[n-1].index >= level
}

// CloseDownTo runs the handlers of every to-be-closed variable at or above
// slot level, highest first. Each handler sees the error current at that
// point; a failing handler's error becomes the current one and the
// remaining handlers still run. The error current at the end is returned.
func (t *Thread) CloseDownTo(level int, err error) error {
	cur := err
	for t.hasToBeClosed(level) {
		n := len(t.tbc) - 1
		entry := t.tbc[n]
		t.tbc[n] = tbcEntry{}
		t.tbc = t.tbc[:n]
		if herr := t.runCloseHandler(entry, cur); herr != nil {
			cur = herr
		}
	}
	return cur
}

func (t *Thread) runCloseHandler(entry tbcEntry, cur error) error {
	v := t.stack.slots[entry.index]
	savedTop := t.stack.top
	if t.stack.top <= entry.index {
		t.stack.setTop(entry.index + 1)
	}
	perr := t.runProtected(func() error {
		if err := t.GrowStack(MinStack); err != nil {
			return err
		}
		t.nCcalls += nonYieldableUnit
		if err := entry.handler(t, v, cur); err != nil {
			return err
		}
		t.nCcalls -= nonYieldableUnit
		return nil
	})
	if t.stack.top > savedTop {
		t.stack.setTop(savedTop)
	}
	if perr != nil {
		return closeHandlerError(perr)
	}
	return nil
}

// closeProtected closes upvalues and to-be-closed variables at or above
// level while e is propagating and returns the error that results.
func (t *Thread) closeProtected(level int, e *Error) *Error {
	t.CloseUpvals(level)
	var in error
	if e != nil {
		in = e
	}
	out := t.CloseDownTo(level, in)
	if out == nil {
		return nil
	}
	return asError(out)
}

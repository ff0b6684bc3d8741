package state

import (
	"github.com/dustin/go-humanize"
)

// Stack is a thread's value stack. Slot 0 belongs to the base frame. Every
// reference into the stack is a slot index, so reallocation never leaves a
// reference dangling. The last reserve slots are kept free for error
// handling and are never handed out.
type Stack struct {
	slots   []Value
	top     int
	reserve int
}

// Size is the number of usable slots.
func (s *Stack) Size() int { return max(len(s.slots)-s.reserve, 0) }

// Top is the index of the first free slot.
func (s *Stack) Top() int { return s.top }

// Free is the number of usable slots above top.
func (s *Stack) Free() int { return s.Size() - s.top }

// Slot returns the value at absolute index i.
func (s *Stack) Slot(i int) Value {
	if i < 0 || i >= len(s.slots) {
		return nil
	}
	return s.slots[i]
}

// setTop moves top to n, clearing the slots it leaves behind.
func (s *Stack) setTop(n int) {
	if n < s.top {
		clear(s.slots[n:s.top])
	} else {
		clear(s.slots[s.top:n])
	}
	s.top = n
}

// ---------------------------------------------------------------------------
// Growth and shrinking
// ---------------------------------------------------------------------------

// GrowStack makes sure at least n slots are free above top. Growing past
// MaxStack extends the stack once to leave room for the error handler and
// returns a stack overflow error; asking for more while in that extension is
// an error in error handling.
func (t *Thread) GrowStack(n int) error {
	if t.stack.Free() >= n {
		return nil
	}
	return t.growStack(n)
}

func (t *Thread) growStack(n int) error {
	size := t.stack.Size()
	maxSize := t.g.opts.MaxStack
	if size > maxSize {
		return runtimeError(KindStackOverflow, StatusErrorInHandler, "error in error handling (stack overflow)")
	}
	if n < maxSize {
		newSize := 2 * size
		needed := t.stack.top + n
		if newSize > maxSize {
			newSize = maxSize
		}
		if newSize < needed {
			newSize = needed
		}
		if newSize <= maxSize {
			return t.reallocStack(newSize)
		}
	}
	if err := t.reallocStack(maxSize + errorStackExtra); err != nil {
		return err
	}
	return runtimeError(KindStackOverflow, StatusRuntimeError, "stack overflow")
}

// CheckStack makes room for n more values without raising. It reports
// whether the room is there.
func (t *Thread) CheckStack(n int) bool {
	ok := true
	if t.stack.Free() < n {
		if t.stackInUse()+n > t.g.opts.MaxStack {
			ok = false
		} else {
			ok = t.reallocStack(max(2*t.stack.Size(), t.stack.top+n)) == nil
		}
	}
	if ok && t.ci.Top < t.stack.top+n {
		t.ci.Top = t.stack.top + n
	}
	return ok
}

func (t *Thread) reallocStack(newSize int) error {
	g := t.g
	oldSize := t.stack.Size()
	oldBytes := int64(len(t.stack.slots)) * SlotBytes
	newBytes := int64(newSize+t.stack.reserve) * SlotBytes
	if err := g.opts.Allocator.Resize(oldBytes, newBytes); err != nil {
		return err
	}
	for _, o := range g.observers {
		o.BeforeStackResize(t, oldSize, newSize)
	}
	slots := make([]Value, newSize+t.stack.reserve)
	copy(slots, t.stack.slots)
	t.stack.slots = slots
	for _, o := range g.observers {
		o.AfterStackResize(t, oldSize, newSize)
	}
	log.Debugf("thread %s: stack %d -> %d slots (%s)", t.id, oldSize, newSize, humanize.IBytes(uint64(newBytes)))
	return nil
}

// stackInUse is the part of the stack some frame may still touch.
func (t *Thread) stackInUse() int {
	lim := t.stack.top
	for ci := t.ci; ci != nil; ci = ci.prev {
		if lim < ci.Top {
			lim = ci.Top
		}
	}
	res := lim + 1
	if res < MinStack {
		res = MinStack
	}
	return res
}

// ShrinkStack gives back stack space when much less than the current size
// is in use, and releases half of the cached frame nodes. A stack that grew
// into the overflow extension comes back under MaxStack here.
func (t *Thread) ShrinkStack() {
	inuse := t.stackInUse()
	maxSize := t.g.opts.MaxStack
	limit := 3 * inuse
	if inuse > maxSize/3 {
		limit = maxSize
	}
	if inuse <= maxSize && t.stack.Size() > limit {
		nsize := 2 * inuse
		if inuse > maxSize/2 {
			nsize = maxSize
		}
		// Shrinking never fails: it only releases memory.
		_ = t.reallocStack(nsize)
	}
	t.shrinkFrames()
}

// freeStack returns every slot to the allocator. Slot 0 and top stay
// meaningful for status queries; the slice itself is gone.
func (t *Thread) freeStack() {
	bytes := int64(len(t.stack.slots)) * SlotBytes
	if bytes == 0 {
		return
	}
	_ = t.g.opts.Allocator.Resize(bytes, 0)
	t.stack.slots = nil
	t.stack.top = 1
	log.Debugf("thread %s: released %s of stack", t.id, humanize.IBytes(uint64(bytes)))
}

// ---------------------------------------------------------------------------
// Index API
// ---------------------------------------------------------------------------

// AbsIndex converts an index relative to the current frame into an absolute
// slot index. Positive indices count from the first argument, negative ones
// from the top.
func (t *Thread) AbsIndex(idx int) int {
	if idx > 0 {
		return t.ci.Func + idx
	}
	if idx < 0 {
		return t.stack.top + idx
	}
	return t.ci.Func
}

// Top returns the number of values in the current frame.
func (t *Thread) Top() int { return t.stack.top - (t.ci.Func + 1) }

// StackSize returns the number of usable stack slots.
func (t *Thread) StackSize() int { return t.stack.Size() }

// Get returns the value at idx in the current frame.
func (t *Thread) Get(idx int) Value {
	i := t.AbsIndex(idx)
	if i <= t.ci.Func || i >= t.stack.top {
		return nil
	}
	return t.stack.slots[i]
}

// Set stores v at idx in the current frame.
func (t *Thread) Set(idx int, v Value) {
	i := t.AbsIndex(idx)
	if i <= t.ci.Func || i >= t.stack.top {
		return
	}
	t.stack.slots[i] = v
}

// Push pushes values onto the stack, growing it as needed.
func (t *Thread) Push(vs ...Value) error {
	if err := t.GrowStack(len(vs)); err != nil {
		return err
	}
	copy(t.stack.slots[t.stack.top:], vs)
	t.stack.top += len(vs)
	if t.ci.Top < t.stack.top {
		t.ci.Top = t.stack.top
	}
	return nil
}

// SetTop sets the number of values in the current frame. New slots are nil;
// pending to-be-closed variables above the new top are closed first.
func (t *Thread) SetTop(n int) error {
	var newTop int
	if n >= 0 {
		newTop = t.ci.Func + 1 + n
	} else {
		newTop = t.stack.top + n + 1
	}
	if newTop <= t.ci.Func {
		return runtimeError(KindAPI, StatusRuntimeError, "invalid new top %d", n)
	}
	if newTop > t.stack.top {
		if err := t.GrowStack(newTop - t.stack.top); err != nil {
			return err
		}
		if t.ci.Top < newTop {
			t.ci.Top = newTop
		}
	} else if t.hasToBeClosed(newTop) {
		if err := t.CloseDownTo(newTop, nil); err != nil {
			return err
		}
	}
	t.stack.setTop(newTop)
	return nil
}

// Pop removes n values from the top of the stack.
func (t *Thread) Pop(n int) error {
	return t.SetTop(-n - 1)
}

// LiveStack returns the slots a collector has to treat as roots.
func (t *Thread) LiveStack() []Value {
	return t.stack.slots[:t.stack.top]
}

// XMove pops n values from t and pushes them onto to.
func (t *Thread) XMove(to *Thread, n int) error {
	if t == to || n == 0 {
		return nil
	}
	if t.g != to.g {
		return ErrCrossGlobal
	}
	if n > t.Top() {
		return runtimeError(KindAPI, StatusRuntimeError, "not enough elements to move")
	}
	if err := to.Push(t.stack.slots[t.stack.top-n : t.stack.top]...); err != nil {
		return err
	}
	t.stack.setTop(t.stack.top - n)
	return nil
}

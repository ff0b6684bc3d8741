package state

// UpVal is a variable captured by a closure. While open it refers to a
// stack slot of its thread; once closed it holds the value itself.
type UpVal struct {
	thread *Thread
	index  int
	value  Value
	next   *UpVal
}

// IsOpen reports whether uv still refers to a stack slot.
func (uv *UpVal) IsOpen() bool { return uv.thread != nil }

// Index returns the stack slot of an open upvalue, or -1.
func (uv *UpVal) Index() int {
	if uv.thread == nil {
		return -1
	}
	return uv.index
}

func (uv *UpVal) Get() Value {
	if uv.thread != nil {
		return uv.thread.stack.slots[uv.index]
	}
	return uv.value
}

func (uv *UpVal) Set(v Value) {
	if uv.thread != nil {
		uv.thread.stack.slots[uv.index] = v
		return
	}
	uv.value = v
}

// FindUpval returns the open upvalue for slot index, creating it if needed.
// The open list is kept sorted by index, highest first.
func (t *Thread) FindUpval(index int) *UpVal {
	pp := &t.openUpval
	for p := *pp; p != nil && p.index >= index; p = *pp {
		if p.index == index {
			return p
		}
		pp = &p.next
	}
	uv := &UpVal{thread: t, index: index, next: *pp}
	*pp = uv
	t.nOpenUpval++
	t.g.onUpvalueOpened(t)
	return uv
}

// CloseUpvals closes every open upvalue at or above level.
func (t *Thread) CloseUpvals(level int) {
	if t.openUpval == nil {
		return
	}
	for uv := t.openUpval; uv != nil && uv.index >= level; uv = t.openUpval {
		t.openUpval = uv.next
		uv.value = t.stack.slots[uv.index]
		uv.thread = nil
		uv.next = nil
		t.nOpenUpval--
	}
	if t.openUpval == nil {
		t.g.onLastUpvalueClosed(t)
	}
}

// OpenUpvalCount returns the number of open upvalues.
func (t *Thread) OpenUpvalCount() int { return t.nOpenUpval }

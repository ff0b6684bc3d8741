package state

import "testing"

func TestRegistryTracksThreadsWithOpenUpvalues(t *testing.T) {
	g := newTestGlobal(t, Options{})
	main := g.MainThread()

	a, _ := g.NewThread()
	b, _ := g.NewThread()
	for _, th := range []*Thread{main, a, b} {
		mustPush(t, th, "x", "y")
	}

	main.FindUpval(1)
	if main.Registered() {
		t.Errorf("main thread registered")
	}

	a.FindUpval(1)
	b.FindUpval(2)
	a.FindUpval(2)
	got := g.RegisteredThreads()
	if len(got) != 2 || got[0] != b || got[1] != a {
		t.Fatalf("registered = %v, want [b a]", got)
	}

	// Closing part of a's upvalues keeps it registered.
	a.CloseUpvals(2)
	if !a.Registered() || a.OpenUpvalCount() != 1 {
		t.Errorf("a: registered %v, %d open", a.Registered(), a.OpenUpvalCount())
	}
	a.CloseUpvals(1)
	if a.Registered() {
		t.Errorf("a still registered after its last upvalue closed")
	}
	got = g.RegisteredThreads()
	if len(got) != 1 || got[0] != b {
		t.Errorf("registered = %v, want [b]", got)
	}

	// Reopening registers again.
	a.FindUpval(1)
	if !a.Registered() || len(g.RegisteredThreads()) != 2 {
		t.Errorf("a not registered again")
	}
}

func TestOpenUpvalsSortedAndShared(t *testing.T) {
	g := newTestGlobal(t, Options{})
	co, _ := g.NewThread()
	mustPush(t, co, int64(1), int64(2), int64(3), int64(4))

	for _, i := range []int{2, 4, 1, 3} {
		co.FindUpval(i)
	}
	uv := co.FindUpval(3)
	if co.OpenUpvalCount() != 4 {
		t.Errorf("%d open upvalues, want 4", co.OpenUpvalCount())
	}
	want := []int{4, 3, 2, 1}
	got := co.OpenUpvals()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("open upvalues = %v, want %v", got, want)
		}
	}

	uv.Set(int64(30))
	if co.Get(3) != int64(30) {
		t.Errorf("open upvalue does not write through to the stack")
	}
	co.CloseUpvals(3)
	co.Set(3, int64(99))
	if uv.IsOpen() || uv.Index() != -1 || uv.Get() != int64(30) {
		t.Errorf("closed upvalue: open %v value %v", uv.IsOpen(), uv.Get())
	}
}

func TestCloseUnreachableUpvalues(t *testing.T) {
	g := newTestGlobal(t, Options{})
	var threads []*Thread
	var upvals []*UpVal
	for i := 0; i < 3; i++ {
		co, err := g.NewThread()
		if err != nil {
			t.Fatalf("NewThread: %v", err)
		}
		mustPush(t, co, int64(i))
		threads = append(threads, co)
		upvals = append(upvals, co.FindUpval(1))
	}

	n := g.CloseUnreachableUpvalues(func(th *Thread) bool { return th == threads[1] })
	if n != 2 {
		t.Errorf("closed upvalues of %d threads, want 2", n)
	}
	for i, uv := range upvals {
		if open := uv.IsOpen(); open != (i == 1) {
			t.Errorf("upvalue %d open = %v", i, open)
		}
		if uv.Get() != int64(i) {
			t.Errorf("upvalue %d = %v, want %d", i, uv.Get(), i)
		}
	}
	if got := g.RegisteredThreads(); len(got) != 1 || got[0] != threads[1] {
		t.Errorf("registered = %v, want only the reachable thread", got)
	}
}

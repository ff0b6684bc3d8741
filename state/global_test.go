package state

import (
	"errors"
	"strings"
	"testing"
)

func TestOptionsDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   Options
		want Options
	}{
		{"zero", Options{}, DefaultOptions()},
		{"small initial stack", Options{InitialStack: 3}, Options{
			MaxStack: DefaultMaxStack, MaxCallDepth: DefaultMaxCallDepth,
			MaxNativeCalls: DefaultMaxNativeCalls, InitialStack: MinStack, ExtraStack: DefaultExtraStack,
		}},
		{"initial above max", Options{MaxStack: 100, InitialStack: 500}, Options{
			MaxStack: 100, MaxCallDepth: DefaultMaxCallDepth,
			MaxNativeCalls: DefaultMaxNativeCalls, InitialStack: 100, ExtraStack: DefaultExtraStack,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.withDefaults()
			if got.Allocator == nil {
				t.Errorf("no allocator installed")
			}
			got.Allocator = nil
			if got != tt.want {
				t.Errorf("withDefaults() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNewGlobal(t *testing.T) {
	g := newTestGlobal(t, Options{})
	main := g.MainThread()
	if !main.IsMain() || g.Running() != main {
		t.Fatalf("main thread not running")
	}
	if main.IsYieldable() {
		t.Errorf("main thread is yieldable")
	}
	if main.Stack().Size() != 2*MinStack {
		t.Errorf("initial stack size = %d", main.Stack().Size())
	}
	if g.Allocator().InUse() == 0 {
		t.Errorf("main stack not charged to the allocator")
	}
	if g.Err() != nil {
		t.Errorf("fresh VM reports %v", g.Err())
	}
}

func TestInternStrings(t *testing.T) {
	g := newTestGlobal(t, Options{})
	a := g.Intern("hello")
	b := g.Intern("hello")
	if a != b || !a.IsShort() {
		t.Errorf("short strings not shared")
	}
	long := strings.Repeat("x", MaxShortLen+1)
	if g.Intern(long) == g.Intern(long) {
		t.Errorf("long strings shared")
	}
	if g.StringCount() != 1 {
		t.Errorf("StringCount = %d, want 1", g.StringCount())
	}
	if a.String() != "hello" || a.Len() != 5 || TypeOf(a) != TypeString {
		t.Errorf("string accessors: %q %d %v", a.String(), a.Len(), TypeOf(a))
	}
}

func TestSweepStrings(t *testing.T) {
	g := newTestGlobal(t, Options{})
	keep := g.Intern("keep")
	g.Intern("drop1")
	g.Intern("drop2")
	removed := g.SweepStrings(func(s *String) bool { return s == keep })
	if removed != 2 || g.StringCount() != 1 {
		t.Errorf("removed %d, %d left", removed, g.StringCount())
	}
	if g.Intern("keep") != keep {
		t.Errorf("surviving string lost its identity")
	}
	for _, o := range g.Objects() {
		if s, ok := o.(*String); ok && s.String() != "keep" {
			t.Errorf("swept string %q still registered", s.String())
		}
	}
}

func TestObjectsAndThreads(t *testing.T) {
	g := newTestGlobal(t, Options{})
	co, err := g.NewThread()
	if err != nil {
		t.Fatalf("NewThread: %v", err)
	}
	cl := g.NewClosure(&Proto{}, 2)
	u := g.NewUserdata(42)

	seen := map[Object]bool{}
	for _, o := range g.Objects() {
		seen[o] = true
	}
	for _, o := range []Object{g.MainThread(), co, cl, u} {
		if !seen[o] {
			t.Errorf("%v not registered", o)
		}
	}
	threads := g.Threads()
	if len(threads) != 2 || threads[0] != g.MainThread() || threads[1] != co {
		t.Errorf("Threads() = %v", threads)
	}
	if len(cl.Upvals) != 2 || u.Value != 42 {
		t.Errorf("constructors dropped their arguments")
	}
}

func TestCloseThreadChecks(t *testing.T) {
	g := newTestGlobal(t, Options{})
	other := newTestGlobal(t, Options{})
	co, _ := other.NewThread()
	if _, err := g.CloseThread(co); !errors.Is(err, ErrCrossGlobal) {
		t.Errorf("closing another VM's thread = %v", err)
	}

	var closeErr error
	outer := newCoroutine(t, g, func(th *Thread) (int, error) {
		_, closeErr = g.CloseThread(th)
		return 0, nil
	})
	if _, _, err := outer.Resume(nil); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if closeErr == nil || !strings.Contains(closeErr.Error(), "running") {
		t.Errorf("closing the running coroutine = %v", closeErr)
	}
}

func TestCloseThreadReleasesStack(t *testing.T) {
	g := newTestGlobal(t, Options{MemoryLimit: 20000})
	base := g.Allocator().InUse()
	for i := 0; i < 100; i++ {
		co := newCoroutine(t, g, func(th *Thread) (int, error) {
			if !th.CheckStack(200) {
				return 0, errors.New("no room for 200 slots")
			}
			return th.Yield(0)
		})
		if _, _, err := co.Resume(nil); err != nil {
			t.Fatalf("Resume #%d: %v", i, err)
		}
		if _, err := g.CloseThread(co); err != nil {
			t.Fatalf("CloseThread #%d: %v", i, err)
		}
		if got := g.Allocator().InUse(); got != base {
			t.Fatalf("after closing #%d, %d bytes in use, want %d", i, got, base)
		}
		if status, err := g.CloseThread(co); err != nil || status != StatusOK {
			t.Fatalf("second CloseThread = %v, %v", status, err)
		}
		if got := g.Allocator().InUse(); got != base {
			t.Fatalf("closing twice changed the bytes in use to %d", got)
		}
		if _, _, err := co.Resume(nil); !errors.Is(err, ErrResumeDead) {
			t.Fatalf("resuming a closed thread = %v", err)
		}
		if st := g.MainThread().CoroutineStatus(co); st != CoDead {
			t.Fatalf("closed thread status = %v", st)
		}
	}
}

func TestValueHelpers(t *testing.T) {
	tests := []struct {
		v     Value
		typ   Type
		falsy bool
		str   string
	}{
		{nil, TypeNil, true, "nil"},
		{false, TypeBoolean, true, "false"},
		{true, TypeBoolean, false, "true"},
		{int64(-3), TypeNumber, false, "-3"},
		{1.5, TypeNumber, false, "1.5"},
		{"s", TypeString, false, "s"},
		{Function(nop), TypeFunction, false, ""},
	}
	for _, tt := range tests {
		if got := TypeOf(tt.v); got != tt.typ {
			t.Errorf("TypeOf(%v) = %v, want %v", tt.v, got, tt.typ)
		}
		if got := IsFalsy(tt.v); got != tt.falsy {
			t.Errorf("IsFalsy(%v) = %v", tt.v, got)
		}
		if tt.str != "" && ToString(tt.v) != tt.str {
			t.Errorf("ToString(%v) = %q, want %q", tt.v, ToString(tt.v), tt.str)
		}
	}
}

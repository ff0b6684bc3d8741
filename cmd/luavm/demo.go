package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/chazu/luavm/state"
)

// program is the Proto.Code run by executor: a Go function standing in for
// compiled bytecode. Returning -1 means the frame was reused by a tail call.
type program func(th *state.Thread, ci *state.CallFrame) (int, error)

var executor = state.ExecutorFunc(func(th *state.Thread, ci *state.CallFrame) (int, error) {
	for {
		cl := th.Stack().Slot(ci.Func).(*state.Closure)
		n, err := cl.Proto.Code.(program)(th, ci)
		if err != nil || n >= 0 {
			return n, err
		}
	}
})

func newVM() *state.Global {
	g := state.NewGlobal(cfg.Options())
	g.SetExecutor(executor)
	return g
}

// countdown returns an interpreted function that calls itself n times, in
// tail position when tail is set, and reports the deepest frame chain.
func countdown(g *state.Global, tail bool, deepest *int) *state.Closure {
	p := &state.Proto{NumParams: 1, MaxStack: 4, Source: "countdown"}
	cl := g.NewClosure(p, 0)
	p.Code = program(func(th *state.Thread, ci *state.CallFrame) (int, error) {
		*deepest = max(*deepest, th.Depth())
		n := th.Stack().Slot(ci.Func + 1).(int64)
		if n == 0 {
			return 1, th.Push("done")
		}
		fn := th.Stack().Top()
		if err := th.Push(cl, n-1); err != nil {
			return 0, err
		}
		if tail {
			return th.TailCall(fn, 1)
		}
		if err := th.Call(1, 1); err != nil {
			return 0, err
		}
		return 1, nil
	})
	return cl
}

type scenario struct {
	about string
	run   func(w io.Writer, g *state.Global) error
}

var scenarios = map[string]scenario{
	"tailcall":  {"10000 tail calls in constant frame depth", demoTailCall},
	"overflow":  {"non-tail recursion stopped at the call depth limit", demoOverflow},
	"generator": {"a coroutine yielding values to its resumer", demoGenerator},
	"close":     {"to-be-closed variables closed while an error unwinds", demoClose},
	"hooks":     {"call and return hook events", demoHooks},
}

var demoCmd = &cobra.Command{
	Use:   "demo [scenario...]",
	Short: "Run demo scenarios (all of them by default)",
	Long:  "Run demo scenarios against a fresh VM each.\n\nScenarios:\n" + scenarioList(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			args = scenarioNames()
		}
		w := cmd.OutOrStdout()
		failed := 0
		for _, name := range args {
			sc, found := scenarios[name]
			if !found {
				return errors.Errorf("unknown scenario %q", name)
			}
			g := newVM()
			fmt.Fprintf(w, "== %s: %s\n", name, sc.about)
			if err := sc.run(w, g); err != nil {
				fmt.Fprintf(w, "   %s %v\n", fail("FAIL"), err)
				failed++
				continue
			}
			fmt.Fprintf(w, "   %s (stack memory %s)\n", ok("ok"), humanize.IBytes(uint64(g.Allocator().InUse())))
		}
		if failed > 0 {
			return errors.Errorf("%d scenario(s) failed", failed)
		}
		return nil
	},
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func scenarioList() string {
	var b strings.Builder
	for _, name := range scenarioNames() {
		fmt.Fprintf(&b, "  %-10s %s\n", name, scenarios[name].about)
	}
	return b.String()
}

func demoTailCall(w io.Writer, g *state.Global) error {
	th := g.MainThread()
	deepest := 0
	if err := th.Push(countdown(g, true, &deepest), int64(10000)); err != nil {
		return err
	}
	if err := th.PCall(1, 1, 0); err != nil {
		return err
	}
	fmt.Fprintf(w, "   result %s, deepest frame chain %d\n", state.ToString(th.Get(-1)), deepest)
	if deepest != 1 {
		return errors.Errorf("tail calls grew the frame chain to %d", deepest)
	}
	return th.Pop(1)
}

func demoOverflow(w io.Writer, g *state.Global) error {
	th := g.MainThread()
	deepest := 0
	if err := th.Push(countdown(g, false, &deepest), int64(100000)); err != nil {
		return err
	}
	err := th.PCall(1, 1, 0)
	if !errors.Is(err, state.ErrCallDepthExceeded) && !errors.Is(err, state.ErrStackOverflow) {
		return errors.Errorf("expected an overflow, got %v", err)
	}
	fmt.Fprintf(w, "   caught %q at depth %d, depth now %d\n", err, deepest, th.Depth())
	return th.Pop(1)
}

func demoGenerator(w io.Writer, g *state.Global) error {
	co, err := g.NewThread()
	if err != nil {
		return err
	}
	var step state.Continuation
	step = func(th *state.Thread, _ state.Status, i int) (int, error) {
		if i > 3 {
			return 0, nil
		}
		if err := th.Push(int64(i * i)); err != nil {
			return 0, err
		}
		return th.YieldK(1, i+1, step)
	}
	body := state.Function(func(th *state.Thread) (int, error) { return step(th, state.StatusOK, 1) })
	if err := co.Push(body); err != nil {
		return err
	}
	var got []string
	for {
		rs, vals, err := co.Resume(g.MainThread())
		if err != nil {
			return err
		}
		if rs == state.ResumeOK {
			break
		}
		got = append(got, state.ToString(vals[0]))
	}
	fmt.Fprintf(w, "   yielded %s, coroutine is %s\n", strings.Join(got, " "), g.MainThread().CoroutineStatus(co))
	return nil
}

func demoClose(w io.Writer, g *state.Global) error {
	th := g.MainThread()
	var closed []string
	fn := state.Function(func(th *state.Thread) (int, error) {
		for _, name := range []string{"db", "file", "socket"} {
			if err := th.Push(name); err != nil {
				return 0, err
			}
			if err := th.MarkToBeClosed(-1, func(_ *state.Thread, v state.Value, err error) error {
				closed = append(closed, fmt.Sprintf("%s (%v)", state.ToString(v), err))
				return nil
			}); err != nil {
				return 0, err
			}
		}
		return 0, th.Raise(state.StatusRuntimeError, "connection reset")
	})
	if err := th.Push(fn); err != nil {
		return err
	}
	err := th.PCall(0, 0, 0)
	if err == nil {
		return errors.New("expected the call to fail")
	}
	for _, c := range closed {
		fmt.Fprintf(w, "   closed %s\n", c)
	}
	if len(closed) != 3 {
		return errors.Errorf("closed %d variables, want 3", len(closed))
	}
	return th.Pop(1)
}

func demoHooks(w io.Writer, g *state.Global) error {
	th := g.MainThread()
	var events []string
	th.SetHook(func(th *state.Thread, ar *state.Debug) error {
		events = append(events, fmt.Sprintf("%s@%d", ar.Event, th.Depth()))
		return nil
	}, state.MaskCall|state.MaskReturn, 0)
	defer th.SetHook(nil, 0, 0)

	deepest := 0
	if err := th.Push(countdown(g, false, &deepest), int64(2)); err != nil {
		return err
	}
	if err := th.PCall(1, 1, 0); err != nil {
		return err
	}
	fmt.Fprintf(w, "   %s\n", strings.Join(events, " "))
	return th.Pop(1)
}

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/chazu/luavm/inspect"
	"github.com/chazu/luavm/state"
)

var (
	snapshotOut    string
	snapshotDecode string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Capture the threads of a VM with a suspended coroutine",
	Long: `Builds a VM whose coroutine is suspended inside nested calls, holding a
to-be-closed variable and an open upvalue, and captures every thread.
The snapshots are printed, and written as CBOR with --out. --decode prints
a previously written file instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		if snapshotDecode != "" {
			data, err := os.ReadFile(snapshotDecode)
			if err != nil {
				return errors.Wrapf(err, "cannot read %s", snapshotDecode)
			}
			ss, err := inspect.UnmarshalAll(data)
			if err != nil {
				return err
			}
			printSnapshots(w, ss)
			return nil
		}

		g := newVM()
		if _, err := suspendedCoroutine(g); err != nil {
			return err
		}
		ss := inspect.CaptureAll(g)
		printSnapshots(w, ss)
		if snapshotOut == "" {
			return nil
		}
		data, err := inspect.MarshalAll(ss)
		if err != nil {
			return err
		}
		if err := os.WriteFile(snapshotOut, data, 0644); err != nil {
			return errors.Wrapf(err, "cannot write %s", snapshotOut)
		}
		fmt.Fprintf(w, "wrote %s to %s\n", humanize.Bytes(uint64(len(data))), snapshotOut)
		return nil
	},
}

func init() {
	snapshotCmd.Flags().StringVarP(&snapshotOut, "out", "o", "", "write the snapshots as CBOR to this file")
	snapshotCmd.Flags().StringVar(&snapshotDecode, "decode", "", "print snapshots from a CBOR file")
}

// suspendedCoroutine parks a coroutine in a yield two native calls deep.
func suspendedCoroutine(g *state.Global) (*state.Thread, error) {
	co, err := g.NewThread()
	if err != nil {
		return nil, err
	}
	inner := state.Function(func(th *state.Thread) (int, error) {
		if err := th.Push("handle"); err != nil {
			return 0, err
		}
		if err := th.MarkToBeClosed(-1, func(*state.Thread, state.Value, error) error { return nil }); err != nil {
			return 0, err
		}
		th.FindUpval(th.Stack().Top() - 1)
		return th.Yield(0)
	})
	outer := state.Function(func(th *state.Thread) (int, error) {
		if err := th.Push(inner); err != nil {
			return 0, err
		}
		return 0, th.CallK(0, 0, 0, func(*state.Thread, state.Status, int) (int, error) { return 0, nil })
	})
	if err := co.Push(outer); err != nil {
		return nil, err
	}
	if _, _, err := co.Resume(g.MainThread()); err != nil {
		return nil, err
	}
	return co, nil
}

func printSnapshots(w io.Writer, ss []*inspect.Snapshot) {
	for _, s := range ss {
		name := "coroutine"
		if s.Main {
			name = "main"
		}
		fmt.Fprintf(w, "%s %s: %s, status %s\n", name, s.Thread, s.Coroutine, s.Status)
		fmt.Fprintf(w, "  stack %d/%d, depth %d, native %d, non-yieldable %d, checkpoints %d\n",
			s.StackTop, s.StackSize, s.Depth, s.NativeDepth, s.NonYieldableDepth, s.Checkpoints)
		for i, f := range s.Frames {
			fmt.Fprintf(w, "  #%d func %d top %d %s\n", i, f.Func, f.Top, f.Kind)
		}
		if len(s.ToBeClosed) > 0 {
			fmt.Fprintf(w, "  to-be-closed %v\n", s.ToBeClosed)
		}
		if len(s.OpenUpvals) > 0 {
			fmt.Fprintf(w, "  open upvalues %v (registered %v)\n", s.OpenUpvals, s.Registered)
		}
	}
}

// Package inspect captures point-in-time snapshots of a thread's state and
// encodes them as canonical CBOR for logging and tooling.
package inspect

import (
	"github.com/google/uuid"

	"github.com/chazu/luavm/state"
)

// Snapshot is a read-only view of one thread.
type Snapshot struct {
	VM        uuid.UUID `cbor:"1,keyasint"`
	Thread    uuid.UUID `cbor:"2,keyasint"`
	Main      bool      `cbor:"3,keyasint"`
	Status    string    `cbor:"4,keyasint"` // thread status code
	Coroutine string    `cbor:"5,keyasint"` // as seen from the running thread

	StackSize int `cbor:"6,keyasint"`
	StackTop  int `cbor:"7,keyasint"`

	Depth             int `cbor:"8,keyasint"`
	NativeDepth       int `cbor:"9,keyasint"`
	NonYieldableDepth int `cbor:"10,keyasint"`

	Frames      []Frame `cbor:"11,keyasint"`
	Checkpoints int     `cbor:"12,keyasint"`
	ToBeClosed  []int   `cbor:"13,keyasint,omitempty"`
	OpenUpvals  []int   `cbor:"14,keyasint,omitempty"`
	Registered  bool    `cbor:"15,keyasint"`
	HookMask    string  `cbor:"16,keyasint,omitempty"`
	HookCount   int     `cbor:"17,keyasint,omitempty"`
}

// Frame is one entry of the call chain, base frame first.
type Frame struct {
	Func     int    `cbor:"1,keyasint"`
	Top      int    `cbor:"2,keyasint"`
	Kind     string `cbor:"3,keyasint"`
	NResults int    `cbor:"4,keyasint"`
	SavedPC  int    `cbor:"5,keyasint,omitempty"`
}

// Capture takes a snapshot of t. It does not modify t.
func Capture(t *state.Thread) *Snapshot {
	g := t.Global()
	s := &Snapshot{
		VM:                g.ID(),
		Thread:            t.ID(),
		Main:              t.IsMain(),
		Status:            t.Status().String(),
		Coroutine:         g.Running().CoroutineStatus(t).String(),
		StackSize:         t.Stack().Size(),
		StackTop:          t.Stack().Top(),
		Depth:             t.Depth(),
		NativeDepth:       t.NativeDepth(),
		NonYieldableDepth: t.NonYieldableDepth(),
		Checkpoints:       t.CheckpointDepth(),
		ToBeClosed:        t.ToBeClosed(),
		OpenUpvals:        t.OpenUpvals(),
		Registered:        t.Registered(),
		HookMask:          t.HookMask().String(),
		HookCount:         t.HookCount(),
	}
	for _, ci := range t.Frames() {
		s.Frames = append(s.Frames, Frame{
			Func:     ci.Func,
			Top:      ci.Top,
			Kind:     ci.Kind.String(),
			NResults: ci.NResults,
			SavedPC:  ci.SavedPC,
		})
	}
	return s
}

// CaptureAll snapshots every live thread of g, main thread first.
func CaptureAll(g *state.Global) []*Snapshot {
	threads := g.Threads()
	out := make([]*Snapshot, 0, len(threads))
	for _, t := range threads {
		out = append(out, Capture(t))
	}
	return out
}

package state

// The Global keeps a list of the non-main threads that have open upvalues.
// A collector that finds such a thread unreachable must still close those
// upvalues, because closures elsewhere may reference them.

func (g *Global) onUpvalueOpened(t *Thread) {
	if t == g.main || t.inTwups {
		return
	}
	t.twups = g.twups
	g.twups = t
	t.inTwups = true
}

func (g *Global) onLastUpvalueClosed(t *Thread) {
	g.removeFromRegistry(t)
}

func (g *Global) removeFromRegistry(t *Thread) {
	if !t.inTwups {
		return
	}
	pp := &g.twups
	for p := *pp; p != nil; p = *pp {
		if p == t {
			*pp = t.twups
			break
		}
		pp = &p.twups
	}
	t.twups = nil
	t.inTwups = false
}

// RegisteredThreads returns the threads that currently hold open upvalues,
// most recently registered first.
func (g *Global) RegisteredThreads() []*Thread {
	var out []*Thread
	for t := g.twups; t != nil; t = t.twups {
		out = append(out, t)
	}
	return out
}

// CloseUnreachableUpvalues closes every open upvalue of registered threads
// for which reachable returns false and reports how many threads were
// affected. Those threads leave the registry.
func (g *Global) CloseUnreachableUpvalues(reachable func(*Thread) bool) int {
	n := 0
	for _, t := range g.RegisteredThreads() {
		if reachable(t) {
			continue
		}
		t.CloseUpvals(0)
		n++
	}
	return n
}

package state

// MaxShortLen is the longest string that gets interned.
const MaxShortLen = 40

// String is an immutable VM string. Short strings are interned, so two
// short strings with the same contents are the same *String.
type String struct {
	s     string
	short bool
}

func (s *String) String() string { return s.s }
func (s *String) Len() int       { return len(s.s) }
func (s *String) IsShort() bool  { return s.short }
func (*String) Type() Type       { return TypeString }

type stringTable struct {
	short map[string]*String
}

func newStringTable() *stringTable {
	return &stringTable{short: make(map[string]*String)}
}

// Intern returns the VM string for s. Strings up to MaxShortLen bytes are
// shared; longer ones get a fresh object every time.
func (g *Global) Intern(s string) *String {
	if len(s) > MaxShortLen {
		str := &String{s: s}
		g.Register(str)
		return str
	}
	if str, ok := g.strings.short[s]; ok {
		return str
	}
	str := &String{s: s, short: true}
	g.strings.short[s] = str
	g.Register(str)
	return str
}

// StringCount returns the number of interned short strings.
func (g *Global) StringCount() int {
	return len(g.strings.short)
}

// SweepStrings drops every interned string for which alive returns false and
// reports how many were removed.
func (g *Global) SweepStrings(alive func(*String) bool) int {
	removed := 0
	for k, str := range g.strings.short {
		if !alive(str) {
			delete(g.strings.short, k)
			g.Unregister(str)
			removed++
		}
	}
	return removed
}

package msl

import (
	"strconv"
)

// namer generates unique identifiers for MSL output.
type namer struct {
	usedNames map[string]struct{}

	// counters holds the next suffix per base name.
	counters map[string]uint32
}

func newNamer() *namer {
	return &namer{
		usedNames: make(map[string]struct{}),
		counters:  make(map[string]uint32),
	}
}

// call generates a unique name based on the given base.
// It escapes reserved keywords and adds numeric suffixes if needed.
func (n *namer) call(base string) string {
	escaped := Escape(base)
	if _, used := n.usedNames[escaped]; !used {
		n.usedNames[escaped] = struct{}{}
		return escaped
	}
	for {
		n.counters[escaped]++
		candidate := escaped + "_" + strconv.FormatUint(uint64(n.counters[escaped]), 10)
		if _, used := n.usedNames[candidate]; !used {
			n.usedNames[candidate] = struct{}{}
			return candidate
		}
	}
}

// reserve marks a name as used without returning it.
func (n *namer) reserve(name string) {
	n.usedNames[name] = struct{}{}
}

// scope returns a namer that starts from the names of n. Names taken in
// the child do not leak back.
func (n *namer) scope() *namer {
	c := newNamer()
	for k := range n.usedNames {
		c.usedNames[k] = struct{}{}
	}
	for k, v := range n.counters {
		c.counters[k] = v
	}
	return c
}

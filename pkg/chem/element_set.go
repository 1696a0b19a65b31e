package chem

import "math/bits"

// ElementSet is a bitset of element ids.
type ElementSet struct {
	words []uint64
}

// NewElementSet returns a set containing the given elements.
func NewElementSet(elements ...*Element) ElementSet {
	var s ElementSet
	for _, e := range elements {
		s.Add(e.id)
	}
	return s
}

// Add inserts id into the set.
func (s *ElementSet) Add(id int) {
	w := id >> 6
	for len(s.words) <= w {
		s.words = append(s.words, 0)
	}
	s.words[w] |= 1 << uint(id&63)
}

// Has reports whether id is in the set.
func (s ElementSet) Has(id int) bool {
	w := id >> 6
	if w >= len(s.words) {
		return false
	}
	return s.words[w]&(1<<uint(id&63)) != 0
}

// Len returns the number of ids in the set.
func (s ElementSet) Len() int {
	n := 0
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// IsEmpty reports whether the set has no members.
func (s ElementSet) IsEmpty() bool {
	for _, w := range s.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Union returns a new set containing the members of both sets.
func (s ElementSet) Union(o ElementSet) ElementSet {
	n := max(len(s.words), len(o.words))
	out := ElementSet{words: make([]uint64, n)}
	copy(out.words, s.words)
	for i, w := range o.words {
		out.words[i] |= w
	}
	return out
}

// Missing counts the members of s that are not in o.
func (s ElementSet) Missing(o ElementSet) int {
	n := 0
	for i, w := range s.words {
		if i < len(o.words) {
			w &^= o.words[i]
		}
		n += bits.OnesCount64(w)
	}
	return n
}

// IsSubsetOf reports whether every member of s is in o.
func (s ElementSet) IsSubsetOf(o ElementSet) bool {
	return s.Missing(o) == 0
}

// Each calls fn for every id in ascending order.
func (s ElementSet) Each(fn func(id int)) {
	for i, w := range s.words {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			fn(i<<6 | b)
			w &= w - 1
		}
	}
}

// Clone returns an independent copy.
func (s ElementSet) Clone() ElementSet {
	return ElementSet{words: append([]uint64(nil), s.words...)}
}

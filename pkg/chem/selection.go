package chem

import (
	"sort"
	"strings"
)

// Selection maps a subset of elements onto dense indices. Formula amount
// vectors are indexed by a Selection.
//
// Selections are immutable. Only the SelectionCache publishes snapshots of
// a lineage; each one has the previous snapshot's element list as a prefix,
// so an index that is valid in one snapshot refers to the same element in
// every later snapshot of that lineage.
type Selection struct {
	registry *Registry
	lineage  int
	version  int

	elements []*Element
	index    []int // element id -> position, -1 when absent
	mask     ElementSet

	weights  []float64
	nominal  []int
	valences []int

	carbon   int
	hydrogen int
	oxygen   int
	nitrogen int
}

// NewSelection builds a selection over elements. Unless pinned is set the
// elements are ordered by mass. Repeated elements fail with ErrDuplicateElement.
func NewSelection(r *Registry, elements []*Element, pinned bool) (*Selection, error) {
	seen := make(map[*Element]bool, len(elements))
	for _, e := range elements {
		if seen[e] {
			return nil, newError("selection", e.symbol, ErrDuplicateElement)
		}
		seen[e] = true
	}

	ordered := append([]*Element(nil), elements...)
	if !pinned {
		sort.SliceStable(ordered, func(i, j int) bool {
			return CompareElements(ordered[i], ordered[j]) < 0
		})
	}
	return buildSelection(r, -1, 0, ordered), nil
}

func buildSelection(r *Registry, lineage, version int, elements []*Element) *Selection {
	s := &Selection{
		registry: r,
		lineage:  lineage,
		version:  version,
		elements: elements,
		weights:  make([]float64, len(elements)),
		nominal:  make([]int, len(elements)),
		valences: make([]int, len(elements)),
		carbon:   -1,
		hydrogen: -1,
		oxygen:   -1,
		nitrogen: -1,
	}

	maxID := -1
	for _, e := range elements {
		maxID = max(maxID, e.id)
	}
	s.index = make([]int, maxID+1)
	for i := range s.index {
		s.index[i] = -1
	}

	for i, e := range elements {
		s.index[e.id] = i
		s.mask.Add(e.id)
		s.weights[i] = e.mass
		s.nominal[i] = e.nominalMass
		s.valences[i] = e.valence
		switch e.symbol {
		case "C":
			s.carbon = i
		case "H":
			s.hydrogen = i
		case "O":
			s.oxygen = i
		case "N":
			s.nitrogen = i
		}
	}
	return s
}

// Extend returns a selection that additionally contains the given elements.
// Elements already present are ignored; new ones are appended ordered by
// mass. When nothing is new the receiver itself is returned. The result is
// not part of any lineage; register it with the cache to share it.
func (s *Selection) Extend(elements ...*Element) *Selection {
	next := s.appended(elements)
	if next == nil {
		return s
	}
	return buildSelection(s.registry, -1, 0, next)
}

// successor is the next snapshot of the receiver's lineage. Only the cache
// may call it.
func (s *Selection) successor(elements []*Element) *Selection {
	next := s.appended(elements)
	if next == nil {
		return s
	}
	return buildSelection(s.registry, s.lineage, s.version+1, next)
}

// appended returns the receiver's elements followed by the new ones, or nil
// when every element is already selected.
func (s *Selection) appended(elements []*Element) []*Element {
	var added []*Element
	for _, e := range elements {
		if s.IndexOf(e) >= 0 || containsElement(added, e) {
			continue
		}
		added = append(added, e)
	}
	if len(added) == 0 {
		return nil
	}
	sort.SliceStable(added, func(i, j int) bool {
		return CompareElements(added[i], added[j]) < 0
	})

	next := make([]*Element, 0, len(s.elements)+len(added))
	next = append(next, s.elements...)
	return append(next, added...)
}

func containsElement(list []*Element, e *Element) bool {
	for _, x := range list {
		if x == e {
			return true
		}
	}
	return false
}

// IsPrefixOf reports whether every index of s refers to the same element
// in other, i.e. other could have been produced by extending s.
func (s *Selection) IsPrefixOf(other *Selection) bool {
	if len(s.elements) > len(other.elements) {
		return false
	}
	for i, e := range s.elements {
		if other.elements[i] != e {
			return false
		}
	}
	return true
}

// Covers reports whether every element of set is part of the selection.
func (s *Selection) Covers(set ElementSet) bool {
	return set.IsSubsetOf(s.mask)
}

// Len returns the number of elements.
func (s *Selection) Len() int { return len(s.elements) }

// ElementAt returns the element at index i.
func (s *Selection) ElementAt(i int) *Element { return s.elements[i] }

// IndexOf returns the index of e, or -1 if e is not selected.
func (s *Selection) IndexOf(e *Element) int {
	if e == nil || e.id >= len(s.index) {
		return -1
	}
	i := s.index[e.id]
	if i < 0 || s.elements[i] != e {
		return -1
	}
	return i
}

func (s *Selection) WeightAt(i int) float64  { return s.weights[i] }
func (s *Selection) NominalMassAt(i int) int { return s.nominal[i] }
func (s *Selection) ValenceAt(i int) int     { return s.valences[i] }

// Elements returns a copy of the selected elements in index order.
func (s *Selection) Elements() []*Element {
	return append([]*Element(nil), s.elements...)
}

// Mask returns the set of selected element ids.
func (s *Selection) Mask() ElementSet { return s.mask.Clone() }

func (s *Selection) CarbonIndex() int   { return s.carbon }
func (s *Selection) HydrogenIndex() int { return s.hydrogen }
func (s *Selection) OxygenIndex() int   { return s.oxygen }
func (s *Selection) NitrogenIndex() int { return s.nitrogen }

// Registry returns the registry the selected elements belong to.
func (s *Selection) Registry() *Registry { return s.registry }

// Lineage identifies the cache slot this snapshot belongs to, or -1 if the
// selection was never registered with a cache.
func (s *Selection) Lineage() int { return s.lineage }

// Version counts the extensions applied to the lineage so far.
func (s *Selection) Version() int { return s.version }

func (s *Selection) String() string {
	symbols := make([]string, len(s.elements))
	for i, e := range s.elements {
		symbols[i] = e.symbol
	}
	return "[" + strings.Join(symbols, ",") + "]"
}

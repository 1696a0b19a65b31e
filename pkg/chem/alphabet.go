package chem

import (
	"sort"
	"strings"
)

// ChemicalAlphabet is an ordered, duplicate-free list of elements used to
// parametrize formula generation. Elements are ordered by mass.
type ChemicalAlphabet struct {
	elements []*Element
	index    map[*Element]int
}

// NewChemicalAlphabet builds an alphabet from elements; duplicates are dropped.
func NewChemicalAlphabet(elements ...*Element) *ChemicalAlphabet {
	seen := make(map[*Element]bool, len(elements))
	var list []*Element
	for _, e := range elements {
		if e == nil || seen[e] {
			continue
		}
		seen[e] = true
		list = append(list, e)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return CompareElements(list[i], list[j]) < 0
	})

	a := &ChemicalAlphabet{elements: list, index: make(map[*Element]int, len(list))}
	for i, e := range list {
		a.index[e] = i
	}
	return a
}

// ParseAlphabet builds an alphabet from the elements named in formula text,
// e.g. "CHNOPS". Counts in the text are ignored.
func (r *Registry) ParseAlphabet(text string) (*ChemicalAlphabet, error) {
	var elements []*Element
	err := r.ParseFunc(text, func(e *Element, _ int) {
		elements = append(elements, e)
	})
	if err != nil {
		return nil, err
	}
	return NewChemicalAlphabet(elements...), nil
}

// AlphabetFor returns the alphabet of all elements used by the formulas.
func AlphabetFor(formulas ...Formula) *ChemicalAlphabet {
	var elements []*Element
	for _, f := range formulas {
		elements = append(elements, f.Elements()...)
	}
	return NewChemicalAlphabet(elements...)
}

func (a *ChemicalAlphabet) Len() int                 { return len(a.elements) }
func (a *ChemicalAlphabet) Get(i int) *Element       { return a.elements[i] }
func (a *ChemicalAlphabet) MassAt(i int) float64     { return a.elements[i].mass }
func (a *ChemicalAlphabet) ValenceAt(i int) int      { return a.elements[i].valence }
func (a *ChemicalAlphabet) Contains(e *Element) bool { return a.IndexOf(e) >= 0 }

// IndexOf returns the index of e, or -1.
func (a *ChemicalAlphabet) IndexOf(e *Element) int {
	if i, ok := a.index[e]; ok {
		return i
	}
	return -1
}

// Elements returns a copy of the element list.
func (a *ChemicalAlphabet) Elements() []*Element {
	return append([]*Element(nil), a.elements...)
}

// Union returns an alphabet holding the elements of both alphabets.
func (a *ChemicalAlphabet) Union(other *ChemicalAlphabet) *ChemicalAlphabet {
	return NewChemicalAlphabet(append(a.Elements(), other.elements...)...)
}

// Intersection returns an alphabet of the elements present in both.
func (a *ChemicalAlphabet) Intersection(other *ChemicalAlphabet) *ChemicalAlphabet {
	var common []*Element
	for _, e := range a.elements {
		if other.Contains(e) {
			common = append(common, e)
		}
	}
	return NewChemicalAlphabet(common...)
}

// Equal reports whether both alphabets hold the same elements.
func (a *ChemicalAlphabet) Equal(other *ChemicalAlphabet) bool {
	if len(a.elements) != len(other.elements) {
		return false
	}
	for i, e := range a.elements {
		if other.elements[i] != e {
			return false
		}
	}
	return true
}

// hillOrder returns the elements ordered C, H, then alphabetically.
func (a *ChemicalAlphabet) hillOrder() []*Element {
	list := a.Elements()
	hasCarbon := false
	for _, e := range list {
		if e.symbol == "C" {
			hasCarbon = true
		}
	}
	rank := func(e *Element) int {
		switch {
		case hasCarbon && e.symbol == "C":
			return 0
		case hasCarbon && e.symbol == "H":
			return 1
		}
		return 2
	}
	sort.SliceStable(list, func(i, j int) bool {
		ri, rj := rank(list[i]), rank(list[j])
		if ri != rj {
			return ri < rj
		}
		return list[i].symbol < list[j].symbol
	})
	return list
}

func (a *ChemicalAlphabet) String() string {
	var b strings.Builder
	for _, e := range a.hillOrder() {
		b.WriteString(e.symbol)
	}
	return b.String()
}

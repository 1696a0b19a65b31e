package chem

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Unbounded is the upper bound of elements without an explicit limit.
const Unbounded = math.MaxInt32

// FormulaConstraints restricts formula generation to an alphabet with
// per-element lower and upper bounds and a list of plausibility filters.
type FormulaConstraints struct {
	alphabet *ChemicalAlphabet
	lower    []int
	upper    []int
	filters  []FormulaFilter
}

// NewFormulaConstraints allows every element of alphabet without limit. When
// no filters are given the default valence filter is used.
func NewFormulaConstraints(alphabet *ChemicalAlphabet, filters ...FormulaFilter) *FormulaConstraints {
	if len(filters) == 0 {
		filters = []FormulaFilter{NewValenceFilter()}
	}
	c := &FormulaConstraints{
		alphabet: alphabet,
		lower:    make([]int, alphabet.Len()),
		upper:    make([]int, alphabet.Len()),
		filters:  append([]FormulaFilter(nil), filters...),
	}
	for i := range c.upper {
		c.upper[i] = Unbounded
	}
	return c
}

// ParseConstraints parses an alphabet with optional bounds, e.g.
// "CHNOP[5]S[0-3]". "[n]" sets an upper bound, "[lo-hi]" both bounds and
// "[lo-]" only a lower bound.
func (r *Registry) ParseConstraints(text string) (*FormulaConstraints, error) {
	text = strings.Join(strings.Fields(text), "")

	type bound struct {
		e      *Element
		lo, hi int
	}
	var bounds []bound
	pos := 0
	for _, loc := range r.boundsPattern().FindAllStringSubmatchIndex(text, -1) {
		if loc[0] != pos {
			return nil, gapError(text, pos, loc[0])
		}
		pos = loc[1]

		e, _ := r.Element(text[loc[2]:loc[3]])
		b := bound{e: e, lo: 0, hi: Unbounded}
		if loc[4] >= 0 && loc[5] > loc[4] {
			n, err := strconv.Atoi(text[loc[4]:loc[5]])
			if err != nil {
				return nil, newError("constraints", text, ErrRangeExceeded)
			}
			b.lo = n
		}
		if loc[6] >= 0 && loc[7] > loc[6] {
			n, err := strconv.Atoi(text[loc[6]:loc[7]])
			if err != nil {
				return nil, newError("constraints", text, ErrRangeExceeded)
			}
			b.hi = n
		}
		if b.lo > b.hi {
			return nil, newError("constraints", text, fmt.Errorf("%w: lower bound of %s exceeds upper bound", ErrMalformedFormulaText, e.symbol))
		}
		bounds = append(bounds, b)
	}
	if pos != len(text) {
		return nil, gapError(text, pos, len(text))
	}

	elements := make([]*Element, len(bounds))
	for i, b := range bounds {
		elements[i] = b.e
	}
	c := NewFormulaConstraints(NewChemicalAlphabet(elements...))
	for _, b := range bounds {
		i := c.alphabet.IndexOf(b.e)
		c.lower[i], c.upper[i] = b.lo, b.hi
	}
	return c, nil
}

// AllSubsetsOf allows every formula that is a subset of f: the alphabet is
// the elements of f and each upper bound is its amount in f.
func AllSubsetsOf(f Formula) *FormulaConstraints {
	return AllSubsetsOfAll(f)
}

// AllSubsetsOfAll allows every subset of any of the formulas; each upper
// bound is the largest amount found in the collection.
func AllSubsetsOfAll(formulas ...Formula) *FormulaConstraints {
	c := NewFormulaConstraints(AlphabetFor(formulas...))
	for i := range c.upper {
		c.upper[i] = 0
	}
	for _, f := range formulas {
		f.Visit(func(e *Element, n int) {
			i := c.alphabet.IndexOf(e)
			c.upper[i] = max(c.upper[i], n)
		})
	}
	return c
}

// Clone returns an independent copy.
func (c *FormulaConstraints) Clone() *FormulaConstraints {
	return &FormulaConstraints{
		alphabet: c.alphabet,
		lower:    append([]int(nil), c.lower...),
		upper:    append([]int(nil), c.upper...),
		filters:  append([]FormulaFilter(nil), c.filters...),
	}
}

// WithFilters returns a copy that uses exactly the given filters.
func (c *FormulaConstraints) WithFilters(filters ...FormulaFilter) *FormulaConstraints {
	out := c.Clone()
	out.filters = append([]FormulaFilter(nil), filters...)
	return out
}

func (c *FormulaConstraints) Alphabet() *ChemicalAlphabet { return c.alphabet }

func (c *FormulaConstraints) Filters() []FormulaFilter {
	return append([]FormulaFilter(nil), c.filters...)
}

// HasElement reports whether e is part of the alphabet.
func (c *FormulaConstraints) HasElement(e *Element) bool {
	return c.alphabet.Contains(e)
}

// Upperbound returns the upper bound of e; 0 for elements outside the alphabet.
func (c *FormulaConstraints) Upperbound(e *Element) int {
	if i := c.alphabet.IndexOf(e); i >= 0 {
		return c.upper[i]
	}
	return 0
}

// Lowerbound returns the lower bound of e.
func (c *FormulaConstraints) Lowerbound(e *Element) int {
	if i := c.alphabet.IndexOf(e); i >= 0 {
		return c.lower[i]
	}
	return 0
}

// SetUpperbound limits e to at most n atoms. Setting a positive bound for an
// element outside the alphabet fails with ErrNoSuchElement.
func (c *FormulaConstraints) SetUpperbound(e *Element, n int) error {
	i, err := c.boundIndex(e, n)
	if i >= 0 {
		c.upper[i] = n
	}
	return err
}

// SetLowerbound requires at least n atoms of e.
func (c *FormulaConstraints) SetLowerbound(e *Element, n int) error {
	i, err := c.boundIndex(e, n)
	if i >= 0 {
		c.lower[i] = n
	}
	return err
}

// SetBound sets both bounds of e.
func (c *FormulaConstraints) SetBound(e *Element, lo, hi int) error {
	if lo > hi {
		return newError("set bound", e.symbol, ErrRangeExceeded)
	}
	i, err := c.boundIndex(e, max(lo, hi))
	if i >= 0 {
		c.lower[i], c.upper[i] = lo, hi
	}
	return err
}

func (c *FormulaConstraints) boundIndex(e *Element, n int) (int, error) {
	if n < 0 {
		return -1, newError("set bound", e.symbol, ErrRangeExceeded)
	}
	i := c.alphabet.IndexOf(e)
	if i < 0 && n > 0 {
		return -1, newError("set bound", e.symbol, ErrNoSuchElement)
	}
	return i, nil
}

// IsViolated reports whether f is rejected by a filter or breaks a bound.
// Elements outside the alphabet count as a violation.
func (c *FormulaConstraints) IsViolated(f Formula) bool {
	for _, filter := range c.filters {
		if !filter.Accept(f) {
			return true
		}
	}
	return c.violatesBounds(f)
}

// IsSatisfied is the negation of IsViolated.
func (c *FormulaConstraints) IsSatisfied(f Formula) bool {
	return !c.IsViolated(f)
}

// IsAlphabetViolated reports whether f uses an element outside the alphabet.
func (c *FormulaConstraints) IsAlphabetViolated(f Formula) bool {
	violated := false
	f.Visit(func(e *Element, _ int) {
		if !c.alphabet.Contains(e) {
			violated = true
		}
	})
	return violated
}

func (c *FormulaConstraints) violatesBounds(f Formula) bool {
	violated := false
	f.Visit(func(e *Element, n int) {
		if violated {
			return
		}
		i := c.alphabet.IndexOf(e)
		if i < 0 || n > c.upper[i] {
			violated = true
		}
	})
	if violated {
		return true
	}
	for i, lo := range c.lower {
		if lo > 0 && f.NumberOf(c.alphabet.elements[i]) < lo {
			return true
		}
	}
	return false
}

// ExtendedWithElements returns constraints over a wider alphabet. Existing
// bounds are kept; new elements are unbounded.
func (c *FormulaConstraints) ExtendedWithElements(elements ...*Element) *FormulaConstraints {
	out := NewFormulaConstraints(NewChemicalAlphabet(append(c.alphabet.Elements(), elements...)...))
	out.filters = append([]FormulaFilter(nil), c.filters...)
	for i, e := range c.alphabet.elements {
		j := out.alphabet.IndexOf(e)
		out.lower[j], out.upper[j] = c.lower[i], c.upper[i]
	}
	return out
}

// Extended merges two constraints: the alphabets are united, each upper
// bound is the larger and each lower bound the smaller of both, and the
// filter lists are united without duplicates.
func (c *FormulaConstraints) Extended(other *FormulaConstraints) *FormulaConstraints {
	out := NewFormulaConstraints(c.alphabet.Union(other.alphabet))
	out.filters = mergeFilters(c.filters, other.filters)
	for i, e := range out.alphabet.elements {
		inC, inO := c.HasElement(e), other.HasElement(e)
		out.upper[i] = max(c.Upperbound(e), other.Upperbound(e))
		if inC && inO {
			out.lower[i] = min(c.Lowerbound(e), other.Lowerbound(e))
		} else {
			out.lower[i] = 0
		}
	}
	return out
}

// Intersection returns constraints satisfied only by formulas that satisfy
// both: the common alphabet, the tighter bounds and the filters of both.
func (c *FormulaConstraints) Intersection(other *FormulaConstraints) *FormulaConstraints {
	out := NewFormulaConstraints(c.alphabet.Intersection(other.alphabet))
	out.filters = mergeFilters(c.filters, other.filters)
	for i, e := range out.alphabet.elements {
		out.upper[i] = min(c.Upperbound(e), other.Upperbound(e))
		out.lower[i] = max(c.Lowerbound(e), other.Lowerbound(e))
	}
	return out
}

func mergeFilters(a, b []FormulaFilter) []FormulaFilter {
	out := append([]FormulaFilter(nil), a...)
	for _, f := range b {
		dup := false
		for _, g := range out {
			if reflect.DeepEqual(f, g) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, f)
		}
	}
	return out
}

// String formats the constraints in the syntax read by ParseConstraints.
func (c *FormulaConstraints) String() string {
	var b strings.Builder
	for _, e := range c.alphabet.hillOrder() {
		i := c.alphabet.IndexOf(e)
		lo, hi := c.lower[i], c.upper[i]
		b.WriteString(e.symbol)
		switch {
		case lo == 0 && hi == Unbounded:
		case lo == 0:
			fmt.Fprintf(&b, "[%d]", hi)
		case hi == Unbounded:
			fmt.Fprintf(&b, "[%d-]", lo)
		default:
			fmt.Fprintf(&b, "[%d-%d]", lo, hi)
		}
	}
	return b.String()
}

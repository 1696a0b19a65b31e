package chem

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Formula is an immutable multiset of elements with signed amounts. The zero
// value is the empty formula. Amounts are stored densely against a shared
// Selection with trailing zeros trimmed; mass and hash are computed once.
type Formula struct {
	sel     *Selection
	amounts []int16
	mass    float64
	hash    uint64
}

func newFormula(sel *Selection, amounts []int16) Formula {
	n := len(amounts)
	for n > 0 && amounts[n-1] == 0 {
		n--
	}
	if n == 0 {
		return Formula{}
	}
	amounts = amounts[:n:n]

	f := Formula{sel: sel, amounts: amounts}
	var buf [8]byte
	for i, a := range amounts {
		if a == 0 {
			continue
		}
		f.mass += float64(a) * sel.weights[i]
		binary.LittleEndian.PutUint64(buf[:], uint64(sel.elements[i].id)<<16|uint64(uint16(a)))
		f.hash += xxhash.Sum64(buf[:])
	}
	return f
}

// FromAmounts builds a formula from an amount vector indexed by sel.
func FromAmounts(sel *Selection, amounts []int) (Formula, error) {
	if len(amounts) > sel.Len() {
		return Formula{}, newError("from amounts", "", ErrNoSuchElement)
	}
	buf := make([]int16, len(amounts))
	for i, a := range amounts {
		if a > math.MaxInt16 || a < math.MinInt16 {
			return Formula{}, newError("from amounts", sel.elements[i].symbol, ErrRangeExceeded)
		}
		buf[i] = int16(a)
	}
	return newFormula(sel, buf), nil
}

// FromMap builds a formula from element amounts, using a cached selection
// that covers every element with a non-zero amount.
func (r *Registry) FromMap(amounts map[*Element]int) (Formula, error) {
	f, err := r.fromMap(amounts)
	if err != nil {
		return Formula{}, newError("from map", "", err)
	}
	return f, nil
}

func (r *Registry) fromMap(amounts map[*Element]int) (Formula, error) {
	var set ElementSet
	for e, n := range amounts {
		if n == 0 {
			continue
		}
		if known, ok := r.ElementByID(e.id); !ok || known != e {
			return Formula{}, ErrUnknownElement
		}
		if n > math.MaxInt16 || n < math.MinInt16 {
			return Formula{}, ErrRangeExceeded
		}
		set.Add(e.id)
	}
	if set.IsEmpty() {
		return Formula{}, nil
	}

	sel := r.cache.SelectionFor(set)
	buf := make([]int16, sel.Len())
	for e, n := range amounts {
		if n != 0 {
			buf[sel.IndexOf(e)] = int16(n)
		}
	}
	return newFormula(sel, buf), nil
}

// SingleElement returns a formula holding n atoms of e.
func (r *Registry) SingleElement(e *Element, n int) (Formula, error) {
	f, err := r.fromMap(map[*Element]int{e: n})
	if err != nil {
		return Formula{}, newError("single element", e.symbol, err)
	}
	return f, nil
}

// EmptyFormula returns the empty formula.
func (r *Registry) EmptyFormula() Formula {
	return Formula{}
}

// Selection returns the selection the amounts are indexed by; nil for the
// empty formula.
func (f Formula) Selection() *Selection { return f.sel }

// Registry returns the registry the formula's elements belong to, or nil
// for the empty formula.
func (f Formula) Registry() *Registry {
	if f.sel == nil {
		return nil
	}
	return f.sel.registry
}

func (f Formula) amountAt(i int) int {
	if i < 0 || i >= len(f.amounts) {
		return 0
	}
	return int(f.amounts[i])
}

// Mass returns the monoisotopic mass.
func (f Formula) Mass() float64 { return f.mass }

// NominalMass returns the sum of nominal element masses.
func (f Formula) NominalMass() int {
	m := 0
	for i, a := range f.amounts {
		m += int(a) * f.sel.nominal[i]
	}
	return m
}

// AtomCount returns the signed sum of all amounts.
func (f Formula) AtomCount() int {
	n := 0
	for _, a := range f.amounts {
		n += int(a)
	}
	return n
}

// AbsAtomCount returns the sum of the absolute amounts.
func (f Formula) AbsAtomCount() int {
	n := 0
	for _, a := range f.amounts {
		if a < 0 {
			n -= int(a)
		} else {
			n += int(a)
		}
	}
	return n
}

// DoubledRDBE returns twice the ring and double bond equivalents,
// 2 + sum(amount * (valence - 2)). Odd values hint at a charged formula,
// negative values at an invalid one.
func (f Formula) DoubledRDBE() int {
	d := 2
	for i, a := range f.amounts {
		d += int(a) * (f.sel.valences[i] - 2)
	}
	return d
}

// RDBE returns the ring and double bond equivalents.
func (f Formula) RDBE() float64 {
	return float64(f.DoubledRDBE()) / 2
}

// MaybeCharged reports whether the doubled RDBE is odd.
func (f Formula) MaybeCharged() bool {
	return f.DoubledRDBE()%2 != 0
}

// NumberOf returns the amount of e.
func (f Formula) NumberOf(e *Element) int {
	if f.sel == nil {
		return 0
	}
	return f.amountAt(f.sel.IndexOf(e))
}

// NumberOfSymbol returns the amount of the element with the given symbol.
func (f Formula) NumberOfSymbol(symbol string) int {
	if f.sel == nil {
		return 0
	}
	e, ok := f.sel.registry.Element(symbol)
	if !ok {
		return 0
	}
	return f.NumberOf(e)
}

func (f Formula) Carbons() int {
	if f.sel == nil {
		return 0
	}
	return f.amountAt(f.sel.carbon)
}

func (f Formula) Hydrogens() int {
	if f.sel == nil {
		return 0
	}
	return f.amountAt(f.sel.hydrogen)
}

func (f Formula) Oxygens() int {
	if f.sel == nil {
		return 0
	}
	return f.amountAt(f.sel.oxygen)
}

func (f Formula) Nitrogens() int {
	if f.sel == nil {
		return 0
	}
	return f.amountAt(f.sel.nitrogen)
}

// IsEmpty reports whether every amount is zero.
func (f Formula) IsEmpty() bool { return len(f.amounts) == 0 }

// IsAllPositiveOrZero reports whether no amount is negative.
func (f Formula) IsAllPositiveOrZero() bool {
	for _, a := range f.amounts {
		if a < 0 {
			return false
		}
	}
	return true
}

// Visit calls fn for every element with a non-zero amount in selection order.
func (f Formula) Visit(fn func(e *Element, amount int)) {
	for i, a := range f.amounts {
		if a != 0 {
			fn(f.sel.elements[i], int(a))
		}
	}
}

// Elements returns the elements with a non-zero amount.
func (f Formula) Elements() []*Element {
	var elements []*Element
	f.Visit(func(e *Element, _ int) { elements = append(elements, e) })
	return elements
}

// NumberOfElements returns the number of distinct elements with a non-zero amount.
func (f Formula) NumberOfElements() int {
	n := 0
	for _, a := range f.amounts {
		if a != 0 {
			n++
		}
	}
	return n
}

// ElementSet returns the ids of the elements with a non-zero amount.
func (f Formula) ElementSet() ElementSet {
	var s ElementSet
	f.Visit(func(e *Element, _ int) { s.Add(e.id) })
	return s
}

// ToMap returns the non-zero amounts keyed by element.
func (f Formula) ToMap() map[*Element]int {
	m := make(map[*Element]int, len(f.amounts))
	f.Visit(func(e *Element, n int) { m[e] = n })
	return m
}

// IsSubtractable reports whether f - other has no negative amount.
func (f Formula) IsSubtractable(other Formula) bool {
	if f.IsAllPositiveOrZero() && other.IsAllPositiveOrZero() && other.mass > f.mass+1e-9 {
		return false
	}
	ok := true
	other.Visit(func(e *Element, n int) {
		if f.NumberOf(e) < n {
			ok = false
		}
	})
	if !ok {
		return false
	}
	f.Visit(func(e *Element, n int) {
		if n < 0 && other.NumberOf(e) > n {
			ok = false
		}
	})
	return ok
}

// Contains reports whether f holds at least as many atoms of every element as other.
func (f Formula) Contains(other Formula) bool {
	return f.IsSubtractable(other)
}

// Hash returns the structural hash. Equal formulas have equal hashes
// regardless of the selection they are stored in.
func (f Formula) Hash() uint64 { return f.hash }

// Equal reports whether both formulas hold the same amount of every element.
func (f Formula) Equal(other Formula) bool {
	if f.hash != other.hash || math.Abs(f.mass-other.mass) > 1e-6 {
		return false
	}
	if len(f.amounts) != 0 && f.sel == other.sel {
		if len(f.amounts) != len(other.amounts) {
			return false
		}
		for i := range f.amounts {
			if f.amounts[i] != other.amounts[i] {
				return false
			}
		}
		return true
	}
	if f.NumberOfElements() != other.NumberOfElements() {
		return false
	}
	equal := true
	f.Visit(func(e *Element, n int) {
		if other.NumberOf(e) != n {
			equal = false
		}
	})
	return equal
}

// Compare orders formulas by mass, then by their Hill notation.
func (f Formula) Compare(other Formula) int {
	switch {
	case f.Equal(other):
		return 0
	case f.mass < other.mass:
		return -1
	case f.mass > other.mass:
		return 1
	}
	return strings.Compare(f.String(), other.String())
}

// IsCHNO reports whether the formula contains only carbon, hydrogen,
// nitrogen and oxygen.
func (f Formula) IsCHNO() bool {
	return f.onlySymbols("C", "H", "N", "O")
}

// IsCHNOPS is like IsCHNO but also allows phosphorus and sulfur.
func (f Formula) IsCHNOPS() bool {
	return f.onlySymbols("C", "H", "N", "O", "P", "S")
}

func (f Formula) onlySymbols(symbols ...string) bool {
	ok := true
	f.Visit(func(e *Element, _ int) {
		for _, s := range symbols {
			if e.symbol == s {
				return
			}
		}
		ok = false
	})
	return ok
}

func carbonDenominator(c int) float64 {
	if c == 0 {
		return 0.8
	}
	return float64(c)
}

// HydrogenToCarbonRatio returns H/C, using 0.8 for formulas without carbon.
func (f Formula) HydrogenToCarbonRatio() float64 {
	return float64(f.Hydrogens()) / carbonDenominator(f.Carbons())
}

// HeteroToCarbonRatio returns the ratio of atoms other than C and H to C.
func (f Formula) HeteroToCarbonRatio() float64 {
	hetero := f.AtomCount() - f.Carbons() - f.Hydrogens()
	return float64(hetero) / carbonDenominator(f.Carbons())
}

// HeteroWithoutOxygenToCarbonRatio returns the ratio of atoms other than C, H and O to C.
func (f Formula) HeteroWithoutOxygenToCarbonRatio() float64 {
	hetero := f.AtomCount() - f.Carbons() - f.Hydrogens() - f.Oxygens()
	return float64(hetero) / carbonDenominator(f.Carbons())
}

// Without returns a copy of f with the given elements removed.
func (f Formula) Without(elements ...*Element) Formula {
	if f.sel == nil {
		return f
	}
	buf := append([]int16(nil), f.amounts...)
	for _, e := range elements {
		if i := f.sel.IndexOf(e); i >= 0 && i < len(buf) {
			buf[i] = 0
		}
	}
	return newFormula(f.sel, buf)
}

// WithoutHydrogen returns a copy of f without hydrogen.
func (f Formula) WithoutHydrogen() Formula {
	if f.sel == nil || f.sel.hydrogen < 0 {
		return f
	}
	return f.Without(f.sel.elements[f.sel.hydrogen])
}

package chem

import (
	"math"
)

// MutableFormula is an editable formula. Setting an element outside its
// selection widens the selection through the registry cache. The registry's
// maximum selection size limits the elements with a non-zero amount, not the
// length of the cached selection, which also holds the cache's starter
// elements.
type MutableFormula struct {
	registry *Registry
	sel      *Selection
	amounts  []int16
}

// NewMutableFormula returns an empty mutable formula.
func (r *Registry) NewMutableFormula() *MutableFormula {
	return &MutableFormula{registry: r}
}

// NewMutableFormula returns an empty mutable formula laid out by sel.
func NewMutableFormula(sel *Selection) *MutableFormula {
	return &MutableFormula{
		registry: sel.registry,
		sel:      sel,
		amounts:  make([]int16, sel.Len()),
	}
}

// Mutable returns an editable copy of f. The empty formula is bound to the
// default registry.
func (f Formula) Mutable() *MutableFormula {
	if f.sel == nil {
		return Default().NewMutableFormula()
	}
	m := NewMutableFormula(f.sel)
	copy(m.amounts, f.amounts)
	return m
}

// Selection returns the current selection, nil while the formula is empty.
func (m *MutableFormula) Selection() *Selection { return m.sel }

// Get returns the amount of e.
func (m *MutableFormula) Get(e *Element) int {
	if m.sel == nil {
		return 0
	}
	i := m.sel.IndexOf(e)
	if i < 0 {
		return 0
	}
	return int(m.amounts[i])
}

// Set replaces the amount of e.
func (m *MutableFormula) Set(e *Element, n int) error {
	if n > math.MaxInt16 || n < math.MinInt16 {
		return newError("set", e.symbol, ErrRangeExceeded)
	}
	i := -1
	if m.sel != nil {
		i = m.sel.IndexOf(e)
	}
	if i < 0 {
		if n == 0 {
			return nil
		}
		if err := m.widen(e); err != nil {
			return err
		}
		i = m.sel.IndexOf(e)
	}
	m.amounts[i] = int16(n)
	return nil
}

func (m *MutableFormula) widen(e *Element) error {
	if known, ok := m.registry.ElementByID(e.id); !ok || known != e {
		return newError("set", e.symbol, ErrUnknownElement)
	}

	var used ElementSet
	for i, a := range m.amounts {
		if a != 0 {
			used.Add(m.sel.elements[i].id)
		}
	}
	// Counts elements in use; the shared selection may be longer.
	if used.Len()+1 > m.registry.maxSelectionSize {
		return newError("set", e.symbol, ErrNoSuchElement)
	}
	used.Add(e.id)

	next := m.registry.cache.SelectionFor(used)
	buf := make([]int16, next.Len())
	for i, a := range m.amounts {
		if a != 0 {
			buf[next.IndexOf(m.sel.elements[i])] = a
		}
	}
	m.sel, m.amounts = next, buf
	return nil
}

// Add adds n atoms of e.
func (m *MutableFormula) Add(e *Element, n int) error {
	return m.Set(e, m.Get(e)+n)
}

// AddFormula adds every amount of f.
func (m *MutableFormula) AddFormula(f Formula) error {
	return m.apply(f, 1)
}

// SubtractFormula subtracts every amount of f.
func (m *MutableFormula) SubtractFormula(f Formula) error {
	return m.apply(f, -1)
}

func (m *MutableFormula) apply(f Formula, sign int) error {
	var err error
	f.Visit(func(e *Element, n int) {
		if err == nil {
			err = m.Set(e, m.Get(e)+sign*n)
		}
	})
	return err
}

// Multiply scales every amount by k in place.
func (m *MutableFormula) Multiply(k int) error {
	buf := make([]int16, len(m.amounts))
	for i, a := range m.amounts {
		v := int(a) * k
		if v > math.MaxInt16 || v < math.MinInt16 {
			return newError("multiply", m.sel.elements[i].symbol, ErrRangeExceeded)
		}
		buf[i] = int16(v)
	}
	m.amounts = buf
	return nil
}

// Divide divides every amount by k in place. On error the formula is unchanged.
func (m *MutableFormula) Divide(k int) error {
	if k == 0 {
		return newError("divide", "", ErrDivisionByZero)
	}
	buf := make([]int16, len(m.amounts))
	for i, a := range m.amounts {
		if int(a)%k != 0 {
			return newError("divide", m.sel.elements[i].symbol, ErrInexactDivision)
		}
		v := int(a) / k
		if v > math.MaxInt16 {
			return newError("divide", m.sel.elements[i].symbol, ErrRangeExceeded)
		}
		buf[i] = int16(v)
	}
	m.amounts = buf
	return nil
}

// Negate flips the sign of every amount.
func (m *MutableFormula) Negate() error {
	return m.Multiply(-1)
}

// Freeze returns an immutable snapshot of the current amounts.
func (m *MutableFormula) Freeze() Formula {
	if m.sel == nil {
		return Formula{}
	}
	return newFormula(m.sel, append([]int16(nil), m.amounts...))
}

// Mass returns the monoisotopic mass of the current amounts.
func (m *MutableFormula) Mass() float64 {
	mass := 0.0
	for i, a := range m.amounts {
		mass += float64(a) * m.sel.weights[i]
	}
	return mass
}

func (m *MutableFormula) String() string {
	return m.Freeze().String()
}

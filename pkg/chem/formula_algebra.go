package chem

import (
	"fmt"
	"math"
)

// Add returns f + other. Operands stored in different selections are
// remapped into a selection covering both, which costs O(n) per call.
func (f Formula) Add(other Formula) (Formula, error) {
	return combine("add", f, other, func(a, b int) int { return a + b })
}

// Subtract returns f - other. The result may hold negative amounts.
func (f Formula) Subtract(other Formula) (Formula, error) {
	return combine("subtract", f, other, func(a, b int) int { return a - b })
}

// Union returns the per-element maximum of f and other.
func (f Formula) Union(other Formula) (Formula, error) {
	return combine("union", f, other, func(a, b int) int { return max(a, b) })
}

func combine(op string, f, g Formula, fn func(a, b int) int) (Formula, error) {
	sel, err := covering(f, g)
	if err != nil {
		return Formula{}, newError(op, "", err)
	}
	if sel == nil {
		return Formula{}, nil
	}

	buf := make([]int16, sel.Len())
	for i, e := range sel.elements {
		v := fn(f.NumberOf(e), g.NumberOf(e))
		if v > math.MaxInt16 || v < math.MinInt16 {
			return Formula{}, newError(op, e.symbol, ErrRangeExceeded)
		}
		buf[i] = int16(v)
	}
	return newFormula(sel, buf), nil
}

// covering picks the selection the result of a binary operation is stored in.
func covering(f, g Formula) (*Selection, error) {
	a, b := f.sel, g.sel
	switch {
	case a == nil:
		return b, nil
	case b == nil || a == b:
		return a, nil
	case a.registry != b.registry:
		return nil, fmt.Errorf("%w: operands belong to different registries", ErrNoSuchElement)
	}

	if a.lineage >= 0 && a.lineage == b.lineage {
		shorter, longer := a, b
		if a.Len() > b.Len() {
			shorter, longer = b, a
		}
		if shorter.IsPrefixOf(longer) {
			return longer, nil
		}
	}

	fu, gu := f.ElementSet(), g.ElementSet()
	if a.Covers(gu) {
		return a, nil
	}
	if b.Covers(fu) {
		return b, nil
	}
	return a.registry.cache.SelectionFor(fu.Union(gu)), nil
}

// Multiply scales every amount by k. Multiplying by zero yields the empty formula.
func (f Formula) Multiply(k int) (Formula, error) {
	if k == 0 || f.IsEmpty() {
		return Formula{}, nil
	}
	buf := make([]int16, len(f.amounts))
	for i, a := range f.amounts {
		v := int(a) * k
		if v > math.MaxInt16 || v < math.MinInt16 {
			return Formula{}, newError("multiply", f.sel.elements[i].symbol, ErrRangeExceeded)
		}
		buf[i] = int16(v)
	}
	return newFormula(f.sel, buf), nil
}

// Divide divides every amount by k. It fails with ErrDivisionByZero for
// k == 0 and with ErrInexactDivision if any amount is not a multiple of k.
func (f Formula) Divide(k int) (Formula, error) {
	if k == 0 {
		return Formula{}, newError("divide", f.String(), ErrDivisionByZero)
	}
	buf := make([]int16, len(f.amounts))
	for i, a := range f.amounts {
		if int(a)%k != 0 {
			return Formula{}, newError("divide", f.String(), fmt.Errorf("%w: %s by %d", ErrInexactDivision, f.sel.elements[i].symbol, k))
		}
		v := int(a) / k
		if v > math.MaxInt16 || v < math.MinInt16 {
			return Formula{}, newError("divide", f.String(), ErrRangeExceeded)
		}
		buf[i] = int16(v)
	}
	return newFormula(f.sel, buf), nil
}

// Negate returns -f.
func (f Formula) Negate() (Formula, error) {
	return f.Multiply(-1)
}

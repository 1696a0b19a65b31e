package chem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutableFormulaWidens(t *testing.T) {
	r := newTestRegistry(t)
	m := r.MustParse("C6H12O6").Mutable()
	sodium, _ := r.Element("Na")
	before := m.Selection()

	require.NoError(t, m.Add(sodium, 1))
	assert.Equal(t, 1, m.Get(sodium))
	assert.NotSame(t, before, m.Selection())
	assert.True(t, before.IsPrefixOf(m.Selection()))
	assert.Equal(t, "C6H12NaO6", m.String())

	f := m.Freeze()
	require.NoError(t, m.Set(sodium, 0))
	assert.Equal(t, "C6H12NaO6", f.String(), "frozen formulas do not follow later edits")
	assert.Equal(t, "C6H12O6", m.String())
}

func TestMutableFormulaMaxSelectionSize(t *testing.T) {
	r := newTestRegistry(t, WithMaxSelectionSize(3))
	m := r.NewMutableFormula()
	el := func(s string) *Element {
		e, _ := r.Element(s)
		return e
	}

	require.NoError(t, m.Set(el("Na"), 1))
	require.NoError(t, m.Set(el("K"), 1))
	require.NoError(t, m.Set(el("Cl"), 2))
	assert.ErrorIs(t, m.Set(el("Br"), 1), ErrNoSuchElement)
	assert.Equal(t, 0, m.Get(el("Br")))
	assert.Greater(t, m.sel.Len(), 3, "the limit counts elements in use, not the shared selection")

	require.NoError(t, m.Set(el("K"), 0))
	require.NoError(t, m.Set(el("Br"), 1))
	assert.Equal(t, "BrCl2Na", m.String())
}

func TestMutableFormulaArithmetic(t *testing.T) {
	r := newTestRegistry(t)
	m := r.NewMutableFormula()

	require.NoError(t, m.AddFormula(r.MustParse("C4H8O2")))
	require.NoError(t, m.SubtractFormula(r.MustParse("H2O")))
	assert.Equal(t, "C4H6O", m.String())
	assert.InDelta(t, r.MustParse("C4H6O").Mass(), m.Mass(), 1e-9)

	require.NoError(t, m.Multiply(2))
	assert.Equal(t, "C8H12O2", m.String())
	require.NoError(t, m.Negate())
	assert.Equal(t, "-C8-H12-O2", m.String())
	require.NoError(t, m.Multiply(-1))

	assert.ErrorIs(t, m.Divide(0), ErrDivisionByZero)
	assert.ErrorIs(t, m.Divide(8), ErrInexactDivision)
	assert.Equal(t, "C8H12O2", m.String(), "failed division leaves the formula unchanged")
	require.NoError(t, m.Divide(2))
	assert.Equal(t, "C4H6O", m.String())

	assert.ErrorIs(t, m.Multiply(10000), ErrRangeExceeded)
	assert.Equal(t, "C4H6O", m.String())

	carbon, _ := r.Element("C")
	assert.ErrorIs(t, m.Set(carbon, 40000), ErrRangeExceeded)
}

func TestMutableFormulaForeignElement(t *testing.T) {
	r := newTestRegistry(t)
	other := newTestRegistry(t)
	foreign, _ := other.Element("Na")

	m := r.NewMutableFormula()
	assert.ErrorIs(t, m.Set(foreign, 1), ErrUnknownElement)
}

func TestAlphabet(t *testing.T) {
	r := newTestRegistry(t)
	a, err := r.ParseAlphabet("SNa2CHO")
	require.NoError(t, err)

	assert.Equal(t, 5, a.Len())
	assert.Equal(t, "H", a.Get(0).Symbol())
	assert.Equal(t, "S", a.Get(a.Len()-1).Symbol())
	assert.Equal(t, "CHNaOS", a.String())
	assert.InDelta(t, 1.00782503207, a.MassAt(0), 1e-12)
	assert.Equal(t, 1, a.ValenceAt(0))

	b := AlphabetFor(r.MustParse("C2H5Cl"), r.MustParse("NH3"))
	assert.Equal(t, "CHClN", b.String())
	assert.Equal(t, "CH", a.Intersection(b).String())
	assert.Equal(t, "CHClNNaOS", a.Union(b).String())

	sulfur, _ := r.Element("S")
	assert.True(t, a.Contains(sulfur))
	assert.False(t, b.Contains(sulfur))
	assert.Equal(t, -1, b.IndexOf(sulfur))
	assert.True(t, a.Equal(NewChemicalAlphabet(a.Elements()...)))
	assert.False(t, a.Equal(b))
}

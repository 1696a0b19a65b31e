// Package chem provides the element registry, formula text grammar and the
// formula algebra used for mass calculations.
package chem

import "math"

// Element is a registered chemical element. Elements are compared by
// identity; two *Element values are the same element only if they are the
// same pointer from the same Registry.
type Element struct {
	id          int
	symbol      string
	name        string
	mass        float64
	nominalMass int
	valence     int
}

func newElement(id int, symbol, name string, mass float64, valence int) *Element {
	return &Element{
		id:          id,
		symbol:      symbol,
		name:        name,
		mass:        mass,
		nominalMass: int(math.Round(mass)),
		valence:     valence,
	}
}

// ID returns the registry-assigned dense id.
func (e *Element) ID() int { return e.id }

// Symbol returns the element symbol, e.g. "Cl".
func (e *Element) Symbol() string { return e.symbol }

// Name returns the full element name.
func (e *Element) Name() string { return e.name }

// Mass returns the monoisotopic mass.
func (e *Element) Mass() float64 { return e.mass }

// NominalMass returns the monoisotopic mass rounded to the nearest integer.
func (e *Element) NominalMass() int { return e.nominalMass }

// Valence returns the valence used for RDBE calculation.
func (e *Element) Valence() int { return e.valence }

func (e *Element) String() string { return e.symbol }

// CompareElements orders elements by nominal mass, then by id.
func CompareElements(a, b *Element) int {
	if a.nominalMass != b.nominalMass {
		if a.nominalMass < b.nominalMass {
			return -1
		}
		return 1
	}
	switch {
	case a.id < b.id:
		return -1
	case a.id > b.id:
		return 1
	}
	return 0
}

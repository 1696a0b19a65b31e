// Package peptide computes elemental formulas and masses of modified peptides.
package peptide

import (
	"errors"
	"fmt"

	"github.com/ChrisMcGann/FormulaKey/pkg/chem"
	"github.com/ChrisMcGann/FormulaKey/pkg/ion"
)

var (
	ErrUnknownResidue = errors.New("unknown residue")
	ErrNoComposition  = errors.New("modification has no composition")
)

// residues maps one-letter amino acid codes to their residue formulas.
var residues = map[rune]string{
	'A': "C3H5NO",
	'R': "C6H12N4O",
	'N': "C4H6N2O2",
	'D': "C4H5NO3",
	'C': "C3H5NOS",
	'E': "C5H7NO3",
	'Q': "C5H8N2O2",
	'G': "C2H3NO",
	'H': "C6H7N3O",
	'I': "C6H11NO",
	'L': "C6H11NO",
	'K': "C6H12N2O",
	'M': "C5H9NOS",
	'F': "C9H9NO",
	'P': "C5H7NO",
	'S': "C3H5NO2",
	'T': "C4H7NO2",
	'W': "C11H10N2O",
	'Y': "C9H9NO2",
	'V': "C5H9NO",
}

// Calculator turns peptide sequences into formulas of one registry.
type Calculator struct {
	registry *chem.Registry
	residues map[rune]chem.Formula
	water    chem.Formula
	proton   float64
}

// NewCalculator parses the residue table with the registry of table. Charged
// peptides are protonated with the table's protonation mode.
func NewCalculator(table *ion.Table) (*Calculator, error) {
	r := table.Registry()
	c := &Calculator{
		registry: r,
		residues: make(map[rune]chem.Formula, len(residues)),
		proton:   table.Protonation().Mass(),
	}
	for code, text := range residues {
		f, err := r.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("residue %c: %w", code, err)
		}
		c.residues[code] = f
	}
	water, err := r.Parse("H2O")
	if err != nil {
		return nil, err
	}
	c.water = water
	return c, nil
}

// Registry returns the registry the calculator builds formulas with.
func (c *Calculator) Registry() *chem.Registry { return c.registry }

// Residue returns the residue formula of a one-letter amino acid code.
func (c *Calculator) Residue(aa rune) (chem.Formula, bool) {
	f, ok := c.residues[aa]
	return f, ok
}

// Formula returns the elemental formula of the modified peptide. Every
// modification must carry a composition.
func (c *Calculator) Formula(sequence string, mods []Modification) (chem.Formula, error) {
	m, err := c.backbone(sequence)
	if err != nil {
		return chem.Formula{}, err
	}
	for _, mod := range mods {
		if mod.Composition.IsEmpty() {
			return chem.Formula{}, fmt.Errorf("%w: %s", ErrNoComposition, mod.Name)
		}
		if err := m.AddFormula(mod.Composition); err != nil {
			return chem.Formula{}, fmt.Errorf("modification %s: %w", mod.Name, err)
		}
	}
	return m.Freeze(), nil
}

func (c *Calculator) backbone(sequence string) (*chem.MutableFormula, error) {
	if sequence == "" {
		return nil, fmt.Errorf("%w: empty sequence", ErrUnknownResidue)
	}
	m := c.water.Mutable()
	for i, aa := range sequence {
		f, ok := c.residues[aa]
		if !ok {
			return nil, fmt.Errorf("%w: %q at position %d", ErrUnknownResidue, aa, i+1)
		}
		if err := m.AddFormula(f); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NeutralMass computes the monoisotopic mass of the peptide. Modifications
// contribute their mass shift, so mass-only modifications are allowed.
func (c *Calculator) NeutralMass(sequence string, mods []Modification) (float64, error) {
	m, err := c.backbone(sequence)
	if err != nil {
		return 0, err
	}
	mass := m.Mass()
	for _, mod := range mods {
		mass += mod.Mass
	}
	return mass, nil
}

// PrecursorMZ returns the m/z of the peptide protonated charge times.
func (c *Calculator) PrecursorMZ(sequence string, charge int, mods []Modification) (float64, error) {
	if charge <= 0 {
		return 0, fmt.Errorf("peptide charge must be positive, got %d", charge)
	}
	mass, err := c.NeutralMass(sequence, mods)
	if err != nil {
		return 0, err
	}
	return (mass + float64(charge)*c.proton) / float64(charge), nil
}

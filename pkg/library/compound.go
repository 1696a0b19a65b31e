// Package library provides the intermediate representation of spectral
// library records and their validation against formula and ion type.
package library

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ChrisMcGann/FormulaKey/pkg/chem"
	"github.com/ChrisMcGann/FormulaKey/pkg/ion"
	"github.com/ChrisMcGann/FormulaKey/pkg/peptide"
)

// Compound is a single library record: a small molecule identified by its
// formula, or a peptide identified by its sequence.
type Compound struct {
	// Identity
	Title         string
	Formula       chem.Formula
	Sequence      string
	Modifications []peptide.Modification

	// Precursor
	IonType     ion.PrecursorIonType
	Charge      int
	PrecursorMZ float64

	// Optional metadata
	IonMode         string // "P" or "N"
	CollisionEnergy *float64
	RetentionTime   *float64
	InChIKey        string
	CompoundClass   string
	Peaks           []Peak

	// Internal tracking
	SourceFile string
	Line       int
}

// Peak represents a single m/z, intensity pair with optional annotation.
type Peak struct {
	MZ         float64
	Intensity  float64
	Annotation string
}

// ValidationError represents an error found during compound validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// IsPeptide reports whether the compound is identified by a sequence.
func (c *Compound) IsPeptide() bool {
	return c.Sequence != "" && c.Formula.IsEmpty()
}

// Validate checks that a compound meets all requirements for writing.
func (c *Compound) Validate() error {
	var errs []string

	if c.Formula.IsEmpty() && c.Sequence == "" {
		errs = append(errs, "formula or sequence is required")
	}
	if !c.Formula.IsEmpty() && !c.Formula.IsAllPositiveOrZero() {
		errs = append(errs, fmt.Sprintf("formula %s has negative amounts", c.Formula))
	}
	if c.PrecursorMZ <= 0 {
		errs = append(errs, "precursor m/z must be positive")
	}
	if c.IsPeptide() && c.Charge <= 0 {
		errs = append(errs, "peptide charge must be positive")
	}
	if !c.IsPeptide() {
		switch {
		case c.IonType.String() == "":
			errs = append(errs, "precursor ion type is required")
		case c.IonType.IsIonizationUnknown():
			errs = append(errs, "precursor ion type must be known")
		case !c.Formula.IsEmpty() && !c.IonType.IsApplicableToNeutralFormula(c.Formula):
			errs = append(errs, fmt.Sprintf("ion type %s is not applicable to %s", c.IonType, c.Formula))
		}
	}
	if len(c.Peaks) == 0 {
		errs = append(errs, "at least one peak is required")
	}

	for i, peak := range c.Peaks {
		if math.IsNaN(peak.MZ) || math.IsInf(peak.MZ, 0) {
			errs = append(errs, fmt.Sprintf("peak %d has invalid m/z", i))
		}
		if math.IsNaN(peak.Intensity) || math.IsInf(peak.Intensity, 0) {
			errs = append(errs, fmt.Sprintf("peak %d has invalid intensity", i))
		}
		if peak.MZ <= 0 {
			errs = append(errs, fmt.Sprintf("peak %d m/z must be positive", i))
		}
		if peak.Intensity < 0 {
			errs = append(errs, fmt.Sprintf("peak %d intensity must be non-negative", i))
		}
	}

	if !c.ArePeaksSorted() {
		errs = append(errs, "peaks must be sorted by m/z")
	}

	if len(errs) > 0 {
		return &ValidationError{
			Field:   "Compound",
			Message: strings.Join(errs, "; "),
		}
	}

	return nil
}

// ArePeaksSorted checks if peaks are sorted by m/z in ascending order.
func (c *Compound) ArePeaksSorted() bool {
	for i := 1; i < len(c.Peaks); i++ {
		if c.Peaks[i].MZ < c.Peaks[i-1].MZ {
			return false
		}
	}
	return true
}

// SortPeaks sorts peaks by m/z in ascending order.
func (c *Compound) SortPeaks() {
	sort.Slice(c.Peaks, func(i, j int) bool {
		return c.Peaks[i].MZ < c.Peaks[j].MZ
	})
}

// Polarity returns "+" or "-" from the ion type, falling back to the ion mode.
func (c *Compound) Polarity() string {
	switch {
	case c.IonType.IsNegative():
		return "-"
	case c.IonType.IsPositive(), c.IsPeptide():
		return "+"
	case strings.HasPrefix(strings.ToUpper(c.IonMode), "N"):
		return "-"
	}
	return "+"
}

// NeutralMass returns the monoisotopic mass of the neutral molecule. A
// formula wins over a sequence; without either the mass is derived from the
// precursor m/z and ion type.
func (c *Compound) NeutralMass(calc *peptide.Calculator) (float64, error) {
	switch {
	case !c.Formula.IsEmpty():
		return c.Formula.Mass(), nil
	case c.Sequence != "":
		if calc == nil {
			return 0, fmt.Errorf("compound %s: no peptide calculator", c.Name())
		}
		return calc.NeutralMass(c.Sequence, c.Modifications)
	case c.IonType.String() != "" && !c.IonType.IsIonizationUnknown():
		return c.IonType.PrecursorMassToNeutralMass(c.PrecursorMZ), nil
	}
	return 0, fmt.Errorf("compound %s: neither formula nor sequence", c.Name())
}

// ExpectedPrecursorMZ computes the precursor m/z from the neutral molecule
// and the ion type, or the peptide charge.
func (c *Compound) ExpectedPrecursorMZ(calc *peptide.Calculator) (float64, error) {
	if c.IsPeptide() {
		if calc == nil {
			return 0, fmt.Errorf("compound %s: no peptide calculator", c.Name())
		}
		return calc.PrecursorMZ(c.Sequence, c.Charge, c.Modifications)
	}
	if c.Formula.IsEmpty() {
		return 0, fmt.Errorf("compound %s: formula is required", c.Name())
	}
	if c.IonType.String() == "" || c.IonType.IsIonizationUnknown() {
		return 0, fmt.Errorf("compound %s: ion type %q is unknown", c.Name(), c.IonType)
	}
	return c.IonType.NeutralMassToPrecursorMass(c.Formula.Mass()), nil
}

// PrecursorFormula returns the formula of the precursor ion.
func (c *Compound) PrecursorFormula() (chem.Formula, error) {
	if c.Formula.IsEmpty() {
		return chem.Formula{}, fmt.Errorf("compound %s: formula is required", c.Name())
	}
	return c.IonType.NeutralMoleculeToPrecursorIon(c.Formula)
}

// PPMError returns the deviation of the recorded precursor m/z from mz in
// parts per million.
func (c *Compound) PPMError(mz float64) float64 {
	return (c.PrecursorMZ - mz) / mz * 1e6
}

// Name returns the compound name, or "Sequence/Charge" for unnamed peptides.
func (c *Compound) Name() string {
	switch {
	case c.Title != "":
		return c.Title
	case c.Sequence != "":
		return fmt.Sprintf("%s/%d", c.Sequence, c.Charge)
	case !c.Formula.IsEmpty():
		return fmt.Sprintf("%s %s", c.Formula, c.IonType)
	}
	return fmt.Sprintf("line %d", c.Line)
}

// ModString returns modifications in format "mass@pos;mass@pos;..."
func (c *Compound) ModString() string {
	if len(c.Modifications) == 0 {
		return ""
	}

	var parts []string
	for _, mod := range c.Modifications {
		parts = append(parts, fmt.Sprintf("%.6f@%d", mod.Mass, mod.Position))
	}
	return strings.Join(parts, ";")
}

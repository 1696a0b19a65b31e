// Package filter provides compound filtering and peak transformation functions
package filter

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/ChrisMcGann/FormulaKey/pkg/chem"
	"github.com/ChrisMcGann/FormulaKey/pkg/ion"
	"github.com/ChrisMcGann/FormulaKey/pkg/library"
	"github.com/ChrisMcGann/FormulaKey/pkg/peptide"
)

// ErrRejected is returned by Apply for compounds the configuration excludes.
var ErrRejected = errors.New("compound rejected")

// Config holds filtering configuration
type Config struct {
	Constraints     *chem.FormulaConstraints // Keep only formulas satisfying the constraints (nil = all)
	IonTypes        []ion.PrecursorIonType   // Keep only these precursor ion types (nil = all)
	PPMTolerance    float64                  // Max deviation of the precursor m/z in ppm (0 = no check)
	Recalculate     bool                     // Replace the precursor m/z by the computed value
	TopN            int                      // Keep only top N most intense peaks (0 = no limit)
	IntensityCutoff float64                  // Keep only peaks above this % of base peak (0 = no cutoff)
	Calculator      *peptide.Calculator      // Formulas and masses of peptides
}

func reject(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrRejected}, args...)...)
}

// Apply applies all configured filters to a compound. Rejections wrap
// ErrRejected; other errors mean the compound could not be evaluated.
func (c *Config) Apply(compound *library.Compound) error {
	if len(c.IonTypes) > 0 && !compound.IsPeptide() {
		if !slices.ContainsFunc(c.IonTypes, compound.IonType.Equal) {
			return reject("ion type %s is not selected", compound.IonType)
		}
	}

	if c.Constraints != nil {
		if err := c.checkConstraints(compound); err != nil {
			return err
		}
	}

	if c.PPMTolerance > 0 || c.Recalculate {
		expected, err := compound.ExpectedPrecursorMZ(c.Calculator)
		if err != nil {
			return err
		}
		if c.PPMTolerance > 0 {
			if ppm := compound.PPMError(expected); math.Abs(ppm) > c.PPMTolerance {
				return reject("precursor m/z %.4f deviates %.1f ppm from %.4f", compound.PrecursorMZ, ppm, expected)
			}
		}
		if c.Recalculate {
			compound.PrecursorMZ = expected
		}
	}

	if c.IntensityCutoff > 0 {
		c.filterByIntensity(compound)
	}

	if c.TopN > 0 {
		c.filterTopN(compound)
	}

	// Ensure peaks are sorted after all filtering
	compound.SortPeaks()

	return nil
}

// checkConstraints tests the neutral formula. Peptides with modifications
// known only by mass are not checked.
func (c *Config) checkConstraints(compound *library.Compound) error {
	f := compound.Formula
	if compound.IsPeptide() {
		if c.Calculator == nil {
			return nil
		}
		var err error
		f, err = c.Calculator.Formula(compound.Sequence, compound.Modifications)
		if errors.Is(err, peptide.ErrNoComposition) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	if c.Constraints.IsViolated(f) {
		return reject("formula %s violates %s", f, c.Constraints)
	}
	return nil
}

// filterByIntensity removes peaks below the intensity cutoff percentage
func (c *Config) filterByIntensity(compound *library.Compound) {
	if len(compound.Peaks) == 0 {
		return
	}

	maxIntensity := 0.0
	for _, peak := range compound.Peaks {
		if peak.Intensity > maxIntensity {
			maxIntensity = peak.Intensity
		}
	}

	threshold := (c.IntensityCutoff / 100.0) * maxIntensity

	var filtered []library.Peak
	for _, peak := range compound.Peaks {
		if peak.Intensity >= threshold {
			filtered = append(filtered, peak)
		}
	}

	compound.Peaks = filtered
}

// filterTopN keeps only the N most intense peaks
func (c *Config) filterTopN(compound *library.Compound) {
	if len(compound.Peaks) <= c.TopN {
		return
	}

	peaks := make([]library.Peak, len(compound.Peaks))
	copy(peaks, compound.Peaks)

	sort.SliceStable(peaks, func(i, j int) bool {
		return peaks[i].Intensity > peaks[j].Intensity
	})

	compound.Peaks = peaks[:c.TopN]
}

// RemoveZeroIntensityPeaks removes peaks with zero or negative intensity
func RemoveZeroIntensityPeaks(compound *library.Compound) {
	var filtered []library.Peak
	for _, peak := range compound.Peaks {
		if peak.Intensity > 0 {
			filtered = append(filtered, peak)
		}
	}
	compound.Peaks = filtered
}

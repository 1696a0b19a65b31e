package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/FormulaKey/pkg/chem"
	"github.com/ChrisMcGann/FormulaKey/pkg/ion"
	"github.com/ChrisMcGann/FormulaKey/pkg/library"
	"github.com/ChrisMcGann/FormulaKey/pkg/peptide"
)

type fixture struct {
	registry *chem.Registry
	table    *ion.Table
	calc     *peptide.Calculator
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	r, err := chem.NewDefaultRegistry()
	require.NoError(t, err)
	table, err := ion.NewTable(r)
	require.NoError(t, err)
	calc, err := peptide.NewCalculator(table)
	require.NoError(t, err)
	return fixture{registry: r, table: table, calc: calc}
}

func (fx fixture) glucose(ionType string, mz float64) *library.Compound {
	return &library.Compound{
		Title:       "Glucose",
		Formula:     fx.registry.MustParse("C6H12O6"),
		IonType:     fx.table.MustByName(ionType),
		PrecursorMZ: mz,
		Peaks: []library.Peak{
			{MZ: 163.06, Intensity: 20},
			{MZ: 85.03, Intensity: 100},
			{MZ: 97.03, Intensity: 0.5},
		},
	}
}

func TestApply(t *testing.T) {
	fx := newFixture(t)
	chno, err := fx.registry.ParseConstraints("CHNO[5]")
	require.NoError(t, err)
	noOxygen, err := fx.registry.ParseConstraints("CHN")
	require.NoError(t, err)

	tests := []struct {
		name     string
		config   Config
		compound *library.Compound
		rejected bool
	}{
		{
			name:     "no filters",
			compound: fx.glucose("[M+H]+", 181.0707),
		},
		{
			name:     "selected ion type",
			config:   Config{IonTypes: []ion.PrecursorIonType{fx.table.MustByName("[M+Na]+"), fx.table.MustByName("[M+H]+")}},
			compound: fx.glucose("[M+H]+", 181.0707),
		},
		{
			name:     "ion type not selected",
			config:   Config{IonTypes: []ion.PrecursorIonType{fx.table.MustByName("[M+Na]+")}},
			compound: fx.glucose("[M+H]+", 181.0707),
			rejected: true,
		},
		{
			name:     "oxygen bound violated",
			config:   Config{Constraints: chno},
			compound: fx.glucose("[M+H]+", 181.0707),
			rejected: true,
		},
		{
			name:     "alphabet violated",
			config:   Config{Constraints: noOxygen},
			compound: fx.glucose("[M+H]+", 181.0707),
			rejected: true,
		},
		{
			name:     "within tolerance",
			config:   Config{PPMTolerance: 5},
			compound: fx.glucose("[M+H]+", 181.0707),
		},
		{
			name:     "outside tolerance",
			config:   Config{PPMTolerance: 5},
			compound: fx.glucose("[M+H]+", 181.0727),
			rejected: true,
		},
		{
			name:     "wrong adduct outside tolerance",
			config:   Config{PPMTolerance: 10},
			compound: fx.glucose("[M+Na]+", 181.0707),
			rejected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Apply(tt.compound)
			if tt.rejected {
				assert.ErrorIs(t, err, ErrRejected)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestApplyRecalculate(t *testing.T) {
	fx := newFixture(t)
	c := fx.glucose("[M+H]+", 181.07)

	cfg := Config{Recalculate: true}
	require.NoError(t, cfg.Apply(c))
	assert.InDelta(t, 181.0706645, c.PrecursorMZ, 1e-6)

	unknown := fx.glucose("[M+H]+", 181.07)
	unknown.IonType = ion.UnknownType(1)
	err := cfg.Apply(unknown)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
}

func TestApplyPeptide(t *testing.T) {
	fx := newFixture(t)
	db, err := peptide.DefaultModDatabase(fx.registry)
	require.NoError(t, err)
	noSulfur, err := fx.registry.ParseConstraints("CHNO")
	require.NoError(t, err)

	cfg := Config{Constraints: noSulfur, Calculator: fx.calc, PPMTolerance: 10}

	c := &library.Compound{Sequence: "PEPTIDE", Charge: 2, PrecursorMZ: 400.68726}
	assert.NoError(t, cfg.Apply(c))

	c = &library.Compound{Sequence: "PEPTIDEM", Charge: 2, PrecursorMZ: 466.20750}
	assert.ErrorIs(t, cfg.Apply(c), ErrRejected)

	// modifications without composition skip the formula check
	mods, err := db.ParseModString("TMTPro@-1", "PEPTIDEM")
	require.NoError(t, err)
	c = &library.Compound{Sequence: "PEPTIDEM", Charge: 2, Modifications: mods, PrecursorMZ: 618.31107}
	assert.NoError(t, cfg.Apply(c))
}

func TestIntensityFilters(t *testing.T) {
	fx := newFixture(t)

	c := fx.glucose("[M+H]+", 181.0707)
	cfg := Config{IntensityCutoff: 1}
	require.NoError(t, cfg.Apply(c))
	require.Len(t, c.Peaks, 2)
	assert.Equal(t, 85.03, c.Peaks[0].MZ)
	assert.Equal(t, 163.06, c.Peaks[1].MZ)

	c = fx.glucose("[M+H]+", 181.0707)
	cfg = Config{TopN: 1}
	require.NoError(t, cfg.Apply(c))
	require.Len(t, c.Peaks, 1)
	assert.Equal(t, 85.03, c.Peaks[0].MZ)
}

func TestRemoveZeroIntensityPeaks(t *testing.T) {
	c := &library.Compound{
		Peaks: []library.Peak{
			{MZ: 100, Intensity: 0},
			{MZ: 200, Intensity: 5},
			{MZ: 300, Intensity: -1},
		},
	}
	RemoveZeroIntensityPeaks(c)
	require.Len(t, c.Peaks, 1)
	assert.Equal(t, 200.0, c.Peaks[0].MZ)
}

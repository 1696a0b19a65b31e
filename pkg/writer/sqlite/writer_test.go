package sqlite

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ChrisMcGann/FormulaKey/pkg/chem"
	"github.com/ChrisMcGann/FormulaKey/pkg/ion"
	"github.com/ChrisMcGann/FormulaKey/pkg/library"
	"github.com/ChrisMcGann/FormulaKey/pkg/peptide"
)

func newTestWriter(t *testing.T) (*Writer, string, *chem.Registry, *ion.Table) {
	t.Helper()
	r, err := chem.NewDefaultRegistry()
	require.NoError(t, err)
	table, err := ion.NewTable(r)
	require.NoError(t, err)
	calc, err := peptide.NewCalculator(table)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "library.db")
	w, err := NewWriter(path, Options{Calculator: calc})
	require.NoError(t, err)
	return w, path, r, table
}

func TestWriteCompound(t *testing.T) {
	w, path, r, table := newTestWriter(t)

	glucose := &library.Compound{
		Title:       "Glucose",
		Formula:     r.MustParse("C6H12O6"),
		IonType:     table.MustByName("[M+Na]+"),
		PrecursorMZ: 203.0526,
		InChIKey:    "WQZGKKKJIJFFOK-GASJEMHNSA-N",
		Peaks: []library.Peak{
			{MZ: 185.04, Intensity: 10},
			{MZ: 85.03, Intensity: 100},
		},
	}
	require.NoError(t, w.WriteCompound(glucose))

	pep := &library.Compound{
		Sequence:      "AC",
		Charge:        2,
		PrecursorMZ:   147.06,
		Modifications: []peptide.Modification{{Name: "Carbamidomethyl", Mass: 57.021464, Position: 1, Composition: r.MustParse("C2H3NO")}},
		Peaks:         []library.Peak{{MZ: 100, Intensity: 1}},
	}
	require.NoError(t, w.WriteCompound(pep))
	assert.Equal(t, 2, w.Count())

	require.NoError(t, w.Finalize())
	require.NoError(t, w.Close())
	assert.Error(t, w.WriteCompound(glucose))

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var formula, name, ionType, accession, polarity string
	var neutralMass float64
	var mzBlob []byte
	err = db.QueryRow(`
		SELECT c.Formula, c.Name, s.PrecursorIonType, s.Accession, s.Polarity, s.NeutralMass, s.blobMass
		FROM CompoundTable c JOIN SpectrumTable s ON s.CompoundId = c.CompoundId
		WHERE c.CompoundId = 1`).Scan(&formula, &name, &ionType, &accession, &polarity, &neutralMass, &mzBlob)
	require.NoError(t, err)
	assert.Equal(t, "C6H12O6", formula)
	assert.Equal(t, "Glucose", name)
	assert.Equal(t, "[M + Na]+", ionType)
	assert.Equal(t, "+", polarity)
	assert.InDelta(t, 180.0633881, neutralMass, 1e-6)
	_, err = uuid.Parse(accession)
	assert.NoError(t, err)

	// peaks are written sorted
	require.Len(t, mzBlob, 16)
	assert.Equal(t, 85.03, math.Float64frombits(binary.LittleEndian.Uint64(mzBlob[:8])))

	var tag, sequence string
	err = db.QueryRow(`
		SELECT c.Formula, c.Tag, c.Sequence, s.PrecursorIonType
		FROM CompoundTable c JOIN SpectrumTable s ON s.CompoundId = c.CompoundId
		WHERE c.CompoundId = 2`).Scan(&formula, &tag, &sequence, &ionType)
	require.NoError(t, err)
	assert.Equal(t, "C8H15N3O4S", formula)
	assert.Equal(t, "mods:57.021464@1", tag)
	assert.Equal(t, "AC", sequence)
	assert.Equal(t, "[M+2H]2+", ionType)

	var modified int
	require.NoError(t, db.QueryRow(`SELECT NoofCompoundsModified FROM MaintenanceTable`).Scan(&modified))
	assert.Equal(t, 2, modified)
}

func TestConcurrentWrites(t *testing.T) {
	w, path, r, table := newTestWriter(t)
	protonated := table.MustByName("[M+H]+")

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			for j := 0; j < 10; j++ {
				c := &library.Compound{
					Title:       fmt.Sprintf("compound %d-%d", i, j),
					Formula:     r.MustParse(fmt.Sprintf("C%dH%d", j+2, 2*j+6)),
					IonType:     protonated,
					PrecursorMZ: 100,
					Peaks:       []library.Peak{{MZ: 50, Intensity: 1}},
				}
				if err := w.WriteCompound(c); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.NoError(t, w.Finalize())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(DISTINCT Accession) FROM SpectrumTable`).Scan(&n))
	assert.Equal(t, 80, n)
}

func TestPeptideWithoutCalculator(t *testing.T) {
	w, err := NewWriter(filepath.Join(t.TempDir(), "library.db"), Options{})
	require.NoError(t, err)
	defer w.Close()

	err = w.WriteCompound(&library.Compound{Sequence: "PEPTIDE", Charge: 2, PrecursorMZ: 400.69})
	assert.Error(t, err)
}

package msp

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/FormulaKey/pkg/chem"
	"github.com/ChrisMcGann/FormulaKey/pkg/ion"
)

const smallMolecules = `Name: Glucose
Precursor_type: [M+H]+
Formula: C6H12O6
PrecursorMZ: 181.0707
Ion_mode: P
Collision_energy: 20 eV
InChIKey: WQZGKKKJIJFFOK-GASJEMHNSA-N
Num Peaks: 3
85.0284	100	"C4H5O2+"
97.0284	45
163.0601	20

Name: Broken formula
Precursor_type: [M+H]+
Formula: C6H12Xq6
PrecursorMZ: 181.0707
Num Peaks: 1
85.0284	100

Name: Chloride adduct
PRECURSOR TYPE: [M+Cl]-
Formula: C6H12O6
PrecursorMZ: 215.0328
Ion_mode: N
Num Peaks: 2
34.9694 100
179.0561 12
`

const prosit = `Name: EIESAGDITFNR/2
MW: 1365.6529
Comment: Parent=683.8337 Collision_energy=35 ModString=EIESAGDITFNR//TMT_Pro@R-1/2 iRT=61.01
Num peaks: 2
175.119	12.5	"y1/0.1ppm"
262.151	100	"y2"
`

func newTestReader(t *testing.T, input string) (*Reader, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	r, err := chem.NewDefaultRegistry(chem.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)
	table, err := ion.NewTable(r)
	require.NoError(t, err)
	reader, err := NewReader(strings.NewReader(input), table, nil)
	require.NoError(t, err)
	reader.SetSource("test.msp")
	return reader, &logs
}

func TestReadSmallMolecules(t *testing.T) {
	reader, logs := newTestReader(t, smallMolecules)

	require.True(t, reader.Next(), reader.Err())
	c := reader.Compound()
	assert.Equal(t, "Glucose", c.Name())
	assert.Equal(t, "C6H12O6", c.Formula.String())
	assert.Equal(t, "[M + H]+", c.IonType.String())
	assert.InDelta(t, 181.0707, c.PrecursorMZ, 1e-9)
	assert.Equal(t, "P", c.IonMode)
	require.NotNil(t, c.CollisionEnergy)
	assert.InDelta(t, 20.0, *c.CollisionEnergy, 1e-9)
	assert.Equal(t, "WQZGKKKJIJFFOK-GASJEMHNSA-N", c.InChIKey)
	assert.Equal(t, "test.msp", c.SourceFile)
	assert.Equal(t, 1, c.Line)
	require.Len(t, c.Peaks, 3)
	assert.Equal(t, "C4H5O2+", c.Peaks[0].Annotation)

	require.True(t, reader.Next(), reader.Err())
	c = reader.Compound()
	assert.Equal(t, "Chloride adduct", c.Name())
	assert.Equal(t, -1, c.IonType.Charge())
	assert.Equal(t, "-", c.Polarity())
	require.Len(t, c.Peaks, 2)

	assert.False(t, reader.Next())
	assert.NoError(t, reader.Err())
	assert.Equal(t, 1, reader.Skipped())
	assert.Contains(t, logs.String(), "C6H12Xq6")
}

func TestReadProsit(t *testing.T) {
	reader, _ := newTestReader(t, prosit)

	require.True(t, reader.Next(), reader.Err())
	c := reader.Compound()
	assert.True(t, c.IsPeptide())
	assert.Equal(t, "EIESAGDITFNR", c.Sequence)
	assert.Equal(t, 2, c.Charge)
	assert.InDelta(t, 683.8337, c.PrecursorMZ, 1e-9)
	require.NotNil(t, c.RetentionTime)
	assert.InDelta(t, 61.01, *c.RetentionTime, 1e-9)
	require.Len(t, c.Modifications, 1)
	assert.Equal(t, "TMT_Pro", c.Modifications[0].Name)
	assert.Equal(t, -1, c.Modifications[0].Position)
	assert.Equal(t, "y1", c.Peaks[0].Annotation)

	assert.False(t, reader.Next())
	assert.NoError(t, reader.Err())
}

func TestReaderErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bad num peaks", "Name: X\nNum Peaks: many\n"},
		{"bad peak", "Name: X\nNum Peaks: 1\nabc 100\n"},
		{"truncated peaks", "Name: X\nNum Peaks: 3\n100 1\n"},
		{"missing num peaks", "Name: X\nFormula: CH4\n"},
		{"not a header", "Name: X\njust text\n"},
		{"bad precursor", "Name: X\nPrecursorMZ: abc\nNum Peaks: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, _ := newTestReader(t, tt.input)
			for reader.Next() {
			}
			assert.Error(t, reader.Err())
		})
	}
}

func TestEmptyInput(t *testing.T) {
	reader, _ := newTestReader(t, "\n\n")
	assert.False(t, reader.Next())
	assert.NoError(t, reader.Err())
	assert.Nil(t, reader.Compound())
}

func TestSplitPeptideName(t *testing.T) {
	tests := []struct {
		name       string
		wantSeq    string
		wantCharge int
		wantOK     bool
	}{
		{"PEPTIDE/2", "PEPTIDE", 2, true},
		{"Glucose", "", 0, false},
		{"PC 16:0/18:1", "", 0, false},
		{"PEPTIDE/x", "", 0, false},
	}
	for _, tt := range tests {
		seq, charge, ok := splitPeptideName(tt.name)
		assert.Equal(t, tt.wantOK, ok, tt.name)
		assert.Equal(t, tt.wantSeq, seq, tt.name)
		assert.Equal(t, tt.wantCharge, charge, tt.name)
	}
}

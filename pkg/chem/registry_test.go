package chem

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddElement(t *testing.T) {
	r := NewRegistry()

	c, err := r.AddElement("C", "Carbon", 12.0, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, c.ID())
	assert.Equal(t, 12, c.NominalMass())

	_, err = r.AddElement("C", "Carbon again", 12.0, 4)
	assert.ErrorIs(t, err, ErrDuplicateSymbol)

	_, err = r.AddElement("cl", "lower case", 35.0, 1)
	assert.ErrorIs(t, err, ErrMalformedFormulaText)

	_, err = r.AddElement("Q", "massless", 0, 1)
	assert.ErrorIs(t, err, ErrRangeExceeded)

	assert.Equal(t, 1, r.Len())
}

func TestLookup(t *testing.T) {
	r := newTestRegistry(t)

	cl, ok := r.Element("Cl")
	require.True(t, ok)
	assert.Equal(t, "Chlorine", cl.Name())
	assert.Equal(t, 1, cl.Valence())

	byID, ok := r.ElementByID(cl.ID())
	require.True(t, ok)
	assert.Same(t, cl, byID)

	_, ok = r.Element("Zz")
	assert.False(t, ok)
	_, ok = r.ElementByID(-1)
	assert.False(t, ok)
	_, ok = r.ElementByID(r.Len())
	assert.False(t, ok)

	assert.Equal(t, "H", r.Hydrogen().Symbol())
}

func TestPatternInvalidation(t *testing.T) {
	r := NewRegistry()
	_, err := r.AddElement("C", "Carbon", 12.0, 4)
	require.NoError(t, err)

	f, err := r.Parse("C2")
	require.NoError(t, err)
	assert.Equal(t, "C2", f.String())

	_, err = r.Parse("C2Xy")
	assert.ErrorIs(t, err, ErrUnknownElement)
	before := r.Pattern()

	_, err = r.AddElement("Xy", "Example", 100.0, 2)
	require.NoError(t, err)
	assert.NotSame(t, before, r.Pattern())

	f, err = r.Parse("C2Xy")
	require.NoError(t, err)
	assert.Equal(t, "C2Xy", f.String())
}

func TestPatternPrefersLongestSymbol(t *testing.T) {
	r := newTestRegistry(t)

	for _, text := range []string{"CCl4", "CoCl2", "CaCO3", "CuSO4"} {
		t.Run(text, func(t *testing.T) {
			f, err := r.Parse(text)
			require.NoError(t, err)
			back, err := r.Parse(f.String())
			require.NoError(t, err)
			assert.True(t, f.Equal(back))
		})
	}

	f := r.MustParse("CoCl2")
	assert.Equal(t, 0, f.Carbons())
	assert.Equal(t, 2, f.NumberOfSymbol("Cl"))
	assert.Equal(t, 1, f.NumberOfSymbol("Co"))
}

func TestParseOrNullLogs(t *testing.T) {
	var buf bytes.Buffer
	r := newTestRegistry(t, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	_, ok := r.ParseOrNull("C6(H12")
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "could not parse formula")

	f, ok := r.ParseOrNull("C6H12O6")
	assert.True(t, ok)
	assert.Equal(t, "C6H12O6", f.String())

	var visited []string
	for _, text := range []string{"H2O", "Xx", "CO2"} {
		r.ParseAndExecute(text, func(f Formula) { visited = append(visited, f.String()) })
	}
	assert.Equal(t, []string{"H2O", "CO2"}, visited)
}

func TestScoped(t *testing.T) {
	global := Default()
	custom := NewRegistry()
	_, err := custom.AddElement("Xy", "Example", 100.0, 2)
	require.NoError(t, err)

	err = Scoped(custom, func() error {
		assert.Same(t, custom, Default())
		f, err := Parse("Xy2")
		require.NoError(t, err)
		assert.Equal(t, "Xy2", f.String())
		return errors.New("done")
	})
	assert.EqualError(t, err, "done")
	assert.Same(t, global, Default())

	assert.Panics(t, func() {
		_ = Scoped(custom, func() error { panic("boom") })
	})
	assert.Same(t, global, Default())
}

func TestContextRegistry(t *testing.T) {
	custom := newTestRegistry(t)

	assert.Same(t, Default(), FromContext(context.Background()))
	ctx := NewContext(context.Background(), custom)
	assert.Same(t, custom, FromContext(ctx))
}

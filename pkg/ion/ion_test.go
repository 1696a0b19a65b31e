package ion

import (
	"bytes"
	"log/slog"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ChrisMcGann/FormulaKey/pkg/chem"
)

func newTestTable(t *testing.T, opts ...Option) (*Table, *chem.Registry) {
	t.Helper()
	r, err := chem.NewDefaultRegistry()
	require.NoError(t, err)
	table, err := NewTable(r, opts...)
	require.NoError(t, err)
	return table, r
}

func TestIonizationMass(t *testing.T) {
	table, _ := newTestTable(t)

	tests := []struct {
		name   string
		ion    Ionization
		charge int
		mass   float64
	}{
		{"protonation", table.Protonation(), 1, 1.00727645216},
		{"deprotonation", table.Deprotonation(), -1, -1.00727645216},
		{"unknown positive", UnknownCharge(1), 1, -ElectronMass},
		{"unknown negative", UnknownCharge(-1), -1, ElectronMass},
		{"electron", ElectronIonization(), 1, -ElectronMass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.charge, tt.ion.Charge())
			assert.InDelta(t, tt.mass, tt.ion.Mass(), 1e-8)

			mz := tt.ion.AddToMass(180.0633881)
			assert.InDelta(t, 180.0633881, tt.ion.SubtractFromMass(mz), 1e-9)
		})
	}

	assert.Equal(t, "[M+?]", UnknownCharge(0).Name())
	assert.InDelta(t, 100.0, UnknownCharge(0).AddToMass(100.0), 1e-12)
	assert.True(t, table.Protonation().IsProtonation())
	assert.True(t, table.Deprotonation().IsDeprotonation())
	assert.False(t, UnknownCharge(1).Equal(ElectronIonization()))
}

func TestByNameCanonical(t *testing.T) {
	table, _ := newTestTable(t)

	tests := []struct {
		input string
		want  string
	}{
		{"[M+H]+", "[M + H]+"},
		{"M+H", "[M + H]+"},
		{"[M + Na]+", "[M + Na]+"},
		{"[M+K]+", "[M + K]+"},
		{"[M+NH4]+", "[M + H3N + H]+"},
		{"[M+H-H2O]+", "[M - H2O + H]+"},
		{"[M-H2O+H]+", "[M - H2O + H]+"},
		{"[M-H2O]+", "[M - H3O + H]+"},
		{"[M+ACN+H]+", "[M + C2H3N + H]+"},
		{"[M+MeOH+Na]+", "[M + CH4O + Na]+"},
		{"[M-H]-", "[M - H]-"},
		{"M-H", "[M - H]-"},
		{"[M+Cl]-", "[M + Cl]-"},
		{"[M-H2O-H]-", "[M - H2O - H]-"},
		{"[M+HCOO]-", "[M + CH2O2 - H]-"},
		{"[M+FA-H]-", "[M + CH2O2 - H]-"},
		{"[M]+", "[M]+"},
		{"M+", "[M]+"},
		{"[M]-", "[M]-"},
		{"[M+?]+", "[M+?]+"},
		{"M-?-", "[M+?]-"},
		{"[M]+•", "[M]+•"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			typ, err := table.ByName(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, typ.String())

			back, err := table.ByName(typ.String())
			require.NoError(t, err)
			assert.True(t, typ.Equal(back), "%s reparsed as %s", typ, back)
			assert.Equal(t, typ.String(), back.String())
		})
	}
}

func TestByNameErrors(t *testing.T) {
	table, _ := newTestTable(t)

	tests := []struct {
		name string
		want error
	}{
		{"[2M+H]+", chem.ErrUnsupportedIonNotation},
		{"2M+H", chem.ErrUnsupportedIonNotation},
		{"3M-H", chem.ErrUnsupportedIonNotation},
		{"[M+2H]2+", chem.ErrUnsupportedIonNotation},
		{"[M+2(H2O)+H]+", chem.ErrUnsupportedIonNotation},
		{"[M+Xx]+", chem.ErrUnknownElement},
		{"[M+CO]+", chem.ErrMalformedFormulaText},
		{"", chem.ErrMalformedFormulaText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := table.ByName(tt.name)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Panics(t, func() { table.MustByName("[2M+H]+") })
}

func TestByNameOrNullLogs(t *testing.T) {
	var buf bytes.Buffer
	table, _ := newTestTable(t, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	_, ok := table.ByNameOrNull("[M+Xx]+")
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "could not parse ion type")

	typ, ok := table.ByNameOrNull("[M+H]+")
	assert.True(t, ok)
	assert.True(t, typ.IsPlainProtonationOrDeprotonation())
}

func TestPrecursorIonToNeutralMolecule(t *testing.T) {
	table, r := newTestTable(t)

	hplus := table.MustByName("[M+H]+")
	neutral, err := hplus.PrecursorIonToNeutralMolecule(r.MustParse("C6H13O6"))
	require.NoError(t, err)
	assert.True(t, neutral.Equal(r.MustParse("C6H12O6")), "got %s", neutral)

	tests := []struct {
		ion       string
		precursor string
		measured  string
	}{
		{"[M+H]+", "C6H13O6", "C6H12O6"},
		{"[M+NH4]+", "C6H16NO6", "C6H15NO6"},
		{"[M+H-H2O]+", "C6H11O5", "C6H10O5"},
		{"[M+Na]+", "C6H12NaO6", "C6H12O6"},
		{"[M-H]-", "C6H11O6", "C6H12O6"},
		{"[M+Cl]-", "C6H12ClO6", "C6H12O6"},
		{"[M+CH2O2-H]-", "C7H13O8", "C7H14O8"},
	}
	glucose := r.MustParse("C6H12O6")
	for _, tt := range tests {
		t.Run(tt.ion, func(t *testing.T) {
			typ := table.MustByName(tt.ion)

			precursor, err := typ.NeutralMoleculeToPrecursorIon(glucose)
			require.NoError(t, err)
			assert.Equal(t, tt.precursor, precursor.String())

			measured, err := typ.NeutralMoleculeToMeasuredNeutralMolecule(glucose)
			require.NoError(t, err)
			assert.Equal(t, tt.measured, measured.String())

			back, err := typ.PrecursorIonToNeutralMolecule(precursor)
			require.NoError(t, err)
			assert.True(t, back.Equal(glucose))

			back, err = typ.MeasuredNeutralMoleculeToNeutralMolecule(measured)
			require.NoError(t, err)
			assert.True(t, back.Equal(glucose))
		})
	}
}

func TestPrecursorMass(t *testing.T) {
	table, r := newTestTable(t)
	glucose := r.MustParse("C6H12O6").Mass()
	sodium := r.MustParse("Na").Mass()

	hplus := table.MustByName("[M+H]+")
	mz := hplus.NeutralMassToPrecursorMass(glucose)
	assert.InDelta(t, 181.0706645, mz, 1e-6)
	assert.InDelta(t, glucose, hplus.PrecursorMassToNeutralMass(mz), 1e-9)

	naplus := table.MustByName("[M+Na]+")
	assert.InDelta(t, glucose+sodium-ElectronMass, naplus.NeutralMassToPrecursorMass(glucose), 1e-9)
	assert.InDelta(t, sodium-ElectronMass, naplus.ModificationMass(), 1e-9)

	water := table.MustByName("[M+H-H2O]+")
	mz = water.NeutralMassToPrecursorMass(glucose)
	assert.InDelta(t, glucose, water.PrecursorMassToNeutralMass(mz), 1e-9)
	assert.InDelta(t, mz, water.MeasuredNeutralMassToPrecursorMass(water.NeutralMassToMeasuredNeutralMass(glucose)), 1e-9)
	assert.InDelta(t, glucose, water.MeasuredNeutralMassToNeutralMass(water.PrecursorMassToMeasuredNeutralMass(mz)), 1e-9)

	intrinsic := table.MustByName("[M]+")
	assert.True(t, intrinsic.IsIntrinsicallyCharged())
	assert.InDelta(t, 200.0+ElectronMass, intrinsic.PrecursorMassToNeutralMass(200.0), 1e-12)

	negative := table.MustByName("[M]-")
	assert.InDelta(t, 200.0-ElectronMass, negative.PrecursorMassToNeutralMass(200.0), 1e-12)
}

func TestIonTypeEquality(t *testing.T) {
	table, r := newTestTable(t)
	h := table.Protonation()

	a, err := New(h, r.MustParse("H2O"), chem.Formula{})
	require.NoError(t, err)
	b, err := New(h, r.MustParse("H4O2"), r.MustParse("H2O"))
	require.NoError(t, err)
	assert.True(t, a.Equal(b), "same net modification")
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.String(), b.String())

	plain, err := New(UnknownCharge(1), chem.Formula{}, chem.Formula{})
	require.NoError(t, err)
	assert.False(t, plain.Equal(UnknownType(1)))
	assert.False(t, UnknownType(1).Equal(IntrinsicallyChargedType(1)))
	assert.False(t, table.MustByName("[M]+•").Equal(IntrinsicallyChargedType(1)))

	assert.True(t, a.IsApplicableToNeutralFormula(r.MustParse("C6H12O6")))
	assert.False(t, a.IsApplicableToNeutralFormula(r.MustParse("CH4")))
	nh4 := table.MustByName("[M+NH4]+")
	assert.True(t, nh4.IsApplicableToMeasuredFormula(r.MustParse("C6H15NO6")))
	assert.False(t, nh4.IsApplicableToMeasuredFormula(r.MustParse("C6H12O6")))

	assert.Equal(t, "[M + H]+", nh4.WithoutAdduct().String())
	assert.Equal(t, "[M + H]+", a.WithoutInSource().String())
	sub, err := a.SubstituteInSource(r.MustParse("CO2"))
	require.NoError(t, err)
	assert.Equal(t, "[M - CO2 + H]+", sub.String())
	sub, err = a.SubstituteAdduct(r.MustParse("Na"))
	require.NoError(t, err)
	assert.Equal(t, "[M - H2O + Na + H]+", sub.String())

	assert.True(t, table.MustByName("[M-H]-").IsPlainProtonationOrDeprotonation())
	assert.False(t, nh4.IsPlainProtonationOrDeprotonation())
	assert.False(t, table.MustByName("[M]+").IsPlainProtonationOrDeprotonation())
}

func TestCompare(t *testing.T) {
	table, _ := newTestTable(t)
	names := []string{"[M-H]-", "[M]+", "[M+Na]+", "[M+?]+", "[M+H]+", "[M+NH4]+"}
	var types []PrecursorIonType
	for _, name := range names {
		types = append(types, table.MustByName(name))
	}

	slices.SortFunc(types, Compare)
	var got []string
	for _, typ := range types {
		got = append(got, typ.String())
	}
	assert.Equal(t, []string{"[M+?]+", "[M + H]+", "[M + Na]+", "[M]+", "[M + H3N + H]+", "[M - H]-"}, got)
}

func TestKnownLikelyPrecursorIonTypes(t *testing.T) {
	table, _ := newTestTable(t)

	positive, err := table.KnownLikelyPrecursorIonTypes(1)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(positive), 7)
	var head []string
	for _, typ := range positive[:4] {
		head = append(head, typ.String())
	}
	assert.Equal(t, []string{"[M + H]+", "[M]+", "[M - H2O + H]+", "[M + Na]+"}, head)
	for _, typ := range positive {
		assert.True(t, typ.IsPositive())
	}

	negative, err := table.KnownLikelyPrecursorIonTypes(-1)
	require.NoError(t, err)
	assert.Equal(t, "[M - H]-", negative[0].String())
	assert.Equal(t, "[M]-", negative[1].String())
	assert.Len(t, negative, 6)

	_, err = table.KnownLikelyPrecursorIonTypes(2)
	assert.ErrorIs(t, err, chem.ErrUnsupportedIonNotation)
}

func TestByMass(t *testing.T) {
	table, r := newTestTable(t)
	sodium := r.MustParse("Na").Mass()

	tests := []struct {
		name   string
		mass   float64
		charge int
		want   string
	}{
		{"protonation", 1.007276, 1, "[M + H]+"},
		{"deprotonation", -1.007276, -1, "[M - H]-"},
		{"sodium", sodium - ElectronMass, 1, "[M + Na]+"},
		{"intrinsic", 0.0, -1, "[M]-"},
		{"water loss", 1.007276 - 18.010565, 1, "[M - H2O + H]+"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, ok := table.ByMass(tt.mass, 0.001, tt.charge)
			require.True(t, ok)
			assert.Equal(t, tt.want, typ.String())
		})
	}

	_, ok := table.ByMass(1000.0, 0.01, 1)
	assert.False(t, ok)
}

func TestIonModes(t *testing.T) {
	table, _ := newTestTable(t)

	_, err := table.AddCommonIonMode(UnknownCharge(2))
	assert.ErrorIs(t, err, chem.ErrUnsupportedIonNotation)

	before := len(table.IonModes(1))
	typ, err := table.ByName("[M+Fe]+")
	require.NoError(t, err)
	assert.Equal(t, "[M + Fe]+", typ.String())

	modes := table.IonModes(1)
	require.Len(t, modes, before+1)
	assert.Equal(t, "[M + Fe]+", modes[len(modes)-2].Name())
	assert.True(t, modes[len(modes)-1].IsProtonation())

	added, err := table.AddCommonIonMode(modes[0])
	require.NoError(t, err)
	assert.False(t, added)
}

func TestAddCommonIonType(t *testing.T) {
	table, r := newTestTable(t)
	hplus := table.MustByName("[M+H]+")

	added, err := table.AddCommonIonType(hplus)
	require.NoError(t, err)
	assert.False(t, added)

	_, err = table.AddCommonIonTypeAs("[M+H]+", table.MustByName("[M+Na]+"))
	assert.Error(t, err)

	acn, err := New(table.Protonation(), chem.Formula{}, r.MustParse("C2H3N"))
	require.NoError(t, err)
	added, err = table.AddCommonIonTypeAs("M+ACN+H", acn)
	require.NoError(t, err)
	assert.True(t, added)
	assert.True(t, table.HasIon("M + ACN + H"))
	assert.Contains(t, table.IonTypes(1), acn)
	assert.Contains(t, table.AdductsOf(table.Protonation()), acn)

	assert.Equal(t, "[M + H]+", table.ForIonization(table.Protonation()).String())
	assert.True(t, table.ForIonization(UnknownCharge(-1)).IsIonizationUnknown())
}

func TestTableFor(t *testing.T) {
	r, err := chem.NewDefaultRegistry()
	require.NoError(t, err)

	a, err := TableFor(r)
	require.NoError(t, err)
	b, err := TableFor(r)
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = TableFor(chem.NewRegistry())
	assert.ErrorIs(t, err, chem.ErrUnknownElement)

	assert.NotNil(t, Default().MustByName("[M+H]+"))
}

func TestConcurrentParsing(t *testing.T) {
	table, _ := newTestTable(t)
	names := []string{"[M+H]+", "[M+Fe]+", "[M+Cu]-", "[M+ACN+H]+", "[M-H2O-H]-", "[M+Zn]+"}

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; i < 50; i++ {
				if _, err := table.ByName(names[(w+i)%len(names)]); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var symbols []string
	for _, mode := range table.IonModes(1) {
		symbols = append(symbols, mode.Name())
	}
	assert.Contains(t, symbols, "[M + Fe]+")
	assert.Contains(t, symbols, "[M + Zn]+")
}

package ion

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/ChrisMcGann/FormulaKey/pkg/chem"
)

// Special flags ion types that are not described by their formulas alone.
type Special uint8

const (
	Regular Special = iota
	// Unknown marks an ion type of which only the charge is known.
	Unknown
	// IntrinsicallyCharged marks molecules that carry their charge without
	// any ionization, e.g. quaternary ammonium compounds.
	IntrinsicallyCharged
)

// PrecursorIonType describes how a neutral molecule turns into the measured
// precursor ion. The ionization is kept by every fragment; the adduct may be
// lost in fragments and the in-source fragment is lost before fragmentation.
//
// Three kinds of formulas are distinguished:
//   - neutral: the molecule as stored in a database
//   - measured: neutral minus in-source fragment plus adduct, uncharged
//   - precursor: measured plus the ionization atoms, i.e. the actual ion
type PrecursorIonType struct {
	ionization   Ionization
	inSource     chem.Formula
	adduct       chem.Formula
	modification chem.Formula
	special      Special
	name         string
}

// New composes a regular ion type. Empty formulas may be passed as the zero
// chem.Formula.
func New(ionization Ionization, inSource, adduct chem.Formula) (PrecursorIonType, error) {
	return newIonType(ionization, inSource, adduct, Regular)
}

func newIonType(ionization Ionization, inSource, adduct chem.Formula, special Special) (PrecursorIonType, error) {
	modification, err := adduct.Subtract(inSource)
	if err != nil {
		return PrecursorIonType{}, fmt.Errorf("ion type modification: %w", err)
	}
	t := PrecursorIonType{
		ionization:   ionization,
		inSource:     inSource,
		adduct:       adduct,
		modification: modification,
		special:      special,
	}
	t.name = t.format()
	return t, nil
}

// UnknownType returns the ion type of which only the charge is known.
func UnknownType(charge int) PrecursorIonType {
	t := PrecursorIonType{ionization: UnknownCharge(charge), special: Unknown}
	t.name = t.format()
	return t
}

// IntrinsicallyChargedType returns the ion type of a molecule that is charged
// without ionization. Only the missing or surplus electron is accounted for.
func IntrinsicallyChargedType(charge int) PrecursorIonType {
	t := PrecursorIonType{ionization: UnknownCharge(charge), special: IntrinsicallyCharged}
	t.name = t.format()
	return t
}

func (t PrecursorIonType) format() string {
	switch t.special {
	case Unknown:
		return t.ionization.Name()
	case IntrinsicallyCharged:
		return "[M]" + chargeSign(t.Charge())
	}

	var b strings.Builder
	b.WriteString("[M")
	if !t.inSource.IsEmpty() {
		b.WriteString(" - ")
		b.WriteString(t.inSource.String())
	}
	if !t.adduct.IsEmpty() {
		b.WriteString(" + ")
		b.WriteString(t.adduct.String())
	}
	if atoms := t.ionization.Atoms(); !atoms.IsEmpty() {
		if atoms.IsAllPositiveOrZero() {
			b.WriteString(" + ")
			b.WriteString(atoms.String())
		} else {
			neg, _ := atoms.Negate()
			b.WriteString(" - ")
			b.WriteString(neg.String())
		}
	}
	b.WriteString("]")
	b.WriteString(chargeSign(t.Charge()))
	if t.ionization.Kind() == KindElectron {
		b.WriteString("•")
	}
	return b.String()
}

func chargeSign(charge int) string {
	switch {
	case charge == 1:
		return "+"
	case charge == -1:
		return "-"
	case charge > 1:
		return fmt.Sprintf("%d+", charge)
	case charge < -1:
		return fmt.Sprintf("%d-", -charge)
	}
	return ""
}

func (t PrecursorIonType) Ionization() Ionization     { return t.ionization }
func (t PrecursorIonType) InSource() chem.Formula     { return t.inSource }
func (t PrecursorIonType) Adduct() chem.Formula       { return t.adduct }
func (t PrecursorIonType) Modification() chem.Formula { return t.modification }
func (t PrecursorIonType) Special() Special           { return t.special }
func (t PrecursorIonType) Charge() int                { return t.ionization.Charge() }
func (t PrecursorIonType) IsPositive() bool           { return t.Charge() > 0 }
func (t PrecursorIonType) IsNegative() bool           { return t.Charge() < 0 }

// String returns the canonical name, e.g. "[M - H2O + H]+".
func (t PrecursorIonType) String() string { return t.name }

func (t PrecursorIonType) IsIonizationUnknown() bool    { return t.special == Unknown }
func (t PrecursorIonType) IsIntrinsicallyCharged() bool { return t.special == IntrinsicallyCharged }

// HasNeitherAdductNorInSource reports whether only the ionization is applied.
func (t PrecursorIonType) HasNeitherAdductNorInSource() bool {
	return t.inSource.IsEmpty() && t.adduct.IsEmpty()
}

// IsPlainProtonationOrDeprotonation reports whether t is [M+H]+ or [M-H]-.
func (t PrecursorIonType) IsPlainProtonationOrDeprotonation() bool {
	if t.special != Regular || !t.HasNeitherAdductNorInSource() {
		return false
	}
	return (t.Charge() > 0 && t.ionization.IsProtonation()) ||
		(t.Charge() < 0 && t.ionization.IsDeprotonation())
}

// ModificationMass is the mass difference between the precursor ion and the
// neutral molecule, including electrons.
func (t PrecursorIonType) ModificationMass() float64 {
	return t.ionization.Mass() + t.adduct.Mass() - t.inSource.Mass()
}

// PrecursorMassToNeutralMass converts the precursor m/z into the neutral mass.
func (t PrecursorIonType) PrecursorMassToNeutralMass(mz float64) float64 {
	return t.ionization.SubtractFromMass(mz - t.adduct.Mass() + t.inSource.Mass())
}

// NeutralMassToPrecursorMass converts the neutral mass into the precursor m/z.
func (t PrecursorIonType) NeutralMassToPrecursorMass(mass float64) float64 {
	return t.ionization.AddToMass(mass + t.adduct.Mass() - t.inSource.Mass())
}

func (t PrecursorIonType) NeutralMassToMeasuredNeutralMass(mass float64) float64 {
	return mass - t.inSource.Mass() + t.adduct.Mass()
}

func (t PrecursorIonType) MeasuredNeutralMassToNeutralMass(mass float64) float64 {
	return mass + t.inSource.Mass() - t.adduct.Mass()
}

func (t PrecursorIonType) PrecursorMassToMeasuredNeutralMass(mz float64) float64 {
	return t.ionization.SubtractFromMass(mz)
}

func (t PrecursorIonType) MeasuredNeutralMassToPrecursorMass(mass float64) float64 {
	return t.ionization.AddToMass(mass)
}

// NeutralMoleculeToPrecursorIon adds adduct and ionization atoms and removes
// the in-source fragment.
func (t PrecursorIonType) NeutralMoleculeToPrecursorIon(f chem.Formula) (chem.Formula, error) {
	return chain(f, t.modification, t.ionization.Atoms())
}

// PrecursorIonToNeutralMolecule reverses NeutralMoleculeToPrecursorIon.
func (t PrecursorIonType) PrecursorIonToNeutralMolecule(f chem.Formula) (chem.Formula, error) {
	g, err := f.Subtract(t.modification)
	if err != nil {
		return chem.Formula{}, err
	}
	return g.Subtract(t.ionization.Atoms())
}

// NeutralMoleculeToMeasuredNeutralMolecule applies adduct and in-source
// fragment but no ionization.
func (t PrecursorIonType) NeutralMoleculeToMeasuredNeutralMolecule(f chem.Formula) (chem.Formula, error) {
	return f.Add(t.modification)
}

// MeasuredNeutralMoleculeToNeutralMolecule reverses NeutralMoleculeToMeasuredNeutralMolecule.
func (t PrecursorIonType) MeasuredNeutralMoleculeToNeutralMolecule(f chem.Formula) (chem.Formula, error) {
	return f.Subtract(t.modification)
}

func chain(f chem.Formula, add ...chem.Formula) (chem.Formula, error) {
	var err error
	for _, g := range add {
		if f, err = f.Add(g); err != nil {
			return chem.Formula{}, err
		}
	}
	return f, nil
}

// IsApplicableToNeutralFormula reports whether the in-source fragment can be
// removed from the neutral formula.
func (t PrecursorIonType) IsApplicableToNeutralFormula(neutral chem.Formula) bool {
	return t.inSource.IsEmpty() || neutral.IsSubtractable(t.inSource)
}

// IsApplicableToMeasuredFormula reports whether the measured formula still
// contains the adduct.
func (t PrecursorIonType) IsApplicableToMeasuredFormula(measured chem.Formula) bool {
	return t.adduct.IsEmpty() || measured.IsSubtractable(t.adduct)
}

// WithoutAdduct returns t with an empty adduct.
func (t PrecursorIonType) WithoutAdduct() PrecursorIonType {
	out, _ := newIonType(t.ionization, t.inSource, chem.Formula{}, t.special)
	return out
}

// WithoutInSource returns t with an empty in-source fragment.
func (t PrecursorIonType) WithoutInSource() PrecursorIonType {
	out, _ := newIonType(t.ionization, chem.Formula{}, t.adduct, t.special)
	return out
}

func (t PrecursorIonType) SubstituteAdduct(adduct chem.Formula) (PrecursorIonType, error) {
	return newIonType(t.ionization, t.inSource, adduct, t.special)
}

func (t PrecursorIonType) SubstituteInSource(inSource chem.Formula) (PrecursorIonType, error) {
	return newIonType(t.ionization, inSource, t.adduct, t.special)
}

// Equal compares ionization, net modification and special flag. Ion types
// that split the same modification differently into adduct and in-source
// fragment are equal.
func (t PrecursorIonType) Equal(other PrecursorIonType) bool {
	return t.special == other.special &&
		t.ionization.Equal(other.ionization) &&
		t.modification.Equal(other.modification)
}

// Key returns a string that is equal for equal ion types.
func (t PrecursorIonType) Key() string {
	return fmt.Sprintf("%d|%s|%s", t.special, t.ionization.key(), t.modification)
}

// Compare orders ion types from most to least common: unknown types first,
// then positive before negative, unmodified before modified, plain
// protonation first, intrinsic charges last, NH3 adducts before other
// adducts and finally by adduct and in-source fragment mass.
func Compare(a, b PrecursorIonType) int {
	return cmp.Or(
		-cmpBool(a.IsIonizationUnknown(), b.IsIonizationUnknown()),
		cmp.Compare(-sign(a.Charge()), -sign(b.Charge())),
		cmpBool(!a.modification.IsEmpty(), !b.modification.IsEmpty()),
		cmpBool(!a.IsPlainProtonationOrDeprotonation(), !b.IsPlainProtonationOrDeprotonation()),
		cmpBool(a.IsIntrinsicallyCharged(), b.IsIntrinsicallyCharged()),
		cmpBool(!isAmmonia(a.adduct), !isAmmonia(b.adduct)),
		cmpBool(!a.adduct.IsEmpty(), !b.adduct.IsEmpty()),
		cmpBool(!a.inSource.IsEmpty(), !b.inSource.IsEmpty()),
		cmp.Compare(a.adduct.Mass(), b.adduct.Mass()),
		cmp.Compare(a.inSource.Mass(), b.inSource.Mass()),
		strings.Compare(a.name, b.name),
	)
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	}
	return -1
}

func sign(n int) int {
	return cmp.Compare(n, 0)
}

func isAmmonia(f chem.Formula) bool {
	return f.NumberOfElements() == 2 && f.Nitrogens() == 1 && f.Hydrogens() == 3
}

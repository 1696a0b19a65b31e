// Package ion models how a neutral molecule becomes the ion measured by a
// mass spectrometer: the charge carrier (Ionization) and the adducts and
// in-source fragments around it (PrecursorIonType).
package ion

import (
	"fmt"

	"github.com/ChrisMcGann/FormulaKey/pkg/chem"
)

// ElectronMass is the rest mass of an electron in Dalton.
const ElectronMass = 0.00054857990946

// Kind distinguishes the ionization variants.
type Kind uint8

const (
	// KindUnknownCharge carries only a charge; the ion mode is unknown.
	KindUnknownCharge Kind = iota
	// KindAdduct attaches (or removes) a formula together with the charge.
	KindAdduct
	// KindElectron removes a single electron.
	KindElectron
)

func (k Kind) String() string {
	switch k {
	case KindUnknownCharge:
		return "unknown"
	case KindAdduct:
		return "adduct"
	case KindElectron:
		return "electron"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Ionization is the charge carrying modification that is applied to the
// precursor ion and all of its fragments.
type Ionization struct {
	kind   Kind
	charge int
	name   string
	atoms  chem.Formula
}

// UnknownCharge returns an ionization that only knows its charge.
func UnknownCharge(charge int) Ionization {
	name := "[M+?]"
	switch {
	case charge > 0:
		name += "+"
	case charge < 0:
		name += "-"
	}
	return Ionization{kind: KindUnknownCharge, charge: charge, name: name}
}

// NewAdduct returns an ion mode that adds atoms and charge, e.g. protonation
// with atoms H and charge +1. Losses use negative atoms.
func NewAdduct(charge int, name string, atoms chem.Formula) Ionization {
	return Ionization{kind: KindAdduct, charge: charge, name: name, atoms: atoms}
}

// ElectronIonization returns the radical cation mode of electron impact ionization.
func ElectronIonization() Ionization {
	return Ionization{kind: KindElectron, charge: 1, name: "[M]+•"}
}

func (i Ionization) Kind() Kind          { return i.kind }
func (i Ionization) Charge() int         { return i.charge }
func (i Ionization) Name() string        { return i.name }
func (i Ionization) Atoms() chem.Formula { return i.atoms }
func (i Ionization) String() string      { return i.name }

// Mass returns the mass difference between the ion and the neutral molecule:
// the mass of the attached atoms minus the electrons carrying the charge.
func (i Ionization) Mass() float64 {
	switch i.kind {
	case KindAdduct:
		return i.atoms.Mass() - float64(i.charge)*ElectronMass
	case KindElectron:
		return -ElectronMass
	default:
		return -float64(i.charge) * ElectronMass
	}
}

// AddToMass converts a neutral mass into the m/z of its ion.
func (i Ionization) AddToMass(neutralMass float64) float64 {
	return (neutralMass + i.Mass()) / float64(i.absCharge())
}

// SubtractFromMass converts an m/z into the neutral mass of the molecule.
func (i Ionization) SubtractFromMass(mz float64) float64 {
	return mz*float64(i.absCharge()) - i.Mass()
}

func (i Ionization) absCharge() int {
	switch {
	case i.charge < 0:
		return -i.charge
	case i.charge == 0:
		return 1
	}
	return i.charge
}

// IsProtonation reports whether i attaches a single proton.
func (i Ionization) IsProtonation() bool {
	return i.kind == KindAdduct && i.charge == 1 && isHydrogen(i.atoms, 1)
}

// IsDeprotonation reports whether i removes a single proton.
func (i Ionization) IsDeprotonation() bool {
	return i.kind == KindAdduct && i.charge == -1 && isHydrogen(i.atoms, -1)
}

func isHydrogen(f chem.Formula, n int) bool {
	return f.NumberOfElements() == 1 && f.Hydrogens() == n
}

// Equal compares kind, charge and atoms; display names are ignored.
func (i Ionization) Equal(other Ionization) bool {
	return i.kind == other.kind && i.charge == other.charge && i.atoms.Equal(other.atoms)
}

func (i Ionization) key() string {
	return fmt.Sprintf("%d|%d|%s", i.kind, i.charge, i.atoms)
}

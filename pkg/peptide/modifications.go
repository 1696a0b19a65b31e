package peptide

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/FormulaKey/pkg/chem"
)

// Modification is a mass shift at a residue position. Composition is empty
// for modifications known only by mass.
type Modification struct {
	Name        string
	Mass        float64
	Position    int // 0-based; -1 for N-term
	Composition chem.Formula
}

// ModEntry is a named modification definition.
type ModEntry struct {
	Mass        float64
	Composition chem.Formula
}

// ModDatabase stores modification definitions
type ModDatabase struct {
	registry *chem.Registry
	mods     map[string]ModEntry
}

// NewModDatabase creates an empty modification database
func NewModDatabase(r *chem.Registry) *ModDatabase {
	return &ModDatabase{
		registry: r,
		mods:     make(map[string]ModEntry),
	}
}

// ParseComposition reads a composition delta written as "gain-loss", e.g.
// "O-HN" for deamidation or "-H2O" for a dehydration.
func ParseComposition(r *chem.Registry, text string) (chem.Formula, error) {
	gainText, lossText, _ := strings.Cut(strings.TrimSpace(text), "-")
	var gain, loss chem.Formula
	var err error
	if gainText != "" {
		if gain, err = r.Parse(gainText); err != nil {
			return chem.Formula{}, err
		}
	}
	if lossText != "" {
		if loss, err = r.Parse(lossText); err != nil {
			return chem.Formula{}, err
		}
	}
	return gain.Subtract(loss)
}

// LoadFromCSV loads modifications from a CSV file (format: mod,massshift,aa[,composition])
func (db *ModDatabase) LoadFromCSV(r io.Reader) error {
	scanner := bufio.NewScanner(r)

	// header
	scanner.Scan()

	lineNum := 1
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			return fmt.Errorf("line %d: invalid format, expected at least 2 comma-separated fields", lineNum)
		}

		modName := strings.TrimSpace(parts[0])
		massStr := strings.TrimSpace(parts[1])

		mass, err := strconv.ParseFloat(massStr, 64)
		if err != nil {
			return fmt.Errorf("line %d: invalid mass value '%s': %w", lineNum, massStr, err)
		}

		entry := ModEntry{Mass: mass}
		if len(parts) >= 4 && strings.TrimSpace(parts[3]) != "" {
			entry.Composition, err = ParseComposition(db.registry, parts[3])
			if err != nil {
				return fmt.Errorf("line %d: invalid composition: %w", lineNum, err)
			}
		}
		db.mods[modName] = entry
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading CSV: %w", err)
	}

	return nil
}

// Get returns the definition of a modification name
func (db *ModDatabase) Get(name string) (ModEntry, bool) {
	entry, ok := db.mods[name]
	return entry, ok
}

// ByNominalMass finds the modification whose mass shift rounds to nominal.
// It fails when definitions of different mass share the nominal mass.
func (db *ModDatabase) ByNominalMass(nominal int) (string, ModEntry, bool) {
	var names []string
	for name, entry := range db.mods {
		if int(math.Round(entry.Mass)) == nominal {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", ModEntry{}, false
	}
	slices.Sort(names)
	best := db.mods[names[0]]
	for _, name := range names[1:] {
		if math.Abs(db.mods[name].Mass-best.Mass) > 1e-4 {
			return "", ModEntry{}, false
		}
	}
	return names[0], best, true
}

// Add adds or updates a modification known only by its mass shift
func (db *ModDatabase) Add(name string, mass float64) {
	db.mods[name] = ModEntry{Mass: mass}
}

// AddComposition adds or updates a modification by composition. The mass
// shift is taken from the composition.
func (db *ModDatabase) AddComposition(name, composition string) error {
	f, err := ParseComposition(db.registry, composition)
	if err != nil {
		return fmt.Errorf("modification %s: %w", name, err)
	}
	db.mods[name] = ModEntry{Mass: f.Mass(), Composition: f}
	return nil
}

// ParseModString parses a modification string like "57.021464@2;15.994915@8" or "Carbamidomethyl@C2;Oxidation@M8"
func (db *ModDatabase) ParseModString(modStr string, sequence string) ([]Modification, error) {
	if modStr == "" {
		return nil, nil
	}

	var mods []Modification
	for _, part := range strings.Split(modStr, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		nameOrMass, posStr, ok := strings.Cut(part, "@")
		if !ok || strings.Contains(posStr, "@") {
			return nil, fmt.Errorf("invalid modification format '%s', expected 'name@position' or 'mass@position'", part)
		}
		nameOrMass = strings.TrimSpace(nameOrMass)

		mod := Modification{Name: nameOrMass}
		if mass, err := strconv.ParseFloat(nameOrMass, 64); err == nil {
			mod.Mass = mass
		} else {
			entry, ok := db.Get(nameOrMass)
			if !ok {
				return nil, fmt.Errorf("unknown modification '%s'", nameOrMass)
			}
			mod.Mass = entry.Mass
			mod.Composition = entry.Composition
		}

		position, err := parsePosition(posStr, sequence)
		if err != nil {
			return nil, fmt.Errorf("invalid position '%s': %w", posStr, err)
		}
		mod.Position = position
		mods = append(mods, mod)
	}

	return mods, nil
}

// parsePosition parses a position string that may be just a number or include an amino acid
// Examples: "2", "C2", "R-1" (N-terminal)
func parsePosition(posStr string, sequence string) (int, error) {
	posStr = strings.TrimSpace(posStr)

	if posStr == "-1" || strings.HasSuffix(posStr, "-1") {
		return -1, nil
	}

	posStr = strings.TrimLeft(posStr, "ACDEFGHIKLMNPQRSTVWY")

	pos, err := strconv.Atoi(posStr)
	if err != nil {
		return 0, fmt.Errorf("invalid position number: %w", err)
	}
	if pos > 0 {
		pos--
	}
	if sequence != "" && pos >= len(sequence) {
		return 0, fmt.Errorf("position %d is outside of %s", pos+1, sequence)
	}

	return pos, nil
}

// DefaultModDatabase returns a ModDatabase pre-loaded with common Unimod
// modifications. Isotope labels are known by mass only.
func DefaultModDatabase(r *chem.Registry) (*ModDatabase, error) {
	db := NewModDatabase(r)

	compositions := []struct{ name, composition string }{
		{"Acetyl", "C2H2O"},
		{"Amidated", "HN-O"},
		{"Biotin", "C10H14N2O2S"},
		{"Carbamidomethyl", "C2H3NO"},
		{"Carbamyl", "CHNO"},
		{"Carboxymethyl", "C2H2O2"},
		{"Deamidated", "O-HN"},
		{"Met->Hse", "O-CH2S"},
		{"Phospho", "HO3P"},
		{"Dehydrated", "-H2O"},
		{"Propionamide", "C3H5NO"},
		{"Glu->pyro-Glu", "-H2O"},
		{"Gln->pyro-Glu", "-H3N"},
		{"Cation:Na", "Na-H"},
		{"Methyl", "CH2"},
		{"Oxidation", "O"},
		{"Dimethyl", "C2H4"},
		{"Trimethyl", "C3H6"},
		{"Sulfo", "O3S"},
		{"Hex", "C6H10O5"},
		{"HexNAc", "C8H13NO5"},
		{"Glucuronyl", "C6H8O6"},
		{"Propionyl", "C3H4O"},
	}
	for _, m := range compositions {
		if err := db.AddComposition(m.name, m.composition); err != nil {
			return nil, err
		}
	}

	db.Add("TMT", 229.162932)
	db.Add("TMTPro", 304.207146)
	db.Add("TMT_Pro", 304.207146)
	db.Add("TMT6plex", 229.162932)
	db.Add("TMT10plex", 229.162932)
	db.Add("TMT11plex", 229.162932)
	db.Add("TMT16plex", 304.207146)
	db.Add("iTRAQ4plex", 144.102063)
	db.Add("iTRAQ8plex", 304.205360)

	return db, nil
}

package ion

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ChrisMcGann/FormulaKey/pkg/chem"
)

// Default adduct lists, most common first.
const (
	DefaultPositiveAdducts = "[M+H]+,[M+Na]+,[M+K]+,[M+NH4]+,[M+H-H2O]+,[M+H-H4O2]+,[M]+"
	DefaultNegativeAdducts = "[M-H]-,[M+Cl]-,[M+Br]-,[M-H2O-H]-,[M+CH2O2-H]-,[M]-"
)

// aliases are accepted short forms of common ion types.
var aliases = map[string]string{
	"M+H":   "[M+H]+",
	"M+H+":  "[M+H]+",
	"[M+H]": "[M+H]+",
	"M-H":   "[M-H]-",
	"M-H-":  "[M-H]-",
	"[M-H]": "[M-H]-",
	"M+":    "[M]+",
	"M-":    "[M]-",
}

// Table holds the known ion modes and ion types of one registry. Parsing an
// ion type with an unknown single element adduct registers a new ion mode,
// so tables are mutable and guarded by a mutex.
type Table struct {
	registry *chem.Registry
	logger   *slog.Logger

	hydrogen      chem.Formula
	protonation   Ionization
	deprotonation Ionization

	mu           sync.RWMutex
	positive     []Ionization
	negative     []Ionization
	known        map[string]PrecursorIonType
	types        []PrecursorIonType
	byIonization map[string][]PrecursorIonType
}

type options struct {
	logger   *slog.Logger
	positive []string
	negative []string
}

// Option configures a Table.
type Option func(*options)

// WithLogger sets the logger used for skipped or unparsable ion types.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPositiveAdducts replaces the list of common positive ion types.
func WithPositiveAdducts(names ...string) Option {
	return func(o *options) { o.positive = names }
}

// WithNegativeAdducts replaces the list of common negative ion types.
func WithNegativeAdducts(names ...string) Option {
	return func(o *options) { o.negative = names }
}

// SplitAdducts splits a comma separated list of ion type names.
func SplitAdducts(list string) []string {
	var names []string
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// NewTable builds the ion table of r. The registry must know hydrogen;
// K, Na, Cl and Br modes are added when the registry knows those elements.
func NewTable(r *chem.Registry, opts ...Option) (*Table, error) {
	o := options{
		logger:   r.Logger(),
		positive: SplitAdducts(DefaultPositiveAdducts),
		negative: SplitAdducts(DefaultNegativeAdducts),
	}
	for _, opt := range opts {
		opt(&o)
	}

	h := r.Hydrogen()
	if h == nil {
		return nil, fmt.Errorf("ion table: %w: registry has no hydrogen", chem.ErrUnknownElement)
	}
	hydrogen, err := r.SingleElement(h, 1)
	if err != nil {
		return nil, fmt.Errorf("ion table: %w", err)
	}
	proton, _ := hydrogen.Negate()

	t := &Table{
		registry:      r,
		logger:        o.logger,
		hydrogen:      hydrogen,
		protonation:   NewAdduct(1, "[M + H]+", hydrogen),
		deprotonation: NewAdduct(-1, "[M - H]-", proton),
		known:         make(map[string]PrecursorIonType),
		byIonization:  make(map[string][]PrecursorIonType),
	}
	t.positive = append(t.elementModes(1, "K", "Na"), t.protonation)
	t.negative = append(t.elementModes(-1, "Cl", "Br"), t.deprotonation)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.loadKnown(o.positive, 1)
	t.loadKnown(o.negative, -1)

	for alias, target := range aliases {
		if typ, ok := t.known[canonicalName(target)]; ok {
			t.known[alias] = typ
		}
	}
	electron, _ := New(ElectronIonization(), chem.Formula{}, chem.Formula{})
	t.known[canonicalName(electron.String())] = electron
	t.known["M+•"] = electron
	return t, nil
}

func (t *Table) elementModes(charge int, symbols ...string) []Ionization {
	var modes []Ionization
	for _, symbol := range symbols {
		e, ok := t.registry.Element(symbol)
		if !ok {
			continue
		}
		f, err := t.registry.SingleElement(e, 1)
		if err != nil {
			continue
		}
		modes = append(modes, NewAdduct(charge, "[M + "+symbol+"]"+chargeSign(charge), f))
	}
	return modes
}

// loadKnown must be called with mu held.
func (t *Table) loadKnown(names []string, charge int) {
	for _, name := range names {
		typ, err := t.parse(name)
		if err != nil {
			t.logger.Warn("skipping ion type", slog.String("ion", name), slog.Any("error", err))
			continue
		}
		if sign(typ.Charge()) != sign(charge) {
			t.logger.Warn("skipping ion type with wrong charge", slog.String("ion", name), slog.Int("charge", typ.Charge()))
			continue
		}
		if _, err := t.addTypeLocked(typ.String(), typ); err != nil {
			t.logger.Warn("skipping ion type", slog.String("ion", name), slog.Any("error", err))
		}
	}
}

// Registry returns the registry the table parses formulas with.
func (t *Table) Registry() *chem.Registry { return t.registry }

// Protonation returns the [M + H]+ ion mode.
func (t *Table) Protonation() Ionization { return t.protonation }

// Deprotonation returns the [M - H]- ion mode.
func (t *Table) Deprotonation() Ionization { return t.deprotonation }

// ByName returns the ion type with the given name. Known names and aliases
// are looked up first, everything else is parsed as ion notation.
func (t *Table) ByName(name string) (PrecursorIonType, error) {
	key := canonicalName(name)
	switch key {
	case "[M+?]+", "M+?+":
		return UnknownType(1), nil
	case "[M+?]-", "M+?-", "[M-?]-", "M-?-":
		return UnknownType(-1), nil
	case "[M+?]":
		return UnknownType(0), nil
	}

	t.mu.RLock()
	typ, ok := t.known[key]
	t.mu.RUnlock()
	if ok {
		return typ, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.parse(name)
}

// ByNameOrNull is ByName for best-effort callers: failures are logged and
// reported as false.
func (t *Table) ByNameOrNull(name string) (PrecursorIonType, bool) {
	typ, err := t.ByName(name)
	if err != nil {
		t.logger.Warn("could not parse ion type", slog.String("ion", name), slog.Any("error", err))
		return PrecursorIonType{}, false
	}
	return typ, true
}

// MustByName is ByName for names known to be valid. It panics on error.
func (t *Table) MustByName(name string) PrecursorIonType {
	typ, err := t.ByName(name)
	if err != nil {
		panic(err)
	}
	return typ
}

// HasIon reports whether name is a known ion type or alias.
func (t *Table) HasIon(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.known[canonicalName(name)]
	return ok
}

// AddCommonIonType registers typ under its canonical name. It returns false
// if an equal type is already registered under that name.
func (t *Table) AddCommonIonType(typ PrecursorIonType) (bool, error) {
	return t.AddCommonIonTypeAs(typ.String(), typ)
}

// AddCommonIonTypeAs registers typ under name, e.g. an alias such as "M+NH4".
// A name that is already used by a different type is an error.
func (t *Table) AddCommonIonTypeAs(name string, typ PrecursorIonType) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addTypeLocked(name, typ)
}

// addTypeLocked must be called with mu held.
func (t *Table) addTypeLocked(name string, typ PrecursorIonType) (bool, error) {
	key := canonicalName(name)
	if existing, ok := t.known[key]; ok {
		if existing.Equal(typ) {
			return false, nil
		}
		return false, fmt.Errorf("ion type name %q is already used by %s", name, existing)
	}
	t.known[key] = typ
	if !slices.ContainsFunc(t.types, typ.Equal) {
		t.types = append(t.types, typ)
	}

	if typ.special != Regular {
		return true, nil
	}
	ionKey := canonicalName(typ.ionization.Name())
	if _, ok := t.known[ionKey]; !ok {
		plain, err := New(typ.ionization, chem.Formula{}, chem.Formula{})
		if err == nil {
			if _, err := t.addTypeLocked(ionKey, plain); err != nil {
				return true, err
			}
		}
	}
	if !slices.ContainsFunc(t.byIonization[ionKey], typ.Equal) {
		t.byIonization[ionKey] = append(t.byIonization[ionKey], typ)
	}
	return true, nil
}

// IonModes returns the known ion modes for a single positive or negative charge.
func (t *Table) IonModes(charge int) []Ionization {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.modes(charge)
}

// modes must be called with mu held.
func (t *Table) modes(charge int) []Ionization {
	if charge < 0 {
		return slices.Clone(t.negative)
	}
	return slices.Clone(t.positive)
}

// AddCommonIonMode registers an ion mode. New modes are tried before the
// protonation or deprotonation mode, which stays last.
func (t *Table) AddCommonIonMode(mode Ionization) (bool, error) {
	if mode.Charge() != 1 && mode.Charge() != -1 {
		return false, &chem.FormulaError{Op: "add ion mode", Input: mode.Name(), Err: chem.ErrUnsupportedIonNotation}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addModeLocked(mode), nil
}

// addModeLocked must be called with mu held.
func (t *Table) addModeLocked(mode Ionization) bool {
	list := &t.positive
	if mode.Charge() < 0 {
		list = &t.negative
	}
	if slices.ContainsFunc(*list, mode.Equal) {
		return false
	}
	*list = slices.Insert(*list, len(*list)-1, mode)
	t.logger.Debug("registered ion mode", slog.String("mode", mode.Name()))
	return true
}

// IonTypes returns the distinct known ion types with the sign of charge,
// or all of them for charge 0, ordered by Compare.
func (t *Table) IonTypes(charge int) []PrecursorIonType {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []PrecursorIonType
	for _, typ := range t.types {
		if charge == 0 || sign(typ.Charge()) == sign(charge) {
			out = append(out, typ)
		}
	}
	slices.SortStableFunc(out, Compare)
	return out
}

// AdductsOf returns the known ion types that share the ionization of typ.
func (t *Table) AdductsOf(ionization Ionization) []PrecursorIonType {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.byIonization[canonicalName(ionization.Name())])
}

// KnownLikelyPrecursorIonTypes returns the known ion types of a single
// charge, the most likely ones first.
func (t *Table) KnownLikelyPrecursorIonTypes(charge int) ([]PrecursorIonType, error) {
	var likely []string
	switch charge {
	case 1:
		likely = []string{"[M+H]+", "[M]+", "[M+H-H2O]+", "[M+Na]+"}
	case -1:
		likely = []string{"[M-H]-", "[M]-"}
	default:
		return nil, &chem.FormulaError{Op: "likely ion types", Input: fmt.Sprint(charge), Err: chem.ErrUnsupportedIonNotation}
	}

	var out []PrecursorIonType
	for _, name := range likely {
		typ, err := t.ByName(name)
		if err != nil {
			return nil, err
		}
		out = append(out, typ)
	}
	for _, typ := range t.IonTypes(charge) {
		if !slices.ContainsFunc(out, typ.Equal) {
			out = append(out, typ)
		}
	}
	return out, nil
}

// ForIonization returns the plain ion type of an ionization.
func (t *Table) ForIonization(ionization Ionization) PrecursorIonType {
	if ionization.Kind() == KindUnknownCharge {
		return UnknownType(ionization.Charge())
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, typ := range t.types {
		if typ.special == Regular && typ.HasNeitherAdductNorInSource() && typ.ionization.Equal(ionization) {
			return typ
		}
	}
	typ, _ := New(ionization, chem.Formula{}, chem.Formula{})
	return typ
}

// ByMass returns the known ion type whose modification mass is closest to
// mass, within absError. A charge of 0 matches every ion type.
func (t *Table) ByMass(mass, absError float64, charge int) (PrecursorIonType, bool) {
	switch {
	case charge > 0 && math.Abs(mass-t.protonation.Mass()) < absError:
		return t.ForIonization(t.protonation), true
	case charge < 0 && math.Abs(mass-t.deprotonation.Mass()) < absError:
		return t.ForIonization(t.deprotonation), true
	case math.Abs(mass) < absError:
		if charge < 0 {
			return IntrinsicallyChargedType(-1), true
		}
		return IntrinsicallyChargedType(1), true
	}

	var best PrecursorIonType
	minDist := math.Inf(1)
	for _, typ := range t.IonTypes(charge) {
		if d := math.Abs(typ.ModificationMass() - mass); d < minDist {
			best, minDist = typ, d
		}
	}
	if minDist < absError {
		return best, true
	}
	return PrecursorIonType{}, false
}

var tables = xsync.NewMapOf[*chem.Registry, *Table]()

// TableFor returns the shared ion table of r with the default adduct lists,
// building it on first use.
func TableFor(r *chem.Registry) (*Table, error) {
	if t, ok := tables.Load(r); ok {
		return t, nil
	}
	t, err := NewTable(r)
	if err != nil {
		return nil, err
	}
	actual, _ := tables.LoadOrStore(r, t)
	return actual, nil
}

// Default returns the ion table of chem.Default(). It panics if the default
// registry does not know hydrogen.
func Default() *Table {
	t, err := TableFor(chem.Default())
	if err != nil {
		panic(err)
	}
	return t
}

package chem

import (
	_ "embed"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"gopkg.in/yaml.v3"
)

//go:embed elements.yaml
var elementTable []byte

const (
	// DefaultMaxSelectionSize bounds how many elements a MutableFormula may use.
	DefaultMaxSelectionSize = 32
	// DefaultSelectionCap is the soft size limit the cache prefers when extending a selection.
	DefaultSelectionCap = 12
	// DefaultMaxSelections bounds the number of selection lineages held by the cache.
	DefaultMaxSelections = 64
)

// DefaultStarterAlphabet seeds every new cached selection.
var DefaultStarterAlphabet = []string{"C", "H", "N", "O", "P", "S"}

var symbolPattern = regexp.MustCompile(`^[A-Z][a-z]{0,2}$`)

type elementRecord struct {
	Symbol  string  `yaml:"symbol"`
	Name    string  `yaml:"name"`
	Mass    float64 `yaml:"mass"`
	Valence int     `yaml:"valence"`
}

type elementFile struct {
	Elements []elementRecord `yaml:"elements"`
}

// Registry is the catalogue of elements known to the formula grammar. It is
// append-only: elements can be added but never removed or changed.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	elements []*Element
	formula  *regexp.Regexp
	bounds   *regexp.Regexp

	symbols *xsync.MapOf[string, *Element]
	cache   *SelectionCache

	maxSelectionSize int
	selectionCap     int
	maxSelections    int
	starter          []string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used by best-effort entry points.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMaxSelectionSize sets how many elements a MutableFormula may hold with
// a non-zero amount.
func WithMaxSelectionSize(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxSelectionSize = n
		}
	}
}

// WithSelectionCap sets the soft size cap of cached selections.
func WithSelectionCap(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.selectionCap = n
		}
	}
}

// WithMaxSelections bounds the number of selection lineages in the cache.
func WithMaxSelections(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxSelections = n
		}
	}
}

// WithStarterAlphabet sets the symbols every new cached selection starts with.
func WithStarterAlphabet(symbols ...string) Option {
	return func(r *Registry) {
		r.starter = append([]string(nil), symbols...)
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		logger:           slog.Default(),
		symbols:          xsync.NewMapOf[string, *Element](),
		maxSelectionSize: DefaultMaxSelectionSize,
		selectionCap:     DefaultSelectionCap,
		maxSelections:    DefaultMaxSelections,
		starter:          DefaultStarterAlphabet,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cache = newSelectionCache(r, r.selectionCap, r.maxSelections, r.starter)
	return r
}

// NewDefaultRegistry creates a registry loaded with the built-in element table.
func NewDefaultRegistry(opts ...Option) (*Registry, error) {
	r := NewRegistry(opts...)
	if err := r.LoadElements(elementTable); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadElements registers every element of a YAML element table.
func (r *Registry) LoadElements(data []byte) error {
	var file elementFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to decode element table: %w", err)
	}
	for _, rec := range file.Elements {
		if _, err := r.AddElement(rec.Symbol, rec.Name, rec.Mass, rec.Valence); err != nil {
			return fmt.Errorf("failed to load element table: %w", err)
		}
	}
	r.logger.Debug("element table loaded", slog.Int("elements", len(file.Elements)))
	return nil
}

// AddElement registers a new element and invalidates the grammar patterns.
func (r *Registry) AddElement(symbol, name string, mass float64, valence int) (*Element, error) {
	if !symbolPattern.MatchString(symbol) {
		return nil, newError("register", symbol, ErrMalformedFormulaText)
	}
	if mass <= 0 || math.IsNaN(mass) || math.IsInf(mass, 0) {
		return nil, newError("register", symbol, ErrRangeExceeded)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e := newElement(len(r.elements), symbol, name, mass, valence)
	if _, loaded := r.symbols.LoadOrStore(symbol, e); loaded {
		return nil, newError("register", symbol, ErrDuplicateSymbol)
	}
	r.elements = append(r.elements, e)
	r.formula = nil
	r.bounds = nil
	return e, nil
}

// Element looks up an element by symbol.
func (r *Registry) Element(symbol string) (*Element, bool) {
	return r.symbols.Load(symbol)
}

// ElementByID looks up an element by its dense id.
func (r *Registry) ElementByID(id int) (*Element, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id < 0 || id >= len(r.elements) {
		return nil, false
	}
	return r.elements[id], true
}

// Elements returns all registered elements in registration order.
func (r *Registry) Elements() []*Element {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Element(nil), r.elements...)
}

// Len returns the number of registered elements.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.elements)
}

// Hydrogen returns the hydrogen element, or nil if it is not registered.
func (r *Registry) Hydrogen() *Element {
	e, _ := r.Element("H")
	return e
}

// Cache returns the selection cache owned by this registry.
func (r *Registry) Cache() *SelectionCache { return r.cache }

// Logger returns the registry logger.
func (r *Registry) Logger() *slog.Logger { return r.logger }

// MaxSelectionSize returns the widening limit for mutable formulas.
func (r *Registry) MaxSelectionSize() int { return r.maxSelectionSize }

// SelectionFor returns a cached selection covering the given elements.
func (r *Registry) SelectionFor(elements ...*Element) *Selection {
	return r.cache.SelectionFor(NewElementSet(elements...))
}

// Pattern returns the token pattern of the formula grammar.
func (r *Registry) Pattern() *regexp.Regexp {
	r.mu.RLock()
	p := r.formula
	r.mu.RUnlock()
	if p != nil {
		return p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.formula == nil {
		r.formula = regexp.MustCompile(`(\)|` + r.symbolAlternation() + `)(\d*)|\(`)
	}
	return r.formula
}

// boundsPattern matches an element symbol with an optional "[lo-hi]" interval.
func (r *Registry) boundsPattern() *regexp.Regexp {
	r.mu.RLock()
	p := r.bounds
	r.mu.RUnlock()
	if p != nil {
		return p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bounds == nil {
		r.bounds = regexp.MustCompile(`(` + r.symbolAlternation() + `)(?:\[(?:(\d*)\s*-\s*)?(\d*)\])?`)
	}
	return r.bounds
}

// symbolAlternation must be called with mu held.
func (r *Registry) symbolAlternation() string {
	if len(r.elements) == 0 {
		return `[^\s\S]`
	}
	symbols := make([]string, len(r.elements))
	for i, e := range r.elements {
		symbols[i] = e.symbol
	}
	sort.Slice(symbols, func(i, j int) bool {
		if len(symbols[i]) != len(symbols[j]) {
			return len(symbols[i]) > len(symbols[j])
		}
		return symbols[i] < symbols[j]
	})
	for i, s := range symbols {
		symbols[i] = regexp.QuoteMeta(s)
	}
	return strings.Join(symbols, "|")
}

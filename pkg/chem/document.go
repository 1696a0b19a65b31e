package chem

import (
	"fmt"
	"sort"
)

// FilterDocument is the serialized form of a FormulaFilter.
type FilterDocument struct {
	Type    string   `yaml:"type" json:"type" validate:"oneof=valence charge"`
	MinRDBE *float64 `yaml:"minRDBE,omitempty" json:"minRDBE,omitempty"`
	Charged *bool    `yaml:"charged,omitempty" json:"charged,omitempty"`
}

// ConstraintsDocument is the serialized form of FormulaConstraints. Bounds
// are sparse: only limited elements appear. A missing filter list means the
// default valence filter, an empty one means no filters.
type ConstraintsDocument struct {
	Alphabet    string           `yaml:"alphabet" json:"alphabet" validate:"required"`
	Upperbounds map[string]int   `yaml:"upperbounds,omitempty" json:"upperbounds,omitempty" validate:"dive,gte=0"`
	Lowerbounds map[string]int   `yaml:"lowerbounds,omitempty" json:"lowerbounds,omitempty" validate:"dive,gte=0"`
	Filters     []FilterDocument `yaml:"filters" json:"filters" validate:"dive"`
}

// Document returns the serialized form of c.
func (c *FormulaConstraints) Document() ConstraintsDocument {
	doc := ConstraintsDocument{
		Alphabet: c.alphabet.String(),
		Filters:  []FilterDocument{},
	}
	for i, e := range c.alphabet.elements {
		if c.upper[i] != Unbounded {
			if doc.Upperbounds == nil {
				doc.Upperbounds = make(map[string]int)
			}
			doc.Upperbounds[e.symbol] = c.upper[i]
		}
		if c.lower[i] > 0 {
			if doc.Lowerbounds == nil {
				doc.Lowerbounds = make(map[string]int)
			}
			doc.Lowerbounds[e.symbol] = c.lower[i]
		}
	}
	for _, f := range c.filters {
		if fd, ok := filterDocument(f); ok {
			doc.Filters = append(doc.Filters, fd)
		}
	}
	return doc
}

// MarshalYAML encodes constraints as their document.
func (c *FormulaConstraints) MarshalYAML() (interface{}, error) {
	return c.Document(), nil
}

// ConstraintsFromDocument rebuilds constraints from their serialized form.
func (r *Registry) ConstraintsFromDocument(doc ConstraintsDocument) (*FormulaConstraints, error) {
	alphabet, err := r.ParseAlphabet(doc.Alphabet)
	if err != nil {
		return nil, fmt.Errorf("invalid alphabet: %w", err)
	}
	c := NewFormulaConstraints(alphabet)

	if doc.Filters != nil {
		c.filters = c.filters[:0]
		for _, fd := range doc.Filters {
			f, err := fd.filter()
			if err != nil {
				return nil, err
			}
			c.filters = append(c.filters, f)
		}
	}

	for _, symbol := range sortedKeys(doc.Upperbounds) {
		e, ok := r.Element(symbol)
		if !ok {
			return nil, newError("constraints", symbol, ErrUnknownElement)
		}
		if err := c.SetUpperbound(e, doc.Upperbounds[symbol]); err != nil {
			return nil, err
		}
	}
	for _, symbol := range sortedKeys(doc.Lowerbounds) {
		e, ok := r.Element(symbol)
		if !ok {
			return nil, newError("constraints", symbol, ErrUnknownElement)
		}
		if err := c.SetLowerbound(e, doc.Lowerbounds[symbol]); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func filterDocument(f FormulaFilter) (FilterDocument, bool) {
	switch v := f.(type) {
	case ValenceFilter:
		minRDBE := v.MinRDBE
		return FilterDocument{Type: "valence", MinRDBE: &minRDBE}, true
	case ChargeFilter:
		charged := v.Charged
		return FilterDocument{Type: "charge", Charged: &charged}, true
	}
	return FilterDocument{}, false
}

func (fd FilterDocument) filter() (FormulaFilter, error) {
	switch fd.Type {
	case "valence":
		v := NewValenceFilter()
		if fd.MinRDBE != nil {
			v.MinRDBE = *fd.MinRDBE
		}
		return v, nil
	case "charge":
		c := ChargeFilter{}
		if fd.Charged != nil {
			c.Charged = *fd.Charged
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown filter type %q", fd.Type)
}

package chem

// FormulaFilter decides whether a formula is chemically plausible.
type FormulaFilter interface {
	Accept(f Formula) bool
}

// DefaultMinRDBE is the lowest RDBE accepted by the default valence filter.
const DefaultMinRDBE = -0.5

// ValenceFilter rejects formulas whose RDBE falls below MinRDBE.
type ValenceFilter struct {
	MinRDBE float64
}

// NewValenceFilter returns the default valence filter.
func NewValenceFilter() ValenceFilter {
	return ValenceFilter{MinRDBE: DefaultMinRDBE}
}

func (v ValenceFilter) Accept(f Formula) bool {
	return float64(f.DoubledRDBE()) >= 2*v.MinRDBE
}

// ChargeFilter accepts only formulas whose doubled RDBE parity matches the
// expected state: even for neutral molecules, odd for radical or protonated ions.
type ChargeFilter struct {
	Charged bool
}

func (c ChargeFilter) Accept(f Formula) bool {
	return f.MaybeCharged() == c.Charged
}

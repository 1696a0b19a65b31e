package chem

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	lookupsMetric  = "formulakey_selection_lookups_total"
	lineagesMetric = "formulakey_selection_lineages_total"
)

var (
	// selectionLookups counts cache lookups by how they were resolved
	selectionLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: lookupsMetric,
		Help: "Selection cache lookups by result (hit, race, extend, create)",
	}, []string{"result"})

	// selectionLineages counts selection lineages created across all caches
	selectionLineages = promauto.NewCounter(prometheus.CounterOpts{
		Name: lineagesMetric,
		Help: "Selection lineages created",
	})
)

// CacheStats reads the selection cache counters from g. Lookups are keyed
// by their result; the number of lineages is stored under "lineages".
func CacheStats(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}

	stats := make(map[string]float64)
	for _, mf := range families {
		switch mf.GetName() {
		case lookupsMetric:
			for _, m := range mf.GetMetric() {
				for _, l := range m.GetLabel() {
					if l.GetName() == "result" {
						stats[l.GetValue()] = m.GetCounter().GetValue()
					}
				}
			}
		case lineagesMetric:
			for _, m := range mf.GetMetric() {
				stats["lineages"] += m.GetCounter().GetValue()
			}
		}
	}
	return stats, nil
}

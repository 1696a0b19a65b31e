package chem

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func elements(t *testing.T, r *Registry, symbols ...string) []*Element {
	t.Helper()
	out := make([]*Element, len(symbols))
	for i, s := range symbols {
		e, ok := r.Element(s)
		require.True(t, ok, "element %s", s)
		out[i] = e
	}
	return out
}

func symbolsOf(s *Selection) []string {
	out := make([]string, s.Len())
	for i := range out {
		out[i] = s.ElementAt(i).Symbol()
	}
	return out
}

func TestNewSelection(t *testing.T) {
	r := newTestRegistry(t)

	sorted, err := NewSelection(r, elements(t, r, "O", "Na", "H", "C"), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"H", "C", "O", "Na"}, symbolsOf(sorted))
	assert.Equal(t, 1, sorted.CarbonIndex())
	assert.Equal(t, 0, sorted.HydrogenIndex())
	assert.Equal(t, 2, sorted.OxygenIndex())
	assert.Equal(t, -1, sorted.NitrogenIndex())
	assert.Equal(t, -1, sorted.Lineage())

	pinned, err := NewSelection(r, elements(t, r, "O", "Na", "H"), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"O", "Na", "H"}, symbolsOf(pinned))
	assert.Equal(t, -1, pinned.CarbonIndex())

	_, err = NewSelection(r, elements(t, r, "C", "H", "C"), false)
	assert.ErrorIs(t, err, ErrDuplicateElement)
}

func TestSelectionAccessors(t *testing.T) {
	r := newTestRegistry(t)
	sel, err := NewSelection(r, elements(t, r, "C", "N"), false)
	require.NoError(t, err)

	n, _ := r.Element("N")
	s, _ := r.Element("S")
	assert.Equal(t, 1, sel.IndexOf(n))
	assert.Equal(t, -1, sel.IndexOf(s))
	assert.Equal(t, -1, sel.IndexOf(nil))
	assert.InDelta(t, 14.003074, sel.WeightAt(1), 1e-6)
	assert.Equal(t, 14, sel.NominalMassAt(1))
	assert.Equal(t, 3, sel.ValenceAt(1))
	assert.True(t, sel.Mask().Has(n.ID()))
	assert.Equal(t, "[C,N]", sel.String())
}

func TestExtendKeepsPrefix(t *testing.T) {
	r := newTestRegistry(t)
	base, err := NewSelection(r, elements(t, r, "C", "H", "O"), false)
	require.NoError(t, err)

	same := base.Extend(elements(t, r, "O", "C")...)
	assert.Same(t, base, same)

	next := base.Extend(elements(t, r, "Na", "H", "N", "Na")...)
	assert.Equal(t, base.Len()+2, next.Len())
	assert.Equal(t, -1, next.Lineage())
	assert.Equal(t, 0, next.Version())
	for i := 0; i < base.Len(); i++ {
		assert.Same(t, base.ElementAt(i), next.ElementAt(i))
	}
	assert.Equal(t, []string{"H", "C", "O", "N", "Na"}, symbolsOf(next))
	assert.Equal(t, 3, next.NitrogenIndex())
	assert.True(t, base.IsPrefixOf(next))
	assert.False(t, next.IsPrefixOf(base))

	other, err := NewSelection(r, elements(t, r, "C", "H", "O", "N"), true)
	require.NoError(t, err)
	assert.False(t, base.IsPrefixOf(other))
}

func lookups(result string) float64 {
	return testutil.ToFloat64(selectionLookups.WithLabelValues(result))
}

func TestSelectionCacheReuse(t *testing.T) {
	r := newTestRegistry(t)
	c := r.Cache()
	created, lineages := lookups("create"), testutil.ToFloat64(selectionLineages)

	first := c.SelectionFor(NewElementSet(elements(t, r, "C", "H", "O")...))
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, []string{"H", "C", "N", "O", "P", "S"}, symbolsOf(first))
	assert.Equal(t, created+1, lookups("create"))
	assert.Equal(t, lineages+1, testutil.ToFloat64(selectionLineages))

	hits := lookups("hit")
	again := c.SelectionFor(NewElementSet(elements(t, r, "H", "O")...))
	assert.Same(t, first, again)
	assert.Equal(t, hits+1, lookups("hit"))

	extends := lookups("extend")
	extended := c.SelectionFor(NewElementSet(elements(t, r, "C", "Na")...))
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, first.Lineage(), extended.Lineage())
	assert.Equal(t, first.Version()+1, extended.Version())
	assert.True(t, first.IsPrefixOf(extended))
	assert.Same(t, extended, c.Current(first))
	assert.Equal(t, extends+1, lookups("extend"))
}

func TestCacheStats(t *testing.T) {
	r := newTestRegistry(t)
	r.Cache().SelectionFor(NewElementSet(elements(t, r, "C")...))
	r.Cache().SelectionFor(NewElementSet(elements(t, r, "C", "Fe")...))

	stats, err := CacheStats(prometheus.DefaultGatherer)
	require.NoError(t, err)
	assert.Equal(t, lookups("create"), stats["create"])
	assert.Equal(t, lookups("extend"), stats["extend"])
	assert.Equal(t, testutil.ToFloat64(selectionLineages), stats["lineages"])
	assert.GreaterOrEqual(t, stats["lineages"], 1.0)
	assert.GreaterOrEqual(t, stats["extend"], 1.0)
}

func TestSelectionCacheSoftCap(t *testing.T) {
	r := newTestRegistry(t, WithSelectionCap(8), WithMaxSelections(2))
	c := r.Cache()

	c.SelectionFor(NewElementSet(elements(t, r, "C", "H")...))
	second := c.SelectionFor(NewElementSet(elements(t, r, "Fe", "Cu", "Zn")...))
	assert.Equal(t, 2, c.Len(), "extension past the cap starts a new lineage")
	assert.Equal(t, 9, second.Len())

	third := c.SelectionFor(NewElementSet(elements(t, r, "Au", "Pt", "Hg")...))
	assert.Equal(t, 2, c.Len(), "a full pool extends past the cap instead")
	assert.Greater(t, third.Len(), 8)
	assert.True(t, third.Covers(NewElementSet(elements(t, r, "Au", "Pt", "Hg")...)))
}

func TestSelectionCacheRegister(t *testing.T) {
	r := newTestRegistry(t)
	pinned, err := NewSelection(r, elements(t, r, "O", "H"), true)
	require.NoError(t, err)

	adopted := r.Cache().Register(pinned)
	assert.Equal(t, 0, adopted.Lineage())
	assert.Equal(t, []string{"O", "H"}, symbolsOf(adopted))
	assert.Same(t, adopted, r.Cache().Register(adopted))

	hit := r.Cache().SelectionFor(NewElementSet(elements(t, r, "H")...))
	assert.Same(t, adopted, hit)
}

func TestPromoteRejectsReordering(t *testing.T) {
	r := newTestRegistry(t)
	c := r.Cache()
	sel := c.SelectionFor(NewElementSet(elements(t, r, "C")...))
	reordered, err := NewSelection(r, elements(t, r, "S", "C", "H"), true)
	require.NoError(t, err)

	assert.Panics(t, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.promote(sel, reordered)
	})
}

func TestSelectionCacheConcurrent(t *testing.T) {
	r := newTestRegistry(t, WithSelectionCap(10), WithMaxSelections(4))
	c := r.Cache()
	pool := elements(t, r, "C", "H", "N", "O", "P", "S", "Na", "K", "Cl", "Br", "Fe", "Cu", "Zn", "Se", "I", "F", "Mg", "Ca")

	var mu sync.Mutex
	var seen []*Selection

	var g errgroup.Group
	for w := 0; w < 16; w++ {
		rng := rand.New(rand.NewSource(int64(w)))
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				n := 1 + rng.Intn(4)
				want := make([]*Element, n)
				for j := range want {
					want[j] = pool[rng.Intn(len(pool))]
				}
				set := NewElementSet(want...)
				sel := c.SelectionFor(set)
				if !sel.Covers(set) {
					return fmt.Errorf("selection %s does not cover request", sel)
				}
				mu.Lock()
				seen = append(seen, sel)
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, sel := range seen {
		current := c.Current(sel)
		require.True(t, sel.IsPrefixOf(current), "%s is not a prefix of %s", sel, current)
	}
}

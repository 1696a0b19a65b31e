package chem

import (
	"log/slog"
	"sync"
)

// SelectionCache hands out shared selections. Each slot holds the newest
// snapshot of one selection lineage; lookups prefer an existing snapshot
// that already covers the requested elements, then the cheapest extension
// of one, and only then start a new lineage.
type SelectionCache struct {
	registry *Registry

	mu       sync.RWMutex
	slots    []*Selection
	modCount uint64

	softCap       int
	maxSelections int
	starter       []string
}

func newSelectionCache(r *Registry, softCap, maxSelections int, starter []string) *SelectionCache {
	return &SelectionCache{
		registry:      r,
		softCap:       softCap,
		maxSelections: maxSelections,
		starter:       starter,
	}
}

// SelectionFor returns a selection covering every element of want. It never
// fails; when no lineage can be extended within the soft cap and the pool
// is full, the cheapest lineage is extended past the cap.
func (c *SelectionCache) SelectionFor(want ElementSet) *Selection {
	c.mu.RLock()
	seen := c.modCount
	best, cost := c.cheapest(want, true)
	c.mu.RUnlock()
	if best != nil && cost == 0 {
		selectionLookups.WithLabelValues("hit").Inc()
		return best
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.modCount != seen {
		best, cost = c.cheapest(want, true)
		if best != nil && cost == 0 {
			selectionLookups.WithLabelValues("race").Inc()
			return best
		}
	}
	if best == nil && len(c.slots) >= c.maxSelections {
		best, _ = c.cheapest(want, false)
	}

	if best != nil {
		next := best.successor(c.elementsOf(want))
		c.promote(best, next)
		selectionLookups.WithLabelValues("extend").Inc()
		return next
	}

	sel := c.seed(want)
	selectionLookups.WithLabelValues("create").Inc()
	return sel
}

// cheapest must be called with mu held.
func (c *SelectionCache) cheapest(want ElementSet, capped bool) (*Selection, int) {
	var best *Selection
	bestCost := 0
	for _, s := range c.slots {
		cost := want.Missing(s.mask)
		if cost == 0 {
			return s, 0
		}
		if capped && s.Len()+cost > c.softCap {
			continue
		}
		if best == nil || cost < bestCost || (cost == bestCost && s.Len() < best.Len()) {
			best, bestCost = s, cost
		}
	}
	return best, bestCost
}

func (c *SelectionCache) elementsOf(set ElementSet) []*Element {
	var elements []*Element
	set.Each(func(id int) {
		if e, ok := c.registry.ElementByID(id); ok {
			elements = append(elements, e)
		}
	})
	return elements
}

// promote must be called with mu held.
func (c *SelectionCache) promote(old, next *Selection) {
	if old == next {
		return
	}
	if !old.IsPrefixOf(next) {
		panic("chem: selection promotion would reorder published indices")
	}
	c.slots[old.lineage] = next
	c.modCount++
}

// seed must be called with mu held.
func (c *SelectionCache) seed(want ElementSet) *Selection {
	set := want.Clone()
	for _, symbol := range c.starter {
		if e, ok := c.registry.Element(symbol); ok {
			set.Add(e.id)
		}
	}
	sel, _ := NewSelection(c.registry, c.elementsOf(set), false)
	sel.lineage = len(c.slots)
	c.slots = append(c.slots, sel)
	c.modCount++
	selectionLineages.Inc()
	c.registry.logger.Debug("new selection lineage",
		slog.Int("lineage", sel.lineage), slog.String("elements", sel.String()))
	return sel
}

// Register adopts a selection built with NewSelection as a new lineage and
// returns the adopted snapshot.
func (c *SelectionCache) Register(sel *Selection) *Selection {
	if sel.registry != c.registry {
		panic("chem: selection belongs to a different registry")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if sel.lineage >= 0 && sel.lineage < len(c.slots) && sel.IsPrefixOf(c.slots[sel.lineage]) {
		return c.slots[sel.lineage]
	}
	adopted := *sel
	adopted.lineage = len(c.slots)
	adopted.version = 0
	c.slots = append(c.slots, &adopted)
	c.modCount++
	selectionLineages.Inc()
	return &adopted
}

// Current returns the newest snapshot of the lineage sel belongs to.
func (c *SelectionCache) Current(sel *Selection) *Selection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if sel.lineage < 0 || sel.lineage >= len(c.slots) {
		return sel
	}
	return c.slots[sel.lineage]
}

// Snapshots returns the current snapshot of every lineage.
func (c *SelectionCache) Snapshots() []*Selection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Selection(nil), c.slots...)
}

// Len returns the number of lineages.
func (c *SelectionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.slots)
}

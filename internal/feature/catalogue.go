package feature

import "github.com/talgya/cellarworks/internal/wine"

// Catalogue is the immutable, ordered registry of feature definitions.
// Built once at startup and passed by reference; lookups for ids the
// catalogue no longer knows return absent rather than failing, so persisted
// state survives catalogue evolution in both directions.
type Catalogue struct {
	order []string
	byID  map[string]*Definition
}

// NewCatalogue builds a registry preserving definition order. Duplicate ids
// keep the first definition.
func NewCatalogue(defs ...*Definition) *Catalogue {
	c := &Catalogue{byID: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		if _, dup := c.byID[d.ID]; dup {
			continue
		}
		c.byID[d.ID] = d
		c.order = append(c.order, d.ID)
	}
	return c
}

// Get looks up a definition by id.
func (c *Catalogue) Get(id string) (*Definition, bool) {
	d, ok := c.byID[id]
	return d, ok
}

// All returns definitions in catalogue order.
func (c *Catalogue) All() []*Definition {
	out := make([]*Definition, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// IDs returns feature ids in catalogue order.
func (c *Catalogue) IDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Len returns the number of definitions.
func (c *Catalogue) Len() int {
	return len(c.order)
}

// InitStates builds the full feature-state collection for a new batch: one
// entry per catalogue id, pre-armed entries seeded with their spawn severity.
func (c *Catalogue) InitStates() []wine.FeatureState {
	out := make([]wine.FeatureState, 0, len(c.order))
	for _, id := range c.order {
		d := c.byID[id]
		st := wine.FeatureState{ID: id}
		if d.Behavior.Kind == BehaviorEvolving && d.Behavior.Evolving.SpawnActive {
			st.Present = true
			st.Severity = clamp01(d.Behavior.Evolving.SpawnSeverity)
		}
		out = append(out, st)
	}
	return out
}

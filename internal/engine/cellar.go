// Cellar ties the catalogue, batches, vineyards, and collaborators together
// and runs the weekly tick integration.
package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/talgya/cellarworks/internal/entropy"
	"github.com/talgya/cellarworks/internal/feature"
	"github.com/talgya/cellarworks/internal/notify"
	"github.com/talgya/cellarworks/internal/prestige"
	"github.com/talgya/cellarworks/internal/wine"
)

// RiskWarnThreshold is the effective risk at which a one-time warning
// notification goes out for a latent feature.
const RiskWarnThreshold = 0.5

// Store is the persistence collaborator. The integrators load everything up
// front and issue bulk writes; a failed write discards the in-memory
// computation for that tick so no partial state is ever observable.
type Store interface {
	SaveBatches([]*wine.Batch) error
	SaveVineyards([]*wine.Vineyard) error
	SaveEvents([]Event) error
}

// Event is a notable occurrence in the cellar.
type Event struct {
	Week        uint64 `json:"week" db:"week"`
	Description string `json:"description" db:"description"`
	Category    string `json:"category" db:"category"` // "production", "feature", "field", etc.
}

// Stats tracks aggregate cellar statistics.
type Stats struct {
	Batches          int     `json:"batches"`
	Bottled          int     `json:"bottled"`
	AvgQuality       float64 `json:"avg_quality"`
	ManifestedFaults int     `json:"manifested_faults"`
	ManifestedTraits int     `json:"manifested_traits"`
}

// Cellar holds the complete winery state and wires systems together.
// One logical tick or production event runs at a time; mu serializes the
// engine loop against API-driven actions.
type Cellar struct {
	mu sync.Mutex

	Catalogue *feature.Catalogue
	Rand      entropy.Source
	Store     Store
	Notifier  notify.Notifier
	Prestige  prestige.Sink

	Batches       []*wine.Batch
	BatchIndex    map[uuid.UUID]*wine.Batch
	Vineyards     []*wine.Vineyard
	VineyardIndex map[uuid.UUID]*wine.Vineyard

	Events   []Event
	LastWeek uint64
	Stats    Stats
}

// NewCellar creates a Cellar from loaded or generated components.
// Rand, Store, Notifier, and Prestige are assigned by the caller before the
// first tick.
func NewCellar(cat *feature.Catalogue, vineyards []*wine.Vineyard, batches []*wine.Batch) *Cellar {
	c := &Cellar{
		Catalogue:     cat,
		Batches:       batches,
		BatchIndex:    make(map[uuid.UUID]*wine.Batch, len(batches)),
		Vineyards:     vineyards,
		VineyardIndex: make(map[uuid.UUID]*wine.Vineyard, len(vineyards)),
	}
	for _, b := range batches {
		c.BatchIndex[b.ID] = b
	}
	for _, v := range vineyards {
		c.VineyardIndex[v.ID] = v
	}
	c.updateStats()
	return c
}

// SnapshotBatches returns deep copies of every batch, safe to read while
// the tick loop keeps running.
func (c *Cellar) SnapshotBatches() []*wine.Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*wine.Batch, len(c.Batches))
	for i, b := range c.Batches {
		out[i] = b.Clone()
	}
	return out
}

// SnapshotBatch returns a deep copy of one batch.
func (c *Cellar) SnapshotBatch(id uuid.UUID) (*wine.Batch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.BatchIndex[id]
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

// SnapshotVineyards returns copies of every vineyard.
func (c *Cellar) SnapshotVineyards() []wine.Vineyard {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wine.Vineyard, len(c.Vineyards))
	for i, v := range c.Vineyards {
		out[i] = *v
		out[i].PendingFeatures = append([]wine.FeatureState(nil), v.PendingFeatures...)
	}
	return out
}

// CurrentWeek returns the most recently processed week.
func (c *Cellar) CurrentWeek() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.LastWeek
}

// TickWeek advances every vineyard and batch by one week. Batch advancement
// is computed on clones; only batches whose state actually changed are
// persisted, in one bulk write, and the clones are swapped in only after
// that write succeeds.
func (c *Cellar) TickWeek(week uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.LastWeek = week
	c.tickVineyards(week)

	var (
		changedIdx []int
		changed    []*wine.Batch
		effects    []pendingEffect
	)
	for i, b := range c.Batches {
		next, fx := c.advanceBatch(b, week)
		if !batchChanged(b, next) {
			continue
		}
		changedIdx = append(changedIdx, i)
		changed = append(changed, next)
		effects = append(effects, fx...)
	}

	if len(changed) > 0 {
		if err := c.Store.SaveBatches(changed); err != nil {
			// Discard this tick's computation for these batches; the same
			// advancement is recomputed next week.
			slog.Error("weekly batch save failed, discarding tick", "error", err, "batches", len(changed))
			return
		}
		for n, i := range changedIdx {
			c.Batches[i] = changed[n]
			c.BatchIndex[changed[n].ID] = changed[n]
		}
		c.emit(effects)
	}

	c.updateStats()

	if len(c.Events) > 0 {
		if err := c.Store.SaveEvents(c.Events); err != nil {
			slog.Error("event save failed", "error", err)
		} else {
			c.Events = c.Events[:0]
		}
	}
}

// advanceBatch runs one week of feature evolution for a single batch on a
// clone: accumulation and evolving steps, dependency gating, manifestation
// rolls, then a full effect composition. Side effects (notifications,
// prestige) are returned pending and only emitted once the tick commits.
func (c *Cellar) advanceBatch(b *wine.Batch, week uint64) (*wine.Batch, []pendingEffect) {
	next := b.Clone()
	var effects []pendingEffect

	for _, def := range c.Catalogue.All() {
		st := next.Feature(def.ID)
		if st == nil {
			continue
		}

		*st = feature.StepWeek(c.Catalogue, def, next, week, *st)

		if st.Present || st.Risk <= 0 {
			continue
		}

		out := feature.Evaluate(def, *st, next.State, c.Rand.Float)
		if feature.Apply(st, out) {
			effects = append(effects, c.manifestEffect(def, next, week))
		} else if out.EffectiveRisk >= RiskWarnThreshold && !st.RiskWarned {
			st.RiskWarned = true
			effects = append(effects, pendingEffect{
				key: fmt.Sprintf("feature.%s.risk", def.ID),
				message: fmt.Sprintf("%s risk is rising on %s (%.0f%%)",
					def.Name, next.Label, out.EffectiveRisk*100),
			})
		}
	}

	feature.Compose(c.Catalogue, next)
	return next, effects
}

// pendingEffect is a side effect computed during a tick or event but held
// back until the new state is committed.
type pendingEffect struct {
	key      string
	message  string
	prestige *prestige.Event
	category string
}

func (c *Cellar) manifestEffect(def *feature.Definition, b *wine.Batch, week uint64) pendingEffect {
	fx := pendingEffect{
		key:      fmt.Sprintf("feature.%s", def.ID),
		message:  fmt.Sprintf("%s has developed on %s", def.Name, b.Label),
		category: "feature",
	}
	if def.Prestige {
		fx.prestige = &prestige.Event{
			FeatureID:  def.ID,
			BatchID:    b.ID,
			BatchLabel: b.Label,
			VineyardID: b.VineyardID,
			Week:       week,
		}
	}
	return fx
}

// emit delivers held-back side effects after a successful commit.
func (c *Cellar) emit(effects []pendingEffect) {
	for _, fx := range effects {
		if c.Notifier != nil && fx.key != "" {
			c.Notifier.Notify(fx.key, fx.message)
		}
		if c.Prestige != nil && fx.prestige != nil {
			c.Prestige.ManifestationOccurred(*fx.prestige)
		}
		cat := fx.category
		if cat == "" {
			cat = "feature"
		}
		if fx.message != "" {
			c.Events = append(c.Events, Event{Week: c.LastWeek, Description: fx.message, Category: cat})
		}
	}
}

// batchChanged reports whether any persisted field differs between the
// stored batch and its advanced clone. Bounds the weekly write cost to
// O(changed batches).
func batchChanged(a, b *wine.Batch) bool {
	if a.State != b.State || a.GrapeQuality != b.GrapeQuality || a.Balance != b.Balance {
		return true
	}
	if len(a.Features) != len(b.Features) {
		return true
	}
	for i := range a.Features {
		if a.Features[i] != b.Features[i] {
			return true
		}
	}
	for _, ch := range wine.AllCharacteristics {
		if a.Characteristics[ch] != b.Characteristics[ch] {
			return true
		}
	}
	return false
}

func (c *Cellar) updateStats() {
	s := Stats{Batches: len(c.Batches)}
	totalQuality := 0.0
	for _, b := range c.Batches {
		totalQuality += b.GrapeQuality
		if b.State == wine.StateBottled {
			s.Bottled++
		}
		for i := range b.Features {
			st := &b.Features[i]
			if !st.Present {
				continue
			}
			def, ok := c.Catalogue.Get(st.ID)
			if !ok {
				continue
			}
			if isFault(def) {
				s.ManifestedFaults++
			} else {
				s.ManifestedTraits++
			}
		}
	}
	if len(c.Batches) > 0 {
		s.AvgQuality = totalQuality / float64(len(c.Batches))
	}
	c.Stats = s
}

// isFault classifies a feature by the sign of its headline quality effect.
func isFault(def *feature.Definition) bool {
	e := def.QualityEffect
	switch e.Kind {
	case feature.QualityLinear:
		return e.Amount < 0
	case feature.QualityPower:
		return true
	case feature.QualityBonus, feature.QualityCustom:
		return false
	}
	return false
}

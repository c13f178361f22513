// Production-stage event integration: harvest, crush, ferment, bottle.
// Each event runs the triggered-feature pass on a clone, composes effects,
// persists, and only then swaps the new snapshot in — a reader never sees
// updated features next to stale quality or the other way around.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/talgya/cellarworks/internal/feature"
	"github.com/talgya/cellarworks/internal/wine"
)

// Harvest picks a vineyard into a new batch: builds the batch from the
// vineyard's current state, merges pending field features (the batch's own
// entry wins on id collision), runs harvest triggers, composes, and
// persists batch and vineyard together.
func (c *Cellar) Harvest(vineyardID uuid.UUID, week uint64, opts feature.HarvestOptions) (*wine.Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.VineyardIndex[vineyardID]
	if !ok {
		return nil, fmt.Errorf("harvest: unknown vineyard %s", vineyardID)
	}

	b := buildBatch(c.Catalogue, v, week, opts)
	b.ID = uuid.New()

	ctx := feature.EventContext{Kind: feature.EventHarvest, Week: week, Harvest: &opts}
	effects := c.runEvent(b, ctx, week)
	feature.Compose(c.Catalogue, b)

	if err := c.Store.SaveBatches([]*wine.Batch{b}); err != nil {
		return nil, fmt.Errorf("harvest: persist batch: %w", err)
	}

	// The fruit is off the vine: reset the field. The batch is already
	// persisted at this point, so a failed vineyard save must not unwind
	// the harvest; field state is recomputed from seeded weather, so the
	// stale row is tolerated and overwritten on the next weekly tick.
	v.Ripeness = 0
	v.PendingFeatures = InitPendingFeatures(c.Catalogue)
	if err := c.Store.SaveVineyards([]*wine.Vineyard{v}); err != nil {
		slog.Error("harvest: vineyard save failed", "error", err, "vineyard", v.Name)
	}

	c.Batches = append(c.Batches, b)
	c.BatchIndex[b.ID] = b
	c.emit(effects)
	c.Events = append(c.Events, Event{
		Week:        week,
		Description: fmt.Sprintf("harvested %s at %.0f%% ripeness", b.Label, opts.Ripeness*100),
		Category:    "production",
	})
	c.updateStats()
	return b, nil
}

// Crush moves a batch from grapes to must.
func (c *Cellar) Crush(batchID uuid.UUID, week uint64, opts feature.CrushOptions) error {
	ctx := feature.EventContext{Kind: feature.EventCrush, Week: week, Crush: &opts}
	return c.applyStage(batchID, week, ctx, wine.StateGrapes, wine.StateMust)
}

// Ferment moves a batch from must to fermenting.
func (c *Cellar) Ferment(batchID uuid.UUID, week uint64, opts feature.FermentOptions) error {
	ctx := feature.EventContext{Kind: feature.EventFerment, Week: week, Ferment: &opts}
	return c.applyStage(batchID, week, ctx, wine.StateMust, wine.StateFermenting)
}

// Bottle moves a batch from fermenting to bottled.
func (c *Cellar) Bottle(batchID uuid.UUID, week uint64, opts feature.BottleOptions) error {
	ctx := feature.EventContext{Kind: feature.EventBottle, Week: week, Bottle: &opts}
	return c.applyStage(batchID, week, ctx, wine.StateFermenting, wine.StateBottled)
}

// applyStage is the shared event integrator for stage transitions.
func (c *Cellar) applyStage(batchID uuid.UUID, week uint64, ctx feature.EventContext, from, to wine.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.BatchIndex[batchID]
	if !ok {
		return fmt.Errorf("%s: unknown batch %s", feature.EventName(ctx.Kind), batchID)
	}
	if b.State != from {
		return fmt.Errorf("%s: batch %s is %s, expected %s",
			feature.EventName(ctx.Kind), b.Label, wine.StateName(b.State), wine.StateName(from))
	}

	next := b.Clone()
	next.State = to
	setStageWeek(next, to, week)

	effects := c.runEvent(next, ctx, week)
	feature.Compose(c.Catalogue, next)

	if err := c.Store.SaveBatches([]*wine.Batch{next}); err != nil {
		return fmt.Errorf("%s: persist batch: %w", feature.EventName(ctx.Kind), err)
	}

	c.swapBatch(next)
	c.emit(effects)
	c.Events = append(c.Events, Event{
		Week:        week,
		Description: fmt.Sprintf("%s: %s is now %s", feature.EventName(ctx.Kind), next.Label, wine.StateName(to)),
		Category:    "production",
	})
	c.updateStats()
	return nil
}

// runEvent runs the triggered-feature pass on a batch for one event context
// and resolves manifestation for the features the event armed. Mutates the
// given (cloned) batch; returns deferred side effects.
func (c *Cellar) runEvent(b *wine.Batch, ctx feature.EventContext, week uint64) []pendingEffect {
	var effects []pendingEffect

	for _, def := range c.Catalogue.All() {
		st := b.Feature(def.ID)
		if st == nil {
			continue
		}

		before := *st
		*st = feature.StepEvent(c.Catalogue, def, b, ctx, *st)

		// Only features this event armed (or re-armed) roll for
		// manifestation here; everything else waits for the weekly tick.
		if st.Present || st.Risk <= before.Risk {
			continue
		}

		out := feature.Evaluate(def, *st, b.State, c.Rand.Float)
		if feature.Apply(st, out) {
			effects = append(effects, c.manifestEffect(def, b, week))
		} else if out.EffectiveRisk >= RiskWarnThreshold && !st.RiskWarned {
			st.RiskWarned = true
			effects = append(effects, pendingEffect{
				key: fmt.Sprintf("feature.%s.risk", def.ID),
				message: fmt.Sprintf("%s risk is rising on %s (%.0f%%)",
					def.Name, b.Label, out.EffectiveRisk*100),
			})
		}
	}

	return effects
}

func (c *Cellar) swapBatch(next *wine.Batch) {
	for i, b := range c.Batches {
		if b.ID == next.ID {
			c.Batches[i] = next
			break
		}
	}
	c.BatchIndex[next.ID] = next
}

func setStageWeek(b *wine.Batch, s wine.State, week uint64) {
	switch s {
	case wine.StateGrapes:
		b.HarvestedWeek = week
	case wine.StateMust:
		b.CrushedWeek = week
	case wine.StateFermenting:
		b.FermentedWeek = week
	case wine.StateBottled:
		b.BottledWeek = week
	}
}

// buildBatch derives a fresh batch from a vineyard deterministically — no
// randomness, so harvest previews can construct the identical batch without
// touching shared state. Born quality and base characteristics come from
// ripeness, site quality, and the planted variety.
func buildBatch(cat *feature.Catalogue, v *wine.Vineyard, week uint64, opts feature.HarvestOptions) *wine.Batch {
	site := 0.5
	if v.Attributes != nil {
		if s, ok := v.Attributes["site_quality"]; ok {
			site = s
		}
	}
	born := clampUnit(0.25 + 0.5*opts.Ripeness + 0.2*site)

	base := wine.Characteristics{
		wine.Sweetness: clampUnit(0.3 + 0.4*opts.Ripeness),
		wine.Acidity:   clampUnit(0.8 - 0.4*opts.Ripeness),
		wine.Tannins:   0.5,
		wine.Body:      clampUnit(0.4 + 0.2*site),
		wine.Spice:     0.3,
		wine.Aroma:     clampUnit(0.35 + 0.3*opts.Ripeness),
	}

	attrs := make(map[string]float64, len(v.Attributes))
	for k, val := range v.Attributes {
		attrs[k] = val
	}

	b := &wine.Batch{
		VineyardID:          v.ID,
		Label:               fmt.Sprintf("%s %s, Year %d", v.Name, v.Variety, week/WeeksPerYear+1),
		Vintage:             int(week/WeeksPerYear) + 1,
		State:               wine.StateGrapes,
		BornGrapeQuality:    born,
		BaseCharacteristics: base,
		Attributes:          attrs,
		Features:            cat.InitStates(),
		HarvestedWeek:       week,
	}
	mergePending(b, v)
	return b
}

// mergePending folds a vineyard's pending feature states into the batch.
// A batch entry that has any development of its own (present, risk, or
// severity) wins the collision; otherwise the field state replaces the
// blank entry. Re-merging is therefore a no-op, which keeps harvest safe to
// re-run against an already-merged batch.
func mergePending(b *wine.Batch, v *wine.Vineyard) {
	for i := range v.PendingFeatures {
		pending := v.PendingFeatures[i]
		st := b.Feature(pending.ID)
		if st == nil {
			b.Features = append(b.Features, pending)
			continue
		}
		if st.Present || st.Risk > 0 || st.Severity > 0 {
			continue
		}
		*st = pending
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

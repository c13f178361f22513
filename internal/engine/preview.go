// Preview plumbing: forecast the risk impact of a hypothetical production
// event without drawing randomness or mutating anything. The UI calls this
// repeatedly while the player fiddles with options, so it must be safe to
// invoke concurrently and as often as wanted.
package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/talgya/cellarworks/internal/feature"
	"github.com/talgya/cellarworks/internal/wine"
)

// PreviewResult is one feature's forecast for a hypothetical event.
type PreviewResult struct {
	FeatureID       string  `json:"feature_id"`
	CurrentRisk     float64 `json:"current_risk"`
	WouldBeRisk     float64 `json:"would_be_risk"`
	WouldBeManifest bool    `json:"would_be_manifest"`
}

// PreviewEvent forecasts a production event against a stored batch.
func (c *Cellar) PreviewEvent(batchID uuid.UUID, ctx feature.EventContext) ([]PreviewResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.BatchIndex[batchID]
	if !ok {
		return nil, fmt.Errorf("preview: unknown batch %s", batchID)
	}
	return previewOn(c.Catalogue, b, ctx), nil
}

// PreviewHarvest forecasts harvesting a vineyard with hypothetical options.
// The transient batch is constructed exactly as a real harvest would,
// without registering or persisting anything.
func (c *Cellar) PreviewHarvest(vineyardID uuid.UUID, week uint64, opts feature.HarvestOptions) ([]PreviewResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.VineyardIndex[vineyardID]
	if !ok {
		return nil, fmt.Errorf("preview: unknown vineyard %s", vineyardID)
	}

	b := buildBatch(c.Catalogue, v, week, opts)
	ctx := feature.EventContext{Kind: feature.EventHarvest, Week: week, Harvest: &opts}
	return previewOn(c.Catalogue, b, ctx), nil
}

// previewOn runs the exact event pass the real integrator runs, on a clone,
// and evaluates each armed feature with no random source: wouldBeManifest is
// true only where manifestation would be deterministic.
func previewOn(cat *feature.Catalogue, b *wine.Batch, ctx feature.EventContext) []PreviewResult {
	clone := b.Clone()
	clone.State = stageAfter(ctx.Kind, clone.State)

	var out []PreviewResult
	for _, def := range cat.All() {
		if def.Behavior.Kind != feature.BehaviorTriggered {
			continue
		}
		st := clone.Feature(def.ID)
		if st == nil || st.Present {
			continue
		}
		if !feature.Listens(def, ctx.Kind) {
			continue
		}

		next := feature.StepEvent(cat, def, clone, ctx, *st)
		eval := feature.Evaluate(def, next, clone.State, nil)
		out = append(out, PreviewResult{
			FeatureID:       def.ID,
			CurrentRisk:     st.Risk,
			WouldBeRisk:     eval.EffectiveRisk,
			WouldBeManifest: eval.Manifests,
		})
	}
	return out
}

// stageAfter returns the production stage a batch would be in after the
// event resolves.
func stageAfter(kind feature.EventKind, current wine.State) wine.State {
	switch kind {
	case feature.EventHarvest:
		return wine.StateGrapes
	case feature.EventCrush:
		return wine.StateMust
	case feature.EventFerment:
		return wine.StateFermenting
	case feature.EventBottle:
		return wine.StateBottled
	}
	return current
}

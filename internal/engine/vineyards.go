// Vineyard growing-season pass: ripening and pre-harvest feature
// development driven by each vineyard's weather track.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/talgya/cellarworks/internal/feature"
	"github.com/talgya/cellarworks/internal/weather"
	"github.com/talgya/cellarworks/internal/wine"
)

// baseRipeningRate is the weekly ripeness gain at full temperature.
const baseRipeningRate = 0.06

// InitPendingFeatures seeds a vineyard's pending entries: one per catalogue
// feature that can accumulate while the fruit is still on the vine.
func InitPendingFeatures(cat *feature.Catalogue) []wine.FeatureState {
	var out []wine.FeatureState
	for _, def := range cat.All() {
		acc := def.Behavior.Accumulation
		if def.Behavior.Kind != feature.BehaviorAccumulation || acc.StateMultipliers[wine.StateGrapes] == 0 {
			continue
		}
		out = append(out, wine.FeatureState{ID: def.ID})
	}
	return out
}

// tickVineyards advances ripeness and pending features for every vineyard.
// Field development reuses the batch accumulator on a scratch batch in the
// grapes stage whose attributes carry the week's weather.
func (c *Cellar) tickVineyards(week uint64) {
	season := SeasonOf(week)
	var dirty []*wine.Vineyard

	for _, v := range c.Vineyards {
		wx := weather.WeekIndex(v.WeatherSeed, week)

		switch season {
		case SeasonWinter:
			// Vine dormancy: unharvested fruit is lost.
			if v.Ripeness != 0 {
				v.Ripeness = 0
				v.PendingFeatures = InitPendingFeatures(c.Catalogue)
			}
		default:
			v.Ripeness += baseRipeningRate * wx.Temperature
			if v.Ripeness > 1 {
				v.Ripeness = 1
			}
		}

		if season != SeasonWinter && v.Ripeness > 0 {
			c.tickFieldFeatures(v, wx, week)
		}
		dirty = append(dirty, v)
	}

	if len(dirty) > 0 {
		if err := c.Store.SaveVineyards(dirty); err != nil {
			// Vineyard state is recomputed from weather each week, so a
			// failed save just means a slightly stale row until next tick.
			slog.Error("vineyard save failed", "error", err)
		}
	}
}

// tickFieldFeatures runs accumulation and manifestation for a vineyard's
// pending features.
func (c *Cellar) tickFieldFeatures(v *wine.Vineyard, wx weather.Week, week uint64) {
	scratch := fieldBatch(v, wx)

	for _, def := range c.Catalogue.All() {
		st := scratch.Feature(def.ID)
		if st == nil {
			continue
		}

		*st = feature.StepWeek(c.Catalogue, def, scratch, week, *st)

		if st.Present || st.Risk <= 0 {
			continue
		}
		out := feature.Evaluate(def, *st, wine.StateGrapes, c.Rand.Float)
		if feature.Apply(st, out) {
			msg := fmt.Sprintf("%s has taken hold in %s", def.Name, v.Name)
			if c.Notifier != nil {
				c.Notifier.Notify(fmt.Sprintf("feature.%s", def.ID), msg)
			}
			c.Events = append(c.Events, Event{Week: week, Description: msg, Category: "field"})
		}
	}

	v.PendingFeatures = scratch.Features
}

// fieldBatch wraps a vineyard's pending features in a throwaway batch so the
// shared accumulator machinery can run on them pre-harvest.
func fieldBatch(v *wine.Vineyard, wx weather.Week) *wine.Batch {
	attrs := make(map[string]float64, len(v.Attributes)+1)
	for k, val := range v.Attributes {
		attrs[k] = val
	}
	attrs["field_humidity"] = wx.Humidity

	features := make([]wine.FeatureState, len(v.PendingFeatures))
	copy(features, v.PendingFeatures)

	return &wine.Batch{
		State:      wine.StateGrapes,
		Attributes: attrs,
		Features:   features,
	}
}

// The resident vintner: a simple policy that moves fruit through the
// production pipeline so the simulation runs unattended. It previews crush
// options before committing, picking the gentler pressing when the forecast
// risk says the hard press would cost it.
package engine

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/talgya/cellarworks/internal/feature"
	"github.com/talgya/cellarworks/internal/wine"
)

// Vintner decision thresholds.
const (
	harvestRipeness   = 0.85
	crushAfterWeeks   = 1
	fermentAfterWeeks = 1
	bottleAfterWeeks  = 6
	acceptableRisk    = 0.25
)

// RunVintner makes and executes this week's production decisions. Called
// from the tick loop after TickWeek; decisions are snapshotted under the
// lock, then executed through the normal event entry points.
func (c *Cellar) RunVintner(week uint64) {
	type stageMove struct {
		id    uuid.UUID
		state wine.State
		since uint64
	}

	c.mu.Lock()
	var harvests []uuid.UUID
	for _, v := range c.Vineyards {
		if v.Ripeness >= harvestRipeness || (SeasonOf(week) == SeasonAutumn && week%WeeksPerSeason == WeeksPerSeason-1 && v.Ripeness > 0.3) {
			harvests = append(harvests, v.ID)
		}
	}
	var moves []stageMove
	for _, b := range c.Batches {
		if b.State != wine.StateBottled {
			moves = append(moves, stageMove{id: b.ID, state: b.State, since: b.StateWeek()})
		}
	}
	ripeness := make(map[uuid.UUID]float64, len(c.Vineyards))
	for _, v := range c.Vineyards {
		ripeness[v.ID] = v.Ripeness
	}
	c.mu.Unlock()

	for _, vid := range harvests {
		opts := feature.HarvestOptions{Ripeness: ripeness[vid], Season: SeasonOf(week)}
		if _, err := c.Harvest(vid, week, opts); err != nil {
			slog.Error("vintner harvest failed", "vineyard", vid, "error", err)
		}
	}

	for _, m := range moves {
		age := week - m.since
		switch m.state {
		case wine.StateGrapes:
			if age >= crushAfterWeeks {
				if err := c.Crush(m.id, week, c.chooseCrush(m.id, week)); err != nil {
					slog.Error("vintner crush failed", "batch", m.id, "error", err)
				}
			}
		case wine.StateMust:
			if age >= fermentAfterWeeks {
				opts := feature.FermentOptions{Method: "stainless", Temperature: 18}
				if err := c.Ferment(m.id, week, opts); err != nil {
					slog.Error("vintner ferment failed", "batch", m.id, "error", err)
				}
			}
		case wine.StateFermenting:
			if age >= bottleAfterWeeks {
				opts := feature.BottleOptions{Method: "standard", CorkType: "natural"}
				if err := c.Bottle(m.id, week, opts); err != nil {
					slog.Error("vintner bottle failed", "batch", m.id, "error", err)
				}
			}
		}
	}
}

// chooseCrush previews a hard whole-cluster press against a gentle
// destemmed one and keeps the hard press only when no previewed risk
// crosses the acceptable line.
func (c *Cellar) chooseCrush(batchID uuid.UUID, week uint64) feature.CrushOptions {
	hard := feature.CrushOptions{Method: "press", Destemming: false, PressingIntensity: 0.9}
	gentle := feature.CrushOptions{Method: "press", Destemming: true, ColdSoak: true, PressingIntensity: 0.4}

	ctx := feature.EventContext{Kind: feature.EventCrush, Week: week, Crush: &hard}
	results, err := c.PreviewEvent(batchID, ctx)
	if err != nil {
		return gentle
	}
	for _, r := range results {
		if r.WouldBeRisk > acceptableRisk || r.WouldBeManifest {
			return gentle
		}
	}
	return hard
}

package feature

// Risk accumulation and severity evolution. Every function here is pure:
// current state in, next state out, no randomness and no mutation of the
// batch. Manifestation itself lives in manifest.go.

import "github.com/talgya/cellarworks/internal/wine"

// StepWeek advances one feature's state by one week for the given batch.
// week is the absolute simulation week, needed by curve-based evolution.
func StepWeek(cat *Catalogue, def *Definition, b *wine.Batch, week uint64, st wine.FeatureState) wine.FeatureState {
	switch def.Behavior.Kind {
	case BehaviorAccumulation:
		return stepAccumulation(cat, def, b, st)
	case BehaviorEvolving:
		return stepEvolving(cat, def, b, week, st)
	case BehaviorTriggered:
		// Triggered features gain risk only at production events; the weekly
		// tick just carries any post-manifestation evolution forward.
		return stepPostManifest(cat, def.ID, def.Behavior.Triggered.EvolveAfterManifest,
			def.Behavior.Triggered.PostManifestGrowth, def.Behavior.Triggered.StateMultipliers, b, st)
	}
	return st
}

func stepAccumulation(cat *Catalogue, def *Definition, b *wine.Batch, st wine.FeatureState) wine.FeatureState {
	p := def.Behavior.Accumulation

	if st.Present {
		return stepPostManifest(cat, def.ID, p.EvolveAfterManifest, p.PostManifestGrowth,
			p.StateMultipliers, b, st)
	}

	mult := stateMultiplier(p.StateMultipliers, b.State)

	if p.Conditional != nil && !prerequisiteSatisfied(b, p.Conditional) {
		// Prerequisite missing: no accumulation. Once the batch has left
		// every stage this feature can accumulate in, the opportunity window
		// has permanently closed and leftover risk is wiped.
		if mult == 0 && st.Risk > 0 {
			st.Risk = 0
		}
		return st
	}

	increase := p.BaseRate * mult
	if p.Compound {
		increase *= 1 + st.Risk
	}
	increase *= p.Multiplier.Apply(b)

	st.Risk = clamp01(st.Risk + increase)
	return st
}

func stepEvolving(cat *Catalogue, def *Definition, b *wine.Batch, week uint64, st wine.FeatureState) wine.FeatureState {
	p := def.Behavior.Evolving

	// Dormant and not pre-armed: nothing ever starts it from the weekly tick.
	if st.Severity == 0 && !p.SpawnActive {
		if p.Curve == nil {
			return st
		}
	}

	if evolutionStopped(cat, b, def.ID) {
		return st
	}

	mult := stateMultiplier(p.StateMultipliers, b.State)
	if mult == 0 {
		return st
	}

	if p.Curve != nil {
		// Derive severity from the curve at next week's progress instead of
		// accumulating a delta, so the trajectory cannot drift.
		start := b.StateWeek()
		if start == 0 || week < start {
			return st
		}
		progress := float64(week-start) + 1
		st.Severity = clamp01(p.Curve(progress))
	} else {
		st.Severity = st.Severity + p.GrowthRate*mult
		if cap := p.Cap(); st.Severity > cap {
			st.Severity = cap
		}
		st.Severity = clamp01(st.Severity)
	}

	if st.Severity > 0 {
		st.Present = true
	}
	return st
}

// stepPostManifest grows a present feature's severity when the definition
// allows evolution after manifestation, subject to dependency gating.
func stepPostManifest(cat *Catalogue, id string, evolve bool, growth float64,
	multipliers map[wine.State]float64, b *wine.Batch, st wine.FeatureState) wine.FeatureState {
	if !st.Present || !evolve || growth == 0 {
		return st
	}
	if evolutionStopped(cat, b, id) {
		return st
	}
	mult := stateMultiplier(multipliers, b.State)
	st.Severity = clamp01(st.Severity + growth*mult)
	return st
}

// evolutionStopped reports whether any other currently-present feature lists
// id in its StopsEvolutionOf set. Unknown feature ids in the batch's state
// are skipped.
func evolutionStopped(cat *Catalogue, b *wine.Batch, id string) bool {
	for i := range b.Features {
		other := &b.Features[i]
		if !other.Present || other.ID == id {
			continue
		}
		def, ok := cat.Get(other.ID)
		if !ok {
			continue
		}
		for _, stopped := range def.StopsEvolutionOf {
			if stopped == id {
				return true
			}
		}
	}
	return false
}

// prerequisiteSatisfied checks a conditional-accumulation gate against the
// batch's current feature states. A missing prerequisite entry reads as
// unsatisfied, never as an error.
func prerequisiteSatisfied(b *wine.Batch, c *ConditionalAccumulation) bool {
	st := b.Feature(c.RequiresFeature)
	if st == nil {
		return false
	}
	if c.RequiresPresent {
		return st.Present
	}
	return st.Present || st.Risk > 0
}

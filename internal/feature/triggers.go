package feature

import "github.com/talgya/cellarworks/internal/wine"

// StepEvent processes one production event for a single feature. Latent
// triggered features fold the event's risk increase into their state;
// present ones that can still evolve get one gated severity step when the
// event matches their trigger list. Other behaviors are untouched — the
// event integrator scope is triggered and continuing features only.
func StepEvent(cat *Catalogue, def *Definition, b *wine.Batch, ctx EventContext, st wine.FeatureState) wine.FeatureState {
	if def.Behavior.Kind != BehaviorTriggered {
		return st
	}
	p := def.Behavior.Triggered

	if st.Present {
		if !listensFor(p, ctx.Kind) {
			return st
		}
		return stepPostManifest(cat, def.ID, p.EvolveAfterManifest, p.PostManifestGrowth,
			p.StateMultipliers, b, st)
	}

	st.Risk = clamp01(st.Risk + TriggerRisk(def, ctx))
	return st
}

// Listens reports whether a triggered definition has any trigger for the
// event kind, regardless of condition.
func Listens(def *Definition, kind EventKind) bool {
	if def.Behavior.Kind != BehaviorTriggered {
		return false
	}
	return listensFor(def.Behavior.Triggered, kind)
}

// listensFor reports whether any trigger targets the event kind, regardless
// of condition.
func listensFor(p *TriggeredParams, kind EventKind) bool {
	for _, tr := range p.Triggers {
		if tr.Event == kind {
			return true
		}
	}
	return false
}

// TriggerRisk computes the risk increase a definition's trigger list
// produces for one event context. Events with no matching trigger, or whose
// condition does not hold, yield zero — never an error.
func TriggerRisk(def *Definition, ctx EventContext) float64 {
	if def.Behavior.Kind != BehaviorTriggered {
		return 0
	}
	total := 0.0
	for _, tr := range def.Behavior.Triggered.Triggers {
		if tr.Event != ctx.Kind {
			continue
		}
		if tr.Condition != nil && !tr.Condition(ctx) {
			continue
		}
		if tr.Risk != nil {
			total += tr.Risk(ctx)
		}
	}
	if total < 0 {
		return 0
	}
	return total
}

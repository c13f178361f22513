package feature

import "github.com/talgya/cellarworks/internal/wine"

// Manifestation: converting accumulated risk into permanent presence.
// There is exactly one algorithm; the real path and the UI preview path both
// go through Evaluate. The real path passes a draw function and commits the
// outcome with Apply; preview passes nil and commits nothing.

// Outcome is the result of evaluating a latent feature against the current
// production stage.
type Outcome struct {
	EffectiveRisk float64
	Manifests     bool
	Severity      float64 // severity the feature would take on manifestation
}

// Evaluate computes the manifestation outcome for a feature state.
//
// effectiveRisk = clamp01(risk × manifestMultiplier(stage)). At 1.0 the
// manifestation is deterministic. Below that, a single uniform draw decides;
// with draw == nil (preview mode) nothing is drawn and only the deterministic
// case manifests. Already-present features return a no-op outcome.
func Evaluate(def *Definition, st wine.FeatureState, stage wine.State, draw func() float64) Outcome {
	if st.Present {
		return Outcome{EffectiveRisk: st.Risk, Severity: st.Severity}
	}

	effective := clamp01(st.Risk * def.manifestMultiplier(stage))
	out := Outcome{EffectiveRisk: effective}
	if effective <= 0 {
		return out
	}

	if effective >= 1 {
		out.Manifests = true
	} else if draw != nil {
		out.Manifests = draw() < effective
	}

	if out.Manifests {
		if def.BinarySeverity {
			out.Severity = 1
		} else {
			out.Severity = effective
		}
	}
	return out
}

// Apply commits an outcome to a feature state. Present never reverts: a
// non-manifesting outcome leaves the state untouched. Reports whether the
// feature manifested on this call.
func Apply(st *wine.FeatureState, out Outcome) bool {
	if st.Present || !out.Manifests {
		return false
	}
	st.Present = true
	st.Severity = clamp01(out.Severity)
	return true
}

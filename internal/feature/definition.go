// Package feature implements the wine feature risk and manifestation engine:
// the catalogue of quality traits, the per-behavior risk accumulators, the
// manifestation resolver, cross-feature dependency gating, and the effect
// composer that rebuilds a batch's derived values from its present features.
package feature

import (
	"math"

	"github.com/talgya/cellarworks/internal/wine"
)

// BehaviorKind selects how a feature's risk and severity change over time.
type BehaviorKind uint8

const (
	// BehaviorAccumulation builds risk weekly until manifestation.
	BehaviorAccumulation BehaviorKind = iota
	// BehaviorEvolving never carries risk; severity grows directly.
	BehaviorEvolving
	// BehaviorTriggered gains risk only from discrete production events.
	BehaviorTriggered
)

// Behavior is a tagged union: exactly one params pointer matching Kind is
// non-nil.
type Behavior struct {
	Kind         BehaviorKind
	Accumulation *AccumulationParams
	Evolving     *EvolvingParams
	Triggered    *TriggeredParams
}

// ConditionalAccumulation gates risk accumulation on another feature.
// RequiresPresent true means the prerequisite must have manifested;
// false means it only needs non-zero risk (it has begun developing).
type ConditionalAccumulation struct {
	RequiresFeature string
	RequiresPresent bool
}

// AttributeMultiplier scales a rate by a batch attribute:
// multiplier = Base + Scale × attribute. A missing attribute reads as the
// neutral multiplier 1.0.
type AttributeMultiplier struct {
	Attr  string
	Base  float64
	Scale float64
}

// Apply resolves the multiplier against a batch. Nil receiver and missing
// or malformed attributes are neutral.
func (m *AttributeMultiplier) Apply(b *wine.Batch) float64 {
	if m == nil {
		return 1
	}
	v := b.Attribute(m.Attr, math.NaN())
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 1
	}
	return m.Base + m.Scale*v
}

// AccumulationParams configures weekly risk accumulation.
type AccumulationParams struct {
	BaseRate         float64
	Compound         bool // riskIncrease scales with (1 + currentRisk)
	StateMultipliers map[wine.State]float64
	Multiplier       *AttributeMultiplier
	Conditional      *ConditionalAccumulation

	// Post-manifestation evolution. Zero growth freezes severity once present.
	EvolveAfterManifest bool
	PostManifestGrowth  float64
}

// CurveFunc maps aging progress (weeks since entering the relevant stage)
// to severity. Must be deterministic: the weekly step re-reads the curve
// instead of accumulating deltas, so repeated evaluation cannot drift.
type CurveFunc func(progressWeeks float64) float64

// EvolvingParams configures direct severity growth.
type EvolvingParams struct {
	SpawnActive      bool    // start pre-armed with SpawnSeverity
	SpawnSeverity    float64 // initial severity when pre-armed
	GrowthRate       float64 // severity per week, scaled by state multiplier
	StateMultipliers map[wine.State]float64
	SeverityCap      float64 // 0 means 1.0

	// Curve, when set, replaces additive growth: severity at week T is
	// Curve(T − stageWeek).
	Curve CurveFunc
}

// Cap returns the effective severity cap.
func (p *EvolvingParams) Cap() float64 {
	if p.SeverityCap <= 0 {
		return 1
	}
	return p.SeverityCap
}

// Trigger maps one production event to a risk increase.
type Trigger struct {
	Event     EventKind
	Condition func(ctx EventContext) bool    // nil means always
	Risk      func(ctx EventContext) float64 // required
}

// TriggeredParams configures event-driven risk.
type TriggeredParams struct {
	Triggers []Trigger

	EvolveAfterManifest bool
	PostManifestGrowth  float64
	StateMultipliers    map[wine.State]float64 // gates post-manifest growth
}

// QualityEffectKind selects how a present feature reshapes quality.
type QualityEffectKind uint8

const (
	QualityLinear QualityEffectKind = iota
	QualityPower
	QualityBonus
	QualityCustom
)

// QualityEffect is a tagged union over the closed set of effect kinds.
type QualityEffect struct {
	Kind QualityEffectKind

	// Linear: Δquality = Amount × severity.
	// Bonus: Δquality = Amount, or BonusFn(severity) when set.
	Amount  float64
	BonusFn func(severity float64) float64

	// Power: penalty = BasePenalty × (1 + quality^Exponent), applied
	// multiplicatively and optionally damped by an attribute.
	BasePenalty float64
	Exponent    float64
	Damping     *AttributeMultiplier

	// Custom: next quality = CustomFn(quality, severity, attribute).
	CustomFn   func(quality, severity, attr float64) float64
	CustomAttr string
}

// CharacteristicEffect is an additive delta on one sensory axis:
// Amount × severity, or Fn(severity) when Fn is set.
type CharacteristicEffect struct {
	Characteristic wine.Characteristic
	Amount         float64
	Fn             func(severity float64) float64
}

// Definition is one immutable catalogue entry.
type Definition struct {
	ID          string
	Name        string
	Icon        string
	Description string

	Behavior Behavior

	// ManifestMultipliers lets risk pay off at a different rate than it
	// accumulates per production stage. Nil falls back to the accumulation
	// state multipliers, then to 1.0.
	ManifestMultipliers map[wine.State]float64

	// BinarySeverity sets severity to 1.0 on manifestation; otherwise
	// severity is taken from the effective risk that manifested.
	BinarySeverity bool

	QualityEffect         QualityEffect
	CharacteristicEffects []CharacteristicEffect

	// Sensitivity multiplies sale price per customer type. Missing entries
	// are neutral. When SeverityScaledPrice is set the multiplier is
	// interpolated from 1.0 at severity 0 to the full value at the cap.
	Sensitivity         map[wine.CustomerType]float64
	SeverityScaledPrice bool

	// StopsEvolutionOf freezes the listed features' severity growth while
	// this feature is present.
	StopsEvolutionOf []string

	// Prestige emits a prestige event to the external collaborator when
	// this feature manifests.
	Prestige bool
}

// stateMultiplier looks up a per-stage multiplier, defaulting to zero:
// a stage absent from the table does not accumulate.
func stateMultiplier(table map[wine.State]float64, s wine.State) float64 {
	if table == nil {
		return 0
	}
	return table[s]
}

// manifestMultiplier resolves the stage multiplier used when converting
// risk to effective risk. Unlike accumulation, the default is neutral.
func (d *Definition) manifestMultiplier(s wine.State) float64 {
	if d.ManifestMultipliers != nil {
		if m, ok := d.ManifestMultipliers[s]; ok {
			return m
		}
		return 0
	}
	if d.Behavior.Kind == BehaviorAccumulation && d.Behavior.Accumulation.StateMultipliers != nil {
		if m, ok := d.Behavior.Accumulation.StateMultipliers[s]; ok {
			return m
		}
	}
	return 1
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

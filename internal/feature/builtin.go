package feature

import (
	"math"

	"github.com/talgya/cellarworks/internal/wine"
)

// Builtin returns the standard feature catalogue: four faults (oxidation,
// volatile acidity, green flavor, grey rot) and three positive traits
// (noble rot, terroir expression, bottle aging).
func Builtin() *Catalogue {
	return NewCatalogue(
		oxidation(),
		volatileAcidity(),
		greenFlavor(),
		greyRot(),
		nobleRot(),
		terroirExpression(),
		bottleAging(),
	)
}

// oxidation builds compounding risk across the whole production run, fastest
// while the wine sits as must. Fruit prone to oxidation accumulates faster;
// the quality penalty is damped by the batch's oxidation resistance.
func oxidation() *Definition {
	return &Definition{
		ID:          "oxidation",
		Name:        "Oxidation",
		Icon:        "wind",
		Description: "Excessive oxygen exposure flattens fruit and browns the wine.",
		Behavior: Behavior{
			Kind: BehaviorAccumulation,
			Accumulation: &AccumulationParams{
				BaseRate: 0.02,
				Compound: true,
				StateMultipliers: map[wine.State]float64{
					wine.StateGrapes:     0.5,
					wine.StateMust:       1.5,
					wine.StateFermenting: 1.0,
					wine.StateBottled:    0.25,
				},
				Multiplier:          &AttributeMultiplier{Attr: "prone_to_oxidation", Base: 0.5, Scale: 1.0},
				EvolveAfterManifest: true,
				PostManifestGrowth:  0.02,
			},
		},
		QualityEffect: QualityEffect{
			Kind:        QualityPower,
			BasePenalty: 0.15,
			Exponent:    2,
			Damping:     &AttributeMultiplier{Attr: "oxidation_resistance", Base: 1.0, Scale: -0.6},
		},
		CharacteristicEffects: []CharacteristicEffect{
			{Characteristic: wine.Aroma, Amount: -0.20},
			{Characteristic: wine.Body, Amount: -0.10},
		},
		Sensitivity: map[wine.CustomerType]float64{
			wine.CustomerCasual:     0.90,
			wine.CustomerEnthusiast: 0.70,
			wine.CustomerCollector:  0.40,
			wine.CustomerRestaurant: 0.60,
		},
		SeverityScaledPrice: true,
		StopsEvolutionOf:    []string{"terroir_expression"},
	}
}

// volatileAcidity only develops in open containers: must and fermentation.
func volatileAcidity() *Definition {
	return &Definition{
		ID:          "volatile_acidity",
		Name:        "Volatile Acidity",
		Icon:        "flask",
		Description: "Acetic bacteria push the wine toward vinegar.",
		Behavior: Behavior{
			Kind: BehaviorAccumulation,
			Accumulation: &AccumulationParams{
				BaseRate: 0.015,
				StateMultipliers: map[wine.State]float64{
					wine.StateMust:       1.0,
					wine.StateFermenting: 1.2,
				},
			},
		},
		BinarySeverity: true,
		QualityEffect:  QualityEffect{Kind: QualityLinear, Amount: -0.30},
		CharacteristicEffects: []CharacteristicEffect{
			{Characteristic: wine.Acidity, Amount: 0.25},
			{Characteristic: wine.Aroma, Amount: -0.15},
		},
		Sensitivity: map[wine.CustomerType]float64{
			wine.CustomerCasual:     0.80,
			wine.CustomerEnthusiast: 0.55,
			wine.CustomerCollector:  0.35,
			wine.CustomerRestaurant: 0.50,
		},
	}
}

// greenFlavor fires at harvest when fruit is underripe, and at crush when
// whole clusters are pressed hard (stems grind into the juice).
func greenFlavor() *Definition {
	return &Definition{
		ID:          "green_flavor",
		Name:        "Green Flavor",
		Icon:        "leaf",
		Description: "Underripe, vegetal notes from unready fruit or stem contact.",
		Behavior: Behavior{
			Kind: BehaviorTriggered,
			Triggered: &TriggeredParams{
				Triggers: []Trigger{
					{
						Event: EventHarvest,
						Condition: func(ctx EventContext) bool {
							return ctx.Harvest != nil && ctx.Harvest.Ripeness < 0.6
						},
						Risk: func(ctx EventContext) float64 {
							return (0.6 - ctx.Harvest.Ripeness) / 0.6 * 0.8
						},
					},
					{
						Event: EventCrush,
						Condition: func(ctx EventContext) bool {
							return ctx.Crush != nil && !ctx.Crush.Destemming && ctx.Crush.PressingIntensity > 0.7
						},
						Risk: func(ctx EventContext) float64 {
							return (ctx.Crush.PressingIntensity - 0.7) * 0.5
						},
					},
				},
			},
		},
		BinarySeverity: true,
		QualityEffect:  QualityEffect{Kind: QualityLinear, Amount: -0.20},
		CharacteristicEffects: []CharacteristicEffect{
			{Characteristic: wine.Spice, Amount: 0.10},
			{Characteristic: wine.Sweetness, Amount: -0.15},
		},
		Sensitivity: map[wine.CustomerType]float64{
			wine.CustomerCasual:     0.85,
			wine.CustomerEnthusiast: 0.65,
			wine.CustomerCollector:  0.55,
			wine.CustomerRestaurant: 0.70,
		},
	}
}

// greyRot only accumulates on the vine, scaled by field humidity. It rides
// into the batch via vineyard pending features at harvest.
func greyRot() *Definition {
	return &Definition{
		ID:          "grey_rot",
		Name:        "Grey Rot",
		Icon:        "cloud-rain",
		Description: "Botrytis gone wrong: wet fruit collapsing into mould.",
		Behavior: Behavior{
			Kind: BehaviorAccumulation,
			Accumulation: &AccumulationParams{
				BaseRate: 0.03,
				StateMultipliers: map[wine.State]float64{
					wine.StateGrapes: 1.0,
				},
				Multiplier: &AttributeMultiplier{Attr: "field_humidity", Base: 0.2, Scale: 1.6},
			},
		},
		QualityEffect: QualityEffect{
			Kind:        QualityPower,
			BasePenalty: 0.20,
			Exponent:    1.5,
		},
		CharacteristicEffects: []CharacteristicEffect{
			{Characteristic: wine.Aroma, Amount: -0.25},
			{Characteristic: wine.Body, Amount: -0.15},
		},
		Sensitivity: map[wine.CustomerType]float64{
			wine.CustomerCasual:     0.75,
			wine.CustomerEnthusiast: 0.50,
			wine.CustomerCollector:  0.30,
			wine.CustomerRestaurant: 0.45,
		},
		SeverityScaledPrice: true,
		StopsEvolutionOf:    []string{"terroir_expression"},
	}
}

// nobleRot is the same fungus under the right conditions: it can only begin
// once grey rot has taken hold, and once noble rot manifests it arrests the
// grey rot's further development.
func nobleRot() *Definition {
	return &Definition{
		ID:          "noble_rot",
		Name:        "Noble Rot",
		Icon:        "sparkles",
		Description: "Botrytis concentrating sugar and honeyed aromatics.",
		Behavior: Behavior{
			Kind: BehaviorAccumulation,
			Accumulation: &AccumulationParams{
				BaseRate: 0.025,
				StateMultipliers: map[wine.State]float64{
					wine.StateGrapes: 1.0,
				},
				Multiplier: &AttributeMultiplier{Attr: "field_humidity", Base: 0.4, Scale: 1.0},
				Conditional: &ConditionalAccumulation{
					RequiresFeature: "grey_rot",
					RequiresPresent: true,
				},
			},
		},
		QualityEffect: QualityEffect{
			Kind: QualityBonus,
			BonusFn: func(severity float64) float64 {
				return 0.25 * math.Sqrt(severity)
			},
		},
		CharacteristicEffects: []CharacteristicEffect{
			{Characteristic: wine.Sweetness, Amount: 0.30},
			{Characteristic: wine.Aroma, Amount: 0.20},
		},
		Sensitivity: map[wine.CustomerType]float64{
			wine.CustomerCasual:     1.05,
			wine.CustomerEnthusiast: 1.40,
			wine.CustomerCollector:  1.80,
			wine.CustomerRestaurant: 1.25,
		},
		SeverityScaledPrice: true,
		StopsEvolutionOf:    []string{"grey_rot"},
		Prestige:            true,
	}
}

// terroirExpression is pre-armed on every batch and develops slowly through
// fermentation and bottle time, unless a fault arrests it.
func terroirExpression() *Definition {
	return &Definition{
		ID:          "terroir_expression",
		Name:        "Terroir Expression",
		Icon:        "mountain",
		Description: "The site speaking through the wine.",
		Behavior: Behavior{
			Kind: BehaviorEvolving,
			Evolving: &EvolvingParams{
				SpawnActive:   true,
				SpawnSeverity: 0.001,
				GrowthRate:    0.004,
				StateMultipliers: map[wine.State]float64{
					wine.StateGrapes:     0.25,
					wine.StateMust:       0.25,
					wine.StateFermenting: 1.0,
					wine.StateBottled:    0.75,
				},
			},
		},
		QualityEffect: QualityEffect{Kind: QualityLinear, Amount: 0.20},
		CharacteristicEffects: []CharacteristicEffect{
			{Characteristic: wine.Body, Amount: 0.10},
			{Characteristic: wine.Aroma, Amount: 0.15},
		},
		Sensitivity: map[wine.CustomerType]float64{
			wine.CustomerCasual:     1.00,
			wine.CustomerEnthusiast: 1.25,
			wine.CustomerCollector:  1.50,
			wine.CustomerRestaurant: 1.15,
		},
		SeverityScaledPrice: true,
		Prestige:            true,
	}
}

// bottleAging reads severity off a nonlinear curve of weeks in bottle rather
// than accumulating a flat weekly rate, so repeated evaluation reproduces the
// same trajectory without drift.
func bottleAging() *Definition {
	return &Definition{
		ID:          "bottle_aging",
		Name:        "Bottle Aging",
		Icon:        "hourglass",
		Description: "Slow integration and tertiary development in bottle.",
		Behavior: Behavior{
			Kind: BehaviorEvolving,
			Evolving: &EvolvingParams{
				StateMultipliers: map[wine.State]float64{
					wine.StateBottled: 1.0,
				},
				Curve: AgingCurve(156), // ~3 years to full maturity
			},
		},
		QualityEffect: QualityEffect{
			Kind: QualityCustom,
			// Aging lifts quality toward its potential; already-great wine
			// gains less headroom.
			CustomFn: func(quality, severity, attr float64) float64 {
				return quality + (1-quality)*0.3*severity*attr
			},
			CustomAttr: "aging_potential",
		},
		CharacteristicEffects: []CharacteristicEffect{
			{Characteristic: wine.Tannins, Amount: -0.15},
			{Characteristic: wine.Body, Amount: 0.10},
			{Characteristic: wine.Aroma, Fn: func(severity float64) float64 {
				return 0.2 * severity * severity
			}},
		},
		Sensitivity: map[wine.CustomerType]float64{
			wine.CustomerCasual:     1.00,
			wine.CustomerEnthusiast: 1.20,
			wine.CustomerCollector:  1.60,
			wine.CustomerRestaurant: 1.30,
		},
		SeverityScaledPrice: true,
	}
}

// AgingCurve returns a smoothstep maturity curve over the given window:
// slow start, steady middle, flattening toward full maturity.
func AgingCurve(windowWeeks float64) CurveFunc {
	return func(progressWeeks float64) float64 {
		if progressWeeks <= 0 {
			return 0
		}
		x := progressWeeks / windowWeeks
		if x >= 1 {
			return 1
		}
		return x * x * (3 - 2*x)
	}
}

package feature

import (
	"fmt"
	"math"

	"github.com/talgya/cellarworks/internal/wine"
)

// Compose rebuilds a batch's derived quality, characteristics, balance,
// price-sensitivity multipliers and breakdown log from its canonical base
// values plus every currently-present feature, in catalogue order.
//
// Derived state is never mutated incrementally: composing twice with no
// state change in between yields identical output, so re-running after a
// vineyard merge cannot double-apply anything. Feature states whose ids the
// catalogue no longer knows are skipped.
func Compose(cat *Catalogue, b *wine.Batch) {
	quality := b.BornGrapeQuality
	deltas := make(map[wine.Characteristic]float64)
	breakdown := make([]wine.BreakdownEntry, 0, 8)

	price := make(map[wine.CustomerType]float64, len(wine.AllCustomerTypes))
	for _, ct := range wine.AllCustomerTypes {
		price[ct] = 1.0
	}

	for _, def := range cat.All() {
		st := b.Feature(def.ID)
		if st == nil || !st.Present {
			continue
		}

		next := applyQualityEffect(def, b, quality, st.Severity)
		if next != quality {
			breakdown = append(breakdown, wine.BreakdownEntry{
				FeatureID: def.ID,
				Target:    "quality",
				Delta:     next - quality,
			})
		}
		quality = next

		for _, ce := range def.CharacteristicEffects {
			delta := ce.Amount * st.Severity
			if ce.Fn != nil {
				delta = ce.Fn(st.Severity)
			}
			if delta == 0 {
				continue
			}
			deltas[ce.Characteristic] += delta
			breakdown = append(breakdown, wine.BreakdownEntry{
				FeatureID: def.ID,
				Target:    string(ce.Characteristic),
				Delta:     delta,
			})
		}

		for _, ct := range wine.AllCustomerTypes {
			mult := sensitivityMultiplier(def, ct, st.Severity)
			if mult == 1 {
				continue
			}
			price[ct] *= mult
			breakdown = append(breakdown, wine.BreakdownEntry{
				FeatureID: def.ID,
				Target:    fmt.Sprintf("price:%s", ct),
				Delta:     mult - 1,
			})
		}
	}

	chars := make(wine.Characteristics, len(wine.AllCharacteristics))
	for _, c := range wine.AllCharacteristics {
		chars[c] = clamp01(b.BaseCharacteristics[c] + deltas[c])
	}

	b.GrapeQuality = clamp01(quality)
	b.Characteristics = chars
	b.Balance = balanceOf(chars)
	b.PriceSensitivity = price
	b.Breakdown = breakdown
}

// applyQualityEffect returns the quality after one feature's effect.
func applyQualityEffect(def *Definition, b *wine.Batch, quality, severity float64) float64 {
	e := def.QualityEffect
	switch e.Kind {
	case QualityLinear:
		return quality + e.Amount*severity

	case QualityPower:
		penalty := e.BasePenalty * (1 + math.Pow(clamp01(quality), e.Exponent))
		penalty *= severity
		penalty *= e.Damping.Apply(b)
		return quality * (1 - clamp01(penalty))

	case QualityBonus:
		if e.BonusFn != nil {
			return quality + e.BonusFn(severity)
		}
		return quality + e.Amount

	case QualityCustom:
		if e.CustomFn == nil {
			return quality
		}
		attr := b.Attribute(e.CustomAttr, 1.0)
		return e.CustomFn(quality, severity, attr)
	}
	return quality
}

// sensitivityMultiplier resolves one feature's price multiplier for a
// customer type. Missing table entries are neutral. Severity-scaled features
// interpolate from 1.0 at severity zero to the full table value at the cap,
// so price impact grows smoothly instead of jumping at manifestation.
func sensitivityMultiplier(def *Definition, ct wine.CustomerType, severity float64) float64 {
	if def.Sensitivity == nil {
		return 1
	}
	full, ok := def.Sensitivity[ct]
	if !ok {
		return 1
	}
	if !def.SeverityScaledPrice {
		return full
	}
	return 1 + (full-1)*clamp01(severity)
}

// balanceOf scores how close the sensory profile sits to the midpoint of
// every axis: 1.0 for a perfectly centered wine, falling toward 0 at the
// extremes.
func balanceOf(chars wine.Characteristics) float64 {
	if len(chars) == 0 {
		return 0
	}
	total := 0.0
	for _, c := range wine.AllCharacteristics {
		total += math.Abs(chars[c] - 0.5)
	}
	avg := total / float64(len(wine.AllCharacteristics))
	return clamp01(1 - 2*avg)
}

// Package weather models per-vineyard growing-season conditions as seeded
// noise tracks. Humidity drives field rot development; temperature drives
// ripening. Deterministic per (seed, week) so a saved world replays the same
// weather.
package weather

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// Week holds one week's conditions for a vineyard, all in [0, 1].
type Week struct {
	Humidity    float64 `json:"humidity"`
	Temperature float64 `json:"temperature"`
	Rainfall    float64 `json:"rainfall"`
}

// WeekIndex computes conditions for an absolute simulation week on the
// vineyard's noise track.
func WeekIndex(seed int64, week uint64) Week {
	humidity := opensimplex.NewNormalized(seed)
	temperature := opensimplex.NewNormalized(seed + 1)
	rainfall := opensimplex.NewNormalized(seed + 2)

	t := float64(week)
	return Week{
		Humidity:    octaveNoise(humidity, t, 3, 0.08, 0.5),
		Temperature: seasonalShape(week)*0.7 + octaveNoise(temperature, t, 2, 0.12, 0.5)*0.3,
		Rainfall:    octaveNoise(rainfall, t, 3, 0.15, 0.6),
	}
}

// octaveNoise layers multiple frequencies of 1-D noise (evaluated along a
// fixed second axis) into a fractal track in [0, 1].
func octaveNoise(noise opensimplex.Noise, t float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(t*frequency, 0.5) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

// seasonalShape is the annual temperature baseline: cold at the year edges,
// peaking mid-year. Piecewise triangle over a 52-week year.
func seasonalShape(week uint64) float64 {
	w := float64(week % 52)
	if w <= 26 {
		return w / 26
	}
	return (52 - w) / 26
}

package wine

import "github.com/google/uuid"

// Vineyard is the field a batch is harvested from. Features can begin
// developing on the vine before harvest; those live in PendingFeatures and
// are merged into the batch's feature states at harvest time, with the
// batch's own entry winning on id collision.
type Vineyard struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Region  string    `json:"region"`
	Variety string    `json:"variety"`

	// WeatherSeed makes each vineyard's growing-season weather its own
	// deterministic noise track.
	WeatherSeed int64 `json:"weather_seed"`

	Ripeness float64 `json:"ripeness"` // 0..1, resets after harvest

	PendingFeatures []FeatureState     `json:"pending_features"`
	Attributes      map[string]float64 `json:"attributes"`
}

// PendingFeature returns the pending entry for a feature id, or nil.
func (v *Vineyard) PendingFeature(id string) *FeatureState {
	for i := range v.PendingFeatures {
		if v.PendingFeatures[i].ID == id {
			return &v.PendingFeatures[i]
		}
	}
	return nil
}

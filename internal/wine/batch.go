// Package wine defines the batch and vineyard aggregates the simulation
// operates on.
package wine

import (
	"github.com/google/uuid"
)

// State is the production stage of a batch.
type State uint8

const (
	StateGrapes State = iota
	StateMust
	StateFermenting
	StateBottled
)

// StateName returns a human-readable production stage name.
func StateName(s State) string {
	switch s {
	case StateGrapes:
		return "grapes"
	case StateMust:
		return "must"
	case StateFermenting:
		return "fermenting"
	case StateBottled:
		return "bottled"
	default:
		return "unknown"
	}
}

// Characteristic identifies one sensory axis of a wine.
type Characteristic string

const (
	Sweetness Characteristic = "sweetness"
	Acidity   Characteristic = "acidity"
	Tannins   Characteristic = "tannins"
	Body      Characteristic = "body"
	Spice     Characteristic = "spice"
	Aroma     Characteristic = "aroma"
)

// AllCharacteristics lists every sensory axis in canonical order.
var AllCharacteristics = []Characteristic{
	Sweetness, Acidity, Tannins, Body, Spice, Aroma,
}

// Characteristics maps sensory axes to values in [0,1].
type Characteristics map[Characteristic]float64

// Clone returns a deep copy.
func (c Characteristics) Clone() Characteristics {
	out := make(Characteristics, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// CustomerType categorizes buyers for price-sensitivity purposes.
type CustomerType string

const (
	CustomerCasual     CustomerType = "casual"
	CustomerEnthusiast CustomerType = "enthusiast"
	CustomerCollector  CustomerType = "collector"
	CustomerRestaurant CustomerType = "restaurant"
)

// AllCustomerTypes lists every customer type in canonical order.
var AllCustomerTypes = []CustomerType{
	CustomerCasual, CustomerEnthusiast, CustomerCollector, CustomerRestaurant,
}

// FeatureState tracks one catalogue feature's development on a batch.
// Risk and Severity are clamped to [0,1]. Present never reverts to false
// once set.
type FeatureState struct {
	ID         string  `json:"id"`
	Risk       float64 `json:"risk"`
	Present    bool    `json:"present"`
	Severity   float64 `json:"severity"`
	RiskWarned bool    `json:"risk_warned,omitempty"` // risk-threshold notification already sent
}

// BreakdownEntry records one effect application for traceability.
type BreakdownEntry struct {
	FeatureID string  `json:"feature_id"`
	Target    string  `json:"target"` // "quality", "price:<customer>", or a characteristic id
	Delta     float64 `json:"delta"`
}

// Batch is a quantity of wine moving through production. It owns one
// FeatureState per catalogue entry plus the canonical base values that
// derived quality and characteristics are recomputed from.
type Batch struct {
	ID         uuid.UUID `json:"id"`
	VineyardID uuid.UUID `json:"vineyard_id"`
	Label      string    `json:"label"`
	Vintage    int       `json:"vintage"`
	State      State     `json:"state"`

	// Canonical values, fixed at harvest.
	BornGrapeQuality    float64         `json:"born_grape_quality"`
	BaseCharacteristics Characteristics `json:"base_characteristics"`

	// Derived values, rebuilt in full by the effect composer.
	GrapeQuality     float64                  `json:"grape_quality"`
	Characteristics  Characteristics          `json:"characteristics"`
	Balance          float64                  `json:"balance"`
	PriceSensitivity map[CustomerType]float64 `json:"price_sensitivity"`
	Breakdown        []BreakdownEntry         `json:"breakdown"`

	// Auxiliary attributes (e.g. prone_to_oxidation). Missing entries read
	// as neutral — see Attribute.
	Attributes map[string]float64 `json:"attributes"`

	Features []FeatureState `json:"features"`

	// Production-stage weeks, used by triggered-feature conditions and the
	// bottle-aging curve. Zero means the stage has not happened.
	HarvestedWeek uint64 `json:"harvested_week"`
	CrushedWeek   uint64 `json:"crushed_week"`
	FermentedWeek uint64 `json:"fermented_week"`
	BottledWeek   uint64 `json:"bottled_week"`
}

// Feature returns the state entry for a feature id, or nil if the batch
// carries no entry for it.
func (b *Batch) Feature(id string) *FeatureState {
	for i := range b.Features {
		if b.Features[i].ID == id {
			return &b.Features[i]
		}
	}
	return nil
}

// Attribute returns a named auxiliary attribute, or the given default when
// the attribute is missing. Callers pass the neutral value they need.
func (b *Batch) Attribute(name string, def float64) float64 {
	if b.Attributes == nil {
		return def
	}
	v, ok := b.Attributes[name]
	if !ok {
		return def
	}
	return v
}

// Clone returns a deep copy of the batch. The tick and event integrators
// compute on a clone and only swap it in once persistence succeeds.
func (b *Batch) Clone() *Batch {
	out := *b
	out.BaseCharacteristics = b.BaseCharacteristics.Clone()
	out.Characteristics = b.Characteristics.Clone()
	out.Features = make([]FeatureState, len(b.Features))
	copy(out.Features, b.Features)
	out.Breakdown = make([]BreakdownEntry, len(b.Breakdown))
	copy(out.Breakdown, b.Breakdown)
	if b.PriceSensitivity != nil {
		out.PriceSensitivity = make(map[CustomerType]float64, len(b.PriceSensitivity))
		for k, v := range b.PriceSensitivity {
			out.PriceSensitivity[k] = v
		}
	}
	if b.Attributes != nil {
		out.Attributes = make(map[string]float64, len(b.Attributes))
		for k, v := range b.Attributes {
			out.Attributes[k] = v
		}
	}
	return &out
}

// StateWeek returns the week the batch entered its current production stage.
func (b *Batch) StateWeek() uint64 {
	switch b.State {
	case StateGrapes:
		return b.HarvestedWeek
	case StateMust:
		return b.CrushedWeek
	case StateFermenting:
		return b.FermentedWeek
	case StateBottled:
		return b.BottledWeek
	default:
		return 0
	}
}

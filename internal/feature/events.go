package feature

// EventKind identifies a discrete production step.
type EventKind uint8

const (
	EventHarvest EventKind = iota
	EventCrush
	EventFerment
	EventBottle
)

// EventName returns a human-readable event name.
func EventName(k EventKind) string {
	switch k {
	case EventHarvest:
		return "harvest"
	case EventCrush:
		return "crush"
	case EventFerment:
		return "ferment"
	case EventBottle:
		return "bottle"
	default:
		return "unknown"
	}
}

// HarvestOptions is the payload of a harvest event.
type HarvestOptions struct {
	Ripeness float64 `json:"ripeness"`
	Season   uint8   `json:"season"`
}

// CrushOptions is the payload of a crush event.
type CrushOptions struct {
	Method            string  `json:"method"`
	Destemming        bool    `json:"destemming"`
	ColdSoak          bool    `json:"cold_soak"`
	PressingIntensity float64 `json:"pressing_intensity"` // 0..1
}

// FermentOptions is the payload of a ferment event.
type FermentOptions struct {
	Method      string  `json:"method"`
	Temperature float64 `json:"temperature"`
}

// BottleOptions is the payload of a bottle event.
type BottleOptions struct {
	Method   string `json:"method"`
	CorkType string `json:"cork_type"`
}

// EventContext carries one production event and its stage-specific options.
// Exactly the options pointer matching Kind is expected to be set; trigger
// conditions treat a missing payload as "condition not met".
type EventContext struct {
	Kind EventKind `json:"kind"`
	Week uint64    `json:"week"`

	Harvest *HarvestOptions `json:"harvest,omitempty"`
	Crush   *CrushOptions   `json:"crush,omitempty"`
	Ferment *FermentOptions `json:"ferment,omitempty"`
	Bottle  *BottleOptions  `json:"bottle,omitempty"`
}

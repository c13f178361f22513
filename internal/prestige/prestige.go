// Package prestige is the boundary to the prestige economy. The engine
// reports feature manifestations with their batch and vineyard context; how
// much prestige that is worth is computed entirely on the other side.
package prestige

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Event is one manifestation the prestige economy should score.
type Event struct {
	FeatureID  string    `json:"feature_id"`
	BatchID    uuid.UUID `json:"batch_id"`
	BatchLabel string    `json:"batch_label"`
	VineyardID uuid.UUID `json:"vineyard_id"`
	Week       uint64    `json:"week"`
}

// Sink receives prestige events.
type Sink interface {
	ManifestationOccurred(Event)
}

// Ledger records events in memory and logs them. Stands in for the real
// prestige subsystem.
type Ledger struct {
	mu     sync.Mutex
	events []Event
}

// ManifestationOccurred implements Sink.
func (l *Ledger) ManifestationOccurred(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
	slog.Info("prestige event", "feature", e.FeatureID, "batch", e.BatchLabel, "week", e.Week)
}

// Events returns a copy of everything recorded.
func (l *Ledger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Package notify is the outbound notification boundary. The engine hands
// every player-facing occurrence here with a stable machine-readable key so
// a UI layer can route and deduplicate; the default implementation just
// logs.
package notify

import "log/slog"

// Keys are stable identifiers for notification kinds:
//
//	feature.<id>       — the feature manifested
//	feature.<id>.risk  — the feature's risk crossed the warning threshold
type Notifier interface {
	Notify(key, message string)
}

// Log writes notifications to the structured log.
type Log struct{}

// Notify implements Notifier.
func (Log) Notify(key, message string) {
	slog.Info("notification", "key", key, "message", message)
}

// Recorder captures notifications in memory. Used by tests and the API's
// recent-notifications endpoint.
type Recorder struct {
	Entries []Entry
}

// Entry is one captured notification.
type Entry struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// Notify implements Notifier.
func (r *Recorder) Notify(key, message string) {
	r.Entries = append(r.Entries, Entry{Key: key, Message: message})
}

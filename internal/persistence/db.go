// Package persistence provides SQLite-based cellar state storage.
// Nested structures (feature states, characteristics, breakdown) ride in
// JSON columns; writes are bulk, one transaction per save.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/cellarworks/internal/engine"
	"github.com/talgya/cellarworks/internal/wine"
)

// DB wraps a SQLite connection for cellar state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		vineyard_id TEXT NOT NULL,
		label TEXT NOT NULL,
		vintage INTEGER NOT NULL,
		state INTEGER NOT NULL,
		born_quality REAL NOT NULL,
		quality REAL NOT NULL,
		balance REAL NOT NULL,
		base_chars_json TEXT NOT NULL,
		chars_json TEXT NOT NULL,
		price_json TEXT NOT NULL,
		breakdown_json TEXT NOT NULL,
		attrs_json TEXT NOT NULL,
		features_json TEXT NOT NULL,
		harvested_week INTEGER NOT NULL,
		crushed_week INTEGER NOT NULL,
		fermented_week INTEGER NOT NULL,
		bottled_week INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vineyards (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		region TEXT NOT NULL,
		variety TEXT NOT NULL,
		weather_seed INTEGER NOT NULL,
		ripeness REAL NOT NULL,
		pending_json TEXT NOT NULL,
		attrs_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cellar_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		week INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cellar_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_week ON cellar_events(week);
	CREATE INDEX IF NOT EXISTS idx_batches_vineyard ON batches(vineyard_id);
	CREATE INDEX IF NOT EXISTS idx_batches_state ON batches(state);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveBatches upserts the given batches in one transaction. The tick
// integrator passes only changed batches, so this is the bounded weekly
// write.
func (db *DB) SaveBatches(batches []*wine.Batch) error {
	if len(batches) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT OR REPLACE INTO batches
		(id, vineyard_id, label, vintage, state, born_quality, quality, balance,
		 base_chars_json, chars_json, price_json, breakdown_json, attrs_json,
		 features_json, harvested_week, crushed_week, fermented_week, bottled_week)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range batches {
		baseJSON, _ := json.Marshal(b.BaseCharacteristics)
		charsJSON, _ := json.Marshal(b.Characteristics)
		priceJSON, _ := json.Marshal(b.PriceSensitivity)
		breakdownJSON, _ := json.Marshal(b.Breakdown)
		attrsJSON, _ := json.Marshal(b.Attributes)
		featuresJSON, _ := json.Marshal(b.Features)

		_, err := stmt.Exec(
			b.ID.String(), b.VineyardID.String(), b.Label, b.Vintage, b.State,
			b.BornGrapeQuality, b.GrapeQuality, b.Balance,
			string(baseJSON), string(charsJSON), string(priceJSON),
			string(breakdownJSON), string(attrsJSON), string(featuresJSON),
			b.HarvestedWeek, b.CrushedWeek, b.FermentedWeek, b.BottledWeek,
		)
		if err != nil {
			return fmt.Errorf("insert batch %s: %w", b.ID, err)
		}
	}

	return tx.Commit()
}

type batchRow struct {
	ID            string  `db:"id"`
	VineyardID    string  `db:"vineyard_id"`
	Label         string  `db:"label"`
	Vintage       int     `db:"vintage"`
	State         uint8   `db:"state"`
	BornQuality   float64 `db:"born_quality"`
	Quality       float64 `db:"quality"`
	Balance       float64 `db:"balance"`
	BaseChars     string  `db:"base_chars_json"`
	Chars         string  `db:"chars_json"`
	Price         string  `db:"price_json"`
	Breakdown     string  `db:"breakdown_json"`
	Attrs         string  `db:"attrs_json"`
	Features      string  `db:"features_json"`
	HarvestedWeek uint64  `db:"harvested_week"`
	CrushedWeek   uint64  `db:"crushed_week"`
	FermentedWeek uint64  `db:"fermented_week"`
	BottledWeek   uint64  `db:"bottled_week"`
}

// LoadBatches reads every batch. Rows with unparseable ids are skipped with
// a warning rather than failing the whole load.
func (db *DB) LoadBatches() ([]*wine.Batch, error) {
	var rows []batchRow
	if err := db.conn.Select(&rows, "SELECT * FROM batches"); err != nil {
		return nil, err
	}

	out := make([]*wine.Batch, 0, len(rows))
	for _, r := range rows {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			slog.Warn("skipping batch with bad id", "id", r.ID, "error", err)
			continue
		}
		vid, err := uuid.Parse(r.VineyardID)
		if err != nil {
			slog.Warn("skipping batch with bad vineyard id", "id", r.ID, "error", err)
			continue
		}

		b := &wine.Batch{
			ID:               id,
			VineyardID:       vid,
			Label:            r.Label,
			Vintage:          r.Vintage,
			State:            wine.State(r.State),
			BornGrapeQuality: r.BornQuality,
			GrapeQuality:     r.Quality,
			Balance:          r.Balance,
			HarvestedWeek:    r.HarvestedWeek,
			CrushedWeek:      r.CrushedWeek,
			FermentedWeek:    r.FermentedWeek,
			BottledWeek:      r.BottledWeek,
		}
		json.Unmarshal([]byte(r.BaseChars), &b.BaseCharacteristics)
		json.Unmarshal([]byte(r.Chars), &b.Characteristics)
		json.Unmarshal([]byte(r.Price), &b.PriceSensitivity)
		json.Unmarshal([]byte(r.Breakdown), &b.Breakdown)
		json.Unmarshal([]byte(r.Attrs), &b.Attributes)
		json.Unmarshal([]byte(r.Features), &b.Features)

		out = append(out, b)
	}
	return out, nil
}

// SaveVineyards upserts the given vineyards in one transaction.
func (db *DB) SaveVineyards(vineyards []*wine.Vineyard) error {
	if len(vineyards) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, v := range vineyards {
		pendingJSON, _ := json.Marshal(v.PendingFeatures)
		attrsJSON, _ := json.Marshal(v.Attributes)

		_, err := tx.Exec(`INSERT OR REPLACE INTO vineyards
			(id, name, region, variety, weather_seed, ripeness, pending_json, attrs_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID.String(), v.Name, v.Region, v.Variety,
			v.WeatherSeed, v.Ripeness, string(pendingJSON), string(attrsJSON),
		)
		if err != nil {
			return fmt.Errorf("insert vineyard %s: %w", v.ID, err)
		}
	}

	return tx.Commit()
}

type vineyardRow struct {
	ID          string  `db:"id"`
	Name        string  `db:"name"`
	Region      string  `db:"region"`
	Variety     string  `db:"variety"`
	WeatherSeed int64   `db:"weather_seed"`
	Ripeness    float64 `db:"ripeness"`
	Pending     string  `db:"pending_json"`
	Attrs       string  `db:"attrs_json"`
}

// LoadVineyards reads every vineyard.
func (db *DB) LoadVineyards() ([]*wine.Vineyard, error) {
	var rows []vineyardRow
	if err := db.conn.Select(&rows, "SELECT * FROM vineyards"); err != nil {
		return nil, err
	}

	out := make([]*wine.Vineyard, 0, len(rows))
	for _, r := range rows {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			slog.Warn("skipping vineyard with bad id", "id", r.ID, "error", err)
			continue
		}

		v := &wine.Vineyard{
			ID:          id,
			Name:        r.Name,
			Region:      r.Region,
			Variety:     r.Variety,
			WeatherSeed: r.WeatherSeed,
			Ripeness:    r.Ripeness,
		}
		json.Unmarshal([]byte(r.Pending), &v.PendingFeatures)
		json.Unmarshal([]byte(r.Attrs), &v.Attributes)

		out = append(out, v)
	}
	return out, nil
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.Exec(
			"INSERT INTO cellar_events (week, description, category) VALUES (?, ?, ?)",
			e.Week, e.Description, e.Category,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT week, description, category FROM cellar_events ORDER BY id DESC LIMIT ?",
		limit,
	)
	return events, err
}

// SaveMeta stores a key-value pair in cellar metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO cellar_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM cellar_meta WHERE key = ?", key)
	return value, err
}

// HasCellarState reports whether a previous run left state to restore.
func (db *DB) HasCellarState() bool {
	_, err := db.GetMeta("last_week")
	return err == nil
}

// SaveCellarState performs a full save of cellar state.
func (db *DB) SaveCellarState(c *engine.Cellar) error {
	slog.Info("saving cellar state", "batches", len(c.Batches), "vineyards", len(c.Vineyards))

	if err := db.SaveBatches(c.Batches); err != nil {
		return fmt.Errorf("save batches: %w", err)
	}
	if err := db.SaveVineyards(c.Vineyards); err != nil {
		return fmt.Errorf("save vineyards: %w", err)
	}
	if err := db.SaveEvents(c.Events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := db.SaveMeta("last_week", fmt.Sprintf("%d", c.LastWeek)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	slog.Info("cellar state saved")
	return nil
}

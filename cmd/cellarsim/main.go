// Command cellarsim runs the autonomous winery simulation.
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/google/uuid"

	"github.com/talgya/cellarworks/internal/api"
	"github.com/talgya/cellarworks/internal/config"
	"github.com/talgya/cellarworks/internal/engine"
	"github.com/talgya/cellarworks/internal/entropy"
	"github.com/talgya/cellarworks/internal/feature"
	"github.com/talgya/cellarworks/internal/notify"
	"github.com/talgya/cellarworks/internal/persistence"
	"github.com/talgya/cellarworks/internal/prestige"
	"github.com/talgya/cellarworks/internal/wine"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("Cellarworks — Winery Simulation")

	cfg, err := config.Load("cellar.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(cfg.DBPath), 0755)
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Catalogue ────────────────────────────────────────────────────
	cat := feature.Builtin()
	slog.Info("feature catalogue built", "features", cat.Len())

	// ── Load or Generate Cellar State ────────────────────────────────
	var vineyards []*wine.Vineyard
	var batches []*wine.Batch
	var startWeek uint64

	if db.HasCellarState() {
		slog.Info("found saved cellar state, loading...")

		vineyards, err = db.LoadVineyards()
		if err != nil {
			slog.Error("failed to load vineyards", "error", err)
			os.Exit(1)
		}
		batches, err = db.LoadBatches()
		if err != nil {
			slog.Error("failed to load batches", "error", err)
			os.Exit(1)
		}
		if weekStr, err := db.GetMeta("last_week"); err == nil {
			if wk, err := strconv.ParseUint(weekStr, 10, 64); err == nil {
				startWeek = wk
			}
		}

		slog.Info("cellar state restored",
			"vineyards", len(vineyards),
			"batches", len(batches),
			"week", startWeek,
			"sim_time", engine.SimTime(startWeek),
		)
	} else {
		slog.Info("no saved state found, planting new vineyards...")
		vineyards = generateVineyards(cat, cfg.Seed, cfg.Vineyards)
		for _, v := range vineyards {
			slog.Info("vineyard planted",
				"name", v.Name,
				"region", v.Region,
				"variety", v.Variety,
				"site_quality", fmt.Sprintf("%.2f", v.Attributes["site_quality"]),
			)
		}
	}

	// ── Cellar ───────────────────────────────────────────────────────
	cellar := engine.NewCellar(cat, vineyards, batches)
	cellar.Store = db
	cellar.Notifier = notify.Log{}
	cellar.Prestige = &prestige.Ledger{}
	cellar.LastWeek = startWeek

	if cfg.TrueRandom {
		cellar.Rand = entropy.NewClient(os.Getenv("RANDOM_ORG_KEY"))
		slog.Info("manifestation randomness: random.org with crypto fallback")
	} else {
		cellar.Rand = entropy.NewSeeded(cfg.Seed)
		slog.Info("manifestation randomness: seeded (replayable)", "seed", cfg.Seed)
	}

	// Save on fresh generation only (loaded cellars are already saved).
	if startWeek == 0 && len(batches) == 0 {
		if err := db.SaveCellarState(cellar); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	// ── Clock ────────────────────────────────────────────────────────
	eng := engine.NewEngine()
	eng.Week = startWeek
	eng.SetSpeed(cfg.Speed)
	eng.Interval = cfg.Interval()

	eng.OnWeek = func(week uint64) {
		cellar.TickWeek(week)
		cellar.RunVintner(week)
		if err := db.SaveMeta("last_week", strconv.FormatUint(week, 10)); err != nil {
			slog.Error("meta save failed", "error", err)
		}
	}
	eng.OnSeason = func(week uint64) {
		slog.Info("season change",
			"week", week,
			"sim_time", engine.SimTime(week),
			"season", engine.SeasonName(engine.SeasonOf(week)),
			"batches", cellar.Stats.Batches,
			"bottled", cellar.Stats.Bottled,
			"avg_quality", fmt.Sprintf("%.3f", cellar.Stats.AvgQuality),
		)
	}
	eng.OnYear = func(week uint64) {
		slog.Info("vintage year complete",
			"year", week/engine.WeeksPerYear,
			"faults", cellar.Stats.ManifestedFaults,
			"traits", cellar.Stats.ManifestedTraits,
		)
	}

	// ── HTTP API ─────────────────────────────────────────────────────
	adminKey := os.Getenv("CELLARSIM_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("CELLARSIM_ADMIN_KEY not set — admin POST endpoints will be disabled")
	}

	apiServer := &api.Server{
		Cellar:   cellar,
		Eng:      eng,
		DB:       db,
		Port:     cfg.APIPort,
		AdminKey: adminKey,
	}
	apiServer.Start()

	// ── Start ────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	fmt.Printf("\nThe cellar is open: %d vineyards, %d batches.\n", len(vineyards), len(cellar.Batches))
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.APIPort)
	if startWeek > 0 {
		fmt.Printf("Resuming from week %d (%s)\n", startWeek, engine.SimTime(startWeek))
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run()

	// Final save on shutdown.
	slog.Info("final save...")
	if err := db.SaveCellarState(cellar); err != nil {
		slog.Error("final save failed", "error", err)
	}

	fmt.Println("Simulation stopped. Cellar state saved.")
}

// generateVineyards plants n vineyards deterministically from the seed.
func generateVineyards(cat *feature.Catalogue, seed int64, n int) []*wine.Vineyard {
	names := []string{"North Slope", "Old Creek", "Stone Terrace", "Fox Hollow", "Chalk Hill", "River Bend"}
	regions := []string{"Upper Valley", "Coastal Bench", "High Plateau"}
	varieties := []string{"Pinot Noir", "Chardonnay", "Riesling", "Syrah"}

	rng := rand.New(rand.NewSource(seed + 100))
	out := make([]*wine.Vineyard, 0, n)
	for i := 0; i < n; i++ {
		v := &wine.Vineyard{
			ID:          uuid.New(),
			Name:        names[i%len(names)],
			Region:      regions[i%len(regions)],
			Variety:     varieties[rng.Intn(len(varieties))],
			WeatherSeed: seed + int64(i)*1000,
			Attributes: map[string]float64{
				"site_quality":         0.4 + rng.Float64()*0.5,
				"prone_to_oxidation":   rng.Float64() * 0.6,
				"oxidation_resistance": rng.Float64() * 0.5,
				"aging_potential":      0.5 + rng.Float64()*0.5,
			},
		}
		v.PendingFeatures = engine.InitPendingFeatures(cat)
		out = append(out, v)
	}
	return out
}

// Package api provides the HTTP API for observing and steering the cellar.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/cellarworks/internal/engine"
	"github.com/talgya/cellarworks/internal/feature"
	"github.com/talgya/cellarworks/internal/persistence"
	"github.com/talgya/cellarworks/internal/wine"
)

// Server serves the cellar state over HTTP.
type Server struct {
	Cellar   *engine.Cellar
	Eng      *engine.Engine
	DB       *persistence.DB
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	previewLimiter := NewRateLimiter(120, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/batches", s.handleBatches)
	mux.HandleFunc("/api/v1/batch/", s.handleBatchDetail)
	mux.HandleFunc("/api/v1/vineyards", s.handleVineyards)
	mux.HandleFunc("/api/v1/events", s.handleEvents)

	// Preview is a POST (it carries an option payload) but is side-effect
	// free by construction; rate-limited, not authenticated.
	mux.HandleFunc("/api/v1/preview", RateLimitMiddleware(previewLimiter, s.handlePreview))

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/harvest", s.adminOnly(s.handleHarvest))
	mux.HandleFunc("/api/v1/crush", s.adminOnly(s.handleCrush))
	mux.HandleFunc("/api/v1/ferment", s.adminOnly(s.handleFerment))
	mux.HandleFunc("/api/v1/bottle", s.adminOnly(s.handleBottle))

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	if s.AdminKey == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	return strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode failed", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	week := s.Cellar.CurrentWeek()
	writeJSON(w, map[string]any{
		"week":     week,
		"sim_time": engine.SimTime(week),
		"season":   engine.SeasonName(engine.SeasonOf(week)),
		"speed":    s.Eng.Speed(),
		"running":  s.Eng.Running(),
		"stats":    s.Cellar.Stats,
	})
}

// batchSummary is the list-view projection of a batch.
type batchSummary struct {
	ID       uuid.UUID `json:"id"`
	Label    string    `json:"label"`
	State    string    `json:"state"`
	Quality  float64   `json:"quality"`
	Balance  float64   `json:"balance"`
	Features []string  `json:"present_features"`
}

func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request) {
	batches := s.Cellar.SnapshotBatches()
	out := make([]batchSummary, 0, len(batches))
	for _, b := range batches {
		var present []string
		for i := range b.Features {
			if b.Features[i].Present {
				present = append(present, b.Features[i].ID)
			}
		}
		out = append(out, batchSummary{
			ID:       b.ID,
			Label:    b.Label,
			State:    wine.StateName(b.State),
			Quality:  b.GrapeQuality,
			Balance:  b.Balance,
			Features: present,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleBatchDetail(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/v1/batch/")
	id, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "bad batch id", http.StatusBadRequest)
		return
	}
	b, ok := s.Cellar.SnapshotBatch(id)
	if !ok {
		http.Error(w, "batch not found", http.StatusNotFound)
		return
	}
	writeJSON(w, b)
}

func (s *Server) handleVineyards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Cellar.SnapshotVineyards())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		writeJSON(w, []engine.Event{})
		return
	}
	events, err := s.DB.RecentEvents(50)
	if err != nil {
		http.Error(w, "events unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, events)
}

// previewRequest carries one hypothetical production event. Exactly one of
// BatchID and VineyardID is expected; vineyard previews are harvest-only.
type previewRequest struct {
	BatchID    *uuid.UUID              `json:"batch_id,omitempty"`
	VineyardID *uuid.UUID              `json:"vineyard_id,omitempty"`
	Event      string                  `json:"event"`
	Harvest    *feature.HarvestOptions `json:"harvest,omitempty"`
	Crush      *feature.CrushOptions   `json:"crush,omitempty"`
	Ferment    *feature.FermentOptions `json:"ferment,omitempty"`
	Bottle     *feature.BottleOptions  `json:"bottle,omitempty"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	week := s.Cellar.CurrentWeek()

	if req.VineyardID != nil {
		if req.Event != "harvest" || req.Harvest == nil {
			http.Error(w, "vineyard preview requires a harvest payload", http.StatusBadRequest)
			return
		}
		results, err := s.Cellar.PreviewHarvest(*req.VineyardID, week, *req.Harvest)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, results)
		return
	}

	if req.BatchID == nil {
		http.Error(w, "batch_id or vineyard_id required", http.StatusBadRequest)
		return
	}

	ctx, err := eventContext(req, week)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	results, err := s.Cellar.PreviewEvent(*req.BatchID, ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, results)
}

func eventContext(req previewRequest, week uint64) (feature.EventContext, error) {
	ctx := feature.EventContext{Week: week}
	switch req.Event {
	case "harvest":
		if req.Harvest == nil {
			return ctx, fmt.Errorf("missing harvest payload")
		}
		ctx.Kind, ctx.Harvest = feature.EventHarvest, req.Harvest
	case "crush":
		if req.Crush == nil {
			return ctx, fmt.Errorf("missing crush payload")
		}
		ctx.Kind, ctx.Crush = feature.EventCrush, req.Crush
	case "ferment":
		if req.Ferment == nil {
			return ctx, fmt.Errorf("missing ferment payload")
		}
		ctx.Kind, ctx.Ferment = feature.EventFerment, req.Ferment
	case "bottle":
		if req.Bottle == nil {
			return ctx, fmt.Errorf("missing bottle payload")
		}
		ctx.Kind, ctx.Bottle = feature.EventBottle, req.Bottle
	default:
		return ctx, fmt.Errorf("unknown event %q", req.Event)
	}
	return ctx, nil
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if req.Speed < 0 || req.Speed > 64 {
		http.Error(w, "speed out of range", http.StatusBadRequest)
		return
	}
	s.Eng.SetSpeed(req.Speed)
	slog.Info("speed changed via API", "speed", req.Speed)
	writeJSON(w, map[string]any{"speed": req.Speed})
}

func (s *Server) handleHarvest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VineyardID uuid.UUID              `json:"vineyard_id"`
		Options    feature.HarvestOptions `json:"options"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	b, err := s.Cellar.Harvest(req.VineyardID, s.Cellar.CurrentWeek(), req.Options)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, b)
}

func (s *Server) handleCrush(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BatchID uuid.UUID            `json:"batch_id"`
		Options feature.CrushOptions `json:"options"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if err := s.Cellar.Crush(req.BatchID, s.Cellar.CurrentWeek(), req.Options); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleFerment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BatchID uuid.UUID              `json:"batch_id"`
		Options feature.FermentOptions `json:"options"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if err := s.Cellar.Ferment(req.BatchID, s.Cellar.CurrentWeek(), req.Options); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleBottle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BatchID uuid.UUID             `json:"batch_id"`
		Options feature.BottleOptions `json:"options"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if err := s.Cellar.Bottle(req.BatchID, s.Cellar.CurrentWeek(), req.Options); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/talgya/cellarworks/internal/engine"
	"github.com/talgya/cellarworks/internal/feature"
	"github.com/talgya/cellarworks/internal/wine"
)

type nopStore struct{}

func (nopStore) SaveBatches([]*wine.Batch) error      { return nil }
func (nopStore) SaveVineyards([]*wine.Vineyard) error { return nil }
func (nopStore) SaveEvents([]engine.Event) error      { return nil }

type fixedRand struct{}

func (fixedRand) Float() float64 { return 0.99 }

func newTestServer(t *testing.T) (*Server, *wine.Batch) {
	t.Helper()
	cat := feature.Builtin()

	base := make(wine.Characteristics, len(wine.AllCharacteristics))
	for _, c := range wine.AllCharacteristics {
		base[c] = 0.5
	}
	b := &wine.Batch{
		ID:                  uuid.New(),
		VineyardID:          uuid.New(),
		Label:               "Old Creek Pinot Noir, Year 1",
		State:               wine.StateGrapes,
		BornGrapeQuality:    0.8,
		BaseCharacteristics: base,
		Features:            cat.InitStates(),
	}
	feature.Compose(cat, b)

	cellar := engine.NewCellar(cat, nil, []*wine.Batch{b})
	cellar.Store = nopStore{}
	cellar.Rand = fixedRand{}

	return &Server{
		Cellar:   cellar,
		Eng:      engine.NewEngine(),
		AdminKey: "secret",
	}, b
}

func TestHandleStatus(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["season"] != "Spring" {
		t.Fatalf("season = %v, want Spring at week 0", body["season"])
	}
}

func TestHandleBatchDetail(t *testing.T) {
	s, b := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handleBatchDetail(rec, httptest.NewRequest(http.MethodGet, "/api/v1/batch/"+b.ID.String(), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("known batch status = %d", rec.Code)
	}
	var got wine.Batch
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != b.ID || got.Label != b.Label {
		t.Fatalf("batch payload = %+v", got)
	}

	rec = httptest.NewRecorder()
	s.handleBatchDetail(rec, httptest.NewRequest(http.MethodGet, "/api/v1/batch/"+uuid.NewString(), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown batch status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.handleBatchDetail(rec, httptest.NewRequest(http.MethodGet, "/api/v1/batch/not-a-uuid", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d, want 400", rec.Code)
	}
}

func TestHandlePreview(t *testing.T) {
	s, b := newTestServer(t)

	payload := `{"batch_id":"` + b.ID.String() + `","event":"crush","crush":{"destemming":false,"pressing_intensity":0.9}}`
	rec := httptest.NewRecorder()
	s.handlePreview(rec, httptest.NewRequest(http.MethodPost, "/api/v1/preview", strings.NewReader(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("preview status = %d: %s", rec.Code, rec.Body.String())
	}
	var results []engine.PreviewResult
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, r := range results {
		if r.FeatureID == "green_flavor" && r.WouldBeRisk > 0 {
			found = true
		}
	}
	if !found {
		t.Fatalf("no green_flavor forecast in %+v", results)
	}

	// The forecast left the batch alone.
	got, _ := s.Cellar.SnapshotBatch(b.ID)
	if got.Feature("green_flavor").Risk != 0 {
		t.Fatal("preview endpoint mutated the batch")
	}

	// Mismatched payload is rejected.
	rec = httptest.NewRecorder()
	s.handlePreview(rec, httptest.NewRequest(http.MethodPost, "/api/v1/preview",
		strings.NewReader(`{"batch_id":"`+b.ID.String()+`","event":"crush"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing payload status = %d, want 400", rec.Code)
	}
}

func TestAdminAuth(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.adminOnly(s.handleSpeed)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/speed", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d, want 405", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/speed", strings.NewReader(`{"speed":4}`))
	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated POST status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/speed", strings.NewReader(`{"speed":4}`))
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated POST status = %d: %s", rec.Code, rec.Body.String())
	}
	if s.Eng.Speed() != 4 {
		t.Fatalf("speed = %v, want 4", s.Eng.Speed())
	}

	// No key configured disables the control plane outright.
	s.AdminKey = ""
	req = httptest.NewRequest(http.MethodPost, "/api/v1/speed", strings.NewReader(`{"speed":2}`))
	req.Header.Set("Authorization", "Bearer ")
	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("empty-key POST status = %d, want 401", rec.Code)
	}
}

package engine

import (
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/talgya/cellarworks/internal/feature"
	"github.com/talgya/cellarworks/internal/wine"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func newTestVineyard(cat *feature.Catalogue, ripeness float64) *wine.Vineyard {
	return &wine.Vineyard{
		ID:              uuid.New(),
		Name:            "North Slope",
		Region:          "Upper Valley",
		Variety:         "Riesling",
		WeatherSeed:     7,
		Ripeness:        ripeness,
		PendingFeatures: InitPendingFeatures(cat),
		Attributes:      map[string]float64{"site_quality": 0.5},
	}
}

func TestHarvestCreatesBatch(t *testing.T) {
	cat := feature.Builtin()
	v := newTestVineyard(cat, 0.9)
	c, store, _ := newTestCellar(cat, []*wine.Vineyard{v}, nil)

	b, err := c.Harvest(v.ID, 10, feature.HarvestOptions{Ripeness: 0.9})
	if err != nil {
		t.Fatalf("harvest: %v", err)
	}

	if b.State != wine.StateGrapes || b.HarvestedWeek != 10 {
		t.Fatalf("batch stage = %s, harvested week %d", wine.StateName(b.State), b.HarvestedWeek)
	}
	if !approx(b.BornGrapeQuality, 0.8) { // 0.25 + 0.5×0.9 + 0.2×0.5
		t.Fatalf("born quality = %v, want 0.8", b.BornGrapeQuality)
	}
	if st := b.Feature("green_flavor"); st.Risk != 0 {
		t.Fatalf("ripe harvest armed green flavor: risk %v", st.Risk)
	}

	// The field resets once the fruit is off the vine.
	vs := c.SnapshotVineyards()
	if vs[0].Ripeness != 0 {
		t.Fatalf("vineyard ripeness after harvest = %v, want 0", vs[0].Ripeness)
	}
	if len(store.batchSaves) != 1 || len(store.vineyardSaves) != 1 {
		t.Fatalf("saves: %d batch, %d vineyard, want 1 each", len(store.batchSaves), len(store.vineyardSaves))
	}
	if _, ok := c.SnapshotBatch(b.ID); !ok {
		t.Fatal("harvested batch not registered")
	}
}

func TestHarvestSurvivesVineyardSaveFailure(t *testing.T) {
	cat := feature.Builtin()
	v := newTestVineyard(cat, 0.9)
	c, store, _ := newTestCellar(cat, []*wine.Vineyard{v}, nil)
	store.failVineyards = true

	b, err := c.Harvest(v.ID, 10, feature.HarvestOptions{Ripeness: 0.9})
	if err != nil {
		t.Fatalf("harvest: %v", err)
	}

	// The batch save succeeded, so the batch must be tracked: a persisted
	// batch the running cellar cannot tick would be a partial commit.
	if _, ok := c.SnapshotBatch(b.ID); !ok {
		t.Fatal("persisted batch not registered after vineyard save failure")
	}
	if len(store.batchSaves) != 1 {
		t.Fatalf("batch saves = %d, want 1", len(store.batchSaves))
	}

	// The field reset still applies in memory; the row catches up on the
	// next successful weekly save.
	vs := c.SnapshotVineyards()
	if vs[0].Ripeness != 0 {
		t.Fatalf("vineyard ripeness = %v, want 0", vs[0].Ripeness)
	}
	store.failVineyards = false
	c.TickWeek(11)
	if len(store.vineyardSaves) == 0 {
		t.Fatal("vineyard row never caught up after the failed save")
	}
}

func TestHarvestMergesFieldDevelopment(t *testing.T) {
	cat := feature.Builtin()
	v := newTestVineyard(cat, 0.9)
	if p := v.PendingFeature("grey_rot"); p == nil {
		t.Fatal("grey_rot missing from pending features")
	} else {
		p.Risk = 0.45
	}
	c, _, _ := newTestCellar(cat, []*wine.Vineyard{v}, nil)

	b, err := c.Harvest(v.ID, 5, feature.HarvestOptions{Ripeness: 0.9})
	if err != nil {
		t.Fatalf("harvest: %v", err)
	}
	if got := b.Feature("grey_rot").Risk; got != 0.45 {
		t.Fatalf("field risk after merge = %v, want 0.45", got)
	}
}

func TestMergePendingPrecedence(t *testing.T) {
	cat := feature.Builtin()
	v := newTestVineyard(cat, 0.9)
	v.PendingFeature("grey_rot").Risk = 0.45

	b := newEngineBatch(cat, wine.StateGrapes)
	b.Feature("grey_rot").Risk = 0.2

	// The batch's own development wins the collision.
	mergePending(b, v)
	if got := b.Feature("grey_rot").Risk; got != 0.2 {
		t.Fatalf("merge overwrote batch development: risk %v", got)
	}

	// Blank batch entries take the field state, and re-merging is a no-op.
	blank := newEngineBatch(cat, wine.StateGrapes)
	mergePending(blank, v)
	if got := blank.Feature("grey_rot").Risk; got != 0.45 {
		t.Fatalf("merge skipped blank entry: risk %v", got)
	}
	mergePending(blank, v)
	if got := blank.Feature("grey_rot").Risk; got != 0.45 {
		t.Fatalf("re-merge changed state: risk %v", got)
	}
}

func TestUnderripeHarvestManifestsGreenFlavor(t *testing.T) {
	cat := feature.Builtin()
	v := newTestVineyard(cat, 0.3)
	c, _, rec := newTestCellar(cat, []*wine.Vineyard{v}, nil)
	c.Rand = stubRand{v: 0.2} // under the 0.4 trigger risk

	b, err := c.Harvest(v.ID, 5, feature.HarvestOptions{Ripeness: 0.3})
	if err != nil {
		t.Fatalf("harvest: %v", err)
	}

	st := b.Feature("green_flavor")
	if !st.Present || st.Severity != 1 { // binary severity
		t.Fatalf("green flavor after underripe harvest = %+v", st)
	}

	found := false
	for _, e := range rec.Entries {
		if e.Key == "feature.green_flavor" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no manifestation notification in %+v", rec.Entries)
	}
}

func TestStageTransitions(t *testing.T) {
	cat := feature.Builtin()
	b := newEngineBatch(cat, wine.StateGrapes)
	c, _, _ := newTestCellar(cat, nil, []*wine.Batch{b})

	if err := c.Crush(b.ID, 11, feature.CrushOptions{Destemming: true, PressingIntensity: 0.4}); err != nil {
		t.Fatalf("crush: %v", err)
	}
	got, _ := c.SnapshotBatch(b.ID)
	if got.State != wine.StateMust || got.CrushedWeek != 11 {
		t.Fatalf("after crush: %s week %d", wine.StateName(got.State), got.CrushedWeek)
	}

	if err := c.Ferment(b.ID, 12, feature.FermentOptions{Method: "stainless", Temperature: 18}); err != nil {
		t.Fatalf("ferment: %v", err)
	}
	if err := c.Bottle(b.ID, 18, feature.BottleOptions{Method: "standard"}); err != nil {
		t.Fatalf("bottle: %v", err)
	}
	got, _ = c.SnapshotBatch(b.ID)
	if got.State != wine.StateBottled || got.BottledWeek != 18 {
		t.Fatalf("after bottle: %s week %d", wine.StateName(got.State), got.BottledWeek)
	}
}

func TestStageValidation(t *testing.T) {
	cat := feature.Builtin()
	b := newEngineBatch(cat, wine.StateBottled)
	c, store, _ := newTestCellar(cat, nil, []*wine.Batch{b})

	if err := c.Crush(b.ID, 5, feature.CrushOptions{}); err == nil {
		t.Fatal("crushing a bottled batch should fail")
	}
	if err := c.Ferment(uuid.New(), 5, feature.FermentOptions{}); err == nil {
		t.Fatal("fermenting an unknown batch should fail")
	}
	if len(store.batchSaves) != 0 {
		t.Fatalf("rejected events still wrote: %d saves", len(store.batchSaves))
	}
	got, _ := c.SnapshotBatch(b.ID)
	if got.State != wine.StateBottled {
		t.Fatalf("rejected event changed state to %s", wine.StateName(got.State))
	}
}

func TestHardPressArmsGreenFlavor(t *testing.T) {
	cat := feature.Builtin()
	b := newEngineBatch(cat, wine.StateGrapes)
	c, _, _ := newTestCellar(cat, nil, []*wine.Batch{b})

	opts := feature.CrushOptions{Destemming: false, PressingIntensity: 0.9}
	if err := c.Crush(b.ID, 5, opts); err != nil {
		t.Fatalf("crush: %v", err)
	}

	got, _ := c.SnapshotBatch(b.ID)
	st := got.Feature("green_flavor")
	if st.Present {
		t.Fatal("low risk manifested against a 0.99 draw")
	}
	if !approx(st.Risk, 0.1) { // (0.9−0.7) × 0.5
		t.Fatalf("stem-contact risk = %v, want 0.1", st.Risk)
	}
}

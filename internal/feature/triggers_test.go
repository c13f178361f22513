package feature

import (
	"testing"

	"github.com/talgya/cellarworks/internal/wine"
)

func greenFlavorDef(t *testing.T) *Definition {
	t.Helper()
	def, ok := Builtin().Get("green_flavor")
	if !ok {
		t.Fatal("builtin catalogue is missing green_flavor")
	}
	return def
}

func TestTriggerRiskUnderripeHarvest(t *testing.T) {
	def := greenFlavorDef(t)
	ctx := EventContext{Kind: EventHarvest, Harvest: &HarvestOptions{Ripeness: 0.3}}

	got := TriggerRisk(def, ctx)
	if !approx(got, 0.4) { // (0.6−0.3)/0.6 × 0.8
		t.Fatalf("underripe harvest risk = %v, want 0.4", got)
	}
}

func TestTriggerRiskRipeHarvestSilent(t *testing.T) {
	def := greenFlavorDef(t)
	ctx := EventContext{Kind: EventHarvest, Harvest: &HarvestOptions{Ripeness: 0.9}}

	if got := TriggerRisk(def, ctx); got != 0 {
		t.Fatalf("ripe harvest risk = %v, want 0", got)
	}
}

func TestTriggerRiskCrushPressing(t *testing.T) {
	def := greenFlavorDef(t)

	hard := EventContext{Kind: EventCrush, Crush: &CrushOptions{Destemming: false, PressingIntensity: 0.9}}
	if got := TriggerRisk(def, hard); !approx(got, 0.1) { // (0.9−0.7) × 0.5
		t.Fatalf("whole-cluster hard press risk = %v, want 0.1", got)
	}

	// Destemming defuses the stem-contact trigger at any intensity.
	destemmed := EventContext{Kind: EventCrush, Crush: &CrushOptions{Destemming: true, PressingIntensity: 0.9}}
	if got := TriggerRisk(def, destemmed); got != 0 {
		t.Fatalf("destemmed press risk = %v, want 0", got)
	}

	gentle := EventContext{Kind: EventCrush, Crush: &CrushOptions{Destemming: false, PressingIntensity: 0.4}}
	if got := TriggerRisk(def, gentle); got != 0 {
		t.Fatalf("gentle press risk = %v, want 0", got)
	}
}

func TestTriggerRiskMissingPayload(t *testing.T) {
	def := greenFlavorDef(t)
	// A context with no options payload reads as "condition not met".
	if got := TriggerRisk(def, EventContext{Kind: EventHarvest}); got != 0 {
		t.Fatalf("risk with missing payload = %v, want 0", got)
	}
}

func TestTriggerRiskNegativeClamped(t *testing.T) {
	def := &Definition{
		ID: "odd",
		Behavior: Behavior{
			Kind: BehaviorTriggered,
			Triggered: &TriggeredParams{
				Triggers: []Trigger{{
					Event: EventBottle,
					Risk:  func(EventContext) float64 { return -0.5 },
				}},
			},
		},
	}
	if got := TriggerRisk(def, EventContext{Kind: EventBottle, Bottle: &BottleOptions{}}); got != 0 {
		t.Fatalf("negative trigger risk = %v, want clamped 0", got)
	}
}

func TestStepEventAccumulatesRisk(t *testing.T) {
	def := greenFlavorDef(t)
	cat := NewCatalogue(def)
	b := testBatch(cat, wine.StateGrapes)

	ctx := EventContext{Kind: EventHarvest, Harvest: &HarvestOptions{Ripeness: 0.3}}
	st := StepEvent(cat, def, b, ctx, *b.Feature("green_flavor"))
	if !approx(st.Risk, 0.4) {
		t.Fatalf("risk after harvest = %v, want 0.4", st.Risk)
	}

	// Risk from successive events stacks, clamped to 1.
	crush := EventContext{Kind: EventCrush, Crush: &CrushOptions{Destemming: false, PressingIntensity: 0.9}}
	st = StepEvent(cat, def, b, crush, st)
	if !approx(st.Risk, 0.5) {
		t.Fatalf("stacked risk = %v, want 0.5", st.Risk)
	}
}

func TestStepEventLeavesOtherBehaviorsAlone(t *testing.T) {
	ox := accDef("ox", 0.05, map[wine.State]float64{wine.StateMust: 1.0})
	cat := NewCatalogue(ox)
	b := testBatch(cat, wine.StateMust)

	st := wine.FeatureState{ID: "ox", Risk: 0.3}
	got := StepEvent(cat, ox, b, EventContext{Kind: EventCrush, Crush: &CrushOptions{}}, st)
	if got != st {
		t.Fatalf("non-triggered feature changed by event: %+v", got)
	}
}

func TestListens(t *testing.T) {
	def := greenFlavorDef(t)
	if !Listens(def, EventHarvest) || !Listens(def, EventCrush) {
		t.Fatal("green_flavor should listen for harvest and crush")
	}
	if Listens(def, EventBottle) {
		t.Fatal("green_flavor should ignore bottling")
	}

	ox := accDef("ox", 0.05, nil)
	if Listens(ox, EventHarvest) {
		t.Fatal("accumulation features never listen for events")
	}
}

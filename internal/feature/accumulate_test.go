package feature

import (
	"math"
	"testing"

	"github.com/talgya/cellarworks/internal/wine"
)

// accDef builds a minimal accumulation definition for tests.
func accDef(id string, rate float64, mults map[wine.State]float64) *Definition {
	return &Definition{
		ID:   id,
		Name: id,
		Behavior: Behavior{
			Kind:         BehaviorAccumulation,
			Accumulation: &AccumulationParams{BaseRate: rate, StateMultipliers: mults},
		},
	}
}

// testBatch builds a batch in the given stage with one state entry per
// catalogue definition.
func testBatch(cat *Catalogue, s wine.State) *wine.Batch {
	return &wine.Batch{
		State:               s,
		BornGrapeQuality:    0.8,
		BaseCharacteristics: centeredCharacteristics(),
		Features:            cat.InitStates(),
	}
}

func centeredCharacteristics() wine.Characteristics {
	chars := make(wine.Characteristics, len(wine.AllCharacteristics))
	for _, c := range wine.AllCharacteristics {
		chars[c] = 0.5
	}
	return chars
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAccumulationBuildsToCertainty(t *testing.T) {
	def := accDef("ox", 0.05, map[wine.State]float64{wine.StateMust: 1.0})
	cat := NewCatalogue(def)
	b := testBatch(cat, wine.StateMust)

	st := *b.Feature("ox")
	for week := uint64(1); week <= 20; week++ {
		st = StepWeek(cat, def, b, week, st)
	}
	if st.Risk < 1-1e-9 || st.Risk > 1 {
		t.Fatalf("risk after 20 weeks at 0.05/week = %v, want 1.0", st.Risk)
	}

	// Further weeks must not push past the clamp.
	st = StepWeek(cat, def, b, 21, st)
	if st.Risk > 1 {
		t.Fatalf("risk exceeded clamp: %v", st.Risk)
	}
}

func TestAccumulationStageGate(t *testing.T) {
	def := accDef("va", 0.1, map[wine.State]float64{wine.StateMust: 1.0})
	cat := NewCatalogue(def)
	b := testBatch(cat, wine.StateBottled)

	st := *b.Feature("va")
	for week := uint64(1); week <= 10; week++ {
		st = StepWeek(cat, def, b, week, st)
	}
	if st.Risk != 0 {
		t.Fatalf("risk accumulated in a stage absent from the multiplier table: %v", st.Risk)
	}
}

func TestCompoundAccumulationOutpacesSimple(t *testing.T) {
	simple := accDef("simple", 0.05, map[wine.State]float64{wine.StateMust: 1.0})
	compound := accDef("compound", 0.05, map[wine.State]float64{wine.StateMust: 1.0})
	compound.Behavior.Accumulation.Compound = true
	cat := NewCatalogue(simple, compound)
	b := testBatch(cat, wine.StateMust)

	sSt := *b.Feature("simple")
	cSt := *b.Feature("compound")
	for week := uint64(1); week <= 10; week++ {
		sSt = StepWeek(cat, simple, b, week, sSt)
		cSt = StepWeek(cat, compound, b, week, cSt)
	}
	if cSt.Risk <= sSt.Risk {
		t.Fatalf("compound risk %v should exceed simple risk %v", cSt.Risk, sSt.Risk)
	}
}

func TestAttributeMultiplierScalesRate(t *testing.T) {
	def := accDef("ox", 0.1, map[wine.State]float64{wine.StateMust: 1.0})
	def.Behavior.Accumulation.Multiplier = &AttributeMultiplier{Attr: "prone", Base: 0.5, Scale: 1.0}
	cat := NewCatalogue(def)

	b := testBatch(cat, wine.StateMust)
	b.Attributes = map[string]float64{"prone": 0.5}
	st := StepWeek(cat, def, b, 1, *b.Feature("ox"))
	if !approx(st.Risk, 0.1) { // 0.1 × (0.5 + 1.0×0.5)
		t.Fatalf("scaled risk = %v, want 0.1", st.Risk)
	}

	// Missing attribute reads as neutral.
	bare := testBatch(cat, wine.StateMust)
	st = StepWeek(cat, def, bare, 1, *bare.Feature("ox"))
	if !approx(st.Risk, 0.1) {
		t.Fatalf("risk with missing attribute = %v, want 0.1", st.Risk)
	}
}

func TestConditionalBlocksUntilPrerequisite(t *testing.T) {
	grey := accDef("grey", 0.03, map[wine.State]float64{wine.StateGrapes: 1.0})
	noble := accDef("noble", 0.05, map[wine.State]float64{wine.StateGrapes: 1.0})
	noble.Behavior.Accumulation.Conditional = &ConditionalAccumulation{
		RequiresFeature: "grey",
		RequiresPresent: true,
	}
	cat := NewCatalogue(grey, noble)
	b := testBatch(cat, wine.StateGrapes)

	st := *b.Feature("noble")
	for week := uint64(1); week <= 10; week++ {
		st = StepWeek(cat, noble, b, week, st)
	}
	if st.Risk != 0 {
		t.Fatalf("conditional feature accumulated without its prerequisite: %v", st.Risk)
	}

	b.Feature("grey").Present = true
	st = StepWeek(cat, noble, b, 11, st)
	if !approx(st.Risk, 0.05) {
		t.Fatalf("risk after prerequisite manifested = %v, want 0.05", st.Risk)
	}
}

func TestConditionalRiskOnlyPrerequisite(t *testing.T) {
	grey := accDef("grey", 0.03, map[wine.State]float64{wine.StateGrapes: 1.0})
	dependent := accDef("dep", 0.05, map[wine.State]float64{wine.StateGrapes: 1.0})
	dependent.Behavior.Accumulation.Conditional = &ConditionalAccumulation{RequiresFeature: "grey"}
	cat := NewCatalogue(grey, dependent)
	b := testBatch(cat, wine.StateGrapes)

	st := StepWeek(cat, dependent, b, 1, *b.Feature("dep"))
	if st.Risk != 0 {
		t.Fatalf("risk gained before prerequisite began developing: %v", st.Risk)
	}

	b.Feature("grey").Risk = 0.1
	st = StepWeek(cat, dependent, b, 2, st)
	if !approx(st.Risk, 0.05) {
		t.Fatalf("risk with developing prerequisite = %v, want 0.05", st.Risk)
	}
}

func TestConditionalWindowClosedClearsRisk(t *testing.T) {
	grey := accDef("grey", 0.03, map[wine.State]float64{wine.StateGrapes: 1.0})
	noble := accDef("noble", 0.05, map[wine.State]float64{wine.StateGrapes: 1.0})
	noble.Behavior.Accumulation.Conditional = &ConditionalAccumulation{
		RequiresFeature: "grey",
		RequiresPresent: true,
	}
	cat := NewCatalogue(grey, noble)

	// The batch moved past every accumulating stage with risk on the books
	// but the prerequisite never manifested: the window has closed for good.
	b := testBatch(cat, wine.StateMust)
	st := *b.Feature("noble")
	st.Risk = 0.4
	st = StepWeek(cat, noble, b, 1, st)
	if st.Risk != 0 {
		t.Fatalf("stranded conditional risk survived the closed window: %v", st.Risk)
	}

	// While the window is still open the risk is held, not wiped.
	open := testBatch(cat, wine.StateGrapes)
	st = *open.Feature("noble")
	st.Risk = 0.4
	st = StepWeek(cat, noble, open, 1, st)
	if st.Risk != 0.4 {
		t.Fatalf("risk should hold while the stage window is open, got %v", st.Risk)
	}
}

func TestEvolvingGrowth(t *testing.T) {
	def := &Definition{
		ID: "terroir",
		Behavior: Behavior{
			Kind: BehaviorEvolving,
			Evolving: &EvolvingParams{
				SpawnActive:      true,
				SpawnSeverity:    0.001,
				GrowthRate:       0.004,
				StateMultipliers: map[wine.State]float64{wine.StateFermenting: 1.0},
			},
		},
	}
	cat := NewCatalogue(def)
	b := testBatch(cat, wine.StateFermenting)

	st := *b.Feature("terroir")
	if !st.Present || st.Severity != 0.001 {
		t.Fatalf("spawn-active feature not seeded: %+v", st)
	}
	st = StepWeek(cat, def, b, 1, st)
	if !approx(st.Severity, 0.005) {
		t.Fatalf("severity after one week = %v, want 0.005", st.Severity)
	}
}

func TestEvolvingSeverityCap(t *testing.T) {
	def := &Definition{
		ID: "capped",
		Behavior: Behavior{
			Kind: BehaviorEvolving,
			Evolving: &EvolvingParams{
				SpawnActive:      true,
				SpawnSeverity:    0.55,
				GrowthRate:       0.2,
				SeverityCap:      0.6,
				StateMultipliers: map[wine.State]float64{wine.StateBottled: 1.0},
			},
		},
	}
	cat := NewCatalogue(def)
	b := testBatch(cat, wine.StateBottled)

	st := StepWeek(cat, def, b, 1, *b.Feature("capped"))
	if st.Severity != 0.6 {
		t.Fatalf("severity = %v, want cap 0.6", st.Severity)
	}
}

func TestEvolvingDormantStaysDormant(t *testing.T) {
	def := &Definition{
		ID: "quiet",
		Behavior: Behavior{
			Kind: BehaviorEvolving,
			Evolving: &EvolvingParams{
				GrowthRate:       0.1,
				StateMultipliers: map[wine.State]float64{wine.StateBottled: 1.0},
			},
		},
	}
	cat := NewCatalogue(def)
	b := testBatch(cat, wine.StateBottled)

	st := StepWeek(cat, def, b, 1, *b.Feature("quiet"))
	if st.Severity != 0 || st.Present {
		t.Fatalf("non-spawn-active evolving feature started on its own: %+v", st)
	}
}

func TestEvolvingFrozenByStopper(t *testing.T) {
	stopper := accDef("fault", 0.1, map[wine.State]float64{wine.StateMust: 1.0})
	stopper.StopsEvolutionOf = []string{"terroir"}
	terroir := &Definition{
		ID: "terroir",
		Behavior: Behavior{
			Kind: BehaviorEvolving,
			Evolving: &EvolvingParams{
				SpawnActive:      true,
				SpawnSeverity:    0.2,
				GrowthRate:       0.01,
				StateMultipliers: map[wine.State]float64{wine.StateMust: 1.0},
			},
		},
	}
	cat := NewCatalogue(stopper, terroir)
	b := testBatch(cat, wine.StateMust)
	b.Feature("fault").Present = true

	st := StepWeek(cat, terroir, b, 1, *b.Feature("terroir"))
	if st.Severity != 0.2 {
		t.Fatalf("frozen feature grew: severity %v, want 0.2", st.Severity)
	}

	// A latent (not present) stopper does not freeze anything.
	b.Feature("fault").Present = false
	b.Feature("fault").Risk = 0.9
	st = StepWeek(cat, terroir, b, 2, st)
	if !approx(st.Severity, 0.21) {
		t.Fatalf("latent stopper froze evolution: severity %v, want 0.21", st.Severity)
	}
}

func TestCurveEvolutionDriftFree(t *testing.T) {
	def := &Definition{
		ID: "aging",
		Behavior: Behavior{
			Kind: BehaviorEvolving,
			Evolving: &EvolvingParams{
				StateMultipliers: map[wine.State]float64{wine.StateBottled: 1.0},
				Curve:            AgingCurve(10),
			},
		},
	}
	cat := NewCatalogue(def)
	b := testBatch(cat, wine.StateBottled)
	b.BottledWeek = 100

	st := StepWeek(cat, def, b, 104, *b.Feature("aging"))
	if !approx(st.Severity, 0.5) { // 5 of 10 weeks: smoothstep midpoint
		t.Fatalf("curve severity at midpoint = %v, want 0.5", st.Severity)
	}
	if !st.Present {
		t.Fatal("curve feature with positive severity should be present")
	}

	// Re-running the same week reads the same point off the curve.
	again := StepWeek(cat, def, b, 104, st)
	if again.Severity != st.Severity {
		t.Fatalf("repeated evaluation drifted: %v then %v", st.Severity, again.Severity)
	}

	st = StepWeek(cat, def, b, 200, st)
	if st.Severity != 1 {
		t.Fatalf("severity past the window = %v, want 1.0", st.Severity)
	}
}

func TestPostManifestGrowth(t *testing.T) {
	def := accDef("ox", 0.02, map[wine.State]float64{wine.StateMust: 1.5})
	def.Behavior.Accumulation.EvolveAfterManifest = true
	def.Behavior.Accumulation.PostManifestGrowth = 0.02
	cat := NewCatalogue(def)
	b := testBatch(cat, wine.StateMust)

	st := wine.FeatureState{ID: "ox", Present: true, Severity: 0.3}
	st = StepWeek(cat, def, b, 1, st)
	if !approx(st.Severity, 0.33) { // 0.02 × 1.5 stage multiplier
		t.Fatalf("post-manifest severity = %v, want 0.33", st.Severity)
	}

	// Without the evolve flag, manifested severity is frozen.
	frozen := accDef("va", 0.02, map[wine.State]float64{wine.StateMust: 1.0})
	catF := NewCatalogue(frozen)
	st = wine.FeatureState{ID: "va", Present: true, Severity: 0.3}
	st = StepWeek(catF, frozen, b, 1, st)
	if st.Severity != 0.3 {
		t.Fatalf("frozen severity changed: %v", st.Severity)
	}
}

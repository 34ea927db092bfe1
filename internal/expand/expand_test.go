package expand

import (
	"testing"

	"github.com/scenesmith/scenepilot/internal/logging"
	"github.com/scenesmith/scenepilot/internal/resolve"
	"github.com/scenesmith/scenepilot/internal/scene"
	"github.com/scenesmith/scenepilot/pkg/models"
)

// tableWorkflow mirrors the shape of the big furniture workflows:
// unconditional core steps, leg steps that run whenever the splay
// angles are non-zero, and stretch steps guarded by a 0.5 threshold.
// All conditional steps carry disable_adaptation so only their
// condition governs inclusion.
func tableWorkflow() *models.Workflow {
	return &models.Workflow{
		ID: "furniture.table",
		Steps: []*models.Step{
			{Tool: "add_cube", Params: map[string]any{"size": "$width"}},
			{Tool: "scale", Params: map[string]any{"z": "$CALCULATE(height * 0.05)"}},
			{Tool: "shade_smooth"},
			{
				Tool:              "rotate_leg_front",
				Params:            map[string]any{"angle": "$splay_front"},
				Condition:         "splay_front != 0 or splay_back != 0",
				Optional:          true,
				DisableAdaptation: true,
			},
			{
				Tool:              "rotate_leg_back",
				Params:            map[string]any{"angle": "$splay_back"},
				Condition:         "splay_front != 0 or splay_back != 0",
				Optional:          true,
				DisableAdaptation: true,
			},
			{
				Tool:              "stretch_leg_front",
				Condition:         "abs(splay_front) > 0.5",
				Optional:          true,
				DisableAdaptation: true,
			},
			{
				Tool:              "stretch_leg_back",
				Condition:         "abs(splay_back) > 0.5",
				Optional:          true,
				DisableAdaptation: true,
			},
		},
	}
}

func resolvedSet(values map[string]float64) *resolve.ResolvedSet {
	rs := &resolve.ResolvedSet{
		Values:     values,
		Provenance: make(map[string]resolve.Provenance),
	}
	for name := range values {
		rs.Provenance[name] = resolve.ProvenanceExplicit
	}
	return rs
}

func snapshot() *scene.Snapshot {
	return &scene.Snapshot{
		Summary: scene.Summary{Mode: scene.ModeObject, DimX: 1, DimY: 1, DimZ: 1},
	}
}

func expandTable(t *testing.T, splayFront, splayBack float64) []Call {
	t.Helper()
	e := New(logging.Nop())
	calls, err := e.Expand(tableWorkflow(), resolvedSet(map[string]float64{
		"width":       1.2,
		"height":      0.75,
		"splay_front": splayFront,
		"splay_back":  splayBack,
	}), snapshot(), false, "make a table")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	return calls
}

func TestConditionThresholds(t *testing.T) {
	// Default splay angles: legs rotate but no stretch clears 0.5.
	if got := len(expandTable(t, 0.32, -0.32)); got != 5 {
		t.Errorf("default angles: got %d calls, want 5", got)
	}
	// Zero angles: only the unconditional core.
	if got := len(expandTable(t, 0, 0)); got != 3 {
		t.Errorf("zero angles: got %d calls, want 3", got)
	}
	// Angles beyond the threshold: every step fires.
	if got := len(expandTable(t, 1.0, -1.0)); got != 7 {
		t.Errorf("large angles: got %d calls, want 7", got)
	}
}

func TestStepOrderPreserved(t *testing.T) {
	calls := expandTable(t, 1.0, -1.0)
	last := -1
	for _, call := range calls {
		if call.StepIndex <= last {
			t.Fatalf("step order not preserved: %d after %d", call.StepIndex, last)
		}
		last = call.StepIndex
	}
}

func TestSubstitution(t *testing.T) {
	calls := expandTable(t, 0.32, -0.32)

	if size := calls[0].Args["size"]; size != 1.2 {
		t.Errorf("$width: got %v, want 1.2", size)
	}
	z, ok := calls[1].Args["z"].(float64)
	if !ok || z < 0.0374 || z > 0.0376 {
		t.Errorf("$CALCULATE(height * 0.05): got %v, want 0.0375", calls[1].Args["z"])
	}
	if angle := calls[3].Args["angle"]; angle != 0.32 {
		t.Errorf("$splay_front: got %v, want 0.32", angle)
	}
}

func TestSubstitutionInNestedValues(t *testing.T) {
	wf := &models.Workflow{
		ID: "test.nested",
		Steps: []*models.Step{{
			Tool: "transform",
			Params: map[string]any{
				"offset":  []any{"$CALCULATE(width / 2)", 0.0, "$height"},
				"options": map[string]any{"mirror": true, "axis": "Z"},
			},
		}},
	}
	e := New(logging.Nop())
	calls, err := e.Expand(wf, resolvedSet(map[string]float64{"width": 2, "height": 1}), snapshot(), false, "goal")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	offset := calls[0].Args["offset"].([]any)
	if offset[0] != 1.0 || offset[1] != 0.0 || offset[2] != 1.0 {
		t.Errorf("nested list substitution wrong: %v", offset)
	}
	options := calls[0].Args["options"].(map[string]any)
	if options["axis"] != "Z" || options["mirror"] != true {
		t.Errorf("nested map should pass literals through: %v", options)
	}
}

func TestAdaptationFiltersOptionalSteps(t *testing.T) {
	wf := &models.Workflow{
		ID: "furniture.table",
		Steps: []*models.Step{
			{Tool: "add_cube"},
			{Tool: "bevel_edges", Optional: true, Tags: []string{"bevel", "finish"}},
			{Tool: "add_apron", Optional: true, Tags: []string{"apron"}},
		},
	}
	e := New(logging.Nop())
	rs := resolvedSet(nil)

	// High confidence: every optional step survives.
	calls, err := e.Expand(wf, rs, snapshot(), false, "make a plain table")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(calls) != 3 {
		t.Errorf("without adaptation: got %d calls, want 3", len(calls))
	}

	// Medium confidence: only goal-relevant optional steps survive.
	calls, err = e.Expand(wf, rs, snapshot(), true, "make a table with a bevel finish")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("with adaptation: got %d calls, want 2", len(calls))
	}
	if calls[1].Action != "bevel_edges" {
		t.Errorf("expected bevel_edges to survive, got %s", calls[1].Action)
	}
}

func TestDisableAdaptationIgnoresTags(t *testing.T) {
	wf := &models.Workflow{
		ID: "furniture.table",
		Steps: []*models.Step{
			{Tool: "add_cube"},
			{
				// Tags are deliberately irrelevant to the goal; the
				// step must still be governed only by its condition.
				Tool:              "stretch_leg",
				Condition:         "splay > 0.5",
				Optional:          true,
				DisableAdaptation: true,
				Tags:              []string{"unrelated", "vocabulary"},
			},
		},
	}
	e := New(logging.Nop())

	calls, err := e.Expand(wf, resolvedSet(map[string]float64{"splay": 0.9}), snapshot(), true, "make a table")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("disable_adaptation step must bypass relevance filtering, got %d calls", len(calls))
	}

	calls, err = e.Expand(wf, resolvedSet(map[string]float64{"splay": 0.1}), snapshot(), true, "make a table")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("false condition must skip the step, got %d calls", len(calls))
	}
}

func TestBrokenConditionSkipsOnlyThatStep(t *testing.T) {
	wf := &models.Workflow{
		ID: "test.broken",
		Steps: []*models.Step{
			{Tool: "add_cube"},
			{Tool: "mystery", Condition: "undefined_variable > 1"},
			{Tool: "shade_smooth"},
		},
	}
	e := New(logging.Nop())
	calls, err := e.Expand(wf, resolvedSet(nil), snapshot(), false, "goal")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2 (broken condition skips its own step)", len(calls))
	}
}

func TestUnknownReferenceFailsExpansion(t *testing.T) {
	wf := &models.Workflow{
		ID:    "test.badref",
		Steps: []*models.Step{{Tool: "scale", Params: map[string]any{"z": "$missing"}}},
	}
	e := New(logging.Nop())
	if _, err := e.Expand(wf, resolvedSet(nil), snapshot(), false, "goal"); err == nil {
		t.Fatal("expected error for unknown $ reference in params")
	}
}

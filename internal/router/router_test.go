package router

import (
	"errors"
	"testing"
	"time"

	"github.com/scenesmith/scenepilot/internal/catalog"
	"github.com/scenesmith/scenepilot/internal/config"
	"github.com/scenesmith/scenepilot/internal/embed"
	"github.com/scenesmith/scenepilot/internal/expand"
	"github.com/scenesmith/scenepilot/internal/guard"
	"github.com/scenesmith/scenepilot/internal/logging"
	"github.com/scenesmith/scenepilot/internal/match"
	"github.com/scenesmith/scenepilot/internal/resolve"
	"github.com/scenesmith/scenepilot/internal/scene"
	"github.com/scenesmith/scenepilot/internal/store"
	"github.com/scenesmith/scenepilot/pkg/models"
)

// wordEncoder embeds text as a bag of known words so cosine scores are
// hand-checkable.
type wordEncoder struct {
	words []string
}

func (w *wordEncoder) Encode(text string) ([]float32, error) {
	vec := make([]float32, len(w.words))
	set := match.TokenSet(text)
	for i, word := range w.words {
		if set[word] {
			vec[i] = 1
		}
	}
	return embed.NormalizeL2(vec), nil
}

func (w *wordEncoder) Dim() int { return len(w.words) }

type fakeEngine struct {
	summary   scene.Summary
	selection scene.Selection
}

func (f *fakeEngine) Summary() (scene.Summary, error)     { return f.summary, nil }
func (f *fakeEngine) Selection() (scene.Selection, error) { return f.selection, nil }

type memStore struct {
	mappings map[string]map[string]float64
}

func (m *memStore) Find(text, parameter string, threshold float64) (*store.Mapping, bool, error) {
	value, ok := m.mappings[parameter][text]
	if !ok {
		return nil, false, nil
	}
	return &store.Mapping{Context: text, Parameter: parameter, Value: value, Similarity: 1.0}, true, nil
}

func (m *memStore) Put(text, parameter string, value float64, workflowID string) error {
	if m.mappings == nil {
		m.mappings = make(map[string]map[string]float64)
	}
	if m.mappings[parameter] == nil {
		m.mappings[parameter] = make(map[string]float64)
	}
	m.mappings[parameter][text] = value
	return nil
}

type recordingDispatcher struct {
	calls []expand.Call
	fail  error
}

func (d *recordingDispatcher) Dispatch(call *expand.Call) error {
	if d.fail != nil {
		return d.fail
	}
	d.calls = append(d.calls, *call)
	return nil
}

type memGoalLog struct {
	started   []string
	completed []string // statuses in completion order
}

func (l *memGoalLog) LogGoal(sessionID, goal string) (int64, error) {
	l.started = append(l.started, goal)
	return int64(len(l.started)), nil
}

func (l *memGoalLog) CompleteGoal(logID int64, workflowID string, confidence float64, status, errorMsg string, durationMs int64) error {
	l.completed = append(l.completed, status)
	return nil
}

func f(v float64) *float64 { return &v }

func tableWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:          "furniture.table",
		Name:        "Table",
		Description: "create a plain wooden table with four legs",
		Tags:        []string{"table", "furniture"},
		Scene:       models.SceneHints{Mode: "object"},
		Parameters: map[string]*models.ParameterSchema{
			"height": {Type: "number", Description: "table height", Min: f(0.3), Max: f(2.0)},
			"width":  {Type: "number", Min: f(0.3), Max: f(4.0), Default: f(1.2)},
		},
		Steps: []*models.Step{
			{Tool: "add_cube", Params: map[string]any{"size": "$width"}},
			{Tool: "scale", Params: map[string]any{"z": "$height"}},
			{Tool: "shade_smooth"},
		},
	}
}

type fixture struct {
	router     *Router
	dispatcher *recordingDispatcher
	goalLog    *memGoalLog
	store      *memStore
}

func setupRouter(t *testing.T, engine *fakeEngine) *fixture {
	t.Helper()
	log := logging.Nop()

	cat, err := catalog.New(tableWorkflow())
	if err != nil {
		t.Fatalf("catalog setup failed: %v", err)
	}

	encoder := &wordEncoder{words: []string{
		"table", "wooden", "create", "legs", "four", "furniture",
		"shelf", "sky", "paint",
	}}
	cfg := config.MatchConfig{
		Weights: config.Weights{Structural: 0.15, Keyword: 0.25, Semantic: 0.60},
		Bands:   config.Bands{High: 0.70, Low: 0.40},
	}
	ensemble, err := match.NewEnsemble(cat, encoder, cfg, log)
	if err != nil {
		t.Fatalf("ensemble setup failed: %v", err)
	}

	st := &memStore{}
	cache := scene.NewCache(engine, 5*time.Second)
	dispatcher := &recordingDispatcher{}
	goalLog := &memGoalLog{}

	r := New(Deps{
		Catalog:    cat,
		Cache:      cache,
		Ensemble:   ensemble,
		Resolver:   resolve.New(st, 0.8, log),
		Expander:   expand.New(log),
		Chain:      guard.NewChain(cache, log),
		Dispatcher: dispatcher,
		GoalLog:    goalLog,
		Log:        log,
	})
	return &fixture{router: r, dispatcher: dispatcher, goalLog: goalLog, store: st}
}

func objectModeEngine() *fakeEngine {
	return &fakeEngine{summary: scene.Summary{Mode: scene.ModeObject, DimX: 1, DimY: 1, DimZ: 1}}
}

func TestSetGoalReady(t *testing.T) {
	fx := setupRouter(t, objectModeEngine())

	res := fx.router.SetGoal("create a wooden table", map[string]float64{"height": 0.8})
	if res.Status != StatusReady {
		t.Fatalf("status: got %s (err=%+v), want ready", res.Status, res.Err)
	}
	if res.WorkflowID != "furniture.table" {
		t.Errorf("workflow: got %s", res.WorkflowID)
	}
	if res.Confidence < 0.70 {
		t.Errorf("confidence %g should clear the high band", res.Confidence)
	}
	if res.SessionID == "" {
		t.Error("result must carry a session id")
	}

	if res.Resolved["height"] != 0.8 || res.Provenance["height"] != resolve.ProvenanceExplicit {
		t.Errorf("height: got %g (%s)", res.Resolved["height"], res.Provenance["height"])
	}
	if res.Resolved["width"] != 1.2 || res.Provenance["width"] != resolve.ProvenanceDefault {
		t.Errorf("width: got %g (%s)", res.Resolved["width"], res.Provenance["width"])
	}

	if len(fx.dispatcher.calls) != 3 {
		t.Fatalf("dispatched %d calls, want 3", len(fx.dispatcher.calls))
	}
	if fx.dispatcher.calls[0].Action != "add_cube" || fx.dispatcher.calls[0].Args["size"] != 1.2 {
		t.Errorf("first call wrong: %+v", fx.dispatcher.calls[0])
	}
	if fx.dispatcher.calls[1].Args["z"] != 0.8 {
		t.Errorf("scale call wrong: %+v", fx.dispatcher.calls[1])
	}
}

func TestSetGoalNeedsInputThenReady(t *testing.T) {
	fx := setupRouter(t, objectModeEngine())

	// height has no default and nothing learned yet.
	res := fx.router.SetGoal("create a wooden table", nil)
	if res.Status != StatusNeedsInput {
		t.Fatalf("status: got %s, want needs_input", res.Status)
	}
	if len(res.Unresolved) != 1 || res.Unresolved[0].Name != "height" {
		t.Fatalf("unresolved: got %+v, want height", res.Unresolved)
	}
	if res.Unresolved[0].Min == nil || *res.Unresolved[0].Min != 0.3 {
		t.Error("unresolved entry must carry the schema range")
	}
	if len(fx.dispatcher.calls) != 0 {
		t.Fatal("needs_input must not dispatch anything")
	}

	// Second round with the answer supplied.
	res = fx.router.SetGoal("create a wooden table", map[string]float64{"height": 0.8})
	if res.Status != StatusReady {
		t.Fatalf("status: got %s, want ready", res.Status)
	}
}

func TestSetGoalLearnsSuppliedValues(t *testing.T) {
	fx := setupRouter(t, objectModeEngine())

	res := fx.router.SetGoal("create a wooden table", map[string]float64{"height": 0.8})
	if res.Status != StatusReady {
		t.Fatalf("first pass: got %s", res.Status)
	}

	// Same goal again, no explicit value: the learned tier answers.
	res = fx.router.SetGoal("create a wooden table", nil)
	if res.Status != StatusReady {
		t.Fatalf("second pass: got %s, want ready via learned mapping", res.Status)
	}
	if res.Resolved["height"] != 0.8 || res.Provenance["height"] != resolve.ProvenanceLearned {
		t.Errorf("height: got %g (%s), want 0.8 (learned)", res.Resolved["height"], res.Provenance["height"])
	}
}

func TestSetGoalNoMatch(t *testing.T) {
	// Edit mode drags the structural score down so an off-topic goal
	// lands under the low band.
	fx := setupRouter(t, &fakeEngine{summary: scene.Summary{Mode: scene.ModeEdit, DimX: 1, DimY: 1, DimZ: 1}})

	res := fx.router.SetGoal("paint the sky", nil)
	if res.Status != StatusNoMatch {
		t.Fatalf("status: got %s (confidence %g), want no_match", res.Status, res.Confidence)
	}
	if len(fx.dispatcher.calls) != 0 {
		t.Fatal("no_match must not dispatch anything")
	}
}

func TestMatchingIsIdempotent(t *testing.T) {
	fx := setupRouter(t, objectModeEngine())

	first := fx.router.SetGoal("create a wooden table", map[string]float64{"height": 0.8})
	second := fx.router.SetGoal("create a wooden table", map[string]float64{"height": 0.8})
	if first.WorkflowID != second.WorkflowID || first.Confidence != second.Confidence {
		t.Errorf("matching diverged: %s/%g vs %s/%g",
			first.WorkflowID, first.Confidence, second.WorkflowID, second.Confidence)
	}
	if first.SessionID == second.SessionID {
		t.Error("each call must get its own session id")
	}
}

func TestDispatchFailureIsTyped(t *testing.T) {
	fx := setupRouter(t, objectModeEngine())
	fx.dispatcher.fail = errors.New("bridge closed the connection")

	res := fx.router.SetGoal("create a wooden table", map[string]float64{"height": 0.8})
	if res.Status != StatusError {
		t.Fatalf("status: got %s, want error", res.Status)
	}
	if res.Err == nil || res.Err.Stage != "dispatch" {
		t.Fatalf("expected dispatch-stage error, got %+v", res.Err)
	}
}

func TestGoalOutcomesLogged(t *testing.T) {
	fx := setupRouter(t, objectModeEngine())

	fx.router.SetGoal("create a wooden table", nil)
	fx.router.SetGoal("create a wooden table", map[string]float64{"height": 0.8})

	if len(fx.goalLog.started) != 2 {
		t.Fatalf("expected 2 started rows, got %d", len(fx.goalLog.started))
	}
	if len(fx.goalLog.completed) != 2 ||
		fx.goalLog.completed[0] != "needs_input" || fx.goalLog.completed[1] != "ready" {
		t.Errorf("completion statuses wrong: %v", fx.goalLog.completed)
	}
}

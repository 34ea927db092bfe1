// Package expand turns a matched workflow into a flat, ordered list
// of concrete action calls.
//
// Two independent filters decide which steps survive:
//
//   - Condition: a mathematical guard evaluated against scene and
//     parameter variables. Always honored.
//   - Adaptation: a goal-relevance filter over optional steps, applied
//     only on medium-confidence matches. Steps with disable_adaptation
//     opt out of this filter entirely so that their inclusion is
//     governed purely by their condition.
package expand

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/scenesmith/scenepilot/internal/expr"
	"github.com/scenesmith/scenepilot/internal/match"
	"github.com/scenesmith/scenepilot/internal/resolve"
	"github.com/scenesmith/scenepilot/internal/scene"
	"github.com/scenesmith/scenepilot/pkg/models"
)

const calcPrefix = "$CALCULATE("

// Call is one concrete action call ready for the guard chain.
type Call struct {
	Action      string
	Args        map[string]any
	StepIndex   int
	Description string
}

// Expander expands workflows. Stateless apart from its logger.
type Expander struct {
	log *zap.SugaredLogger
}

// New creates an expander.
func New(log *zap.SugaredLogger) *Expander {
	return &Expander{log: log}
}

// Expand produces the ordered call list for a workflow. Step order is
// preserved; filtered steps are dropped, never reordered. A failing
// condition — including one that references an unknown variable —
// skips only its own step.
func (e *Expander) Expand(wf *models.Workflow, resolved *resolve.ResolvedSet, snap *scene.Snapshot, adaptationRequired bool, goal string) ([]Call, error) {
	vars := snap.Vars()
	for name, value := range resolved.Values {
		vars[name] = expr.Number(value)
	}
	goalTokens := match.TokenSet(goal)

	var calls []Call
	for i, step := range wf.Steps {
		if !step.Core() && adaptationRequired && !relevant(step, goalTokens) {
			e.log.Debugw("adaptation filtered optional step",
				"workflow", wf.ID, "step", i, "tool", step.Tool)
			continue
		}

		if step.Condition != "" {
			v, err := expr.Evaluate(step.Condition, vars)
			if err != nil {
				e.log.Warnw("step condition failed to evaluate, skipping step",
					"workflow", wf.ID, "step", i, "condition", step.Condition, "error", err)
				continue
			}
			if !v.Truthy() {
				continue
			}
		}

		args, err := substituteMap(step.Params, vars)
		if err != nil {
			return nil, fmt.Errorf("workflow %s step %d (%s): %w", wf.ID, i, step.Tool, err)
		}
		calls = append(calls, Call{
			Action:      step.Tool,
			Args:        args,
			StepIndex:   i,
			Description: step.Description,
		})
	}
	return calls, nil
}

// relevant reports whether an optional step's vocabulary overlaps the
// goal. Steps without tags or description keep nothing to match on and
// are filtered.
func relevant(step *models.Step, goalTokens map[string]bool) bool {
	for _, tag := range step.Tags {
		for _, token := range match.Tokenize(tag) {
			if goalTokens[token] {
				return true
			}
		}
	}
	for _, token := range match.Tokenize(step.Description) {
		if goalTokens[token] {
			return true
		}
	}
	return false
}

func substituteMap(params map[string]any, vars map[string]expr.Value) (map[string]any, error) {
	out := make(map[string]any, len(params))
	for key, raw := range params {
		value, err := substitute(raw, vars)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", key, err)
		}
		out[key] = value
	}
	return out, nil
}

// substitute resolves $name references and $CALCULATE(expr) formulas
// inside a param value, recursing through lists and nested maps.
func substitute(raw any, vars map[string]expr.Value) (any, error) {
	switch v := raw.(type) {
	case string:
		if strings.HasPrefix(v, calcPrefix) && strings.HasSuffix(v, ")") {
			src := v[len(calcPrefix) : len(v)-1]
			value, err := expr.Evaluate(src, vars)
			if err != nil {
				return nil, fmt.Errorf("formula %q: %w", src, err)
			}
			return valueToArg(value), nil
		}
		if strings.HasPrefix(v, "$") {
			name := v[1:]
			value, ok := vars[name]
			if !ok {
				return nil, fmt.Errorf("reference %q: %w", v, &expr.UnknownVariableError{Name: name})
			}
			return valueToArg(value), nil
		}
		return v, nil

	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			sub, err := substitute(item, vars)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil

	case map[string]any:
		return substituteMap(v, vars)

	default:
		return raw, nil
	}
}

func valueToArg(v expr.Value) any {
	if v.IsBool() {
		return v.Truthy()
	}
	return v.Num()
}

// Package guard sanitizes expanded action calls before dispatch.
//
// Three ordered passes: clamp numeric arguments into each action's
// safe range, rewrite call shapes that are wrong for the scene state
// actually present at sanitize time, and hard-reject destructive
// argument combinations. The passes are independent; a call that
// survives all three is forwarded unchanged otherwise.
package guard

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/scenesmith/scenepilot/internal/expand"
	"github.com/scenesmith/scenepilot/internal/scene"
)

// Rejection is a typed refusal from the firewall pass. The call was
// not dispatched and must not be retried with the same arguments.
type Rejection struct {
	Action string
	Rule   string
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("call %s rejected by rule %s: %s", r.Action, r.Rule, r.Reason)
}

// SelectionReader reads the selection state as it is right now,
// bypassing any cached snapshot. The override pass depends on this:
// acting on a stale selection read can destroy a selection the user
// made after the goal was issued.
type SelectionReader interface {
	FreshSelection() (scene.Selection, error)
}

type bounds struct {
	min, max float64
}

func (b bounds) clamp(v float64) float64 {
	if v < b.min {
		return b.min
	}
	if v > b.max {
		return b.max
	}
	return v
}

const tau = 2 * math.Pi

// actionRanges clamps arguments for actions with documented ranges.
// Scale factors deliberately admit zero and negatives here; a zero
// factor is a firewall matter, not a clamping one, and negatives are
// legitimate mirroring.
var actionRanges = map[string]map[string]bounds{
	"scale": {
		"x": {-100, 100}, "y": {-100, 100}, "z": {-100, 100},
		"factor": {-100, 100},
	},
	"add_cube":     {"size": {0.001, 1000}},
	"add_cylinder": {"radius": {0.001, 1000}, "depth": {0.001, 1000}, "vertices": {3, 256}},
	"add_sphere":   {"radius": {0.001, 1000}, "segments": {3, 256}, "rings": {3, 256}},
	"bevel":        {"width": {0, 10}, "segments": {1, 12}},
	"subdivide":    {"cuts": {1, 10}},
	"array":        {"count": {1, 64}},
	"solidify":     {"thickness": {-10, 10}},
	"inset_faces":  {"thickness": {0, 100}, "depth": {-100, 100}},
	"merge_by_distance": {"distance": {0, 0.5}},
}

// argRanges is the fallback for actions without a dedicated entry,
// keyed by argument name. Angles in radians.
var argRanges = map[string]bounds{
	"angle":    {-tau, tau},
	"ratio":    {0, 1},
	"strength": {0, 1},
	"segments": {1, 256},
	"count":    {1, 256},
}

// Chain is the correction/override/firewall chain. Safe for
// concurrent use.
type Chain struct {
	selection SelectionReader
	log       *zap.SugaredLogger
}

func NewChain(selection SelectionReader, log *zap.SugaredLogger) *Chain {
	return &Chain{selection: selection, log: log}
}

// Sanitize runs one call through all three passes. Returns the call
// to dispatch (possibly with clamped arguments), or nil when the
// override pass decided the call is redundant for the current scene,
// or a Rejection when the firewall refused it.
func (c *Chain) Sanitize(call expand.Call) (*expand.Call, *Rejection) {
	c.clampArgs(&call)

	if dropped := c.applyOverrides(&call); dropped {
		return nil, nil
	}

	if rej := c.checkDenied(&call); rej != nil {
		c.log.Warnw("firewall rejected call",
			"action", call.Action, "rule", rej.Rule, "reason", rej.Reason)
		return nil, rej
	}
	return &call, nil
}

// clampArgs is pass 1. Boundary values stay untouched; values past a
// boundary snap to it. Vector arguments clamp component-wise against
// the same bounds.
func (c *Chain) clampArgs(call *expand.Call) {
	perAction := actionRanges[call.Action]
	for name, raw := range call.Args {
		b, ok := perAction[name]
		if !ok {
			if b, ok = argRanges[name]; !ok {
				continue
			}
		}
		switch v := raw.(type) {
		case float64:
			if clamped := b.clamp(v); clamped != v {
				c.log.Debugw("clamped argument",
					"action", call.Action, "arg", name, "from", v, "to", clamped)
				call.Args[name] = clamped
			}
		case []any:
			out := make([]any, len(v))
			for i, item := range v {
				if f, ok := item.(float64); ok {
					out[i] = b.clamp(f)
				} else {
					out[i] = item
				}
			}
			call.Args[name] = out
		}
	}
}

// applyOverrides is pass 2. It reads the selection fresh: the cached
// snapshot the call was planned against may predate a selection the
// user made in the meantime. If the fresh read fails, overrides are
// skipped and the call proceeds as planned.
func (c *Chain) applyOverrides(call *expand.Call) bool {
	if call.Action != "select_all" && call.Action != "deselect_all" {
		return false
	}

	sel, err := c.selection.FreshSelection()
	if err != nil {
		c.log.Warnw("fresh selection read failed, skipping override pass",
			"action", call.Action, "error", err)
		return false
	}

	switch call.Action {
	case "select_all":
		// A blanket select would wipe out a deliberate selection.
		if !sel.Empty() {
			c.log.Infow("dropped select_all: user already holds a selection",
				"objects", sel.Objects, "verts", sel.Verts)
			return true
		}
	case "deselect_all":
		if sel.Empty() {
			c.log.Debugw("dropped deselect_all: nothing is selected")
			return true
		}
	}
	return false
}

type denyRule struct {
	name  string
	check func(call *expand.Call) (string, bool)
}

var denyRules = []denyRule{
	{
		name: "zero-scale",
		check: func(call *expand.Call) (string, bool) {
			if call.Action != "scale" {
				return "", false
			}
			for _, name := range []string{"x", "y", "z", "factor"} {
				if f, ok := call.Args[name].(float64); ok && f == 0 {
					return fmt.Sprintf("scale factor %s=0 collapses the object", name), true
				}
			}
			return "", false
		},
	},
	{
		name: "zero-decimate",
		check: func(call *expand.Call) (string, bool) {
			if call.Action != "decimate" {
				return "", false
			}
			if f, ok := call.Args["ratio"].(float64); ok && f == 0 {
				return "decimate ratio 0 deletes all geometry", true
			}
			return "", false
		},
	},
	{
		name: "delete-all-unselected",
		check: func(call *expand.Call) (string, bool) {
			if !strings.HasPrefix(call.Action, "delete_") {
				return "", false
			}
			if all, ok := call.Args["all"].(bool); ok && all {
				return "blanket delete of all elements is never generated by a workflow", true
			}
			return "", false
		},
	},
}

// checkDenied is pass 3.
func (c *Chain) checkDenied(call *expand.Call) *Rejection {
	for _, rule := range denyRules {
		if reason, hit := rule.check(call); hit {
			return &Rejection{Action: call.Action, Rule: rule.name, Reason: reason}
		}
	}
	return nil
}

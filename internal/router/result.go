package router

import (
	"github.com/scenesmith/scenepilot/internal/expand"
	"github.com/scenesmith/scenepilot/internal/guard"
	"github.com/scenesmith/scenepilot/internal/match"
	"github.com/scenesmith/scenepilot/internal/resolve"
)

// Status is the outcome class of one SetGoal call.
type Status string

const (
	// StatusReady means the goal matched, every parameter resolved, and
	// the sanitized call list was dispatched (or queued under dry-run).
	StatusReady Status = "ready"
	// StatusNeedsInput means the goal matched but some parameters have
	// no value; the caller should supply them and call SetGoal again.
	StatusNeedsInput Status = "needs_input"
	// StatusNoMatch means no workflow cleared the minimum confidence.
	StatusNoMatch Status = "no_match"
	// StatusError is a typed failure; see Result.Err.
	StatusError Status = "error"
)

// ErrorInfo describes a typed failure. Stage names the pipeline phase
// that failed: scene, match, resolve, expand, dispatch.
type ErrorInfo struct {
	Type    string
	Stage   string
	Details string
}

// Result is the full outcome of one SetGoal call.
type Result struct {
	Status    Status
	SessionID string
	Goal      string

	WorkflowID string
	Confidence float64
	Scores     match.SubScores

	Resolved   map[string]float64
	Provenance map[string]resolve.Provenance
	Unresolved []resolve.Unresolved

	Calls    []expand.Call
	Rejected []guard.Rejection

	Err *ErrorInfo
}

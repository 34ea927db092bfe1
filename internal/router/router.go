// Package router is the façade over the whole pipeline: scene
// snapshot, ensemble matching, parameter resolution, expansion, the
// guard chain, and dispatch, behind one SetGoal operation.
package router

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scenesmith/scenepilot/internal/catalog"
	"github.com/scenesmith/scenepilot/internal/dispatch"
	"github.com/scenesmith/scenepilot/internal/expand"
	"github.com/scenesmith/scenepilot/internal/guard"
	"github.com/scenesmith/scenepilot/internal/match"
	"github.com/scenesmith/scenepilot/internal/resolve"
	"github.com/scenesmith/scenepilot/internal/scene"
)

// GoalLog records goal outcomes for later inspection. *db.DB satisfies
// it; tests use a no-op.
type GoalLog interface {
	LogGoal(sessionID, goal string) (int64, error)
	CompleteGoal(logID int64, workflowID string, confidence float64, status, errorMsg string, durationMs int64) error
}

// Router wires the pipeline together. Safe for sequential use; one
// goal is processed at a time.
type Router struct {
	catalog    *catalog.Catalog
	cache      *scene.Cache
	ensemble   *match.Ensemble
	resolver   *resolve.Resolver
	expander   *expand.Expander
	chain      *guard.Chain
	dispatcher dispatch.Dispatcher
	goalLog    GoalLog
	log        *zap.SugaredLogger
}

type Deps struct {
	Catalog    *catalog.Catalog
	Cache      *scene.Cache
	Ensemble   *match.Ensemble
	Resolver   *resolve.Resolver
	Expander   *expand.Expander
	Chain      *guard.Chain
	Dispatcher dispatch.Dispatcher
	GoalLog    GoalLog
	Log        *zap.SugaredLogger
}

func New(d Deps) *Router {
	return &Router{
		catalog:    d.Catalog,
		cache:      d.Cache,
		ensemble:   d.Ensemble,
		resolver:   d.Resolver,
		expander:   d.Expander,
		chain:      d.Chain,
		dispatcher: d.Dispatcher,
		goalLog:    d.GoalLog,
		log:        d.Log,
	}
}

// SetGoal runs one goal through the pipeline. Matching is idempotent
// for an unchanged goal and mapping store; store writes happen only
// when the caller supplies explicit values. Every failure comes back
// as a typed Result, never as degraded behavior.
func (r *Router) SetGoal(goal string, explicit map[string]float64) *Result {
	start := time.Now()
	res := &Result{
		SessionID: uuid.NewString(),
		Goal:      goal,
	}
	logID := r.startLog(res.SessionID, goal)

	snap, err := r.cache.Snapshot()
	if err != nil {
		return r.finish(res, logID, start, r.fail(res, "scene_unavailable", "scene", err))
	}

	m, err := r.ensemble.Evaluate(goal, snap)
	if err != nil {
		if errors.Is(err, match.ErrNoMatch) {
			res.Status = StatusNoMatch
			r.log.Infow("no workflow matched", "goal", goal)
			return r.finish(res, logID, start, res)
		}
		var initErr *match.InitError
		if errors.As(err, &initErr) {
			return r.finish(res, logID, start, r.fail(res, "matcher_init", "match", err))
		}
		return r.finish(res, logID, start, r.fail(res, "match", "match", err))
	}
	res.WorkflowID = m.WorkflowID
	res.Confidence = m.Confidence
	res.Scores = m.Scores

	wf, ok := r.catalog.Get(m.WorkflowID)
	if !ok {
		return r.finish(res, logID, start,
			r.fail(res, "catalog", "match", fmt.Errorf("matched workflow %s not in catalog", m.WorkflowID)))
	}

	rs, err := r.resolver.Resolve(goal, wf, explicit)
	if err != nil {
		var cycErr *catalog.CyclicDependencyError
		if errors.As(err, &cycErr) {
			return r.finish(res, logID, start, r.fail(res, "cyclic_dependency", "resolve", err))
		}
		return r.finish(res, logID, start, r.fail(res, "resolve", "resolve", err))
	}
	res.Resolved = rs.Values
	res.Provenance = rs.Provenance
	res.Unresolved = rs.Unresolved

	if !rs.Complete() {
		res.Status = StatusNeedsInput
		r.log.Infow("goal needs input",
			"workflow", wf.ID, "unresolved", len(rs.Unresolved))
		return r.finish(res, logID, start, res)
	}

	// Resolution succeeded end to end; remember what the caller told
	// us so a similar goal resolves without asking.
	if len(explicit) > 0 {
		r.resolver.Learn(goal, wf, explicit)
	}

	calls, err := r.expander.Expand(wf, rs, snap, m.AdaptationRequired, goal)
	if err != nil {
		return r.finish(res, logID, start, r.fail(res, "expansion", "expand", err))
	}

	for _, call := range calls {
		sanitized, rej := r.chain.Sanitize(call)
		if rej != nil {
			res.Rejected = append(res.Rejected, *rej)
			continue
		}
		if sanitized == nil {
			continue
		}
		if err := r.dispatcher.Dispatch(sanitized); err != nil {
			res.Calls = append(res.Calls, *sanitized)
			return r.finish(res, logID, start, r.fail(res, "dispatch", "dispatch", err))
		}
		res.Calls = append(res.Calls, *sanitized)
	}

	res.Status = StatusReady
	r.log.Infow("goal dispatched",
		"workflow", wf.ID,
		"confidence", m.Confidence,
		"adaptation", m.AdaptationRequired,
		"calls", len(res.Calls),
		"rejected", len(res.Rejected))
	return r.finish(res, logID, start, res)
}

func (r *Router) fail(res *Result, errType, stage string, err error) *Result {
	res.Status = StatusError
	res.Err = &ErrorInfo{Type: errType, Stage: stage, Details: err.Error()}
	r.log.Errorw("goal failed", "stage", stage, "type", errType, "error", err)
	return res
}

func (r *Router) startLog(sessionID, goal string) int64 {
	if r.goalLog == nil {
		return 0
	}
	logID, err := r.goalLog.LogGoal(sessionID, goal)
	if err != nil {
		r.log.Warnw("failed to log goal", "error", err)
		return 0
	}
	return logID
}

func (r *Router) finish(res *Result, logID int64, start time.Time, out *Result) *Result {
	if r.goalLog != nil && logID != 0 {
		errMsg := ""
		if res.Err != nil {
			errMsg = res.Err.Details
		}
		err := r.goalLog.CompleteGoal(logID, res.WorkflowID, res.Confidence,
			string(res.Status), errMsg, time.Since(start).Milliseconds())
		if err != nil {
			r.log.Warnw("failed to complete goal log", "error", err)
		}
	}
	return out
}

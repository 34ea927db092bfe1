// Package resolve turns a workflow's parameter schema into concrete
// values. Each parameter resolves through four tiers: explicit caller
// value, learned mapping, computed formula, schema default. Computed
// parameters are evaluated in topological depends_on order.
package resolve

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/scenesmith/scenepilot/internal/catalog"
	"github.com/scenesmith/scenepilot/internal/expr"
	"github.com/scenesmith/scenepilot/internal/store"
	"github.com/scenesmith/scenepilot/pkg/models"
)

// Provenance tags where a resolved value came from.
type Provenance string

const (
	ProvenanceExplicit Provenance = "explicit"
	ProvenanceLearned  Provenance = "learned"
	ProvenanceComputed Provenance = "computed"
	ProvenanceDefault  Provenance = "default"
)

// Unresolved describes a parameter the caller still has to supply.
type Unresolved struct {
	Name        string
	Description string
	Min         *float64
	Max         *float64
	Default     *float64
}

// ResolvedSet is the outcome of one resolution pass.
type ResolvedSet struct {
	Values     map[string]float64
	Provenance map[string]Provenance
	Unresolved []Unresolved
}

// Complete reports whether every parameter has a value.
func (r *ResolvedSet) Complete() bool {
	return len(r.Unresolved) == 0
}

// Resolver resolves workflow parameters. Each Resolve call builds its
// own context; a Resolver is safe to share across concurrent calls.
type Resolver struct {
	store     store.Store
	threshold float64
	log       *zap.SugaredLogger
}

// New creates a resolver. threshold is the minimum similarity for
// reusing a learned mapping.
func New(st store.Store, threshold float64, log *zap.SugaredLogger) *Resolver {
	return &Resolver{store: st, threshold: threshold, log: log}
}

// Resolve produces values for every parameter it can, and lists the
// rest as unresolved. Tier order per parameter: explicit > learned >
// computed > default. A computed parameter whose formula references an
// unresolved dependency becomes unresolved itself; it is never
// silently zero-filled.
func (r *Resolver) Resolve(goal string, wf *models.Workflow, explicit map[string]float64) (*ResolvedSet, error) {
	rs := &ResolvedSet{
		Values:     make(map[string]float64),
		Provenance: make(map[string]Provenance),
	}
	if len(wf.Parameters) == 0 {
		return rs, nil
	}

	computedOrder, err := catalog.TopoSortComputed(wf.ID, wf.Parameters)
	if err != nil {
		return nil, err
	}

	var plain []string
	for name, schema := range wf.Parameters {
		if schema.Computed == "" {
			plain = append(plain, name)
		}
	}
	sort.Strings(plain)

	for _, name := range plain {
		schema := wf.Parameters[name]

		if value, ok := explicit[name]; ok {
			rs.set(name, clampToSchema(value, schema), ProvenanceExplicit)
			continue
		}

		mapping, ok, err := r.store.Find(goal, name, r.threshold)
		if err != nil {
			return nil, fmt.Errorf("learned lookup for %s failed: %w", name, err)
		}
		if ok {
			r.log.Debugw("reused learned mapping",
				"parameter", name, "context", mapping.Context, "similarity", mapping.Similarity)
			rs.set(name, clampToSchema(mapping.Value, schema), ProvenanceLearned)
			continue
		}

		if schema.Default != nil {
			rs.set(name, *schema.Default, ProvenanceDefault)
			continue
		}
		rs.markUnresolved(name, schema)
	}

	for _, name := range computedOrder {
		schema := wf.Parameters[name]

		// Explicit wins over the formula for computed parameters too:
		// a caller answering a needs_input round must be able to pin
		// any parameter.
		if value, ok := explicit[name]; ok {
			rs.set(name, clampToSchema(value, schema), ProvenanceExplicit)
			continue
		}

		if missing := missingDeps(schema, rs.Values); len(missing) > 0 {
			r.log.Debugw("computed parameter blocked by unresolved dependencies",
				"parameter", name, "missing", missing)
			rs.markUnresolved(name, schema)
			continue
		}

		vars := make(map[string]expr.Value, len(rs.Values))
		for k, v := range rs.Values {
			vars[k] = expr.Number(v)
		}
		value, err := expr.Evaluate(schema.Computed, vars)
		if err != nil {
			// A broken formula fails this parameter, not the pass.
			r.log.Warnw("computed parameter formula failed",
				"parameter", name, "formula", schema.Computed, "error", err)
			rs.markUnresolved(name, schema)
			continue
		}
		rs.set(name, clampToSchema(value.Num(), schema), ProvenanceComputed)
	}

	return rs, nil
}

// Learn writes interactively supplied values back to the mapping
// store so a semantically similar goal resolves them automatically
// next time.
func (r *Resolver) Learn(goal string, wf *models.Workflow, supplied map[string]float64) {
	for name, value := range supplied {
		if _, ok := wf.Parameters[name]; !ok {
			continue
		}
		if err := r.store.Put(goal, name, value, wf.ID); err != nil {
			r.log.Warnw("failed to store learned mapping", "parameter", name, "error", err)
			continue
		}
		r.log.Debugw("stored learned mapping", "parameter", name, "value", value)
	}
}

func (rs *ResolvedSet) set(name string, value float64, p Provenance) {
	rs.Values[name] = value
	rs.Provenance[name] = p
}

func (rs *ResolvedSet) markUnresolved(name string, schema *models.ParameterSchema) {
	rs.Unresolved = append(rs.Unresolved, Unresolved{
		Name:        name,
		Description: schema.Description,
		Min:         schema.Min,
		Max:         schema.Max,
		Default:     schema.Default,
	})
}

func missingDeps(schema *models.ParameterSchema, values map[string]float64) []string {
	var missing []string
	for _, dep := range schema.DependsOn {
		if _, ok := values[dep]; !ok {
			missing = append(missing, dep)
		}
	}
	return missing
}

// clampToSchema keeps a value inside its declared range. Integer
// parameters are not rounded here; the guard chain owns argument
// shaping, this only prevents schema-invalid values from spreading
// into computed formulas.
func clampToSchema(value float64, schema *models.ParameterSchema) float64 {
	if schema.Min != nil && value < *schema.Min {
		return *schema.Min
	}
	if schema.Max != nil && value > *schema.Max {
		return *schema.Max
	}
	return value
}

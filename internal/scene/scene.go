// Package scene caches summaries of the authoring engine's state.
//
// The snapshot has two freshness domains: the slow-changing summary
// (mode, bounding dimensions, modifier stack depth) is reused under a
// TTL, while the selection is re-read on every snapshot because the
// correction passes must never act on a stale selection.
package scene

import (
	"fmt"
	"sync"
	"time"

	"github.com/scenesmith/scenepilot/internal/expr"
)

// Mode is the engine's interaction mode.
type Mode string

const (
	ModeObject Mode = "object"
	ModeEdit   Mode = "edit"
)

// Summary is the slow-changing part of the scene state.
type Summary struct {
	Mode          Mode    `json:"mode"`
	DimX          float64 `json:"dim_x"`
	DimY          float64 `json:"dim_y"`
	DimZ          float64 `json:"dim_z"`
	ModifierCount int     `json:"modifier_count"`
}

// Selection is the fast-changing part of the scene state.
type Selection struct {
	Objects int `json:"objects"`
	Verts   int `json:"verts"`
	Edges   int `json:"edges"`
	Faces   int `json:"faces"`
}

// Empty reports whether nothing is selected.
func (s Selection) Empty() bool {
	return s.Objects == 0 && s.Verts == 0 && s.Edges == 0 && s.Faces == 0
}

// Snapshot combines both domains at a point in time.
type Snapshot struct {
	Summary   Summary
	Selection Selection
	Taken     time.Time
}

// Vars exposes the snapshot as evaluator variables for step conditions
// and computed formulas.
func (s *Snapshot) Vars() map[string]expr.Value {
	maxDim := s.Summary.DimX
	minDim := s.Summary.DimX
	for _, d := range []float64{s.Summary.DimY, s.Summary.DimZ} {
		if d > maxDim {
			maxDim = d
		}
		if d < minDim {
			minDim = d
		}
	}
	return map[string]expr.Value{
		"object_mode":      expr.Bool(s.Summary.Mode == ModeObject),
		"edit_mode":        expr.Bool(s.Summary.Mode == ModeEdit),
		"dim_x":            expr.Number(s.Summary.DimX),
		"dim_y":            expr.Number(s.Summary.DimY),
		"dim_z":            expr.Number(s.Summary.DimZ),
		"max_dim":          expr.Number(maxDim),
		"min_dim":          expr.Number(minDim),
		"modifier_count":   expr.Number(float64(s.Summary.ModifierCount)),
		"selected_objects": expr.Number(float64(s.Selection.Objects)),
		"selected_verts":   expr.Number(float64(s.Selection.Verts)),
		"selected_edges":   expr.Number(float64(s.Selection.Edges)),
		"selected_faces":   expr.Number(float64(s.Selection.Faces)),
		"has_selection":    expr.Bool(!s.Selection.Empty()),
	}
}

// Engine reads scene state from the authoring engine. Implementations
// are expected to answer in milliseconds; this is the router's only
// suspension point.
type Engine interface {
	Summary() (Summary, error)
	Selection() (Selection, error)
}

// Cache serves snapshots, reusing the summary within the TTL and
// refreshing the selection unconditionally.
type Cache struct {
	engine Engine
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	summary Summary
	fetched time.Time
	valid   bool
}

// NewCache wraps engine with a summary TTL.
func NewCache(engine Engine, ttl time.Duration) *Cache {
	return &Cache{engine: engine, ttl: ttl, now: time.Now}
}

// Snapshot returns the current scene state: cached summary when fresh,
// selection always re-read.
func (c *Cache) Snapshot() (*Snapshot, error) {
	summary, err := c.summaryCached()
	if err != nil {
		return nil, err
	}

	selection, err := c.engine.Selection()
	if err != nil {
		return nil, fmt.Errorf("failed to read selection: %w", err)
	}

	return &Snapshot{Summary: summary, Selection: selection, Taken: c.now()}, nil
}

// FreshSelection re-reads only the selection. The correction passes
// call this at sanitize time instead of trusting an earlier snapshot.
func (c *Cache) FreshSelection() (Selection, error) {
	selection, err := c.engine.Selection()
	if err != nil {
		return Selection{}, fmt.Errorf("failed to read selection: %w", err)
	}
	return selection, nil
}

// Invalidate drops the cached summary.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}

func (c *Cache) summaryCached() (Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && c.now().Sub(c.fetched) < c.ttl {
		return c.summary, nil
	}

	summary, err := c.engine.Summary()
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read scene summary: %w", err)
	}
	c.summary = summary
	c.fetched = c.now()
	c.valid = true
	return summary, nil
}

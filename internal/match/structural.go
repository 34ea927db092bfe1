package match

import (
	"github.com/scenesmith/scenepilot/internal/scene"
	"github.com/scenesmith/scenepilot/pkg/models"
)

// StructuralScorer scores a workflow by how well the current scene
// matches the scene hints it was authored for. Workflows without hints
// score a neutral 0.5 so the other signals decide.
type StructuralScorer struct{}

// NewStructuralScorer creates a structural scorer.
func NewStructuralScorer() *StructuralScorer {
	return &StructuralScorer{}
}

// Score returns a value in [0, 1].
func (s *StructuralScorer) Score(wf *models.Workflow, snap *scene.Snapshot) float64 {
	hints := wf.Scene
	score := 0.5

	if hints.Mode != "" {
		if scene.Mode(hints.Mode) == snap.Summary.Mode {
			score += 0.25
		} else {
			score -= 0.25
		}
	}

	if hints.RequiresSelection {
		if snap.Selection.Empty() {
			score -= 0.25
		} else {
			score += 0.15
		}
	}

	if hints.Shape != "" {
		if shapeOf(snap.Summary) == hints.Shape {
			score += 0.10
		} else {
			score -= 0.10
		}
	}

	return clamp01(score)
}

// shapeOf classifies the bounding dimensions into a coarse shape
// class. The thresholds are heuristics, matched by workflow authors.
func shapeOf(s scene.Summary) string {
	maxDim := s.DimX
	minDim := s.DimX
	for _, d := range []float64{s.DimY, s.DimZ} {
		if d > maxDim {
			maxDim = d
		}
		if d < minDim {
			minDim = d
		}
	}
	if maxDim == 0 {
		return "cubic"
	}
	ratio := minDim / maxDim
	switch {
	case ratio < 0.2:
		if s.DimZ >= s.DimX && s.DimZ >= s.DimY {
			return "tall"
		}
		return "flat"
	case ratio > 0.6:
		return "cubic"
	default:
		return "boxy"
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package match

import (
	"fmt"
	"strings"

	"github.com/scenesmith/scenepilot/internal/catalog"
	"github.com/scenesmith/scenepilot/internal/embed"
)

// InitError reports that the semantic scorer's backing model could not
// be prepared. It is fatal: a router that silently falls back to a
// weaker matching strategy is worse than one that fails with an
// actionable error.
type InitError struct {
	Reason string
	Err    error
}

func (e *InitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("matcher initialization failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("matcher initialization failed: %s", e.Reason)
}

func (e *InitError) Unwrap() error { return e.Err }

// SemanticScorer scores workflows by cosine similarity between the
// goal embedding and precomputed workflow description embeddings.
type SemanticScorer struct {
	encoder embed.Encoder
	vectors map[string][]float32
}

// NewSemanticScorer embeds every workflow description up front.
// Any failure is an InitError; there is no degraded mode.
func NewSemanticScorer(encoder embed.Encoder, cat *catalog.Catalog) (*SemanticScorer, error) {
	if encoder == nil {
		return nil, &InitError{Reason: "no embedding encoder"}
	}

	vectors := make(map[string][]float32, cat.Len())
	for _, wf := range cat.List() {
		text := wf.Description
		if wf.Name != "" {
			text = wf.Name + ". " + text
		}
		if len(wf.Tags) > 0 {
			text += " " + strings.Join(wf.Tags, " ")
		}
		vec, err := encoder.Encode(text)
		if err != nil {
			return nil, &InitError{Reason: fmt.Sprintf("failed to embed workflow %s", wf.ID), Err: err}
		}
		vectors[wf.ID] = vec
	}
	return &SemanticScorer{encoder: encoder, vectors: vectors}, nil
}

// Scores embeds the goal once and returns per-workflow similarity in
// [0, 1].
func (s *SemanticScorer) Scores(goal string) (map[string]float64, error) {
	goalVec, err := s.encoder.Encode(goal)
	if err != nil {
		return nil, fmt.Errorf("failed to embed goal: %w", err)
	}

	scores := make(map[string]float64, len(s.vectors))
	for id, vec := range s.vectors {
		// cosine in [-1, 1] mapped onto [0, 1]
		scores[id] = clamp01((embed.Cosine(goalVec, vec) + 1) / 2)
	}
	return scores, nil
}

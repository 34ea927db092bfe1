package match

import (
	"github.com/scenesmith/scenepilot/internal/catalog"
	"github.com/scenesmith/scenepilot/pkg/models"
)

// KeywordScorer measures vocabulary overlap between the goal and a
// workflow's name, description, tags, parameter keywords and step
// tags. The pattern table is built once at construction.
type KeywordScorer struct {
	patterns map[string]map[string]float64 // workflow id -> token -> weight
}

// Pattern weights; tags and parameter keywords are authored vocabulary
// and count more than free description text.
const (
	weightName        = 1.5
	weightTag         = 2.0
	weightDescription = 1.0
	weightParamHint   = 2.0
	weightStepTag     = 0.5
)

// NewKeywordScorer indexes the catalog's vocabulary.
func NewKeywordScorer(cat *catalog.Catalog) *KeywordScorer {
	scorer := &KeywordScorer{patterns: make(map[string]map[string]float64)}
	for _, wf := range cat.List() {
		scorer.patterns[wf.ID] = buildPatterns(wf)
	}
	return scorer
}

func buildPatterns(wf *models.Workflow) map[string]float64 {
	patterns := make(map[string]float64)
	add := func(tokens []string, weight float64) {
		for _, token := range tokens {
			if weight > patterns[token] {
				patterns[token] = weight
			}
		}
	}

	add(Tokenize(wf.ID), weightName)
	add(Tokenize(wf.Name), weightName)
	add(Tokenize(wf.Description), weightDescription)
	for _, tag := range wf.Tags {
		add(Tokenize(tag), weightTag)
	}
	for _, schema := range wf.Parameters {
		for _, kw := range schema.Keywords {
			add(Tokenize(kw), weightParamHint)
		}
	}
	for _, step := range wf.Steps {
		for _, tag := range step.Tags {
			add(Tokenize(tag), weightStepTag)
		}
	}
	return patterns
}

// Score returns the weighted fraction of goal tokens covered by the
// workflow's vocabulary, in [0, 1].
func (s *KeywordScorer) Score(workflowID, goal string) float64 {
	patterns, ok := s.patterns[workflowID]
	if !ok {
		return 0
	}
	tokens := Tokenize(goal)
	if len(tokens) == 0 {
		return 0
	}

	var matched float64
	for _, token := range tokens {
		if w, ok := patterns[token]; ok {
			matched += w
		}
	}
	// weightTag is the ceiling weight, so a goal whose every token hits
	// authored vocabulary lands at 1.0.
	return clamp01(matched / (weightTag * float64(len(tokens))))
}

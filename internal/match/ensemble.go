package match

import (
	"errors"

	"go.uber.org/zap"

	"github.com/scenesmith/scenepilot/internal/catalog"
	"github.com/scenesmith/scenepilot/internal/config"
	"github.com/scenesmith/scenepilot/internal/embed"
	"github.com/scenesmith/scenepilot/internal/scene"
)

// ErrNoMatch means no workflow cleared the minimum confidence band.
var ErrNoMatch = errors.New("no workflow cleared the minimum confidence band")

// SubScores holds the per-scorer contributions of a match.
type SubScores struct {
	Structural float64
	Keyword    float64
	Semantic   float64
}

// Match is the aggregated result of one goal evaluation. Created fresh
// per call, never persisted.
type Match struct {
	WorkflowID         string
	Scores             SubScores
	Confidence         float64
	AdaptationRequired bool
}

// Ensemble combines the three scorers with configured weights and
// buckets the winner into confidence bands.
type Ensemble struct {
	catalog    *catalog.Catalog
	structural *StructuralScorer
	keyword    *KeywordScorer
	semantic   *SemanticScorer
	weights    config.Weights
	bands      config.Bands
	log        *zap.SugaredLogger
}

// NewEnsemble builds the aggregator. It fails fast with an InitError
// when the semantic scorer cannot load its backing model — silent
// degradation to keyword-only matching is explicitly forbidden.
func NewEnsemble(cat *catalog.Catalog, encoder embed.Encoder, cfg config.MatchConfig, log *zap.SugaredLogger) (*Ensemble, error) {
	semantic, err := NewSemanticScorer(encoder, cat)
	if err != nil {
		return nil, err
	}
	return &Ensemble{
		catalog:    cat,
		structural: NewStructuralScorer(),
		keyword:    NewKeywordScorer(cat),
		semantic:   semantic,
		weights:    cfg.Weights,
		bands:      cfg.Bands,
		log:        log,
	}, nil
}

// Evaluate ranks every workflow against the goal and returns the best
// match, or ErrNoMatch when nothing clears the low band. Ties on
// aggregated confidence break toward the higher semantic sub-score.
func (e *Ensemble) Evaluate(goal string, snap *scene.Snapshot) (*Match, error) {
	semScores, err := e.semantic.Scores(goal)
	if err != nil {
		return nil, err
	}

	wsum := e.weights.Structural + e.weights.Keyword + e.weights.Semantic

	var best *Match
	for _, wf := range e.catalog.List() {
		scores := SubScores{
			Structural: e.structural.Score(wf, snap),
			Keyword:    e.keyword.Score(wf.ID, goal),
			Semantic:   semScores[wf.ID],
		}
		confidence := (e.weights.Structural*scores.Structural +
			e.weights.Keyword*scores.Keyword +
			e.weights.Semantic*scores.Semantic) / wsum

		e.log.Debugw("scored workflow",
			"workflow", wf.ID,
			"structural", scores.Structural,
			"keyword", scores.Keyword,
			"semantic", scores.Semantic,
			"confidence", confidence,
		)

		if best == nil ||
			confidence > best.Confidence ||
			confidence == best.Confidence && scores.Semantic > best.Scores.Semantic {
			best = &Match{WorkflowID: wf.ID, Scores: scores, Confidence: confidence}
		}
	}

	if best == nil || best.Confidence < e.bands.Low {
		return nil, ErrNoMatch
	}
	best.AdaptationRequired = best.Confidence < e.bands.High
	return best, nil
}

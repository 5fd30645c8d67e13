// Package decision implements the merge band policy. Decide is a pure
// function of the ranked matches and the policy; everything stateful happens
// before (resolution) or after (apply).
package decision

import (
	"fmt"

	"github.com/agenthands/procgraph/internal/config"
	"github.com/agenthands/procgraph/internal/core/model"
	"github.com/agenthands/procgraph/internal/core/resolve"
)

// Policy holds the similarity bands. All three are cosine similarities in
// [0,1]; MergeThreshold > AmbiguousFloor must hold.
type Policy struct {
	MergeThreshold float64
	AmbiguousFloor float64
	NearTieEpsilon float64
}

func PolicyFromConfig(cfg config.ResolutionConfig) Policy {
	return Policy{
		MergeThreshold: cfg.MergeThreshold,
		AmbiguousFloor: cfg.AmbiguousFloor,
		NearTieEpsilon: cfg.NearTieEpsilon,
	}
}

// Result is the outcome of the band policy for one candidate.
type Result struct {
	Decision model.Decision
	// TargetID is set for merge decisions.
	TargetID string
	// Options carries the competing entities for ambiguous decisions, in rank
	// order, ready to be snapshotted into a review record.
	Options []model.ScoredOption
	Reason  string
}

// Decide applies the band rules to a ranked match list.
//
// An exact alias hit merges immediately unless a different entity also scores
// at or above the ambiguous floor; that cross-signal disagreement goes to
// review rather than being settled silently. Otherwise the top score decides:
// at or above the merge threshold it merges, unless the runner-up is within
// the near-tie epsilon; inside the ambiguous band it goes to review; below
// the floor the candidate becomes a new entity.
func Decide(matches []resolve.Match, p Policy) Result {
	if len(matches) == 0 {
		return Result{Decision: model.DecisionNew, Reason: "no candidates in scope"}
	}

	top := matches[0]

	if top.Exact {
		for _, m := range matches[1:] {
			if m.EntityID != top.EntityID && m.Score >= p.AmbiguousFloor {
				return Result{
					Decision: model.DecisionAmbiguous,
					Options:  options(matches),
					Reason: fmt.Sprintf("alias matches %s but %s scores %.3f",
						top.EntityID, m.EntityID, m.Score),
				}
			}
		}
		return Result{Decision: model.DecisionMerge, TargetID: top.EntityID, Reason: "exact alias match"}
	}

	switch {
	case top.Score >= p.MergeThreshold:
		if len(matches) > 1 {
			second := matches[1]
			if second.Score >= p.MergeThreshold && top.Score-second.Score < p.NearTieEpsilon {
				return Result{
					Decision: model.DecisionAmbiguous,
					Options:  options(matches),
					Reason: fmt.Sprintf("near tie: %.3f vs %.3f within %.3f",
						top.Score, second.Score, p.NearTieEpsilon),
				}
			}
		}
		return Result{
			Decision: model.DecisionMerge,
			TargetID: top.EntityID,
			Reason:   fmt.Sprintf("score %.3f above merge threshold", top.Score),
		}

	case top.Score >= p.AmbiguousFloor:
		return Result{
			Decision: model.DecisionAmbiguous,
			Options:  options(matches),
			Reason:   fmt.Sprintf("score %.3f inside ambiguous band", top.Score),
		}

	default:
		return Result{
			Decision: model.DecisionNew,
			Reason:   fmt.Sprintf("score %.3f below ambiguous floor", top.Score),
		}
	}
}

func options(matches []resolve.Match) []model.ScoredOption {
	out := make([]model.ScoredOption, 0, len(matches))
	for _, m := range matches {
		out = append(out, model.ScoredOption{EntityID: m.EntityID, Name: m.Name, Score: m.Score})
	}
	return out
}

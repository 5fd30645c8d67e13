// Package resolve finds existing entities a candidate may refer to. Search is
// scoped to the candidate's type: a Role never matches a Skill however close
// the wording.
package resolve

import (
	"context"
	"sort"
	"time"

	"github.com/agenthands/procgraph/internal/core/model"
	"github.com/agenthands/procgraph/internal/store"
)

// Match is one ranked resolution hypothesis.
type Match struct {
	EntityID  string
	Name      string
	Score     float64
	Exact     bool
	CreatedAt time.Time
}

type Resolver struct {
	Store store.GraphStore
	TopK  int
}

func New(s store.GraphStore, topK int) *Resolver {
	if topK <= 0 {
		topK = 5
	}
	return &Resolver{Store: s, TopK: topK}
}

// Resolve returns candidate matches ranked by score, exact alias hits first.
// Ordering is deterministic: score descending, then earliest created_at, then
// id, so equal inputs always produce the same ranking. Candidates without an
// embedding resolve through the alias index alone.
func (r *Resolver) Resolve(ctx context.Context, cand model.Candidate) ([]Match, error) {
	byID := make(map[string]*Match)

	aliasHits, err := r.Store.FindByAlias(ctx, cand.Type, cand.AliasCode)
	if err != nil {
		return nil, err
	}
	for _, node := range aliasHits {
		if node.Superseded {
			continue
		}
		byID[node.ID] = &Match{
			EntityID:  node.ID,
			Name:      node.Name,
			Score:     1.0,
			Exact:     true,
			CreatedAt: node.CreatedAt,
		}
	}

	if len(cand.Embedding) > 0 {
		hits, err := r.Store.FindSimilar(ctx, cand.Type, cand.Embedding, r.TopK)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			if hit.Node.Superseded {
				continue
			}
			if m, ok := byID[hit.Node.ID]; ok {
				// Alias hit already present; keep the vector score so the
				// decision layer can see contradictions.
				m.Score = hit.Score
				continue
			}
			byID[hit.Node.ID] = &Match{
				EntityID:  hit.Node.ID,
				Name:      hit.Node.Name,
				Score:     hit.Score,
				CreatedAt: hit.Node.CreatedAt,
			}
		}
	}

	matches := make([]Match, 0, len(byID))
	for _, m := range byID {
		matches = append(matches, *m)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Exact != matches[j].Exact {
			return matches[i].Exact
		}
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.Before(matches[j].CreatedAt)
		}
		return matches[i].EntityID < matches[j].EntityID
	})

	if len(matches) > r.TopK {
		matches = matches[:r.TopK]
	}
	return matches, nil
}

package store

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agenthands/procgraph/internal/core/model"
)

// MemoryStore is a fully in-process GraphStore. It backs engine tests and
// doubles as a scratch backend when no graph database is configured. All
// invariants the Neo4j store enforces transactionally are enforced here under
// one mutex.
type MemoryStore struct {
	mu sync.Mutex

	entities      map[string]*model.EntityNode
	fragments     map[string][]*model.DefinitionFragment // entity id -> ordered fragments
	relationships []*model.Relationship
	evidence      map[string]*model.Evidence
	links         map[string][]string // assertion id -> evidence ids
	ambiguities   map[string]*model.Ambiguity
	conflicts     map[string]*model.Conflict
	outcomes      map[string]*model.MergeOutcome
	ambOrder      []string
	conflictOrder []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:    map[string]*model.EntityNode{},
		fragments:   map[string][]*model.DefinitionFragment{},
		evidence:    map[string]*model.Evidence{},
		links:       map[string][]string{},
		ambiguities: map[string]*model.Ambiguity{},
		conflicts:   map[string]*model.Conflict{},
		outcomes:    map[string]*model.MergeOutcome{},
	}
}

func (s *MemoryStore) FindSimilar(ctx context.Context, t model.EntityType, vector []float32, k int) ([]SimilarityHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hits []SimilarityHit
	for _, n := range s.entities {
		if n.Type != t || n.Superseded || len(n.Centroid) == 0 {
			continue
		}
		score := cosine(vector, n.Centroid)
		hits = append(hits, SimilarityHit{Node: n.Clone(), Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Node.CreatedAt.Before(hits[j].Node.CreatedAt)
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *MemoryStore) FindByAlias(ctx context.Context, t model.EntityType, text string) ([]*model.EntityNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := canonical(text)
	if key == "" {
		return nil, nil
	}
	var out []*model.EntityNode
	for _, n := range s.entities {
		if n.Type != t || n.Superseded {
			continue
		}
		for alias := range n.Aliases.Iter() {
			if canonical(alias) == key {
				out = append(out, n.Clone())
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) GetEntity(ctx context.Context, id string) (*model.EntityNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.entities[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return n.Clone(), nil
}

func (s *MemoryStore) ListEntities(ctx context.Context, t model.EntityType) ([]*model.EntityNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.EntityNode
	for _, n := range s.entities {
		if (t == "" || n.Type == t) && !n.Superseded {
			out = append(out, n.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) GetVersion(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.entities[id]
	if !ok {
		return 0, model.ErrNotFound
	}
	return n.Version, nil
}

func (s *MemoryStore) FragmentByHash(ctx context.Context, entityID, textHash string) (*model.DefinitionFragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.fragments[entityID] {
		if f.TextHash == textHash {
			cp := *f
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (s *MemoryStore) ListFragments(ctx context.Context, entityID string) ([]*model.DefinitionFragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.DefinitionFragment
	for _, f := range s.fragments[entityID] {
		cp := *f
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) ListRelationships(ctx context.Context, sourceID string, kind model.RelKind) ([]*model.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Relationship
	for _, r := range s.relationships {
		if r.SourceID != sourceID {
			continue
		}
		if kind != "" && r.Kind != kind {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) EvidenceFor(ctx context.Context, assertionID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.links[assertionID]...), nil
}

func (s *MemoryStore) CommitMutation(ctx context.Context, mut *model.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Evidence completeness before any effect.
	for _, assertion := range mut.Assertions() {
		if !covered(assertion, mut.EvidenceLinks) {
			return &model.MissingEvidenceError{AssertionID: assertion}
		}
	}

	var target *model.EntityNode
	if mut.NewEntity != nil {
		if _, exists := s.entities[mut.NewEntity.ID]; exists {
			return model.ErrVersionConflict
		}
		target = mut.NewEntity.Clone()
		s.entities[target.ID] = target
	} else {
		existing, ok := s.entities[mut.TargetID]
		if !ok {
			return model.ErrNotFound
		}
		if existing.Version != mut.ExpectedVersion {
			return model.ErrVersionConflict
		}
		target = existing
		target.Version++
	}

	for _, alias := range mut.AddAliases {
		target.Aliases.Add(alias)
	}
	if len(mut.Centroid) > 0 {
		target.Centroid = append([]float32(nil), mut.Centroid...)
		target.CentroidCount = mut.CentroidCount
	}

	if mut.NewFragment != nil {
		frag := *mut.NewFragment
		frag.EntityID = target.ID
		frag.Seq = len(s.fragments[target.ID]) + 1
		s.fragments[target.ID] = append(s.fragments[target.ID], &frag)
	}
	if mut.NewEvidence != nil {
		if _, exists := s.evidence[mut.NewEvidence.ID]; !exists {
			cp := *mut.NewEvidence
			s.evidence[cp.ID] = &cp
		}
	}
	if mut.NewRelationship != nil {
		cp := *mut.NewRelationship
		s.relationships = append(s.relationships, &cp)
	}
	for _, link := range mut.EvidenceLinks {
		if !containsStr(s.links[link.AssertionID], link.EvidenceID) {
			s.links[link.AssertionID] = append(s.links[link.AssertionID], link.EvidenceID)
		}
	}
	return nil
}

func (s *MemoryStore) SupersedeEntity(ctx context.Context, id, byID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.entities[id]
	if !ok {
		return model.ErrNotFound
	}
	n.Superseded = true
	n.SupersededBy = byID
	n.Version++
	return nil
}

func (s *MemoryStore) CreateAmbiguity(ctx context.Context, amb *model.Ambiguity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *amb
	s.ambiguities[cp.ID] = &cp
	s.ambOrder = append(s.ambOrder, cp.ID)
	return nil
}

func (s *MemoryStore) GetAmbiguity(ctx context.Context, id string) (*model.Ambiguity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	amb, ok := s.ambiguities[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *amb
	return &cp, nil
}

func (s *MemoryStore) ResolveAmbiguity(ctx context.Context, id, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	amb, ok := s.ambiguities[id]
	if !ok {
		return model.ErrNotFound
	}
	if amb.Status != model.StatusOpen {
		return model.ErrAlreadyResolved
	}
	now := time.Now().UTC()
	amb.Status = model.StatusResolved
	amb.Answer = answer
	amb.ResolvedAt = &now
	return nil
}

func (s *MemoryStore) CreateConflict(ctx context.Context, c *model.Conflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.conflicts[cp.ID] = &cp
	s.conflictOrder = append(s.conflictOrder, cp.ID)
	return nil
}

func (s *MemoryStore) GetConflict(ctx context.Context, id string) (*model.Conflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conflicts[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ResolveConflict(ctx context.Context, id, resolution string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conflicts[id]
	if !ok {
		return model.ErrNotFound
	}
	if c.Status != model.StatusOpen {
		return model.ErrAlreadyResolved
	}
	now := time.Now().UTC()
	c.Status = model.StatusResolved
	c.Resolution = resolution
	c.ResolvedAt = &now
	return nil
}

func (s *MemoryStore) ListOpenAmbiguities(ctx context.Context) ([]*model.Ambiguity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Ambiguity
	for _, id := range s.ambOrder {
		if amb := s.ambiguities[id]; amb.Status == model.StatusOpen {
			cp := *amb
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListOpenConflicts(ctx context.Context) ([]*model.Conflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Conflict
	for _, id := range s.conflictOrder {
		if c := s.conflicts[id]; c.Status == model.StatusOpen {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetOutcome(ctx context.Context, key string) (*model.MergeOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.outcomes[key]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *out
	return &cp, nil
}

func (s *MemoryStore) RecordOutcome(ctx context.Context, out *model.MergeOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.outcomes[out.Key]; exists {
		return nil
	}
	cp := *out
	s.outcomes[out.Key] = &cp
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func canonical(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func covered(assertionID string, links []model.EvidenceLink) bool {
	for _, l := range links {
		if l.AssertionID == assertionID {
			return true
		}
	}
	return false
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

package store

import (
	"context"

	"github.com/agenthands/procgraph/internal/core/model"
)

// SimilarityHit is one node returned by a vector lookup.
type SimilarityHit struct {
	Node  *model.EntityNode
	Score float64
}

// GraphStore is the engine's contract toward the shared property graph.
// Implementations must make CommitMutation transactional: either every effect
// of the mutation lands or none do, and the optimistic version check fails
// with ErrVersionConflict when the target moved underneath the caller.
//
// A store handle is passed explicitly through every operation; there is no
// process-wide instance, so tests run against isolated in-memory stores.
type GraphStore interface {
	// Lookup.
	FindSimilar(ctx context.Context, t model.EntityType, vector []float32, k int) ([]SimilarityHit, error)
	FindByAlias(ctx context.Context, t model.EntityType, text string) ([]*model.EntityNode, error)
	GetEntity(ctx context.Context, id string) (*model.EntityNode, error)
	ListEntities(ctx context.Context, t model.EntityType) ([]*model.EntityNode, error)
	GetVersion(ctx context.Context, id string) (int64, error)

	// Committed assertions.
	FragmentByHash(ctx context.Context, entityID, textHash string) (*model.DefinitionFragment, error)
	ListFragments(ctx context.Context, entityID string) ([]*model.DefinitionFragment, error)
	ListRelationships(ctx context.Context, sourceID string, kind model.RelKind) ([]*model.Relationship, error)
	EvidenceFor(ctx context.Context, assertionID string) ([]string, error)

	// Writes. CommitMutation is the only way committed graph state changes.
	CommitMutation(ctx context.Context, mut *model.Mutation) error
	SupersedeEntity(ctx context.Context, id, byID string) error

	// Review queue.
	CreateAmbiguity(ctx context.Context, amb *model.Ambiguity) error
	GetAmbiguity(ctx context.Context, id string) (*model.Ambiguity, error)
	ResolveAmbiguity(ctx context.Context, id, answer string) error
	CreateConflict(ctx context.Context, c *model.Conflict) error
	GetConflict(ctx context.Context, id string) (*model.Conflict, error)
	ResolveConflict(ctx context.Context, id, resolution string) error
	ListOpenAmbiguities(ctx context.Context) ([]*model.Ambiguity, error)
	ListOpenConflicts(ctx context.Context) ([]*model.Conflict, error)

	// Audit trail for idempotent replay.
	GetOutcome(ctx context.Context, key string) (*model.MergeOutcome, error)
	RecordOutcome(ctx context.Context, out *model.MergeOutcome) error
}

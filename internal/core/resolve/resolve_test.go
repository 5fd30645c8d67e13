package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/procgraph/internal/core/model"
	"github.com/agenthands/procgraph/internal/store"
)

func seedEntity(t *testing.T, s *store.MemoryStore, id string, typ model.EntityType, name string, centroid []float32, createdAt time.Time) {
	t.Helper()
	node := model.NewEntityNode(id, typ, name, model.CreatedByAgent, createdAt)
	if centroid != nil {
		node.UpdateCentroid(centroid)
	}
	err := s.CommitMutation(context.Background(), &model.Mutation{NewEntity: node})
	require.NoError(t, err)
}

func TestResolveRanksByScore(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Now()
	seedEntity(t, s, "ent-far", model.TypeTask, "Archive records", []float32{0, 1, 0}, now)
	seedEntity(t, s, "ent-near", model.TypeTask, "Review invoice", []float32{1, 0.1, 0}, now)

	r := New(s, 5)
	matches, err := r.Resolve(context.Background(), model.Candidate{
		Type:      model.TypeTask,
		AliasCode: "invoice check",
		Embedding: []float32{1, 0, 0},
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "ent-near", matches[0].EntityID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestResolveTypeScoped(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Now()
	seedEntity(t, s, "role-1", model.TypeRole, "Reviewer", []float32{1, 0, 0}, now)

	r := New(s, 5)
	matches, err := r.Resolve(context.Background(), model.Candidate{
		Type:      model.TypeSkill,
		AliasCode: "reviewer",
		Embedding: []float32{1, 0, 0},
	})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestResolveExactAliasFirst(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Now()
	seedEntity(t, s, "ent-a", model.TypeRole, "구매 담당자", []float32{0.2, 0.9, 0}, now)
	seedEntity(t, s, "ent-b", model.TypeRole, "승인자", []float32{1, 0, 0}, now)

	r := New(s, 5)
	matches, err := r.Resolve(context.Background(), model.Candidate{
		Type:      model.TypeRole,
		AliasCode: "구매 담당자",
		Embedding: []float32{1, 0, 0},
	})
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "ent-a", matches[0].EntityID)
	assert.True(t, matches[0].Exact)
	// The exact hit keeps its vector score for contradiction checks downstream.
	assert.Less(t, matches[0].Score, 1.0)
}

func TestResolveAliasOnlyWithoutEmbedding(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Now()
	seedEntity(t, s, "ent-a", model.TypeTask, "Submit report", []float32{1, 0, 0}, now)

	r := New(s, 5)
	matches, err := r.Resolve(context.Background(), model.Candidate{
		Type:      model.TypeTask,
		AliasCode: "submit report",
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.True(t, matches[0].Exact)
	assert.Equal(t, 1.0, matches[0].Score)
}

func TestResolveTieBreaksOnCreatedAt(t *testing.T) {
	s := store.NewMemoryStore()
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	// Identical centroids give identical scores; the older node wins.
	seedEntity(t, s, "ent-new", model.TypeTask, "Check stock", []float32{1, 0, 0}, newer)
	seedEntity(t, s, "ent-old", model.TypeTask, "Verify stock", []float32{1, 0, 0}, older)

	r := New(s, 5)
	matches, err := r.Resolve(context.Background(), model.Candidate{
		Type:      model.TypeTask,
		AliasCode: "stock check",
		Embedding: []float32{1, 0, 0},
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "ent-old", matches[0].EntityID)
}

func TestResolveSkipsSupersededEntities(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Now()
	seedEntity(t, s, "ent-a", model.TypeTask, "Old task", []float32{1, 0, 0}, now)
	seedEntity(t, s, "ent-b", model.TypeTask, "New task", []float32{1, 0, 0}, now)
	require.NoError(t, s.SupersedeEntity(context.Background(), "ent-a", "ent-b"))

	r := New(s, 5)
	matches, err := r.Resolve(context.Background(), model.Candidate{
		Type:      model.TypeTask,
		AliasCode: "old task",
		Embedding: []float32{1, 0, 0},
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "ent-b", matches[0].EntityID)
}

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCapabilityTable(t *testing.T) {
	assert.True(t, AllowsRelationship(RelPerformedBy, TypeTask, TypeRole))
	assert.False(t, AllowsRelationship(RelPerformedBy, TypeRole, TypeTask))
	assert.True(t, AllowsRelationship(RelUsesDecision, TypeProcess, TypeDMNDecision))
	assert.True(t, AllowsRelationship(RelUsesDecision, TypeSkill, TypeDMNDecision))
	assert.False(t, AllowsRelationship(RelUsesDecision, TypeTask, TypeDMNDecision))
	assert.True(t, AllowsRelationship(RelNext, TypeGateway, TypeTask))
	assert.False(t, AllowsRelationship(RelKind("MADE_UP"), TypeTask, TypeRole))
}

func TestExclusiveKinds(t *testing.T) {
	assert.True(t, IsExclusive(RelPerformedBy))
	assert.True(t, IsExclusive(RelBelongsTo))
	assert.True(t, IsExclusive(RelOfDecision))
	assert.False(t, IsExclusive(RelHasTask))
	assert.False(t, IsExclusive(RelNext))
	assert.False(t, IsExclusive(RelKind("MADE_UP")))
}

func TestIdempotencyKeyStableAndScoped(t *testing.T) {
	ref := ChunkRef{DocID: "doc-1", ChunkID: "c1"}
	assert.Equal(t,
		IdempotencyKey(ref, "text", "ent-1"),
		IdempotencyKey(ref, "text", "ent-1"))
	assert.NotEqual(t,
		IdempotencyKey(ref, "text", "ent-1"),
		IdempotencyKey(ref, "text", ""))
	assert.NotEqual(t,
		IdempotencyKey(ref, "text", ""),
		IdempotencyKey(ChunkRef{DocID: "doc-2", ChunkID: "c1"}, "text", ""))
	// Empty target and the explicit marker are the same key.
	assert.Equal(t,
		IdempotencyKey(ref, "text", ""),
		IdempotencyKey(ref, "text", NewMarker))
}

func TestCentroidRunningMean(t *testing.T) {
	n := NewEntityNode("e1", TypeTask, "task", CreatedByAgent, time.Now())
	n.UpdateCentroid([]float32{1, 0})
	n.UpdateCentroid([]float32{0, 1})
	assert.Equal(t, []float32{0.5, 0.5}, n.Centroid)
	assert.Equal(t, 2, n.CentroidCount)

	n.UpdateCentroid([]float32{1, 1})
	assert.InDelta(t, 2.0/3.0, float64(n.Centroid[0]), 1e-6)
	assert.Equal(t, 3, n.CentroidCount)
}

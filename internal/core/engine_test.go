package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/procgraph/internal/config"
	"github.com/agenthands/procgraph/internal/core/model"
	"github.com/agenthands/procgraph/internal/logger"
	"github.com/agenthands/procgraph/internal/store"
)

func newTestEngine(s store.GraphStore, emb *MockEmbedder) *Engine {
	if emb == nil {
		emb = &MockEmbedder{DefaultVector: []float32{1, 0, 0}}
	}
	return NewEngine(config.Default(), s, emb, &MockGenerator{Response: "synthesized"}, logger.Nop())
}

func rawCandidate(docID, chunkID, typ, text, alias string) model.RawExtraction {
	return model.RawExtraction{
		Type:  typ,
		Text:  text,
		Alias: alias,
		Source: model.ChunkRef{
			DocID:   docID,
			ChunkID: chunkID,
			Text:    text,
		},
	}
}

func TestFirstCandidateCreatesEntity(t *testing.T) {
	s := store.NewMemoryStore()
	e := newTestEngine(s, nil)

	out, err := e.ProcessCandidate(context.Background(),
		rawCandidate("doc-a", "c1", "Process", "구매 승인 프로세스는 발주 요청을 처리한다", "구매 승인 프로세스"))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionNew, out.Decision)
	require.NotEmpty(t, out.TargetEntityID)

	node, err := s.GetEntity(context.Background(), out.TargetEntityID)
	require.NoError(t, err)
	assert.Equal(t, "구매 승인 프로세스", node.Name)
	assert.Equal(t, model.CreatedByAgent, node.CreatedBy)

	frags, err := s.ListFragments(context.Background(), out.TargetEntityID)
	require.NoError(t, err)
	require.Len(t, frags, 1)

	evidence, err := s.EvidenceFor(context.Background(), frags[0].ID)
	require.NoError(t, err)
	assert.Len(t, evidence, 1)
}

func TestSameWordingMergesViaAlias(t *testing.T) {
	s := store.NewMemoryStore()
	e := newTestEngine(s, nil)
	ctx := context.Background()

	first, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-a", "c1", "Process", "구매 승인 프로세스는 발주 요청을 처리한다", "구매 승인 프로세스"))
	require.NoError(t, err)

	second, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-b", "c1", "Process", "구매 승인 프로세스의 상세 절차", "구매 승인 프로세스"))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionMerge, second.Decision)
	assert.Equal(t, first.TargetEntityID, second.TargetEntityID)

	frags, err := s.ListFragments(ctx, first.TargetEntityID)
	require.NoError(t, err)
	assert.Len(t, frags, 2)
}

func TestThreeDocumentScenario(t *testing.T) {
	// Doc A seeds an entity, doc B describes the same process in different
	// wording and merges on vector similarity, doc C sits in the ambiguous
	// band and escalates.
	s := store.NewMemoryStore()
	emb := &MockEmbedder{ResponseQueue: [][]float32{
		{1, 0, 0},
		{0.95, 0.312, 0},
		{0.75, 0.6614, 0},
	}}
	e := newTestEngine(s, emb)
	ctx := context.Background()

	a, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-a", "c1", "Process", "구매 승인 프로세스는 발주 요청을 처리한다", "구매 승인 프로세스"))
	require.NoError(t, err)
	require.Equal(t, model.DecisionNew, a.Decision)

	b, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-b", "c1", "Process", "구매 승인 절차는 요청 접수와 결재로 이루어진다", "구매 승인 절차"))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionMerge, b.Decision)
	assert.Equal(t, a.TargetEntityID, b.TargetEntityID)

	c, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-c", "c1", "Process", "구매 요청 프로세스는 부서별 요청을 취합한다", "구매 요청 프로세스"))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionAmbiguous, c.Decision)
	require.NotEmpty(t, c.AmbiguityID)

	// One entity, two fragments, one open question. Nothing was merged
	// silently and nothing was lost.
	entities, err := s.ListEntities(ctx, model.TypeProcess)
	require.NoError(t, err)
	assert.Len(t, entities, 1)
	frags, err := s.ListFragments(ctx, a.TargetEntityID)
	require.NoError(t, err)
	assert.Len(t, frags, 2)
	open, err := s.ListOpenAmbiguities(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestRedeliveryReplaysOutcome(t *testing.T) {
	s := store.NewMemoryStore()
	e := newTestEngine(s, nil)
	ctx := context.Background()

	raw := rawCandidate("doc-a", "c1", "Task", "Review the invoice against the PO", "Invoice Review")
	first, err := e.ProcessCandidate(ctx, raw)
	require.NoError(t, err)

	second, err := e.ProcessCandidate(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, first.TargetEntityID, second.TargetEntityID)

	entities, err := s.ListEntities(ctx, model.TypeTask)
	require.NoError(t, err)
	assert.Len(t, entities, 1)
	frags, err := s.ListFragments(ctx, first.TargetEntityID)
	require.NoError(t, err)
	assert.Len(t, frags, 1)
}

func TestDuplicateWordingAddsEvidenceOnly(t *testing.T) {
	// Same definition text arriving from a different chunk: no second
	// fragment, but the fresh evidence links to the existing one.
	s := store.NewMemoryStore()
	e := newTestEngine(s, nil)
	ctx := context.Background()

	first, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-a", "c1", "Task", "Review the invoice against the PO", "Invoice Review"))
	require.NoError(t, err)

	second, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-b", "c9", "Task", "Review the invoice against the PO", "Invoice Review"))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionMerge, second.Decision)
	assert.Equal(t, first.FragmentID, second.FragmentID)

	frags, err := s.ListFragments(ctx, first.TargetEntityID)
	require.NoError(t, err)
	require.Len(t, frags, 1)
	evidence, err := s.EvidenceFor(ctx, frags[0].ID)
	require.NoError(t, err)
	assert.Len(t, evidence, 2)
}

func TestInvalidCandidateRejected(t *testing.T) {
	e := newTestEngine(store.NewMemoryStore(), nil)

	_, err := e.ProcessCandidate(context.Background(),
		rawCandidate("doc-a", "c1", "Widget", "some text", ""))
	assert.True(t, errors.Is(err, model.ErrInvalidCandidate))
}

func TestEmbedderOutageDegradesToAliasOnly(t *testing.T) {
	s := store.NewMemoryStore()
	emb := &MockEmbedder{Err: errors.New("service unavailable")}
	e := newTestEngine(s, emb)
	ctx := context.Background()

	first, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-a", "c1", "Role", "구매 담당자", "구매 담당자"))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionNew, first.Decision)
	assert.True(t, first.Candidate.LowConfidence)

	// Exact alias still merges without a vector.
	second, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-b", "c2", "Role", "구매 담당자는 발주를 승인한다", "구매 담당자"))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionMerge, second.Decision)
	assert.Equal(t, first.TargetEntityID, second.TargetEntityID)
}

func TestVersionConflictRetriesAndSucceeds(t *testing.T) {
	base := store.NewMemoryStore()
	flaky := &flakyStore{MemoryStore: base, conflicts: 2}
	e := newTestEngine(flaky, nil)

	out, err := e.ProcessCandidate(context.Background(),
		rawCandidate("doc-a", "c1", "Task", "Review the invoice", "Invoice Review"))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionNew, out.Decision)
}

func TestVersionConflictExhaustionEscalates(t *testing.T) {
	base := store.NewMemoryStore()
	flaky := &flakyStore{MemoryStore: base, conflicts: 100}
	e := newTestEngine(flaky, nil)
	ctx := context.Background()

	out, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-a", "c1", "Task", "Review the invoice", "Invoice Review"))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionConflict, out.Decision)
	require.NotEmpty(t, out.ConflictID)

	open, err := base.ListOpenConflicts(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestContradictoryExclusiveAssertionEscalates(t *testing.T) {
	s := store.NewMemoryStore()
	emb := &MockEmbedder{ResponseQueue: [][]float32{
		{0, 1, 0},
		{0, 0, 1},
		{1, 0, 0},
		{1, 0, 0},
	}}
	e := newTestEngine(s, emb)
	ctx := context.Background()

	_, err := e.ProcessCandidate(ctx, rawCandidate("doc-a", "r1", "Role", "승인자는 결재를 수행한다", "승인자"))
	require.NoError(t, err)
	_, err = e.ProcessCandidate(ctx, rawCandidate("doc-a", "r2", "Role", "검토자는 검토를 수행한다", "검토자"))
	require.NoError(t, err)

	withRole := rawCandidate("doc-a", "t1", "Task", "발주서를 결재한다", "발주 결재")
	withRole.Assertion = &model.RelationAssertion{
		Kind: model.RelPerformedBy, TargetType: "Role", TargetName: "승인자",
	}
	task, err := e.ProcessCandidate(ctx, withRole)
	require.NoError(t, err)
	require.Equal(t, model.DecisionNew, task.Decision)

	rels, err := s.ListRelationships(ctx, task.TargetEntityID, model.RelPerformedBy)
	require.NoError(t, err)
	require.Len(t, rels, 1)

	// A later document claims a different performer for the same task.
	contradicting := rawCandidate("doc-b", "t7", "Task", "발주 결재", "발주 결재")
	contradicting.Assertion = &model.RelationAssertion{
		Kind: model.RelPerformedBy, TargetType: "Role", TargetName: "검토자",
	}
	out, err := e.ProcessCandidate(ctx, contradicting)
	require.NoError(t, err)
	assert.Equal(t, model.DecisionConflict, out.Decision)
	require.NotEmpty(t, out.ConflictID)

	// The existing relationship is untouched.
	rels, err = s.ListRelationships(ctx, task.TargetEntityID, model.RelPerformedBy)
	require.NoError(t, err)
	assert.Len(t, rels, 1)

	c, err := s.GetConflict(ctx, out.ConflictID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOpen, c.Status)
	assert.NotNil(t, c.Candidate)
}

func TestApplyAnswerMergesPendingCandidate(t *testing.T) {
	s := store.NewMemoryStore()
	emb := &MockEmbedder{ResponseQueue: [][]float32{
		{1, 0, 0},
		{0.85, 0.5268, 0},
	}}
	e := newTestEngine(s, emb)
	ctx := context.Background()

	seed, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-a", "c1", "Process", "구매 승인 프로세스는 발주 요청을 처리한다", "구매 승인 프로세스"))
	require.NoError(t, err)

	amb, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-c", "c1", "Process", "구매 요청 프로세스는 부서별 요청을 취합한다", "구매 요청 프로세스"))
	require.NoError(t, err)
	require.Equal(t, model.DecisionAmbiguous, amb.Decision)

	out, err := e.ApplyAnswer(ctx, amb.AmbiguityID, seed.TargetEntityID)
	require.NoError(t, err)
	assert.Equal(t, model.DecisionMerge, out.Decision)
	assert.Equal(t, seed.TargetEntityID, out.TargetEntityID)

	// The pending fragment lands on the chosen entity.
	frags, err := s.ListFragments(ctx, seed.TargetEntityID)
	require.NoError(t, err)
	assert.Len(t, frags, 2)

	// A second answer is rejected.
	_, err = e.ApplyAnswer(ctx, amb.AmbiguityID, model.NewMarker)
	assert.ErrorIs(t, err, model.ErrAlreadyResolved)
}

func TestApplyAnswerNewCreatesEntity(t *testing.T) {
	s := store.NewMemoryStore()
	emb := &MockEmbedder{ResponseQueue: [][]float32{
		{1, 0, 0},
		{0.85, 0.5268, 0},
	}}
	e := newTestEngine(s, emb)
	ctx := context.Background()

	_, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-a", "c1", "Process", "구매 승인 프로세스는 발주 요청을 처리한다", "구매 승인 프로세스"))
	require.NoError(t, err)

	amb, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-c", "c1", "Process", "구매 요청 프로세스는 부서별 요청을 취합한다", "구매 요청 프로세스"))
	require.NoError(t, err)
	require.Equal(t, model.DecisionAmbiguous, amb.Decision)

	out, err := e.ApplyAnswer(ctx, amb.AmbiguityID, "NEW")
	require.NoError(t, err)
	assert.Equal(t, model.DecisionNew, out.Decision)

	entities, err := s.ListEntities(ctx, model.TypeProcess)
	require.NoError(t, err)
	assert.Len(t, entities, 2)
}

func TestConcurrentAnswersResolveOnce(t *testing.T) {
	s := store.NewMemoryStore()
	emb := &MockEmbedder{ResponseQueue: [][]float32{
		{1, 0, 0},
		{0.85, 0.5268, 0},
	}}
	e := newTestEngine(s, emb)
	ctx := context.Background()

	seed, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-a", "c1", "Process", "구매 승인 프로세스는 발주 요청을 처리한다", "구매 승인 프로세스"))
	require.NoError(t, err)
	amb, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-c", "c1", "Process", "구매 요청 프로세스는 부서별 요청을 취합한다", "구매 요청 프로세스"))
	require.NoError(t, err)
	require.Equal(t, model.DecisionAmbiguous, amb.Decision)

	// Two reviewers answer at the same time with different choices. Exactly
	// one lands; the other sees the resolved record and leaves no trace.
	var wg sync.WaitGroup
	var newErr, mergeErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, newErr = e.ApplyAnswer(ctx, amb.AmbiguityID, model.NewMarker)
	}()
	go func() {
		defer wg.Done()
		_, mergeErr = e.ApplyAnswer(ctx, amb.AmbiguityID, seed.TargetEntityID)
	}()
	wg.Wait()

	require.NotEqual(t, newErr == nil, mergeErr == nil)
	entities, err := s.ListEntities(ctx, model.TypeProcess)
	require.NoError(t, err)
	frags, err := s.ListFragments(ctx, seed.TargetEntityID)
	require.NoError(t, err)
	if newErr == nil {
		assert.ErrorIs(t, mergeErr, model.ErrAlreadyResolved)
		assert.Len(t, entities, 2)
		assert.Len(t, frags, 1)
	} else {
		assert.ErrorIs(t, newErr, model.ErrAlreadyResolved)
		assert.Len(t, entities, 1)
		assert.Len(t, frags, 2)
	}
}

func TestApplyAnswerRejectsUnlistedEntity(t *testing.T) {
	s := store.NewMemoryStore()
	emb := &MockEmbedder{ResponseQueue: [][]float32{
		{1, 0, 0},
		{0.85, 0.5268, 0},
	}}
	e := newTestEngine(s, emb)
	ctx := context.Background()

	_, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-a", "c1", "Process", "구매 승인 프로세스는 발주 요청을 처리한다", "구매 승인 프로세스"))
	require.NoError(t, err)
	amb, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-c", "c1", "Process", "구매 요청 프로세스는 부서별 요청을 취합한다", "구매 요청 프로세스"))
	require.NoError(t, err)
	require.Equal(t, model.DecisionAmbiguous, amb.Decision)

	_, err = e.ApplyAnswer(ctx, amb.AmbiguityID, "some-random-id")
	assert.ErrorIs(t, err, model.ErrInvalidCandidate)
}

func TestResolveConflictClosesRecord(t *testing.T) {
	base := store.NewMemoryStore()
	flaky := &flakyStore{MemoryStore: base, conflicts: 100}
	e := newTestEngine(flaky, nil)
	ctx := context.Background()

	out, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-a", "c1", "Task", "Review the invoice", "Invoice Review"))
	require.NoError(t, err)
	require.Equal(t, model.DecisionConflict, out.Decision)

	require.NoError(t, e.ResolveConflict(ctx, out.ConflictID, "ignored, duplicate submission"))
	err = e.ResolveConflict(ctx, out.ConflictID, "again")
	assert.ErrorIs(t, err, model.ErrAlreadyResolved)
}

func TestSynthesizeDefinitionUsesFragments(t *testing.T) {
	s := store.NewMemoryStore()
	gen := &MockGenerator{Response: "하나로 합친 정의"}
	e := NewEngine(config.Default(), s, &MockEmbedder{DefaultVector: []float32{1, 0, 0}}, gen, logger.Nop())
	ctx := context.Background()

	out, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-a", "c1", "Process", "구매 승인 프로세스는 발주 요청을 처리한다", "구매 승인 프로세스"))
	require.NoError(t, err)

	text, err := e.SynthesizeDefinition(ctx, out.TargetEntityID)
	require.NoError(t, err)
	assert.Equal(t, "하나로 합친 정의", text)
	assert.Contains(t, gen.LastPrompt, "구매 승인 프로세스는 발주 요청을 처리한다")
}

func TestSynthesizeDefinitionOrdersOverviewFirst(t *testing.T) {
	s := store.NewMemoryStore()
	gen := &MockGenerator{Response: "하나로 합친 정의"}
	e := NewEngine(config.Default(), s, &MockEmbedder{DefaultVector: []float32{1, 0, 0}}, gen, logger.Nop())
	ctx := context.Background()

	detail := "승인 단계는 부서장 결재로 이루어진다"
	overview := "개요: 구매 승인 프로세스는 발주 요청을 처리한다"

	first, err := e.ProcessCandidate(ctx, rawCandidate("doc-a", "c1", "Process", detail, "구매 승인 프로세스"))
	require.NoError(t, err)
	_, err = e.ProcessCandidate(ctx, rawCandidate("doc-b", "c1", "Process", overview, "구매 승인 프로세스"))
	require.NoError(t, err)

	_, err = e.SynthesizeDefinition(ctx, first.TargetEntityID)
	require.NoError(t, err)

	// The overview committed second but renders first.
	oi := strings.Index(gen.LastPrompt, overview)
	di := strings.Index(gen.LastPrompt, detail)
	require.GreaterOrEqual(t, oi, 0)
	require.GreaterOrEqual(t, di, 0)
	assert.Less(t, oi, di)
}

func TestSupersededEntityLeavesResolutionScope(t *testing.T) {
	s := store.NewMemoryStore()
	emb := &MockEmbedder{ResponseQueue: [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{1, 0, 0},
	}}
	e := newTestEngine(s, emb)
	ctx := context.Background()

	old, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-a", "c1", "Role", "구매 담당자", "구매 담당자"))
	require.NoError(t, err)
	repl, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-a", "c2", "Role", "구매 관리자", "구매 관리자"))
	require.NoError(t, err)

	require.NoError(t, e.Supersede(ctx, old.TargetEntityID, repl.TargetEntityID))

	node, err := s.GetEntity(ctx, old.TargetEntityID)
	require.NoError(t, err)
	assert.True(t, node.Superseded)
	assert.Equal(t, repl.TargetEntityID, node.SupersededBy)

	// The old wording no longer merges into the superseded record.
	out, err := e.ProcessCandidate(ctx,
		rawCandidate("doc-b", "c1", "Role", "구매 담당자", "구매 담당자"))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionNew, out.Decision)
	assert.NotEqual(t, old.TargetEntityID, out.TargetEntityID)

	err = e.Supersede(ctx, out.TargetEntityID, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

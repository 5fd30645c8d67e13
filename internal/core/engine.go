// Package core wires the resolution pipeline together: normalize, embed,
// resolve, decide, apply. One Engine serves all candidate traffic; it is safe
// for concurrent use.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agenthands/procgraph/internal/config"
	"github.com/agenthands/procgraph/internal/core/decision"
	"github.com/agenthands/procgraph/internal/core/fragment"
	"github.com/agenthands/procgraph/internal/core/ledger"
	"github.com/agenthands/procgraph/internal/core/model"
	"github.com/agenthands/procgraph/internal/core/normalize"
	"github.com/agenthands/procgraph/internal/core/queue"
	"github.com/agenthands/procgraph/internal/core/resolve"
	"github.com/agenthands/procgraph/internal/embedder"
	"github.com/agenthands/procgraph/internal/logger"
	"github.com/agenthands/procgraph/internal/metrics"
	"github.com/agenthands/procgraph/internal/store"
)

type Engine struct {
	store      store.GraphStore
	embedder   embedder.Client
	generator  embedder.Generator
	resolver   *resolve.Resolver
	classifier *fragment.Classifier
	queue      *queue.Queue
	policy     decision.Policy
	maxRetries int
	locks      lockTable
	log        *logger.Logger
}

func NewEngine(cfg *config.Config, s store.GraphStore, emb embedder.Client, gen embedder.Generator, log *logger.Logger) *Engine {
	return &Engine{
		store:      s,
		embedder:   emb,
		generator:  gen,
		resolver:   resolve.New(s, cfg.Resolution.TopK),
		classifier: fragment.NewClassifier(cfg.Fragments),
		queue:      queue.New(s, log),
		policy:     decision.PolicyFromConfig(cfg.Resolution),
		maxRetries: cfg.Concurrency.MaxUpsertRetries,
		log:        log.With("component", "Engine"),
	}
}

// ProcessCandidate runs one full resolution cycle for a raw extraction and
// returns the applied outcome. Redelivered chunks return the originally
// recorded outcome without touching the graph.
func (e *Engine) ProcessCandidate(ctx context.Context, raw model.RawExtraction) (*model.MergeOutcome, error) {
	cand, err := normalize.Normalize(raw)
	if err != nil {
		return nil, err
	}

	e.embed(ctx, &cand)

	// Same-alias candidates serialize here so concurrent duplicates cannot
	// both decide NEW.
	unlock := e.locks.lock(string(cand.Type) + "\x00" + cand.AliasCode)
	defer unlock()

	for attempt := 0; ; attempt++ {
		matches, err := e.resolver.Resolve(ctx, cand)
		if err != nil {
			return nil, err
		}
		res := decision.Decide(matches, e.policy)

		outcome, err := e.apply(ctx, cand, res)
		if errors.Is(err, model.ErrVersionConflict) {
			metrics.UpsertRetries.Inc()
			if attempt < e.maxRetries {
				e.log.Debug("version conflict, re-resolving", "alias", cand.AliasCode, "attempt", attempt+1)
				continue
			}
			return e.escalateContention(ctx, cand, res)
		}
		if err != nil {
			return nil, err
		}
		return outcome, nil
	}
}

// embed fills in the candidate vector. A candidate that arrives with its own
// embedding keeps it. When the service is down past its retry budget the
// candidate continues alias-only, flagged low confidence.
func (e *Engine) embed(ctx context.Context, cand *model.Candidate) {
	if len(cand.Embedding) > 0 {
		return
	}
	if e.embedder == nil {
		cand.LowConfidence = true
		return
	}
	vec, err := e.embedder.Embed(ctx, cand.NormalizedText)
	if err != nil {
		metrics.EmbedderDegradations.Inc()
		e.log.Warn("embedding failed, degrading to alias-only", "alias", cand.AliasCode, "error", err)
		cand.LowConfidence = true
		return
	}
	cand.Embedding = vec
}

func (e *Engine) apply(ctx context.Context, cand model.Candidate, res decision.Result) (*model.MergeOutcome, error) {
	switch res.Decision {
	case model.DecisionMerge:
		return e.applyMerge(ctx, cand, res.TargetID)
	case model.DecisionNew:
		return e.applyNew(ctx, cand)
	case model.DecisionAmbiguous:
		return e.applyAmbiguous(ctx, cand, res)
	default:
		return nil, fmt.Errorf("unexpected decision %q", res.Decision)
	}
}

func (e *Engine) applyMerge(ctx context.Context, cand model.Candidate, targetID string) (*model.MergeOutcome, error) {
	key := model.IdempotencyKey(cand.Source, cand.NormalizedText, targetID)
	if prior := e.replay(ctx, key); prior != nil {
		return prior, nil
	}
	// A redelivered chunk that created this entity now resolves as a merge
	// into it; the original NEW outcome still answers it.
	if prior := e.replay(ctx, model.IdempotencyKey(cand.Source, cand.NormalizedText, "")); prior != nil && prior.TargetEntityID == targetID {
		return prior, nil
	}

	node, err := e.store.GetEntity(ctx, targetID)
	if err != nil {
		return nil, err
	}

	rel, conflictOutcome, err := e.checkAssertion(ctx, cand, node)
	if err != nil {
		return nil, err
	}
	if conflictOutcome != nil {
		return e.record(ctx, key, conflictOutcome)
	}

	now := time.Now().UTC()
	mut := &model.Mutation{
		TargetID:        targetID,
		ExpectedVersion: node.Version,
		NewRelationship: rel,
	}
	if !node.Aliases.Contains(cand.Alias) {
		mut.AddAliases = []string{cand.Alias}
	}
	if len(cand.Embedding) > 0 {
		node.UpdateCentroid(cand.Embedding)
	}
	mut.Centroid = node.Centroid
	mut.CentroidCount = node.CentroidCount

	frag := e.classifier.Build(uuid.New().String(), targetID, cand, now)
	existing, err := e.store.FragmentByHash(ctx, targetID, frag.TextHash)
	switch {
	case err == nil:
		// Same wording seen before: no new fragment, the fresh evidence
		// still links to the one already on the node.
		metrics.DuplicateFragments.Inc()
		frag = nil
	case errors.Is(err, model.ErrNotFound):
		mut.NewFragment = frag
	default:
		return nil, err
	}

	ledger.Attach(mut, cand.Source, now)
	if existing != nil {
		mut.EvidenceLinks = append(mut.EvidenceLinks, model.EvidenceLink{
			AssertionID: existing.ID,
			EvidenceID:  mut.NewEvidence.ID,
		})
	}

	if err := e.store.CommitMutation(ctx, mut); err != nil {
		return nil, err
	}
	metrics.Decisions.WithLabelValues(string(model.DecisionMerge), string(cand.Type)).Inc()
	e.log.Info("merged candidate", "entity", targetID, "alias", cand.AliasCode)

	out := &model.MergeOutcome{
		Key:            key,
		Candidate:      cand,
		Decision:       model.DecisionMerge,
		TargetEntityID: targetID,
		EvidenceID:     mut.NewEvidence.ID,
		AppliedAt:      now,
	}
	if mut.NewFragment != nil {
		out.FragmentID = mut.NewFragment.ID
	} else if existing != nil {
		out.FragmentID = existing.ID
	}
	return e.record(ctx, key, out)
}

func (e *Engine) applyNew(ctx context.Context, cand model.Candidate) (*model.MergeOutcome, error) {
	key := model.IdempotencyKey(cand.Source, cand.NormalizedText, "")
	if prior := e.replay(ctx, key); prior != nil {
		return prior, nil
	}

	now := time.Now().UTC()
	node := model.NewEntityNode(uuid.New().String(), cand.Type, cand.Alias, model.CreatedByAgent, now)
	node.UpdateCentroid(cand.Embedding)

	rel, conflictOutcome, err := e.checkAssertion(ctx, cand, node)
	if err != nil {
		return nil, err
	}
	if conflictOutcome != nil {
		return e.record(ctx, key, conflictOutcome)
	}

	mut := &model.Mutation{
		NewEntity:       node,
		NewFragment:     e.classifier.Build(uuid.New().String(), node.ID, cand, now),
		NewRelationship: rel,
	}
	ledger.Attach(mut, cand.Source, now)

	if err := e.store.CommitMutation(ctx, mut); err != nil {
		return nil, err
	}
	metrics.Decisions.WithLabelValues(string(model.DecisionNew), string(cand.Type)).Inc()
	e.log.Info("created entity", "entity", node.ID, "type", cand.Type, "name", node.Name)

	out := &model.MergeOutcome{
		Key:            key,
		Candidate:      cand,
		Decision:       model.DecisionNew,
		TargetEntityID: node.ID,
		FragmentID:     mut.NewFragment.ID,
		EvidenceID:     mut.NewEvidence.ID,
		AppliedAt:      now,
	}
	return e.record(ctx, key, out)
}

func (e *Engine) applyAmbiguous(ctx context.Context, cand model.Candidate, res decision.Result) (*model.MergeOutcome, error) {
	// Escalations key separately from applied outcomes: answering the
	// ambiguity later applies the candidate under its own key.
	key := model.IdempotencyKey(cand.Source, cand.NormalizedText, string(model.DecisionAmbiguous))
	if prior := e.replay(ctx, key); prior != nil {
		return prior, nil
	}

	amb, err := e.queue.OpenAmbiguity(ctx, cand, res.Options, res.Reason)
	if err != nil {
		return nil, err
	}
	metrics.Decisions.WithLabelValues(string(model.DecisionAmbiguous), string(cand.Type)).Inc()

	out := &model.MergeOutcome{
		Key:         key,
		Candidate:   cand,
		Decision:    model.DecisionAmbiguous,
		AmbiguityID: amb.ID,
		AppliedAt:   time.Now().UTC(),
	}
	return e.record(ctx, key, out)
}

// checkAssertion resolves a candidate's relation assertion against the graph.
// It returns the relationship to write, or a recorded conflict outcome when
// the assertion contradicts an existing exclusive relationship.
func (e *Engine) checkAssertion(ctx context.Context, cand model.Candidate, source *model.EntityNode) (*model.Relationship, *model.MergeOutcome, error) {
	if cand.Assertion == nil {
		return nil, nil, nil
	}
	a := cand.Assertion

	targetType, ok := model.ParseEntityType(a.TargetType)
	if !ok {
		return nil, nil, fmt.Errorf("%w: assertion target type %q", model.ErrInvalidCandidate, a.TargetType)
	}
	if !model.AllowsRelationship(a.Kind, source.Type, targetType) {
		return nil, nil, fmt.Errorf("%w: %s cannot link %s to %s", model.ErrInvalidCandidate, a.Kind, source.Type, targetType)
	}

	targets, err := e.store.FindByAlias(ctx, targetType, a.TargetName)
	if err != nil {
		return nil, nil, err
	}
	if len(targets) == 0 {
		// Forward reference: the target has not been extracted yet. The
		// assertion is dropped for this cycle; a later chunk introducing the
		// target re-asserts it.
		e.log.Debug("assertion target unknown, skipping", "kind", a.Kind, "target", a.TargetName)
		return nil, nil, nil
	}
	target := targets[0]

	existing, err := e.store.ListRelationships(ctx, source.ID, a.Kind)
	if err != nil {
		return nil, nil, err
	}
	for _, r := range existing {
		if r.TargetID == target.ID {
			return nil, nil, nil // already asserted
		}
		if model.IsExclusive(a.Kind) {
			desc := fmt.Sprintf("%s %q already has %s to %s; candidate asserts %s",
				source.Type, source.Name, a.Kind, r.TargetID, target.ID)
			c, err := e.queue.OpenConflict(ctx, &cand, desc, []string{source.ID, r.ID, target.ID})
			if err != nil {
				return nil, nil, err
			}
			metrics.Decisions.WithLabelValues(string(model.DecisionConflict), string(cand.Type)).Inc()
			e.log.Warn("contradictory assertion escalated", "conflict", c.ID, "kind", a.Kind)
			key := model.IdempotencyKey(cand.Source, cand.NormalizedText, source.ID)
			return nil, &model.MergeOutcome{
				Key:        key,
				Candidate:  cand,
				Decision:   model.DecisionConflict,
				ConflictID: c.ID,
				AppliedAt:  time.Now().UTC(),
			}, nil
		}
	}

	return &model.Relationship{
		ID:        uuid.New().String(),
		Kind:      a.Kind,
		SourceID:  source.ID,
		TargetID:  target.ID,
		CreatedAt: time.Now().UTC(),
	}, nil, nil
}

// escalateContention records a CONFLICT after the optimistic retry budget is
// spent. The candidate is preserved in the review record, nothing is lost.
func (e *Engine) escalateContention(ctx context.Context, cand model.Candidate, res decision.Result) (*model.MergeOutcome, error) {
	desc := fmt.Sprintf("upsert contention on %s after %d retries", res.TargetID, e.maxRetries)
	c, err := e.queue.OpenConflict(ctx, &cand, desc, []string{res.TargetID})
	if err != nil {
		return nil, err
	}
	metrics.Decisions.WithLabelValues(string(model.DecisionConflict), string(cand.Type)).Inc()

	key := model.IdempotencyKey(cand.Source, cand.NormalizedText, res.TargetID)
	out := &model.MergeOutcome{
		Key:        key,
		Candidate:  cand,
		Decision:   model.DecisionConflict,
		ConflictID: c.ID,
		AppliedAt:  time.Now().UTC(),
	}
	return e.record(ctx, key, out)
}

func (e *Engine) replay(ctx context.Context, key string) *model.MergeOutcome {
	prior, err := e.store.GetOutcome(ctx, key)
	if err != nil {
		return nil
	}
	metrics.OutcomeReplays.Inc()
	e.log.Debug("outcome replayed", "key", key, "decision", prior.Decision)
	return prior
}

func (e *Engine) record(ctx context.Context, key string, out *model.MergeOutcome) (*model.MergeOutcome, error) {
	out.Key = key
	if err := e.store.RecordOutcome(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- review resolution ---

// ApplyAnswer settles an open ambiguity. The answer is either an entity id
// from the recorded options or "NEW". The snapshotted candidate is then
// applied with the forced decision, and the record transitions to resolved.
// Work submitted after the ambiguity opened is unaffected; only the pending
// candidate is promoted.
func (e *Engine) ApplyAnswer(ctx context.Context, ambiguityID, answer string) (*model.MergeOutcome, error) {
	// Concurrent answers to the same ambiguity serialize here, so only the
	// first reaches the graph; the loser reads the resolved status below.
	unlock := e.locks.lock("ambiguity\x00" + ambiguityID)
	defer unlock()

	amb, err := e.store.GetAmbiguity(ctx, ambiguityID)
	if err != nil {
		return nil, err
	}
	if amb.Status != model.StatusOpen {
		return nil, model.ErrAlreadyResolved
	}

	answer = strings.TrimSpace(answer)
	cand := amb.Candidate
	var out *model.MergeOutcome

	if strings.EqualFold(answer, model.NewMarker) {
		out, err = e.applyNew(ctx, cand)
	} else {
		if !optionListed(amb.Options, answer) {
			return nil, fmt.Errorf("%w: answer %q is not among the recorded options", model.ErrInvalidCandidate, answer)
		}
		out, err = e.mergeWithRetry(ctx, cand, answer)
	}
	if err != nil {
		return nil, err
	}

	if err := e.queue.MarkAmbiguityResolved(ctx, ambiguityID, answer); err != nil {
		return nil, err
	}
	e.log.Info("ambiguity resolved", "id", ambiguityID, "answer", answer, "decision", out.Decision)
	return out, nil
}

// ResolveConflict closes a conflict record with a free-text resolution note.
// Graph repairs, if any, are made by the reviewer through the normal write
// paths; closing the record never mutates entities.
func (e *Engine) ResolveConflict(ctx context.Context, conflictID, resolution string) error {
	if err := e.queue.MarkConflictResolved(ctx, conflictID, resolution); err != nil {
		return err
	}
	e.log.Info("conflict resolved", "id", conflictID)
	return nil
}

// Supersede marks an entity as replaced by another. The record stays in the
// graph for provenance; alias and vector lookups skip it from then on.
func (e *Engine) Supersede(ctx context.Context, id, byID string) error {
	if _, err := e.store.GetEntity(ctx, byID); err != nil {
		return fmt.Errorf("superseding entity: %w", err)
	}
	if err := e.store.SupersedeEntity(ctx, id, byID); err != nil {
		return err
	}
	e.log.Info("entity superseded", "entity", id, "by", byID)
	return nil
}

func (e *Engine) mergeWithRetry(ctx context.Context, cand model.Candidate, targetID string) (*model.MergeOutcome, error) {
	for attempt := 0; ; attempt++ {
		out, err := e.applyMerge(ctx, cand, targetID)
		if errors.Is(err, model.ErrVersionConflict) && attempt < e.maxRetries {
			metrics.UpsertRetries.Inc()
			continue
		}
		return out, err
	}
}

func optionListed(options []model.ScoredOption, entityID string) bool {
	for _, o := range options {
		if o.EntityID == entityID {
			return true
		}
	}
	return false
}

// --- reads ---

func (e *Engine) Entity(ctx context.Context, id string) (*model.EntityNode, error) {
	return e.store.GetEntity(ctx, id)
}

func (e *Engine) Entities(ctx context.Context, t model.EntityType) ([]*model.EntityNode, error) {
	return e.store.ListEntities(ctx, t)
}

func (e *Engine) Fragments(ctx context.Context, entityID string) ([]*model.DefinitionFragment, error) {
	return e.store.ListFragments(ctx, entityID)
}

func (e *Engine) Evidence(ctx context.Context, assertionID string) ([]string, error) {
	return e.store.EvidenceFor(ctx, assertionID)
}

func (e *Engine) OpenAmbiguities(ctx context.Context) ([]*model.Ambiguity, error) {
	return e.queue.OpenAmbiguities(ctx)
}

func (e *Engine) OpenConflicts(ctx context.Context) ([]*model.Conflict, error) {
	return e.queue.OpenConflicts(ctx)
}

// Package queue manages the human review queue. Escalation never blocks the
// pipeline: a record is written and the candidate's cycle ends; resolution
// arrives later through the review API.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agenthands/procgraph/internal/core/model"
	"github.com/agenthands/procgraph/internal/logger"
	"github.com/agenthands/procgraph/internal/metrics"
	"github.com/agenthands/procgraph/internal/store"
)

type Queue struct {
	store store.GraphStore
	log   *logger.Logger
}

func New(s store.GraphStore, log *logger.Logger) *Queue {
	return &Queue{store: s, log: log.With("component", "ReviewQueue")}
}

// OpenAmbiguity records an unresolved match for a human to settle. The full
// candidate is snapshotted so the answer can be applied long after the
// original submission is gone.
func (q *Queue) OpenAmbiguity(ctx context.Context, cand model.Candidate, options []model.ScoredOption, reason string) (*model.Ambiguity, error) {
	amb := &model.Ambiguity{
		ID:        uuid.New().String(),
		Question:  question(cand, reason),
		Options:   options,
		Status:    model.StatusOpen,
		Candidate: cand,
		CreatedAt: time.Now().UTC(),
	}
	if err := q.store.CreateAmbiguity(ctx, amb); err != nil {
		return nil, err
	}
	metrics.OpenReviews.WithLabelValues("ambiguity").Inc()
	q.log.Info("ambiguity opened", "id", amb.ID, "type", cand.Type, "options", len(options))
	return amb, nil
}

// OpenConflict records a contradiction. Involved lists the entity and
// relationship ids a reviewer needs to look at.
func (q *Queue) OpenConflict(ctx context.Context, cand *model.Candidate, description string, involved []string) (*model.Conflict, error) {
	c := &model.Conflict{
		ID:          uuid.New().String(),
		Description: description,
		Involved:    involved,
		Status:      model.StatusOpen,
		Candidate:   cand,
		CreatedAt:   time.Now().UTC(),
	}
	if err := q.store.CreateConflict(ctx, c); err != nil {
		return nil, err
	}
	metrics.OpenReviews.WithLabelValues("conflict").Inc()
	q.log.Warn("conflict opened", "id", c.ID, "description", description)
	return c, nil
}

func (q *Queue) OpenAmbiguities(ctx context.Context) ([]*model.Ambiguity, error) {
	return q.store.ListOpenAmbiguities(ctx)
}

func (q *Queue) OpenConflicts(ctx context.Context) ([]*model.Conflict, error) {
	return q.store.ListOpenConflicts(ctx)
}

// MarkAmbiguityResolved transitions the record and keeps the gauge honest.
// The store rejects a second resolution with ErrAlreadyResolved.
func (q *Queue) MarkAmbiguityResolved(ctx context.Context, id, answer string) error {
	if err := q.store.ResolveAmbiguity(ctx, id, answer); err != nil {
		return err
	}
	metrics.OpenReviews.WithLabelValues("ambiguity").Dec()
	return nil
}

func (q *Queue) MarkConflictResolved(ctx context.Context, id, resolution string) error {
	if err := q.store.ResolveConflict(ctx, id, resolution); err != nil {
		return err
	}
	metrics.OpenReviews.WithLabelValues("conflict").Dec()
	return nil
}

func question(cand model.Candidate, reason string) string {
	return fmt.Sprintf("Does this %s description refer to an existing entity? %q (%s)",
		cand.Type, cand.NormalizedText, reason)
}

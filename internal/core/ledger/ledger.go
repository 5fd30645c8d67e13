// Package ledger builds the evidence side of a mutation. Evidence is append
// only: a chunk reference becomes an Evidence node once and every assertion
// written in the same mutation links back to it.
package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/agenthands/procgraph/internal/core/model"
)

// Attach adds evidence from the candidate's source chunk to the mutation and
// links every assertion the mutation carries to it. Called last, after all
// fragments and relationships are staged.
func Attach(mut *model.Mutation, source model.ChunkRef, now time.Time) {
	ev := model.EvidenceFromChunk(uuid.New().String(), source, now)
	mut.NewEvidence = ev
	for _, assertion := range mut.Assertions() {
		mut.EvidenceLinks = append(mut.EvidenceLinks, model.EvidenceLink{
			AssertionID: assertion,
			EvidenceID:  ev.ID,
		})
	}
}

// Verify checks the coverage invariant without committing: every assertion in
// the mutation must be linked to at least one evidence record.
func Verify(mut *model.Mutation) error {
	linked := make(map[string]bool, len(mut.EvidenceLinks))
	for _, l := range mut.EvidenceLinks {
		linked[l.AssertionID] = true
	}
	for _, assertion := range mut.Assertions() {
		if !linked[assertion] {
			return &model.MissingEvidenceError{AssertionID: assertion}
		}
	}
	return nil
}

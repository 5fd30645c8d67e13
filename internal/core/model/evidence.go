package model

import "time"

// Evidence is an immutable pointer to the source span backing an assertion.
// Every committed fragment and relationship holds at least one evidence
// reference; a zero-evidence assertion is a programming error, not data.
type Evidence struct {
	ID        string    `json:"evidence_id"`
	DocID     string    `json:"doc_id"`
	ChunkID   string    `json:"chunk_id"`
	Page      int       `json:"page"`
	Span      string    `json:"span"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// EvidenceFromChunk derives an evidence record from a candidate's source ref.
func EvidenceFromChunk(id string, ref ChunkRef, now time.Time) *Evidence {
	return &Evidence{
		ID:        id,
		DocID:     ref.DocID,
		ChunkID:   ref.ChunkID,
		Page:      ref.Page,
		Span:      ref.Span,
		Text:      ref.Text,
		CreatedAt: now,
	}
}

// EvidenceLink ties an assertion (fragment or relationship id) to one
// evidence record in the append-only ledger.
type EvidenceLink struct {
	AssertionID string `json:"assertion_id"`
	EvidenceID  string `json:"evidence_id"`
}

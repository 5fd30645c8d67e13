package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Decision is the outcome class of one resolution cycle.
type Decision string

const (
	DecisionMerge     Decision = "MERGE"
	DecisionNew       Decision = "NEW"
	DecisionAmbiguous Decision = "AMBIGUOUS"
	DecisionConflict  Decision = "CONFLICT"
)

// NewMarker stands in for the entity id in idempotency keys of NEW decisions.
const NewMarker = "NEW"

// IdempotencyKey derives the replay key for an applied outcome. Redelivery of
// the same chunk resolves deterministically to the same key, which turns
// at-least-once delivery into an effective exactly-once apply.
func IdempotencyKey(ref ChunkRef, normalizedText, target string) string {
	if target == "" {
		target = NewMarker
	}
	sum := sha256.Sum256([]byte(ref.DocID + "\x00" + ref.ChunkID + "\x00" + normalizedText + "\x00" + target))
	return hex.EncodeToString(sum[:])
}

// MergeOutcome is the audit record of one applied decision. Downstream
// consumers never read these; they exist for replay detection and tracing.
type MergeOutcome struct {
	Key            string    `json:"key"`
	Candidate      Candidate `json:"candidate"`
	Decision       Decision  `json:"decision"`
	TargetEntityID string    `json:"target_entity_id,omitempty"`
	AmbiguityID    string    `json:"ambiguity_id,omitempty"`
	ConflictID     string    `json:"conflict_id,omitempty"`
	FragmentID     string    `json:"fragment_id,omitempty"`
	EvidenceID     string    `json:"evidence_id,omitempty"`
	AppliedAt      time.Time `json:"applied_at"`
}

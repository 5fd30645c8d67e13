package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type FragmentKind string

const (
	KindOverview  FragmentKind = "overview"
	KindDetail    FragmentKind = "detail"
	KindException FragmentKind = "exception"
	KindNote      FragmentKind = "note"
)

// DefinitionFragment is one immutable piece of an entity's accumulated
// definition. Fragments are only ever appended; Seq records insertion order
// per entity. Duplicate text (same TextHash for the same entity) never
// produces a second fragment, only an additional evidence link.
type DefinitionFragment struct {
	ID         string       `json:"fragment_id"`
	EntityID   string       `json:"entity_id"`
	Kind       FragmentKind `json:"kind"`
	Text       string       `json:"text"`
	TextHash   string       `json:"text_hash"`
	Confidence float64      `json:"confidence"`
	Seq        int          `json:"seq"`
	CreatedAt  time.Time    `json:"created_at"`
}

// TextHash returns the canonical hash used for fragment deduplication.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

package model

// ChunkRef points a candidate back to the source chunk it was extracted from.
// The chunk id is stable across redeliveries, which is what makes at-least-once
// submission safe to replay.
type ChunkRef struct {
	DocID   string `json:"doc_id"`
	ChunkID string `json:"chunk_id"`
	Page    int    `json:"page"`
	Span    string `json:"span"`
	Text    string `json:"text"`
}

// RelationAssertion is an optional fact a candidate carries alongside its
// definitional text, e.g. a task naming its performing role. The target is
// referenced by name and resolved against the alias index at apply time.
type RelationAssertion struct {
	Kind       RelKind `json:"kind"`
	TargetType string  `json:"target_type"`
	TargetName string  `json:"target_name"`
}

// RawExtraction is the upstream classifier's output as delivered, before any
// validation. Delivery is at-least-once and may be out of order across
// documents.
type RawExtraction struct {
	Type      string             `json:"type"`
	Text      string             `json:"text"`
	Alias     string             `json:"alias,omitempty"`
	Source    ChunkRef           `json:"source"`
	Embedding []float32          `json:"embedding,omitempty"`
	Assertion *RelationAssertion `json:"assertion,omitempty"`
}

// Candidate is a normalized extraction awaiting resolution. It lives for one
// resolution cycle; nothing holds a Candidate after its outcome is recorded.
type Candidate struct {
	Type           EntityType         `json:"type"`
	NormalizedText string             `json:"normalized_text"`
	Alias          string             `json:"alias,omitempty"`
	AliasCode      string             `json:"alias_code,omitempty"`
	Embedding      []float32          `json:"embedding,omitempty"`
	Source         ChunkRef           `json:"source"`
	Assertion      *RelationAssertion `json:"assertion,omitempty"`

	// LowConfidence marks candidates resolved without a vector (embedding
	// service exhausted its retries); the resolver falls back to alias-only
	// matching for them.
	LowConfidence bool `json:"low_confidence,omitempty"`
}

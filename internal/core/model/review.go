package model

import "time"

type ReviewStatus string

const (
	StatusOpen     ReviewStatus = "open"
	StatusResolved ReviewStatus = "resolved"
)

// ScoredOption is one plausible merge target offered to the reviewer.
type ScoredOption struct {
	EntityID string  `json:"entity_id"`
	Name     string  `json:"name,omitempty"`
	Score    float64 `json:"score"`
}

// Ambiguity is an open question the decision engine could not settle on its
// own. It snapshots the candidate so that applying the answer can replay the
// upsert with a now-disambiguated target. The only transition is
// open -> resolved, exactly once.
type Ambiguity struct {
	ID         string         `json:"ambiguity_id"`
	Question   string         `json:"question"`
	Options    []ScoredOption `json:"candidate_options"`
	Status     ReviewStatus   `json:"status"`
	Candidate  Candidate      `json:"created_from"`
	Answer     string         `json:"answer,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}

// Conflict records two committed assertions about one entity that cannot both
// be true. Neither side is dropped; the conflict references both and waits
// for a human resolution. Conflicts are also used to park candidates whose
// store writes exhausted their retries, preserving the evidence.
type Conflict struct {
	ID          string       `json:"conflict_id"`
	Description string       `json:"description"`
	Involved    []string     `json:"involved"`
	Status      ReviewStatus `json:"status"`
	Candidate   *Candidate   `json:"created_from,omitempty"`
	Resolution  string       `json:"resolution,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	ResolvedAt  *time.Time   `json:"resolved_at,omitempty"`
}

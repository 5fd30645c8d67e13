// Package fragment classifies and builds definition fragments. Definitions
// are never merged into one blob: each contribution stays a separate fragment
// in arrival order, deduplicated by text hash.
package fragment

import (
	"strings"
	"time"

	"github.com/agenthands/procgraph/internal/config"
	"github.com/agenthands/procgraph/internal/core/model"
)

// Classifier assigns a fragment kind from lexical markers. Markers come from
// config so corpora in other languages can extend them without a rebuild.
type Classifier struct {
	overview  []string
	exception []string
	note      []string
}

func NewClassifier(cfg config.FragmentConfig) *Classifier {
	return &Classifier{
		overview:  fold(cfg.OverviewMarkers),
		exception: fold(cfg.ExceptionMarkers),
		note:      fold(cfg.NoteMarkers),
	}
}

// Classify picks the fragment kind for a piece of definition text. Exception
// markers win over note markers, notes over overview; anything unmarked is a
// detail. Overview markers only count near the start of the text, where
// section headers live.
func (c *Classifier) Classify(text string) model.FragmentKind {
	folded := strings.ToLower(text)

	if containsAny(folded, c.exception) {
		return model.KindException
	}
	if containsAny(folded, c.note) {
		return model.KindNote
	}

	// The window is measured in runes, not bytes, so multi-byte scripts get
	// the same reach as ASCII and markers are never split mid-character.
	head := folded
	runes := 0
	for i := range head {
		if runes == 48 {
			head = head[:i]
			break
		}
		runes++
	}
	if containsAny(head, c.overview) {
		return model.KindOverview
	}
	return model.KindDetail
}

// Build produces a fragment for a candidate's text, classified and hashed.
// Seq is left zero; the store assigns it at append time so ordering reflects
// commit order, not build order.
func (c *Classifier) Build(id string, entityID string, cand model.Candidate, now time.Time) *model.DefinitionFragment {
	confidence := 1.0
	if cand.LowConfidence {
		confidence = 0.5
	}
	return &model.DefinitionFragment{
		ID:         id,
		EntityID:   entityID,
		Kind:       c.Classify(cand.NormalizedText),
		Text:       cand.NormalizedText,
		TextHash:   model.TextHash(cand.NormalizedText),
		Confidence: confidence,
		CreatedAt:  now,
	}
}

func fold(markers []string) []string {
	out := make([]string, 0, len(markers))
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// Package normalize turns raw extractor output into candidates the resolver
// can score. Validation is strict: a candidate that fails here never reaches
// the store.
package normalize

import (
	"fmt"
	"strings"

	"github.com/agenthands/procgraph/internal/core/model"
)

// Normalize validates a raw extraction and produces a scoring-ready candidate.
// Text is trimmed and whitespace-collapsed with case preserved, so the same
// wording embeds identically regardless of layout artifacts in the source
// document. The alias code is the case-folded form used for exact lookup.
func Normalize(raw model.RawExtraction) (model.Candidate, error) {
	t, ok := model.ParseEntityType(raw.Type)
	if !ok {
		return model.Candidate{}, fmt.Errorf("%w: unknown entity type %q", model.ErrInvalidCandidate, raw.Type)
	}

	text := Collapse(raw.Text)
	if text == "" {
		return model.Candidate{}, fmt.Errorf("%w: empty text", model.ErrInvalidCandidate)
	}

	if raw.Source.DocID == "" || raw.Source.ChunkID == "" {
		return model.Candidate{}, fmt.Errorf("%w: missing source reference", model.ErrInvalidCandidate)
	}

	alias := Collapse(raw.Alias)
	if alias == "" {
		alias = text
	}

	if raw.Assertion != nil {
		if raw.Assertion.Kind == "" || Collapse(raw.Assertion.TargetName) == "" {
			return model.Candidate{}, fmt.Errorf("%w: incomplete relation assertion", model.ErrInvalidCandidate)
		}
	}

	source := raw.Source
	source.Text = Collapse(source.Text)
	if source.Text == "" {
		source.Text = text
	}

	return model.Candidate{
		Type:           t,
		NormalizedText: text,
		Alias:          alias,
		AliasCode:      AliasCode(alias),
		Embedding:      raw.Embedding,
		Source:         source,
		Assertion:      raw.Assertion,
	}, nil
}

// Collapse trims the string and folds internal whitespace runs to one space.
func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// AliasCode is the canonical lookup key for an alias: collapsed and
// case-folded. Scripts without case, such as Korean, pass through unchanged.
func AliasCode(s string) string {
	return strings.ToLower(Collapse(s))
}

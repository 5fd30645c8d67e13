package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/procgraph/internal/core/model"
)

func sampleRaw() model.RawExtraction {
	return model.RawExtraction{
		Type:  "Task",
		Text:  "  Review the   submitted invoice\n before approval ",
		Alias: "Invoice Review",
		Source: model.ChunkRef{
			DocID:   "doc-1",
			ChunkID: "chunk-7",
			Page:    3,
			Text:    "Review the submitted invoice before approval.",
		},
	}
}

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	cand, err := Normalize(sampleRaw())
	require.NoError(t, err)

	assert.Equal(t, model.TypeTask, cand.Type)
	assert.Equal(t, "Review the submitted invoice before approval", cand.NormalizedText)
	assert.Equal(t, "Invoice Review", cand.Alias)
	assert.Equal(t, "invoice review", cand.AliasCode)
}

func TestNormalizePreservesCase(t *testing.T) {
	raw := sampleRaw()
	raw.Text = "Approve PO via SAP"
	raw.Alias = ""

	cand, err := Normalize(raw)
	require.NoError(t, err)

	// Display text keeps its casing; only the lookup key folds.
	assert.Equal(t, "Approve PO via SAP", cand.NormalizedText)
	assert.Equal(t, "Approve PO via SAP", cand.Alias)
	assert.Equal(t, "approve po via sap", cand.AliasCode)
}

func TestNormalizeKoreanTextPassesThrough(t *testing.T) {
	raw := sampleRaw()
	raw.Type = "Role"
	raw.Text = "구매 담당자는 발주서를 검토한다"
	raw.Alias = "구매 담당자"

	cand, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "구매 담당자", cand.AliasCode)
}

func TestNormalizeRejectsUnknownType(t *testing.T) {
	raw := sampleRaw()
	raw.Type = "Widget"

	_, err := Normalize(raw)
	assert.True(t, errors.Is(err, model.ErrInvalidCandidate))
}

func TestNormalizeRejectsEmptyText(t *testing.T) {
	raw := sampleRaw()
	raw.Text = "   \n\t "

	_, err := Normalize(raw)
	assert.True(t, errors.Is(err, model.ErrInvalidCandidate))
}

func TestNormalizeRejectsMissingSource(t *testing.T) {
	raw := sampleRaw()
	raw.Source.ChunkID = ""

	_, err := Normalize(raw)
	assert.True(t, errors.Is(err, model.ErrInvalidCandidate))
}

func TestNormalizeRejectsIncompleteAssertion(t *testing.T) {
	raw := sampleRaw()
	raw.Assertion = &model.RelationAssertion{Kind: model.RelPerformedBy, TargetName: " "}

	_, err := Normalize(raw)
	assert.True(t, errors.Is(err, model.ErrInvalidCandidate))
}

func TestNormalizeDefaultsAliasToText(t *testing.T) {
	raw := sampleRaw()
	raw.Alias = ""

	cand, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, cand.NormalizedText, cand.Alias)
}

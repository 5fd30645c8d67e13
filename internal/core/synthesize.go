package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/agenthands/procgraph/internal/core/model"
)

const synthesisPrompt = `You are given definition fragments of a business-process entity, collected from
procedural documents and grouped by kind, overview first. Write one coherent definition that
covers the overview, the details, and every exception. Do not invent facts
that are not in the fragments. Answer in the language of the fragments.

Entity: %s (%s)
Fragments:
%s`

// SynthesizeDefinition renders an entity's fragments into one readable
// definition via the configured text model. The synthesis is derived output:
// it is returned to the caller and never written back to the graph, so the
// fragment ledger stays the single source of truth.
func (e *Engine) SynthesizeDefinition(ctx context.Context, entityID string) (string, error) {
	if e.generator == nil {
		return "", fmt.Errorf("no text model configured")
	}

	node, err := e.store.GetEntity(ctx, entityID)
	if err != nil {
		return "", err
	}
	fragments, err := e.store.ListFragments(ctx, entityID)
	if err != nil {
		return "", err
	}
	if len(fragments) == 0 {
		return "", fmt.Errorf("entity %s has no fragments", entityID)
	}

	// Readers see the overview before details and exceptions, regardless of
	// the order the documents arrived in. Within a kind, commit order holds.
	sort.SliceStable(fragments, func(i, j int) bool {
		ri, rj := kindRank(fragments[i].Kind), kindRank(fragments[j].Kind)
		if ri != rj {
			return ri < rj
		}
		return fragments[i].Seq < fragments[j].Seq
	})

	var b strings.Builder
	for i, f := range fragments {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, f.Kind, f.Text)
	}

	return e.generator.Generate(ctx, fmt.Sprintf(synthesisPrompt, node.Name, node.Type, b.String()))
}

func kindRank(k model.FragmentKind) int {
	switch k {
	case model.KindOverview:
		return 0
	case model.KindDetail:
		return 1
	case model.KindException:
		return 2
	case model.KindNote:
		return 3
	default:
		return 4
	}
}

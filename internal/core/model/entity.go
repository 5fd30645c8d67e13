package model

import (
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// EntityType is the closed set of node variants the engine resolves against.
// Adding a variant means extending the capability table in capability.go and
// every exhaustive switch over this type.
type EntityType string

const (
	TypeProcess     EntityType = "Process"
	TypeTask        EntityType = "Task"
	TypeRole        EntityType = "Role"
	TypeGateway     EntityType = "Gateway"
	TypeDMNDecision EntityType = "DMNDecision"
	TypeDMNRule     EntityType = "DMNRule"
	TypeSkill       EntityType = "Skill"
)

// AllEntityTypes returns the variants in declaration order.
func AllEntityTypes() []EntityType {
	return []EntityType{
		TypeProcess, TypeTask, TypeRole, TypeGateway,
		TypeDMNDecision, TypeDMNRule, TypeSkill,
	}
}

// ParseEntityType maps an incoming type label onto the closed union.
// Unknown labels are never coerced; the caller drops the candidate.
func ParseEntityType(s string) (EntityType, bool) {
	switch EntityType(s) {
	case TypeProcess, TypeTask, TypeRole, TypeGateway,
		TypeDMNDecision, TypeDMNRule, TypeSkill:
		return EntityType(s), true
	}
	return "", false
}

type CreatedBy string

const (
	CreatedByAgent CreatedBy = "agent"
	CreatedByUser  CreatedBy = "user"
)

// EntityNode is one resolved real-world entity in the graph. Nodes are only
// ever mutated by appending (fragments, evidence, aliases) and by bumping
// Version; the name and type are fixed at creation. Superseded nodes are
// marked, never deleted.
type EntityNode struct {
	ID            string             `json:"id"`
	Type          EntityType         `json:"type"`
	Name          string             `json:"name"`
	Version       int64              `json:"version"`
	CreatedBy     CreatedBy          `json:"created_by"`
	CreatedAt     time.Time          `json:"created_at"`
	Aliases       mapset.Set[string] `json:"aliases"`
	Centroid      []float32          `json:"centroid,omitempty"`
	CentroidCount int                `json:"centroid_count,omitempty"`
	Superseded    bool               `json:"superseded,omitempty"`
	SupersededBy  string             `json:"superseded_by,omitempty"`
}

// NewEntityNode builds a version-1 node with its alias set seeded from the
// canonical name.
func NewEntityNode(id string, t EntityType, name string, by CreatedBy, now time.Time) *EntityNode {
	aliases := mapset.NewSet[string]()
	aliases.Add(name)
	return &EntityNode{
		ID:        id,
		Type:      t,
		Name:      name,
		Version:   1,
		CreatedBy: by,
		CreatedAt: now,
		Aliases:   aliases,
	}
}

// UpdateCentroid folds a fragment embedding into the node's running centroid.
// The centroid stands in for "representative embedding" during similarity
// lookups: deterministic and cheap, no re-embedding of committed text.
func (n *EntityNode) UpdateCentroid(vec []float32) {
	if len(vec) == 0 {
		return
	}
	if len(n.Centroid) != len(vec) {
		n.Centroid = append([]float32(nil), vec...)
		n.CentroidCount = 1
		return
	}
	count := float32(n.CentroidCount)
	next := make([]float32, len(vec))
	for i := range vec {
		next[i] = (n.Centroid[i]*count + vec[i]) / (count + 1)
	}
	n.Centroid = next
	n.CentroidCount++
}

// Clone returns a deep copy so store implementations can hand out snapshots.
func (n *EntityNode) Clone() *EntityNode {
	cp := *n
	cp.Aliases = n.Aliases.Clone()
	cp.Centroid = append([]float32(nil), n.Centroid...)
	return &cp
}

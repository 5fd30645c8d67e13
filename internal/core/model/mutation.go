package model

// Mutation is the unit the upsert executor hands to the store: everything a
// single decision commits, applied in one transaction. Exactly one of
// NewEntity / TargetID is set; ExpectedVersion guards the optimistic check on
// existing targets.
type Mutation struct {
	NewEntity       *EntityNode
	TargetID        string
	ExpectedVersion int64

	AddAliases    []string
	Centroid      []float32
	CentroidCount int

	NewFragment     *DefinitionFragment
	NewEvidence     *Evidence
	EvidenceLinks   []EvidenceLink
	NewRelationship *Relationship
}

// EntityID returns the node the mutation targets.
func (m *Mutation) EntityID() string {
	if m.NewEntity != nil {
		return m.NewEntity.ID
	}
	return m.TargetID
}

// Assertions lists the ids of every assertion this mutation introduces; each
// must be covered by at least one evidence link before commit.
func (m *Mutation) Assertions() []string {
	var ids []string
	if m.NewFragment != nil {
		ids = append(ids, m.NewFragment.ID)
	}
	if m.NewRelationship != nil {
		ids = append(ids, m.NewRelationship.ID)
	}
	return ids
}

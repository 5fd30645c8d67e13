package model

import "time"

// RelKind names a relationship variant between entity nodes.
type RelKind string

const (
	RelPerformedBy   RelKind = "PERFORMED_BY"   // Task -> Role
	RelBelongsTo     RelKind = "BELONGS_TO"     // Task -> Process
	RelHasTask       RelKind = "HAS_TASK"       // Process -> Task
	RelUsesSkill     RelKind = "USES_SKILL"     // Task -> Skill
	RelHasSkill      RelKind = "HAS_SKILL"      // Role -> Skill
	RelMakesDecision RelKind = "MAKES_DECISION" // Role -> DMNDecision
	RelUsesDecision  RelKind = "USES_DECISION"  // Process|Skill -> DMNDecision
	RelOfDecision    RelKind = "OF_DECISION"    // DMNRule -> DMNDecision
	RelNext          RelKind = "NEXT"           // Task|Gateway -> Task|Gateway
)

// Relationship is one committed edge. Like fragments, relationships are
// append-only and always carry evidence.
type Relationship struct {
	ID        string    `json:"relationship_id"`
	Kind      RelKind   `json:"kind"`
	SourceID  string    `json:"source_id"`
	TargetID  string    `json:"target_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Capability declares which entity types a relationship kind connects and
// whether the kind is exclusive: an exclusive kind admits at most one target
// per source, so a second differing target is a conflict rather than an
// additional edge.
type Capability struct {
	Sources   []EntityType
	Targets   []EntityType
	Exclusive bool
}

func capabilityFor(kind RelKind) (Capability, bool) {
	switch kind {
	case RelPerformedBy:
		return Capability{Sources: []EntityType{TypeTask}, Targets: []EntityType{TypeRole}, Exclusive: true}, true
	case RelBelongsTo:
		return Capability{Sources: []EntityType{TypeTask}, Targets: []EntityType{TypeProcess}, Exclusive: true}, true
	case RelHasTask:
		return Capability{Sources: []EntityType{TypeProcess}, Targets: []EntityType{TypeTask}}, true
	case RelUsesSkill:
		return Capability{Sources: []EntityType{TypeTask}, Targets: []EntityType{TypeSkill}}, true
	case RelHasSkill:
		return Capability{Sources: []EntityType{TypeRole}, Targets: []EntityType{TypeSkill}}, true
	case RelMakesDecision:
		return Capability{Sources: []EntityType{TypeRole}, Targets: []EntityType{TypeDMNDecision}}, true
	case RelUsesDecision:
		return Capability{Sources: []EntityType{TypeProcess, TypeSkill}, Targets: []EntityType{TypeDMNDecision}}, true
	case RelOfDecision:
		return Capability{Sources: []EntityType{TypeDMNRule}, Targets: []EntityType{TypeDMNDecision}, Exclusive: true}, true
	case RelNext:
		return Capability{Sources: []EntityType{TypeTask, TypeGateway}, Targets: []EntityType{TypeTask, TypeGateway}}, true
	}
	return Capability{}, false
}

// AllowsRelationship reports whether kind may connect src to dst.
func AllowsRelationship(kind RelKind, src, dst EntityType) bool {
	cap, ok := capabilityFor(kind)
	if !ok {
		return false
	}
	return contains(cap.Sources, src) && contains(cap.Targets, dst)
}

// IsExclusive reports whether kind admits at most one target per source.
func IsExclusive(kind RelKind) bool {
	cap, ok := capabilityFor(kind)
	return ok && cap.Exclusive
}

func contains(types []EntityType, t EntityType) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

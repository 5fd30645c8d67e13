package driver

// Graph schema: every resolved entity is an :Entity node with a `type`
// property holding the variant name. Fragments, evidence and review records
// are their own labels; evidence links are :SUPPORTED_BY edges from an
// assertion's node to the :Evidence node.

var indexQueries = []string{
	"CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (n:Entity) REQUIRE n.id IS UNIQUE",
	"CREATE CONSTRAINT fragment_id IF NOT EXISTS FOR (f:Fragment) REQUIRE f.fragment_id IS UNIQUE",
	"CREATE CONSTRAINT evidence_id IF NOT EXISTS FOR (e:Evidence) REQUIRE e.evidence_id IS UNIQUE",
	"CREATE CONSTRAINT ambiguity_id IF NOT EXISTS FOR (a:Ambiguity) REQUIRE a.ambiguity_id IS UNIQUE",
	"CREATE CONSTRAINT conflict_id IF NOT EXISTS FOR (c:Conflict) REQUIRE c.conflict_id IS UNIQUE",
	"CREATE CONSTRAINT outcome_key IF NOT EXISTS FOR (o:Outcome) REQUIRE o.key IS UNIQUE",
	"CREATE INDEX entity_type IF NOT EXISTS FOR (n:Entity) ON (n.type)",
	"CREATE INDEX fragment_entity IF NOT EXISTS FOR (f:Fragment) ON (f.entity_id)",
	`CREATE VECTOR INDEX entity_centroid_idx IF NOT EXISTS
	 FOR (n:Entity) ON n.centroid
	 OPTIONS {indexConfig: {
	   ` + "`vector.dimensions`" + `: 1536,
	   ` + "`vector.similarity_function`" + `: 'cosine'
	 }}`,
}

const (
	FindSimilarQuery = `
		CALL db.index.vector.queryNodes('entity_centroid_idx', $k_overfetch, $vector)
		YIELD node, score
		WHERE node.type = $type AND NOT coalesce(node.superseded, false)
		RETURN node.id AS id, node.name AS name, node.version AS version,
		       node.created_by AS created_by, node.created_at AS created_at,
		       node.aliases AS aliases, score
		ORDER BY score DESC, node.created_at ASC
		LIMIT $k
	`

	FindByAliasQuery = `
		MATCH (n:Entity {type: $type})
		WHERE NOT coalesce(n.superseded, false) AND $text IN n.alias_keys
		RETURN n.id AS id, n.name AS name, n.version AS version,
		       n.created_by AS created_by, n.created_at AS created_at,
		       n.aliases AS aliases
		ORDER BY n.created_at ASC
	`

	GetEntityQuery = `
		MATCH (n:Entity {id: $id})
		RETURN n.id AS id, n.type AS type, n.name AS name, n.version AS version,
		       n.created_by AS created_by, n.created_at AS created_at,
		       n.aliases AS aliases, n.superseded AS superseded,
		       n.superseded_by AS superseded_by
	`

	ListEntitiesQuery = `
		MATCH (n:Entity)
		WHERE ($type = '' OR n.type = $type) AND NOT coalesce(n.superseded, false)
		RETURN n.id AS id, n.type AS type, n.name AS name, n.version AS version,
		       n.created_by AS created_by, n.created_at AS created_at,
		       n.aliases AS aliases, n.superseded AS superseded,
		       n.superseded_by AS superseded_by
		ORDER BY n.created_at ASC
	`

	GetVersionQuery = `
		MATCH (n:Entity {id: $id})
		RETURN n.version AS version
	`

	CreateEntityQuery = `
		CREATE (n:Entity {
			id: $id, type: $type, name: $name, version: 1,
			created_by: $created_by, created_at: $created_at,
			aliases: $aliases, alias_keys: $alias_keys,
			centroid: $centroid, centroid_count: $centroid_count,
			superseded: false
		})
		RETURN n.id AS id
	`

	// Optimistic update: matches only when the version is unchanged; the
	// store converts a zero-row result into ErrVersionConflict.
	UpdateEntityQuery = `
		MATCH (n:Entity {id: $id})
		WHERE n.version = $expected_version
		SET n.version = n.version + 1,
		    n.aliases = $aliases,
		    n.alias_keys = $alias_keys,
		    n.centroid = CASE WHEN $centroid IS NULL THEN n.centroid ELSE $centroid END,
		    n.centroid_count = CASE WHEN $centroid IS NULL THEN n.centroid_count ELSE $centroid_count END
		RETURN n.version AS version
	`

	SupersedeEntityQuery = `
		MATCH (n:Entity {id: $id})
		SET n.superseded = true, n.superseded_by = $by_id, n.version = n.version + 1
		RETURN n.id AS id
	`

	AppendFragmentQuery = `
		MATCH (n:Entity {id: $entity_id})
		OPTIONAL MATCH (n)-[:HAS_FRAGMENT]->(prev:Fragment)
		WITH n, count(prev) AS existing
		CREATE (f:Fragment {
			fragment_id: $fragment_id, entity_id: $entity_id, kind: $kind,
			text: $text, text_hash: $text_hash, confidence: $confidence,
			seq: existing + 1, created_at: $created_at
		})
		CREATE (n)-[:HAS_FRAGMENT]->(f)
		RETURN f.fragment_id AS fragment_id
	`

	FragmentByHashQuery = `
		MATCH (n:Entity {id: $entity_id})-[:HAS_FRAGMENT]->(f:Fragment {text_hash: $text_hash})
		RETURN f.fragment_id AS fragment_id, f.entity_id AS entity_id, f.kind AS kind,
		       f.text AS text, f.text_hash AS text_hash, f.confidence AS confidence,
		       f.seq AS seq, f.created_at AS created_at
		LIMIT 1
	`

	ListFragmentsQuery = `
		MATCH (n:Entity {id: $entity_id})-[:HAS_FRAGMENT]->(f:Fragment)
		RETURN f.fragment_id AS fragment_id, f.entity_id AS entity_id, f.kind AS kind,
		       f.text AS text, f.text_hash AS text_hash, f.confidence AS confidence,
		       f.seq AS seq, f.created_at AS created_at
		ORDER BY f.seq ASC
	`

	CreateEvidenceQuery = `
		MERGE (e:Evidence {evidence_id: $evidence_id})
		ON CREATE SET e.doc_id = $doc_id, e.chunk_id = $chunk_id, e.page = $page,
		              e.span = $span, e.text = $text, e.created_at = $created_at
		RETURN e.evidence_id AS evidence_id
	`

	LinkEvidenceQuery = `
		MATCH (e:Evidence {evidence_id: $evidence_id})
		MATCH (a) WHERE a.fragment_id = $assertion_id OR a.relationship_id = $assertion_id
		MERGE (a)-[:SUPPORTED_BY]->(e)
		RETURN e.evidence_id AS evidence_id
	`

	EvidenceForQuery = `
		MATCH (a)-[:SUPPORTED_BY]->(e:Evidence)
		WHERE a.fragment_id = $assertion_id OR a.relationship_id = $assertion_id
		RETURN e.evidence_id AS evidence_id
		ORDER BY e.created_at ASC
	`

	CreateRelationshipQuery = `
		MATCH (src:Entity {id: $source_id})
		MATCH (dst:Entity {id: $target_id})
		CREATE (r:Assertion:Rel {
			relationship_id: $relationship_id, kind: $kind,
			source_id: $source_id, target_id: $target_id, created_at: $created_at
		})
		CREATE (src)-[:ASSERTS]->(r)-[:TARGETS]->(dst)
		RETURN r.relationship_id AS relationship_id
	`

	ListRelationshipsQuery = `
		MATCH (r:Rel {source_id: $source_id})
		WHERE $kind = '' OR r.kind = $kind
		RETURN r.relationship_id AS relationship_id, r.kind AS kind,
		       r.source_id AS source_id, r.target_id AS target_id,
		       r.created_at AS created_at
		ORDER BY r.created_at ASC
	`

	CreateAmbiguityQuery = `
		CREATE (a:Ambiguity {
			ambiguity_id: $ambiguity_id, question: $question, options: $options,
			status: 'open', created_from: $created_from, created_at: $created_at
		})
		RETURN a.ambiguity_id AS ambiguity_id
	`

	GetAmbiguityQuery = `
		MATCH (a:Ambiguity {ambiguity_id: $ambiguity_id})
		RETURN a.ambiguity_id AS ambiguity_id, a.question AS question,
		       a.options AS options, a.status AS status, a.answer AS answer,
		       a.created_from AS created_from, a.created_at AS created_at
	`

	// Single-shot transition; matching on status 'open' makes a second
	// resolution return zero rows.
	ResolveAmbiguityQuery = `
		MATCH (a:Ambiguity {ambiguity_id: $ambiguity_id, status: 'open'})
		SET a.status = 'resolved', a.answer = $answer, a.resolved_at = $resolved_at
		RETURN a.ambiguity_id AS ambiguity_id
	`

	ListOpenAmbiguitiesQuery = `
		MATCH (a:Ambiguity {status: 'open'})
		RETURN a.ambiguity_id AS ambiguity_id, a.question AS question,
		       a.options AS options, a.status AS status,
		       a.created_from AS created_from, a.created_at AS created_at
		ORDER BY a.created_at ASC
	`

	CreateConflictQuery = `
		CREATE (c:Conflict {
			conflict_id: $conflict_id, description: $description, involved: $involved,
			status: 'open', created_from: $created_from, created_at: $created_at
		})
		RETURN c.conflict_id AS conflict_id
	`

	GetConflictQuery = `
		MATCH (c:Conflict {conflict_id: $conflict_id})
		RETURN c.conflict_id AS conflict_id, c.description AS description,
		       c.involved AS involved, c.status AS status, c.resolution AS resolution,
		       c.created_from AS created_from, c.created_at AS created_at
	`

	ResolveConflictQuery = `
		MATCH (c:Conflict {conflict_id: $conflict_id, status: 'open'})
		SET c.status = 'resolved', c.resolution = $resolution, c.resolved_at = $resolved_at
		RETURN c.conflict_id AS conflict_id
	`

	ListOpenConflictsQuery = `
		MATCH (c:Conflict {status: 'open'})
		RETURN c.conflict_id AS conflict_id, c.description AS description,
		       c.involved AS involved, c.status AS status,
		       c.created_from AS created_from, c.created_at AS created_at
		ORDER BY c.created_at ASC
	`

	GetOutcomeQuery = `
		MATCH (o:Outcome {key: $key})
		RETURN o.key AS key, o.payload AS payload
	`

	RecordOutcomeQuery = `
		MERGE (o:Outcome {key: $key})
		ON CREATE SET o.payload = $payload, o.applied_at = $applied_at
		RETURN o.key AS key
	`
)

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/agenthands/procgraph/internal/core/model"
	"github.com/agenthands/procgraph/internal/driver"
	"github.com/agenthands/procgraph/internal/logger"
)

// Neo4jStore implements GraphStore on a property graph reached through the
// Bolt driver. Mutations run inside one managed write transaction; the
// optimistic version check is expressed in Cypher so a concurrent writer
// surfaces as ErrVersionConflict, never as a lost update.
type Neo4jStore struct {
	driver driver.GraphDriver
	log    *logger.Logger
}

func NewNeo4jStore(d driver.GraphDriver, log *logger.Logger) *Neo4jStore {
	return &Neo4jStore{driver: d, log: log.With("component", "Neo4jStore")}
}

func (s *Neo4jStore) FindSimilar(ctx context.Context, t model.EntityType, vector []float32, k int) ([]SimilarityHit, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	result, err := s.driver.ExecuteQuery(ctx, driver.FindSimilarQuery, map[string]interface{}{
		"type":        string(t),
		"vector":      toFloat64s(vector),
		"k":           k,
		"k_overfetch": k * 4, // over-fetch before the type filter trims
	})
	if err != nil {
		return nil, &model.StoreTransientError{Op: "find_similar", Err: err}
	}

	var hits []SimilarityHit
	for _, rec := range result.Records {
		node := entityFromRecord(rec, t)
		score, _ := rec.Get("score")
		hits = append(hits, SimilarityHit{Node: node, Score: asFloat(score)})
	}
	return hits, nil
}

func (s *Neo4jStore) FindByAlias(ctx context.Context, t model.EntityType, text string) ([]*model.EntityNode, error) {
	key := canonical(text)
	if key == "" {
		return nil, nil
	}
	result, err := s.driver.ExecuteQuery(ctx, driver.FindByAliasQuery, map[string]interface{}{
		"type": string(t),
		"text": key,
	})
	if err != nil {
		return nil, &model.StoreTransientError{Op: "find_by_alias", Err: err}
	}

	var out []*model.EntityNode
	for _, rec := range result.Records {
		out = append(out, entityFromRecord(rec, t))
	}
	return out, nil
}

func (s *Neo4jStore) GetEntity(ctx context.Context, id string) (*model.EntityNode, error) {
	result, err := s.driver.ExecuteQuery(ctx, driver.GetEntityQuery, map[string]interface{}{"id": id})
	if err != nil {
		return nil, &model.StoreTransientError{Op: "get_entity", Err: err}
	}
	if len(result.Records) == 0 {
		return nil, model.ErrNotFound
	}
	rec := result.Records[0]
	typeVal, _ := rec.Get("type")
	return entityFromRecord(rec, model.EntityType(asString(typeVal))), nil
}

func (s *Neo4jStore) ListEntities(ctx context.Context, t model.EntityType) ([]*model.EntityNode, error) {
	result, err := s.driver.ExecuteQuery(ctx, driver.ListEntitiesQuery, map[string]interface{}{"type": string(t)})
	if err != nil {
		return nil, &model.StoreTransientError{Op: "list_entities", Err: err}
	}
	var out []*model.EntityNode
	for _, rec := range result.Records {
		typeVal, _ := rec.Get("type")
		out = append(out, entityFromRecord(rec, model.EntityType(asString(typeVal))))
	}
	return out, nil
}

func (s *Neo4jStore) GetVersion(ctx context.Context, id string) (int64, error) {
	result, err := s.driver.ExecuteQuery(ctx, driver.GetVersionQuery, map[string]interface{}{"id": id})
	if err != nil {
		return 0, &model.StoreTransientError{Op: "get_version", Err: err}
	}
	if len(result.Records) == 0 {
		return 0, model.ErrNotFound
	}
	v, _ := result.Records[0].Get("version")
	return asInt64(v), nil
}

func (s *Neo4jStore) FragmentByHash(ctx context.Context, entityID, textHash string) (*model.DefinitionFragment, error) {
	result, err := s.driver.ExecuteQuery(ctx, driver.FragmentByHashQuery, map[string]interface{}{
		"entity_id": entityID,
		"text_hash": textHash,
	})
	if err != nil {
		return nil, &model.StoreTransientError{Op: "fragment_by_hash", Err: err}
	}
	if len(result.Records) == 0 {
		return nil, model.ErrNotFound
	}
	return fragmentFromRecord(result.Records[0]), nil
}

func (s *Neo4jStore) ListFragments(ctx context.Context, entityID string) ([]*model.DefinitionFragment, error) {
	result, err := s.driver.ExecuteQuery(ctx, driver.ListFragmentsQuery, map[string]interface{}{"entity_id": entityID})
	if err != nil {
		return nil, &model.StoreTransientError{Op: "list_fragments", Err: err}
	}
	var out []*model.DefinitionFragment
	for _, rec := range result.Records {
		out = append(out, fragmentFromRecord(rec))
	}
	return out, nil
}

func (s *Neo4jStore) ListRelationships(ctx context.Context, sourceID string, kind model.RelKind) ([]*model.Relationship, error) {
	result, err := s.driver.ExecuteQuery(ctx, driver.ListRelationshipsQuery, map[string]interface{}{
		"source_id": sourceID,
		"kind":      string(kind),
	})
	if err != nil {
		return nil, &model.StoreTransientError{Op: "list_relationships", Err: err}
	}
	var out []*model.Relationship
	for _, rec := range result.Records {
		id, _ := rec.Get("relationship_id")
		k, _ := rec.Get("kind")
		src, _ := rec.Get("source_id")
		dst, _ := rec.Get("target_id")
		created, _ := rec.Get("created_at")
		out = append(out, &model.Relationship{
			ID:        asString(id),
			Kind:      model.RelKind(asString(k)),
			SourceID:  asString(src),
			TargetID:  asString(dst),
			CreatedAt: asTime(created),
		})
	}
	return out, nil
}

func (s *Neo4jStore) EvidenceFor(ctx context.Context, assertionID string) ([]string, error) {
	result, err := s.driver.ExecuteQuery(ctx, driver.EvidenceForQuery, map[string]interface{}{"assertion_id": assertionID})
	if err != nil {
		return nil, &model.StoreTransientError{Op: "evidence_for", Err: err}
	}
	var ids []string
	for _, rec := range result.Records {
		id, _ := rec.Get("evidence_id")
		ids = append(ids, asString(id))
	}
	return ids, nil
}

func (s *Neo4jStore) CommitMutation(ctx context.Context, mut *model.Mutation) error {
	for _, assertion := range mut.Assertions() {
		if !covered(assertion, mut.EvidenceLinks) {
			return &model.MissingEvidenceError{AssertionID: assertion}
		}
	}

	_, err := s.driver.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if mut.NewEntity != nil {
			n := mut.NewEntity
			_, err := runOne(ctx, tx, driver.CreateEntityQuery, map[string]interface{}{
				"id":             n.ID,
				"type":           string(n.Type),
				"name":           n.Name,
				"created_by":     string(n.CreatedBy),
				"created_at":     n.CreatedAt.Format(time.RFC3339Nano),
				"aliases":        n.Aliases.ToSlice(),
				"alias_keys":     aliasKeys(n.Aliases.ToSlice()),
				"centroid":       centroidParam(n.Centroid),
				"centroid_count": n.CentroidCount,
			})
			if err != nil {
				return nil, err
			}
		} else {
			rec, err := runOne(ctx, tx, driver.GetEntityQuery, map[string]interface{}{"id": mut.TargetID})
			if err != nil {
				return nil, model.ErrNotFound
			}
			typeVal, _ := rec.Get("type")
			node := entityFromRecord(rec, model.EntityType(asString(typeVal)))
			for _, a := range mut.AddAliases {
				node.Aliases.Add(a)
			}
			res, err := tx.Run(ctx, driver.UpdateEntityQuery, map[string]interface{}{
				"id":               mut.TargetID,
				"expected_version": mut.ExpectedVersion,
				"aliases":          node.Aliases.ToSlice(),
				"alias_keys":       aliasKeys(node.Aliases.ToSlice()),
				"centroid":         centroidParam(mut.Centroid),
				"centroid_count":   mut.CentroidCount,
			})
			if err != nil {
				return nil, err
			}
			if _, err := res.Single(ctx); err != nil {
				// Zero rows: the WHERE on version filtered the node out.
				return nil, model.ErrVersionConflict
			}
		}

		if mut.NewEvidence != nil {
			ev := mut.NewEvidence
			if _, err := runOne(ctx, tx, driver.CreateEvidenceQuery, map[string]interface{}{
				"evidence_id": ev.ID,
				"doc_id":      ev.DocID,
				"chunk_id":    ev.ChunkID,
				"page":        ev.Page,
				"span":        ev.Span,
				"text":        ev.Text,
				"created_at":  ev.CreatedAt.Format(time.RFC3339Nano),
			}); err != nil {
				return nil, err
			}
		}

		if mut.NewFragment != nil {
			f := mut.NewFragment
			if _, err := runOne(ctx, tx, driver.AppendFragmentQuery, map[string]interface{}{
				"fragment_id": f.ID,
				"entity_id":   mut.EntityID(),
				"kind":        string(f.Kind),
				"text":        f.Text,
				"text_hash":   f.TextHash,
				"confidence":  f.Confidence,
				"created_at":  f.CreatedAt.Format(time.RFC3339Nano),
			}); err != nil {
				return nil, err
			}
		}

		if mut.NewRelationship != nil {
			r := mut.NewRelationship
			if _, err := runOne(ctx, tx, driver.CreateRelationshipQuery, map[string]interface{}{
				"relationship_id": r.ID,
				"kind":            string(r.Kind),
				"source_id":       r.SourceID,
				"target_id":       r.TargetID,
				"created_at":      r.CreatedAt.Format(time.RFC3339Nano),
			}); err != nil {
				return nil, err
			}
		}

		for _, link := range mut.EvidenceLinks {
			if _, err := runOne(ctx, tx, driver.LinkEvidenceQuery, map[string]interface{}{
				"assertion_id": link.AssertionID,
				"evidence_id":  link.EvidenceID,
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})

	if err == nil {
		return nil
	}
	if err == model.ErrVersionConflict || err == model.ErrNotFound {
		return err
	}
	return &model.StoreTransientError{Op: "commit_mutation", Err: err}
}

func (s *Neo4jStore) SupersedeEntity(ctx context.Context, id, byID string) error {
	result, err := s.driver.ExecuteQuery(ctx, driver.SupersedeEntityQuery, map[string]interface{}{
		"id":    id,
		"by_id": byID,
	})
	if err != nil {
		return &model.StoreTransientError{Op: "supersede", Err: err}
	}
	if len(result.Records) == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *Neo4jStore) CreateAmbiguity(ctx context.Context, amb *model.Ambiguity) error {
	options, err := json.Marshal(amb.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}
	snapshot, err := json.Marshal(amb.Candidate)
	if err != nil {
		return fmt.Errorf("failed to marshal candidate snapshot: %w", err)
	}
	_, err = s.driver.ExecuteQuery(ctx, driver.CreateAmbiguityQuery, map[string]interface{}{
		"ambiguity_id": amb.ID,
		"question":     amb.Question,
		"options":      string(options),
		"created_from": string(snapshot),
		"created_at":   amb.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return &model.StoreTransientError{Op: "create_ambiguity", Err: err}
	}
	return nil
}

func (s *Neo4jStore) GetAmbiguity(ctx context.Context, id string) (*model.Ambiguity, error) {
	result, err := s.driver.ExecuteQuery(ctx, driver.GetAmbiguityQuery, map[string]interface{}{"ambiguity_id": id})
	if err != nil {
		return nil, &model.StoreTransientError{Op: "get_ambiguity", Err: err}
	}
	if len(result.Records) == 0 {
		return nil, model.ErrNotFound
	}
	return ambiguityFromRecord(result.Records[0])
}

func (s *Neo4jStore) ResolveAmbiguity(ctx context.Context, id, answer string) error {
	result, err := s.driver.ExecuteQuery(ctx, driver.ResolveAmbiguityQuery, map[string]interface{}{
		"ambiguity_id": id,
		"answer":       answer,
		"resolved_at":  time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return &model.StoreTransientError{Op: "resolve_ambiguity", Err: err}
	}
	if len(result.Records) == 0 {
		// Either missing or no longer open.
		if _, getErr := s.GetAmbiguity(ctx, id); getErr != nil {
			return getErr
		}
		return model.ErrAlreadyResolved
	}
	return nil
}

func (s *Neo4jStore) CreateConflict(ctx context.Context, c *model.Conflict) error {
	snapshot := []byte("null")
	if c.Candidate != nil {
		var err error
		snapshot, err = json.Marshal(c.Candidate)
		if err != nil {
			return fmt.Errorf("failed to marshal candidate snapshot: %w", err)
		}
	}
	_, err := s.driver.ExecuteQuery(ctx, driver.CreateConflictQuery, map[string]interface{}{
		"conflict_id":  c.ID,
		"description":  c.Description,
		"involved":     c.Involved,
		"created_from": string(snapshot),
		"created_at":   c.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return &model.StoreTransientError{Op: "create_conflict", Err: err}
	}
	return nil
}

func (s *Neo4jStore) GetConflict(ctx context.Context, id string) (*model.Conflict, error) {
	result, err := s.driver.ExecuteQuery(ctx, driver.GetConflictQuery, map[string]interface{}{"conflict_id": id})
	if err != nil {
		return nil, &model.StoreTransientError{Op: "get_conflict", Err: err}
	}
	if len(result.Records) == 0 {
		return nil, model.ErrNotFound
	}
	return conflictFromRecord(result.Records[0])
}

func (s *Neo4jStore) ResolveConflict(ctx context.Context, id, resolution string) error {
	result, err := s.driver.ExecuteQuery(ctx, driver.ResolveConflictQuery, map[string]interface{}{
		"conflict_id": id,
		"resolution":  resolution,
		"resolved_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return &model.StoreTransientError{Op: "resolve_conflict", Err: err}
	}
	if len(result.Records) == 0 {
		if _, getErr := s.GetConflict(ctx, id); getErr != nil {
			return getErr
		}
		return model.ErrAlreadyResolved
	}
	return nil
}

func (s *Neo4jStore) ListOpenAmbiguities(ctx context.Context) ([]*model.Ambiguity, error) {
	result, err := s.driver.ExecuteQuery(ctx, driver.ListOpenAmbiguitiesQuery, nil)
	if err != nil {
		return nil, &model.StoreTransientError{Op: "list_open_ambiguities", Err: err}
	}
	var out []*model.Ambiguity
	for _, rec := range result.Records {
		amb, err := ambiguityFromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, amb)
	}
	return out, nil
}

func (s *Neo4jStore) ListOpenConflicts(ctx context.Context) ([]*model.Conflict, error) {
	result, err := s.driver.ExecuteQuery(ctx, driver.ListOpenConflictsQuery, nil)
	if err != nil {
		return nil, &model.StoreTransientError{Op: "list_open_conflicts", Err: err}
	}
	var out []*model.Conflict
	for _, rec := range result.Records {
		c, err := conflictFromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Neo4jStore) GetOutcome(ctx context.Context, key string) (*model.MergeOutcome, error) {
	result, err := s.driver.ExecuteQuery(ctx, driver.GetOutcomeQuery, map[string]interface{}{"key": key})
	if err != nil {
		return nil, &model.StoreTransientError{Op: "get_outcome", Err: err}
	}
	if len(result.Records) == 0 {
		return nil, model.ErrNotFound
	}
	payload, _ := result.Records[0].Get("payload")
	var out model.MergeOutcome
	if err := json.Unmarshal([]byte(asString(payload)), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outcome: %w", err)
	}
	return &out, nil
}

func (s *Neo4jStore) RecordOutcome(ctx context.Context, out *model.MergeOutcome) error {
	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}
	_, err = s.driver.ExecuteQuery(ctx, driver.RecordOutcomeQuery, map[string]interface{}{
		"key":        out.Key,
		"payload":    string(payload),
		"applied_at": out.AppliedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return &model.StoreTransientError{Op: "record_outcome", Err: err}
	}
	return nil
}

// --- record mapping ---

func entityFromRecord(rec *db.Record, t model.EntityType) *model.EntityNode {
	id, _ := rec.Get("id")
	name, _ := rec.Get("name")
	version, _ := rec.Get("version")
	createdBy, _ := rec.Get("created_by")
	createdAt, _ := rec.Get("created_at")
	aliasesVal, _ := rec.Get("aliases")

	aliases := mapset.NewSet[string]()
	if list, ok := aliasesVal.([]interface{}); ok {
		for _, a := range list {
			aliases.Add(asString(a))
		}
	}

	node := &model.EntityNode{
		ID:        asString(id),
		Type:      t,
		Name:      asString(name),
		Version:   asInt64(version),
		CreatedBy: model.CreatedBy(asString(createdBy)),
		CreatedAt: asTime(createdAt),
		Aliases:   aliases,
	}
	if superseded, ok := rec.Get("superseded"); ok {
		node.Superseded, _ = superseded.(bool)
	}
	if by, ok := rec.Get("superseded_by"); ok {
		node.SupersededBy = asString(by)
	}
	return node
}

func fragmentFromRecord(rec *db.Record) *model.DefinitionFragment {
	id, _ := rec.Get("fragment_id")
	entityID, _ := rec.Get("entity_id")
	kind, _ := rec.Get("kind")
	text, _ := rec.Get("text")
	hash, _ := rec.Get("text_hash")
	confidence, _ := rec.Get("confidence")
	seq, _ := rec.Get("seq")
	created, _ := rec.Get("created_at")
	return &model.DefinitionFragment{
		ID:         asString(id),
		EntityID:   asString(entityID),
		Kind:       model.FragmentKind(asString(kind)),
		Text:       asString(text),
		TextHash:   asString(hash),
		Confidence: asFloat(confidence),
		Seq:        int(asInt64(seq)),
		CreatedAt:  asTime(created),
	}
}

func ambiguityFromRecord(rec *db.Record) (*model.Ambiguity, error) {
	id, _ := rec.Get("ambiguity_id")
	question, _ := rec.Get("question")
	optionsVal, _ := rec.Get("options")
	status, _ := rec.Get("status")
	snapshot, _ := rec.Get("created_from")
	created, _ := rec.Get("created_at")

	amb := &model.Ambiguity{
		ID:        asString(id),
		Question:  asString(question),
		Status:    model.ReviewStatus(asString(status)),
		CreatedAt: asTime(created),
	}
	if answer, ok := rec.Get("answer"); ok {
		amb.Answer = asString(answer)
	}
	if err := json.Unmarshal([]byte(asString(optionsVal)), &amb.Options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ambiguity options: %w", err)
	}
	if err := json.Unmarshal([]byte(asString(snapshot)), &amb.Candidate); err != nil {
		return nil, fmt.Errorf("failed to unmarshal candidate snapshot: %w", err)
	}
	return amb, nil
}

func conflictFromRecord(rec *db.Record) (*model.Conflict, error) {
	id, _ := rec.Get("conflict_id")
	desc, _ := rec.Get("description")
	involvedVal, _ := rec.Get("involved")
	status, _ := rec.Get("status")
	snapshot, _ := rec.Get("created_from")
	created, _ := rec.Get("created_at")

	c := &model.Conflict{
		ID:          asString(id),
		Description: asString(desc),
		Status:      model.ReviewStatus(asString(status)),
		CreatedAt:   asTime(created),
	}
	if resolution, ok := rec.Get("resolution"); ok {
		c.Resolution = asString(resolution)
	}
	if list, ok := involvedVal.([]interface{}); ok {
		for _, v := range list {
			c.Involved = append(c.Involved, asString(v))
		}
	}
	if raw := asString(snapshot); raw != "" && raw != "null" {
		var cand model.Candidate
		if err := json.Unmarshal([]byte(raw), &cand); err != nil {
			return nil, fmt.Errorf("failed to unmarshal candidate snapshot: %w", err)
		}
		c.Candidate = &cand
	}
	return c, nil
}

// --- helpers ---

func runOne(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]interface{}) (*db.Record, error) {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return res.Single(ctx)
}

func aliasKeys(aliases []string) []string {
	keys := make([]string, 0, len(aliases))
	for _, a := range aliases {
		keys = append(keys, canonical(a))
	}
	return keys
}

func centroidParam(vec []float32) interface{} {
	if len(vec) == 0 {
		return nil
	}
	return toFloat64s(vec)
}

func toFloat64s(vec []float32) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(t)); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

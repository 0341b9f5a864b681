package persist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/nidhogg/curia/internal/memory"
	"github.com/nidhogg/curia/internal/relation"
)

// Neo4jStore keeps the social graph in Neo4j. Agents become nodes,
// relationship edges become RELATES_TO edges between them, and memories
// hang off their owner as REMEMBERS edges. Each node and edge carries the
// snapshot map as a JSON string property so nothing is lost to the
// property model.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewNeo4jStore connects to the Neo4j at uri and verifies connectivity.
func NewNeo4jStore(uri, user, password string, logger *zap.Logger) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(context.Background()); err != nil {
		driver.Close(context.Background())
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	logger.Info("Neo4j connected")
	return &Neo4jStore{driver: driver, logger: logger}, nil
}

// Close shuts down the driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// SaveMemories replaces the agent's memory nodes.
func (s *Neo4jStore) SaveMemories(ctx context.Context, agentID string, items []*memory.Item) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MATCH (a:Agent {id: $agentId})-[:REMEMBERS]->(m:Memory)
		 DETACH DELETE m`,
		map[string]any{"agentId": agentID})
	if err != nil {
		return fmt.Errorf("clear memories for %s: %w", agentID, err)
	}

	for _, m := range items {
		data, err := json.Marshal(m.ToMap())
		if err != nil {
			return fmt.Errorf("encode memory %s: %w", m.ID, err)
		}
		_, err = session.Run(ctx,
			`MERGE (a:Agent {id: $agentId})
			 CREATE (m:Memory {id: $id, importance: $importance, data: $data})
			 CREATE (a)-[:REMEMBERS]->(m)`,
			map[string]any{
				"agentId":    agentID,
				"id":         m.ID,
				"importance": m.Importance,
				"data":       string(data),
			})
		if err != nil {
			return fmt.Errorf("store memory %s: %w", m.ID, err)
		}
	}
	return nil
}

// LoadMemories reads the agent's memory nodes.
func (s *Neo4jStore) LoadMemories(ctx context.Context, agentID string) ([]*memory.Item, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (a:Agent {id: $agentId})-[:REMEMBERS]->(m:Memory)
		 RETURN m.data`,
		map[string]any{"agentId": agentID})
	if err != nil {
		return nil, fmt.Errorf("load memories for %s: %w", agentID, err)
	}

	var items []*memory.Item
	for result.Next(ctx) {
		data, _ := result.Record().Get("m.data")
		text, ok := data.(string)
		if !ok {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return nil, fmt.Errorf("parse memory node: %w", err)
		}
		items = append(items, memory.ItemFromMap(raw))
	}
	return items, result.Err()
}

// DeleteMemories removes the agent's memory nodes.
func (s *Neo4jStore) DeleteMemories(ctx context.Context, agentID string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MATCH (a:Agent {id: $agentId})-[:REMEMBERS]->(m:Memory)
		 DETACH DELETE m`,
		map[string]any{"agentId": agentID})
	if err != nil {
		return fmt.Errorf("delete memories for %s: %w", agentID, err)
	}
	return nil
}

// BackupMemories relabels a copy of the agent's memory nodes as archived.
func (s *Neo4jStore) BackupMemories(ctx context.Context, agentID string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MATCH (a:Agent {id: $agentId})-[:REMEMBERS]->(m:Memory)
		 CREATE (b:MemoryBackup {agent_id: $agentId, id: m.id, data: m.data, backed_at: datetime()})`,
		map[string]any{"agentId": agentID})
	if err != nil {
		return fmt.Errorf("backup memories for %s: %w", agentID, err)
	}
	return nil
}

// SaveRelationships replaces the stored edge set.
func (s *Neo4jStore) SaveRelationships(ctx context.Context, rels []*relation.Relationship) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx, `MATCH ()-[r:RELATES_TO]->() DELETE r`, nil)
	if err != nil {
		return fmt.Errorf("clear relationships: %w", err)
	}

	for _, r := range rels {
		data, err := json.Marshal(r.ToMap())
		if err != nil {
			return fmt.Errorf("encode relationship %s: %w", r.ID, err)
		}
		_, err = session.Run(ctx,
			`MERGE (a:Agent {id: $a})
			 MERGE (b:Agent {id: $b})
			 CREATE (a)-[r:RELATES_TO {id: $id, type: $type, strength: $strength, data: $data}]->(b)`,
			map[string]any{
				"a":        r.AgentA,
				"b":        r.AgentB,
				"id":       r.ID,
				"type":     r.Type,
				"strength": r.Strength,
				"data":     string(data),
			})
		if err != nil {
			return fmt.Errorf("store relationship %s: %w", r.ID, err)
		}
	}
	return nil
}

// LoadRelationships reads the full edge set.
func (s *Neo4jStore) LoadRelationships(ctx context.Context) ([]*relation.Relationship, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH ()-[r:RELATES_TO]->() RETURN r.data`, nil)
	if err != nil {
		return nil, fmt.Errorf("load relationships: %w", err)
	}

	var rels []*relation.Relationship
	for result.Next(ctx) {
		data, _ := result.Record().Get("r.data")
		text, ok := data.(string)
		if !ok {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return nil, fmt.Errorf("parse relationship edge: %w", err)
		}
		rels = append(rels, relation.FromMap(raw))
	}
	return rels, result.Err()
}

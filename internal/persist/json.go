// Package persist provides snapshot backends for agent memories and the
// relationship edge set. Backends are interchangeable behind the
// memory.Persister and relation.Persister interfaces; failures are
// reported to callers, who log and keep ticking.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/curia/internal/memory"
	"github.com/nidhogg/curia/internal/relation"
)

// snapshotVersion is written into every snapshot file. Loads reject
// unknown versions instead of guessing at field layouts.
const snapshotVersion = 1

type memorySnapshot struct {
	Version  int              `json:"version"`
	AgentID  string           `json:"agent_id"`
	SavedAt  time.Time        `json:"saved_at"`
	Memories []map[string]any `json:"memories"`
}

type relationshipSnapshot struct {
	Version       int              `json:"version"`
	SavedAt       time.Time        `json:"saved_at"`
	Relationships []map[string]any `json:"relationships"`
}

// JSONStore keeps one human-readable JSON file per agent plus a single
// relationships file, under a base directory. Writes are not atomic; a
// crash mid-write can corrupt a file, which load reports as an error.
type JSONStore struct {
	dir    string
	logger *zap.Logger
}

// NewJSONStore creates the base directory if needed.
func NewJSONStore(dir string, logger *zap.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir %s: %w", dir, err)
	}
	return &JSONStore{dir: dir, logger: logger}, nil
}

func (s *JSONStore) memoryPath(agentID string) string {
	return filepath.Join(s.dir, agentID+".json")
}

func (s *JSONStore) relationshipPath() string {
	return filepath.Join(s.dir, "relationships.json")
}

// SaveMemories writes the agent's full memory set.
func (s *JSONStore) SaveMemories(_ context.Context, agentID string, items []*memory.Item) error {
	snap := memorySnapshot{
		Version:  snapshotVersion,
		AgentID:  agentID,
		SavedAt:  time.Now(),
		Memories: make([]map[string]any, len(items)),
	}
	for i, m := range items {
		snap.Memories[i] = m.ToMap()
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode memories for %s: %w", agentID, err)
	}
	if err := os.WriteFile(s.memoryPath(agentID), data, 0o644); err != nil {
		return fmt.Errorf("write memories for %s: %w", agentID, err)
	}
	return nil
}

// LoadMemories reads the agent's snapshot. A missing file is an empty
// result, not an error.
func (s *JSONStore) LoadMemories(_ context.Context, agentID string) ([]*memory.Item, error) {
	data, err := os.ReadFile(s.memoryPath(agentID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read memories for %s: %w", agentID, err)
	}
	var snap memorySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse memories for %s: %w", agentID, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("memories for %s: unsupported snapshot version %d", agentID, snap.Version)
	}
	items := make([]*memory.Item, 0, len(snap.Memories))
	for _, raw := range snap.Memories {
		items = append(items, memory.ItemFromMap(raw))
	}
	return items, nil
}

// DeleteMemories removes the agent's snapshot file.
func (s *JSONStore) DeleteMemories(_ context.Context, agentID string) error {
	err := os.Remove(s.memoryPath(agentID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete memories for %s: %w", agentID, err)
	}
	return nil
}

// BackupMemories copies the agent's snapshot to a timestamped file.
func (s *JSONStore) BackupMemories(_ context.Context, agentID string) error {
	data, err := os.ReadFile(s.memoryPath(agentID))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("backup memories for %s: %w", agentID, err)
	}
	name := fmt.Sprintf("%s.%s.bak", agentID, time.Now().Format("20060102T150405"))
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write backup for %s: %w", agentID, err)
	}
	s.logger.Info("memory snapshot backed up",
		zap.String("agent", agentID),
		zap.String("file", name))
	return nil
}

// SaveRelationships writes the full edge set.
func (s *JSONStore) SaveRelationships(_ context.Context, rels []*relation.Relationship) error {
	snap := relationshipSnapshot{
		Version:       snapshotVersion,
		SavedAt:       time.Now(),
		Relationships: make([]map[string]any, len(rels)),
	}
	for i, r := range rels {
		snap.Relationships[i] = r.ToMap()
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode relationships: %w", err)
	}
	if err := os.WriteFile(s.relationshipPath(), data, 0o644); err != nil {
		return fmt.Errorf("write relationships: %w", err)
	}
	return nil
}

// LoadRelationships reads the full edge set; a missing file is empty.
func (s *JSONStore) LoadRelationships(context.Context) ([]*relation.Relationship, error) {
	data, err := os.ReadFile(s.relationshipPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read relationships: %w", err)
	}
	var snap relationshipSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse relationships: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("relationships: unsupported snapshot version %d", snap.Version)
	}
	rels := make([]*relation.Relationship, 0, len(snap.Relationships))
	for _, raw := range snap.Relationships {
		rels = append(rels, relation.FromMap(raw))
	}
	return rels, nil
}

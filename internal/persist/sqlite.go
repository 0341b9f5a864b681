package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nidhogg/curia/internal/memory"
	"github.com/nidhogg/curia/internal/relation"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS memories (
	agent_id TEXT NOT NULL,
	id       TEXT NOT NULL,
	data     TEXT NOT NULL,
	PRIMARY KEY (agent_id, id)
);
CREATE TABLE IF NOT EXISTS memory_backups (
	agent_id  TEXT NOT NULL,
	backed_at TEXT NOT NULL,
	data      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS relationships (
	id   TEXT PRIMARY KEY,
	data TEXT NOT NULL
);`

// SQLiteStore keeps snapshots in a local SQLite database. Rows hold the
// same JSON maps the file backend writes, so the two stay trivially
// interchangeable.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// SaveMemories replaces the agent's stored memory set.
func (s *SQLiteStore) SaveMemories(ctx context.Context, agentID string, items []*memory.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save for %s: %w", agentID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE agent_id = ?`, agentID); err != nil {
		return fmt.Errorf("clear memories for %s: %w", agentID, err)
	}
	for _, m := range items {
		data, err := json.Marshal(m.ToMap())
		if err != nil {
			return fmt.Errorf("encode memory %s: %w", m.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memories (agent_id, id, data) VALUES (?, ?, ?)`,
			agentID, m.ID, string(data)); err != nil {
			return fmt.Errorf("insert memory %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// LoadMemories reads the agent's memory set; never-saved agents get an
// empty result.
func (s *SQLiteStore) LoadMemories(ctx context.Context, agentID string) ([]*memory.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM memories WHERE agent_id = ?`, agentID)
	if err != nil {
		return nil, fmt.Errorf("query memories for %s: %w", agentID, err)
	}
	defer rows.Close()

	var items []*memory.Item
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(data), &raw); err != nil {
			return nil, fmt.Errorf("parse memory row: %w", err)
		}
		items = append(items, memory.ItemFromMap(raw))
	}
	return items, rows.Err()
}

// DeleteMemories drops all rows for the agent.
func (s *SQLiteStore) DeleteMemories(ctx context.Context, agentID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE agent_id = ?`, agentID); err != nil {
		return fmt.Errorf("delete memories for %s: %w", agentID, err)
	}
	return nil
}

// BackupMemories copies the agent's current rows into the backup table.
func (s *SQLiteStore) BackupMemories(ctx context.Context, agentID string) error {
	items, err := s.LoadMemories(ctx, agentID)
	if err != nil {
		return err
	}
	maps := make([]map[string]any, len(items))
	for i, m := range items {
		maps[i] = m.ToMap()
	}
	data, err := json.Marshal(maps)
	if err != nil {
		return fmt.Errorf("encode backup for %s: %w", agentID, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_backups (agent_id, backed_at, data) VALUES (?, ?, ?)`,
		agentID, time.Now().Format(time.RFC3339), string(data)); err != nil {
		return fmt.Errorf("write backup for %s: %w", agentID, err)
	}
	return nil
}

// SaveRelationships replaces the stored edge set.
func (s *SQLiteStore) SaveRelationships(ctx context.Context, rels []*relation.Relationship) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin relationship save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM relationships`); err != nil {
		return fmt.Errorf("clear relationships: %w", err)
	}
	for _, r := range rels {
		data, err := json.Marshal(r.ToMap())
		if err != nil {
			return fmt.Errorf("encode relationship %s: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO relationships (id, data) VALUES (?, ?)`,
			r.ID, string(data)); err != nil {
			return fmt.Errorf("insert relationship %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// LoadRelationships reads the full edge set.
func (s *SQLiteStore) LoadRelationships(ctx context.Context) ([]*relation.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM relationships`)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()

	var rels []*relation.Relationship
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan relationship row: %w", err)
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(data), &raw); err != nil {
			return nil, fmt.Errorf("parse relationship row: %w", err)
		}
		rels = append(rels, relation.FromMap(raw))
	}
	return rels, rows.Err()
}

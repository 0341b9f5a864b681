package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nidhogg/curia/internal/memory"
	"github.com/nidhogg/curia/internal/relation"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS memories (
	agent_id TEXT NOT NULL,
	id       TEXT NOT NULL,
	data     JSONB NOT NULL,
	PRIMARY KEY (agent_id, id)
);
CREATE TABLE IF NOT EXISTS memory_backups (
	agent_id  TEXT NOT NULL,
	backed_at TIMESTAMPTZ NOT NULL,
	data      JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS relationships (
	id   TEXT PRIMARY KEY,
	data JSONB NOT NULL
);`

// PostgresStore keeps snapshots in PostgreSQL JSONB columns behind a pgx
// connection pool.
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore connects to the database at dsn and ensures the schema.
func NewPostgresStore(dsn string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(context.Background(), postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init postgres schema: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return &PostgresStore{db: pool, logger: logger}, nil
}

// Close shuts down the connection pool.
func (s *PostgresStore) Close() { s.db.Close() }

// SaveMemories replaces the agent's stored memory set in one transaction.
func (s *PostgresStore) SaveMemories(ctx context.Context, agentID string, items []*memory.Item) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save for %s: %w", agentID, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM memories WHERE agent_id = $1`, agentID); err != nil {
		return fmt.Errorf("clear memories for %s: %w", agentID, err)
	}
	for _, m := range items {
		data, err := json.Marshal(m.ToMap())
		if err != nil {
			return fmt.Errorf("encode memory %s: %w", m.ID, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO memories (agent_id, id, data) VALUES ($1, $2, $3)`,
			agentID, m.ID, data); err != nil {
			return fmt.Errorf("insert memory %s: %w", m.ID, err)
		}
	}
	return tx.Commit(ctx)
}

// LoadMemories reads the agent's memory set.
func (s *PostgresStore) LoadMemories(ctx context.Context, agentID string) ([]*memory.Item, error) {
	rows, err := s.db.Query(ctx,
		`SELECT data FROM memories WHERE agent_id = $1`, agentID)
	if err != nil {
		return nil, fmt.Errorf("query memories for %s: %w", agentID, err)
	}
	defer rows.Close()

	var items []*memory.Item
	for rows.Next() {
		var raw map[string]any
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		items = append(items, memory.ItemFromMap(raw))
	}
	return items, rows.Err()
}

// DeleteMemories drops all rows for the agent.
func (s *PostgresStore) DeleteMemories(ctx context.Context, agentID string) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM memories WHERE agent_id = $1`, agentID); err != nil {
		return fmt.Errorf("delete memories for %s: %w", agentID, err)
	}
	return nil
}

// BackupMemories copies the agent's current rows into the backup table.
func (s *PostgresStore) BackupMemories(ctx context.Context, agentID string) error {
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
	if _, err := s.db.Exec(ctx,
		`INSERT INTO memory_backups (agent_id, backed_at, data) VALUES ($1, $2, $3)`,
		agentID, time.Now(), data); err != nil {
		return fmt.Errorf("write backup for %s: %w", agentID, err)
	}
	return nil
}

// SaveRelationships replaces the stored edge set.
func (s *PostgresStore) SaveRelationships(ctx context.Context, rels []*relation.Relationship) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin relationship save: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM relationships`); err != nil {
		return fmt.Errorf("clear relationships: %w", err)
	}
	for _, r := range rels {
		data, err := json.Marshal(r.ToMap())
		if err != nil {
			return fmt.Errorf("encode relationship %s: %w", r.ID, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO relationships (id, data) VALUES ($1, $2)`,
			r.ID, data); err != nil {
			return fmt.Errorf("insert relationship %s: %w", r.ID, err)
		}
	}
	return tx.Commit(ctx)
}

// LoadRelationships reads the full edge set.
func (s *PostgresStore) LoadRelationships(ctx context.Context) ([]*relation.Relationship, error) {
	rows, err := s.db.Query(ctx, `SELECT data FROM relationships`)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()

	var rels []*relation.Relationship
	for rows.Next() {
		var raw map[string]any
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan relationship row: %w", err)
		}
		rels = append(rels, relation.FromMap(raw))
	}
	return rels, rows.Err()
}

package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/curia/internal/memory"
	"github.com/nidhogg/curia/internal/relation"
)

const (
	memoryKeyPrefix = "curia:memories:"
	backupKeyPrefix = "curia:backup:"
	relationKey     = "curia:relationships"
)

// RedisStore keeps snapshots in Redis hashes, one hash per agent plus a
// shared hash for relationship edges. Suited to runs where several
// processes share one world.
type RedisStore struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedisStore connects to the Redis at redisURL and verifies the link
// with a ping.
func NewRedisStore(redisURL string, logger *zap.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb, logger: logger}, nil
}

// Close shuts down the Redis connection.
func (s *RedisStore) Close() error { return s.rdb.Close() }

// SaveMemories replaces the agent's hash with the given set.
func (s *RedisStore) SaveMemories(ctx context.Context, agentID string, items []*memory.Item) error {
	key := memoryKeyPrefix + agentID
	fields := make(map[string]any, len(items))
	for _, m := range items {
		data, err := json.Marshal(m.ToMap())
		if err != nil {
			return fmt.Errorf("encode memory %s: %w", m.ID, err)
		}
		fields[m.ID] = string(data)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(fields) > 0 {
		pipe.HSet(ctx, key, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save memories for %s: %w", agentID, err)
	}
	return nil
}

// LoadMemories reads the agent's hash; missing keys yield an empty set.
func (s *RedisStore) LoadMemories(ctx context.Context, agentID string) ([]*memory.Item, error) {
	values, err := s.rdb.HGetAll(ctx, memoryKeyPrefix+agentID).Result()
	if err != nil {
		return nil, fmt.Errorf("load memories for %s: %w", agentID, err)
	}
	items := make([]*memory.Item, 0, len(values))
	for id, data := range values {
		var raw map[string]any
		if err := json.Unmarshal([]byte(data), &raw); err != nil {
			return nil, fmt.Errorf("parse memory %s: %w", id, err)
		}
		items = append(items, memory.ItemFromMap(raw))
	}
	return items, nil
}

// DeleteMemories drops the agent's hash.
func (s *RedisStore) DeleteMemories(ctx context.Context, agentID string) error {
	if err := s.rdb.Del(ctx, memoryKeyPrefix+agentID).Err(); err != nil {
		return fmt.Errorf("delete memories for %s: %w", agentID, err)
	}
	return nil
}

// BackupMemories copies the agent's hash under a timestamped key.
func (s *RedisStore) BackupMemories(ctx context.Context, agentID string) error {
	src := memoryKeyPrefix + agentID
	dst := fmt.Sprintf("%s%s:%s", backupKeyPrefix, agentID, time.Now().Format("20060102T150405"))
	if err := s.rdb.Copy(ctx, src, dst, 0, true).Err(); err != nil {
		return fmt.Errorf("backup memories for %s: %w", agentID, err)
	}
	return nil
}

// SaveRelationships replaces the shared edge hash.
func (s *RedisStore) SaveRelationships(ctx context.Context, rels []*relation.Relationship) error {
	fields := make(map[string]any, len(rels))
	for _, r := range rels {
		data, err := json.Marshal(r.ToMap())
		if err != nil {
			return fmt.Errorf("encode relationship %s: %w", r.ID, err)
		}
		fields[r.ID] = string(data)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, relationKey)
	if len(fields) > 0 {
		pipe.HSet(ctx, relationKey, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save relationships: %w", err)
	}
	return nil
}

// LoadRelationships reads the shared edge hash.
func (s *RedisStore) LoadRelationships(ctx context.Context) ([]*relation.Relationship, error) {
	values, err := s.rdb.HGetAll(ctx, relationKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load relationships: %w", err)
	}
	rels := make([]*relation.Relationship, 0, len(values))
	for id, data := range values {
		var raw map[string]any
		if err := json.Unmarshal([]byte(data), &raw); err != nil {
			return nil, fmt.Errorf("parse relationship %s: %w", id, err)
		}
		rels = append(rels, relation.FromMap(raw))
	}
	return rels, nil
}

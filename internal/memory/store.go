package memory

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Persister is a pluggable snapshot backend for per-agent memories.
// Implementations live in internal/persist.
type Persister interface {
	SaveMemories(ctx context.Context, agentID string, items []*Item) error
	LoadMemories(ctx context.Context, agentID string) ([]*Item, error)
	DeleteMemories(ctx context.Context, agentID string) error
	BackupMemories(ctx context.Context, agentID string) error
}

// Store holds one agent's memories. Retrieval is a linear scan with the
// same filter semantics as Index; per-agent collections are small enough
// that indexing is not worth maintaining here. An optional Persister is
// written through after every mutation.
type Store struct {
	agentID   string
	items     map[string]*Item
	persister Persister
	logger    *zap.Logger
}

// NewStore creates a memory store for one agent identity.
func NewStore(agentID string, logger *zap.Logger) *Store {
	return &Store{
		agentID: agentID,
		items:   make(map[string]*Item),
		logger:  logger,
	}
}

// AgentID returns the owning agent identity.
func (s *Store) AgentID() string { return s.agentID }

// Len returns the number of stored memories.
func (s *Store) Len() int { return len(s.items) }

// SetPersister enables write-through snapshots and loads any existing
// snapshot for this agent. Load failures are logged and leave the store
// empty.
func (s *Store) SetPersister(ctx context.Context, p Persister) {
	s.persister = p
	if p == nil {
		return
	}
	items, err := p.LoadMemories(ctx, s.agentID)
	if err != nil {
		s.logger.Warn("memory snapshot load failed",
			zap.String("agent", s.agentID),
			zap.Error(err))
		return
	}
	for _, m := range items {
		s.items[m.ID] = m
	}
	if len(items) > 0 {
		s.logger.Info("memories restored",
			zap.String("agent", s.agentID),
			zap.Int("count", len(items)))
	}
}

// Add stores an item and returns its ID.
func (s *Store) Add(m *Item) string {
	if m == nil {
		return ""
	}
	s.items[m.ID] = m
	s.flush()
	return m.ID
}

// Record is a convenience that builds and stores an item in one step.
func (s *Store) Record(content any, importance, decayRate float64, associations map[string]any) *Item {
	m := NewItem(content, importance, decayRate, associations)
	s.Add(m)
	return m
}

// Get returns a memory by ID, or nil when absent.
func (s *Store) Get(id string) *Item { return s.items[id] }

// Update mutates an item in place. Importance and decay rate are
// re-clamped afterwards; returns false for unknown IDs.
func (s *Store) Update(id string, mutate func(*Item)) bool {
	m, ok := s.items[id]
	if !ok {
		return false
	}
	mutate(m)
	m.Importance = clamp01(m.Importance)
	m.DecayRate = clamp01(m.DecayRate)
	s.flush()
	return true
}

// Forget removes a memory by ID; absent IDs are a no-op.
func (s *Store) Forget(id string) bool {
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	s.flush()
	return true
}

// Retrieve returns memories matching the query, most recent first.
// limit <= 0 returns all matches.
func (s *Store) Retrieve(q Query, limit int) []*Item {
	var toks []string
	if q.Text != "" {
		toks = Tokenize(q.Text)
	}

	var out []*Item
	for _, m := range s.items {
		if !q.Start.IsZero() && m.Timestamp.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && m.Timestamp.After(q.End) {
			continue
		}
		if m.Importance < q.MinImportance {
			continue
		}
		if !matchAssociations(m, q.Associations) {
			continue
		}
		if len(toks) > 0 && !matchTokens(m, toks) {
			continue
		}
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// All returns every stored item, most recent first.
func (s *Store) All() []*Item {
	return s.Retrieve(Query{}, 0)
}

// PruneWeak evicts non-core items whose strength at now is below
// threshold and returns how many were removed.
func (s *Store) PruneWeak(threshold float64, now time.Time) int {
	var doomed []string
	for id, m := range s.items {
		if m.Category() == CategoryCore {
			continue
		}
		if m.Strength(now) < threshold {
			doomed = append(doomed, id)
		}
	}
	for _, id := range doomed {
		delete(s.items, id)
	}
	if len(doomed) > 0 {
		s.flush()
		s.logger.Debug("pruned weak memories",
			zap.String("agent", s.agentID),
			zap.Int("count", len(doomed)))
	}
	return len(doomed)
}

// flush writes the full item set through the persister, if any. Failures
// are logged, never propagated; a snapshot miss must not halt the tick.
func (s *Store) flush() {
	if s.persister == nil {
		return
	}
	items := make([]*Item, 0, len(s.items))
	for _, m := range s.items {
		items = append(items, m)
	}
	if err := s.persister.SaveMemories(context.Background(), s.agentID, items); err != nil {
		s.logger.Warn("memory snapshot save failed",
			zap.String("agent", s.agentID),
			zap.Error(err))
	}
}

func matchAssociations(m *Item, want map[string]any) bool {
	for k, v := range want {
		got, ok := m.Associations[k]
		if !ok {
			return false
		}
		wk, wok := scalarKey(k, v)
		gk, gok := scalarKey(k, got)
		if !wok || !gok || wk != gk {
			return false
		}
	}
	return true
}

func matchTokens(m *Item, toks []string) bool {
	have := make(map[string]struct{})
	for _, t := range Tokenize(textOf(m.Content)) {
		have[t] = struct{}{}
	}
	for _, t := range toks {
		if _, ok := have[t]; !ok {
			return false
		}
	}
	return true
}

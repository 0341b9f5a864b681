package memory

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakePersister struct {
	saved   map[string][]*Item
	saves   int
	failAll bool
}

func newFakePersister() *fakePersister {
	return &fakePersister{saved: make(map[string][]*Item)}
}

func (p *fakePersister) SaveMemories(_ context.Context, agentID string, items []*Item) error {
	if p.failAll {
		return context.DeadlineExceeded
	}
	p.saves++
	p.saved[agentID] = items
	return nil
}

func (p *fakePersister) LoadMemories(_ context.Context, agentID string) ([]*Item, error) {
	if p.failAll {
		return nil, context.DeadlineExceeded
	}
	return p.saved[agentID], nil
}

func (p *fakePersister) DeleteMemories(_ context.Context, agentID string) error {
	delete(p.saved, agentID)
	return nil
}

func (p *fakePersister) BackupMemories(context.Context, string) error { return nil }

func TestStoreCRUD(t *testing.T) {
	s := NewStore("cato", zap.NewNop())

	m := s.Record("spoke at the rostra", 0.6, 0.1, map[string]any{"venue": "rostra"})
	if s.Get(m.ID) == nil {
		t.Fatal("stored memory not retrievable")
	}
	if s.Get("missing") != nil {
		t.Error("unknown ID returned a memory")
	}

	if !s.Update(m.ID, func(it *Item) { it.Importance = 5 }) {
		t.Fatal("update failed")
	}
	if s.Get(m.ID).Importance != 1 {
		t.Errorf("importance not re-clamped on update: %v", s.Get(m.ID).Importance)
	}
	if s.Update("missing", func(*Item) {}) {
		t.Error("update reported success for unknown ID")
	}

	if !s.Forget(m.ID) || s.Get(m.ID) != nil {
		t.Error("forget did not remove the memory")
	}
	if s.Forget(m.ID) {
		t.Error("second forget reported success")
	}
}

func TestStoreRetrieveFilters(t *testing.T) {
	s := NewStore("cicero", zap.NewNop())
	s.Record("debated the land bill with Crassus", 0.8, 0.1, map[string]any{"topic": "land"})
	s.Record("dined with Atticus", 0.3, 0.1, map[string]any{"topic": "social"})

	got := s.Retrieve(Query{Text: "land bill"}, 0)
	if len(got) != 1 {
		t.Fatalf("text filter returned %d, want 1", len(got))
	}
	got = s.Retrieve(Query{MinImportance: 0.5}, 0)
	if len(got) != 1 {
		t.Fatalf("importance filter returned %d, want 1", len(got))
	}
	got = s.Retrieve(Query{Associations: map[string]any{"topic": "social"}}, 0)
	if len(got) != 1 {
		t.Fatalf("association filter returned %d, want 1", len(got))
	}
	if got := s.Retrieve(Query{}, 1); len(got) != 1 {
		t.Fatalf("limit returned %d, want 1", len(got))
	}
}

func TestStorePruneWeakScenario(t *testing.T) {
	s := NewStore("brutus", zap.NewNop())
	now := time.Now()

	weak := NewItem("a passing remark", 0.3, 0.3, nil)
	weak.Timestamp = now.Add(-10 * 24 * time.Hour) // strength ~= 0.015
	strong := NewItem("the conspiracy meeting", 0.5, 0, nil)
	strong.Timestamp = now.Add(-10 * 24 * time.Hour) // strength = 0.5
	s.Add(weak)
	s.Add(strong)

	if n := s.PruneWeak(0.1, now); n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	if s.Get(weak.ID) != nil {
		t.Error("weak memory survived prune")
	}
	if s.Get(strong.ID) == nil {
		t.Error("strong memory was pruned")
	}
}

func TestStoreWriteThroughAndRestore(t *testing.T) {
	p := newFakePersister()
	ctx := context.Background()

	s := NewStore("caesar", zap.NewNop())
	s.SetPersister(ctx, p)
	s.Record("crossed the Rubicon", 0.95, 0, nil)
	if p.saves == 0 {
		t.Fatal("mutation did not write through")
	}

	restored := NewStore("caesar", zap.NewNop())
	restored.SetPersister(ctx, p)
	if restored.Len() != 1 {
		t.Fatalf("restored %d memories, want 1", restored.Len())
	}
}

func TestStorePersistFailureDegrades(t *testing.T) {
	p := newFakePersister()
	p.failAll = true

	s := NewStore("caesar", zap.NewNop())
	s.SetPersister(context.Background(), p)

	// Save failures are logged, not surfaced; the store keeps working.
	m := s.Record("still ticking", 0.5, 0.1, nil)
	if s.Get(m.ID) == nil {
		t.Error("store lost memory after persist failure")
	}
}

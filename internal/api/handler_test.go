package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/curia/internal/agent"
	"github.com/nidhogg/curia/internal/event"
	"github.com/nidhogg/curia/internal/relation"
	"github.com/nidhogg/curia/internal/senate"
	"github.com/nidhogg/curia/internal/world"
)

// newTestHandler wires a Handler with a small in-memory world: two
// senators and one political edge.
func newTestHandler(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zap.NewNop()

	bus := event.NewBus(logger)
	relations := relation.NewManager(logger)
	relations.BindBus(bus)
	agents := agent.NewManager(bus, logger)

	for _, id := range []string{"cicero", "cato"} {
		a, err := senate.NewSenator(agent.Config{
			ID:   id,
			Name: id,
			Attributes: map[string]any{
				"faction":            senate.FactionOptimates,
				"speech_cooldown_ms": 0,
			},
		}, logger)
		if err != nil {
			t.Fatalf("NewSenator: %v", err)
		}
		if err := agents.Register(a); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if _, err := relations.Create("cicero", "cato", relation.TypePolitical, 0.4, nil); err != nil {
		t.Fatalf("Create relationship: %v", err)
	}

	clock := world.NewClock(time.Second, 1.0, logger)
	sim := world.NewSimulation(agents, bus, relations, world.Options{}, logger)
	clock.AddListener(sim)
	activity := world.NewActivityTracker(time.Minute, logger)
	activity.Bind(bus)
	growth := world.NewGrowthTracker(logger)
	growth.Bind(bus)

	h := NewHandler("curia", agents, relations, bus, clock, sim, activity, growth, logger)
	ts := httptest.NewServer(h.Router())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, ts *httptest.Server, path string, v any) int {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body, v any) int {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestHealthCheck(t *testing.T) {
	ts := newTestHandler(t)
	var body map[string]string
	if code := getJSON(t, ts, "/api/health", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "ok" || body["world"] != "curia" {
		t.Errorf("body = %v", body)
	}
}

func TestWorldStatus(t *testing.T) {
	ts := newTestHandler(t)
	var body map[string]any
	if code := getJSON(t, ts, "/api/world/status", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["agent_count"].(float64) != 2 {
		t.Errorf("agent_count = %v", body["agent_count"])
	}
	if body["relationships"].(float64) != 1 {
		t.Errorf("relationships = %v", body["relationships"])
	}
}

func TestListAndGetAgents(t *testing.T) {
	ts := newTestHandler(t)

	var list []map[string]any
	if code := getJSON(t, ts, "/api/agents", &list); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(list) != 2 {
		t.Fatalf("agents = %d", len(list))
	}

	var one map[string]any
	if code := getJSON(t, ts, "/api/agents/cicero", &one); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if one["id"] != "cicero" || one["activity"] != "idle" {
		t.Errorf("agent = %v", one)
	}

	if code := getJSON(t, ts, "/api/agents/nobody", nil); code != http.StatusNotFound {
		t.Errorf("missing agent status = %d", code)
	}
}

func TestPublishEventReachesAgents(t *testing.T) {
	ts := newTestHandler(t)

	var pub map[string]string
	code := postJSON(t, ts, "/api/events", map[string]any{
		"kind":   "speech",
		"source": "cato",
		"payload": map[string]any{
			"text":    "Carthage must be destroyed",
			"faction": senate.FactionOptimates,
		},
	}, &pub)
	if code != http.StatusAccepted {
		t.Fatalf("status = %d", code)
	}
	if pub["id"] == "" {
		t.Error("no event id returned")
	}

	// Cicero heard it and remembered it.
	var memories []map[string]any
	if code := getJSON(t, ts, "/api/agents/cicero/memories?text=carthage", &memories); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(memories) != 1 {
		t.Fatalf("memories = %d, want 1", len(memories))
	}
	if memories[0]["strength"].(float64) <= 0 {
		t.Errorf("strength = %v", memories[0]["strength"])
	}
}

func TestPublishEventValidation(t *testing.T) {
	ts := newTestHandler(t)
	if code := postJSON(t, ts, "/api/events", map[string]any{"source": "x"}, nil); code != http.StatusBadRequest {
		t.Errorf("missing kind status = %d", code)
	}
}

func TestAgentMemoriesQueryValidation(t *testing.T) {
	ts := newTestHandler(t)
	if code := getJSON(t, ts, "/api/agents/cicero/memories?min_importance=abc", nil); code != http.StatusBadRequest {
		t.Errorf("bad min_importance status = %d", code)
	}
	if code := getJSON(t, ts, "/api/agents/cicero/memories?limit=x", nil); code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", code)
	}
}

func TestRelationshipEndpoints(t *testing.T) {
	ts := newTestHandler(t)

	var all []map[string]any
	if code := getJSON(t, ts, "/api/relationships", &all); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(all) != 1 || all[0]["strength"].(float64) != 0.4 {
		t.Fatalf("relationships = %v", all)
	}

	var mine []map[string]any
	if code := getJSON(t, ts, "/api/agents/cicero/relationships", &mine); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(mine) != 1 {
		t.Errorf("agent relationships = %d", len(mine))
	}

	var none []map[string]any
	if code := getJSON(t, ts, "/api/relationships?type=business", &none); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(none) != 0 {
		t.Errorf("filtered relationships = %v", none)
	}
}

func TestTriggerTick(t *testing.T) {
	ts := newTestHandler(t)
	var body map[string]any
	if code := postJSON(t, ts, "/api/tick", nil, &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["ticks"].(float64) != 1 {
		t.Errorf("ticks = %v", body["ticks"])
	}
}

func TestTriggerPrune(t *testing.T) {
	ts := newTestHandler(t)
	var body map[string]int
	if code := postJSON(t, ts, "/api/prune", nil, &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["pruned"] != 0 {
		t.Errorf("pruned = %d", body["pruned"])
	}
}

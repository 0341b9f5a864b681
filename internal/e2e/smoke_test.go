//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"
)

var baseURL string

func TestMain(m *testing.M) {
	baseURL = os.Getenv("CURIA_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	// Wait for server readiness (up to 30s)
	ready := false
	for i := 0; i < 30; i++ {
		resp, err := http.Get(baseURL + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
		time.Sleep(1 * time.Second)
	}
	if !ready {
		fmt.Fprintf(os.Stderr, "server at %s not ready after 30s\n", baseURL)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func get(t *testing.T, path string, v any) {
	t.Helper()
	resp, err := http.Get(baseURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}

func TestWorldStatus(t *testing.T) {
	var status map[string]any
	get(t, "/api/world/status", &status)
	if status["agent_count"].(float64) == 0 {
		t.Error("no agents in the running world")
	}
	t.Logf("world: %v agents, %v relationships", status["agent_count"], status["relationships"])
}

func TestAgentsListed(t *testing.T) {
	var agents []map[string]any
	get(t, "/api/agents", &agents)
	if len(agents) == 0 {
		t.Fatal("agent roster empty")
	}
	for _, a := range agents {
		if a["id"] == "" {
			t.Errorf("agent without id: %v", a)
		}
	}
}

func TestPublishedEventLeavesMemories(t *testing.T) {
	var agents []map[string]any
	get(t, "/api/agents", &agents)
	if len(agents) == 0 {
		t.Skip("no agents to observe")
	}

	body, _ := json.Marshal(map[string]any{
		"kind":   "speech",
		"source": "smoke-test",
		"payload": map[string]any{
			"text": "smoke test oration",
		},
	})
	resp, err := http.Post(baseURL+"/api/events", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/events: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("publish status = %d", resp.StatusCode)
	}

	// Subscribed agents should have recorded the speech.
	time.Sleep(500 * time.Millisecond)
	found := false
	for _, a := range agents {
		var memories []map[string]any
		get(t, fmt.Sprintf("/api/agents/%s/memories?text=oration", a["id"]), &memories)
		if len(memories) > 0 {
			found = true
			break
		}
	}
	if !found {
		t.Error("no agent remembered the published speech")
	}
}

func TestManualTick(t *testing.T) {
	var before, after map[string]any
	get(t, "/api/world/status", &before)

	resp, err := http.Post(baseURL+"/api/tick", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/tick: %v", err)
	}
	resp.Body.Close()

	get(t, "/api/world/status", &after)
	if after["ticks"].(float64) <= before["ticks"].(float64) {
		t.Errorf("ticks did not advance: %v -> %v", before["ticks"], after["ticks"])
	}
}

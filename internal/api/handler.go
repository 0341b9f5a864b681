// Package api exposes the inspection surface: a read-mostly REST API for
// watching a running world plus a few operational levers (publishing an
// event, forcing a tick, pruning memories).
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/curia/internal/agent"
	"github.com/nidhogg/curia/internal/event"
	"github.com/nidhogg/curia/internal/memory"
	"github.com/nidhogg/curia/internal/relation"
	"github.com/nidhogg/curia/internal/world"
)

type memoryHolder interface {
	MemoryStore() *memory.Store
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	worldName string
	agents    *agent.Manager
	relations *relation.Manager
	bus       *event.Bus
	clock     *world.Clock
	sim       *world.Simulation
	activity  *world.ActivityTracker
	growth    *world.GrowthTracker
	logger    *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	worldName string,
	agents *agent.Manager,
	relations *relation.Manager,
	bus *event.Bus,
	clock *world.Clock,
	sim *world.Simulation,
	activity *world.ActivityTracker,
	growth *world.GrowthTracker,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		worldName: worldName,
		agents:    agents,
		relations: relations,
		bus:       bus,
		clock:     clock,
		sim:       sim,
		activity:  activity,
		growth:    growth,
		logger:    logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/world/status", h.worldStatus)

		r.Get("/agents", h.listAgents)
		r.Get("/agents/{id}", h.getAgent)
		r.Get("/agents/{id}/memories", h.getAgentMemories)
		r.Get("/agents/{id}/relationships", h.getAgentRelationships)
		r.Get("/agents/{id}/growth", h.getAgentGrowth)

		r.Get("/relationships", h.listRelationships)

		r.Post("/events", h.publishEvent)
		r.Post("/tick", h.triggerTick)
		r.Post("/prune", h.triggerPrune)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "world": h.worldName})
}

func (h *Handler) worldStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"world":         h.worldName,
		"world_time":    h.clock.WorldTime(),
		"ticks":         h.sim.Ticks(),
		"agent_count":   h.agents.Len(),
		"relationships": h.relations.Len(),
		"bus":           h.bus.Metrics(),
	})
}

type agentView struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Activity      world.Activity `json:"activity"`
	Subscriptions []string       `json:"subscriptions"`
	MemoryCount   int            `json:"memory_count"`
}

func (h *Handler) agentView(a agent.Agent) agentView {
	v := agentView{
		ID:            a.ID(),
		Name:          a.Name(),
		Activity:      h.activity.State(a.ID(), time.Now()),
		Subscriptions: a.Subscriptions(),
	}
	if mh, ok := a.(memoryHolder); ok {
		v.MemoryCount = mh.MemoryStore().Len()
	}
	return v
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	list := h.agents.List()
	views := make([]agentView, 0, len(list))
	for _, a := range list {
		views = append(views, h.agentView(a))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	a := h.agents.Get(chi.URLParam(r, "id"))
	if a == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return
	}
	writeJSON(w, http.StatusOK, h.agentView(a))
}

// getAgentMemories supports ?min_importance=, ?text=, ?assoc_key= with
// ?assoc_value=, and ?limit= query parameters.
func (h *Handler) getAgentMemories(w http.ResponseWriter, r *http.Request) {
	a := h.agents.Get(chi.URLParam(r, "id"))
	if a == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return
	}
	mh, ok := a.(memoryHolder)
	if !ok {
		writeJSON(w, http.StatusOK, []any{})
		return
	}

	q := memory.Query{Text: r.URL.Query().Get("text")}
	if s := r.URL.Query().Get("min_importance"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad min_importance"})
			return
		}
		q.MinImportance = v
	}
	if key := r.URL.Query().Get("assoc_key"); key != "" {
		q.Associations = map[string]any{key: r.URL.Query().Get("assoc_value")}
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad limit"})
			return
		}
		limit = v
	}

	items := mh.MemoryStore().Retrieve(q, limit)
	now := time.Now()
	out := make([]map[string]any, 0, len(items))
	for _, m := range items {
		view := m.ToMap()
		view["strength"] = m.Strength(now)
		view["category"] = m.Category()
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getAgentRelationships(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.agents.Get(id) == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return
	}
	writeJSON(w, http.StatusOK, relationshipViews(h.relations.ByAgent(id)))
}

func (h *Handler) getAgentGrowth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.agents.Get(id) == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return
	}
	writeJSON(w, http.StatusOK, h.growth.ProfileFor(id))
}

func (h *Handler) listRelationships(w http.ResponseWriter, r *http.Request) {
	rels := h.relations.All()
	if relType := r.URL.Query().Get("type"); relType != "" {
		rels = h.relations.ByType(relType)
	}
	writeJSON(w, http.StatusOK, relationshipViews(rels))
}

func relationshipViews(rels []*relation.Relationship) []map[string]any {
	out := make([]map[string]any, 0, len(rels))
	for _, rel := range rels {
		out = append(out, map[string]any{
			"id":        rel.ID,
			"agent_a":   rel.AgentA,
			"agent_b":   rel.AgentB,
			"type":      rel.Type,
			"strength":  rel.Strength,
			"sentiment": rel.Sentiment(),
		})
	}
	return out
}

type publishRequest struct {
	Kind    string         `json:"kind"`
	Source  string         `json:"source"`
	Target  string         `json:"target,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (h *Handler) publishEvent(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Kind == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "kind is required"})
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}
	e := event.New(req.Kind, req.Source, req.Target, req.Payload)
	if !h.bus.Publish(e) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "event rejected by filter"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": e.ID})
}

func (h *Handler) triggerTick(w http.ResponseWriter, r *http.Request) {
	h.clock.Advance(0)
	writeJSON(w, http.StatusOK, map[string]any{
		"world_time": h.clock.WorldTime(),
		"ticks":      h.sim.Ticks(),
	})
}

func (h *Handler) triggerPrune(w http.ResponseWriter, r *http.Request) {
	pruned := h.sim.PruneMemories(time.Now())
	writeJSON(w, http.StatusOK, map[string]int{"pruned": pruned})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

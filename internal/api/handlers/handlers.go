// Package handlers implements the HTTP handlers for the Artloom
// server: canvas and agent CRUD, the chat pipeline, generation
// endpoints with their provider webhooks, and the websocket mutation
// feed.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/artloom/artloom/internal/api/middleware"
	"github.com/artloom/artloom/internal/correlator"
	"github.com/artloom/artloom/internal/events"
	"github.com/artloom/artloom/internal/graph"
	"github.com/artloom/artloom/internal/lifecycle"
	"github.com/artloom/artloom/internal/optimistic"
	"github.com/artloom/artloom/internal/orchestrator"
	"github.com/artloom/artloom/internal/provider"
	"github.com/artloom/artloom/internal/storage"
	"github.com/artloom/artloom/internal/store"
	"github.com/artloom/artloom/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Store        store.Store
	Media        *storage.MediaStore
	Orchestrator *orchestrator.Orchestrator
	Gateway      *provider.Gateway
	Correlator   *correlator.Correlator
	Graph        *graph.Manager
	Bus          *events.Bus
	Deletion     *optimistic.DeletionCoordinator
}

// New creates a Handlers instance with all dependencies.
func New(s store.Store, media *storage.MediaStore, o *orchestrator.Orchestrator, gw *provider.Gateway, bus *events.Bus) *Handlers {
	return &Handlers{
		Store:        s,
		Media:        media,
		Orchestrator: o,
		Gateway:      gw,
		Correlator:   correlator.New(s, media),
		Graph:        graph.NewManager(s),
		Bus:          bus,
		Deletion:     optimistic.NewDeletionCoordinator(s),
	}
}

// ── Canvas handlers ─────────────────────────────────────────

func (h *Handlers) ListCanvases(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetUserID(r.Context())
	canvases, err := h.Store.ListCanvases(r.Context(), owner)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if canvases == nil {
		canvases = []models.Canvas{}
	}
	respondJSON(w, http.StatusOK, canvases)
}

func (h *Handlers) CreateCanvas(w http.ResponseWriter, r *http.Request) {
	var req models.Canvas
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.ID = uuid.New().String()
	req.OwnerID = middleware.GetUserID(r.Context())
	if req.Name == "" {
		req.Name = "Untitled canvas"
	}
	req.CreatedAt = time.Now().UTC()
	req.UpdatedAt = req.CreatedAt

	if err := h.Store.CreateCanvas(r.Context(), &req); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Info().Str("canvas", req.ID).Str("owner", req.OwnerID).Msg("Canvas created")
	respondJSON(w, http.StatusCreated, req)
}

func (h *Handlers) GetCanvas(w http.ResponseWriter, r *http.Request) {
	canvas, err := h.Store.GetCanvas(r.Context(), chi.URLParam(r, "canvasID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, canvas)
}

func (h *Handlers) UpdateCanvas(w http.ResponseWriter, r *http.Request) {
	canvas, err := h.Store.GetCanvas(r.Context(), chi.URLParam(r, "canvasID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	var patch struct {
		Name      *string  `json:"name"`
		ViewportX *float64 `json:"viewport_x"`
		ViewportY *float64 `json:"viewport_y"`
		Zoom      *float64 `json:"zoom"`
	}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if patch.Name != nil {
		canvas.Name = *patch.Name
	}
	if patch.ViewportX != nil {
		canvas.ViewportX = *patch.ViewportX
	}
	if patch.ViewportY != nil {
		canvas.ViewportY = *patch.ViewportY
	}
	if patch.Zoom != nil {
		canvas.Zoom = *patch.Zoom
	}
	canvas.UpdatedAt = time.Now().UTC()

	if err := h.Store.UpdateCanvas(r.Context(), canvas); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, canvas)
}

func (h *Handlers) DeleteCanvas(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasID")
	if err := h.Store.DeleteCanvas(r.Context(), canvasID); err != nil {
		respondStoreError(w, err)
		return
	}
	log.Info().Str("canvas", canvasID).Msg("Canvas deleted")
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.Store.ListMessages(r.Context(), chi.URLParam(r, "canvasID"), 0)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	respondJSON(w, http.StatusOK, msgs)
}

// ── Agent handlers ──────────────────────────────────────────

func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Store.ListAgents(r.Context(), chi.URLParam(r, "canvasID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if agents == nil {
		agents = []models.Agent{}
	}
	respondJSON(w, http.StatusOK, agents)
}

func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req models.Agent
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !req.Kind.Valid() {
		respondError(w, http.StatusBadRequest, "Unknown agent kind")
		return
	}

	req.ID = uuid.New().String()
	req.CanvasID = chi.URLParam(r, "canvasID")
	req.OwnerID = middleware.GetUserID(r.Context())
	req.Status = models.StatusIdle
	req.OutputURL = ""
	req.RequestID = ""
	if req.Tier == "" {
		req.Tier = models.TierNormal
	}
	req.CreatedAt = time.Now().UTC()
	req.UpdatedAt = req.CreatedAt

	if err := h.Store.CreateAgent(r.Context(), &req); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Info().Str("agent", req.ID).Str("kind", string(req.Kind)).Str("canvas", req.CanvasID).Msg("Agent created")
	respondJSON(w, http.StatusCreated, req)
}

func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.Store.GetAgent(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

// PatchAgent updates the mutable fields a client edits between
// generations: prompt, tier, options, geometry, input selectors.
func (h *Handlers) PatchAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.Store.GetAgent(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	var patch struct {
		Prompt           *string                `json:"prompt"`
		Tier             *string                `json:"tier"`
		Options          map[string]interface{} `json:"options"`
		X                *float64               `json:"x"`
		Y                *float64               `json:"y"`
		Width            *float64               `json:"width"`
		Height           *float64               `json:"height"`
		UploadedImageURL *string                `json:"uploaded_image_url"`
		ActiveImageURL   *string                `json:"active_image_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if patch.Prompt != nil {
		agent.Prompt = *patch.Prompt
	}
	if patch.Tier != nil {
		tier := models.ProviderTier(*patch.Tier)
		if tier != models.TierNormal && tier != models.TierPro {
			respondError(w, http.StatusBadRequest, "Unknown tier")
			return
		}
		agent.Tier = tier
	}
	if patch.Options != nil {
		agent.Options = patch.Options
	}
	if patch.X != nil {
		agent.X = *patch.X
	}
	if patch.Y != nil {
		agent.Y = *patch.Y
	}
	if patch.Width != nil {
		agent.Width = *patch.Width
	}
	if patch.Height != nil {
		agent.Height = *patch.Height
	}
	if patch.UploadedImageURL != nil {
		agent.UploadedImageURL = *patch.UploadedImageURL
	}
	if patch.ActiveImageURL != nil {
		agent.ActiveImageURL = *patch.ActiveImageURL
	}
	agent.UpdatedAt = time.Now().UTC()

	if err := h.Store.UpdateAgent(r.Context(), agent); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

// DeleteAgent removes one agent immediately. Idempotent: deleting an
// unknown id succeeds, since redundant deletes arrive during batch
// removal.
func (h *Handlers) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if err := h.Deletion.Complete(r.Context(), agentID); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// MarkAgentsDeleting atomically flags a batch of agents for animated
// removal; clients report back per agent via DELETE /agents/{id}.
func (h *Handlers) MarkAgentsDeleting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentIDs []string `json:"agent_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.AgentIDs) == 0 {
		respondError(w, http.StatusBadRequest, "agent_ids is required")
		return
	}

	canvasID := chi.URLParam(r, "canvasID")
	if err := h.Deletion.Begin(r.Context(), canvasID, req.AgentIDs); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"marked":  len(req.AgentIDs),
	})
}

// ── Connection handlers ─────────────────────────────────────

func (h *Handlers) ConnectAgents(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceAgentID string `json:"sourceAgentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SourceAgentID == "" {
		respondError(w, http.StatusBadRequest, "sourceAgentId is required")
		return
	}

	target, err := h.Graph.Connect(r.Context(), req.SourceAgentID, chi.URLParam(r, "agentID"))
	if err != nil {
		if store.IsNotFound(err) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, target)
}

func (h *Handlers) DisconnectAgent(w http.ResponseWriter, r *http.Request) {
	target, err := h.Graph.Disconnect(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		if store.IsNotFound(err) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, target)
}

// RegenerateAgent re-runs generation for an existing agent. The job
// runs detached; the response reports the processing state.
func (h *Handlers) RegenerateAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.Store.GetAgent(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	lifecycle.MarkProcessing(agent, "")
	if err := h.Store.UpdateAgent(r.Context(), agent); err != nil {
		respondStoreError(w, err)
		return
	}

	id := agent.ID
	go func() {
		if _, err := h.Gateway.Generate(context.Background(), id, ""); err != nil {
			log.Warn().Err(err).Str("agent", id).Msg("Regeneration failed")
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"status":  models.StatusProcessing,
	})
}

// ── Shared helpers ──────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError maps store errors onto the API contract: 404 for
// missing entities, 500 for the rest.
func respondStoreError(w http.ResponseWriter, err error) {
	if store.IsNotFound(err) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

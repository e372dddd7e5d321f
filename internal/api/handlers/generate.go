package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/artloom/artloom/internal/provider"
	"github.com/artloom/artloom/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// generateRequest is the body of POST /generate/{kind}. With an
// agentId the job runs against that agent's record; without one the
// call is ad-hoc and only returns the provider result.
type generateRequest struct {
	Prompt   string                 `json:"prompt"`
	AgentID  string                 `json:"agentId"`
	Tier     string                 `json:"tier"`
	Options  map[string]interface{} `json:"options"`
	ImageURL string                 `json:"imageUrl"`
}

// Generate submits one generation job for the kind in the URL.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	kind := models.AgentKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		respondError(w, http.StatusBadRequest, "Unknown generation kind")
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.AgentID != "" {
		h.generateForAgent(w, r, req.AgentID)
		return
	}

	if req.Prompt == "" {
		respondError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	p := h.Gateway.ProviderFor(kind)
	if p == nil {
		respondError(w, http.StatusBadRequest, "No provider registered for "+string(kind))
		return
	}

	tier := models.TierNormal
	if req.Tier == string(models.TierPro) {
		tier = models.TierPro
	}
	res, err := p.Submit(r.Context(), provider.SubmitRequest{
		Prompt:        req.Prompt,
		Tier:          tier,
		Options:       req.Options,
		InputImageURL: req.ImageURL,
		CallbackURL:   h.Gateway.CallbackURL(kind),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if res.Async() {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":    true,
			"request_id": res.RequestID,
			"status":     "processing",
		})
		return
	}

	url := res.MediaURL
	if url == "" {
		if url, err = h.Media.SaveBase64(res.MediaBase64, res.ContentType); err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"image":   map[string]string{"url": url},
	})
}

// generateForAgent reuses the agent pipeline: the record flips to
// processing now and the job completes in the background.
func (h *Handlers) generateForAgent(w http.ResponseWriter, r *http.Request, agentID string) {
	agent, err := h.Store.GetAgent(r.Context(), agentID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	id := agent.ID
	go func() {
		if _, err := h.Gateway.Generate(context.Background(), id, ""); err != nil {
			log.Warn().Err(err).Str("agent", id).Msg("Generation failed")
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"agentId": id,
		"status":  models.StatusProcessing,
	})
}

// Webhook receives provider completion callbacks. Always acks with
// {received:true}: a provider retrying a stale callback gains nothing,
// and signalling an error would only cause useless redelivery.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	kind := models.AgentKind(chi.URLParam(r, "kind"))
	p := h.Gateway.ProviderFor(kind)
	if p == nil {
		log.Warn().Str("kind", string(kind)).Msg("Webhook for unregistered provider kind")
		respondJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	var payload provider.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Msg("Undecodable webhook payload")
		respondJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	if _, err := h.Correlator.OnCallback(r.Context(), p, payload); err != nil {
		log.Error().Err(err).Str("request_id", payload.RequestID).Msg("Webhook processing failed")
	}
	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

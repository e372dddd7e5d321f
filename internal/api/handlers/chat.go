package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/artloom/artloom/internal/api/middleware"
	"github.com/artloom/artloom/internal/orchestrator"
	"github.com/rs/zerolog/log"
)

var errInvalidBody = errors.New("invalid request body")

// maxUploadBytes caps the total multipart memory for chat uploads.
const maxUploadBytes = 32 << 20 // 32 MiB

// chatRequest is the JSON body of POST /chat/process. Multipart
// requests carry the same fields as form values plus file parts.
type chatRequest struct {
	Message          string   `json:"message"`
	CanvasID         string   `json:"canvasId"`
	ChatAgentID      string   `json:"chatAgentId"`
	ReferencedAgents []string `json:"referencedAgents"`
	UploadedFiles    []string `json:"uploadedFiles"`
}

// ProcessChat runs the chat pipeline: resolve intent, create agents,
// kick off generation. The response returns as soon as agents exist;
// generation results arrive on the mutation feed.
func (h *Handlers) ProcessChat(w http.ResponseWriter, r *http.Request) {
	req, uploads, err := parseChatRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Message == "" || req.CanvasID == "" || req.ChatAgentID == "" {
		respondError(w, http.StatusBadRequest, "message, canvasId and chatAgentId are required")
		return
	}

	for _, u := range req.UploadedFiles {
		if u != "" {
			uploads = append(uploads, orchestrator.Upload{URL: u})
		}
	}

	result, err := h.Orchestrator.Process(r.Context(), orchestrator.ProcessInput{
		CanvasID:           req.CanvasID,
		ChatAgentID:        req.ChatAgentID,
		UserID:             middleware.GetUserID(r.Context()),
		Message:            req.Message,
		ReferencedAgentIDs: req.ReferencedAgents,
		Uploads:            uploads,
	})
	if err != nil {
		log.Error().Err(err).Str("canvas", req.CanvasID).Msg("Chat processing failed")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"response":      result.Response,
		"intent":        result.Intent,
		"confidence":    result.Confidence,
		"operations":    result.Operations,
		"createdAgents": result.Agents,
	})
}

// parseChatRequest handles both content types the endpoint accepts.
func parseChatRequest(r *http.Request) (*chatRequest, []orchestrator.Upload, error) {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "multipart/form-data") {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, nil, errInvalidBody
		}
		return &req, nil, nil
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, nil, errInvalidBody
	}
	req := &chatRequest{
		Message:     r.FormValue("message"),
		CanvasID:    r.FormValue("canvasId"),
		ChatAgentID: r.FormValue("chatAgentId"),
	}
	if refs := r.FormValue("referencedAgents"); refs != "" {
		// JSON array or comma-separated list, whichever the client sent.
		if err := json.Unmarshal([]byte(refs), &req.ReferencedAgents); err != nil {
			req.ReferencedAgents = splitNonEmpty(refs)
		}
	}

	var uploads []orchestrator.Upload
	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["files"] {
			f, err := fh.Open()
			if err != nil {
				return nil, nil, err
			}
			data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
			f.Close()
			if err != nil {
				return nil, nil, err
			}
			uploads = append(uploads, orchestrator.Upload{
				Filename: fh.Filename,
				Data:     data,
			})
		}
	}
	return req, uploads, nil
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Package orchestrator drives the chat-to-canvas pipeline: persist
// uploads, resolve the message's intent, place the resulting agents on
// the canvas grid, and kick off generation without making the caller
// wait for it.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/artloom/artloom/internal/intent"
	"github.com/artloom/artloom/internal/lifecycle"
	"github.com/artloom/artloom/internal/provider"
	"github.com/artloom/artloom/internal/storage"
	"github.com/artloom/artloom/internal/store"
	"github.com/artloom/artloom/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Grid layout for newly created agents.
const (
	gridOriginX = 100
	gridOriginY = 100
	gridStep    = 340
	gridPerRow  = 3

	agentWidth  = 300
	agentHeight = 300

	historyLimit = 20
)

// resolver is the slice of the intent chain the orchestrator needs.
type resolver interface {
	Resolve(ctx context.Context, req intent.Request) (*models.IntentResult, error)
}

// Upload is one file attached to a chat message.
type Upload struct {
	Filename string
	Data     []byte

	// URL is set instead of Data when the client already hosts the
	// file somewhere public.
	URL string
}

// ProcessInput is one chat message plus its canvas context.
type ProcessInput struct {
	CanvasID           string
	ChatAgentID        string
	UserID             string
	Message            string
	ReferencedAgentIDs []string
	Uploads            []Upload
}

// ProcessResult is what the chat endpoint returns immediately. Agents
// listed here may still be generating; their terminal states arrive on
// the mutation feed.
type ProcessResult struct {
	Response   string                     `json:"response"`
	Intent     models.Intent              `json:"intent"`
	Resolver   string                     `json:"resolver"`
	Confidence float64                    `json:"confidence"`
	Operations []models.AgentCreationSpec `json:"operations"`
	Agents     []models.Agent             `json:"agents"`
}

// Orchestrator wires the intent chain to the store and the provider
// gateway.
type Orchestrator struct {
	store    store.Store
	media    *storage.MediaStore
	resolver resolver
	gateway  *provider.Gateway

	// wg tracks detached generation goroutines for clean shutdown.
	wg sync.WaitGroup
}

func New(s store.Store, media *storage.MediaStore, r resolver, gw *provider.Gateway) *Orchestrator {
	return &Orchestrator{store: s, media: media, resolver: r, gateway: gw}
}

// Process handles one chat message end to end. It returns once the
// agents exist and any generation jobs are submitted in the background;
// it never blocks on providers.
func (o *Orchestrator) Process(ctx context.Context, in ProcessInput) (*ProcessResult, error) {
	o.ensureCanvas(ctx, in)

	uploadURLs, err := o.persistUploads(ctx, in.Uploads)
	if err != nil {
		return nil, err
	}

	req := intent.Request{
		Message:           in.Message,
		UploadedImageURLs: uploadURLs,
		ReferencedAgents:  o.loadReferencedAgents(ctx, in.ReferencedAgentIDs),
	}
	if history, err := o.store.ListMessages(ctx, in.CanvasID, historyLimit); err == nil {
		req.History = history
	}

	res, err := o.resolver.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &ProcessResult{
		Response:   res.Response,
		Intent:     res.Intent,
		Resolver:   res.Resolver,
		Confidence: res.Confidence,
		Operations: res.Operations,
	}
	if res.Intent == models.IntentGeneralChat {
		o.appendChat(ctx, in, res, uploadURLs, nil)
		return out, nil
	}

	agents, err := o.createAgents(ctx, in, res.Operations)
	if err != nil {
		return nil, err
	}
	out.Agents = agents
	o.appendChat(ctx, in, res, uploadURLs, agents)

	if res.AutoGenerate {
		o.startGeneration(agents)
	}
	return out, nil
}

// Wait blocks until all detached generation goroutines finish. Used on
// shutdown.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// ensureCanvas creates the canvas on first access. Best-effort: if the
// store is unhealthy the pipeline fails on its next access anyway.
func (o *Orchestrator) ensureCanvas(ctx context.Context, in ProcessInput) {
	if _, err := o.store.GetCanvas(ctx, in.CanvasID); err == nil || !store.IsNotFound(err) {
		return
	}
	now := time.Now().UTC()
	canvas := &models.Canvas{
		ID:        in.CanvasID,
		OwnerID:   in.UserID,
		Name:      "Untitled canvas",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.CreateCanvas(ctx, canvas); err != nil {
		log.Warn().Err(err).Str("canvas", in.CanvasID).Msg("Failed to lazily create canvas")
		return
	}
	log.Info().Str("canvas", in.CanvasID).Str("owner", in.UserID).Msg("Canvas created on first access")
}

// persistUploads writes raw uploads to media storage. URL uploads are
// mirrored locally unless the host is already public.
func (o *Orchestrator) persistUploads(ctx context.Context, uploads []Upload) ([]string, error) {
	var urls []string
	for _, u := range uploads {
		if u.URL != "" {
			mirrored, err := o.media.Download(ctx, u.URL)
			if err != nil {
				return nil, err
			}
			urls = append(urls, mirrored)
			continue
		}
		saved, err := o.media.Save(u.Filename, u.Data)
		if err != nil {
			return nil, err
		}
		urls = append(urls, saved)
	}
	return urls, nil
}

// loadReferencedAgents resolves references best-effort: a stale id in
// the message must not sink the whole request.
func (o *Orchestrator) loadReferencedAgents(ctx context.Context, ids []string) []models.Agent {
	var agents []models.Agent
	for _, id := range ids {
		a, err := o.store.GetAgent(ctx, id)
		if err != nil {
			log.Warn().Str("agent", id).Msg("Referenced agent not found, skipping")
			continue
		}
		agents = append(agents, *a)
	}
	return agents
}

// appendChat records the exchange. Best-effort: chat history is a
// convenience, not part of the operation's contract.
func (o *Orchestrator) appendChat(ctx context.Context, in ProcessInput, res *models.IntentResult, uploadURLs []string, created []models.Agent) {
	now := time.Now().UTC()
	user := &models.ChatMessage{
		ID:          uuid.New().String(),
		CanvasID:    in.CanvasID,
		ChatAgentID: in.ChatAgentID,
		Role:        models.RoleUser,
		Content:     in.Message,
		Meta: &models.ChatMeta{
			ReferencedAgentIDs: in.ReferencedAgentIDs,
			UploadedFileURLs:   uploadURLs,
		},
		CreatedAt: now,
	}
	if err := o.store.AppendMessage(ctx, user); err != nil {
		log.Warn().Err(err).Msg("Failed to append user chat message")
	}
	if res.Response == "" && len(created) == 0 {
		return
	}
	createdIDs := make([]string, 0, len(created))
	for _, a := range created {
		createdIDs = append(createdIDs, a.ID)
	}
	assistant := &models.ChatMessage{
		ID:          uuid.New().String(),
		CanvasID:    in.CanvasID,
		ChatAgentID: in.ChatAgentID,
		Role:        models.RoleAssistant,
		Content:     res.Response,
		Meta: &models.ChatMeta{
			CreatedAgentIDs: createdIDs,
		},
		CreatedAt: now,
	}
	if err := o.store.AppendMessage(ctx, assistant); err != nil {
		log.Warn().Err(err).Msg("Failed to append assistant chat message")
	}
}

// createAgents places one agent per operation on the grid, in parallel.
// Slots are assigned before the goroutines fan out so positions are
// deterministic regardless of completion order. A failed creation is
// dropped from the result set without aborting its siblings: the canvas
// can vanish mid-flight, and losing one agent must not lose the batch.
func (o *Orchestrator) createAgents(ctx context.Context, in ProcessInput, ops []models.AgentCreationSpec) ([]models.Agent, error) {
	existing, err := o.store.ListAgents(ctx, in.CanvasID)
	if err != nil {
		return nil, err
	}
	base := len(existing)
	now := time.Now().UTC()

	agents := make([]models.Agent, len(ops))
	failed := make([]error, len(ops))
	var g errgroup.Group
	for i, op := range ops {
		x, y := gridSlot(base + i)
		// Creation times are staggered so list order stays the
		// operation order.
		created := now.Add(time.Duration(i) * time.Microsecond)
		agent := models.Agent{
			ID:        uuid.New().String(),
			CanvasID:  in.CanvasID,
			OwnerID:   in.UserID,
			Kind:      op.Kind,
			Status:    models.StatusIdle,
			Prompt:    op.Prompt,
			Tier:      op.Tier,
			Options:   op.Options,
			X:         x,
			Y:         y,
			Width:     agentWidth,
			Height:    agentHeight,
			CreatedAt: created,
			UpdatedAt: created,
		}
		if src := op.InputSource; src != nil {
			switch src.Type {
			case models.SourceUploadedFile:
				agent.UploadedImageURL = src.FileURL
			case models.SourceAgentConnection:
				agent.SourceAgentID = src.SourceAgentID
			}
		}
		agents[i] = agent

		i := i
		g.Go(func() error {
			if err := o.store.CreateAgent(ctx, &agents[i]); err != nil {
				log.Warn().Err(err).
					Str("canvas", in.CanvasID).
					Str("kind", string(agents[i].Kind)).
					Msg("Agent creation failed, dropped from batch")
				failed[i] = err
			}
			return nil
		})
	}
	g.Wait()

	created := make([]models.Agent, 0, len(agents))
	for i := range agents {
		if failed[i] == nil {
			created = append(created, agents[i])
		}
	}
	return created, nil
}

// startGeneration flips the new agents to processing and launches one
// detached job per agent. The jobs outlive the HTTP request, so they
// run on a background context.
func (o *Orchestrator) startGeneration(agents []models.Agent) {
	for i := range agents {
		a := &agents[i]
		lifecycle.MarkProcessing(a, "")
		if err := o.store.UpdateAgent(context.Background(), a); err != nil {
			log.Error().Err(err).Str("agent", a.ID).Msg("Failed to mark agent processing")
			continue
		}

		id := a.ID
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if _, err := o.gateway.Generate(context.Background(), id, ""); err != nil {
				log.Warn().Err(err).Str("agent", id).Msg("Background generation failed")
			}
		}()
	}
}

// gridSlot maps an ordinal to canvas coordinates: rows of gridPerRow,
// left to right, top to bottom.
func gridSlot(ordinal int) (float64, float64) {
	col := ordinal % gridPerRow
	row := ordinal / gridPerRow
	return float64(gridOriginX + col*gridStep), float64(gridOriginY + row*gridStep)
}

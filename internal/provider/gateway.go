package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/artloom/artloom/internal/lifecycle"
	"github.com/artloom/artloom/internal/storage"
	"github.com/artloom/artloom/internal/store"
	"github.com/artloom/artloom/pkg/models"
	"github.com/rs/zerolog/log"
)

// Gateway routes generation jobs to the provider registered for each
// agent kind and applies the resulting status transitions.
type Gateway struct {
	store     store.Store
	media     *storage.MediaStore
	providers map[models.AgentKind]Provider

	// callbackBase is the externally reachable prefix for webhook
	// URLs, e.g. "https://api.artloom.dev/api/v1".
	callbackBase string
}

// NewGateway creates an empty gateway; register providers with Register.
func NewGateway(s store.Store, media *storage.MediaStore, callbackBase string) *Gateway {
	return &Gateway{
		store:        s,
		media:        media,
		providers:    make(map[models.AgentKind]Provider),
		callbackBase: callbackBase,
	}
}

// Register adds or replaces the provider for its kind.
func (g *Gateway) Register(p Provider) {
	g.providers[p.Kind()] = p
	log.Info().Str("kind", string(p.Kind())).Msg("Generation provider registered")
}

// ProviderFor returns the provider registered for a kind, or nil.
func (g *Gateway) ProviderFor(kind models.AgentKind) Provider {
	return g.providers[kind]
}

// CallbackURL returns the webhook URL registered with async providers
// for a kind.
func (g *Gateway) CallbackURL(kind models.AgentKind) string {
	return fmt.Sprintf("%s/generate/%s/webhook", g.callbackBase, kind)
}

// ResolveInputImage picks the input image for an image-edit agent.
// Precedence: explicit active-image override, then a locally supplied
// upload, then the agent's uploaded image, then the connected source
// agent's current output. Empty when nothing resolves.
func (g *Gateway) ResolveInputImage(ctx context.Context, agent *models.Agent, localUploadURL string) string {
	if agent.ActiveImageURL != "" {
		return agent.ActiveImageURL
	}
	if localUploadURL != "" {
		return localUploadURL
	}
	if agent.UploadedImageURL != "" {
		return agent.UploadedImageURL
	}
	if agent.SourceAgentID != "" {
		src, err := g.store.GetAgent(ctx, agent.SourceAgentID)
		if err != nil {
			log.Warn().Err(err).
				Str("agent", agent.ID).
				Str("source", agent.SourceAgentID).
				Msg("Connected source agent not found")
			return ""
		}
		return src.OutputURL
	}
	return ""
}

// Generate runs one job for an agent: resolves the input, submits to
// the provider, and applies the resulting transition. Sync results are
// persisted to media storage and the agent moves straight to success;
// async submissions record the request id on the agent before
// returning. Any failure transitions the agent to failed.
func (g *Gateway) Generate(ctx context.Context, agentID string, localUploadURL string) (*models.Agent, error) {
	agent, err := g.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	p := g.providers[agent.Kind]
	if p == nil {
		return g.fail(ctx, agent, fmt.Sprintf("no provider registered for %s", agent.Kind))
	}

	req := SubmitRequest{
		Prompt:  agent.Prompt,
		Tier:    agent.Tier,
		Options: agent.Options,
	}

	if agent.Kind == models.KindImageEdit {
		req.InputImageURL = g.ResolveInputImage(ctx, agent, localUploadURL)
		if req.InputImageURL == "" {
			return g.fail(ctx, agent, "no input image available")
		}
	} else if agent.Kind == models.KindVideoGenerate {
		// Optional image-to-video input.
		req.InputImageURL = g.ResolveInputImage(ctx, agent, localUploadURL)
	}

	req.CallbackURL = g.CallbackURL(agent.Kind)

	// The agent shows a loading state while the provider call is
	// outstanding; for sync providers this is the whole job.
	lifecycle.MarkProcessing(agent, "")
	if err := g.store.UpdateAgent(ctx, agent); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := p.Submit(ctx, req)
	if err != nil {
		log.Warn().Err(err).
			Str("agent", agent.ID).
			Str("kind", string(agent.Kind)).
			Msg("Provider submission failed")
		return g.fail(ctx, agent, err.Error())
	}

	if res.Async() {
		// Record the id before returning: the webhook may beat us
		// otherwise there is nothing to correlate against.
		lifecycle.MarkProcessing(agent, res.RequestID)
		if err := g.store.UpdateAgent(ctx, agent); err != nil {
			return nil, err
		}
		log.Info().
			Str("agent", agent.ID).
			Str("kind", string(agent.Kind)).
			Str("request_id", res.RequestID).
			Msg("Async generation submitted")
		return agent, nil
	}

	outputURL, err := g.persistResult(ctx, res)
	if err != nil {
		return g.fail(ctx, agent, err.Error())
	}
	if err := lifecycle.MarkSuccess(agent, outputURL); err != nil {
		return g.fail(ctx, agent, err.Error())
	}
	if err := g.store.UpdateAgent(ctx, agent); err != nil {
		return nil, err
	}

	log.Info().
		Str("agent", agent.ID).
		Str("kind", string(agent.Kind)).
		Dur("took", time.Since(start)).
		Msg("Sync generation completed")
	return agent, nil
}

// persistResult stores a sync provider's inline media locally and
// returns the public URL.
func (g *Gateway) persistResult(ctx context.Context, res *SubmitResult) (string, error) {
	if res.MediaBase64 != "" {
		return g.media.SaveBase64(res.MediaBase64, res.ContentType)
	}
	if res.MediaURL != "" {
		return g.media.Download(ctx, res.MediaURL)
	}
	return "", fmt.Errorf("provider returned neither media nor request id")
}

// fail transitions the agent to failed and reports the reason as the
// call error. The last good output survives (see lifecycle.MarkFailed).
func (g *Gateway) fail(ctx context.Context, agent *models.Agent, reason string) (*models.Agent, error) {
	lifecycle.MarkFailed(agent, reason)
	if err := g.store.UpdateAgent(ctx, agent); err != nil {
		log.Error().Err(err).Str("agent", agent.ID).Msg("Failed to record agent failure")
	}
	return agent, fmt.Errorf("generation for agent %s failed: %s", agent.ID, reason)
}

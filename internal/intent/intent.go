// Package intent turns a free-form chat message into structured canvas
// operations. Resolution runs through a chain of resolvers in fixed
// order — an LLM with native function calling, an LLM prompted for
// JSON, and a deterministic keyword fallback — taking the first answer
// that parses. The last tier always answers, so resolution as a whole
// cannot fail.
package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/artloom/artloom/pkg/models"
	"github.com/rs/zerolog/log"
)

// Request is the input to intent resolution: the user's message plus
// the canvas context that disambiguates it.
type Request struct {
	Message string

	// UploadedImageURLs are files attached to this message, already
	// persisted to media storage.
	UploadedImageURLs []string

	// ReferencedAgents are the agents the user explicitly pointed at,
	// loaded from the store. Missing references are dropped upstream.
	ReferencedAgents []models.Agent

	// History is recent chat context, oldest first.
	History []models.ChatMessage
}

// Resolver is one tier in the resolution chain.
type Resolver interface {
	// Name identifies the tier in logs and on the result.
	Name() string

	// Resolve interprets the message. A non-nil error means this tier
	// could not produce a usable answer and the next tier runs.
	Resolve(ctx context.Context, req Request) (*models.IntentResult, error)
}

// Chain tries resolvers in order and returns the first success.
type Chain struct {
	resolvers []Resolver
}

// NewChain builds a chain from the given tiers. The caller is expected
// to place a resolver that cannot fail last.
func NewChain(resolvers ...Resolver) *Chain {
	return &Chain{resolvers: resolvers}
}

// Resolve runs the chain. It errors only if every tier fails, which a
// properly assembled chain (rules tier last) never does.
func (c *Chain) Resolve(ctx context.Context, req Request) (*models.IntentResult, error) {
	var lastErr error
	for _, r := range c.resolvers {
		res, err := r.Resolve(ctx, req)
		if err != nil {
			log.Warn().Err(err).Str("resolver", r.Name()).Msg("Intent tier failed, falling through")
			lastErr = err
			continue
		}
		res.Resolver = r.Name()
		log.Debug().
			Str("resolver", r.Name()).
			Str("intent", string(res.Intent)).
			Int("operations", len(res.Operations)).
			Float64("confidence", res.Confidence).
			Msg("Intent resolved")
		return res, nil
	}
	return nil, fmt.Errorf("all intent resolvers failed: %w", lastErr)
}

// contextSummary renders the canvas context as prompt text shared by
// the LLM tiers.
func contextSummary(req Request) string {
	var b strings.Builder
	if n := len(req.UploadedImageURLs); n > 0 {
		fmt.Fprintf(&b, "The user attached %d image(s) to this message.\n", n)
	}
	for _, a := range req.ReferencedAgents {
		fmt.Fprintf(&b, "Referenced agent %s: kind=%s status=%s prompt=%q\n", a.ID, a.Kind, a.Status, a.Prompt)
	}
	return b.String()
}

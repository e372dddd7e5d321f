// Package graph maintains the directed agent-connection graph: an edge
// means "this edit agent takes its input image from that agent's
// output". Each edit agent references at most one source; generators
// may feed any number of targets. The graph must stay acyclic.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/artloom/artloom/internal/store"
	"github.com/artloom/artloom/pkg/models"
	"github.com/rs/zerolog/log"
)

// maxChainDepth bounds the cycle walk so a corrupt store cannot spin
// the handler forever.
const maxChainDepth = 64

// Manager validates and applies connection changes.
type Manager struct {
	store store.Store
}

// NewManager creates a connection graph manager over the store.
func NewManager(s store.Store) *Manager {
	return &Manager{store: s}
}

// Connect wires target's input to source's output. The target must be
// an image-edit agent; the source must produce an image and already
// have one. Kind violations and cycles are rejected before any state
// changes.
func (m *Manager) Connect(ctx context.Context, sourceID, targetID string) (*models.Agent, error) {
	if sourceID == targetID {
		return nil, fmt.Errorf("agent %s cannot be its own source", targetID)
	}

	target, err := m.store.GetAgent(ctx, targetID)
	if err != nil {
		return nil, err
	}
	source, err := m.store.GetAgent(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	if target.Kind != models.KindImageEdit {
		return nil, fmt.Errorf("connection target must be an image-edit agent, got %s", target.Kind)
	}
	if !source.Kind.ProducesImage() {
		return nil, fmt.Errorf("connection source must produce an image, got %s", source.Kind)
	}
	if source.OutputURL == "" && source.UploadedImageURL == "" {
		return nil, fmt.Errorf("source agent %s has no output to connect", sourceID)
	}
	if source.CanvasID != target.CanvasID {
		return nil, fmt.Errorf("agents %s and %s are on different canvases", sourceID, targetID)
	}

	// Walking up from the source must never reach the target, or the
	// new edge closes a cycle.
	if err := m.checkCycle(ctx, source, targetID); err != nil {
		return nil, err
	}

	target.SourceAgentID = sourceID
	target.UpdatedAt = time.Now().UTC()
	if err := m.store.UpdateAgent(ctx, target); err != nil {
		return nil, err
	}

	log.Info().
		Str("source", sourceID).
		Str("target", targetID).
		Str("canvas", target.CanvasID).
		Msg("Agents connected")
	return target, nil
}

// Disconnect clears the target's source reference. The source agent is
// unaffected.
func (m *Manager) Disconnect(ctx context.Context, targetID string) (*models.Agent, error) {
	target, err := m.store.GetAgent(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.SourceAgentID == "" {
		return target, nil
	}

	target.SourceAgentID = ""
	target.UpdatedAt = time.Now().UTC()
	if err := m.store.UpdateAgent(ctx, target); err != nil {
		return nil, err
	}

	log.Info().Str("target", targetID).Msg("Agent disconnected")
	return target, nil
}

// checkCycle follows source references upward from start. Because each
// agent holds at most one source reference the ancestry is a simple
// chain; hitting forbidden means the proposed edge would close a loop.
func (m *Manager) checkCycle(ctx context.Context, start *models.Agent, forbidden string) error {
	cur := start
	for depth := 0; depth < maxChainDepth; depth++ {
		if cur.ID == forbidden {
			return fmt.Errorf("connection would create a cycle through agent %s", cur.ID)
		}
		if cur.SourceAgentID == "" {
			return nil
		}
		next, err := m.store.GetAgent(ctx, cur.SourceAgentID)
		if err != nil {
			// Dangling reference: the chain ends here.
			if store.IsNotFound(err) {
				return nil
			}
			return err
		}
		cur = next
	}
	return fmt.Errorf("source chain exceeds %d agents", maxChainDepth)
}

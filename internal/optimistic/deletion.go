package optimistic

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// AgentRemover is the slice of the data store the coordinator needs.
// Kept narrow so the store package itself can depend on this package
// without a cycle.
type AgentRemover interface {
	MarkAgentsDeleting(ctx context.Context, canvasID string, ids []string) error
	DeleteAgent(ctx context.Context, id string) error
}

// DeletionCoordinator runs the two-phase removal protocol. Phase one
// (Begin) atomically marks a batch of agents deleting so every client
// starts its exit animation from the same state. Phase two (Complete)
// is reported independently by whichever observers finish animating;
// only the first report per agent performs the actual delete.
type DeletionCoordinator struct {
	store AgentRemover

	mu      sync.Mutex
	pending map[string]struct{} // agent ids awaiting completion
}

func NewDeletionCoordinator(s AgentRemover) *DeletionCoordinator {
	return &DeletionCoordinator{
		store:   s,
		pending: make(map[string]struct{}),
	}
}

// Begin marks the batch deleting and registers each agent as pending.
// Ids already pending are tolerated: re-issuing a deletion restarts
// nothing.
func (c *DeletionCoordinator) Begin(ctx context.Context, canvasID string, agentIDs []string) error {
	if len(agentIDs) == 0 {
		return nil
	}
	if err := c.store.MarkAgentsDeleting(ctx, canvasID, agentIDs); err != nil {
		return err
	}
	c.mu.Lock()
	for _, id := range agentIDs {
		c.pending[id] = struct{}{}
	}
	c.mu.Unlock()
	log.Info().Str("canvas", canvasID).Int("count", len(agentIDs)).Msg("Batch deletion started")
	return nil
}

// Complete finishes the removal for one agent. Redundant reports from
// other observers are no-ops; an id never registered via Begin is
// deleted directly, since the mark may have come from another process.
func (c *DeletionCoordinator) Complete(ctx context.Context, agentID string) error {
	c.mu.Lock()
	delete(c.pending, agentID)
	c.mu.Unlock()

	// DeleteAgent is idempotent, so redundant reports and marks made
	// by another process both collapse to a no-op here.
	return c.store.DeleteAgent(ctx, agentID)
}

// PendingCount reports how many agents are mid-removal.
func (c *DeletionCoordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Package store provides the storage interface and implementations for
// the Artloom server. The in-memory store backs local dev and tests;
// the SQLite store provides durable persistence. Both publish every
// mutation to the event bus so canvas subscribers stay in sync.
package store

import (
	"context"

	"github.com/artloom/artloom/pkg/models"
)

// Store is the primary storage interface. All handler and orchestration
// code depends on this interface, making it easy to swap between the
// in-memory (tests) and SQLite (production) implementations.
type Store interface {
	AgentStore
	CanvasStore
	ChatStore

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Agent Store ─────────────────────────────────────────────

type AgentStore interface {
	ListAgents(ctx context.Context, canvasID string) ([]models.Agent, error)
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	CreateAgent(ctx context.Context, agent *models.Agent) error
	UpdateAgent(ctx context.Context, agent *models.Agent) error

	// DeleteAgent removes an agent. Deleting an id that no longer
	// exists is a no-op, not an error: the two-phase batch deletion
	// protocol lets multiple clients issue the delete redundantly.
	DeleteAgent(ctx context.Context, id string) error

	// MarkAgentsDeleting flags a batch of agents as deleting in one
	// atomic write so every subscriber renders the exit animation
	// simultaneously. Missing ids are skipped.
	MarkAgentsDeleting(ctx context.Context, canvasID string, ids []string) error

	// UpdateAgentForRequest atomically looks up the agent whose stored
	// request id equals requestID and applies mutate to it. Returns
	// ErrNotFound when no agent carries that id — the job was
	// superseded or the agent deleted, and the callback is stale.
	UpdateAgentForRequest(ctx context.Context, requestID string, mutate func(*models.Agent) error) (*models.Agent, error)
}

// ── Canvas Store ────────────────────────────────────────────

type CanvasStore interface {
	ListCanvases(ctx context.Context, ownerID string) ([]models.Canvas, error)

	// ListAllCanvases returns every canvas regardless of owner. Used by
	// background maintenance that sweeps the whole store.
	ListAllCanvases(ctx context.Context) ([]models.Canvas, error)
	GetCanvas(ctx context.Context, id string) (*models.Canvas, error)
	CreateCanvas(ctx context.Context, canvas *models.Canvas) error
	UpdateCanvas(ctx context.Context, canvas *models.Canvas) error

	// DeleteCanvas removes the canvas and everything it owns. Agents
	// with jobs still in flight simply lose their correlation target;
	// the late callbacks become acked no-ops.
	DeleteCanvas(ctx context.Context, id string) error
}

// ── Chat Store ──────────────────────────────────────────────

type ChatStore interface {
	// AppendMessage appends to the per-canvas chat log. The log is
	// append-only; there is no update or delete.
	AppendMessage(ctx context.Context, msg *models.ChatMessage) error
	ListMessages(ctx context.Context, canvasID string, limit int) ([]models.ChatMessage, error)
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}

// Package store — in-memory Store implementation.
// Used when no database path is configured (local dev, tests).
// Supports file-based snapshot persistence so data survives restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/artloom/artloom/internal/events"
	"github.com/artloom/artloom/internal/optimistic"
	"github.com/artloom/artloom/pkg/models"
	"github.com/rs/zerolog/log"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Agents   map[string]*models.Agent         `json:"agents"`
	Canvases map[string]*models.Canvas        `json:"canvases"`
	Messages map[string][]*models.ChatMessage `json:"messages"` // key: canvas_id, append order
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu       sync.RWMutex
	agents   map[string]*models.Agent         // key: id
	canvases map[string]*models.Canvas        // key: id
	messages map[string][]*models.ChatMessage // key: canvas_id, append-only

	bus *events.Bus // nil = no mutation feed

	// Persistence
	snapshotPath string     // empty = no persistence
	saveMu       sync.Mutex // guards file writes
	saver        *optimistic.Debouncer
	closeOnce    sync.Once
}

// snapshotDelay coalesces bursts of writes into one disk flush.
const snapshotDelay = 500 * time.Millisecond

// NewMemoryStore creates a new in-memory store. If dataDir is non-empty
// the store persists a JSON snapshot there. Mutations are published to
// bus when it is non-nil.
func NewMemoryStore(dataDir string, bus *events.Bus) *MemoryStore {
	m := &MemoryStore{
		agents:   make(map[string]*models.Agent),
		canvases: make(map[string]*models.Canvas),
		messages: make(map[string][]*models.ChatMessage),
		bus:      bus,
		saver:    optimistic.NewDebouncer(snapshotDelay),
	}

	if dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "data.json")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("Memory store configured")
	return m
}

func (m *MemoryStore) publish(mut models.Mutation) {
	if m.bus != nil {
		m.bus.Publish(mut)
	}
}

// requestSave schedules a debounced snapshot write. Rapid writes
// collapse into one disk flush per snapshotDelay.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	m.saver.Schedule("snapshot", m.saveSnapshot)
}

// saveSnapshot persists all data to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := snapshot{
		Agents:   m.agents,
		Canvases: m.canvases,
		Messages: m.messages,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}

	log.Debug().Str("path", m.snapshotPath).Msg("Snapshot saved")
}

// loadSnapshot reads data from disk on startup.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Cannot read snapshot")
		}
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Corrupt snapshot, starting empty")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Agents != nil {
		m.agents = snap.Agents
	}
	if snap.Canvases != nil {
		m.canvases = snap.Canvases
	}
	if snap.Messages != nil {
		m.messages = snap.Messages
	}

	log.Info().
		Int("agents", len(m.agents)).
		Int("canvases", len(m.canvases)).
		Msg("Snapshot loaded")
}

// ── Store interface ─────────────────────────────────────────

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		m.saver.Stop()
		if m.snapshotPath != "" {
			m.saveSnapshot()
		}
	})
	return nil
}

// ── Agents ──────────────────────────────────────────────────

func (m *MemoryStore) ListAgents(ctx context.Context, canvasID string) ([]models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Agent
	for _, a := range m.agents {
		if a.CanvasID == canvasID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	m.mu.RLock()
	a, ok := m.agents[id]
	m.mu.RUnlock()
	if !ok {
		return nil, &ErrNotFound{Entity: "agent", Key: id}
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) CreateAgent(ctx context.Context, agent *models.Agent) error {
	m.mu.Lock()
	cp := *agent
	m.agents[agent.ID] = &cp
	m.mu.Unlock()

	m.requestSave()
	m.publish(models.Mutation{
		Type:     models.MutationAgentCreated,
		CanvasID: agent.CanvasID,
		AgentID:  agent.ID,
		Agent:    agent,
	})
	return nil
}

func (m *MemoryStore) UpdateAgent(ctx context.Context, agent *models.Agent) error {
	m.mu.Lock()
	if _, ok := m.agents[agent.ID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "agent", Key: agent.ID}
	}
	cp := *agent
	m.agents[agent.ID] = &cp
	m.mu.Unlock()

	m.requestSave()
	m.publish(models.Mutation{
		Type:     models.MutationAgentUpdated,
		CanvasID: agent.CanvasID,
		AgentID:  agent.ID,
		Agent:    agent,
	})
	return nil
}

func (m *MemoryStore) DeleteAgent(ctx context.Context, id string) error {
	m.mu.Lock()
	a, ok := m.agents[id]
	if ok {
		delete(m.agents, id)
	}
	m.mu.Unlock()

	if !ok {
		// Redundant delete from another client — already gone.
		return nil
	}

	m.requestSave()
	m.publish(models.Mutation{
		Type:     models.MutationAgentDeleted,
		CanvasID: a.CanvasID,
		AgentID:  id,
	})
	return nil
}

func (m *MemoryStore) MarkAgentsDeleting(ctx context.Context, canvasID string, ids []string) error {
	now := time.Now().UTC()

	m.mu.Lock()
	var marked []*models.Agent
	for _, id := range ids {
		a, ok := m.agents[id]
		if !ok || a.CanvasID != canvasID {
			continue
		}
		a.Status = models.StatusDeleting
		a.UpdatedAt = now
		cp := *a
		marked = append(marked, &cp)
	}
	m.mu.Unlock()

	m.requestSave()
	for _, a := range marked {
		m.publish(models.Mutation{
			Type:     models.MutationAgentUpdated,
			CanvasID: canvasID,
			AgentID:  a.ID,
			Agent:    a,
		})
	}
	return nil
}

func (m *MemoryStore) UpdateAgentForRequest(ctx context.Context, requestID string, mutate func(*models.Agent) error) (*models.Agent, error) {
	if requestID == "" {
		return nil, &ErrNotFound{Entity: "agent", Key: "(empty request id)"}
	}

	m.mu.Lock()
	var target *models.Agent
	for _, a := range m.agents {
		if a.RequestID == requestID {
			target = a
			break
		}
	}
	if target == nil {
		m.mu.Unlock()
		return nil, &ErrNotFound{Entity: "agent", Key: requestID}
	}
	if err := mutate(target); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	cp := *target
	m.mu.Unlock()

	m.requestSave()
	m.publish(models.Mutation{
		Type:     models.MutationAgentUpdated,
		CanvasID: cp.CanvasID,
		AgentID:  cp.ID,
		Agent:    &cp,
	})
	return &cp, nil
}

// ── Canvases ────────────────────────────────────────────────

func (m *MemoryStore) ListCanvases(ctx context.Context, ownerID string) ([]models.Canvas, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Canvas
	for _, c := range m.canvases {
		if c.OwnerID == ownerID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListAllCanvases(ctx context.Context) ([]models.Canvas, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Canvas, 0, len(m.canvases))
	for _, c := range m.canvases {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) GetCanvas(ctx context.Context, id string) (*models.Canvas, error) {
	m.mu.RLock()
	c, ok := m.canvases[id]
	m.mu.RUnlock()
	if !ok {
		return nil, &ErrNotFound{Entity: "canvas", Key: id}
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) CreateCanvas(ctx context.Context, canvas *models.Canvas) error {
	m.mu.Lock()
	cp := *canvas
	m.canvases[canvas.ID] = &cp
	m.mu.Unlock()

	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateCanvas(ctx context.Context, canvas *models.Canvas) error {
	m.mu.Lock()
	if _, ok := m.canvases[canvas.ID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "canvas", Key: canvas.ID}
	}
	cp := *canvas
	m.canvases[canvas.ID] = &cp
	m.mu.Unlock()

	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteCanvas(ctx context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.canvases[id]
	if ok {
		delete(m.canvases, id)
		for aid, a := range m.agents {
			if a.CanvasID == id {
				delete(m.agents, aid)
			}
		}
		delete(m.messages, id)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}

	m.requestSave()
	m.publish(models.Mutation{Type: models.MutationCanvasDeleted, CanvasID: id})
	return nil
}

// ── Chat ────────────────────────────────────────────────────

func (m *MemoryStore) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	m.mu.Lock()
	cp := *msg
	m.messages[msg.CanvasID] = append(m.messages[msg.CanvasID], &cp)
	m.mu.Unlock()

	m.requestSave()
	m.publish(models.Mutation{
		Type:     models.MutationMessageAppended,
		CanvasID: msg.CanvasID,
		Message:  msg,
	})
	return nil
}

func (m *MemoryStore) ListMessages(ctx context.Context, canvasID string, limit int) ([]models.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[canvasID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.ChatMessage, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, *msg)
	}
	return out, nil
}

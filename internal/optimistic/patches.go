package optimistic

import (
	"sync"
	"time"

	"github.com/artloom/artloom/pkg/models"
)

// Patch is one speculative field change applied locally before the
// server confirms it.
type Patch struct {
	MutationID string
	AgentID    string
	Fields     map[string]interface{}
	AppliedAt  time.Time
}

// PatchSet tracks in-flight speculative patches keyed by mutation id.
// The lifecycle per patch: Apply on local mutation, then either
// Confirm (the next authoritative snapshot supersedes it) or Fail
// (discard and flag a forced resync).
type PatchSet struct {
	mu          sync.Mutex
	patches     map[string]Patch   // mutation id → patch
	order       []string           // application order, oldest first
	needsResync bool
}

func NewPatchSet() *PatchSet {
	return &PatchSet{patches: make(map[string]Patch)}
}

// Apply records a speculative patch. A duplicate mutation id replaces
// the previous patch in place.
func (s *PatchSet) Apply(p Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.AppliedAt.IsZero() {
		p.AppliedAt = time.Now().UTC()
	}
	if _, exists := s.patches[p.MutationID]; !exists {
		s.order = append(s.order, p.MutationID)
	}
	s.patches[p.MutationID] = p
}

// Confirm discards a patch whose mutation the server accepted; the
// authoritative snapshot carries the change from now on.
func (s *PatchSet) Confirm(mutationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discard(mutationID)
}

// Fail discards a rejected patch and flags that the local view can no
// longer be trusted: the caller must refetch.
func (s *PatchSet) Fail(mutationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discard(mutationID)
	s.needsResync = true
}

func (s *PatchSet) discard(mutationID string) {
	if _, ok := s.patches[mutationID]; !ok {
		return
	}
	delete(s.patches, mutationID)
	for i, id := range s.order {
		if id == mutationID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// NeedsResync reports whether a failed patch invalidated the local
// view.
func (s *PatchSet) NeedsResync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsResync
}

// ResyncDone clears the resync flag after a fresh authoritative fetch.
func (s *PatchSet) ResyncDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.needsResync = false
}

// Pending reports the number of unconfirmed patches.
func (s *PatchSet) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.patches)
}

// Overlay returns the agent with all pending patches for it applied in
// application order over the authoritative snapshot.
func (s *PatchSet) Overlay(agent models.Agent) models.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		p := s.patches[id]
		if p.AgentID != agent.ID {
			continue
		}
		applyFields(&agent, p.Fields)
	}
	return agent
}

// applyFields maps patch field names onto the agent. Unknown fields are
// ignored rather than rejected: a newer client may patch fields this
// build does not know.
func applyFields(a *models.Agent, fields map[string]interface{}) {
	for name, v := range fields {
		switch name {
		case "x":
			if f, ok := v.(float64); ok {
				a.X = f
			}
		case "y":
			if f, ok := v.(float64); ok {
				a.Y = f
			}
		case "width":
			if f, ok := v.(float64); ok {
				a.Width = f
			}
		case "height":
			if f, ok := v.(float64); ok {
				a.Height = f
			}
		case "prompt":
			if str, ok := v.(string); ok {
				a.Prompt = str
			}
		case "tier":
			if str, ok := v.(string); ok {
				a.Tier = models.ProviderTier(str)
			}
		case "active_image_url":
			if str, ok := v.(string); ok {
				a.ActiveImageURL = str
			}
		}
	}
}

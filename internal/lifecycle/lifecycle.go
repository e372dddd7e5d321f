// Package lifecycle enforces the per-agent status state machine.
//
// Transitions: idle → processing → success|failed, with processing
// re-enterable from any state on regeneration. Deleting is orthogonal
// and only set by the removal path. Terminal writes that arrive from a
// webhook must additionally pass the request-id guard in the store
// lookup — a stale id means the job was superseded and the write is a
// no-op.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/artloom/artloom/pkg/models"
)

// CanEnter reports whether the status machine permits moving from one
// status to another. Re-entering processing is always allowed
// (regeneration is idempotent); deleting is reachable from anywhere.
func CanEnter(from, to models.AgentStatus) bool {
	switch to {
	case models.StatusProcessing, models.StatusDeleting:
		return true
	case models.StatusSuccess, models.StatusFailed:
		return from == models.StatusProcessing
	case models.StatusIdle:
		return from == "" || from == models.StatusIdle
	}
	return false
}

// MarkProcessing moves the agent into processing for a new job.
// requestID may be empty for synchronous providers, where the provider
// call itself is outstanding instead. The last good OutputURL is
// deliberately retained: a failed regeneration must not blank the
// previous result. Only the stale correlation id and error are cleared.
func MarkProcessing(a *models.Agent, requestID string) {
	a.Status = models.StatusProcessing
	a.RequestID = requestID
	a.Error = ""
	a.UpdatedAt = time.Now().UTC()
}

// MarkSuccess completes a job with its produced media URL. An empty
// URL is rejected: success implies a non-empty output.
func MarkSuccess(a *models.Agent, outputURL string) error {
	if outputURL == "" {
		return fmt.Errorf("agent %s: success requires a non-empty output URL", a.ID)
	}
	a.Status = models.StatusSuccess
	a.OutputURL = outputURL
	a.RequestID = ""
	a.Error = ""
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkFailed records a job failure. OutputURL is untouched so a prior
// successful result survives the failed retry.
func MarkFailed(a *models.Agent, reason string) {
	a.Status = models.StatusFailed
	a.RequestID = ""
	a.Error = reason
	a.UpdatedAt = time.Now().UTC()
}

// MarkDeleting flags the agent for animated removal. Reachable from any
// status; the actual delete follows once every subscribed client has
// finished its exit animation.
func MarkDeleting(a *models.Agent) {
	a.Status = models.StatusDeleting
	a.UpdatedAt = time.Now().UTC()
}

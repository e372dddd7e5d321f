// Package correlator matches asynchronous provider callbacks to the
// agent that submitted the job. The request id recorded at submission
// is the only link; a callback whose id matches no processing agent is
// stale (the job was superseded or already completed) and is
// acknowledged without effect so the provider stops retrying.
package correlator

import (
	"context"
	"errors"

	"github.com/artloom/artloom/internal/lifecycle"
	"github.com/artloom/artloom/internal/provider"
	"github.com/artloom/artloom/internal/storage"
	"github.com/artloom/artloom/internal/store"
	"github.com/artloom/artloom/pkg/models"
	"github.com/rs/zerolog/log"
)

// errTransitionBlocked marks a callback whose agent is in a state that
// no longer accepts the result, such as mid-deletion. Treated like a
// correlation miss: acked, not applied.
var errTransitionBlocked = errors.New("agent state does not accept callback result")

// Correlator applies provider callback results to agents.
type Correlator struct {
	store store.Store
	media *storage.MediaStore
}

func New(s store.Store, media *storage.MediaStore) *Correlator {
	return &Correlator{store: s, media: media}
}

// OnCallback processes one webhook delivery for the given provider.
// It never returns an error for correlation misses or job failures —
// those are fully handled states and the webhook must be acked either
// way. The returned agent is nil on a miss.
func (c *Correlator) OnCallback(ctx context.Context, p provider.Provider, wp provider.WebhookPayload) (*models.Agent, error) {
	if wp.RequestID == "" {
		log.Warn().Str("kind", string(p.Kind())).Msg("Webhook without request id ignored")
		return nil, nil
	}

	res := p.NormalizeCallback(wp)

	// Persist the media before touching the agent: mutate runs under
	// the store lock and must not block on network I/O. A download for
	// a stale callback is wasted work we accept.
	var outputURL string
	if res.OK {
		u, derr := c.media.Download(ctx, res.MediaURL)
		if derr != nil {
			res = provider.CallbackResult{Err: derr.Error()}
		} else {
			outputURL = u
		}
	}

	agent, err := c.store.UpdateAgentForRequest(ctx, wp.RequestID, func(a *models.Agent) error {
		target := models.StatusSuccess
		if !res.OK {
			target = models.StatusFailed
		}
		// A deleting agent still carries its request id so the user can
		// undo; its result must not resurrect it.
		if !lifecycle.CanEnter(a.Status, target) {
			return errTransitionBlocked
		}
		if !res.OK {
			lifecycle.MarkFailed(a, res.Err)
			return nil
		}
		return lifecycle.MarkSuccess(a, outputURL)
	})
	if err != nil {
		if store.IsNotFound(err) {
			// Stale or duplicate callback: the id no longer belongs
			// to any in-flight job. Acked no-op.
			log.Info().
				Str("request_id", wp.RequestID).
				Str("kind", string(p.Kind())).
				Msg("Callback matched no in-flight job, ignoring")
			return nil, nil
		}
		if errors.Is(err, errTransitionBlocked) {
			log.Info().
				Str("request_id", wp.RequestID).
				Str("kind", string(p.Kind())).
				Msg("Callback result dropped, agent no longer accepts it")
			return nil, nil
		}
		return nil, err
	}

	log.Info().
		Str("agent", agent.ID).
		Str("request_id", wp.RequestID).
		Str("status", string(agent.Status)).
		Msg("Callback applied")
	return agent, nil
}

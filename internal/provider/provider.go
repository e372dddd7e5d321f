// Package provider is the uniform gateway to heterogeneous external
// generation services (image, voice, video). It normalizes the two
// submission modes — synchronous inline results and asynchronous
// webhook jobs — behind one interface, and adapts each provider's
// native callback payload into a tagged result before it reaches the
// job correlator.
package provider

import (
	"context"
	"fmt"

	"github.com/artloom/artloom/pkg/models"
)

// SubmitRequest carries everything a provider needs for one job.
type SubmitRequest struct {
	Prompt  string
	Tier    models.ProviderTier
	Options map[string]interface{}

	// InputImageURL is the resolved input for image-edit jobs.
	InputImageURL string

	// CallbackURL is registered with async providers at submission
	// time so they can notify completion.
	CallbackURL string
}

// SubmitResult is the normalized answer to a submission. Exactly one
// of the two shapes applies: an async provider returns RequestID and
// nothing else; a sync provider returns the finished media inline.
type SubmitResult struct {
	// Async job handle. Opaque — never parsed, only compared.
	RequestID string

	// Sync inline result: a provider-hosted URL or a base64 payload.
	MediaURL    string
	MediaBase64 string
	ContentType string
}

// Async reports whether the provider accepted the job for later
// webhook completion.
func (r *SubmitResult) Async() bool { return r.RequestID != "" }

// WebhookPayload is the wire shape of a provider completion callback.
type WebhookPayload struct {
	RequestID string                 `json:"request_id"`
	Status    string                 `json:"status"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// CallbackResult is the tagged result a provider adapter produces from
// its native webhook payload: Ok with a media URL, or Err with a
// message.
type CallbackResult struct {
	OK       bool
	MediaURL string
	Err      string
}

// Provider is one external generation service.
type Provider interface {
	// Kind returns the agent kind this provider serves.
	Kind() models.AgentKind

	// Submit starts a job. Sync providers block until the media is
	// ready; async providers return a request id immediately.
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)

	// NormalizeCallback adapts the provider's webhook payload into
	// the tagged result consumed by the correlator.
	NormalizeCallback(p WebhookPayload) CallbackResult
}

// normalizeStatusCallback is the shared adapter for providers whose
// webhook reports status "OK" plus a media URL field.
func normalizeStatusCallback(p WebhookPayload, urlKeys ...string) CallbackResult {
	if p.Status != "OK" {
		msg := p.Error
		if msg == "" {
			msg = fmt.Sprintf("provider reported status %q", p.Status)
		}
		return CallbackResult{Err: msg}
	}
	for _, key := range urlKeys {
		if u, ok := p.Payload[key].(string); ok && u != "" {
			return CallbackResult{OK: true, MediaURL: u}
		}
	}
	return CallbackResult{Err: "provider callback carried no media URL"}
}

package correlator

import (
	"context"
	"testing"

	"github.com/artloom/artloom/internal/provider"
	"github.com/artloom/artloom/internal/storage"
	"github.com/artloom/artloom/internal/store"
	"github.com/artloom/artloom/pkg/models"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	kind models.AgentKind
}

func (f *fakeProvider) Kind() models.AgentKind { return f.kind }

func (f *fakeProvider) Submit(ctx context.Context, req provider.SubmitRequest) (*provider.SubmitResult, error) {
	return nil, nil
}

func (f *fakeProvider) NormalizeCallback(wp provider.WebhookPayload) provider.CallbackResult {
	if wp.Status != "OK" {
		return provider.CallbackResult{Err: wp.Error}
	}
	u, _ := wp.Payload["url"].(string)
	if u == "" {
		return provider.CallbackResult{Err: "no url"}
	}
	return provider.CallbackResult{OK: true, MediaURL: u}
}

func setup(t *testing.T) (*Correlator, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore(t.TempDir(), nil)
	t.Cleanup(func() { s.Close() })
	media, err := storage.NewMediaStore(t.TempDir(), "http://media.test", []string{"cdn.example.com"})
	require.NoError(t, err)
	return New(s, media), s
}

func processingAgent(t *testing.T, s *store.MemoryStore, id, requestID string) *models.Agent {
	t.Helper()
	a := &models.Agent{
		ID:        id,
		CanvasID:  "canvas-1",
		Kind:      models.KindVoiceGenerate,
		Status:    models.StatusProcessing,
		RequestID: requestID,
	}
	require.NoError(t, s.CreateAgent(context.Background(), a))
	return a
}

func TestCallbackSuccess(t *testing.T) {
	c, s := setup(t)
	processingAgent(t, s, "a1", "req-1")

	got, err := c.OnCallback(context.Background(), &fakeProvider{kind: models.KindVoiceGenerate}, provider.WebhookPayload{
		RequestID: "req-1",
		Status:    "OK",
		Payload:   map[string]interface{}{"url": "https://cdn.example.com/a.mp3"},
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, models.StatusSuccess, got.Status)
	require.Equal(t, "https://cdn.example.com/a.mp3", got.OutputURL)
	require.Empty(t, got.RequestID, "terminal transition clears the correlation id")
}

func TestCallbackFailure(t *testing.T) {
	c, s := setup(t)
	processingAgent(t, s, "a1", "req-1")

	got, err := c.OnCallback(context.Background(), &fakeProvider{kind: models.KindVoiceGenerate}, provider.WebhookPayload{
		RequestID: "req-1",
		Status:    "ERROR",
		Error:     "synthesis failed",
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, models.StatusFailed, got.Status)
	require.Equal(t, "synthesis failed", got.Error)
	require.Empty(t, got.RequestID)
}

func TestCallbackStaleRequestIDIsNoOp(t *testing.T) {
	c, s := setup(t)
	// The agent was resubmitted: it carries a newer request id.
	processingAgent(t, s, "a1", "req-2")

	got, err := c.OnCallback(context.Background(), &fakeProvider{kind: models.KindVoiceGenerate}, provider.WebhookPayload{
		RequestID: "req-1",
		Status:    "OK",
		Payload:   map[string]interface{}{"url": "https://cdn.example.com/old.mp3"},
	})
	require.NoError(t, err)
	require.Nil(t, got)

	stored, err := s.GetAgent(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, stored.Status)
	require.Equal(t, "req-2", stored.RequestID)
	require.Empty(t, stored.OutputURL)
}

func TestCallbackDuplicateDeliveryIsNoOp(t *testing.T) {
	c, s := setup(t)
	processingAgent(t, s, "a1", "req-1")

	wp := provider.WebhookPayload{
		RequestID: "req-1",
		Status:    "OK",
		Payload:   map[string]interface{}{"url": "https://cdn.example.com/a.mp3"},
	}
	p := &fakeProvider{kind: models.KindVoiceGenerate}

	first, err := c.OnCallback(context.Background(), p, wp)
	require.NoError(t, err)
	require.NotNil(t, first)

	// The first delivery cleared the request id, so the retry misses.
	second, err := c.OnCallback(context.Background(), p, wp)
	require.NoError(t, err)
	require.Nil(t, second)

	stored, err := s.GetAgent(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, models.StatusSuccess, stored.Status)
}

func TestCallbackCannotResurrectDeletingAgent(t *testing.T) {
	c, s := setup(t)
	processingAgent(t, s, "a1", "req-1")
	require.NoError(t, s.MarkAgentsDeleting(context.Background(), "canvas-1", []string{"a1"}))

	got, err := c.OnCallback(context.Background(), &fakeProvider{kind: models.KindVoiceGenerate}, provider.WebhookPayload{
		RequestID: "req-1",
		Status:    "OK",
		Payload:   map[string]interface{}{"url": "https://cdn.example.com/a.mp3"},
	})
	require.NoError(t, err, "the webhook is still acked")
	require.Nil(t, got)

	stored, err := s.GetAgent(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, models.StatusDeleting, stored.Status)
	require.Empty(t, stored.OutputURL)
}

func TestCallbackMissingRequestID(t *testing.T) {
	c, _ := setup(t)
	got, err := c.OnCallback(context.Background(), &fakeProvider{kind: models.KindVoiceGenerate}, provider.WebhookPayload{
		Status: "OK",
	})
	require.NoError(t, err)
	require.Nil(t, got)
}

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/artloom/artloom/internal/store"
	"github.com/artloom/artloom/pkg/models"
)

func newSQLiteStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.OpenSQLite(":memory:", nil)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteAgentRoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	s.CreateCanvas(ctx, &models.Canvas{ID: "c1", OwnerID: "u1", CreatedAt: now, UpdatedAt: now})

	agent := &models.Agent{
		ID:        "a1",
		CanvasID:  "c1",
		OwnerID:   "u1",
		Kind:      models.KindVoiceGenerate,
		Status:    models.StatusIdle,
		Prompt:    "say hello",
		Tier:      models.TierPro,
		Options:   map[string]interface{}{"voice_id": "nova", "exaggeration": 0.4},
		X:         100,
		Y:         100,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent() error = %v", err)
	}

	got, err := s.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAgent() error = %v", err)
	}
	if got.Kind != models.KindVoiceGenerate || got.Tier != models.TierPro {
		t.Errorf("round trip lost fields: kind=%q tier=%q", got.Kind, got.Tier)
	}
	if got.Options["voice_id"] != "nova" {
		t.Errorf("Options round trip = %v", got.Options)
	}
}

func TestSQLiteRequestCorrelation(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	s.CreateCanvas(ctx, &models.Canvas{ID: "c1", OwnerID: "u1", CreatedAt: now, UpdatedAt: now})
	s.CreateAgent(ctx, &models.Agent{
		ID: "a1", CanvasID: "c1", Kind: models.KindVideoGenerate,
		Status: models.StatusProcessing, RequestID: "req-9",
		CreatedAt: now, UpdatedAt: now,
	})

	got, err := s.UpdateAgentForRequest(ctx, "req-9", func(a *models.Agent) error {
		a.Status = models.StatusSuccess
		a.OutputURL = "https://cdn.example.com/clip.mp4"
		a.RequestID = ""
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateAgentForRequest() error = %v", err)
	}
	if got.Status != models.StatusSuccess {
		t.Errorf("Status = %q, want success", got.Status)
	}

	if _, err := s.UpdateAgentForRequest(ctx, "req-9", func(a *models.Agent) error { return nil }); !store.IsNotFound(err) {
		t.Errorf("stale lookup error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteCanvasCascade(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	s.CreateCanvas(ctx, &models.Canvas{ID: "c1", OwnerID: "u1", CreatedAt: now, UpdatedAt: now})
	s.CreateAgent(ctx, &models.Agent{ID: "a1", CanvasID: "c1", Kind: models.KindImageGenerate, Status: models.StatusIdle, CreatedAt: now, UpdatedAt: now})
	s.AppendMessage(ctx, &models.ChatMessage{ID: "m1", CanvasID: "c1", Role: models.RoleUser, Content: "hi", CreatedAt: now})

	if err := s.DeleteCanvas(ctx, "c1"); err != nil {
		t.Fatalf("DeleteCanvas() error = %v", err)
	}
	if _, err := s.GetAgent(ctx, "a1"); !store.IsNotFound(err) {
		t.Error("agent should cascade with canvas delete")
	}
	msgs, _ := s.ListMessages(ctx, "c1", 0)
	if len(msgs) != 0 {
		t.Errorf("messages should be removed, got %d", len(msgs))
	}
}

package graph

import (
	"context"
	"testing"

	"github.com/artloom/artloom/internal/store"
	"github.com/artloom/artloom/pkg/models"
)

func seed(t *testing.T) (store.Store, *Manager) {
	t.Helper()
	s := store.NewMemoryStore("", nil)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	agents := []*models.Agent{
		{ID: "gen", CanvasID: "c1", Kind: models.KindImageGenerate, Status: models.StatusSuccess, OutputURL: "https://cdn.example.com/gen.png"},
		{ID: "edit1", CanvasID: "c1", Kind: models.KindImageEdit, Status: models.StatusSuccess, OutputURL: "https://cdn.example.com/e1.png"},
		{ID: "edit2", CanvasID: "c1", Kind: models.KindImageEdit, Status: models.StatusIdle},
		{ID: "voice", CanvasID: "c1", Kind: models.KindVoiceGenerate, Status: models.StatusSuccess, OutputURL: "https://cdn.example.com/v.mp3"},
		{ID: "empty-gen", CanvasID: "c1", Kind: models.KindImageGenerate, Status: models.StatusIdle},
		{ID: "elsewhere", CanvasID: "c2", Kind: models.KindImageGenerate, Status: models.StatusSuccess, OutputURL: "https://cdn.example.com/x.png"},
	}
	for _, a := range agents {
		if err := s.CreateAgent(ctx, a); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return s, NewManager(s)
}

func TestConnect(t *testing.T) {
	_, m := seed(t)
	got, err := m.Connect(context.Background(), "gen", "edit2")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if got.SourceAgentID != "gen" {
		t.Errorf("SourceAgentID = %q, want gen", got.SourceAgentID)
	}
}

func TestConnectRejectsNonEditTarget(t *testing.T) {
	_, m := seed(t)
	if _, err := m.Connect(context.Background(), "gen", "voice"); err == nil {
		t.Error("connecting into a voice agent should fail")
	}
}

func TestConnectRejectsNonImageSource(t *testing.T) {
	_, m := seed(t)
	if _, err := m.Connect(context.Background(), "voice", "edit2"); err == nil {
		t.Error("voice agent cannot be an image source")
	}
}

func TestConnectRejectsEmptySource(t *testing.T) {
	_, m := seed(t)
	if _, err := m.Connect(context.Background(), "empty-gen", "edit2"); err == nil {
		t.Error("source with no output should be rejected")
	}
}

func TestConnectRejectsCrossCanvas(t *testing.T) {
	_, m := seed(t)
	if _, err := m.Connect(context.Background(), "elsewhere", "edit2"); err == nil {
		t.Error("cross-canvas connection should be rejected")
	}
}

func TestConnectRejectsCycle(t *testing.T) {
	s, m := seed(t)
	ctx := context.Background()

	// edit1 feeds edit2; the reverse edge would close the loop.
	if _, err := m.Connect(ctx, "edit1", "edit2"); err != nil {
		t.Fatalf("Connect(edit1->edit2) error = %v", err)
	}

	// Give edit2 an output so only the cycle check can reject it.
	e2, _ := s.GetAgent(ctx, "edit2")
	e2.OutputURL = "https://cdn.example.com/e2.png"
	if err := s.UpdateAgent(ctx, e2); err != nil {
		t.Fatalf("UpdateAgent() error = %v", err)
	}

	if _, err := m.Connect(ctx, "edit2", "edit1"); err == nil {
		t.Error("two agents must not depend on each other")
	}
}

func TestConnectRejectsSelf(t *testing.T) {
	_, m := seed(t)
	if _, err := m.Connect(context.Background(), "edit1", "edit1"); err == nil {
		t.Error("self-connection should be rejected")
	}
}

func TestDisconnect(t *testing.T) {
	_, m := seed(t)
	ctx := context.Background()

	if _, err := m.Connect(ctx, "gen", "edit2"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	got, err := m.Disconnect(ctx, "edit2")
	if err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if got.SourceAgentID != "" {
		t.Errorf("SourceAgentID = %q, want empty", got.SourceAgentID)
	}
	// Disconnecting an unconnected agent is a no-op.
	if _, err := m.Disconnect(ctx, "edit2"); err != nil {
		t.Errorf("second Disconnect() error = %v", err)
	}
}

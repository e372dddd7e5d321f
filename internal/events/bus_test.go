package events

import (
	"testing"
	"time"

	"github.com/artloom/artloom/pkg/models"
)

func TestSubscribeAndPublish(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe("c1")
	defer cancel()

	b.Publish(models.Mutation{Type: models.MutationAgentCreated, CanvasID: "c1", AgentID: "a1"})

	select {
	case mut := <-ch:
		if mut.AgentID != "a1" {
			t.Errorf("AgentID = %q, want a1", mut.AgentID)
		}
		if mut.Timestamp.IsZero() {
			t.Error("Publish should stamp the mutation")
		}
	case <-time.After(time.Second):
		t.Fatal("no mutation delivered")
	}
}

func TestPublishIsolatedPerCanvas(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe("c1")
	defer cancel()

	b.Publish(models.Mutation{Type: models.MutationAgentCreated, CanvasID: "other"})

	select {
	case mut := <-ch:
		t.Fatalf("unexpected mutation for canvas %q", mut.CanvasID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelRemovesSubscriber(t *testing.T) {
	b := NewBus()
	_, cancel := b.Subscribe("c1")
	if got := b.SubscriberCount("c1"); got != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", got)
	}
	cancel()
	if got := b.SubscriberCount("c1"); got != 0 {
		t.Errorf("SubscriberCount after cancel = %d, want 0", got)
	}
	// Double-cancel is safe.
	cancel()
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBus()
	_, cancel := b.Subscribe("c1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(models.Mutation{Type: models.MutationAgentUpdated, CanvasID: "c1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

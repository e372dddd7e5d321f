package optimistic

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/artloom/artloom/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestDebouncerCoalesces(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var calls int32
	for i := 0; i < 10; i++ {
		d.Schedule("agent-1", func() { atomic.AddInt32(&calls, 1) })
	}
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 0, d.Pending())
}

func TestDebouncerKeysAreIndependent(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	var mu sync.Mutex
	fired := map[string]bool{}
	for _, key := range []string{"a", "b", "c"} {
		key := key
		d.Schedule(key, func() {
			mu.Lock()
			fired[key] = true
			mu.Unlock()
		})
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	var calls int32
	d.Schedule("a", func() { atomic.AddInt32(&calls, 1) })
	d.Cancel("a")

	time.Sleep(60 * time.Millisecond)
	require.Zero(t, atomic.LoadInt32(&calls))
	require.Equal(t, 0, d.Pending())
}

func TestPatchSetConfirmDiscards(t *testing.T) {
	s := NewPatchSet()
	s.Apply(Patch{
		MutationID: "m1",
		AgentID:    "a1",
		Fields:     map[string]interface{}{"x": 500.0},
	})
	require.Equal(t, 1, s.Pending())

	s.Confirm("m1")
	require.Equal(t, 0, s.Pending())
	require.False(t, s.NeedsResync())
}

func TestPatchSetFailForcesResync(t *testing.T) {
	s := NewPatchSet()
	s.Apply(Patch{MutationID: "m1", AgentID: "a1", Fields: map[string]interface{}{"x": 500.0}})
	s.Fail("m1")
	require.Equal(t, 0, s.Pending())
	require.True(t, s.NeedsResync())

	s.ResyncDone()
	require.False(t, s.NeedsResync())
}

func TestPatchSetOverlayAppliesInOrder(t *testing.T) {
	s := NewPatchSet()
	s.Apply(Patch{MutationID: "m1", AgentID: "a1", Fields: map[string]interface{}{"x": 200.0, "prompt": "first"}})
	s.Apply(Patch{MutationID: "m2", AgentID: "a1", Fields: map[string]interface{}{"x": 300.0}})
	s.Apply(Patch{MutationID: "m3", AgentID: "other", Fields: map[string]interface{}{"x": 999.0}})

	got := s.Overlay(models.Agent{ID: "a1", X: 100, Prompt: "original"})
	require.Equal(t, 300.0, got.X, "later patch wins")
	require.Equal(t, "first", got.Prompt)

	// Confirming the later patch re-exposes the earlier value.
	s.Confirm("m2")
	got = s.Overlay(models.Agent{ID: "a1", X: 100})
	require.Equal(t, 200.0, got.X)
}

func TestPatchSetOverlayIgnoresUnknownFields(t *testing.T) {
	s := NewPatchSet()
	s.Apply(Patch{MutationID: "m1", AgentID: "a1", Fields: map[string]interface{}{"glow": true, "y": 42.0}})
	got := s.Overlay(models.Agent{ID: "a1"})
	require.Equal(t, 42.0, got.Y)
}

// fakeRemover records marks and deletes. Deletes are idempotent, like
// the real store's.
type fakeRemover struct {
	mu     sync.Mutex
	status map[string]models.AgentStatus
}

func newFakeRemover(ids ...string) *fakeRemover {
	f := &fakeRemover{status: map[string]models.AgentStatus{}}
	for _, id := range ids {
		f.status[id] = models.StatusIdle
	}
	return f
}

func (f *fakeRemover) MarkAgentsDeleting(ctx context.Context, canvasID string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if _, ok := f.status[id]; ok {
			f.status[id] = models.StatusDeleting
		}
	}
	return nil
}

func (f *fakeRemover) DeleteAgent(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.status, id)
	return nil
}

func (f *fakeRemover) statusOf(id string) (models.AgentStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.status[id]
	return s, ok
}

func (f *fakeRemover) remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.status)
}

func TestDeletionExactlyOnceEffective(t *testing.T) {
	ctx := context.Background()
	ids := []string{"a1", "a2", "a3"}
	ms := newFakeRemover(ids...)

	c := NewDeletionCoordinator(ms)
	require.NoError(t, c.Begin(ctx, "c1", ids))
	require.Equal(t, 3, c.PendingCount())

	for _, id := range ids {
		s, ok := ms.statusOf(id)
		require.True(t, ok)
		require.Equal(t, models.StatusDeleting, s)
	}

	// Several observers finish their animations and all report every
	// agent done.
	var wg sync.WaitGroup
	errs := make(chan error, 4*len(ids))
	for observer := 0; observer < 4; observer++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, id := range ids {
				errs <- c.Complete(ctx, id)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, 0, c.PendingCount())
	require.Equal(t, 0, ms.remaining())
}

func TestDeletionBeginEmptyBatch(t *testing.T) {
	c := NewDeletionCoordinator(newFakeRemover())
	require.NoError(t, c.Begin(context.Background(), "c1", nil))
	require.Equal(t, 0, c.PendingCount())
}

package retention

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artloom/artloom/internal/storage"
	"github.com/artloom/artloom/internal/store"
	"github.com/artloom/artloom/pkg/models"
	"github.com/stretchr/testify/require"
)

func newTestJanitor(t *testing.T) (*Janitor, *store.MemoryStore, *storage.MediaStore) {
	t.Helper()
	s := store.NewMemoryStore(t.TempDir(), nil)
	t.Cleanup(func() { s.Close() })
	media, err := storage.NewMediaStore(t.TempDir(), "http://media.test", nil)
	require.NoError(t, err)

	j := NewJanitor(s, media, Options{
		Interval:       time.Hour,
		MinAge:         time.Minute,
		TrashRetention: time.Hour,
	})
	return j, s, media
}

// age backdates a stored file so the sweep sees it as old.
func age(t *testing.T, dir, name string, d time.Duration) {
	t.Helper()
	past := time.Now().Add(-d)
	require.NoError(t, os.Chtimes(filepath.Join(dir, name), past, past))
}

func nameFromURL(t *testing.T, media *storage.MediaStore, url string) string {
	t.Helper()
	name, ok := media.LocalName(url)
	require.True(t, ok, "expected local media URL, got %s", url)
	return name
}

func TestSweepTrashesOrphans(t *testing.T) {
	j, s, media := newTestJanitor(t)
	ctx := context.Background()

	require.NoError(t, s.CreateCanvas(ctx, &models.Canvas{ID: "c1"}))

	keptURL, err := media.Save("kept.png", []byte("kept"))
	require.NoError(t, err)
	orphanURL, err := media.Save("orphan.png", []byte("orphan"))
	require.NoError(t, err)
	freshURL, err := media.Save("fresh.png", []byte("fresh"))
	require.NoError(t, err)

	require.NoError(t, s.CreateAgent(ctx, &models.Agent{
		ID: "a1", CanvasID: "c1", Kind: models.KindImageGenerate,
		Status: models.StatusSuccess, OutputURL: keptURL,
	}))

	kept := nameFromURL(t, media, keptURL)
	orphan := nameFromURL(t, media, orphanURL)
	fresh := nameFromURL(t, media, freshURL)
	age(t, media.Dir(), kept, 10*time.Minute)
	age(t, media.Dir(), orphan, 10*time.Minute)
	_ = fresh // left at its real mod time, inside the min-age window

	stats := j.RunCycle(ctx)
	require.Empty(t, stats.Errors)
	require.Equal(t, 1, stats.FilesTrashed)

	files, err := media.ListFiles()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range files {
		names[f.Name] = true
	}
	require.True(t, names[kept], "referenced file must survive")
	require.True(t, names[fresh], "fresh file must survive")
	require.False(t, names[orphan], "orphan must be trashed")

	_, err = os.Stat(filepath.Join(media.Dir()+".trash", orphan))
	require.NoError(t, err, "orphan should sit in trash, not be deleted")
}

func TestSweepKeepsChatUploads(t *testing.T) {
	j, s, media := newTestJanitor(t)
	ctx := context.Background()

	require.NoError(t, s.CreateCanvas(ctx, &models.Canvas{ID: "c1"}))
	uploadURL, err := media.Save("upload.png", []byte("data"))
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(ctx, &models.ChatMessage{
		ID: "m1", CanvasID: "c1", Role: models.RoleUser, Content: "edit this",
		Meta: &models.ChatMeta{UploadedFileURLs: []string{uploadURL}},
	}))

	name := nameFromURL(t, media, uploadURL)
	age(t, media.Dir(), name, time.Hour)

	stats := j.RunCycle(ctx)
	require.Empty(t, stats.Errors)
	require.Zero(t, stats.FilesTrashed)
}

func TestTrashPurgedAfterRetention(t *testing.T) {
	j, s, media := newTestJanitor(t)
	ctx := context.Background()
	require.NoError(t, s.CreateCanvas(ctx, &models.Canvas{ID: "c1"}))

	orphanURL, err := media.Save("orphan.png", []byte("orphan"))
	require.NoError(t, err)
	name := nameFromURL(t, media, orphanURL)
	age(t, media.Dir(), name, time.Hour)

	stats := j.RunCycle(ctx)
	require.Equal(t, 1, stats.FilesTrashed)
	require.Zero(t, stats.FilesPurged)

	// Backdate the trash entry past the retention window.
	age(t, media.Dir()+".trash", name, 2*time.Hour)

	stats = j.RunCycle(ctx)
	require.Equal(t, 1, stats.FilesPurged)
	require.Equal(t, int64(len("orphan")), stats.BytesReclaimed)

	_, err = os.Stat(filepath.Join(media.Dir()+".trash", name))
	require.True(t, os.IsNotExist(err))
}

// failingStore breaks canvas listing to simulate an unavailable store.
type failingStore struct {
	store.Store
}

func (f *failingStore) ListAllCanvases(ctx context.Context) ([]models.Canvas, error) {
	return nil, errors.New("store unavailable")
}

func TestSweepSkippedWhenStoreUnavailable(t *testing.T) {
	_, s, media := newTestJanitor(t)
	ctx := context.Background()

	orphanURL, err := media.Save("orphan.png", []byte("orphan"))
	require.NoError(t, err)
	name := nameFromURL(t, media, orphanURL)
	age(t, media.Dir(), name, time.Hour)

	// Without a reference set every file looks orphaned; the sweep must
	// abort instead.
	j := NewJanitor(&failingStore{Store: s}, media, Options{MinAge: time.Minute})
	stats := j.RunCycle(ctx)
	require.NotEmpty(t, stats.Errors)

	files, err := media.ListFiles()
	require.NoError(t, err)
	require.Len(t, files, 1, "no file may be touched without a reference set")
}

func TestOptionsDefaults(t *testing.T) {
	_, s, media := newTestJanitor(t)
	j := NewJanitor(s, media, Options{})
	require.Equal(t, time.Hour, j.interval)
	require.Equal(t, DefaultMinAge, j.minAge)
	require.Equal(t, DefaultTrashRetention, j.trashRetention)
}

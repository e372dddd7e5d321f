// Package retention reclaims disk space from the media store. Agents
// and chat messages reference stored files by URL; files nothing
// references anymore — abandoned uploads, outputs of deleted agents —
// accumulate until something removes them.
//
// The janitor runs as a background goroutine. Removal is two-phase and
// fail-safe: an orphaned file first moves to a trash directory next to
// the media dir, and is only deleted for good after it has sat there a
// full retention window. A sweep mistake is recoverable by moving the
// file back.
package retention

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/artloom/artloom/internal/storage"
	"github.com/artloom/artloom/internal/store"
	"github.com/rs/zerolog/log"
)

// DefaultMinAge is how long a file must be unreferenced before it is
// considered orphaned. Uploads are written before the agent that
// references them exists, so fresh files are never touched.
const DefaultMinAge = time.Hour

// DefaultTrashRetention is how long trashed files survive before
// permanent deletion.
const DefaultTrashRetention = 7 * 24 * time.Hour

// CycleStats tracks what happened in a single sweep.
type CycleStats struct {
	FilesScanned   int
	FilesTrashed   int
	FilesPurged    int
	BytesReclaimed int64
	Errors         []error
}

// Options configures the janitor. Zero values get defaults.
type Options struct {
	Interval       time.Duration
	MinAge         time.Duration
	TrashRetention time.Duration
}

// Janitor periodically sweeps the media store for orphaned files.
type Janitor struct {
	store store.Store
	media *storage.MediaStore

	interval       time.Duration
	minAge         time.Duration
	trashRetention time.Duration
	trashDir       string
}

// NewJanitor creates a janitor over the given store and media store.
func NewJanitor(s store.Store, media *storage.MediaStore, opts Options) *Janitor {
	if opts.Interval < time.Minute {
		opts.Interval = time.Hour
	}
	if opts.MinAge <= 0 {
		opts.MinAge = DefaultMinAge
	}
	if opts.TrashRetention <= 0 {
		opts.TrashRetention = DefaultTrashRetention
	}
	return &Janitor{
		store:          s,
		media:          media,
		interval:       opts.Interval,
		minAge:         opts.MinAge,
		trashRetention: opts.TrashRetention,
		trashDir:       media.Dir() + ".trash",
	}
}

// Start runs the janitor until ctx is canceled.
func (j *Janitor) Start(ctx context.Context) {
	log.Info().
		Dur("interval", j.interval).
		Dur("min_age", j.minAge).
		Dur("trash_retention", j.trashRetention).
		Msg("Media janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Media janitor stopped")
			return
		case <-ticker.C:
			j.RunCycle(ctx)
		}
	}
}

// RunCycle performs one sweep: trash unreferenced files past minAge,
// then purge trash entries past the retention window.
func (j *Janitor) RunCycle(ctx context.Context) CycleStats {
	start := time.Now()
	var stats CycleStats

	referenced, err := j.referencedFiles(ctx)
	if err != nil {
		// Without the full reference set every file looks orphaned, so
		// the sweep must not proceed.
		log.Warn().Err(err).Msg("Media janitor: cannot build reference set, skipping sweep")
		stats.Errors = append(stats.Errors, err)
		return stats
	}

	j.sweepMedia(referenced, &stats)
	j.purgeTrash(&stats)

	if stats.FilesTrashed > 0 || stats.FilesPurged > 0 {
		log.Info().
			Int("scanned", stats.FilesScanned).
			Int("trashed", stats.FilesTrashed).
			Int("purged", stats.FilesPurged).
			Int64("bytes_reclaimed", stats.BytesReclaimed).
			Dur("elapsed", time.Since(start)).
			Msg("Media sweep complete")
	}
	return stats
}

// referencedFiles collects the names of every stored file some agent or
// chat message still points at.
func (j *Janitor) referencedFiles(ctx context.Context) (map[string]bool, error) {
	referenced := make(map[string]bool)
	add := func(rawURL string) {
		if name, ok := j.media.LocalName(rawURL); ok {
			referenced[name] = true
		}
	}

	canvases, err := j.store.ListAllCanvases(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range canvases {
		agents, err := j.store.ListAgents(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range agents {
			add(a.OutputURL)
			add(a.UploadedImageURL)
			add(a.ActiveImageURL)
			addOptionURLs(a.Options, add)
		}

		msgs, err := j.store.ListMessages(ctx, c.ID, 0)
		if err != nil {
			return nil, err
		}
		for _, msg := range msgs {
			if msg.Meta != nil {
				for _, u := range msg.Meta.UploadedFileURLs {
					add(u)
				}
			}
		}
	}
	return referenced, nil
}

// addOptionURLs scans agent options for string values that look like
// media URLs. Providers accept reference images through options.
func addOptionURLs(options map[string]interface{}, add func(string)) {
	for _, v := range options {
		if s, ok := v.(string); ok {
			add(s)
		}
	}
}

// sweepMedia moves unreferenced files older than minAge into the trash
// directory.
func (j *Janitor) sweepMedia(referenced map[string]bool, stats *CycleStats) {
	files, err := j.media.ListFiles()
	if err != nil {
		stats.Errors = append(stats.Errors, err)
		return
	}
	stats.FilesScanned = len(files)

	cutoff := time.Now().Add(-j.minAge)
	for _, f := range files {
		if referenced[f.Name] || f.ModTime.After(cutoff) {
			continue
		}
		if err := j.trash(f.Name); err != nil {
			log.Warn().Err(err).Str("file", f.Name).Msg("Failed to trash orphaned media file")
			stats.Errors = append(stats.Errors, err)
			continue
		}
		stats.FilesTrashed++
		log.Debug().Str("file", f.Name).Msg("Orphaned media file trashed")
	}
}

// trash moves one file from the media dir into the trash dir. The
// rename resets the mod time reference point via an explicit touch so
// the trash window counts from trashing, not from upload.
func (j *Janitor) trash(name string) error {
	if err := os.MkdirAll(j.trashDir, 0755); err != nil {
		return err
	}
	dst := filepath.Join(j.trashDir, name)
	if err := os.Rename(filepath.Join(j.media.Dir(), name), dst); err != nil {
		return err
	}
	now := time.Now()
	return os.Chtimes(dst, now, now)
}

// purgeTrash permanently deletes trash entries older than the retention
// window.
func (j *Janitor) purgeTrash(stats *CycleStats) {
	entries, err := os.ReadDir(j.trashDir)
	if err != nil {
		if !os.IsNotExist(err) {
			stats.Errors = append(stats.Errors, err)
		}
		return
	}

	cutoff := time.Now().Add(-j.trashRetention)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.trashDir, e.Name())); err != nil {
			stats.Errors = append(stats.Errors, err)
			continue
		}
		stats.FilesPurged++
		stats.BytesReclaimed += info.Size()
	}
}

// Package storage persists generated and uploaded media on local disk
// and hands out the public URLs the rest of the system stores on
// agents. Synchronous provider results land here before the owning
// agent flips to success.
package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// maxDownloadBytes caps how much we pull from a provider URL.
const maxDownloadBytes = 64 << 20 // 64 MiB

// MediaStore writes media files under a directory and serves them at
// baseURL/files/<name>.
type MediaStore struct {
	dir     string
	baseURL string
	client  *http.Client

	// publicHosts is the allow-list of hostnames whose URLs are
	// treated as already-public: no re-upload needed.
	publicHosts map[string]bool
}

// NewMediaStore creates a media store rooted at dir. publicHosts lists
// hostnames (exact match) that never need re-uploading.
func NewMediaStore(dir, baseURL string, publicHosts []string) (*MediaStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating media dir: %w", err)
	}
	hosts := make(map[string]bool, len(publicHosts))
	for _, h := range publicHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			hosts[h] = true
		}
	}
	return &MediaStore{
		dir:         dir,
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: 60 * time.Second},
		publicHosts: hosts,
	}, nil
}

// Dir returns the on-disk directory, for mounting a file server.
func (m *MediaStore) Dir() string { return m.dir }

// IsPublicURL reports whether raw is an http(s) URL on an allow-listed
// host, meaning it can be passed to providers as-is.
func (m *MediaStore) IsPublicURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return m.publicHosts[strings.ToLower(u.Hostname())]
}

// Save writes data under a fresh name derived from the original
// filename's extension and returns the public URL.
func (m *MediaStore) Save(filename string, data []byte) (string, error) {
	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".bin"
	}
	name := uuid.New().String() + ext
	path := filepath.Join(m.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing media file: %w", err)
	}

	u := m.baseURL + "/files/" + name
	log.Debug().Str("file", name).Int("bytes", len(data)).Msg("Media saved")
	return u, nil
}

// SaveBase64 decodes a base64 payload (optionally a data: URI) and
// persists it. Providers in synchronous mode often return media inline
// this way.
func (m *MediaStore) SaveBase64(encoded, contentType string) (string, error) {
	if idx := strings.Index(encoded, ";base64,"); idx >= 0 {
		if contentType == "" {
			contentType = strings.TrimPrefix(encoded[:idx], "data:")
		}
		encoded = encoded[idx+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding base64 media: %w", err)
	}
	return m.Save("media"+extForContentType(contentType), data)
}

// Download fetches a provider-hosted URL and persists a local copy,
// returning the new public URL. Already-public URLs are returned
// unchanged.
func (m *MediaStore) Download(ctx context.Context, rawURL string) (string, error) {
	if m.IsPublicURL(rawURL) {
		return rawURL, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("building download request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("downloading media: HTTP %d from %s", resp.StatusCode, rawURL)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return "", fmt.Errorf("reading media body: %w", err)
	}

	name := filepath.Base(strings.SplitN(rawURL, "?", 2)[0])
	if filepath.Ext(name) == "" {
		name = "media" + extForContentType(resp.Header.Get("Content-Type"))
	}
	return m.Save(name, data)
}

// LocalName extracts the stored file name from a URL this store handed
// out. Returns false for external URLs.
func (m *MediaStore) LocalName(rawURL string) (string, bool) {
	prefix := m.baseURL + "/files/"
	if !strings.HasPrefix(rawURL, prefix) {
		return "", false
	}
	name := strings.TrimPrefix(rawURL, prefix)
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

// ListFiles returns the names and modification times of all stored
// media files.
func (m *MediaStore) ListFiles() ([]FileInfo, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("reading media dir: %w", err)
	}
	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, FileInfo{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	return out, nil
}

// Remove deletes a stored file. Removing a name that no longer exists
// is not an error.
func (m *MediaStore) Remove(name string) error {
	if err := os.Remove(filepath.Join(m.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing media file %s: %w", name, err)
	}
	return nil
}

// FileInfo describes one stored media file.
type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// FileServer returns a handler serving the stored media files.
func (m *MediaStore) FileServer() http.Handler {
	return http.StripPrefix("/files/", http.FileServer(http.Dir(m.dir)))
}

func extForContentType(ct string) string {
	ct = strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
	switch ct {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav":
		return ".wav"
	case "video/mp4":
		return ".mp4"
	}
	if exts, err := mime.ExtensionsByType(ct); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

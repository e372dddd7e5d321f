package storage

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *MediaStore {
	t.Helper()
	m, err := NewMediaStore(t.TempDir(), "http://localhost:8080", []string{"cdn.example.com"})
	if err != nil {
		t.Fatalf("NewMediaStore() error = %v", err)
	}
	return m
}

func TestSave(t *testing.T) {
	m := newTestStore(t)
	u, err := m.Save("photo.png", []byte("not-really-a-png"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !strings.HasPrefix(u, "http://localhost:8080/files/") {
		t.Errorf("URL = %q, want /files/ prefix", u)
	}
	if !strings.HasSuffix(u, ".png") {
		t.Errorf("URL = %q, want .png suffix", u)
	}

	name := filepath.Base(u)
	data, err := os.ReadFile(filepath.Join(m.Dir(), name))
	if err != nil {
		t.Fatalf("reading saved file: %v", err)
	}
	if string(data) != "not-really-a-png" {
		t.Error("saved content mismatch")
	}
}

func TestSaveBase64DataURI(t *testing.T) {
	m := newTestStore(t)
	payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("pixels"))
	u, err := m.SaveBase64(payload, "")
	if err != nil {
		t.Fatalf("SaveBase64() error = %v", err)
	}
	if !strings.HasSuffix(u, ".png") {
		t.Errorf("URL = %q, want .png suffix from data URI content type", u)
	}
}

func TestIsPublicURL(t *testing.T) {
	m := newTestStore(t)
	cases := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example.com/a.png", true},
		{"http://cdn.example.com/b.jpg", true},
		{"https://other.example.com/a.png", false},
		{"not-a-url", false},
		{"file:///etc/passwd", false},
	}
	for _, tc := range cases {
		if got := m.IsPublicURL(tc.url); got != tc.want {
			t.Errorf("IsPublicURL(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

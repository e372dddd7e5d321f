package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/artloom/artloom/pkg/models"
)

// ImageConfig configures the synchronous image provider.
type ImageConfig struct {
	BaseURL string
	APIKey  string
}

// ImageProvider serves image-generate and image-edit jobs against a
// fast synchronous API: the finished image comes back inline, so no
// correlation step is needed.
type ImageProvider struct {
	kind   models.AgentKind
	cfg    ImageConfig
	client *http.Client
}

// NewImageProvider creates a sync image provider for one kind
// (image-generate or image-edit).
func NewImageProvider(kind models.AgentKind, cfg ImageConfig) *ImageProvider {
	return &ImageProvider{
		kind: kind,
		cfg:  cfg,
		client: &http.Client{
			// Sync generation can take tens of seconds.
			Timeout: 120 * time.Second,
		},
	}
}

func (p *ImageProvider) Kind() models.AgentKind { return p.kind }

// imageResponse is the provider's native response shape.
type imageResponse struct {
	Image struct {
		URL         string `json:"url"`
		B64         string `json:"b64_json"`
		ContentType string `json:"content_type"`
	} `json:"image"`
	Error string `json:"error"`
}

func (p *ImageProvider) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	body := map[string]interface{}{
		"prompt": req.Prompt,
	}
	if req.Tier == models.TierPro {
		body["quality"] = "hd"
	}
	if req.InputImageURL != "" {
		body["image_url"] = req.InputImageURL
	}
	if ar, ok := req.Options["aspect_ratio"].(string); ok && ar != "" {
		body["aspect_ratio"] = ar
	}

	path := "/v1/images/generate"
	if p.kind == models.KindImageEdit {
		path = "/v1/images/edit"
	}

	var out imageResponse
	if err := p.post(ctx, path, body, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("image provider: %s", out.Error)
	}
	if out.Image.URL == "" && out.Image.B64 == "" {
		return nil, fmt.Errorf("image provider returned no media")
	}

	return &SubmitResult{
		MediaURL:    out.Image.URL,
		MediaBase64: out.Image.B64,
		ContentType: out.Image.ContentType,
	}, nil
}

// NormalizeCallback exists to satisfy Provider; sync image jobs never
// produce callbacks, so any payload that arrives is treated as an
// error.
func (p *ImageProvider) NormalizeCallback(wp WebhookPayload) CallbackResult {
	return normalizeStatusCallback(wp, "image_url", "url")
}

func (p *ImageProvider) post(ctx context.Context, path string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal image request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("image provider call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("image provider HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode image response: %w", err)
	}
	return nil
}

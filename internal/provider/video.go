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

// VideoConfig configures the asynchronous text-to-video provider.
type VideoConfig struct {
	BaseURL string
	APIKey  string
}

// VideoProvider submits text-to-video jobs in webhook mode. Video
// generation runs for minutes; the request id is the only link to the
// eventual callback.
type VideoProvider struct {
	cfg    VideoConfig
	client *http.Client
}

func NewVideoProvider(cfg VideoConfig) *VideoProvider {
	return &VideoProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *VideoProvider) Kind() models.AgentKind { return models.KindVideoGenerate }

func (p *VideoProvider) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.CallbackURL == "" {
		return nil, fmt.Errorf("video provider requires a callback URL")
	}

	body := map[string]interface{}{
		"prompt":       req.Prompt,
		"callback_url": req.CallbackURL,
	}
	if req.InputImageURL != "" {
		// Image-to-video when an input frame is supplied.
		body["image_url"] = req.InputImageURL
	}
	if ar, ok := req.Options["aspect_ratio"].(string); ok && ar != "" {
		body["aspect_ratio"] = ar
	}
	if d, ok := req.Options["duration"].(float64); ok && d > 0 {
		body["duration_seconds"] = d
	}
	if req.Tier == models.TierPro {
		body["model"] = "cinema"
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal video request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/videos", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build video request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("video provider call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("video provider HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out struct {
		RequestID string `json:"request_id"`
		Error     string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode video response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("video provider: %s", out.Error)
	}
	if out.RequestID == "" {
		return nil, fmt.Errorf("video provider returned no request id")
	}
	return &SubmitResult{RequestID: out.RequestID}, nil
}

func (p *VideoProvider) NormalizeCallback(wp WebhookPayload) CallbackResult {
	return normalizeStatusCallback(wp, "video_url", "url")
}

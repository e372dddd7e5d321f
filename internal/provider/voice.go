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

// VoiceConfig configures the asynchronous text-to-speech provider.
type VoiceConfig struct {
	BaseURL string
	APIKey  string
}

// VoiceProvider submits text-to-speech jobs. The provider accepts the
// job and returns a request id; the finished audio arrives later on
// the registered callback URL.
type VoiceProvider struct {
	cfg    VoiceConfig
	client *http.Client
}

func NewVoiceProvider(cfg VoiceConfig) *VoiceProvider {
	return &VoiceProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *VoiceProvider) Kind() models.AgentKind { return models.KindVoiceGenerate }

func (p *VoiceProvider) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.CallbackURL == "" {
		return nil, fmt.Errorf("voice provider requires a callback URL")
	}

	body := map[string]interface{}{
		"text":         req.Prompt,
		"callback_url": req.CallbackURL,
	}
	if v, ok := req.Options["voice_id"].(string); ok && v != "" {
		body["voice_id"] = v
	}
	if e, ok := req.Options["exaggeration"].(float64); ok {
		body["exaggeration"] = e
	}
	if req.Tier == models.TierPro {
		body["model"] = "studio"
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal voice request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/tts", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build voice request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("voice provider call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("voice provider HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out struct {
		RequestID string `json:"request_id"`
		Error     string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode voice response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("voice provider: %s", out.Error)
	}
	if out.RequestID == "" {
		return nil, fmt.Errorf("voice provider returned no request id")
	}
	return &SubmitResult{RequestID: out.RequestID}, nil
}

func (p *VoiceProvider) NormalizeCallback(wp WebhookPayload) CallbackResult {
	return normalizeStatusCallback(wp, "audio_url", "url")
}

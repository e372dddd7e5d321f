package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/artloom/artloom/pkg/models"
)

const anthropicSystemPrompt = `You orchestrate a visual canvas of generative-media agents.
Each agent runs one job: image-generate, image-edit, voice-generate, or video-generate.

Reply with ONLY a JSON object, no prose and no code fences, matching this schema:
%s

Intent "create_agents" needs one operation per requested output.
Intent "modify_agents" needs operations targeting referenced agents.
Intent "general_chat" needs only a "response" string.
When images are attached, prefer image-edit operations sourced from the uploads.
Set auto_generate true when the user clearly wants the media produced now.`

// AnthropicConfig configures the second resolution tier.
type AnthropicConfig struct {
	APIKey string
	Model  string
}

// AnthropicResolver is the fallback LLM tier. It asks for raw JSON
// instead of a tool call, so its output runs through repair-tolerant
// decoding.
type AnthropicResolver struct {
	client anthropic.Client
	model  anthropic.Model
}

func NewAnthropicResolver(cfg AnthropicConfig) *AnthropicResolver {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaude3_5Haiku20241022
	}
	return &AnthropicResolver{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

func (r *AnthropicResolver) Name() string { return "anthropic" }

func (r *AnthropicResolver) Resolve(ctx context.Context, req Request) (*models.IntentResult, error) {
	schemaJSON, err := json.Marshal(planSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal plan schema: %w", err)
	}

	system := []anthropic.TextBlockParam{
		{Text: fmt.Sprintf(anthropicSystemPrompt, schemaJSON)},
	}
	if summary := contextSummary(req); summary != "" {
		system = append(system, anthropic.TextBlockParam{Text: summary})
	}

	var messages []anthropic.MessageParam
	for _, m := range req.History {
		block := anthropic.NewTextBlock(m.Content)
		switch m.Role {
		case models.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(block))
		default:
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Message)))

	resp, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       r.model,
		MaxTokens:   2048,
		Temperature: anthropic.Float(0.2),
		System:      system,
		Messages:    messages,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic completion: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	raw := stripCodeFence(text.String())
	if raw == "" {
		return nil, fmt.Errorf("anthropic returned no text")
	}

	plan, err := decodePlan(raw)
	if err != nil {
		return nil, err
	}
	return plan.toResult()
}

// stripCodeFence unwraps ```json fenced blocks the model emits despite
// instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

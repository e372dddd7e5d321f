package intent

import (
	"context"
	"fmt"

	"github.com/artloom/artloom/pkg/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// planToolName is the function the model calls to emit structured
// canvas operations.
const planToolName = "plan_canvas_operations"

const openaiSystemPrompt = `You orchestrate a visual canvas of generative-media agents.
Each agent runs one job: image-generate, image-edit, voice-generate, or video-generate.

Classify the user's message and ALWAYS call ` + planToolName + `:
- If it asks to create or generate media, use intent "create_agents" with one operation per requested output.
- If it asks to change media an existing agent produced, use intent "modify_agents".
- Otherwise use intent "general_chat" and put your conversational answer in "response".

When images are attached, prefer image-edit operations sourced from the uploads.
When the user references existing agents, prefer image-edit operations connected to them.
Set auto_generate true when the user clearly wants the media produced now, not just the agents set up.`

// OpenAIConfig configures the first resolution tier.
type OpenAIConfig struct {
	APIKey string
	Model  string

	// BaseURL overrides the API endpoint (proxies, tests).
	BaseURL string
}

// OpenAIResolver is the primary tier: native function calling gives the
// most reliable structured output.
type OpenAIResolver struct {
	client openai.Client
	model  string
}

func NewOpenAIResolver(cfg OpenAIConfig) *OpenAIResolver {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAIResolver{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (r *OpenAIResolver) Name() string { return "openai" }

func (r *OpenAIResolver) Resolve(ctx context.Context, req Request) (*models.IntentResult, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(openaiSystemPrompt),
	}
	if summary := contextSummary(req); summary != "" {
		messages = append(messages, openai.SystemMessage(summary))
	}
	for _, m := range req.History {
		switch m.Role {
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(req.Message))

	params := openai.ChatCompletionNewParams{
		Model:       r.model,
		Messages:    messages,
		Temperature: openai.Float(0.2),
		Tools: []openai.ChatCompletionToolParam{
			{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        planToolName,
					Description: openai.String("Emit structured canvas operations for the user's request."),
					Parameters:  openai.FunctionParameters(planSchema()),
				},
			},
		},
	}

	resp, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}
	msg := resp.Choices[0].Message

	for _, tc := range msg.ToolCalls {
		if tc.Function.Name != planToolName {
			continue
		}
		plan, err := decodePlan(tc.Function.Arguments)
		if err != nil {
			return nil, err
		}
		return plan.toResult()
	}

	// The model declined the tool despite instructions. Only a
	// well-formed call counts; anything else defers to the next tier,
	// which can still turn the message into operations.
	return nil, fmt.Errorf("openai returned no %s call", planToolName)
}

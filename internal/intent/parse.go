package intent

import (
	"encoding/json"
	"fmt"

	"github.com/artloom/artloom/pkg/models"
	"github.com/kaptinlin/jsonrepair"
)

// planPayload is the JSON both LLM tiers produce: the OpenAI tier as
// tool-call arguments, the Anthropic tier as the message body.
type planPayload struct {
	Intent       string          `json:"intent"`
	Operations   []planOperation `json:"operations"`
	Response     string          `json:"response"`
	AutoGenerate bool            `json:"auto_generate"`
	Confidence   float64         `json:"confidence"`
}

type planOperation struct {
	Kind        string                 `json:"kind"`
	Prompt      string                 `json:"prompt"`
	Tier        string                 `json:"tier"`
	Options     map[string]interface{} `json:"options"`
	InputSource *planInputSource       `json:"input_source"`
	Confidence  float64                `json:"confidence"`
}

type planInputSource struct {
	Type          string `json:"type"`
	FileURL       string `json:"file_url"`
	SourceAgentID string `json:"source_agent_id"`
}

// decodePlan unmarshals an LLM-produced plan, repairing malformed JSON
// first when the strict parse fails. Models routinely emit trailing
// commas, unquoted keys, or fenced code blocks.
func decodePlan(raw string) (*planPayload, error) {
	var p planPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		fixed, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			return nil, fmt.Errorf("plan JSON unparseable: %w", err)
		}
		if err := json.Unmarshal([]byte(fixed), &p); err != nil {
			return nil, fmt.Errorf("plan JSON unparseable after repair: %w", err)
		}
	}
	return &p, nil
}

// toResult validates the decoded plan against the model's vocabulary
// and converts it. Unknown kinds or intents reject the whole plan so
// the next tier gets a chance.
func (p *planPayload) toResult() (*models.IntentResult, error) {
	res := &models.IntentResult{
		Response:     p.Response,
		AutoGenerate: p.AutoGenerate,
		Confidence:   clampConfidence(p.Confidence),
	}

	switch models.Intent(p.Intent) {
	case models.IntentCreateAgents, models.IntentModifyAgents, models.IntentGeneralChat:
		res.Intent = models.Intent(p.Intent)
	default:
		return nil, fmt.Errorf("unknown intent %q", p.Intent)
	}

	if res.Intent == models.IntentGeneralChat {
		if res.Response == "" {
			return nil, fmt.Errorf("general_chat plan carried no response text")
		}
		return res, nil
	}

	if len(p.Operations) == 0 {
		return nil, fmt.Errorf("%s plan carried no operations", res.Intent)
	}
	for i, op := range p.Operations {
		spec, err := op.toSpec()
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		res.Operations = append(res.Operations, *spec)
	}
	return res, nil
}

func (op *planOperation) toSpec() (*models.AgentCreationSpec, error) {
	kind := models.AgentKind(op.Kind)
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown agent kind %q", op.Kind)
	}
	if op.Prompt == "" {
		return nil, fmt.Errorf("empty prompt")
	}

	spec := &models.AgentCreationSpec{
		Kind:       kind,
		Prompt:     op.Prompt,
		Tier:       models.TierNormal,
		Options:    op.Options,
		Confidence: clampConfidence(op.Confidence),
	}
	if op.Tier == string(models.TierPro) {
		spec.Tier = models.TierPro
	}

	if op.InputSource != nil {
		switch models.InputSourceType(op.InputSource.Type) {
		case models.SourceUploadedFile:
			spec.InputSource = &models.InputSource{
				Type:    models.SourceUploadedFile,
				FileURL: op.InputSource.FileURL,
			}
		case models.SourceAgentConnection:
			spec.InputSource = &models.InputSource{
				Type:          models.SourceAgentConnection,
				SourceAgentID: op.InputSource.SourceAgentID,
			}
		default:
			return nil, fmt.Errorf("unknown input source type %q", op.InputSource.Type)
		}
	}
	return spec, nil
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// planSchema is the JSON Schema both LLM tiers are given: the OpenAI
// tier as a function definition, the Anthropic tier embedded in the
// prompt.
func planSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"intent": map[string]interface{}{
				"type": "string",
				"enum": []string{"create_agents", "modify_agents", "general_chat"},
			},
			"operations": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"kind": map[string]interface{}{
							"type": "string",
							"enum": []string{"image-generate", "image-edit", "voice-generate", "video-generate"},
						},
						"prompt": map[string]interface{}{"type": "string"},
						"tier": map[string]interface{}{
							"type": "string",
							"enum": []string{"normal", "pro"},
						},
						"options": map[string]interface{}{"type": "object"},
						"input_source": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"type": map[string]interface{}{
									"type": "string",
									"enum": []string{"uploaded_file", "agent_connection"},
								},
								"file_url":        map[string]interface{}{"type": "string"},
								"source_agent_id": map[string]interface{}{"type": "string"},
							},
						},
						"confidence": map[string]interface{}{"type": "number"},
					},
					"required": []string{"kind", "prompt"},
				},
			},
			"response":      map[string]interface{}{"type": "string"},
			"auto_generate": map[string]interface{}{"type": "boolean"},
			"confidence":    map[string]interface{}{"type": "number"},
		},
		"required": []string{"intent"},
	}
}

package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/artloom/artloom/pkg/models"
)

// RulesResolver is the last tier: deterministic keyword matching that
// always produces an answer. Confidence is deliberately low so callers
// can tell a keyword guess from an LLM plan.
type RulesResolver struct{}

func NewRulesResolver() *RulesResolver { return &RulesResolver{} }

func (r *RulesResolver) Name() string { return "rules" }

var (
	createWords = []string{"create", "generate", "make", "draw", "produce", "render", "build"}
	editWords   = []string{"edit", "change", "modify", "adjust", "fix", "redo", "update", "turn"}

	imageWords = []string{"image", "picture", "photo", "illustration", "painting", "drawing", "logo"}
	voiceWords = []string{"voice", "speech", "audio", "narration", "say", "speak", "tts"}
	videoWords = []string{"video", "animation", "clip", "footage", "movie"}
)

func (r *RulesResolver) Resolve(ctx context.Context, req Request) (*models.IntentResult, error) {
	// Attachments dominate: an upload with a message is an edit
	// request for that upload, whatever the words say.
	if len(req.UploadedImageURLs) > 0 {
		res := &models.IntentResult{
			Intent:       models.IntentCreateAgents,
			Response:     fmt.Sprintf("Creating %d image-edit agent%s from your upload%s.", len(req.UploadedImageURLs), plural(len(req.UploadedImageURLs)), plural(len(req.UploadedImageURLs))),
			AutoGenerate: true,
			Confidence:   0.8,
		}
		for _, u := range req.UploadedImageURLs {
			res.Operations = append(res.Operations, models.AgentCreationSpec{
				Kind:   models.KindImageEdit,
				Prompt: req.Message,
				Tier:   models.TierNormal,
				InputSource: &models.InputSource{
					Type:    models.SourceUploadedFile,
					FileURL: u,
				},
				Confidence: 0.8,
			})
		}
		return res, nil
	}

	// Explicit agent references make it an edit of those agents.
	if len(req.ReferencedAgents) > 0 {
		res := &models.IntentResult{
			Intent:       models.IntentModifyAgents,
			Response:     fmt.Sprintf("Applying your changes to %d referenced agent%s.", len(req.ReferencedAgents), plural(len(req.ReferencedAgents))),
			AutoGenerate: true,
			Confidence:   0.8,
		}
		for _, a := range req.ReferencedAgents {
			res.Operations = append(res.Operations, models.AgentCreationSpec{
				Kind:   models.KindImageEdit,
				Prompt: req.Message,
				Tier:   a.Tier,
				InputSource: &models.InputSource{
					Type:          models.SourceAgentConnection,
					SourceAgentID: a.ID,
				},
				Confidence: 0.8,
			})
		}
		return res, nil
	}

	lower := strings.ToLower(req.Message)
	if !containsAny(lower, createWords) && !containsAny(lower, editWords) {
		return &models.IntentResult{
			Intent:     models.IntentGeneralChat,
			Response:   fmt.Sprintf("I can create images, voice, or video for you. Try something like %q.", "generate an image of a lighthouse at dusk"),
			Confidence: 0.5,
		}, nil
	}

	kind := models.KindImageGenerate
	switch {
	case containsAny(lower, voiceWords):
		kind = models.KindVoiceGenerate
	case containsAny(lower, videoWords):
		kind = models.KindVideoGenerate
	case containsAny(lower, imageWords):
		kind = models.KindImageGenerate
	}

	return &models.IntentResult{
		Intent:   models.IntentCreateAgents,
		Response: fmt.Sprintf("Creating a %s agent and starting generation.", kindLabel(kind)),
		Operations: []models.AgentCreationSpec{
			{
				Kind:       kind,
				Prompt:     req.Message,
				Tier:       models.TierNormal,
				Confidence: 0.6,
			},
		},
		AutoGenerate: true,
		Confidence:   0.6,
	}, nil
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func kindLabel(kind models.AgentKind) string {
	switch kind {
	case models.KindVoiceGenerate:
		return "voice"
	case models.KindVideoGenerate:
		return "video"
	case models.KindImageEdit:
		return "image-edit"
	}
	return "image"
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

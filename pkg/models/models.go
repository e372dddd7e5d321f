// Package models defines the core data model for the Artloom server:
// canvases, agents, chat messages, and the structured operations the
// intent resolver emits. All persistence and transport layers share
// these types.
package models

import "time"

// ── Agent ───────────────────────────────────────────────────

// AgentKind identifies which generation capability an agent wraps.
type AgentKind string

const (
	KindImageGenerate AgentKind = "image-generate"
	KindImageEdit     AgentKind = "image-edit"
	KindVoiceGenerate AgentKind = "voice-generate"
	KindVideoGenerate AgentKind = "video-generate"
)

// Valid reports whether k is a known agent kind.
func (k AgentKind) Valid() bool {
	switch k {
	case KindImageGenerate, KindImageEdit, KindVoiceGenerate, KindVideoGenerate:
		return true
	}
	return false
}

// ProducesImage reports whether agents of this kind emit an image that
// can feed a downstream image-edit agent.
func (k AgentKind) ProducesImage() bool {
	return k == KindImageGenerate || k == KindImageEdit
}

// AgentStatus is the per-agent lifecycle state.
//
// idle → processing → success|failed. Deleting is a transitional state
// used only to coordinate removal animations across subscribed clients;
// the generation pipeline never enters it.
type AgentStatus string

const (
	StatusIdle       AgentStatus = "idle"
	StatusProcessing AgentStatus = "processing"
	StatusSuccess    AgentStatus = "success"
	StatusFailed     AgentStatus = "failed"
	StatusDeleting   AgentStatus = "deleting"
)

// ProviderTier selects the provider quality tier for a generation.
type ProviderTier string

const (
	TierNormal ProviderTier = "normal"
	TierPro    ProviderTier = "pro"
)

// Agent is a canvas node wrapping one generation job and its result.
type Agent struct {
	ID        string `json:"id"`
	CanvasID  string `json:"canvas_id"`
	OwnerID   string `json:"owner_id"`
	OwnerName string `json:"owner_name,omitempty"`

	Kind   AgentKind   `json:"kind"`
	Status AgentStatus `json:"status"`

	Prompt  string                 `json:"prompt"`
	Tier    ProviderTier           `json:"tier,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"` // voice id, aspect ratio, duration, exaggeration, ...

	// Input linkage. At most one of these normally applies; precedence
	// when both are present is resolved by the provider gateway.
	UploadedImageURL string `json:"uploaded_image_url,omitempty"`
	SourceAgentID    string `json:"source_agent_id,omitempty"`

	// ActiveImageURL lets an edit agent select which of its images
	// (original upload vs. latest regeneration) feeds the next job.
	ActiveImageURL string `json:"active_image_url,omitempty"`

	// OutputURL is the produced media once status is success. It is
	// retained through a later regeneration so a failed retry never
	// blanks the last good result.
	OutputURL string `json:"output_url,omitempty"`

	// RequestID correlates an in-flight async provider job with its
	// webhook. Set at submission, cleared on terminal transition; a
	// stale id on a callback means the job was superseded.
	RequestID string `json:"request_id,omitempty"`

	// Error holds the last failure message, cleared on regeneration.
	Error string `json:"error,omitempty"`

	// Geometry is owned by canvas rendering; opaque here.
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ── Canvas ──────────────────────────────────────────────────

// Canvas owns a set of agents, a chat log, and a viewport.
type Canvas struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Name       string    `json:"name"`
	ShareToken string    `json:"share_token,omitempty"`
	ViewportX  float64   `json:"viewport_x,omitempty"`
	ViewportY  float64   `json:"viewport_y,omitempty"`
	Zoom       float64   `json:"zoom,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ── Chat ────────────────────────────────────────────────────

// ChatRole is the author of a chat message.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is one entry in a canvas's append-only chat log.
type ChatMessage struct {
	ID          string    `json:"id"`
	CanvasID    string    `json:"canvas_id"`
	ChatAgentID string    `json:"chat_agent_id"`
	Role        ChatRole  `json:"role"`
	Content     string    `json:"content"`
	Meta        *ChatMeta `json:"meta,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChatMeta carries the context that produced a message.
type ChatMeta struct {
	ReferencedAgentIDs []string `json:"referenced_agent_ids,omitempty"`
	UploadedFileURLs   []string `json:"uploaded_file_urls,omitempty"`
	CreatedAgentIDs    []string `json:"created_agent_ids,omitempty"`
}

// ── Intent resolution ───────────────────────────────────────

// Intent classifies what a chat message asks for.
type Intent string

const (
	IntentCreateAgents Intent = "create_agents"
	IntentModifyAgents Intent = "modify_agents"
	IntentGeneralChat  Intent = "general_chat"
)

// InputSourceType tags where an edit operation's input image comes from.
type InputSourceType string

const (
	SourceUploadedFile    InputSourceType = "uploaded_file"
	SourceAgentConnection InputSourceType = "agent_connection"
)

// InputSource names the input image for an image-edit operation.
type InputSource struct {
	Type          InputSourceType `json:"type"`
	FileURL       string          `json:"file_url,omitempty"`
	SourceAgentID string          `json:"source_agent_id,omitempty"`
}

// AgentCreationSpec is one structured operation emitted by the intent
// resolver: "create an agent of this kind with these parameters".
type AgentCreationSpec struct {
	Kind        AgentKind              `json:"kind"`
	Prompt      string                 `json:"prompt"`
	Tier        ProviderTier           `json:"tier,omitempty"`
	Options     map[string]interface{} `json:"options,omitempty"`
	InputSource *InputSource           `json:"input_source,omitempty"`
	Confidence  float64                `json:"confidence"`
}

// IntentResult is the resolver's answer for one chat message.
type IntentResult struct {
	Intent       Intent              `json:"intent"`
	Operations   []AgentCreationSpec `json:"operations"`
	Response     string              `json:"response"`
	AutoGenerate bool                `json:"auto_generate"`
	Confidence   float64             `json:"confidence"`

	// Resolver names the tier that produced the result: "openai",
	// "anthropic", or "rules".
	Resolver string `json:"resolver,omitempty"`
}

// ── Mutation feed ───────────────────────────────────────────

// MutationType labels a discrete state-store change on the per-canvas
// event stream.
type MutationType string

const (
	MutationAgentCreated    MutationType = "agent_created"
	MutationAgentUpdated    MutationType = "agent_updated"
	MutationAgentDeleted    MutationType = "agent_deleted"
	MutationMessageAppended MutationType = "message_appended"
	MutationCanvasDeleted   MutationType = "canvas_deleted"
)

// Mutation is one diff delivered to canvas subscribers. Clients treat
// the stream as server truth and reconcile optimistic local state
// against it.
type Mutation struct {
	Type      MutationType `json:"type"`
	CanvasID  string       `json:"canvas_id"`
	AgentID   string       `json:"agent_id,omitempty"`
	Agent     *Agent       `json:"agent,omitempty"`
	Message   *ChatMessage `json:"message,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

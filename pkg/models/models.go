// Package models defines the canonical types shared across the gateway:
// queued jobs, chat messages, provider-agnostic responses, and the small
// accounting records layered on top of them.
package models

import "encoding/json"

// ── Job ──────────────────────────────────────────────────────

// Job is one unit of work sitting on a tenant's queue. It is serialized to
// JSON before being pushed and decoded by the worker that pops it.
type Job struct {
	ID               string           `json:"id"`
	RequestID        string           `json:"request_id"`
	TenantID         string           `json:"tenant_id"`
	Provider         string           `json:"provider"`
	Messages         []Message        `json:"messages"`
	Files            []FileDescriptor `json:"files,omitempty"`
	Temperature      float64          `json:"temperature"`
	Tools            []ToolSchema     `json:"tools,omitempty"`
	ToolChoice       interface{}      `json:"tool_choice,omitempty"`
	TicketID         string           `json:"ticket_id,omitempty"`
	TicketCategories []string         `json:"ticket_categories,omitempty"`
	Category         string           `json:"category,omitempty"`
	Priority         string           `json:"priority,omitempty"`
	NameUser         string           `json:"name_user,omitempty"`
	StartedAtMs      int64            `json:"started_at_ms"`
}

// ── Message ──────────────────────────────────────────────────

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is a single entry in a chat history. Content is either a plain
// string or an ordered sequence of ContentPart; MarshalJSON/UnmarshalJSON
// pick the right wire shape based on which one is populated.
type Message struct {
	Role      Role          `json:"role"`
	RawString string        `json:"-"`
	Parts     []ContentPart `json:"-"`
	ToolCalls []ToolCall    `json:"tool_calls,omitempty"`
	ToolName  string        `json:"name,omitempty"`
}

// IsSequence reports whether this message's content is a part sequence
// rather than a plain string.
func (m Message) IsSequence() bool { return m.Parts != nil }

type messageWire struct {
	Role      Role            `json:"role"`
	Content   json.RawMessage `json:"content,omitempty"`
	ToolCalls []ToolCall      `json:"tool_calls,omitempty"`
	ToolName  string          `json:"name,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	w := messageWire{Role: m.Role, ToolCalls: m.ToolCalls, ToolName: m.ToolName}
	var err error
	switch {
	case m.Parts != nil:
		w.Content, err = json.Marshal(m.Parts)
	case m.ToolCalls != nil && m.RawString == "":
		// assistant tool-call message with null content
	default:
		w.Content, err = json.Marshal(m.RawString)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Role = w.Role
	m.ToolCalls = w.ToolCalls
	m.ToolName = w.ToolName
	if len(w.Content) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(w.Content, &s); err == nil {
		m.RawString = s
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(w.Content, &parts); err != nil {
		return err
	}
	m.Parts = parts
	return nil
}

type ContentPartKind string

const (
	ContentText     ContentPartKind = "text"
	ContentImageURL ContentPartKind = "image_url"
)

type ContentPart struct {
	Type     ContentPartKind `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *ImageURL       `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// ── File descriptor ──────────────────────────────────────────

type FileKind string

const (
	FileImage FileKind = "image"
	FilePDF   FileKind = "pdf"
)

type FileDescriptor struct {
	Kind   FileKind `json:"kind"`
	URL    string   `json:"url,omitempty"`
	Base64 string   `json:"base64,omitempty"`
}

func (f FileDescriptor) IsInline() bool { return f.URL == "" && f.Base64 != "" }

// ── Tool call / schema ───────────────────────────────────────

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolCallFunc `json:"function"`
}

type ToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type ToolSchema struct {
	Type     string          `json:"type"`
	Function ToolFunctionDef `json:"function"`
}

type ToolFunctionDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// ── Canonical response ───────────────────────────────────────

// CanonicalResponse is the OpenAI-shaped reply that every provider adapter
// produces, regardless of upstream wire format.
type CanonicalResponse struct {
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type Choice struct {
	Message ResponseMessage `json:"message"`
}

type ResponseMessage struct {
	Role      Role       `json:"role"`
	Content   *string    `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// ── Result slot payload ──────────────────────────────────────

// ResultEnvelope is what a worker writes to result:{jobId}.
type ResultEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ── Metadata assembled on top of a canonical response ────────

type ResponseMetadata struct {
	RequestID      string  `json:"request_id"`
	Provider       string  `json:"provider"`
	NameUser       string  `json:"nameUser,omitempty"`
	HasFiles       bool    `json:"hasFiles"`
	Timestamp      string  `json:"timestamp"`
	QueryType      string  `json:"query_type"`
	Priority       string  `json:"priority,omitempty"`
	CreditsUsed    float64 `json:"credits_used"`
	ResponseTimeMs int64   `json:"response_time_ms"`
	CostUSD        float64 `json:"cost_usd"`
}

// ChatReply is what the worker assembles and stores as the success payload,
// and what the HTTP front-end returns verbatim to the caller.
type ChatReply struct {
	Choices  []Choice         `json:"choices"`
	Usage    Usage            `json:"usage"`
	Metadata ResponseMetadata `json:"metadata"`
}

// ── Ticket classification ─────────────────────────────────────

// TicketClassification is the parsed output of the post-response classifier,
// handed to the out-of-scope persistence collaborator and PUT to the
// configured webhook.
type TicketClassification struct {
	TicketID string `json:"ticket_id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Priority string `json:"priority"`
	Reason   string `json:"reason"`
}

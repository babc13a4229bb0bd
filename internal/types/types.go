// Package types holds the shared data model for the gateway: chat platform
// messages on the way in, conversation messages on the way to the completion
// endpoint, and the collaborator interfaces the core consumes.
package types

import (
	"context"
	"time"
)

// Role identifies who authored a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart is one element of a multipart message body.
// Exactly one of Text or ImageURL is meaningful, selected by Type.
type ContentPart struct {
	Type     string // "text" or "image_url"
	Text     string
	ImageURL string
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart builds an image-reference content part.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: url}
}

// ConversationMessage is one entry in the prompt context sent to the
// completion endpoint. Content is a tagged union: when Parts is nil the
// message is plain text, otherwise Parts carries an ordered text/image
// sequence and Text is ignored.
type ConversationMessage struct {
	Role  Role
	Text  string
	Parts []ContentPart

	// ToolCalls is set on assistant messages that request tool invocations.
	ToolCalls []ToolCall

	// ToolCallID links a tool-role message to the invocation it answers.
	ToolCallID string
}

// TextMessage builds a plain-text conversation message.
func TextMessage(role Role, text string) ConversationMessage {
	return ConversationMessage{Role: role, Text: text}
}

// IsMultipart reports whether the message carries structured parts.
func (m ConversationMessage) IsMultipart() bool {
	return len(m.Parts) > 0
}

// ToolDefinition describes a tool the model may invoke.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// ToolCall is a structured invocation request issued by the model.
// RawArguments holds the argument payload exactly as the model produced
// it; parsing is lenient and happens at execution time.
type ToolCall struct {
	ID           string
	Name         string
	RawArguments string
}

// UsageMetadata captures token counts reported by one completion call.
type UsageMetadata struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// CompletionResult is the provider-agnostic view of one completion response.
type CompletionResult struct {
	Text      string
	ToolCalls []ToolCall
	Usage     UsageMetadata
}

// CompletionClient is the remote completion endpoint the orchestrator and
// the ingest layer call. Implementations must be safe for concurrent use.
type CompletionClient interface {
	Complete(ctx context.Context, model string, messages []ConversationMessage, tools []ToolDefinition) (*CompletionResult, error)
}

// Attachment is a file reference carried by an inbound chat message.
type Attachment struct {
	Name        string
	URL         string
	ContentType string
}

// ChatMessage is an inbound chat-platform message. Identifiers are opaque
// strings; nothing beyond equality is assumed about their format.
type ChatMessage struct {
	ID          string
	AuthorID    string
	AuthorName  string
	Content     string
	Attachments []Attachment

	// ReferenceID is the ID of the message this one replies to, if any.
	ReferenceID string

	// FromBot marks messages authored by the gateway's own identity.
	FromBot bool

	Timestamp time.Time
}

// HasReference reports whether the message is a reply.
func (m ChatMessage) HasReference() bool { return m.ReferenceID != "" }

// Preferences is a user's stored model and prompt-variant choice.
type Preferences struct {
	UserID        string
	Model         string
	PromptVariant string
}

// PreferenceStore maps a user identity to preferences.
type PreferenceStore interface {
	Preferences(userID string) (*Preferences, error)
	SetModel(userID, modelID string) error
	SetPromptVariant(userID, variant string) error
}

// BanRegistry is consulted before any processing begins.
type BanRegistry interface {
	IsBanned(userID string) (bool, error)
}

// PromptResolver resolves a prompt variant to its text content.
// Resolution failures must be reported so callers can fall back.
type PromptResolver interface {
	Resolve(variant string) (string, error)
}

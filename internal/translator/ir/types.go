// Package ir defines the unified request and stream-event forms every
// translator converts through. Inbound schemas (OpenAI chat, Anthropic
// messages, Gemini generateContent) parse into these types; provider
// envelopes and outbound chunks are produced from them.
package ir

import "strings"

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentType discriminates ContentPart.
type ContentType string

const (
	ContentTypeText       ContentType = "text"
	ContentTypeImage      ContentType = "image"
	ContentTypeFile       ContentType = "file"
	ContentTypeToolResult ContentType = "tool_result"
)

// ContentPart is a discrete piece of a message.
type ContentPart struct {
	Type       ContentType
	Text       string
	Image      *ImagePart
	File       *FilePart
	ToolResult *ToolResultPart
}

// ImagePart carries inline image data (data URL or raw base64 + mime).
type ImagePart struct {
	MimeType string
	Data     string
	URL      string
}

// FilePart carries an inline file attachment.
type FilePart struct {
	Filename string
	MimeType string
	Data     string
}

// ToolResultPart carries the output of a prior tool call.
type ToolResultPart struct {
	ToolCallID string
	Result     string
}

// ToolCall is a request from the model to invoke a named function.
// Args is the JSON-encoded argument object.
type ToolCall struct {
	ID   string
	Name string
	Args string
}

// Message is the unified chat message.
type Message struct {
	Role       Role
	Parts      []ContentPart
	ToolCalls  []ToolCall
	ToolCallID string
}

// Text returns the concatenated text parts of the message.
func (m *Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == ContentTypeText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// TextMessage builds a message holding a single text part.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Parts: []ContentPart{{Type: ContentTypeText, Text: text}}}
}

// ToolDefinition is a tool exposed to the model. Parameters is the raw
// JSON Schema of the arguments; sanitization happens per target dialect.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// MaxToolNameLength is enforced by providers that reject long names (Kiro)
// and drives the shortening pass for Codex.
const MaxToolNameLength = 64

// ChatRequest is the unified inbound request.
type ChatRequest struct {
	Model           string
	Messages        []Message
	Tools           []ToolDefinition
	Stream          bool
	Temperature     *float64
	TopP            *float64
	TopK            *int
	MaxTokens       *int
	Stop            []string
	ReasoningEffort string

	// Raw preserves the inbound body so unknown fields survive passthrough.
	Raw []byte
}

// FinishReason in OpenAI vocabulary.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishContentFilter FinishReason = "content_filter"
)

// EventType discriminates stream events.
type EventType string

const (
	EventMeta          EventType = "meta"
	EventText          EventType = "text"
	EventReasoning     EventType = "reasoning"
	EventToolCallStart EventType = "tool_call_start"
	EventToolCallArgs  EventType = "tool_call_args"
	EventImage         EventType = "image"
	EventUsage         EventType = "usage"
	EventFinish        EventType = "finish"
)

// Meta stamps the response identity onto subsequent chunks. Codex carries
// it in response.created; Gemini derives created from createTime.
type Meta struct {
	ID      string
	Model   string
	Created int64
}

// Event is one logical unit of a provider response stream.
type Event struct {
	Type EventType

	Meta *Meta

	Text      string
	Reasoning string

	ToolCallIndex int
	ToolCallID    string
	ToolCallName  string
	ToolCallArgs  string

	ImageMime string
	ImageData string

	Usage *Usage

	Finish       FinishReason
	NativeFinish string
}

// Usage is the unified token accounting.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ReasoningTokens  int
	CachedTokens     int
}

// IsClaudeModel reports whether the model id belongs to the Claude family,
// which selects the stricter Antigravity schema dialect.
func IsClaudeModel(model string) bool {
	m := strings.ToLower(model)
	return strings.HasPrefix(m, "claude-") || strings.Contains(m, ".claude-")
}

// geminiFinishMap maps Gemini finishReason values onto OpenAI vocabulary.
var geminiFinishMap = map[string]FinishReason{
	"STOP":       FinishStop,
	"MAX_TOKENS": FinishLength,
	"SAFETY":     FinishContentFilter,
	"RECITATION": FinishContentFilter,
	"BLOCKLIST":  FinishContentFilter,
}

// MapGeminiFinish converts a native Gemini finish reason. Unknown values
// fall back to stop.
func MapGeminiFinish(native string) FinishReason {
	if r, ok := geminiFinishMap[strings.ToUpper(native)]; ok {
		return r
	}
	return FinishStop
}

// Anthropic stop-reason bijection: stop<->end_turn, length<->max_tokens,
// tool_calls<->tool_use, content_filter<->stop_sequence.
var (
	openAIToAnthropicFinish = map[FinishReason]string{
		FinishStop:          "end_turn",
		FinishLength:        "max_tokens",
		FinishToolCalls:     "tool_use",
		FinishContentFilter: "stop_sequence",
	}
	anthropicToOpenAIFinish = map[string]FinishReason{
		"end_turn":      FinishStop,
		"max_tokens":    FinishLength,
		"tool_use":      FinishToolCalls,
		"stop_sequence": FinishContentFilter,
	}
)

// FinishToAnthropic maps an OpenAI finish reason to the Anthropic stop reason.
func FinishToAnthropic(r FinishReason) string {
	if v, ok := openAIToAnthropicFinish[r]; ok {
		return v
	}
	return "end_turn"
}

// FinishFromAnthropic maps an Anthropic stop reason to OpenAI vocabulary.
func FinishFromAnthropic(s string) FinishReason {
	if v, ok := anthropicToOpenAIFinish[s]; ok {
		return v
	}
	return FinishStop
}

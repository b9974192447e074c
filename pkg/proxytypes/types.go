// Package proxytypes defines the wire-neutral data model the streaming
// policy pipeline operates on: requests, chunks, stream blocks, and the
// events the policy emits for observability.
package proxytypes

import "time"

// WireFormat identifies which client-facing schema a transaction was
// opened with.
type WireFormat string

const (
	WireFormatOpenAI    WireFormat = "openai"
	WireFormatAnthropic WireFormat = "anthropic"
)

// FinishReason is the terminal marker of a response.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonToolCalls     FinishReason = "tool_calls"
	FinishReasonContentFilter FinishReason = "content_filter"
)

// MessageRole is the role of one message in a request.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ContentPartType tags the variant of a ContentPart.
type ContentPartType string

const (
	ContentPartText       ContentPartType = "text"
	ContentPartImage      ContentPartType = "image"
	ContentPartToolUse    ContentPartType = "tool_use"
	ContentPartToolResult ContentPartType = "tool_result"
)

// ContentPart is one typed fragment of a message's content. Exactly one of
// the variant-specific fields is populated for a given Type.
type ContentPart struct {
	Type ContentPartType

	Text string

	ImageURL      string
	ImageMimeType string

	// ToolUse fields (assistant requesting a call).
	ToolUseID   string
	ToolName    string
	ToolInputJSON string // raw JSON object, e.g. `{"loc":"NYC"}`

	// ToolResult fields (a tool message reporting back).
	ToolResultID      string
	ToolResultContent string
	ToolResultIsError bool
}

// Message is one turn in a conversation.
type Message struct {
	Role    MessageRole
	Content []ContentPart
	Name    string
}

// Tool is an internal function-calling tool declaration,
// `{type: function, function: {name, description, parameters}}`.
type ToolFunction struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type Tool struct {
	Type     string // always "function" for now
	Function ToolFunction
}

// Request is the internal canonical representation of an inbound
// chat-completion request, after Format Converter normalization.
type Request struct {
	Model       string
	Messages    []Message
	Stream      bool
	MaxTokens   int
	Temperature *float64
	TopP        *float64
	TopK        *int
	StopSeqs    []string
	Tools       []Tool
	Metadata    map[string]string
}

// Usage is token accounting, reported on finish.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ToolCallDelta is one fragment of a tool call inside a chunk's delta.
// Index identifies which tool call within the chunk's choice this
// fragment belongs to; ID and Name are only present on the fragment that
// introduces the call.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string // fragment to append, not the accumulated whole
}

// Delta is the mutable payload of a Chunk. Exactly one of Content or
// ToolCalls is meaningfully populated in a well-formed upstream chunk,
// though both fields are always present for marshaling convenience.
type Delta struct {
	Content      string
	HasContent   bool
	ToolCalls    []ToolCallDelta
	FinishReason FinishReason
	HasFinish    bool
}

// Choice is one candidate completion stream within a chunk. Proxied
// upstreams in practice emit exactly one choice.
type Choice struct {
	Index        int
	Delta        Delta
	FinishReason FinishReason
	HasFinish    bool
}

// Chunk is the canonical internal form of one unit of incremental
// streaming response: OpenAI-style {id, model, choices}.
type Chunk struct {
	ID      string
	Model   string
	Choices []Choice
	Usage   *Usage
}

// FirstChoice returns the chunk's first choice, or the zero value if the
// chunk carries none (a malformed or keepalive-only chunk).
func (c Chunk) FirstChoice() (Choice, bool) {
	if len(c.Choices) == 0 {
		return Choice{}, false
	}
	return c.Choices[0], true
}

// Severity of a PolicyEvent.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// PolicyEvent is a structured observation emitted by policy code, bound
// for the observability fanout.
type PolicyEvent struct {
	EventType     string
	Summary       string
	Severity      Severity
	Details       map[string]any
	TransactionID string
	TraceID       string
	Timestamp     time.Time

	// Phase records which part of the transaction lifecycle emitted this
	// event, supplemented from original_source (see transaction.go).
	Phase EventPhase
}

// Response is a complete, non-streaming canonical response — also the
// shape the Transaction Recorder reconstructs from a chunk buffer.
type Response struct {
	ID           string
	Model        string
	Content      []ContentPart
	FinishReason FinishReason
	Usage        Usage
}

// Package convert implements the Format Converter: translation between the
// OpenAI and Anthropic wire schemas and the single internal canonical
// schema, without semantic loss for supported features.
//
// Grounded on luthien_proxy/v2/llm/format_converters.py
// (anthropic_to_openai_request, openai_to_anthropic_response,
// openai_chunk_to_anthropic_chunk) and anthropic_sse_assembler.py for the
// stateful per-chunk lifecycle rules.
package convert

import (
	"encoding/json"

	"github.com/luthien-gate/policyproxy/pkg/proxytypes"
)

// AnthropicRequest is the wire shape of an Anthropic Messages API request,
// decoded from JSON before conversion.
type AnthropicRequest struct {
	Model         string                   `json:"model"`
	Messages      []AnthropicMessage       `json:"messages"`
	System        string                   `json:"system,omitempty"`
	MaxTokens     int                      `json:"max_tokens,omitempty"`
	Temperature   *float64                 `json:"temperature,omitempty"`
	TopP          *float64                 `json:"top_p,omitempty"`
	TopK          *int                     `json:"top_k,omitempty"`
	StopSequences []string                 `json:"stop_sequences,omitempty"`
	Tools         []AnthropicTool          `json:"tools,omitempty"`
	Stream        bool                     `json:"stream,omitempty"`
}

type AnthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []AnthropicContentBlock
}

type AnthropicContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type AnthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// AnthropicRequestToInternal maps an Anthropic request onto the internal
// canonical Request, per spec.md §4.1.
func AnthropicRequestToInternal(req AnthropicRequest) proxytypes.Request {
	out := proxytypes.Request{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Stream:    req.Stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		StopSeqs:    req.StopSequences,
	}

	if req.System != "" {
		out.Messages = append(out.Messages, proxytypes.Message{
			Role:    proxytypes.RoleSystem,
			Content: []proxytypes.ContentPart{{Type: proxytypes.ContentPartText, Text: req.System}},
		})
	}

	for _, m := range req.Messages {
		msg := anthropicMessageToInternal(m)
		if msg.Role == proxytypes.RoleTool && len(msg.Content) > 1 {
			for _, part := range msg.Content {
				out.Messages = append(out.Messages, proxytypes.Message{
					Role:    proxytypes.RoleTool,
					Content: []proxytypes.ContentPart{part},
				})
			}
			continue
		}
		out.Messages = append(out.Messages, msg)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, proxytypes.Tool{
			Type: "function",
			Function: proxytypes.ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}

	return out
}

func anthropicMessageToInternal(m AnthropicMessage) proxytypes.Message {
	role := proxytypes.MessageRole(m.Role)

	if s, ok := m.Content.(string); ok {
		return proxytypes.Message{
			Role:    role,
			Content: []proxytypes.ContentPart{{Type: proxytypes.ContentPartText, Text: s}},
		}
	}

	blocks := decodeContentBlocks(m.Content)

	var toolResults, toolUses []AnthropicContentBlock
	var text string
	for _, b := range blocks {
		switch b.Type {
		case "tool_result":
			toolResults = append(toolResults, b)
		case "tool_use":
			toolUses = append(toolUses, b)
		case "text":
			if text != "" {
				text += " "
			}
			text += b.Text
		}
	}

	switch {
	case len(toolResults) > 0:
		// A user message reporting tool results becomes role=tool content,
		// one part per result keyed by tool_use_id; AnthropicRequestToInternal
		// splits it into one role=tool message per result.
		return proxytypes.Message{
			Role:    proxytypes.RoleTool,
			Content: toolResultParts(toolResults),
		}
	case len(toolUses) > 0:
		parts := make([]proxytypes.ContentPart, 0, len(toolUses)+1)
		if text != "" {
			parts = append(parts, proxytypes.ContentPart{Type: proxytypes.ContentPartText, Text: text})
		}
		for _, tu := range toolUses {
			parts = append(parts, proxytypes.ContentPart{
				Type:          proxytypes.ContentPartToolUse,
				ToolUseID:     tu.ID,
				ToolName:      tu.Name,
				ToolInputJSON: string(tu.Input),
			})
		}
		return proxytypes.Message{Role: role, Content: parts}
	case text != "":
		return proxytypes.Message{
			Role:    role,
			Content: []proxytypes.ContentPart{{Type: proxytypes.ContentPartText, Text: text}},
		}
	default:
		return proxytypes.Message{Role: role}
	}
}

func toolResultParts(blocks []AnthropicContentBlock) []proxytypes.ContentPart {
	parts := make([]proxytypes.ContentPart, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, proxytypes.ContentPart{
			Type:              proxytypes.ContentPartToolResult,
			ToolResultID:      b.ToolUseID,
			ToolResultContent: b.Content,
			ToolResultIsError: b.IsError,
		})
	}
	return parts
}

// decodeContentBlocks normalizes the any-typed Content field (it arrives
// as []any after generic JSON decode) into typed content blocks.
func decodeContentBlocks(content any) []AnthropicContentBlock {
	raw, ok := content.([]any)
	if !ok {
		return nil
	}
	out := make([]AnthropicContentBlock, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		b := AnthropicContentBlock{}
		if v, ok := m["type"].(string); ok {
			b.Type = v
		}
		if v, ok := m["text"].(string); ok {
			b.Text = v
		}
		if v, ok := m["id"].(string); ok {
			b.ID = v
		}
		if v, ok := m["name"].(string); ok {
			b.Name = v
		}
		if v, ok := m["tool_use_id"].(string); ok {
			b.ToolUseID = v
		}
		if v, ok := m["content"].(string); ok {
			b.Content = v
		}
		if v, ok := m["is_error"].(bool); ok {
			b.IsError = v
		}
		if v, ok := m["input"]; ok {
			if encoded, err := json.Marshal(v); err == nil {
				b.Input = encoded
			}
		}
		out = append(out, b)
	}
	return out
}

package httpfront

import "github.com/luthien-gate/policyproxy/pkg/proxytypes"

// openAIWireRequest is the inbound OpenAI chat-completions request shape.
// Content is modeled as `any` since the wire allows either a plain string
// or a content-part array, mirroring how convert.AnthropicMessage handles
// the same ambiguity on the Anthropic side.
type openAIWireRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIWireMessage `json:"messages"`
	Stream      bool                `json:"stream"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
	TopP        *float64            `json:"top_p,omitempty"`
}

type openAIWireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

func openAIWireRequestToInternal(req openAIWireRequest) proxytypes.Request {
	out := proxytypes.Request{
		Model:       req.Model,
		Stream:      req.Stream,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, proxytypes.Message{
			Role:    proxytypes.MessageRole(m.Role),
			Content: contentPartsFromAny(m.Content),
		})
	}
	return out
}

func contentPartsFromAny(content any) []proxytypes.ContentPart {
	switch v := content.(type) {
	case string:
		return []proxytypes.ContentPart{{Type: proxytypes.ContentPartText, Text: v}}
	case []any:
		var parts []proxytypes.ContentPart
		for _, raw := range v {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			text, _ := m["text"].(string)
			parts = append(parts, proxytypes.ContentPart{Type: proxytypes.ContentPartText, Text: text})
		}
		return parts
	default:
		return nil
	}
}

package convert

import "github.com/luthien-gate/policyproxy/pkg/proxytypes"

// AnthropicResponse is the wire shape of a non-streaming Anthropic
// Messages API response.
type AnthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Content    []AnthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	Usage      AnthropicUsage          `json:"usage"`
	StopReason string                  `json:"stop_reason"`
}

type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// InternalResponseToAnthropic is the inverse of AnthropicRequestToInternal
// for responses, per spec.md §4.1.
func InternalResponseToAnthropic(resp proxytypes.Response) AnthropicResponse {
	var content []AnthropicContentBlock
	for _, part := range resp.Content {
		switch part.Type {
		case proxytypes.ContentPartText:
			if part.Text != "" {
				content = append(content, AnthropicContentBlock{Type: "text", Text: part.Text})
			}
		case proxytypes.ContentPartToolUse:
			content = append(content, AnthropicContentBlock{
				Type:  "tool_use",
				ID:    part.ToolUseID,
				Name:  part.ToolName,
				Input: []byte(part.ToolInputJSON),
			})
		}
	}

	return AnthropicResponse{
		ID:      resp.ID,
		Type:    "message",
		Role:    "assistant",
		Content: content,
		Model:   resp.Model,
		Usage: AnthropicUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
		StopReason: AnthropicStopReason(resp.FinishReason),
	}
}

// AnthropicResponseToInternal is the inverse conversion, used by the
// round-trip law in spec.md §8.
func AnthropicResponseToInternal(resp AnthropicResponse) proxytypes.Response {
	var content []proxytypes.ContentPart
	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			content = append(content, proxytypes.ContentPart{Type: proxytypes.ContentPartText, Text: b.Text})
		case "tool_use":
			content = append(content, proxytypes.ContentPart{
				Type:          proxytypes.ContentPartToolUse,
				ToolUseID:     b.ID,
				ToolName:      b.Name,
				ToolInputJSON: string(b.Input),
			})
		}
	}

	return proxytypes.Response{
		ID:      resp.ID,
		Model:   resp.Model,
		Content: content,
		FinishReason: internalFinishReasonFromAnthropicStop(resp.StopReason),
		Usage: proxytypes.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}
}

func internalFinishReasonFromAnthropicStop(stop string) proxytypes.FinishReason {
	switch stop {
	case "end_turn":
		return proxytypes.FinishReasonStop
	case "tool_use":
		return proxytypes.FinishReasonToolCalls
	case "max_tokens":
		return proxytypes.FinishReasonLength
	default:
		return proxytypes.FinishReason(stop)
	}
}

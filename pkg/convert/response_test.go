package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/luthien-gate/policyproxy/pkg/proxytypes"
)

func TestResponseRoundTripThroughAnthropic(t *testing.T) {
	original := proxytypes.Response{
		ID:    "resp_1",
		Model: "claude-test",
		Content: []proxytypes.ContentPart{
			{Type: proxytypes.ContentPartText, Text: "hello there"},
			{Type: proxytypes.ContentPartToolUse, ToolUseID: "call_1", ToolName: "get_weather", ToolInputJSON: `{"loc":"NYC"}`},
		},
		FinishReason: proxytypes.FinishReasonToolCalls,
		Usage:        proxytypes.Usage{InputTokens: 12, OutputTokens: 34},
	}

	wire := InternalResponseToAnthropic(original)
	roundTripped := AnthropicResponseToInternal(wire)

	assert.Equal(t, original, roundTripped)
}

func TestResponseRoundTripDropsEmptyTextParts(t *testing.T) {
	original := proxytypes.Response{
		ID:           "resp_2",
		Model:        "claude-test",
		Content:      []proxytypes.ContentPart{{Type: proxytypes.ContentPartText, Text: ""}},
		FinishReason: proxytypes.FinishReasonStop,
	}

	wire := InternalResponseToAnthropic(original)
	assert.Empty(t, wire.Content)

	roundTripped := AnthropicResponseToInternal(wire)
	assert.Empty(t, roundTripped.Content)
}

func TestInternalResponseToAnthropicMapsStopReason(t *testing.T) {
	wire := InternalResponseToAnthropic(proxytypes.Response{FinishReason: proxytypes.FinishReasonStop})
	assert.Equal(t, "end_turn", wire.StopReason)

	wire = InternalResponseToAnthropic(proxytypes.Response{FinishReason: proxytypes.FinishReasonToolCalls})
	assert.Equal(t, "tool_use", wire.StopReason)

	wire = InternalResponseToAnthropic(proxytypes.Response{FinishReason: proxytypes.FinishReasonLength})
	assert.Equal(t, "max_tokens", wire.StopReason)
}

func TestAnthropicResponseToInternalMapsStopReason(t *testing.T) {
	internal := AnthropicResponseToInternal(AnthropicResponse{StopReason: "end_turn"})
	assert.Equal(t, proxytypes.FinishReasonStop, internal.FinishReason)

	internal = AnthropicResponseToInternal(AnthropicResponse{StopReason: "tool_use"})
	assert.Equal(t, proxytypes.FinishReasonToolCalls, internal.FinishReason)

	internal = AnthropicResponseToInternal(AnthropicResponse{StopReason: "max_tokens"})
	assert.Equal(t, proxytypes.FinishReasonLength, internal.FinishReason)
}

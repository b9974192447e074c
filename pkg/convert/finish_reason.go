package convert

import "github.com/luthien-gate/policyproxy/pkg/proxytypes"

// AnthropicStopReason maps an internal FinishReason to the Anthropic
// stop_reason vocabulary, per spec.md §4.1: "stop→end_turn,
// tool_calls→tool_use, length→max_tokens"; anything else passes through
// verbatim.
//
// Adapted from digitallysavvy/go-ai's
// pkg/providerutils/finish_reason.go (MapOpenAIFinishReason), generalized
// from "parse an upstream string" to "map our own internal enum."
func AnthropicStopReason(reason proxytypes.FinishReason) string {
	switch reason {
	case proxytypes.FinishReasonStop:
		return "end_turn"
	case proxytypes.FinishReasonToolCalls:
		return "tool_use"
	case proxytypes.FinishReasonLength:
		return "max_tokens"
	default:
		return string(reason)
	}
}

// openAIFinishReason classifies a raw upstream finish_reason string into
// the internal enum, passing unrecognized values through as-is.
func openAIFinishReason(raw string) proxytypes.FinishReason {
	switch raw {
	case "stop":
		return proxytypes.FinishReasonStop
	case "length":
		return proxytypes.FinishReasonLength
	case "tool_calls", "function_call":
		return proxytypes.FinishReasonToolCalls
	case "content_filter":
		return proxytypes.FinishReasonContentFilter
	default:
		return proxytypes.FinishReason(raw)
	}
}

package clientformat

import (
	"encoding/json"
	"fmt"

	"github.com/luthien-gate/policyproxy/pkg/convert"
	"github.com/luthien-gate/policyproxy/pkg/proxytypes"
	"github.com/luthien-gate/policyproxy/pkg/sse"
)

type blockKind int

const (
	blockNone blockKind = iota
	blockText
	blockTool
)

// AnthropicFormatter is the stateful Anthropic SSE formatter of spec.md
// §4.5. It owns one counter (blockIndex) and one boolean (blockOpen),
// consulting only the shape of each egress chunk to detect block
// transitions — it never looks at the assembler's own StreamState, since
// the policy may have transformed, suppressed, or replaced chunks between
// ingress and egress.
type AnthropicFormatter struct {
	w             *sse.Writer
	transactionID string

	sentMessageStart bool
	blockIndex        int
	blockOpen         bool
	currentKind       blockKind
	currentToolIndex  int
}

// NewAnthropicFormatter returns a formatter for one transaction.
func NewAnthropicFormatter(w *sse.Writer, transactionID string) *AnthropicFormatter {
	return &AnthropicFormatter{w: w, transactionID: transactionID}
}

func (f *AnthropicFormatter) ensureMessageStart() error {
	if f.sentMessageStart {
		return nil
	}
	f.sentMessageStart = true
	payload, _ := json.Marshal(map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":      fmt.Sprintf("msg_%s", f.transactionID),
			"type":    "message",
			"role":    "assistant",
			"content": []any{},
		},
	})
	return f.w.WriteNamed("message_start", string(payload))
}

// WriteChunk translates and emits one post-policy internal chunk,
// applying the Anthropic lifecycle rules of spec.md §4.5.
func (f *AnthropicFormatter) WriteChunk(chunk proxytypes.Chunk) error {
	if err := f.ensureMessageStart(); err != nil {
		return err
	}

	choice, ok := chunk.FirstChoice()
	if !ok {
		return nil
	}
	delta := choice.Delta

	hasFinish := delta.HasFinish || choice.HasFinish
	finishReason := delta.FinishReason
	if !delta.HasFinish {
		finishReason = choice.FinishReason
	}

	if hasFinish {
		if err := f.closeOpenBlock(); err != nil {
			return err
		}
		return f.writeMessageDelta(finishReason, chunk.Usage)
	}

	if len(delta.ToolCalls) > 0 {
		return f.writeToolCallDelta(delta.ToolCalls[0])
	}

	if delta.HasContent && delta.Content != "" {
		return f.writeTextDelta(delta.Content)
	}

	return nil
}

// writeToolCallDelta handles the three tool-call shapes spec.md §4.1's
// openai_chunk_to_anthropic_chunk distinguishes: a complete buffered call
// (id and arguments both present in one fragment), a progressive start
// (id only), or a progressive argument delta (arguments only).
func (f *AnthropicFormatter) writeToolCallDelta(tc proxytypes.ToolCallDelta) error {
	hasID := tc.ID != ""
	hasArgs := tc.Arguments != ""

	switch {
	case hasID && hasArgs:
		if err := f.closeOpenBlock(); err != nil {
			return err
		}
		idx := f.blockIndex
		if err := f.writeContentBlockStart(idx, "tool_use", tc.ID, tc.Name); err != nil {
			return err
		}
		if err := f.writeInputJSONDelta(idx, tc.Arguments); err != nil {
			return err
		}
		if err := f.writeContentBlockStop(idx); err != nil {
			return err
		}
		f.blockIndex++
		f.blockOpen = false
		f.currentKind = blockNone
		return nil

	case hasID:
		if err := f.transitionTo(blockTool, tc.Index); err != nil {
			return err
		}
		if !f.blockOpen {
			f.blockOpen = true
			return f.writeContentBlockStart(f.blockIndex, "tool_use", tc.ID, tc.Name)
		}
		return nil

	case hasArgs:
		if err := f.transitionTo(blockTool, tc.Index); err != nil {
			return err
		}
		if !f.blockOpen {
			f.blockOpen = true
			if err := f.writeContentBlockStart(f.blockIndex, "tool_use", tc.ID, tc.Name); err != nil {
				return err
			}
		}
		return f.writeInputJSONDelta(f.blockIndex, tc.Arguments)

	default:
		return nil
	}
}

func (f *AnthropicFormatter) writeTextDelta(text string) error {
	if err := f.transitionTo(blockText, 0); err != nil {
		return err
	}
	if !f.blockOpen {
		f.blockOpen = true
		if err := f.writeContentBlockStart(f.blockIndex, "text", "", ""); err != nil {
			return err
		}
	}
	payload, _ := json.Marshal(map[string]any{
		"type":  "content_block_delta",
		"index": f.blockIndex,
		"delta": map[string]any{"type": "text_delta", "text": text},
	})
	return f.w.WriteNamed("content_block_delta", string(payload))
}

// transitionTo closes the currently open block if it differs in kind (or,
// for tool blocks, in index) from the requested one.
func (f *AnthropicFormatter) transitionTo(kind blockKind, toolIndex int) error {
	if !f.blockOpen {
		f.currentKind = kind
		f.currentToolIndex = toolIndex
		return nil
	}
	if f.currentKind == kind && (kind != blockTool || f.currentToolIndex == toolIndex) {
		return nil
	}
	if err := f.closeOpenBlock(); err != nil {
		return err
	}
	f.currentKind = kind
	f.currentToolIndex = toolIndex
	return nil
}

func (f *AnthropicFormatter) closeOpenBlock() error {
	if !f.blockOpen {
		return nil
	}
	if err := f.writeContentBlockStop(f.blockIndex); err != nil {
		return err
	}
	f.blockIndex++
	f.blockOpen = false
	f.currentKind = blockNone
	return nil
}

func (f *AnthropicFormatter) writeContentBlockStart(index int, blockType, toolID, toolName string) error {
	block := map[string]any{"type": blockType}
	if blockType == "tool_use" {
		block["id"] = toolID
		block["name"] = toolName
		block["input"] = map[string]any{}
	} else {
		block["text"] = ""
	}
	payload, _ := json.Marshal(map[string]any{
		"type":          "content_block_start",
		"index":         index,
		"content_block": block,
	})
	return f.w.WriteNamed("content_block_start", string(payload))
}

func (f *AnthropicFormatter) writeInputJSONDelta(index int, partialJSON string) error {
	payload, _ := json.Marshal(map[string]any{
		"type":  "content_block_delta",
		"index": index,
		"delta": map[string]any{"type": "input_json_delta", "partial_json": partialJSON},
	})
	return f.w.WriteNamed("content_block_delta", string(payload))
}

func (f *AnthropicFormatter) writeContentBlockStop(index int) error {
	payload, _ := json.Marshal(map[string]any{
		"type":  "content_block_stop",
		"index": index,
	})
	return f.w.WriteNamed("content_block_stop", string(payload))
}

func (f *AnthropicFormatter) writeMessageDelta(finishReason proxytypes.FinishReason, usage *proxytypes.Usage) error {
	delta := map[string]any{
		"stop_reason":   convert.AnthropicStopReason(finishReason),
		"stop_sequence": nil,
	}
	body := map[string]any{
		"type":  "message_delta",
		"delta": delta,
	}
	if usage != nil {
		body["usage"] = map[string]any{
			"input_tokens":  usage.InputTokens,
			"output_tokens": usage.OutputTokens,
		}
	}
	payload, _ := json.Marshal(body)
	return f.w.WriteNamed("message_delta", string(payload))
}

// Finish writes the terminal message_stop event. Safe to call even if no
// chunk was ever written (message_start is emitted first either way).
func (f *AnthropicFormatter) Finish() error {
	if err := f.ensureMessageStart(); err != nil {
		return err
	}
	if err := f.closeOpenBlock(); err != nil {
		return err
	}
	return f.w.WriteNamed("message_stop", "{\"type\":\"message_stop\"}")
}

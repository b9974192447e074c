// Package clientformat implements the Client Formatter: re-serializing the
// post-policy internal chunk stream into the client-requested wire bytes.
//
// The OpenAI formatter is a thin per-chunk mapping. The Anthropic
// formatter is stateful — it tracks block_index/block_open itself and
// detects block transitions from the chunks it is given (it never reads
// the assembler's StreamState), combining
// spec.md §4.1's internal_chunk_to_anthropic_events and §4.5's lifecycle
// rules into one type, mirroring how
// luthien_proxy/v2/llm/anthropic_sse_assembler.py's single
// AnthropicSSEAssembler class does both.
package clientformat

import (
	"encoding/json"

	"github.com/luthien-gate/policyproxy/pkg/proxytypes"
	"github.com/luthien-gate/policyproxy/pkg/sse"
)

// openAIWireChunk is the JSON shape written to the client for one chunk.
type openAIWireChunk struct {
	ID      string              `json:"id"`
	Model   string              `json:"model"`
	Choices []openAIWireChoice  `json:"choices"`
}

type openAIWireChoice struct {
	Index        int            `json:"index"`
	Delta        openAIWireDelta `json:"delta"`
	FinishReason *string        `json:"finish_reason"`
}

type openAIWireDelta struct {
	Content   *string              `json:"content,omitempty"`
	ToolCalls []openAIWireToolCall `json:"tool_calls,omitempty"`
}

type openAIWireToolCall struct {
	Index    int                `json:"index"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function openAIWireFunction `json:"function"`
}

type openAIWireFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// OpenAIFormatter writes each chunk as one `data: <json>\n\n` frame,
// terminating the stream with `data: [DONE]\n\n`.
type OpenAIFormatter struct {
	w *sse.Writer
}

// NewOpenAIFormatter wraps an sse.Writer.
func NewOpenAIFormatter(w *sse.Writer) *OpenAIFormatter {
	return &OpenAIFormatter{w: w}
}

// WriteChunk serializes and flushes one chunk.
func (f *OpenAIFormatter) WriteChunk(chunk proxytypes.Chunk) error {
	wire := openAIWireChunk{ID: chunk.ID, Model: chunk.Model}
	for _, c := range chunk.Choices {
		wc := openAIWireChoice{Index: c.Index}
		if c.Delta.HasContent {
			content := c.Delta.Content
			wc.Delta.Content = &content
		}
		for _, tc := range c.Delta.ToolCalls {
			wc.Delta.ToolCalls = append(wc.Delta.ToolCalls, openAIWireToolCall{
				Index: tc.Index,
				ID:    tc.ID,
				Type:  toolCallType(tc),
				Function: openAIWireFunction{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		if c.Delta.HasFinish {
			reason := string(c.Delta.FinishReason)
			wc.FinishReason = &reason
		} else if c.HasFinish {
			reason := string(c.FinishReason)
			wc.FinishReason = &reason
		}
		wire.Choices = append(wire.Choices, wc)
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	return f.w.WriteData(string(data))
}

func toolCallType(tc proxytypes.ToolCallDelta) string {
	if tc.ID != "" {
		return "function"
	}
	return ""
}

// WriteDone writes the OpenAI stream terminator.
func (f *OpenAIFormatter) WriteDone() error {
	return f.w.WriteOpenAIDone()
}

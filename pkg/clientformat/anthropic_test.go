package clientformat

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthien-gate/policyproxy/pkg/proxytypes"
	"github.com/luthien-gate/policyproxy/pkg/sse"
)

func textDeltaChunk(content string) proxytypes.Chunk {
	return proxytypes.Chunk{
		ID: "c1",
		Choices: []proxytypes.Choice{{
			Delta: proxytypes.Delta{Content: content, HasContent: true},
		}},
	}
}

func toolCallDeltaChunk(index int, id, name, args string) proxytypes.Chunk {
	return proxytypes.Chunk{
		ID: "c1",
		Choices: []proxytypes.Choice{{
			Delta: proxytypes.Delta{
				ToolCalls: []proxytypes.ToolCallDelta{{Index: index, ID: id, Name: name, Arguments: args}},
			},
		}},
	}
}

func finishReasonChunk(reason proxytypes.FinishReason) proxytypes.Chunk {
	return proxytypes.Chunk{
		ID: "c1",
		Choices: []proxytypes.Choice{{
			Delta: proxytypes.Delta{FinishReason: reason, HasFinish: true},
		}},
	}
}

func eventNames(out string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "event: ") {
			names = append(names, strings.TrimPrefix(line, "event: "))
		}
	}
	return names
}

func TestAnthropicFormatterTextLifecycle(t *testing.T) {
	var buf bytes.Buffer
	f := NewAnthropicFormatter(sse.NewWriter(&buf), "tx1")

	require.NoError(t, f.WriteChunk(textDeltaChunk("hi")))
	require.NoError(t, f.WriteChunk(finishReasonChunk(proxytypes.FinishReasonStop)))
	require.NoError(t, f.Finish())

	out := buf.String()
	assert.Equal(t, []string{
		"message_start",
		"content_block_start",
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}, eventNames(out))
	assert.Contains(t, out, `"text_delta"`)
	assert.Contains(t, out, `"end_turn"`)
}

func TestAnthropicFormatterToolCallLifecycle(t *testing.T) {
	var buf bytes.Buffer
	f := NewAnthropicFormatter(sse.NewWriter(&buf), "tx1")

	require.NoError(t, f.WriteChunk(toolCallDeltaChunk(0, "call_1", "get_weather", "")))
	require.NoError(t, f.WriteChunk(toolCallDeltaChunk(0, "", "", `{"loc":"NYC"}`)))
	require.NoError(t, f.WriteChunk(finishReasonChunk(proxytypes.FinishReasonToolCalls)))
	require.NoError(t, f.Finish())

	out := buf.String()
	assert.Equal(t, []string{
		"message_start",
		"content_block_start",
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}, eventNames(out))
	assert.Contains(t, out, `"tool_use"`)
	assert.Contains(t, out, `"input_json_delta"`)
	assert.Contains(t, out, `call_1`)
	assert.Contains(t, out, `get_weather`)
}

func TestAnthropicFormatterFinishWithoutChunksStillEmitsLifecycle(t *testing.T) {
	var buf bytes.Buffer
	f := NewAnthropicFormatter(sse.NewWriter(&buf), "tx1")

	require.NoError(t, f.Finish())

	out := buf.String()
	assert.Equal(t, []string{"message_start", "message_stop"}, eventNames(out))
}

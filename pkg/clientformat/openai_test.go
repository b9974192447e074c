package clientformat

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthien-gate/policyproxy/pkg/proxytypes"
	"github.com/luthien-gate/policyproxy/pkg/sse"
)

func dataLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "data: ") {
			lines = append(lines, strings.TrimPrefix(line, "data: "))
		}
	}
	return lines
}

func TestOpenAIFormatterWritesTextDelta(t *testing.T) {
	var buf bytes.Buffer
	f := NewOpenAIFormatter(sse.NewWriter(&buf))

	require.NoError(t, f.WriteChunk(textDeltaChunk("hi")))
	require.NoError(t, f.WriteDone())

	lines := dataLines(buf.String())
	require.Len(t, lines, 2)

	var wire map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &wire))
	choices := wire["choices"].([]any)
	delta := choices[0].(map[string]any)["delta"].(map[string]any)
	assert.Equal(t, "hi", delta["content"])

	assert.Equal(t, "[DONE]", lines[1])
}

func TestOpenAIFormatterWritesToolCallDelta(t *testing.T) {
	var buf bytes.Buffer
	f := NewOpenAIFormatter(sse.NewWriter(&buf))

	require.NoError(t, f.WriteChunk(toolCallDeltaChunk(0, "call_1", "get_weather", `{"loc":"NYC"}`)))

	lines := dataLines(buf.String())
	require.Len(t, lines, 1)

	var wire map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &wire))
	choices := wire["choices"].([]any)
	delta := choices[0].(map[string]any)["delta"].(map[string]any)
	toolCalls := delta["tool_calls"].([]any)
	require.Len(t, toolCalls, 1)
	fn := toolCalls[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "get_weather", fn["name"])
	assert.Equal(t, `{"loc":"NYC"}`, fn["arguments"])
}

func TestOpenAIFormatterWritesFinishReason(t *testing.T) {
	var buf bytes.Buffer
	f := NewOpenAIFormatter(sse.NewWriter(&buf))

	require.NoError(t, f.WriteChunk(finishReasonChunk(proxytypes.FinishReasonStop)))

	lines := dataLines(buf.String())
	require.Len(t, lines, 1)

	var wire map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &wire))
	choices := wire["choices"].([]any)
	assert.Equal(t, "stop", choices[0].(map[string]any)["finish_reason"])
}

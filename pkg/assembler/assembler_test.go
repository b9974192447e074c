package assembler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthien-gate/policyproxy/pkg/proxytypes"
)

func textChunk(content string) proxytypes.Chunk {
	return proxytypes.Chunk{
		Choices: []proxytypes.Choice{{
			Delta: proxytypes.Delta{Content: content, HasContent: true},
		}},
	}
}

func finishChunk(reason proxytypes.FinishReason) proxytypes.Chunk {
	return proxytypes.Chunk{
		Choices: []proxytypes.Choice{{
			Delta: proxytypes.Delta{FinishReason: reason, HasFinish: true},
		}},
	}
}

func toolChunk(index int, id, name, args string) proxytypes.Chunk {
	return proxytypes.Chunk{
		Choices: []proxytypes.Choice{{
			Delta: proxytypes.Delta{
				ToolCalls: []proxytypes.ToolCallDelta{{
					Index: index, ID: id, Name: name, Arguments: args,
				}},
			},
		}},
	}
}

func TestPassthroughReconstructsConcatenation(t *testing.T) {
	a := New()
	parts := []string{"Hello", " ", "world"}
	for _, p := range parts {
		_, _ = a.Process(textChunk(p))
		a.ClearJustCompleted()
	}
	_, done := a.Process(finishChunk(proxytypes.FinishReasonStop))
	a.ClearJustCompleted()

	require.True(t, done)
	require.Len(t, a.State().Blocks, 1)
	assert.Equal(t, "Hello world", a.State().Blocks[0].Content)
	assert.True(t, a.State().Blocks[0].Complete)
}

func TestCurrentBlockNeverOpenAndComplete(t *testing.T) {
	a := New()
	for _, p := range []string{"a", "b"} {
		_, _ = a.Process(textChunk(p))
		cur := a.State().CurrentBlock
		if cur != nil {
			assert.False(t, cur.Complete)
		}
		a.ClearJustCompleted()
	}
}

func TestCurrentBlockClearedOnFinishWhileBlockOpen(t *testing.T) {
	a := New()
	_, _ = a.Process(textChunk("hi"))
	a.ClearJustCompleted()
	require.NotNil(t, a.State().CurrentBlock)

	_, done := a.Process(finishChunk(proxytypes.FinishReasonStop))

	require.True(t, done)
	assert.Nil(t, a.State().CurrentBlock)
	require.NotNil(t, a.State().JustCompleted)
	assert.True(t, a.State().JustCompleted.Complete)
	a.ClearJustCompleted()
}

func TestToolCallBuffering(t *testing.T) {
	a := New()
	_, _ = a.Process(toolChunk(0, "call_1", "get_weather", ""))
	a.ClearJustCompleted()
	_, _ = a.Process(toolChunk(0, "", "", `{"loc"`))
	a.ClearJustCompleted()
	_, _ = a.Process(toolChunk(0, "", "", `:"NYC"`))
	a.ClearJustCompleted()
	_, _ = a.Process(toolChunk(0, "", "", `}`))
	a.ClearJustCompleted()
	_, done := a.Process(finishChunk(proxytypes.FinishReasonToolCalls))
	a.ClearJustCompleted()

	require.True(t, done)
	require.Len(t, a.State().Blocks, 1)
	block := a.State().Blocks[0]
	assert.Equal(t, proxytypes.BlockKindToolCall, block.Kind)
	assert.Equal(t, "call_1", block.ID)
	assert.Equal(t, "get_weather", block.Name)
	assert.Equal(t, `{"loc":"NYC"}`, block.Arguments)
	assert.True(t, block.Complete)
}

func TestContentThenToolCallTransition(t *testing.T) {
	a := New()
	_, _ = a.Process(textChunk("thinking..."))
	a.ClearJustCompleted()
	_, _ = a.Process(toolChunk(0, "call_1", "search", `{}`))
	completed := a.State().JustCompleted
	require.NotNil(t, completed)
	assert.Equal(t, proxytypes.BlockKindContent, completed.Kind)
	assert.True(t, completed.Complete)
	a.ClearJustCompleted()

	require.Len(t, a.State().Blocks, 2)
	assert.Equal(t, proxytypes.BlockKindContent, a.State().Blocks[0].Kind)
	assert.Equal(t, proxytypes.BlockKindToolCall, a.State().Blocks[1].Kind)
}

func TestSyntheticToolIDWhenNoneObserved(t *testing.T) {
	a := New()
	_, _ = a.Process(toolChunk(2, "", "", `{}`))
	a.ClearJustCompleted()
	require.Len(t, a.State().Blocks, 1)
	assert.Equal(t, "tool_2", a.State().Blocks[0].ID)
}

func TestStripsEmptyContentDuringToolCallPhase(t *testing.T) {
	a := New()
	_, _ = a.Process(toolChunk(0, "call_1", "f", "{"))
	a.ClearJustCompleted()

	chunk := textChunk("")
	got, _ := a.Process(chunk)
	a.ClearJustCompleted()

	require.Len(t, got.Choices, 1)
	assert.False(t, got.Choices[0].Delta.HasContent)
}

func TestZeroLengthFinishOnlyStream(t *testing.T) {
	a := New()
	_, done := a.Process(finishChunk(proxytypes.FinishReasonStop))
	a.ClearJustCompleted()
	require.True(t, done)
	assert.Empty(t, a.State().Blocks)
}

package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthien-gate/policyproxy/pkg/proxytypes"
)

func textChunk(content string) proxytypes.Chunk {
	return proxytypes.Chunk{
		ID: "c1", Model: "m",
		Choices: []proxytypes.Choice{{
			Delta: proxytypes.Delta{Content: content, HasContent: true},
		}},
	}
}

func finishChunk(reason proxytypes.FinishReason) proxytypes.Chunk {
	return proxytypes.Chunk{
		ID: "c1", Model: "m",
		Choices: []proxytypes.Choice{{
			Delta: proxytypes.Delta{FinishReason: reason, HasFinish: true},
		}},
	}
}

func toolChunk(index int, id, name, args string) proxytypes.Chunk {
	return proxytypes.Chunk{
		ID: "c1", Model: "m",
		Choices: []proxytypes.Choice{{
			Delta: proxytypes.Delta{
				ToolCalls: []proxytypes.ToolCallDelta{{
					Index: index, ID: id, Name: name, Arguments: args,
				}},
			},
		}},
	}
}

func newHarness(p Policy) (*Executor, *[]proxytypes.Chunk, *[]proxytypes.PolicyEvent) {
	tx := proxytypes.NewTransaction("tx1", proxytypes.WireFormatOpenAI, "gpt", "trace1")
	egress := &[]proxytypes.Chunk{}
	events := &[]proxytypes.PolicyEvent{}
	exec := NewExecutor(p, tx,
		func(c proxytypes.Chunk) { *egress = append(*egress, c) },
		func(e proxytypes.PolicyEvent) { *events = append(*events, e) },
		func() {},
	)
	return exec, egress, events
}

func TestPassthroughPolicyForwardsEveryChunk(t *testing.T) {
	exec, egress, _ := newHarness(NewPassthroughPolicy())

	for _, p := range []string{"Hello", " world"} {
		_, err := exec.ProcessChunk(textChunk(p))
		require.NoError(t, err)
	}
	finished, err := exec.ProcessChunk(finishChunk(proxytypes.FinishReasonStop))
	require.NoError(t, err)
	assert.True(t, finished)

	require.Len(t, *egress, 3)
	assert.Equal(t, "Hello", (*egress)[0].Choices[0].Delta.Content)
	assert.Equal(t, " world", (*egress)[1].Choices[0].Delta.Content)
}

func TestPolicyWithoutCapabilityNeverPushes(t *testing.T) {
	exec, egress, _ := newHarness(&Base{})

	_, err := exec.ProcessChunk(textChunk("hi"))
	require.NoError(t, err)
	_, err = exec.ProcessChunk(finishChunk(proxytypes.FinishReasonStop))
	require.NoError(t, err)

	assert.Empty(t, *egress)
}

func TestBufferingPolicyBuffersContentUntilComplete(t *testing.T) {
	bp := NewBufferingPolicy("uppercase")
	bp.OnContentFunc = func(content string, _ *StreamingContext) string {
		return content + "!"
	}
	exec, egress, _ := newHarness(bp)

	_, err := exec.ProcessChunk(textChunk("hello"))
	require.NoError(t, err)
	assert.Empty(t, *egress, "no push until the block completes")

	_, err = exec.ProcessChunk(toolChunk(0, "call_1", "search", `{}`))
	require.NoError(t, err)

	require.Len(t, *egress, 1)
	assert.Equal(t, "hello!", (*egress)[0].Choices[0].Delta.Content)
}

func TestBufferingPolicyCanBlockToolCall(t *testing.T) {
	bp := NewBufferingPolicy("blocker")
	bp.OnToolCallFunc = func(block *proxytypes.StreamBlock, _ *StreamingContext) ToolCallResult {
		return ToolCallResult{Blocked: true}
	}
	exec, egress, events := newHarness(bp)

	_, err := exec.ProcessChunk(toolChunk(0, "call_1", "delete_everything", `{}`))
	require.NoError(t, err)
	_, err = exec.ProcessChunk(finishChunk(proxytypes.FinishReasonToolCalls))
	require.NoError(t, err)

	assert.Empty(t, *egress, "blocked tool call never reaches egress")
	require.Len(t, *events, 1)
	assert.Equal(t, "simple_policy.tool_call_blocked", (*events)[0].EventType)
}

func TestBufferingPolicyCanReplaceToolCallWithText(t *testing.T) {
	bp := NewBufferingPolicy("replacer")
	bp.OnToolCallFunc = func(block *proxytypes.StreamBlock, _ *StreamingContext) ToolCallResult {
		return ToolCallResult{Replacement: "tool calls are disabled"}
	}
	exec, egress, _ := newHarness(bp)

	_, err := exec.ProcessChunk(toolChunk(0, "call_1", "search", `{}`))
	require.NoError(t, err)
	_, err = exec.ProcessChunk(finishChunk(proxytypes.FinishReasonToolCalls))
	require.NoError(t, err)

	require.Len(t, *egress, 1)
	assert.Equal(t, "tool calls are disabled", (*egress)[0].Choices[0].Delta.Content)
}

func TestUnparseableToolArgumentsEmitErrorEventButStillForward(t *testing.T) {
	exec, _, events := newHarness(NewPassthroughPolicy())

	_, err := exec.ProcessChunk(toolChunk(0, "call_1", "f", `not valid json at all`))
	require.NoError(t, err)
	_, err = exec.ProcessChunk(finishChunk(proxytypes.FinishReasonToolCalls))
	require.NoError(t, err)

	var found bool
	for _, e := range *events {
		if e.EventType == "tool_call.arguments_unparseable" {
			found = true
			assert.Equal(t, proxytypes.SeverityError, e.Severity)
		}
	}
	assert.True(t, found, "expected an unparseable-arguments event")
}

type erroringPolicy struct {
	Base
}

func newErroringPolicy() *erroringPolicy {
	p := &erroringPolicy{}
	p.WithCapabilities(CapOnContentDelta)
	return p
}

func (p *erroringPolicy) OnContentDelta(_ *StreamingContext) error {
	return errors.New("boom")
}

func TestHookErrorIsWrappedAndEmitsEvent(t *testing.T) {
	exec, _, events := newHarness(newErroringPolicy())

	_, err := exec.ProcessChunk(textChunk("hi"))
	require.Error(t, err)

	require.Len(t, *events, 1)
	assert.Equal(t, "policy.hook_error", (*events)[0].EventType)
	assert.Equal(t, proxytypes.SeverityError, (*events)[0].Severity)
}

type panickingPolicy struct {
	Base
}

func newPanickingPolicy() *panickingPolicy {
	p := &panickingPolicy{}
	p.WithCapabilities(CapOnContentDelta)
	return p
}

func (p *panickingPolicy) OnContentDelta(_ *StreamingContext) error {
	panic("unexpected")
}

func TestHookPanicIsRecoveredAsError(t *testing.T) {
	exec, _, _ := newHarness(newPanickingPolicy())

	assert.NotPanics(t, func() {
		_, err := exec.ProcessChunk(textChunk("hi"))
		assert.Error(t, err)
	})
}

func TestChainRunsSubPoliciesInOrder(t *testing.T) {
	var order []string
	first := NewBufferingPolicy("first")
	first.OnContentFunc = func(content string, _ *StreamingContext) string {
		order = append(order, "first")
		return content
	}
	second := NewBufferingPolicy("second")
	second.OnContentFunc = func(content string, _ *StreamingContext) string {
		order = append(order, "second")
		return content
	}
	chain := NewChain(first, second)
	exec, egress, _ := newHarness(chain)

	_, err := exec.ProcessChunk(textChunk("hi"))
	require.NoError(t, err)
	_, err = exec.ProcessChunk(finishChunk(proxytypes.FinishReasonStop))
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, order)
	require.Len(t, *egress, 2, "each sub-policy pushes its own transformed chunk")
}

func TestCompleteInvokesStreamingPolicyCompleteOnlyWhenCapable(t *testing.T) {
	called := false
	bp := NewBufferingPolicy("noop")
	bp.WithCapabilities(bp.Capabilities() | CapOnStreamingPolicyComplete)

	exec, _, _ := newHarness(&trackingPolicy{BufferingPolicy: *bp, onComplete: func() { called = true }})
	require.NoError(t, exec.Complete())
	assert.True(t, called)
}

type trackingPolicy struct {
	BufferingPolicy
	onComplete func()
}

func (p *trackingPolicy) OnStreamingPolicyComplete(sctx *StreamingContext) error {
	p.onComplete()
	return nil
}

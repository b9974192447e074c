package policy

import (
	"fmt"
	"time"

	"github.com/luthien-gate/policyproxy/pkg/assembler"
	"github.com/luthien-gate/policyproxy/pkg/jsonparser"
	"github.com/luthien-gate/policyproxy/pkg/proxyerr"
	"github.com/luthien-gate/policyproxy/pkg/proxytypes"
)

// Executor drives one transaction's chunks through the Chunk Assembler and
// the active Policy's hooks, in the order spec.md §4.3's table specifies.
// It has no concurrency of its own: the Streaming Orchestrator serializes
// calls to ProcessChunk for one transaction on a single goroutine.
type Executor struct {
	policy     Policy
	assembler  *assembler.Assembler
	tx         *proxytypes.Transaction
	pushEgress func(proxytypes.Chunk)
	emitEvent  func(proxytypes.PolicyEvent)
	keepalive  func()
}

// NewExecutor returns an Executor for one transaction.
func NewExecutor(
	p Policy,
	tx *proxytypes.Transaction,
	pushEgress func(proxytypes.Chunk),
	emitEvent func(proxytypes.PolicyEvent),
	keepalive func(),
) *Executor {
	return &Executor{
		policy:     p,
		assembler:  assembler.New(),
		tx:         tx,
		pushEgress: pushEgress,
		emitEvent:  emitEvent,
		keepalive:  keepalive,
	}
}

// State returns the live StreamState the assembler is maintaining, for
// callers (the orchestrator) that need read access.
func (e *Executor) State() *proxytypes.StreamState { return e.assembler.State() }

// ProcessChunk folds one upstream chunk into the StreamState and invokes
// every hook the active policy's Capabilities() enables, in order. It
// returns whether the stream has now finished.
//
// An error returned here is always a *proxyerr.Error: a hook's error (or
// panic, recovered) is wrapped as InternalError, a
// PolicyEvent{severity:error} is emitted, and per spec.md §4.3 the caller
// (the orchestrator) must abort the stream and close the egress queue.
func (e *Executor) ProcessChunk(chunk proxytypes.Chunk) (finished bool, err error) {
	processed, wasFinished := e.assembler.Process(chunk)
	state := e.assembler.State()
	caps := e.policy.Capabilities()

	sctx := NewStreamingContext(e.tx, state, processed, e.pushEgress, e.emitEvent, e.keepalive)

	if caps&CapOnChunkReceived != 0 {
		if err := e.invoke("on_chunk_received", sctx, e.policy.OnChunkReceived); err != nil {
			return false, err
		}
	}

	choice, ok := processed.FirstChoice()
	if ok {
		delta := choice.Delta
		if delta.HasContent && delta.Content != "" && caps&CapOnContentDelta != 0 {
			if err := e.invoke("on_content_delta", sctx, e.policy.OnContentDelta); err != nil {
				return false, err
			}
		}
		if len(delta.ToolCalls) > 0 && caps&CapOnToolCallDelta != 0 {
			if err := e.invoke("on_tool_call_delta", sctx, e.policy.OnToolCallDelta); err != nil {
				return false, err
			}
		}
	}

	if state.JustCompleted != nil {
		sctx.JustCompleted = state.JustCompleted
		switch state.JustCompleted.Kind {
		case proxytypes.BlockKindContent:
			if caps&CapOnContentComplete != 0 {
				if err := e.invoke("on_content_complete", sctx, e.policy.OnContentComplete); err != nil {
					return false, err
				}
			}
		case proxytypes.BlockKindToolCall:
			e.checkToolArguments(sctx, state.JustCompleted)
			if caps&CapOnToolCallComplete != 0 {
				if err := e.invoke("on_tool_call_complete", sctx, e.policy.OnToolCallComplete); err != nil {
					return false, err
				}
			}
		}
		e.assembler.ClearJustCompleted()
		sctx.JustCompleted = nil
	}

	if wasFinished {
		if caps&CapOnFinishReason != 0 {
			if err := e.invoke("on_finish_reason", sctx, e.policy.OnFinishReason); err != nil {
				return false, err
			}
		}
		if caps&CapOnStreamComplete != 0 {
			if err := e.invoke("on_stream_complete", sctx, e.policy.OnStreamComplete); err != nil {
				return false, err
			}
		}
	}

	return wasFinished, nil
}

// Complete invokes on_streaming_policy_complete, after egress has been
// fully drained. Per spec.md §4.3 the policy must not push from here;
// nothing enforces that beyond documentation, matching the Python source.
func (e *Executor) Complete() error {
	if e.policy.Capabilities()&CapOnStreamingPolicyComplete == 0 {
		return nil
	}
	sctx := NewStreamingContext(e.tx, e.assembler.State(), proxytypes.Chunk{}, e.pushEgress, e.emitEvent, e.keepalive)
	return e.invoke("on_streaming_policy_complete", sctx, e.policy.OnStreamingPolicyComplete)
}

// checkToolArguments classifies a just-completed tool call's accumulated
// arguments, per spec.md §4.1's failure semantics and §9 Open Question
// (b): if the JSON never parses even after repair, forward it verbatim
// but emit a structured error event. No repaired value is substituted.
func (e *Executor) checkToolArguments(sctx *StreamingContext, block *proxytypes.StreamBlock) {
	result := jsonparser.ParsePartialJSON(block.Arguments)
	if result.State != jsonparser.ParseStateFailed {
		return
	}
	sctx.Emit(proxytypes.PolicyEvent{
		EventType: "tool_call.arguments_unparseable",
		Summary:   fmt.Sprintf("tool call %s arguments did not parse as JSON", block.Name),
		Severity:  proxytypes.SeverityError,
		Details: map[string]any{
			"tool_id":     block.ID,
			"tool_name":   block.Name,
			"parse_state": string(result.State),
		},
		Timestamp: time.Now(),
	})
}

// invoke calls hook, recovering from a panic and converting both a panic
// and a returned error into a wrapped *proxyerr.Error with an emitted
// PolicyEvent, per spec.md §4.3's error-handling table.
func (e *Executor) invoke(hookName string, sctx *StreamingContext, hook func(*StreamingContext) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = e.reportHookError(hookName, fmt.Errorf("panic: %v", r))
		}
	}()
	if hookErr := hook(sctx); hookErr != nil {
		return e.reportHookError(hookName, hookErr)
	}
	return nil
}

func (e *Executor) reportHookError(hookName string, cause error) *proxyerr.Error {
	wrapped := proxyerr.Wrap(proxyerr.KindInternal, fmt.Sprintf("policy hook %s failed", hookName), cause)
	e.emit(proxytypes.PolicyEvent{
		EventType: "policy.hook_error",
		Summary:   wrapped.Error(),
		Severity:  proxytypes.SeverityError,
		Details:   map[string]any{"hook": hookName},
		Timestamp: time.Now(),
	})
	return wrapped
}

func (e *Executor) emit(evt proxytypes.PolicyEvent) {
	evt.TransactionID = e.tx.ID
	evt.TraceID = e.tx.TraceID
	evt.Phase = proxytypes.PhaseStreaming
	if e.emitEvent != nil {
		e.emitEvent(evt)
	}
}

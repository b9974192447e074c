// Package policy implements the Policy Executor (spec.md §4.3): the hook
// table a user-supplied policy implements, and the machinery that drives a
// chunk through those hooks in a well-defined order.
//
// Grounded on original_source/.../v2/policies/simple_event_based_policy.py
// for the hook table and "buffer until complete" semantics. Per spec.md
// §9's design note, the Python hook surface's duck typing becomes an
// explicit Go interface plus a capability bitmask registered once at
// construction, never probed via reflection.
package policy

import "github.com/luthien-gate/policyproxy/pkg/proxytypes"

// Capability flags one hook a Policy implements. The executor consults
// Capabilities() before invoking a hook instead of calling every hook
// unconditionally and relying on a no-op default — this is the Go
// equivalent of the Python base class's duck-typed "missing hooks are
// no-ops" behavior, made explicit.
type Capability uint16

const (
	CapOnRequest Capability = 1 << iota
	CapOnResponse
	CapOnChunkReceived
	CapOnContentDelta
	CapOnContentComplete
	CapOnToolCallDelta
	CapOnToolCallComplete
	CapOnFinishReason
	CapOnStreamComplete
	CapOnStreamingPolicyComplete
)

// CapAll is every hook a Policy can implement.
const CapAll = CapOnRequest | CapOnResponse | CapOnChunkReceived |
	CapOnContentDelta | CapOnContentComplete | CapOnToolCallDelta |
	CapOnToolCallComplete | CapOnFinishReason | CapOnStreamComplete |
	CapOnStreamingPolicyComplete

// Policy is the user-supplied hook surface of spec.md §4.3's table. A
// policy need not take locks for its own scratchpad: for one transaction
// the executor invokes hooks strictly sequentially on a single logical
// thread of execution (spec.md §4.3, "Ordering guarantee").
type Policy interface {
	// Name identifies the policy for logging and observability.
	Name() string

	// Capabilities reports which hooks below the executor should invoke.
	// A policy that never overrides a hook should still implement it (via
	// embedding Base) but exclude its bit from Capabilities() so the
	// executor skips the call entirely.
	Capabilities() Capability

	// OnRequest may rewrite the request before upstream dispatch, or
	// return an error to reject it (spec.md §4.3).
	OnRequest(req proxytypes.Request, pctx *Context) (proxytypes.Request, error)

	// OnResponse may rewrite a complete non-streaming response.
	OnResponse(resp proxytypes.Response, pctx *Context) (proxytypes.Response, error)

	// OnChunkReceived sees every raw normalized chunk, first. Default
	// passthrough policies push the chunk to egress here; transforming
	// policies typically leave this as a no-op.
	OnChunkReceived(sctx *StreamingContext) error

	// OnContentDelta fires after a content delta is merged into the
	// current block. The policy may emit transformed text via sctx.Push.
	OnContentDelta(sctx *StreamingContext) error

	// OnContentComplete fires when a content block transitions to
	// complete — the terminal point for text transformations.
	OnContentComplete(sctx *StreamingContext) error

	// OnToolCallDelta fires after a tool-call fragment is merged.
	// Typically not pushed progressively; see Base/BufferingPolicy.
	OnToolCallDelta(sctx *StreamingContext) error

	// OnToolCallComplete fires when a tool-call block transitions to
	// complete. The policy may approve, mutate, or replace the call.
	OnToolCallComplete(sctx *StreamingContext) error

	// OnFinishReason fires on the chunk that carries a finish_reason,
	// allowing trailing text to be appended.
	OnFinishReason(sctx *StreamingContext) error

	// OnStreamComplete fires after the last chunk; cleanup, may still push.
	OnStreamComplete(sctx *StreamingContext) error

	// OnStreamingPolicyComplete fires after egress is fully drained. Pure
	// cleanup — must not push.
	OnStreamingPolicyComplete(sctx *StreamingContext) error
}

// Base is a no-op implementation of every Policy hook, embedded by
// concrete policies so they only need to override what they use.
// Capabilities defaults to 0 (no hooks called); WithCapabilities sets it.
type Base struct {
	caps Capability
}

// WithCapabilities sets the capability bitmask this policy advertises.
// Concrete policies call this from their constructor.
func (b *Base) WithCapabilities(caps Capability) { b.caps = caps }

func (b *Base) Capabilities() Capability { return b.caps }

func (b *Base) Name() string { return "policy" }

func (b *Base) OnRequest(req proxytypes.Request, _ *Context) (proxytypes.Request, error) {
	return req, nil
}

func (b *Base) OnResponse(resp proxytypes.Response, _ *Context) (proxytypes.Response, error) {
	return resp, nil
}

func (b *Base) OnChunkReceived(_ *StreamingContext) error           { return nil }
func (b *Base) OnContentDelta(_ *StreamingContext) error            { return nil }
func (b *Base) OnContentComplete(_ *StreamingContext) error         { return nil }
func (b *Base) OnToolCallDelta(_ *StreamingContext) error           { return nil }
func (b *Base) OnToolCallComplete(_ *StreamingContext) error        { return nil }
func (b *Base) OnFinishReason(_ *StreamingContext) error            { return nil }
func (b *Base) OnStreamComplete(_ *StreamingContext) error          { return nil }
func (b *Base) OnStreamingPolicyComplete(_ *StreamingContext) error { return nil }

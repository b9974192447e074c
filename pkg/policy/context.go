package policy

import "github.com/luthien-gate/policyproxy/pkg/proxytypes"

// Context is the per-request context passed to OnRequest/OnResponse.
// It holds a pointer to the transaction (for its id, trace id and
// scratchpad) plus function pointers bound at construction, not just the
// transaction identifier. proxytypes.Transaction itself holds no
// reference to the executor, recorder or transport layer.
type Context struct {
	transaction *proxytypes.Transaction
	emit        func(proxytypes.PolicyEvent)
}

// NewContext returns a Context bound to one transaction.
func NewContext(tx *proxytypes.Transaction, emit func(proxytypes.PolicyEvent)) *Context {
	return &Context{transaction: tx, emit: emit}
}

// TransactionID returns the owning transaction's identifier.
func (c *Context) TransactionID() string { return c.transaction.ID }

// Emit dispatches a PolicyEvent to the observability fanout.
func (c *Context) Emit(evt proxytypes.PolicyEvent) {
	evt.TransactionID = c.transaction.ID
	evt.TraceID = c.transaction.TraceID
	if c.emit != nil {
		c.emit(evt)
	}
}

// Scratchpad reads a per-transaction value.
func (c *Context) Scratchpad(key string) (any, bool) { return c.transaction.Scratchpad(key) }

// SetScratchpad writes a per-transaction value.
func (c *Context) SetScratchpad(key string, value any) { c.transaction.SetScratchpad(key, value) }

// StreamingContext is the per-chunk context passed to every streaming
// hook (spec.md §4.3). It exposes the current chunk read-only, the
// current StreamState, a Push method that enqueues a chunk onto egress,
// a PolicyEvent emitter, the scratchpad, and the transaction id. It never
// exposes the raw upstream iterator.
type StreamingContext struct {
	// Chunk is the current chunk, already folded into State by the
	// assembler (and, if applicable, with empty-content stripped per
	// spec.md §4.2 rule 5).
	Chunk proxytypes.Chunk

	// State is the live StreamState for this transaction.
	State *proxytypes.StreamState

	// JustCompleted is the block that just transitioned to complete, set
	// only for the single callback invocation spec.md §3 describes.
	JustCompleted *proxytypes.StreamBlock

	transaction *proxytypes.Transaction
	push        func(proxytypes.Chunk)
	emit        func(proxytypes.PolicyEvent)
	keepalive   func()
}

// NewStreamingContext returns a StreamingContext bound to one transaction
// and chunk, with egress push, event emission, and keepalive-reset
// functions closed over the transaction per spec.md §9's design note
// ("a struct of function pointers / closures bound to the current
// transaction, not a shared mutable object captured implicitly").
func NewStreamingContext(
	tx *proxytypes.Transaction,
	state *proxytypes.StreamState,
	chunk proxytypes.Chunk,
	push func(proxytypes.Chunk),
	emit func(proxytypes.PolicyEvent),
	keepalive func(),
) *StreamingContext {
	return &StreamingContext{
		Chunk:       chunk,
		State:       state,
		transaction: tx,
		push:        push,
		emit:        emit,
		keepalive:   keepalive,
	}
}

// TransactionID returns the owning transaction's identifier.
func (c *StreamingContext) TransactionID() string { return c.transaction.ID }

// Push enqueues chunk onto the egress queue, in the order called.
func (c *StreamingContext) Push(chunk proxytypes.Chunk) {
	if c.push != nil {
		c.push(chunk)
	}
}

// Emit dispatches a PolicyEvent to the observability fanout.
func (c *StreamingContext) Emit(evt proxytypes.PolicyEvent) {
	evt.TransactionID = c.transaction.ID
	evt.TraceID = c.transaction.TraceID
	evt.Phase = proxytypes.PhaseStreaming
	if c.emit != nil {
		c.emit(evt)
	}
}

// Keepalive resets the orchestrator's inactivity deadline without
// producing a chunk (spec.md §4.4's "explicit keepalive signal").
func (c *StreamingContext) Keepalive() {
	if c.keepalive != nil {
		c.keepalive()
	}
}

// Scratchpad reads a per-transaction value.
func (c *StreamingContext) Scratchpad(key string) (any, bool) {
	return c.transaction.Scratchpad(key)
}

// SetScratchpad writes a per-transaction value.
func (c *StreamingContext) SetScratchpad(key string, value any) {
	c.transaction.SetScratchpad(key, value)
}

// PushText is a convenience used by buffering policies to push a single
// content-delta chunk for the resolved model/id, mirroring
// StreamingContext.send_text in simple_event_based_policy.py.
func (c *StreamingContext) PushText(text string) {
	c.Push(proxytypes.Chunk{
		ID:    c.Chunk.ID,
		Model: c.Chunk.Model,
		Choices: []proxytypes.Choice{{
			Delta: proxytypes.Delta{Content: text, HasContent: true},
		}},
	})
}

package proxytypes

import "sync"

// EventPhase distinguishes which phase of a transaction's lifecycle a
// PolicyEvent was emitted from. Supplemented from original_source's
// activity/events.py PolicyEventEmitted.phase, dropped by spec.md's
// distillation but useful for fanout routing.
type EventPhase string

const (
	PhaseRequest   EventPhase = "request"
	PhaseResponse  EventPhase = "response"
	PhaseStreaming EventPhase = "streaming"
)

// Transaction is the scope of one client request end-to-end, carrying a
// stable identifier for the life of the request (spec.md §3).
type Transaction struct {
	ID          string
	WireFormat  WireFormat
	Model       string
	TraceID     string
	// SessionID correlates a transaction to a client-declared session,
	// supplemented from original_source's session.py; the core never
	// interprets it beyond log correlation.
	SessionID string

	mu         sync.Mutex
	scratchpad map[string]any
}

// NewTransaction returns a Transaction ready for use.
func NewTransaction(id string, wireFormat WireFormat, model, traceID string) *Transaction {
	return &Transaction{
		ID:         id,
		WireFormat: wireFormat,
		Model:      model,
		TraceID:    traceID,
		scratchpad: make(map[string]any),
	}
}

// Scratchpad returns the value stored under key and whether it was present.
// Safe for concurrent use, though within one transaction the executor only
// ever calls this from its single logical thread of execution.
func (t *Transaction) Scratchpad(key string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.scratchpad[key]
	return v, ok
}

// SetScratchpad stores a value under key for the life of the transaction.
func (t *Transaction) SetScratchpad(key string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scratchpad[key] = value
}

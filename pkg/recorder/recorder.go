// Package recorder implements the Transaction Recorder (spec.md §4.7): it
// accumulates both the upstream ("ingress") and post-policy ("egress")
// chunk streams in parallel buffers, reconstructs a complete canonical
// response from each at stream end, and emits one paired record carrying
// both — enabling diffing original vs. final.
//
// Grounded on spec.md §4.7's reconstruction algorithm directly, and on
// original_source/.../v2/activity/events.py's OriginalResponseReceived /
// FinalResponseSent event pair for the emitted record's shape: spec.md's
// distillation states the recorder's purpose ("diffing original vs.
// final") without naming what gets emitted, and the Python source
// confirms it is a paired record rather than two independent ones.
package recorder

import (
	"context"
	"sync"

	"github.com/luthien-gate/policyproxy/pkg/observability"
	"github.com/luthien-gate/policyproxy/pkg/proxytypes"
)

// Recorder buffers ingress and egress chunks for one transaction and
// reconstructs canonical responses from each on Finalize.
type Recorder struct {
	transactionID string
	traceID       string
	fanout        *observability.Fanout

	mu         sync.Mutex
	ingress    []proxytypes.Chunk
	egress     []proxytypes.Chunk
	finalized  bool
	lastResult PairedRecord
}

// New returns a Recorder for one transaction, emitting its paired record
// to fanout on Finalize. fanout may be nil, in which case Finalize is
// still idempotent but emits nothing.
func New(transactionID, traceID string, fanout *observability.Fanout) *Recorder {
	return &Recorder{transactionID: transactionID, traceID: traceID, fanout: fanout}
}

// RecordIngress appends one pre-policy chunk as observed from upstream,
// in upstream order (spec.md §5's ordering guarantee).
func (r *Recorder) RecordIngress(chunk proxytypes.Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingress = append(r.ingress, chunk)
}

// RecordEgress appends one post-policy chunk in the order the policy
// pushed it.
func (r *Recorder) RecordEgress(chunk proxytypes.Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.egress = append(r.egress, chunk)
}

// PairedRecord carries both reconstructed canonical responses for one
// transaction, for diffing original vs. final.
type PairedRecord struct {
	TransactionID string
	Original      proxytypes.Response
	Final         proxytypes.Response
}

// Finalize reconstructs both canonical responses and emits the paired
// record to the fanout. Idempotent: a second call is a no-op and returns
// the same result computed the first time.
func (r *Recorder) Finalize(ctx context.Context) PairedRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return r.lastResult
	}
	r.finalized = true

	r.lastResult = PairedRecord{
		TransactionID: r.transactionID,
		Original:      Reconstruct(r.ingress),
		Final:         Reconstruct(r.egress),
	}

	if r.fanout != nil {
		r.fanout.Emit(ctx, observability.Record{
			Type:          observability.RecordTypeGeneric,
			TransactionID: r.transactionID,
			TraceID:       r.traceID,
			EventType:     "transaction.original_vs_final",
			Data: map[string]any{
				"original": r.lastResult.Original,
				"final":    r.lastResult.Final,
			},
		})
	}

	return r.lastResult
}

// Reconstruct folds a chunk buffer into one synthetic non-streaming
// response, per spec.md §4.7's algorithm: concatenate content deltas,
// fold tool-call deltas by index into {id, name, arguments}, and take the
// finish_reason from the last chunk that sets one.
//
// A buffer in which no chunk sets a finish_reason yields
// FinishReasonStop synthesized here at reconstruction time only — the
// live stream never invents one (spec.md §8's boundary behavior).
func Reconstruct(chunks []proxytypes.Chunk) proxytypes.Response {
	resp := proxytypes.Response{FinishReason: proxytypes.FinishReasonStop}

	var textBuilder []byte
	type toolAccum struct {
		id, name string
		index    int
		args     []byte
	}
	var toolOrder []int
	toolByIndex := make(map[int]*toolAccum)

	var id, model string

	for _, chunk := range chunks {
		if chunk.ID != "" {
			id = chunk.ID
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Usage != nil {
			resp.Usage = *chunk.Usage
		}

		choice, ok := chunk.FirstChoice()
		if !ok {
			continue
		}
		delta := choice.Delta

		if delta.HasContent {
			textBuilder = append(textBuilder, delta.Content...)
		}

		for _, tc := range delta.ToolCalls {
			acc, seen := toolByIndex[tc.Index]
			if !seen {
				acc = &toolAccum{index: tc.Index}
				toolByIndex[tc.Index] = acc
				toolOrder = append(toolOrder, tc.Index)
			}
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Name != "" {
				acc.name = tc.Name
			}
			if tc.Arguments != "" {
				acc.args = append(acc.args, tc.Arguments...)
			}
		}

		if delta.HasFinish {
			resp.FinishReason = delta.FinishReason
		} else if choice.HasFinish {
			resp.FinishReason = choice.FinishReason
		}
	}

	resp.ID = id
	resp.Model = model

	if len(textBuilder) > 0 {
		resp.Content = append(resp.Content, proxytypes.ContentPart{
			Type: proxytypes.ContentPartText,
			Text: string(textBuilder),
		})
	}
	for _, idx := range toolOrder {
		acc := toolByIndex[idx]
		resp.Content = append(resp.Content, proxytypes.ContentPart{
			Type:          proxytypes.ContentPartToolUse,
			ToolUseID:     acc.id,
			ToolName:      acc.name,
			ToolInputJSON: string(acc.args),
		})
	}

	return resp
}

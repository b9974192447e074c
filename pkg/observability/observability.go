// Package observability implements the Observability Fanout (spec.md
// §4.6): a typed record is emitted to every configured sink for every
// significant stage transition, fire-and-forget, so a slow or failing
// sink never stalls the pipeline.
package observability

import (
	"context"
	"time"

	"github.com/luthien-gate/policyproxy/pkg/proxytypes"
)

// RecordType tags which of the three record shapes a Record carries.
type RecordType string

const (
	RecordTypePipeline RecordType = "pipeline"
	RecordTypePolicy   RecordType = "policy_event"
	RecordTypeGeneric  RecordType = "generic"
)

// PipelineStage names a point in the request/response lifecycle a
// PipelineRecord snapshots, mirroring
// original_source/.../v2/activity/events.py's per-stage event classes
// collapsed into one stage enum plus a payload.
type PipelineStage string

const (
	StageClientRequestReceived    PipelineStage = "client_request_received"
	StageUpstreamRequestSent      PipelineStage = "upstream_request_sent"
	StageUpstreamResponseReceived PipelineStage = "upstream_response_received"
	StageClientResponseSent       PipelineStage = "client_response_sent"
	StageUpstreamResponseChunk    PipelineStage = "upstream_response_chunk"
	StageClientResponseChunk      PipelineStage = "client_response_chunk"
)

// Record is one observable event, in whichever of the three shapes Type
// selects. Exactly the fields for Type are meaningful.
type Record struct {
	Type          RecordType
	TransactionID string
	TraceID       string
	Timestamp     time.Time

	// PipelineRecord fields.
	Stage   PipelineStage
	Payload any

	// PolicyEvent fields (Type == RecordTypePolicy).
	PolicyEvent proxytypes.PolicyEvent

	// GenericRecord fields.
	EventType string
	Data      map[string]any
}

// Sink is the one-method interface every observability backend
// implements (spec.md §4.6, "each implements one async write(record)").
type Sink interface {
	Name() string
	Write(ctx context.Context, rec Record) error
}

// Fanout holds a routing table from record type to the sinks interested
// in it, and dispatches fire-and-forget per spec.md §4.6 ("writes are
// launched as fire-and-forget tasks; sink failures must not stall the
// pipeline").
type Fanout struct {
	routes map[RecordType][]Sink
	onErr  func(sinkName string, rec Record, err error)
}

// New returns an empty Fanout. Register sinks with Route.
func New(onErr func(sinkName string, rec Record, err error)) *Fanout {
	return &Fanout{routes: make(map[RecordType][]Sink), onErr: onErr}
}

// Route registers sink to receive every record of the given types. A sink
// not routed to a type never sees records of that type, matching spec.md
// §4.6's "routing is configurable per record type."
func (f *Fanout) Route(sink Sink, types ...RecordType) {
	for _, t := range types {
		f.routes[t] = append(f.routes[t], sink)
	}
}

// Emit dispatches rec to every sink routed to its type, each in its own
// goroutine, and returns immediately without waiting for any of them.
func (f *Fanout) Emit(ctx context.Context, rec Record) {
	for _, sink := range f.routes[rec.Type] {
		sink := sink
		go func() {
			if err := sink.Write(ctx, rec); err != nil && f.onErr != nil {
				f.onErr(sink.Name(), rec, err)
			}
		}()
	}
}

// EmitPolicyEvent is a convenience wrapper building a Record from a
// proxytypes.PolicyEvent.
func (f *Fanout) EmitPolicyEvent(ctx context.Context, evt proxytypes.PolicyEvent) {
	f.Emit(ctx, Record{
		Type:          RecordTypePolicy,
		TransactionID: evt.TransactionID,
		TraceID:       evt.TraceID,
		Timestamp:     evt.Timestamp,
		PolicyEvent:   evt,
	})
}

// EmitPipeline is a convenience wrapper building a Record from a pipeline
// stage snapshot.
func (f *Fanout) EmitPipeline(ctx context.Context, transactionID, traceID string, stage PipelineStage, payload any) {
	f.Emit(ctx, Record{
		Type:          RecordTypePipeline,
		TransactionID: transactionID,
		TraceID:       traceID,
		Stage:         stage,
		Payload:       payload,
	})
}

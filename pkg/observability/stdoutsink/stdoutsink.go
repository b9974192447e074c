// Package stdoutsink implements the Observability Fanout's stdout sink
// (spec.md §4.6): one JSON-per-line record, enriched with the current
// trace and transaction identifiers.
//
// Grounded on zerolog usage in the retrieval pack's sacenox-symb and
// yy1588133-myclaw repos, both of which use zerolog as their sole
// structured logger.
package stdoutsink

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/luthien-gate/policyproxy/pkg/observability"
)

// Sink writes every record as one zerolog JSON line to the given writer.
type Sink struct {
	logger zerolog.Logger
}

// New returns a Sink writing to os.Stdout.
func New() *Sink {
	return NewWithWriter(os.Stdout)
}

// NewWithWriter returns a Sink writing to w, for tests that need to
// inspect the emitted JSON lines instead of os.Stdout.
func NewWithWriter(w io.Writer) *Sink {
	return &Sink{logger: zerolog.New(w).With().Timestamp().Logger()}
}

func (s *Sink) Name() string { return "stdout" }

func (s *Sink) Write(_ context.Context, rec observability.Record) error {
	evt := s.logger.Info().
		Str("record_type", string(rec.Type)).
		Str("transaction_id", rec.TransactionID).
		Str("trace_id", rec.TraceID)

	switch rec.Type {
	case observability.RecordTypePipeline:
		evt = evt.Str("stage", string(rec.Stage)).Interface("payload", rec.Payload)
	case observability.RecordTypePolicy:
		evt = evt.
			Str("event_type", rec.PolicyEvent.EventType).
			Str("severity", string(rec.PolicyEvent.Severity)).
			Str("phase", string(rec.PolicyEvent.Phase)).
			Interface("details", rec.PolicyEvent.Details)
	case observability.RecordTypeGeneric:
		evt = evt.Str("event_type", rec.EventType).Interface("data", rec.Data)
	}

	evt.Msg("activity")
	return nil
}

// Package pubsubsink implements the Observability Fanout's ephemeral
// pub/sub sink (spec.md §4.6): a best-effort broadcast on a per-transaction
// subject and a global activity subject. Failures are logged but never
// propagated, matching spec.md's "failures are logged but never
// propagated" and the ephemeral-sink Non-goal of no delivery guarantee.
//
// Uses github.com/nats-io/nats.go per the package's own documented
// publish API — named only from manifest-level retrieval-pack entries
// with no retrievable Go source pattern to imitate (see DESIGN.md).
package pubsubsink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/luthien-gate/policyproxy/pkg/observability"
)

// GlobalSubject is the subject every record is additionally published to,
// regardless of transaction, per spec.md §4.6's "global activity channel."
const GlobalSubject = "activity.all"

// Sink publishes records to NATS subjects. It never returns an error from
// Write — publish failures are logged and swallowed, per spec.md's
// contract that sink failures must not stall the pipeline and ephemeral
// pub/sub delivery is best-effort only.
type Sink struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

// New wraps an already-connected NATS client.
func New(conn *nats.Conn, logger zerolog.Logger) *Sink {
	return &Sink{conn: conn, logger: logger}
}

func (s *Sink) Name() string { return "pubsub" }

// TransactionSubject returns the per-transaction subject a record for
// transactionID is published on.
func TransactionSubject(transactionID string) string {
	return fmt.Sprintf("activity.%s", transactionID)
}

// Write publishes rec to the transaction subject and the global subject.
// Both publishes are best-effort: an error is logged via zerolog and
// always swallowed (the return value is always nil), matching spec.md
// §4.6's "failures are logged but never propagated."
func (s *Sink) Write(_ context.Context, rec observability.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		s.logger.Warn().Err(err).Str("transaction_id", rec.TransactionID).Msg("pubsub: marshal record failed")
		return nil
	}

	if rec.TransactionID != "" {
		if err := s.conn.Publish(TransactionSubject(rec.TransactionID), payload); err != nil {
			s.logger.Warn().Err(err).Str("subject", TransactionSubject(rec.TransactionID)).Msg("pubsub: publish failed")
		}
	}
	if err := s.conn.Publish(GlobalSubject, payload); err != nil {
		s.logger.Warn().Err(err).Str("subject", GlobalSubject).Msg("pubsub: publish failed")
	}
	return nil
}

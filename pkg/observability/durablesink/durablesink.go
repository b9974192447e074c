// Package durablesink implements the Observability Fanout's durable
// store sink (spec.md §4.6, §6): an append-only SQLite-backed log of
// records, a per-transaction header table, and an HTTP envelope table for
// forensic replay.
//
// Grounded on batalabs-muxd's internal/store/store.go (sql.Open with the
// modernc.org/sqlite driver, CREATE TABLE IF NOT EXISTS migration, a
// struct wrapping *sql.DB).
package durablesink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/luthien-gate/policyproxy/pkg/observability"
)

// Sink persists records, transaction headers, and HTTP envelopes to
// SQLite.
type Sink struct {
	db *sql.DB

	// seqMu is held by Write from reading the current maximum sequence
	// until the new record is inserted, so parallel fire-and-forget writes
	// never allocate the same number. One mutex covers all transactions.
	seqMu sync.Mutex
}

// Open opens (or creates) the SQLite database at dsn and runs migrations.
func Open(dsn string) (*Sink, error) {
	db, err := sql.Open("sqlite", dsn+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open durable store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping durable store: %w", err)
	}
	s := &Sink{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate durable store: %w", err)
	}
	return s, nil
}

// NewFromDB wraps an existing *sql.DB (used by tests against an
// in-memory database).
func NewFromDB(db *sql.DB) (*Sink, error) {
	s := &Sink{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate durable store: %w", err)
	}
	return s, nil
}

func (s *Sink) Close() error { return s.db.Close() }

func (s *Sink) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			transaction_id TEXT PRIMARY KEY,
			wire_format TEXT NOT NULL,
			model TEXT NOT NULL,
			trace_id TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT 'active',
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
		CREATE TABLE IF NOT EXISTS records (
			transaction_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			record_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (transaction_id, sequence)
		);
		CREATE TABLE IF NOT EXISTS http_envelopes (
			transaction_id TEXT PRIMARY KEY,
			request_headers TEXT NOT NULL,
			request_body TEXT NOT NULL,
			response_headers TEXT NOT NULL,
			response_body TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
	`)
	return err
}

func (s *Sink) Name() string { return "durable" }

// Write allocates the next sequence number for rec.TransactionID and
// inserts the record, per spec.md §4.6's "sequence numbers allocated
// atomically on insert (read-max-plus-one under a per-transaction row
// lock suffices)".
func (s *Sink) Write(ctx context.Context, rec observability.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	seq, err := s.nextSequence(ctx, rec.TransactionID)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (transaction_id, sequence, record_type, payload) VALUES (?, ?, ?, ?)`,
		rec.TransactionID, seq, string(rec.Type), string(payload),
	)
	return err
}

func (s *Sink) nextSequence(ctx context.Context, transactionID string) (int64, error) {
	var maxSeq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM records WHERE transaction_id = ?`, transactionID,
	).Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("read max sequence: %w", err)
	}
	if !maxSeq.Valid {
		return 0, nil
	}
	return maxSeq.Int64 + 1, nil
}

// RecordTransaction upserts the transaction header row.
func (s *Sink) RecordTransaction(ctx context.Context, transactionID, wireFormat, model, traceID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (transaction_id, wire_format, model, trace_id) VALUES (?, ?, ?, ?)
		 ON CONFLICT(transaction_id) DO NOTHING`,
		transactionID, wireFormat, model, traceID,
	)
	return err
}

// SetTransactionState updates the transaction header's terminal state.
func (s *Sink) SetTransactionState(ctx context.Context, transactionID, state string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET state = ? WHERE transaction_id = ?`, state, transactionID,
	)
	return err
}

// redactedHeaderValue is substituted for any header whose name looks like
// it carries a credential, before the envelope is persisted.
const redactedHeaderValue = "[redacted]"

var sensitiveHeaderNames = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
	"api-key":       true,
	"cookie":        true,
	"set-cookie":    true,
}

// RedactHeaders returns a copy of headers with sensitive values replaced,
// per spec.md §6's "API-key-like header values redacted before insert."
func RedactHeaders(headers map[string][]string) map[string][]string {
	redacted := make(map[string][]string, len(headers))
	for name, values := range headers {
		if sensitiveHeaderNames[lower(name)] {
			redacted[name] = []string{redactedHeaderValue}
			continue
		}
		redacted[name] = values
	}
	return redacted
}

func lower(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// WriteEnvelope persists the redacted HTTP request/response envelope for
// one transaction, for forensic replay (spec.md §6).
func (s *Sink) WriteEnvelope(ctx context.Context, transactionID string, reqHeaders, respHeaders map[string][]string, reqBody, respBody []byte) error {
	reqH, err := json.Marshal(RedactHeaders(reqHeaders))
	if err != nil {
		return err
	}
	respH, err := json.Marshal(RedactHeaders(respHeaders))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO http_envelopes (transaction_id, request_headers, request_body, response_headers, response_body)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(transaction_id) DO UPDATE SET
		   response_headers = excluded.response_headers,
		   response_body = excluded.response_body`,
		transactionID, string(reqH), string(reqBody), string(respH), string(respBody),
	)
	return err
}

package durablesink

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/luthien-gate/policyproxy/pkg/observability"
)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1) // one shared in-memory database per test, not one per connection
	t.Cleanup(func() { db.Close() })

	sink, err := NewFromDB(db)
	require.NoError(t, err)
	return sink
}

func TestWriteAllocatesSequentialSequenceNumbers(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, sink.Write(ctx, observability.Record{
			Type:          observability.RecordTypeGeneric,
			TransactionID: "tx1",
			EventType:     "step",
		}))
	}

	rows, err := sink.db.QueryContext(ctx, `SELECT sequence FROM records WHERE transaction_id = ? ORDER BY sequence`, "tx1")
	require.NoError(t, err)
	defer rows.Close()

	var seqs []int64
	for rows.Next() {
		var seq int64
		require.NoError(t, rows.Scan(&seq))
		seqs = append(seqs, seq)
	}
	assert.Equal(t, []int64{0, 1, 2}, seqs)
}

func TestWriteSequenceAllocationIsRaceFree(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_ = sink.Write(ctx, observability.Record{
				Type:          observability.RecordTypeGeneric,
				TransactionID: "tx-concurrent",
				EventType:     "step",
			})
		}()
	}
	wg.Wait()

	var count int
	require.NoError(t, sink.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT sequence) FROM records WHERE transaction_id = ?`, "tx-concurrent",
	).Scan(&count))
	assert.Equal(t, writers, count)
}

func TestRedactHeadersMasksSensitiveNamesOnly(t *testing.T) {
	in := map[string][]string{
		"Authorization": {"Bearer secret"},
		"X-Api-Key":     {"abc123"},
		"Content-Type":  {"application/json"},
	}

	out := RedactHeaders(in)

	assert.Equal(t, []string{redactedHeaderValue}, out["Authorization"])
	assert.Equal(t, []string{redactedHeaderValue}, out["X-Api-Key"])
	assert.Equal(t, []string{"application/json"}, out["Content-Type"])
}

func TestWriteEnvelopeUpsertsOnConflict(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	reqHeaders := map[string][]string{"Authorization": {"Bearer secret"}}
	require.NoError(t, sink.WriteEnvelope(ctx, "tx1", reqHeaders, nil, []byte("req-body"), []byte("resp-body-1")))
	require.NoError(t, sink.WriteEnvelope(ctx, "tx1", reqHeaders, nil, []byte("req-body"), []byte("resp-body-2")))

	var respBody, reqHeaderJSON string
	require.NoError(t, sink.db.QueryRowContext(ctx,
		`SELECT response_body, request_headers FROM http_envelopes WHERE transaction_id = ?`, "tx1",
	).Scan(&respBody, &reqHeaderJSON))

	assert.Equal(t, "resp-body-2", respBody)
	assert.Contains(t, reqHeaderJSON, redactedHeaderValue)
}

func TestRecordAndSetTransactionState(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	require.NoError(t, sink.RecordTransaction(ctx, "tx1", "openai", "gpt-test", "trace1"))
	require.NoError(t, sink.SetTransactionState(ctx, "tx1", "ended"))

	var state string
	require.NoError(t, sink.db.QueryRowContext(ctx,
		`SELECT state FROM transactions WHERE transaction_id = ?`, "tx1",
	).Scan(&state))
	assert.Equal(t, "ended", state)
}

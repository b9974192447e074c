package stdoutsink

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthien-gate/policyproxy/pkg/observability"
	"github.com/luthien-gate/policyproxy/pkg/proxytypes"
)

func TestWritePipelineRecordEmitsOneJSONLine(t *testing.T) {
	var buf bytes.Buffer
	s := NewWithWriter(&buf)

	err := s.Write(context.Background(), observability.Record{
		Type:          observability.RecordTypePipeline,
		TransactionID: "tx1",
		TraceID:       "trace1",
		Stage:         observability.StageClientRequestReceived,
		Payload:       map[string]any{"model": "gpt-test"},
	})
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "pipeline", line["record_type"])
	assert.Equal(t, "tx1", line["transaction_id"])
	assert.Equal(t, "client_request_received", line["stage"])
}

func TestWritePolicyRecordIncludesEventFields(t *testing.T) {
	var buf bytes.Buffer
	s := NewWithWriter(&buf)

	err := s.Write(context.Background(), observability.Record{
		Type:          observability.RecordTypePolicy,
		TransactionID: "tx1",
		PolicyEvent: proxytypes.PolicyEvent{
			EventType: "blocked",
			Severity:  proxytypes.SeverityWarning,
		},
	})
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "blocked", line["event_type"])
	assert.Equal(t, "warning", line["severity"])
}

func TestNameIsStdout(t *testing.T) {
	assert.Equal(t, "stdout", New().Name())
}

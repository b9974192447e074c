package httpfront

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthien-gate/policyproxy/pkg/policy"
	"github.com/luthien-gate/policyproxy/pkg/policyregistry"
	"github.com/luthien-gate/policyproxy/pkg/proxytypes"
	"github.com/luthien-gate/policyproxy/pkg/upstream"
)

func newTestHandler(chunks []proxytypes.Chunk) *Handler {
	policies := policyregistry.New(policy.NewPassthroughPolicy())
	client := &upstream.FixtureClient{Chunks: chunks}
	return New(policies, client, nil, nil, time.Second)
}

func TestServeOpenAIChatCompletionsStreamsSSE(t *testing.T) {
	h := newTestHandler([]proxytypes.Chunk{
		{ID: "c1", Model: "gpt-test", Choices: []proxytypes.Choice{{Delta: proxytypes.Delta{Content: "hi", HasContent: true}}}},
		{ID: "c1", Model: "gpt-test", Choices: []proxytypes.Choice{{FinishReason: proxytypes.FinishReasonStop, HasFinish: true}}},
	})

	body := `{"model":"gpt-test","messages":[{"role":"user","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeOpenAIChatCompletions(rec, req)

	resp := rec.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	out := rec.Body.String()
	assert.True(t, strings.Contains(out, `"content":"hi"`))
	assert.True(t, strings.Contains(out, "[DONE]"))
}

func TestServeOpenAIChatCompletionsRejectsMissingModel(t *testing.T) {
	h := newTestHandler(nil)

	body := `{"model":"","messages":[{"role":"user","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeOpenAIChatCompletions(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Result().StatusCode)
}

func TestServeAnthropicMessagesStreamsLifecycleEvents(t *testing.T) {
	h := newTestHandler([]proxytypes.Chunk{
		{ID: "c1", Model: "claude-test", Choices: []proxytypes.Choice{{Delta: proxytypes.Delta{Content: "hi", HasContent: true}}}},
		{ID: "c1", Model: "claude-test", Choices: []proxytypes.Choice{{FinishReason: proxytypes.FinishReasonStop, HasFinish: true}}},
	})

	body := `{"model":"claude-test","messages":[{"role":"user","content":"hello"}],"max_tokens":64}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeAnthropicMessages(rec, req)

	out := rec.Body.String()
	assert.True(t, strings.Contains(out, "message_start"))
	assert.True(t, strings.Contains(out, "content_block_delta"))
	assert.True(t, strings.Contains(out, "message_stop"))
}

func TestServeOpenAIChatCompletionsRejectsMalformedJSON(t *testing.T) {
	h := newTestHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()

	h.ServeOpenAIChatCompletions(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Result().StatusCode)
}

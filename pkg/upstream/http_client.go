package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/luthien-gate/policyproxy/pkg/orchestrator"
	"github.com/luthien-gate/policyproxy/pkg/proxyerr"
	"github.com/luthien-gate/policyproxy/pkg/proxytypes"
	"github.com/luthien-gate/policyproxy/pkg/sse"
)

// HTTPClient dispatches a request to a real OpenAI-wire-compatible vendor
// endpoint and adapts its SSE stream into an orchestrator.Source.
//
// Adapted from the teacher's pkg/internal/http/client.go (Config struct
// with BaseURL/Headers/Timeout, a shared *http.Client with tuned
// transport pooling) — generalized from "call one named AI-SDK provider
// endpoint" to "post every transaction to one configured vendor base
// URL," and from buffering a single JSON response to driving an SSE
// stream chunk-by-chunk.
type HTTPClient struct {
	BaseURL string
	APIKey  string
	client  *http.Client
}

// NewHTTPClient returns an HTTPClient posting to baseURL with the given
// bearer token, using a pooled transport tuned the way the teacher's
// DefaultHTTPClient is.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		client: &http.Client{
			Timeout: 0, // streaming responses have no fixed duration; the
			// orchestrator's keepalive deadline governs liveness instead.
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// openAIWireRequest is the minimal request shape sent upstream; unknown
// fields on proxytypes.Request are not modeled since the core never needs
// to round-trip provider-specific request extensions (spec.md §9's
// "ad-hoc JSON payloads" note applies to responses, not this boundary).
type openAIWireRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIWireMessage `json:"messages"`
	Stream      bool                `json:"stream"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
	TopP        *float64            `json:"top_p,omitempty"`
}

type openAIWireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func toWireRequest(req proxytypes.Request) openAIWireRequest {
	wire := openAIWireRequest{
		Model:       req.Model,
		Stream:      true,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	for _, m := range req.Messages {
		var text string
		for _, part := range m.Content {
			if part.Type == proxytypes.ContentPartText {
				text += part.Text
			}
		}
		wire.Messages = append(wire.Messages, openAIWireMessage{Role: string(m.Role), Content: text})
	}
	return wire
}

// Stream issues the upstream POST and returns a Source that parses SSE
// frames into canonical chunks as the orchestrator pulls them — no
// response is buffered in full, per spec.md §1's Non-goals.
func (c *HTTPClient) Stream(ctx context.Context, req proxytypes.Request) (orchestrator.Source, error) {
	body, err := json.Marshal(toWireRequest(req))
	if err != nil {
		return nil, proxyerr.Wrap(proxyerr.KindInternal, "marshal upstream request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, proxyerr.Wrap(proxyerr.KindInternal, "build upstream request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, proxyerr.Wrap(proxyerr.KindUpstream, "upstream request failed", err)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, proxyerr.New(proxyerr.KindUpstream, fmt.Sprintf("upstream returned status %d", resp.StatusCode))
	}

	return &httpSource{resp: resp, parser: sse.NewParser(resp.Body)}, nil
}

// httpSource adapts an SSE response body into an orchestrator.Source,
// one chunk per `data:` frame, stopping at the OpenAI `[DONE]` sentinel.
type httpSource struct {
	resp   *http.Response
	parser *sse.Parser
}

func (s *httpSource) Next(ctx context.Context) (proxytypes.Chunk, bool, error) {
	select {
	case <-ctx.Done():
		return proxytypes.Chunk{}, false, ctx.Err()
	default:
	}

	event, err := s.parser.Next()
	if err != nil {
		if parseErr := s.parser.Err(); parseErr != nil {
			return proxytypes.Chunk{}, false, proxyerr.Wrap(proxyerr.KindUpstream, "upstream stream read failed", parseErr)
		}
		return proxytypes.Chunk{}, false, nil // clean EOF
	}
	if sse.IsDone(event) {
		return proxytypes.Chunk{}, false, nil
	}

	var chunk proxytypes.Chunk
	if err := json.Unmarshal([]byte(event.Data), &chunk); err != nil {
		return proxytypes.Chunk{}, false, proxyerr.Wrap(proxyerr.KindProtocol, "malformed upstream chunk", err)
	}
	return chunk, true, nil
}

func (s *httpSource) Close() {
	s.resp.Body.Close()
}

// Package httpfront wires the core streaming policy pipeline behind plain
// net/http handlers, so any framework that can adapt an http.Handler
// (chi natively, gin/echo/fiber via their wrap helpers) can front it.
// spec.md §1 places "HTTP request parsing and routing" outside the core;
// this package is exactly that external collaborator, at the boundary
// named in §6.
package httpfront

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/luthien-gate/policyproxy/pkg/clientformat"
	"github.com/luthien-gate/policyproxy/pkg/convert"
	"github.com/luthien-gate/policyproxy/pkg/observability"
	"github.com/luthien-gate/policyproxy/pkg/orchestrator"
	"github.com/luthien-gate/policyproxy/pkg/policyregistry"
	"github.com/luthien-gate/policyproxy/pkg/proxyerr"
	"github.com/luthien-gate/policyproxy/pkg/proxytypes"
	"github.com/luthien-gate/policyproxy/pkg/recorder"
	"github.com/luthien-gate/policyproxy/pkg/reqvalidate"
	"github.com/luthien-gate/policyproxy/pkg/sse"
	"github.com/luthien-gate/policyproxy/pkg/upstream"
)

// Handler serves both the OpenAI and the Anthropic wire protocols,
// driving every streaming request through the same core pipeline.
type Handler struct {
	Policies      *policyregistry.Registry
	Upstream      upstream.Client
	Fanout        *observability.Fanout
	Tracer        trace.Tracer
	StreamTimeout time.Duration

	// EgressRateLimit, if positive, bounds how fast chunks reach any one
	// client, independent of the keepalive deadline — a fresh token
	// bucket per transaction, not a shared one, since transactions must
	// not compete with each other for an egress allowance. Zero leaves
	// egress unthrottled.
	EgressRateLimit rate.Limit
	EgressBurst     int
}

// New returns a Handler. A nil Fanout or Tracer is valid: records/spans
// are then simply not emitted.
func New(policies *policyregistry.Registry, client upstream.Client, fanout *observability.Fanout, tracer trace.Tracer, streamTimeout time.Duration) *Handler {
	return &Handler{Policies: policies, Upstream: client, Fanout: fanout, Tracer: tracer, StreamTimeout: streamTimeout}
}

// ServeOpenAIChatCompletions implements POST /v1/chat/completions.
func (h *Handler) ServeOpenAIChatCompletions(w http.ResponseWriter, r *http.Request) {
	var wire openAIWireRequest
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeError(w, proxyerr.Wrap(proxyerr.KindValidation, "malformed request body", err))
		return
	}
	req := openAIWireRequestToInternal(wire)
	h.serve(w, r, proxytypes.WireFormatOpenAI, req)
}

// ServeAnthropicMessages implements POST /v1/messages.
func (h *Handler) ServeAnthropicMessages(w http.ResponseWriter, r *http.Request) {
	var wire convert.AnthropicRequest
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeError(w, proxyerr.Wrap(proxyerr.KindValidation, "malformed request body", err))
		return
	}
	req := convert.AnthropicRequestToInternal(wire)
	h.serve(w, r, proxytypes.WireFormatAnthropic, req)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, wireFormat proxytypes.WireFormat, req proxytypes.Request) {
	if err := reqvalidate.Validate(req.Model, len(req.Messages)); err != nil {
		writeError(w, err)
		return
	}

	tx := proxytypes.NewTransaction(uuid.NewString(), wireFormat, req.Model, traceIDFromRequest(r))

	p := h.Policies.MustActive()
	rewritten, err := p.OnRequest(req, policyContextFor(tx, h.Fanout))
	if err != nil {
		writeError(w, proxyerr.Wrap(proxyerr.KindPolicyRejection, "policy rejected request", err))
		return
	}
	req = rewritten

	h.emitPipeline(r.Context(), tx, observability.StageClientRequestReceived, req)

	source, err := h.Upstream.Stream(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	h.emitPipeline(r.Context(), tx, observability.StageUpstreamRequestSent, req)

	rec := recorder.New(tx.ID, tx.TraceID, h.Fanout)
	source = &recordingSource{Source: source, record: rec.RecordIngress}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writer := sse.NewWriter(w)
	openAIFormatter := clientformat.NewOpenAIFormatter(writer)
	anthropicFormatter := clientformat.NewAnthropicFormatter(writer, tx.ID)

	emit := func(chunk proxytypes.Chunk) {
		rec.RecordEgress(chunk)
		switch wireFormat {
		case proxytypes.WireFormatAnthropic:
			_ = anthropicFormatter.WriteChunk(chunk)
		default:
			_ = openAIFormatter.WriteChunk(chunk)
		}
	}

	orch := orchestrator.New(p, tx, source, emit, func(evt proxytypes.PolicyEvent) {
		if h.Fanout != nil {
			h.Fanout.EmitPolicyEvent(r.Context(), evt)
		}
	}, h.StreamTimeout)
	if h.Tracer != nil {
		orch.WithTracer(h.Tracer)
	}
	if h.EgressRateLimit > 0 {
		orch.WithEgressRateLimit(rate.NewLimiter(h.EgressRateLimit, h.EgressBurst))
	}

	result := orch.Run(r.Context())

	switch wireFormat {
	case proxytypes.WireFormatAnthropic:
		_ = anthropicFormatter.Finish()
	default:
		_ = openAIFormatter.WriteDone()
	}

	rec.Finalize(r.Context())
	h.emitPipeline(r.Context(), tx, observability.StageClientResponseSent, result)
}

func (h *Handler) emitPipeline(ctx context.Context, tx *proxytypes.Transaction, stage observability.PipelineStage, payload any) {
	if h.Fanout == nil {
		return
	}
	h.Fanout.EmitPipeline(ctx, tx.ID, tx.TraceID, stage, payload)
}

func traceIDFromRequest(r *http.Request) string {
	if id := r.Header.Get("X-Trace-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

func writeError(w http.ResponseWriter, err error) {
	kind := proxyerr.KindOf(err)
	status := proxyerr.HTTPStatus(kind)
	if status == 0 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"type":    string(kind),
			"message": err.Error(),
		},
	})
}

// Package orchestrator implements the Streaming Orchestrator (spec.md
// §4.4): it binds an upstream chunk source, the policy executor, and an
// egress queue into one bounded, cancellable concurrent pipeline per
// transaction.
//
// Grounded on original_source/.../v2/streaming/policy_executor/timeout_monitor.py
// for the keepalive-deadline design (a monotonic deadline, reset by any of
// three events, a single time.Timer) and on the teacher's
// pkg/ai/stream.go goroutine+channel+select pattern (nextChunk/Chunks) for
// the forward-task shape.
package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/luthien-gate/policyproxy/internal/telemetry"
	"github.com/luthien-gate/policyproxy/pkg/policy"
	"github.com/luthien-gate/policyproxy/pkg/proxyerr"
	"github.com/luthien-gate/policyproxy/pkg/proxytypes"
)

// State is the orchestrator's lifecycle state machine (spec.md §4.4).
type State string

const (
	StateActive State = "active"
	StateEnded  State = "ended"
	StateFailed State = "failed"
)

// DefaultChannelCapacity is the bound on the internal control-message
// channel between the forward task and the egress consumer, per spec.md
// §9's concurrency design note.
const DefaultChannelCapacity = 64

// controlKind tags one message on the internal channel (spec.md §4.4:
// CHUNK, KEEPALIVE, END, ERROR).
type controlKind int

const (
	controlChunk controlKind = iota
	controlKeepalive
	controlEnd
	controlError
)

type control struct {
	kind  controlKind
	chunk proxytypes.Chunk
	err   error
}

// Source yields upstream chunks. Grounded on the teacher's StreamTextResult
// iterator: a pull-based Next() rather than a bare channel, so the
// orchestrator controls exactly when reads happen and can stop cleanly on
// cancellation.
type Source interface {
	// Next returns the next chunk, or ok=false when the upstream has
	// drained cleanly (the io.EOF case, without importing io for one
	// sentinel).
	Next(ctx context.Context) (chunk proxytypes.Chunk, ok bool, err error)
	// Close releases any resources; safe to call multiple times.
	Close()
}

// Result is what Run returns once the transaction reaches a terminal
// state.
type Result struct {
	State        State
	Err          error
	FinishReason proxytypes.FinishReason
}

// Orchestrator drives one transaction's pipeline: upstream source →
// policy executor → egress callback, enforcing the keepalive deadline.
type Orchestrator struct {
	exec     *policy.Executor
	source   Source
	deadline *deadlineTimer
	tracer   trace.Tracer
	tx       *proxytypes.Transaction

	// egressLimiter, if set, throttles pushEgress to a steady rate — an
	// operator-facing knob distinct from the keepalive deadline, which
	// only detects the absence of activity, not an excess of it.
	egressLimiter *rate.Limiter
	// runCtx is set once at the top of Run, before the forward/consume
	// goroutines that are the only callers of pushEgress start; safe to
	// read thereafter without synchronization.
	runCtx context.Context
}

// New returns an Orchestrator for one transaction, wiring pushEgress and
// the policy's keepalive signal so both reset the inactivity deadline
// (spec.md §4.4's three reset events: an upstream chunk, an explicit
// keepalive, or an egress push). A timeout of zero disables the
// deadline entirely.
func New(
	p policy.Policy,
	tx *proxytypes.Transaction,
	source Source,
	pushEgress func(proxytypes.Chunk),
	emitEvent func(proxytypes.PolicyEvent),
	timeout time.Duration,
) *Orchestrator {
	deadline := newDeadlineTimer(timeout)

	o := &Orchestrator{
		source:   source,
		deadline: deadline,
		tracer:   noop.NewTracerProvider().Tracer(telemetry.TracerName),
		tx:       tx,
		runCtx:   context.Background(),
	}

	wrappedPush := func(c proxytypes.Chunk) {
		deadline.Reset()
		if o.egressLimiter != nil {
			_ = o.egressLimiter.Wait(o.runCtx)
			deadline.Reset()
		}
		if pushEgress != nil {
			pushEgress(c)
		}
	}
	keepalive := func() { deadline.Reset() }

	o.exec = policy.NewExecutor(p, tx, wrappedPush, emitEvent, keepalive)
	return o
}

// WithEgressRateLimit installs a token-bucket limiter bounding how fast
// chunks reach the client, independent of how fast the policy produces
// them. A nil or zero-valued limit leaves egress unthrottled.
func (o *Orchestrator) WithEgressRateLimit(limiter *rate.Limiter) *Orchestrator {
	if limiter != nil {
		o.egressLimiter = limiter
	}
	return o
}

// WithTracer installs a tracer the orchestrator opens one span on for the
// life of Run; no child spans are opened per chunk or per hook. The
// zero value (never calling this) keeps tracing a no-op, matching the
// teacher's "telemetry disabled by default" stance.
func (o *Orchestrator) WithTracer(tracer trace.Tracer) *Orchestrator {
	if tracer != nil {
		o.tracer = tracer
	}
	return o
}

// State returns the live StreamState, for callers that need read access
// mid-stream.
func (o *Orchestrator) State() *proxytypes.StreamState { return o.exec.State() }

// Run drives the transaction to completion or failure. It blocks until the
// stream ends, times out, the context is cancelled, or a policy hook
// errors. On any exit it invokes the policy's on_streaming_policy_complete
// hook exactly once, per spec.md §4.4's cancellation contract, before
// returning.
func (o *Orchestrator) Run(ctx context.Context) Result {
	defer o.deadline.Stop()

	ctx, span := telemetry.StartTransactionSpan(ctx, o.tracer, o.tx)
	defer span.End()
	o.runCtx = ctx

	ctrlCh := make(chan control, DefaultChannelCapacity)
	forwardCtx, cancelForward := context.WithCancel(ctx)
	defer cancelForward()

	go o.forward(forwardCtx, ctrlCh)

	result := o.consume(ctx, ctrlCh, cancelForward)

	if completeErr := o.exec.Complete(); completeErr != nil && result.Err == nil {
		result.Err = completeErr
		result.State = StateFailed
	}

	span.SetAttributes(stateAttribute(result.State))
	telemetry.RecordError(span, result.Err)

	return result
}

func stateAttribute(s State) attribute.KeyValue {
	return attribute.String("proxy.orchestrator_state", string(s))
}

// forward reads from the upstream source and posts CHUNK/END/ERROR
// control messages, until the source drains or forwardCtx is cancelled.
func (o *Orchestrator) forward(ctx context.Context, ctrlCh chan<- control) {
	defer o.source.Close()
	for {
		chunk, ok, err := o.source.Next(ctx)
		if err != nil {
			select {
			case ctrlCh <- control{kind: controlError, err: err}:
			case <-ctx.Done():
			}
			return
		}
		if !ok {
			select {
			case ctrlCh <- control{kind: controlEnd}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case ctrlCh <- control{kind: controlChunk, chunk: chunk}:
		case <-ctx.Done():
			return
		}
	}
}

// consume is the deadline-aware loop: it blocks on either the next
// control message or the keepalive deadline, whichever comes first.
func (o *Orchestrator) consume(ctx context.Context, ctrlCh <-chan control, cancelForward context.CancelFunc) Result {
	for {
		select {
		case <-ctx.Done():
			cancelForward()
			return Result{State: StateFailed, Err: ctx.Err()}

		case <-o.deadline.C():
			cancelForward()
			return Result{State: StateFailed, Err: proxyerr.New(proxyerr.KindTimeout, "stream inactivity deadline exceeded")}

		case msg, chOpen := <-ctrlCh:
			if !chOpen {
				return Result{State: StateFailed, Err: proxyerr.New(proxyerr.KindProtocol, "control channel closed without END or ERROR")}
			}
			switch msg.kind {
			case controlChunk:
				o.deadline.Reset()
				finished, err := o.exec.ProcessChunk(msg.chunk)
				if err != nil {
					cancelForward()
					return Result{State: StateFailed, Err: err}
				}
				if finished {
					return Result{State: StateEnded, FinishReason: o.exec.State().FinishReason}
				}

			case controlKeepalive:
				o.deadline.Reset()

			case controlEnd:
				return Result{State: StateEnded, FinishReason: o.exec.State().FinishReason}

			case controlError:
				cancelForward()
				return Result{State: StateFailed, Err: proxyerr.Wrap(proxyerr.KindUpstream, "upstream source failed", msg.err)}
			}
		}
	}
}

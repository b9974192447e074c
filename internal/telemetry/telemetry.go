// Package telemetry wires OpenTelemetry spans around a transaction's
// pipeline stages: one span per transaction, child spans per policy hook
// and per pipeline stage.
//
// Adapted from the teacher's pkg/telemetry (an AI-SDK-wide span helper
// keyed on provider/model attributes) to a proxy-transaction-shaped one:
// Settings drops RecordInputs/RecordOutputs in favor of a single
// RecordPayloads flag, span attributes are keyed by
// transaction/trace/wire-format rather than AI-SDK model-provider
// identifiers, and TransactionAttributes takes a *proxytypes.Transaction
// instead of a provider string and a header map.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/luthien-gate/policyproxy/pkg/proxytypes"
)

// TracerName identifies the proxy's tracer among others in a shared
// OTel pipeline.
const TracerName = "policyproxy"

// Settings configures whether and how the proxy emits spans. Telemetry is
// disabled by default.
type Settings struct {
	IsEnabled bool

	// RecordPayloads controls whether request/response/chunk bodies are
	// attached to spans as attributes. Disable in deployments where
	// message content must not leave the process boundary.
	RecordPayloads bool

	// Tracer overrides the tracer used; nil selects the global tracer.
	Tracer trace.Tracer
}

// DefaultSettings returns telemetry disabled, matching the teacher's
// "disabled by default, must be explicitly enabled" stance.
func DefaultSettings() *Settings {
	return &Settings{IsEnabled: false, RecordPayloads: false}
}

// GetTracer returns a no-op tracer when disabled, settings.Tracer when
// set, or the global tracer otherwise.
func GetTracer(settings *Settings) trace.Tracer {
	if settings == nil || !settings.IsEnabled {
		return noop.NewTracerProvider().Tracer(TracerName)
	}
	if settings.Tracer != nil {
		return settings.Tracer
	}
	return otel.Tracer(TracerName)
}

// TransactionAttributes returns the base span attributes every span for
// one transaction carries.
func TransactionAttributes(tx *proxytypes.Transaction) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("proxy.transaction_id", tx.ID),
		attribute.String("proxy.trace_id", tx.TraceID),
		attribute.String("proxy.wire_format", string(tx.WireFormat)),
		attribute.String("proxy.model", tx.Model),
	}
}

// StartTransactionSpan opens the one root span for a transaction's
// pipeline run.
func StartTransactionSpan(ctx context.Context, tracer trace.Tracer, tx *proxytypes.Transaction) (context.Context, trace.Span) {
	return tracer.Start(ctx, "proxy.transaction",
		trace.WithAttributes(TransactionAttributes(tx)...))
}

// StartStageSpan opens a child span for one named pipeline stage (a hook
// invocation or a stage transition) under the transaction's root span.
func StartStageSpan(ctx context.Context, tracer trace.Tracer, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// RecordError records err on span and marks it failed, unless err is nil.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// EndOK ends span with an OK status, for the success path of a stage that
// wants an explicit status rather than relying on the default "unset".
func EndOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
	span.End()
}

// NewOTLPTracerProvider builds an sdktrace.TracerProvider exporting spans
// over OTLP/HTTP to endpoint. Callers must Shutdown the returned provider
// on process exit to flush pending spans.
//
// Adapted from the pack's agentsdk-go/pkg/api/otel.go NewTracer: dropped
// the sample-rate knob (the proxy always samples at 1.0; a gateway that
// forwards every policy decision has no traffic volume high enough to
// warrant head-based sampling) and the semconv dependency, setting the
// service-name resource attribute directly.
func NewOTLPTracerProvider(ctx context.Context, endpoint, serviceName string) (*sdktrace.TracerProvider, error) {
	if serviceName == "" {
		serviceName = "policyproxy"
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create otlp exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)
	return provider, nil
}

// Command policyproxy runs the streaming policy pipeline behind a
// chi router, the way the pack's batalabs-muxd cmd/muxd main wires its
// store and HTTP layer together: read config from the environment,
// construct the storage/observability backends it names, build the
// router, serve until signaled.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/luthien-gate/policyproxy/internal/telemetry"
	"github.com/luthien-gate/policyproxy/pkg/config"
	"github.com/luthien-gate/policyproxy/pkg/httpfront"
	"github.com/luthien-gate/policyproxy/pkg/observability"
	"github.com/luthien-gate/policyproxy/pkg/observability/durablesink"
	"github.com/luthien-gate/policyproxy/pkg/observability/pubsubsink"
	"github.com/luthien-gate/policyproxy/pkg/observability/stdoutsink"
	"github.com/luthien-gate/policyproxy/pkg/policy"
	"github.com/luthien-gate/policyproxy/pkg/policyregistry"
	"github.com/luthien-gate/policyproxy/pkg/upstream"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	cfg := config.FromEnv()

	fanout := buildFanout(cfg)
	tracer := buildTracer(cfg)

	policies := policyregistry.New(policy.NewBufferingPolicy("default"))
	client := upstream.NewHTTPClient(cfg.UpstreamBaseURL, cfg.UpstreamAPIKey)
	handler := httpfront.New(policies, client, fanout, tracer, cfg.StreamTimeout)
	if cfg.EgressRateLimitPerSecond > 0 {
		handler.EgressRateLimit = rate.Limit(cfg.EgressRateLimitPerSecond)
		handler.EgressBurst = cfg.EgressRateLimitBurst
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Trace-Id"},
	}))
	if cfg.IngressRateLimitPerSecond > 0 {
		r.Use(rateLimitMiddleware(rate.Limit(cfg.IngressRateLimitPerSecond), cfg.IngressRateLimitBurst))
	}

	r.Post("/v1/chat/completions", handler.ServeOpenAIChatCompletions)
	r.Post("/v1/messages", handler.ServeAnthropicMessages)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("policyproxy listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func buildFanout(cfg config.Config) *observability.Fanout {
	fanout := observability.New(func(sinkName string, rec observability.Record, err error) {
		log.Warn().Str("sink", sinkName).Str("transaction_id", rec.TransactionID).Err(err).Msg("observability sink write failed")
	})
	fanout.Route(stdoutsink.New(), observability.RecordTypePipeline, observability.RecordTypePolicy, observability.RecordTypeGeneric)

	if cfg.DurableStorePath != "" {
		sink, err := durablesink.Open(cfg.DurableStorePath)
		if err != nil {
			log.Error().Err(err).Msg("durable observability sink disabled")
		} else {
			fanout.Route(sink, observability.RecordTypePipeline, observability.RecordTypePolicy, observability.RecordTypeGeneric)
		}
	}

	if cfg.NATSURL != "" {
		conn, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			log.Error().Err(err).Msg("pub/sub observability sink disabled")
		} else {
			sink := pubsubsink.New(conn, log.Logger)
			fanout.Route(sink, observability.RecordTypePipeline, observability.RecordTypePolicy, observability.RecordTypeGeneric)
		}
	}

	return fanout
}

func buildTracer(cfg config.Config) trace.Tracer {
	if cfg.OTLPEndpoint == "" {
		return noop.NewTracerProvider().Tracer(telemetry.TracerName)
	}
	provider, err := telemetry.NewOTLPTracerProvider(context.Background(), cfg.OTLPEndpoint, "policyproxy")
	if err != nil {
		log.Error().Err(err).Msg("otlp tracing disabled")
		return noop.NewTracerProvider().Tracer(telemetry.TracerName)
	}
	return provider.Tracer(telemetry.TracerName)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func rateLimitMiddleware(limit rate.Limit, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(limit, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

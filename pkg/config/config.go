// Package config reads the proxy's runtime configuration from the
// environment, the way the teacher's provider configs (e.g.
// pkg/providers/moonshot.Config) are populated from an API-key
// environment variable rather than a config file or flags.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds everything cmd/policyproxy needs to start listening.
type Config struct {
	// ListenAddr is the address the HTTP server binds, e.g. ":8080".
	ListenAddr string

	// UpstreamBaseURL is the vendor endpoint requests are forwarded to.
	UpstreamBaseURL string
	// UpstreamAPIKey authenticates the upstream call.
	UpstreamAPIKey string

	// StreamTimeout bounds inactivity between chunks before the
	// orchestrator fails a transaction (spec.md §4.4). Zero disables it.
	StreamTimeout time.Duration

	// IngressRateLimitPerSecond bounds accepted requests per second at
	// the HTTP boundary; zero disables rate limiting.
	IngressRateLimitPerSecond float64
	// IngressRateLimitBurst is the token-bucket burst size.
	IngressRateLimitBurst int

	// DurableStorePath is the sqlite database file the durable
	// observability sink writes to. Empty disables the durable sink.
	DurableStorePath string

	// NATSURL, if non-empty, enables the pub/sub observability sink.
	NATSURL string

	// OTLPEndpoint, if non-empty, enables OpenTelemetry trace export.
	OTLPEndpoint string

	// CORSAllowedOrigins is the list of origins go-chi/cors permits.
	CORSAllowedOrigins []string

	// EgressRateLimitPerSecond bounds how fast chunks reach any one
	// client, a fresh token bucket per transaction; zero disables it.
	EgressRateLimitPerSecond float64
	// EgressRateLimitBurst is the per-transaction token-bucket burst size.
	EgressRateLimitBurst int
}

// FromEnv builds a Config from environment variables, applying the same
// defaults a freshly cloned deployment should work with.
func FromEnv() Config {
	return Config{
		ListenAddr:                envOr("POLICYPROXY_LISTEN_ADDR", ":8080"),
		UpstreamBaseURL:            envOr("POLICYPROXY_UPSTREAM_BASE_URL", "https://api.openai.com"),
		UpstreamAPIKey:             os.Getenv("POLICYPROXY_UPSTREAM_API_KEY"),
		StreamTimeout:              envDuration("POLICYPROXY_STREAM_TIMEOUT", 60*time.Second),
		IngressRateLimitPerSecond:  envFloat("POLICYPROXY_RATE_LIMIT_PER_SECOND", 50),
		IngressRateLimitBurst:      envInt("POLICYPROXY_RATE_LIMIT_BURST", 100),
		DurableStorePath:           os.Getenv("POLICYPROXY_DURABLE_STORE_PATH"),
		NATSURL:                    os.Getenv("POLICYPROXY_NATS_URL"),
		OTLPEndpoint:               os.Getenv("POLICYPROXY_OTLP_ENDPOINT"),
		CORSAllowedOrigins:         envList("POLICYPROXY_CORS_ALLOWED_ORIGINS", []string{"*"}),
		EgressRateLimitPerSecond:   envFloat("POLICYPROXY_EGRESS_RATE_LIMIT_PER_SECOND", 0),
		EgressRateLimitBurst:       envInt("POLICYPROXY_EGRESS_RATE_LIMIT_BURST", 20),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}

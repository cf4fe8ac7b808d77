package telemetry

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// smokeConfigFromEnv assembles an OTLP config from the environment,
// skipping the test unless a collector endpoint is configured.
func smokeConfigFromEnv(t *testing.T) Config {
	t.Helper()

	if os.Getenv("PRAXIS_OTLP_SMOKE_TEST") != "1" {
		t.Skip("set PRAXIS_OTLP_SMOKE_TEST=1 to run")
	}
	endpoint := os.Getenv("PRAXIS_TELEMETRY_OTLP_ENDPOINT")
	if endpoint == "" {
		t.Skip("set PRAXIS_TELEMETRY_OTLP_ENDPOINT for OTLP smoke test")
	}

	cfg := Config{
		Exporter:     "otlp",
		OTLPEndpoint: endpoint,
		OTLPInsecure: os.Getenv("PRAXIS_TELEMETRY_OTLP_INSECURE") == "true",
	}
	if raw := os.Getenv("PRAXIS_TELEMETRY_OTLP_TIMEOUT_SECONDS"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			cfg.OTLPTimeoutSeconds = parsed
		}
	}
	return cfg
}

// TestOTLPExportSmoke pushes one span and one counter increment at a
// live collector. It is gated behind environment variables and never
// runs in a plain test invocation.
func TestOTLPExportSmoke(t *testing.T) {
	cfg := smokeConfigFromEnv(t)

	shutdown, err := InitWithConfig("praxis-smoke", "dev", cfg)
	if err != nil {
		t.Fatalf("InitWithConfig: %v", err)
	}

	tracer := otel.Tracer("praxis/smoke")
	ctx, span := tracer.Start(context.Background(), "smoke.export")
	span.SetAttributes(attribute.String("praxis.smoke", "otlp"))
	span.End()

	meter := otel.Meter("praxis/smoke")
	if counter, err := meter.Int64Counter("praxis.smoke.exports"); err == nil {
		counter.Add(ctx, 1, metric.WithAttributes(attribute.String("praxis.smoke", "otlp")))
	}

	// Give the periodic reader a chance to export before shutdown.
	time.Sleep(2 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

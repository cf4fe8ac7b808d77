package telemetry

import (
	"context"
	"testing"
)

func TestInitStdoutRoundTrip(t *testing.T) {
	shutdown, err := Init("praxis-test", "v0.0.1")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitRejectsUnknownExporter(t *testing.T) {
	if _, err := InitWithConfig("praxis-test", "v0.0.1", Config{Exporter: "jaeger"}); err == nil {
		t.Fatal("want error for unknown exporter")
	}
}

func TestInitOTLPRequiresEndpoint(t *testing.T) {
	if _, err := InitWithConfig("praxis-test", "v0.0.1", Config{Exporter: "otlp"}); err == nil {
		t.Fatal("want error for missing otlp endpoint")
	}
}

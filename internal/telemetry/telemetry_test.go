package telemetry

import (
	"context"
	"testing"
)

func TestSetup_DisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetup_InvalidSampleRate(t *testing.T) {
	_, err := Setup(context.Background(), Config{Endpoint: "localhost:4318", SampleRate: 2})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestConfig_Defaults(t *testing.T) {
	var c Config
	c.defaults()
	if c.ServiceName != "companion" || c.SampleRate != 1.0 {
		t.Fatalf("defaults = %+v", c)
	}
	if c.Enabled() {
		t.Fatal("empty endpoint should disable export")
	}
}

func TestTracer_StartsSpans(t *testing.T) {
	_, span := Tracer("test").Start(context.Background(), "op")
	defer span.End()
	if span == nil {
		t.Fatal("nil span")
	}
}

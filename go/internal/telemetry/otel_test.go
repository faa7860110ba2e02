package telemetry

import (
	"context"
	"testing"
)

func TestSetupIsNoopWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}

func TestSetupCreatesProvider(t *testing.T) {
	// non-routable, so nothing is exported
	shutdown, err := Setup(context.Background(), Config{Endpoint: "http://192.0.2.1:4318", SampleRatio: 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

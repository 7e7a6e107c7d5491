package tracing

import (
	"context"
	"testing"
)

func TestDisabledProvider(t *testing.T) {
	provider, err := NewProvider(Config{Enabled: false})
	if err != nil {
		t.Fatalf("disabled provider should not fail: %v", err)
	}
	if provider.IsEnabled() {
		t.Error("provider should report disabled")
	}

	tracer := provider.GetTracer("test")
	_, span := tracer.Start(context.Background(), "noop")
	span.End()

	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("disabled shutdown should be a no-op: %v", err)
	}
}

func TestEnabledWithoutEndpoint(t *testing.T) {
	if _, err := NewProvider(Config{Enabled: true}); err == nil {
		t.Error("expected error when enabled without endpoint")
	}
}

package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/nextlevelbuilder/chatmover/internal/config"
)

func TestSetupDisabledLeavesGlobalAlone(t *testing.T) {
	before := otel.GetTracerProvider()
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Error("disabled setup replaced the global tracer provider")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("no-op shutdown: %v", err)
	}
}

func TestSetupInstallsProvider(t *testing.T) {
	for _, protocol := range []string{"http", "grpc"} {
		t.Run(protocol, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), config.TelemetryConfig{
				Enabled:     true,
				Protocol:    protocol,
				Endpoint:    "127.0.0.1:4318",
				Insecure:    true,
				ServiceName: "chatmover-test",
				SampleRatio: 0.5,
			})
			if err != nil {
				t.Fatalf("Setup: %v", err)
			}
			if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
				t.Errorf("global provider is %T, want the SDK provider", otel.GetTracerProvider())
			}
			// Nothing listens on the endpoint; shutdown only flushes an
			// empty batch, so its error is irrelevant here.
			shutdown(context.Background())
		})
	}
}

func TestSetupRejectsUnknownProtocol(t *testing.T) {
	_, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:  true,
		Protocol: "carrier-pigeon",
	})
	if err == nil {
		t.Fatal("unknown protocol accepted")
	}
}

package observability

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tbourn/go-challenge-backend/internal/config"
)

func preserveOTelGlobals(t *testing.T) {
	t.Helper()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
}

func enabledConfig(name string) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    true,
		Endpoint:    "localhost:4317",
		ServiceName: name,
		SampleRatio: 1.0,
	}
}

// useInMemoryExporter swaps the OTLP exporter for an in-memory one.
func useInMemoryExporter(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	mem := tracetest.NewInMemoryExporter()
	orig := newExporter
	newExporter = func(context.Context, config.OTELConfig) (sdktrace.SpanExporter, error) { return mem, nil }
	t.Cleanup(func() { newExporter = orig })
	return mem
}

func TestSetupOTel_DisabledIsNoOp(t *testing.T) {
	preserveOTelGlobals(t)
	before := otel.GetTracerProvider()

	cfg := enabledConfig("svc")
	cfg.Enabled = false
	shutdown, err := SetupOTel(context.Background(), cfg, "v0")
	if err != nil || shutdown == nil {
		t.Fatalf("disabled: shutdown=%v err=%v", shutdown != nil, err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("tracer provider replaced while disabled")
	}
}

func TestSetupOTel_RealExporter_InsecureAndTLS(t *testing.T) {
	for _, insecure := range []bool{true, false} {
		preserveOTelGlobals(t)
		cfg := enabledConfig("svc")
		cfg.Insecure = insecure

		shutdown, err := SetupOTel(context.Background(), cfg, "v1.2.3")
		if err != nil {
			t.Fatalf("insecure=%v: %v", insecure, err)
		}
		if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
			t.Fatalf("insecure=%v: expected sdk tracer provider", insecure)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		if err := shutdown(ctx); err != nil {
			t.Fatalf("insecure=%v: shutdown: %v", insecure, err)
		}
		cancel()
	}
}

func TestSetupOTel_ExportsSpansWithResourceAndPropagates(t *testing.T) {
	preserveOTelGlobals(t)
	mem := useInMemoryExporter(t)

	shutdown, err := SetupOTel(context.Background(), enabledConfig("challenge-api"), "v9")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	ctx, span := otel.Tracer("test").Start(context.Background(), "repo.challenge.create")
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	span.End()
	if !strings.HasPrefix(carrier.Get("traceparent"), "00-") {
		t.Fatalf("expected W3C traceparent, got %q", carrier.Get("traceparent"))
	}

	// Shutdown flushes the batcher.
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	spans := mem.GetSpans()
	if len(spans) != 1 || spans[0].Name != "repo.challenge.create" {
		t.Fatalf("expected one exported span, got %+v", spans)
	}
	var svc string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			svc = kv.Value.AsString()
		}
	}
	if svc != "challenge-api" {
		t.Fatalf("service.name = %q", svc)
	}
}

func TestSetupOTel_FailuresLeaveGlobalsIntact(t *testing.T) {
	cases := []struct {
		name  string
		patch func(t *testing.T)
	}{
		{"exporter", func(t *testing.T) {
			orig := newExporter
			newExporter = func(context.Context, config.OTELConfig) (sdktrace.SpanExporter, error) {
				return nil, errors.New("boom-exporter")
			}
			t.Cleanup(func() { newExporter = orig })
		}},
		{"resource", func(t *testing.T) {
			useInMemoryExporter(t)
			orig := newResource
			newResource = func(context.Context, string, string) (*resource.Resource, error) {
				return nil, errors.New("boom-resource")
			}
			t.Cleanup(func() { newResource = orig })
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			preserveOTelGlobals(t)
			tc.patch(t)
			prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()

			_, err := SetupOTel(context.Background(), enabledConfig("svc"), "v0")
			if err == nil || !strings.Contains(err.Error(), tc.name) {
				t.Fatalf("expected %s error, got %v", tc.name, err)
			}
			if otel.GetTracerProvider() != prevTP || otel.GetTextMapPropagator() != prevProp {
				t.Fatalf("globals changed on failure")
			}
		})
	}
}

func TestSampler(t *testing.T) {
	cases := []struct {
		ratio float64
		want  string
	}{
		{1, "root:AlwaysOnSampler"},
		{2, "root:AlwaysOnSampler"},
		{0, "root:AlwaysOffSampler"},
		{-1, "root:AlwaysOffSampler"},
		{0.25, "root:TraceIDRatioBased{0.25}"},
	}
	for _, tc := range cases {
		if got := sampler(tc.ratio).Description(); !strings.Contains(got, tc.want) {
			t.Fatalf("sampler(%v) = %q; want it to contain %q", tc.ratio, got, tc.want)
		}
	}
}

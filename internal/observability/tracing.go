package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/amoebot-simulator/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultOTLPEndpoint = "localhost:4317"

// SimulationInfo identifies a run on every exported span, so traces of
// different seeds or pin counts can be told apart in one backend.
type SimulationInfo struct {
	Algorithm   string
	Seed        uint64
	PinsPerEdge int
}

func (s SimulationInfo) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int64("amoebot.seed", int64(s.Seed)),
		attribute.Int("amoebot.pins_per_edge", s.PinsPerEdge),
	}
	if s.Algorithm != "" {
		attrs = append(attrs, attribute.String("amoebot.algorithm", s.Algorithm))
	}
	return attrs
}

// TracingConfig governs how tracing is initialised for a simulation run.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string // stdout | otlp
	Endpoint    string // otlp collector address
	SampleRatio float64
	// Writer receives stdout spans; nil means os.Stdout.
	Writer     io.Writer
	Simulation SimulationInfo
}

// WithSimulation returns a copy of c describing the given run.
func (c TracingConfig) WithSimulation(info SimulationInfo) TracingConfig {
	c.Simulation = info
	return c
}

// TracingConfigFromEnv reads SIM_TRACING_ENABLED, SIM_TRACING_EXPORTER,
// SIM_TRACING_SERVICE_NAME, SIM_TRACING_SAMPLE_RATIO and SIM_OTLP_ENDPOINT
// (falling back to OTEL_EXPORTER_OTLP_ENDPOINT).
func TracingConfigFromEnv() TracingConfig {
	return tracingConfigFrom(os.Getenv)
}

func tracingConfigFrom(getenv func(string) string) TracingConfig {
	cfg := TracingConfig{
		ServiceName: "amoebotsim",
		Exporter:    "stdout",
		SampleRatio: 1,
	}
	if enabled, err := strconv.ParseBool(getenv("SIM_TRACING_ENABLED")); err == nil {
		cfg.Enabled = enabled
	}
	if exporter := strings.ToLower(getenv("SIM_TRACING_EXPORTER")); exporter != "" {
		cfg.Exporter = exporter
	}
	if service := getenv("SIM_TRACING_SERVICE_NAME"); service != "" {
		cfg.ServiceName = service
	}
	if ratio, err := strconv.ParseFloat(getenv("SIM_TRACING_SAMPLE_RATIO"), 64); err == nil && ratio >= 0 && ratio <= 1 {
		cfg.SampleRatio = ratio
	}
	cfg.Endpoint = getenv("SIM_OTLP_ENDPOINT")
	if cfg.Endpoint == "" {
		cfg.Endpoint = getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	return cfg
}

// InitTracing installs the global tracer provider and propagators for cfg.
// The returned function flushes and stops the provider.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Debug(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	attrs := append([]attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "amoebot"),
	}, cfg.Simulation.attributes()...)
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	sampler := newSampler(cfg.SampleRatio)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("sampler", sampler.Description()),
		logging.String("algorithm", cfg.Simulation.Algorithm),
		logging.Int("pins_per_edge", cfg.Simulation.PinsPerEdge),
	)
	return tp.Shutdown, nil
}

// newSampler samples every round at ratio 1, none at 0, and follows the
// parent's decision for spans started inside a traced observer request.
func newSampler(ratio float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case ratio >= 1:
		root = sdktrace.AlwaysSample()
	case ratio <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(ratio)
	}
	return sdktrace.ParentBased(root)
}

func newExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout", "":
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(
			stdouttrace.WithWriter(w),
			stdouttrace.WithoutTimestamps(),
		)
	case "otlp", "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	default:
		return nil, fmt.Errorf("unsupported tracing exporter %q", cfg.Exporter)
	}
}

// ShutdownWithTimeout flushes pending spans within five seconds. Failures
// are logged, never returned.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}

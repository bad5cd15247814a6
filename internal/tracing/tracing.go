package tracing

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/osvaldoandrade/dossier/pkg/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
)

// Tracer returns the named tracer of the dossier instrumentation scope.
func Tracer(component string) trace.Tracer {
	return otel.Tracer("dossier/" + component)
}

// Fail marks span as failed with err.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

type Config struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	OTLPInsecure bool
	SampleRatio  float64
}

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// resolve fills blank fields from the OTEL_* environment and clamps the ratio.
func resolve(cfg Config) Config {
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = os.Getenv("OTEL_SERVICE_NAME")
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "dossier"
	}
	if strings.TrimSpace(cfg.OTLPEndpoint) == "" {
		cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	cfg.OTLPEndpoint = grpcTarget(cfg.OTLPEndpoint)
	if cfg.OTLPEndpoint == "" {
		cfg.OTLPEndpoint = "localhost:4317"
	}
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"))); err == nil {
		cfg.OTLPInsecure = v
	}
	if cfg.SampleRatio <= 0 || cfg.SampleRatio > 1 {
		cfg.SampleRatio = 1
	}
	return cfg
}

// Setup installs the global tracer provider. Exporter failures leave
// tracing off rather than failing startup.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (Shutdown, error) {
	if logger == nil {
		logger = slog.Default()
	}
	otel.SetTextMapPropagator(propagation.TraceContext{})
	if !cfg.Enabled {
		return noop, nil
	}
	cfg = resolve(cfg)

	creds := otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, ""))
	if cfg.OTLPInsecure {
		creds = otlptracegrpc.WithInsecure()
	}
	exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint), creds)
	if err != nil {
		logger.Warn("otlp exporter unavailable, tracing disabled", "endpoint", cfg.OTLPEndpoint, "err", err)
		return noop, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		logger.Warn("otel resource merge failed", "err", err)
		res = resource.Default()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	logger.Info("tracing enabled", "service", cfg.ServiceName, "endpoint", cfg.OTLPEndpoint, "ratio", cfg.SampleRatio)
	return tp.Shutdown, nil
}

// grpcTarget turns an OTLP URL into the host:port the gRPC exporter dials.
func grpcTarget(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return strings.TrimSuffix(raw, "/")
}

// Stamp records the trace context of ctx on the upload so workers can
// continue the submission's trace.
func Stamp(ctx context.Context, u *domain.Upload) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	u.TraceParent = carrier.Get("traceparent")
	u.TraceState = carrier.Get("tracestate")
}

// Resume returns ctx parented on the trace stamped on u, if any.
func Resume(ctx context.Context, u domain.Upload) context.Context {
	parent := strings.TrimSpace(u.TraceParent)
	if parent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": parent}
	if state := strings.TrimSpace(u.TraceState); state != "" {
		carrier["tracestate"] = state
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// InjectWebhookHeaders writes traceparent and tracestate only. Baggage never
// leaves the service.
func InjectWebhookHeaders(ctx context.Context, h http.Header) {
	if h == nil {
		return
	}
	propagation.TraceContext{}.Inject(ctx, propagation.HeaderCarrier(h))
}

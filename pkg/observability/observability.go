// Package observability wires OpenTelemetry metrics for the enrichment
// backend. Export is OTLP over gRPC and is gated on an endpoint being
// configured; without one the provider stays inert and every Record
// method is a no-op, so callers never need to branch on whether
// metrics are enabled.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config configures the OpenTelemetry metric provider.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the OTLP gRPC collector address. Empty disables export.
	Endpoint string
	Insecure bool
	// Interval between metric exports.
	Interval time.Duration
}

// DefaultConfig reads the standard OTLP environment variables. With no
// collector endpoint set the provider runs disabled.
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    envOr("MORKET_ENVIRONMENT", "development"),
		Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Insecure:       os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
		Interval:       15 * time.Second,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Provider owns the metric provider and the backend's instruments. A nil
// *Provider is valid and records nothing.
type Provider struct {
	config        *Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	logger        *slog.Logger

	// RED metrics for the HTTP surface.
	requestCounter metric.Int64Counter
	errorCounter   metric.Int64Counter
	durationHist   metric.Float64Histogram

	// Domain metrics.
	enrichAttempts  metric.Int64Counter
	providerLatency metric.Float64Histogram
	breakerChanges  metric.Int64Counter
	creditOps       metric.Int64Counter
	webhookEvents   metric.Int64Counter
}

// New creates the metric provider and registers it globally. An empty
// endpoint yields a disabled provider, not an error.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig("morket")
	}

	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}

	if config.Endpoint == "" {
		p.logger.InfoContext(ctx, "metric export disabled, no collector endpoint")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	interval := config.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(interval),
		)),
	)
	otel.SetMeterProvider(p.meterProvider)

	if err := p.initInstruments(); err != nil {
		return nil, fmt.Errorf("failed to init instruments: %w", err)
	}

	p.logger.InfoContext(ctx, "metrics initialized",
		"service", config.ServiceName,
		"environment", config.Environment,
		"endpoint", config.Endpoint,
		"insecure", config.Insecure,
	)

	return p, nil
}

// newWithReader builds a provider against a caller-supplied reader.
// Tests pair it with a manual reader to collect in-process.
func newWithReader(reader sdkmetric.Reader) (*Provider, error) {
	p := &Provider{
		config: &Config{ServiceName: "morket"},
		logger: slog.Default().With("component", "observability"),
	}
	p.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	if err := p.initInstruments(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) initInstruments() error {
	p.meter = p.meterProvider.Meter("morket",
		metric.WithInstrumentationVersion(p.config.ServiceVersion),
	)

	var err error
	p.requestCounter, err = p.meter.Int64Counter("morket.requests.total",
		metric.WithDescription("Total number of HTTP requests processed"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}
	p.errorCounter, err = p.meter.Int64Counter("morket.errors.total",
		metric.WithDescription("Total number of HTTP request errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}
	p.durationHist, err = p.meter.Float64Histogram("morket.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return err
	}

	p.enrichAttempts, err = p.meter.Int64Counter("morket.enrichment.attempts",
		metric.WithDescription("Enrichment attempts by provider and outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return err
	}
	p.providerLatency, err = p.meter.Float64Histogram("morket.provider.duration",
		metric.WithDescription("External provider call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return err
	}
	p.breakerChanges, err = p.meter.Int64Counter("morket.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return err
	}
	p.creditOps, err = p.meter.Int64Counter("morket.credits.transactions",
		metric.WithDescription("Credit ledger operations by kind"),
		metric.WithUnit("{transaction}"),
	)
	if err != nil {
		return err
	}
	p.webhookEvents, err = p.meter.Int64Counter("morket.webhooks.dispatched",
		metric.WithDescription("Webhook events handed to the deliverer"),
		metric.WithUnit("{event}"),
	)
	return err
}

// Shutdown flushes and stops the metric provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.meterProvider == nil {
		return nil
	}
	return p.meterProvider.Shutdown(ctx)
}

// RecordRequest counts one HTTP request.
func (p *Provider) RecordRequest(ctx context.Context, attrs ...attribute.KeyValue) {
	if p == nil || p.requestCounter == nil {
		return
	}
	p.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordError counts one failed HTTP request.
func (p *Provider) RecordError(ctx context.Context, attrs ...attribute.KeyValue) {
	if p == nil || p.errorCounter == nil {
		return
	}
	p.errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDuration records an HTTP request duration.
func (p *Provider) RecordDuration(ctx context.Context, duration time.Duration, attrs ...attribute.KeyValue) {
	if p == nil || p.durationHist == nil {
		return
	}
	p.durationHist.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordEnrichment counts one enrichment attempt outcome for a provider.
func (p *Provider) RecordEnrichment(ctx context.Context, provider, outcome string) {
	if p == nil || p.enrichAttempts == nil {
		return
	}
	p.enrichAttempts.Add(ctx, 1, metric.WithAttributes(
		AttrProvider.String(provider),
		AttrOutcome.String(outcome),
	))
}

// ObserveProviderCall records the latency of one external provider call.
func (p *Provider) ObserveProviderCall(ctx context.Context, provider string, duration time.Duration, err error) {
	if p == nil || p.providerLatency == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	p.providerLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(
		AttrProvider.String(provider),
		AttrOutcome.String(outcome),
	))
}

// RecordBreakerTransition counts a circuit state change for a provider.
func (p *Provider) RecordBreakerTransition(ctx context.Context, provider, state string) {
	if p == nil || p.breakerChanges == nil {
		return
	}
	p.breakerChanges.Add(ctx, 1, metric.WithAttributes(
		AttrProvider.String(provider),
		AttrBreakerState.String(state),
	))
}

// RecordCreditTransaction counts one ledger operation: debit, refund or
// purchase.
func (p *Provider) RecordCreditTransaction(ctx context.Context, kind string) {
	if p == nil || p.creditOps == nil {
		return
	}
	p.creditOps.Add(ctx, 1, metric.WithAttributes(AttrTransactionKind.String(kind)))
}

// RecordWebhook counts one event handed to the webhook deliverer.
func (p *Provider) RecordWebhook(ctx context.Context, event string) {
	if p == nil || p.webhookEvents == nil {
		return
	}
	p.webhookEvents.Add(ctx, 1, metric.WithAttributes(AttrEvent.String(event)))
}

package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	fundingConfirmed metric.Int64Counter
	payoutAttempts   metric.Int64Counter
	processorEvents  metric.Int64Counter
	creditRedeemed   metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "briefworks"
	}
	meter := provider.Meter(name)

	fundingConfirmed, err := meter.Int64Counter("briefworks_funding_confirmed_total")
	if err != nil {
		return nil, err
	}
	payoutAttempts, err := meter.Int64Counter("briefworks_payout_attempts_total")
	if err != nil {
		return nil, err
	}
	processorEvents, err := meter.Int64Counter("briefworks_processor_events_total")
	if err != nil {
		return nil, err
	}
	creditRedeemed, err := meter.Int64Counter("briefworks_credit_redemptions_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("briefworks_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		fundingConfirmed: fundingConfirmed,
		payoutAttempts:   payoutAttempts,
		processorEvents:  processorEvents,
		creditRedeemed:   creditRedeemed,
		rateLimitDenied:  rateLimitDenied,
	}, nil
}

// RecordFundingConfirmed counts confirmed escrow fundings.
func (m *Metrics) RecordFundingConfirmed(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("provider", strings.TrimSpace(provider)))
	m.fundingConfirmed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPayoutAttempt counts payout attempts by outcome.
func (m *Metrics) RecordPayoutAttempt(ctx context.Context, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("result", strings.TrimSpace(result)))
	m.payoutAttempts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordProcessorEvent counts ingested processor webhook events.
func (m *Metrics) RecordProcessorEvent(ctx context.Context, provider, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
	)
	m.processorEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCreditRedemption counts wallet redemptions.
func (m *Metrics) RecordCreditRedemption(ctx context.Context, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("result", strings.TrimSpace(result)))
	m.creditRedeemed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied counts rate limit rejections.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"event_type":  {},
	"provider":    {},
	"reason":      {},
	"result":      {},
	"route":       {},
	"method":      {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

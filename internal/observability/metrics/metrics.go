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
	billingEvents     metric.Int64Counter
	eventsIgnored     metric.Int64Counter
	eventsDropped     metric.Int64Counter
	scheduleDegraded  metric.Int64Counter
	creditGrants      metric.Int64Counter
	providerCalls     metric.Int64Counter
	providerCallError metric.Int64Counter
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

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "orrery"
	}
	meter := provider.Meter(name)

	billingEvents, err := meter.Int64Counter("orrery_billing_events_total")
	if err != nil {
		return nil, err
	}
	eventsIgnored, err := meter.Int64Counter("orrery_billing_events_ignored_total")
	if err != nil {
		return nil, err
	}
	eventsDropped, err := meter.Int64Counter("orrery_billing_events_dropped_total")
	if err != nil {
		return nil, err
	}
	scheduleDegraded, err := meter.Int64Counter("orrery_schedule_orchestration_degraded_total")
	if err != nil {
		return nil, err
	}
	creditGrants, err := meter.Int64Counter("orrery_credit_grants_total")
	if err != nil {
		return nil, err
	}
	providerCalls, err := meter.Int64Counter("orrery_provider_calls_total")
	if err != nil {
		return nil, err
	}
	providerCallError, err := meter.Int64Counter("orrery_provider_call_errors_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		billingEvents:     billingEvents,
		eventsIgnored:     eventsIgnored,
		eventsDropped:     eventsDropped,
		scheduleDegraded:  scheduleDegraded,
		creditGrants:      creditGrants,
		providerCalls:     providerCalls,
		providerCallError: providerCallError,
	}, nil
}

// RecordBillingEvent increments processed billing event counts.
func (m *Metrics) RecordBillingEvent(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", strings.TrimSpace(eventType)))
	m.billingEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEventIgnored counts event types the integration intentionally skips.
func (m *Metrics) RecordEventIgnored(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", strings.TrimSpace(eventType)))
	m.eventsIgnored.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEventDropped counts events dropped for missing account metadata.
func (m *Metrics) RecordEventDropped(ctx context.Context, eventType, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.eventsDropped.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordScheduleDegraded counts promo schedules left without an automatic
// price transition after a partial orchestration failure. Operators alert on
// this counter; the account otherwise degrades silently.
func (m *Metrics) RecordScheduleDegraded(ctx context.Context) {
	if m == nil {
		return
	}
	m.scheduleDegraded.Add(ctx, 1)
}

// RecordCreditGrant counts one-time credit grants by product type.
func (m *Metrics) RecordCreditGrant(ctx context.Context, productType string, credits int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("product_type", strings.TrimSpace(productType)))
	m.creditGrants.Add(ctx, int64(credits), metric.WithAttributes(attrs...))
}

// RecordProviderCall counts outbound payment provider calls. A zero
// statusCode means the request never produced a response.
func (m *Metrics) RecordProviderCall(ctx context.Context, operation string, statusCode int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.Int("status_code", statusCode),
	)
	m.providerCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
	if statusCode == 0 || statusCode >= 500 {
		m.providerCallError.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
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
	"event_type":   {},
	"reason":       {},
	"product_type": {},
	"operation":    {},
	"status_code":  {},
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

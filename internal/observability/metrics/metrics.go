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

// Metrics exposes order and fulfillment instruments.
type Metrics struct {
	ordersCreated    metric.Int64Counter
	orderTransitions metric.Int64Counter
	promoRejections  metric.Int64Counter
	ticketsIssued    metric.Int64Counter
	gatewayCallbacks metric.Int64Counter
	emailFailures    metric.Int64Counter
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

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "boxoffice"
	}
	meter := provider.Meter(name)

	var (
		m   Metrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
	}{
		{&m.ordersCreated, "boxoffice_orders_created_total"},
		{&m.orderTransitions, "boxoffice_order_transitions_total"},
		{&m.promoRejections, "boxoffice_promo_rejections_total"},
		{&m.ticketsIssued, "boxoffice_tickets_issued_total"},
		{&m.gatewayCallbacks, "boxoffice_gateway_callbacks_total"},
		{&m.emailFailures, "boxoffice_email_failures_total"},
		{&m.rateLimitDenied, "boxoffice_rate_limit_denied_total"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name)
		if err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// NewNoop returns instruments bound to a no-op provider, for tests and tools.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordOrderCreated(ctx context.Context, channel string) {
	if m == nil {
		return
	}
	m.ordersCreated.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("channel", strings.TrimSpace(channel)),
	)...))
}

func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.orderTransitions.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	)...))
}

func (m *Metrics) RecordPromoRejection(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.promoRejections.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("reason", reason),
	)...))
}

func (m *Metrics) RecordTicketsIssued(ctx context.Context, channel string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.ticketsIssued.Add(ctx, int64(count), metric.WithAttributes(FilterAttributes(
		attribute.String("channel", channel),
	)...))
}

func (m *Metrics) RecordGatewayCallback(ctx context.Context, result, outcome string) {
	if m == nil {
		return
	}
	m.gatewayCallbacks.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("result", result),
		attribute.String("outcome", outcome),
	)...))
}

func (m *Metrics) RecordEmailFailure(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.emailFailures.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("kind", kind),
	)...))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("endpoint", endpoint),
	)...))
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

// Order ids, emails and ticket codes never become labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"channel":     {},
	"from":        {},
	"to":          {},
	"reason":      {},
	"result":      {},
	"outcome":     {},
	"kind":        {},
	"endpoint":    {},
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

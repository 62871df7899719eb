package orders

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/joao-fontenele/foodorder/internal/domain"
)

const meterName = "github.com/joao-fontenele/foodorder/internal/orders"

type serviceMetrics struct {
	ordersCreated metric.Int64Counter
	transitions   metric.Int64Counter
	rejections    metric.Int64Counter
	conflicts     metric.Int64Counter
}

func newServiceMetrics(logger *slog.Logger) *serviceMetrics {
	meter := otel.Meter(meterName)
	return &serviceMetrics{
		ordersCreated: counter(meter, logger, "orders.created", "Orders placed by customers"),
		transitions:   counter(meter, logger, "orders.status_transitions", "Accepted order status changes"),
		rejections:    counter(meter, logger, "orders.status_rejections", "Rejected order status changes"),
		conflicts:     counter(meter, logger, "orders.status_conflicts", "Status writes that lost a compare-and-swap"),
	}
}

func counter(meter metric.Meter, logger *slog.Logger, name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		logger.Warn("failed to create counter", "error", err, "name", name)
		return noop.Int64Counter{}
	}
	return c
}

func (m *serviceMetrics) created(ctx context.Context) {
	m.ordersCreated.Add(ctx, 1)
}

func (m *serviceMetrics) transitioned(ctx context.Context, from, to domain.OrderStatus) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

func (m *serviceMetrics) rejected(ctx context.Context, from, to domain.OrderStatus) {
	m.rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

func (m *serviceMetrics) conflict(ctx context.Context) {
	m.conflicts.Add(ctx, 1)
}

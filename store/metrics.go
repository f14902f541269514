package store

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "tasktracker/store"

type storeMetrics struct {
	mutations       metric.Int64Counter
	persistFailures metric.Int64Counter
	loadFailures    metric.Int64Counter
}

func newStoreMetrics(meter metric.Meter) (*storeMetrics, error) {
	m := &storeMetrics{}
	var err error

	m.mutations, err = meter.Int64Counter("tasks.mutations",
		metric.WithDescription("Task mutations applied to the in-memory collection"),
	)
	if err != nil {
		return nil, err
	}

	m.persistFailures, err = meter.Int64Counter("tasks.persist.failures",
		metric.WithDescription("Snapshot writes that failed after a mutation"),
	)
	if err != nil {
		return nil, err
	}

	m.loadFailures, err = meter.Int64Counter("tasks.load.failures",
		metric.WithDescription("Snapshot reads that were discarded at load time"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func defaultStoreMetrics() (*storeMetrics, error) {
	return newStoreMetrics(otel.Meter(meterName))
}

func (m *storeMetrics) mutation(ctx context.Context, op string) {
	m.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *storeMetrics) persistFailed(ctx context.Context, op string) {
	m.persistFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *storeMetrics) loadFailed(ctx context.Context) {
	m.loadFailures.Add(ctx, 1)
}

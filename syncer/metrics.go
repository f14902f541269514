package syncer

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "tasktracker/syncer"

type syncMetrics struct {
	dispatched metric.Int64Counter
	failures   metric.Int64Counter
	dropped    metric.Int64Counter
}

func newSyncMetrics(meter metric.Meter) (*syncMetrics, error) {
	m := &syncMetrics{}
	var err error

	m.dispatched, err = meter.Int64Counter("tasks.sync.dispatched",
		metric.WithDescription("Snapshots handed to sync workers"),
	)
	if err != nil {
		return nil, err
	}
	m.failures, err = meter.Int64Counter("tasks.sync.failures",
		metric.WithDescription("Sync calls that failed or reported no success"),
	)
	if err != nil {
		return nil, err
	}
	m.dropped, err = meter.Int64Counter("tasks.sync.dropped",
		metric.WithDescription("Snapshots dropped because the sync queue was full or closed"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func defaultSyncMetrics() *syncMetrics {
	m, err := newSyncMetrics(otel.Meter(meterName))
	if err != nil {
		m, _ = newSyncMetrics(noop.NewMeterProvider().Meter(meterName))
	}
	return m
}

func (m *syncMetrics) add(c metric.Int64Counter) {
	c.Add(context.Background(), 1)
}

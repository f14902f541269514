package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName   = "tasktracker/api"
	listSpanName = "tasks.list"
)

type listRequestMetrics struct {
	logger         *log.Logger
	span           trace.Span
	start          time.Time
	viewDuration   time.Duration
	encodeDuration time.Duration
	filter         string
	sortBy         string
	queryProvided  bool
	tasksReturned  int
	errorStage     string
}

// newListRequestMetrics starts the request span. The returned context
// carries it.
func newListRequestMetrics(ctx context.Context, logger *log.Logger) (*listRequestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, listSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &listRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, ctx
}

func (m *listRequestMetrics) ObserveView(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.viewDuration = duration
}

func (m *listRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *listRequestMetrics) SetQuery(filter, sortBy string, queryProvided bool) {
	m.filter = filter
	m.sortBy = sortBy
	m.queryProvided = queryProvided
}

func (m *listRequestMetrics) SetTasksReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksReturned = count
}

func (m *listRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *listRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	m.endSpan(status, err)
	if m.logger == nil {
		return
	}

	fields := log.Fields{
		"route":          "/api/tasks",
		"status":         status,
		"total_ms":       durationToMillis(time.Since(m.start)),
		"query_provided": m.queryProvided,
		"tasks_returned": m.tasksReturned,
	}
	if m.filter != "" {
		fields["filter"] = m.filter
	}
	if m.sortBy != "" {
		fields["sort"] = m.sortBy
	}
	if m.viewDuration > 0 {
		fields["view_ms"] = durationToMillis(m.viewDuration)
	}
	if m.encodeDuration > 0 {
		fields["encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	m.logger.WithFields(fields).Info("tasks.request.metrics")
}

func (m *listRequestMetrics) endSpan(status int, err error) {
	if m.span == nil {
		return
	}
	m.span.SetAttributes(
		attribute.String("http.route", "/api/tasks"),
		attribute.Int("http.response.status_code", status),
		attribute.String("tasks.filter", m.filter),
		attribute.String("tasks.sort", m.sortBy),
		attribute.Bool("tasks.query_provided", m.queryProvided),
		attribute.Int("tasks.returned", m.tasksReturned),
	)
	if m.errorStage != "" {
		m.span.SetAttributes(attribute.String("tasks.error_stage", m.errorStage))
	}
	if err != nil {
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
	} else if status >= 400 {
		m.span.SetStatus(codes.Error, m.errorStage)
	}
	m.span.End()
	m.span = nil
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

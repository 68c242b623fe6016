package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName          = "github.com/Adarsh9315/task-palette-organize/api"
	snapshotSpanName    = "board.snapshot"
	snapshotEventName   = "board.snapshot.request"
	snapshotEventDomain = "task-palette.boards"
	snapshotRoute       = "/api/boards/:id"
	observabilityEvent  = "observability.event"
)

// snapshotMetrics records one board snapshot request as a span plus an
// observability.event log entry carrying the same attributes.
type snapshotMetrics struct {
	logger       *log.Logger
	span         trace.Span
	start        time.Time
	authDuration time.Duration
	loadDuration time.Duration
	boardID      string
	columns      int
	tasks        int
	pending      int
	errorStage   string
}

func newSnapshotMetrics(ctx context.Context, logger *log.Logger) (*snapshotMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, snapshotSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &snapshotMetrics{logger: logger, span: span, start: time.Now()}, ctx
}

func (m *snapshotMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *snapshotMetrics) ObserveLoad(d time.Duration) {
	if d > 0 {
		m.loadDuration = d
	}
}

func (m *snapshotMetrics) SetBoard(id string, columns, tasks, pending int) {
	m.boardID = id
	m.columns = columns
	m.tasks = tasks
	m.pending = pending
}

func (m *snapshotMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

func (m *snapshotMetrics) attributes(status int, err error) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.route", snapshotRoute),
		attribute.Int("http.status_code", status),
		attribute.Float64("board.snapshot.total_ms", durationToMillis(time.Since(m.start))),
		attribute.Int("board.columns", m.columns),
		attribute.Int("board.tasks", m.tasks),
		attribute.Int("board.pending", m.pending),
	}
	if m.boardID != "" {
		attrs = append(attrs, attribute.String("board.id", m.boardID))
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.snapshot.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.loadDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.snapshot.load_ms", durationToMillis(m.loadDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("board.snapshot.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}
	return attrs
}

// Log ends the span and emits the observability event.
func (m *snapshotMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	attrs := m.attributes(status, err)
	sevText, sevNumber := severityForStatus(status, err)

	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", snapshotEventName),
		attribute.String("event.domain", snapshotEventDomain),
		attribute.String("severity_text", sevText),
		attribute.Int("severity_number", sevNumber),
	}, attrs...)
	m.span.SetAttributes(attrs...)
	m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))
	if sevText == "ERROR" {
		desc := http.StatusText(status)
		if err != nil {
			desc = err.Error()
		}
		m.span.SetStatus(codes.Error, desc)
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	sc := m.span.SpanContext()
	m.span.End()

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      snapshotEventName,
		"event.domain":    snapshotEventDomain,
		"severity_text":   sevText,
		"severity_number": sevNumber,
		"attributes":      attributesToFields(attrs),
	}
	if sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
	}
	if sc.HasSpanID() {
		fields["span_id"] = sc.SpanID().String()
	}
	entry := m.logger.WithFields(fields)
	switch sevText {
	case "ERROR":
		entry.Error(observabilityEvent)
	case "WARN":
		entry.Warn(observabilityEvent)
	default:
		entry.Info(observabilityEvent)
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	}
	return "INFO", 9
}

func attributesToFields(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

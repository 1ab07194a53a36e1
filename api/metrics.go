package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	boardsTracerName  = "github.com/123123eeqweq/omocrm/api"
	boardsSpanName    = "omocrm.boards.request"
	boardsEventDomain = "omocrm.boards"
	boardsRoute       = "/api/boards/:projectId"
	observabilityMsg  = "observability.event"
)

type boardRequestMetrics struct {
	logger    *log.Logger
	span      trace.Span
	eventName string
	method    string
	start     time.Time

	projectID        string
	storeDuration    time.Duration
	validateDuration time.Duration
	encodeDuration   time.Duration
	cards            int
	steps            int
	bodyBytes        int
	errorStage       string
}

// newBoardRequestMetrics starts a span for a board request. The returned
// context carries the span and should replace the request context.
func newBoardRequestMetrics(ctx context.Context, logger *log.Logger, method string) (*boardRequestMetrics, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	spanCtx, span := otel.Tracer(boardsTracerName).Start(ctx, boardsSpanName, trace.WithSpanKind(trace.SpanKindServer))
	name := "boards.get"
	if method == http.MethodPut {
		name = "boards.put"
	}
	return &boardRequestMetrics{
		logger:    logger,
		span:      span,
		eventName: name,
		method:    method,
		start:     time.Now(),
	}, spanCtx
}

func (m *boardRequestMetrics) SetProject(id string) {
	m.projectID = id
}

func (m *boardRequestMetrics) ObserveStore(d time.Duration) {
	if d > 0 {
		m.storeDuration = d
	}
}

func (m *boardRequestMetrics) ObserveValidate(d time.Duration) {
	if d > 0 {
		m.validateDuration = d
	}
}

func (m *boardRequestMetrics) ObserveEncode(d time.Duration) {
	if d > 0 {
		m.encodeDuration = d
	}
}

func (m *boardRequestMetrics) SetBodyBytes(n int) {
	if n > 0 {
		m.bodyBytes = n
	}
}

// SetDocument records how many cards and steps the document holds.
func (m *boardRequestMetrics) SetDocument(doc boardPayload) {
	m.cards = arrayLen(doc.Cards)
	m.steps = arrayLen(doc.Steps)
}

func (m *boardRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

func (m *boardRequestMetrics) attributes(status int, err error) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.route", boardsRoute),
		attribute.String("http.method", m.method),
		attribute.Int("http.status_code", status),
		attribute.String("omocrm.boards.project_id", m.projectID),
		attribute.Int("omocrm.boards.cards", m.cards),
		attribute.Int("omocrm.boards.steps", m.steps),
		attribute.Float64("omocrm.boards.total_ms", durationToMillis(time.Since(m.start))),
	}
	if m.storeDuration > 0 {
		attrs = append(attrs, attribute.Float64("omocrm.boards.store_ms", durationToMillis(m.storeDuration)))
	}
	if m.validateDuration > 0 {
		attrs = append(attrs, attribute.Float64("omocrm.boards.validate_ms", durationToMillis(m.validateDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("omocrm.boards.encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.bodyBytes > 0 {
		attrs = append(attrs, attribute.Int("omocrm.boards.body_bytes", m.bodyBytes))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("omocrm.boards.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}
	return attrs
}

// Log ends the span and writes one observability event with the same
// attributes.
func (m *boardRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	attrs := m.attributes(status, err)
	sevText, sevNumber := severityForStatus(status, err)

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", m.eventName),
			attribute.String("event.domain", boardsEventDomain),
			attribute.String("severity_text", sevText),
			attribute.Int("severity_number", sevNumber),
		}, attrs...)
		m.span.AddEvent(observabilityMsg, trace.WithAttributes(eventAttrs...))
		if sevText == "ERROR" {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	attrMap := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		attrMap[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      m.eventName,
		"event.domain":    boardsEventDomain,
		"severity_text":   sevText,
		"severity_number": sevNumber,
		"attributes":      attrMap,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	entry := m.logger.WithFields(fields)
	switch sevText {
	case "ERROR":
		entry.Error(observabilityMsg)
	case "WARN":
		entry.Warn(observabilityMsg)
	default:
		entry.Info(observabilityMsg)
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func arrayLen(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var items []json.RawMessage
	if err := sonic.Unmarshal(raw, &items); err != nil {
		return 0
	}
	return len(items)
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

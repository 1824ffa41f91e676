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
	tracerName       = "taskboard/api"
	requestSpanName  = "http.request"
	requestLogMsg    = "http.request"
	attrHTTPMethod   = "http.method"
	attrHTTPRoute    = "http.route"
	attrHTTPStatus   = "http.status_code"
	attrTaskboardUID = "taskboard.user_id"
)

type requestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time
	method string
	route  string
	userID string
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, requestSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String(attrHTTPMethod, method),
			attribute.String(attrHTTPRoute, route),
		),
	)
	return &requestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
		method: method,
		route:  route,
	}, ctx
}

func (m *requestMetrics) SetUserID(id string) {
	m.userID = id
}

// Log ends the span and writes the request line. Server errors are logged at
// error level and client errors at warning level.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	total := time.Since(m.start)

	m.span.SetAttributes(attribute.Int(attrHTTPStatus, status))
	if m.userID != "" {
		m.span.SetAttributes(attribute.String(attrTaskboardUID, m.userID))
	}
	if err != nil {
		m.span.RecordError(err)
	}
	if status >= http.StatusInternalServerError {
		m.span.SetStatus(codes.Error, http.StatusText(status))
	}
	m.span.End()

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"method":   m.method,
		"route":    m.route,
		"status":   status,
		"total_ms": durationToMillis(total),
	}
	if m.userID != "" {
		fields["user_id"] = m.userID
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	entry := m.logger.WithFields(fields)
	switch {
	case status >= http.StatusInternalServerError:
		entry.Error(requestLogMsg)
	case status >= http.StatusBadRequest:
		entry.Warn(requestLogMsg)
	default:
		entry.Info(requestLogMsg)
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

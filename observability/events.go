package observability

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"quadlend/core/events"
	"quadlend/core/types"
	"quadlend/observability/metrics"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking structured module events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "quadlend",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of module events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// RecordEvent increments the counter for the supplied event type.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.emitted.WithLabelValues(normalized).Inc()
}

type payloadEvent interface {
	Event() *types.Event
}

// Emitter counts and logs every event before handing it to next.
type Emitter struct {
	next   events.Emitter
	logger *slog.Logger
}

// NewEmitter wraps next, which may be nil.
func NewEmitter(next events.Emitter, logger *slog.Logger) *Emitter {
	if next == nil {
		next = events.NoopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{next: next, logger: logger}
}

// Emit implements events.Emitter.
func (e *Emitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	kind := evt.EventType()
	Events().RecordEvent(kind)
	observeDomain(kind, evt)
	if payload, ok := evt.(payloadEvent); ok && payload.Event() != nil {
		attrs := make([]any, 0, 2*len(payload.Event().Attributes)+2)
		attrs = append(attrs, "type", kind)
		for k, v := range payload.Event().Attributes {
			attrs = append(attrs, k, v)
		}
		e.logger.Debug("event", attrs...)
	}
	e.next.Emit(evt)
}

func observeDomain(kind string, evt events.Event) {
	switch {
	case strings.HasPrefix(kind, "gov."):
		if kind == "gov.vote" {
			support := ""
			if payload, ok := evt.(payloadEvent); ok && payload.Event() != nil {
				support = payload.Event().Attributes["support"]
			}
			metrics.Governance().ObserveVote(support)
			return
		}
		metrics.Governance().ObserveStage(strings.TrimPrefix(kind, "gov."))
	case strings.HasPrefix(kind, "lending.liquidation"):
		metrics.Lending().ObserveLiquidations(strings.ToLower(strings.TrimPrefix(kind, "lending.liquidation")), 1)
	}
}

package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angeloszaimis/failover/internal/endpoint"
)

type EventType string

const (
	EventAttemptCompleted    EventType = "attempt_completed"
	EventEndpointBlacklisted EventType = "endpoint_blacklisted"
	EventEndpointRecovered   EventType = "endpoint_recovered"
	EventTargetsExhausted    EventType = "targets_exhausted"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Endpoint   string
	Duration   time.Duration
	StatusCode int
	Err        bool
}

type Collector struct {
	eventCh    chan MetricEvent
	metrics    *Metrics
	prometheus *promMetrics
	logger     *slog.Logger
}

// NewCollector creates a collector with the given event buffer. registerer
// may be nil to disable Prometheus export.
func NewCollector(bufferSize int, logger *slog.Logger, registerer prometheus.Registerer) *Collector {
	if bufferSize < 1 {
		bufferSize = 1
	}

	return &Collector{
		eventCh:    make(chan MetricEvent, bufferSize),
		metrics:    NewMetrics(),
		prometheus: newPromMetrics(registerer),
		logger:     logger,
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

// Emit queues an event without blocking. Events are dropped when the buffer
// is full.
func (c *Collector) Emit(event MetricEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) OnBlacklisted(e endpoint.Endpoint) {
	c.Emit(MetricEvent{Type: EventEndpointBlacklisted, Endpoint: e.String()})
}

func (c *Collector) OnRecovered(e endpoint.Endpoint) {
	c.Emit(MetricEvent{Type: EventEndpointRecovered, Endpoint: e.String()})
}

func (c *Collector) OnExhausted(initial endpoint.Endpoint) {
	c.Emit(MetricEvent{Type: EventTargetsExhausted, Endpoint: initial.String()})
}

// ObserveAttempt records one attempt against e. statusCode is zero when err
// is non-nil.
func (c *Collector) ObserveAttempt(e endpoint.Endpoint, statusCode int, duration time.Duration, err error) {
	c.Emit(MetricEvent{
		Type:       EventAttemptCompleted,
		Endpoint:   e.String(),
		Duration:   duration,
		StatusCode: statusCode,
		Err:        err != nil,
	})
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventAttemptCompleted:
		c.metrics.RecordAttempt(event.Endpoint, event.Duration, event.StatusCode, event.Err)
		c.prometheus.observeAttempt(event)

	case EventEndpointBlacklisted:
		c.metrics.RecordBlacklisted(event.Endpoint)
		c.prometheus.observeBlacklisted(event.Endpoint)

	case EventEndpointRecovered:
		c.metrics.RecordRecovered(event.Endpoint)
		c.prometheus.observeRecovered(event.Endpoint)

	case EventTargetsExhausted:
		c.metrics.RecordExhausted()
		c.prometheus.observeExhausted()

	default:
		c.logger.Debug("Unknown metric event", slog.String("type", string(event.Type)))
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}

// Handler serves the current snapshot as JSON.
func (c *Collector) Handler() http.HandlerFunc {
	return snapshotHandler(c.metrics)
}

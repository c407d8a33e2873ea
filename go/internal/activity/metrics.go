package activity

import (
	"context"
	"sync"
	"time"
)

// MetricsCollector defines the interface for collecting activity metrics
type MetricsCollector interface {
	RecordPublished(t Type, success bool, duration time.Duration)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordPublished(t Type, success bool, duration time.Duration) {}

// CountingMetrics keeps per-type publish counters in memory.
type CountingMetrics struct {
	mu        sync.Mutex
	published map[Type]int64
	failed    map[Type]int64
	total     time.Duration
}

func NewCountingMetrics() *CountingMetrics {
	return &CountingMetrics{
		published: make(map[Type]int64),
		failed:    make(map[Type]int64),
	}
}

func (m *CountingMetrics) RecordPublished(t Type, success bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.published[t]++
	} else {
		m.failed[t]++
	}
	m.total += duration
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Published     map[Type]int64 `json:"published"`
	Failed        map[Type]int64 `json:"failed"`
	AvgDurationMs float64        `json:"avg_duration_ms"`
}

func (m *CountingMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		Published: make(map[Type]int64, len(m.published)),
		Failed:    make(map[Type]int64, len(m.failed)),
	}
	var n int64
	for t, c := range m.published {
		snap.Published[t] = c
		n += c
	}
	for t, c := range m.failed {
		snap.Failed[t] = c
		n += c
	}
	if n > 0 {
		snap.AvgDurationMs = float64(m.total.Microseconds()) / 1000 / float64(n)
	}
	return snap
}

// MetricPublisher wraps a Publisher with metrics collection
type MetricPublisher struct {
	publisher Publisher
	metrics   MetricsCollector
}

// NewMetricPublisher falls back to NoOpMetricsCollector when metrics is nil.
func NewMetricPublisher(publisher Publisher, metrics MetricsCollector) *MetricPublisher {
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	return &MetricPublisher{
		publisher: publisher,
		metrics:   metrics,
	}
}

func (p *MetricPublisher) Publish(ctx context.Context, a Activity) error {
	start := time.Now()

	err := p.publisher.Publish(ctx, a)

	p.metrics.RecordPublished(a.Type, err == nil, time.Since(start))
	return err
}

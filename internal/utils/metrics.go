// internal/utils/metrics.go
package utils

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects application metrics
type MetricsCollector struct {
	counters   map[string]*int64
	gauges     map[string]*int64
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Histogram tracks count, sum, min and max of observed values
type Histogram struct {
	mu    sync.Mutex
	count int64
	sum   int64
	min   int64
	max   int64
}

func (h *Histogram) observe(v int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 || v < h.min {
		h.min = v
	}
	if h.count == 0 || v > h.max {
		h.max = v
	}
	h.count++
	h.sum += v
}

func (h *Histogram) snapshot() map[string]int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	avg := int64(0)
	if h.count > 0 {
		avg = h.sum / h.count
	}
	return map[string]int64{"count": h.count, "sum": h.sum, "min": h.min, "max": h.max, "avg": avg}
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// GetMetricsCollector returns the global metrics collector
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsCollector()
	})
	return globalMetrics
}

// NewMetricsCollector creates an isolated collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*int64),
		gauges:     make(map[string]*int64),
		histograms: make(map[string]*Histogram),
	}
}

// slot returns the atomic cell for name, creating it under the write lock
func (m *MetricsCollector) slot(set map[string]*int64, name string) *int64 {
	m.mu.RLock()
	v, ok := set[name]
	m.mu.RUnlock()
	if ok {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok = set[name]; !ok {
		v = new(int64)
		set[name] = v
	}
	return v
}

// IncrementCounter increments a counter
func (m *MetricsCollector) IncrementCounter(name string) {
	m.AddCounter(name, 1)
}

// AddCounter adds value to a counter
func (m *MetricsCollector) AddCounter(name string, value int64) {
	atomic.AddInt64(m.slot(m.counters, name), value)
}

// GetCounterValue reads a counter
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	return atomic.LoadInt64(m.slot(m.counters, name))
}

// IncGauge increments a gauge
func (m *MetricsCollector) IncGauge(name string) {
	atomic.AddInt64(m.slot(m.gauges, name), 1)
}

// DecGauge decrements a gauge
func (m *MetricsCollector) DecGauge(name string) {
	atomic.AddInt64(m.slot(m.gauges, name), -1)
}

// GetGauge reads a gauge
func (m *MetricsCollector) GetGauge(name string) int64 {
	return atomic.LoadInt64(m.slot(m.gauges, name))
}

// RecordHistogram records a value in a histogram
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	h, ok := m.histograms[name]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if h, ok = m.histograms[name]; !ok {
			h = &Histogram{}
			m.histograms[name] = h
		}
		m.mu.Unlock()
	}
	h.observe(value)
}

// GetMetrics returns a snapshot of all metrics
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, v := range m.counters {
		counters[name] = atomic.LoadInt64(v)
	}
	gauges := make(map[string]int64, len(m.gauges))
	for name, v := range m.gauges {
		gauges[name] = atomic.LoadInt64(v)
	}
	histograms := make(map[string]map[string]int64, len(m.histograms))
	for name, h := range m.histograms {
		histograms[name] = h.snapshot()
	}
	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

// ConversionMetrics records scenario conversion and API activity
type ConversionMetrics struct {
	metrics *MetricsCollector
	logger  *Logger
}

// NewConversionMetrics creates metrics backed by the global collector
func NewConversionMetrics() *ConversionMetrics {
	return NewConversionMetricsWith(GetMetricsCollector())
}

// NewConversionMetricsWith creates metrics backed by the given collector
func NewConversionMetricsWith(m *MetricsCollector) *ConversionMetrics {
	return &ConversionMetrics{metrics: m, logger: GetLogger()}
}

// Collector exposes the underlying collector
func (cm *ConversionMetrics) Collector() *MetricsCollector {
	return cm.metrics
}

// RecordConversion records one conversion (blocks, delta, source, html)
func (cm *ConversionMetrics) RecordConversion(kind string, inputBytes int, duration time.Duration) {
	cm.metrics.IncrementCounter("conversions_total")
	cm.metrics.IncrementCounter("conversions_" + kind)
	cm.metrics.AddCounter("conversion_input_bytes", int64(inputBytes))
	cm.metrics.RecordHistogram("conversion_"+kind+"_us", duration.Microseconds())
}

// RecordFallback records a render that used the built-in formatter
func (cm *ConversionMetrics) RecordFallback(reason string) {
	cm.metrics.IncrementCounter("render_fallbacks_total")
	cm.logger.Debug("render fallback", map[string]interface{}{"reason": reason})
}

// RecordAPIRequest records metrics for an API request
func (cm *ConversionMetrics) RecordAPIRequest(endpoint, method string, statusCode int, duration time.Duration) {
	cm.metrics.IncrementCounter("api_requests_total")
	cm.metrics.IncrementCounter("api_requests_" + method + "_" + endpoint)
	cm.metrics.IncrementCounter("api_responses_" + strconv.Itoa(statusCode/100) + "xx")
	cm.metrics.RecordHistogram("api_response_time_ms", duration.Milliseconds())
}

// RecordUpload records a stored image
func (cm *ConversionMetrics) RecordUpload(size int64) {
	cm.metrics.IncrementCounter("uploads_total")
	cm.metrics.AddCounter("upload_bytes", size)
}

// StartReporting periodically logs a metrics summary until ctx is done
func (cm *ConversionMetrics) StartReporting(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cm.logger.Info("metrics report", map[string]interface{}{
					"conversions": cm.metrics.GetCounterValue("conversions_total"),
					"fallbacks":   cm.metrics.GetCounterValue("render_fallbacks_total"),
					"requests":    cm.metrics.GetCounterValue("api_requests_total"),
				})
			}
		}
	}()
}

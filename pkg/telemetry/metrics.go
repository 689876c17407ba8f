package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricPayloadsIngestedTotal  = "exporter_payloads_ingested_total"
	MetricPayloadsMalformedTotal = "exporter_payloads_malformed_total"
	MetricPositionsCaptured      = "exporter_positions_captured"
	MetricDetailsCollected       = "exporter_details_collected"
	MetricFetchRoundsTotal       = "exporter_fetch_rounds_total"
	MetricExportsTotal           = "exporter_exports_total"
	MetricExportDuration         = "exporter_export_duration_ms"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	PayloadsIngestedTotal  metric.Int64Counter
	PayloadsMalformedTotal metric.Int64Counter
	PositionsCaptured      metric.Int64ObservableGauge
	DetailsCollected       metric.Int64ObservableGauge
	FetchRoundsTotal       metric.Int64Counter
	ExportsTotal           metric.Int64Counter
	ExportDuration         metric.Float64Histogram

	// State for observable gauges
	mu                sync.RWMutex
	positionsCaptured int64
	detailsCollected  int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{}
		// Initialization of instruments happens in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.PayloadsIngestedTotal, err = meter.Int64Counter(MetricPayloadsIngestedTotal,
		metric.WithDescription("Total accepted payloads by endpoint kind"))
	if err != nil {
		return err
	}

	m.PayloadsMalformedTotal, err = meter.Int64Counter(MetricPayloadsMalformedTotal,
		metric.WithDescription("Total payloads dropped at the ingest boundary"))
	if err != nil {
		return err
	}

	m.FetchRoundsTotal, err = meter.Int64Counter(MetricFetchRoundsTotal,
		metric.WithDescription("Total detail-fetch rounds by outcome"))
	if err != nil {
		return err
	}

	m.ExportsTotal, err = meter.Int64Counter(MetricExportsTotal,
		metric.WithDescription("Total exports by artifact kind"))
	if err != nil {
		return err
	}

	m.ExportDuration, err = meter.Float64Histogram(MetricExportDuration,
		metric.WithDescription("Time to assemble an export artifact"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	// Observables
	m.PositionsCaptured, err = meter.Int64ObservableGauge(MetricPositionsCaptured,
		metric.WithDescription("Positions currently in the reconciled table"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.positionsCaptured)
			return nil
		}))
	if err != nil {
		return err
	}

	m.DetailsCollected, err = meter.Int64ObservableGauge(MetricDetailsCollected,
		metric.WithDescription("Positions with a collected event list in the current round"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.detailsCollected)
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Helpers to update observable state

func (m *MetricsHolder) SetPositionsCaptured(count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionsCaptured = count
}

func (m *MetricsHolder) SetDetailsCollected(count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detailsCollected = count
}

// CountIngested records an accepted payload for an endpoint kind.
func (m *MetricsHolder) CountIngested(ctx context.Context, kind string) {
	if m.PayloadsIngestedTotal != nil {
		m.PayloadsIngestedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

// CountMalformed records a payload dropped at the ingest boundary.
func (m *MetricsHolder) CountMalformed(ctx context.Context) {
	if m.PayloadsMalformedTotal != nil {
		m.PayloadsMalformedTotal.Add(ctx, 1)
	}
}

// CountFetchRound records a completed reconciliation round.
func (m *MetricsHolder) CountFetchRound(ctx context.Context, outcome string) {
	if m.FetchRoundsTotal != nil {
		m.FetchRoundsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

// CountExport records a produced artifact.
func (m *MetricsHolder) CountExport(ctx context.Context, kind string) {
	if m.ExportsTotal != nil {
		m.ExportsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

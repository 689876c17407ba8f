package export

import (
	"context"
	"fmt"
	"time"

	"portfolio_exporter/internal/aggregate"
	"portfolio_exporter/internal/core"
	"portfolio_exporter/internal/ingest"
	"portfolio_exporter/internal/refdata"
	"portfolio_exporter/pkg/concurrency"
	apperrors "portfolio_exporter/pkg/errors"
	"portfolio_exporter/pkg/telemetry"
)

// DataSource is the reconciled state the export reads from.
type DataSource interface {
	Positions() []core.Position
	Events(positionID string) []core.RawEvent
	EnsureAllDetailsFetched(ctx context.Context) (ingest.RoundResult, error)
}

// Artifact is a produced export ready for delivery.
type Artifact struct {
	Content       string
	SuggestedName string
	MimeType      string
	// Captured/Total report detail coverage for the round the export ran
	// on; Captured < Total means some positions fell back to their
	// summary values.
	Captured int
	Total    int
}

// Service assembles export artifacts: it runs a detail-collection round,
// aggregates every position, applies the query filters and formats the
// result.
type Service struct {
	source     DataSource
	refdata    *refdata.Store
	aggregator *aggregate.Aggregator
	pool       *concurrency.WorkerPool
	logger     core.ILogger
}

func NewService(source DataSource, ref *refdata.Store, aggregator *aggregate.Aggregator, pool *concurrency.WorkerPool, logger core.ILogger) *Service {
	return &Service{
		source:     source,
		refdata:    ref,
		aggregator: aggregator,
		pool:       pool,
		logger:     logger.WithField("component", "export"),
	}
}

// Export produces an artifact for the query. It returns
// apperrors.ErrNoMatchingPositions when the filters eliminate every
// position (no artifact is produced) and apperrors.ErrUnknownExportKind
// for an unrecognized kind.
func (s *Service) Export(ctx context.Context, q Query) (*Artifact, error) {
	start := time.Now()
	ctx, span := telemetry.GetTracer("export").Start(ctx, "export")
	defer span.End()

	round, err := s.source.EnsureAllDetailsFetched(ctx)
	if err != nil {
		return nil, fmt.Errorf("detail collection aborted: %w", err)
	}
	if !round.Complete {
		s.logger.Warn("exporting with partial detail coverage",
			"captured", round.Captured, "total", round.Total)
	}

	aggregated := s.aggregateAll(s.source.Positions())

	filtered := Filter(aggregated, q)
	if len(filtered) == 0 {
		return nil, apperrors.ErrNoMatchingPositions
	}

	artifact := &Artifact{Captured: round.Captured, Total: round.Total}
	switch q.Kind {
	case KindText:
		artifact.Content = FormatText(filtered, time.Now())
		artifact.SuggestedName = "portfolio_history.txt"
		artifact.MimeType = "text/plain"
	case KindJSON:
		content, err := FormatJSON(filtered)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize export: %w", err)
		}
		artifact.Content = content
		artifact.SuggestedName = "portfolio_history.json"
		artifact.MimeType = "application/json"
	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownExportKind, q.Kind)
	}

	metrics := telemetry.GetGlobalMetrics()
	metrics.CountExport(ctx, q.Kind)
	if metrics.ExportDuration != nil {
		metrics.ExportDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}

	s.logger.Info("export produced",
		"kind", q.Kind, "positions", len(filtered), "duration", time.Since(start))
	return artifact, nil
}

// aggregateAll fans the per-position aggregation out over the worker pool.
// Aggregation is pure, so results are written into a preallocated slice by
// index and never contend.
func (s *Service) aggregateAll(positions []core.Position) []core.AggregatedPosition {
	decimals := s.refdata.DecimalsSnapshot()
	out := make([]core.AggregatedPosition, len(positions))

	group := s.pool.Group()
	for i, pos := range positions {
		i, pos := i, pos
		group.Submit(func() {
			var market *core.Market
			if m, ok := s.refdata.Market(pos.Market); ok {
				market = &m
			}
			out[i] = s.aggregator.Aggregate(pos, s.source.Events(pos.Idx), market, decimals)
		})
	}
	group.Wait()

	return out
}

package export

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio_exporter/internal/aggregate"
	"portfolio_exporter/internal/core"
	"portfolio_exporter/internal/ingest"
	"portfolio_exporter/internal/refdata"
	"portfolio_exporter/pkg/concurrency"
	apperrors "portfolio_exporter/pkg/errors"
	"portfolio_exporter/pkg/logging"
)

type fakeSource struct {
	positions []core.Position
	events    map[string][]core.RawEvent
	round     ingest.RoundResult
	rounds    int
}

func (s *fakeSource) Positions() []core.Position { return s.positions }

func (s *fakeSource) Events(id string) []core.RawEvent { return s.events[id] }

func (s *fakeSource) EnsureAllDetailsFetched(context.Context) (ingest.RoundResult, error) {
	s.rounds++
	return s.round, nil
}

func newTestService(t *testing.T, source *fakeSource) (*Service, *refdata.Store) {
	t.Helper()
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	ref := refdata.NewStore()
	ref.UpsertMarket(core.Market{ID: "m1", Symbol: "BTC-USDC", BaseAsset: "B", QuoteAsset: "Q"})
	ref.ReplaceAssetDecimals(map[string]int{"B": 6, "Q": 6})

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{Name: "export-test"}, logger)
	t.Cleanup(pool.Stop)

	svc := NewService(source, ref, aggregate.New(aggregate.DefaultBaseExtraDecimals), pool, logger)
	return svc, ref
}

func sourceWithOnePosition() *fakeSource {
	return &fakeSource{
		positions: []core.Position{{
			Idx:       "p1",
			Market:    "m1",
			Direction: "long",
			ClosedAt:  time.Date(2026, 2, 2, 18, 45, 12, 0, time.UTC),
			Pnl:       "1000000",
			Fee:       "2000",
			Size:      "5000000",
		}},
		events: map[string][]core.RawEvent{
			"p1": {{
				EventName:      core.EventOpenPosition,
				ExchangedBase:  "5000000000",
				ExchangedQuote: "-250000000",
				FeeInEvent:     "2000",
			}},
		},
		round: ingest.RoundResult{Captured: 1, Total: 1, Complete: true},
	}
}

func TestServiceExportText(t *testing.T) {
	source := sourceWithOnePosition()
	svc, _ := newTestService(t, source)

	artifact, err := svc.Export(context.Background(), Query{Kind: KindText})
	require.NoError(t, err)

	assert.Equal(t, 1, source.rounds, "export must run a detail round first")
	assert.Equal(t, "portfolio_history.txt", artifact.SuggestedName)
	assert.Equal(t, "text/plain", artifact.MimeType)
	assert.Contains(t, artifact.Content, "--- Position: p1 ---")
	assert.Contains(t, artifact.Content, "Avg Entry Price: 50.000000")
}

func TestServiceExportJSON(t *testing.T) {
	svc, _ := newTestService(t, sourceWithOnePosition())

	artifact, err := svc.Export(context.Background(), Query{Kind: KindJSON})
	require.NoError(t, err)

	assert.Equal(t, "portfolio_history.json", artifact.SuggestedName)
	assert.Equal(t, "application/json", artifact.MimeType)
	assert.Contains(t, artifact.Content, `"entryPrice": "50"`)
}

func TestServiceExportNoMatches(t *testing.T) {
	svc, _ := newTestService(t, sourceWithOnePosition())

	_, err := svc.Export(context.Background(), Query{Kind: KindText, Symbol: "DOGE"})
	assert.True(t, errors.Is(err, apperrors.ErrNoMatchingPositions))
}

func TestServiceExportUnknownKind(t *testing.T) {
	svc, _ := newTestService(t, sourceWithOnePosition())

	_, err := svc.Export(context.Background(), Query{Kind: "xml"})
	assert.True(t, errors.Is(err, apperrors.ErrUnknownExportKind))
}

func TestServiceExportPartialCoverage(t *testing.T) {
	source := sourceWithOnePosition()
	source.positions = append(source.positions, core.Position{
		Idx:       "p2",
		Market:    "m1",
		Direction: "short",
		ClosedAt:  time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC),
		Pnl:       "-500000",
		Fee:       "100",
		Size:      "1000000",
	})
	source.round = ingest.RoundResult{Captured: 1, Total: 2, Complete: false}

	svc, _ := newTestService(t, source)

	artifact, err := svc.Export(context.Background(), Query{Kind: KindText})
	require.NoError(t, err)

	assert.Equal(t, 1, artifact.Captured)
	assert.Equal(t, 2, artifact.Total)
	// p2 has no events; it falls back to its summary values.
	assert.Contains(t, artifact.Content, "--- Position: p2 ---")
	assert.Contains(t, artifact.Content, "PnL: -0.5")
}

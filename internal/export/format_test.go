package export

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio_exporter/internal/core"
)

func samplePosition() core.AggregatedPosition {
	return core.AggregatedPosition{
		Position: core.Position{
			Idx:       "p1",
			Market:    "m1",
			Direction: "long",
			OpenedAt:  time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC),
			ClosedAt:  time.Date(2026, 2, 2, 18, 45, 12, 0, time.UTC),
			Order:     &core.OrderMeta{Type: "market", Leverage: "5000000000"},
		},
		EntryPrice:    decimal.NewFromInt(50),
		ClosePrice:    decimal.NewFromInt(55),
		NetPnl:        decimal.NewFromInt(25000000),
		NetFee:        decimal.NewFromInt(2000),
		NetSize:       decimal.NewFromInt(5000000),
		MarketInfo:    &core.Market{ID: "m1", Symbol: "BTC-USDC", BaseAsset: "B", QuoteAsset: "Q"},
		BaseDecimals:  6,
		QuoteDecimals: 6,
		Events: []core.AggregatedEvent{
			{
				Name:  core.EventOpenPosition,
				Size:  decimal.NewFromInt(5),
				Price: decimal.NewFromInt(50),
				Fee:   decimal.NewFromInt(2000),
				Pnl:   decimal.Zero,
			},
		},
	}
}

func TestFormatTextReport(t *testing.T) {
	generated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	out := FormatText([]core.AggregatedPosition{samplePosition()}, generated)

	assert.Contains(t, out, "Generated: 2026-03-01T12:00:00Z")
	assert.Contains(t, out, "Total Positions: 1")
	assert.Contains(t, out, "--- Position: p1 ---")
	assert.Contains(t, out, "Market: BTC-USDC | Direction: LONG | Leverage: 5x")
	assert.Contains(t, out, "Opened: 2026-02-01 09:30:00 | Closed: 2026-02-02 18:45:12")
	assert.Contains(t, out, "Avg Entry Price: 50.000000 | Avg Close Price: 55.000000")
	assert.Contains(t, out, "PnL: 25 | Fees: 0.002 | Total Size: 5")
	assert.Contains(t, out, "- openPosition | Type: N/A | Size: 5.000000 | Price: 50.000000 | Fee: 0.002 | PnL: 0")
}

func TestFormatTextDeterministic(t *testing.T) {
	generated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	positions := []core.AggregatedPosition{samplePosition()}

	assert.Equal(t,
		FormatText(positions, generated),
		FormatText(positions, generated))
}

func TestFormatTextNoEvents(t *testing.T) {
	p := samplePosition()
	p.Events = nil

	out := FormatText([]core.AggregatedPosition{p}, time.Now())
	assert.Contains(t, out, "No detailed events captured.")
}

func TestFormatTextLeverageFallbacks(t *testing.T) {
	p := samplePosition()
	p.Order = nil
	p.Notional = "100000000"
	p.Margin = "10000000"
	out := FormatText([]core.AggregatedPosition{p}, time.Now())
	assert.Contains(t, out, "Leverage: 10x", "notional/margin fallback")

	p.Margin = "0"
	out = FormatText([]core.AggregatedPosition{p}, time.Now())
	assert.Contains(t, out, "Leverage: N/Ax")
}

func TestFormatTextSortsByCloseDesc(t *testing.T) {
	older := samplePosition()
	older.Idx = "older"
	older.ClosedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := samplePosition()
	newer.Idx = "newer"
	newer.ClosedAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	out := FormatText([]core.AggregatedPosition{older, newer}, time.Now())
	assert.Less(t, strings.Index(out, "newer"), strings.Index(out, "older"))
}

func TestFormatJSONAmountsAsStrings(t *testing.T) {
	out, err := FormatJSON([]core.AggregatedPosition{samplePosition()})
	require.NoError(t, err)

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 1)

	// Raw fixed-point and decimal values must survive as strings.
	assert.Equal(t, "50", decoded[0]["entryPrice"])
	assert.IsType(t, "", decoded[0]["netPnl"])
}

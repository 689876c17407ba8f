package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio_exporter/internal/core"
)

func aggPos(idx, symbol string, closedAt time.Time) core.AggregatedPosition {
	p := core.AggregatedPosition{
		Position: core.Position{Idx: idx, Market: "m-" + idx, ClosedAt: closedAt},
	}
	if symbol != "" {
		p.MarketInfo = &core.Market{ID: "m-" + idx, Symbol: symbol}
	}
	return p
}

func TestFilterSymbolSubstring(t *testing.T) {
	positions := []core.AggregatedPosition{
		aggPos("p1", "BTC-USDC", time.Now()),
		aggPos("p2", "ETH-USDC", time.Now()),
		aggPos("p3", "", time.Now()), // no resolved market
	}

	out := Filter(positions, Query{Symbol: "btc"})
	require.Len(t, out, 1)
	assert.Equal(t, "p1", out[0].Idx)

	// Substring match hits the common quote-asset suffix.
	assert.Len(t, Filter(positions, Query{Symbol: "usdc"}), 2)

	// No filter keeps everything, including unresolved markets.
	assert.Len(t, Filter(positions, Query{}), 3)
}

func TestFilterDateRangeInclusive(t *testing.T) {
	day := func(d int, hour, min, sec int) time.Time {
		return time.Date(2026, 3, d, hour, min, sec, 0, time.UTC)
	}
	positions := []core.AggregatedPosition{
		aggPos("start-midnight", "A", day(10, 0, 0, 0)),
		aggPos("mid", "A", day(12, 15, 30, 0)),
		aggPos("end-last-second", "A", day(14, 23, 59, 59)),
		aggPos("before", "A", day(9, 23, 59, 59)),
		aggPos("after", "A", day(15, 0, 0, 0)),
	}

	out := Filter(positions, Query{
		StartDate: day(10, 0, 0, 0),
		EndDate:   day(14, 0, 0, 0),
	})

	require.Len(t, out, 3)
	ids := []string{out[0].Idx, out[1].Idx, out[2].Idx}
	assert.Contains(t, ids, "start-midnight")
	assert.Contains(t, ids, "mid")
	assert.Contains(t, ids, "end-last-second")
}

func TestFilterOpenEndedBounds(t *testing.T) {
	positions := []core.AggregatedPosition{
		aggPos("old", "A", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		aggPos("new", "A", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)),
	}

	onlyNew := Filter(positions, Query{StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.Len(t, onlyNew, 1)
	assert.Equal(t, "new", onlyNew[0].Idx)

	onlyOld := Filter(positions, Query{EndDate: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)})
	require.Len(t, onlyOld, 1)
	assert.Equal(t, "old", onlyOld[0].Idx)
}

func TestSortByCloseDesc(t *testing.T) {
	positions := []core.AggregatedPosition{
		aggPos("a", "A", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		aggPos("c", "A", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		aggPos("b", "A", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)),
	}

	SortByCloseDesc(positions)

	assert.Equal(t, "c", positions[0].Idx)
	assert.Equal(t, "b", positions[1].Idx)
	assert.Equal(t, "a", positions[2].Idx)
}

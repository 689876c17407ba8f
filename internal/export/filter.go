package export

import (
	"sort"
	"strings"
	"time"

	"portfolio_exporter/internal/core"
)

// Query is the user-specified export filter. Zero times mean an unbounded
// side of the date range.
type Query struct {
	Symbol    string
	StartDate time.Time
	EndDate   time.Time
	Kind      string
}

// Export artifact kinds.
const (
	KindText = "text"
	KindJSON = "json"
)

// Filter applies the symbol and date filters over aggregated positions.
// The symbol filter is a case-insensitive substring match on the market
// symbol; positions with no resolved market never match a symbol filter.
// Date bounds are inclusive on the close timestamp, the end bound through
// the end of that calendar day.
func Filter(positions []core.AggregatedPosition, q Query) []core.AggregatedPosition {
	symbol := strings.ToLower(strings.TrimSpace(q.Symbol))

	var end time.Time
	if !q.EndDate.IsZero() {
		end = endOfDay(q.EndDate)
	}

	out := make([]core.AggregatedPosition, 0, len(positions))
	for _, p := range positions {
		if symbol != "" {
			if p.MarketInfo == nil || !strings.Contains(strings.ToLower(p.MarketInfo.Symbol), symbol) {
				continue
			}
		}
		if !q.StartDate.IsZero() && p.ClosedAt.Before(q.StartDate) {
			continue
		}
		if !end.IsZero() && p.ClosedAt.After(end) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// SortByCloseDesc orders positions by close time, most recent first. Ties
// break on Idx so output stays deterministic.
func SortByCloseDesc(positions []core.AggregatedPosition) {
	sort.SliceStable(positions, func(i, j int) bool {
		if positions[i].ClosedAt.Equal(positions[j].ClosedAt) {
			return positions[i].Idx < positions[j].Idx
		}
		return positions[i].ClosedAt.After(positions[j].ClosedAt)
	})
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

package export

import (
	"fmt"
	"strings"
	"time"

	"portfolio_exporter/internal/core"
	"portfolio_exporter/internal/fixedpoint"
)

const timeLayout = "2006-01-02 15:04:05"

// FormatText renders the positions as the human-readable report: a header,
// then one block per position sorted by close time descending, with one
// line per normalized event. Pure function of its inputs; generatedAt is
// passed in so snapshots stay stable.
func FormatText(positions []core.AggregatedPosition, generatedAt time.Time) string {
	sorted := append([]core.AggregatedPosition(nil), positions...)
	SortByCloseDesc(sorted)

	var b strings.Builder
	b.WriteString("Portfolio Trade History Export\n")
	fmt.Fprintf(&b, "Generated: %s\n", generatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Total Positions: %d\n", len(sorted))
	b.WriteString("====================================\n\n")

	for _, p := range sorted {
		fmt.Fprintf(&b, "--- Position: %s ---\n", p.Idx)
		fmt.Fprintf(&b, "Market: %s | Direction: %s | Leverage: %sx\n",
			marketLabel(p), strings.ToUpper(p.Direction), leverageLabel(p))
		fmt.Fprintf(&b, "Opened: %s | Closed: %s\n",
			p.OpenedAt.UTC().Format(timeLayout), p.ClosedAt.UTC().Format(timeLayout))
		fmt.Fprintf(&b, "Avg Entry Price: %s | Avg Close Price: %s\n",
			p.EntryPrice.StringFixed(int32(p.QuoteDecimals)),
			p.ClosePrice.StringFixed(int32(p.QuoteDecimals)))
		fmt.Fprintf(&b, "PnL: %s | Fees: %s | Total Size: %s\n",
			fixedpoint.FromDecimal(p.NetPnl, p.QuoteDecimals),
			fixedpoint.FromDecimal(p.NetFee, p.QuoteDecimals),
			fixedpoint.FromDecimal(p.NetSize, p.BaseDecimals))
		b.WriteString("Events:\n")
		if len(p.Events) == 0 {
			b.WriteString("  - No detailed events captured.\n")
		}
		for _, e := range p.Events {
			orderType := e.OrderType
			if orderType == "" {
				orderType = "N/A"
			}
			fmt.Fprintf(&b, "  - %s | Type: %s | Size: %s | Price: %s | Fee: %s | PnL: %s\n",
				e.Name, orderType,
				e.Size.StringFixed(int32(p.BaseDecimals)),
				e.Price.StringFixed(int32(p.QuoteDecimals)),
				fixedpoint.FromDecimal(e.Fee, p.QuoteDecimals),
				fixedpoint.FromDecimal(e.Pnl, p.QuoteDecimals))
		}
		b.WriteString("-----------------------------\n\n")
	}

	return b.String()
}

func marketLabel(p core.AggregatedPosition) string {
	if p.MarketInfo != nil && p.MarketInfo.Symbol != "" {
		return p.MarketInfo.Symbol
	}
	if p.Market != "" {
		return p.Market
	}
	return "N/A"
}

// leverageLabel resolves leverage from the order metadata (fixed-point with
// nine decimals), falling back to notional/margin when the order carries
// none.
func leverageLabel(p core.AggregatedPosition) string {
	if p.Order != nil && p.Order.Leverage != "" && !p.Order.Leverage.IsZero() {
		return fixedpoint.Decimal(p.Order.Leverage, 9).String()
	}
	margin := fixedpoint.Decimal(p.Margin, 0)
	if p.Notional != "" && !margin.IsZero() {
		notional := fixedpoint.Decimal(p.Notional, 0)
		return notional.Div(margin).String()
	}
	return "N/A"
}

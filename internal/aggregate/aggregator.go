// Package aggregate derives the economic view of a position from its raw
// event list. Aggregation is a pure function of its inputs: given identical
// position, events, market and decimal table it returns identical output,
// which makes re-export after a partial re-fetch safe.
package aggregate

import (
	"github.com/shopspring/decimal"

	"portfolio_exporter/internal/core"
	"portfolio_exporter/internal/fixedpoint"
)

// DefaultBaseExtraDecimals is the extra fixed scale the upstream applies to
// exchanged-base amounts on top of the asset's declared decimals. Observed
// as a protocol constant; configurable in case it turns out to be
// market-specific.
const DefaultBaseExtraDecimals = 3

// Aggregator computes aggregated positions. It holds only configuration,
// never state.
type Aggregator struct {
	baseExtraDecimals int
}

func New(baseExtraDecimals int) *Aggregator {
	if baseExtraDecimals < 0 {
		baseExtraDecimals = DefaultBaseExtraDecimals
	}
	return &Aggregator{baseExtraDecimals: baseExtraDecimals}
}

// Aggregate computes weighted entry/close prices, net fee, net PnL, net
// size and the normalized per-event view for one position.
//
// Events whose exchanged-base amount is zero are non-economic settlement
// records and contribute nothing. When the event sums are zero the
// position's own close-time summary values are used instead, so positions
// without captured detail still export meaningfully.
func (a *Aggregator) Aggregate(pos core.Position, events []core.RawEvent, market *core.Market, decimals map[string]int) core.AggregatedPosition {
	baseDec := fixedpoint.DefaultAssetDecimals
	quoteDec := fixedpoint.DefaultAssetDecimals
	if market != nil {
		baseDec = lookupDecimals(decimals, market.BaseAsset)
		quoteDec = lookupDecimals(decimals, market.QuoteAsset)
	}

	var (
		totalFee, totalPnl    decimal.Decimal
		entryQuote, entryBase decimal.Decimal
		closeQuote, closeBase decimal.Decimal
		normalized            []core.AggregatedEvent
	)

	for _, ev := range events {
		if ev.ExchangedBase.IsZero() {
			continue
		}
		baseAmount := fixedpoint.Decimal(ev.ExchangedBase, baseDec+a.baseExtraDecimals)
		quoteAmount := fixedpoint.Decimal(ev.ExchangedQuote, quoteDec)

		price := decimal.Zero
		if !baseAmount.IsZero() {
			price = quoteAmount.Div(baseAmount).Abs()
		}

		fee := fixedpoint.Decimal(ev.FeeInEvent, 0)
		pnl := fixedpoint.Decimal(ev.PnlInEvent, 0)
		totalFee = totalFee.Add(fee)
		totalPnl = totalPnl.Add(pnl)

		switch ev.EventName {
		case core.EventOpenPosition, core.EventIncreasePosition:
			entryQuote = entryQuote.Add(quoteAmount)
			entryBase = entryBase.Add(baseAmount)
		case core.EventClosePosition, core.EventDecreasePosition:
			closeQuote = closeQuote.Add(quoteAmount)
			closeBase = closeBase.Add(baseAmount)
		}

		orderType := ""
		if ev.Order != nil {
			orderType = ev.Order.Type
		}
		normalized = append(normalized, core.AggregatedEvent{
			Name:      ev.EventName,
			Size:      baseAmount,
			Price:     price,
			Fee:       fee,
			Pnl:       pnl,
			OrderType: orderType,
		})
	}

	entryPrice := decimal.Zero
	if entryBase.IsPositive() {
		entryPrice = entryQuote.Div(entryBase).Abs()
	}
	closePrice := decimal.Zero
	if !closeBase.IsZero() {
		closePrice = closeQuote.Div(closeBase.Abs()).Abs()
	}

	netPnl := totalPnl
	if netPnl.IsZero() {
		netPnl = fixedpoint.Decimal(pos.Pnl, 0)
	}
	netFee := totalFee
	if netFee.IsZero() {
		netFee = fixedpoint.Decimal(pos.Fee, 0)
	}

	// Net size in raw integer units of the base asset.
	netSize := fixedpoint.Decimal(pos.Size, 0)
	if entryBase.IsPositive() {
		netSize = entryBase.Shift(int32(baseDec))
	}

	return core.AggregatedPosition{
		Position:      pos,
		EntryPrice:    entryPrice,
		ClosePrice:    closePrice,
		NetPnl:        netPnl,
		NetFee:        netFee,
		NetSize:       netSize,
		MarketInfo:    market,
		BaseDecimals:  baseDec,
		QuoteDecimals: quoteDec,
		Events:        normalized,
	}
}

func lookupDecimals(table map[string]int, asset string) int {
	if d, ok := table[asset]; ok {
		return d
	}
	return fixedpoint.DefaultAssetDecimals
}

package core

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// RawAmount is a fixed-point integer magnitude exactly as transmitted by the
// upstream API, which encodes amounts either as JSON numbers or as quoted
// strings depending on the endpoint. The raw text is preserved so no width
// is lost before the codec converts it.
type RawAmount string

// UnmarshalJSON accepts strings, numbers and null.
func (a *RawAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = RawAmount(s)
		return nil
	}
	*a = RawAmount(data)
	return nil
}

// MarshalJSON renders the amount as a decimal string so arbitrary-precision
// values survive consumers that parse JSON numbers as float64.
func (a RawAmount) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(a))
}

func (a RawAmount) String() string {
	return string(a)
}

// IsZero reports whether the amount is empty or parses to zero.
func (a RawAmount) IsZero() bool {
	if a == "" {
		return true
	}
	d, err := decimal.NewFromString(string(a))
	if err != nil {
		return true
	}
	return d.IsZero()
}

// Raw event kinds as reported by the upstream event-detail endpoint.
const (
	EventOpenPosition     = "openPosition"
	EventIncreasePosition = "increasePosition"
	EventClosePosition    = "closePosition"
	EventDecreasePosition = "decreasePosition"
)

// OrderMeta carries order metadata attached to a position or raw event.
type OrderMeta struct {
	Type     string    `json:"type,omitempty"`
	Leverage RawAmount `json:"leverage,omitempty"`
}

// Position is a closed trading position as reported by the position-list
// endpoint. Economic fields are raw fixed-point integers; decimal resolution
// happens at aggregation time. Positions are immutable once recorded: the
// position table applies first-write-wins per Idx within a load cycle.
type Position struct {
	Idx       string     `json:"idx"`
	Market    string     `json:"market"`
	Direction string     `json:"direction"`
	OpenedAt  time.Time  `json:"openedAt"`
	ClosedAt  time.Time  `json:"closedAt"`
	Pnl       RawAmount  `json:"pnl"`
	Fee       RawAmount  `json:"fee"`
	Size      RawAmount  `json:"size"`
	Notional  RawAmount  `json:"notional,omitempty"`
	Margin    RawAmount  `json:"margin,omitempty"`
	Order     *OrderMeta `json:"order,omitempty"`
}

// Market is a market definition from the market-list endpoint. Keyed by ID;
// upserts overwrite (last write wins).
type Market struct {
	ID         string `json:"id"`
	Symbol     string `json:"symbol"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// RawEvent is a single fill/adjustment belonging to one position. A
// position's event list is replaced atomically when fresh detail data
// arrives; it is never merged.
type RawEvent struct {
	EventName      string     `json:"eventName"`
	ExchangedBase  RawAmount  `json:"exchangedBase"`
	ExchangedQuote RawAmount  `json:"exchangedQuote"`
	FeeInEvent     RawAmount  `json:"feeInEvent"`
	PnlInEvent     RawAmount  `json:"pnlInEvent"`
	Order          *OrderMeta `json:"order,omitempty"`
}

// AggregatedEvent is the normalized per-event view produced by the
// aggregator: sizes and prices in economic units, fee/PnL still in raw
// quote-integer units.
type AggregatedEvent struct {
	Name      string          `json:"name"`
	Size      decimal.Decimal `json:"size"`
	Price     decimal.Decimal `json:"price"`
	Fee       decimal.Decimal `json:"fee"`
	Pnl       decimal.Decimal `json:"pnl"`
	OrderType string          `json:"type,omitempty"`
}

// AggregatedPosition is the derived, never-persisted view of a position:
// the original fields plus weighted prices, net outcomes and the normalized
// event list. Net values are in raw integer units of the respective asset.
type AggregatedPosition struct {
	Position
	EntryPrice    decimal.Decimal   `json:"entryPrice"`
	ClosePrice    decimal.Decimal   `json:"closePrice"`
	NetPnl        decimal.Decimal   `json:"netPnl"`
	NetFee        decimal.Decimal   `json:"netFee"`
	NetSize       decimal.Decimal   `json:"netSize"`
	MarketInfo    *Market           `json:"marketInfo,omitempty"`
	BaseDecimals  int               `json:"baseDecimals"`
	QuoteDecimals int               `json:"quoteDecimals"`
	Events        []AggregatedEvent `json:"events"`
}

// StatusUpdate is pushed to observers whenever the reconciler's view of the
// capture progress changes.
type StatusUpdate struct {
	Captured  int  `json:"captured"`
	Collected int  `json:"collected"`
	Fetching  bool `json:"fetching"`
}

package refdata

import (
	"testing"

	"portfolio_exporter/internal/core"

	"github.com/stretchr/testify/assert"
)

func TestStore_MarketLastWriteWins(t *testing.T) {
	s := NewStore()
	s.UpsertMarket(core.Market{ID: "m1", Symbol: "BTC-USD", BaseAsset: "BTC", QuoteAsset: "USD"})
	s.UpsertMarket(core.Market{ID: "m1", Symbol: "BTC-USDC", BaseAsset: "BTC", QuoteAsset: "USDC"})

	m, ok := s.Market("m1")
	assert.True(t, ok)
	assert.Equal(t, "BTC-USDC", m.Symbol)
	assert.Equal(t, 1, s.MarketCount())
}

func TestStore_UnknownMarket(t *testing.T) {
	s := NewStore()
	_, ok := s.Market("missing")
	assert.False(t, ok)
}

func TestStore_AssetDecimalsDefault(t *testing.T) {
	s := NewStore()
	assert.Equal(t, 6, s.AssetDecimals("UNKNOWN"))

	s.ReplaceAssetDecimals(map[string]int{"BTC": 8})
	assert.Equal(t, 8, s.AssetDecimals("BTC"))
	assert.Equal(t, 6, s.AssetDecimals("ETH"))
}

func TestStore_ReplaceAssetDecimalsIsWholesale(t *testing.T) {
	s := NewStore()
	s.ReplaceAssetDecimals(map[string]int{"BTC": 8, "ETH": 18})
	s.ReplaceAssetDecimals(map[string]int{"SOL": 9})

	// Old entries must not survive a replacement.
	assert.Equal(t, 6, s.AssetDecimals("BTC"))
	assert.Equal(t, 9, s.AssetDecimals("SOL"))
}

func TestStore_SnapshotsAreCopies(t *testing.T) {
	s := NewStore()
	s.UpsertMarket(core.Market{ID: "m1", Symbol: "BTC-USD"})
	s.ReplaceAssetDecimals(map[string]int{"BTC": 8})

	markets := s.MarketsSnapshot()
	decimals := s.DecimalsSnapshot()
	markets["m2"] = core.Market{ID: "m2"}
	decimals["ETH"] = 18

	assert.Equal(t, 1, s.MarketCount())
	assert.Equal(t, 6, s.AssetDecimals("ETH"))
}

func TestStore_Restore(t *testing.T) {
	s := NewStore()
	s.UpsertMarket(core.Market{ID: "old"})
	s.Restore(
		map[string]core.Market{"m1": {ID: "m1", Symbol: "ETH-USD"}},
		map[string]int{"ETH": 18},
	)

	_, ok := s.Market("old")
	assert.False(t, ok)
	m, ok := s.Market("m1")
	assert.True(t, ok)
	assert.Equal(t, "ETH-USD", m.Symbol)
	assert.Equal(t, 18, s.AssetDecimals("ETH"))

	s.Restore(nil, nil)
	assert.Equal(t, 0, s.MarketCount())
}

// Package refdata holds the long-lived lookup tables: market definitions
// and per-asset decimal precision. It is owned by the ingestion reconciler,
// which serializes it into the persisted state document after every
// mutation; every other component only sees copies.
package refdata

import (
	"sync"

	"portfolio_exporter/internal/core"
	"portfolio_exporter/internal/fixedpoint"
)

// Store is the in-memory reference data table set.
type Store struct {
	mu            sync.RWMutex
	markets       map[string]core.Market
	assetDecimals map[string]int
}

// NewStore creates an empty reference data store.
func NewStore() *Store {
	return &Store{
		markets:       make(map[string]core.Market),
		assetDecimals: make(map[string]int),
	}
}

// UpsertMarket inserts or overwrites a market definition. Markets are
// correctable reference data, so last write wins.
func (s *Store) UpsertMarket(m core.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.ID] = m
}

// Market returns the market definition for id.
func (s *Store) Market(id string) (core.Market, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[id]
	return m, ok
}

// MarketCount returns the number of known markets.
func (s *Store) MarketCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.markets)
}

// ReplaceAssetDecimals swaps the whole decimal table for a fresh one. The
// precision payload is authoritative; partial merges would leave stale
// entries behind.
func (s *Store) ReplaceAssetDecimals(table map[string]int) {
	fresh := make(map[string]int, len(table))
	for asset, dec := range table {
		fresh[asset] = dec
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assetDecimals = fresh
}

// AssetDecimals returns the decimal exponent for an asset, defaulting when
// the asset is unknown.
func (s *Store) AssetDecimals(assetID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if dec, ok := s.assetDecimals[assetID]; ok {
		return dec
	}
	return fixedpoint.DefaultAssetDecimals
}

// DecimalsSnapshot returns a copy of the decimal table for read-only use by
// the aggregator.
func (s *Store) DecimalsSnapshot() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.assetDecimals))
	for asset, dec := range s.assetDecimals {
		out[asset] = dec
	}
	return out
}

// MarketsSnapshot returns a copy of the market table.
func (s *Store) MarketsSnapshot() map[string]core.Market {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]core.Market, len(s.markets))
	for id, m := range s.markets {
		out[id] = m
	}
	return out
}

// Restore replaces both tables from a previously persisted snapshot. Nil
// maps restore to empty tables.
func (s *Store) Restore(markets map[string]core.Market, decimals map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets = make(map[string]core.Market, len(markets))
	for id, m := range markets {
		s.markets[id] = m
	}
	s.assetDecimals = make(map[string]int, len(decimals))
	for asset, dec := range decimals {
		s.assetDecimals[asset] = dec
	}
}

package ingest

import (
	"context"
	"encoding/json"

	"portfolio_exporter/internal/core"
	"portfolio_exporter/pkg/retry"
)

// SnapshotKey is the single blob-store key the reconciled state lives
// under.
const SnapshotKey = "exporter/state/v1"

// snapshotDoc is the persisted form of the reconciled state: one JSON
// document holding every table. Events are written for inspection but are
// never restored; each reconciliation round re-collects them.
type snapshotDoc struct {
	Positions     []core.Position            `json:"positions"`
	Markets       map[string]core.Market     `json:"markets"`
	AssetDecimals map[string]int             `json:"assetDecimals"`
	Events        map[string][]core.RawEvent `json:"events"`
}

// persist writes the current state to the blob store. Failures degrade to a
// logged warning; the in-memory tables stay authoritative.
func (r *Reconciler) persist(ctx context.Context) {
	r.mu.Lock()
	doc := snapshotDoc{
		Positions:     r.positionsLocked(),
		Markets:       r.refdata.MarketsSnapshot(),
		AssetDecimals: r.refdata.DecimalsSnapshot(),
		Events:        make(map[string][]core.RawEvent, len(r.events)),
	}
	for id, evs := range r.events {
		doc.Events[id] = append([]core.RawEvent(nil), evs...)
	}
	r.mu.Unlock()

	data, err := json.Marshal(doc)
	if err != nil {
		r.logger.Error("failed to serialize state snapshot", "error", err)
		return
	}

	err = retry.Do(ctx, retry.StorePolicy, func(error) bool { return true }, func() error {
		return r.store.Set(ctx, SnapshotKey, string(data))
	})
	if err != nil {
		r.logger.Warn("failed to persist state snapshot", "error", err)
	}
}

// Restore loads the persisted state if present. Positions, markets and
// asset decimals are restored; events are round-scoped and start empty. A
// missing or unreadable snapshot is treated as empty state, never fatal.
func (r *Reconciler) Restore(ctx context.Context) {
	raw, ok, err := r.store.Get(ctx, SnapshotKey)
	if err != nil {
		r.logger.Warn("failed to read state snapshot, starting empty", "error", err)
		return
	}
	if !ok {
		return
	}

	var doc snapshotDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		r.logger.Warn("saved state snapshot is malformed, starting empty", "error", err)
		return
	}

	r.mu.Lock()
	for _, p := range doc.Positions {
		if p.Idx == "" {
			continue
		}
		if _, exists := r.positions[p.Idx]; !exists {
			r.positions[p.Idx] = p
			r.order = append(r.order, p.Idx)
		}
	}
	captured := len(r.positions)
	r.mu.Unlock()

	r.refdata.Restore(doc.Markets, doc.AssetDecimals)

	r.logger.Info("restored state snapshot",
		"positions", captured,
		"markets", r.refdata.MarketCount())
	r.notifyStatus()
}

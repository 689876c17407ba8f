package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"portfolio_exporter/internal/core"
	"portfolio_exporter/internal/refdata"
	apperrors "portfolio_exporter/pkg/errors"
	"portfolio_exporter/pkg/telemetry"
)

// DefaultDetailTimeout bounds one reconciliation round.
const DefaultDetailTimeout = 60 * time.Second

// Config configures a Reconciler.
type Config struct {
	// MonitoredOrigin is the API host whose responses are ingested.
	// Payloads whose URL does not contain it are ignored.
	MonitoredOrigin string
	// DetailTimeout bounds EnsureAllDetailsFetched. Zero means
	// DefaultDetailTimeout.
	DetailTimeout time.Duration
}

// RoundResult is the outcome of one reconciliation round.
type RoundResult struct {
	// Captured is the number of positions with a collected event list.
	Captured int
	// Total is the number of known positions when the round started.
	Total int
	// Complete is false when the round timed out with partial coverage.
	Complete bool
}

// fetchRound is one in-flight detail-collection round. Concurrent callers
// of EnsureAllDetailsFetched share it and observe the same outcome; the
// ingest path finishes it as soon as coverage is reached.
type fetchRound struct {
	total  int
	done   chan struct{}
	once   sync.Once
	result RoundResult
}

func (f *fetchRound) finish(result RoundResult) {
	f.once.Do(func() {
		f.result = result
		close(f.done)
	})
}

// Reconciler consumes captured network payloads and maintains the position
// table, the per-position raw-event table and the reference data store.
// Merge policy differs deliberately per entity: positions are immutable
// facts (first write wins per Idx within a load cycle), while markets and
// event lists may be corrected by the upstream (last write wins, event
// lists replaced atomically).
type Reconciler struct {
	cfg     Config
	refdata *refdata.Store
	store   core.IBlobStore
	trigger core.IDetailTrigger
	logger  core.ILogger

	mu        sync.Mutex
	positions map[string]core.Position
	order     []string
	events    map[string][]core.RawEvent
	freshLoad bool
	pageSeen  bool
	round     *fetchRound

	observerMu sync.RWMutex
	observer   core.IStatusObserver
}

func NewReconciler(cfg Config, ref *refdata.Store, store core.IBlobStore, trigger core.IDetailTrigger, logger core.ILogger) *Reconciler {
	if cfg.DetailTimeout <= 0 {
		cfg.DetailTimeout = DefaultDetailTimeout
	}
	return &Reconciler{
		cfg:       cfg,
		refdata:   ref,
		store:     store,
		trigger:   trigger,
		logger:    logger.WithField("component", "reconciler"),
		positions: make(map[string]core.Position),
		events:    make(map[string][]core.RawEvent),
		freshLoad: true,
	}
}

// SetStatusObserver registers the callback that receives capture-progress
// updates. One observer at a time; nil clears it.
func (r *Reconciler) SetStatusObserver(obs core.IStatusObserver) {
	r.observerMu.Lock()
	r.observer = obs
	r.observerMu.Unlock()
}

// Ingest processes one observed network response. Payloads from other
// origins, non-success responses, empty bodies and bodies that fail to
// parse are swallowed; state stays unchanged for that payload.
func (r *Reconciler) Ingest(url string, httpStatus int, body []byte) {
	if !strings.Contains(url, r.cfg.MonitoredOrigin) || httpStatus != 200 || len(body) == 0 {
		return
	}

	ctx := context.Background()
	kind := classify(url)

	var err error
	switch kind {
	case kindPositions:
		err = r.ingestPositions(ctx, url, body)
	case kindMarkets:
		err = r.ingestMarkets(ctx, body)
	case kindConfig:
		err = r.ingestConfig(ctx, url, body)
	case kindDetail:
		err = r.ingestDetail(ctx, url, body)
	}
	if err != nil {
		telemetry.GetGlobalMetrics().CountMalformed(ctx)
		r.logger.Warn("failed to process captured payload",
			"url", url, "kind", kind.String(), "error", err)
		return
	}
	telemetry.GetGlobalMetrics().CountIngested(ctx, kind.String())
}

// ResetListing marks the next offset-zero position-list page as the start
// of a fresh listing, so it clears the accumulated table.
func (r *Reconciler) ResetListing() {
	r.mu.Lock()
	r.pageSeen = false
	r.mu.Unlock()
}

func (r *Reconciler) ingestPositions(ctx context.Context, url string, body []byte) error {
	var payload positionListPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrMalformedPayload, err)
	}

	r.mu.Lock()
	// Only the first offset-zero page of a listing wipes the table;
	// repeated zero-offset requests within one listing must not discard
	// the pages accumulated after them.
	if hasZeroOffset(url) && !r.pageSeen {
		r.pageSeen = true
		r.positions = make(map[string]core.Position)
		r.order = r.order[:0]
	}

	before := len(r.positions)
	for _, p := range payload.Data {
		if p.Idx == "" {
			continue
		}
		if _, exists := r.positions[p.Idx]; exists {
			continue
		}
		r.positions[p.Idx] = p
		r.order = append(r.order, p.Idx)
	}
	grew := len(r.positions) > before
	captured := len(r.positions)
	r.mu.Unlock()

	if grew {
		telemetry.GetGlobalMetrics().SetPositionsCaptured(int64(captured))
		r.persist(ctx)
		r.notifyStatus()
	}
	return nil
}

func (r *Reconciler) ingestMarkets(ctx context.Context, body []byte) error {
	var markets []core.Market
	if err := json.Unmarshal(body, &markets); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrMalformedPayload, err)
	}
	for _, m := range markets {
		if m.ID == "" {
			continue
		}
		r.refdata.UpsertMarket(m)
	}
	r.persist(ctx)
	return nil
}

func (r *Reconciler) ingestConfig(ctx context.Context, url string, body []byte) error {
	var payload configPayload
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.AssetDecimals) == 0 {
		// Not every config-classified URL carries a precision table: a
		// detail response for a position whose id contains "config"
		// lands here too, with an array body. Hand both shapes to the
		// detail path; bodies that parse as neither fail there.
		return r.ingestDetail(ctx, url, body)
	}
	r.refdata.ReplaceAssetDecimals(payload.AssetDecimals)
	r.persist(ctx)
	return nil
}

func (r *Reconciler) ingestDetail(ctx context.Context, url string, body []byte) error {
	positionID := positionIDFromURL(url)
	if positionID == "" {
		return nil
	}

	var events []core.RawEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrMalformedPayload, err)
	}

	r.mu.Lock()
	r.events[positionID] = events
	collected := len(r.events)
	total := len(r.positions)
	round := r.round
	r.mu.Unlock()

	telemetry.GetGlobalMetrics().SetDetailsCollected(int64(collected))
	r.logger.Debug("received event detail",
		"position", positionID, "collected", collected, "total", total)

	r.persist(ctx)
	r.notifyStatus()

	if round != nil && collected >= round.total {
		round.finish(RoundResult{Captured: collected, Total: round.total, Complete: true})
	}
	return nil
}

// EnsureAllDetailsFetched runs one reconciliation round: it clears the
// event table, asks the detail trigger to make the host emit event-detail
// responses, and waits until every known position has an event list or the
// configured timeout elapses. Concurrent callers join the in-flight round
// and receive its outcome. A round that already has full coverage on a
// non-fresh session returns immediately without triggering.
func (r *Reconciler) EnsureAllDetailsFetched(ctx context.Context) (RoundResult, error) {
	r.mu.Lock()

	if round := r.round; round != nil {
		r.mu.Unlock()
		return r.awaitRound(ctx, round)
	}

	total := len(r.positions)
	if !r.freshLoad && total > 0 && len(r.events) >= total {
		result := RoundResult{Captured: len(r.events), Total: total, Complete: true}
		r.mu.Unlock()
		return result, nil
	}

	r.freshLoad = false
	r.events = make(map[string][]core.RawEvent)

	if total == 0 {
		r.mu.Unlock()
		telemetry.GetGlobalMetrics().SetDetailsCollected(0)
		r.notifyStatus()
		return RoundResult{Complete: true}, nil
	}

	round := &fetchRound{total: total, done: make(chan struct{})}
	r.round = round
	r.mu.Unlock()

	telemetry.GetGlobalMetrics().SetDetailsCollected(0)
	r.notifyStatus()

	if err := r.trigger.TriggerDetails(ctx); err != nil {
		r.logger.Warn("detail trigger failed, waiting on passive capture", "error", err)
	}

	timer := time.NewTimer(r.cfg.DetailTimeout)
	defer timer.Stop()

	select {
	case <-round.done:
	case <-timer.C:
		r.mu.Lock()
		captured := len(r.events)
		r.mu.Unlock()
		round.finish(RoundResult{Captured: captured, Total: total, Complete: false})
	case <-ctx.Done():
		r.mu.Lock()
		captured := len(r.events)
		r.mu.Unlock()
		round.finish(RoundResult{Captured: captured, Total: total, Complete: false})
	}

	r.mu.Lock()
	r.round = nil
	r.mu.Unlock()
	r.notifyStatus()

	result := round.result
	outcome := "complete"
	if !result.Complete {
		outcome = "partial"
		r.logger.Warn("detail collection timed out",
			"captured", result.Captured, "total", result.Total)
	}
	telemetry.GetGlobalMetrics().CountFetchRound(ctx, outcome)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// awaitRound joins an in-flight round. The caller's context only detaches
// the caller; the round keeps running for its owner.
func (r *Reconciler) awaitRound(ctx context.Context, round *fetchRound) (RoundResult, error) {
	select {
	case <-round.done:
		return round.result, nil
	case <-ctx.Done():
		return RoundResult{}, ctx.Err()
	}
}

// Positions returns a copy of the position table in capture order.
func (r *Reconciler) Positions() []core.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.positionsLocked()
}

func (r *Reconciler) positionsLocked() []core.Position {
	out := make([]core.Position, 0, len(r.order))
	for _, idx := range r.order {
		out = append(out, r.positions[idx])
	}
	return out
}

// Events returns a copy of the event list recorded for one position.
func (r *Reconciler) Events(positionID string) []core.RawEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.RawEvent(nil), r.events[positionID]...)
}

// Status reports the current capture progress.
func (r *Reconciler) Status() core.StatusUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return core.StatusUpdate{
		Captured:  len(r.positions),
		Collected: len(r.events),
		Fetching:  r.round != nil,
	}
}

func (r *Reconciler) notifyStatus() {
	r.observerMu.RLock()
	obs := r.observer
	r.observerMu.RUnlock()
	if obs != nil {
		obs(r.Status())
	}
}

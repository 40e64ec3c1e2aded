// Package engine coordinates the matching core: serialized discovery passes
// over the item pool, idempotent match persistence, the match review
// lifecycle, and handoff to the notification worker via the job queue.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/refind-app/refind/internal/match"
	"github.com/refind-app/refind/internal/storage"
)

// JobTypeMatchNotify is the queue job type the notify worker consumes.
const JobTypeMatchNotify = "match_notify"

// NotifyPayload is the match_notify job payload.
type NotifyPayload struct {
	MatchID string `json:"match_id"`
}

// Engine runs discovery and owns match lifecycle mutations. All state
// mutation funnels through its mutex, so two discovery passes never
// interleave against a partially-updated item set.
type Engine struct {
	mu      sync.Mutex
	store   *storage.Store
	weights match.Weights
	logger  *slog.Logger
}

// New creates an Engine over the given store using the default weight table.
func New(store *storage.Store) *Engine {
	return &Engine{
		store:   store,
		weights: match.DefaultWeights,
		logger:  slog.Default(),
	}
}

// DiscoveryResult summarizes one discovery pass.
type DiscoveryResult struct {
	Candidates int `json:"candidates"` // pairs that met the threshold this pass
	New        int `json:"new"`        // match records created (and queued for notification)
}

// RunDiscovery scores every active lost/found pair, persists matches that
// meet the minimum score, and enqueues a notification job for each newly
// created match. Running it again on an unchanged item set creates nothing.
// A failure to persist one match is logged and skipped, never aborting the
// rest of the pass.
func (e *Engine) RunDiscovery(ctx context.Context) (DiscoveryResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	items, err := e.store.ListItems("", "")
	if err != nil {
		return DiscoveryResult{}, fmt.Errorf("listing items: %w", err)
	}

	candidates := match.Discover(items, e.weights)
	result := DiscoveryResult{Candidates: len(candidates)}

	for _, m := range candidates {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		created, err := e.store.SaveMatchIfAbsent(m)
		if err != nil {
			e.logger.Warn("persisting match failed", "match_id", m.ID, "error", err)
			continue
		}
		if !created {
			continue
		}
		result.New++
		e.logger.Info("match discovered", "match_id", m.ID, "score", m.Score)
		if err := e.enqueueNotify(m.ID); err != nil {
			e.logger.Warn("queueing notification failed", "match_id", m.ID, "error", err)
		}
	}
	return result, nil
}

func (e *Engine) enqueueNotify(matchID string) error {
	payload, err := json.Marshal(NotifyPayload{MatchID: matchID})
	if err != nil {
		return err
	}
	return e.store.EnqueueJob(storage.Job{
		ID:          uuid.New().String(),
		Type:        JobTypeMatchNotify,
		PayloadJSON: string(payload),
	})
}

// Confirm transitions a pending match to confirmed and marks both linked
// items matched with mutual back-references. Confirming a non-pending match
// returns storage.ErrInvalidTransition with no partial mutation.
func (e *Engine) Confirm(matchID string) (storage.Match, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.store.ConfirmMatch(matchID)
	if err != nil {
		return storage.Match{}, err
	}
	e.logger.Info("match confirmed", "match_id", matchID)
	return m, nil
}

// Reject transitions a pending match to rejected. Item statuses are left
// alone so both items remain matchable against other candidates.
func (e *Engine) Reject(matchID string) (storage.Match, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.store.RejectMatch(matchID)
	if err != nil {
		return storage.Match{}, err
	}
	e.logger.Info("match rejected", "match_id", matchID)
	return m, nil
}

// ResolveItem marks an item resolved (owner recovered it outside a match).
func (e *Engine) ResolveItem(itemID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	item, err := e.store.GetItem(itemID)
	if err != nil {
		return err
	}
	return e.store.UpdateItemStatus(itemID, storage.StatusResolved, item.MatchedWith)
}

// DeleteItem removes an item and cascades to every match referencing it,
// regardless of those matches' status.
func (e *Engine) DeleteItem(itemID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.DeleteItem(itemID); err != nil {
		return err
	}
	e.logger.Info("item deleted", "item_id", itemID)
	return nil
}

// SubmitItem stores a new report and immediately runs a discovery pass so
// fresh matches surface on submission.
func (e *Engine) SubmitItem(ctx context.Context, item storage.Item) (DiscoveryResult, error) {
	e.mu.Lock()
	if err := e.store.SaveItem(item); err != nil {
		e.mu.Unlock()
		return DiscoveryResult{}, fmt.Errorf("saving item: %w", err)
	}
	e.mu.Unlock()

	return e.RunDiscovery(ctx)
}

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/refind-app/refind/internal/engine"
	"github.com/refind-app/refind/internal/storage"
)

// JobStore abstracts the job queue and record lookups the worker needs.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetMatch(id string) (storage.Match, error)
	GetItem(id string) (storage.Item, error)
}

// Worker drains match_notify jobs from the queue and hands each match to
// the dispatcher. The queue's claim semantics plus the dispatcher's
// notification_sent check give at-most-once delivery per match.
type Worker struct {
	store      JobStore
	dispatcher *Dispatcher
	poll       time.Duration
	logger     *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, dispatcher *Dispatcher, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:      store,
		dispatcher: dispatcher,
		poll:       pollInterval,
		logger:     slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single match_notify job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{engine.JobTypeMatchNotify})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload engine.NotifyPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	m, err := w.store.GetMatch(payload.MatchID)
	if errors.Is(err, storage.ErrNotFound) {
		// The match was deleted after the job was queued (item cascade);
		// nothing left to notify.
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading match %s: %w", payload.MatchID, err)
	}
	if m.NotificationSent {
		return nil
	}

	lost, err := w.store.GetItem(m.LostItemID)
	if err != nil {
		return fmt.Errorf("loading lost item %s: %w", m.LostItemID, err)
	}
	found, err := w.store.GetItem(m.FoundItemID)
	if err != nil {
		return fmt.Errorf("loading found item %s: %w", m.FoundItemID, err)
	}

	return w.dispatcher.Dispatch(ctx, m, lost, found)
}

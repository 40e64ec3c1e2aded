package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/refind-app/refind/internal/storage"
)

// Store is the slice of storage the dispatcher needs.
type Store interface {
	SaveNotification(n storage.Notification) error
	SetNotificationSent(matchID string, sent bool) error
	ListItems(itemType, status string) ([]storage.Item, error)
	CountReminderSince(itemID string, since time.Time) (int, error)
}

// Dispatcher sends match notifications at most once per match. Every send
// attempt is recorded as a notification row with its delivery outcome; the
// match's notification_sent flag flips only after a fully successful
// dispatch, so a partial failure leaves the match eligible for a retry by
// the job queue.
type Dispatcher struct {
	store     Store
	transport Transport
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher using the given transport.
func NewDispatcher(store Store, transport Transport) *Dispatcher {
	return &Dispatcher{
		store:     store,
		transport: transport,
		logger:    slog.Default(),
	}
}

// Dispatch generates and sends both parties' notifications for the match.
// A match already flagged notification_sent is a no-op. Returns an error
// when any send attempt failed; the attempted messages are recorded either
// way.
func (d *Dispatcher) Dispatch(ctx context.Context, m storage.Match, lost, found storage.Item) error {
	if m.NotificationSent {
		return nil
	}

	var failed int
	for _, msg := range Generate(m, lost, found) {
		sendErr := d.transport.Send(ctx, msg)
		if sendErr != nil {
			failed++
			d.logger.Warn("notification send failed", "match_id", m.ID, "to", msg.To, "error", sendErr)
		}
		if err := d.record(msg, sendErr == nil); err != nil {
			return fmt.Errorf("recording notification for match %s: %w", m.ID, err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("dispatch for match %s: %d of 2 sends failed", m.ID, failed)
	}
	if err := d.store.SetNotificationSent(m.ID, true); err != nil {
		return fmt.Errorf("flagging match %s notified: %w", m.ID, err)
	}
	d.logger.Info("match notifications dispatched", "match_id", m.ID)
	return nil
}

// SendReminders nudges the contact of every active item reported more than
// olderThan ago, at most once per 24h window per item. Returns the number
// of reminders sent; per-item failures are logged and skipped.
func (d *Dispatcher) SendReminders(ctx context.Context, olderThan time.Duration) (int, error) {
	items, err := d.store.ListItems("", storage.StatusActive)
	if err != nil {
		return 0, fmt.Errorf("listing active items: %w", err)
	}

	now := time.Now().UTC()
	sent := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		age := now.Sub(item.DateReported)
		if age < olderThan || item.ContactEmail == "" {
			continue
		}
		recent, err := d.store.CountReminderSince(item.ID, now.Add(-24*time.Hour))
		if err != nil {
			d.logger.Warn("checking reminder history failed", "item_id", item.ID, "error", err)
			continue
		}
		if recent > 0 {
			continue
		}

		msg := GenerateReminder(item, int(age.Hours()/24))
		sendErr := d.transport.Send(ctx, msg)
		if sendErr != nil {
			d.logger.Warn("reminder send failed", "item_id", item.ID, "error", sendErr)
		}
		if err := d.record(msg, sendErr == nil); err != nil {
			d.logger.Warn("recording reminder failed", "item_id", item.ID, "error", err)
			continue
		}
		if sendErr == nil {
			sent++
		}
	}
	return sent, nil
}

func (d *Dispatcher) record(msg Message, delivered bool) error {
	return d.store.SaveNotification(storage.Notification{
		ID:        uuid.New().String(),
		MatchID:   msg.MatchID,
		ItemID:    msg.ItemID,
		UserID:    msg.UserID,
		Recipient: msg.To,
		Type:      msg.Type,
		Subject:   msg.Subject,
		Body:      msg.Body,
		Delivered: delivered,
		CreatedAt: time.Now().UTC(),
	})
}

package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const notificationColumns = `id, match_id, item_id, user_id, recipient, type,
	subject, body, delivered, is_read, created_at`

// SaveNotification records an outbound message and its delivery outcome.
func (s *Store) SaveNotification(n Notification) error {
	created := n.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.MatchID, n.ItemID, n.UserID, n.Recipient, n.Type,
		n.Subject, n.Body, boolToInt(n.Delivered), boolToInt(n.IsRead),
		created.Format(time.RFC3339),
	)
	return err
}

// GetNotification returns a single notification by ID.
func (s *Store) GetNotification(id string) (Notification, error) {
	row := s.db.QueryRow(`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return Notification{}, ErrNotFound
	}
	return n, err
}

// ListNotifications returns notifications, optionally filtered by recipient,
// newest first.
func (s *Store) ListNotifications(recipient string, limit int) ([]Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications`
	var args []interface{}
	if recipient != "" {
		query += ` WHERE recipient = ?`
		args = append(args, recipient)
	}
	query += ` ORDER BY created_at DESC, id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var results []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, n)
	}
	return results, rows.Err()
}

// MarkNotificationRead flags an in-app notification as read.
func (s *Store) MarkNotificationRead(id string) error {
	res, err := s.db.Exec(`UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountReminderSince reports whether a reminder for the item was already
// recorded after the given time. Used to keep the daily reminder sweep from
// re-sending within its window.
func (s *Store) CountReminderSince(itemID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM notifications WHERE item_id = ? AND type = 'reminder' AND created_at >= ?`,
		itemID, since.UTC().Format(time.RFC3339)).Scan(&count)
	return count, err
}

func scanNotification(row rowScanner) (Notification, error) {
	var n Notification
	var delivered, isRead int
	var created string
	err := row.Scan(
		&n.ID, &n.MatchID, &n.ItemID, &n.UserID, &n.Recipient, &n.Type,
		&n.Subject, &n.Body, &delivered, &isRead, &created,
	)
	if err != nil {
		return Notification{}, err
	}
	n.Delivered = delivered != 0
	n.IsRead = isRead != 0
	if n.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return Notification{}, fmt.Errorf("parsing created_at for %s: %w", n.ID, err)
	}
	return n, nil
}

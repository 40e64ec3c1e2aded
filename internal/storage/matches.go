package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const matchColumns = `id, lost_item_id, found_item_id, score, matched_fields,
	status, notification_sent, ai_confidence, image_score, date_matched`

// SaveMatchIfAbsent inserts a match unless one already exists for the same
// item pair. Returns true when a new row was created. Re-running discovery
// on an unchanged item set is therefore idempotent: existing matches keep
// their status and notification flag.
func (s *Store) SaveMatchIfAbsent(m Match) (bool, error) {
	if m.Status == "" {
		m.Status = MatchPending
	}
	if m.MatchedFields == "" {
		m.MatchedFields = "[]"
	}
	matched := m.DateMatched
	if matched.IsZero() {
		matched = time.Now().UTC()
	}
	res, err := s.db.Exec(`
		INSERT INTO matches (`+matchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		m.ID, m.LostItemID, m.FoundItemID, m.Score, m.MatchedFields,
		m.Status, boolToInt(m.NotificationSent), m.AIConfidence, m.ImageScore,
		matched.Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("inserting match %s: %w", m.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetMatch returns a single match by ID.
func (s *Store) GetMatch(id string) (Match, error) {
	row := s.db.QueryRow(`SELECT `+matchColumns+` FROM matches WHERE id = ?`, id)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return Match{}, ErrNotFound
	}
	return m, err
}

// ListMatches returns matches, optionally filtered by status, ordered by
// score descending then insertion order.
func (s *Store) ListMatches(status string) ([]Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY score DESC, date_matched ASC, id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying matches: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// ListMatchesForItem returns every match referencing the given item.
func (s *Store) ListMatchesForItem(itemID string) ([]Match, error) {
	rows, err := s.db.Query(`SELECT `+matchColumns+` FROM matches
		WHERE lost_item_id = ? OR found_item_id = ?
		ORDER BY score DESC, date_matched ASC, id ASC`, itemID, itemID)
	if err != nil {
		return nil, fmt.Errorf("querying matches for item %s: %w", itemID, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// UpdateMatchStatus transitions a match out of pending in one statement.
// The WHERE guard makes concurrent double-transitions lose cleanly: zero
// rows affected means the match was missing or no longer pending.
func (s *Store) UpdateMatchStatus(id, from, to string) (bool, error) {
	res, err := s.db.Exec(`UPDATE matches SET status = ? WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetNotificationSent flips the match's notification flag.
func (s *Store) SetNotificationSent(id string, sent bool) error {
	res, err := s.db.Exec(`UPDATE matches SET notification_sent = ? WHERE id = ?`, boolToInt(sent), id)
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

// ConfirmMatch transitions a pending match to confirmed and marks both
// linked items matched with mutual back-references, all in one transaction
// so a failure leaves no partial mutation. Returns ErrNotFound for an
// unknown match and ErrInvalidTransition when the match is not pending.
func (s *Store) ConfirmMatch(id string) (Match, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Match{}, fmt.Errorf("beginning confirm transaction: %w", err)
	}
	defer tx.Rollback()

	m, err := scanMatch(tx.QueryRow(`SELECT `+matchColumns+` FROM matches WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Match{}, ErrNotFound
	}
	if err != nil {
		return Match{}, err
	}
	if m.Status != MatchPending {
		return Match{}, fmt.Errorf("match %s is %s: %w", id, m.Status, ErrInvalidTransition)
	}

	if _, err := tx.Exec(`UPDATE matches SET status = ? WHERE id = ?`, MatchConfirmed, id); err != nil {
		return Match{}, fmt.Errorf("confirming match %s: %w", id, err)
	}
	if _, err := tx.Exec(`UPDATE items SET status = ?, matched_with = ? WHERE id = ?`,
		StatusMatched, m.FoundItemID, m.LostItemID); err != nil {
		return Match{}, fmt.Errorf("updating lost item %s: %w", m.LostItemID, err)
	}
	if _, err := tx.Exec(`UPDATE items SET status = ?, matched_with = ? WHERE id = ?`,
		StatusMatched, m.LostItemID, m.FoundItemID); err != nil {
		return Match{}, fmt.Errorf("updating found item %s: %w", m.FoundItemID, err)
	}

	if err := tx.Commit(); err != nil {
		return Match{}, fmt.Errorf("committing confirm: %w", err)
	}
	m.Status = MatchConfirmed
	return m, nil
}

// RejectMatch transitions a pending match to rejected. Item statuses are
// untouched: a rejected pairing must not block future matches of either
// item against other candidates.
func (s *Store) RejectMatch(id string) (Match, error) {
	m, err := s.GetMatch(id)
	if err != nil {
		return Match{}, err
	}
	if m.Status != MatchPending {
		return Match{}, fmt.Errorf("match %s is %s: %w", id, m.Status, ErrInvalidTransition)
	}
	ok, err := s.UpdateMatchStatus(id, MatchPending, MatchRejected)
	if err != nil {
		return Match{}, err
	}
	if !ok {
		return Match{}, fmt.Errorf("match %s is no longer pending: %w", id, ErrInvalidTransition)
	}
	m.Status = MatchRejected
	return m, nil
}

func scanMatch(row rowScanner) (Match, error) {
	var m Match
	var sent int
	var matched string
	err := row.Scan(
		&m.ID, &m.LostItemID, &m.FoundItemID, &m.Score, &m.MatchedFields,
		&m.Status, &sent, &m.AIConfidence, &m.ImageScore, &matched,
	)
	if err != nil {
		return Match{}, err
	}
	m.NotificationSent = sent != 0
	if m.DateMatched, err = time.Parse(time.RFC3339, matched); err != nil {
		return Match{}, fmt.Errorf("parsing date_matched for %s: %w", m.ID, err)
	}
	return m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package storage

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const itemColumns = `id, type, title, description, ai_description, category, location,
	color, brand, size, reward, tags, embedding, status, matched_with,
	user_id, contact_name, contact_email, contact_phone, date_occurred, date_reported`

// SaveItem inserts an item. DateReported defaults to now, status to active,
// tags to an empty JSON array.
func (s *Store) SaveItem(item Item) error {
	if item.Status == "" {
		item.Status = StatusActive
	}
	if item.Tags == "" {
		item.Tags = "[]"
	}
	reported := item.DateReported
	if reported.IsZero() {
		reported = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Type, item.Title, item.Description, item.AIDescription,
		item.Category, item.Location, item.Color, item.Brand, item.Size,
		item.Reward, item.Tags, encodeFloat32s(item.Embedding), item.Status,
		item.MatchedWith, item.UserID, item.ContactName, item.ContactEmail,
		item.ContactPhone, item.DateOccurred.UTC().Format(time.RFC3339),
		reported.Format(time.RFC3339),
	)
	return err
}

// GetItem returns a single item by ID.
func (s *Store) GetItem(id string) (Item, error) {
	row := s.db.QueryRow(`SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return Item{}, ErrNotFound
	}
	return item, err
}

// ListItems returns items filtered by type and/or status; empty filters
// match everything. Results are ordered by report date ascending so
// discovery output is deterministic across runs.
func (s *Store) ListItems(itemType, status string) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items`
	var conds []string
	var args []interface{}
	if itemType != "" {
		conds = append(conds, "type = ?")
		args = append(args, itemType)
	}
	if status != "" {
		conds = append(conds, "status = ?")
		args = append(args, status)
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY date_reported ASC, id ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateItemStatus sets an item's status and matched_with back-reference.
// These are the only item fields the matching engine is allowed to write.
func (s *Store) UpdateItemStatus(id, status, matchedWith string) error {
	res, err := s.db.Exec(`UPDATE items SET status = ?, matched_with = ? WHERE id = ?`, status, matchedWith, id)
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

// DeleteItem removes an item and, cascading, every match referencing it
// regardless of match status.
func (s *Store) DeleteItem(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting item %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	// Queued notification jobs reference their match through the payload
	// (match_notify payloads embed the match id), so drop them before the
	// matches they point at. Running jobs are left for the worker, which
	// completes a job whose match has vanished.
	if _, err := tx.Exec(`DELETE FROM jobs WHERE type = 'match_notify' AND status IN ('pending', 'failed') AND id IN (
		SELECT j.id FROM jobs j
		JOIN matches m ON j.payload_json LIKE '%"match_id":"' || m.id || '"%'
		WHERE m.lost_item_id = ? OR m.found_item_id = ?)`, id, id); err != nil {
		return fmt.Errorf("deleting queued notifications for item %s: %w", id, err)
	}

	if _, err := tx.Exec(`DELETE FROM matches WHERE lost_item_id = ? OR found_item_id = ?`, id, id); err != nil {
		return fmt.Errorf("deleting matches for item %s: %w", id, err)
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (Item, error) {
	var item Item
	var embedding []byte
	var occurred, reported string
	err := row.Scan(
		&item.ID, &item.Type, &item.Title, &item.Description, &item.AIDescription,
		&item.Category, &item.Location, &item.Color, &item.Brand, &item.Size,
		&item.Reward, &item.Tags, &embedding, &item.Status, &item.MatchedWith,
		&item.UserID, &item.ContactName, &item.ContactEmail, &item.ContactPhone,
		&occurred, &reported,
	)
	if err != nil {
		return Item{}, err
	}
	if item.Embedding, err = decodeFloat32s(embedding); err != nil {
		return Item{}, fmt.Errorf("decoding embedding for %s: %w", item.ID, err)
	}
	if item.DateOccurred, err = time.Parse(time.RFC3339, occurred); err != nil {
		return Item{}, fmt.Errorf("parsing date_occurred for %s: %w", item.ID, err)
	}
	if item.DateReported, err = time.Parse(time.RFC3339, reported); err != nil {
		return Item{}, fmt.Errorf("parsing date_reported for %s: %w", item.ID, err)
	}
	return item, nil
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
// A nil or empty slice encodes to nil so the column stays NULL.
func encodeFloat32s(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
// Returns an error if the byte slice length is not a multiple of 4
// (indicates data corruption).
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

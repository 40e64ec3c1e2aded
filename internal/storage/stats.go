package storage

// Stats is a snapshot of record counts across the store.
type Stats struct {
	TotalItems        int `json:"total_items"`
	ActiveItems       int `json:"active_items"`
	LostItems         int `json:"lost_items"`
	FoundItems        int `json:"found_items"`
	ResolvedItems     int `json:"resolved_items"`
	TotalMatches      int `json:"total_matches"`
	PendingMatches    int `json:"pending_matches"`
	ConfirmedMatches  int `json:"confirmed_matches"`
	NotificationsSent int `json:"notifications_sent"`
}

// GetStats returns record counts for the status command and the stats
// endpoint.
func (s *Store) GetStats() (Stats, error) {
	var st Stats
	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM items`, &st.TotalItems},
		{`SELECT COUNT(*) FROM items WHERE status = 'active'`, &st.ActiveItems},
		{`SELECT COUNT(*) FROM items WHERE type = 'lost'`, &st.LostItems},
		{`SELECT COUNT(*) FROM items WHERE type = 'found'`, &st.FoundItems},
		{`SELECT COUNT(*) FROM items WHERE status = 'resolved'`, &st.ResolvedItems},
		{`SELECT COUNT(*) FROM matches`, &st.TotalMatches},
		{`SELECT COUNT(*) FROM matches WHERE status = 'pending'`, &st.PendingMatches},
		{`SELECT COUNT(*) FROM matches WHERE status = 'confirmed'`, &st.ConfirmedMatches},
		{`SELECT COUNT(*) FROM notifications WHERE delivered = 1`, &st.NotificationsSent},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dest); err != nil {
			return Stats{}, err
		}
	}
	return st, nil
}

package store

import "fmt"

// Hit is one matched message, joined with its owning thread.
type Hit struct {
	MessageID   int64
	ThreadID    int64
	Content     string
	Role        string
	Timestamp   *int64
	ThreadTitle string
	Provider    string
}

// Search runs query verbatim through the FTS5 grammar — tokens, quoted
// phrases, boolean operators are all the engine's, not reinterpreted
// here.
func (s *Store) Search(query string) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT m.id, m.thread_id, m.content, m.role, m.timestamp,
		       t.title, t.provider
		FROM messages_fts f
		JOIN messages m ON f.rowid = m.id
		JOIN threads  t ON m.thread_id = t.id
		WHERE messages_fts MATCH ?
		ORDER BY rank
	`, query)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var ts *int64
		if err := rows.Scan(&h.MessageID, &h.ThreadID, &h.Content, &h.Role, &ts, &h.ThreadTitle, &h.Provider); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		h.Timestamp = ts
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search rows: %w", err)
	}

	return hits, nil
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/mnemos-dev/mnemos/internal/model"
)

var validRels = map[string]bool{
	model.RelRelatesTo:        true,
	model.RelConsolidatedInto: true,
}

// LinkMemories creates a typed edge between two memories. Duplicate edges
// are ignored.
func (s *SQLiteStore) LinkMemories(ctx context.Context, fromID, toID, rel string) error {
	if !validRels[rel] {
		return fmt.Errorf("invalid relation %q (valid: %s, %s)", rel, model.RelRelatesTo, model.RelConsolidatedInto)
	}
	return s.withConn(ctx, func(ctx context.Context) error {
		now := time.Now().UTC().Format(tsFormat)
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO memory_links (from_id, to_id, rel, created_at) VALUES (?, ?, ?, ?)`,
			fromID, toID, rel, now)
		return err
	})
}

// Links returns all edges touching a memory, in either direction.
func (s *SQLiteStore) Links(ctx context.Context, memoryID string) ([]model.Link, error) {
	var links []model.Link
	err := s.withConn(ctx, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT from_id, to_id, rel, created_at FROM memory_links
			 WHERE from_id = ? OR to_id = ?`, memoryID, memoryID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var l model.Link
			var createdAt string
			if err := rows.Scan(&l.FromID, &l.ToID, &l.Rel, &createdAt); err != nil {
				return err
			}
			l.CreatedAt, _ = time.Parse(tsFormat, createdAt)
			links = append(links, l)
		}
		return rows.Err()
	})
	return links, err
}

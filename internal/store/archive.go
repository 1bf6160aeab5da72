package store

import (
	"context"
	"fmt"
	"time"
)

// ArchiveBatch copies memories into archived_memories and deletes the
// originals, all in one transaction. scores carries per-id prune scores
// for the audit record; missing entries default to zero.
func (s *SQLiteStore) ArchiveBatch(ctx context.Context, ids []string, reason string, scores map[string]float64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.withConn(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		now := time.Now().UTC().Format(tsFormat)
		for _, id := range ids {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO archived_memories
				 SELECT id, content, content_hash, memory_type, importance, confidence,
				        source_type, agent_id, user_id, session_id, metadata,
				        created_at, valid_from, valid_to, accessed_at, access_count,
				        ?, ?, ?
				 FROM memories WHERE id = ?`,
				now, reason, scores[id], id)
			if err != nil {
				return fmt.Errorf("archive memory %s: %w", id, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				continue // already gone, nothing to archive
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
				return fmt.Errorf("delete archived memory %s: %w", id, err)
			}
		}

		return tx.Commit()
	})
}

// ArchivedCount returns the number of archived memories.
func (s *SQLiteStore) ArchivedCount(ctx context.Context) (int, error) {
	var n int
	err := s.withConn(ctx, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archived_memories`).Scan(&n)
	})
	return n, err
}

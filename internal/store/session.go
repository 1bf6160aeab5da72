package store

import (
	"context"
	"time"

	"github.com/mnemos-dev/mnemos/internal/model"
)

// TouchSession upserts a session row: first sighting creates it, later
// sightings refresh last_activity and bump the denormalized memory_count.
// The counter is maintained by the write path and is eventually consistent.
func (s *SQLiteStore) TouchSession(ctx context.Context, sess model.Session) error {
	if sess.ID == "" {
		return nil
	}
	return s.withConn(ctx, func(ctx context.Context) error {
		now := time.Now().UTC().Format(tsFormat)
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (id, user_id, agent_id, created_at, last_activity, memory_count)
			 VALUES (?, ?, ?, ?, ?, 1)
			 ON CONFLICT(id) DO UPDATE SET
			     last_activity = excluded.last_activity,
			     memory_count = memory_count + 1`,
			sess.ID, nullable(sess.UserID), nullable(sess.AgentID), now, now)
		return err
	})
}

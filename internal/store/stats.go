package store

import (
	"context"
	"os"

	"github.com/mnemos-dev/mnemos/internal/model"
)

// Stats holds store-level statistics.
type Stats struct {
	DBPath        string         `json:"db_path"`
	DBSizeBytes   int64          `json:"db_size_bytes"`
	TotalMemories int            `json:"total_memories"`
	ByType        map[string]int `json:"by_type"`
	Entities      int            `json:"entities"`
	Sessions      int            `json:"sessions"`
	Archived      int            `json:"archived"`
}

// Stats returns aggregate statistics for the store.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path, ByType: make(map[string]int)}

	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	err := s.withConn(ctx, func(ctx context.Context) error {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&st.TotalMemories); err != nil {
			return err
		}
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&st.Entities); err != nil {
			return err
		}
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&st.Sessions); err != nil {
			return err
		}
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archived_memories`).Scan(&st.Archived); err != nil {
			return err
		}

		rows, err := s.db.QueryContext(ctx,
			`SELECT memory_type, COUNT(*) FROM memories GROUP BY memory_type`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var t string
			var n int
			if err := rows.Scan(&t, &n); err != nil {
				return err
			}
			st.ByType[t] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	// Zero-fill known types so consumers see a stable key set.
	for _, t := range model.AllTypes {
		if _, ok := st.ByType[string(t)]; !ok {
			st.ByType[string(t)] = 0
		}
	}

	return st, nil
}

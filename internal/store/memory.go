package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mnemos-dev/mnemos/internal/model"
)

// tsFormat is fixed-width so lexicographic comparison in SQL matches
// chronological order, including sub-second precision. All values are UTC.
const tsFormat = "2006-01-02T15:04:05.000000000Z"

// Get retrieves a memory by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Memory, error) {
	var m *model.Memory
	err := s.withConn(ctx, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, selectMemory+` WHERE id = ?`, id)
		mem, err := scanMemory(row)
		if err == sql.ErrNoRows {
			return model.ErrNotFound
		}
		if err != nil {
			return err
		}
		m = &mem
		return nil
	})
	return m, err
}

// FindByHash is the exact-match dedup point lookup.
func (s *SQLiteStore) FindByHash(ctx context.Context, hash string) (*model.Memory, error) {
	var m *model.Memory
	err := s.withConn(ctx, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, selectMemory+` WHERE content_hash = ?`, hash)
		mem, err := scanMemory(row)
		if err == sql.ErrNoRows {
			return model.ErrNotFound
		}
		if err != nil {
			return err
		}
		m = &mem
		return nil
	})
	return m, err
}

// Query returns memories matching the filter.
func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]model.Memory, error) {
	where := []string{"1=1"}
	var args []any

	if len(f.Types) > 0 {
		ph := make([]string, len(f.Types))
		for i, t := range f.Types {
			ph[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "memory_type IN ("+strings.Join(ph, ",")+")")
	}
	if f.SourceType != "" {
		where = append(where, "source_type = ?")
		args = append(args, f.SourceType)
	}
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.ValidAt != nil {
		where = append(where, "(valid_to IS NULL OR valid_to > ?)")
		args = append(args, f.ValidAt.UTC().Format(tsFormat))
	}
	if f.MinImportance > 0 {
		where = append(where, "importance >= ?")
		args = append(args, f.MinImportance)
	}
	if f.LengthMin > 0 {
		where = append(where, "content_length >= ?")
		args = append(args, f.LengthMin)
	}
	if f.LengthMax > 0 {
		where = append(where, "content_length <= ?")
		args = append(args, f.LengthMax)
	}
	if len(f.TokensAny) > 0 {
		likes := make([]string, len(f.TokensAny))
		for i, tok := range f.TokensAny {
			likes[i] = "content LIKE ?"
			args = append(args, "%"+tok+"%")
		}
		where = append(where, "("+strings.Join(likes, " OR ")+")")
	}
	if f.CreatedBefore != nil {
		where = append(where, "created_at < ?")
		args = append(args, f.CreatedBefore.UTC().Format(tsFormat))
	}

	order := "created_at DESC"
	if f.Order == OrderOldest {
		order = "created_at ASC"
	}

	query := selectMemory + " WHERE " + strings.Join(where, " AND ") + " ORDER BY " + order
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	var memories []model.Memory
	err := s.withConn(ctx, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			m, err := scanMemory(rows)
			if err != nil {
				return err
			}
			memories = append(memories, m)
		}
		return rows.Err()
	})
	return memories, err
}

// InsertBatch stores memories in one transaction, in slice order. Missing
// ids, hashes and lengths are filled in. A content_hash collision returns
// ErrDuplicateHash wrapped with the offending hash.
func (s *SQLiteStore) InsertBatch(ctx context.Context, memories []*model.Memory) error {
	return s.withConn(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, m := range memories {
			if m.ID == "" {
				m.ID = s.newID()
			}
			if m.ContentHash == "" {
				m.ContentHash = model.HashContent(m.Content)
			}
			if m.ContentLength == 0 {
				m.ContentLength = len(m.Content)
			}

			var metaJSON *string
			if len(m.Metadata) > 0 {
				b, err := json.Marshal(m.Metadata)
				if err != nil {
					return fmt.Errorf("marshal metadata: %w", err)
				}
				js := string(b)
				metaJSON = &js
			}

			_, err = tx.ExecContext(ctx,
				`INSERT INTO memories (id, content, content_hash, memory_type, importance, confidence,
				                       source_type, agent_id, user_id, session_id, metadata, content_length,
				                       created_at, valid_from, valid_to, accessed_at, access_count)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				m.ID, m.Content, m.ContentHash, string(m.Type), m.Importance, m.Confidence,
				m.SourceType, m.AgentID, nullable(m.UserID), nullable(m.SessionID), metaJSON, m.ContentLength,
				m.CreatedAt.UTC().Format(tsFormat), m.ValidFrom.UTC().Format(tsFormat),
				nullableTime(m.ValidTo), nullableTime(m.AccessedAt), m.AccessCount)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("hash %s: %w", m.ContentHash, model.ErrDuplicateHash)
				}
				return fmt.Errorf("insert memory: %w", err)
			}
		}

		return tx.Commit()
	})
}

// UpdateBatch applies partial updates in one transaction, in slice order.
// Identity never changes: patches mutate fields of the existing row.
func (s *SQLiteStore) UpdateBatch(ctx context.Context, patches []MemoryPatch) error {
	return s.withConn(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, p := range patches {
			var sets []string
			var args []any

			if p.Content != nil {
				sets = append(sets, "content = ?", "content_hash = ?", "content_length = ?")
				args = append(args, *p.Content, model.HashContent(*p.Content), len(*p.Content))
			}
			if p.Importance != nil {
				sets = append(sets, "importance = ?")
				args = append(args, *p.Importance)
			}
			if p.Confidence != nil {
				sets = append(sets, "confidence = ?")
				args = append(args, *p.Confidence)
			}
			if p.ValidTo != nil {
				sets = append(sets, "valid_to = ?")
				args = append(args, nullableTime(*p.ValidTo))
			}
			if len(p.Metadata) > 0 {
				b, err := json.Marshal(p.Metadata)
				if err != nil {
					return fmt.Errorf("marshal metadata: %w", err)
				}
				sets = append(sets, "metadata = ?")
				args = append(args, string(b))
			}
			if p.BumpAccess {
				at := time.Now().UTC()
				if p.AccessedAt != nil {
					at = p.AccessedAt.UTC()
				}
				sets = append(sets, "access_count = access_count + 1", "accessed_at = ?")
				args = append(args, at.Format(tsFormat))
			}

			if len(sets) == 0 {
				continue
			}

			args = append(args, p.ID)
			_, err = tx.ExecContext(ctx,
				"UPDATE memories SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("patch %s: %w", p.ID, model.ErrDuplicateHash)
				}
				return fmt.Errorf("update memory %s: %w", p.ID, err)
			}
		}

		return tx.Commit()
	})
}

// DeleteBatch hard-deletes memories by id in one transaction.
func (s *SQLiteStore) DeleteBatch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.withConn(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
				return fmt.Errorf("delete memory %s: %w", id, err)
			}
		}

		return tx.Commit()
	})
}

const selectMemory = `SELECT id, content, content_hash, memory_type, importance, confidence,
       source_type, agent_id, user_id, session_id, metadata, content_length,
       created_at, valid_from, valid_to, accessed_at, access_count
FROM memories`

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (model.Memory, error) {
	var m model.Memory
	var memType, createdAt, validFrom string
	var userID, sessionID, metaJSON, validTo, accessedAt sql.NullString

	err := row.Scan(
		&m.ID, &m.Content, &m.ContentHash, &memType, &m.Importance, &m.Confidence,
		&m.SourceType, &m.AgentID, &userID, &sessionID, &metaJSON, &m.ContentLength,
		&createdAt, &validFrom, &validTo, &accessedAt, &m.AccessCount,
	)
	if err != nil {
		return m, err
	}

	m.Type = model.MemoryType(memType)
	m.CreatedAt, _ = time.Parse(tsFormat, createdAt)
	m.ValidFrom, _ = time.Parse(tsFormat, validFrom)
	if userID.Valid {
		m.UserID = userID.String
	}
	if sessionID.Valid {
		m.SessionID = sessionID.String
	}
	if metaJSON.Valid {
		json.Unmarshal([]byte(metaJSON.String), &m.Metadata)
	}
	if validTo.Valid {
		t, _ := time.Parse(tsFormat, validTo.String)
		m.ValidTo = &t
	}
	if accessedAt.Valid {
		t, _ := time.Parse(tsFormat, accessedAt.String)
		m.AccessedAt = &t
	}

	return m, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	f := t.UTC().Format(tsFormat)
	return &f
}

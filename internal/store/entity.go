package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mnemos-dev/mnemos/internal/model"
)

// UpsertEntities merges entities by normalized_name: existing rows get their
// mention_count bumped and last_seen refreshed, new rows are inserted.
// Returns entity ids positionally matching the input.
func (s *SQLiteStore) UpsertEntities(ctx context.Context, entities []model.Entity) ([]string, error) {
	ids := make([]string, len(entities))
	err := s.withConn(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		now := time.Now().UTC().Format(tsFormat)
		for i, e := range entities {
			norm := e.NormalizedName
			if norm == "" {
				norm = model.Normalize(e.Name)
			}

			var id string
			err := tx.QueryRowContext(ctx,
				`SELECT id FROM entities WHERE normalized_name = ?`, norm).Scan(&id)
			switch err {
			case nil:
				if _, err := tx.ExecContext(ctx,
					`UPDATE entities SET mention_count = mention_count + 1, last_seen = ?,
					        confidence = MAX(confidence, ?)
					 WHERE id = ?`, now, e.Confidence, id); err != nil {
					return fmt.Errorf("bump entity %s: %w", norm, err)
				}
			case sql.ErrNoRows:
				id = s.newID()
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO entities (id, name, normalized_name, entity_type, mention_count, first_seen, last_seen, confidence)
					 VALUES (?, ?, ?, ?, 1, ?, ?, ?)`,
					id, e.Name, norm, e.Type, now, now, e.Confidence); err != nil {
					return fmt.Errorf("insert entity %s: %w", norm, err)
				}
			default:
				return err
			}
			ids[i] = id
		}

		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// LinkMentions records memory-to-entity mention edges. Re-linking the same
// pair is a no-op.
func (s *SQLiteStore) LinkMentions(ctx context.Context, mentions []model.EntityMention) error {
	if len(mentions) == 0 {
		return nil
	}
	return s.withConn(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, m := range mentions {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO entity_mentions (memory_id, entity_id, confidence, start_offset, end_offset)
				 VALUES (?, ?, ?, ?, ?)`,
				m.MemoryID, m.EntityID, m.Confidence, m.StartOffset, m.EndOffset); err != nil {
				return fmt.Errorf("link mention: %w", err)
			}
		}

		return tx.Commit()
	})
}

// QueryByEntityNames returns memories mentioning any of the given
// normalized entity names, with the count of distinct names each matches.
// Used by the entity recall strategy.
func (s *SQLiteStore) QueryByEntityNames(ctx context.Context, normalizedNames []string, limit int) ([]EntityHit, error) {
	if len(normalizedNames) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	ph := make([]string, len(normalizedNames))
	args := make([]any, 0, len(normalizedNames)+1)
	for i, n := range normalizedNames {
		ph[i] = "?"
		args = append(args, n)
	}
	args = append(args, limit)

	query := `
		SELECT ` + memoryColumns("m") + `, COUNT(DISTINCT e.id) AS matched
		FROM memories m
		JOIN entity_mentions em ON em.memory_id = m.id
		JOIN entities e ON e.id = em.entity_id
		WHERE e.normalized_name IN (` + strings.Join(ph, ",") + `)
		GROUP BY m.id
		ORDER BY matched DESC, m.created_at DESC
		LIMIT ?`

	var hits []EntityHit
	err := s.withConn(ctx, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var h EntityHit
			var memType, createdAt, validFrom string
			var userID, sessionID, metaJSON, validTo, accessedAt sql.NullString
			if err := rows.Scan(
				&h.Memory.ID, &h.Memory.Content, &h.Memory.ContentHash, &memType,
				&h.Memory.Importance, &h.Memory.Confidence, &h.Memory.SourceType, &h.Memory.AgentID,
				&userID, &sessionID, &metaJSON, &h.Memory.ContentLength,
				&createdAt, &validFrom, &validTo, &accessedAt, &h.Memory.AccessCount,
				&h.Matched,
			); err != nil {
				return err
			}
			h.Memory.Type = model.MemoryType(memType)
			h.Memory.CreatedAt, _ = time.Parse(tsFormat, createdAt)
			h.Memory.ValidFrom, _ = time.Parse(tsFormat, validFrom)
			if userID.Valid {
				h.Memory.UserID = userID.String
			}
			if sessionID.Valid {
				h.Memory.SessionID = sessionID.String
			}
			if validTo.Valid {
				t, _ := time.Parse(tsFormat, validTo.String)
				h.Memory.ValidTo = &t
			}
			if accessedAt.Valid {
				t, _ := time.Parse(tsFormat, accessedAt.String)
				h.Memory.AccessedAt = &t
			}
			hits = append(hits, h)
		}
		return rows.Err()
	})
	return hits, err
}

// memoryColumns renders the memory column list with a table alias.
func memoryColumns(alias string) string {
	cols := []string{
		"id", "content", "content_hash", "memory_type", "importance", "confidence",
		"source_type", "agent_id", "user_id", "session_id", "metadata", "content_length",
		"created_at", "valid_from", "valid_to", "accessed_at", "access_count",
	}
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// Package recall retrieves stored memories through several concurrent
// strategies and merges them into a single decay-weighted ranking.
package recall

import (
	"context"
	"math"
	"time"

	"github.com/mnemos-dev/mnemos/internal/dedup"
	"github.com/mnemos-dev/mnemos/internal/model"
	"github.com/mnemos-dev/mnemos/internal/store"
)

// Strategy names, reported in results for observability.
const (
	StrategyKeyword  = "keyword"
	StrategyEntity   = "entity"
	StrategyTemporal = "temporal"
)

// Hit is a single strategy's vote for a memory, scored in [0,1].
type Hit struct {
	Memory   model.Memory
	Score    float64
	Strategy string
}

// keywordSearch matches memories whose content shares tokens with the
// query text. Score is the fraction of query tokens found in the memory.
func (r *Recaller) keywordSearch(ctx context.Context, q Query, now time.Time) ([]Hit, error) {
	tokens := dedup.Tokenize(q.Text)
	if len(tokens) == 0 {
		return nil, nil
	}
	any := make([]string, 0, len(tokens))
	for tok := range tokens {
		any = append(any, tok)
	}

	memories, err := r.store.Query(ctx, store.Filter{
		Types:         q.Types,
		SessionID:     q.SessionID,
		UserID:        q.UserID,
		ValidAt:       &now,
		MinImportance: r.cfg.MinImportance,
		TokensAny:     any,
		Order:         store.OrderNewest,
		Limit:         r.cfg.FetchLimit,
	})
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(memories))
	for _, m := range memories {
		memTokens := dedup.Tokenize(m.Content)
		matched := 0
		for tok := range tokens {
			if _, ok := memTokens[tok]; ok {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, Hit{
			Memory:   m,
			Score:    float64(matched) / float64(len(tokens)),
			Strategy: StrategyKeyword,
		})
	}
	return hits, nil
}

// entitySearch matches memories through the entity-mention graph. Score
// is the fraction of query entities the memory mentions.
func (r *Recaller) entitySearch(ctx context.Context, q Query, now time.Time) ([]Hit, error) {
	if len(q.Entities) == 0 {
		return nil, nil
	}
	names := make([]string, len(q.Entities))
	for i, e := range q.Entities {
		names[i] = model.Normalize(e)
	}

	found, err := r.store.QueryByEntityNames(ctx, names, r.cfg.FetchLimit)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(found))
	for _, h := range found {
		if h.Memory.Expired(now) {
			continue
		}
		if h.Memory.Importance < r.cfg.MinImportance {
			continue
		}
		hits = append(hits, Hit{
			Memory:   h.Memory,
			Score:    float64(h.Matched) / float64(len(names)),
			Strategy: StrategyEntity,
		})
	}
	return hits, nil
}

// temporalSearch surfaces recent memories regardless of content match.
// Score is exponential decay over the type's half-life.
func (r *Recaller) temporalSearch(ctx context.Context, q Query, now time.Time) ([]Hit, error) {
	memories, err := r.store.Query(ctx, store.Filter{
		Types:         q.Types,
		SessionID:     q.SessionID,
		UserID:        q.UserID,
		ValidAt:       &now,
		MinImportance: r.cfg.MinImportance,
		Order:         store.OrderNewest,
		Limit:         r.cfg.FetchLimit,
	})
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(memories))
	for _, m := range memories {
		hits = append(hits, Hit{
			Memory:   m,
			Score:    decayScore(m, now),
			Strategy: StrategyTemporal,
		})
	}
	return hits, nil
}

// decayScore computes exp(-age·ln2/halfLife): 1.0 when brand new, 0.5 at
// one half-life, approaching zero beyond.
func decayScore(m model.Memory, now time.Time) float64 {
	age := now.Sub(m.CreatedAt)
	if age <= 0 {
		return 1.0
	}
	halfLife := m.Type.HalfLife()
	return math.Exp(-age.Seconds() * math.Ln2 / halfLife.Seconds())
}

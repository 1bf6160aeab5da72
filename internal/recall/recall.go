package recall

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mnemos-dev/mnemos/internal/model"
	"github.com/mnemos-dev/mnemos/internal/store"
)

// Config tunes ranking and the latency budget.
type Config struct {
	// Budget bounds a whole recall; strategies that miss it are dropped
	// and the result is marked partial.
	Budget time.Duration
	// Strategy blend weights. They should sum to 1.
	KeywordWeight  float64
	EntityWeight   float64
	TemporalWeight float64
	// MinImportance filters low-value memories out at the query level.
	MinImportance float64
	// FetchLimit caps each strategy's candidate fetch.
	FetchLimit int
}

// DefaultConfig returns the recall defaults.
func DefaultConfig() Config {
	return Config{
		Budget:         10 * time.Millisecond,
		KeywordWeight:  0.5,
		EntityWeight:   0.3,
		TemporalWeight: 0.2,
		MinImportance:  0.3,
		FetchLimit:     100,
	}
}

// Query describes what to recall.
type Query struct {
	Text      string
	Entities  []string
	Types     []model.MemoryType
	SessionID string
	UserID    string
	Limit     int
}

// Scored is a ranked memory with the strategies that surfaced it.
type Scored struct {
	Memory     model.Memory `json:"memory"`
	Score      float64      `json:"score"`
	Strategies []string     `json:"strategies"`
}

// Result is a completed recall. Partial is set when the latency budget
// expired before every strategy reported.
type Result struct {
	Memories   []Scored      `json:"memories"`
	TotalFound int           `json:"total_found"`
	Strategies []string      `json:"strategies_used"` // strategies that reported within budget
	Elapsed    time.Duration `json:"elapsed"`
	Partial    bool          `json:"partial,omitempty"`
}

// Recaller runs recall queries. Bump, when set, receives the ids of
// returned memories so access stats can be updated off the hot path.
type Recaller struct {
	store store.Adapter
	cfg   Config
	log   *zap.Logger

	now  func() time.Time
	bump func(ids []string)
}

// NewRecaller wires a recaller over the given store.
func NewRecaller(st store.Adapter, cfg Config, log *zap.Logger) *Recaller {
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultConfig().Budget
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = DefaultConfig().FetchLimit
	}
	return &Recaller{store: st, cfg: cfg, log: log, now: time.Now}
}

// OnAccess registers a callback invoked with the ids of recalled memories.
func (r *Recaller) OnAccess(fn func(ids []string)) { r.bump = fn }

type strategyResult struct {
	name string
	hits []Hit
	err  error
}

// Recall runs all strategies concurrently under the latency budget and
// merges their hits into one ranking. Strategy failures degrade the
// result instead of failing it: recall returns whatever arrived in time.
func (r *Recaller) Recall(ctx context.Context, q Query) (*Result, error) {
	start := r.now()
	now := start.UTC()
	if q.Limit <= 0 {
		q.Limit = 10
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Budget)
	defer cancel()

	type namedStrategy struct {
		name string
		run  func(context.Context, Query, time.Time) ([]Hit, error)
	}
	strategies := []namedStrategy{
		{StrategyKeyword, r.keywordSearch},
		{StrategyEntity, r.entitySearch},
		{StrategyTemporal, r.temporalSearch},
	}

	results := make(chan strategyResult, len(strategies))
	for _, s := range strategies {
		go func(s namedStrategy) {
			hits, err := s.run(ctx, q, now)
			results <- strategyResult{name: s.name, hits: hits, err: err}
		}(s)
	}

	res := &Result{}
	var all []Hit
collect:
	for range strategies {
		select {
		case sr := <-results:
			if sr.err != nil {
				r.log.Warn("recall strategy failed",
					zap.String("strategy", sr.name), zap.Error(sr.err))
				res.Partial = true
				continue
			}
			res.Strategies = append(res.Strategies, sr.name)
			all = append(all, sr.hits...)
		case <-ctx.Done():
			// Budget expired: rank whatever arrived in time.
			res.Partial = true
			break collect
		}
	}

	sort.Strings(res.Strategies)
	res.Memories = r.rank(all, q.Limit)

	// Total counts distinct memories before truncation, not per-strategy hits.
	unique := make(map[string]struct{}, len(all))
	for _, h := range all {
		unique[h.Memory.ID] = struct{}{}
	}
	res.TotalFound = len(unique)
	res.Elapsed = r.now().Sub(start)

	if r.bump != nil && len(res.Memories) > 0 {
		ids := make([]string, len(res.Memories))
		for i, s := range res.Memories {
			ids[i] = s.Memory.ID
		}
		r.bump(ids)
	}
	return res, nil
}

// rank merges per-strategy hits by memory id and orders by composite
// score. Ties break on confidence, then recency.
func (r *Recaller) rank(hits []Hit, limit int) []Scored {
	byID := make(map[string]*Scored)
	order := make([]string, 0, len(hits))

	for _, h := range hits {
		s, ok := byID[h.Memory.ID]
		if !ok {
			s = &Scored{Memory: h.Memory}
			byID[h.Memory.ID] = s
			order = append(order, h.Memory.ID)
		}
		s.Score += r.weight(h.Strategy) * h.Score
		s.Strategies = append(s.Strategies, h.Strategy)
	}

	scored := make([]Scored, 0, len(order))
	for _, id := range order {
		s := byID[id]
		s.Score = composite(s.Score, &s.Memory)
		scored = append(scored, *s)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Memory.Confidence != b.Memory.Confidence {
			return a.Memory.Confidence > b.Memory.Confidence
		}
		return a.Memory.CreatedAt.After(b.Memory.CreatedAt)
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func (r *Recaller) weight(strategy string) float64 {
	switch strategy {
	case StrategyKeyword:
		return r.cfg.KeywordWeight
	case StrategyEntity:
		return r.cfg.EntityWeight
	case StrategyTemporal:
		return r.cfg.TemporalWeight
	}
	return 0
}

// composite scales the blended strategy score by importance, plus a
// bounded log-scale boost for heavily-recalled memories. Importance
// multiplies rather than adds: a strong match on a trivial memory must
// not outrank a decent match on an important one.
func composite(blended float64, m *model.Memory) float64 {
	accessBoost := math.Log1p(float64(m.AccessCount)) / math.Log1p(100)
	if accessBoost > 1 {
		accessBoost = 1
	}
	return blended*m.Importance + accessBoost*0.05
}

package recall

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mnemos-dev/mnemos/internal/model"
	"github.com/mnemos-dev/mnemos/internal/store"
)

func newTestRecaller(t *testing.T) (*Recaller, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cfg := DefaultConfig()
	cfg.Budget = 2 * time.Second // generous: tests assert ranking, not latency
	cfg.MinImportance = 0
	return NewRecaller(s, cfg, zap.NewNop()), s
}

func seed(t *testing.T, s *store.SQLiteStore, mems ...*model.Memory) {
	t.Helper()
	for _, m := range mems {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		if m.ValidFrom.IsZero() {
			m.ValidFrom = m.CreatedAt
		}
		if m.Type == "" {
			m.Type = model.TypeEpisodic
		}
	}
	if err := s.InsertBatch(context.Background(), mems); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestRecallKeyword(t *testing.T) {
	r, s := newTestRecaller(t)
	seed(t, s,
		&model.Memory{Content: "the user prefers dark mode in vscode", Importance: 0.5},
		&model.Memory{Content: "dark chocolate is the user's favorite snack", Importance: 0.5},
		&model.Memory{Content: "kubernetes upgrade went fine", Importance: 0.5},
	)

	res, err := r.Recall(context.Background(), Query{Text: "dark mode vscode", Limit: 10})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(res.Memories) == 0 {
		t.Fatal("no results")
	}
	if res.Memories[0].Memory.Content != "the user prefers dark mode in vscode" {
		t.Errorf("top result = %q", res.Memories[0].Memory.Content)
	}
	if res.Partial {
		t.Error("unexpected partial result")
	}
	if res.Elapsed <= 0 {
		t.Error("expected positive elapsed time")
	}
	if len(res.Strategies) != 3 {
		t.Errorf("strategies used = %v, want all three", res.Strategies)
	}
}

func TestRecallEntity(t *testing.T) {
	r, s := newTestRecaller(t)

	m := &model.Memory{Content: "alice owns the billing rollout", Importance: 0.5}
	seed(t, s, m,
		&model.Memory{Content: "unrelated infrastructure note", Importance: 0.5})

	ids, err := s.UpsertEntities(context.Background(), []model.Entity{
		{Name: "Alice", NormalizedName: "alice", Type: "person", Confidence: 0.9},
	})
	if err != nil {
		t.Fatalf("upsert entity: %v", err)
	}
	if err := s.LinkMentions(context.Background(), []model.EntityMention{
		{MemoryID: m.ID, EntityID: ids[0], Confidence: 0.9},
	}); err != nil {
		t.Fatalf("link mention: %v", err)
	}

	res, err := r.Recall(context.Background(), Query{Entities: []string{"Alice"}, Limit: 1})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(res.Memories) != 1 {
		t.Fatalf("got %d memories, want 1", len(res.Memories))
	}
	if res.Memories[0].Memory.ID != m.ID {
		t.Errorf("top result = %q, want entity-linked memory", res.Memories[0].Memory.ID)
	}
	found := false
	for _, strat := range res.Memories[0].Strategies {
		if strat == StrategyEntity {
			found = true
		}
	}
	if !found {
		t.Errorf("strategies = %v, want entity", res.Memories[0].Strategies)
	}
}

func TestRecallTemporalPrefersRecent(t *testing.T) {
	r, s := newTestRecaller(t)
	now := time.Now().UTC()
	seed(t, s,
		&model.Memory{Content: "old observation", Importance: 0.5, CreatedAt: now.Add(-20 * 24 * time.Hour)},
		&model.Memory{Content: "fresh observation", Importance: 0.5, CreatedAt: now.Add(-time.Minute)},
	)

	// No text, no entities: only the temporal strategy contributes.
	res, err := r.Recall(context.Background(), Query{Limit: 10})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(res.Memories) != 2 {
		t.Fatalf("got %d memories, want 2", len(res.Memories))
	}
	if res.Memories[0].Memory.Content != "fresh observation" {
		t.Errorf("top result = %q, want the recent one", res.Memories[0].Memory.Content)
	}
	if res.Memories[0].Score <= res.Memories[1].Score {
		t.Errorf("scores not decaying: %v <= %v", res.Memories[0].Score, res.Memories[1].Score)
	}
}

func TestRecallExcludesExpired(t *testing.T) {
	r, s := newTestRecaller(t)
	past := time.Now().UTC().Add(-time.Minute)
	expired := &model.Memory{Content: "expired scratch note about deployment", Importance: 0.9, ValidTo: &past}
	live := &model.Memory{Content: "live note about deployment", Importance: 0.5}
	seed(t, s, expired, live)

	res, err := r.Recall(context.Background(), Query{Text: "deployment", Limit: 10})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	for _, sc := range res.Memories {
		if sc.Memory.ID == expired.ID {
			t.Error("expired memory surfaced in recall")
		}
	}
	if len(res.Memories) == 0 {
		t.Error("live memory missing")
	}
}

func TestRecallMinImportanceFilter(t *testing.T) {
	r, s := newTestRecaller(t)
	r.cfg.MinImportance = 0.3
	seed(t, s,
		&model.Memory{Content: "trivial log line about cache", Importance: 0.1},
		&model.Memory{Content: "important decision about cache", Importance: 0.8},
	)

	res, err := r.Recall(context.Background(), Query{Text: "cache", Limit: 10})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(res.Memories) != 1 {
		t.Fatalf("got %d memories, want 1", len(res.Memories))
	}
	if res.Memories[0].Memory.Importance != 0.8 {
		t.Errorf("kept importance = %v", res.Memories[0].Memory.Importance)
	}
}

func TestRecallLimit(t *testing.T) {
	r, s := newTestRecaller(t)
	seed(t, s,
		&model.Memory{Content: "note one", Importance: 0.5},
		&model.Memory{Content: "note two", Importance: 0.5},
		&model.Memory{Content: "note three", Importance: 0.5},
	)

	res, err := r.Recall(context.Background(), Query{Limit: 2})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(res.Memories) != 2 {
		t.Errorf("got %d memories, want 2", len(res.Memories))
	}
	if res.TotalFound != 3 {
		t.Errorf("total found = %d, want 3", res.TotalFound)
	}
}

func TestRecallTotalFoundDeduplicates(t *testing.T) {
	r, s := newTestRecaller(t)
	seed(t, s, &model.Memory{Content: "release notes for the billing service", Importance: 0.5})

	// Keyword and temporal both surface the same memory; it counts once.
	res, err := r.Recall(context.Background(), Query{Text: "billing release", Limit: 10})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if res.TotalFound != 1 {
		t.Errorf("total found = %d, want 1", res.TotalFound)
	}
	if len(res.Memories) != 1 {
		t.Errorf("got %d memories, want 1", len(res.Memories))
	}
}

func TestRecallBumpCallback(t *testing.T) {
	r, s := newTestRecaller(t)
	seed(t, s, &model.Memory{Content: "bump me", Importance: 0.5})

	var got []string
	r.OnAccess(func(ids []string) { got = ids })

	res, err := r.Recall(context.Background(), Query{Limit: 10})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(got) != len(res.Memories) {
		t.Errorf("bumped %d ids, want %d", len(got), len(res.Memories))
	}
}

func TestRecallBudgetExpiresPartial(t *testing.T) {
	r, s := newTestRecaller(t)
	r.cfg.Budget = time.Nanosecond
	seed(t, s, &model.Memory{Content: "anything", Importance: 0.5})

	res, err := r.Recall(context.Background(), Query{Text: "anything", Limit: 10})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if !res.Partial {
		t.Error("expected partial result under an expired budget")
	}
}

func TestDecayScore(t *testing.T) {
	now := time.Now().UTC()

	fresh := model.Memory{Type: model.TypeEpisodic, CreatedAt: now}
	if got := decayScore(fresh, now); got != 1.0 {
		t.Errorf("fresh = %v, want 1.0", got)
	}

	// At exactly one half-life the score is 0.5.
	halfLife := model.TypeEpisodic.HalfLife()
	aged := model.Memory{Type: model.TypeEpisodic, CreatedAt: now.Add(-halfLife)}
	if got := decayScore(aged, now); got < 0.49 || got > 0.51 {
		t.Errorf("one half-life = %v, want ~0.5", got)
	}

	// Sensory decays much faster than semantic at the same age.
	age := 6 * time.Hour
	sensory := model.Memory{Type: model.TypeSensory, CreatedAt: now.Add(-age)}
	semantic := model.Memory{Type: model.TypeSemantic, CreatedAt: now.Add(-age)}
	if decayScore(sensory, now) >= decayScore(semantic, now) {
		t.Error("sensory should decay faster than semantic")
	}
}

func TestRankImportanceMultiplies(t *testing.T) {
	r, _ := newTestRecaller(t)
	now := time.Now().UTC()

	// A perfect match on a trivial memory loses to a half match on an
	// important one: 0.5*1.0*0.35 = 0.175 < 0.5*0.5*0.9 = 0.225.
	trivial := model.Memory{ID: "trivial", Importance: 0.35, CreatedAt: now}
	important := model.Memory{ID: "important", Importance: 0.9, CreatedAt: now}
	hits := []Hit{
		{Memory: trivial, Score: 1.0, Strategy: StrategyKeyword},
		{Memory: important, Score: 0.5, Strategy: StrategyKeyword},
	}

	ranked := r.rank(hits, 10)
	if len(ranked) != 2 {
		t.Fatalf("got %d, want 2", len(ranked))
	}
	if ranked[0].Memory.ID != "important" {
		t.Errorf("top = %q, want the important memory", ranked[0].Memory.ID)
	}
}

func TestRankTieBreaks(t *testing.T) {
	r, _ := newTestRecaller(t)
	now := time.Now().UTC()

	lowConf := model.Memory{ID: "a", Confidence: 0.4, CreatedAt: now}
	highConf := model.Memory{ID: "b", Confidence: 0.9, CreatedAt: now}
	hits := []Hit{
		{Memory: lowConf, Score: 0.7, Strategy: StrategyKeyword},
		{Memory: highConf, Score: 0.7, Strategy: StrategyKeyword},
	}

	ranked := r.rank(hits, 10)
	if len(ranked) != 2 {
		t.Fatalf("got %d, want 2", len(ranked))
	}
	if ranked[0].Memory.ID != "b" {
		t.Errorf("tie should break on confidence, got %q first", ranked[0].Memory.ID)
	}
}

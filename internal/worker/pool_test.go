package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mnemos-dev/mnemos/internal/dedup"
	"github.com/mnemos-dev/mnemos/internal/model"
	"github.com/mnemos-dev/mnemos/internal/store"
)

func newTestPool(t *testing.T, cfg Config) (*Pool, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ing := dedup.NewIngestor(s, nil, dedup.DefaultConfig(), zap.NewNop())
	p := NewPool(ing, s, cfg, zap.NewNop())
	t.Cleanup(p.Close)
	return p, s
}

func TestPoolProcessesIngest(t *testing.T) {
	p, s := newTestPool(t, Config{FlushInterval: 10 * time.Millisecond})

	if err := p.EnqueueIngest(dedup.Candidate{
		Content: "deferred observation about the deploy", SourceType: "tool"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	p.Close()

	st, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalMemories != 1 {
		t.Errorf("total = %d, want 1", st.TotalMemories)
	}
	if p.Processed() != 1 {
		t.Errorf("processed = %d, want 1", p.Processed())
	}
}

func TestPoolQueueFull(t *testing.T) {
	p, _ := newTestPool(t, Config{
		QueueSize:     1,
		FlushInterval: time.Hour,
		BatchSize:     1, // every job is a slow flush, so the queue backs up
	})

	// Producers outrun the consumer by orders of magnitude; the single
	// slot fills as soon as the consumer is mid-flush.
	var err error
	for i := 0; i < 10000; i++ {
		err = p.Enqueue(Job{Kind: KindIngest,
			Candidate: dedup.Candidate{Content: fmt.Sprintf("note %d", i), SourceType: "tool"}})
		if err != nil {
			break
		}
	}
	if !errors.Is(err, model.ErrQueueFull) {
		t.Errorf("err = %v, want ErrQueueFull", err)
	}
	if p.Dropped() == 0 {
		t.Error("dropped counter not incremented")
	}
}

func TestPoolCloseDrains(t *testing.T) {
	p, s := newTestPool(t, Config{FlushInterval: time.Hour, BatchSize: 100})

	for i := 0; i < 5; i++ {
		if err := p.EnqueueIngest(dedup.Candidate{
			Content: "note number " + string(rune('a'+i)), SourceType: "tool"}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	// Nothing flushed yet; Close must drain everything.
	p.Close()

	st, _ := s.Stats(context.Background())
	if st.TotalMemories != 5 {
		t.Errorf("total = %d, want 5 after drain", st.TotalMemories)
	}
}

func TestPoolAccessBumps(t *testing.T) {
	p, s := newTestPool(t, Config{FlushInterval: time.Hour, BatchSize: 100})

	m := &model.Memory{Content: "bump target", Type: model.TypeEpisodic,
		CreatedAt: time.Now().UTC(), ValidFrom: time.Now().UTC()}
	if err := s.InsertBatch(context.Background(), []*model.Memory{m}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	p.EnqueueBumps([]string{m.ID})
	p.EnqueueBumps([]string{m.ID})
	p.Close()

	got, err := s.Get(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AccessCount != 2 {
		t.Errorf("access_count = %d, want 2", got.AccessCount)
	}
	if got.AccessedAt == nil {
		t.Error("accessed_at not stamped")
	}
}

func TestPoolBadJobIsolated(t *testing.T) {
	p, s := newTestPool(t, Config{FlushInterval: time.Hour, BatchSize: 100})

	// Empty content fails validation; the job after it still lands.
	_ = p.EnqueueIngest(dedup.Candidate{Content: "   ", SourceType: "tool"})
	_ = p.EnqueueIngest(dedup.Candidate{Content: "healthy note", SourceType: "tool"})
	p.Close()

	st, _ := s.Stats(context.Background())
	if st.TotalMemories != 1 {
		t.Errorf("total = %d, want 1", st.TotalMemories)
	}
	if p.Failed() != 1 {
		t.Errorf("failed = %d, want 1", p.Failed())
	}
	if p.Processed() != 1 {
		t.Errorf("processed = %d, want 1", p.Processed())
	}
}

func TestPoolCloseIdempotent(t *testing.T) {
	p, _ := newTestPool(t, Config{})
	p.Close()
	p.Close() // second close must not panic
}

func TestPoolEnqueueAfterClose(t *testing.T) {
	p, _ := newTestPool(t, Config{})
	p.Close()

	// A late producer gets backpressure, not a panic.
	err := p.EnqueueIngest(dedup.Candidate{Content: "too late", SourceType: "tool"})
	if !errors.Is(err, model.ErrQueueFull) {
		t.Errorf("err = %v, want ErrQueueFull", err)
	}
	p.EnqueueBumps([]string{"some-id"}) // advisory path must not panic either
}

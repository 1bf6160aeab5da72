// Package engine assembles the memory subsystems behind one facade:
// blocking and deferred ingestion, recall, pruning, and stats.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mnemos-dev/mnemos/internal/config"
	"github.com/mnemos-dev/mnemos/internal/dedup"
	"github.com/mnemos-dev/mnemos/internal/model"
	"github.com/mnemos-dev/mnemos/internal/prune"
	"github.com/mnemos-dev/mnemos/internal/recall"
	"github.com/mnemos-dev/mnemos/internal/store"
	"github.com/mnemos-dev/mnemos/internal/worker"
)

// Engine owns the store and every subsystem over it. One Engine per
// database; Close releases everything in dependency order.
type Engine struct {
	cfg   config.Config
	log   *zap.Logger
	store *store.SQLiteStore
	cache *dedup.SimCache

	// front is the blocking ingest path over the no-wait store view:
	// lock contention surfaces as ErrStoreBusy instead of stalling the
	// caller. deferred is the worker path, which may wait.
	front    *dedup.Ingestor
	deferred *dedup.Ingestor

	recaller *recall.Recaller
	pruner   *prune.Pruner
	pool     *worker.Pool

	recalls     atomic.Int64
	recallNanos atomic.Int64
}

// New opens the database and wires all subsystems from cfg.
func New(cfg config.Config, log *zap.Logger) (*Engine, error) {
	st, err := store.NewSQLiteStore(cfg.Storage.Path,
		store.WithPoolSize(cfg.Storage.PoolSize),
		store.WithAcquireTimeout(cfg.Storage.AcquireTimeout))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	cache, err := dedup.NewSimCache(cfg.Dedup.CacheEntries, cfg.Dedup.CacheTTL)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("similarity cache: %w", err)
	}

	dcfg := dedup.Config{
		MaxContentBytes:       cfg.Dedup.MaxContentBytes,
		NearDupThreshold:      cfg.Dedup.NearDupThreshold,
		TokenOverlapThreshold: cfg.Dedup.TokenOverlapThreshold,
		MinTokenContentLen:    dedup.DefaultConfig().MinTokenContentLen,
		MaxCandidates:         cfg.Dedup.MaxCandidates,
		LengthBucketFactor:    dedup.DefaultConfig().LengthBucketFactor,
	}

	e := &Engine{
		cfg:      cfg,
		log:      log,
		store:    st,
		cache:    cache,
		front:    dedup.NewIngestor(st.NoWait(), cache, dcfg, log),
		deferred: dedup.NewIngestor(st, cache, dcfg, log),
		pruner:   prune.NewPruner(st, log),
	}

	e.pool = worker.NewPool(e.deferred, st, worker.Config{
		QueueSize:     cfg.Worker.QueueSize,
		BatchSize:     cfg.Worker.BatchSize,
		FlushInterval: cfg.Worker.FlushInterval,
	}, log)

	e.recaller = recall.NewRecaller(st, recall.Config{
		Budget:         cfg.Recall.Budget,
		KeywordWeight:  cfg.Recall.KeywordWeight,
		EntityWeight:   cfg.Recall.EntityWeight,
		TemporalWeight: cfg.Recall.TemporalWeight,
		MinImportance:  cfg.Recall.MinImportance,
		FetchLimit:     cfg.Recall.FetchLimit,
	}, log)
	e.recaller.OnAccess(e.pool.EnqueueBumps)

	return e, nil
}

// Ingest runs a candidate through the pipeline synchronously. A busy
// store returns ErrStoreBusy immediately; callers who can tolerate the
// deferral should fall back to IngestAsync.
func (e *Engine) Ingest(ctx context.Context, c dedup.Candidate) (*dedup.Result, error) {
	return e.front.Ingest(ctx, c)
}

// IngestAsync queues a candidate for deferred ingestion. ErrQueueFull
// means the caller must decide: retry later or drop.
func (e *Engine) IngestAsync(c dedup.Candidate) error {
	return e.pool.EnqueueIngest(c)
}

// Recall retrieves memories for the query and tracks recall latency.
func (e *Engine) Recall(ctx context.Context, q recall.Query) (*recall.Result, error) {
	res, err := e.recaller.Recall(ctx, q)
	if err != nil {
		return nil, err
	}
	e.recalls.Add(1)
	e.recallNanos.Add(int64(res.Elapsed))
	return res, nil
}

// Get fetches one memory by id.
func (e *Engine) Get(ctx context.Context, id string) (*model.Memory, error) {
	return e.store.Get(ctx, id)
}

// PruneOptions selects and tunes a pruning run.
type PruneOptions struct {
	Strategy string  // safe | intelligent | aggressive | smart | percentage
	Percent  float64 // used by the percentage strategy, in (0,1]
	DryRun   bool
	Archive  bool
	Backup   bool
}

// Prune runs one pruning pass under the named strategy.
func (e *Engine) Prune(ctx context.Context, opts PruneOptions) (*prune.Report, error) {
	strategy, err := e.resolveStrategy(ctx, opts)
	if err != nil {
		return nil, err
	}
	return e.pruner.Run(ctx, prune.Options{
		Strategy:    strategy,
		Protector:   prune.DefaultProtector(),
		DryRun:      opts.DryRun,
		Archive:     opts.Archive,
		Backup:      opts.Backup,
		BackupDir:   e.cfg.Prune.BackupDir,
		KeepBackups: e.cfg.Prune.KeepBackups,
		BatchSize:   e.cfg.Prune.BatchSize,
	})
}

func (e *Engine) resolveStrategy(ctx context.Context, opts PruneOptions) (prune.Strategy, error) {
	switch strings.ToLower(opts.Strategy) {
	case "", "safe":
		return prune.Safe{}, nil
	case "intelligent":
		return prune.Intelligent{}, nil
	case "aggressive":
		return prune.Aggressive{}, nil
	case "smart":
		return prune.NewSmart(), nil
	case "percentage":
		if opts.Percent <= 0 || opts.Percent > 1 {
			return nil, fmt.Errorf("percentage strategy needs a fraction in (0,1], got %v", opts.Percent)
		}
		snapshot, err := e.store.Query(ctx, store.Filter{})
		if err != nil {
			return nil, fmt.Errorf("snapshot for percentage prune: %w", err)
		}
		return prune.NewPercentage(opts.Percent, snapshot), nil
	}
	return nil, fmt.Errorf("unknown prune strategy %q", opts.Strategy)
}

// Stats aggregates store statistics with engine-level runtime counters.
type Stats struct {
	Store *store.Stats `json:"store"`

	QueueDepth    int   `json:"queue_depth"`
	JobsProcessed int64 `json:"jobs_processed"`
	JobsFailed    int64 `json:"jobs_failed"`
	JobsDropped   int64 `json:"jobs_dropped"`

	Recalls         int64   `json:"recalls"`
	AvgRecallMillis float64 `json:"avg_recall_ms"`
	CacheHitRatio   float64 `json:"cache_hit_ratio"`
}

// Stats returns a snapshot of store and runtime statistics.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	st, err := e.store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	s := &Stats{
		Store:         st,
		QueueDepth:    e.pool.Depth(),
		JobsProcessed: e.pool.Processed(),
		JobsFailed:    e.pool.Failed(),
		JobsDropped:   e.pool.Dropped(),
		Recalls:       e.recalls.Load(),
		CacheHitRatio: e.cache.HitRatio(),
	}
	if s.Recalls > 0 {
		s.AvgRecallMillis = float64(e.recallNanos.Load()) / float64(s.Recalls) / float64(time.Millisecond)
	}
	return s, nil
}

// Close drains the worker pool, then releases the cache and the store.
func (e *Engine) Close() error {
	e.pool.Close()
	e.cache.Close()
	return e.store.Close()
}

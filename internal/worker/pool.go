// Package worker runs deferred store writes off the caller's hot path.
//
// A single consumer drains a bounded queue in batches, so producers
// never block: a full queue is reported immediately and the caller
// decides whether to retry or drop.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mnemos-dev/mnemos/internal/dedup"
	"github.com/mnemos-dev/mnemos/internal/model"
	"github.com/mnemos-dev/mnemos/internal/store"
)

// Kind discriminates queued jobs.
type Kind int

const (
	// KindIngest runs a candidate through the full dedup pipeline.
	KindIngest Kind = iota
	// KindAccessBump increments access stats for recalled memories.
	KindAccessBump
)

// Job is one unit of deferred work.
type Job struct {
	Kind       Kind
	Candidate  dedup.Candidate
	BumpIDs    []string
	EnqueuedAt time.Time
}

// Config tunes the pool.
type Config struct {
	QueueSize     int           // bounded queue capacity (default 1000)
	BatchSize     int           // max jobs per flush (default 50)
	FlushInterval time.Duration // max time a job waits in a partial batch (default 2s)
	JobTimeout    time.Duration // per-flush store deadline (default 30s)
}

// DefaultConfig returns the pool defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:     1000,
		BatchSize:     50,
		FlushInterval: 2 * time.Second,
		JobTimeout:    30 * time.Second,
	}
}

// Pool is the single-consumer job queue. One consumer keeps writes to
// the embedded store serialized, which avoids lock contention with the
// blocking front door.
type Pool struct {
	queue    chan Job
	ingestor *dedup.Ingestor
	store    store.Adapter
	cfg      Config
	log      *zap.Logger
	wg       sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	// mu orders Enqueue's send against Close's channel close. A send
	// racing the close would panic; under the lock it cannot.
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewPool builds and starts the pool.
func NewPool(ing *dedup.Ingestor, st store.Adapter, cfg Config, log *zap.Logger) *Pool {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}

	p := &Pool{
		queue:    make(chan Job, cfg.QueueSize),
		ingestor: ing,
		store:    st,
		cfg:      cfg,
		log:      log,
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Enqueue submits a job without blocking. A full or closed queue
// returns ErrQueueFull immediately.
func (p *Pool) Enqueue(job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		return model.ErrQueueFull
	}
	select {
	case p.queue <- job:
		return nil
	default:
		p.dropped.Add(1)
		return model.ErrQueueFull
	}
}

// EnqueueIngest queues a candidate for deferred ingestion.
func (p *Pool) EnqueueIngest(c dedup.Candidate) error {
	return p.Enqueue(Job{Kind: KindIngest, Candidate: c})
}

// EnqueueBumps queues access-stat updates for recalled memories. A full
// queue drops the bump silently: access stats are advisory.
func (p *Pool) EnqueueBumps(ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := p.Enqueue(Job{Kind: KindAccessBump, BumpIDs: ids}); err != nil {
		p.log.Debug("access bump dropped", zap.Int("ids", len(ids)))
	}
}

// Depth returns the number of queued jobs.
func (p *Pool) Depth() int { return len(p.queue) }

// Processed returns the number of jobs completed successfully.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Failed returns the number of jobs that errored.
func (p *Pool) Failed() int64 { return p.failed.Load() }

// Dropped returns the number of jobs rejected by a full queue.
func (p *Pool) Dropped() int64 { return p.dropped.Load() }

// Close stops intake, drains the queue, and waits for the consumer.
// Late producers get ErrQueueFull instead of a panic.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
	})
	p.wg.Wait()
}

func (p *Pool) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Job, 0, p.cfg.BatchSize)
	for {
		select {
		case job, ok := <-p.queue:
			if !ok {
				p.flush(batch)
				return
			}
			batch = append(batch, job)
			if len(batch) >= p.cfg.BatchSize {
				p.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				p.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

// flush processes a batch. One bad job never poisons the rest: failures
// are logged per job and counted.
func (p *Pool) flush(batch []Job) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.JobTimeout)
	defer cancel()

	var bumps []store.MemoryPatch
	for _, job := range batch {
		switch job.Kind {
		case KindIngest:
			if _, err := p.ingestor.Ingest(ctx, job.Candidate); err != nil {
				p.failed.Add(1)
				p.log.Warn("deferred ingest failed",
					zap.String("content_hash", model.HashContent(job.Candidate.Content)),
					zap.Error(err))
				continue
			}
			p.processed.Add(1)
		case KindAccessBump:
			for _, id := range job.BumpIDs {
				bumps = append(bumps, store.MemoryPatch{ID: id, BumpAccess: true})
			}
		}
	}

	if len(bumps) == 0 {
		return
	}
	if err := p.store.UpdateBatch(ctx, bumps); err != nil {
		p.failed.Add(1)
		p.log.Warn("access bump batch failed", zap.Int("patches", len(bumps)), zap.Error(err))
		return
	}
	p.processed.Add(1)
}

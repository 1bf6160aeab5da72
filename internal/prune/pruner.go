package prune

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mnemos-dev/mnemos/internal/model"
	"github.com/mnemos-dev/mnemos/internal/store"
)

const backupPrefix = "memory-"

// Options configures one pruning run.
type Options struct {
	Strategy  Strategy
	Protector *Protector
	// DryRun evaluates and reports without removing anything.
	DryRun bool
	// Backup snapshots the database into BackupDir before removal.
	Backup    bool
	BackupDir string
	// KeepBackups bounds how many snapshots survive the retention sweep.
	KeepBackups int
	// Archive moves pruned memories to the archive table instead of
	// deleting them.
	Archive bool
	// BatchSize bounds each removal transaction (default 100).
	BatchSize int
}

// Report summarizes a pruning run.
type Report struct {
	Strategy       string        `json:"strategy"`
	Scanned        int           `json:"scanned"`
	Candidates     int           `json:"candidates"`
	Protected      int           `json:"protected"`
	Removed        int           `json:"removed"`
	Archived       int           `json:"archived"`
	BytesReclaimed int64         `json:"bytes_reclaimed"`
	BackupPath     string        `json:"backup_path,omitempty"`
	DryRun         bool          `json:"dry_run,omitempty"`
	Elapsed        time.Duration `json:"elapsed"`
	Errors         []string      `json:"errors,omitempty"`
}

// Pruner runs pruning passes over the store.
type Pruner struct {
	store store.Adapter
	log   *zap.Logger
	now   func() time.Time
}

// NewPruner wires a pruner over the given store.
func NewPruner(st store.Adapter, log *zap.Logger) *Pruner {
	return &Pruner{store: st, log: log, now: time.Now}
}

// Run evaluates every memory against the strategy and removes the ones
// it selects, in bounded batches. Cancellation between batches aborts
// the rest of the run; completed batches stay removed.
func (p *Pruner) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.Strategy == nil {
		return nil, fmt.Errorf("prune: %w", errNoStrategy)
	}
	start := p.now()
	now := start.UTC()
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	report := &Report{Strategy: opts.Strategy.Name(), DryRun: opts.DryRun}
	defer func() { report.Elapsed = p.now().Sub(start) }()

	memories, err := p.store.Query(ctx, store.Filter{Order: store.OrderOldest})
	if err != nil {
		return nil, fmt.Errorf("prune scan: %w", err)
	}
	report.Scanned = len(memories)

	var ids []string
	scores := make(map[string]float64)
	sizes := make(map[string]int64)
	for i := range memories {
		m := &memories[i]
		if ok, rule := opts.Protector.Protected(m, now); ok {
			report.Protected++
			p.log.Debug("memory protected from pruning",
				zap.String("memory_id", m.ID), zap.String("rule", rule))
			continue
		}
		prune, score, reason := opts.Strategy.Evaluate(m, now)
		if !prune {
			continue
		}
		p.log.Debug("prune candidate",
			zap.String("memory_id", m.ID), zap.String("reason", reason))
		ids = append(ids, m.ID)
		scores[m.ID] = score
		sizes[m.ID] = int64(len(m.Content))
	}
	report.Candidates = len(ids)

	if opts.DryRun || len(ids) == 0 {
		return report, nil
	}

	if opts.Backup {
		path, err := p.backup(ctx, opts)
		if err != nil {
			// Never remove without the requested safety net. Nothing has
			// been mutated yet, so the caller can simply retry.
			report.Errors = append(report.Errors, err.Error())
			return report, fmt.Errorf("%w: %v", model.ErrPruneAborted, err)
		}
		report.BackupPath = path
	}

	for len(ids) > 0 {
		if err := ctx.Err(); err != nil {
			// Completed batches stay removed; this is a partial run, not
			// an aborted one.
			report.Errors = append(report.Errors, err.Error())
			return report, fmt.Errorf("prune cancelled: %w", err)
		}
		batch := ids
		if len(batch) > batchSize {
			batch = batch[:batchSize]
		}
		ids = ids[len(batch):]

		if opts.Archive {
			if err := p.store.ArchiveBatch(ctx, batch, opts.Strategy.Name(), scores); err != nil {
				report.Errors = append(report.Errors, err.Error())
				p.log.Error("archive batch failed", zap.Int("batch", len(batch)), zap.Error(err))
				continue
			}
			report.Archived += len(batch)
		} else {
			if err := p.store.DeleteBatch(ctx, batch); err != nil {
				report.Errors = append(report.Errors, err.Error())
				p.log.Error("delete batch failed", zap.Int("batch", len(batch)), zap.Error(err))
				continue
			}
		}
		report.Removed += len(batch)
		for _, id := range batch {
			report.BytesReclaimed += sizes[id]
		}
	}

	p.log.Info("prune complete",
		zap.String("strategy", report.Strategy),
		zap.Int("removed", report.Removed),
		zap.Int("archived", report.Archived),
		zap.Int64("bytes_reclaimed", report.BytesReclaimed))
	return report, nil
}

var errNoStrategy = fmt.Errorf("no strategy configured")

// backup snapshots the database and sweeps old snapshots past the
// retention count.
func (p *Pruner) backup(ctx context.Context, opts Options) (string, error) {
	dir := opts.BackupDir
	if dir == "" {
		dir = "backups"
	}
	name := backupPrefix + p.now().UTC().Format("20060102-150405") + ".db"
	path := filepath.Join(dir, name)
	if err := p.store.Backup(ctx, path); err != nil {
		return "", err
	}

	if opts.KeepBackups > 0 {
		if err := sweepBackups(dir, opts.KeepBackups); err != nil {
			p.log.Warn("backup retention sweep failed", zap.String("dir", dir), zap.Error(err))
		}
	}
	return path, nil
}

// sweepBackups deletes all but the newest keep snapshots in dir. Names
// embed the timestamp, so lexicographic order is chronological.
func sweepBackups(dir string, keep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), backupPrefix) && strings.HasSuffix(e.Name(), ".db") {
			names = append(names, e.Name())
		}
	}
	if len(names) <= keep {
		return nil
	}
	sort.Strings(names)
	for _, name := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

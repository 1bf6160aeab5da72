// Package config loads mnemos configuration from defaults, an optional
// config file, and MNEMOS_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full mnemos configuration tree.
type Config struct {
	Debug bool

	Storage StorageConfig
	Dedup   DedupConfig
	Recall  RecallConfig
	Prune   PruneConfig
	Worker  WorkerConfig
}

// StorageConfig configures the embedded store.
type StorageConfig struct {
	Path           string
	PoolSize       int
	AcquireTimeout time.Duration
}

// DedupConfig configures the ingestion pipeline.
type DedupConfig struct {
	MaxContentBytes       int
	NearDupThreshold      float64
	TokenOverlapThreshold float64
	MaxCandidates         int
	CacheEntries          int64
	CacheTTL              time.Duration
}

// RecallConfig configures retrieval.
type RecallConfig struct {
	Budget         time.Duration
	KeywordWeight  float64
	EntityWeight   float64
	TemporalWeight float64
	MinImportance  float64
	FetchLimit     int
}

// PruneConfig configures pruning and backups.
type PruneConfig struct {
	BackupDir   string
	KeepBackups int
	BatchSize   int
}

// WorkerConfig configures the deferred-write pool.
type WorkerConfig struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
}

// Default returns the built-in configuration. The database and backups
// live under ~/.mnemos.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".mnemos")
	return Config{
		Storage: StorageConfig{
			Path:           filepath.Join(base, "memory.db"),
			PoolSize:       8,
			AcquireTimeout: 2 * time.Second,
		},
		Dedup: DedupConfig{
			MaxContentBytes:       100 * 1024,
			NearDupThreshold:      0.80,
			TokenOverlapThreshold: 0.50,
			MaxCandidates:         64,
			CacheEntries:          10000,
			CacheTTL:              10 * time.Minute,
		},
		Recall: RecallConfig{
			Budget:         10 * time.Millisecond,
			KeywordWeight:  0.5,
			EntityWeight:   0.3,
			TemporalWeight: 0.2,
			MinImportance:  0.3,
			FetchLimit:     100,
		},
		Prune: PruneConfig{
			BackupDir:   filepath.Join(base, "backups"),
			KeepBackups: 5,
			BatchSize:   100,
		},
		Worker: WorkerConfig{
			QueueSize:     1000,
			BatchSize:     50,
			FlushInterval: 2 * time.Second,
		},
	}
}

// Load builds the configuration. Precedence, highest to lowest:
//
//  1. Environment variables (MNEMOS_STORAGE_PATH, MNEMOS_RECALL_BUDGET, ...)
//  2. The config file (explicit path, or mnemos.yaml in ~/.mnemos)
//  3. Defaults
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("mnemos")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".mnemos"))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// A discovered config file that is missing is fine, defaults
		// apply. An explicit path that cannot be read is not.
		if configPath != "" {
			return Config{}, fmt.Errorf("reading config %s: %w", configPath, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("MNEMOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("debug", d.Debug)

	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.pool_size", d.Storage.PoolSize)
	v.SetDefault("storage.acquire_timeout", d.Storage.AcquireTimeout)

	v.SetDefault("dedup.max_content_bytes", d.Dedup.MaxContentBytes)
	v.SetDefault("dedup.near_dup_threshold", d.Dedup.NearDupThreshold)
	v.SetDefault("dedup.token_overlap_threshold", d.Dedup.TokenOverlapThreshold)
	v.SetDefault("dedup.max_candidates", d.Dedup.MaxCandidates)
	v.SetDefault("dedup.cache_entries", d.Dedup.CacheEntries)
	v.SetDefault("dedup.cache_ttl", d.Dedup.CacheTTL)

	v.SetDefault("recall.budget", d.Recall.Budget)
	v.SetDefault("recall.keyword_weight", d.Recall.KeywordWeight)
	v.SetDefault("recall.entity_weight", d.Recall.EntityWeight)
	v.SetDefault("recall.temporal_weight", d.Recall.TemporalWeight)
	v.SetDefault("recall.min_importance", d.Recall.MinImportance)
	v.SetDefault("recall.fetch_limit", d.Recall.FetchLimit)

	v.SetDefault("prune.backup_dir", d.Prune.BackupDir)
	v.SetDefault("prune.keep_backups", d.Prune.KeepBackups)
	v.SetDefault("prune.batch_size", d.Prune.BatchSize)

	v.SetDefault("worker.queue_size", d.Worker.QueueSize)
	v.SetDefault("worker.batch_size", d.Worker.BatchSize)
	v.SetDefault("worker.flush_interval", d.Worker.FlushInterval)
}

func fromViper(v *viper.Viper) Config {
	return Config{
		Debug: v.GetBool("debug"),
		Storage: StorageConfig{
			Path:           v.GetString("storage.path"),
			PoolSize:       v.GetInt("storage.pool_size"),
			AcquireTimeout: v.GetDuration("storage.acquire_timeout"),
		},
		Dedup: DedupConfig{
			MaxContentBytes:       v.GetInt("dedup.max_content_bytes"),
			NearDupThreshold:      v.GetFloat64("dedup.near_dup_threshold"),
			TokenOverlapThreshold: v.GetFloat64("dedup.token_overlap_threshold"),
			MaxCandidates:         v.GetInt("dedup.max_candidates"),
			CacheEntries:          v.GetInt64("dedup.cache_entries"),
			CacheTTL:              v.GetDuration("dedup.cache_ttl"),
		},
		Recall: RecallConfig{
			Budget:         v.GetDuration("recall.budget"),
			KeywordWeight:  v.GetFloat64("recall.keyword_weight"),
			EntityWeight:   v.GetFloat64("recall.entity_weight"),
			TemporalWeight: v.GetFloat64("recall.temporal_weight"),
			MinImportance:  v.GetFloat64("recall.min_importance"),
			FetchLimit:     v.GetInt("recall.fetch_limit"),
		},
		Prune: PruneConfig{
			BackupDir:   v.GetString("prune.backup_dir"),
			KeepBackups: v.GetInt("prune.keep_backups"),
			BatchSize:   v.GetInt("prune.batch_size"),
		},
		Worker: WorkerConfig{
			QueueSize:     v.GetInt("worker.queue_size"),
			BatchSize:     v.GetInt("worker.batch_size"),
			FlushInterval: v.GetDuration("worker.flush_interval"),
		},
	}
}

// Package store provides the storage adapter over the embedded SQLite engine.
package store

import (
	"context"
	"time"

	"github.com/mnemos-dev/mnemos/internal/model"
)

// Order controls result ordering for Query.
type Order int

const (
	OrderNewest Order = iota
	OrderOldest
)

// Filter selects memories for Query. Zero values mean "no constraint".
type Filter struct {
	Types         []model.MemoryType
	SourceType    string
	SessionID     string
	UserID        string
	ValidAt       *time.Time // exclude memories expired as of this instant
	MinImportance float64
	LengthMin     int // content-length bucket lower bound
	LengthMax     int // content-length bucket upper bound (0 = unbounded)
	TokensAny     []string
	CreatedBefore *time.Time
	Order         Order
	Limit         int
}

// MemoryPatch is a partial update applied by UpdateBatch. Nil fields are
// left untouched. BumpAccess increments access_count and stamps accessed_at.
type MemoryPatch struct {
	ID         string
	Content    *string // also refreshes content_hash and content_length
	Importance *float64
	Confidence *float64
	ValidTo    **time.Time // outer nil: untouched; inner nil: clear (never expires)
	Metadata   map[string]string
	BumpAccess bool
	AccessedAt *time.Time
}

// EntityHit is a memory matched through the entity-mention relation,
// with the number of distinct query entities it mentions.
type EntityHit struct {
	Memory  model.Memory
	Matched int
}

// Adapter is the synchronous storage contract shared by the ingestion,
// recall and pruning engines. All methods accept a context whose deadline
// bounds the operation; pool acquisition is bounded separately.
type Adapter interface {
	Get(ctx context.Context, id string) (*model.Memory, error)
	FindByHash(ctx context.Context, hash string) (*model.Memory, error)
	Query(ctx context.Context, f Filter) ([]model.Memory, error)
	InsertBatch(ctx context.Context, memories []*model.Memory) error
	UpdateBatch(ctx context.Context, patches []MemoryPatch) error
	DeleteBatch(ctx context.Context, ids []string) error

	UpsertEntities(ctx context.Context, entities []model.Entity) ([]string, error)
	LinkMentions(ctx context.Context, mentions []model.EntityMention) error
	QueryByEntityNames(ctx context.Context, normalizedNames []string, limit int) ([]EntityHit, error)

	LinkMemories(ctx context.Context, fromID, toID, rel string) error
	Links(ctx context.Context, memoryID string) ([]model.Link, error)

	TouchSession(ctx context.Context, s model.Session) error

	ArchiveBatch(ctx context.Context, ids []string, reason string, scores map[string]float64) error
	ArchivedCount(ctx context.Context) (int, error)

	Backup(ctx context.Context, destPath string) error
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

package dedup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/mnemos-dev/mnemos/internal/model"
	"github.com/mnemos-dev/mnemos/internal/store"
)

// Config tunes the dedup pipeline.
type Config struct {
	// MaxContentBytes rejects candidates larger than this before hashing.
	MaxContentBytes int
	// NearDupThreshold is the edit-distance similarity above which a
	// candidate is treated as a near duplicate of an existing memory.
	NearDupThreshold float64
	// TokenOverlapThreshold is the overlap coefficient above which a
	// candidate is flagged for consolidation with an existing memory.
	// The coefficient reads higher than Jaccard on the same pair, so a
	// threshold tuned for Jaccard is stricter here than it looks.
	TokenOverlapThreshold float64
	// MinTokenContentLen gates the token-overlap layer: shorter normalized
	// contents produce too few tokens for overlap to mean anything.
	MinTokenContentLen int
	// MaxCandidates caps how many stored memories each layer compares
	// against, newest first.
	MaxCandidates int
	// LengthBucketFactor bounds the candidate query's content-length
	// window to [len/factor, len*factor]. Asymmetry matters: updates are
	// usually longer than the fact they supersede.
	LengthBucketFactor float64
	// TTLOverrides replaces per-type default retention when set.
	TTLOverrides map[model.MemoryType]time.Duration
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		MaxContentBytes:       100 * 1024,
		NearDupThreshold:      0.80,
		TokenOverlapThreshold: 0.50,
		MinTokenContentLen:    10,
		MaxCandidates:         64,
		LengthBucketFactor:    3,
	}
}

// Candidate is a memory submitted for ingestion, before classification
// and deduplication.
type Candidate struct {
	Content    string
	SourceType string
	TypeHint   string // parsed via model.ParseMemoryType; empty means episodic
	Importance float64
	Confidence float64
	AgentID    string
	UserID     string
	SessionID  string
	Metadata   map[string]string
	Entities   []ExtractedEntity
}

// ExtractedEntity is an entity mention the caller already extracted from
// the candidate content.
type ExtractedEntity struct {
	Name        string
	Type        string
	Confidence  float64
	StartOffset int
	EndOffset   int
}

// Result reports what ingestion did with a candidate.
type Result struct {
	Memory    *model.Memory `json:"memory"`
	Outcome   model.Outcome `json:"outcome"`
	MatchedID string        `json:"matched_id,omitempty"` // set for non-insert outcomes
}

// Ingestor runs candidates through validation, the three similarity
// layers, and storage.
type Ingestor struct {
	store store.Adapter
	cache *SimCache
	cfg   Config
	log   *zap.Logger

	now     func() time.Time
	editSim func(a, b string) (float64, error)
}

// NewIngestor wires an ingestor over the given store. cache may be nil to
// disable similarity memoization.
func NewIngestor(st store.Adapter, cache *SimCache, cfg Config, log *zap.Logger) *Ingestor {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultConfig().MaxCandidates
	}
	if cfg.MaxContentBytes <= 0 {
		cfg.MaxContentBytes = DefaultConfig().MaxContentBytes
	}
	return &Ingestor{
		store:   st,
		cache:   cache,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		editSim: EditSimilarity,
	}
}

// Ingest runs one candidate through the full pipeline. Storage errors are
// returned; similarity errors are logged and the candidate falls through
// to a plain insert.
func (in *Ingestor) Ingest(ctx context.Context, c Candidate) (*Result, error) {
	mem, err := in.validate(c)
	if err != nil {
		return nil, err
	}

	// Layer 1: exact hash match.
	existing, err := in.store.FindByHash(ctx, mem.ContentHash)
	switch {
	case err == nil:
		if bumpErr := in.store.UpdateBatch(ctx, []store.MemoryPatch{{ID: existing.ID, BumpAccess: true}}); bumpErr != nil {
			in.log.Warn("access bump on duplicate failed",
				zap.String("memory_id", existing.ID), zap.Error(bumpErr))
		}
		return &Result{Memory: existing, Outcome: model.SkippedDuplicate, MatchedID: existing.ID}, nil
	case !errors.Is(err, model.ErrNotFound):
		return nil, fmt.Errorf("hash lookup: %w", err)
	}

	// Layers 2 and 3 compare against a bounded candidate set of the same
	// type and source, in a content-length bucket around the new content.
	match, outcome := in.similarMatch(ctx, mem)
	switch outcome {
	case model.UpdatedExisting:
		if err := in.applyUpdate(ctx, match, mem); err != nil {
			return nil, err
		}
		in.postWrite(ctx, match.ID, c)
		return &Result{Memory: match, Outcome: model.UpdatedExisting, MatchedID: match.ID}, nil
	case model.FlaggedForConsolidation:
		if err := in.insert(ctx, mem, c); err != nil {
			return in.onInsertRace(ctx, mem, err)
		}
		if linkErr := in.store.LinkMemories(ctx, mem.ID, match.ID, model.RelRelatesTo); linkErr != nil {
			in.log.Warn("consolidation link failed",
				zap.String("from", mem.ID), zap.String("to", match.ID), zap.Error(linkErr))
		}
		return &Result{Memory: mem, Outcome: model.FlaggedForConsolidation, MatchedID: match.ID}, nil
	}

	if err := in.insert(ctx, mem, c); err != nil {
		return in.onInsertRace(ctx, mem, err)
	}
	return &Result{Memory: mem, Outcome: model.Inserted}, nil
}

func (in *Ingestor) validate(c Candidate) (*model.Memory, error) {
	content := strings.TrimSpace(c.Content)
	if content == "" {
		return nil, &model.ValidationError{Reason: "content is empty"}
	}
	if len(content) > in.cfg.MaxContentBytes {
		return nil, &model.ValidationError{
			Reason: fmt.Sprintf("content exceeds %d bytes", in.cfg.MaxContentBytes)}
	}
	if !utf8.ValidString(content) {
		return nil, &model.ValidationError{Reason: "content is not valid UTF-8"}
	}

	mt, ok := model.ParseMemoryType(c.TypeHint)
	if !ok {
		return nil, &model.ValidationError{Reason: fmt.Sprintf("unknown memory type %q", c.TypeHint)}
	}

	importance := clamp01(c.Importance)
	confidence := c.Confidence
	if confidence == 0 {
		confidence = 0.5
	}
	confidence = clamp01(confidence)

	now := in.now().UTC()
	normalized := model.Normalize(content)
	mem := &model.Memory{
		Content:       content,
		ContentHash:   model.HashContent(content),
		Type:          mt,
		Importance:    importance,
		Confidence:    confidence,
		SourceType:    c.SourceType,
		AgentID:       c.AgentID,
		UserID:        c.UserID,
		SessionID:     c.SessionID,
		Metadata:      c.Metadata,
		CreatedAt:     now,
		ValidFrom:     now,
		ContentLength: len(normalized),
	}

	if ttl := in.ttlFor(mt); ttl > 0 {
		validTo := now.Add(ttl)
		mem.ValidTo = &validTo
	}
	return mem, nil
}

func (in *Ingestor) ttlFor(mt model.MemoryType) time.Duration {
	if ttl, ok := in.cfg.TTLOverrides[mt]; ok {
		return ttl
	}
	return mt.DefaultTTL()
}

// similarMatch runs layers 2 and 3 over the candidate set. It returns the
// matched memory and the outcome it implies, or (nil, Inserted) for no
// match. Errors inside either layer are logged and treated as no match so
// the write path stays open.
func (in *Ingestor) similarMatch(ctx context.Context, mem *model.Memory) (*model.Memory, model.Outcome) {
	factor := in.cfg.LengthBucketFactor
	if factor <= 1 {
		factor = DefaultConfig().LengthBucketFactor
	}
	lengthMin := int(float64(mem.ContentLength) / factor)
	lengthMax := int(float64(mem.ContentLength) * factor)
	candidates, err := in.store.Query(ctx, store.Filter{
		Types:      []model.MemoryType{mem.Type},
		SourceType: mem.SourceType,
		LengthMin:  lengthMin,
		LengthMax:  lengthMax,
		Order:      store.OrderNewest,
		Limit:      in.cfg.MaxCandidates,
	})
	if err != nil {
		in.log.Warn("candidate query failed, inserting without similarity check",
			zap.String("content_hash", mem.ContentHash), zap.Error(err))
		return nil, model.Inserted
	}
	if len(candidates) == 0 {
		return nil, model.Inserted
	}

	normalized := model.Normalize(mem.Content)

	// Layer 2: edit distance. First candidate over the threshold wins.
	for i := range candidates {
		cand := &candidates[i]
		score, err := in.pairScore(mem.ContentHash, cand.ContentHash, normalized, model.Normalize(cand.Content))
		if err != nil {
			in.log.Warn("edit-distance comparison failed",
				zap.String("content_hash", mem.ContentHash),
				zap.String("candidate_id", cand.ID), zap.Error(err))
			continue
		}
		if score < in.cfg.NearDupThreshold {
			continue
		}
		if isUpdate(model.Normalize(cand.Content), normalized) {
			return cand, model.UpdatedExisting
		}
		// Near duplicate with no update signal: store it, but flag the
		// pair for later consolidation.
		return cand, model.FlaggedForConsolidation
	}

	// Layer 3: token overlap, only for contents long enough to tokenize
	// meaningfully.
	if len(normalized) < in.cfg.MinTokenContentLen {
		return nil, model.Inserted
	}
	tokens := Tokenize(normalized)
	for i := range candidates {
		cand := &candidates[i]
		candNorm := model.Normalize(cand.Content)
		if len(candNorm) < in.cfg.MinTokenContentLen {
			continue
		}
		if overlap(tokens, Tokenize(candNorm)) >= in.cfg.TokenOverlapThreshold {
			return cand, model.FlaggedForConsolidation
		}
	}
	return nil, model.Inserted
}

func (in *Ingestor) pairScore(aHash, bHash, a, b string) (float64, error) {
	if in.cache != nil {
		if score, ok := in.cache.Get(aHash, bHash); ok {
			return score, nil
		}
	}
	score, err := in.editSim(a, b)
	if err != nil {
		return 0, err
	}
	if in.cache != nil {
		in.cache.Set(aHash, bHash, score)
	}
	return score, nil
}

// applyUpdate rewrites an existing memory in place with the newer content
// and scores, extending its validity window from now.
func (in *Ingestor) applyUpdate(ctx context.Context, existing, newer *model.Memory) error {
	patch := store.MemoryPatch{
		ID:         existing.ID,
		Content:    &newer.Content,
		Importance: &newer.Importance,
		Confidence: &newer.Confidence,
		Metadata:   newer.Metadata,
		BumpAccess: true,
	}
	if newer.ValidTo != nil {
		patch.ValidTo = &newer.ValidTo
	}
	if err := in.store.UpdateBatch(ctx, []store.MemoryPatch{patch}); err != nil {
		return fmt.Errorf("update existing memory %s: %w", existing.ID, err)
	}
	existing.Content = newer.Content
	existing.ContentHash = newer.ContentHash
	existing.Importance = newer.Importance
	existing.Confidence = newer.Confidence
	existing.ValidTo = newer.ValidTo
	return nil
}

func (in *Ingestor) insert(ctx context.Context, mem *model.Memory, c Candidate) error {
	if err := in.store.InsertBatch(ctx, []*model.Memory{mem}); err != nil {
		return err
	}
	in.postWrite(ctx, mem.ID, c)
	return nil
}

// postWrite records entity mentions and session activity. Failures here
// are logged but never fail the ingestion: the memory row is already
// committed.
func (in *Ingestor) postWrite(ctx context.Context, memoryID string, c Candidate) {
	if len(c.Entities) > 0 {
		entities := make([]model.Entity, len(c.Entities))
		for i, e := range c.Entities {
			entities[i] = model.Entity{
				Name:           e.Name,
				NormalizedName: model.Normalize(e.Name),
				Type:           e.Type,
				Confidence:     clamp01(e.Confidence),
			}
		}
		ids, err := in.store.UpsertEntities(ctx, entities)
		if err != nil {
			in.log.Warn("entity upsert failed", zap.String("memory_id", memoryID), zap.Error(err))
		} else {
			mentions := make([]model.EntityMention, len(ids))
			for i, id := range ids {
				mentions[i] = model.EntityMention{
					MemoryID:    memoryID,
					EntityID:    id,
					Confidence:  clamp01(c.Entities[i].Confidence),
					StartOffset: c.Entities[i].StartOffset,
					EndOffset:   c.Entities[i].EndOffset,
				}
			}
			if err := in.store.LinkMentions(ctx, mentions); err != nil {
				in.log.Warn("mention link failed", zap.String("memory_id", memoryID), zap.Error(err))
			}
		}
	}

	if c.SessionID != "" {
		sess := model.Session{ID: c.SessionID, UserID: c.UserID, AgentID: c.AgentID}
		if err := in.store.TouchSession(ctx, sess); err != nil {
			in.log.Warn("session touch failed", zap.String("session_id", c.SessionID), zap.Error(err))
		}
	}
}

// onInsertRace handles the window where another writer stored the same
// hash between our lookup and our insert. The unique constraint makes the
// race harmless: resolve it as a skipped duplicate.
func (in *Ingestor) onInsertRace(ctx context.Context, mem *model.Memory, insertErr error) (*Result, error) {
	if !errors.Is(insertErr, model.ErrDuplicateHash) {
		return nil, insertErr
	}
	existing, err := in.store.FindByHash(ctx, mem.ContentHash)
	if err != nil {
		return nil, fmt.Errorf("resolve duplicate hash %s: %w", mem.ContentHash, err)
	}
	return &Result{Memory: existing, Outcome: model.SkippedDuplicate, MatchedID: existing.ID}, nil
}

// supersessionMarkers signal that new content corrects or replaces old
// content rather than merely restating it.
var supersessionMarkers = []string{
	"no longer", "not anymore", "instead", "actually", "now prefers",
	"now uses", "changed to", "updated to", "switched to", "rather than",
	"correction", "used to",
}

// isUpdate decides whether newContent supersedes oldContent. Both inputs
// are normalized. Two signals count: an explicit supersession marker in
// the new content, or the new content strictly containing every token of
// the old one.
func isUpdate(oldContent, newContent string) bool {
	for _, marker := range supersessionMarkers {
		if strings.Contains(newContent, marker) {
			return true
		}
	}
	oldTokens := Tokenize(oldContent)
	newTokens := Tokenize(newContent)
	if len(newTokens) <= len(oldTokens) {
		return false
	}
	for tok := range oldTokens {
		if _, ok := newTokens[tok]; !ok {
			return false
		}
	}
	return true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Package model defines the core memory data types.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// MemoryType classifies a memory and determines its default retention.
type MemoryType string

const (
	TypeEpisodic   MemoryType = "episodic"
	TypeSemantic   MemoryType = "semantic"
	TypeProcedural MemoryType = "procedural"
	TypeWorking    MemoryType = "working"
	TypeSensory    MemoryType = "sensory"
	TypePreference MemoryType = "preference"
)

// AllTypes lists every valid memory type.
var AllTypes = []MemoryType{
	TypeEpisodic, TypeSemantic, TypeProcedural,
	TypeWorking, TypeSensory, TypePreference,
}

// Valid reports whether t is a known memory type.
func (t MemoryType) Valid() bool {
	switch t {
	case TypeEpisodic, TypeSemantic, TypeProcedural, TypeWorking, TypeSensory, TypePreference:
		return true
	}
	return false
}

// ParseMemoryType parses s into a MemoryType, defaulting to episodic for
// empty input.
func ParseMemoryType(s string) (MemoryType, bool) {
	if s == "" {
		return TypeEpisodic, true
	}
	t := MemoryType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// DefaultTTL returns the default time-to-live for the type.
// Zero means the memory never expires.
func (t MemoryType) DefaultTTL() time.Duration {
	switch t {
	case TypeWorking:
		return 24 * time.Hour
	case TypeEpisodic:
		return 30 * 24 * time.Hour
	case TypeSensory:
		return 6 * time.Hour
	default:
		// semantic, procedural, preference: never expire
		return 0
	}
}

// HalfLife returns the temporal-decay half-life used by recency scoring.
func (t MemoryType) HalfLife() time.Duration {
	switch t {
	case TypeSensory:
		return 3 * time.Hour
	case TypeWorking:
		return 12 * time.Hour
	case TypeEpisodic:
		return 7 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// Memory represents a single stored fact.
type Memory struct {
	ID            string            `json:"id"`
	Content       string            `json:"content"`
	ContentHash   string            `json:"content_hash"`
	Type          MemoryType        `json:"memory_type"`
	Importance    float64           `json:"importance"`
	Confidence    float64           `json:"confidence"`
	SourceType    string            `json:"source_type"`
	AgentID       string            `json:"agent_id,omitempty"`
	UserID        string            `json:"user_id,omitempty"`
	SessionID     string            `json:"session_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	ValidFrom     time.Time         `json:"valid_from"`
	ValidTo       *time.Time        `json:"valid_to,omitempty"`
	AccessedAt    *time.Time        `json:"accessed_at,omitempty"`
	AccessCount   int               `json:"access_count"`
	ContentLength int               `json:"-"`
}

// Expired reports whether the memory is past its validity window at now.
func (m *Memory) Expired(now time.Time) bool {
	return m.ValidTo != nil && !m.ValidTo.After(now)
}

// Outcome tags the result of an ingestion attempt.
type Outcome string

const (
	Inserted                Outcome = "inserted"
	UpdatedExisting         Outcome = "updated_existing"
	SkippedDuplicate        Outcome = "skipped_duplicate"
	FlaggedForConsolidation Outcome = "flagged_for_consolidation"
)

// Entity is a named thing extracted from memory content. Entities are
// shared across memories and merged by normalized name.
type Entity struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	NormalizedName string    `json:"normalized_name"`
	Type           string    `json:"entity_type"`
	MentionCount   int       `json:"mention_count"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
	Confidence     float64   `json:"confidence"`
}

// EntityMention links a memory to an entity with per-mention provenance.
type EntityMention struct {
	MemoryID    string  `json:"memory_id"`
	EntityID    string  `json:"entity_id"`
	Confidence  float64 `json:"confidence"`
	StartOffset int     `json:"start_offset"`
	EndOffset   int     `json:"end_offset"`
}

// Session groups memories by a conversational or work session.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id,omitempty"`
	AgentID      string    `json:"agent_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	MemoryCount  int       `json:"memory_count"`
}

// ArchivedMemory is a pruned memory kept for audit instead of hard delete.
type ArchivedMemory struct {
	Memory
	ArchivedAt     time.Time `json:"archived_at"`
	ArchivedReason string    `json:"archived_reason"`
	PruneScore     float64   `json:"prune_score"`
}

// Relation kinds for memory-to-memory links.
const (
	RelRelatesTo        = "relates_to"
	RelConsolidatedInto = "consolidated_into"
)

// Link is a typed edge between two memories.
type Link struct {
	FromID    string    `json:"from_id"`
	ToID      string    `json:"to_id"`
	Rel       string    `json:"rel"`
	CreatedAt time.Time `json:"created_at"`
}

// Normalize lowercases content and collapses all whitespace runs to single
// spaces. Two contents that differ only by case or whitespace normalize to
// the same string.
func Normalize(content string) string {
	return strings.Join(strings.Fields(strings.ToLower(content)), " ")
}

// HashContent returns the hex-encoded SHA-256 digest of the normalized
// content. It is the dedup primary key: a pure function of Normalize(content).
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(Normalize(content)))
	return hex.EncodeToString(sum[:])
}

// Package prune removes low-value memories under one of several
// strategies, with protection rules that veto scoring entirely.
package prune

import (
	"fmt"
	"sort"
	"time"

	"github.com/mnemos-dev/mnemos/internal/model"
)

// Strategy decides, per memory, whether it should be pruned. The score
// is recorded in the archive for audit; reason explains the decision.
type Strategy interface {
	Name() string
	Evaluate(m *model.Memory, now time.Time) (prune bool, score float64, reason string)
}

// Safe prunes only memories whose validity window has passed. It can
// never remove a memory that is still live.
type Safe struct{}

func (Safe) Name() string { return "safe" }

func (Safe) Evaluate(m *model.Memory, now time.Time) (bool, float64, string) {
	if m.Expired(now) {
		return true, 1.0, "expired"
	}
	return false, 0, ""
}

// Intelligent prunes expired memories plus stale low-value ones: low
// importance, old, and not recently accessed.
type Intelligent struct {
	MaxImportance float64       // prune below this (default 0.3)
	MinAge        time.Duration // never prune younger than this (default 30d)
	StaleAfter    time.Duration // last access older than this (default 60d)
}

func (Intelligent) Name() string { return "intelligent" }

func (st Intelligent) Evaluate(m *model.Memory, now time.Time) (bool, float64, string) {
	if m.Expired(now) {
		return true, 1.0, "expired"
	}
	maxImp := st.MaxImportance
	if maxImp == 0 {
		maxImp = 0.3
	}
	minAge := st.MinAge
	if minAge == 0 {
		minAge = 30 * 24 * time.Hour
	}
	stale := st.StaleAfter
	if stale == 0 {
		stale = 60 * 24 * time.Hour
	}

	if m.Importance >= maxImp {
		return false, 0, ""
	}
	if now.Sub(m.CreatedAt) < minAge {
		return false, 0, ""
	}
	lastTouch := m.CreatedAt
	if m.AccessedAt != nil {
		lastTouch = *m.AccessedAt
	}
	if now.Sub(lastTouch) < stale {
		return false, 0, ""
	}
	return true, 0.8, "stale low-importance"
}

// Aggressive prunes anything expired, unimportant, or untouched for a
// month. Meant for reclaiming space quickly, not for routine upkeep.
type Aggressive struct{}

func (Aggressive) Name() string { return "aggressive" }

func (Aggressive) Evaluate(m *model.Memory, now time.Time) (bool, float64, string) {
	if m.Expired(now) {
		return true, 1.0, "expired"
	}
	if m.Importance < 0.5 {
		return true, 0.7, "low importance"
	}
	lastTouch := m.CreatedAt
	if m.AccessedAt != nil {
		lastTouch = *m.AccessedAt
	}
	if now.Sub(lastTouch) > 30*24*time.Hour {
		return true, 0.6, "not accessed in 30d"
	}
	return false, 0, ""
}

// Percentage prunes the oldest fraction of the corpus. The cutoff is
// precomputed from a snapshot so evaluation stays per-memory.
type Percentage struct {
	fraction float64
	cutoff   time.Time
}

// NewPercentage builds a strategy that prunes the oldest fraction (0,1]
// of the given snapshot.
func NewPercentage(fraction float64, snapshot []model.Memory) *Percentage {
	p := &Percentage{fraction: fraction}
	if fraction <= 0 || len(snapshot) == 0 {
		return p
	}
	if fraction > 1 {
		p.fraction = 1
	}

	times := make([]time.Time, len(snapshot))
	for i, m := range snapshot {
		times[i] = m.CreatedAt
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	n := int(float64(len(times)) * p.fraction)
	if n == 0 {
		return p
	}
	if n >= len(times) {
		n = len(times)
	}
	p.cutoff = times[n-1]
	return p
}

func (p *Percentage) Name() string { return fmt.Sprintf("percentage_%.0f", p.fraction*100) }

func (p *Percentage) Evaluate(m *model.Memory, now time.Time) (bool, float64, string) {
	if p.cutoff.IsZero() {
		return false, 0, ""
	}
	if !m.CreatedAt.After(p.cutoff) {
		return true, 0.5, "oldest percentile"
	}
	return false, 0, ""
}

// Smart scores each memory on age, size, access frequency and importance
// and prunes above a threshold. Weights sum to 1.
type Smart struct {
	AgeWeight        float64
	SizeWeight       float64
	AccessWeight     float64
	ImportanceWeight float64
	Threshold        float64
	MaxAge           time.Duration // age at which the age factor saturates
	MaxSize          int           // content length at which the size factor saturates
}

// NewSmart returns a Smart strategy with the default weights.
func NewSmart() *Smart {
	return &Smart{
		AgeWeight:        0.35,
		SizeWeight:       0.20,
		AccessWeight:     0.30,
		ImportanceWeight: 0.15,
		Threshold:        0.70,
		MaxAge:           90 * 24 * time.Hour,
		MaxSize:          10 * 1024,
	}
}

func (*Smart) Name() string { return "smart" }

func (st *Smart) Evaluate(m *model.Memory, now time.Time) (bool, float64, string) {
	if m.Expired(now) {
		return true, 1.0, "expired"
	}

	ageScore := float64(now.Sub(m.CreatedAt)) / float64(st.MaxAge)
	if ageScore > 1 {
		ageScore = 1
	}
	sizeScore := float64(m.ContentLength) / float64(st.MaxSize)
	if sizeScore > 1 {
		sizeScore = 1
	}
	// Inverse access: frequently-recalled memories score low.
	accessScore := 1.0 / float64(1+m.AccessCount)
	importanceScore := 1.0 - m.Importance

	score := ageScore*st.AgeWeight +
		sizeScore*st.SizeWeight +
		accessScore*st.AccessWeight +
		importanceScore*st.ImportanceWeight

	if score >= st.Threshold {
		return true, score, fmt.Sprintf("smart score %.2f", score)
	}
	return false, score, ""
}

// Protector vetoes pruning before any strategy sees the memory. A vetoed
// memory is never pruned, whatever the strategy says.
type Protector struct {
	MinImportance    float64       // protect at or above (default 0.8)
	MinAccessCount   int           // protect at or above (default 10)
	RecentWindow     time.Duration // protect if created or accessed within (default 30d)
	ProtectedSources map[string]bool
}

// DefaultProtector returns the standard protection rules.
func DefaultProtector() *Protector {
	return &Protector{
		MinImportance:  0.8,
		MinAccessCount: 10,
		RecentWindow:   30 * 24 * time.Hour,
		ProtectedSources: map[string]bool{
			"user_directive": true,
		},
	}
}

// Protected reports whether the memory is exempt from pruning, with the
// rule that fired.
func (p *Protector) Protected(m *model.Memory, now time.Time) (bool, string) {
	if p == nil {
		return false, ""
	}
	if p.MinImportance > 0 && m.Importance >= p.MinImportance {
		return true, "high importance"
	}
	if p.MinAccessCount > 0 && m.AccessCount >= p.MinAccessCount {
		return true, "frequently accessed"
	}
	if p.RecentWindow > 0 {
		// Creation recency is a grace period for live memories. It does
		// not shield expired ones, or short-lived working memories could
		// never be collected.
		if !m.Expired(now) && now.Sub(m.CreatedAt) < p.RecentWindow {
			return true, "recently created"
		}
		if m.AccessedAt != nil && now.Sub(*m.AccessedAt) < p.RecentWindow {
			return true, "recently accessed"
		}
	}
	if p.ProtectedSources[m.SourceType] {
		return true, "protected source"
	}
	return false, ""
}

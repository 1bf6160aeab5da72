package prune

import (
	"testing"
	"time"

	"github.com/mnemos-dev/mnemos/internal/model"
)

func mem(importance float64, age time.Duration, accessCount int) *model.Memory {
	now := time.Now().UTC()
	return &model.Memory{
		ID:          "m",
		Content:     "some content",
		Type:        model.TypeEpisodic,
		Importance:  importance,
		CreatedAt:   now.Add(-age),
		ValidFrom:   now.Add(-age),
		AccessCount: accessCount,
	}
}

func TestSafeOnlyPrunesExpired(t *testing.T) {
	now := time.Now().UTC()
	s := Safe{}

	live := mem(0.1, 365*24*time.Hour, 0) // old and unimportant, but live
	if prune, _, _ := s.Evaluate(live, now); prune {
		t.Error("safe pruned a live memory")
	}

	past := now.Add(-time.Minute)
	expired := mem(0.9, time.Hour, 100)
	expired.ValidTo = &past
	prune, score, reason := s.Evaluate(expired, now)
	if !prune || score != 1.0 || reason != "expired" {
		t.Errorf("expired: prune=%v score=%v reason=%q", prune, score, reason)
	}
}

func TestIntelligent(t *testing.T) {
	now := time.Now().UTC()
	st := Intelligent{}

	// Low importance but too young.
	if prune, _, _ := st.Evaluate(mem(0.1, 24*time.Hour, 0), now); prune {
		t.Error("pruned a young memory")
	}
	// Old and low importance but recently accessed.
	recent := mem(0.1, 90*24*time.Hour, 5)
	touch := now.Add(-time.Hour)
	recent.AccessedAt = &touch
	if prune, _, _ := st.Evaluate(recent, now); prune {
		t.Error("pruned a recently-accessed memory")
	}
	// Old, unimportant, untouched.
	if prune, _, _ := st.Evaluate(mem(0.1, 90*24*time.Hour, 0), now); !prune {
		t.Error("kept a stale low-importance memory")
	}
	// Important memories survive regardless of age.
	if prune, _, _ := st.Evaluate(mem(0.9, 365*24*time.Hour, 0), now); prune {
		t.Error("pruned an important memory")
	}
}

func TestAggressive(t *testing.T) {
	now := time.Now().UTC()
	st := Aggressive{}

	if prune, _, reason := st.Evaluate(mem(0.2, time.Hour, 0), now); !prune || reason != "low importance" {
		t.Errorf("low importance: prune=%v reason=%q", prune, reason)
	}
	if prune, _, _ := st.Evaluate(mem(0.9, 60*24*time.Hour, 0), now); !prune {
		t.Error("kept a month-old untouched memory")
	}
	if prune, _, _ := st.Evaluate(mem(0.9, time.Hour, 0), now); prune {
		t.Error("pruned a fresh important memory")
	}
}

func TestPercentage(t *testing.T) {
	now := time.Now().UTC()
	snapshot := make([]model.Memory, 10)
	for i := range snapshot {
		snapshot[i] = model.Memory{
			ID:        string(rune('a' + i)),
			CreatedAt: now.Add(-time.Duration(10-i) * time.Hour),
		}
	}

	st := NewPercentage(0.3, snapshot)
	pruned := 0
	for i := range snapshot {
		if prune, _, _ := st.Evaluate(&snapshot[i], now); prune {
			pruned++
		}
	}
	if pruned != 3 {
		t.Errorf("pruned %d, want 3 (oldest 30%%)", pruned)
	}

	// The oldest must be among the pruned, the newest never.
	if prune, _, _ := st.Evaluate(&snapshot[0], now); !prune {
		t.Error("oldest memory not pruned")
	}
	if prune, _, _ := st.Evaluate(&snapshot[9], now); prune {
		t.Error("newest memory pruned")
	}

	empty := NewPercentage(0.5, nil)
	if prune, _, _ := empty.Evaluate(&snapshot[0], now); prune {
		t.Error("empty snapshot pruned something")
	}
}

func TestSmart(t *testing.T) {
	now := time.Now().UTC()
	st := NewSmart()

	// Ancient, large, never accessed, unimportant: prunes.
	old := mem(0.0, 200*24*time.Hour, 0)
	old.ContentLength = 20 * 1024
	prune, score, _ := st.Evaluate(old, now)
	if !prune {
		t.Errorf("kept worthless memory, score %v", score)
	}
	if score < st.Threshold {
		t.Errorf("score %v below threshold", score)
	}

	// Fresh, small, frequently accessed, important: survives.
	hot := mem(0.9, time.Hour, 50)
	hot.ContentLength = 100
	if prune, score, _ := st.Evaluate(hot, now); prune {
		t.Errorf("pruned valuable memory, score %v", score)
	}

	// Expired always prunes whatever the factors say.
	past := now.Add(-time.Minute)
	hot.ValidTo = &past
	if prune, _, _ := st.Evaluate(hot, now); !prune {
		t.Error("kept expired memory")
	}
}

func TestProtector(t *testing.T) {
	now := time.Now().UTC()
	p := DefaultProtector()

	if ok, rule := p.Protected(mem(0.9, time.Hour, 0), now); !ok || rule != "high importance" {
		t.Errorf("importance: ok=%v rule=%q", ok, rule)
	}
	if ok, _ := p.Protected(mem(0.1, time.Hour, 50), now); !ok {
		t.Error("frequent access not protected")
	}

	m := mem(0.1, 90*24*time.Hour, 1)
	touch := now.Add(-24 * time.Hour)
	m.AccessedAt = &touch
	if ok, rule := p.Protected(m, now); !ok || rule != "recently accessed" {
		t.Errorf("recency: ok=%v rule=%q", ok, rule)
	}

	// A memory created days ago is protected even if never accessed.
	young := mem(0.4, 5*24*time.Hour, 0)
	if ok, rule := p.Protected(young, now); !ok || rule != "recently created" {
		t.Errorf("creation recency: ok=%v rule=%q", ok, rule)
	}

	// Expiry outranks the creation grace period.
	past := now.Add(-time.Minute)
	expired := mem(0.4, 5*24*time.Hour, 0)
	expired.ValidTo = &past
	if ok, _ := p.Protected(expired, now); ok {
		t.Error("expired memory shielded by creation recency")
	}

	src := mem(0.1, 90*24*time.Hour, 0)
	src.SourceType = "user_directive"
	if ok, _ := p.Protected(src, now); !ok {
		t.Error("protected source not protected")
	}

	if ok, _ := p.Protected(mem(0.1, 90*24*time.Hour, 0), now); ok {
		t.Error("unprotected memory reported protected")
	}

	// Nil protector protects nothing.
	var nilP *Protector
	if ok, _ := nilP.Protected(mem(0.9, time.Hour, 100), now); ok {
		t.Error("nil protector protected something")
	}
}

// Package dedup implements content-addressed deduplication and ingestion.
//
// Incoming candidates pass through three similarity layers: exact hash
// match, edit-distance near-duplicate match, and token-overlap match. Each
// layer only sees candidates that survived the previous one, keeping cost
// bounded. Similarity failures never block storage: the candidate falls
// back to a plain insert.
package dedup

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/agext/levenshtein"
	"github.com/dgraph-io/ristretto"

	"github.com/mnemos-dev/mnemos/internal/model"
)

var errEmptyInput = errors.New("empty input")

// SimCache memoizes pairwise similarity scores keyed by content hashes.
// It is constructed once at process startup and injected into the
// Ingestor; capacity and TTL bound both memory and staleness.
type SimCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewSimCache builds a bounded similarity cache holding at most maxEntries
// scores, each expiring after ttl.
func NewSimCache(maxEntries int64, ttl time.Duration) (*SimCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	return &SimCache{cache: c, ttl: ttl}, nil
}

func (c *SimCache) key(aHash, bHash string) string {
	if aHash > bHash {
		aHash, bHash = bHash, aHash
	}
	return aHash + "|" + bHash
}

// Get returns a memoized score for the hash pair.
func (c *SimCache) Get(aHash, bHash string) (float64, bool) {
	v, ok := c.cache.Get(c.key(aHash, bHash))
	if !ok {
		return 0, false
	}
	score, ok := v.(float64)
	return score, ok
}

// Set memoizes a score for the hash pair.
func (c *SimCache) Set(aHash, bHash string, score float64) {
	c.cache.SetWithTTL(c.key(aHash, bHash), score, 1, c.ttl)
}

// HitRatio reports the cache hit ratio since startup.
func (c *SimCache) HitRatio() float64 {
	return c.cache.Metrics.Ratio()
}

// Close releases cache resources.
func (c *SimCache) Close() {
	c.cache.Close()
}

// EditSimilarity returns the normalized edit-distance ratio in [0,1]
// between two already-normalized strings.
func EditSimilarity(a, b string) (float64, error) {
	if a == "" || b == "" {
		return 0, &model.SimilarityError{Stage: "edit-distance", Err: errEmptyInput}
	}
	return levenshtein.Similarity(a, b, nil), nil
}

// TokenOverlap returns the overlap coefficient in [0,1] between the token
// sets of two normalized strings: shared tokens over the smaller set.
// Unlike plain Jaccard it stays high when one content extends the other,
// which is exactly the update-with-added-specificity shape.
func TokenOverlap(a, b string) float64 {
	return overlap(Tokenize(a), Tokenize(b))
}

func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range b {
		if _, ok := a[tok]; ok {
			inter++
		}
	}
	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(inter) / float64(smaller)
}

// Tokenize splits normalized text into a set of lowercase word tokens,
// dropping punctuation and single-character fragments.
func Tokenize(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(s)) {
		f = strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if len(f) < 2 {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}

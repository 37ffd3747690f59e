// Package dedup rejects duplicate chunks within one document: exact repeats
// by normalized hash, near repeats by shingle-set Jaccard similarity.
package dedup

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// Reason classifies the outcome of an Accept call.
type Reason int

const (
	// Unique means the chunk was accepted.
	Unique Reason = iota
	// ExactDuplicate means an identical (after normalization) chunk was
	// already accepted.
	ExactDuplicate
	// NearDuplicate means a previously accepted chunk was similar at or
	// above the configured threshold.
	NearDuplicate
)

// Config tunes the filter.
type Config struct {
	// ShingleSize is the fixed shingle width in bytes. Values < 2 become
	// the default of 8.
	ShingleSize int
	// NearThreshold is the Jaccard similarity at or above which a chunk
	// is rejected. Values outside (0, 1] become the default of 0.92.
	NearThreshold float64
}

// Filter holds the seen-hashes and accepted fingerprints for one document.
// Not safe for concurrent use; the engine owns one per document.
type Filter struct {
	cfg          Config
	seen         map[string]struct{}
	fingerprints []map[string]struct{}
}

// New builds a Filter with defaults applied.
func New(cfg Config) *Filter {
	if cfg.ShingleSize < 2 {
		cfg.ShingleSize = 8
	}
	if cfg.NearThreshold <= 0 || cfg.NearThreshold > 1 {
		cfg.NearThreshold = 0.92
	}
	return &Filter{cfg: cfg, seen: make(map[string]struct{})}
}

// Accept decides whether chunk text passes, in document order. Accepted
// chunks contribute their fingerprint to later comparisons.
func (f *Filter) Accept(text string) (bool, Reason) {
	norm := normalizeText(text)
	h := hashText(norm)
	if _, dup := f.seen[h]; dup {
		return false, ExactDuplicate
	}

	fp := shingles(norm, f.cfg.ShingleSize)
	for _, prev := range f.fingerprints {
		if jaccard(fp, prev) >= f.cfg.NearThreshold {
			return false, NearDuplicate
		}
	}

	f.seen[h] = struct{}{}
	f.fingerprints = append(f.fingerprints, fp)
	return true, Unique
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func hashText(norm string) string {
	sum := sha1.Sum([]byte(norm))
	return hex.EncodeToString(sum[:])
}

func shingles(norm string, k int) map[string]struct{} {
	out := make(map[string]struct{})
	for i := 0; i+k <= len(norm); i++ {
		out[norm[i:i+k]] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for s := range small {
		if _, ok := large[s]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

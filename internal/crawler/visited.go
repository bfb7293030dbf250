package crawler

import (
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	// sized for large mirrors; the exact map settles bloom false positives
	visitedEstimate = 100_000
	visitedFPRate   = 0.01
)

// VisitedSet records directory URLs already queued for listing in one crawl
type VisitedSet struct {
	mu sync.Mutex

	// Bloom filter for the common "never seen" answer
	seen  *bloom.BloomFilter
	exact map[string]struct{}
}

// NewVisitedSet creates an empty set
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{
		seen:  bloom.NewWithEstimates(visitedEstimate, visitedFPRate),
		exact: make(map[string]struct{}),
	}
}

// Add marks rawURL visited and reports whether it was new
func (v *VisitedSet) Add(rawURL string) bool {
	key := visitedKey(rawURL)
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.seen.TestString(key) {
		if _, ok := v.exact[key]; ok {
			return false
		}
	}
	v.seen.AddString(key)
	v.exact[key] = struct{}{}
	return true
}

// Contains reports whether rawURL has been added
func (v *VisitedSet) Contains(rawURL string) bool {
	key := visitedKey(rawURL)
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.seen.TestString(key) {
		return false
	}
	_, ok := v.exact[key]
	return ok
}

// Len returns the number of distinct URLs
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.exact)
}

func visitedKey(rawURL string) string {
	return strings.TrimRight(rawURL, "/") + "/"
}

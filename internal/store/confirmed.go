package store

import (
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultConfirmedCapacity = 100000
	defaultFalsePositiveRate = 0.01
)

// ConfirmedAnswer is the result of a cache probe.
type ConfirmedAnswer int

const (
	// ConfirmedNo means the ISRC is definitely not confirmed; the Bloom
	// filter has never seen it.
	ConfirmedNo ConfirmedAnswer = iota
	// ConfirmedYes means the ISRC is held in the positive cache.
	ConfirmedYes
	// ConfirmedMaybe means the Bloom filter matched but the positive cache
	// has since evicted the entry; the caller must ask the database.
	ConfirmedMaybe
)

// ConfirmedCache is a thread-safe, memory-bounded index of user-confirmed
// ISRCs sitting in front of the database. The Bloom filter gives cheap
// definite negatives so the common "never confirmed" path skips the database
// entirely; the LRU holds recent definite positives. The filter accepts
// false positives, never false negatives, so ConfirmedNo is always safe to
// trust.
type ConfirmedCache struct {
	mu                sync.RWMutex
	bloom             *bloom.BloomFilter
	recent            *lru.Cache[string, struct{}]
	capacity          uint
	falsePositiveRate float64
}

// NewConfirmedCache sizes the cache for the expected number of confirmed
// tracks.
func NewConfirmedCache(capacity uint, falsePositiveRate float64) *ConfirmedCache {
	recent, _ := lru.New[string, struct{}](int(capacity))
	return &ConfirmedCache{
		bloom:             bloom.NewWithEstimates(capacity, falsePositiveRate),
		recent:            recent,
		capacity:          capacity,
		falsePositiveRate: falsePositiveRate,
	}
}

// Check probes the cache for an ISRC. ISRCs are compared case-insensitively.
func (c *ConfirmedCache) Check(isrc string) ConfirmedAnswer {
	key := strings.ToUpper(isrc)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.bloom.TestString(key) {
		return ConfirmedNo
	}
	if _, ok := c.recent.Get(key); ok {
		return ConfirmedYes
	}
	return ConfirmedMaybe
}

// Add records an ISRC as confirmed.
func (c *ConfirmedCache) Add(isrc string) {
	key := strings.ToUpper(isrc)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.bloom.AddString(key)
	c.recent.Add(key, struct{}{})
}

// Load resets the cache and seeds it with the given ISRCs, typically the
// confirmed set read from the database at startup.
func (c *ConfirmedCache) Load(isrcs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bloom = bloom.NewWithEstimates(c.capacity, c.falsePositiveRate)
	c.recent.Purge()

	for _, isrc := range isrcs {
		if isrc == "" {
			continue
		}
		key := strings.ToUpper(isrc)
		c.bloom.AddString(key)
		c.recent.Add(key, struct{}{})
	}
}

// Size returns the number of ISRCs in the positive cache.
func (c *ConfirmedCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recent.Len()
}

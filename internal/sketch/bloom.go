package sketch

import (
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"

	"github.com/xtxerr/hivewatch/internal/errors"
	"github.com/xtxerr/hivewatch/internal/event"
	"github.com/xtxerr/hivewatch/internal/validation"
)

// BloomFilter is a fixed-size approximate membership filter.
// It never reports a false negative for an added item.
type BloomFilter struct {
	bits *bitset.BitSet
	m    uint64
	k    int
}

// NewBloomFilter sizes a filter for n expected items at false positive rate p.
func NewBloomFilter(n int, p float64) (*BloomFilter, error) {
	if n <= 0 {
		return nil, errors.NewInvalidValue("expected elements", n, "must be positive")
	}
	if !(p > 0 && p < 1) {
		return nil, errors.NewInvalidValue("false positive rate", p, "must be in (0, 1)")
	}

	m := uint64(math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)))
	if m == 0 {
		m = 1
	}
	k := int(math.Round(float64(m) / float64(n) * math.Ln2))
	if k < 1 {
		k = 1
	}

	return &BloomFilter{
		bits: bitset.New(uint(m)),
		m:    m,
		k:    k,
	}, nil
}

// BloomKey builds the canonical membership key, e.g. "spider_queen_birth".
func BloomKey(species, role string, kind event.Kind) string {
	return validation.JoinKey(species, role, string(kind))
}

// Add inserts an item.
func (b *BloomFilter) Add(item string) {
	for i := 0; i < b.k; i++ {
		b.bits.Set(b.position(item, i))
	}
}

// Contains reports whether item may have been added.
func (b *BloomFilter) Contains(item string) bool {
	for i := 0; i < b.k; i++ {
		if !b.bits.Test(b.position(item, i)) {
			return false
		}
	}
	return true
}

func (b *BloomFilter) position(item string, i int) uint {
	return uint(hashSeed(item, uint64(i)) % b.m)
}

// Size returns the number of bits m.
func (b *BloomFilter) Size() uint64 {
	return b.m
}

// HashCount returns the number of hash functions k.
func (b *BloomFilter) HashCount() int {
	return b.k
}

// EstimatedFalsePositiveRate returns (1 - e^(-k*n/m))^k for n inserted items.
func (b *BloomFilter) EstimatedFalsePositiveRate(inserted int) float64 {
	if inserted <= 0 {
		return 0
	}
	k := float64(b.k)
	return math.Pow(1-math.Exp(-k*float64(inserted)/float64(b.m)), k)
}

// String summarizes the filter geometry.
func (b *BloomFilter) String() string {
	return fmt.Sprintf("BloomFilter(m=%d, k=%d)", b.m, b.k)
}

package sketch

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"

	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/xtxerr/hivewatch/internal/errors"
	"github.com/xtxerr/hivewatch/internal/validation"
)

// DefaultMinWiseHashes is the slot count used when none is configured.
const DefaultMinWiseHashes = 128

// Record is what a MinWiseSketch tracks: the identity of an insect without
// its event details.
type Record struct {
	Species string `json:"species"`
	Role    string `json:"role"`
	Age     int    `json:"age"`
}

// Key is the canonical key species_role_age that is hashed into the slots.
func (r Record) Key() string {
	return validation.JoinKey(r.Species, r.Role, strconv.Itoa(r.Age))
}

// MinWiseSketch keeps k per-seed hash minima and the record behind each one.
type MinWiseSketch struct {
	mins    []uint64
	records []Record
	added   int
}

// NewMinWiseSketch creates a sketch with k hash functions seeded 0..k-1.
func NewMinWiseSketch(k int) (*MinWiseSketch, error) {
	if k <= 0 {
		return nil, errors.NewInvalidValue("hash count", k, "must be positive")
	}
	mins := make([]uint64, k)
	for i := range mins {
		mins[i] = math.MaxUint64
	}
	return &MinWiseSketch{
		mins:    mins,
		records: make([]Record, k),
	}, nil
}

// Add hashes the record key under every seed and keeps strictly lower minima.
func (s *MinWiseSketch) Add(r Record) {
	key := r.Key()
	for i := range s.mins {
		if h := hashSeed(key, uint64(i)); h < s.mins[i] {
			s.mins[i] = h
			s.records[i] = r
		}
	}
	s.added++
}

// HashCount returns k.
func (s *MinWiseSketch) HashCount() int {
	return len(s.mins)
}

// Empty reports whether nothing has been added.
func (s *MinWiseSketch) Empty() bool {
	return s.added == 0
}

// EstimateJaccardSimilarity returns the fraction of slots whose minima match.
// Both sketches must use the same k; two empty sketches have no defined
// similarity and yield ErrNoData.
func (s *MinWiseSketch) EstimateJaccardSimilarity(other *MinWiseSketch) (float64, error) {
	if len(s.mins) != len(other.mins) {
		return 0, errors.NewInvalidValue("hash count", len(other.mins),
			fmt.Sprintf("sketch uses %d", len(s.mins)))
	}
	if s.Empty() && other.Empty() {
		return 0, fmt.Errorf("similarity of two empty sketches: %w", errors.ErrNoData)
	}

	matches := 0
	for i, m := range s.mins {
		if m == other.mins[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(s.mins)), nil
}

// tracked returns the distinct records held by some slot, in slot order.
func (s *MinWiseSketch) tracked() []Record {
	if s.Empty() {
		return nil
	}
	seen := make(map[string]struct{}, len(s.records))
	out := make([]Record, 0)
	for i, r := range s.records {
		if s.mins[i] == math.MaxUint64 {
			continue
		}
		key := r.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// RepresentativeSample draws min(n, distinct tracked records) records
// uniformly without replacement. A nil src uses the global source.
func (s *MinWiseSketch) RepresentativeSample(n int, src rand.Source) ([]Record, error) {
	if n <= 0 {
		return nil, errors.NewInvalidValue("sample size", n, "must be positive")
	}

	pool := s.tracked()
	if len(pool) == 0 {
		return []Record{}, nil
	}
	if n > len(pool) {
		n = len(pool)
	}

	idx := make([]int, n)
	sampleuv.WithoutReplacement(idx, len(pool), src)

	out := make([]Record, n)
	for i, j := range idx {
		out[i] = pool[j]
	}
	return out, nil
}

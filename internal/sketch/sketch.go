// Package sketch provides the synopsis structures that answer approximate
// queries over window snapshots:
//
//   - BloomFilter: membership of (species, role, kind) keys
//   - HyperLogLog: distinct counts
//   - SlidingWindowCounter: DGIM count of a predicate over a trailing window
//   - MinWiseSketch: Jaccard similarity and representative sampling
//
// Every structure is single-owner and unsynchronized. The query path builds
// one from a snapshot, asks it one question and drops it.
//
// Hashing uses xxh3. Seeded structures use the hash index as the seed
// (0..k-1), so results are reproducible across runs.
package sketch

import (
	"github.com/zeebo/xxh3"
)

// hashSeed is the seeded hash family shared by Bloom and MinWise.
func hashSeed(item string, seed uint64) uint64 {
	return xxh3.HashStringSeed(item, seed)
}

// hash is the unseeded digest used by HyperLogLog.
func hash(item string) uint64 {
	return xxh3.HashString(item)
}

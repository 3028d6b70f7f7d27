package query

import (
	"math/rand/v2"
	"sync"
)

// lockedSource serializes a rand.Source shared by concurrent queries.
type lockedSource struct {
	mu  sync.Mutex
	src rand.Source
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Uint64()
}

package store

import (
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/xtxerr/hivewatch/internal/event"
)

// QueryBySpecies returns up to limit events of a species in ingestion order.
// A limit of zero or less returns all of them.
func (s *Store) QueryBySpecies(species string, limit int) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.collectLocked(s.bySpecies.get(species), limit, nil)
}

// QueryByHabitatAndEvent returns up to limit events seen in habitat with the
// given kind, in ingestion order. A limit of zero or less returns all of them.
func (s *Store) QueryByHabitatAndEvent(habitat string, kind event.Kind, limit int) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, k := s.byHabitat.get(habitat), s.byKind.get(string(kind))
	if h == nil || k == nil {
		return []event.Event{}
	}
	return s.collectLocked(roaring.And(h, k), limit, nil)
}

// RecentEvents returns the events whose event time lies within d of now,
// in ingestion order.
func (s *Store) RecentEvents(d time.Duration) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	return s.collectLocked(s.all, 0, func(e event.Event) bool {
		return e.AgeAt(now) <= d
	})
}

// collectLocked copies the events behind bm, ascending by ordinal.
func (s *Store) collectLocked(bm *roaring.Bitmap, limit int, keep func(event.Event) bool) []event.Event {
	out := []event.Event{}
	if bm == nil {
		return out
	}

	it := bm.Iterator()
	for it.HasNext() {
		ent := s.byOrdinal[it.Next()]
		if keep != nil && !keep(ent.ev) {
			continue
		}
		out = append(out, ent.ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Package store provides the windowed event store for hivewatch.
//
// The store owns every ingested event, four secondary indices (species, role,
// habitat, kind) and a set of named trailing windows. It is the only shared
// mutable state in the process: ingestion, maintenance, queries and the admin
// endpoints all go through one Store instance created in main.
//
// All state is guarded by a single mutex. Exported methods take the lock once
// and call unexported helpers that assume it is held, so one event appears in
// the primary map, all indices and all covering windows atomically.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/xtxerr/hivewatch/config"
	"github.com/xtxerr/hivewatch/internal/errors"
	"github.com/xtxerr/hivewatch/internal/event"
	"github.com/xtxerr/hivewatch/internal/logging"
)

var log = logging.Component("store")

// =============================================================================
// Store Configuration
// =============================================================================

// Config holds store configuration options.
type Config struct {
	// Windows lists the named trailing windows.
	Windows []WindowConfig

	// Now returns the ingestion clock. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with the built-in windows.
func DefaultConfig() Config {
	defaults := config.DefaultWindows()
	windows := make([]WindowConfig, 0, len(defaults))
	for _, w := range defaults {
		windows = append(windows, WindowConfig{
			Name:       w.Name,
			Duration:   w.Duration,
			Sequences:  w.Sequences,
			Aggregates: w.Aggregates,
		})
	}
	return Config{Windows: windows}
}

// Validate checks window definitions.
func (c Config) Validate() error {
	v := errors.NewValidationErrors()
	if len(c.Windows) == 0 {
		v.AddMissing("store.windows")
	}
	seen := make(map[string]bool, len(c.Windows))
	for i, w := range c.Windows {
		field := fmt.Sprintf("store.windows[%d]", i)
		if w.Name == "" {
			v.AddMissing(field + ".name")
		}
		if seen[w.Name] {
			v.AddField(field+".name", fmt.Sprintf("duplicate window %q", w.Name))
		}
		seen[w.Name] = true
		if w.Duration <= 0 {
			v.AddField(field+".duration", "must be positive")
		}
		if !w.Sequences && !w.Aggregates {
			v.AddField(field, "must keep sequences, aggregates or both")
		}
	}
	return v.Err()
}

// =============================================================================
// Store
// =============================================================================

// entry is an ingested event and its ordinal in the indices.
type entry struct {
	ev  event.Event
	ord uint32
}

// Store is the windowed event store.
//
// Store is safe for concurrent use.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	events    map[string]*entry
	byOrdinal map[uint32]*entry
	all       *roaring.Bitmap
	nextOrd   uint32

	bySpecies *index
	byRole    *index
	byHabitat *index
	byKind    *index

	windows     map[string]*window
	windowOrder []string
}

// New creates a Store with the given configuration.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Store{
		now:       now,
		events:    make(map[string]*entry),
		byOrdinal: make(map[uint32]*entry),
		all:       roaring.New(),
		bySpecies: newIndex("species"),
		byRole:    newIndex("role"),
		byHabitat: newIndex("habitat"),
		byKind:    newIndex("kind"),
		windows:   make(map[string]*window, len(cfg.Windows)),
	}
	for _, wc := range cfg.Windows {
		s.windows[wc.Name] = newWindow(wc)
		s.windowOrder = append(s.windowOrder, wc.Name)
	}
	return s, nil
}

// =============================================================================
// Ingestion
// =============================================================================

// Ingest inserts or overwrites an event by id.
//
// An overwrite moves every index entry to the new version. Window
// contributions of the previous version stay where they are.
func (s *Store) Ingest(e event.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.events[e.ID]; ok {
		s.unindexLocked(old)
	}

	ent := &entry{ev: e, ord: s.nextOrd}
	s.nextOrd++
	s.events[e.ID] = ent
	s.byOrdinal[ent.ord] = ent
	s.all.Add(ent.ord)
	s.bySpecies.add(e.Species, ent.ord)
	s.byRole.add(e.Role, ent.ord)
	s.byHabitat.add(e.Habitat, ent.ord)
	s.byKind.add(string(e.Kind), ent.ord)

	age := e.AgeAt(s.now())
	for _, name := range s.windowOrder {
		if w := s.windows[name]; w.covers(age) {
			w.record(e)
		}
	}
	return nil
}

// unindexLocked removes an entry from the primary map and every index.
func (s *Store) unindexLocked(ent *entry) {
	delete(s.events, ent.ev.ID)
	delete(s.byOrdinal, ent.ord)
	s.all.Remove(ent.ord)
	s.bySpecies.remove(ent.ev.Species, ent.ord)
	s.byRole.remove(ent.ev.Role, ent.ord)
	s.byHabitat.remove(ent.ev.Habitat, ent.ord)
	s.byKind.remove(string(ent.ev.Kind), ent.ord)
}

// =============================================================================
// Accessors
// =============================================================================

// Get returns the event with the given id.
func (s *Store) Get(id string) (event.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.events[id]
	if !ok {
		return event.Event{}, false
	}
	return ent.ev, true
}

// Len returns the number of events in the primary store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// WindowInfo describes a configured window and how much it currently holds.
type WindowInfo struct {
	WindowConfig
	Size int
}

// Windows returns the configured windows in configuration order.
func (s *Store) Windows() []WindowInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]WindowInfo, 0, len(s.windowOrder))
	for _, name := range s.windowOrder {
		w := s.windows[name]
		out = append(out, WindowInfo{WindowConfig: w.cfg, Size: w.size()})
	}
	return out
}

// WindowSizes returns the current size of each window by name.
func (s *Store) WindowSizes() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int, len(s.windows))
	for name, w := range s.windows {
		out[name] = w.size()
	}
	return out
}

// SnapshotWindows returns the names of windows that can be snapshotted, sorted
// by duration.
func (s *Store) SnapshotWindows() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotWindowsLocked()
}

func (s *Store) snapshotWindowsLocked() []string {
	var cfgs []WindowConfig
	for _, name := range s.windowOrder {
		if w := s.windows[name]; w.cfg.Sequences {
			cfgs = append(cfgs, w.cfg)
		}
	}
	sort.SliceStable(cfgs, func(i, j int) bool { return cfgs[i].Duration < cfgs[j].Duration })
	names := make([]string, len(cfgs))
	for i, c := range cfgs {
		names[i] = c.Name
	}
	return names
}

// WindowDuration returns the duration of a named window.
func (s *Store) WindowDuration(name string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[name]
	if !ok {
		return 0, errors.NewInvalidWindow(name, s.windowOrder)
	}
	return w.cfg.Duration, nil
}

// =============================================================================
// Windows
// =============================================================================

// Snapshot returns an independent copy of a window's kind sequences taken at
// one lock instant. Aggregate-only windows have no sequences to copy.
func (s *Store) Snapshot(name string) (event.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[name]
	if !ok || !w.cfg.Sequences {
		return nil, errors.NewInvalidWindow(name, s.snapshotWindowsLocked())
	}
	return w.snapshot(), nil
}

// EvictWindow clears a window's sequences and counters. The primary store is
// not touched.
func (s *Store) EvictWindow(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[name]
	if !ok {
		return errors.NewInvalidWindow(name, s.windowOrder)
	}
	w.reset()
	return nil
}

// =============================================================================
// Stale Eviction
// =============================================================================

// EvictStale removes events older than maxAge and returns how many went.
func (s *Store) EvictStale(maxAge time.Duration) int {
	return len(s.EvictStaleEvents(maxAge))
}

// EvictStaleEvents removes events older than maxAge from the primary store
// and all indices, returning them in ingestion order.
func (s *Store) EvictStaleEvents(maxAge time.Duration) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed []*entry
	it := s.all.Iterator()
	for it.HasNext() {
		ent := s.byOrdinal[it.Next()]
		if ent.ev.AgeAt(now) > maxAge {
			removed = append(removed, ent)
		}
	}

	out := make([]event.Event, 0, len(removed))
	for _, ent := range removed {
		s.unindexLocked(ent)
		out = append(out, ent.ev)
	}
	if len(out) > 0 {
		log.Debug("stale events evicted", "removed", len(out), "remaining", len(s.events))
	}
	return out
}

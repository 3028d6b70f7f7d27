package store

import (
	"time"

	"github.com/xtxerr/hivewatch/internal/event"
)

// WindowConfig describes one named trailing window.
type WindowConfig struct {
	Name     string        `yaml:"name"`
	Duration time.Duration `yaml:"duration"`

	// Sequences keeps the per-(species, role) kind sequences served by Snapshot.
	Sequences bool `yaml:"sequences"`

	// Aggregates keeps the counters and trends reported by Stats.
	Aggregates bool `yaml:"aggregates"`
}

// window holds what one named window has accumulated since its last eviction.
// Membership is decided at ingestion and never re-evaluated.
type window struct {
	cfg WindowConfig

	sequences map[event.Key][]event.Kind

	counts        map[event.Key]int
	kindTrends    map[event.Kind]map[string]int
	speciesTrends map[string]int
}

func newWindow(cfg WindowConfig) *window {
	w := &window{cfg: cfg}
	w.reset()
	return w
}

func (w *window) reset() {
	if w.cfg.Sequences {
		w.sequences = make(map[event.Key][]event.Kind)
	}
	if w.cfg.Aggregates {
		w.counts = make(map[event.Key]int)
		w.kindTrends = make(map[event.Kind]map[string]int)
		w.speciesTrends = make(map[string]int)
	}
}

// covers reports whether an event of the given age belongs in the window.
func (w *window) covers(age time.Duration) bool {
	return age <= w.cfg.Duration
}

func (w *window) record(e event.Event) {
	key := e.Key()
	if w.cfg.Sequences {
		w.sequences[key] = append(w.sequences[key], e.Kind)
	}
	if w.cfg.Aggregates {
		w.counts[key]++
		bySpecies, ok := w.kindTrends[e.Kind]
		if !ok {
			bySpecies = make(map[string]int)
			w.kindTrends[e.Kind] = bySpecies
		}
		bySpecies[e.Species]++
		w.speciesTrends[e.Species]++
	}
}

// snapshot deep-copies the sequences.
func (w *window) snapshot() event.Snapshot {
	out := make(event.Snapshot, len(w.sequences))
	for k, kinds := range w.sequences {
		cp := make([]event.Kind, len(kinds))
		copy(cp, kinds)
		out[k] = cp
	}
	return out
}

// size is the number of kinds held in sequences, or counted when the window
// keeps aggregates only.
func (w *window) size() int {
	n := 0
	if w.cfg.Sequences {
		for _, kinds := range w.sequences {
			n += len(kinds)
		}
		return n
	}
	for _, c := range w.counts {
		n += c
	}
	return n
}

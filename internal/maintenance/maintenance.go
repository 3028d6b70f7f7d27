// Package maintenance runs the periodic store housekeeping.
//
// Every window is cleared on a fixed schedule equal to its duration, and
// stale events are dropped from the primary store on their own interval.
// Events removed by stale eviction are handed to an optional sink.
package maintenance

import (
	"context"
	"time"

	"github.com/xtxerr/hivewatch/config"
	"github.com/xtxerr/hivewatch/internal/event"
	"github.com/xtxerr/hivewatch/internal/logging"
	"github.com/xtxerr/hivewatch/internal/metrics"
	"github.com/xtxerr/hivewatch/internal/store"
)

var log = logging.Component("maintenance")

// Store is the part of the store maintenance works on.
type Store interface {
	Windows() []store.WindowInfo
	EvictWindow(name string) error
	EvictStaleEvents(maxAge time.Duration) []event.Event
}

// Sink receives events removed by stale eviction.
type Sink interface {
	Archive(events []event.Event) error
}

// Config holds maintenance options.
type Config struct {
	// StaleMaxAge is the age after which events leave the primary store.
	StaleMaxAge time.Duration

	// StaleInterval is how often stale eviction runs.
	StaleInterval time.Duration

	// Sink archives evicted events. Optional.
	Sink Sink
}

// Maintainer schedules window and stale eviction for one store.
type Maintainer struct {
	store Store
	cfg   Config
	tasks []Task
}

// New creates a Maintainer with one task per window plus stale eviction.
func New(st Store, cfg Config) *Maintainer {
	if cfg.StaleMaxAge <= 0 {
		cfg.StaleMaxAge = config.DefaultStaleMaxAge
	}
	if cfg.StaleInterval <= 0 {
		cfg.StaleInterval = config.DefaultStaleInterval
	}

	m := &Maintainer{store: st, cfg: cfg}
	for _, w := range st.Windows() {
		name := w.Name
		m.tasks = append(m.tasks, Task{
			Name:     "evict-window-" + name,
			Interval: w.Duration,
			Run:      func(time.Time) { m.evictWindow(name) },
		})
	}
	m.tasks = append(m.tasks, Task{
		Name:     "evict-stale",
		Interval: cfg.StaleInterval,
		Run:      func(time.Time) { m.EvictStale() },
	})
	return m
}

// Tasks returns the scheduled tasks.
func (m *Maintainer) Tasks() []Task {
	out := make([]Task, len(m.tasks))
	copy(out, m.tasks)
	return out
}

// Run schedules all tasks until ctx ends.
func (m *Maintainer) Run(ctx context.Context) error {
	for _, t := range m.tasks {
		log.Info("maintenance task scheduled", "task", t.Name, "interval", t.Interval)
	}
	schedule(ctx, m.tasks)
	log.Info("maintenance stopped")
	return nil
}

func (m *Maintainer) evictWindow(name string) {
	if err := m.store.EvictWindow(name); err != nil {
		log.Error("window eviction failed", "window", name, "error", err)
		return
	}
	metrics.WindowEvictionsTotal.WithLabelValues(name).Inc()
	log.Debug("window evicted", "window", name)
}

// EvictStale runs one stale eviction pass and archives what it removed.
// It returns how many events were removed.
func (m *Maintainer) EvictStale() int {
	removed := m.store.EvictStaleEvents(m.cfg.StaleMaxAge)
	if len(removed) == 0 {
		return 0
	}
	metrics.StaleEvictedTotal.Add(float64(len(removed)))
	log.Info("stale events evicted", "count", len(removed), "max_age", m.cfg.StaleMaxAge)

	if m.cfg.Sink != nil {
		if err := m.cfg.Sink.Archive(removed); err != nil {
			log.Error("archive failed", "count", len(removed), "error", err)
		}
	}
	return len(removed)
}

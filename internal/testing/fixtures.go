package testing

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/hivewatch/internal/event"
)

// Epoch is the fixed "now" used by test clocks.
var Epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// Clock is a settable clock for stores and schedules under test.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock set to Epoch.
func NewClock() *Clock {
	return &Clock{now: Epoch}
}

// Now returns the current clock time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var seq atomic.Uint64

// Event builds a valid event that happened age before Epoch.
func Event(species, role string, kind event.Kind, age time.Duration) event.Event {
	return event.Event{
		ID:                fmt.Sprintf("evt-%d", seq.Add(1)),
		Species:           species,
		Role:              role,
		Age:               2,
		Kind:              kind,
		Time:              Epoch.Add(-age),
		Habitat:           "forest",
		Latitude:          40.4,
		Longitude:         -3.7,
		EcologicalImpact:  5,
		PopulationDensity: 250,
	}
}

// Sequence is the (species, role) -> kinds layout of the end-to-end scenario.
type Sequence struct {
	Species string
	Role    string
	Kinds   []event.Kind
}

// ScenarioSequences are the reference window contents:
// (butterfly, queen): death, predator attack
// (spider, queen): death, birth, death
func ScenarioSequences() []Sequence {
	return []Sequence{
		{Species: "butterfly", Role: "queen", Kinds: []event.Kind{event.KindDeath, event.KindPredatorAttack}},
		{Species: "spider", Role: "queen", Kinds: []event.Kind{event.KindDeath, event.KindBirth, event.KindDeath}},
	}
}

// ScenarioEvents expands ScenarioSequences into fresh events aged 10 seconds.
func ScenarioEvents() []event.Event {
	var out []event.Event
	for _, s := range ScenarioSequences() {
		for _, k := range s.Kinds {
			out = append(out, Event(s.Species, s.Role, k, 10*time.Second))
		}
	}
	return out
}

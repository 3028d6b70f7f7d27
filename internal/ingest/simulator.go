package ingest

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xtxerr/hivewatch/config"
	"github.com/xtxerr/hivewatch/internal/event"
)

// Value sets drawn by the simulator.
var (
	SimSpecies  = []string{"ant", "bee", "butterfly", "spider"}
	SimRoles    = []string{"worker", "queen", "soldier", "scout"}
	SimHabitats = []string{"forest", "field", "garden", "house"}
)

// SimulatorConfig holds simulator options.
type SimulatorConfig struct {
	// Interval is the mean delay between events; each delay is drawn
	// uniformly from [0.8, 1.2] x Interval.
	Interval time.Duration

	// Limit stops the simulator after this many events. Zero runs forever.
	Limit int

	// Rand drives every random choice. Nil uses a time-seeded PCG.
	Rand *rand.Rand

	// Now stamps event times. Defaults to time.Now.
	Now func() time.Time
}

// Simulator generates random insect events.
type Simulator struct {
	cfg SimulatorConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator creates a simulator.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.Interval <= 0 {
		cfg.Interval = config.DefaultSimulatorInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	rng := cfg.Rand
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	return &Simulator{cfg: cfg, rng: rng}
}

// Name implements Source.
func (s *Simulator) Name() string { return "simulator" }

// Generate returns one random event stamped with the current time.
func (s *Simulator) Generate() event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.rng
	kinds := event.Kinds()
	return event.Event{
		ID:                uuid.NewString(),
		Species:           SimSpecies[r.IntN(len(SimSpecies))],
		Role:              SimRoles[r.IntN(len(SimRoles))],
		Age:               1 + r.IntN(10),
		Kind:              kinds[r.IntN(len(kinds))],
		Time:              s.cfg.Now().UTC().Truncate(time.Second),
		Habitat:           SimHabitats[r.IntN(len(SimHabitats))],
		Latitude:          r.Float64()*180 - 90,
		Longitude:         r.Float64()*360 - 180,
		EcologicalImpact:  float64(r.IntN(101)) / 10,
		PopulationDensity: float64(10 + r.IntN(991)),
	}
}

// delay draws the next inter-event delay.
func (s *Simulator) delay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	factor := 0.8 + 0.4*s.rng.Float64()
	return time.Duration(float64(s.cfg.Interval) * factor)
}

// Run implements Source.
func (s *Simulator) Run(ctx context.Context, out chan<- Item) error {
	timer := time.NewTimer(s.delay())
	defer timer.Stop()

	for n := 0; s.cfg.Limit <= 0 || n < s.cfg.Limit; n++ {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		if !send(ctx, out, Item{Source: s.Name(), Event: s.Generate()}) {
			return nil
		}
		timer.Reset(s.delay())
	}
	return nil
}

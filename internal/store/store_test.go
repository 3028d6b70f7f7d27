package store

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/hivewatch/internal/errors"
	"github.com/xtxerr/hivewatch/internal/event"
	htest "github.com/xtxerr/hivewatch/internal/testing"
)

var t0 = htest.Epoch

func newTestStore(t *testing.T) (*Store, *htest.Clock) {
	t.Helper()
	c := htest.NewClock()
	cfg := DefaultConfig()
	cfg.Now = c.Now
	s, err := New(cfg)
	require.NoError(t, err)
	return s, c
}

func ev(id, species, role string, kind event.Kind, age time.Duration) event.Event {
	return event.Event{
		ID:      id,
		Species: species,
		Role:    role,
		Age:     3,
		Kind:    kind,
		Time:    t0.Add(-age),
		Habitat: "forest",
	}
}

// checkIndexes verifies that every event sits in exactly the index sets
// matching its fields and that no index holds anything else.
func checkIndexes(t *testing.T, s *Store) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	require.Equal(t, len(s.events), len(s.byOrdinal))
	require.Equal(t, uint64(len(s.events)), s.all.GetCardinality())

	for _, ix := range []*index{s.bySpecies, s.byRole, s.byHabitat, s.byKind} {
		total := 0
		for _, bm := range ix.sets {
			total += int(bm.GetCardinality())
		}
		require.Equal(t, len(s.events), total, "index %s holds %d entries", ix.name, total)
	}

	for id, ent := range s.events {
		require.Equal(t, id, ent.ev.ID)
		require.Same(t, ent, s.byOrdinal[ent.ord])
		require.True(t, s.bySpecies.get(ent.ev.Species).Contains(ent.ord))
		require.True(t, s.byRole.get(ent.ev.Role).Contains(ent.ord))
		require.True(t, s.byHabitat.get(ent.ev.Habitat).Contains(ent.ord))
		require.True(t, s.byKind.get(string(ent.ev.Kind)).Contains(ent.ord))
	}
}

func TestNewRejectsBadWindows(t *testing.T) {
	tests := []struct {
		name    string
		windows []WindowConfig
	}{
		{"none", nil},
		{"zero duration", []WindowConfig{{Name: "1min", Sequences: true}}},
		{"duplicate", []WindowConfig{
			{Name: "1min", Duration: time.Minute, Sequences: true},
			{Name: "1min", Duration: time.Minute, Aggregates: true},
		}},
		{"keeps nothing", []WindowConfig{{Name: "1min", Duration: time.Minute}}},
		{"no name", []WindowConfig{{Duration: time.Minute, Sequences: true}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{Windows: tt.windows})
			assert.Error(t, err)
		})
	}
}

func TestIngestWindowMembership(t *testing.T) {
	s, _ := newTestStore(t)

	ages := map[string]time.Duration{
		"a-30s":  30 * time.Second,
		"b-60s":  60 * time.Second,
		"c-90s":  90 * time.Second,
		"d-3m":   3 * time.Minute,
		"e-10m":  10 * time.Minute,
		"f-30m":  30 * time.Minute,
		"g-2h":   2 * time.Hour,
		"h-futr": -5 * time.Second,
	}
	for id, age := range ages {
		require.NoError(t, s.Ingest(ev(id, "ant", "worker", event.KindBirth, age)))
	}

	key := event.Key{Species: "ant", Role: "worker"}
	tests := []struct {
		window string
		want   int
	}{
		{"1min", 3}, // 30s, exactly 60s, future
		{"2min", 4},
		{"5min", 5},
	}
	for _, tt := range tests {
		t.Run(tt.window, func(t *testing.T) {
			snap, err := s.Snapshot(tt.window)
			require.NoError(t, err)
			assert.Len(t, snap[key], tt.want)
		})
	}

	st := s.Stats()
	assert.Equal(t, 8, st.TotalEvents)
	assert.Equal(t, 3, st.WindowTotal("1min"))
	assert.Equal(t, 5, st.WindowTotal("5min"))
	assert.Equal(t, 6, st.WindowTotal("15min"))
	assert.Equal(t, 7, st.WindowTotal("1hour"))
	assert.NotContains(t, st.TimeWindows, "2min", "2min keeps sequences only")
	assert.Equal(t, 7, st.Trends.Species["1hour"]["ant"])
	assert.Equal(t, 3, st.Trends.Events["1min"]["birth"]["ant"])
}

func TestMembershipIsDecidedAtIngestion(t *testing.T) {
	s, clk := newTestStore(t)
	require.NoError(t, s.Ingest(ev("x", "bee", "queen", event.KindDeath, 10*time.Second)))

	clk.Advance(10 * time.Minute)

	snap, err := s.Snapshot("1min")
	require.NoError(t, err)
	assert.Equal(t, []event.Kind{event.KindDeath}, snap[event.Key{Species: "bee", Role: "queen"}])
}

func TestSnapshotInvalidWindow(t *testing.T) {
	s, _ := newTestStore(t)

	for _, name := range []string{"3min", "", "15min", "1hour"} {
		_, err := s.Snapshot(name)
		require.Error(t, err, "window %q", name)
		assert.True(t, errors.Is(err, errors.ErrInvalidWindow))
	}
	assert.Equal(t, []string{"1min", "2min", "5min"}, s.SnapshotWindows())
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Ingest(ev("x", "bee", "queen", event.KindDeath, 0)))

	key := event.Key{Species: "bee", Role: "queen"}
	snap, err := s.Snapshot("1min")
	require.NoError(t, err)
	snap[key][0] = event.KindBirth
	snap[event.Key{Species: "ghost"}] = nil

	again, err := s.Snapshot("1min")
	require.NoError(t, err)
	assert.Equal(t, event.Snapshot{key: {event.KindDeath}}, again)
}

func TestSnapshotPreservesOrder(t *testing.T) {
	s, _ := newTestStore(t)
	kinds := []event.Kind{event.KindDeath, event.KindBirth, event.KindDeath, event.KindPredatorAttack}
	for i, k := range kinds {
		require.NoError(t, s.Ingest(ev(fmt.Sprintf("e%d", i), "spider", "queen", k, 0)))
	}

	snap, err := s.Snapshot("5min")
	require.NoError(t, err)
	assert.Equal(t, kinds, snap[event.Key{Species: "spider", Role: "queen"}])
}

func TestEvictWindow(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Ingest(ev("x", "bee", "queen", event.KindDeath, 0)))
	require.NoError(t, s.Ingest(ev("y", "ant", "worker", event.KindBirth, 0)))

	require.NoError(t, s.EvictWindow("1min"))

	snap, err := s.Snapshot("1min")
	require.NoError(t, err)
	assert.Empty(t, snap)

	other, err := s.Snapshot("5min")
	require.NoError(t, err)
	assert.Len(t, other, 2)

	st := s.Stats()
	assert.Equal(t, 2, st.TotalEvents, "primary store is untouched")
	assert.Equal(t, 0, st.WindowTotal("1min"))
	assert.Empty(t, st.Trends.Species["1min"])

	require.NoError(t, s.EvictWindow("1hour"))
	assert.Equal(t, 0, s.Stats().WindowTotal("1hour"))

	err = s.EvictWindow("nope")
	assert.True(t, errors.Is(err, errors.ErrInvalidWindow))
}

func TestOverwriteMovesIndexEntries(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Ingest(ev("x", "ant", "worker", event.KindBirth, 0)))

	moved := ev("x", "bee", "queen", event.KindDeath, 0)
	moved.Habitat = "garden"
	require.NoError(t, s.Ingest(moved))

	assert.Equal(t, 1, s.Len())
	assert.Empty(t, s.QueryBySpecies("ant", 0))
	assert.Equal(t, []event.Event{moved}, s.QueryBySpecies("bee", 0))
	assert.Empty(t, s.QueryByHabitatAndEvent("forest", event.KindBirth, 0))
	assert.Len(t, s.QueryByHabitatAndEvent("garden", event.KindDeath, 0), 1)

	got, ok := s.Get("x")
	require.True(t, ok)
	assert.Equal(t, moved, got)

	st := s.Stats()
	assert.Equal(t, map[string]int{"bee": 1}, st.BySpecies)
	assert.Equal(t, map[string]int{"queen": 1}, st.ByRole)

	// window contributions of the first version are kept
	snap, err := s.Snapshot("1min")
	require.NoError(t, err)
	assert.Len(t, snap, 2)

	checkIndexes(t, s)
}

func TestIngestRejectsInvalidEvent(t *testing.T) {
	s, _ := newTestStore(t)
	bad := ev("", "ant", "worker", event.KindBirth, 0)
	err := s.Ingest(bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidEvent))
	assert.Equal(t, 0, s.Len())
}

func TestEvictStale(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Ingest(ev("old1", "ant", "worker", event.KindBirth, 3*time.Hour)))
	require.NoError(t, s.Ingest(ev("new", "ant", "worker", event.KindBirth, 30*time.Minute)))
	old2 := ev("old2", "moth", "scout", event.KindDeath, 150*time.Minute)
	old2.Habitat = "house"
	require.NoError(t, s.Ingest(old2))

	removed := s.EvictStaleEvents(2 * time.Hour)
	require.Len(t, removed, 2)
	assert.Equal(t, "old1", removed[0].ID, "ingestion order")
	assert.Equal(t, "old2", removed[1].ID)

	assert.Equal(t, 1, s.Len())
	_, ok := s.Get("old1")
	assert.False(t, ok)

	st := s.Stats()
	assert.Equal(t, map[string]int{"ant": 1}, st.BySpecies)
	assert.NotContains(t, st.ByHabitat, "house")
	checkIndexes(t, s)

	assert.Equal(t, 0, s.EvictStale(2*time.Hour))
}

func TestQueryBySpeciesLimitAndOrder(t *testing.T) {
	s, _ := newTestStore(t)
	for i := 0; i < 15; i++ {
		require.NoError(t, s.Ingest(ev(fmt.Sprintf("e%02d", i), "ant", "worker", event.KindBirth, 0)))
	}
	require.NoError(t, s.Ingest(ev("other", "bee", "worker", event.KindBirth, 0)))

	got := s.QueryBySpecies("ant", 10)
	require.Len(t, got, 10)
	for i, e := range got {
		assert.Equal(t, fmt.Sprintf("e%02d", i), e.ID)
	}

	assert.Len(t, s.QueryBySpecies("ant", 0), 15)
	assert.Len(t, s.QueryBySpecies("ant", -1), 15)
	assert.Empty(t, s.QueryBySpecies("wasp", 10))
	assert.NotNil(t, s.QueryBySpecies("wasp", 10))
}

func TestQueryByHabitatAndEvent(t *testing.T) {
	s, _ := newTestStore(t)
	for i := 0; i < 6; i++ {
		e := ev(fmt.Sprintf("e%d", i), "ant", "worker", event.KindBirth, 0)
		if i%2 == 0 {
			e.Kind = event.KindPredatorAttack
		}
		if i >= 4 {
			e.Habitat = "field"
		}
		require.NoError(t, s.Ingest(e))
	}

	got := s.QueryByHabitatAndEvent("forest", event.KindPredatorAttack, 10)
	require.Len(t, got, 2)
	assert.Equal(t, "e0", got[0].ID)
	assert.Equal(t, "e2", got[1].ID)

	assert.Len(t, s.QueryByHabitatAndEvent("forest", event.KindPredatorAttack, 1), 1)
	assert.Len(t, s.QueryByHabitatAndEvent("field", event.KindPredatorAttack, 0), 1)
	assert.Empty(t, s.QueryByHabitatAndEvent("swamp", event.KindBirth, 0))
}

func TestRecentEvents(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Ingest(ev("a", "ant", "worker", event.KindBirth, 10*time.Second)))
	require.NoError(t, s.Ingest(ev("b", "ant", "worker", event.KindBirth, 2*time.Minute)))
	require.NoError(t, s.Ingest(ev("c", "ant", "worker", event.KindBirth, 20*time.Second)))

	got := s.RecentEvents(time.Minute)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
	assert.Len(t, s.RecentEvents(time.Hour), 3)
}

func TestStatsDistributions(t *testing.T) {
	s, _ := newTestStore(t)
	for i := 1; i <= 4; i++ {
		e := ev(fmt.Sprintf("e%d", i), "ant", "worker", event.KindBirth, 0)
		e.Age = i
		e.EcologicalImpact = float64(-10 * i)
		e.PopulationDensity = 100
		require.NoError(t, s.Ingest(e))
	}

	st := s.Stats()

	age := st.Distributions[FieldAge]
	assert.Equal(t, 4, age.Count)
	assert.InDelta(t, 2.5, age.Mean, 1e-9)
	assert.InDelta(t, math.Sqrt(5.0/3.0), age.StdDev, 1e-9)
	assert.Equal(t, 1.0, age.Min)
	assert.Equal(t, 4.0, age.Max)
	assert.GreaterOrEqual(t, age.P50, 0.99*age.Min)
	assert.LessOrEqual(t, age.P99, 1.01*age.Max)

	impact := st.Distributions[FieldEcologicalImpact]
	assert.InDelta(t, -25, impact.Mean, 1e-9)
	assert.Equal(t, -40.0, impact.Min)

	density := st.Distributions[FieldPopulationDensity]
	assert.Equal(t, 0.0, density.StdDev)
	assert.InEpsilon(t, 100, density.P90, 0.02)

	empty, _ := newTestStore(t)
	assert.Equal(t, Distribution{}, empty.Stats().Distributions[FieldAge])
}

func TestWindowsInfo(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Ingest(ev("a", "ant", "worker", event.KindBirth, 0)))

	infos := s.Windows()
	require.Len(t, infos, 5)
	assert.Equal(t, "1min", infos[0].Name)
	assert.Equal(t, 1, infos[0].Size)
	assert.Equal(t, "1hour", infos[4].Name)
	assert.Equal(t, 1, infos[4].Size)

	d, err := s.WindowDuration("5min")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)
}

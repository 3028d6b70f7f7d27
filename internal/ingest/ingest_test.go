package ingest

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/hivewatch/internal/event"
	"github.com/xtxerr/hivewatch/internal/metrics"
	"github.com/xtxerr/hivewatch/internal/store"
	htest "github.com/xtxerr/hivewatch/internal/testing"
)

func seededSimulator(limit int) *Simulator {
	clock := htest.NewClock()
	return NewSimulator(SimulatorConfig{
		Interval: time.Millisecond,
		Limit:    limit,
		Rand:     rand.New(rand.NewPCG(7, 11)),
		Now:      clock.Now,
	})
}

func TestSimulator_GeneratesValidEvents(t *testing.T) {
	sim := seededSimulator(0)
	ids := make(map[string]bool)

	for i := 0; i < 500; i++ {
		e := sim.Generate()
		require.NoError(t, e.Validate())

		_, err := uuid.Parse(e.ID)
		require.NoError(t, err)
		require.False(t, ids[e.ID], "duplicate id %s", e.ID)
		ids[e.ID] = true

		assert.Contains(t, SimSpecies, e.Species)
		assert.Contains(t, SimRoles, e.Role)
		assert.Contains(t, SimHabitats, e.Habitat)
		assert.GreaterOrEqual(t, e.Age, 1)
		assert.LessOrEqual(t, e.Age, 10)
		assert.Equal(t, htest.Epoch, e.Time)
	}
}

func TestSimulator_SameSeedSameStream(t *testing.T) {
	a, b := seededSimulator(0), seededSimulator(0)
	for i := 0; i < 20; i++ {
		ea, eb := a.Generate(), b.Generate()
		ea.ID, eb.ID = "", ""
		assert.Equal(t, ea, eb)
	}
}

func TestSimulator_RunStopsAtLimit(t *testing.T) {
	sim := seededSimulator(3)
	out := make(chan Item, 10)
	require.NoError(t, sim.Run(context.Background(), out))
	assert.Len(t, out, 3)
}

func TestSimulator_RunStopsOnCancel(t *testing.T) {
	sim := NewSimulator(SimulatorConfig{Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx, make(chan Item)) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("simulator did not stop")
	}
}

func TestTCPSource_DecodesLines(t *testing.T) {
	src := NewTCPSource("127.0.0.1:0", 0)
	require.NoError(t, src.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Item, 10)
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, out) }()

	before := testutil.ToFloat64(metrics.EventsRejectedTotal.WithLabelValues("tcp", ReasonDecode))

	conn, err := net.Dial("tcp", src.Addr().String())
	require.NoError(t, err)
	lw := NewLineWriter(conn)
	good := htest.Event("bee", "worker", event.KindBirth, time.Second)
	require.NoError(t, lw.Write(good))
	_, err = fmt.Fprintln(conn, `{"_id": "x", "insect": "not an object"}`)
	require.NoError(t, err)
	_, err = fmt.Fprintln(conn, `{"_id":"doc-2","insect":{"species":"ant","role":"scout","age":2},`+
		`"event":"death","eventTime":"2024-05-01T11:59:00 Z","location":{"habitat":"field",`+
		`"coordinates":{"latitude":1,"longitude":2}}}`)
	require.NoError(t, err)
	conn.Close()

	var got []Item
	for len(got) < 2 {
		select {
		case it := <-out:
			got = append(got, it)
		case <-time.After(3 * time.Second):
			t.Fatalf("received %d items", len(got))
		}
	}
	assert.Equal(t, "tcp", got[0].Source)
	assert.Equal(t, good.ID, got[0].Event.ID)
	assert.Equal(t, "doc-2", got[1].Event.ID)
	assert.Equal(t, event.KindDeath, got[1].Event.Kind)

	require.NoError(t, htest.Eventually(2*time.Second, 10*time.Millisecond, func() bool {
		return testutil.ToFloat64(metrics.EventsRejectedTotal.WithLabelValues("tcp", ReasonDecode))-before == 1
	}))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("tcp source did not stop")
	}
}

type sliceSource struct {
	name   string
	events []event.Event
}

func (s sliceSource) Name() string { return s.name }

func (s sliceSource) Run(ctx context.Context, out chan<- Item) error {
	for _, e := range s.events {
		if !send(ctx, out, Item{Source: s.name, Event: e}) {
			return nil
		}
	}
	return nil
}

type failingSource struct{}

func (failingSource) Name() string { return "broken" }

func (failingSource) Run(ctx context.Context, out chan<- Item) error {
	return fmt.Errorf("device gone")
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := store.DefaultConfig()
	cfg.Now = htest.NewClock().Now
	s, err := store.New(cfg)
	require.NoError(t, err)
	return s
}

func TestPipeline_IngestsAllSources(t *testing.T) {
	st := newStore(t)
	bad := htest.Event("bee", "worker", event.KindBirth, time.Second)
	bad.Species = ""

	p := NewPipeline(st, PipelineConfig{ProgressEvery: 2},
		seededSimulator(4),
		sliceSource{name: "fixture", events: append(htest.ScenarioEvents(), bad)},
	)
	require.NoError(t, p.Run(context.Background()))

	ingested, rejected := p.Counts()
	assert.Equal(t, uint64(9), ingested)
	assert.Equal(t, uint64(1), rejected)
	assert.Equal(t, 9, st.Len())
}

func TestPipeline_SourceFailureStopsOthers(t *testing.T) {
	st := newStore(t)
	p := NewPipeline(st, PipelineConfig{},
		NewSimulator(SimulatorConfig{Interval: time.Hour}),
		failingSource{},
	)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "device gone")
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after source failure")
	}
}

func TestPipeline_NoSources(t *testing.T) {
	assert.Error(t, NewPipeline(newStore(t), PipelineConfig{}).Run(context.Background()))
}

func TestProducer_StreamsToTCPSource(t *testing.T) {
	src := NewTCPSource("127.0.0.1:0", 0)
	require.NoError(t, src.Listen())
	st := newStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPipeline(st, PipelineConfig{}, src)
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	prod := NewProducer(src.Addr().String(), seededSimulator(6))
	sent, err := prod.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, sent)

	require.NoError(t, htest.Eventually(3*time.Second, 10*time.Millisecond, func() bool {
		return st.Len() == 6
	}))

	species := st.Stats().BySpecies
	for sp := range species {
		assert.True(t, slices.Contains(SimSpecies, sp))
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("pipeline did not stop")
	}
}

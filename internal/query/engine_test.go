package query

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/hivewatch/internal/errors"
	"github.com/xtxerr/hivewatch/internal/event"
	"github.com/xtxerr/hivewatch/internal/sketch"
	"github.com/xtxerr/hivewatch/internal/store"
	htest "github.com/xtxerr/hivewatch/internal/testing"
)

func newScenarioEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	clock := htest.NewClock()
	cfg := store.DefaultConfig()
	cfg.Now = clock.Now
	s, err := store.New(cfg)
	require.NoError(t, err)

	for _, e := range htest.ScenarioEvents() {
		require.NoError(t, s.Ingest(e))
	}

	qc := DefaultConfig()
	// a tight rate keeps the negative probe stable
	qc.BloomFalsePositiveRate = 1e-4
	qc.Rand = rand.NewPCG(1, 2)
	return NewEngine(s, qc), s
}

func TestEngine_EndToEndScenario(t *testing.T) {
	eng, _ := newScenarioEngine(t)
	ctx := context.Background()

	t.Run("cantidad", func(t *testing.T) {
		res := eng.Handle(ctx, "cantidad", map[string]any{"window": "1min"})
		require.True(t, res.IsOK(), res.Message)
		data := res.Data.(CantidadResult)
		assert.Equal(t, []string{"butterfly", "spider"}, data.Species)
		assert.Equal(t, uint64(2), data.Estimate)
	})

	t.Run("bloom contains", func(t *testing.T) {
		res := eng.Handle(ctx, "bloom_filter", map[string]any{
			"window": "1min", "species": "spider", "role": "queen", "event": "birth",
		})
		require.True(t, res.IsOK(), res.Message)
		data := res.Data.(BloomResult)
		assert.Equal(t, "spider_queen_birth", data.Key)
		assert.True(t, data.Contains)
		assert.Equal(t, 5, data.Inserted)
	})

	t.Run("bloom absent", func(t *testing.T) {
		res := eng.Handle(ctx, "bloom_filter", map[string]any{
			"window": "1min", "species": "bee", "role": "worker", "event": "death",
		})
		require.True(t, res.IsOK(), res.Message)
		assert.False(t, res.Data.(BloomResult).Contains)
	})

	t.Run("dgim default event", func(t *testing.T) {
		res := eng.Handle(ctx, "dgim_filter", map[string]any{"window": "1min"})
		require.True(t, res.IsOK(), res.Message)
		data := res.Data.(DGIMResult)
		assert.Equal(t, "predator attack", data.Event)
		assert.Equal(t, uint64(1), data.Estimate)
	})

	t.Run("minwise", func(t *testing.T) {
		res := eng.Handle(ctx, "minwise", map[string]any{
			"window": "1min", "species": "spider", "role": "queen",
		})
		require.True(t, res.IsOK(), res.Message)
		data := res.Data.(MinWiseResult)
		assert.GreaterOrEqual(t, data.Similarity, 0.0)
		assert.LessOrEqual(t, data.Similarity, 1.0)
		assert.Equal(t, data.Similarity >= 0.5, data.Redundant)
		assert.Equal(t, 5, data.Records)
		// two distinct records in the window
		assert.LessOrEqual(t, len(data.Sample), 2)
		assert.NotEmpty(t, data.Sample)
	})
}

func TestEngine_Lookups(t *testing.T) {
	eng, _ := newScenarioEngine(t)
	ctx := context.Background()

	res := eng.Handle(ctx, "species", map[string]any{"species": "spider", "limit": float64(2)})
	require.True(t, res.IsOK(), res.Message)
	events := res.Data.([]event.Event)
	require.Len(t, events, 2)
	assert.Equal(t, event.KindDeath, events[0].Kind)
	assert.Equal(t, event.KindBirth, events[1].Kind)

	res = eng.Handle(ctx, "habitat_event", map[string]any{"habitat": "forest", "event": "death"})
	require.True(t, res.IsOK(), res.Message)
	assert.Len(t, res.Data.([]event.Event), 3)

	res = eng.Handle(ctx, "recent", map[string]any{"seconds": 30})
	require.True(t, res.IsOK(), res.Message)
	assert.Len(t, res.Data.([]event.Event), 5)

	res = eng.Handle(ctx, "recent", map[string]any{"seconds": 5})
	require.True(t, res.IsOK(), res.Message)
	assert.Empty(t, res.Data.([]event.Event))

	res = eng.Handle(ctx, "stats", nil)
	require.True(t, res.IsOK(), res.Message)
	st := res.Data.(store.Stats)
	assert.Equal(t, 5, st.TotalEvents)
	assert.Equal(t, 2, st.BySpecies["butterfly"])
}

func TestEngine_Errors(t *testing.T) {
	eng, _ := newScenarioEngine(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		typ    string
		params map[string]any
		code   int32
		is     error
	}{
		{"unknown type", "teleport", nil, errors.CodeUnknownQuery, errors.ErrUnknownQuery},
		{"invalid window", "cantidad", map[string]any{"window": "10min"}, errors.CodeInvalidWindow, errors.ErrInvalidWindow},
		{"aggregate only window", "cantidad", map[string]any{"window": "1hour"}, errors.CodeInvalidWindow, errors.ErrInvalidWindow},
		{"missing window", "dgim_filter", map[string]any{}, errors.CodeInvalidParams, errors.ErrInvalidParameters},
		{"bad event", "dgim_filter", map[string]any{"window": "1min", "event": "molt"}, errors.CodeInvalidParams, errors.ErrInvalidParameters},
		{"mistyped limit", "species", map[string]any{"species": "bee", "limit": "ten"}, errors.CodeInvalidParams, errors.ErrInvalidParameters},
		{"fractional limit", "species", map[string]any{"species": "bee", "limit": 2.5}, errors.CodeInvalidParams, errors.ErrInvalidParameters},
		{"missing species", "bloom_filter", map[string]any{"window": "1min", "role": "queen", "event": "birth"}, errors.CodeInvalidParams, errors.ErrInvalidParameters},
		{"zero sample", "minwise", map[string]any{"window": "1min", "species": "bee", "role": "queen", "sample": 0}, errors.CodeInvalidParams, errors.ErrInvalidParameters},
		{"no seconds", "recent", nil, errors.CodeInvalidParams, errors.ErrInvalidParameters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := eng.Handle(ctx, tt.typ, tt.params)
			assert.Equal(t, StatusError, res.Status)
			assert.Equal(t, tt.code, res.Code)
			assert.NotEmpty(t, res.Message)

			_, err := ParseRequest(tt.typ, tt.params, eng.Defaults())
			if err == nil {
				_, err = eng.Do(mustParse(t, eng, tt.typ, tt.params))
			}
			assert.ErrorIs(t, err, tt.is)
		})
	}
}

func mustParse(t *testing.T, eng *Engine, typ string, params map[string]any) Request {
	t.Helper()
	req, err := ParseRequest(typ, params, eng.Defaults())
	require.NoError(t, err)
	return req
}

func TestEngine_UnknownQueryMessage(t *testing.T) {
	eng, _ := newScenarioEngine(t)
	res := eng.Handle(context.Background(), "nope", nil)
	assert.Equal(t, "error", res.Status)
	assert.Equal(t, "Query not recognized", res.Message)
}

func TestEngine_InvalidWindowListsChoices(t *testing.T) {
	eng, _ := newScenarioEngine(t)
	res := eng.Handle(context.Background(), "bloom_filter", map[string]any{
		"window": "3min", "species": "bee", "role": "queen", "event": "birth",
	})
	require.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "3min")
	assert.Contains(t, res.Message, "1min")
	assert.Contains(t, res.Message, "5min")
}

func TestEngine_EmptyWindow(t *testing.T) {
	s, err := store.New(store.DefaultConfig())
	require.NoError(t, err)
	eng := NewEngine(s, DefaultConfig())
	ctx := context.Background()

	res := eng.Handle(ctx, "bloom_filter", map[string]any{
		"window": "2min", "species": "bee", "role": "queen", "event": "birth",
	})
	require.True(t, res.IsOK(), res.Message)
	assert.False(t, res.Data.(BloomResult).Contains)

	res = eng.Handle(ctx, "cantidad", map[string]any{"window": "5min"})
	require.True(t, res.IsOK(), res.Message)
	assert.Empty(t, res.Data.(CantidadResult).Species)
	assert.Zero(t, res.Data.(CantidadResult).Estimate)

	res = eng.Handle(ctx, "minwise", map[string]any{"window": "1min", "species": "bee", "role": "queen"})
	require.True(t, res.IsOK(), res.Message)
	data := res.Data.(MinWiseResult)
	assert.Zero(t, data.Similarity)
	assert.False(t, data.Redundant)
	assert.Empty(t, data.Sample)

	res = eng.Handle(ctx, "dgim_filter", map[string]any{"window": "1min"})
	require.True(t, res.IsOK(), res.Message)
	assert.Zero(t, res.Data.(DGIMResult).Estimate)
}

type panicStore struct{ Store }

func (panicStore) Stats() store.Stats { panic("boom") }

func TestEngine_RecoversPanic(t *testing.T) {
	eng := NewEngine(panicStore{}, DefaultConfig())
	res := eng.Handle(context.Background(), "stats", nil)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, errors.CodeInternal, res.Code)
	assert.Contains(t, res.Message, "boom")
}

func TestParseRequest(t *testing.T) {
	d := Defaults{Limit: 10, SampleSize: 3, BurstKind: event.KindPredatorAttack}

	req, err := ParseRequest("species", map[string]any{"species": "bee"}, d)
	require.NoError(t, err)
	assert.Equal(t, SpeciesRequest{Species: "bee", Limit: 10}, req)

	req, err = ParseRequest("minwise", map[string]any{
		"window": "2min", "species": "ant", "role": "scout", "age": float64(4),
	}, d)
	require.NoError(t, err)
	assert.Equal(t, MinWiseRequest{Window: "2min", Species: "ant", Role: "scout", Age: 4, SampleSize: 3}, req)

	req, err = ParseRequest("dgim_filter", map[string]any{"window": "5min", "event": "birth"}, d)
	require.NoError(t, err)
	assert.Equal(t, DGIMRequest{Window: "5min", Kind: event.KindBirth}, req)

	req, err = ParseRequest("recent", map[string]any{"seconds": float64(90)}, d)
	require.NoError(t, err)
	assert.Equal(t, RecentRequest{Period: 90 * time.Second}, req)

	req, err = ParseRequest("stats", nil, d)
	require.NoError(t, err)
	assert.Equal(t, TypeStats, req.Type())

	_, err = ParseRequest("minwise", map[string]any{
		"window": "2min", "species": "ant", "role": "scout", "age": float64(-1),
	}, d)
	assert.ErrorIs(t, err, errors.ErrInvalidParameters)

	_, err = ParseRequest("species", map[string]any{"species": "bad_name"}, d)
	assert.ErrorIs(t, err, errors.ErrInvalidParameters)
}

func TestMinWiseSampleIsReproducible(t *testing.T) {
	build := func() []sketch.Record {
		eng, _ := newScenarioEngine(t)
		res := eng.Handle(context.Background(), "minwise", map[string]any{
			"window": "1min", "species": "ant", "role": "worker", "sample": 1,
		})
		require.True(t, res.IsOK(), res.Message)
		return res.Data.(MinWiseResult).Sample
	}
	assert.Equal(t, build(), build())
}

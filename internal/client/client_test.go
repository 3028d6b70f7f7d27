package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/hivewatch/internal/errors"
	"github.com/xtxerr/hivewatch/internal/event"
	"github.com/xtxerr/hivewatch/internal/query"
	"github.com/xtxerr/hivewatch/internal/server"
	"github.com/xtxerr/hivewatch/internal/store"
	htest "github.com/xtxerr/hivewatch/internal/testing"
	"github.com/xtxerr/hivewatch/internal/wire"
)

func startServer(t *testing.T) *server.Server {
	t.Helper()
	clock := htest.NewClock()
	sc := store.DefaultConfig()
	sc.Now = clock.Now
	st, err := store.New(sc)
	require.NoError(t, err)
	for _, e := range htest.ScenarioEvents() {
		require.NoError(t, st.Ingest(e))
	}

	qc := query.DefaultConfig()
	qc.BloomFalsePositiveRate = 1e-4
	srv := server.New(server.Config{Listen: "127.0.0.1:0"}, query.NewEngine(st, qc))
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)
	t.Cleanup(func() {
		cancel()
		srv.Shutdown()
	})
	return srv
}

func connect(t *testing.T, srv *server.Server) *Client {
	t.Helper()
	c := New(Config{Addr: srv.Addr().String(), RequestTimeout: 5 * time.Second})
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_TypedQueries(t *testing.T) {
	srv := startServer(t)
	c := connect(t, srv)
	ctx := context.Background()

	assert.True(t, c.IsConnected())
	assert.Equal(t, "connected", c.State())

	cnt, err := c.Cantidad(ctx, "1min")
	require.NoError(t, err)
	assert.Equal(t, []string{"butterfly", "spider"}, cnt.Species)
	assert.Equal(t, uint64(2), cnt.Estimate)

	bloom, err := c.Bloom(ctx, "1min", "spider", "queen", event.KindBirth)
	require.NoError(t, err)
	assert.True(t, bloom.Contains)

	bloom, err = c.Bloom(ctx, "1min", "bee", "worker", event.KindDeath)
	require.NoError(t, err)
	assert.False(t, bloom.Contains)

	dg, err := c.DGIM(ctx, "1min", "")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), dg.Estimate)

	mw, err := c.MinWise(ctx, "2min", "spider", "queen", 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, mw.Similarity, 0.5)
	assert.NotEmpty(t, mw.Sample)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalEvents)
	assert.Equal(t, 3, stats.BySpecies["spider"])

	events, err := c.Species(ctx, "butterfly", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "butterfly", events[0].Species)
	assert.Equal(t, event.KindPredatorAttack, events[1].Kind)

	events, err = c.HabitatEvent(ctx, "forest", event.KindBirth, 5)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "spider", events[0].Species)

	events, err = c.Recent(ctx, time.Minute)
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestClient_RemoteErrors(t *testing.T) {
	srv := startServer(t)
	c := connect(t, srv)
	ctx := context.Background()

	_, err := c.Cantidad(ctx, "7min")
	var remote *wire.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, errors.CodeInvalidWindow, remote.Code)

	resp, err := c.Query(ctx, "unknown", nil)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "Query not recognized", resp.Message)
}

func TestClient_ConcurrentRequests(t *testing.T) {
	srv := startServer(t)
	c := connect(t, srv)

	gt := htest.NewGoroutineTestWithTimeout(t, 10*time.Second)
	for i := 0; i < 16; i++ {
		gt.Go(func() error {
			for j := 0; j < 10; j++ {
				if _, err := c.Cantidad(context.Background(), "5min"); err != nil {
					return err
				}
			}
			return nil
		})
	}
	gt.Wait()
}

func TestClient_StateTransitions(t *testing.T) {
	srv := startServer(t)
	c := New(Config{Addr: srv.Addr().String()})

	_, err := c.Query(context.Background(), "stats", nil)
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, c.Connect(context.Background()))
	assert.ErrorIs(t, c.Connect(context.Background()), ErrAlreadyConnected)

	require.NoError(t, c.Close())
	assert.Equal(t, "closed", c.State())
	assert.ErrorIs(t, c.Connect(context.Background()), ErrClientClosed)
	assert.NoError(t, c.Close())
}

func TestClient_DisconnectCallback(t *testing.T) {
	srv := startServer(t)
	c := connect(t, srv)

	lost := make(chan error, 1)
	c.OnDisconnect(func(err error) { lost <- err })

	srv.Shutdown()

	select {
	case <-lost:
	case <-time.After(5 * time.Second):
		t.Fatal("disconnect callback not called")
	}
	assert.False(t, c.IsConnected())

	_, err := c.Stats(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClient_DialFailure(t *testing.T) {
	c := New(Config{Addr: "127.0.0.1:1", ConnectTimeout: time.Second})
	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, errors.ErrTransport)
	assert.Equal(t, "disconnected", c.State())
}

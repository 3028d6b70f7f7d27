package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/hivewatch/internal/event"
	htest "github.com/xtxerr/hivewatch/internal/testing"
)

func TestConcurrentIngestKeepsIndexesConsistent(t *testing.T) {
	const (
		writers   = 8
		perWriter = 250
		readers   = 4
	)

	clk := htest.NewClock()
	cfg := DefaultConfig()
	cfg.Now = clk.Now
	s, err := New(cfg)
	require.NoError(t, err)

	species := []string{"ant", "bee", "butterfly", "spider"}
	kinds := event.Kinds()

	done := make(chan struct{})
	readersDone := htest.NewGoroutineTest(t)
	for r := 0; r < readers; r++ {
		readersDone.Go(func() error {
			for {
				select {
				case <-done:
					return nil
				default:
				}
				snap, err := s.Snapshot("1min")
				if err != nil {
					return fmt.Errorf("snapshot: %w", err)
				}
				for _, ks := range snap {
					ks[0] = "" // copies must not alias store state
				}
				st := s.Stats()
				if st.TotalEvents < 0 {
					return fmt.Errorf("negative total")
				}
				s.QueryBySpecies("ant", 5)
			}
		})
	}

	writersDone := htest.NewGoroutineTest(t)
	for w := 0; w < writers; w++ {
		w := w
		writersDone.Go(func() error {
			for i := 0; i < perWriter; i++ {
				e := htest.Event(species[(w+i)%len(species)], "worker", kinds[i%len(kinds)], 0)
				e.ID = fmt.Sprintf("w%d-%d", w, i)
				if err := s.Ingest(e); err != nil {
					return fmt.Errorf("writer %d event %d: %w", w, i, err)
				}
			}
			return nil
		})
	}
	writersDone.Wait()
	close(done)
	readersDone.Wait()

	total := writers * perWriter
	assert.Equal(t, total, s.Len())
	for w := 0; w < writers; w++ {
		for i := 0; i < perWriter; i++ {
			_, ok := s.Get(fmt.Sprintf("w%d-%d", w, i))
			require.True(t, ok, "w%d-%d missing", w, i)
		}
	}
	checkIndexes(t, s)

	snap, err := s.Snapshot("1min")
	require.NoError(t, err)
	assert.Equal(t, total, snap.Len(), "every event lands in the window exactly once")
	for _, ks := range snap {
		for _, k := range ks {
			assert.NotEmpty(t, k)
		}
	}

	st := s.Stats()
	sum := 0
	for _, c := range st.BySpecies {
		sum += c
	}
	assert.Equal(t, total, sum)
	assert.Equal(t, total, st.WindowTotal("1hour"))
}

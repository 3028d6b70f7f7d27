// Package ingest feeds events into the store.
//
// A Source produces decoded events until its context ends. The Pipeline runs
// any number of sources, funnels their events through one channel and
// ingests them one at a time, so the store sees a single ingestion path.
package ingest

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/hivewatch/config"
	"github.com/xtxerr/hivewatch/internal/event"
	"github.com/xtxerr/hivewatch/internal/logging"
	"github.com/xtxerr/hivewatch/internal/metrics"
)

var log = logging.Component("ingest")

// Rejection reasons used in metrics.
const (
	ReasonDecode  = "decode"
	ReasonInvalid = "invalid"
)

// Source yields events on out until ctx ends. Run returns nil on a clean
// stop and must not close out.
type Source interface {
	Name() string
	Run(ctx context.Context, out chan<- Item) error
}

// Item is one event tagged with the source that produced it.
type Item struct {
	Source string
	Event  event.Event
}

// Ingester is the store's ingestion entry point.
type Ingester interface {
	Ingest(e event.Event) error
}

// =============================================================================
// Pipeline
// =============================================================================

// PipelineConfig holds pipeline options.
type PipelineConfig struct {
	// ChannelSize is the capacity of the decoded event channel.
	ChannelSize int

	// ProgressEvery logs a progress line every N ingested events.
	// Zero disables progress logging.
	ProgressEvery int
}

// Pipeline connects sources to the store.
type Pipeline struct {
	store   Ingester
	sources []Source
	cfg     PipelineConfig

	ingested uint64
	rejected uint64
}

// NewPipeline creates a pipeline.
func NewPipeline(st Ingester, cfg PipelineConfig, sources ...Source) *Pipeline {
	if cfg.ChannelSize <= 0 {
		cfg.ChannelSize = config.DefaultIngestChannelSize
	}
	return &Pipeline{store: st, sources: sources, cfg: cfg}
}

// Run starts every source and ingests until ctx ends or a source fails.
// Events already queued when the sources stop are still ingested.
func (p *Pipeline) Run(ctx context.Context) error {
	if len(p.sources) == 0 {
		return fmt.Errorf("ingest: no sources configured")
	}

	items := make(chan Item, p.cfg.ChannelSize)
	g, gctx := errgroup.WithContext(ctx)

	producers, pctx := errgroup.WithContext(gctx)
	for _, src := range p.sources {
		src := src
		log.Info("starting source", "source", src.Name())
		producers.Go(func() error {
			if err := src.Run(pctx, items); err != nil {
				return fmt.Errorf("source %s: %w", src.Name(), err)
			}
			return nil
		})
	}

	g.Go(func() error {
		err := producers.Wait()
		close(items)
		return err
	})

	g.Go(func() error {
		for it := range items {
			p.ingest(it)
		}
		return nil
	})

	err := g.Wait()
	log.Info("ingestion stopped", "ingested", p.ingested, "rejected", p.rejected)
	return err
}

func (p *Pipeline) ingest(it Item) {
	if err := p.store.Ingest(it.Event); err != nil {
		p.rejected++
		metrics.EventsRejectedTotal.WithLabelValues(it.Source, ReasonInvalid).Inc()
		log.Warn("event rejected", "source", it.Source, "id", it.Event.ID, "error", err)
		return
	}

	p.ingested++
	metrics.EventsIngestedTotal.WithLabelValues(it.Source).Inc()
	log.Debug("event ingested", "source", it.Source, "id", it.Event.ID,
		"species", it.Event.Species, "event", it.Event.Kind)

	if p.cfg.ProgressEvery > 0 && p.ingested%uint64(p.cfg.ProgressEvery) == 0 {
		log.Info("ingest progress", "ingested", p.ingested, "rejected", p.rejected)
	}
}

// Counts returns how many events were ingested and rejected. It is only
// meaningful after Run returns.
func (p *Pipeline) Counts() (ingested, rejected uint64) {
	return p.ingested, p.rejected
}

// send delivers an item unless ctx ends first.
func send(ctx context.Context, out chan<- Item, it Item) bool {
	select {
	case out <- it:
		return true
	case <-ctx.Done():
		return false
	}
}

package query

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/xtxerr/hivewatch/config"
	"github.com/xtxerr/hivewatch/internal/errors"
	"github.com/xtxerr/hivewatch/internal/event"
	"github.com/xtxerr/hivewatch/internal/logging"
	"github.com/xtxerr/hivewatch/internal/metrics"
	"github.com/xtxerr/hivewatch/internal/sketch"
	"github.com/xtxerr/hivewatch/internal/store"
)

var log = logging.Component("query")

// Store is the part of the store the engine reads.
type Store interface {
	Stats() store.Stats
	QueryBySpecies(species string, limit int) []event.Event
	QueryByHabitatAndEvent(habitat string, kind event.Kind, limit int) []event.Event
	RecentEvents(d time.Duration) []event.Event
	Snapshot(window string) (event.Snapshot, error)
	WindowDuration(window string) (time.Duration, error)
}

// Config holds synopsis parameters used when answering queries.
type Config struct {
	BloomFalsePositiveRate float64
	HLLPrecision           int
	MinWiseHashes          int
	MinWiseThreshold       float64
	MinWiseSampleSize      int
	BurstEvent             event.Kind
	DefaultLimit           int

	// Rand seeds representative sampling. Nil uses a time-seeded PCG.
	Rand rand.Source
}

// DefaultConfig returns the built-in synopsis parameters.
func DefaultConfig() Config {
	return Config{
		BloomFalsePositiveRate: config.DefaultBloomFalsePositiveRate,
		HLLPrecision:           config.DefaultHLLPrecision,
		MinWiseHashes:          config.DefaultMinWiseHashes,
		MinWiseThreshold:       config.DefaultMinWiseThreshold,
		MinWiseSampleSize:      config.DefaultMinWiseSampleSize,
		BurstEvent:             event.Kind(config.DefaultBurstEvent),
		DefaultLimit:           config.DefaultQueryLimit,
	}
}

// Engine answers requests from one store.
//
// Engine is safe for concurrent use as long as the configured Rand is.
// The default source is guarded by the engine.
type Engine struct {
	store Store
	cfg   Config
	rng   *lockedSource
}

// NewEngine creates an engine over s.
func NewEngine(s Store, cfg Config) *Engine {
	src := cfg.Rand
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>1|1)
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = config.DefaultQueryLimit
	}
	if cfg.MinWiseSampleSize <= 0 {
		cfg.MinWiseSampleSize = config.DefaultMinWiseSampleSize
	}
	if cfg.BurstEvent == "" {
		cfg.BurstEvent = event.Kind(config.DefaultBurstEvent)
	}
	return &Engine{store: s, cfg: cfg, rng: &lockedSource{src: src}}
}

// Defaults returns the values ParseRequest uses for optional params.
func (e *Engine) Defaults() Defaults {
	return Defaults{
		Limit:      e.cfg.DefaultLimit,
		SampleSize: e.cfg.MinWiseSampleSize,
		BurstKind:  e.cfg.BurstEvent,
	}
}

// Handle parses and answers one raw request. It never panics and never
// returns an error; failures become error results.
func (e *Engine) Handle(ctx context.Context, typ string, params map[string]any) (res Result) {
	start := time.Now()
	logger := logging.WithContext(ctx, log)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("query handler panic", "type", typ, "panic", r)
			res = Fail(fmt.Errorf("%w: %v", errors.ErrInternal, r))
		}
		label := typ
		if !known(typ) {
			label = "unknown"
		}
		metrics.ObserveQuery(label, res.Status, time.Since(start))
	}()

	req, err := ParseRequest(typ, params, e.Defaults())
	if err != nil {
		logger.Debug("request rejected", "type", typ, "error", err)
		return Fail(err)
	}

	data, err := e.Do(req)
	if err != nil {
		logger.Debug("query failed", "type", typ, "error", err)
		return Fail(err)
	}
	return Ok(data)
}

func known(typ string) bool {
	for _, t := range Types() {
		if string(t) == typ {
			return true
		}
	}
	return false
}

// Do answers a parsed request.
func (e *Engine) Do(req Request) (any, error) {
	switch r := req.(type) {
	case StatsRequest:
		return e.store.Stats(), nil
	case SpeciesRequest:
		return e.store.QueryBySpecies(r.Species, r.Limit), nil
	case HabitatEventRequest:
		return e.store.QueryByHabitatAndEvent(r.Habitat, r.Kind, r.Limit), nil
	case BloomFilterRequest:
		return e.bloom(r)
	case MinWiseRequest:
		return e.minWise(r)
	case CantidadRequest:
		return e.cantidad(r)
	case DGIMRequest:
		return e.dgim(r)
	case RecentRequest:
		return e.store.RecentEvents(r.Period), nil
	default:
		return nil, errors.ErrUnknownQuery
	}
}

// =============================================================================
// Synopsis Queries
// =============================================================================

func (e *Engine) bloom(r BloomFilterRequest) (BloomResult, error) {
	snap, err := e.store.Snapshot(r.Window)
	if err != nil {
		return BloomResult{}, err
	}

	res := BloomResult{
		Window:   r.Window,
		Key:      sketch.BloomKey(r.Species, r.Role, r.Kind),
		Inserted: snap.Len(),
	}
	if res.Inserted == 0 {
		return res, nil
	}

	bf, err := sketch.NewBloomFilter(res.Inserted, e.cfg.BloomFalsePositiveRate)
	if err != nil {
		return BloomResult{}, err
	}
	for key, kinds := range snap {
		for _, kind := range kinds {
			bf.Add(sketch.BloomKey(key.Species, key.Role, kind))
		}
	}

	res.Contains = bf.Contains(res.Key)
	res.Bits = bf.Size()
	res.Hashes = bf.HashCount()
	res.FalsePositiveRate = bf.EstimatedFalsePositiveRate(res.Inserted)
	return res, nil
}

// minWise compares the probe with one record per recorded kind. Window
// records carry age 0 because snapshots hold no ages.
func (e *Engine) minWise(r MinWiseRequest) (MinWiseResult, error) {
	snap, err := e.store.Snapshot(r.Window)
	if err != nil {
		return MinWiseResult{}, err
	}

	population, err := sketch.NewMinWiseSketch(e.cfg.MinWiseHashes)
	if err != nil {
		return MinWiseResult{}, err
	}
	for _, key := range snap.Keys() {
		for range snap[key] {
			population.Add(sketch.Record{Species: key.Species, Role: key.Role})
		}
	}

	probe, err := sketch.NewMinWiseSketch(e.cfg.MinWiseHashes)
	if err != nil {
		return MinWiseResult{}, err
	}
	probe.Add(sketch.Record{Species: r.Species, Role: r.Role, Age: r.Age})

	similarity, err := population.EstimateJaccardSimilarity(probe)
	if err != nil {
		return MinWiseResult{}, err
	}

	sample, err := population.RepresentativeSample(r.SampleSize, e.rng)
	if err != nil {
		return MinWiseResult{}, err
	}

	return MinWiseResult{
		Window:     r.Window,
		Records:    snap.Len(),
		Similarity: similarity,
		Redundant:  similarity >= e.cfg.MinWiseThreshold,
		Threshold:  e.cfg.MinWiseThreshold,
		Sample:     sample,
	}, nil
}

func (e *Engine) cantidad(r CantidadRequest) (CantidadResult, error) {
	snap, err := e.store.Snapshot(r.Window)
	if err != nil {
		return CantidadResult{}, err
	}

	hll, err := sketch.NewHyperLogLog(e.cfg.HLLPrecision)
	if err != nil {
		return CantidadResult{}, err
	}
	species := snap.Species()
	for _, sp := range species {
		hll.Add(sp)
	}

	return CantidadResult{
		Window:        r.Window,
		Species:       species,
		Estimate:      hll.Estimate(),
		StandardError: hll.StandardError(),
	}, nil
}

func (e *Engine) dgim(r DGIMRequest) (DGIMResult, error) {
	snap, err := e.store.Snapshot(r.Window)
	if err != nil {
		return DGIMResult{}, err
	}
	d, err := e.store.WindowDuration(r.Window)
	if err != nil {
		return DGIMResult{}, err
	}

	counter, err := sketch.NewSlidingWindowCounter(d)
	if err != nil {
		return DGIMResult{}, err
	}
	estimate := counter.EstimateFromData(snap, r.Kind)

	return DGIMResult{
		Window:   r.Window,
		Event:    string(r.Kind),
		Estimate: estimate,
		Buckets:  len(counter.Buckets()),
	}, nil
}

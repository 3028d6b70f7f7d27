// Package config provides configuration defaults and utilities
// for the hivewatch application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or command line flags.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultQueryListenAddress is the default query server listen address.
	// Override via config: server.listen
	DefaultQueryListenAddress = "127.0.0.1:9470"

	// DefaultIngestListenAddress is where JSON-lines event producers connect.
	// Override via config: ingest.listen
	DefaultIngestListenAddress = "127.0.0.1:9471"

	// DefaultAdminListenAddress serves /metrics, /healthz and /v1/stats.
	// Override via config: admin.listen
	DefaultAdminListenAddress = "127.0.0.1:9472"

	// DefaultMaxMessageSize limits protobuf message size to prevent OOM.
	// Snapshots of the 5min window are the largest responses; 16 MiB covers
	// several hundred thousand events.
	// Override via config: server.max_message_size
	DefaultMaxMessageSize = 16 * 1024 * 1024

	// DefaultMaxEventLineSize bounds a single JSON event line on the ingest socket.
	DefaultMaxEventLineSize = 64 * 1024

	// DefaultIdleTimeout closes query connections that send nothing for this
	// long. Zero disables the timeout.
	DefaultIdleTimeout = 10 * time.Minute

	// DefaultFaultLimit is how many malformed frames one peer may send within
	// DefaultFaultWindow before new connections from it are refused.
	DefaultFaultLimit = 5

	// DefaultFaultWindow is the period over which protocol faults are counted.
	DefaultFaultWindow = time.Minute
)

// =============================================================================
// Window Defaults
// =============================================================================

// Window names recognized by default.
const (
	Window1Min  = "1min"
	Window2Min  = "2min"
	Window5Min  = "5min"
	Window15Min = "15min"
	Window1Hour = "1hour"
)

// WindowDefault describes one of the built-in trailing windows.
type WindowDefault struct {
	Name     string
	Duration time.Duration

	// Sequences keeps per-(species, role) kind sequences that can be snapshotted.
	Sequences bool

	// Aggregates keeps counters reported by Stats.
	Aggregates bool
}

// DefaultWindows returns the built-in windows.
// Override via config: store.windows
func DefaultWindows() []WindowDefault {
	return []WindowDefault{
		{Name: Window1Min, Duration: time.Minute, Sequences: true, Aggregates: true},
		{Name: Window2Min, Duration: 2 * time.Minute, Sequences: true},
		{Name: Window5Min, Duration: 5 * time.Minute, Sequences: true, Aggregates: true},
		{Name: Window15Min, Duration: 15 * time.Minute, Aggregates: true},
		{Name: Window1Hour, Duration: time.Hour, Aggregates: true},
	}
}

// =============================================================================
// Eviction Defaults
// =============================================================================

const (
	// DefaultStaleMaxAge is the age after which events leave the primary store.
	// Override via config: store.stale_max_age
	DefaultStaleMaxAge = 2 * time.Hour

	// DefaultStaleInterval is how often stale eviction runs.
	// Override via config: store.stale_interval
	DefaultStaleInterval = 120 * time.Second
)

// =============================================================================
// Sketch Defaults
// =============================================================================

const (
	// DefaultBloomFalsePositiveRate sizes membership filters built per query.
	// Override via config: sketch.bloom_fp_rate
	DefaultBloomFalsePositiveRate = 0.03

	// DefaultHLLPrecision gives 4096 registers (about 1.6% standard error).
	// Override via config: sketch.hll_precision
	DefaultHLLPrecision = 12

	// DefaultMinWiseHashes is the number of min-hash slots.
	// Override via config: sketch.minwise_hashes
	DefaultMinWiseHashes = 128

	// DefaultMinWiseThreshold marks a probe as redundant with recent events.
	// Override via config: sketch.minwise_threshold
	DefaultMinWiseThreshold = 0.5

	// DefaultMinWiseSampleSize is the representative sample size when a
	// request does not name one.
	DefaultMinWiseSampleSize = 3

	// DefaultBurstEvent is the predicate counted by the sliding-window counter.
	// Override via config: sketch.dgim_event
	DefaultBurstEvent = "predator attack"

	// DefaultQueryLimit is the row limit for species and habitat queries.
	DefaultQueryLimit = 10
)

// =============================================================================
// Ingest Defaults
// =============================================================================

const (
	// DefaultSimulatorInterval is the mean delay between simulated events.
	// Override via config: ingest.simulator.interval
	DefaultSimulatorInterval = 2500 * time.Millisecond

	// DefaultIngestChannelSize is the capacity of the decoded event channel
	// between sources and the pipeline.
	DefaultIngestChannelSize = 1024

	// DefaultProgressEvery logs a progress line every N ingested events.
	DefaultProgressEvery = 10
)

// =============================================================================
// Shutdown Defaults
// =============================================================================

const (
	// DefaultShutdownTimeout bounds the admin HTTP server shutdown.
	DefaultShutdownTimeout = 5 * time.Second
)

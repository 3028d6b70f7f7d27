// Package loader - Configuration Types
//
// Defines the YAML configuration structure for hivewatchd.
//
//	log:       level and output format
//	server:    query listener, TLS, frame limits, fault limiting
//	admin:     HTTP metrics and stats endpoint
//	store:     trailing windows and stale eviction
//	sketch:    synopsis parameters used per query
//	ingest:    JSON-lines listener and built-in simulator
//	archive:   parquet files for evicted events
package loader

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/hivewatch/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for hivewatchd.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Server  ServerConfig  `yaml:"server"`
	Admin   AdminConfig   `yaml:"admin"`
	Store   StoreConfig   `yaml:"store"`
	Sketch  SketchConfig  `yaml:"sketch"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Archive ArchiveConfig `yaml:"archive"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn or error.
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "text" or "json".
	// Default: "text"
	Format string `yaml:"format"`
}

// =============================================================================
// Server Configuration
// =============================================================================

// ServerConfig configures the query listener.
type ServerConfig struct {
	// Listen is the query server address.
	// Default: "127.0.0.1:9470"
	Listen string `yaml:"listen"`

	// TLS configures transport layer security.
	TLS TLSConfig `yaml:"tls"`

	// MaxMessageSize bounds a single request frame.
	// Supports "16MB" style sizes. Default: 16MB
	MaxMessageSize ByteSize `yaml:"max_message_size"`

	// IdleTimeout closes connections that send nothing for this long.
	// Default: 10m
	IdleTimeout Duration `yaml:"idle_timeout"`

	// FaultLimit is how many malformed frames a peer may send per
	// FaultWindow before it is refused. 0 disables the limit.
	// Default: 5
	FaultLimit int `yaml:"fault_limit"`

	// FaultWindow is the period faults are counted over.
	// Default: 1m
	FaultWindow Duration `yaml:"fault_window"`
}

// TLSConfig configures transport layer security.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	// Leave empty to disable TLS.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// AdminConfig configures the admin HTTP server.
type AdminConfig struct {
	Enabled bool `yaml:"enabled"`

	// Listen is the admin address.
	// Default: "127.0.0.1:9472"
	Listen string `yaml:"listen"`
}

// =============================================================================
// Store Configuration
// =============================================================================

// StoreConfig configures the event store and its housekeeping.
type StoreConfig struct {
	// Windows replaces the built-in windows when set.
	Windows []WindowConfig `yaml:"windows"`

	// StaleMaxAge is the age after which events leave the primary store.
	// Default: 2h
	StaleMaxAge Duration `yaml:"stale_max_age"`

	// StaleInterval is how often stale eviction runs.
	// Default: 120s
	StaleInterval Duration `yaml:"stale_interval"`
}

// WindowConfig describes one named trailing window.
type WindowConfig struct {
	Name       string   `yaml:"name"`
	Duration   Duration `yaml:"duration"`
	Sequences  bool     `yaml:"sequences"`
	Aggregates bool     `yaml:"aggregates"`
}

// SketchConfig configures the synopses built per query.
type SketchConfig struct {
	BloomFalsePositiveRate float64 `yaml:"bloom_fp_rate"`
	HLLPrecision           int     `yaml:"hll_precision"`
	MinWiseHashes          int     `yaml:"minwise_hashes"`
	MinWiseThreshold       float64 `yaml:"minwise_threshold"`
	MinWiseSampleSize      int     `yaml:"minwise_sample"`

	// DGIMEvent is the event kind counted by dgim_filter by default.
	DGIMEvent string `yaml:"dgim_event"`

	// DefaultLimit caps species and habitat_event results when the
	// request gives no limit.
	DefaultLimit int `yaml:"default_limit"`
}

// =============================================================================
// Ingest Configuration
// =============================================================================

// IngestConfig configures event sources.
type IngestConfig struct {
	// Enabled turns on the JSON-lines TCP listener.
	Enabled bool `yaml:"enabled"`

	// Listen is the ingest address.
	// Default: "127.0.0.1:9471"
	Listen string `yaml:"listen"`

	// MaxLineSize bounds one JSON event line.
	// Default: 64KB
	MaxLineSize ByteSize `yaml:"max_line_size"`

	// ChannelSize is the decoded event buffer between sources and store.
	ChannelSize int `yaml:"channel_size"`

	Simulator SimulatorConfig `yaml:"simulator"`
}

// SimulatorConfig configures the in-process event simulator.
type SimulatorConfig struct {
	Enabled bool `yaml:"enabled"`

	// Interval is the mean delay between events.
	// Default: 2.5s
	Interval Duration `yaml:"interval"`
}

// ArchiveConfig configures the parquet sink for evicted events.
type ArchiveConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir receives evicted-<timestamp>.parquet files.
	Dir string `yaml:"dir"`

	// Compression is one of none, snappy, zstd, lz4 or gzip.
	// Default: "zstd"
	Compression string `yaml:"compression"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	windows := make([]WindowConfig, 0, len(config.DefaultWindows()))
	for _, w := range config.DefaultWindows() {
		windows = append(windows, WindowConfig{
			Name:       w.Name,
			Duration:   Duration(w.Duration),
			Sequences:  w.Sequences,
			Aggregates: w.Aggregates,
		})
	}

	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Server: ServerConfig{
			Listen:         config.DefaultQueryListenAddress,
			MaxMessageSize: ByteSize(config.DefaultMaxMessageSize),
			IdleTimeout:    Duration(config.DefaultIdleTimeout),
			FaultLimit:     config.DefaultFaultLimit,
			FaultWindow:    Duration(config.DefaultFaultWindow),
		},
		Admin: AdminConfig{
			Enabled: true,
			Listen:  config.DefaultAdminListenAddress,
		},
		Store: StoreConfig{
			Windows:       windows,
			StaleMaxAge:   Duration(config.DefaultStaleMaxAge),
			StaleInterval: Duration(config.DefaultStaleInterval),
		},
		Sketch: SketchConfig{
			BloomFalsePositiveRate: config.DefaultBloomFalsePositiveRate,
			HLLPrecision:           config.DefaultHLLPrecision,
			MinWiseHashes:          config.DefaultMinWiseHashes,
			MinWiseThreshold:       config.DefaultMinWiseThreshold,
			MinWiseSampleSize:      config.DefaultMinWiseSampleSize,
			DGIMEvent:              config.DefaultBurstEvent,
			DefaultLimit:           config.DefaultQueryLimit,
		},
		Ingest: IngestConfig{
			Enabled:     true,
			Listen:      config.DefaultIngestListenAddress,
			MaxLineSize: ByteSize(config.DefaultMaxEventLineSize),
			ChannelSize: config.DefaultIngestChannelSize,
			Simulator: SimulatorConfig{
				Interval: Duration(config.DefaultSimulatorInterval),
			},
		},
		Archive: ArchiveConfig{
			Dir:         "./archive",
			Compression: "zstd",
		},
	}
}

// =============================================================================
// Custom Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML.
// Plain integers are seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		var i int
		if err := unmarshal(&i); err != nil {
			return err
		}
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ByteSize is a size in bytes that can be unmarshaled from YAML.
// Supports: "16MB", "64KB", or plain bytes.
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		var i int64
		if err := unmarshal(&i); err != nil {
			return err
		}
		*b = ByteSize(i)
		return nil
	}
	size, err := parseByteSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(size)
	return nil
}

// byteUnits is ordered longest suffix first so "KB" wins over "B".
var byteUnits = []struct {
	suffix string
	mult   int64
}{
	{"TB", 1 << 40},
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// parseByteSize parses a size string like "16MB" or "64KB".
func parseByteSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}

	for _, u := range byteUnits {
		if strings.HasSuffix(s, u.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			n, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("parse byte size %q: %w", s, err)
			}
			return n * u.mult, nil
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse byte size %q: %w", s, err)
	}
	return n, nil
}

// Bytes returns the size in bytes.
func (b ByteSize) Bytes() int64 {
	return int64(b)
}

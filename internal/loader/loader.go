// Package loader handles configuration file loading, validation and
// conversion into the per-component configs.
//
// This package is responsible for:
//   - Loading YAML configuration files over the defaults
//   - Expanding environment variables
//   - Validating every section and reporting all problems at once
//   - Converting sections into store, query, server and maintenance configs
package loader

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/hivewatch/internal/archive"
	"github.com/xtxerr/hivewatch/internal/errors"
	"github.com/xtxerr/hivewatch/internal/event"
	"github.com/xtxerr/hivewatch/internal/ingest"
	"github.com/xtxerr/hivewatch/internal/logging"
	"github.com/xtxerr/hivewatch/internal/query"
	"github.com/xtxerr/hivewatch/internal/server"
	"github.com/xtxerr/hivewatch/internal/sketch"
	"github.com/xtxerr/hivewatch/internal/store"
)

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file. Unset fields keep their
// defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse expands environment variables in data and decodes it over cfg.
func Parse(data []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(data))

	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	// Log validation
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		errs.AddField("log.level", err.Error())
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs.AddField("log.format", fmt.Sprintf("%q is not text or json", cfg.Log.Format))
	}

	// Server validation
	if cfg.Server.Listen == "" {
		errs.AddField("server.listen", "cannot be empty")
	}
	if cfg.Server.MaxMessageSize.Bytes() <= 0 {
		errs.AddField("server.max_message_size", "must be positive")
	}
	if (cfg.Server.TLS.CertFile == "") != (cfg.Server.TLS.KeyFile == "") {
		errs.AddField("server.tls", "cert_file and key_file must be set together")
	}
	if cfg.Server.IdleTimeout < 0 {
		errs.AddField("server.idle_timeout", "cannot be negative")
	}
	if cfg.Server.FaultLimit > 0 && cfg.Server.FaultWindow <= 0 {
		errs.AddField("server.fault_window", "must be positive when fault_limit is set")
	}

	// Admin validation
	if cfg.Admin.Enabled && cfg.Admin.Listen == "" {
		errs.AddField("admin.listen", "cannot be empty when enabled")
	}

	// Store validation
	if err := ToStoreConfig(&cfg.Store).Validate(); err != nil {
		errs.Add(err)
	}
	if cfg.Store.StaleMaxAge <= 0 {
		errs.AddField("store.stale_max_age", "must be positive")
	}
	if cfg.Store.StaleInterval <= 0 {
		errs.AddField("store.stale_interval", "must be positive")
	}

	// Sketch validation
	s := cfg.Sketch
	if s.BloomFalsePositiveRate <= 0 || s.BloomFalsePositiveRate >= 1 {
		errs.AddField("sketch.bloom_fp_rate", "must be between 0 and 1 exclusive")
	}
	if s.HLLPrecision < sketch.MinHLLPrecision || s.HLLPrecision > sketch.MaxHLLPrecision {
		errs.AddField("sketch.hll_precision",
			fmt.Sprintf("must be in [%d, %d]", sketch.MinHLLPrecision, sketch.MaxHLLPrecision))
	}
	if s.MinWiseHashes <= 0 {
		errs.AddField("sketch.minwise_hashes", "must be positive")
	}
	if s.MinWiseThreshold < 0 || s.MinWiseThreshold > 1 {
		errs.AddField("sketch.minwise_threshold", "must be between 0 and 1")
	}
	if s.MinWiseSampleSize <= 0 {
		errs.AddField("sketch.minwise_sample", "must be positive")
	}
	if _, err := event.ParseKind(s.DGIMEvent); err != nil {
		errs.AddField("sketch.dgim_event", err.Error())
	}
	if s.DefaultLimit < 0 {
		errs.AddField("sketch.default_limit", "cannot be negative")
	}

	// Ingest validation
	if cfg.Ingest.Enabled {
		if cfg.Ingest.Listen == "" {
			errs.AddField("ingest.listen", "cannot be empty when enabled")
		}
		if cfg.Ingest.MaxLineSize.Bytes() <= 0 {
			errs.AddField("ingest.max_line_size", "must be positive")
		}
	}
	if cfg.Ingest.ChannelSize < 0 {
		errs.AddField("ingest.channel_size", "cannot be negative")
	}
	if cfg.Ingest.Simulator.Enabled && cfg.Ingest.Simulator.Interval <= 0 {
		errs.AddField("ingest.simulator.interval", "must be positive when enabled")
	}

	// Archive validation (if enabled)
	if cfg.Archive.Enabled {
		if cfg.Archive.Dir == "" {
			errs.AddField("archive.dir", "cannot be empty when enabled")
		}
		if _, err := archive.ParseCompression(cfg.Archive.Compression); err != nil {
			errs.AddField("archive.compression", err.Error())
		}
	}

	return errs.Err()
}

// =============================================================================
// Conversion
// =============================================================================

// ToStoreConfig converts the store section.
func ToStoreConfig(cfg *StoreConfig) store.Config {
	windows := make([]store.WindowConfig, len(cfg.Windows))
	for i, w := range cfg.Windows {
		windows[i] = store.WindowConfig{
			Name:       w.Name,
			Duration:   w.Duration.Duration(),
			Sequences:  w.Sequences,
			Aggregates: w.Aggregates,
		}
	}
	return store.Config{Windows: windows}
}

// ToQueryConfig converts the sketch section.
func ToQueryConfig(cfg *SketchConfig) query.Config {
	qc := query.DefaultConfig()
	qc.BloomFalsePositiveRate = cfg.BloomFalsePositiveRate
	qc.HLLPrecision = cfg.HLLPrecision
	qc.MinWiseHashes = cfg.MinWiseHashes
	qc.MinWiseThreshold = cfg.MinWiseThreshold
	qc.MinWiseSampleSize = cfg.MinWiseSampleSize
	qc.BurstEvent = event.Kind(cfg.DGIMEvent)
	qc.DefaultLimit = cfg.DefaultLimit
	return qc
}

// ToServerConfig converts the server section.
func ToServerConfig(cfg *ServerConfig) server.Config {
	return server.Config{
		Listen:         cfg.Listen,
		TLSCertFile:    cfg.TLS.CertFile,
		TLSKeyFile:     cfg.TLS.KeyFile,
		MaxMessageSize: int(cfg.MaxMessageSize.Bytes()),
		IdleTimeout:    cfg.IdleTimeout.Duration(),
		FaultLimit:     cfg.FaultLimit,
		FaultWindow:    cfg.FaultWindow.Duration(),
	}
}

// ToSimulatorConfig converts the simulator section.
func ToSimulatorConfig(cfg *SimulatorConfig) ingest.SimulatorConfig {
	return ingest.SimulatorConfig{Interval: cfg.Interval.Duration()}
}

// ToArchiveConfig converts the archive section. It returns false when
// archiving is disabled.
func ToArchiveConfig(cfg *ArchiveConfig) (archive.Config, bool) {
	if !cfg.Enabled {
		return archive.Config{}, false
	}
	return archive.Config{Dir: cfg.Dir, Compression: cfg.Compression}, true
}

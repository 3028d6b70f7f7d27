// hivewatchd is the insect event store and query server daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/hivewatch/internal/admin"
	"github.com/xtxerr/hivewatch/internal/archive"
	"github.com/xtxerr/hivewatch/internal/ingest"
	"github.com/xtxerr/hivewatch/internal/loader"
	"github.com/xtxerr/hivewatch/internal/logging"
	"github.com/xtxerr/hivewatch/internal/maintenance"
	"github.com/xtxerr/hivewatch/internal/query"
	"github.com/xtxerr/hivewatch/internal/server"
	"github.com/xtxerr/hivewatch/internal/store"
)

// Version is set at build time via ldflags
var Version = "dev"

var log = logging.Component("hivewatchd")

func main() {
	// CLI flags
	cfgPath := flag.String("config", "hivewatch.yaml", "config file path")
	listen := flag.String("listen", "", "query listen address (overrides config)")
	ingestListen := flag.String("ingest-listen", "", "ingest listen address (overrides config)")
	adminListen := flag.String("admin-listen", "", "admin listen address (overrides config)")
	noIngest := flag.Bool("no-ingest", false, "disable the TCP ingest listener")
	simulate := flag.Bool("simulate", false, "generate events in-process")
	archiveDir := flag.String("archive-dir", "", "archive evicted events to this directory")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("hivewatchd", Version)
		return
	}

	// Load config
	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loader.DefaultConfig()
	}

	// CLI overrides
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *ingestListen != "" {
		cfg.Ingest.Listen = *ingestListen
	}
	if *adminListen != "" {
		cfg.Admin.Listen = *adminListen
	}
	if *noIngest {
		cfg.Ingest.Enabled = false
	}
	if *simulate {
		cfg.Ingest.Simulator.Enabled = true
	}
	if *archiveDir != "" {
		cfg.Archive.Enabled = true
		cfg.Archive.Dir = *archiveDir
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	if err := loader.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	level, _ := logging.ParseLevel(cfg.Log.Level)
	logging.Init(level, cfg.Log.Format == "json")
	log.Info("hivewatchd starting", "version", Version, "config", *cfgPath)

	if err := run(cfg); err != nil {
		log.Error("hivewatchd failed", "error", err)
		os.Exit(1)
	}
	log.Info("hivewatchd stopped")
}

func run(cfg *loader.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// =========================================================================
	// Store and Query Engine
	// =========================================================================

	st, err := store.New(loader.ToStoreConfig(&cfg.Store))
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	for _, w := range st.Windows() {
		log.Info("window configured", "window", w.Name, "duration", w.Duration,
			"sequences", w.Sequences, "aggregates", w.Aggregates)
	}

	engine := query.NewEngine(st, loader.ToQueryConfig(&cfg.Sketch))

	// =========================================================================
	// Maintenance and Archive
	// =========================================================================

	mcfg := maintenance.Config{
		StaleMaxAge:   cfg.Store.StaleMaxAge.Duration(),
		StaleInterval: cfg.Store.StaleInterval.Duration(),
	}
	if acfg, ok := loader.ToArchiveConfig(&cfg.Archive); ok {
		arch, err := archive.New(acfg)
		if err != nil {
			return fmt.Errorf("create archive: %w", err)
		}
		mcfg.Sink = arch
		log.Info("archive enabled", "dir", arch.Dir(), "compression", cfg.Archive.Compression)
	}
	maint := maintenance.New(st, mcfg)

	// =========================================================================
	// Listeners
	// =========================================================================

	srv := server.New(loader.ToServerConfig(&cfg.Server), engine)
	if err := srv.Listen(); err != nil {
		return err
	}

	var sources []ingest.Source
	if cfg.Ingest.Enabled {
		tcp := ingest.NewTCPSource(cfg.Ingest.Listen, int(cfg.Ingest.MaxLineSize.Bytes()))
		if err := tcp.Listen(); err != nil {
			srv.Shutdown()
			return err
		}
		sources = append(sources, tcp)
	}
	if cfg.Ingest.Simulator.Enabled {
		sources = append(sources, ingest.NewSimulator(loader.ToSimulatorConfig(&cfg.Ingest.Simulator)))
	}

	var adm *admin.Server
	if cfg.Admin.Enabled {
		adm = admin.NewServer(cfg.Admin.Listen, st)
		if err := adm.Listen(); err != nil {
			srv.Shutdown()
			return err
		}
	}

	// =========================================================================
	// Run
	// =========================================================================

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return maint.Run(ctx) })

	if len(sources) > 0 {
		pipeline := ingest.NewPipeline(st, ingest.PipelineConfig{ChannelSize: cfg.Ingest.ChannelSize}, sources...)
		g.Go(func() error {
			err := pipeline.Run(ctx)
			ingested, rejected := pipeline.Counts()
			log.Info("ingest stopped", "ingested", ingested, "rejected", rejected)
			return err
		})
	} else {
		log.Warn("no event sources enabled")
	}

	if adm != nil {
		g.Go(func() error { return adm.Run(ctx) })
	}

	return g.Wait()
}

// hivewatch-sim streams simulated insect events to a hivewatchd ingest
// listener.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xtxerr/hivewatch/config"
	"github.com/xtxerr/hivewatch/internal/ingest"
	"github.com/xtxerr/hivewatch/internal/logging"
)

var log = logging.Component("hivewatch-sim")

func main() {
	addr := flag.String("addr", config.DefaultIngestListenAddress, "ingest listener address")
	interval := flag.Duration("interval", config.DefaultSimulatorInterval, "mean delay between events")
	count := flag.Int("count", 0, "stop after this many events (0 runs until interrupted)")
	seed := flag.Uint64("seed", 0, "random seed (0 seeds from the clock)")
	verbose := flag.Bool("v", false, "log every event sent")
	flag.Parse()

	level, _ := logging.ParseLevel("info")
	if *verbose {
		level, _ = logging.ParseLevel("debug")
	}
	logging.Init(level, false)

	cfg := ingest.SimulatorConfig{Interval: *interval, Limit: *count}
	if *seed != 0 {
		cfg.Rand = rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	sent, err := ingest.NewProducer(*addr, ingest.NewSimulator(cfg)).Run(ctx)
	log.Info("producer stopped", "sent", sent, "elapsed", time.Since(start).Round(time.Millisecond))
	if err != nil {
		fmt.Fprintf(os.Stderr, "hivewatch-sim: %v\n", err)
		os.Exit(1)
	}
}

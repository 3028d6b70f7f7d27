// Package archive writes events removed by stale eviction to parquet files.
//
// Each eviction pass produces one file named evicted-<timestamp>.parquet in
// the archive directory. Files can be read back with ReadFile for offline
// analysis; they are never loaded into the store.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/hivewatch/internal/event"
	"github.com/xtxerr/hivewatch/internal/logging"
	"github.com/xtxerr/hivewatch/internal/metrics"
)

var log = logging.Component("archive")

const (
	filePrefix = "evicted-"
	fileSuffix = ".parquet"

	// fileTimeLayout sorts lexically in time order.
	fileTimeLayout = "20060102T150405.000000000Z"
)

// Compression names accepted by ParseCompression.
const (
	CompressionNone   = "none"
	CompressionSnappy = "snappy"
	CompressionZstd   = "zstd"
	CompressionLZ4    = "lz4"
	CompressionGzip   = "gzip"
)

// ParseCompression validates a compression name. An empty name selects zstd.
func ParseCompression(name string) (string, error) {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "":
		return CompressionZstd, nil
	case CompressionNone, CompressionSnappy, CompressionZstd, CompressionLZ4, CompressionGzip:
		return n, nil
	default:
		return "", fmt.Errorf("unknown compression %q (use none, snappy, zstd, lz4 or gzip)", name)
	}
}

// codec returns the parquet-go codec for a validated compression name.
func codec(name string) compress.Codec {
	switch name {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// =============================================================================
// Rows
// =============================================================================

// Row is an event in parquet format.
type Row struct {
	ID                string  `parquet:"id,zstd"`
	Species           string  `parquet:"species,dict,zstd"`
	Role              string  `parquet:"role,dict,zstd"`
	Age               int32   `parquet:"age"`
	Kind              string  `parquet:"event,dict"`
	TimeNs            int64   `parquet:"event_time_ns"`
	Habitat           string  `parquet:"habitat,dict,zstd"`
	Latitude          float64 `parquet:"latitude"`
	Longitude         float64 `parquet:"longitude"`
	EcologicalImpact  float64 `parquet:"ecological_impact"`
	PopulationDensity float64 `parquet:"population_density"`
}

// EventToRow converts an Event to a Row.
func EventToRow(e *event.Event) Row {
	return Row{
		ID:                e.ID,
		Species:           e.Species,
		Role:              e.Role,
		Age:               int32(e.Age),
		Kind:              string(e.Kind),
		TimeNs:            e.Time.UnixNano(),
		Habitat:           e.Habitat,
		Latitude:          e.Latitude,
		Longitude:         e.Longitude,
		EcologicalImpact:  e.EcologicalImpact,
		PopulationDensity: e.PopulationDensity,
	}
}

// RowToEvent converts a Row back to an Event. Times come back in UTC.
func RowToEvent(r *Row) event.Event {
	return event.Event{
		ID:                r.ID,
		Species:           r.Species,
		Role:              r.Role,
		Age:               int(r.Age),
		Kind:              event.Kind(r.Kind),
		Time:              time.Unix(0, r.TimeNs).UTC(),
		Habitat:           r.Habitat,
		Latitude:          r.Latitude,
		Longitude:         r.Longitude,
		EcologicalImpact:  r.EcologicalImpact,
		PopulationDensity: r.PopulationDensity,
	}
}

// =============================================================================
// Archiver
// =============================================================================

// Config configures an Archiver.
type Config struct {
	// Dir receives the archive files. Created on first use.
	Dir string

	// Compression is one of none, snappy, zstd, lz4 or gzip.
	Compression string

	// Now stamps file names. Defaults to time.Now.
	Now func() time.Time
}

// Archiver writes each batch of evicted events to its own parquet file.
type Archiver struct {
	mu    sync.Mutex
	dir   string
	codec compress.Codec
	now   func() time.Time
	last  string
}

// New creates an Archiver.
func New(cfg Config) (*Archiver, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	name, err := ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Archiver{dir: cfg.Dir, codec: codec(name), now: cfg.Now}, nil
}

// Dir returns the archive directory.
func (a *Archiver) Dir() string {
	return a.dir
}

// Archive writes events to a new file. An empty batch writes nothing.
func (a *Archiver) Archive(events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	path := a.nextPath()
	if err := WriteFile(path, events, a.codec); err != nil {
		return err
	}
	a.last = path

	metrics.ArchivedRowsTotal.Add(float64(len(events)))
	log.Info("events archived", "path", path, "rows", len(events))
	return nil
}

// nextPath returns a file name that sorts after every earlier one, even
// when the clock does not advance between calls.
func (a *Archiver) nextPath() string {
	ts := a.now().UTC()
	for {
		path := filepath.Join(a.dir, filePrefix+ts.Format(fileTimeLayout)+fileSuffix)
		if path > a.last {
			return path
		}
		ts = ts.Add(time.Nanosecond)
	}
}

// Files lists the archive files in dir, oldest first.
func Files(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// =============================================================================
// File I/O
// =============================================================================

// WriteFile writes events to path with the given codec.
func WriteFile(path string, events []event.Event, c compress.Codec) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	rows := make([]Row, len(events))
	for i := range events {
		rows[i] = EventToRow(&events[i])
	}

	w := parquet.NewGenericWriter[Row](f, parquet.Compression(c))
	if _, err := w.Write(rows); err != nil {
		w.Close()
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("close writer: %w", err)
	}
	return f.Close()
}

// ReadFile reads every event from an archive file.
func ReadFile(path string) ([]event.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	r := parquet.NewGenericReader[Row](f)
	defer r.Close()

	rows := make([]Row, r.NumRows())
	n := 0
	for n < len(rows) {
		got, err := r.Read(rows[n:])
		n += got
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read rows %s: %w", path, err)
		}
		if got == 0 {
			break
		}
	}

	events := make([]event.Event, n)
	for i := 0; i < n; i++ {
		events[i] = RowToEvent(&rows[i])
	}
	return events, nil
}

package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/xtxerr/hivewatch/internal/event"
)

// LineWriter writes events in the producer JSON format, one per line.
type LineWriter struct {
	w *bufio.Writer
}

// NewLineWriter wraps w.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: bufio.NewWriter(w)}
}

// Write encodes and flushes one event.
func (lw *LineWriter) Write(e event.Event) error {
	data, err := event.Encode(e)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	if _, err := lw.w.Write(data); err != nil {
		return err
	}
	if err := lw.w.WriteByte('\n'); err != nil {
		return err
	}
	return lw.w.Flush()
}

// Producer streams events from a source to a remote ingest listener.
type Producer struct {
	addr string
	src  Source
}

// NewProducer creates a producer that dials addr.
func NewProducer(addr string, src Source) *Producer {
	return &Producer{addr: addr, src: src}
}

// Run dials the listener and forwards events until ctx ends, the source
// stops or a write fails. It returns the number of events sent.
func (p *Producer) Run(ctx context.Context) (int, error) {
	d := net.Dialer{Timeout: 10 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return 0, fmt.Errorf("dial ingest %s: %w", p.addr, err)
	}
	defer conn.Close()
	log.Info("producer connected", "addr", p.addr, "source", p.src.Name())

	items := make(chan Item)
	errc := make(chan error, 1)
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		errc <- p.src.Run(sctx, items)
		close(items)
	}()

	lw := NewLineWriter(conn)
	sent := 0
	for it := range items {
		if err := lw.Write(it.Event); err != nil {
			cancel()
			for range items {
			}
			return sent, fmt.Errorf("write event: %w", err)
		}
		sent++
		log.Debug("event sent", "id", it.Event.ID, "species", it.Event.Species, "event", it.Event.Kind)
	}
	return sent, <-errc
}

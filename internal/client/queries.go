package client

import (
	"context"
	"time"

	"github.com/xtxerr/hivewatch/internal/event"
	"github.com/xtxerr/hivewatch/internal/query"
	"github.com/xtxerr/hivewatch/internal/store"
)

// Stats returns the store summary.
func (c *Client) Stats(ctx context.Context) (store.Stats, error) {
	var out store.Stats
	err := c.call(ctx, string(query.TypeStats), nil, &out)
	return out, err
}

// Species lists up to limit events of a species. A limit of zero uses the
// server default.
func (c *Client) Species(ctx context.Context, species string, limit int) ([]event.Event, error) {
	params := map[string]any{"species": species}
	if limit > 0 {
		params["limit"] = limit
	}
	var out []event.Event
	err := c.call(ctx, string(query.TypeSpecies), params, &out)
	return out, err
}

// HabitatEvent lists up to limit events of kind seen in habitat.
func (c *Client) HabitatEvent(ctx context.Context, habitat string, kind event.Kind, limit int) ([]event.Event, error) {
	params := map[string]any{"habitat": habitat, "event": string(kind)}
	if limit > 0 {
		params["limit"] = limit
	}
	var out []event.Event
	err := c.call(ctx, string(query.TypeHabitatEvent), params, &out)
	return out, err
}

// Bloom probes a window for a (species, role, kind) triple.
func (c *Client) Bloom(ctx context.Context, window, species, role string, kind event.Kind) (query.BloomResult, error) {
	var out query.BloomResult
	err := c.call(ctx, string(query.TypeBloomFilter), map[string]any{
		"window": window, "species": species, "role": role, "event": string(kind),
	}, &out)
	return out, err
}

// MinWise compares a probe insect with a window. A sample of zero uses the
// server default.
func (c *Client) MinWise(ctx context.Context, window, species, role string, age, sample int) (query.MinWiseResult, error) {
	params := map[string]any{"window": window, "species": species, "role": role, "age": age}
	if sample > 0 {
		params["sample"] = sample
	}
	var out query.MinWiseResult
	err := c.call(ctx, string(query.TypeMinWise), params, &out)
	return out, err
}

// Cantidad counts distinct species in a window.
func (c *Client) Cantidad(ctx context.Context, window string) (query.CantidadResult, error) {
	var out query.CantidadResult
	err := c.call(ctx, string(query.TypeCantidad), map[string]any{"window": window}, &out)
	return out, err
}

// DGIM estimates how often kind occurred in a window. An empty kind uses the
// server's burst event.
func (c *Client) DGIM(ctx context.Context, window string, kind event.Kind) (query.DGIMResult, error) {
	params := map[string]any{"window": window}
	if kind != "" {
		params["event"] = string(kind)
	}
	var out query.DGIMResult
	err := c.call(ctx, string(query.TypeDGIM), params, &out)
	return out, err
}

// Recent returns raw events from the trailing period, truncated to seconds.
func (c *Client) Recent(ctx context.Context, period time.Duration) ([]event.Event, error) {
	var out []event.Event
	err := c.call(ctx, string(query.TypeRecent), map[string]any{"seconds": int(period / time.Second)}, &out)
	return out, err
}

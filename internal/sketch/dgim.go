package sketch

import (
	"time"

	"github.com/xtxerr/hivewatch/internal/errors"
	"github.com/xtxerr/hivewatch/internal/event"
)

// Bucket summarizes Size one-bits, the most recent of which arrived at Timestamp.
type Bucket struct {
	Timestamp time.Time
	Size      uint64
}

// SlidingWindowCounter is a DGIM counter for one-bits over a trailing window.
// At most two buckets of any size are kept.
type SlidingWindowCounter struct {
	window time.Duration

	// newest first; sizes are non-decreasing toward the end
	buckets []Bucket
}

// NewSlidingWindowCounter creates a counter over the given window.
func NewSlidingWindowCounter(window time.Duration) (*SlidingWindowCounter, error) {
	if window <= 0 {
		return nil, errors.NewInvalidValue("window", window, "must be positive")
	}
	return &SlidingWindowCounter{window: window}, nil
}

// Window returns the trailing window length.
func (c *SlidingWindowCounter) Window() time.Duration {
	return c.window
}

// AddBit observes one bit at ts. Timestamps must not go backwards.
func (c *SlidingWindowCounter) AddBit(bit bool, ts time.Time) {
	c.expire(ts)
	if !bit {
		return
	}

	c.buckets = append(c.buckets, Bucket{})
	copy(c.buckets[1:], c.buckets)
	c.buckets[0] = Bucket{Timestamp: ts, Size: 1}

	c.merge()
}

// expire drops buckets whose timestamp is at or before now - window.
func (c *SlidingWindowCounter) expire(now time.Time) {
	cutoff := now.Add(-c.window)
	n := len(c.buckets)
	for n > 0 && !c.buckets[n-1].Timestamp.After(cutoff) {
		n--
	}
	c.buckets = c.buckets[:n]
}

// merge combines the two oldest buckets of a size whenever three exist,
// cascading to the next size up.
func (c *SlidingWindowCounter) merge() {
	for size := uint64(1); ; size *= 2 {
		first, count := -1, 0
		for i, b := range c.buckets {
			if b.Size == size {
				if first < 0 {
					first = i
				}
				count++
			}
		}
		if count <= 2 {
			return
		}

		// With three buckets of this size at first, first+1 and first+2,
		// the two oldest are first+1 and first+2.
		newer, older := first+1, first+2
		c.buckets[newer] = Bucket{Timestamp: c.buckets[newer].Timestamp, Size: size * 2}
		c.buckets = append(c.buckets[:older], c.buckets[older+1:]...)
	}
}

// EstimateCount returns the approximate number of one-bits in the window.
// The oldest bucket counts half (rounded down) unless it holds a single bit.
func (c *SlidingWindowCounter) EstimateCount() uint64 {
	if len(c.buckets) == 0 {
		return 0
	}

	var total uint64
	last := len(c.buckets) - 1
	for _, b := range c.buckets[:last] {
		total += b.Size
	}

	oldest := c.buckets[last].Size
	if oldest == 1 {
		return total + 1
	}
	return total + oldest/2
}

// Buckets returns a copy of the buckets, newest first.
func (c *SlidingWindowCounter) Buckets() []Bucket {
	out := make([]Bucket, len(c.buckets))
	copy(out, c.buckets)
	return out
}

// replayOrigin anchors synthetic timestamps used by EstimateFromData.
var replayOrigin = time.Unix(0, 0).UTC()

// EstimateFromData resets the counter and replays a window snapshot as a bit
// stream: keys in sorted order, kinds in recorded order, bit set when the kind
// equals target. Synthetic timestamps increase strictly and all fall inside
// one window, so only merging (never expiry) shapes the result.
func (c *SlidingWindowCounter) EstimateFromData(snap event.Snapshot, target event.Kind) uint64 {
	c.buckets = c.buckets[:0]

	n := snap.Len()
	if n == 0 {
		return 0
	}

	step := c.window / time.Duration(n+1)
	if step <= 0 {
		step = time.Nanosecond
	}

	i := 0
	for _, key := range snap.Keys() {
		for _, kind := range snap[key] {
			i++
			c.AddBit(kind == target, replayOrigin.Add(time.Duration(i)*step))
		}
	}
	return c.EstimateCount()
}

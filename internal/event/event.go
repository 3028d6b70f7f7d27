// Package event defines insect population events as they flow through
// hivewatch: the Event record, the closed set of event kinds, the
// (species, role) key used by windows, and window snapshots.
package event

import (
	"fmt"
	"sort"
	"time"

	"github.com/xtxerr/hivewatch/internal/errors"
	"github.com/xtxerr/hivewatch/internal/validation"
)

// Kind is the type of an observed event.
type Kind string

const (
	KindBirth          Kind = "birth"
	KindDeath          Kind = "death"
	KindPredatorAttack Kind = "predator attack"
)

// Kinds returns the closed set of event kinds.
func Kinds() []Kind {
	return []Kind{KindBirth, KindDeath, KindPredatorAttack}
}

// ParseKind maps a string to a Kind, rejecting anything outside the closed set.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindBirth, KindDeath, KindPredatorAttack:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown event kind %q (use birth, death or predator attack)",
			errors.ErrInvalidEvent, s)
	}
}

// String returns the kind as it appears on the wire.
func (k Kind) String() string {
	return string(k)
}

// Event is a single observation. Events are immutable once ingested.
type Event struct {
	ID      string
	Species string
	Role    string
	Age     int
	Kind    Kind
	Time    time.Time
	Habitat string

	Latitude  float64
	Longitude float64

	EcologicalImpact  float64
	PopulationDensity float64
}

// Key returns the (species, role) pair the event is aggregated under.
func (e Event) Key() Key {
	return Key{Species: e.Species, Role: e.Role}
}

// AgeAt returns how long before now the event happened.
func (e Event) AgeAt(now time.Time) time.Duration {
	return now.Sub(e.Time)
}

// Validate checks all fields and reports every problem at once.
func (e Event) Validate() error {
	v := errors.NewValidationErrors()
	if err := validation.ValidateID(e.ID); err != nil {
		v.Add(fmt.Errorf("%w: %v", errors.ErrInvalidEvent, err))
	}
	if err := validation.ValidateSpecies(e.Species); err != nil {
		v.Add(fmt.Errorf("%w: %v", errors.ErrInvalidEvent, err))
	}
	if err := validation.ValidateRole(e.Role); err != nil {
		v.Add(fmt.Errorf("%w: %v", errors.ErrInvalidEvent, err))
	}
	if err := validation.ValidateHabitat(e.Habitat); err != nil {
		v.Add(fmt.Errorf("%w: %v", errors.ErrInvalidEvent, err))
	}
	if err := validation.ValidateAge(e.Age); err != nil {
		v.Add(fmt.Errorf("%w: %v", errors.ErrInvalidEvent, err))
	}
	if err := validation.ValidateCoordinates(e.Latitude, e.Longitude); err != nil {
		v.Add(fmt.Errorf("%w: %v", errors.ErrInvalidEvent, err))
	}
	if _, err := ParseKind(string(e.Kind)); err != nil {
		v.Add(err)
	}
	if e.Time.IsZero() {
		v.Add(fmt.Errorf("%w: missing event time", errors.ErrInvalidEvent))
	}
	return v.Err()
}

// =============================================================================
// Keys and Snapshots
// =============================================================================

// Key identifies a (species, role) pair.
type Key struct {
	Species string
	Role    string
}

// String joins species and role the same way sketch keys are joined.
func (k Key) String() string {
	return validation.JoinKey(k.Species, k.Role)
}

// Less orders keys by species, then role.
func (k Key) Less(o Key) bool {
	if k.Species != o.Species {
		return k.Species < o.Species
	}
	return k.Role < o.Role
}

// Snapshot is an independent copy of a window's kind sequences.
type Snapshot map[Key][]Kind

// Keys returns the snapshot keys in sorted order.
func (s Snapshot) Keys() []Key {
	keys := make([]Key, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Len returns the total number of kinds across all keys.
func (s Snapshot) Len() int {
	n := 0
	for _, kinds := range s {
		n += len(kinds)
	}
	return n
}

// Species returns the distinct species present, sorted.
func (s Snapshot) Species() []string {
	seen := make(map[string]struct{}, len(s))
	for k := range s {
		seen[k.Species] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for sp := range seen {
		out = append(out, sp)
	}
	sort.Strings(out)
	return out
}

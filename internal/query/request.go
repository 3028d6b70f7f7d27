// Package query is the boundary between clients and the store.
//
// A raw request (type plus loosely typed params) is parsed into one variant
// of a closed Request union and validated before dispatch. The Engine answers
// each variant from the store, building a fresh synopsis from one window
// snapshot where needed, and returns a Result that is either data or an
// error message.
package query

import (
	"fmt"
	"math"
	"time"

	"github.com/xtxerr/hivewatch/internal/errors"
	"github.com/xtxerr/hivewatch/internal/event"
	"github.com/xtxerr/hivewatch/internal/validation"
)

// Type names a request variant on the wire.
type Type string

const (
	TypeStats        Type = "stats"
	TypeSpecies      Type = "species"
	TypeHabitatEvent Type = "habitat_event"
	TypeBloomFilter  Type = "bloom_filter"
	TypeMinWise      Type = "minwise"
	TypeCantidad     Type = "cantidad"
	TypeDGIM         Type = "dgim_filter"
	TypeRecent       Type = "recent"
)

// Types returns every recognized request type.
func Types() []Type {
	return []Type{
		TypeStats, TypeSpecies, TypeHabitatEvent, TypeBloomFilter,
		TypeMinWise, TypeCantidad, TypeDGIM, TypeRecent,
	}
}

// Request is one parsed and validated query. The set of implementations is
// closed to this package.
type Request interface {
	Type() Type
	isRequest()
}

// =============================================================================
// Request Variants
// =============================================================================

// StatsRequest asks for the store summary.
type StatsRequest struct{}

// SpeciesRequest lists events of one species.
type SpeciesRequest struct {
	Species string
	Limit   int
}

// HabitatEventRequest lists events of one kind seen in one habitat.
type HabitatEventRequest struct {
	Habitat string
	Kind    event.Kind
	Limit   int
}

// BloomFilterRequest probes a window for a (species, role, kind) triple.
type BloomFilterRequest struct {
	Window  string
	Species string
	Role    string
	Kind    event.Kind
}

// MinWiseRequest compares a probe insect with the window population.
type MinWiseRequest struct {
	Window     string
	Species    string
	Role       string
	Age        int
	SampleSize int
}

// CantidadRequest counts distinct species in a window.
type CantidadRequest struct {
	Window string
}

// DGIMRequest estimates how often a kind occurred in a window.
type DGIMRequest struct {
	Window string
	Kind   event.Kind
}

// RecentRequest returns raw events from the trailing period for external
// consumers such as graph builders.
type RecentRequest struct {
	Period time.Duration
}

func (StatsRequest) Type() Type        { return TypeStats }
func (SpeciesRequest) Type() Type      { return TypeSpecies }
func (HabitatEventRequest) Type() Type { return TypeHabitatEvent }
func (BloomFilterRequest) Type() Type  { return TypeBloomFilter }
func (MinWiseRequest) Type() Type      { return TypeMinWise }
func (CantidadRequest) Type() Type     { return TypeCantidad }
func (DGIMRequest) Type() Type         { return TypeDGIM }
func (RecentRequest) Type() Type       { return TypeRecent }

func (StatsRequest) isRequest()        {}
func (SpeciesRequest) isRequest()      {}
func (HabitatEventRequest) isRequest() {}
func (BloomFilterRequest) isRequest()  {}
func (MinWiseRequest) isRequest()      {}
func (CantidadRequest) isRequest()     {}
func (DGIMRequest) isRequest()         {}
func (RecentRequest) isRequest()       {}

// =============================================================================
// Parsing
// =============================================================================

// Defaults fill optional params.
type Defaults struct {
	Limit      int
	SampleSize int
	BurstKind  event.Kind
}

// ParseRequest turns a raw request into a typed one. Unknown types yield
// ErrUnknownQuery; missing or mistyped params yield ErrInvalidParameters.
func ParseRequest(typ string, params map[string]any, d Defaults) (Request, error) {
	p := Params(params)

	switch Type(typ) {
	case TypeStats:
		return StatsRequest{}, nil

	case TypeSpecies:
		species, err := p.label("species", validation.ValidateSpecies)
		if err != nil {
			return nil, err
		}
		limit, err := p.Int("limit", d.Limit)
		if err != nil {
			return nil, err
		}
		return SpeciesRequest{Species: species, Limit: limit}, nil

	case TypeHabitatEvent:
		habitat, err := p.label("habitat", validation.ValidateHabitat)
		if err != nil {
			return nil, err
		}
		kind, err := p.kind("event", "")
		if err != nil {
			return nil, err
		}
		limit, err := p.Int("limit", d.Limit)
		if err != nil {
			return nil, err
		}
		return HabitatEventRequest{Habitat: habitat, Kind: kind, Limit: limit}, nil

	case TypeBloomFilter:
		window, err := p.String("window")
		if err != nil {
			return nil, err
		}
		species, err := p.label("species", validation.ValidateSpecies)
		if err != nil {
			return nil, err
		}
		role, err := p.label("role", validation.ValidateRole)
		if err != nil {
			return nil, err
		}
		kind, err := p.kind("event", "")
		if err != nil {
			return nil, err
		}
		return BloomFilterRequest{Window: window, Species: species, Role: role, Kind: kind}, nil

	case TypeMinWise:
		window, err := p.String("window")
		if err != nil {
			return nil, err
		}
		species, err := p.label("species", validation.ValidateSpecies)
		if err != nil {
			return nil, err
		}
		role, err := p.label("role", validation.ValidateRole)
		if err != nil {
			return nil, err
		}
		age, err := p.Int("age", 0)
		if err != nil {
			return nil, err
		}
		if err := validation.ValidateAge(age); err != nil {
			return nil, errors.NewInvalidValue("age", age, err.Error())
		}
		sample, err := p.Int("sample", d.SampleSize)
		if err != nil {
			return nil, err
		}
		if sample <= 0 {
			return nil, errors.NewInvalidValue("sample", sample, "must be positive")
		}
		return MinWiseRequest{Window: window, Species: species, Role: role, Age: age, SampleSize: sample}, nil

	case TypeCantidad:
		window, err := p.String("window")
		if err != nil {
			return nil, err
		}
		return CantidadRequest{Window: window}, nil

	case TypeDGIM:
		window, err := p.String("window")
		if err != nil {
			return nil, err
		}
		kind, err := p.kind("event", d.BurstKind)
		if err != nil {
			return nil, err
		}
		return DGIMRequest{Window: window, Kind: kind}, nil

	case TypeRecent:
		seconds, err := p.Int("seconds", -1)
		if err != nil {
			return nil, err
		}
		if seconds <= 0 {
			return nil, errors.NewInvalidValue("seconds", seconds, "must be a positive number of seconds")
		}
		return RecentRequest{Period: time.Duration(seconds) * time.Second}, nil

	default:
		return nil, errors.ErrUnknownQuery
	}
}

// =============================================================================
// Params
// =============================================================================

// Params are the loosely typed request parameters. Numbers arrive as float64
// when decoded from JSON or protobuf Struct values.
type Params map[string]any

// String returns a required non-empty string param.
func (p Params) String(name string) (string, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: missing %q", errors.ErrInvalidParameters, name)
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.NewInvalidValue(name, v, fmt.Sprintf("expected string, got %T", v))
	}
	if s == "" {
		return "", fmt.Errorf("%w: %q is empty", errors.ErrInvalidParameters, name)
	}
	return s, nil
}

// Int returns an integer param, or def when it is absent.
func (p Params) Int(name string, def int) (int, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.Abs(n) > math.MaxInt32 {
			return 0, errors.NewInvalidValue(name, v, "expected an integer")
		}
		return int(n), nil
	default:
		return 0, errors.NewInvalidValue(name, v, fmt.Sprintf("expected number, got %T", v))
	}
}

func (p Params) label(name string, check func(string) error) (string, error) {
	s, err := p.String(name)
	if err != nil {
		return "", err
	}
	if err := check(s); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidParameters, err)
	}
	return s, nil
}

func (p Params) kind(name string, def event.Kind) (event.Kind, error) {
	if _, ok := p[name]; !ok && def != "" {
		return def, nil
	}
	s, err := p.String(name)
	if err != nil {
		return "", err
	}
	k, err := event.ParseKind(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidParameters, err)
	}
	return k, nil
}

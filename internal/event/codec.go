package event

import (
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xtxerr/hivewatch/internal/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ProducerTimeLayout is the timestamp layout written by event producers.
// It carries an optional trailing " Z" which is stripped before parsing.
const ProducerTimeLayout = "2006-01-02T15:04:05"

// record is the producer JSON format.
type record struct {
	ID     string `json:"_id"`
	Insect struct {
		Species string `json:"species"`
		Role    string `json:"role"`
		Age     int    `json:"age"`
	} `json:"insect"`
	Event     string `json:"event"`
	EventTime string `json:"eventTime"`
	Location  struct {
		Habitat     string `json:"habitat"`
		Coordinates struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"coordinates"`
	} `json:"location"`
	EcologicalImpact  float64 `json:"ecologicalImpact"`
	PopulationDensity float64 `json:"populationDensity"`
}

// Decode parses one producer JSON document into a validated Event.
func Decode(data []byte) (Event, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return Event{}, fmt.Errorf("%w: %v", errors.ErrInvalidEvent, err)
	}

	ts, err := ParseTime(r.EventTime)
	if err != nil {
		return Event{}, err
	}
	kind, err := ParseKind(r.Event)
	if err != nil {
		return Event{}, err
	}

	e := Event{
		ID:                r.ID,
		Species:           r.Insect.Species,
		Role:              r.Insect.Role,
		Age:               r.Insect.Age,
		Kind:              kind,
		Time:              ts,
		Habitat:           r.Location.Habitat,
		Latitude:          r.Location.Coordinates.Latitude,
		Longitude:         r.Location.Coordinates.Longitude,
		EcologicalImpact:  r.EcologicalImpact,
		PopulationDensity: r.PopulationDensity,
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Encode writes an Event in the producer JSON format.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(toRecord(e))
}

// MarshalJSON renders the event in the producer format so query results
// look like the documents that were ingested.
func (e Event) MarshalJSON() ([]byte, error) {
	return Encode(e)
}

// UnmarshalJSON reads the producer format and validates the result.
func (e *Event) UnmarshalJSON(data []byte) error {
	d, err := Decode(data)
	if err != nil {
		return err
	}
	*e = d
	return nil
}

func toRecord(e Event) record {
	var r record
	r.ID = e.ID
	r.Insect.Species = e.Species
	r.Insect.Role = e.Role
	r.Insect.Age = e.Age
	r.Event = string(e.Kind)
	r.EventTime = e.Time.UTC().Format(time.RFC3339)
	r.Location.Habitat = e.Habitat
	r.Location.Coordinates.Latitude = e.Latitude
	r.Location.Coordinates.Longitude = e.Longitude
	r.EcologicalImpact = e.EcologicalImpact
	r.PopulationDensity = e.PopulationDensity
	return r
}

// ParseTime accepts RFC3339 or the producer layout with an optional " Z".
// Times without a zone are taken as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: missing eventTime", errors.ErrInvalidEvent)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	trimmed := strings.TrimSpace(strings.TrimSuffix(s, "Z"))
	t, err := time.ParseInLocation(ProducerTimeLayout, trimmed, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: eventTime %q: %v", errors.ErrInvalidEvent, s, err)
	}
	return t, nil
}

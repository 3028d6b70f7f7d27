package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/hivewatch/internal/errors"
)

const producerDoc = `{"_id": "4c2b6a0e-7a55-4a8c-b0f3-9a8f5d0d1e21",
 "insect": {"species": "spider", "role": "queen", "age": 3},
 "event": "predator attack", "eventTime": "2024-05-01T10:20:30 Z",
 "location": {"habitat": "forest", "coordinates": {"latitude": 40.4, "longitude": -3.7}}}`

func TestDecodeProducerDocument(t *testing.T) {
	e, err := Decode([]byte(producerDoc))
	require.NoError(t, err)

	assert.Equal(t, "4c2b6a0e-7a55-4a8c-b0f3-9a8f5d0d1e21", e.ID)
	assert.Equal(t, "spider", e.Species)
	assert.Equal(t, "queen", e.Role)
	assert.Equal(t, 3, e.Age)
	assert.Equal(t, KindPredatorAttack, e.Kind)
	assert.Equal(t, "forest", e.Habitat)
	assert.InDelta(t, 40.4, e.Latitude, 1e-9)
	assert.InDelta(t, -3.7, e.Longitude, 1e-9)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC), e.Time)
	assert.Equal(t, Key{Species: "spider", Role: "queen"}, e.Key())
}

func TestParseTimeLayouts(t *testing.T) {
	want := time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC)

	tests := []struct {
		name  string
		input string
	}{
		{"producer with zone suffix", "2024-05-01T10:20:30 Z"},
		{"producer bare", "2024-05-01T10:20:30"},
		{"rfc3339 utc", "2024-05-01T10:20:30Z"},
		{"rfc3339 offset", "2024-05-01T12:20:30+02:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTime(tt.input)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %v", got)
		})
	}
}

func TestDecodeRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{"_id":`},
		{"unknown kind", `{"_id":"a","insect":{"species":"ant","role":"worker","age":1},"event":"molt","eventTime":"2024-05-01T10:20:30","location":{"habitat":"field"}}`},
		{"bad time", `{"_id":"a","insect":{"species":"ant","role":"worker","age":1},"event":"birth","eventTime":"yesterday","location":{"habitat":"field"}}`},
		{"missing species", `{"_id":"a","insect":{"role":"worker","age":1},"event":"birth","eventTime":"2024-05-01T10:20:30","location":{"habitat":"field"}}`},
		{"latitude out of range", `{"_id":"a","insect":{"species":"ant","role":"worker","age":1},"event":"birth","eventTime":"2024-05-01T10:20:30","location":{"habitat":"field","coordinates":{"latitude":91}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidEvent), "error %v should wrap ErrInvalidEvent", err)
		})
	}
}

func TestEncodeDecodeKeepsFields(t *testing.T) {
	orig := Event{
		ID: "evt-1", Species: "bee", Role: "worker", Age: 2, Kind: KindBirth,
		Time:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Habitat: "garden", Latitude: 1.5, Longitude: 2.5,
		EcologicalImpact: -12, PopulationDensity: 400,
	}

	data, err := Encode(orig)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, orig, got)
}

func TestSnapshotHelpers(t *testing.T) {
	snap := Snapshot{
		{Species: "spider", Role: "queen"}:    {KindDeath, KindBirth, KindDeath},
		{Species: "butterfly", Role: "queen"}: {KindDeath, KindPredatorAttack},
		{Species: "butterfly", Role: "drone"}: {KindBirth},
	}

	assert.Equal(t, []Key{
		{Species: "butterfly", Role: "drone"},
		{Species: "butterfly", Role: "queen"},
		{Species: "spider", Role: "queen"},
	}, snap.Keys())
	assert.Equal(t, 6, snap.Len())
	assert.Equal(t, []string{"butterfly", "spider"}, snap.Species())
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("Birth")
	assert.Error(t, err)
}

func TestEventJSONRoundTripThroughSlice(t *testing.T) {
	in, err := Decode([]byte(producerDoc))
	require.NoError(t, err)

	data, err := json.Marshal([]Event{in})
	require.NoError(t, err)

	var out []Event
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, 1)
	assert.Equal(t, in, out[0])
}

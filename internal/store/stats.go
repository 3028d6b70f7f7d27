package store

import (
	"math"

	"github.com/DataDog/sketches-go/ddsketch"
	"gonum.org/v1/gonum/stat"
)

// Stats is a point-in-time summary of the store.
type Stats struct {
	TotalEvents int            `json:"total_insects"`
	BySpecies   map[string]int `json:"by_species"`
	ByRole      map[string]int `json:"by_role"`
	ByHabitat   map[string]int `json:"by_habitat"`
	ByEvent     map[string]int `json:"by_event"`

	// TimeWindows maps an aggregate window to counts per "species_role".
	TimeWindows map[string]map[string]int `json:"time_windows"`

	Trends Trends `json:"trends"`

	// Distributions summarizes numeric fields over the primary store:
	// "age", "ecological_impact" and "population_density".
	Distributions map[string]Distribution `json:"distributions"`
}

// Trends break aggregate windows down by kind and by species.
type Trends struct {
	// Events maps window -> kind -> species -> count.
	Events map[string]map[string]map[string]int `json:"events"`

	// Species maps window -> species -> count.
	Species map[string]map[string]int `json:"species"`
}

// Distribution describes one numeric field.
type Distribution struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	P99    float64 `json:"p99"`
}

// Distribution field names.
const (
	FieldAge               = "age"
	FieldEcologicalImpact  = "ecological_impact"
	FieldPopulationDensity = "population_density"
)

// percentileAccuracy is the DDSketch relative accuracy.
const percentileAccuracy = 0.01

// Stats returns a summary of the store. Counters are copied under the lock;
// distributions are computed after it is released.
func (s *Store) Stats() Stats {
	st, values := s.statsLocked()

	st.Distributions = make(map[string]Distribution, len(values))
	for field, xs := range values {
		st.Distributions[field] = summarize(xs)
	}
	return st
}

// statsLocked takes the lock for the copy phase only.
func (s *Store) statsLocked() (Stats, map[string][]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		TotalEvents: len(s.events),
		BySpecies:   s.bySpecies.counts(),
		ByRole:      s.byRole.counts(),
		ByHabitat:   s.byHabitat.counts(),
		ByEvent:     s.byKind.counts(),
		TimeWindows: make(map[string]map[string]int),
		Trends: Trends{
			Events:  make(map[string]map[string]map[string]int),
			Species: make(map[string]map[string]int),
		},
	}

	for _, name := range s.windowOrder {
		w := s.windows[name]
		if !w.cfg.Aggregates {
			continue
		}

		counts := make(map[string]int, len(w.counts))
		for k, c := range w.counts {
			counts[k.String()] = c
		}
		st.TimeWindows[name] = counts

		kinds := make(map[string]map[string]int, len(w.kindTrends))
		for kind, bySpecies := range w.kindTrends {
			kinds[string(kind)] = copyCounts(bySpecies)
		}
		st.Trends.Events[name] = kinds
		st.Trends.Species[name] = copyCounts(w.speciesTrends)
	}

	n := len(s.events)
	values := map[string][]float64{
		FieldAge:               make([]float64, 0, n),
		FieldEcologicalImpact:  make([]float64, 0, n),
		FieldPopulationDensity: make([]float64, 0, n),
	}
	for _, ent := range s.events {
		values[FieldAge] = append(values[FieldAge], float64(ent.ev.Age))
		values[FieldEcologicalImpact] = append(values[FieldEcologicalImpact], ent.ev.EcologicalImpact)
		values[FieldPopulationDensity] = append(values[FieldPopulationDensity], ent.ev.PopulationDensity)
	}
	return st, values
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// summarize computes moments with gonum and percentiles with DDSketch.
func summarize(xs []float64) Distribution {
	d := Distribution{Count: len(xs)}
	if len(xs) == 0 {
		return d
	}

	d.Min, d.Max = math.MaxFloat64, -math.MaxFloat64
	for _, x := range xs {
		d.Min = math.Min(d.Min, x)
		d.Max = math.Max(d.Max, x)
	}

	if len(xs) == 1 {
		d.Mean = xs[0]
	} else {
		d.Mean, d.StdDev = stat.MeanStdDev(xs, nil)
	}

	sketch, err := ddsketch.NewDefaultDDSketch(percentileAccuracy)
	if err != nil {
		log.Warn("percentile sketch unavailable", "error", err)
		return d
	}
	for _, x := range xs {
		if err := sketch.Add(x); err != nil {
			log.Debug("value rejected by percentile sketch", "value", x, "error", err)
		}
	}
	d.P50, _ = sketch.GetValueAtQuantile(0.50)
	d.P90, _ = sketch.GetValueAtQuantile(0.90)
	d.P99, _ = sketch.GetValueAtQuantile(0.99)
	return d
}

// windowTotal sums a window's per-key counts, used for progress logging.
func windowTotal(counts map[string]int) int {
	total := 0
	for _, c := range counts {
		total += c
	}
	return total
}

// WindowTotal returns the number of events counted in an aggregate window.
func (st Stats) WindowTotal(name string) int {
	return windowTotal(st.TimeWindows[name])
}

package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/xtxerr/hivewatch/internal/event"
	"github.com/xtxerr/hivewatch/internal/query"
	"github.com/xtxerr/hivewatch/internal/store"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	return t
}

func renderEvents(w io.Writer, events []event.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "no events")
		return
	}
	t := newTable(w, "id", "species", "role", "age", "event", "habitat", "when", "impact", "density")
	for _, e := range events {
		t.Append([]string{
			e.ID,
			e.Species,
			e.Role,
			strconv.Itoa(e.Age),
			string(e.Kind),
			e.Habitat,
			humanize.Time(e.Time),
			strconv.FormatFloat(e.EcologicalImpact, 'f', 1, 64),
			humanize.Ftoa(e.PopulationDensity),
		})
	}
	t.Render()
	fmt.Fprintf(w, "%s events\n", humanize.Comma(int64(len(events))))
}

// renderCounts prints a name/count table sorted by count, then name.
func renderCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	t := newTable(w, title, "count")
	t.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	for _, name := range names {
		t.Append([]string{name, humanize.Comma(int64(counts[name]))})
	}
	t.Render()
}

func renderStats(w io.Writer, st store.Stats) {
	fmt.Fprintf(w, "total insects: %s\n", humanize.Comma(int64(st.TotalEvents)))
	renderCounts(w, "species", st.BySpecies)
	renderCounts(w, "role", st.ByRole)
	renderCounts(w, "habitat", st.ByHabitat)
	renderCounts(w, "event", st.ByEvent)

	if len(st.TimeWindows) > 0 {
		windows := make([]string, 0, len(st.TimeWindows))
		for name := range st.TimeWindows {
			windows = append(windows, name)
		}
		sort.Strings(windows)

		t := newTable(w, "window", "events", "keys", "top species")
		for _, name := range windows {
			t.Append([]string{
				name,
				humanize.Comma(int64(st.WindowTotal(name))),
				strconv.Itoa(len(st.TimeWindows[name])),
				topSpecies(st.Trends.Species[name]),
			})
		}
		t.Render()
	}

	if len(st.Distributions) > 0 {
		t := newTable(w, "field", "count", "min", "mean", "stddev", "p50", "p90", "p99", "max")
		for _, field := range []string{store.FieldAge, store.FieldEcologicalImpact, store.FieldPopulationDensity} {
			d, ok := st.Distributions[field]
			if !ok {
				continue
			}
			t.Append([]string{
				field,
				humanize.Comma(int64(d.Count)),
				num(d.Min), num(d.Mean), num(d.StdDev),
				num(d.P50), num(d.P90), num(d.P99), num(d.Max),
			})
		}
		t.Render()
	}
}

func topSpecies(counts map[string]int) string {
	best, n := "-", 0
	for sp, c := range counts {
		if c > n || (c == n && sp < best) {
			best, n = sp, c
		}
	}
	if n == 0 {
		return "-"
	}
	return fmt.Sprintf("%s (%d)", best, n)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func renderBloom(w io.Writer, r query.BloomResult) {
	t := newTable(w, "window", "key", "present", "inserted", "bits", "hashes", "fp rate")
	t.Append([]string{
		r.Window, r.Key, yesNo(r.Contains),
		humanize.Comma(int64(r.Inserted)),
		humanize.Comma(int64(r.Bits)),
		strconv.Itoa(r.Hashes),
		strconv.FormatFloat(r.FalsePositiveRate, 'g', 3, 64),
	})
	t.Render()
}

func renderMinWise(w io.Writer, r query.MinWiseResult) {
	fmt.Fprintf(w, "window %s: %s records, similarity %.3f (threshold %.2f), redundant: %s\n",
		r.Window, humanize.Comma(int64(r.Records)), r.Similarity, r.Threshold, yesNo(r.Redundant))
	if len(r.Sample) == 0 {
		return
	}
	t := newTable(w, "sample species", "role", "age")
	for _, rec := range r.Sample {
		t.Append([]string{rec.Species, rec.Role, strconv.Itoa(rec.Age)})
	}
	t.Render()
}

func renderCantidad(w io.Writer, r query.CantidadResult) {
	fmt.Fprintf(w, "window %s: about %s distinct species (±%.1f%%)\n",
		r.Window, humanize.Comma(int64(r.Estimate)), r.StandardError*100)
	for _, sp := range r.Species {
		fmt.Fprintf(w, "  %s\n", sp)
	}
}

func renderDGIM(w io.Writer, r query.DGIMResult) {
	fmt.Fprintf(w, "window %s: about %s %q events (%d buckets)\n",
		r.Window, humanize.Comma(int64(r.Estimate)), r.Event, r.Buckets)
}

func renderHelp(w io.Writer, commands []command) {
	t := newTable(w, "command", "description")
	t.SetBorder(false)
	for _, c := range commands {
		t.Append([]string{c.usage, c.help})
	}
	t.Render()
	fmt.Fprintln(w, `event kinds: birth, death, "predator attack" (or predator_attack)`)
}

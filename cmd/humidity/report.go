package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/era5-humidity-service/internal/domain"
)

func printCount(w io.Writer, window domain.TimeWindow, region domain.Region, n int) {
	fmt.Fprintf(w, "Start:  %s\n", window.Start.Format(time.DateOnly))
	fmt.Fprintf(w, "End:    %s\n", window.End.Format(time.DateOnly))
	fmt.Fprintf(w, "Region: %s\n", region)
	fmt.Fprintf(w, "Grids:  %d\n", n)
}

func printReport(w io.Writer, m domain.HumidityMap) {
	printCount(w, m.Window, m.Region, m.GridCount)
	if m.Empty() {
		fmt.Fprintf(w, "No grids found between %s and %s.\n",
			m.Window.Start.Format(time.DateOnly), m.Window.End.Format(time.DateOnly))
		return
	}
	s := m.Summary
	fmt.Fprintf(w, "Size:   %dx%d (%d missing)\n", m.Aggregate.Band.Rows, m.Aggregate.Band.Cols, s.Missing)
	fmt.Fprintf(w, "RH %%:   min %.1f  mean %.1f  max %.1f\n", s.Min, s.Mean, s.Max)
	fmt.Fprintln(w)
	printLegend(w, m.Legend)
}

func printLegend(w io.Writer, legend domain.Legend) {
	fmt.Fprintln(w, legend.Title)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range legend.Entries {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", e.Color.Hex, e.Color.Name, e.Label)
	}
	tw.Flush()
}

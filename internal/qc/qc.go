// Package qc summarises the matchups of a run for quick inspection: counts
// per day, time and distance statistics, a location plot and a daily chart.
package qc

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/matchup/internal/geometry"
	"github.com/banshee-data/matchup/internal/matchup"
)

// ErrEmpty is returned when there is nothing to plot.
var ErrEmpty = errors.New("no matchups")

// Stats describes one quantity over all matchups.
type Stats struct {
	N      int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

func newStats(x []float64) Stats {
	if len(x) == 0 {
		return Stats{}
	}
	s := Stats{N: len(x), Min: floats.Min(x), Max: floats.Max(x)}
	s.Mean, s.StdDev = stat.MeanStdDev(x, nil)
	if len(x) == 1 {
		s.StdDev = 0
	}
	return s
}

// Report is the summary of a collection. TimeDelta is in seconds
// (secondary minus primary), Distance in kilometres; both use the first
// secondary of each sample set.
type Report struct {
	MatchupSets   int
	TotalMatchups int
	// Daily counts sample sets by primary acquisition day (2006-01-02, UTC).
	Daily     map[string]int
	TimeDelta Stats
	Distance  Stats
}

// Days returns the keys of Daily in order.
func (r Report) Days() []string {
	days := make([]string, 0, len(r.Daily))
	for d := range r.Daily {
		days = append(days, d)
	}
	sort.Strings(days)
	return days
}

// Summarize builds the report of c.
func Summarize(c *matchup.Collection) Report {
	rep := Report{
		MatchupSets:   c.Len(),
		TotalMatchups: c.NumMatchups(),
		Daily:         make(map[string]int),
	}
	var dt, dist []float64
	for _, m := range c.Sets() {
		for _, set := range m.SampleSets {
			p := set.Primary
			rep.Daily[p.Timestamp().Format("2006-01-02")]++
			s, ok := set.Secondary()
			if !ok {
				continue
			}
			dt = append(dt, float64(s.Time-p.Time)/1000)
			dist = append(dist, geometry.DistanceKm(p.Lon, p.Lat, s.Lon, s.Lat))
		}
	}
	rep.TimeDelta = newStats(dt)
	rep.Distance = newStats(dist)
	return rep
}

// WriteText writes a plain text rendering of r.
func WriteText(w io.Writer, r Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "matchup sets\t%d\n", r.MatchupSets)
	fmt.Fprintf(tw, "matchups\t%d\n", r.TotalMatchups)
	writeStats(tw, "time delta (s)", r.TimeDelta)
	writeStats(tw, "distance (km)", r.Distance)
	for _, d := range r.Days() {
		fmt.Fprintf(tw, "%s\t%d\n", d, r.Daily[d])
	}
	return tw.Flush()
}

func writeStats(w io.Writer, name string, s Stats) {
	if s.N == 0 {
		fmt.Fprintf(w, "%s\t-\n", name)
		return
	}
	fmt.Fprintf(w, "%s\tmean %.3f\tstd %.3f\tmin %.3f\tmax %.3f\n", name, s.Mean, s.StdDev, s.Min, s.Max)
}

// PlotLocations saves a scatter plot of primary and secondary sample
// locations to path. The format follows the file extension.
func PlotLocations(c *matchup.Collection, path string) error {
	var prim, sec plotter.XYs
	for _, m := range c.Sets() {
		for _, set := range m.SampleSets {
			prim = append(prim, plotter.XY{X: set.Primary.Lon, Y: set.Primary.Lat})
			for _, s := range set.Secondaries {
				sec = append(sec, plotter.XY{X: s.Lon, Y: s.Lat})
			}
		}
	}
	if len(prim) == 0 {
		return ErrEmpty
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Matchup locations (%d)", len(prim))
	p.X.Label.Text = "Longitude (deg)"
	p.Y.Label.Text = "Latitude (deg)"
	p.Add(plotter.NewGrid())

	ps, err := plotter.NewScatter(prim)
	if err != nil {
		return fmt.Errorf("primary scatter: %w", err)
	}
	ps.GlyphStyle.Color = color.RGBA{R: 200, A: 255}
	ps.GlyphStyle.Radius = vg.Points(2)
	p.Add(ps)
	p.Legend.Add("primary", ps)

	if len(sec) > 0 {
		ss, err := plotter.NewScatter(sec)
		if err != nil {
			return fmt.Errorf("secondary scatter: %w", err)
		}
		ss.GlyphStyle.Color = color.RGBA{B: 200, A: 255}
		ss.GlyphStyle.Radius = vg.Points(1)
		p.Add(ss)
		p.Legend.Add("secondary", ss)
	}

	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	diagf("wrote location plot %s (%d points)", path, len(prim)+len(sec))
	return nil
}

// WriteDailyChart renders an HTML page with the daily matchup counts.
func WriteDailyChart(w io.Writer, title string, r Report) error {
	days := r.Days()
	data := make([]opts.BarData, 0, len(days))
	for _, d := range days {
		data = append(data, opts.BarData{Value: r.Daily[d]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%d matchups in %d sets", r.TotalMatchups, r.MatchupSets)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(days).
		AddSeries("matchups", data, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))

	page := components.NewPage()
	page.AddCharts(bar)
	return page.Render(w)
}

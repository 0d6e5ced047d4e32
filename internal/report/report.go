// Package report summarises the pacing quality of a recorded capture
// session: how close the achieved inter-frame intervals came to the
// configured frame interval.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PacingSummary describes the distribution of inter-frame intervals for
// one session, all values in milliseconds.
type PacingSummary struct {
	Frames   int
	TargetMs float64
	MeanMs   float64
	StdDevMs float64
	MinMs    float64
	MaxMs    float64
	P50Ms    float64
	P95Ms    float64
}

// Intervals converts frame capture timestamps (unix nanos, in sequence
// order) to inter-frame intervals in milliseconds.
func Intervals(timestampsNs []int64) []float64 {
	if len(timestampsNs) < 2 {
		return nil
	}
	out := make([]float64, 0, len(timestampsNs)-1)
	for i := 1; i < len(timestampsNs); i++ {
		out = append(out, float64(timestampsNs[i]-timestampsNs[i-1])/float64(time.Millisecond))
	}
	return out
}

// Summarise computes distribution statistics for the given intervals.
func Summarise(intervalsMs []float64, target time.Duration) (PacingSummary, error) {
	if len(intervalsMs) == 0 {
		return PacingSummary{}, fmt.Errorf("no intervals to summarise")
	}
	sorted := make([]float64, len(intervalsMs))
	copy(sorted, intervalsMs)
	sort.Float64s(sorted)

	mean, std := stat.MeanStdDev(intervalsMs, nil)
	return PacingSummary{
		Frames:   len(intervalsMs) + 1,
		TargetMs: float64(target) / float64(time.Millisecond),
		MeanMs:   mean,
		StdDevMs: std,
		MinMs:    sorted[0],
		MaxMs:    sorted[len(sorted)-1],
		P50Ms:    stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95Ms:    stat.Quantile(0.95, stat.Empirical, sorted, nil),
	}, nil
}

// WriteHTML renders an interactive interval chart for one session.
func WriteHTML(w io.Writer, sessionID string, intervalsMs []float64, summary PacingSummary) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("Frame pacing, session %s", sessionID),
			Subtitle: fmt.Sprintf("target %.1f ms, mean %.1f ms, stddev %.1f ms, p95 %.1f ms",
				summary.TargetMs, summary.MeanMs, summary.StdDevMs, summary.P95Ms),
		}),
		charts.WithYAxisOpts(opts.YAxis{Name: "interval (ms)"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame"}),
	)

	x := make([]int, len(intervalsMs))
	y := make([]opts.LineData, len(intervalsMs))
	target := make([]opts.LineData, len(intervalsMs))
	for i, v := range intervalsMs {
		x[i] = i + 1
		y[i] = opts.LineData{Value: v}
		target[i] = opts.LineData{Value: summary.TargetMs}
	}
	line.SetXAxis(x).
		AddSeries("interval", y).
		AddSeries("target", target)

	return line.Render(w)
}

// SaveHistogram writes a PNG histogram of the intervals.
func SaveHistogram(path string, intervalsMs []float64, summary PacingSummary) error {
	p := plot.New()
	p.Title.Text = "Inter-frame interval distribution"
	p.X.Label.Text = "interval (ms)"
	p.Y.Label.Text = "frames"

	hist, err := plotter.NewHist(plotter.Values(intervalsMs), 32)
	if err != nil {
		return fmt.Errorf("failed to build histogram: %w", err)
	}
	p.Add(hist)

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save histogram: %w", err)
	}
	return nil
}

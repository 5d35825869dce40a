// Package chart renders rating history images.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/jensholdgaard/assault-pugbot/internal/rating"
)

var ErrNoHistory = errors.New("no rating history to chart")

// Point is one rating state on the chart.
type Point struct {
	At    time.Time
	Value int
	Admin bool
}

// Points returns a record's history followed by its current state.
func Points(r *rating.Record) []Point {
	out := make([]Point, 0, len(r.History)+1)
	for _, h := range r.History {
		out = append(out, Point{At: h.Date.Time, Value: h.After, Admin: isAdmin(h.Ref)})
	}
	at := r.LastDate.Time
	if at.IsZero() {
		at = r.Date.Time
	}
	return append(out, Point{At: at, Value: r.Value, Admin: isAdmin(r.LastRef)})
}

func isAdmin(ref string) bool { return ref == "" || ref == rating.AdminSet }

var (
	background = drawing.ColorFromHex("2b2d31")
	canvas     = drawing.ColorFromHex("313338")
	text       = drawing.ColorFromHex("dbdee1")
	matchLine  = drawing.ColorFromHex("57f287")
	adminDot   = drawing.ColorFromHex("e67e22")
)

// RatingHistory renders points as a PNG line chart with administrator
// overrides marked separately.
func RatingHistory(player, mode string, points []Point) ([]byte, error) {
	if len(points) == 0 {
		return nil, ErrNoHistory
	}

	var xs, adminXs []time.Time
	var ys, adminYs []float64
	minT, maxT := points[0].At, points[0].At
	minV, maxV := points[0].Value, points[0].Value
	for _, p := range points {
		xs = append(xs, p.At)
		ys = append(ys, float64(p.Value))
		if p.Admin {
			adminXs = append(adminXs, p.At)
			adminYs = append(adminYs, float64(p.Value))
		}
		if p.At.Before(minT) {
			minT = p.At
		}
		if p.At.After(maxT) {
			maxT = p.At
		}
		minV, maxV = min(minV, p.Value), max(maxV, p.Value)
	}
	// Pad both ranges so a single point or a flat line still has extent.
	if !maxT.After(minT) {
		minT, maxT = minT.Add(-time.Hour), maxT.Add(time.Hour)
	}
	pad := max(10, (maxV-minV)/10)

	series := []chart.Series{
		chart.TimeSeries{
			Name:    "Matches",
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: matchLine,
				StrokeWidth: 2,
				DotWidth:    3,
				DotColor:    matchLine,
			},
		},
	}
	if len(adminXs) > 0 {
		series = append(series, chart.TimeSeries{
			Name:    "Admin Override",
			XValues: adminXs,
			YValues: adminYs,
			Style: chart.Style{
				StrokeColor: drawing.ColorTransparent,
				DotWidth:    6,
				DotColor:    adminDot,
			},
		})
	}

	graph := chart.Chart{
		Title:      fmt.Sprintf("UTA PUG Ranked Stats for %s (%s)", player, mode),
		TitleStyle: chart.Style{FontColor: adminDot},
		Width:      900,
		Height:     450,
		Background: chart.Style{
			FillColor: background,
			Padding:   chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20},
		},
		Canvas: chart.Style{
			FillColor: canvas,
		},
		XAxis: chart.XAxis{
			Name:           "Time",
			ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01-02"),
			Style:          chart.Style{FontColor: text},
			Range: &chart.ContinuousRange{
				Min: chart.TimeToFloat64(minT),
				Max: chart.TimeToFloat64(maxT),
			},
		},
		YAxis: chart.YAxis{
			Name:  "Rank/Power (RP)",
			Style: chart.Style{FontColor: text},
			Range: &chart.ContinuousRange{
				Min: float64(minV - pad),
				Max: float64(maxV + pad),
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("rendering rating chart: %w", err)
	}
	return buffer.Bytes(), nil
}

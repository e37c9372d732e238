package tracking

import (
	"bytes"
	"math"
	"strconv"

	"backend-racehub/internal/shared/timefmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var (
	chartBackground = drawing.ColorFromHex("ffffff")
	chartBar        = drawing.ColorFromHex("1f6feb")
	chartText       = drawing.ColorFromHex("24292f")
)

// RenderSplitChart draws one bar per kilometre split as a PNG.
func RenderSplitChart(splits []string) ([]byte, error) {
	if len(splits) == 0 {
		return renderNoSplits()
	}

	bars := make([]chart.Value, 0, len(splits))
	maxSec := 0.0
	for i, split := range splits {
		ms, ok := timefmt.HMSToMs(split)
		if !ok {
			continue
		}
		sec := float64(ms) / 1000
		maxSec = math.Max(maxSec, sec)
		bars = append(bars, chart.Value{
			Label: "km " + strconv.Itoa(i+1),
			Value: sec,
			Style: chart.Style{FillColor: chartBar, StrokeColor: chartBar},
		})
	}
	if len(bars) == 0 {
		return renderNoSplits()
	}

	graph := chart.BarChart{
		Title:      "Kilometre splits",
		Width:      120 + 60*len(bars),
		Height:     400,
		BarWidth:   40,
		Background: chart.Style{FillColor: chartBackground, Padding: chart.Box{Top: 40}},
		Canvas:     chart.Style{FillColor: chartBackground},
		XAxis:      chart.Style{FontColor: chartText},
		YAxis: chart.YAxis{
			Style: chart.Style{FontColor: chartText},
			Range: &chart.ContinuousRange{Min: 0, Max: maxSec*1.1 + 1},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return timefmt.FormatSeconds(int64(f))
				}
				return ""
			},
		},
		Bars: bars,
	}

	buf := bytes.NewBuffer(nil)
	if err := graph.Render(chart.PNG, buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderNoSplits draws a text placeholder. Chart and BarChart both refuse to
// render without data.
func renderNoSplits() ([]byte, error) {
	const (
		width  = 400
		height = 200
		msg    = "No completed kilometre yet"
	)

	r, err := chart.PNG(width, height)
	if err != nil {
		return nil, err
	}
	font, err := chart.GetDefaultFont()
	if err != nil {
		return nil, err
	}
	chart.Draw.Box(r, chart.Box{Right: width, Bottom: height}, chart.Style{FillColor: chartBackground, StrokeColor: chartBackground})

	r.SetFont(font)
	r.SetFontColor(chartText)
	r.SetFontSize(12.0)
	tb := r.MeasureText(msg)
	r.Text(msg, (width-tb.Width())/2, (height+tb.Height())/2)

	buf := bytes.NewBuffer(nil)
	if err := r.Save(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

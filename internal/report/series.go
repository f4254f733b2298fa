package report

import (
	"fmt"
	"html"
	"math"
	"strings"
	"time"

	"github.com/oncotrace/oncotrace/internal/engine"
)

// Point is one chartable observation.
type Point struct {
	Date   time.Time `json:"date"`
	SizeCM float64   `json:"size_cm"`
	Absent bool      `json:"absent,omitempty"`
}

// Series is the chart-ready form of one lesion timeline.
type Series struct {
	LesionID string  `json:"lesion_id"`
	Points   []Point `json:"points"`
}

// ChartSeries converts the result timelines into plottable series.
func ChartSeries(res *engine.Result) []Series {
	out := make([]Series, 0, len(res.Timelines))
	for _, tl := range res.Timelines {
		s := Series{LesionID: tl.LesionID}
		for _, e := range tl.Entries {
			s.Points = append(s.Points, Point{Date: e.Date, SizeCM: e.SizeCM, Absent: e.Absent})
		}
		out = append(out, s)
	}
	return out
}

var seriesColors = []string{"#1d4ed8", "#b91c1c", "#15803d", "#7c3aed", "#b45309", "#0e7490"}

// SeriesSVG renders a line chart of every series as inline SVG. Absent
// points break the line so disappearance gaps stay visible.
func SeriesSVG(series []Series, width, height int) string {
	const padLeft, padRight, padTop, padBottom = 50, 20, 20, 40

	var minDate, maxDate time.Time
	maxSize := 0.0
	for _, s := range series {
		for _, p := range s.Points {
			if p.Absent {
				continue
			}
			if minDate.IsZero() || p.Date.Before(minDate) {
				minDate = p.Date
			}
			if maxDate.IsZero() || p.Date.After(maxDate) {
				maxDate = p.Date
			}
			maxSize = math.Max(maxSize, p.SizeCM)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		width, height, width, height)
	if minDate.IsZero() || maxSize == 0 {
		b.WriteString(`<text x="20" y="30" font-size="12">no data</text></svg>`)
		return b.String()
	}
	maxSize *= 1.1

	plotW := float64(width - padLeft - padRight)
	plotH := float64(height - padTop - padBottom)
	span := maxDate.Sub(minDate)

	xOf := func(d time.Time) float64 {
		if span == 0 {
			return float64(padLeft) + plotW/2
		}
		return float64(padLeft) + plotW*float64(d.Sub(minDate))/float64(span)
	}
	yOf := func(size float64) float64 {
		return float64(padTop) + plotH*(1-size/maxSize)
	}

	// Axes.
	fmt.Fprintf(&b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#444"/>`,
		padLeft, height-padBottom, width-padRight, height-padBottom)
	fmt.Fprintf(&b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#444"/>`,
		padLeft, padTop, padLeft, height-padBottom)
	for i := 0; i <= 4; i++ {
		v := maxSize * float64(i) / 4
		fmt.Fprintf(&b, `<text x="%d" y="%.1f" font-size="10" text-anchor="end">%.1f</text>`,
			padLeft-5, yOf(v)+3, v)
	}
	fmt.Fprintf(&b, `<text x="%.1f" y="%d" font-size="10">%s</text>`,
		xOf(minDate), height-padBottom+14, minDate.Format(dateLayout))
	fmt.Fprintf(&b, `<text x="%.1f" y="%d" font-size="10" text-anchor="end">%s</text>`,
		xOf(maxDate), height-padBottom+14, maxDate.Format(dateLayout))

	for i, s := range series {
		color := seriesColors[i%len(seriesColors)]
		var path strings.Builder
		penDown := false
		for _, p := range s.Points {
			if p.Absent {
				penDown = false
				continue
			}
			cmd := "L"
			if !penDown {
				cmd = "M"
				penDown = true
			}
			fmt.Fprintf(&path, "%s%.1f %.1f ", cmd, xOf(p.Date), yOf(p.SizeCM))
			fmt.Fprintf(&b, `<circle cx="%.1f" cy="%.1f" r="3" fill="%s"/>`, xOf(p.Date), yOf(p.SizeCM), color)
		}
		fmt.Fprintf(&b, `<path d="%s" fill="none" stroke="%s" stroke-width="1.5"/>`,
			strings.TrimSpace(path.String()), color)
		fmt.Fprintf(&b, `<text x="%d" y="%d" font-size="11" fill="%s">%s</text>`,
			width-padRight-150, padTop+14*(i+1), color, html.EscapeString(s.LesionID))
	}
	b.WriteString("</svg>")
	return b.String()
}

// Package report formats engine results for humans: markdown summaries,
// CSV exports, chart series with inline SVG, and Chromium-rendered PDFs.
// Everything here is presentation; no number is recomputed.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/oncotrace/oncotrace/internal/engine"
)

const dateLayout = "02/01/2006"

var statusLabels = map[engine.Status]string{
	engine.StatusIncreased:   "Increased",
	engine.StatusDecreased:   "Decreased",
	engine.StatusStable:      "Stable",
	engine.StatusDisappeared: "Disappeared",
	engine.StatusReappeared:  "Reappeared",
}

// BuildMarkdown renders the full analysis report: summary table, detailed
// timeline, overall statistics, and diagnostics.
func BuildMarkdown(res *engine.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Lesion Evolution Report\n\n")
	if res.Metadata.PatientID != "" {
		fmt.Fprintf(&b, "**Patient:** %s\n\n", res.Metadata.PatientID)
	}
	if !res.Metadata.StartDate.IsZero() {
		fmt.Fprintf(&b, "**Period:** %s to %s\n\n",
			res.Metadata.StartDate.Format(dateLayout),
			res.Metadata.EndDate.Format(dateLayout))
	}
	fmt.Fprintf(&b, "**Lesions tracked:** %d &nbsp;&nbsp; **Measurements:** %d\n\n",
		res.Metadata.TotalLesions, res.Metadata.TotalMeasurements)

	b.WriteString("## Summary\n\n")
	if len(res.Summaries) == 0 {
		b.WriteString("No lesion measurements were found.\n\n")
	} else {
		b.WriteString("| Lesion | First Seen | First Size | Last Seen | Last Size | Total Change | Status |\n")
		b.WriteString("|---|---|---|---|---|---|---|\n")
		for _, s := range res.Summaries {
			flag := ""
			if s.ConflictingMeasurements {
				flag = " ⚠"
			}
			fmt.Fprintf(&b, "| %s%s | %s | %.2f cm | %s | %.2f cm | %+.1f%% | %s |\n",
				s.LesionID, flag,
				s.FirstDate.Format(dateLayout), s.FirstSizeCM,
				s.LastDate.Format(dateLayout), s.LastSizeCM,
				s.TotalPercentChange, statusLabel(s.Status))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Detailed Timeline\n\n")
	if len(res.Timelines) > 0 {
		b.WriteString("| Lesion | Date | Size | Change vs Previous |\n")
		b.WriteString("|---|---|---|---|\n")
		variations := variationIndex(res.Variations)
		for _, tl := range res.Timelines {
			for _, e := range tl.Entries {
				size, change := fmt.Sprintf("%.2f cm", e.SizeCM), "—"
				if e.Absent {
					size = "not detected"
				}
				if v, ok := variations[variationKey{tl.LesionID, e.Date}]; ok {
					change = formatVariation(v)
				}
				fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
					tl.LesionID, e.Date.Format(dateLayout), size, change)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Overall Statistics\n\n")
	st := res.Stats
	fmt.Fprintf(&b, "- Increased: %d, decreased: %d, stable: %d, disappeared: %d, reappeared: %d\n",
		st.Increased, st.Decreased, st.Stable, st.Disappeared, st.Reappeared)
	fmt.Fprintf(&b, "- Average total change: %+.1f%%\n", st.AvgTotalChange)
	if st.MostIncreased != "" && st.MaxIncreasePct > 0 {
		fmt.Fprintf(&b, "- Largest increase: %s (%+.1f%%)\n", st.MostIncreased, st.MaxIncreasePct)
	}
	if st.MostDecreased != "" && st.MaxDecreasePct < 0 {
		fmt.Fprintf(&b, "- Largest decrease: %s (%+.1f%%)\n", st.MostDecreased, st.MaxDecreasePct)
	}
	b.WriteString("\n")

	if len(res.Diagnostics) > 0 {
		b.WriteString("## Data Quality Notes\n\n")
		for _, d := range res.Diagnostics {
			if d.DocumentID != "" {
				fmt.Fprintf(&b, "- `%s` (%s): %s\n", d.Kind, d.DocumentID, d.Detail)
			} else {
				fmt.Fprintf(&b, "- `%s`: %s\n", d.Kind, d.Detail)
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "---\n\nGenerated %s · run `%s`\n",
		res.Metadata.GeneratedAt.Format("02/01/2006 15:04 MST"), res.Metadata.RunID)
	return b.String()
}

type variationKey struct {
	lesionID string
	toDate   time.Time
}

func variationIndex(vars []engine.VariationEntry) map[variationKey]engine.VariationEntry {
	idx := make(map[variationKey]engine.VariationEntry, len(vars))
	for _, v := range vars {
		idx[variationKey{v.LesionID, v.ToDate}] = v
	}
	return idx
}

func formatVariation(v engine.VariationEntry) string {
	switch v.Transition {
	case engine.TransitionDisappeared:
		s := "disappeared"
		if v.NearbyTreatment != nil {
			s += fmt.Sprintf(" (after %s on %s)", v.NearbyTreatment.Kind, v.NearbyTreatment.Date.Format(dateLayout))
		}
		return s
	case engine.TransitionReappeared:
		return "reappeared"
	}
	if v.PercentChange == nil {
		return "—"
	}
	s := fmt.Sprintf("%+.1f%%", *v.PercentChange)
	if v.NearbyTreatment != nil {
		s += fmt.Sprintf(" (after %s on %s)", v.NearbyTreatment.Kind, v.NearbyTreatment.Date.Format(dateLayout))
	}
	return s
}

func statusLabel(s engine.Status) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

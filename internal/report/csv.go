package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/oncotrace/oncotrace/internal/engine"
)

// WriteCSV exports the detailed timeline, one row per timeline entry.
// Absent entries carry an empty size and status "not_detected".
func WriteCSV(w io.Writer, res *engine.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"lesion_id", "exam_date", "size_cm", "status", "change_pct"}); err != nil {
		return err
	}

	variations := variationIndex(res.Variations)
	for _, tl := range res.Timelines {
		for _, e := range tl.Entries {
			size, status, change := "", "measured", ""
			if e.Absent {
				status = "not_detected"
			} else {
				size = fmt.Sprintf("%.2f", e.SizeCM)
			}
			if v, ok := variations[variationKey{tl.LesionID, e.Date}]; ok {
				if v.Transition != engine.TransitionMeasured {
					status = string(v.Transition)
				}
				if v.PercentChange != nil {
					change = fmt.Sprintf("%.2f", *v.PercentChange)
				}
			}
			row := []string{tl.LesionID, e.Date.Format("2006-01-02"), size, status, change}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

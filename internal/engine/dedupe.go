package engine

import (
	"fmt"
	"sort"
	"time"
)

// rawObservation is one normalized mention before dedup. seq preserves the
// mention order across the whole input so "last listed" is well defined.
type rawObservation struct {
	identity *LesionIdentity
	date     time.Time
	sizeCM   float64
	docID    string
	seq      int
}

// dedupe collapses observations into one Measurement per (lesion, date).
// Mentions agreeing within tol collapse silently to the last-listed value.
// On disagreement the last-listed value still wins, the measurement is
// marked as a conflict, and a diagnostic is emitted. Values are never
// averaged.
func dedupe(obs []rawObservation, tol float64) ([]Measurement, []Diagnostic) {
	type groupKey struct {
		id   *LesionIdentity
		date time.Time
	}
	groups := make(map[groupKey][]rawObservation)
	var order []groupKey
	for _, o := range obs {
		k := groupKey{o.identity, o.date}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], o)
	}

	var measurements []Measurement
	var diags []Diagnostic
	for _, k := range order {
		g := groups[k]
		sort.SliceStable(g, func(i, j int) bool { return g[i].seq < g[j].seq })
		last := g[len(g)-1]

		m := Measurement{
			LesionID: k.id.ID,
			ExamDate: k.date,
			SizeCM:   last.sizeCM,
		}
		if spread(g) > tol {
			m.Conflict = true
			diags = append(diags, Diagnostic{
				Kind:       DiagInconsistentDuplicate,
				DocumentID: last.docID,
				Label:      k.id.ID,
				Date:       k.date,
				Detail: fmt.Sprintf("%d mentions of %q on %s disagree beyond %.2f cm; kept last-listed value %.2f cm",
					len(g), k.id.ID, k.date.Format("2006-01-02"), tol, last.sizeCM),
			})
		}
		measurements = append(measurements, m)
	}
	return measurements, diags
}

func spread(g []rawObservation) float64 {
	min, max := g[0].sizeCM, g[0].sizeCM
	for _, o := range g[1:] {
		if o.sizeCM < min {
			min = o.sizeCM
		}
		if o.sizeCM > max {
			max = o.sizeCM
		}
	}
	return max - min
}

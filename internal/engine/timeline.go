package engine

import (
	"sort"
	"time"
)

// buildAxis returns the sorted unique exam dates across all measurements.
func buildAxis(measurements []Measurement) []time.Time {
	seen := make(map[time.Time]bool)
	var axis []time.Time
	for _, m := range measurements {
		if !seen[m.ExamDate] {
			seen[m.ExamDate] = true
			axis = append(axis, m.ExamDate)
		}
	}
	sort.Slice(axis, func(i, j int) bool { return axis[i].Before(axis[j]) })
	return axis
}

// buildTimeline assembles one lesion's series over the global axis. Under
// the default policy entries start at the lesion's first appearance; dates
// before that carry no entry at all. Every axis date from the first
// appearance on is covered, present with a size or marked absent.
func buildTimeline(id *LesionIdentity, measurements []Measurement, axis []time.Time, policy NewLesionPolicy) LesionTimeline {
	byDate := make(map[time.Time]Measurement, len(measurements))
	var first time.Time
	for _, m := range measurements {
		byDate[m.ExamDate] = m
		if first.IsZero() || m.ExamDate.Before(first) {
			first = m.ExamDate
		}
	}

	tl := LesionTimeline{LesionID: id.ID, Aliases: id.Aliases}
	for _, d := range axis {
		if policy != NewLesionPolicyUndetected && d.Before(first) {
			continue
		}
		if m, ok := byDate[d]; ok {
			tl.Entries = append(tl.Entries, TimelineEntry{Date: d, SizeCM: m.SizeCM})
		} else {
			tl.Entries = append(tl.Entries, TimelineEntry{Date: d, Absent: true})
		}
	}
	return tl
}

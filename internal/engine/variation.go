package engine

import (
	"math"
	"time"
)

// PercentChange computes the relative change from one size to another, in
// percent. The caller guarantees from is positive.
func PercentChange(from, to float64) float64 {
	return (to - from) / from * 100
}

// computeVariations derives the consecutive-pair variation entries and the
// summary for one timeline. Treatment events only annotate entries; they
// never change sizes, percentages, or status.
func computeVariations(tl LesionTimeline, events []TreatmentEvent, cfg Config) ([]VariationEntry, LesionSummary) {
	// A leading absent run exists only under the undetected back-fill
	// policy and means "not yet detected", not a disappearance gap, so
	// pairs are classified from the first detection on.
	start := 0
	for start < len(tl.Entries) && tl.Entries[start].Absent {
		start++
	}

	var variations []VariationEntry
	for i := start + 1; i < len(tl.Entries); i++ {
		prev, cur := tl.Entries[i-1], tl.Entries[i]
		switch {
		case !prev.Absent && !cur.Absent:
			pct := PercentChange(prev.SizeCM, cur.SizeCM)
			v := VariationEntry{
				LesionID:      tl.LesionID,
				FromDate:      prev.Date,
				ToDate:        cur.Date,
				FromSizeCM:    prev.SizeCM,
				ToSizeCM:      cur.SizeCM,
				PercentChange: &pct,
				Transition:    TransitionMeasured,
			}
			if pct < -cfg.MajorDropPct {
				v.NearbyTreatment = nearestTreatment(events, cur.Date, cfg.TreatmentWindowDays)
			}
			variations = append(variations, v)
		case !prev.Absent && cur.Absent:
			variations = append(variations, VariationEntry{
				LesionID:        tl.LesionID,
				FromDate:        prev.Date,
				ToDate:          cur.Date,
				FromSizeCM:      prev.SizeCM,
				Transition:      TransitionDisappeared,
				NearbyTreatment: nearestTreatment(events, cur.Date, cfg.TreatmentWindowDays),
			})
		case prev.Absent && !cur.Absent:
			variations = append(variations, VariationEntry{
				LesionID:   tl.LesionID,
				FromDate:   prev.Date,
				ToDate:     cur.Date,
				ToSizeCM:   cur.SizeCM,
				Transition: TransitionReappeared,
			})
		}
		// absent to absent adds nothing; the disappearance is already
		// recorded at the start of the run.
	}
	return variations, summarize(tl, cfg)
}

// summarize classifies one lesion over its whole timeline. Status priority:
// disappeared, reappeared, increased, decreased, stable. The stability band
// is exclusive, so a change of exactly the threshold is stable.
func summarize(tl LesionTimeline, cfg Config) LesionSummary {
	s := LesionSummary{LesionID: tl.LesionID}

	var present []TimelineEntry
	for _, e := range tl.Entries {
		if !e.Absent {
			present = append(present, e)
		}
	}
	if len(present) == 0 {
		return s
	}

	first, last := present[0], present[len(present)-1]
	s.FirstDate, s.FirstSizeCM = first.Date, first.SizeCM
	s.LastDate, s.LastSizeCM = last.Date, last.SizeCM
	s.MeasurementCount = len(present)
	s.MaxSizeCM, s.MinSizeCM = present[0].SizeCM, present[0].SizeCM
	for _, e := range present[1:] {
		s.MaxSizeCM = math.Max(s.MaxSizeCM, e.SizeCM)
		s.MinSizeCM = math.Min(s.MinSizeCM, e.SizeCM)
	}
	if len(present) > 1 {
		s.TotalPercentChange = PercentChange(first.SizeCM, last.SizeCM)
	}

	switch {
	case tl.Entries[len(tl.Entries)-1].Absent:
		s.Status = StatusDisappeared
	case hasReappearance(tl.Entries):
		s.Status = StatusReappeared
	case s.TotalPercentChange > cfg.StabilityThresholdPct:
		s.Status = StatusIncreased
	case s.TotalPercentChange < -cfg.StabilityThresholdPct:
		s.Status = StatusDecreased
	default:
		s.Status = StatusStable
	}
	return s
}

// hasReappearance reports a present entry after an absence gap. Absent
// entries before the first detection do not count as a gap.
func hasReappearance(entries []TimelineEntry) bool {
	presentSeen, gapSeen := false, false
	for _, e := range entries {
		switch {
		case e.Absent:
			if presentSeen {
				gapSeen = true
			}
		case gapSeen:
			return true
		default:
			presentSeen = true
		}
	}
	return false
}

// nearestTreatment returns the latest event within windowDays before date,
// or nil.
func nearestTreatment(events []TreatmentEvent, date time.Time, windowDays int) *TreatmentEvent {
	var best *TreatmentEvent
	for i := range events {
		e := events[i]
		if e.Date.After(date) {
			continue
		}
		if date.Sub(e.Date) > time.Duration(windowDays)*24*time.Hour {
			continue
		}
		if best == nil || e.Date.After(best.Date) {
			best = &e
		}
	}
	return best
}

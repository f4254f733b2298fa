package engine

import (
	"math"
	"testing"
	"time"
)

func timelineOf(id string, entries ...TimelineEntry) LesionTimeline {
	return LesionTimeline{LesionID: id, Entries: entries}
}

func present(y, m, d int, size float64) TimelineEntry {
	return TimelineEntry{Date: date(y, time.Month(m), d), SizeCM: size}
}

func absent(y, m, d int) TimelineEntry {
	return TimelineEntry{Date: date(y, time.Month(m), d), Absent: true}
}

func TestPercentChangeExample(t *testing.T) {
	// 1.2 cm to 1.5 cm is +25%.
	got := PercentChange(1.2, 1.5)
	if math.Abs(got-25) > 1e-9 {
		t.Fatalf("PercentChange(1.2, 1.5) = %v, want 25", got)
	}
}

func TestVariationsConsecutivePairs(t *testing.T) {
	tl := timelineOf("Lesão A",
		present(2025, 1, 10, 1.2),
		present(2025, 2, 10, 1.5),
		present(2025, 3, 10, 1.5),
	)
	vars, sum := computeVariations(tl, nil, DefaultConfig())

	if len(vars) != 2 {
		t.Fatalf("got %d variations, want 2", len(vars))
	}
	if vars[0].PercentChange == nil || math.Abs(*vars[0].PercentChange-25) > 1e-9 {
		t.Fatalf("first variation = %v, want +25%%", vars[0].PercentChange)
	}
	if math.Abs(sum.TotalPercentChange-25) > 1e-9 {
		t.Fatalf("total change = %v, want 25", sum.TotalPercentChange)
	}
	if sum.Status != StatusIncreased {
		t.Fatalf("status = %q, want increased", sum.Status)
	}
}

func TestStabilityBoundaryIsExclusive(t *testing.T) {
	// Exactly +10% with a 10% threshold stays stable.
	tl := timelineOf("Lesão A",
		present(2025, 1, 10, 1.0),
		present(2025, 2, 10, 1.1),
	)
	_, sum := computeVariations(tl, nil, DefaultConfig())
	if sum.Status != StatusStable {
		t.Fatalf("status at exactly +10%% = %q, want stable", sum.Status)
	}

	tl = timelineOf("Lesão A",
		present(2025, 1, 10, 1.0),
		present(2025, 2, 10, 1.101),
	)
	_, sum = computeVariations(tl, nil, DefaultConfig())
	if sum.Status != StatusIncreased {
		t.Fatalf("status just above +10%% = %q, want increased", sum.Status)
	}

	tl = timelineOf("Lesão A",
		present(2025, 1, 10, 1.0),
		present(2025, 2, 10, 0.9),
	)
	_, sum = computeVariations(tl, nil, DefaultConfig())
	if sum.Status != StatusStable {
		t.Fatalf("status at exactly -10%% = %q, want stable", sum.Status)
	}
}

func TestDisappearance(t *testing.T) {
	tl := timelineOf("Lesão A",
		present(2025, 1, 10, 1.2),
		present(2025, 2, 10, 1.0),
		absent(2025, 3, 10),
	)
	vars, sum := computeVariations(tl, nil, DefaultConfig())

	if sum.Status != StatusDisappeared {
		t.Fatalf("status = %q, want disappeared", sum.Status)
	}
	last := vars[len(vars)-1]
	if last.Transition != TransitionDisappeared {
		t.Fatalf("last transition = %q, want disappeared", last.Transition)
	}
	if last.PercentChange != nil {
		t.Fatalf("percent change across disappearance = %v, want nil", *last.PercentChange)
	}
	// Summary still reports the last present measurement.
	if !sum.LastDate.Equal(date(2025, 2, 10)) || sum.LastSizeCM != 1.0 {
		t.Fatalf("summary last = %v %v, want last present measurement", sum.LastDate, sum.LastSizeCM)
	}
}

func TestReappearance(t *testing.T) {
	tl := timelineOf("Lesão A",
		present(2025, 1, 10, 1.2),
		absent(2025, 2, 10),
		present(2025, 3, 10, 0.8),
	)
	vars, sum := computeVariations(tl, nil, DefaultConfig())

	if sum.Status != StatusReappeared {
		t.Fatalf("status = %q, want reappeared", sum.Status)
	}
	if len(vars) != 2 {
		t.Fatalf("got %d variations, want disappearance then reappearance", len(vars))
	}
	if vars[0].Transition != TransitionDisappeared || vars[1].Transition != TransitionReappeared {
		t.Fatalf("transitions = %q, %q", vars[0].Transition, vars[1].Transition)
	}
	if vars[1].PercentChange != nil {
		t.Fatal("percent change across reappearance should be nil")
	}
	// Total change still compares first and last present sizes.
	if math.Abs(sum.TotalPercentChange-PercentChange(1.2, 0.8)) > 1e-9 {
		t.Fatalf("total change = %v", sum.TotalPercentChange)
	}
}

func TestBackfilledLeadingAbsencesAreNotReappearance(t *testing.T) {
	// Under the undetected back-fill policy a late-appearing lesion starts
	// with absent entries. That is "not yet detected", not a gap.
	tl := timelineOf("Lesão B",
		absent(2025, 1, 10),
		absent(2025, 2, 10),
		present(2025, 3, 10, 1.0),
		present(2025, 4, 10, 1.5),
	)
	vars, sum := computeVariations(tl, nil, DefaultConfig())

	if sum.Status != StatusIncreased {
		t.Fatalf("status = %q, want increased", sum.Status)
	}
	if len(vars) != 1 {
		t.Fatalf("got %d variations, want only the measured pair", len(vars))
	}
	if vars[0].Transition != TransitionMeasured {
		t.Fatalf("transition = %q, want measured", vars[0].Transition)
	}
}

func TestGapAfterLeadingAbsencesStillReappears(t *testing.T) {
	tl := timelineOf("Lesão B",
		absent(2025, 1, 10),
		present(2025, 2, 10, 1.0),
		absent(2025, 3, 10),
		present(2025, 4, 10, 0.8),
	)
	vars, sum := computeVariations(tl, nil, DefaultConfig())

	if sum.Status != StatusReappeared {
		t.Fatalf("status = %q, want reappeared", sum.Status)
	}
	if len(vars) != 2 {
		t.Fatalf("got %d variations, want disappearance then reappearance", len(vars))
	}
	if vars[0].Transition != TransitionDisappeared || vars[1].Transition != TransitionReappeared {
		t.Fatalf("transitions = %q, %q", vars[0].Transition, vars[1].Transition)
	}
}

func TestZeroStabilityThresholdClassifiesAnyChange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StabilityThresholdPct = 0

	tl := timelineOf("Lesão A",
		present(2025, 1, 10, 1.00),
		present(2025, 2, 10, 1.01),
	)
	_, sum := computeVariations(tl, nil, cfg)
	if sum.Status != StatusIncreased {
		t.Fatalf("status with zero threshold = %q, want increased", sum.Status)
	}
}

func TestDisappearanceTakesPriorityOverReappearance(t *testing.T) {
	tl := timelineOf("Lesão A",
		present(2025, 1, 10, 1.2),
		absent(2025, 2, 10),
		present(2025, 3, 10, 0.8),
		absent(2025, 4, 10),
	)
	_, sum := computeVariations(tl, nil, DefaultConfig())
	if sum.Status != StatusDisappeared {
		t.Fatalf("status = %q, want disappeared (trailing absent wins)", sum.Status)
	}
}

func TestSingleMeasurementIsStable(t *testing.T) {
	tl := timelineOf("Lesão A", present(2025, 1, 10, 1.2))
	vars, sum := computeVariations(tl, nil, DefaultConfig())
	if len(vars) != 0 {
		t.Fatalf("got %d variations for a single measurement", len(vars))
	}
	if sum.Status != StatusStable || sum.TotalPercentChange != 0 {
		t.Fatalf("summary = %+v, want stable with zero change", sum)
	}
	if !sum.FirstDate.Equal(sum.LastDate) {
		t.Fatal("first and last dates should coincide")
	}
}

func TestTreatmentAnnotation(t *testing.T) {
	events := []TreatmentEvent{
		{Date: date(2025, 2, 20), Kind: TreatmentSurgery},
		{Date: date(2024, 6, 1), Kind: TreatmentChemotherapy},
	}
	tl := timelineOf("Lesão A",
		present(2025, 1, 10, 1.2),
		absent(2025, 3, 10),
	)
	vars, _ := computeVariations(tl, events, DefaultConfig())

	if vars[0].NearbyTreatment == nil || vars[0].NearbyTreatment.Kind != TreatmentSurgery {
		t.Fatalf("nearby treatment = %+v, want the surgery within the window", vars[0].NearbyTreatment)
	}
}

func TestTreatmentOutsideWindowIgnored(t *testing.T) {
	events := []TreatmentEvent{{Date: date(2024, 6, 1), Kind: TreatmentSurgery}}
	tl := timelineOf("Lesão A",
		present(2025, 1, 10, 1.2),
		absent(2025, 3, 10),
	)
	vars, _ := computeVariations(tl, events, DefaultConfig())
	if vars[0].NearbyTreatment != nil {
		t.Fatalf("treatment outside the window annotated: %+v", vars[0].NearbyTreatment)
	}
}

func TestMajorDropPicksUpTreatment(t *testing.T) {
	events := []TreatmentEvent{{Date: date(2025, 2, 1), Kind: TreatmentRadiotherapy}}
	tl := timelineOf("Lesão A",
		present(2025, 1, 10, 2.0),
		present(2025, 3, 10, 1.0),
	)
	vars, sum := computeVariations(tl, events, DefaultConfig())

	if vars[0].NearbyTreatment == nil {
		t.Fatal("drop of 50% did not pick up the treatment event")
	}
	// The annotation never changes the computed numbers or status.
	if math.Abs(*vars[0].PercentChange+50) > 1e-9 {
		t.Fatalf("percent change = %v, want -50", *vars[0].PercentChange)
	}
	if sum.Status != StatusDecreased {
		t.Fatalf("status = %q, want decreased", sum.Status)
	}
}

package engine

import (
	"testing"
)

func TestDedupeCollapsesWithinTolerance(t *testing.T) {
	id := &LesionIdentity{ID: "Lesão A"}
	d := date(2025, 1, 10)
	obs := []rawObservation{
		{identity: id, date: d, sizeCM: 1.20, seq: 0},
		{identity: id, date: d, sizeCM: 1.23, seq: 1},
	}

	ms, diags := dedupe(obs, 0.05)
	if len(ms) != 1 {
		t.Fatalf("got %d measurements, want 1", len(ms))
	}
	if ms[0].SizeCM != 1.23 {
		t.Fatalf("kept size %v, want last-listed 1.23", ms[0].SizeCM)
	}
	if ms[0].Conflict {
		t.Fatal("agreeing duplicates marked as conflict")
	}
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
}

func TestDedupeConflictKeepsLastListed(t *testing.T) {
	id := &LesionIdentity{ID: "Lesão A"}
	d := date(2025, 1, 10)
	obs := []rawObservation{
		{identity: id, date: d, sizeCM: 1.2, docID: "doc-1", seq: 0},
		{identity: id, date: d, sizeCM: 1.8, docID: "doc-1", seq: 1},
	}

	ms, diags := dedupe(obs, 0.05)
	if len(ms) != 1 {
		t.Fatalf("got %d measurements, want 1", len(ms))
	}
	if ms[0].SizeCM != 1.8 {
		t.Fatalf("kept size %v, want last-listed 1.8, never an average", ms[0].SizeCM)
	}
	if !ms[0].Conflict {
		t.Fatal("disagreeing duplicates not marked as conflict")
	}
	if len(diags) != 1 || diags[0].Kind != DiagInconsistentDuplicate {
		t.Fatalf("got diagnostics %v, want one InconsistentDuplicateMeasurement", diags)
	}
}

func TestDedupeSeparatesDates(t *testing.T) {
	id := &LesionIdentity{ID: "Lesão A"}
	obs := []rawObservation{
		{identity: id, date: date(2025, 1, 10), sizeCM: 1.2, seq: 0},
		{identity: id, date: date(2025, 2, 10), sizeCM: 1.5, seq: 1},
	}

	ms, _ := dedupe(obs, 0.05)
	if len(ms) != 2 {
		t.Fatalf("got %d measurements, want 2 (distinct dates never collapse)", len(ms))
	}
}

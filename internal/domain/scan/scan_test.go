package scan

import (
	"testing"
	"time"
)

func TestMachine_HappyPath(t *testing.T) {
	m := NewMachine()
	for _, next := range []State{Ingested, Detected, Done} {
		if err := m.Advance(next); err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
	}
	if !m.State().IsTerminal() {
		t.Errorf("expected terminal state, got %s", m.State())
	}
}

func TestMachine_AbortOnlyBeforeRegions(t *testing.T) {
	m := NewMachine()
	if err := m.Advance(Aborted); err != nil {
		t.Fatalf("idle -> aborted: %v", err)
	}

	m = NewMachine()
	_ = m.Advance(Ingested)
	if err := m.Advance(Aborted); err != nil {
		t.Fatalf("ingested -> aborted: %v", err)
	}

	m = NewMachine()
	_ = m.Advance(Ingested)
	_ = m.Advance(Detected)
	if err := m.Advance(Aborted); err == nil {
		t.Fatal("detected -> aborted must be rejected")
	}
}

func TestMachine_IllegalTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []State
	}{
		{"skip ingest", []State{Detected}},
		{"skip detect", []State{Ingested, Done}},
		{"leave done", []State{Ingested, Detected, Done, Idle}},
		{"leave aborted", []State{Aborted, Ingested}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMachine()
			var err error
			for _, s := range tc.path {
				if err = m.Advance(s); err != nil {
					break
				}
			}
			if err == nil {
				t.Fatalf("expected illegal transition along %v", tc.path)
			}
		})
	}
}

func TestReport_NoObjects(t *testing.T) {
	r := &Report{State: Done}
	if !r.NoObjects() {
		t.Error("done with zero regions is a no-objects outcome")
	}
	r.State = Aborted
	if r.NoObjects() {
		t.Error("aborted run is not a no-objects outcome")
	}
}

func TestReport_WithoutCrops(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := &Report{
		ID:         "abc",
		State:      Done,
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
		Regions: []RegionOutcome{
			{Index: 0, Status: StatusMatched, CropPNG: []byte{1, 2, 3}},
			{Index: 1, Status: StatusUploadFailed},
		},
	}

	stripped := r.WithoutCrops()
	if stripped.Regions[0].CropPNG != nil {
		t.Error("crop must be stripped")
	}
	if r.Regions[0].CropPNG == nil {
		t.Error("original report must keep its crop")
	}
	if r.Duration() != 2*time.Second {
		t.Errorf("unexpected duration %v", r.Duration())
	}

	counts := r.CountByStatus()
	if counts[StatusMatched] != 1 || counts[StatusUploadFailed] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}
	if !StatusUploadFailed.Failed() || StatusNoMatches.Failed() {
		t.Error("unexpected Failed classification")
	}
}

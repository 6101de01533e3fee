package investigation

import "testing"

// --- Phase ordering ---

func TestPhases_OrderIsFixed(t *testing.T) {
	got := Phases()
	want := []Phase{
		PhaseSetup, PhaseBaseline, PhaseBreakingPoint, PhaseConstraints,
		PhaseHypotheses, PhaseCodePaths, PhaseProfiling, PhaseOptimization,
		PhaseDecision, PhaseConsolidation, PhaseComplete,
	}
	if len(got) != len(want) {
		t.Fatalf("Phases() returned %d phases, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Phases()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPhases_ReturnsCopy(t *testing.T) {
	first := Phases()
	first[0] = Phase("mutated")
	if Phases()[0] != PhaseSetup {
		t.Error("Phases() exposed internal ordering to mutation")
	}
}

func TestValidatePhase(t *testing.T) {
	for _, p := range Phases() {
		if err := ValidatePhase(p); err != nil {
			t.Errorf("ValidatePhase(%s) = %v, want nil", p, err)
		}
	}

	for _, bad := range []Phase{"", "warmup", "Baseline", "setup "} {
		if err := ValidatePhase(bad); err == nil {
			t.Errorf("ValidatePhase(%q) = nil, want error", bad)
		}
	}
}

func TestNextPhase(t *testing.T) {
	tests := []struct {
		in   Phase
		want Phase
	}{
		{PhaseSetup, PhaseBaseline},
		{PhaseBaseline, PhaseBreakingPoint},
		{PhaseBreakingPoint, PhaseConstraints},
		{PhaseConstraints, PhaseHypotheses},
		{PhaseHypotheses, PhaseCodePaths},
		{PhaseCodePaths, PhaseProfiling},
		{PhaseProfiling, PhaseOptimization},
		{PhaseOptimization, PhaseDecision},
		{PhaseDecision, PhaseConsolidation},
		{PhaseConsolidation, PhaseComplete},
	}
	for _, tt := range tests {
		got, err := NextPhase(tt.in)
		if err != nil {
			t.Errorf("NextPhase(%s) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NextPhase(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestNextPhase_TerminalHasNoSuccessor(t *testing.T) {
	if _, err := NextPhase(PhaseComplete); err == nil {
		t.Error("NextPhase(complete) = nil error, want terminal error")
	}
}

func TestNextPhase_UnknownPhase(t *testing.T) {
	if _, err := NextPhase(Phase("warmup")); err == nil {
		t.Error("NextPhase(warmup) = nil error, want error")
	}
}

// --- ID validation ---

func TestValidateID(t *testing.T) {
	valid := []string{
		"inv-2026-08-27",
		"a1b2c3d4-e5f6-7890-abcd-ef0123456789",
		"checkout_latency.v2",
		"X",
	}
	for _, id := range valid {
		if err := ValidateID(id); err != nil {
			t.Errorf("ValidateID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{
		"",
		"..",
		"../escape",
		"a/../../etc/passwd",
		"foo/bar",
		`foo\bar`,
		".hidden",
		"id\x00null",
		"spaced id",
		"/absolute",
	}
	for _, id := range invalid {
		if err := ValidateID(id); err == nil {
			t.Errorf("ValidateID(%q) = nil, want error", id)
		}
	}
}

// --- New ---

func TestNew(t *testing.T) {
	doc := New("inv-1")
	if doc.ID != "inv-1" {
		t.Errorf("ID = %s, want inv-1", doc.ID)
	}
	if doc.Status != StatusInProgress {
		t.Errorf("Status = %s, want %s", doc.Status, StatusInProgress)
	}
	if doc.Phase != PhaseSetup {
		t.Errorf("Phase = %s, want %s", doc.Phase, PhaseSetup)
	}
	if doc.SchemaVersion != SchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", doc.SchemaVersion, SchemaVersion)
	}
	if doc.DocVersion != 0 {
		t.Errorf("DocVersion = %d before first write, want 0", doc.DocVersion)
	}
	if doc.CreatedAt == "" {
		t.Error("CreatedAt not stamped")
	}
}

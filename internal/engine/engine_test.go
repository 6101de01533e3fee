package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HendryAvila/perfscope/internal/investigation"
)

// fakeIndex is a canned CodePathSuggester.
type fakeIndex struct {
	paths []investigation.CodePath
	err   error
}

func (f *fakeIndex) Suggest(_ context.Context, _ string, _ int) ([]investigation.CodePath, error) {
	return f.paths, f.err
}

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "perf")
	idx := &fakeIndex{paths: []investigation.CodePath{
		{File: "internal/server/handler.go", Score: 3.2, Symbols: []string{"HandleRequest"}},
	}}
	return New(dir, nil, idx), dir
}

func runSetup(t *testing.T, e *Engine) *investigation.Investigation {
	t.Helper()
	doc, err := e.Run(context.Background(), Input{
		UserQuote: "investigate checkout latency",
		Scenario:  &investigation.Scenario{Description: "checkout latency under load"},
		Benchmark: &investigation.Benchmark{Command: "echo PERF_METRIC latency_ms=12", Version: "v1"},
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return doc
}

func TestRun_RequiresUserQuote(t *testing.T) {
	e, _ := newTestEngine(t)
	if _, err := e.Run(context.Background(), Input{}); err == nil {
		t.Fatal("Run without user quote = nil, want error")
	}
}

func TestRun_NoDocumentRequiresSetup(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Run(context.Background(), Input{
		Phase:     investigation.PhaseBaseline,
		UserQuote: "q",
	})
	if err == nil || !strings.Contains(err.Error(), "setup") {
		t.Fatalf("baseline with no document = %v, want setup-first error", err)
	}
}

func TestRun_SetupInitializesAndAdvances(t *testing.T) {
	e, dir := newTestEngine(t)
	doc := runSetup(t, e)

	if doc.ID == "" {
		t.Error("setup produced no id")
	}
	if doc.Phase != investigation.PhaseBaseline {
		t.Errorf("phase after setup = %s, want baseline", doc.Phase)
	}
	if doc.Status != investigation.StatusInProgress {
		t.Errorf("status = %s, want in_progress", doc.Status)
	}
	if doc.DocVersion != 1 {
		t.Errorf("doc version = %d, want 1", doc.DocVersion)
	}
	if _, err := os.Stat(filepath.Join(dir, investigation.DocumentFile)); err != nil {
		t.Errorf("document not persisted: %v", err)
	}
	log, err := os.ReadFile(filepath.Join(dir, "investigations", doc.ID+".md"))
	if err != nil {
		t.Fatalf("audit log: %v", err)
	}
	if !strings.Contains(string(log), "## Phase: setup") {
		t.Errorf("audit log missing setup section:\n%s", log)
	}
	if !strings.Contains(string(log), "> investigate checkout latency") {
		t.Errorf("audit log missing user quote:\n%s", log)
	}
}

func TestRun_SetupTwiceFails(t *testing.T) {
	e, _ := newTestEngine(t)
	runSetup(t, e)

	_, err := e.Run(context.Background(), Input{
		Phase:     investigation.PhaseSetup,
		UserQuote: "again",
		Scenario:  &investigation.Scenario{Description: "x"},
		Benchmark: &investigation.Benchmark{Command: "echo", Version: "v2"},
	})
	if err == nil {
		t.Fatal("second setup = nil, want error")
	}
}

func TestRun_BaselineRecordsAndAdvances(t *testing.T) {
	e, dir := newTestEngine(t)
	runSetup(t, e)

	doc, err := e.Run(context.Background(), Input{UserQuote: "establish the baseline"})
	if err != nil {
		t.Fatalf("baseline: %v", err)
	}
	if doc.Phase != investigation.PhaseBreakingPoint {
		t.Errorf("phase = %s, want breaking-point", doc.Phase)
	}
	if len(doc.Baselines) != 1 {
		t.Fatalf("baselines = %d, want 1", len(doc.Baselines))
	}
	ref := doc.Baselines[0]
	if ref.Version != "v1" || ref.Metrics["latency_ms"] != 12 {
		t.Errorf("baseline ref = %+v", ref)
	}
	if _, err := os.Stat(filepath.Join(dir, "baselines", "v1.json")); err != nil {
		t.Errorf("baseline record not persisted: %v", err)
	}
}

func TestRun_BreakingPointFindsTransition(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	runSetup(t, e)

	// Rebind the benchmark to one that fails at LOAD >= 40.
	if _, err := e.Run(ctx, Input{
		Phase:     investigation.PhaseBaseline,
		UserQuote: "baseline",
		Benchmark: &investigation.Benchmark{
			Command: `if [ "${LOAD:-1}" -lt 40 ]; then echo PERF_METRIC ok=1; else exit 1; fi`,
			Version: "v1",
		},
	}); err != nil {
		t.Fatalf("baseline: %v", err)
	}

	doc, err := e.Run(ctx, Input{
		UserQuote: "find the breaking point",
		ParamEnv:  "LOAD",
		Min:       1,
		Max:       64,
	})
	if err != nil {
		t.Fatalf("breaking-point: %v", err)
	}
	if doc.Phase != investigation.PhaseConstraints {
		t.Errorf("phase = %s, want constraints", doc.Phase)
	}
	if doc.BreakingPoint == nil || *doc.BreakingPoint != 40 {
		t.Errorf("breaking point = %v, want 40", doc.BreakingPoint)
	}
	if len(doc.BreakingPointHistory) == 0 {
		t.Error("no probe history recorded")
	}
}

func TestRun_BreakingPointRequiresParamEnv(t *testing.T) {
	e, _ := newTestEngine(t)
	runSetup(t, e)
	if _, err := e.Run(context.Background(), Input{UserQuote: "baseline"}); err != nil {
		t.Fatalf("baseline: %v", err)
	}

	_, err := e.Run(context.Background(), Input{UserQuote: "search", Max: 100})
	if err == nil || !strings.Contains(err.Error(), "paramEnv") {
		t.Fatalf("search without paramEnv = %v, want paramEnv error", err)
	}
}

func TestRun_FullWalkthrough(t *testing.T) {
	e, dir := newTestEngine(t)
	ctx := context.Background()
	quote := func(s string) Input { return Input{UserQuote: s} }

	doc := runSetup(t, e)
	id := doc.ID

	if _, err := e.Run(ctx, quote("baseline")); err != nil {
		t.Fatalf("baseline: %v", err)
	}

	in := quote("breaking point")
	in.ParamEnv = "LOAD"
	in.Max = 8
	if _, err := e.Run(ctx, in); err != nil {
		t.Fatalf("breaking-point: %v", err)
	}

	in = quote("constraints")
	in.MemoryMB = 4096
	if _, err := e.Run(ctx, in); err != nil {
		t.Fatalf("constraints: %v", err)
	}

	in = quote("hypotheses")
	in.Hypotheses = []investigation.Hypothesis{{ID: "h1", Hypothesis: "allocation churn in the encoder"}}
	if _, err := e.Run(ctx, in); err != nil {
		t.Fatalf("hypotheses: %v", err)
	}

	if _, err := e.Run(ctx, quote("code paths")); err != nil {
		t.Fatalf("code-paths: %v", err)
	}

	in = quote("profile it")
	in.ProfileCommand = "echo 40ms in encodeResponse"
	if _, err := e.Run(ctx, in); err != nil {
		t.Fatalf("profiling: %v", err)
	}

	in = quote("try pooling the buffers")
	in.ChangeSummary = "reuse encode buffers via sync.Pool"
	doc, err := e.Run(ctx, in)
	if err != nil {
		t.Fatalf("optimization: %v", err)
	}
	if len(doc.Experiments) != 1 {
		t.Fatalf("experiments = %d, want 1", len(doc.Experiments))
	}

	in = quote("ship it")
	in.Verdict = "adopt"
	in.Rationale = "latency held steady under the pooled encoder"
	if _, err := e.Run(ctx, in); err != nil {
		t.Fatalf("decision: %v", err)
	}

	doc, err = e.Run(ctx, quote("wrap up"))
	if err != nil {
		t.Fatalf("consolidation: %v", err)
	}
	if doc.Phase != investigation.PhaseComplete {
		t.Errorf("final phase = %s, want complete", doc.Phase)
	}
	if doc.Status != investigation.StatusComplete {
		t.Errorf("final status = %s, want complete", doc.Status)
	}

	report, err := os.ReadFile(filepath.Join(dir, ReportDir, id+".json"))
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	for _, want := range []string{id, "adopt", "sync.Pool", "latency_ms"} {
		if !strings.Contains(string(report), want) {
			t.Errorf("report missing %q", want)
		}
	}

	log, err := os.ReadFile(filepath.Join(dir, "investigations", id+".md"))
	if err != nil {
		t.Fatalf("audit log: %v", err)
	}
	for _, phase := range investigation.Phases()[:10] {
		if !strings.Contains(string(log), "## Phase: "+string(phase)) {
			t.Errorf("audit log missing section for %s", phase)
		}
	}

	// The terminal phase refuses to run again.
	if _, err := e.Run(ctx, quote("once more")); err == nil {
		t.Error("Run on complete investigation = nil, want error")
	}
}

func TestRun_ConstraintsRequireBaseline(t *testing.T) {
	e, _ := newTestEngine(t)
	runSetup(t, e)

	in := Input{Phase: investigation.PhaseConstraints, UserQuote: "q", CPUs: 1}
	if _, err := e.Run(context.Background(), in); err == nil || !strings.Contains(err.Error(), "baseline") {
		t.Fatalf("constraints without baseline = %v, want baseline error", err)
	}
}

func TestRun_HypothesesFromFile(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	runSetup(t, e)

	path := filepath.Join(t.TempDir(), "hypotheses.json")
	content := `[{"id": "h1", "hypothesis": "lock contention in the session store"}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := e.Run(ctx, Input{
		Phase:          investigation.PhaseHypotheses,
		UserQuote:      "load my hypotheses",
		HypothesesFile: path,
	})
	if err != nil {
		t.Fatalf("hypotheses: %v", err)
	}
	if len(doc.Hypotheses) != 1 || doc.Hypotheses[0].ID != "h1" {
		t.Errorf("hypotheses = %+v", doc.Hypotheses)
	}
	if doc.Phase != investigation.PhaseCodePaths {
		t.Errorf("phase = %s, want code-paths", doc.Phase)
	}
}

func TestRun_FailedPhaseDoesNotAdvance(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	runSetup(t, e)

	// A benchmark that always fails must leave the phase untouched.
	_, err := e.Run(ctx, Input{
		UserQuote: "baseline",
		Benchmark: &investigation.Benchmark{Command: "exit 3", Version: "v1"},
	})
	if err == nil {
		t.Fatal("failing baseline = nil, want error")
	}

	doc, err := e.Store().Read()
	if err != nil {
		t.Fatal(err)
	}
	if doc.Phase != investigation.PhaseBaseline {
		t.Errorf("phase after failed baseline = %s, want baseline", doc.Phase)
	}
	if len(doc.Baselines) != 0 {
		t.Errorf("baselines after failure = %d, want 0", len(doc.Baselines))
	}
}

func TestRun_ResumesFromDocumentPhase(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	runSetup(t, e)

	// A second engine over the same directory picks up where the first
	// left off without a pinned phase.
	e2 := New(e.stateDir, nil, nil)
	doc, err := e2.Run(ctx, Input{UserQuote: "continue"})
	if err != nil {
		t.Fatalf("resumed run: %v", err)
	}
	if doc.Phase != investigation.PhaseBreakingPoint {
		t.Errorf("resumed phase = %s, want breaking-point (baseline ran)", doc.Phase)
	}
	if len(doc.Baselines) != 1 {
		t.Errorf("baselines = %d, want 1", len(doc.Baselines))
	}
}

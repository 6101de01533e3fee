package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/HendryAvila/perfscope/internal/auditlog"
	"github.com/HendryAvila/perfscope/internal/baseline"
	"github.com/HendryAvila/perfscope/internal/breakpoint"
	"github.com/HendryAvila/perfscope/internal/constraint"
	"github.com/HendryAvila/perfscope/internal/experiment"
	"github.com/HendryAvila/perfscope/internal/hypotheses"
	"github.com/HendryAvila/perfscope/internal/investigation"
)

// ReportDir is the subdirectory of the state directory receiving the
// consolidated report.
const ReportDir = "report"

// docFilePath is the investigation document path, used as file evidence
// for phases whose only artifact is the document itself.
func (e *Engine) docFilePath() string {
	return filepath.Join(e.stateDir, investigation.DocumentFile)
}

// --- setup ---

func (e *Engine) runSetup(_ context.Context, doc *investigation.Investigation, in Input) (*phaseResult, error) {
	if doc != nil {
		return nil, fmt.Errorf("investigation %s already exists at %s", doc.ID, e.docFilePath())
	}
	if in.Scenario == nil || strings.TrimSpace(in.Scenario.Description) == "" {
		return nil, fmt.Errorf("a scenario description is required")
	}
	if in.Benchmark == nil {
		return nil, fmt.Errorf("a benchmark command and version are required")
	}
	bench, err := benchConfig(nil, in)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	scenario := *in.Scenario
	benchCopy := *bench

	return &phaseResult{
		apply: func(cur *investigation.Investigation) error {
			if cur.ID != "" {
				return fmt.Errorf("investigation %s was created concurrently", cur.ID)
			}
			fresh := investigation.New(id)
			fresh.Scenario = &scenario
			fresh.Benchmark = &benchCopy
			if err := advance(fresh, investigation.PhaseSetup); err != nil {
				return err
			}
			*cur = *fresh
			return nil
		},
		entry: auditlog.Entry{
			Summary: fmt.Sprintf("Started investigation %s: %s", id, strings.TrimSpace(in.Scenario.Description)),
			Evidence: auditlog.Evidence{
				Files: []string{e.docFilePath()},
			},
		},
	}, nil
}

// --- baseline ---

func (e *Engine) runBaseline(ctx context.Context, doc *investigation.Investigation, in Input) (*phaseResult, error) {
	bench, err := benchConfig(doc, in)
	if err != nil {
		return nil, err
	}

	series, err := e.bench.RunSeries(ctx, bench.Command, e.benchOptions(bench))
	if err != nil {
		return nil, err
	}

	rec := &baseline.Record{Command: bench.Command, Metrics: series.Metrics}
	if err := e.baselines.Write(bench.Version, rec); err != nil {
		return nil, err
	}
	path, err := e.baselines.Path(bench.Version)
	if err != nil {
		return nil, err
	}

	ref := investigation.BaselineRef{
		Version:    bench.Version,
		Path:       path,
		Metrics:    series.Metrics,
		RecordedAt: rec.RecordedAt,
	}
	benchCopy := *bench

	return &phaseResult{
		apply: func(cur *investigation.Investigation) error {
			cur.Benchmark = &benchCopy
			cur.Baselines = append(cur.Baselines, ref)
			return advance(cur, investigation.PhaseBaseline)
		},
		entry: auditlog.Entry{
			Summary: fmt.Sprintf("Established baseline %q from %d run(s) of %q.", bench.Version, series.Runs, bench.Command),
			Evidence: auditlog.Evidence{
				Commands: []string{bench.Command},
				Files:    []string{path},
				Metrics:  series.Metrics,
			},
		},
	}, nil
}

// --- breaking-point ---

func (e *Engine) runBreakingPoint(ctx context.Context, doc *investigation.Investigation, in Input) (*phaseResult, error) {
	bench, err := benchConfig(doc, in)
	if err != nil {
		return nil, err
	}
	if in.ParamEnv == "" {
		return nil, fmt.Errorf("paramEnv is required: name the environment variable carrying the probed value")
	}
	min := in.Min
	if min <= 0 {
		min = 1
	}
	if in.Max <= min {
		return nil, fmt.Errorf("invalid search range [%d, %d]: max must exceed min", min, in.Max)
	}

	prober, err := breakpoint.CommandProber(e.bench, bench.Command, in.ParamEnv, e.benchOptions(bench))
	if err != nil {
		return nil, err
	}
	res, err := breakpoint.Search(ctx, prober, breakpoint.Options{ParamEnv: in.ParamEnv, Min: min, Max: in.Max})
	if err != nil {
		return nil, err
	}

	summary := fmt.Sprintf("No breaking point: the system passes across [%d, %d] under %s.", min, in.Max, in.ParamEnv)
	evMetrics := map[string]float64{"probes": float64(len(res.History))}
	if res.BreakingPoint != nil {
		summary = fmt.Sprintf("System fails at %s=%d (searched [%d, %d] in %d probes).",
			in.ParamEnv, *res.BreakingPoint, min, in.Max, len(res.History))
		evMetrics["breakingPoint"] = float64(*res.BreakingPoint)
	}

	return &phaseResult{
		apply: func(cur *investigation.Investigation) error {
			cur.BreakingPoint = res.BreakingPoint
			cur.BreakingPointHistory = append(cur.BreakingPointHistory, res.History...)
			return advance(cur, investigation.PhaseBreakingPoint)
		},
		entry: auditlog.Entry{
			Summary: summary,
			Evidence: auditlog.Evidence{
				Commands: []string{bench.Command},
				Metrics:  evMetrics,
			},
		},
	}, nil
}

// --- constraints ---

func (e *Engine) runConstraints(ctx context.Context, doc *investigation.Investigation, in Input) (*phaseResult, error) {
	bench, err := benchConfig(doc, in)
	if err != nil {
		return nil, err
	}
	baseRec, err := e.activeBaseline(doc)
	if err != nil {
		return nil, err
	}

	limits := constraint.Limits{CPUs: in.CPUs, MemoryMB: in.MemoryMB}
	report, err := e.tester.Run(ctx, bench.Command, limits, e.benchOptions(bench), baseRec.Metrics)
	if err != nil {
		return nil, err
	}

	result := investigation.ConstraintResult{
		CPUs:       limits.CPUs,
		MemoryMB:   limits.MemoryMB,
		Metrics:    report.Metrics,
		Delta:      report.Delta,
		RecordedAt: timeNow().UTC().Format(timeLayout),
	}

	return &phaseResult{
		apply: func(cur *investigation.Investigation) error {
			cur.ConstraintResults = append(cur.ConstraintResults, result)
			return advance(cur, investigation.PhaseConstraints)
		},
		entry: auditlog.Entry{
			Summary: fmt.Sprintf("Benchmarked under limits (cpus=%d, memoryMb=%d) against baseline %q.",
				limits.CPUs, limits.MemoryMB, baseRec.Version),
			Evidence: auditlog.Evidence{
				Commands: []string{report.Command},
				Metrics:  report.Metrics,
			},
		},
	}, nil
}

// --- hypotheses ---

func (e *Engine) runHypotheses(_ context.Context, doc *investigation.Investigation, in Input) (*phaseResult, error) {
	var records []investigation.Hypothesis
	var sourceFile string

	switch {
	case len(in.Hypotheses) > 0:
		for i, h := range in.Hypotheses {
			if strings.TrimSpace(h.ID) == "" || strings.TrimSpace(h.Hypothesis) == "" {
				return nil, fmt.Errorf("hypothesis %d needs both an id and hypothesis text", i)
			}
		}
		records = in.Hypotheses
	case len(doc.Hypotheses) > 0:
		// Already recorded; the phase just confirms and advances.
	default:
		if in.HypothesesFile == "" {
			return nil, fmt.Errorf("no hypotheses recorded: provide them inline or via a hypotheses file")
		}
		loaded, err := hypotheses.Load(in.HypothesesFile)
		if err != nil {
			return nil, err
		}
		records = loaded
		sourceFile = in.HypothesesFile
	}

	summary := fmt.Sprintf("Recorded %d hypothes(es).", len(records))
	if len(records) == 0 {
		summary = fmt.Sprintf("Kept the %d hypothes(es) already recorded.", len(doc.Hypotheses))
	}
	files := []string{e.docFilePath()}
	if sourceFile != "" {
		files = append(files, sourceFile)
	}

	return &phaseResult{
		apply: func(cur *investigation.Investigation) error {
			seen := make(map[string]bool, len(cur.Hypotheses))
			for _, h := range cur.Hypotheses {
				seen[h.ID] = true
			}
			for _, h := range records {
				if seen[h.ID] {
					return fmt.Errorf("hypothesis id %q is already recorded", h.ID)
				}
				seen[h.ID] = true
				cur.Hypotheses = append(cur.Hypotheses, h)
			}
			return advance(cur, investigation.PhaseHypotheses)
		},
		entry: auditlog.Entry{
			Summary:  summary,
			Evidence: auditlog.Evidence{Files: files},
		},
	}, nil
}

// --- code-paths ---

func (e *Engine) runCodePaths(ctx context.Context, doc *investigation.Investigation, _ Input) (*phaseResult, error) {
	if e.paths == nil {
		return nil, fmt.Errorf("no code path index is available: index the project first")
	}
	if doc.Scenario == nil || doc.Scenario.Description == "" {
		return nil, fmt.Errorf("the investigation has no scenario to match code paths against")
	}

	suggestions, err := e.paths.Suggest(ctx, doc.Scenario.Description, 10)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		files = append(files, s.File)
	}
	summary := fmt.Sprintf("Matched %d candidate code path(s) against the scenario.", len(suggestions))
	if len(files) == 0 {
		files = []string{e.docFilePath()}
		summary = "The index returned no code paths matching the scenario."
	}

	return &phaseResult{
		apply: func(cur *investigation.Investigation) error {
			cur.CodePaths = append(cur.CodePaths, suggestions...)
			return advance(cur, investigation.PhaseCodePaths)
		},
		entry: auditlog.Entry{
			Summary:  summary,
			Evidence: auditlog.Evidence{Files: files},
		},
	}, nil
}

// --- profiling ---

func (e *Engine) runProfiling(ctx context.Context, _ *investigation.Investigation, in Input) (*phaseResult, error) {
	if strings.TrimSpace(in.ProfileCommand) == "" {
		return nil, fmt.Errorf("a profiling command is required")
	}

	out, err := exec.CommandContext(ctx, "sh", "-c", in.ProfileCommand).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("profiling command failed: %w\noutput: %s", err, tail(string(out), 512))
	}

	result := investigation.ProfilingResult{
		Command:    in.ProfileCommand,
		Summary:    tail(string(out), 2000),
		RecordedAt: timeNow().UTC().Format(timeLayout),
	}
	if result.Summary == "" {
		result.Summary = "(no output)"
	}

	return &phaseResult{
		apply: func(cur *investigation.Investigation) error {
			cur.ProfilingResults = append(cur.ProfilingResults, result)
			return advance(cur, investigation.PhaseProfiling)
		},
		entry: auditlog.Entry{
			Summary:  fmt.Sprintf("Captured profile via %q (%d bytes of output).", in.ProfileCommand, len(out)),
			Evidence: auditlog.Evidence{Commands: []string{in.ProfileCommand}},
		},
	}, nil
}

// --- optimization ---

func (e *Engine) runOptimization(ctx context.Context, doc *investigation.Investigation, in Input) (*phaseResult, error) {
	bench, err := benchConfig(doc, in)
	if err != nil {
		return nil, err
	}
	baseRec, err := e.activeBaseline(doc)
	if err != nil {
		return nil, err
	}

	outcome, err := experiment.NewRunner(e.bench, e.rules).
		Run(ctx, bench.Command, in.ChangeSummary, e.benchOptions(bench), baseRec.Metrics)
	if err != nil {
		return nil, err
	}

	now := timeNow().UTC().Format(timeLayout)
	exp := investigation.Experiment{
		ChangeSummary: outcome.ChangeSummary,
		Metrics:       outcome.Metrics,
		Delta:         outcome.Delta,
		Verdict:       string(outcome.Verdict),
		RecordedAt:    now,
	}
	result := investigation.Result{
		Phase:      investigation.PhaseOptimization,
		Summary:    fmt.Sprintf("%s: %s", outcome.Verdict, outcome.ChangeSummary),
		Metrics:    outcome.Metrics,
		RecordedAt: now,
	}

	return &phaseResult{
		apply: func(cur *investigation.Investigation) error {
			cur.Experiments = append(cur.Experiments, exp)
			cur.Results = append(cur.Results, result)
			return advance(cur, investigation.PhaseOptimization)
		},
		entry: auditlog.Entry{
			Summary: fmt.Sprintf("Experiment %q against baseline %q: %s.", outcome.ChangeSummary, baseRec.Version, outcome.Verdict),
			Evidence: auditlog.Evidence{
				Commands: []string{bench.Command},
				Metrics:  outcome.Metrics,
			},
		},
	}, nil
}

// --- decision ---

func (e *Engine) runDecision(_ context.Context, _ *investigation.Investigation, in Input) (*phaseResult, error) {
	if strings.TrimSpace(in.Verdict) == "" {
		return nil, fmt.Errorf("a verdict is required")
	}
	if strings.TrimSpace(in.Rationale) == "" {
		return nil, fmt.Errorf("a rationale is required: the decision must be explainable from the log alone")
	}

	decision := investigation.Decision{Verdict: in.Verdict, Rationale: in.Rationale}

	return &phaseResult{
		apply: func(cur *investigation.Investigation) error {
			cur.Decision = &decision
			return advance(cur, investigation.PhaseDecision)
		},
		entry: auditlog.Entry{
			Summary:  fmt.Sprintf("Decision: %s. %s", decision.Verdict, decision.Rationale),
			Evidence: auditlog.Evidence{Files: []string{e.docFilePath()}},
		},
	}, nil
}

// --- consolidation ---

// consolidatedReport is the final artifact written to <state>/report/.
type consolidatedReport struct {
	ID            string                           `json:"id"`
	Scenario      *investigation.Scenario          `json:"scenario,omitempty"`
	Benchmark     *investigation.Benchmark         `json:"benchmark,omitempty"`
	Baseline      *baseline.Record                 `json:"baseline,omitempty"`
	BreakingPoint *int                             `json:"breakingPoint"`
	Constraints   []investigation.ConstraintResult `json:"constraintResults,omitempty"`
	Hypotheses    []investigation.Hypothesis       `json:"hypotheses,omitempty"`
	CodePaths     []investigation.CodePath         `json:"codePaths,omitempty"`
	Profiling     []investigation.ProfilingResult  `json:"profilingResults,omitempty"`
	Experiments   []investigation.Experiment       `json:"experiments,omitempty"`
	Decision      *investigation.Decision          `json:"decision,omitempty"`
	GeneratedAt   string                           `json:"generatedAt"`
}

func (e *Engine) runConsolidation(_ context.Context, doc *investigation.Investigation, _ Input) (*phaseResult, error) {
	if doc.Decision == nil {
		return nil, fmt.Errorf("no decision recorded: run the decision phase first")
	}
	baseRec, err := e.activeBaseline(doc)
	if err != nil {
		return nil, err
	}

	report := consolidatedReport{
		ID:            doc.ID,
		Scenario:      doc.Scenario,
		Benchmark:     doc.Benchmark,
		Baseline:      baseRec,
		BreakingPoint: doc.BreakingPoint,
		Constraints:   doc.ConstraintResults,
		Hypotheses:    doc.Hypotheses,
		CodePaths:     doc.CodePaths,
		Profiling:     doc.ProfilingResults,
		Experiments:   doc.Experiments,
		Decision:      doc.Decision,
		GeneratedAt:   timeNow().UTC().Format(timeLayout),
	}

	path, err := investigation.SecureJoin(e.stateDir, ReportDir, doc.ID+".json")
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(&report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling report: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return nil, fmt.Errorf("writing report: %w", err)
	}

	return &phaseResult{
		apply: func(cur *investigation.Investigation) error {
			cur.Status = investigation.StatusComplete
			return advance(cur, investigation.PhaseConsolidation)
		},
		entry: auditlog.Entry{
			Summary:  fmt.Sprintf("Consolidated the investigation into %s. Verdict: %s.", path, doc.Decision.Verdict),
			Evidence: auditlog.Evidence{Files: []string{path}},
		},
	}, nil
}

// writeFileAtomic writes data via a temp file and rename, so a crash
// never leaves a half-written report.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// tail returns at most n trailing bytes of s.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

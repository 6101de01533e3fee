// Package engine is the phase state machine driving a performance
// investigation. Each invocation reads the persisted document, executes
// exactly one phase handler, applies the handler's effects through the
// investigation store's optimistic-concurrency update, appends one
// audit log entry, and returns.
//
// All external side effects of a phase (benchmark runs, baseline
// writes) happen before the document update, and the update itself is
// one atomic write — so a crash at any point leaves either the prior
// phase's document or the new one, never a half-applied phase, and
// resuming is just reading the document and continuing from its
// recorded phase.
package engine

import (
	"context"
	"fmt"

	"github.com/HendryAvila/perfscope/internal/auditlog"
	"github.com/HendryAvila/perfscope/internal/baseline"
	"github.com/HendryAvila/perfscope/internal/benchmark"
	"github.com/HendryAvila/perfscope/internal/config"
	"github.com/HendryAvila/perfscope/internal/constraint"
	"github.com/HendryAvila/perfscope/internal/experiment"
	"github.com/HendryAvila/perfscope/internal/investigation"
)

// CodePathSuggester supplies ranked candidate code paths for a scenario
// description. Satisfied by the codepaths index; injectable for tests.
type CodePathSuggester interface {
	Suggest(ctx context.Context, scenario string, limit int) ([]investigation.CodePath, error)
}

// Input carries one invocation's phase name and phase-specific inputs.
// Phase may be left empty to continue from the document's recorded
// phase; setting it pins a phase explicitly (resume-with-override).
type Input struct {
	Phase     investigation.Phase
	UserQuote string

	// setup
	Scenario  *investigation.Scenario
	Benchmark *investigation.Benchmark

	// breaking-point
	ParamEnv string
	Min, Max int

	// constraints
	CPUs     int
	MemoryMB int

	// hypotheses
	Hypotheses     []investigation.Hypothesis
	HypothesesFile string

	// profiling
	ProfileCommand string

	// optimization
	ChangeSummary string

	// decision
	Verdict   string
	Rationale string
}

// Engine wires the phase handlers to their stores and runners.
type Engine struct {
	store     *investigation.Store
	baselines *baseline.Store
	audit     *auditlog.Writer
	bench     *benchmark.Runner
	tester    *constraint.Tester
	paths     CodePathSuggester
	rules     experiment.Rules
	defaults  config.BenchmarkDefaults
	stateDir  string
}

// New creates an engine rooted at the given state directory. paths may
// be nil; the code-paths phase then reports that no index is available.
func New(stateDir string, cfg *config.Config, paths CodePathSuggester) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	runner := benchmark.NewRunner()
	return &Engine{
		store:     investigation.NewStore(stateDir),
		baselines: baseline.NewStore(stateDir),
		audit:     auditlog.NewWriter(stateDir),
		bench:     runner,
		tester:    constraint.NewTester(runner),
		paths:     paths,
		rules:     cfg.Rules(),
		defaults:  cfg.Benchmark,
		stateDir:  stateDir,
	}
}

// Store exposes the underlying investigation store, for callers that
// only need to read state.
func (e *Engine) Store() *investigation.Store {
	return e.store
}

// phaseResult is what a handler hands back: the document mutation to
// apply atomically, and the audit entry recording the phase.
type phaseResult struct {
	apply func(*investigation.Investigation) error
	entry auditlog.Entry
}

// Run executes exactly one phase transition and returns the updated
// document. A handler that cannot proceed errors before anything is
// persisted; a failed update surfaces without the phase advancing.
func (e *Engine) Run(ctx context.Context, in Input) (*investigation.Investigation, error) {
	if in.UserQuote == "" {
		return nil, fmt.Errorf("user quote is required: the audit log records the literal request behind every phase")
	}

	doc, err := e.store.Read()
	if err != nil {
		return nil, err
	}

	phase := in.Phase
	if phase == "" {
		if doc == nil {
			phase = investigation.PhaseSetup
		} else {
			phase = doc.Phase
		}
	}
	if err := investigation.ValidatePhase(phase); err != nil {
		return nil, err
	}
	if doc == nil && phase != investigation.PhaseSetup {
		return nil, fmt.Errorf("no investigation exists: run the setup phase first")
	}

	var res *phaseResult
	switch phase {
	case investigation.PhaseSetup:
		res, err = e.runSetup(ctx, doc, in)
	case investigation.PhaseBaseline:
		res, err = e.runBaseline(ctx, doc, in)
	case investigation.PhaseBreakingPoint:
		res, err = e.runBreakingPoint(ctx, doc, in)
	case investigation.PhaseConstraints:
		res, err = e.runConstraints(ctx, doc, in)
	case investigation.PhaseHypotheses:
		res, err = e.runHypotheses(ctx, doc, in)
	case investigation.PhaseCodePaths:
		res, err = e.runCodePaths(ctx, doc, in)
	case investigation.PhaseProfiling:
		res, err = e.runProfiling(ctx, doc, in)
	case investigation.PhaseOptimization:
		res, err = e.runOptimization(ctx, doc, in)
	case investigation.PhaseDecision:
		res, err = e.runDecision(ctx, doc, in)
	case investigation.PhaseConsolidation:
		res, err = e.runConsolidation(ctx, doc, in)
	case investigation.PhaseComplete:
		return nil, fmt.Errorf("investigation %s is already complete", doc.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s phase: %w", phase, err)
	}

	updated, err := e.store.Update(res.apply)
	if err != nil {
		return nil, fmt.Errorf("%s phase: applying state: %w", phase, err)
	}

	entry := res.entry
	entry.Phase = phase
	entry.UserQuote = in.UserQuote
	if err := e.audit.Append(updated.ID, entry); err != nil {
		return nil, fmt.Errorf("%s phase: audit log: %w", phase, err)
	}

	return updated, nil
}

// benchConfig resolves the active benchmark configuration: explicit
// input wins, then the document's recorded configuration.
func benchConfig(doc *investigation.Investigation, in Input) (*investigation.Benchmark, error) {
	if in.Benchmark != nil {
		if in.Benchmark.Command == "" || in.Benchmark.Version == "" {
			return nil, fmt.Errorf("benchmark configuration needs both command and version")
		}
		return in.Benchmark, nil
	}
	if doc != nil && doc.Benchmark != nil {
		return doc.Benchmark, nil
	}
	return nil, fmt.Errorf("no benchmark configured: provide command and version")
}

// benchOptions turns a benchmark configuration into runner options,
// falling back to the configured project defaults.
func (e *Engine) benchOptions(b *investigation.Benchmark) benchmark.Options {
	opts := benchmark.Options{
		Runs:      b.Runs,
		Aggregate: benchmark.Aggregate(b.Aggregate),
		Duration:  b.Duration,
	}
	if opts.Runs == 0 {
		opts.Runs = e.defaults.Runs
	}
	if opts.Aggregate == "" {
		opts.Aggregate = benchmark.Aggregate(e.defaults.Aggregate)
	}
	if opts.Duration == 0 {
		opts.Duration = e.defaults.Duration
	}
	return opts
}

// activeBaseline returns the most recently recorded baseline's full
// record from the baseline store.
func (e *Engine) activeBaseline(doc *investigation.Investigation) (*baseline.Record, error) {
	if doc == nil || len(doc.Baselines) == 0 {
		return nil, fmt.Errorf("no baseline recorded: run the baseline phase first")
	}
	ref := doc.Baselines[len(doc.Baselines)-1]
	rec, err := e.baselines.Read(ref.Version)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("baseline %q is recorded in the document but missing from the baseline store", ref.Version)
	}
	return rec, nil
}

// advance moves the document to the phase after p.
func advance(cur *investigation.Investigation, p investigation.Phase) error {
	next, err := investigation.NextPhase(p)
	if err != nil {
		return err
	}
	cur.Phase = next
	return nil
}

// Package investigation holds the durable state of a performance
// investigation: the document schema, the phase state machine, and the
// optimistic-concurrency file store that persists it.
//
// One investigation exists per state directory. Every phase of the engine
// reads the document, applies its effects through a single atomic update,
// and advances the phase pointer. The package is deliberately free of any
// benchmark-execution logic — it only knows about state.
package investigation

import (
	"fmt"
	"strings"
)

// SchemaVersion is the current document schema revision. A persisted
// document carrying a different value is treated as a migration signal
// by callers, never silently rewritten.
const SchemaVersion = 1

// --- Phase enum ---

// Phase is one named stage of the investigation state machine.
type Phase string

const (
	PhaseSetup         Phase = "setup"
	PhaseBaseline      Phase = "baseline"
	PhaseBreakingPoint Phase = "breaking-point"
	PhaseConstraints   Phase = "constraints"
	PhaseHypotheses    Phase = "hypotheses"
	PhaseCodePaths     Phase = "code-paths"
	PhaseProfiling     Phase = "profiling"
	PhaseOptimization  Phase = "optimization"
	PhaseDecision      Phase = "decision"
	PhaseConsolidation Phase = "consolidation"
	PhaseComplete      Phase = "complete"
)

// phaseOrder is the fixed forward ordering of the state machine.
var phaseOrder = []Phase{
	PhaseSetup,
	PhaseBaseline,
	PhaseBreakingPoint,
	PhaseConstraints,
	PhaseHypotheses,
	PhaseCodePaths,
	PhaseProfiling,
	PhaseOptimization,
	PhaseDecision,
	PhaseConsolidation,
	PhaseComplete,
}

// Phases returns the full phase ordering, setup first, complete last.
func Phases() []Phase {
	out := make([]Phase, len(phaseOrder))
	copy(out, phaseOrder)
	return out
}

// PhaseIndex returns the ordinal position of p, or -1 if unknown.
func PhaseIndex(p Phase) int {
	for i, q := range phaseOrder {
		if q == p {
			return i
		}
	}
	return -1
}

// ValidatePhase returns an error if p is not a recognized phase name.
func ValidatePhase(p Phase) error {
	if PhaseIndex(p) < 0 {
		names := make([]string, len(phaseOrder))
		for i, q := range phaseOrder {
			names[i] = string(q)
		}
		return fmt.Errorf("invalid phase %q: must be one of: %s", p, strings.Join(names, ", "))
	}
	return nil
}

// NextPhase returns the phase that follows p in the fixed ordering.
// The terminal phase has no successor.
func NextPhase(p Phase) (Phase, error) {
	idx := PhaseIndex(p)
	if idx < 0 {
		return "", fmt.Errorf("unknown phase %q", p)
	}
	if idx == len(phaseOrder)-1 {
		return "", fmt.Errorf("phase %q is terminal", p)
	}
	return phaseOrder[idx+1], nil
}

// --- Status enum ---

// Status tracks the overall lifecycle of an investigation.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
)

// --- Document structures ---

// Scenario captures the free-form intent of the investigation.
type Scenario struct {
	Description     string   `json:"description"`
	Metrics         []string `json:"metrics,omitempty"`
	SuccessCriteria string   `json:"successCriteria,omitempty"`
	Scenarios       []string `json:"scenarios,omitempty"`
}

// Benchmark is the active benchmark configuration, reused across phases.
type Benchmark struct {
	Command string `json:"command"`
	Version string `json:"version"`
	// Duration bounds a single run, in seconds. Exported to the benchmark
	// process; the engine itself does not enforce it.
	Duration  int    `json:"duration,omitempty"`
	Runs      int    `json:"runs,omitempty"`
	Aggregate string `json:"aggregate,omitempty"`
}

// BaselineRef records a baseline captured during the baseline phase.
// The full record lives in the baseline store; this is the document's
// pointer to it.
type BaselineRef struct {
	Version    string             `json:"version"`
	Path       string             `json:"path"`
	Metrics    map[string]float64 `json:"metrics"`
	RecordedAt string             `json:"recordedAt"`
}

// Hypothesis is one candidate explanation under investigation.
type Hypothesis struct {
	ID         string   `json:"id"`
	Hypothesis string   `json:"hypothesis"`
	Confidence string   `json:"confidence,omitempty"`
	Evidence   []string `json:"evidence,omitempty"`
}

// CodePath is a ranked candidate location returned by the symbol index.
type CodePath struct {
	File    string   `json:"file"`
	Score   float64  `json:"score"`
	Symbols []string `json:"symbols,omitempty"`
}

// Experiment records one optimization attempt and its verdict.
type Experiment struct {
	ChangeSummary string             `json:"changeSummary"`
	Metrics       map[string]float64 `json:"metrics"`
	Delta         map[string]float64 `json:"delta"`
	Verdict       string             `json:"verdict"`
	RecordedAt    string             `json:"recordedAt"`
}

// Result is a generic per-phase outcome snapshot.
type Result struct {
	Phase      Phase              `json:"phase"`
	Summary    string             `json:"summary"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	RecordedAt string             `json:"recordedAt"`
}

// ConstraintResult records a benchmark run under resource limits.
type ConstraintResult struct {
	CPUs       int                `json:"cpus,omitempty"`
	MemoryMB   int                `json:"memoryMb,omitempty"`
	Metrics    map[string]float64 `json:"metrics"`
	Delta      map[string]float64 `json:"delta"`
	RecordedAt string             `json:"recordedAt"`
}

// ProfilingResult records a profiling run's command and output summary.
type ProfilingResult struct {
	Command    string `json:"command"`
	Summary    string `json:"summary"`
	RecordedAt string `json:"recordedAt"`
}

// Probe is one breaking-point search sample.
type Probe struct {
	Value  int  `json:"value"`
	Passed bool `json:"passed"`
}

// Decision is the evidence-backed conclusion of the investigation.
type Decision struct {
	Verdict   string `json:"verdict"`
	Rationale string `json:"rationale"`
}

// Investigation is the root document, persisted as investigation.json.
//
// All slice fields are append-only: phase handlers add entries and never
// mutate prior ones. DocVersion is the optimistic-concurrency token —
// the store increments it by exactly one on every successful write.
type Investigation struct {
	ID       string    `json:"id"`
	Status   Status    `json:"status"`
	Phase    Phase     `json:"phase"`
	Scenario *Scenario `json:"scenario,omitempty"`

	Benchmark *Benchmark `json:"benchmark,omitempty"`

	Baselines            []BaselineRef      `json:"baselines"`
	Hypotheses           []Hypothesis       `json:"hypotheses"`
	CodePaths            []CodePath         `json:"codePaths"`
	Experiments          []Experiment       `json:"experiments"`
	Results              []Result           `json:"results"`
	ConstraintResults    []ConstraintResult `json:"constraintResults"`
	ProfilingResults     []ProfilingResult  `json:"profilingResults"`
	BreakingPoint        *int               `json:"breakingPoint"`
	BreakingPointHistory []Probe            `json:"breakingPointHistory"`

	Decision *Decision `json:"decision"`

	SchemaVersion int    `json:"schemaVersion"`
	DocVersion    int64  `json:"_version"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

// New returns a fresh in_progress investigation at the setup phase.
// The store stamps _version and updatedAt on first write.
func New(id string) *Investigation {
	now := timeNow().UTC().Format(timeLayout)
	return &Investigation{
		ID:            id,
		Status:        StatusInProgress,
		Phase:         PhaseSetup,
		SchemaVersion: SchemaVersion,
		CreatedAt:     now,
	}
}

// ValidateID rejects identifiers that could escape the state directory.
// IDs are embedded in file paths, so the charset is restricted: letters,
// digits, dot, underscore and hyphen, no leading dot, no separators.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("investigation id is empty")
	}
	if strings.ContainsRune(id, 0) {
		return fmt.Errorf("investigation id contains NUL byte")
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("investigation id %q contains path traversal", id)
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("investigation id %q contains path separator", id)
	}
	if id[0] == '.' {
		return fmt.Errorf("investigation id %q starts with a dot", id)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return fmt.Errorf("investigation id %q contains invalid character %q", id, r)
		}
	}
	return nil
}

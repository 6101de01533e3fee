// Package experiment runs an optimization experiment: benchmark after a
// described code change, diff against the active baseline, and classify
// the outcome as improved, regressed, or no-significant-change.
//
// Classification uses a per-metric tolerance band around zero delta,
// because latency and throughput have different noise floors. A change
// without a stated hypothesis of why it should help is rejected — the
// audit log must never carry an unexplained experiment.
package experiment

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/HendryAvila/perfscope/internal/benchmark"
	"github.com/HendryAvila/perfscope/internal/constraint"
)

// --- Verdicts ---

// Verdict classifies an experiment's effect on performance.
type Verdict string

const (
	VerdictImproved  Verdict = "improved"
	VerdictRegressed Verdict = "regressed"
	VerdictNoChange  Verdict = "no-significant-change"
)

// Direction states which way a metric is supposed to move.
type Direction string

const (
	// LowerIsBetter fits latency-style metrics. It is the default.
	LowerIsBetter Direction = "lower"
	// HigherIsBetter fits throughput-style metrics.
	HigherIsBetter Direction = "higher"
)

// MetricRule is the per-metric classification rule.
type MetricRule struct {
	// Tolerance is the absolute band around zero delta inside which a
	// change counts as noise.
	Tolerance float64
	// Better is the improvement direction; empty means lower-is-better.
	Better Direction
}

// Rules maps metric keys to their classification rules. Metrics without
// an entry use DefaultRule.
type Rules map[string]MetricRule

// DefaultRule applies to metrics with no configured rule: any nonzero
// delta beyond a zero-width band is significant, lower is better.
var DefaultRule = MetricRule{Tolerance: 0, Better: LowerIsBetter}

// Outcome is the result of one experiment.
type Outcome struct {
	ChangeSummary string
	Metrics       map[string]float64
	Delta         map[string]float64
	Verdict       Verdict
	// PerMetric records each metric's individual classification, so a
	// mixed result is explainable from the audit log.
	PerMetric map[string]Verdict
}

// Runner executes experiments on top of the benchmark runner.
type Runner struct {
	runner *benchmark.Runner
	rules  Rules
}

// NewRunner creates an experiment Runner with the given per-metric
// rules. rules may be nil; every metric then uses DefaultRule.
func NewRunner(r *benchmark.Runner, rules Rules) *Runner {
	return &Runner{runner: r, rules: rules}
}

// Run benchmarks command after the described change and renders a
// verdict against baseline. changeSummary is mandatory.
func (r *Runner) Run(ctx context.Context, command, changeSummary string, opts benchmark.Options, baseline map[string]float64) (*Outcome, error) {
	if strings.TrimSpace(changeSummary) == "" {
		return nil, fmt.Errorf("change summary is required: state why the change should help before measuring it")
	}
	if len(baseline) == 0 {
		return nil, fmt.Errorf("experiment requires a baseline to diff against")
	}

	series, err := r.runner.RunSeries(ctx, command, opts)
	if err != nil {
		return nil, fmt.Errorf("experiment benchmark: %w", err)
	}

	delta := constraint.Delta(series.Metrics, baseline)
	perMetric := r.classifyAll(delta)

	return &Outcome{
		ChangeSummary: changeSummary,
		Metrics:       series.Metrics,
		Delta:         delta,
		Verdict:       overall(perMetric),
		PerMetric:     perMetric,
	}, nil
}

// classifyAll applies each metric's rule to its delta.
func (r *Runner) classifyAll(delta map[string]float64) map[string]Verdict {
	out := make(map[string]Verdict, len(delta))
	for k, d := range delta {
		rule, ok := r.rules[k]
		if !ok {
			rule = DefaultRule
		}
		out[k] = classify(d, rule)
	}
	return out
}

// classify renders one metric's verdict from its delta and rule.
func classify(delta float64, rule MetricRule) Verdict {
	if math.Abs(delta) <= rule.Tolerance {
		return VerdictNoChange
	}
	better := rule.Better
	if better == "" {
		better = LowerIsBetter
	}
	improved := delta < 0
	if better == HigherIsBetter {
		improved = delta > 0
	}
	if improved {
		return VerdictImproved
	}
	return VerdictRegressed
}

// overall collapses per-metric verdicts: any regression dominates, then
// any improvement, then no change. A regression hidden behind an
// improvement elsewhere must never read as a win.
func overall(perMetric map[string]Verdict) Verdict {
	verdict := VerdictNoChange
	for _, v := range perMetric {
		switch v {
		case VerdictRegressed:
			return VerdictRegressed
		case VerdictImproved:
			verdict = VerdictImproved
		}
	}
	return verdict
}

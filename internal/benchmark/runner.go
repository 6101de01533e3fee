// Package benchmark executes a benchmark command as a subprocess,
// repeats it a configurable number of times, and aggregates the metrics
// each run emits.
//
// A benchmark cooperates by printing metric markers on stdout or stderr,
// one per line:
//
//	PERF_METRIC latency_ms=12.4
//	PERF_METRIC throughput_rps=5120
//
// A run that exits nonzero, or that emits zero parseable markers, fails
// the whole series — partial or fabricated results are never returned.
// Runs execute strictly sequentially so they never contend with each
// other for the resources being measured.
package benchmark

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// metricMarker matches one metric line: PERF_METRIC <key>=<number>.
var metricMarker = regexp.MustCompile(`(?m)^\s*PERF_METRIC\s+([A-Za-z0-9_.-]+)=(-?[0-9]+(?:\.[0-9]+)?(?:[eE][+-]?[0-9]+)?)\s*$`)

// Options configures a benchmark series.
type Options struct {
	// Runs is the number of times the command executes. Zero or one
	// means a single run with no aggregation.
	Runs int
	// Aggregate collapses per-run samples. Empty defaults to median
	// when Runs > 1; it is ignored for a single run.
	Aggregate Aggregate
	// Duration bounds a single run, in seconds. It is exported to the
	// benchmark process as PERF_DURATION; the process enforces it.
	Duration int
	// Env is appended to the subprocess environment, one KEY=VALUE
	// entry per element.
	Env []string
	// Dir is the working directory for the subprocess. Empty means
	// the caller's working directory.
	Dir string
}

// Series is the aggregated outcome of a benchmark series.
type Series struct {
	// Metrics maps each metric key to its aggregated value.
	Metrics map[string]float64
	// Samples holds the raw per-run values behind each aggregate.
	Samples map[string][]float64
	// Runs is the number of runs actually executed.
	Runs int
	// Aggregate is the method that produced Metrics.
	Aggregate Aggregate
	// Commands lists each command invocation, for audit evidence.
	Commands []string
}

// Runner executes benchmark commands through the shell.
type Runner struct {
	// execCommand builds the subprocess; a package seam for tests.
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewRunner creates a Runner using the real exec package.
func NewRunner() *Runner {
	return &Runner{execCommand: exec.CommandContext}
}

// RunSeries executes command opts.Runs times and aggregates the metrics
// across runs. Each metric key is aggregated independently; a key
// missing from some runs is aggregated over the runs that reported it.
func (r *Runner) RunSeries(ctx context.Context, command string, opts Options) (*Series, error) {
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("benchmark command is empty")
	}

	runs := opts.Runs
	if runs <= 0 {
		runs = 1
	}
	method := opts.Aggregate
	if method == "" {
		method = AggregateMedian
	}
	if err := ValidateAggregate(method); err != nil {
		return nil, err
	}

	samples := make(map[string][]float64)
	commands := make([]string, 0, runs)
	for i := 0; i < runs; i++ {
		metrics, err := r.runOnce(ctx, command, opts)
		if err != nil {
			return nil, fmt.Errorf("run %d/%d: %w", i+1, runs, err)
		}
		commands = append(commands, command)
		for k, v := range metrics {
			samples[k] = append(samples[k], v)
		}
	}

	result := &Series{
		Metrics:   make(map[string]float64, len(samples)),
		Samples:   samples,
		Runs:      runs,
		Aggregate: method,
		Commands:  commands,
	}
	for k, vals := range samples {
		agg, err := aggregate(vals, method)
		if err != nil {
			return nil, fmt.Errorf("aggregating %q: %w", k, err)
		}
		result.Metrics[k] = agg
	}
	return result, nil
}

// runOnce executes a single run and parses its metric markers.
func (r *Runner) runOnce(ctx context.Context, command string, opts Options) (map[string]float64, error) {
	cmd := r.execCommand(ctx, "sh", "-c", command)
	cmd.Dir = opts.Dir
	cmd.Env = os.Environ()
	if opts.Duration > 0 {
		cmd.Env = append(cmd.Env, fmt.Sprintf("PERF_DURATION=%d", opts.Duration))
	}
	cmd.Env = append(cmd.Env, opts.Env...)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("benchmark command failed: %w\noutput: %s", err, tail(string(out), 512))
	}

	metrics := ParseMetrics(string(out))
	if len(metrics) == 0 {
		return nil, fmt.Errorf("benchmark emitted no PERF_METRIC markers\noutput: %s", tail(string(out), 512))
	}
	return metrics, nil
}

// ParseMetrics extracts all metric markers from benchmark output.
// When a key repeats within one run, the last value wins.
func ParseMetrics(output string) map[string]float64 {
	matches := metricMarker.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return nil
	}
	metrics := make(map[string]float64, len(matches))
	for _, m := range matches {
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		metrics[m[1]] = v
	}
	return metrics
}

// tail returns at most n trailing bytes of s, for error context.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

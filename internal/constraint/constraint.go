// Package constraint runs a benchmark with the subprocess pinned under
// CPU and memory limits, and reports both the raw constrained metrics
// and their delta against a baseline — so "slower under constraint" is
// distinguishable from "the baseline itself drifted".
package constraint

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/HendryAvila/perfscope/internal/benchmark"
)

// Limits are the resource bounds applied to the benchmark subprocess.
// Zero values mean unconstrained on that axis.
type Limits struct {
	// CPUs caps the number of usable CPU cores.
	CPUs int
	// MemoryMB caps the subprocess address space.
	MemoryMB int
}

// Report is the outcome of a constrained benchmark.
type Report struct {
	Limits  Limits
	Metrics map[string]float64
	// Delta is constrained metric minus baseline metric, per key
	// present in both.
	Delta map[string]float64
	// Command is the wrapped command actually executed, for evidence.
	Command string
}

// Tester drives constrained benchmark runs.
type Tester struct {
	runner *benchmark.Runner
	goos   string
}

// NewTester creates a Tester on the given benchmark runner.
func NewTester(r *benchmark.Runner) *Tester {
	return &Tester{runner: r, goos: runtime.GOOS}
}

// Run executes command under limits and computes the delta against
// baseline. At least one limit must be set — an unconstrained run is a
// plain benchmark, not a constraint test.
func (t *Tester) Run(ctx context.Context, command string, limits Limits, opts benchmark.Options, baseline map[string]float64) (*Report, error) {
	if limits.CPUs < 0 || limits.MemoryMB < 0 {
		return nil, fmt.Errorf("negative resource limit: cpus=%d memoryMb=%d", limits.CPUs, limits.MemoryMB)
	}
	if limits.CPUs == 0 && limits.MemoryMB == 0 {
		return nil, fmt.Errorf("constraint test requires a cpu or memory limit")
	}
	if len(baseline) == 0 {
		return nil, fmt.Errorf("constraint test requires a baseline to diff against")
	}

	wrapped := wrapCommand(command, limits, t.goos)
	series, err := t.runner.RunSeries(ctx, wrapped, opts)
	if err != nil {
		return nil, fmt.Errorf("constrained benchmark: %w", err)
	}

	return &Report{
		Limits:  limits,
		Metrics: series.Metrics,
		Delta:   Delta(series.Metrics, baseline),
		Command: wrapped,
	}, nil
}

// Delta returns measured minus baseline for every key present in both
// maps. Keys missing on either side are omitted rather than fabricated.
func Delta(measured, baseline map[string]float64) map[string]float64 {
	delta := make(map[string]float64)
	for k, v := range measured {
		if base, ok := baseline[k]; ok {
			delta[k] = v - base
		}
	}
	return delta
}

// wrapCommand prefixes command with the shell plumbing that applies the
// limits. The memory cap uses the shell's address-space ulimit; the CPU
// cap pins the process to the first N cores via taskset on Linux and
// falls back to GOMAXPROCS-style env hints elsewhere.
func wrapCommand(command string, limits Limits, goos string) string {
	var b strings.Builder
	if limits.MemoryMB > 0 {
		fmt.Fprintf(&b, "ulimit -v %d; ", limits.MemoryMB*1024)
	}
	if limits.CPUs > 0 {
		fmt.Fprintf(&b, "export GOMAXPROCS=%d PERF_CPUS=%d; ", limits.CPUs, limits.CPUs)
		if goos == "linux" {
			fmt.Fprintf(&b, "exec taskset -c 0-%d sh -c %s", limits.CPUs-1, shellQuote(command))
			return b.String()
		}
	}
	b.WriteString(command)
	return b.String()
}

// shellQuote single-quotes s for safe embedding in a shell command.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

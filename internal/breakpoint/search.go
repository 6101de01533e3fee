// Package breakpoint locates the parameter value at which a benchmarked
// system transitions from passing to failing.
//
// The search probes strictly sequentially — concurrent probes would
// contend for the resources being measured and invalidate the result —
// and is bounded at 1 + ceil(log2(max-min)) probes: one probe at max to
// detect the no-transition case, then classic bisection.
package breakpoint

import (
	"context"
	"fmt"

	"github.com/HendryAvila/perfscope/internal/benchmark"
	"github.com/HendryAvila/perfscope/internal/investigation"
)

// Prober reports whether the system passes at the given parameter value.
// A benchmark failure (nonzero exit, no metrics) is a failed probe, not
// a search error.
type Prober func(ctx context.Context, value int) bool

// Result is the outcome of a search. BreakingPoint is nil when no
// pass-to-fail transition exists in the probed range; History always
// holds every probe as evidence, transition or not.
type Result struct {
	BreakingPoint *int
	History       []investigation.Probe
}

// Options configures a search over an inclusive integer range. The
// probed value is injected into the benchmark's environment under
// ParamEnv (e.g. CONCURRENCY=250).
type Options struct {
	ParamEnv string
	Min      int
	Max      int
}

// Search bisects [opts.Min, opts.Max] for the lowest failing value.
//
// The search assumes the system passes at Min. If every probe fails,
// the reported breaking point converges to Min+1 and the all-failing
// history tells the caller to widen the range downward.
func Search(ctx context.Context, probe Prober, opts Options) (*Result, error) {
	if opts.Max < opts.Min {
		return nil, fmt.Errorf("invalid range [%d, %d]: max below min", opts.Min, opts.Max)
	}

	res := &Result{}
	record := func(value int) bool {
		passed := probe(ctx, value)
		res.History = append(res.History, investigation.Probe{Value: value, Passed: passed})
		return passed
	}

	// One probe at the top of the range answers "is there a transition
	// at all" before any bisection work.
	if record(opts.Max) {
		return res, nil
	}

	lo, hi := opts.Min, opts.Max
	for hi-lo > 1 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("search interrupted: %w", err)
		}
		mid := lo + (hi-lo)/2
		if record(mid) {
			lo = mid
		} else {
			hi = mid
		}
	}

	bp := hi
	res.BreakingPoint = &bp
	return res, nil
}

// CommandProber adapts the benchmark runner into a Prober: each probe
// runs the command once with the parameter exported under paramEnv, and
// passes iff the run succeeds with metrics.
func CommandProber(r *benchmark.Runner, command, paramEnv string, opts benchmark.Options) (Prober, error) {
	if paramEnv == "" {
		return nil, fmt.Errorf("paramEnv is required: the probe value must reach the benchmark")
	}
	return func(ctx context.Context, value int) bool {
		probeOpts := opts
		probeOpts.Runs = 1
		probeOpts.Env = append(append([]string{}, opts.Env...), fmt.Sprintf("%s=%d", paramEnv, value))
		_, err := r.RunSeries(ctx, command, probeOpts)
		return err == nil
	}, nil
}

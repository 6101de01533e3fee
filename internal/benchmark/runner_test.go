package benchmark

import (
	"context"
	"math"
	"strings"
	"testing"
)

// --- Aggregation ---

func TestAggregate_SpecSamples(t *testing.T) {
	samples := []float64{10, 12, 11, 50, 9}

	med, err := aggregate(samples, AggregateMedian)
	if err != nil {
		t.Fatalf("median: %v", err)
	}
	if med != 11 {
		t.Errorf("median = %v, want 11", med)
	}

	m, err := aggregate(samples, AggregateMean)
	if err != nil {
		t.Fatalf("mean: %v", err)
	}
	if math.Abs(m-18.4) > 1e-9 {
		t.Errorf("mean = %v, want 18.4", m)
	}

	lo, _ := aggregate(samples, AggregateMin)
	if lo != 9 {
		t.Errorf("min = %v, want 9", lo)
	}
	hi, _ := aggregate(samples, AggregateMax)
	if hi != 50 {
		t.Errorf("max = %v, want 50", hi)
	}
}

func TestMedian_EvenCount(t *testing.T) {
	if got := median([]float64{1, 2, 3, 4}); got != 2.5 {
		t.Errorf("median of even count = %v, want 2.5", got)
	}
}

func TestAggregate_DoesNotMutateInput(t *testing.T) {
	samples := []float64{3, 1, 2}
	_, _ = aggregate(samples, AggregateMedian)
	if samples[0] != 3 || samples[1] != 1 || samples[2] != 2 {
		t.Errorf("aggregate sorted the caller's slice: %v", samples)
	}
}

func TestValidateAggregate(t *testing.T) {
	for _, a := range []Aggregate{AggregateMedian, AggregateMean, AggregateMin, AggregateMax} {
		if err := ValidateAggregate(a); err != nil {
			t.Errorf("ValidateAggregate(%s) = %v", a, err)
		}
	}
	if err := ValidateAggregate("p95"); err == nil {
		t.Error("ValidateAggregate(p95) = nil, want error")
	}
}

// --- Marker parsing ---

func TestParseMetrics(t *testing.T) {
	out := `
starting up
PERF_METRIC latency_ms=12.4
noise PERF_METRIC not_at_line_start=1
PERF_METRIC throughput_rps=5120
  PERF_METRIC p99.latency-ms=1.5e2
done
`
	got := ParseMetrics(out)
	if len(got) != 3 {
		t.Fatalf("parsed %d metrics, want 3: %v", len(got), got)
	}
	if got["latency_ms"] != 12.4 {
		t.Errorf("latency_ms = %v", got["latency_ms"])
	}
	if got["throughput_rps"] != 5120 {
		t.Errorf("throughput_rps = %v", got["throughput_rps"])
	}
	if got["p99.latency-ms"] != 150 {
		t.Errorf("p99.latency-ms = %v", got["p99.latency-ms"])
	}
}

func TestParseMetrics_LastValueWins(t *testing.T) {
	got := ParseMetrics("PERF_METRIC x=1\nPERF_METRIC x=2\n")
	if got["x"] != 2 {
		t.Errorf("x = %v, want 2", got["x"])
	}
}

func TestParseMetrics_NoMarkers(t *testing.T) {
	if got := ParseMetrics("hello world"); got != nil {
		t.Errorf("ParseMetrics(no markers) = %v, want nil", got)
	}
}

// --- RunSeries ---

func TestRunSeries_SingleRun(t *testing.T) {
	r := NewRunner()
	got, err := r.RunSeries(context.Background(), "echo PERF_METRIC latency_ms=42", Options{})
	if err != nil {
		t.Fatalf("RunSeries: %v", err)
	}
	if got.Metrics["latency_ms"] != 42 {
		t.Errorf("latency_ms = %v, want 42", got.Metrics["latency_ms"])
	}
	if got.Runs != 1 {
		t.Errorf("Runs = %d, want 1", got.Runs)
	}
}

func TestRunSeries_MedianAcrossRuns(t *testing.T) {
	r := NewRunner()
	// Each run reads and increments a counter file, so the five runs
	// emit 10, 12, 11, 50, 9 in order.
	dir := t.TempDir()
	script := `
i=$(cat count 2>/dev/null || echo 0)
i=$((i+1))
echo $i > count
case $i in
  1) v=10 ;;
  2) v=12 ;;
  3) v=11 ;;
  4) v=50 ;;
  *) v=9 ;;
esac
echo PERF_METRIC latency_ms=$v
`
	got, err := r.RunSeries(context.Background(), script, Options{Runs: 5, Aggregate: AggregateMedian, Dir: dir})
	if err != nil {
		t.Fatalf("RunSeries: %v", err)
	}
	if got.Metrics["latency_ms"] != 11 {
		t.Errorf("median latency_ms = %v, want 11", got.Metrics["latency_ms"])
	}
	if len(got.Samples["latency_ms"]) != 5 {
		t.Errorf("samples = %v, want 5 values", got.Samples["latency_ms"])
	}

	// Same series with mean.
	if err := resetCounter(dir); err != nil {
		t.Fatal(err)
	}
	got, err = r.RunSeries(context.Background(), script, Options{Runs: 5, Aggregate: AggregateMean, Dir: dir})
	if err != nil {
		t.Fatalf("RunSeries mean: %v", err)
	}
	if math.Abs(got.Metrics["latency_ms"]-18.4) > 1e-9 {
		t.Errorf("mean latency_ms = %v, want 18.4", got.Metrics["latency_ms"])
	}
}

func resetCounter(dir string) error {
	r := NewRunner()
	_, err := r.RunSeries(context.Background(), "rm -f count; echo PERF_METRIC ok=1", Options{Dir: dir})
	return err
}

func TestRunSeries_DefaultAggregateIsMedian(t *testing.T) {
	r := NewRunner()
	got, err := r.RunSeries(context.Background(), "echo PERF_METRIC x=1", Options{Runs: 3})
	if err != nil {
		t.Fatalf("RunSeries: %v", err)
	}
	if got.Aggregate != AggregateMedian {
		t.Errorf("Aggregate = %s, want median", got.Aggregate)
	}
}

func TestRunSeries_NonzeroExitFailsSeries(t *testing.T) {
	r := NewRunner()
	_, err := r.RunSeries(context.Background(), "echo PERF_METRIC x=1; exit 3", Options{Runs: 2})
	if err == nil {
		t.Fatal("RunSeries with failing command = nil, want error")
	}
	if !strings.Contains(err.Error(), "run 1/2") {
		t.Errorf("error %q does not identify the failing run", err)
	}
}

func TestRunSeries_ZeroMetricsFailsSeries(t *testing.T) {
	r := NewRunner()
	_, err := r.RunSeries(context.Background(), "echo no markers here", Options{})
	if err == nil {
		t.Fatal("RunSeries with no markers = nil, want error")
	}
}

func TestRunSeries_EmptyCommand(t *testing.T) {
	r := NewRunner()
	if _, err := r.RunSeries(context.Background(), "  ", Options{}); err == nil {
		t.Fatal("RunSeries with empty command = nil, want error")
	}
}

func TestRunSeries_InvalidAggregate(t *testing.T) {
	r := NewRunner()
	_, err := r.RunSeries(context.Background(), "echo PERF_METRIC x=1", Options{Runs: 2, Aggregate: "p95"})
	if err == nil {
		t.Fatal("RunSeries with bad aggregate = nil, want error")
	}
}

func TestRunSeries_EnvInjection(t *testing.T) {
	r := NewRunner()
	got, err := r.RunSeries(context.Background(),
		`echo PERF_METRIC value=$PROBE_VALUE`,
		Options{Env: []string{"PROBE_VALUE=7"}})
	if err != nil {
		t.Fatalf("RunSeries: %v", err)
	}
	if got.Metrics["value"] != 7 {
		t.Errorf("value = %v, want 7 from env", got.Metrics["value"])
	}
}

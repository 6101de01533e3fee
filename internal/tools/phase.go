package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/perfscope/internal/codepaths"
	"github.com/HendryAvila/perfscope/internal/engine"
	"github.com/HendryAvila/perfscope/internal/investigation"
)

// PhaseTool handles the perf_phase MCP tool: it runs exactly one phase
// of the investigation and reports the updated state.
type PhaseTool struct{}

// NewPhaseTool creates a PhaseTool.
func NewPhaseTool() *PhaseTool {
	return &PhaseTool{}
}

// Definition returns the MCP tool definition for registration.
func (t *PhaseTool) Definition() mcp.Tool {
	return mcp.NewTool("perf_phase",
		mcp.WithDescription(
			"Run one phase of the performance investigation. Each call executes "+
				"exactly one phase and advances the state machine: setup → baseline → "+
				"breaking-point → constraints → hypotheses → code-paths → profiling → "+
				"optimization → decision → consolidation. Omit `phase` to continue "+
				"from where the investigation left off. Every call requires "+
				"`user_quote` — the user's literal request, recorded verbatim in the "+
				"audit log.",
		),
		mcp.WithString("user_quote",
			mcp.Required(),
			mcp.Description("The user's literal request motivating this phase. Quote them, do not paraphrase."),
		),
		mcp.WithString("phase",
			mcp.Description("Phase to run. Omit to resume from the investigation's recorded phase."),
		),
		mcp.WithString("scenario_description",
			mcp.Description("Setup: what is being investigated and why."),
		),
		mcp.WithString("scenario_metrics",
			mcp.Description("Setup: comma-separated metric keys of interest (e.g. 'latency_ms,throughput_rps')."),
		),
		mcp.WithString("success_criteria",
			mcp.Description("Setup: what outcome would close the investigation."),
		),
		mcp.WithString("benchmark_command",
			mcp.Description("Shell command that runs the benchmark and prints PERF_METRIC <key>=<value> lines."),
		),
		mcp.WithString("benchmark_version",
			mcp.Description("Label for the code version being benchmarked (e.g. 'main-a1b2c3')."),
		),
		mcp.WithNumber("runs",
			mcp.Description("Benchmark repetitions per measurement. Defaults from perf/config.yaml."),
		),
		mcp.WithString("aggregate",
			mcp.Description("How to collapse repeated runs: median (default), mean, min, or max."),
		),
		mcp.WithString("param_env",
			mcp.Description("Breaking-point: environment variable carrying the probed load value (e.g. CONCURRENCY)."),
		),
		mcp.WithNumber("min",
			mcp.Description("Breaking-point: lowest load value, assumed passing. Defaults to 1."),
		),
		mcp.WithNumber("max",
			mcp.Description("Breaking-point: highest load value to probe."),
		),
		mcp.WithNumber("cpus",
			mcp.Description("Constraints: cap the benchmark to this many CPU cores."),
		),
		mcp.WithNumber("memory_mb",
			mcp.Description("Constraints: cap the benchmark address space, in megabytes."),
		),
		mcp.WithString("hypotheses",
			mcp.Description(`Hypotheses: JSON array of {"id", "hypothesis", "confidence", "evidence"} records.`),
		),
		mcp.WithString("hypotheses_file",
			mcp.Description("Hypotheses: path to a JSON file of hypothesis records, used when none are passed inline."),
		),
		mcp.WithString("profile_command",
			mcp.Description("Profiling: shell command that captures a profile and prints its summary."),
		),
		mcp.WithString("change_summary",
			mcp.Description("Optimization: what was changed and why it should help. Mandatory for the phase."),
		),
		mcp.WithString("verdict",
			mcp.Description("Decision: the conclusion (e.g. 'adopt', 'revert', 'investigate further')."),
		),
		mcp.WithString("rationale",
			mcp.Description("Decision: why, in terms of the recorded evidence."),
		),
	)
}

// Handle processes the perf_phase tool call.
func (t *PhaseTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, cfg, err := loadProject()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stateDir := cfg.StatePath(root)

	in := engine.Input{
		Phase:          investigation.Phase(req.GetString("phase", "")),
		UserQuote:      req.GetString("user_quote", ""),
		ParamEnv:       req.GetString("param_env", ""),
		Min:            int(req.GetFloat("min", 0)),
		Max:            int(req.GetFloat("max", 0)),
		CPUs:           int(req.GetFloat("cpus", 0)),
		MemoryMB:       int(req.GetFloat("memory_mb", 0)),
		HypothesesFile: req.GetString("hypotheses_file", ""),
		ProfileCommand: req.GetString("profile_command", ""),
		ChangeSummary:  req.GetString("change_summary", ""),
		Verdict:        req.GetString("verdict", ""),
		Rationale:      req.GetString("rationale", ""),
	}

	if desc := req.GetString("scenario_description", ""); desc != "" {
		in.Scenario = &investigation.Scenario{
			Description:     desc,
			Metrics:         splitList(req.GetString("scenario_metrics", "")),
			SuccessCriteria: req.GetString("success_criteria", ""),
		}
	}
	if cmd := req.GetString("benchmark_command", ""); cmd != "" {
		in.Benchmark = &investigation.Benchmark{
			Command:   cmd,
			Version:   req.GetString("benchmark_version", ""),
			Runs:      int(req.GetFloat("runs", 0)),
			Aggregate: req.GetString("aggregate", ""),
		}
	}
	if raw := req.GetString("hypotheses", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.Hypotheses); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("hypotheses must be a JSON array of records: %v", err)), nil
		}
	}

	// The code path index only participates when its database already
	// exists; perf_index builds it.
	var suggester engine.CodePathSuggester
	if _, statErr := os.Stat(filepath.Join(stateDir, codepaths.DatabaseFile)); statErr == nil {
		idx, openErr := codepaths.Open(stateDir)
		if openErr != nil {
			return nil, fmt.Errorf("opening code path index: %w", openErr)
		}
		defer func() { _ = idx.Close() }()
		suggester = idx
	}

	doc, err := engine.New(stateDir, cfg, suggester).Run(ctx, in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(renderPhaseResult(doc)), nil
}

// renderPhaseResult summarizes the post-phase document for the model.
func renderPhaseResult(doc *investigation.Investigation) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Investigation %s\n\n", doc.ID)
	fmt.Fprintf(&b, "**Status:** %s\n", doc.Status)
	fmt.Fprintf(&b, "**Next phase:** %s\n\n", doc.Phase)

	if doc.Scenario != nil {
		fmt.Fprintf(&b, "**Scenario:** %s\n\n", doc.Scenario.Description)
	}
	if len(doc.Baselines) > 0 {
		ref := doc.Baselines[len(doc.Baselines)-1]
		fmt.Fprintf(&b, "**Active baseline:** %s %s\n\n", ref.Version, formatMetrics(ref.Metrics))
	}
	if doc.BreakingPoint != nil {
		fmt.Fprintf(&b, "**Breaking point:** %d (%d probes)\n\n", *doc.BreakingPoint, len(doc.BreakingPointHistory))
	} else if len(doc.BreakingPointHistory) > 0 {
		fmt.Fprintf(&b, "**Breaking point:** none found in %d probes\n\n", len(doc.BreakingPointHistory))
	}
	if n := len(doc.Hypotheses); n > 0 {
		fmt.Fprintf(&b, "**Hypotheses:** %d recorded\n\n", n)
	}
	if n := len(doc.CodePaths); n > 0 {
		b.WriteString("**Candidate code paths:**\n")
		for _, p := range doc.CodePaths {
			fmt.Fprintf(&b, "- %s (%.2f)\n", p.File, p.Score)
		}
		b.WriteString("\n")
	}
	if n := len(doc.Experiments); n > 0 {
		last := doc.Experiments[n-1]
		fmt.Fprintf(&b, "**Latest experiment:** %s — %s\n\n", last.Verdict, last.ChangeSummary)
	}
	if doc.Decision != nil {
		fmt.Fprintf(&b, "**Decision:** %s — %s\n\n", doc.Decision.Verdict, doc.Decision.Rationale)
	}

	if doc.Status == investigation.StatusComplete {
		b.WriteString("The investigation is complete. The consolidated report is under perf/report/.\n")
	} else {
		fmt.Fprintf(&b, "Call perf_phase again (with a user_quote) to run the %s phase.\n", doc.Phase)
	}
	return b.String()
}

// formatMetrics renders a metric map as a compact inline list.
func formatMetrics(metrics map[string]float64) string {
	if len(metrics) == 0 {
		return ""
	}
	parts := make([]string, 0, len(metrics))
	for _, k := range sortedKeys(metrics) {
		parts = append(parts, fmt.Sprintf("%s=%g", k, metrics[k]))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/perfscope/internal/investigation"
)

// StatusTool handles the perf_status MCP tool: a read-only snapshot of
// the investigation's progress through the phase state machine.
type StatusTool struct{}

// NewStatusTool creates a StatusTool.
func NewStatusTool() *StatusTool {
	return &StatusTool{}
}

// Definition returns the MCP tool definition for registration.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("perf_status",
		mcp.WithDescription(
			"Show the state of the active performance investigation: which "+
				"phases are done, the current phase, and the evidence collected "+
				"so far. Read-only — never mutates state.",
		),
	)
}

// Handle processes the perf_status tool call.
func (t *StatusTool) Handle(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, cfg, err := loadProject()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	store := investigation.NewStore(cfg.StatePath(root))
	doc, err := store.Read()
	if err != nil {
		return nil, fmt.Errorf("reading investigation: %w", err)
	}
	if doc == nil {
		return mcp.NewToolResultError(
			"No investigation found. Start one with perf_phase " +
				"(phase=setup, a scenario description, and a benchmark command).",
		), nil
	}

	return mcp.NewToolResultText(renderStatus(doc)), nil
}

// renderStatus formats the phase checklist and evidence counts.
func renderStatus(doc *investigation.Investigation) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Investigation %s\n\n", doc.ID)
	fmt.Fprintf(&b, "**Status:** %s\n", doc.Status)
	fmt.Fprintf(&b, "**Created:** %s\n", doc.CreatedAt)
	fmt.Fprintf(&b, "**Updated:** %s\n\n", doc.UpdatedAt)
	if doc.Scenario != nil {
		fmt.Fprintf(&b, "**Scenario:** %s\n\n", doc.Scenario.Description)
	}

	current := investigation.PhaseIndex(doc.Phase)
	b.WriteString("## Phases\n\n")
	for i, p := range investigation.Phases() {
		marker := "⬜"
		switch {
		case i < current:
			marker = "✅"
		case i == current && doc.Status != investigation.StatusComplete:
			marker = "🔄"
		case doc.Status == investigation.StatusComplete:
			marker = "✅"
		}
		fmt.Fprintf(&b, "- %s %s\n", marker, p)
	}
	b.WriteString("\n## Evidence\n\n")

	fmt.Fprintf(&b, "- Baselines: %d\n", len(doc.Baselines))
	if doc.BreakingPoint != nil {
		fmt.Fprintf(&b, "- Breaking point: %d (%d probes)\n", *doc.BreakingPoint, len(doc.BreakingPointHistory))
	} else {
		fmt.Fprintf(&b, "- Breaking point: not found (%d probes)\n", len(doc.BreakingPointHistory))
	}
	fmt.Fprintf(&b, "- Constraint runs: %d\n", len(doc.ConstraintResults))
	fmt.Fprintf(&b, "- Hypotheses: %d\n", len(doc.Hypotheses))
	fmt.Fprintf(&b, "- Code paths: %d\n", len(doc.CodePaths))
	fmt.Fprintf(&b, "- Profiling runs: %d\n", len(doc.ProfilingResults))
	fmt.Fprintf(&b, "- Experiments: %d\n", len(doc.Experiments))
	if doc.Decision != nil {
		fmt.Fprintf(&b, "- Decision: %s\n", doc.Decision.Verdict)
	}

	return b.String()
}

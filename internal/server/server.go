// Package server wires all MCP components and creates the server
// instance.
//
// This is the composition root: it creates the tools, prompts, and
// resources and registers them. No business logic lives here — only
// wiring.
package server

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/perfscope/internal/prompts"
	"github.com/HendryAvila/perfscope/internal/resources"
	"github.com/HendryAvila/perfscope/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all tools, prompts,
// and resources registered.
func New() *server.MCPServer {
	s := server.NewMCPServer(
		"perfscope",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Tools ---

	phaseTool := tools.NewPhaseTool()
	s.AddTool(phaseTool.Definition(), phaseTool.Handle)

	statusTool := tools.NewStatusTool()
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	indexTool := tools.NewIndexTool()
	s.AddTool(indexTool.Definition(), indexTool.Handle)

	// --- Prompts ---

	startPrompt := prompts.NewStartPrompt()
	s.AddPrompt(startPrompt.Definition(), startPrompt.Handle)

	statusPrompt := prompts.NewStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	// --- Resources ---

	resourceHandler := resources.NewHandler()
	s.AddResource(resourceHandler.StatusResource(), resourceHandler.HandleStatus)
	s.AddResource(resourceHandler.LogResource(), resourceHandler.HandleLog)

	return s
}

// serverInstructions tells the AI how to drive the investigation
// pipeline effectively.
func serverInstructions() string {
	return `You have access to perfscope, a performance investigation MCP server.

## WHEN TO ACTIVATE perfscope

Proactively suggest a perfscope investigation when the user:
- Reports that something is "slow", "laggy", or "uses too much memory"
- Asks where a performance problem comes from
- Wants to know how far a system scales before it breaks
- Asks whether an optimization actually helped

Do NOT start an investigation for one-off questions about code you can
answer by reading it.

## How It Works

perfscope is a durable, evidence-first investigation engine. The state
lives on disk under perf/ — if the session dies, the next session picks
up exactly where it left off. Call perf_status first in every session.

The investigation is a fixed pipeline of phases, one perf_phase call per
phase:

1. setup — record the scenario and the benchmark command
2. baseline — measure and persist the reference numbers
3. breaking-point — bisect for the load where the system starts failing
4. constraints — re-measure under CPU/memory limits
5. hypotheses — record candidate explanations
6. code-paths — match the scenario against the symbol index
7. profiling — capture a profile
8. optimization — benchmark a code change and get a verdict
9. decision — record the conclusion with its rationale
10. consolidation — write the final report, close the investigation

## CRITICAL: Evidence Rules

- Every perf_phase call requires user_quote: the user's LITERAL words.
  Never paraphrase — the audit log is the paper trail.
- Benchmarks must print metric markers: PERF_METRIC <key>=<number>.
  Help the user write a command that does this before setup.
- Verdicts come from measured deltas against the persisted baseline,
  never from your impression of the code.
- If a phase fails, the state does not advance. Fix the input and call
  perf_phase again.

## Benchmark Commands

A benchmark command is any shell command. It passes by exiting zero and
printing at least one PERF_METRIC line. For breaking-point searches, the
command reads the probed value from the environment variable you name in
param_env.

## Before Code-Paths

Run perf_index once so the code-paths phase has a symbol index to query.

## Reading State

- perf_status: phase checklist and evidence counts
- perf://investigation/status resource: the raw JSON document
- perf://investigation/log resource: the full markdown audit log`
}

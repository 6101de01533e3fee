// Package prompts implements the MCP prompt handlers of the perfscope
// server.
//
// Prompts are user-triggered workflows (like slash commands) that
// instruct the AI to drive the investigation pipeline. Unlike tools,
// which the AI calls, prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// StartPrompt handles the perf-start MCP prompt. It guides the AI
// through opening a new investigation and running its first phases.
type StartPrompt struct{}

// NewStartPrompt creates a StartPrompt.
func NewStartPrompt() *StartPrompt {
	return &StartPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StartPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("perf-start",
		mcp.WithPromptDescription(
			"Start a performance investigation. Walks through defining the "+
				"scenario, wiring a benchmark command, and establishing the "+
				"first baseline.",
		),
		mcp.WithArgument("scenario",
			mcp.ArgumentDescription("What performance problem to investigate"),
		),
	)
}

// Handle processes the perf-start prompt request.
func (p *StartPrompt) Handle(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	scenario := "an unspecified performance problem"
	if args := req.Params.Arguments; args != nil {
		if s, ok := args["scenario"]; ok && s != "" {
			scenario = s
		}
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Start performance investigation: %s", scenario),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want to investigate %s.\n\n"+
						"Please:\n"+
						"1. Ask me which metrics matter and what success looks like\n"+
						"2. Help me write a benchmark command that prints PERF_METRIC <key>=<value> lines\n"+
						"3. Run `perf_phase` (phase=setup) with my scenario, benchmark command, and version label\n"+
						"4. Run `perf_phase` again to establish the baseline\n"+
						"5. Walk me through the remaining phases one at a time, explaining each result\n\n"+
						"Always pass my literal words as user_quote — the audit log depends on it.",
					scenario,
				)),
			},
		},
	}, nil
}

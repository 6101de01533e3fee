package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the perf-status MCP prompt: a quick "where are
// we" check against the persisted investigation.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("perf-status",
		mcp.WithPromptDescription(
			"Summarize the active performance investigation: completed "+
				"phases, current phase, and the evidence gathered so far.",
		),
	)
}

// Handle processes the perf-status prompt request.
func (p *StatusPrompt) Handle(_ context.Context, _ mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Performance investigation status",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Show me where the performance investigation stands.\n\n" +
						"Please:\n" +
						"1. Run `perf_status` and summarize the phase checklist\n" +
						"2. Point out the most important evidence so far (baseline, breaking point, experiment verdicts)\n" +
						"3. Tell me what the next phase needs from me before we run it",
				),
			},
		},
	}, nil
}

package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/perfscope/internal/codepaths"
)

// IndexTool handles the perf_index MCP tool: it (re)builds the symbol
// index the code-paths phase queries.
type IndexTool struct{}

// NewIndexTool creates an IndexTool.
func NewIndexTool() *IndexTool {
	return &IndexTool{}
}

// Definition returns the MCP tool definition for registration.
func (t *IndexTool) Definition() mcp.Tool {
	return mcp.NewTool("perf_index",
		mcp.WithDescription(
			"Scan the project's source tree and build the full-text symbol "+
				"index used by the code-paths phase to suggest where a "+
				"performance problem likely lives. Safe to re-run; files are "+
				"re-indexed in place.",
		),
		mcp.WithString("path",
			mcp.Description("Directory to scan. Defaults to the project root."),
		),
	)
}

// Handle processes the perf_index tool call.
func (t *IndexTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, cfg, err := loadProject()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	scanRoot := req.GetString("path", "")
	if scanRoot == "" {
		scanRoot = root
	}

	idx, err := codepaths.Open(cfg.StatePath(root))
	if err != nil {
		return nil, fmt.Errorf("opening code path index: %w", err)
	}
	defer func() { _ = idx.Close() }()

	count, err := idx.Scan(scanRoot)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Indexing failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Indexed %d source file(s) under %s. The code-paths phase can now "+
			"match the scenario against the symbol index.", count, scanRoot,
	)), nil
}

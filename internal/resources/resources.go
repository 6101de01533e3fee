// Package resources implements the MCP resource handlers of the
// perfscope server.
//
// Resources are read-only data the host can pull for context. They use
// URI-based addressing (perf://...) following MCP conventions.
package resources

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/perfscope/internal/auditlog"
	"github.com/HendryAvila/perfscope/internal/investigation"
)

// Handler serves the investigation's state and audit log as resources.
type Handler struct{}

// NewHandler creates a resource Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// StatusResource returns the MCP resource definition for the raw
// investigation document.
func (h *Handler) StatusResource() mcp.Resource {
	return mcp.NewResource(
		"perf://investigation/status",
		"Investigation Status",
		mcp.WithResourceDescription("The active performance investigation document: phase, baselines, hypotheses, experiments, decision"),
		mcp.WithMIMEType("application/json"),
	)
}

// LogResource returns the MCP resource definition for the audit log.
func (h *Handler) LogResource() mcp.Resource {
	return mcp.NewResource(
		"perf://investigation/log",
		"Investigation Audit Log",
		mcp.WithResourceDescription("Append-only markdown evidence log of the active investigation"),
		mcp.WithMIMEType("text/markdown"),
	)
}

// HandleStatus serves the raw persisted document.
func (h *Handler) HandleStatus(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	stateDir, err := findStateDir()
	if err != nil {
		return nil, err
	}

	path, err := investigation.SecureJoin(stateDir, investigation.DocumentFile)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errorResource(req.Params.URI, "no investigation exists yet"), nil
		}
		return nil, fmt.Errorf("reading investigation: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// HandleLog serves the active investigation's audit log.
func (h *Handler) HandleLog(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	stateDir, err := findStateDir()
	if err != nil {
		return nil, err
	}

	store := investigation.NewStore(stateDir)
	doc, err := store.Read()
	if err != nil {
		return nil, fmt.Errorf("reading investigation: %w", err)
	}
	if doc == nil {
		return errorResource(req.Params.URI, "no investigation exists yet"), nil
	}

	path, err := investigation.SecureJoin(stateDir, auditlog.LogDir, doc.ID+".md")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errorResource(req.Params.URI, "the audit log has no entries yet"), nil
		}
		return nil, fmt.Errorf("reading audit log: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a plain-text resource carrying an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}

// Perfscope: Performance Investigation MCP Server
//
// An MCP server that gives AI coding assistants a durable, evidence-first
// workflow for performance investigations: baselines, breaking-point
// searches, constraint tests, and optimization experiments, all persisted
// under the project's perf/ directory.
//
// Usage:
//
//	perfscope serve    # Start MCP server (stdio transport)
//	perfscope update   # Update to the latest version
package main

import (
	"fmt"
	"os"

	perfserver "github.com/HendryAvila/perfscope/internal/server"
	"github.com/HendryAvila/perfscope/internal/updater"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "update":
		runUpdate()
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("perfscope v%s\n", perfserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run() error {
	s := perfserver.New()

	// Background version check — prints to stderr so it doesn't
	// interfere with MCP's stdio transport on stdout.
	go checkForUpdates()

	return server.ServeStdio(s)
}

// checkForUpdates runs a best-effort version check and prints a notice
// to stderr when an update exists. Network failures are ignored.
func checkForUpdates() {
	result := updater.CheckVersion(perfserver.Version)
	if result.UpdateAvailable {
		fmt.Fprintf(os.Stderr,
			"\n  Update available: v%s -> v%s\n"+
				"  Run: perfscope update\n"+
				"  Release: %s\n\n",
			result.CurrentVersion, result.LatestVersion, result.ReleaseURL,
		)
	}
}

// runUpdate performs a self-update to the latest version.
func runUpdate() {
	fmt.Fprintln(os.Stderr, "Checking for updates...")

	result := updater.CheckVersion(perfserver.Version)
	if !result.UpdateAvailable {
		fmt.Fprintf(os.Stderr, "Already at the latest version (v%s)\n", result.CurrentVersion)
		return
	}

	fmt.Fprintf(os.Stderr, "New version available: v%s -> v%s\n", result.CurrentVersion, result.LatestVersion)

	if err := updater.SelfUpdate(perfserver.Version); err != nil {
		fmt.Fprintf(os.Stderr, "Update failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "You can download manually from:\n  %s\n", result.ReleaseURL)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Updated to v%s. Restart perfscope to use the new version.\n", result.LatestVersion)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Perfscope v%s — Performance Investigation MCP Server

Usage:
  perfscope serve    Start the MCP server (stdio transport)
  perfscope update   Update to the latest version

Configuration:
  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "perfscope": {
        "command": "perfscope",
        "args": ["serve"]
      }
    }
  }

Learn more: https://github.com/HendryAvila/perfscope
`, perfserver.Version)
}

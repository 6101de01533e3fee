// Package tools implements the MCP tool handlers of the perfscope
// server.
//
// Each tool lives in its own file and depends on the engine and stores
// through constructors, not globals. Handlers distinguish user errors
// (returned as tool result errors, so the model can correct course)
// from system errors (returned as Go errors).
package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/HendryAvila/perfscope/internal/config"
)

// findProjectRoot walks up from the working directory looking for an
// existing perf/ state directory. If none is found, the working
// directory itself is returned — the first phase creates the state.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}

	current := dir
	for {
		candidate := filepath.Join(current, config.DefaultStateDir)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return current, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return dir, nil
		}
		current = parent
	}
}

// loadProject resolves the project root and its configuration.
func loadProject() (root string, cfg *config.Config, err error) {
	root, err = findProjectRoot()
	if err != nil {
		return "", nil, err
	}
	cfg, err = config.Load(root)
	if err != nil {
		return "", nil, err
	}
	return root, cfg, nil
}

// sortedKeys returns a metric map's keys in stable order.
func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

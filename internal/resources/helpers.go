package resources

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/HendryAvila/perfscope/internal/config"
)

// findStateDir resolves the active project's state directory by walking
// up from the working directory, the same way the tools do.
func findStateDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}

	current := dir
	for {
		candidate := filepath.Join(current, config.DefaultStateDir)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			cfg, err := config.Load(current)
			if err != nil {
				return "", err
			}
			return cfg.StatePath(current), nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return filepath.Join(dir, config.DefaultStateDir), nil
		}
		current = parent
	}
}

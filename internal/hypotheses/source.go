// Package hypotheses loads externally authored hypothesis records — a
// JSON file of {id, hypothesis, confidence, evidence} entries — for the
// hypotheses phase to consume when the investigation has none recorded.
package hypotheses

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/HendryAvila/perfscope/internal/investigation"
)

// Load reads and validates a hypotheses file. Every record must carry
// an id and a hypothesis; an empty file is an error — a phase that
// consumes hypotheses needs at least one.
func Load(path string) ([]investigation.Hypothesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hypotheses file: %w", err)
	}

	var records []investigation.Hypothesis
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing hypotheses file %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("hypotheses file %s contains no records", path)
	}

	seen := make(map[string]bool, len(records))
	for i, r := range records {
		if strings.TrimSpace(r.ID) == "" {
			return nil, fmt.Errorf("hypotheses file %s: record %d has no id", path, i)
		}
		if strings.TrimSpace(r.Hypothesis) == "" {
			return nil, fmt.Errorf("hypotheses file %s: record %q has no hypothesis text", path, r.ID)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("hypotheses file %s: duplicate id %q", path, r.ID)
		}
		seen[r.ID] = true
	}
	return records, nil
}

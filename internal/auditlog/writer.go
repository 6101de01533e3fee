// Package auditlog maintains the append-only evidence log of an
// investigation: one markdown section per phase transition under
// <state>/investigations/<id>.md.
//
// Every entry must carry a literal user quote, a summary, and evidence
// (commands run, files touched, metrics observed) — the log never
// records an unsubstantiated claim. Entries are written with a single
// O_APPEND write each, so concurrent writers interleave safely at entry
// granularity, and nothing ever seeks backward or rewrites prior
// content.
package auditlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/HendryAvila/perfscope/internal/investigation"
)

// LogDir is the subdirectory of the state directory holding the
// per-investigation logs.
const LogDir = "investigations"

// Evidence backs an entry's claims with observable facts.
type Evidence struct {
	// Commands are the exact commands executed during the phase.
	Commands []string
	// Files are paths read or written during the phase.
	Files []string
	// Metrics are the values observed, keyed by metric name.
	Metrics map[string]float64
}

// Entry is one phase transition record.
type Entry struct {
	Phase investigation.Phase
	// UserQuote is the user's literal request that motivated the phase.
	UserQuote string
	// Summary is a short natural-language account of what happened.
	Summary  string
	Evidence Evidence
}

// Writer appends entries to per-investigation log files.
type Writer struct {
	dir string
}

// NewWriter creates an audit log writer rooted at the state directory.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Path returns the log file path for an investigation id, rejecting ids
// that would escape the log directory.
func (w *Writer) Path(id string) (string, error) {
	if err := investigation.ValidateID(id); err != nil {
		return "", err
	}
	return investigation.SecureJoin(w.dir, LogDir, id+".md")
}

// Append validates entry and appends it to the investigation's log.
// A missing required field is an error before any write.
func (w *Writer) Append(id string, entry Entry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}

	path, err := w.Path(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	section := renderEntry(entry)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer func() { _ = f.Close() }()

	// One write call per entry keeps concurrent appends whole.
	if _, err := f.Write([]byte(section)); err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

// AppendBaseline appends the baseline phase's entry. The baseline entry
// carries stricter requirements than the generic form: the benchmark
// command, the observed metrics, and the stored baseline path must all
// be present.
func (w *Writer) AppendBaseline(id, userQuote, command string, metrics map[string]float64, baselinePath string) error {
	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("audit entry for baseline phase requires the benchmark command")
	}
	if len(metrics) == 0 {
		return fmt.Errorf("audit entry for baseline phase requires observed metrics")
	}
	if strings.TrimSpace(baselinePath) == "" {
		return fmt.Errorf("audit entry for baseline phase requires the stored baseline path")
	}
	return w.Append(id, Entry{
		Phase:     investigation.PhaseBaseline,
		UserQuote: userQuote,
		Summary:   fmt.Sprintf("Established baseline from %q.", command),
		Evidence: Evidence{
			Commands: []string{command},
			Files:    []string{baselinePath},
			Metrics:  metrics,
		},
	})
}

// validateEntry enforces the evidence-completeness contract.
func validateEntry(entry Entry) error {
	if err := investigation.ValidatePhase(entry.Phase); err != nil {
		return fmt.Errorf("audit entry: %w", err)
	}
	if strings.TrimSpace(entry.UserQuote) == "" {
		return fmt.Errorf("audit entry for %s phase requires a literal user quote", entry.Phase)
	}
	if strings.TrimSpace(entry.Summary) == "" {
		return fmt.Errorf("audit entry for %s phase requires a summary", entry.Phase)
	}
	ev := entry.Evidence
	if len(ev.Commands) == 0 && len(ev.Files) == 0 && len(ev.Metrics) == 0 {
		return fmt.Errorf("audit entry for %s phase has no evidence", entry.Phase)
	}
	return nil
}

// renderEntry formats one markdown section.
func renderEntry(entry Entry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Phase: %s\n\n", entry.Phase)
	fmt.Fprintf(&b, "_%s_\n\n", timeNow().UTC().Format(timeLayout))
	fmt.Fprintf(&b, "> %s\n\n", entry.UserQuote)
	fmt.Fprintf(&b, "### Summary\n\n%s\n\n", entry.Summary)
	b.WriteString("### Evidence\n\n")

	if len(entry.Evidence.Commands) > 0 {
		b.WriteString("Commands:\n\n")
		for _, c := range entry.Evidence.Commands {
			fmt.Fprintf(&b, "- `%s`\n", c)
		}
		b.WriteString("\n")
	}
	if len(entry.Evidence.Files) > 0 {
		b.WriteString("Files:\n\n")
		for _, f := range entry.Evidence.Files {
			fmt.Fprintf(&b, "- `%s`\n", f)
		}
		b.WriteString("\n")
	}
	if len(entry.Evidence.Metrics) > 0 {
		b.WriteString("Metrics:\n\n")
		keys := make([]string, 0, len(entry.Evidence.Metrics))
		for k := range entry.Evidence.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %g\n", k, entry.Evidence.Metrics[k])
		}
		b.WriteString("\n")
	}

	return b.String()
}

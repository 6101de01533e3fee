// Package codepaths implements the symbol index behind the code-paths
// phase: given a scenario description, it returns a ranked list of
// candidate source files with the symbols that matched.
//
// It uses SQLite with FTS5 full-text search, one database per state
// directory. Indexing is a coarse lexical scan — the goal is to point
// the investigation at plausible files, not to build a compiler-grade
// symbol table.
package codepaths

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/HendryAvila/perfscope/internal/investigation"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// DatabaseFile is the index filename inside the state directory.
const DatabaseFile = "codepaths.db"

// symbolPattern matches coarse symbol declarations across the languages
// this index cares about: Go, JS/TS, Python, Rust, Java-likes.
var symbolPattern = regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:pub\s+)?(?:func|def|class|type|interface|struct|fn|function)\s+([A-Za-z_][A-Za-z0-9_]*)`)

// indexedExtensions are the file types worth scanning.
var indexedExtensions = map[string]bool{
	".go": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true,
	".py": true, ".rs": true, ".java": true, ".kt": true, ".rb": true,
	".c": true, ".h": true, ".cc": true, ".cpp": true, ".cs": true,
}

// skippedDirs are never descended into during a scan.
var skippedDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "perf": true,
	"dist": true, "target": true, "__pycache__": true,
}

// Candidate is one ranked suggestion.
type Candidate struct {
	File    string   `json:"file"`
	Score   float64  `json:"score"`
	Symbols []string `json:"symbols"`
}

// Index is the FTS5-backed symbol index.
type Index struct {
	db *sql.DB
}

// Open creates or opens the index database inside the state directory.
func Open(stateDir string) (*Index, error) {
	path, err := investigation.SecureJoin(stateDir, DatabaseFile)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("codepaths: create state dir: %w", err)
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("codepaths: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("codepaths: pragma %q: %w", p, err)
		}
	}

	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		return nil, fmt.Errorf("codepaths: migration: %w", err)
	}
	return idx, nil
}

// Close closes the underlying database connection.
func (idx *Index) Close() error {
	return idx.db.Close()
}

func (idx *Index) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS files (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			path    TEXT NOT NULL UNIQUE,
			symbols TEXT NOT NULL
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
			path,
			symbols,
			content='files',
			content_rowid='id'
		);
	`
	if _, err := idx.db.Exec(schema); err != nil {
		return err
	}

	// FTS triggers (idempotent).
	var name string
	err := idx.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='files_fts_insert'",
	).Scan(&name)
	if err == sql.ErrNoRows {
		triggers := `
			CREATE TRIGGER files_fts_insert AFTER INSERT ON files BEGIN
				INSERT INTO files_fts(rowid, path, symbols)
				VALUES (new.id, new.path, new.symbols);
			END;

			CREATE TRIGGER files_fts_delete AFTER DELETE ON files BEGIN
				INSERT INTO files_fts(files_fts, rowid, path, symbols)
				VALUES ('delete', old.id, old.path, old.symbols);
			END;

			CREATE TRIGGER files_fts_update AFTER UPDATE ON files BEGIN
				INSERT INTO files_fts(files_fts, rowid, path, symbols)
				VALUES ('delete', old.id, old.path, old.symbols);
				INSERT INTO files_fts(rowid, path, symbols)
				VALUES (new.id, new.path, new.symbols);
			END;
		`
		if _, err := idx.db.Exec(triggers); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	return nil
}

// Add records a file and its symbols, replacing any prior entry for the
// same path.
func (idx *Index) Add(path string, symbols []string) error {
	if path == "" {
		return fmt.Errorf("codepaths: empty file path")
	}
	_, err := idx.db.Exec(`
		INSERT INTO files (path, symbols) VALUES (?, ?)
		ON CONFLICT(path) DO UPDATE SET symbols = excluded.symbols
	`, path, strings.Join(symbols, " "))
	if err != nil {
		return fmt.Errorf("codepaths: indexing %s: %w", path, err)
	}
	return nil
}

// Scan walks root, extracts coarse symbol declarations from every
// recognized source file, and indexes them. It returns the number of
// files indexed.
func (idx *Index) Scan(root string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !indexedExtensions[filepath.Ext(path)] {
			return nil
		}

		symbols, err := extractSymbols(path)
		if err != nil {
			return nil // unreadable file, skip
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		if err := idx.Add(rel, symbols); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("codepaths: scanning %s: %w", root, err)
	}
	return count, nil
}

// Suggest returns up to limit candidates ranked by FTS relevance for a
// scenario description.
func (idx *Index) Suggest(ctx context.Context, scenario string, limit int) ([]investigation.CodePath, error) {
	query := ftsQuery(scenario)
	if query == "" {
		return nil, fmt.Errorf("codepaths: scenario has no searchable terms")
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := idx.db.QueryContext(ctx, `
		SELECT f.path, f.symbols, bm25(files_fts) AS rank
		FROM files_fts
		JOIN files f ON f.id = files_fts.rowid
		WHERE files_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("codepaths: search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []investigation.CodePath
	for rows.Next() {
		var path, symbols string
		var rank float64
		if err := rows.Scan(&path, &symbols, &rank); err != nil {
			return nil, fmt.Errorf("codepaths: scanning row: %w", err)
		}
		out = append(out, investigation.CodePath{
			File: path,
			// bm25 ranks are negative, more negative = more relevant.
			Score:   -rank,
			Symbols: strings.Fields(symbols),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("codepaths: iterating rows: %w", err)
	}
	return out, nil
}

// extractSymbols pulls declaration names out of one source file.
func extractSymbols(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	seen := make(map[string]bool)
	var symbols []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		for _, m := range symbolPattern.FindAllStringSubmatch(scanner.Text(), -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				symbols = append(symbols, m[1])
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return symbols, nil
}

// ftsQuery turns free text into an OR query of quoted terms, so FTS5
// syntax characters in the scenario cannot break the search.
func ftsQuery(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	})
	seen := make(map[string]bool)
	var terms []string
	for _, f := range fields {
		if len(f) < 3 || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, `"`+f+`"`)
	}
	sort.Strings(terms)
	return strings.Join(terms, " OR ")
}

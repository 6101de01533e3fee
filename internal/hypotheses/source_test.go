package hypotheses

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hypotheses.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writeFile(t, `[
		{"id": "h1", "hypothesis": "N+1 query in the session lookup", "confidence": "high", "evidence": ["slow query log"]},
		{"id": "h2", "hypothesis": "allocation churn in the JSON encoder"}
	]`)

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Load = %d records, want 2", len(got))
	}
	if got[0].ID != "h1" || got[0].Confidence != "high" {
		t.Errorf("first record = %+v", got[0])
	}
	if len(got[0].Evidence) != 1 {
		t.Errorf("Evidence = %v, want 1 entry", got[0].Evidence)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "{nope"},
		{"empty list", "[]"},
		{"missing id", `[{"hypothesis": "x"}]`},
		{"missing hypothesis", `[{"id": "h1"}]`},
		{"duplicate id", `[{"id": "h1", "hypothesis": "a"}, {"id": "h1", "hypothesis": "b"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeFile(t, tt.content)); err == nil {
				t.Error("Load = nil, want error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("Load missing file = nil, want error")
	}
}

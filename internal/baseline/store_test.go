package baseline

import (
	"path/filepath"
	"testing"
)

func testRecord() *Record {
	return &Record{
		Command: "bench.sh",
		Metrics: map[string]float64{"latency_ms": 12.5, "throughput_rps": 5100},
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	rec := testRecord()
	if err := s.Write("v1", rec); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if rec.Version != "v1" {
		t.Errorf("Write did not stamp version: %q", rec.Version)
	}
	if rec.RecordedAt == "" {
		t.Error("Write did not stamp recordedAt")
	}

	got, err := s.Read("v1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got == nil {
		t.Fatal("Read = nil after Write")
	}
	if got.Command != "bench.sh" || got.Metrics["latency_ms"] != 12.5 {
		t.Errorf("round trip lost data: %+v", got)
	}
}

func TestRead_MissingReturnsNil(t *testing.T) {
	s := NewStore(t.TempDir())
	got, err := s.Read("v9")
	if err != nil {
		t.Fatalf("Read missing: %v", err)
	}
	if got != nil {
		t.Errorf("Read missing = %+v, want nil", got)
	}
}

func TestWrite_ReplacesWholeRecord(t *testing.T) {
	s := NewStore(t.TempDir())

	if err := s.Write("v1", testRecord()); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	replacement := &Record{Command: "bench2.sh", Metrics: map[string]float64{"alloc_mb": 3}}
	if err := s.Write("v1", replacement); err != nil {
		t.Fatalf("second Write: %v", err)
	}

	got, _ := s.Read("v1")
	if got.Command != "bench2.sh" {
		t.Errorf("Command = %q, want replacement", got.Command)
	}
	if _, stale := got.Metrics["latency_ms"]; stale {
		t.Error("replacement kept a metric from the prior record")
	}
}

func TestWrite_RejectsIncompleteRecords(t *testing.T) {
	s := NewStore(t.TempDir())

	if err := s.Write("v1", &Record{Metrics: map[string]float64{"x": 1}}); err == nil {
		t.Error("Write without command = nil, want error")
	}
	if err := s.Write("v1", &Record{Command: "bench.sh"}); err == nil {
		t.Error("Write without metrics = nil, want error")
	}
	if err := s.Write("v1", nil); err == nil {
		t.Error("Write(nil) = nil, want error")
	}
}

func TestPath_RejectsTraversal(t *testing.T) {
	s := NewStore(t.TempDir())
	for _, version := range []string{"../v1", "a/b", "..", "v\x001"} {
		if _, err := s.Path(version); err == nil {
			t.Errorf("Path(%q) = nil error, want traversal rejection", version)
		}
	}
}

func TestPath_Layout(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	got, err := s.Path("v1")
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	want, _ := filepath.Abs(filepath.Join(dir, BaselinesDir, "v1.json"))
	if got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
}

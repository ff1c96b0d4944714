package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/mutesthq/mutest/internal/mutation"
	"github.com/mutesthq/mutest/internal/report"
)

func TestReadFileList(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "files.txt")
	content := "main.go\n\n# generated\nlib/calc.js  \n"
	if err := os.WriteFile(list, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	paths, err := readFileList(list)
	if err != nil {
		t.Fatalf("readFileList: %v", err)
	}

	want := []string{"main.go", "lib/calc.js"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("got %v, want %v", paths, want)
	}
}

func TestReadFileList_Missing(t *testing.T) {
	if _, err := readFileList(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Error("expected error for missing list")
	}
}

func TestCollectTargets_Deduplicates(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "main.go")
	if err := os.WriteFile(file, []byte("package main\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	targets, err := collectTargets([]string{file, file}, "", "", nil)
	if err != nil {
		t.Fatalf("collectTargets: %v", err)
	}
	if len(targets) != 1 {
		t.Fatalf("expected 1 target, got %d", len(targets))
	}
	if targets[0].display != file {
		t.Errorf("display = %q, want %q", targets[0].display, file)
	}
}

func TestCollectTargets_DirWalk(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"main.go":     "package main\n",
		"sub/util.py": "def util():\n    pass\n",
		"notes.txt":   "not source\n",
	}
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	targets, err := collectTargets(nil, "", dir, nil)
	if err != nil {
		t.Fatalf("collectTargets: %v", err)
	}

	var displays []string
	for _, tg := range targets {
		displays = append(displays, tg.display)
	}
	want := []string{"main.go", "sub/util.py"}
	if !reflect.DeepEqual(displays, want) {
		t.Errorf("got %v, want %v", displays, want)
	}
}

func TestFormatLanguageCounts(t *testing.T) {
	got := formatLanguageCounts(map[string]int{"python": 3, "go": 12})
	if got != "go (12), python (3)" {
		t.Errorf("got %q", got)
	}
}

func TestCollectTargets_InvalidArg(t *testing.T) {
	if _, err := collectTargets([]string{"no/such/file.go"}, "", "", nil); err == nil {
		t.Error("expected error for missing source file")
	}
}

func TestAddSummary(t *testing.T) {
	var agg mutation.Summary
	addSummary(&agg, mutation.Summary{Total: 3, Killed: 2, Survived: 1, Duration: time.Second})
	addSummary(&agg, mutation.Summary{Total: 2, Killed: 1, Timeout: 1, Duration: 500 * time.Millisecond})

	if agg.Total != 5 || agg.Killed != 3 || agg.Survived != 1 || agg.Timeout != 1 {
		t.Errorf("unexpected counts: %+v", agg)
	}
	if agg.Duration != 1500*time.Millisecond {
		t.Errorf("duration = %s", agg.Duration)
	}

	agg.Recount(false)
	if !agg.Scored || agg.Score != 0.75 {
		t.Errorf("score = %v, scored = %v", agg.Score, agg.Scored)
	}
}

func TestJSONPayload_SingleFile(t *testing.T) {
	rep := report.FromRun("main.go", "go", nil, mutation.Summary{Total: 1, Killed: 1, Score: 1, Scored: true})

	payload, err := jsonPayload([]*fileRun{{display: "main.go", report: rep}})
	if err != nil {
		t.Fatalf("jsonPayload: %v", err)
	}

	var decoded struct {
		Name  string  `json:"name"`
		Score float64 `json:"mutation_score"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Name != "main.go" {
		t.Errorf("name = %q", decoded.Name)
	}
	if decoded.Score != 100 {
		t.Errorf("mutation_score = %v, want 100", decoded.Score)
	}
}

func TestJSONPayload_MultiFile(t *testing.T) {
	a := report.FromRun("a.go", "go", nil, mutation.Summary{})
	b := report.FromRun("b.py", "python", nil, mutation.Summary{})

	payload, err := jsonPayload([]*fileRun{
		{display: "a.go", report: a},
		{display: "b.py", report: b},
	})
	if err != nil {
		t.Fatalf("jsonPayload: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(decoded))
	}
	for _, key := range []string{"a.go", "b.py"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
}

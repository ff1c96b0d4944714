package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mutesthq/mutest/internal/mutation"
)

func TestDefaultProjectConfig(t *testing.T) {
	cfg := DefaultProjectConfig()

	if cfg.TimeoutSeconds != 30 {
		t.Errorf("TimeoutSeconds = %d, want 30", cfg.TimeoutSeconds)
	}
	if cfg.TestCommand != "go test ./..." {
		t.Errorf("TestCommand = %s, want 'go test ./...'", cfg.TestCommand)
	}
	if cfg.MaxMutationsPerLine != 5 {
		t.Errorf("MaxMutationsPerLine = %d, want 5", cfg.MaxMutationsPerLine)
	}
	if len(cfg.MutationTypes) != 6 {
		t.Errorf("MutationTypes length = %d, want 6", len(cfg.MutationTypes))
	}
	if cfg.ASTMutationsEnabled {
		t.Error("ASTMutationsEnabled should default to false")
	}
	if len(cfg.ExcludedPatterns) == 0 {
		t.Error("ExcludedPatterns should have defaults")
	}
}

func TestLoadProjectConfig_MissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadProjectConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadProjectConfig() error = %v", err)
	}

	def := DefaultProjectConfig()
	if cfg.TimeoutSeconds != def.TimeoutSeconds {
		t.Errorf("TimeoutSeconds = %d, want default %d", cfg.TimeoutSeconds, def.TimeoutSeconds)
	}
	if cfg.TestCommand != def.TestCommand {
		t.Errorf("TestCommand = %s, want default %s", cfg.TestCommand, def.TestCommand)
	}
}

func TestLoadProjectConfig_ReadsYAML(t *testing.T) {
	dir := t.TempDir()
	content := `timeout_seconds: 60
test_command: "pytest"
mutation_types:
  - arithmetic
  - relational
parallel_jobs: 2
count_timeouts_as_killed: true
`
	if err := os.WriteFile(filepath.Join(dir, "mutest.config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadProjectConfig(dir)
	if err != nil {
		t.Fatalf("LoadProjectConfig() error = %v", err)
	}

	if cfg.TimeoutSeconds != 60 {
		t.Errorf("TimeoutSeconds = %d, want 60", cfg.TimeoutSeconds)
	}
	if cfg.TestCommand != "pytest" {
		t.Errorf("TestCommand = %s, want pytest", cfg.TestCommand)
	}
	if len(cfg.MutationTypes) != 2 {
		t.Errorf("MutationTypes length = %d, want 2", len(cfg.MutationTypes))
	}
	if cfg.ParallelJobs != 2 {
		t.Errorf("ParallelJobs = %d, want 2", cfg.ParallelJobs)
	}
	if !cfg.CountTimeoutsAsKilled {
		t.Error("CountTimeoutsAsKilled should be true")
	}
}

func TestLoadProjectConfig_ProbesAlternateNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".mutest"), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	content := "timeout_seconds: 45\n"
	if err := os.WriteFile(filepath.Join(dir, ".mutest", "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadProjectConfig(dir)
	if err != nil {
		t.Fatalf("LoadProjectConfig() error = %v", err)
	}

	if cfg.TimeoutSeconds != 45 {
		t.Errorf("TimeoutSeconds = %d, want 45 from .mutest/config.yaml", cfg.TimeoutSeconds)
	}
}

func TestLoadProjectConfigFile_Missing(t *testing.T) {
	_, err := LoadProjectConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("LoadProjectConfigFile() should fail on a missing file")
	}
}

func TestLoadProjectConfigFile_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("timeout_seconds: [not an int"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	_, err := LoadProjectConfigFile(path)
	if err == nil {
		t.Error("LoadProjectConfigFile() should fail on invalid YAML")
	}
}

func TestSaveProjectConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultProjectConfig()
	cfg.TimeoutSeconds = 90
	cfg.TestCommand = "npm test"

	if err := SaveProjectConfig(dir, cfg); err != nil {
		t.Fatalf("SaveProjectConfig() error = %v", err)
	}

	loaded, err := LoadProjectConfig(dir)
	if err != nil {
		t.Fatalf("LoadProjectConfig() error = %v", err)
	}

	if loaded.TimeoutSeconds != 90 {
		t.Errorf("TimeoutSeconds = %d, want 90", loaded.TimeoutSeconds)
	}
	if loaded.TestCommand != "npm test" {
		t.Errorf("TestCommand = %s, want 'npm test'", loaded.TestCommand)
	}
}

func TestMerge(t *testing.T) {
	base := DefaultProjectConfig()
	base.Merge(&ProjectConfig{
		TimeoutSeconds: 120,
		TestCommand:    "cargo test",
		MutationTypes:  []string{"arithmetic"},
	})

	if base.TimeoutSeconds != 120 {
		t.Errorf("TimeoutSeconds = %d, want 120", base.TimeoutSeconds)
	}
	if base.TestCommand != "cargo test" {
		t.Errorf("TestCommand = %s, want 'cargo test'", base.TestCommand)
	}
	if len(base.MutationTypes) != 1 {
		t.Errorf("MutationTypes length = %d, want 1", len(base.MutationTypes))
	}
	// Untouched fields keep their values
	if base.MaxMutationsPerLine != 5 {
		t.Errorf("MaxMutationsPerLine = %d, want 5", base.MaxMutationsPerLine)
	}
}

func TestMerge_Nil(t *testing.T) {
	base := DefaultProjectConfig()
	before := base.TimeoutSeconds
	base.Merge(nil)
	if base.TimeoutSeconds != before {
		t.Error("Merge(nil) should not change anything")
	}
}

func TestMutationConfig_ParsesKinds(t *testing.T) {
	cfg := &ProjectConfig{
		TimeoutSeconds: 15,
		MutationTypes:  []string{"arithmetic", "conditional_boundary"},
	}

	mc := cfg.MutationConfig()

	if mc.TimeoutSeconds != 15 {
		t.Errorf("TimeoutSeconds = %d, want 15", mc.TimeoutSeconds)
	}
	if len(mc.MutationTypes) != 2 {
		t.Fatalf("MutationTypes length = %d, want 2", len(mc.MutationTypes))
	}
	if mc.MutationTypes[0] != mutation.KindArithmetic {
		t.Errorf("MutationTypes[0] = %v, want arithmetic", mc.MutationTypes[0])
	}
	if mc.MutationTypes[1] != mutation.KindConditionalBoundary {
		t.Errorf("MutationTypes[1] = %v, want conditional_boundary", mc.MutationTypes[1])
	}
}

func TestMutationConfig_SkipsUnknownKinds(t *testing.T) {
	cfg := &ProjectConfig{
		MutationTypes: []string{"arithmetic", "quantum", "relational"},
	}

	mc := cfg.MutationConfig()

	if len(mc.MutationTypes) != 2 {
		t.Errorf("MutationTypes length = %d, want 2 with unknown kind skipped", len(mc.MutationTypes))
	}
	for _, k := range mc.MutationTypes {
		if k != mutation.KindArithmetic && k != mutation.KindRelational {
			t.Errorf("unexpected kind %v", k)
		}
	}
}

func TestMutationConfig_EmptyNormalizes(t *testing.T) {
	cfg := &ProjectConfig{}
	mc := cfg.MutationConfig()

	def := mutation.DefaultConfig()
	if mc.TimeoutSeconds != def.TimeoutSeconds {
		t.Errorf("TimeoutSeconds = %d, want default %d", mc.TimeoutSeconds, def.TimeoutSeconds)
	}
	if mc.TestCommand != def.TestCommand {
		t.Errorf("TestCommand = %s, want default %s", mc.TestCommand, def.TestCommand)
	}
	if len(mc.MutationTypes) != len(def.MutationTypes) {
		t.Errorf("MutationTypes length = %d, want %d", len(mc.MutationTypes), len(def.MutationTypes))
	}
}

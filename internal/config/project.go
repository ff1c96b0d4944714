package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/mutesthq/mutest/internal/mutation"
)

// projectConfigNames are the file names probed, in order, when looking
// for a project configuration in a directory.
var projectConfigNames = []string{
	"mutest.config.yaml",
	"mutest.config.yml",
	filepath.Join(".mutest", "config.yaml"),
}

// ProjectConfig represents a mutest.config.yaml file in a project tree.
// Every field is optional; zero values fall back to the engine defaults.
type ProjectConfig struct {
	// Per-mutant test run deadline
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`

	// Cap on mutants kept per source line
	MaxMutationsPerLine int `yaml:"max_mutations_per_line,omitempty"`

	// Shell command run against each mutated copy
	TestCommand string `yaml:"test_command,omitempty"`

	// Operator allow-list and deny-list, by name
	MutationTypes     []string `yaml:"mutation_types,omitempty"`
	ExcludedMutations []string `yaml:"excluded_mutations,omitempty"`

	// Gate for structural operators that need a parsed tree
	ASTMutationsEnabled bool `yaml:"ast_mutations_enabled,omitempty"`

	// Executor worker-pool size
	ParallelJobs int `yaml:"parallel_jobs,omitempty"`

	// Whether timeouts count toward the mutation score
	CountTimeoutsAsKilled bool `yaml:"count_timeouts_as_killed,omitempty"`

	// Glob patterns excluded from directory walks
	ExcludedPatterns []string `yaml:"excluded_patterns,omitempty"`
}

// DefaultProjectConfig mirrors the engine defaults in file form.
func DefaultProjectConfig() *ProjectConfig {
	def := mutation.DefaultConfig()

	types := make([]string, len(def.MutationTypes))
	for i, k := range def.MutationTypes {
		types[i] = k.String()
	}

	return &ProjectConfig{
		TimeoutSeconds:      def.TimeoutSeconds,
		MaxMutationsPerLine: def.MaxMutationsPerLine,
		TestCommand:         def.TestCommand,
		MutationTypes:       types,
		ParallelJobs:        def.ParallelJobs,
		ExcludedPatterns: []string{
			"**/vendor/**",
			"**/node_modules/**",
			"**/*_test.go",
			"**/test_*.py",
			"**/*.test.ts",
			"**/*.test.js",
		},
	}
}

// LoadProjectConfig loads the project configuration from a directory,
// probing the known file names. A directory without one yields the
// defaults.
func LoadProjectConfig(dir string) (*ProjectConfig, error) {
	for _, name := range projectConfigNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadProjectConfigFile(path)
		}
	}
	return DefaultProjectConfig(), nil
}

// LoadProjectConfigFile loads a specific configuration file. Unlike the
// directory probe, a missing file is an error here.
func LoadProjectConfigFile(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultProjectConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// SaveProjectConfig writes the config to mutest.config.yaml in dir.
func SaveProjectConfig(dir string, cfg *ProjectConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(filepath.Join(dir, projectConfigNames[0]), data, 0644)
}

// Merge applies overrides from another config (e.g., CLI flags)
func (c *ProjectConfig) Merge(other *ProjectConfig) {
	if other == nil {
		return
	}

	if other.TimeoutSeconds != 0 {
		c.TimeoutSeconds = other.TimeoutSeconds
	}

	if other.MaxMutationsPerLine != 0 {
		c.MaxMutationsPerLine = other.MaxMutationsPerLine
	}

	if other.TestCommand != "" {
		c.TestCommand = other.TestCommand
	}

	if len(other.MutationTypes) > 0 {
		c.MutationTypes = other.MutationTypes
	}

	if len(other.ExcludedMutations) > 0 {
		c.ExcludedMutations = other.ExcludedMutations
	}

	if other.ASTMutationsEnabled {
		c.ASTMutationsEnabled = true
	}

	if other.ParallelJobs != 0 {
		c.ParallelJobs = other.ParallelJobs
	}

	if other.CountTimeoutsAsKilled {
		c.CountTimeoutsAsKilled = true
	}

	if len(other.ExcludedPatterns) > 0 {
		c.ExcludedPatterns = other.ExcludedPatterns
	}
}

// MutationConfig converts the file form into an engine config. Unknown
// mutation type names are logged and skipped rather than failing the
// load, so a config written for a newer version still runs.
func (c *ProjectConfig) MutationConfig() mutation.Config {
	cfg := mutation.Config{
		TimeoutSeconds:        c.TimeoutSeconds,
		MaxMutationsPerLine:   c.MaxMutationsPerLine,
		TestCommand:           c.TestCommand,
		ASTMutationsEnabled:   c.ASTMutationsEnabled,
		ParallelJobs:          c.ParallelJobs,
		CountTimeoutsAsKilled: c.CountTimeoutsAsKilled,
	}

	kinds, unknown := mutation.ParseKinds(c.MutationTypes)
	for _, name := range unknown {
		log.Warn().Str("mutation_type", name).Msg("unknown mutation type in config, skipping")
	}
	cfg.MutationTypes = kinds

	excluded, unknown := mutation.ParseKinds(c.ExcludedMutations)
	for _, name := range unknown {
		log.Warn().Str("mutation_type", name).Msg("unknown excluded mutation type in config, skipping")
	}
	cfg.ExcludedMutations = excluded

	return cfg.Normalize()
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mutesthq/mutest/internal/config"
)

func initCmd() *cobra.Command {
	var (
		dir         string
		testCommand string
		timeout     int
		parallel    int
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter mutest.config.yaml",
		Long: `Write a starter mutest.config.yaml with the engine defaults. Flags
override individual fields; everything else can be edited afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dirAbs, err := validateDirPath(dir)
			if err != nil {
				return fmt.Errorf("invalid directory: %w", err)
			}

			path := filepath.Join(dirAbs, "mutest.config.yaml")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}

			cfg := config.DefaultProjectConfig()
			cfg.Merge(&config.ProjectConfig{
				TestCommand:    testCommand,
				TimeoutSeconds: timeout,
				ParallelJobs:   parallel,
			})

			if err := config.SaveProjectConfig(dirAbs, cfg); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Printf("✅ Wrote %s\n", path)
			fmt.Printf("\nNext steps:\n")
			fmt.Printf("   1. Review the mutation types and excluded patterns\n")
			fmt.Printf("   2. Run: mutest run --dir .\n")
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to write the config into")
	cmd.Flags().StringVar(&testCommand, "test-command", "", "Test command for mutant runs (default: go test ./...)")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "Per-mutant timeout in seconds")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "Parallel mutant executions")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")

	return cmd
}

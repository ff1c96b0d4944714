package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mutesthq/mutest/internal/config"
	"github.com/mutesthq/mutest/internal/gitsource"
	"github.com/mutesthq/mutest/internal/mutation"
	"github.com/mutesthq/mutest/internal/parser"
	"github.com/mutesthq/mutest/internal/report"
	"github.com/mutesthq/mutest/internal/sandbox"
)

// target is one source file queued for a local run. display is the
// path as the user referred to it; abs is what we read from disk.
type target struct {
	abs     string
	display string
}

// fileRun pairs a finished report with its display path.
type fileRun struct {
	display string
	report  *report.Report
}

func runCmd() *cobra.Command {
	var (
		dirPath    string
		configPath string
		repoURL    string
		branch     string
		fileList   string
		jsonPath   string
		outputPath string
		formatName string
		webhookURL string
		failUnder  float64
	)

	cmd := &cobra.Command{
		Use:   "run [files...]",
		Short: "Run mutation testing locally",
		Long: `Run mutation testing against local files without a server. Mutants are
generated, executed in sandboxes, and scored on this machine.

Examples:
  mutest run calculator.go
  mutest run --dir ./src --config mutest.config.yaml
  mutest run main.py --json report.json
  mutest run clamp.go --output report.html --format html
  mutest run --repo https://github.com/user/repo --fail-under 70`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			format, err := report.ParseFormat(formatName)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("format") && outputPath == "" {
				return fmt.Errorf("--format requires --output")
			}

			// A repository run clones into a scratch directory and then
			// behaves like --dir against the checkout. Config probing
			// happens after the clone so a mutest.config.yaml inside
			// the repository is honored.
			if repoURL != "" {
				scratch, err := os.MkdirTemp("", "mutest-clone-")
				if err != nil {
					return fmt.Errorf("failed to create scratch dir: %w", err)
				}
				defer os.RemoveAll(scratch)

				cloner := gitsource.NewCloner(scratch, os.Getenv("GITHUB_TOKEN"))
				clone, err := cloner.Clone(ctx, repoURL, branch)
				if err != nil {
					return fmt.Errorf("failed to clone repository: %w", err)
				}
				fmt.Printf("📦 Cloned %s (%s)\n", repoURL, clone.Branch)
				if counts, err := gitsource.Languages(clone.Path); err == nil && len(counts) > 0 {
					fmt.Printf("   Languages: %s\n", formatLanguageCounts(counts))
				}
				fmt.Printf("\n")
				dirPath = clone.Path
			}

			projCfg, err := loadRunConfig(configPath, dirPath)
			if err != nil {
				return err
			}
			cfg := projCfg.MutationConfig().Normalize()

			targets, err := collectTargets(args, fileList, dirPath, projCfg.ExcludedPatterns)
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				return fmt.Errorf("no files to test: pass source files, --dir, or --repo")
			}

			fmt.Printf("🧬 Mutation Testing\n")
			fmt.Printf("==================\n")
			fmt.Printf("Files:    %d\n", len(targets))
			fmt.Printf("Command:  %s\n", cfg.TestCommand)
			fmt.Printf("Parallel: %d\n\n", cfg.ParallelJobs)

			gen := mutation.NewGenerator(parser.NewParser())
			runner := mutation.NewRunner(mutation.NewExecutor(sandbox.NewManager(sandbox.Config{})))

			var (
				runs      []*fileRun
				agg       mutation.Summary
				failed    int
				survivors []string
			)
			multi := len(targets) > 1
			for _, t := range targets {
				rep, err := runFile(ctx, gen, runner, t.abs, cfg)
				if err != nil {
					fmt.Printf("❌ %s: %v\n", t.display, err)
					failed++
					continue
				}

				s := rep.Summary
				if s.Scored {
					fmt.Printf("📄 %s: %d mutants, score %.1f%% (%s)\n",
						t.display, s.Total, s.Score*100, s.Duration.Round(10*time.Millisecond))
				} else {
					fmt.Printf("📄 %s: %d mutants, nothing to score (%s)\n",
						t.display, s.Total, s.Duration.Round(10*time.Millisecond))
				}

				for _, e := range rep.Entries {
					if e.TestResult != mutation.ResultSurvived {
						continue
					}
					if multi {
						survivors = append(survivors, fmt.Sprintf("%s line %d: %s '%s'", t.display, e.Line, e.MutationType, e.OriginalCode))
					} else {
						survivors = append(survivors, fmt.Sprintf("Line %d: %s '%s'", e.Line, e.MutationType, e.OriginalCode))
					}
				}

				addSummary(&agg, s)
				runs = append(runs, &fileRun{display: t.display, report: rep})
			}

			if len(runs) == 0 {
				return fmt.Errorf("all %d file(s) failed", failed)
			}
			agg.Recount(cfg.CountTimeoutsAsKilled)

			displayRunResults(agg, len(runs), failed, survivors)

			if jsonPath != "" || webhookURL != "" {
				payload, err := jsonPayload(runs)
				if err != nil {
					return err
				}
				if jsonPath != "" {
					if err := os.WriteFile(jsonPath, payload, 0644); err != nil {
						return fmt.Errorf("failed to write JSON report: %w", err)
					}
					fmt.Printf("\n📄 Report saved: %s\n", jsonPath)
				}
				if webhookURL != "" {
					if err := postReport(ctx, webhookURL, payload); err != nil {
						return fmt.Errorf("failed to deliver webhook: %w", err)
					}
					fmt.Printf("\n📤 Report delivered: %s\n", webhookURL)
				}
			}

			if outputPath != "" {
				if len(runs) != 1 {
					return fmt.Errorf("--output supports a single file run, use --json for %d files", len(runs))
				}
				if err := runs[0].report.Save(outputPath, format); err != nil {
					return fmt.Errorf("failed to save report: %w", err)
				}
				fmt.Printf("\n📄 Report saved: %s\n", outputPath)
			}

			if failUnder > 0 && agg.Score*100 < failUnder {
				return fmt.Errorf("mutation score %.1f%% is below required %.1f%%", agg.Score*100, failUnder)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&dirPath, "dir", "", "Test every supported file under a directory")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Project config file (default: probe for mutest.config.yaml)")
	cmd.Flags().StringVarP(&repoURL, "repo", "r", "", "Clone and test a git repository")
	cmd.Flags().StringVar(&branch, "branch", "", "Branch to clone with --repo")
	cmd.Flags().StringVar(&fileList, "file-list", "", "File listing one source path per line")
	cmd.Flags().StringVar(&jsonPath, "json", "", "Write a JSON report to this path")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write a formatted report to this path")
	cmd.Flags().StringVarP(&formatName, "format", "f", "console", "Report format for --output: json, csv, html, markdown, console")
	cmd.Flags().StringVar(&webhookURL, "webhook", "", "POST the JSON report to this URL when the run finishes")
	cmd.Flags().Float64Var(&failUnder, "fail-under", 0, "Exit nonzero when the mutation score percentage is below this")

	return cmd
}

// loadRunConfig resolves the project configuration. An explicit path
// must exist; otherwise the target directory (or the cwd) is probed and
// a missing file falls back to defaults.
func loadRunConfig(configPath, dir string) (*config.ProjectConfig, error) {
	if configPath != "" {
		return config.LoadProjectConfigFile(configPath)
	}
	if dir == "" {
		dir = "."
	}
	return config.LoadProjectConfig(dir)
}

// collectTargets gathers source files from positional args, a file
// list, and a directory walk, deduplicating by absolute path.
func collectTargets(args []string, listPath, dir string, excludes []string) ([]target, error) {
	var targets []target
	seen := make(map[string]struct{})
	add := func(path, display string) error {
		abs, err := validateFilePath(path)
		if err != nil {
			return err
		}
		if _, ok := seen[abs]; ok {
			return nil
		}
		seen[abs] = struct{}{}
		targets = append(targets, target{abs: abs, display: display})
		return nil
	}

	for _, a := range args {
		if err := add(a, a); err != nil {
			return nil, fmt.Errorf("invalid source file: %w", err)
		}
	}

	if listPath != "" {
		listed, err := readFileList(listPath)
		if err != nil {
			return nil, err
		}
		for _, p := range listed {
			if err := add(p, p); err != nil {
				return nil, fmt.Errorf("invalid source file in %s: %w", listPath, err)
			}
		}
	}

	if dir != "" {
		dirAbs, err := validateDirPath(dir)
		if err != nil {
			return nil, fmt.Errorf("invalid directory: %w", err)
		}
		discovered, err := gitsource.DiscoverFiles(dirAbs, excludes)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", dirAbs, err)
		}
		for _, rel := range discovered {
			if err := add(filepath.Join(dirAbs, filepath.FromSlash(rel)), rel); err != nil {
				return nil, err
			}
		}
	}

	return targets, nil
}

// formatLanguageCounts renders a language census like "go (12), python (3)".
func formatLanguageCounts(counts map[string]int) string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s (%d)", name, counts[name]))
	}
	return strings.Join(parts, ", ")
}

// readFileList parses one source path per line. Blank lines and
// #-comment lines are skipped.
func readFileList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file list: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	return paths, nil
}

// runFile generates, executes, and scores every mutant for one source
// file. The baseline test run must pass first: a suite that fails on
// unmutated code cannot classify anything.
func runFile(ctx context.Context, gen *mutation.Generator, runner *mutation.Runner, path string, cfg mutation.Config) (*report.Report, error) {
	lang := parser.DetectLanguage(path)
	if !lang.Supported() {
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}
	source := string(data)

	mutants, err := gen.Generate(ctx, source, lang, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate mutants: %w", err)
	}
	if len(mutants) == 0 {
		return report.FromRun(path, string(lang), nil, mutation.Summary{}), nil
	}

	req := mutation.RunRequest{
		Source:     source,
		Filename:   filepath.Base(path),
		ProjectDir: filepath.Dir(path),
		Mutants:    mutants,
		Config:     cfg,
	}
	if err := runner.Baseline(ctx, req); err != nil {
		return nil, err
	}

	sink := &mutation.Collector{}
	summary, err := runner.Run(ctx, req, sink)
	if err != nil {
		return nil, err
	}

	return report.FromRun(path, string(lang), sink.Results(), summary), nil
}

// addSummary folds one file's counters into the aggregate. The score
// fields are left stale; callers Recount after the last file.
func addSummary(dst *mutation.Summary, s mutation.Summary) {
	dst.Total += s.Total
	dst.Killed += s.Killed
	dst.Survived += s.Survived
	dst.Timeout += s.Timeout
	dst.Errors += s.Errors
	dst.Skipped += s.Skipped
	dst.Pending += s.Pending
	dst.Duration += s.Duration
}

// displayRunResults renders the aggregate block after all files ran.
func displayRunResults(agg mutation.Summary, tested, failed int, survivors []string) {
	fmt.Printf("\n📊 Results\n")
	fmt.Printf("==========\n")
	if failed > 0 {
		fmt.Printf("Files:            %d tested, %d failed\n", tested, failed)
	} else if tested > 1 {
		fmt.Printf("Files:            %d\n", tested)
	}
	fmt.Printf("Total Mutants:    %d\n", agg.Total)
	fmt.Printf("Killed:           %d\n", agg.Killed)
	fmt.Printf("Survived:         %d\n", agg.Survived)
	fmt.Printf("Timeout:          %d\n", agg.Timeout)
	if agg.Errors > 0 {
		fmt.Printf("Errors:           %d\n", agg.Errors)
	}
	if agg.Skipped > 0 {
		fmt.Printf("Skipped:          %d\n", agg.Skipped)
	}
	fmt.Printf("Duration:         %s\n", agg.Duration.Round(10*time.Millisecond))
	fmt.Printf("\n")

	quality := agg.Quality()
	scoreIcon := "🔴"
	switch quality {
	case "good":
		scoreIcon = "🟢"
	case "acceptable":
		scoreIcon = "🟡"
	}
	fmt.Printf("Mutation Score:   %.1f%% %s (%s)\n", agg.Score*100, scoreIcon, quality)

	if len(survivors) > 0 {
		fmt.Printf("\n⚠️  Surviving Mutants (tests did not catch):\n")
		for i, s := range survivors {
			if i >= 5 {
				fmt.Printf("   ... and %d more\n", len(survivors)-i)
				break
			}
			fmt.Printf("   %s\n", s)
		}
	}

	fmt.Printf("\n💡 Recommendations:\n")
	switch quality {
	case "poor":
		fmt.Println("   - Add more assertions to test edge cases")
		fmt.Println("   - Test boundary conditions (0, 1, -1, max values)")
		fmt.Println("   - Add tests for error handling paths")
	case "acceptable":
		fmt.Println("   - Consider adding tests for surviving mutants")
		fmt.Println("   - Review conditional logic test coverage")
	case "good":
		fmt.Println("   - Test suite has good mutation coverage!")
		fmt.Println("   - Consider maintaining this quality as code evolves")
	default:
		fmt.Println("   - No scoreable mutants ran, check mutation type filters")
	}
}

// jsonPayload renders the export body. A single run exports its report
// object directly; a multi-file run exports a map of file to report.
func jsonPayload(runs []*fileRun) ([]byte, error) {
	if len(runs) == 1 {
		out, err := runs[0].report.Render(report.FormatJSON)
		if err != nil {
			return nil, err
		}
		return []byte(out), nil
	}

	multi := make(map[string]json.RawMessage, len(runs))
	for _, fr := range runs {
		out, err := fr.report.Render(report.FormatJSON)
		if err != nil {
			return nil, err
		}
		multi[fr.display] = json.RawMessage(out)
	}
	return json.MarshalIndent(multi, "", "  ")
}

// postReport delivers the JSON payload to a webhook endpoint.
func postReport(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

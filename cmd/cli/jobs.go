package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mutesthq/mutest/internal/config"
	"github.com/mutesthq/mutest/internal/db"
	"github.com/mutesthq/mutest/internal/engine"
	"github.com/mutesthq/mutest/internal/mutation"
	"github.com/mutesthq/mutest/internal/parser"
	"github.com/mutesthq/mutest/internal/report"
	"github.com/mutesthq/mutest/internal/sandbox"
)

// jobEngine connects to the database and builds an engine over it. Job
// commands talk to the store directly; queue delivery is the server's
// concern, a submitted job left pending is claimed by polling workers.
func jobEngine(ctx context.Context, databaseURL string) (*engine.Engine, *db.Store, func(), error) {
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		return nil, nil, nil, fmt.Errorf("no database configured: set --database-url or DATABASE_URL")
	}

	database, err := db.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to %s: %w", maskConnectionString(databaseURL), err)
	}

	store := db.NewStore(database)
	eng := engine.New(store, sandbox.NewManager(sandbox.Config{}), nil)
	return eng, store, database.Close, nil
}

func submitCmd() *cobra.Command {
	var (
		databaseURL string
		name        string
		description string
		language    string
	)

	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Submit a source file as a mutation job",
		Long: `Submit a source file as a mutation job. The job is stored pending and
picked up by a worker, or run in place with 'mutest start'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			path, err := validateFilePath(args[0])
			if err != nil {
				return fmt.Errorf("invalid source file: %w", err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read source: %w", err)
			}

			if language == "" {
				lang := parser.DetectLanguage(path)
				if lang == parser.LanguageUnknown {
					return fmt.Errorf("cannot detect language for %s, use --language", filepath.Base(path))
				}
				language = string(lang)
			}
			if name == "" {
				name = filepath.Base(path)
			}

			eng, _, closeDB, err := jobEngine(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer closeDB()

			params := engine.SubmitParams{
				Name:       name,
				SourceCode: string(data),
				Language:   language,
			}
			if description != "" {
				params.Description = &description
			}

			job, err := eng.Submit(ctx, params)
			if err != nil {
				return fmt.Errorf("failed to submit job: %w", err)
			}

			fmt.Printf("✅ Job submitted\n\n")
			printJobDetail(job, nil)
			fmt.Printf("\nRun it now:      mutest start %s\n", job.ID)
			fmt.Printf("Check progress:  mutest status %s\n", job.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string (default: DATABASE_URL)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Job name (default: source file name)")
	cmd.Flags().StringVar(&description, "description", "", "Job description")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Source language (default: detect from extension)")

	return cmd
}

func statusCmd() *cobra.Command {
	var (
		databaseURL  string
		statusFilter string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show one job, or list recent jobs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			eng, store, closeDB, err := jobEngine(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer closeDB()

			if len(args) == 0 {
				filter := db.ListJobsFilter{Limit: limit}
				if statusFilter != "" {
					st := mutation.JobStatus(statusFilter)
					if !st.Valid() {
						return fmt.Errorf("unknown status %q", statusFilter)
					}
					filter.Status = &st
				}

				jobs, err := store.ListJobs(ctx, filter)
				if err != nil {
					return fmt.Errorf("failed to list jobs: %w", err)
				}
				printJobTable(jobs)
				return nil
			}

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job ID %q", args[0])
			}

			job, summary, err := eng.Status(ctx, id)
			if err != nil {
				return err
			}
			printJobDetail(job, &summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string (default: DATABASE_URL)")
	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter the list: pending, running, completed, failed, cancelled")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum jobs to list")

	return cmd
}

func resultsCmd() *cobra.Command {
	var (
		databaseURL string
		outputPath  string
		formatName  string
	)

	cmd := &cobra.Command{
		Use:   "results <job-id>",
		Short: "Show or export a job's mutation results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job ID %q", args[0])
			}
			format, err := report.ParseFormat(formatName)
			if err != nil {
				return err
			}

			eng, _, closeDB, err := jobEngine(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer closeDB()

			job, results, summary, err := eng.Results(ctx, id)
			if err != nil {
				return err
			}
			rep := report.FromJob(job, results, summary)

			if outputPath != "" {
				if err := rep.Save(outputPath, format); err != nil {
					return fmt.Errorf("failed to save report: %w", err)
				}
				fmt.Printf("📄 Report saved: %s\n", outputPath)
				return nil
			}

			out, err := rep.Render(format)
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string (default: DATABASE_URL)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the report to this path instead of stdout")
	cmd.Flags().StringVarP(&formatName, "format", "f", "console", "Report format: json, csv, html, markdown, console")

	return cmd
}

func startCmd() *cobra.Command {
	var (
		databaseURL string
		configPath  string
	)

	cmd := &cobra.Command{
		Use:   "start <job-id>",
		Short: "Run a pending job on this machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job ID %q", args[0])
			}

			cfg := mutation.DefaultConfig()
			if configPath != "" {
				projCfg, err := config.LoadProjectConfigFile(configPath)
				if err != nil {
					return err
				}
				cfg = projCfg.MutationConfig()
			}

			eng, _, closeDB, err := jobEngine(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer closeDB()

			fmt.Printf("🧬 Running job %s\n\n", id)
			if err := eng.Start(ctx, id, cfg); err != nil {
				return fmt.Errorf("job did not complete: %w", err)
			}

			job, summary, err := eng.Status(ctx, id)
			if err != nil {
				return err
			}
			printJobDetail(job, &summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string (default: DATABASE_URL)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Project config file for this run")

	return cmd
}

func cancelCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job ID %q", args[0])
			}

			eng, _, closeDB, err := jobEngine(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer closeDB()

			job, err := eng.Cancel(ctx, id)
			if err != nil {
				return err
			}

			fmt.Printf("🛑 Job %s is %s\n", truncateJobID(job.ID.String()), job.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string (default: DATABASE_URL)")

	return cmd
}

// printJobTable renders jobs one per line for scanning.
func printJobTable(jobs []db.Job) {
	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLANGUAGE\tSTATUS\tCREATED")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncateJobID(j.ID.String()), truncateName(j.Name, 30), j.Language, j.Status, formatTime(j.CreatedAt))
	}
	w.Flush()
}

// printJobDetail renders one job, with its summary when available.
func printJobDetail(job *db.Job, summary *mutation.Summary) {
	fmt.Printf("ID:        %s\n", job.ID)
	fmt.Printf("Name:      %s\n", job.Name)
	if job.Description != nil && *job.Description != "" {
		fmt.Printf("About:     %s\n", *job.Description)
	}
	fmt.Printf("Language:  %s\n", job.Language)
	fmt.Printf("Status:    %s\n", job.Status)
	fmt.Printf("Created:   %s\n", formatTime(job.CreatedAt))
	if job.StartedAt != nil {
		fmt.Printf("Started:   %s\n", formatTime(*job.StartedAt))
	}
	if job.CompletedAt != nil {
		fmt.Printf("Completed: %s\n", formatTime(*job.CompletedAt))
	}

	if summary == nil || summary.Total == 0 {
		return
	}
	fmt.Printf("\nMutants:   %d", summary.Total)
	if summary.Pending > 0 {
		fmt.Printf(" (%d pending)", summary.Pending)
	}
	fmt.Printf("\n")
	fmt.Printf("Killed:    %d | Survived: %d | Timeout: %d | Errors: %d | Skipped: %d\n",
		summary.Killed, summary.Survived, summary.Timeout, summary.Errors, summary.Skipped)
	if summary.Scored {
		fmt.Printf("Score:     %.1f%% (%s)\n", summary.Score*100, summary.Quality())
	}
}

// formatTime renders timestamps compactly for terminal output.
func formatTime(t time.Time) string {
	return t.Local().Format("Jan 02 15:04")
}

// truncateJobID shortens a UUID for table display.
func truncateJobID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncateName(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

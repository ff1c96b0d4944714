package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd := &cobra.Command{
		Use:     "mutest",
		Short:   "Mutest - mutation testing for your test suite",
		Long:    `Mutest mutates your source code and runs your tests to measure how well they catch bugs.`,
		Version: version,
	}

	// Add subcommands
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(resultsCmd())
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(cancelCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the mutest version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mutest %s\n", version)
		},
	}
}

// validateFilePath checks that path names an existing regular file and
// returns its absolute form.
func validateFilePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", abs)
	}
	return abs, nil
}

// validateDirPath checks that path names an existing directory and
// returns its absolute form.
func validateDirPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}

// maskConnectionString hides the password component of a URL so it can
// be logged.
func maskConnectionString(s string) string {
	parsed, err := url.Parse(s)
	if err != nil || parsed.User == nil {
		return s
	}
	if _, has := parsed.User.Password(); !has {
		return s
	}
	parsed.User = url.UserPassword(parsed.User.Username(), "****")
	// url.String percent-encodes the stars; keep them readable.
	return strings.ReplaceAll(parsed.String(), "%2A%2A%2A%2A", "****")
}

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

type options struct {
	// Run mode
	mode    string // "dry-run" or "apply"
	verbose bool

	// Repository targeting
	repo         string
	repoList     string
	repoListFile string
	org          string

	// Per-repository config and templates
	localConfigPath string
	templatesPath   string

	// Throttles and caps
	maxNewTickets int
	prDelay       time.Duration

	// Output
	outputDir    string
	exportReport bool
	trace        bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "renovate-jira",
		Short: "Tracks Renovate dependency pull requests as Jira issues",
		Long: `renovate-jira scans repositories for open Renovate pull requests, decides which
ones warrant a tracking ticket (security fixes, major bumps, critical
dependencies), and creates or reconciles the matching Jira issues.
It runs in dry-run mode unless apply mode is requested; dry-run performs every
read but only logs what it would change.`,
		Version: fmt.Sprintf("%s (built: %s)", Version, BuildTime),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	// Run mode
	cmd.Flags().StringVar(&opts.mode, "mode", "", "Run mode: dry-run or apply (overrides RUN_MODE)")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")

	// Repository targeting flags
	cmd.Flags().StringVar(&opts.repo, "repo", "", "Single repository to scan (owner/name)")
	cmd.Flags().StringVar(&opts.repoList, "repo-list", "", "Comma-separated repositories to scan")
	cmd.Flags().StringVar(&opts.repoListFile, "repo-list-file", "", "File listing one repository per line")
	cmd.Flags().StringVar(&opts.org, "org", "", "Scan every repository of an organization")

	// Per-repository config and template flags
	cmd.Flags().StringVar(&opts.localConfigPath, "local-config", "", "Local repository-config file applied to every repository")
	cmd.Flags().StringVar(&opts.templatesPath, "templates-path", "", "Directory with description/comment template overrides")

	// Throttle and cap flags
	cmd.Flags().IntVar(&opts.maxNewTickets, "max-new-tickets", -1, "Stop after creating this many tickets, 0 for no cap (overrides RUN_MAX_NEW_TICKETS)")
	cmd.Flags().DurationVar(&opts.prDelay, "pr-delay", 0, "Pause between pull requests, e.g. 2s")

	// Output flags
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "Directory for report.json and the trace report")
	cmd.Flags().BoolVar(&opts.exportReport, "export-report", false, "Write report.json to the output directory")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "Record phase timings and export a trace report")

	return cmd
}

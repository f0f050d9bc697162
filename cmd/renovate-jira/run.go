package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ccd-ops/renovate-jira/internal/runner"
	"github.com/ccd-ops/renovate-jira/pkg/classify"
	"github.com/ccd-ops/renovate-jira/pkg/config"
	"github.com/ccd-ops/renovate-jira/pkg/correlate"
	"github.com/ccd-ops/renovate-jira/pkg/github"
	"github.com/ccd-ops/renovate-jira/pkg/jira"
	"github.com/ccd-ops/renovate-jira/pkg/models"
	"github.com/ccd-ops/renovate-jira/pkg/query"
	"github.com/ccd-ops/renovate-jira/pkg/reconcile"
	"github.com/ccd-ops/renovate-jira/pkg/template"
	"github.com/ccd-ops/renovate-jira/pkg/trace"
)

// Do all initialization steps here:
// 1. Build the GitHub and Jira clients, dry-run aware
// 2. Build the classifier, correlator, reconciler, renderer and per-repo
//    config loader around them
// 3. Hand everything to the runner and initialize it
func initialize(ctx context.Context, app *config.App, runID string) (*runner.Runner, error) {
	dryRun := !app.Mutating()

	host, err := github.NewClient(app.GitHub, dryRun)
	if err != nil {
		return nil, fmt.Errorf("GitHub authentication failed: %w", err)
	}
	tracker, err := jira.NewClient(app.Jira, app.HTTP.Timeout, dryRun)
	if err != nil {
		return nil, fmt.Errorf("Jira client setup failed: %w", err)
	}

	correlator := correlate.NewCorrelator(tracker, query.NewBuilder(), app.Mutating())
	configs := config.NewLoader(host, app.Run.LocalConfigPath, config.DefaultRepositoryConfig(app))

	opts := &runner.Options{
		RunID:              runID,
		Mode:               app.Run.Mode,
		LocalConfigPath:    app.Run.LocalConfigPath,
		TemplatesPath:      app.Run.TemplatesPath,
		MaxNewTickets:      app.Run.MaxNewTickets,
		PRDelay:            app.Run.PRDelay,
		OutputDir:          app.Run.OutputDir,
		EnableExportReport: app.Run.ExportReport,
	}

	r, err := runner.NewRunner(
		ctx,
		opts,
		host,
		tracker,
		configs,
		classify.NewEngine(),
		correlator,
		reconcile.NewReconciler(tracker),
		template.NewRenderer(),
	)
	if err != nil {
		return nil, err
	}
	if err := r.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize runner: %w", err)
	}
	return r, nil
}

func run(ctx context.Context, opts *options) error {
	fmt.Println("📋 Loading configuration...")
	app, err := config.NewApp()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyOverrides(app, opts)
	if err := app.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	if app.Run.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	runID := uuid.NewString()
	log.WithField("runId", runID).WithField("mode", app.Run.Mode).Info("Run starting")

	shutdown, err := trace.InitTracer("renovate-jira", app.Run.Trace, app.Run.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer shutdown()

	fmt.Printf("🔍 Scanning for Renovate pull requests (run %s, mode: %s)\n\n", runID, app.Run.Mode)

	r, err := initialize(ctx, app, runID)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	report, err := r.Process()
	if err != nil {
		return err
	}

	printSummary(report, app)
	return nil
}

// applyOverrides lets flags win over environment configuration. Unset flags
// keep whatever the environment resolved.
func applyOverrides(app *config.App, opts *options) {
	if opts.mode != "" {
		app.Run.Mode = opts.mode
	}
	if opts.verbose {
		app.Run.Verbose = true
	}
	if opts.repo != "" {
		app.GitHub.Repo = opts.repo
	}
	if opts.repoList != "" {
		app.GitHub.RepoList = opts.repoList
	}
	if opts.repoListFile != "" {
		app.GitHub.RepoListFile = opts.repoListFile
	}
	if opts.org != "" {
		app.GitHub.Org = opts.org
	}
	if opts.localConfigPath != "" {
		app.Run.LocalConfigPath = opts.localConfigPath
	}
	if opts.templatesPath != "" {
		app.Run.TemplatesPath = opts.templatesPath
	}
	if opts.maxNewTickets >= 0 {
		app.Run.MaxNewTickets = opts.maxNewTickets
	}
	if opts.prDelay > 0 {
		app.Run.PRDelay = opts.prDelay
	}
	if opts.outputDir != "" {
		app.Run.OutputDir = opts.outputDir
	}
	if opts.exportReport {
		app.Run.ExportReport = true
	}
	if opts.trace {
		app.Run.Trace = true
	}
}

func printSummary(report *models.RunReport, app *config.App) {
	fmt.Printf("\n═══════════════════════════════════════════════════\n")
	fmt.Printf("📊 Run %s finished (%s)\n", report.RunID, report.Mode)
	fmt.Printf("═══════════════════════════════════════════════════\n")
	fmt.Printf("   Repositories: %d\n", len(report.Repos))
	fmt.Printf("   Processed:    %d\n", report.Processed)
	fmt.Printf("   Created:      %d\n", report.Created)
	fmt.Printf("   Tracked:      %d\n", report.Tracked)
	fmt.Printf("   Skipped:      %d\n", report.Skipped)
	fmt.Printf("   Errors:       %d\n", report.Errors)
	if report.Halted != "" {
		fmt.Printf("⚠️  Halted early: %s\n", report.Halted)
	}
	if !app.Mutating() {
		fmt.Println("💡 Dry-run mode: nothing was written. Re-run with --mode apply to make changes.")
	}
	if report.Errors > 0 {
		fmt.Printf("❌ %d pull requests failed, see the log above; the next run retries them\n", report.Errors)
	} else {
		fmt.Println("✅ Run completed")
	}
}

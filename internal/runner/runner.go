// Package runner drives a scan run: it walks every targeted repository's
// open Renovate pull requests through the eligibility gates, correlates them
// against existing tracker tickets, and creates or reconciles tickets as
// needed. Failures on one pull request are recorded and never stop the run.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ccd-ops/renovate-jira/pkg/classify"
	"github.com/ccd-ops/renovate-jira/pkg/config"
	"github.com/ccd-ops/renovate-jira/pkg/correlate"
	"github.com/ccd-ops/renovate-jira/pkg/github"
	"github.com/ccd-ops/renovate-jira/pkg/jira"
	"github.com/ccd-ops/renovate-jira/pkg/models"
	"github.com/ccd-ops/renovate-jira/pkg/reconcile"
	"github.com/ccd-ops/renovate-jira/pkg/template"
	"github.com/ccd-ops/renovate-jira/pkg/trace"

	log "github.com/sirupsen/logrus"
)

var logger *log.Entry = log.New().WithFields(log.Fields{
	"package": "runner",
})

type Runner struct {
	Context context.Context
	Options *Options

	Host       github.SourceHost
	Tracker    jira.Tracker
	Configs    config.Source
	Classifier *classify.Engine
	Correlator *correlate.Correlator
	Reconciler *reconcile.Reconciler
	Renderer   *template.Renderer

	State *State
}

func NewRunner(
	ctx context.Context,
	options *Options,
	host github.SourceHost,
	tracker jira.Tracker,
	configs config.Source,
	classifier *classify.Engine,
	correlator *correlate.Correlator,
	reconciler *reconcile.Reconciler,
	renderer *template.Renderer,
) (*Runner, error) {
	runner := &Runner{
		Context:    ctx,
		Options:    options,
		Host:       host,
		Tracker:    tracker,
		Configs:    configs,
		Classifier: classifier,
		Correlator: correlator,
		Reconciler: reconciler,
		Renderer:   renderer,
		State:      NewState(),
	}
	return runner, nil
}

func (r *Runner) Initialize() error {
	logger.Info("Initialize runner: starting...")

	// if any collaborator is nil, return error
	if r.Host == nil || r.Tracker == nil || r.Configs == nil ||
		r.Classifier == nil || r.Correlator == nil || r.Reconciler == nil || r.Renderer == nil {
		return fmt.Errorf("host, tracker, configs, classifier, correlator, reconciler, and renderer are required")
	}
	if r.Options == nil {
		return fmt.Errorf("options are required")
	}
	if r.State == nil {
		r.State = NewState()
	}

	logger.Info("Initialize runner: done.")
	return nil
}

// Process runs the whole scan and returns the run report. Only failures that
// leave nothing to process, like being unable to resolve the repository
// list, are returned as errors; everything else lands in the report.
func (r *Runner) Process() (*models.RunReport, error) {
	logger.Info("Process: starting...")
	ctx, span := trace.StartSpan(r.Context, "run")
	defer span.End()

	report := &models.RunReport{
		RunID:     r.Options.RunID,
		Mode:      r.Options.Mode,
		StartedAt: time.Now().UTC(),
	}

	repos, err := r.Host.ResolveRepositories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repositories: %w", err)
	}
	logger.Infof("Process: scanning %d repositories", len(repos))

	for _, repo := range repos {
		if r.State.CapReached(r.Options.MaxNewTickets) {
			report.Halted = fmt.Sprintf("creation cap of %d reached", r.Options.MaxNewTickets)
			logger.Warnf("Process: %s, stopping early", report.Halted)
			break
		}
		repoReport := r.processRepo(ctx, repo, report)
		report.Repos = append(report.Repos, repoReport)
	}

	// The cap may have been hit on the last repository's last pull request.
	if report.Halted == "" && r.State.CapReached(r.Options.MaxNewTickets) {
		report.Halted = fmt.Sprintf("creation cap of %d reached", r.Options.MaxNewTickets)
		logger.Warnf("Process: %s", report.Halted)
	}
	report.EndedAt = time.Now().UTC()

	if err := r.Output(report); err != nil {
		return report, err
	}

	logger.Info("Process: done.")
	return report, nil
}

// processRepo scans one repository. Per-repository failures are recorded on
// the repo report and the run moves on.
func (r *Runner) processRepo(ctx context.Context, repo string, report *models.RunReport) models.RepoReport {
	ctx, span := trace.StartSpan(ctx, "repo "+repo)
	defer span.End()

	cfg, err := r.Configs.LoadRepositoryConfig(ctx, repo)
	if err != nil {
		// Missing or broken repository config falls back to defaults.
		logger.WithField("repo", repo).Debugf("Using default repository config: %v", err)
	}

	repoReport := models.RepoReport{Repo: repo, Enabled: cfg.Enabled}
	if !cfg.Enabled {
		logger.Infof("Repo %s: disabled by repository config, skipping", repo)
		return repoReport
	}

	prs, err := r.Host.ListOpenPullRequests(ctx, repo)
	if err != nil {
		logger.Errorf("Repo %s: listing pull requests failed: %v", repo, err)
		repoReport.Error = err.Error()
		return repoReport
	}
	logger.Infof("Repo %s: %d open pull requests", repo, len(prs))

	for i, pr := range prs {
		if r.State.CapReached(r.Options.MaxNewTickets) {
			break
		}
		if i > 0 {
			sleep(ctx, r.Options.PRDelay)
		}
		res := r.processPR(ctx, repo, pr, cfg)
		repoReport.PullRequests = append(repoReport.PullRequests, res)
		report.Count(res)
	}
	return repoReport
}

// processPR walks one pull request through the gates: open, labeled,
// classified, not already tracked. It always returns a result; errors along
// the way become an ERROR outcome for this pull request only.
func (r *Runner) processPR(ctx context.Context, repo string, pr models.PullRequest, cfg config.RepositoryConfig) models.PullRequestResult {
	ctx, span := trace.StartSpan(ctx, fmt.Sprintf("pr #%d", pr.Number))
	defer span.End()

	res := models.PullRequestResult{Number: pr.Number, Title: pr.Title}

	if pr.State != "" && !strings.EqualFold(pr.State, "open") {
		res.Outcome = models.OUTCOME_SKIPPED
		res.Detail = "pull request not open"
		return res
	}

	if len(cfg.Labels.Require) > 0 && !hasAnyLabel(pr.Labels, cfg.Labels.Require) {
		logger.Debugf("PR #%d: missing required label %v, skipping", pr.Number, cfg.Labels.Require)
		res.Outcome = models.OUTCOME_SKIPPED
		res.Detail = "missing required label"
		return res
	}

	decision := r.Classifier.Classify(pr.Title, pr.Body, pr.Labels, cfg.CriticalDependencies, cfg.CreateJiraFor)
	if !decision.Tracked() {
		logger.Debugf("PR #%d: no classification rule matched, skipping", pr.Number)
		res.Outcome = models.OUTCOME_SKIPPED
		res.Detail = "no classification rule matched"
		return res
	}
	res.Category = decision.Category
	res.Reason = decision.Reason

	comments, err := r.Host.ListComments(ctx, repo, pr.Number)
	if err != nil {
		// Correlation loses the conversation evidence tier but the search
		// tiers still run.
		logger.Warnf("PR #%d: listing comments failed: %v", pr.Number, err)
	}
	pr.Comments = comments

	if err := r.preflight(ctx, cfg.Jira.Project); err != nil {
		logger.Errorf("PR #%d: tracker preflight failed: %v", pr.Number, err)
		res.Outcome = models.OUTCOME_ERROR
		res.Detail = err.Error()
		return res
	}

	summary := models.SUMMARY_PREFIX + pr.Title

	if key, evidence := r.Correlator.FindExisting(ctx, pr, summary, cfg); key != "" {
		return r.trackExisting(ctx, key, evidence, pr, cfg, res)
	}

	return r.createTicket(ctx, repo, pr, cfg, decision, summary, res)
}

// preflight validates tracker credentials and project access once per
// project per run.
func (r *Runner) preflight(ctx context.Context, project string) error {
	if r.State.ProjectValidated(project) {
		return nil
	}
	if err := r.Tracker.Preflight(ctx, project); err != nil {
		return err
	}
	r.State.MarkProjectValidated(project)
	return nil
}

// trackExisting handles a pull request whose ticket already exists: tickets
// parked in a skip status are left alone entirely, everything else is
// reconciled toward the configured targets and advanced along the
// transition path. Convergence failures degrade to warnings; the ticket
// itself still counts as tracked.
func (r *Runner) trackExisting(ctx context.Context, key, evidence string, pr models.PullRequest, cfg config.RepositoryConfig, res models.PullRequestResult) models.PullRequestResult {
	res.Ticket = key

	snapshot, err := r.Tracker.GetTicket(ctx, key)
	if err != nil {
		logger.Warnf("PR #%d: could not fetch %s before reconciling, leaving it untouched: %v", pr.Number, key, err)
		res.Outcome = models.OUTCOME_TRACKED
		res.Detail = evidence
		return res
	}

	if snapshot != nil && cfg.IsSkipStatus(snapshot.Status) {
		logger.Infof("PR #%d: ticket %s is in status %q, leaving it alone", pr.Number, key, snapshot.Status)
		res.Outcome = models.OUTCOME_SKIPPED
		res.Detail = fmt.Sprintf("ticket %s in skip status %q", key, snapshot.Status)
		return res
	}

	targets := reconcile.Targets{
		Labels:     cfg.Labels.Add,
		FixVersion: cfg.Jira.FixVersion,
		EpicKey:    cfg.Jira.EpicKey,
		Workstream: cfg.Jira.Workstream,
	}
	if err := r.Reconciler.Reconcile(ctx, key, targets); err != nil {
		logger.Warnf("PR #%d: reconciling %s failed: %v", pr.Number, key, err)
	}
	if len(cfg.Jira.TransitionPath) > 0 {
		if err := r.Reconciler.AdvanceStatus(ctx, key, cfg.Jira.TransitionPath); err != nil {
			logger.Warnf("PR #%d: advancing %s failed: %v", pr.Number, key, err)
		}
	}

	logger.Infof("PR #%d already tracked by %s (%s)", pr.Number, key, evidence)
	res.Outcome = models.OUTCOME_TRACKED
	res.Detail = evidence
	return res
}

// createTicket creates a tracking ticket and applies the configured
// side effects. Each side effect failure is logged and skipped; the ticket
// was already created, so the outcome stays CREATED.
func (r *Runner) createTicket(ctx context.Context, repo string, pr models.PullRequest, cfg config.RepositoryConfig, decision models.Decision, summary string, res models.PullRequestResult) models.PullRequestResult {
	fields := models.TicketFields{
		Project:     cfg.Jira.Project,
		Summary:     summary,
		Description: r.renderDescription(pr, decision),
		Priority:    cfg.PriorityFor(decision.Category),
		Labels:      cfg.Labels.Add,
		FixVersion:  cfg.Jira.FixVersion,
		EpicKey:     cfg.Jira.EpicKey,
		Workstream:  cfg.Jira.Workstream,
	}

	key, err := r.Tracker.CreateTicket(ctx, fields)
	if err != nil {
		logger.Errorf("PR #%d: ticket creation failed: %v", pr.Number, err)
		res.Outcome = models.OUTCOME_ERROR
		res.Detail = err.Error()
		return res
	}
	r.State.CountCreated()
	logger.Infof("Created Jira %s for PR #%d in %s", key, pr.Number, repo)

	if cfg.Jira.LinkPRs {
		if err := r.Tracker.AddRemoteLink(ctx, key, pr.HTMLURL, pr.Title); err != nil {
			logger.Warnf("PR #%d: linking %s to the pull request failed: %v", pr.Number, key, err)
		}
	}
	if cfg.GitHub.Comment {
		if err := r.Host.AddComment(ctx, repo, pr.Number, r.renderComment(key, decision)); err != nil {
			logger.Warnf("PR #%d: commenting failed: %v", pr.Number, err)
		}
	}
	if cfg.GitHub.AddLabels && len(cfg.Labels.Add) > 0 {
		if err := r.Host.AddLabels(ctx, repo, pr.Number, cfg.Labels.Add); err != nil {
			logger.Warnf("PR #%d: adding labels failed: %v", pr.Number, err)
		}
	}
	if cfg.GitHub.RenameTitle {
		if err := r.Host.SetTitle(ctx, repo, pr.Number, key+" :: "+pr.Title); err != nil {
			logger.Warnf("PR #%d: renaming failed: %v", pr.Number, err)
		}
	}
	// The dry-run sentinel key does not exist on the tracker, so there is
	// nothing to advance.
	if len(cfg.Jira.TransitionPath) > 0 && key != models.DRY_RUN_TICKET_KEY {
		if err := r.Reconciler.AdvanceStatus(ctx, key, cfg.Jira.TransitionPath); err != nil {
			logger.Warnf("PR #%d: advancing %s failed: %v", pr.Number, key, err)
		}
	}

	res.Outcome = models.OUTCOME_CREATED
	res.Ticket = key
	return res
}

func (r *Runner) renderDescription(pr models.PullRequest, decision models.Decision) string {
	data := template.DescriptionData{
		URL:    pr.HTMLURL,
		Reason: decision.Reason,
		Body:   pr.Body,
	}
	out, err := r.Renderer.Description(r.Options.TemplatesPath, data)
	if err != nil {
		logger.Warnf("Description template failed, using plain fallback: %v", err)
		return fmt.Sprintf("Renovate PR: %s\n\nReason detected: %s", pr.HTMLURL, decision.Reason)
	}
	return out
}

func (r *Runner) renderComment(key string, decision models.Decision) string {
	data := template.CommentData{
		TicketKey: key,
		Reason:    decision.Reason,
	}
	out, err := r.Renderer.Comment(r.Options.TemplatesPath, data)
	if err != nil {
		logger.Warnf("Comment template failed, using plain fallback: %v", err)
		return fmt.Sprintf("Created Jira issue %s to track this Renovate PR. Reason: %s", key, decision.Reason)
	}
	return out
}

// hasAnyLabel reports whether the pull request carries at least one of the
// required labels, compared case-insensitively.
func hasAnyLabel(labels, required []string) bool {
	for _, want := range required {
		for _, l := range labels {
			if strings.EqualFold(l, want) {
				return true
			}
		}
	}
	return false
}

// sleep pauses between pull requests without outliving a canceled run.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

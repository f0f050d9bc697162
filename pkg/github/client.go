// Package github implements the source-host collaborator on top of the
// GitHub REST API.
package github

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/go-github/v66/github"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/ccd-ops/renovate-jira/pkg/config"
	"github.com/ccd-ops/renovate-jira/pkg/models"
)

var logger = log.WithField("package", "github")

// SourceHost defines the source-host operations the run controller needs.
// Mutating calls honor dry-run.
type SourceHost interface {
	// ResolveRepositories expands the configured targeting mode into a list
	// of "owner/name" repositories.
	ResolveRepositories(ctx context.Context) ([]string, error)
	// ListOpenPullRequests returns the open pull requests of one repository.
	ListOpenPullRequests(ctx context.Context, repo string) ([]models.PullRequest, error)
	// ListComments returns the conversation comment bodies of a pull request.
	ListComments(ctx context.Context, repo string, number int) ([]string, error)
	// AddComment posts a comment on a pull request.
	AddComment(ctx context.Context, repo string, number int, body string) error
	// AddLabels adds labels to a pull request.
	AddLabels(ctx context.Context, repo string, number int, labels []string) error
	// SetTitle renames a pull request.
	SetTitle(ctx context.Context, repo string, number int, title string) error
	// FetchRepoFile reads a file from the repository's default branch.
	FetchRepoFile(ctx context.Context, repo, path string) ([]byte, error)
}

// Client handles GitHub API interactions using go-github
type Client struct {
	client   *github.Client
	cfg      config.GitHubApp
	dryRun   bool
	pageSize int
}

// Ensure Client implements SourceHost
var _ SourceHost = (*Client)(nil)

// NewClient creates a new GitHub client
func NewClient(cfg config.GitHubApp, dryRun bool) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("GitHub token not found. Set GITHUB_TOKEN or GH_TOKEN environment variable")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	tc := oauth2.NewClient(context.Background(), ts)

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	return &Client{
		client:   github.NewClient(tc),
		cfg:      cfg,
		dryRun:   dryRun,
		pageSize: pageSize,
	}, nil
}

// ResolveRepositories expands the configured targeting mode into a list of
// "owner/name" repositories. Modes are checked in order: single repo, comma
// list, list file, organization scan.
func (c *Client) ResolveRepositories(ctx context.Context) ([]string, error) {
	switch {
	case c.cfg.Repo != "":
		return []string{c.cfg.Repo}, nil
	case c.cfg.RepoList != "":
		return SplitRepoList(c.cfg.RepoList), nil
	case c.cfg.RepoListFile != "":
		repos, err := ReadRepoListFile(c.cfg.RepoListFile)
		if err != nil {
			return nil, fmt.Errorf("%w: repo list file: %v", models.ErrHost, err)
		}
		return repos, nil
	case c.cfg.Org != "":
		return c.resolveOrgRepositories(ctx)
	}
	return nil, fmt.Errorf("no target repositories specified: set GITHUB_REPO, REPO_LIST, REPO_LIST_FILE or GITHUB_ORG")
}

func (c *Client) resolveOrgRepositories(ctx context.Context) ([]string, error) {
	var nameRe *regexp.Regexp
	if c.cfg.NameRegex != "" {
		re, err := regexp.Compile(c.cfg.NameRegex)
		if err != nil {
			return nil, fmt.Errorf("invalid repository name regex: %w", err)
		}
		nameRe = re
	}

	opts := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: c.pageSize},
	}

	var repos []string
	for {
		page, resp, err := c.client.Repositories.ListByOrg(ctx, c.cfg.Org, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: list org repositories: %v", models.ErrHost, err)
		}

		for _, r := range page {
			if c.cfg.TopicFilter != "" && !containsString(r.Topics, c.cfg.TopicFilter) {
				continue
			}
			if nameRe != nil && !nameRe.MatchString(r.GetName()) {
				continue
			}
			repos = append(repos, r.GetFullName())
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	logger.Infof("Resolved %d repositories from org %s", len(repos), c.cfg.Org)
	return repos, nil
}

// ListOpenPullRequests returns the open pull requests of one repository,
// most recently updated first.
func (c *Client) ListOpenPullRequests(ctx context.Context, repo string) ([]models.PullRequest, error) {
	owner, name, err := ParseOwnerRepo(repo)
	if err != nil {
		return nil, fmt.Errorf("failed to parse repository: %w", err)
	}

	opts := &github.PullRequestListOptions{
		State:       "open",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: c.pageSize},
	}

	var prs []models.PullRequest
	for {
		page, resp, err := c.client.PullRequests.List(ctx, owner, name, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: list pull requests for %s: %v", models.ErrHost, repo, err)
		}

		for _, pr := range page {
			labels := make([]string, 0, len(pr.Labels))
			for _, l := range pr.Labels {
				labels = append(labels, l.GetName())
			}
			prs = append(prs, models.PullRequest{
				Repo:    repo,
				Number:  pr.GetNumber(),
				Title:   pr.GetTitle(),
				Body:    pr.GetBody(),
				Labels:  labels,
				HTMLURL: pr.GetHTMLURL(),
				State:   pr.GetState(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return prs, nil
}

// ListComments returns the conversation comment bodies of a pull request.
func (c *Client) ListComments(ctx context.Context, repo string, number int) ([]string, error) {
	owner, name, err := ParseOwnerRepo(repo)
	if err != nil {
		return nil, fmt.Errorf("failed to parse repository: %w", err)
	}

	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: c.pageSize},
	}

	var bodies []string
	for {
		comments, resp, err := c.client.Issues.ListComments(ctx, owner, name, number, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: list comments for %s#%d: %v", models.ErrHost, repo, number, err)
		}

		for _, comment := range comments {
			bodies = append(bodies, comment.GetBody())
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return bodies, nil
}

// AddComment posts a comment on a pull request.
func (c *Client) AddComment(ctx context.Context, repo string, number int, body string) error {
	if c.dryRun {
		logger.Infof("[DRY-RUN] Would comment on %s#%d", repo, number)
		return nil
	}

	owner, name, err := ParseOwnerRepo(repo)
	if err != nil {
		return fmt.Errorf("failed to parse repository: %w", err)
	}

	comment := &github.IssueComment{Body: github.String(body)}
	if _, _, err := c.client.Issues.CreateComment(ctx, owner, name, number, comment); err != nil {
		return fmt.Errorf("%w: comment on %s#%d: %v", models.ErrHost, repo, number, err)
	}
	return nil
}

// AddLabels adds labels to a pull request.
func (c *Client) AddLabels(ctx context.Context, repo string, number int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	if c.dryRun {
		logger.Infof("[DRY-RUN] Would add labels %v to %s#%d", labels, repo, number)
		return nil
	}

	owner, name, err := ParseOwnerRepo(repo)
	if err != nil {
		return fmt.Errorf("failed to parse repository: %w", err)
	}

	if _, _, err := c.client.Issues.AddLabelsToIssue(ctx, owner, name, number, labels); err != nil {
		return fmt.Errorf("%w: add labels to %s#%d: %v", models.ErrHost, repo, number, err)
	}
	return nil
}

// SetTitle renames a pull request.
func (c *Client) SetTitle(ctx context.Context, repo string, number int, title string) error {
	if c.dryRun {
		logger.Infof("[DRY-RUN] Would rename %s#%d to %q", repo, number, title)
		return nil
	}

	owner, name, err := ParseOwnerRepo(repo)
	if err != nil {
		return fmt.Errorf("failed to parse repository: %w", err)
	}

	edit := &github.PullRequest{Title: github.String(title)}
	if _, _, err := c.client.PullRequests.Edit(ctx, owner, name, number, edit); err != nil {
		return fmt.Errorf("%w: rename %s#%d: %v", models.ErrHost, repo, number, err)
	}
	return nil
}

// FetchRepoFile reads a file from the repository's default branch.
func (c *Client) FetchRepoFile(ctx context.Context, repo, path string) ([]byte, error) {
	owner, name, err := ParseOwnerRepo(repo)
	if err != nil {
		return nil, fmt.Errorf("failed to parse repository: %w", err)
	}

	file, _, _, err := c.client.Repositories.GetContents(ctx, owner, name, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s from %s: %v", models.ErrHost, path, repo, err)
	}
	if file == nil {
		return nil, fmt.Errorf("%w: %s in %s is not a file", models.ErrHost, path, repo)
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s from %s: %v", models.ErrHost, path, repo, err)
	}
	return []byte(content), nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// Package correlate decides whether a tracker ticket already represents a
// given pull request. Search results alone are never trusted: a hit must be
// backed by independent evidence before it counts.
package correlate

import (
	"context"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ccd-ops/renovate-jira/pkg/config"
	"github.com/ccd-ops/renovate-jira/pkg/jira"
	"github.com/ccd-ops/renovate-jira/pkg/models"
	"github.com/ccd-ops/renovate-jira/pkg/query"
)

var logger = log.WithField("package", "correlate")

// Evidence kinds, reported alongside a confirmed ticket key.
const (
	EVIDENCE_CONVERSATION  = "conversation-reference"
	EVIDENCE_DESCRIPTION   = "url-in-description"
	EVIDENCE_REMOTE_LINK   = "existing-remote-link"
	EVIDENCE_LINK_ATTACHED = "remote-link-attached"
)

// genericKeyRe matches any tracker issue key when no project keys are
// configured to narrow the scan.
var genericKeyRe = regexp.MustCompile(`\b([A-Z][A-Z0-9]+-\d+)\b`)

// Correlator implements the evidence search. Tracker failures inside a run
// are logged and degrade to "no match" for that evidence source; the caller
// never sees them.
type Correlator struct {
	tracker  jira.Tracker
	builder  query.QueryBuilder
	mutating bool
}

// NewCorrelator creates a new correlator. The mutating flag gates the
// link-attachment evidence tier, which confirms a search hit by creating a
// remote link on it.
func NewCorrelator(tracker jira.Tracker, builder query.QueryBuilder, mutating bool) *Correlator {
	return &Correlator{
		tracker:  tracker,
		builder:  builder,
		mutating: mutating,
	}
}

// FindExisting returns the key of a ticket already tracking the pull request
// and the evidence that confirmed it, or empty strings when none exists.
// Evidence sources are tried in priority order, short-circuiting on the
// first positive match: explicit conversation reference, exact-phrase
// searches, token-fallback search.
func (c *Correlator) FindExisting(ctx context.Context, pr models.PullRequest, summary string, cfg config.RepositoryConfig) (string, string) {
	if key := c.scanConversation(pr.Comments, cfg); key != "" {
		snapshot, err := c.tracker.GetTicket(ctx, key)
		switch {
		case err != nil:
			// Cannot verify the status. Keeping the reference is the safe
			// side: a duplicate blocked now beats a duplicate created now.
			logger.Warnf("Correlate: status check for referenced ticket %s failed, keeping it: %v", key, err)
			return key, EVIDENCE_CONVERSATION
		case snapshot == nil:
			logger.Infof("Correlate: conversation references %s but it no longer exists, ignoring", key)
		case cfg.IsWithdrawn(snapshot.Status):
			logger.Infof("Correlate: referenced ticket %s is withdrawn, a replacement may be created", key)
		default:
			return key, EVIDENCE_CONVERSATION
		}
	}

	for _, phrase := range c.builder.ExactCandidates(summary) {
		q := c.builder.ExactQuery(cfg.Jira.Project, phrase, cfg.Jira.WithdrawnStatus)
		if key, evidence := c.confirmSearch(ctx, q, pr, cfg); key != "" {
			return key, evidence
		}
	}

	if q := c.builder.TokenQuery(cfg.Jira.Project, summary, cfg.Jira.WithdrawnStatus); q != nil {
		if key, evidence := c.confirmSearch(ctx, *q, pr, cfg); key != "" {
			return key, evidence
		}
	}

	return "", ""
}

// scanConversation returns the first explicit ticket reference found in the
// pull-request comments.
func (c *Correlator) scanConversation(comments []string, cfg config.RepositoryConfig) string {
	re := keyPattern(cfg.ProjectKeys())
	for _, body := range comments {
		if m := re.FindString(body); m != "" {
			return m
		}
	}
	return ""
}

// confirmSearch runs one tracker search and looks for independent evidence
// on each hit. A hit with no evidence is ignored even though it matched the
// query text.
func (c *Correlator) confirmSearch(ctx context.Context, q query.SearchQuery, pr models.PullRequest, cfg config.RepositoryConfig) (string, string) {
	hits, err := c.tracker.Search(ctx, q.JQL())
	if err != nil {
		logger.Warnf("Correlate: search failed, skipping: %v", err)
		return "", ""
	}

	for _, hit := range hits {
		if cfg.IsWithdrawn(hit.Status) {
			continue
		}

		if pr.HTMLURL != "" && strings.Contains(hit.Description, pr.HTMLURL) {
			return hit.Key, EVIDENCE_DESCRIPTION
		}

		links, err := c.tracker.ListRemoteLinks(ctx, hit.Key)
		if err != nil {
			logger.Warnf("Correlate: listing remote links of %s failed, skipping hit: %v", hit.Key, err)
			continue
		}
		for _, link := range links {
			if link.URL == pr.HTMLURL || (link.Title != "" && link.Title == pr.Title) {
				return hit.Key, EVIDENCE_REMOTE_LINK
			}
		}

		if cfg.Jira.LinkPRs && c.mutating {
			if err := c.tracker.AddRemoteLink(ctx, hit.Key, pr.HTMLURL, pr.Title); err != nil {
				logger.Warnf("Correlate: attaching link to %s failed, skipping hit: %v", hit.Key, err)
				continue
			}
			logger.Infof("Correlate: linked %s to %s as correlation evidence", pr.HTMLURL, hit.Key)
			return hit.Key, EVIDENCE_LINK_ATTACHED
		}
	}

	return "", ""
}

// keyPattern builds the conversation-scan pattern: the configured project
// keys when present, any plausible issue key otherwise.
func keyPattern(projectKeys []string) *regexp.Regexp {
	quoted := make([]string, 0, len(projectKeys))
	for _, k := range projectKeys {
		if k != "" {
			quoted = append(quoted, regexp.QuoteMeta(k))
		}
	}
	if len(quoted) == 0 {
		return genericKeyRe
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)-\d+\b`)
}

// Package query derives Jira search queries from pull request titles. Exact
// phrase candidates come first; when none of them hit, a small number of
// distinctive title tokens widen the search.
package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ccd-ops/renovate-jira/pkg/models"
)

const (
	// MAX_TOKENS caps how many title tokens a fallback query may carry.
	MAX_TOKENS = 2
	// MIN_TOKEN_LENGTH drops tokens too short to mean anything in a summary search.
	MIN_TOKEN_LENGTH = 3
)

var (
	// STOP_WORDS are title tokens that appear in virtually every Renovate PR
	// and therefore select nothing.
	STOP_WORDS = []string{"update", "action", "actions", "bump", "dependency", "dependencies", "to", "from"}

	// tokenRe captures identifier-ish runs, keeping internal dots, hyphens and
	// underscores together so "4.17.21" or "spring-boot" stay one token.
	tokenRe = regexp.MustCompile(`[0-9A-Za-z]+(?:[._-][0-9A-Za-z]+)*`)

	// ticketPrefixRe matches a leading "KEY-123 :: " marker left behind by a
	// previous run that renamed the PR title.
	ticketPrefixRe = regexp.MustCompile(`^[A-Z][A-Z0-9]+-[0-9]+\s*::\s*`)
)

// Clause is a single summary match inside a search query.
type Clause struct {
	// Text is the unescaped phrase or token.
	Text string
	// Exact marks the clause as a quoted-phrase match rather than a loose
	// token match.
	Exact bool
}

// SearchQuery is one tracker search the correlator will run.
type SearchQuery struct {
	Project       string
	Clauses       []Clause
	ExcludeStatus string
}

// JQL renders the query. Phrase clauses embed escaped inner quotes so the
// tracker treats them as exact matches.
func (q SearchQuery) JQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "project = %q", q.Project)
	for _, c := range q.Clauses {
		text := Escape(c.Text)
		if c.Exact {
			text = `\"` + text + `\"`
		}
		fmt.Fprintf(&b, ` AND summary ~ "%s"`, text)
	}
	if q.ExcludeStatus != "" {
		fmt.Fprintf(&b, ` AND status != %q`, q.ExcludeStatus)
	}
	return b.String()
}

// Escape backslash-escapes the two characters that break a quoted JQL string.
func Escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// QueryBuilder derives the searches used to find an existing ticket for a PR.
type QueryBuilder interface {
	// ExactCandidates lists the quoted phrases to try, most specific first.
	ExactCandidates(summary string) []string
	// ExactQuery wraps one phrase candidate in a full search query.
	ExactQuery(project, phrase, excludeStatus string) SearchQuery
	// TokenQuery builds the widened fallback search, or nil when the title
	// yields no usable tokens.
	TokenQuery(project, summary, excludeStatus string) *SearchQuery
}

// Builder implements QueryBuilder.
type Builder struct{}

// Ensure Builder implements QueryBuilder
var _ QueryBuilder = (*Builder)(nil)

// NewBuilder creates a new query builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// ExactCandidates lists the quoted phrases to try, most specific first: the
// proposed summary itself, then the bare title with the summary prefix and
// any leading ticket marker stripped. Duplicates and empties are dropped.
func (b *Builder) ExactCandidates(summary string) []string {
	summary = strings.TrimSpace(summary)

	title := strings.TrimPrefix(summary, models.SUMMARY_PREFIX)
	title = ticketPrefixRe.ReplaceAllString(title, "")
	title = strings.TrimSpace(title)

	candidates := make([]string, 0, 2)
	seen := map[string]bool{}
	for _, c := range []string{summary, title} {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		candidates = append(candidates, c)
	}
	return candidates
}

// ExactQuery wraps one phrase candidate in a full search query.
func (b *Builder) ExactQuery(project, phrase, excludeStatus string) SearchQuery {
	return SearchQuery{
		Project:       project,
		Clauses:       []Clause{{Text: phrase, Exact: true}},
		ExcludeStatus: excludeStatus,
	}
}

// TokenQuery builds the widened fallback search from distinctive title
// tokens. Tokens carrying a digit or hyphen (package names, versions) are
// preferred over plain words; at most MAX_TOKENS survive. Returns nil when
// nothing usable remains.
func (b *Builder) TokenQuery(project, summary, excludeStatus string) *SearchQuery {
	tokens := Tokenize(summary)
	if len(tokens) == 0 {
		return nil
	}

	q := &SearchQuery{Project: project, ExcludeStatus: excludeStatus}
	for _, t := range tokens {
		q.Clauses = append(q.Clauses, Clause{Text: t})
	}
	return q
}

// Tokenize extracts the fallback search tokens from a summary: lowercased
// identifier runs of usable length, stop words removed, strong tokens first,
// first-seen order preserved within each group, capped at MAX_TOKENS.
func Tokenize(summary string) []string {
	var strong, weak []string
	seen := map[string]bool{}
	for _, raw := range tokenRe.FindAllString(summary, -1) {
		t := strings.ToLower(raw)
		if len(t) < MIN_TOKEN_LENGTH || isStopWord(t) || seen[t] {
			continue
		}
		seen[t] = true
		if isStrongToken(t) {
			strong = append(strong, t)
		} else {
			weak = append(weak, t)
		}
	}

	tokens := append(strong, weak...)
	if len(tokens) > MAX_TOKENS {
		tokens = tokens[:MAX_TOKENS]
	}
	return tokens
}

func isStopWord(t string) bool {
	for _, w := range STOP_WORDS {
		if t == w {
			return true
		}
	}
	return false
}

// isStrongToken reports whether a token is distinctive enough to anchor a
// search on its own. Version numbers and hyphenated package names qualify.
func isStrongToken(t string) bool {
	if strings.Contains(t, "-") {
		return true
	}
	return strings.ContainsAny(t, "0123456789")
}

package models

// Classification categories. A pull request matches at most one, evaluated
// in this priority order.
const (
	CATEGORY_SECURITY     = "security"
	CATEGORY_MAJOR        = "major"
	CATEGORY_CRITICAL_DEP = "critical-dep"
)

// DRY_RUN_TICKET_KEY is the sentinel ticket key returned by mutating tracker
// calls when the run is not allowed to create anything.
const DRY_RUN_TICKET_KEY = "DRY-RUN-1"

// SUMMARY_PREFIX starts every ticket summary the agent proposes. The query
// builder strips it again when deriving search phrases.
const SUMMARY_PREFIX = "Dependency update: "

// PullRequest is an immutable snapshot of a dependency-update pull request
// as fetched from the source host. The core only derives decisions from it.
type PullRequest struct {
	Repo    string // "owner/name"
	Number  int
	Title   string
	Body    string
	Labels  []string
	HTMLURL string
	State   string // "open" or "closed"

	// Comments holds the conversation excerpts, populated on demand before
	// correlation. Empty until then.
	Comments []string
}

// Decision is the classification outcome for a single pull request.
// An empty Category means no rule matched and the caller takes no action.
type Decision struct {
	Category string
	Reason   string
}

// Tracked reports whether the decision requires a tracking ticket.
func (d Decision) Tracked() bool {
	return d.Category != ""
}

// TicketSnapshot is the current state of a tracker issue, fetched on demand
// and never cached beyond a single reconciliation step: the tracker is the
// source of truth and humans edit it concurrently.
type TicketSnapshot struct {
	Key         string
	Status      string
	Labels      []string
	FixVersions []string
	EpicKey     string
	Workstream  string
}

// HasLabel reports whether the snapshot carries the given label.
func (s *TicketSnapshot) HasLabel(label string) bool {
	for _, l := range s.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// HasFixVersion reports whether the snapshot carries the given fix version.
func (s *TicketSnapshot) HasFixVersion(name string) bool {
	for _, v := range s.FixVersions {
		if v == name {
			return true
		}
	}
	return false
}

// TicketFields carries everything needed to create a tracking ticket.
type TicketFields struct {
	Project     string
	Summary     string
	Description string
	IssueType   string
	Priority    string
	Labels      []string
	FixVersion  string
	EpicKey     string
	Workstream  string
}

// TicketDiff is a field-by-field convergence diff computed by the
// reconciliation engine. Labels and fix versions are add-only so manual
// edits on the ticket are never removed; epic link and workstream are
// overwrites. An empty diff means the ticket already matches the targets.
type TicketDiff struct {
	AddLabels      []string
	AddFixVersions []string
	EpicKey        *string
	Workstream     *string
}

// Empty reports whether applying the diff would change nothing.
func (d TicketDiff) Empty() bool {
	return len(d.AddLabels) == 0 && len(d.AddFixVersions) == 0 && d.EpicKey == nil && d.Workstream == nil
}

// SearchHit is a single issue returned by a tracker search.
type SearchHit struct {
	Key         string
	Summary     string
	Description string
	Status      string
}

// RemoteLink is a web link attached to a tracker issue.
type RemoteLink struct {
	URL   string
	Title string
}

// Transition is an available workflow transition on a tracker issue.
type Transition struct {
	ID   string
	Name string
	To   string // status name the transition leads to
}

package runner

import (
	"context"
	"fmt"

	"github.com/ccd-ops/renovate-jira/pkg/config"
	"github.com/ccd-ops/renovate-jira/pkg/models"
)

// MockHost is a stateful source-host fake. Reads are served from the seeded
// maps and mutations are recorded for assertions.
type MockHost struct {
	repos    []string
	prs      map[string][]models.PullRequest
	comments map[string][]string
	errors   map[string]error

	CommentsAdded []string
	LabelsAdded   []string
	TitlesSet     []string
	Calls         []string
}

func NewMockHost(repos ...string) *MockHost {
	return &MockHost{
		repos:    repos,
		prs:      make(map[string][]models.PullRequest),
		comments: make(map[string][]string),
		errors:   make(map[string]error),
	}
}

func (m *MockHost) SetPullRequests(repo string, prs ...models.PullRequest) {
	m.prs[repo] = prs
}

func (m *MockHost) SetComments(repo string, number int, comments ...string) {
	m.comments[fmt.Sprintf("%s#%d", repo, number)] = comments
}

func (m *MockHost) SetError(op string, err error) {
	m.errors[op] = err
}

func (m *MockHost) record(call string) {
	m.Calls = append(m.Calls, call)
}

func (m *MockHost) ResolveRepositories(ctx context.Context) ([]string, error) {
	m.record("ResolveRepositories")
	if err := m.errors["ResolveRepositories"]; err != nil {
		return nil, err
	}
	return m.repos, nil
}

func (m *MockHost) ListOpenPullRequests(ctx context.Context, repo string) ([]models.PullRequest, error) {
	m.record("ListOpenPullRequests " + repo)
	if err := m.errors["ListOpenPullRequests"]; err != nil {
		return nil, err
	}
	return m.prs[repo], nil
}

func (m *MockHost) ListComments(ctx context.Context, repo string, number int) ([]string, error) {
	m.record(fmt.Sprintf("ListComments %s#%d", repo, number))
	if err := m.errors["ListComments"]; err != nil {
		return nil, err
	}
	return m.comments[fmt.Sprintf("%s#%d", repo, number)], nil
}

func (m *MockHost) AddComment(ctx context.Context, repo string, number int, body string) error {
	m.record(fmt.Sprintf("AddComment %s#%d", repo, number))
	if err := m.errors["AddComment"]; err != nil {
		return err
	}
	m.CommentsAdded = append(m.CommentsAdded, body)
	return nil
}

func (m *MockHost) AddLabels(ctx context.Context, repo string, number int, labels []string) error {
	m.record(fmt.Sprintf("AddLabels %s#%d", repo, number))
	if err := m.errors["AddLabels"]; err != nil {
		return err
	}
	m.LabelsAdded = append(m.LabelsAdded, labels...)
	return nil
}

func (m *MockHost) SetTitle(ctx context.Context, repo string, number int, title string) error {
	m.record(fmt.Sprintf("SetTitle %s#%d", repo, number))
	if err := m.errors["SetTitle"]; err != nil {
		return err
	}
	m.TitlesSet = append(m.TitlesSet, title)
	return nil
}

func (m *MockHost) FetchRepoFile(ctx context.Context, repo, path string) ([]byte, error) {
	m.record("FetchRepoFile " + repo)
	return nil, fmt.Errorf("no file seeded for %s", repo)
}

// MockTracker is a stateful tracker fake. Created keys are handed out
// sequentially unless CreateKey pins one, and CreateErrs fails creations in
// call order.
type MockTracker struct {
	tickets     map[string]*models.TicketSnapshot
	searches    map[string][]models.SearchHit
	transitions map[string][]models.Transition
	errors      map[string]error

	CreateKey  string
	CreateErrs []error

	Preflights []string
	Created    []models.TicketFields
	Updates    map[string][]models.TicketDiff
	LinksAdded []string
	Fired      []string
	Calls      []string
}

func NewMockTracker() *MockTracker {
	return &MockTracker{
		tickets:     make(map[string]*models.TicketSnapshot),
		searches:    make(map[string][]models.SearchHit),
		transitions: make(map[string][]models.Transition),
		errors:      make(map[string]error),
		Updates:     make(map[string][]models.TicketDiff),
	}
}

func (m *MockTracker) SetTicket(key string, snapshot models.TicketSnapshot) {
	m.tickets[key] = &snapshot
}

func (m *MockTracker) SetSearch(jql string, hits ...models.SearchHit) {
	m.searches[jql] = hits
}

func (m *MockTracker) SetTransitions(key string, transitions ...models.Transition) {
	m.transitions[key] = transitions
}

func (m *MockTracker) SetError(op string, err error) {
	m.errors[op] = err
}

func (m *MockTracker) record(call string) {
	m.Calls = append(m.Calls, call)
}

func (m *MockTracker) Preflight(ctx context.Context, project string) error {
	m.record("Preflight " + project)
	if err := m.errors["Preflight"]; err != nil {
		return err
	}
	m.Preflights = append(m.Preflights, project)
	return nil
}

func (m *MockTracker) Search(ctx context.Context, jql string) ([]models.SearchHit, error) {
	m.record("Search " + jql)
	if err := m.errors["Search"]; err != nil {
		return nil, err
	}
	return m.searches[jql], nil
}

func (m *MockTracker) GetTicket(ctx context.Context, key string) (*models.TicketSnapshot, error) {
	m.record("GetTicket " + key)
	if err := m.errors["GetTicket"]; err != nil {
		return nil, err
	}
	return m.tickets[key], nil
}

func (m *MockTracker) CreateTicket(ctx context.Context, fields models.TicketFields) (string, error) {
	m.record("CreateTicket " + fields.Project)
	if len(m.CreateErrs) > 0 {
		err := m.CreateErrs[0]
		m.CreateErrs = m.CreateErrs[1:]
		if err != nil {
			return "", err
		}
	}
	m.Created = append(m.Created, fields)
	key := m.CreateKey
	if key == "" {
		key = fmt.Sprintf("%s-%d", fields.Project, 99+len(m.Created))
	}
	m.tickets[key] = &models.TicketSnapshot{Key: key, Status: "Open"}
	return key, nil
}

func (m *MockTracker) UpdateTicket(ctx context.Context, key string, diff models.TicketDiff) error {
	m.record("UpdateTicket " + key)
	if err := m.errors["UpdateTicket"]; err != nil {
		return err
	}
	m.Updates[key] = append(m.Updates[key], diff)
	return nil
}

func (m *MockTracker) ListRemoteLinks(ctx context.Context, key string) ([]models.RemoteLink, error) {
	m.record("ListRemoteLinks " + key)
	if err := m.errors["ListRemoteLinks"]; err != nil {
		return nil, err
	}
	return nil, nil
}

func (m *MockTracker) AddRemoteLink(ctx context.Context, key, linkURL, title string) error {
	m.record("AddRemoteLink " + key)
	if err := m.errors["AddRemoteLink"]; err != nil {
		return err
	}
	m.LinksAdded = append(m.LinksAdded, fmt.Sprintf("%s %s", key, linkURL))
	return nil
}

func (m *MockTracker) ListTransitions(ctx context.Context, key string) ([]models.Transition, error) {
	m.record("ListTransitions " + key)
	if err := m.errors["ListTransitions"]; err != nil {
		return nil, err
	}
	return m.transitions[key], nil
}

func (m *MockTracker) FireTransition(ctx context.Context, key, transitionID string) error {
	m.record("FireTransition " + key)
	if err := m.errors["FireTransition"]; err != nil {
		return err
	}
	m.Fired = append(m.Fired, transitionID)
	return nil
}

// stubConfigs serves one fixed repository config for every repository.
type stubConfigs struct {
	cfg config.RepositoryConfig
	err error
}

func (s stubConfigs) LoadRepositoryConfig(ctx context.Context, repo string) (config.RepositoryConfig, error) {
	return s.cfg, s.err
}

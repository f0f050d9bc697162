package correlate

import (
	"context"
	"fmt"

	"github.com/ccd-ops/renovate-jira/pkg/models"
)

// MockTracker provides an in-memory tracker for correlation tests. Searches
// are keyed by the exact JQL string so tests exercise the real query
// rendering path.
type MockTracker struct {
	tickets  map[string]*models.TicketSnapshot
	searches map[string][]models.SearchHit
	links    map[string][]models.RemoteLink
	errors   map[string]error // operation -> error

	Calls      []string
	LinksAdded []models.RemoteLink
}

func NewMockTracker() *MockTracker {
	return &MockTracker{
		tickets:  make(map[string]*models.TicketSnapshot),
		searches: make(map[string][]models.SearchHit),
		links:    make(map[string][]models.RemoteLink),
		errors:   make(map[string]error),
	}
}

func (m *MockTracker) SetTicket(snapshot *models.TicketSnapshot) {
	m.tickets[snapshot.Key] = snapshot
}

func (m *MockTracker) SetSearch(jql string, hits ...models.SearchHit) {
	m.searches[jql] = hits
}

func (m *MockTracker) SetLinks(key string, links ...models.RemoteLink) {
	m.links[key] = links
}

func (m *MockTracker) SetError(operation string, err error) {
	m.errors[operation] = err
}

func (m *MockTracker) record(format string, args ...interface{}) {
	m.Calls = append(m.Calls, fmt.Sprintf(format, args...))
}

func (m *MockTracker) Preflight(ctx context.Context, project string) error {
	m.record("Preflight %s", project)
	return m.errors["Preflight"]
}

func (m *MockTracker) Search(ctx context.Context, jql string) ([]models.SearchHit, error) {
	m.record("Search %s", jql)
	if err := m.errors["Search"]; err != nil {
		return nil, err
	}
	return m.searches[jql], nil
}

func (m *MockTracker) GetTicket(ctx context.Context, key string) (*models.TicketSnapshot, error) {
	m.record("GetTicket %s", key)
	if err := m.errors["GetTicket"]; err != nil {
		return nil, err
	}
	return m.tickets[key], nil
}

func (m *MockTracker) CreateTicket(ctx context.Context, fields models.TicketFields) (string, error) {
	m.record("CreateTicket %s", fields.Summary)
	if err := m.errors["CreateTicket"]; err != nil {
		return "", err
	}
	return "DEV-NEW", nil
}

func (m *MockTracker) UpdateTicket(ctx context.Context, key string, diff models.TicketDiff) error {
	m.record("UpdateTicket %s", key)
	return m.errors["UpdateTicket"]
}

func (m *MockTracker) ListRemoteLinks(ctx context.Context, key string) ([]models.RemoteLink, error) {
	m.record("ListRemoteLinks %s", key)
	if err := m.errors["ListRemoteLinks"]; err != nil {
		return nil, err
	}
	return m.links[key], nil
}

func (m *MockTracker) AddRemoteLink(ctx context.Context, key, linkURL, title string) error {
	m.record("AddRemoteLink %s %s", key, linkURL)
	if err := m.errors["AddRemoteLink"]; err != nil {
		return err
	}
	link := models.RemoteLink{URL: linkURL, Title: title}
	m.links[key] = append(m.links[key], link)
	m.LinksAdded = append(m.LinksAdded, link)
	return nil
}

func (m *MockTracker) ListTransitions(ctx context.Context, key string) ([]models.Transition, error) {
	m.record("ListTransitions %s", key)
	return nil, m.errors["ListTransitions"]
}

func (m *MockTracker) FireTransition(ctx context.Context, key, transitionID string) error {
	m.record("FireTransition %s %s", key, transitionID)
	return m.errors["FireTransition"]
}

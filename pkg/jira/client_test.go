package jira

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ccd-ops/renovate-jira/pkg/config"
	"github.com/ccd-ops/renovate-jira/pkg/models"
)

func newTestClient(t *testing.T, dryRun bool, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(config.JiraApp{
		BaseURL:         srv.URL,
		PAT:             "pat-token",
		APIVersion:      "2",
		EpicLinkField:   "customfield_10008",
		WorkstreamField: "customfield_10110",
	}, 5*time.Second, dryRun)
	require.NoError(t, err)
	return c
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(config.JiraApp{}, time.Second, false)
	require.Error(t, err)

	_, err = NewClient(config.JiraApp{BaseURL: "https://jira.example.com", UserEmail: "a@b.c"}, time.Second, false)
	require.Error(t, err)

	c, err := NewClient(config.JiraApp{BaseURL: "https://jira.example.com/", PAT: "x"}, time.Second, false)
	require.NoError(t, err)
	require.Equal(t, "https://jira.example.com/rest/api/2/issue", c.apiURL("/issue"))
}

func TestAuthHeaders(t *testing.T) {
	var gotAuth string
	var gotBasicUser string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBasicUser, _, _ = r.BasicAuth()
		_, _ = w.Write([]byte(`{"issues":[]}`))
	})

	c := newTestClient(t, false, handler)
	_, err := c.Search(context.Background(), `project = "DEV"`)
	require.NoError(t, err)
	require.Equal(t, "Bearer pat-token", gotAuth)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	basic, err := NewClient(config.JiraApp{
		BaseURL:   srv.URL,
		UserEmail: "bot@example.com",
		APIToken:  "api-token",
	}, 5*time.Second, false)
	require.NoError(t, err)
	_, err = basic.Search(context.Background(), `project = "DEV"`)
	require.NoError(t, err)
	require.Equal(t, "bot@example.com", gotBasicUser)
}

func TestSearch(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/api/2/search", r.URL.Path)
		require.Equal(t, `project = "DEV" AND summary ~ "lodash"`, r.URL.Query().Get("jql"))
		require.Equal(t, "summary,description,status", r.URL.Query().Get("fields"))

		_, _ = w.Write([]byte(`{"issues":[
			{"key":"DEV-1","fields":{"summary":"Dependency update: Bump lodash","description":"Renovate PR: https://github.com/acme/api/pull/42","status":{"name":"Open"}}},
			{"key":"DEV-2","fields":{"summary":"Other","description":null,"status":{"name":"Withdrawn"}}}
		]}`))
	})

	c := newTestClient(t, false, handler)
	hits, err := c.Search(context.Background(), `project = "DEV" AND summary ~ "lodash"`)
	require.NoError(t, err)
	require.Equal(t, []models.SearchHit{
		{Key: "DEV-1", Summary: "Dependency update: Bump lodash", Description: "Renovate PR: https://github.com/acme/api/pull/42", Status: "Open"},
		{Key: "DEV-2", Summary: "Other", Status: "Withdrawn"},
	}, hits)
}

func TestSearchError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errorMessages":["bad jql"]}`))
	})

	c := newTestClient(t, false, handler)
	_, err := c.Search(context.Background(), "nonsense ~~")
	require.Error(t, err)
	require.True(t, errors.Is(err, models.ErrTracker))
	require.Contains(t, err.Error(), "bad jql")
}

func TestGetTicket(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/api/2/issue/DEV-7", r.URL.Path)
		require.Contains(t, r.URL.Query().Get("fields"), "customfield_10008")

		_, _ = w.Write([]byte(`{"key":"DEV-7","fields":{
			"status":{"name":"In Progress"},
			"labels":["renovate","CCD-BAU"],
			"fixVersions":[{"name":"CCD CI/CD Release"}],
			"customfield_10008":"CCD-7071",
			"customfield_10110":{"value":"Platform"}
		}}`))
	})

	c := newTestClient(t, false, handler)
	snap, err := c.GetTicket(context.Background(), "DEV-7")
	require.NoError(t, err)
	require.Equal(t, &models.TicketSnapshot{
		Key:         "DEV-7",
		Status:      "In Progress",
		Labels:      []string{"renovate", "CCD-BAU"},
		FixVersions: []string{"CCD CI/CD Release"},
		EpicKey:     "CCD-7071",
		Workstream:  "Platform",
	}, snap)
}

func TestGetTicketAbsent(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errorMessages":["Issue does not exist"]}`))
	})

	c := newTestClient(t, false, handler)
	snap, err := c.GetTicket(context.Background(), "DEV-404")
	require.NoError(t, err)
	require.Nil(t, snap)
}

func TestCreateTicket(t *testing.T) {
	var payload map[string]interface{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/rest/api/2/issue", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &payload))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"10001","key":"DEV-101"}`))
	})

	c := newTestClient(t, false, handler)
	key, err := c.CreateTicket(context.Background(), models.TicketFields{
		Project:     "DEV",
		Summary:     "Dependency update: Bump lodash to v5",
		Description: "Renovate PR: https://github.com/acme/api/pull/42",
		Priority:    "High",
		Labels:      []string{"CCD-BAU", "RENOVATE-PR"},
		FixVersion:  "CCD CI/CD Release",
		EpicKey:     "CCD-7071",
	})
	require.NoError(t, err)
	require.Equal(t, "DEV-101", key)

	fields := payload["fields"].(map[string]interface{})
	require.Equal(t, map[string]interface{}{"key": "DEV"}, fields["project"])
	require.Equal(t, "Dependency update: Bump lodash to v5", fields["summary"])
	require.Equal(t, map[string]interface{}{"name": "Task"}, fields["issuetype"])
	require.Equal(t, map[string]interface{}{"name": "High"}, fields["priority"])
	require.Equal(t, []interface{}{"CCD-BAU", "RENOVATE-PR"}, fields["labels"])
	require.Equal(t, []interface{}{map[string]interface{}{"name": "CCD CI/CD Release"}}, fields["fixVersions"])
	require.Equal(t, "CCD-7071", fields["customfield_10008"])
	_, hasWorkstream := fields["customfield_10110"]
	require.False(t, hasWorkstream, "empty workstream must not be sent")
}

func TestCreateTicketDryRun(t *testing.T) {
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	})

	c := newTestClient(t, true, handler)
	key, err := c.CreateTicket(context.Background(), models.TicketFields{Project: "DEV", Summary: "s"})
	require.NoError(t, err)
	require.Equal(t, models.DRY_RUN_TICKET_KEY, key)
	require.Zero(t, calls)
}

func TestCreateTicketError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":{"priority":"unknown"}}`))
	})

	c := newTestClient(t, false, handler)
	_, err := c.CreateTicket(context.Background(), models.TicketFields{Project: "DEV", Summary: "s"})
	require.Error(t, err)
	require.True(t, errors.Is(err, models.ErrCreation))
}

func TestUpdateTicket(t *testing.T) {
	var payload map[string]interface{}
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/rest/api/2/issue/DEV-7", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &payload))
		w.WriteHeader(http.StatusNoContent)
	})

	c := newTestClient(t, false, handler)
	epic := "CCD-7071"
	err := c.UpdateTicket(context.Background(), "DEV-7", models.TicketDiff{
		AddLabels:      []string{"RENOVATE-PR"},
		AddFixVersions: []string{"CCD CI/CD Release"},
		EpicKey:        &epic,
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	update := payload["update"].(map[string]interface{})
	require.Equal(t, []interface{}{map[string]interface{}{"add": "RENOVATE-PR"}}, update["labels"])
	require.Equal(t,
		[]interface{}{map[string]interface{}{"add": map[string]interface{}{"name": "CCD CI/CD Release"}}},
		update["fixVersions"])
	fields := payload["fields"].(map[string]interface{})
	require.Equal(t, "CCD-7071", fields["customfield_10008"])

	// Empty diffs and dry-run must not touch the API.
	require.NoError(t, c.UpdateTicket(context.Background(), "DEV-7", models.TicketDiff{}))
	require.Equal(t, 1, calls)

	dry := newTestClient(t, true, handler)
	require.NoError(t, dry.UpdateTicket(context.Background(), "DEV-7", models.TicketDiff{AddLabels: []string{"x"}}))
	require.Equal(t, 1, calls)
}

func TestRemoteLinks(t *testing.T) {
	var posted map[string]interface{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/api/2/issue/DEV-7/remotelink", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`[{"id":1,"object":{"url":"https://github.com/acme/api/pull/42","title":"PR"}}]`))
		case http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &posted))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":2}`))
		}
	})

	c := newTestClient(t, false, handler)
	links, err := c.ListRemoteLinks(context.Background(), "DEV-7")
	require.NoError(t, err)
	require.Equal(t, []models.RemoteLink{{URL: "https://github.com/acme/api/pull/42", Title: "PR"}}, links)

	err = c.AddRemoteLink(context.Background(), "DEV-7", "https://github.com/acme/api/pull/43", "Renovate PR")
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{
		"object": map[string]interface{}{"url": "https://github.com/acme/api/pull/43", "title": "Renovate PR"},
	}, posted)
}

func TestTransitions(t *testing.T) {
	var fired map[string]interface{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/api/2/issue/DEV-7/transitions", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"transitions":[
				{"id":"11","name":"Start Progress","to":{"name":"In Progress"}},
				{"id":"21","name":"Done","to":{"name":"Done"}}
			]}`))
		case http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &fired))
			w.WriteHeader(http.StatusNoContent)
		}
	})

	c := newTestClient(t, false, handler)
	transitions, err := c.ListTransitions(context.Background(), "DEV-7")
	require.NoError(t, err)
	require.Equal(t, []models.Transition{
		{ID: "11", Name: "Start Progress", To: "In Progress"},
		{ID: "21", Name: "Done", To: "Done"},
	}, transitions)

	require.NoError(t, c.FireTransition(context.Background(), "DEV-7", "11"))
	require.Equal(t, map[string]interface{}{"transition": map[string]interface{}{"id": "11"}}, fired)
}

func TestPreflight(t *testing.T) {
	var paths []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(`{}`))
	})

	c := newTestClient(t, false, handler)
	require.NoError(t, c.Preflight(context.Background(), "DEV"))
	require.Equal(t, []string{"/rest/api/2/myself", "/rest/api/2/project/DEV"}, paths)

	dry := newTestClient(t, true, handler)
	paths = nil
	require.NoError(t, dry.Preflight(context.Background(), "DEV"))
	require.Empty(t, paths)
}

func TestPreflightAuthFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	c := newTestClient(t, false, handler)
	err := c.Preflight(context.Background(), "DEV")
	require.Error(t, err)
	require.True(t, errors.Is(err, models.ErrTracker))
}

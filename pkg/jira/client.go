// Package jira implements the issue tracker collaborator over the Jira REST
// API. Cloud and Server are both supported: bearer PAT or basic email/token
// auth, API version selectable in the path.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ccd-ops/renovate-jira/pkg/config"
	"github.com/ccd-ops/renovate-jira/pkg/models"
)

var logger = log.WithField("package", "jira")

const (
	// DEFAULT_ISSUE_TYPE is used when the caller does not set one.
	DEFAULT_ISSUE_TYPE = "Task"
	// SEARCH_MAX_RESULTS caps one search page; the correlator only ever
	// inspects a handful of hits.
	SEARCH_MAX_RESULTS = 20
)

// Tracker defines the tracker operations the run controller and the
// correlation engine need. All mutating calls honor dry-run.
type Tracker interface {
	// Preflight verifies credentials and project visibility before the
	// first mutating call of a run.
	Preflight(ctx context.Context, project string) error
	// Search runs a JQL query and returns the matching issues.
	Search(ctx context.Context, jql string) ([]models.SearchHit, error)
	// GetTicket fetches the current state of one issue.
	GetTicket(ctx context.Context, key string) (*models.TicketSnapshot, error)
	// CreateTicket creates a tracking issue and returns its key.
	CreateTicket(ctx context.Context, fields models.TicketFields) (string, error)
	// UpdateTicket applies a convergence diff in a single request.
	UpdateTicket(ctx context.Context, key string, diff models.TicketDiff) error
	// ListRemoteLinks returns the web links attached to an issue.
	ListRemoteLinks(ctx context.Context, key string) ([]models.RemoteLink, error)
	// AddRemoteLink attaches a web link to an issue.
	AddRemoteLink(ctx context.Context, key, linkURL, title string) error
	// ListTransitions returns the workflow transitions available on an issue.
	ListTransitions(ctx context.Context, key string) ([]models.Transition, error)
	// FireTransition executes one workflow transition.
	FireTransition(ctx context.Context, key, transitionID string) error
}

// Client handles Jira API interactions
type Client struct {
	baseURL         string
	apiVersion      string
	pat             string
	userEmail       string
	apiToken        string
	epicLinkField   string
	workstreamField string
	dryRun          bool
	httpClient      *http.Client
}

// Ensure Client implements Tracker
var _ Tracker = (*Client)(nil)

// NewClient creates a new Jira client from the app configuration.
func NewClient(cfg config.JiraApp, timeout time.Duration, dryRun bool) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("jira base URL not set. Set JIRA_BASE_URL environment variable")
	}
	if cfg.PAT == "" && (cfg.UserEmail == "" || cfg.APIToken == "") {
		return nil, fmt.Errorf("jira credentials missing: set JIRA_PAT or JIRA_USER_EMAIL/JIRA_API_TOKEN")
	}

	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "2"
	}

	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		apiVersion:      apiVersion,
		pat:             cfg.PAT,
		userEmail:       cfg.UserEmail,
		apiToken:        cfg.APIToken,
		epicLinkField:   cfg.EpicLinkField,
		workstreamField: cfg.WorkstreamField,
		dryRun:          dryRun,
		httpClient:      &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) apiURL(path string) string {
	return fmt.Sprintf("%s/rest/api/%s%s", c.baseURL, c.apiVersion, path)
}

// do runs one API call: marshal payload, set auth headers, check status,
// decode into out. A nil wantStatus accepts any 2xx.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}, out interface{}, wantStatus ...int) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL(path), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.pat != "" {
		req.Header.Set("Authorization", "Bearer "+c.pat)
	} else {
		req.SetBasicAuth(c.userEmail, c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if !statusAccepted(resp.StatusCode, wantStatus) {
		raw, _ := io.ReadAll(resp.Body)
		return &apiError{status: resp.StatusCode, body: snippet(raw)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// apiError carries the HTTP status of a rejected call so callers can tell
// absence from failure.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("jira API returned status %d: %s", e.status, e.body)
}

func statusAccepted(code int, want []int) bool {
	if len(want) == 0 {
		return code >= 200 && code < 300
	}
	for _, w := range want {
		if code == w {
			return true
		}
	}
	return false
}

// snippet flattens an error body to one bounded line for log and error text.
func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 500 {
		s = s[:500]
	}
	return s
}

// Preflight verifies credentials and project visibility. Skipped entirely in
// dry-run so a run without tracker access can still preview decisions.
func (c *Client) Preflight(ctx context.Context, project string) error {
	if c.dryRun {
		logger.Debugf("[DRY-RUN] Skipping Jira preflight for project %s", project)
		return nil
	}

	if err := c.do(ctx, http.MethodGet, "/myself", nil, nil); err != nil {
		return fmt.Errorf("%w: preflight auth check: %v", models.ErrTracker, err)
	}
	if err := c.do(ctx, http.MethodGet, "/project/"+url.PathEscape(project), nil, nil); err != nil {
		return fmt.Errorf("%w: preflight project %s: %v", models.ErrTracker, project, err)
	}
	return nil
}

// Search runs a JQL query and returns the matching issues with the fields
// the correlator inspects.
func (c *Client) Search(ctx context.Context, jql string) ([]models.SearchHit, error) {
	params := url.Values{}
	params.Set("jql", jql)
	params.Set("maxResults", fmt.Sprintf("%d", SEARCH_MAX_RESULTS))
	params.Set("fields", "summary,description,status")

	var result struct {
		Issues []struct {
			Key    string `json:"key"`
			Fields struct {
				Summary     string          `json:"summary"`
				Description json.RawMessage `json:"description"`
				Status      struct {
					Name string `json:"name"`
				} `json:"status"`
			} `json:"fields"`
		} `json:"issues"`
	}

	if err := c.do(ctx, http.MethodGet, "/search?"+params.Encode(), nil, &result); err != nil {
		return nil, fmt.Errorf("%w: search: %v", models.ErrTracker, err)
	}

	hits := make([]models.SearchHit, len(result.Issues))
	for i, issue := range result.Issues {
		hits[i] = models.SearchHit{
			Key:         issue.Key,
			Summary:     issue.Fields.Summary,
			Description: textValue(issue.Fields.Description),
			Status:      issue.Fields.Status.Name,
		}
	}
	return hits, nil
}

// GetTicket fetches the current state of one issue, including the configured
// epic link and workstream custom fields. A missing issue returns nil without
// an error.
func (c *Client) GetTicket(ctx context.Context, key string) (*models.TicketSnapshot, error) {
	fields := []string{"status", "labels", "fixVersions"}
	if c.epicLinkField != "" {
		fields = append(fields, c.epicLinkField)
	}
	if c.workstreamField != "" {
		fields = append(fields, c.workstreamField)
	}

	params := url.Values{}
	params.Set("fields", strings.Join(fields, ","))

	var result struct {
		Key    string                     `json:"key"`
		Fields map[string]json.RawMessage `json:"fields"`
	}

	path := "/issue/" + url.PathEscape(key) + "?" + params.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.status == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get issue %s: %v", models.ErrTracker, key, err)
	}

	snapshot := &models.TicketSnapshot{Key: result.Key}
	if snapshot.Key == "" {
		snapshot.Key = key
	}

	var status struct {
		Name string `json:"name"`
	}
	if raw, ok := result.Fields["status"]; ok {
		_ = json.Unmarshal(raw, &status)
	}
	snapshot.Status = status.Name

	if raw, ok := result.Fields["labels"]; ok {
		_ = json.Unmarshal(raw, &snapshot.Labels)
	}

	var fixVersions []struct {
		Name string `json:"name"`
	}
	if raw, ok := result.Fields["fixVersions"]; ok {
		_ = json.Unmarshal(raw, &fixVersions)
	}
	for _, v := range fixVersions {
		snapshot.FixVersions = append(snapshot.FixVersions, v.Name)
	}

	if c.epicLinkField != "" {
		snapshot.EpicKey = fieldValue(result.Fields[c.epicLinkField])
	}
	if c.workstreamField != "" {
		snapshot.Workstream = fieldValue(result.Fields[c.workstreamField])
	}
	return snapshot, nil
}

// CreateTicket creates a tracking issue and returns its key. In dry-run the
// call is logged and a sentinel key is returned instead.
func (c *Client) CreateTicket(ctx context.Context, fields models.TicketFields) (string, error) {
	if c.dryRun {
		logger.Infof("[DRY-RUN] Would create Jira issue in project %s: %s", fields.Project, fields.Summary)
		return models.DRY_RUN_TICKET_KEY, nil
	}

	issueType := fields.IssueType
	if issueType == "" {
		issueType = DEFAULT_ISSUE_TYPE
	}

	issueFields := map[string]interface{}{
		"project":     map[string]string{"key": fields.Project},
		"summary":     fields.Summary,
		"description": fields.Description,
		"issuetype":   map[string]string{"name": issueType},
		"labels":      fields.Labels,
	}
	if fields.Priority != "" {
		issueFields["priority"] = map[string]string{"name": fields.Priority}
	}
	if fields.FixVersion != "" {
		issueFields["fixVersions"] = []map[string]string{{"name": fields.FixVersion}}
	}
	if fields.EpicKey != "" && c.epicLinkField != "" {
		issueFields[c.epicLinkField] = fields.EpicKey
	}
	if fields.Workstream != "" && c.workstreamField != "" {
		issueFields[c.workstreamField] = fields.Workstream
	}

	var result struct {
		Key string `json:"key"`
	}
	payload := map[string]interface{}{"fields": issueFields}
	if err := c.do(ctx, http.MethodPost, "/issue", payload, &result, http.StatusOK, http.StatusCreated); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrCreation, err)
	}
	if result.Key == "" {
		return "", fmt.Errorf("%w: create response carried no issue key", models.ErrCreation)
	}

	logger.Infof("Created Jira issue %s in project %s", result.Key, fields.Project)
	return result.Key, nil
}

// UpdateTicket applies a convergence diff in a single request. Labels and fix
// versions use add operations so nothing already on the issue is removed.
func (c *Client) UpdateTicket(ctx context.Context, key string, diff models.TicketDiff) error {
	if diff.Empty() {
		return nil
	}
	if c.dryRun {
		logger.Infof("[DRY-RUN] Would update Jira issue %s: +labels=%v +fixVersions=%v", key, diff.AddLabels, diff.AddFixVersions)
		return nil
	}

	update := map[string]interface{}{}
	if len(diff.AddLabels) > 0 {
		ops := make([]map[string]string, len(diff.AddLabels))
		for i, l := range diff.AddLabels {
			ops[i] = map[string]string{"add": l}
		}
		update["labels"] = ops
	}
	if len(diff.AddFixVersions) > 0 {
		ops := make([]map[string]interface{}, len(diff.AddFixVersions))
		for i, v := range diff.AddFixVersions {
			ops[i] = map[string]interface{}{"add": map[string]string{"name": v}}
		}
		update["fixVersions"] = ops
	}

	fields := map[string]interface{}{}
	if diff.EpicKey != nil && c.epicLinkField != "" {
		fields[c.epicLinkField] = *diff.EpicKey
	}
	if diff.Workstream != nil && c.workstreamField != "" {
		fields[c.workstreamField] = *diff.Workstream
	}

	payload := map[string]interface{}{}
	if len(update) > 0 {
		payload["update"] = update
	}
	if len(fields) > 0 {
		payload["fields"] = fields
	}
	if len(payload) == 0 {
		return nil
	}

	path := "/issue/" + url.PathEscape(key)
	if err := c.do(ctx, http.MethodPut, path, payload, nil, http.StatusNoContent, http.StatusOK); err != nil {
		return fmt.Errorf("%w: update issue %s: %v", models.ErrTracker, key, err)
	}

	logger.Infof("Updated Jira issue %s", key)
	return nil
}

// ListRemoteLinks returns the web links attached to an issue.
func (c *Client) ListRemoteLinks(ctx context.Context, key string) ([]models.RemoteLink, error) {
	var result []struct {
		Object struct {
			URL   string `json:"url"`
			Title string `json:"title"`
		} `json:"object"`
	}

	path := "/issue/" + url.PathEscape(key) + "/remotelink"
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, fmt.Errorf("%w: list remote links for %s: %v", models.ErrTracker, key, err)
	}

	links := make([]models.RemoteLink, len(result))
	for i, l := range result {
		links[i] = models.RemoteLink{URL: l.Object.URL, Title: l.Object.Title}
	}
	return links, nil
}

// AddRemoteLink attaches a web link to an issue.
func (c *Client) AddRemoteLink(ctx context.Context, key, linkURL, title string) error {
	if c.dryRun {
		logger.Infof("[DRY-RUN] Would link %s to Jira issue %s", linkURL, key)
		return nil
	}

	payload := map[string]interface{}{
		"object": map[string]string{"url": linkURL, "title": title},
	}
	path := "/issue/" + url.PathEscape(key) + "/remotelink"
	if err := c.do(ctx, http.MethodPost, path, payload, nil, http.StatusOK, http.StatusCreated); err != nil {
		return fmt.Errorf("%w: add remote link to %s: %v", models.ErrTracker, key, err)
	}
	return nil
}

// ListTransitions returns the workflow transitions available on an issue.
func (c *Client) ListTransitions(ctx context.Context, key string) ([]models.Transition, error) {
	var result struct {
		Transitions []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			To   struct {
				Name string `json:"name"`
			} `json:"to"`
		} `json:"transitions"`
	}

	path := "/issue/" + url.PathEscape(key) + "/transitions"
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, fmt.Errorf("%w: list transitions for %s: %v", models.ErrTracker, key, err)
	}

	transitions := make([]models.Transition, len(result.Transitions))
	for i, t := range result.Transitions {
		transitions[i] = models.Transition{ID: t.ID, Name: t.Name, To: t.To.Name}
	}
	return transitions, nil
}

// FireTransition executes one workflow transition.
func (c *Client) FireTransition(ctx context.Context, key, transitionID string) error {
	if c.dryRun {
		logger.Infof("[DRY-RUN] Would fire transition %s on Jira issue %s", transitionID, key)
		return nil
	}

	payload := map[string]interface{}{
		"transition": map[string]string{"id": transitionID},
	}
	path := "/issue/" + url.PathEscape(key) + "/transitions"
	if err := c.do(ctx, http.MethodPost, path, payload, nil, http.StatusNoContent, http.StatusOK); err != nil {
		return fmt.Errorf("%w: transition %s on %s: %v", models.ErrTracker, transitionID, key, err)
	}

	logger.Infof("Transitioned Jira issue %s", key)
	return nil
}

// textValue decodes a field that is a plain string on API v2 but a rich-text
// document on v3. Document bodies are flattened to their raw JSON, which is
// still good enough for substring matching.
func textValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// fieldValue extracts a usable string from a custom field that may be a bare
// string or a select-option object.
func fieldValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Value string `json:"value"`
		Name  string `json:"name"`
		Key   string `json:"key"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Value != "" {
			return obj.Value
		}
		if obj.Name != "" {
			return obj.Name
		}
		return obj.Key
	}
	return ""
}

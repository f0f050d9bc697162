package config

import (
	"strings"

	"github.com/ccd-ops/renovate-jira/pkg/models"
	"gopkg.in/yaml.v3"
)

// REPO_CONFIG_PATH is where each scanned repository may override the
// defaults.
const REPO_CONFIG_PATH = ".github/renovate-jira.yml"

// RepositoryConfig controls how one repository's pull requests are handled.
// Loaded once per repository before any of its pull requests are processed
// and never mutated afterwards.
type RepositoryConfig struct {
	Enabled              bool
	CreateJiraFor        map[string]bool
	CriticalDependencies []string
	Labels               LabelsConfig
	Jira                 JiraConfig
	GitHub               GitHubConfig
}

// LabelsConfig names the pull-request labels the agent requires and adds.
type LabelsConfig struct {
	Require []string
	Add     []string
}

// JiraConfig carries the per-repository ticket targets.
type JiraConfig struct {
	Project         string
	ProjectAliases  []string
	Priority        map[string]string
	FixVersion      string
	EpicKey         string
	Workstream      string
	WithdrawnStatus string
	SkipStatuses    []string
	TransitionPath  []string
	LinkPRs         bool
}

// GitHubConfig toggles the side effects performed back on the pull request.
type GitHubConfig struct {
	Comment     bool
	AddLabels   bool
	RenameTitle bool
}

// DefaultRepositoryConfig builds the built-in per-repository defaults from
// the app-level settings. Overrides from .github/renovate-jira.yml merge over
// these key by key.
func DefaultRepositoryConfig(app *App) RepositoryConfig {
	return RepositoryConfig{
		Enabled: true,
		CreateJiraFor: map[string]bool{
			models.CATEGORY_SECURITY:     true,
			models.CATEGORY_MAJOR:        true,
			models.CATEGORY_CRITICAL_DEP: false,
		},
		CriticalDependencies: []string{},
		Labels: LabelsConfig{
			Require: []string{"renovate"},
			Add:     []string{"CCD-BAU", "RENOVATE-PR", "GENERATED-BY-Agent"},
		},
		Jira: JiraConfig{
			Project: app.Jira.ProjectKey,
			Priority: map[string]string{
				models.CATEGORY_SECURITY:     "High",
				models.CATEGORY_MAJOR:        "Medium",
				models.CATEGORY_CRITICAL_DEP: "High",
			},
			FixVersion:      app.Jira.FixVersion,
			EpicKey:         app.Jira.EpicKey,
			Workstream:      app.Jira.Workstream,
			WithdrawnStatus: "Withdrawn",
			SkipStatuses:    []string{"Done", "Closed"},
			LinkPRs:         true,
		},
		GitHub: GitHubConfig{
			Comment:   true,
			AddLabels: true,
		},
	}
}

// rawRepositoryConfig is the YAML shape of an override file. Pointers and
// nil maps distinguish "absent" from "explicitly set", so merging can honor
// override-wins-per-key without clobbering defaults wholesale.
type rawRepositoryConfig struct {
	Enabled              *bool            `yaml:"enabled"`
	CreateJiraFor        map[string]bool  `yaml:"create_jira_for"`
	CriticalDependencies *[]string        `yaml:"critical_dependencies"`
	Labels               *rawLabelsConfig `yaml:"labels"`
	Jira                 *rawJiraConfig   `yaml:"jira"`
	GitHub               *rawGitHubConfig `yaml:"github"`
}

type rawLabelsConfig struct {
	Require *[]string `yaml:"require"`
	Add     *[]string `yaml:"add"`
}

type rawJiraConfig struct {
	Project         *string           `yaml:"project"`
	ProjectAliases  *[]string         `yaml:"project_aliases"`
	Priority        map[string]string `yaml:"priority"`
	FixVersion      *string           `yaml:"fix_version"`
	EpicKey         *string           `yaml:"epic_key"`
	Workstream      *string           `yaml:"workstream"`
	WithdrawnStatus *string           `yaml:"withdrawn_status"`
	SkipStatuses    *[]string         `yaml:"skip_statuses"`
	TransitionPath  *[]string         `yaml:"transition_path"`
	LinkPRs         *bool             `yaml:"link_prs"`
}

type rawGitHubConfig struct {
	Comment     *bool `yaml:"comment"`
	AddLabels   *bool `yaml:"add_labels"`
	RenameTitle *bool `yaml:"rename_title"`
}

// MergeRepositoryConfig parses a YAML override and merges it over the
// defaults. Scalars and lists replace per key; the nested toggle and
// priority maps merge key by key rather than wholesale.
func MergeRepositoryConfig(defaults RepositoryConfig, data []byte) (RepositoryConfig, error) {
	var raw rawRepositoryConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return defaults, err
	}

	merged := defaults
	merged.CreateJiraFor = copyBoolMap(defaults.CreateJiraFor)
	merged.Jira.Priority = copyStringMap(defaults.Jira.Priority)

	if raw.Enabled != nil {
		merged.Enabled = *raw.Enabled
	}
	for k, v := range raw.CreateJiraFor {
		merged.CreateJiraFor[k] = v
	}
	if raw.CriticalDependencies != nil {
		merged.CriticalDependencies = *raw.CriticalDependencies
	}
	if raw.Labels != nil {
		if raw.Labels.Require != nil {
			merged.Labels.Require = *raw.Labels.Require
		}
		if raw.Labels.Add != nil {
			merged.Labels.Add = *raw.Labels.Add
		}
	}
	if raw.Jira != nil {
		if raw.Jira.Project != nil {
			merged.Jira.Project = *raw.Jira.Project
		}
		if raw.Jira.ProjectAliases != nil {
			merged.Jira.ProjectAliases = *raw.Jira.ProjectAliases
		}
		for k, v := range raw.Jira.Priority {
			merged.Jira.Priority[k] = v
		}
		if raw.Jira.FixVersion != nil {
			merged.Jira.FixVersion = *raw.Jira.FixVersion
		}
		if raw.Jira.EpicKey != nil {
			merged.Jira.EpicKey = *raw.Jira.EpicKey
		}
		if raw.Jira.Workstream != nil {
			merged.Jira.Workstream = *raw.Jira.Workstream
		}
		if raw.Jira.WithdrawnStatus != nil {
			merged.Jira.WithdrawnStatus = *raw.Jira.WithdrawnStatus
		}
		if raw.Jira.SkipStatuses != nil {
			merged.Jira.SkipStatuses = *raw.Jira.SkipStatuses
		}
		if raw.Jira.TransitionPath != nil {
			merged.Jira.TransitionPath = *raw.Jira.TransitionPath
		}
		if raw.Jira.LinkPRs != nil {
			merged.Jira.LinkPRs = *raw.Jira.LinkPRs
		}
	}
	if raw.GitHub != nil {
		if raw.GitHub.Comment != nil {
			merged.GitHub.Comment = *raw.GitHub.Comment
		}
		if raw.GitHub.AddLabels != nil {
			merged.GitHub.AddLabels = *raw.GitHub.AddLabels
		}
		if raw.GitHub.RenameTitle != nil {
			merged.GitHub.RenameTitle = *raw.GitHub.RenameTitle
		}
	}

	return merged, nil
}

// CreateFor reports whether tickets are created for the given category.
func (c *RepositoryConfig) CreateFor(category string) bool {
	return c.CreateJiraFor[category]
}

// PriorityFor maps a category to its configured ticket priority.
func (c *RepositoryConfig) PriorityFor(category string) string {
	if p, ok := c.Jira.Priority[category]; ok {
		return p
	}
	return "Medium"
}

// ProjectKeys returns the project key plus any aliases recognized when
// scanning conversations for explicit ticket references.
func (c *RepositoryConfig) ProjectKeys() []string {
	keys := make([]string, 0, 1+len(c.Jira.ProjectAliases))
	if c.Jira.Project != "" {
		keys = append(keys, c.Jira.Project)
	}
	for _, alias := range c.Jira.ProjectAliases {
		if alias != "" && alias != c.Jira.Project {
			keys = append(keys, alias)
		}
	}
	return keys
}

// IsWithdrawn reports whether the status is the abandoned-ticket status: a
// ticket there never blocks creating a replacement.
func (c *RepositoryConfig) IsWithdrawn(status string) bool {
	return strings.EqualFold(status, c.Jira.WithdrawnStatus)
}

// IsSkipStatus reports whether the status is terminal: a ticket there is
// closed business and is neither reconciled nor replaced.
func (c *RepositoryConfig) IsSkipStatus(status string) bool {
	for _, s := range c.Jira.SkipStatuses {
		if strings.EqualFold(status, s) {
			return true
		}
	}
	return false
}

func copyBoolMap(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

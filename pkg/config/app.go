package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Run modes. Dry-run is the default: every mutating collaborator call is
// logged and skipped while the read paths still execute.
const (
	RUN_MODE_DRY_RUN = "dry-run"
	RUN_MODE_APPLY   = "apply"
)

// App holds the process-level configuration loaded from the environment.
type App struct {
	GitHub GitHubApp `mapstructure:"github"`
	Jira   JiraApp   `mapstructure:"jira"`
	HTTP   HTTPApp   `mapstructure:"http"`
	Run    RunApp    `mapstructure:"run"`
}

// GitHubApp selects the source-host credentials and the repositories to scan.
// Exactly one targeting mode is used, checked in order: single repo, comma
// list, list file, organization scan.
type GitHubApp struct {
	Token        string `mapstructure:"token"`
	Repo         string `mapstructure:"repo"`
	RepoList     string `mapstructure:"repo_list"`
	RepoListFile string `mapstructure:"repo_list_file"`
	Org          string `mapstructure:"org"`
	TopicFilter  string `mapstructure:"topic_filter"`
	NameRegex    string `mapstructure:"name_regex"`
	PageSize     int    `mapstructure:"page_size"`
}

// JiraApp holds tracker credentials and the tenant-wide field defaults that
// seed every repository configuration.
type JiraApp struct {
	BaseURL         string `mapstructure:"base_url"`
	UserEmail       string `mapstructure:"user_email"`
	APIToken        string `mapstructure:"api_token"`
	PAT             string `mapstructure:"pat"`
	APIVersion      string `mapstructure:"api_version"`
	ProjectKey      string `mapstructure:"project_key"`
	FixVersion      string `mapstructure:"fix_version"`
	EpicLinkField   string `mapstructure:"epic_link_field"`
	EpicKey         string `mapstructure:"epic_key"`
	WorkstreamField string `mapstructure:"workstream_field"`
	Workstream      string `mapstructure:"workstream"`
}

// HTTPApp contains transport settings shared by both collaborators.
type HTTPApp struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// RunApp contains run-level behavior switches.
type RunApp struct {
	Mode            string        `mapstructure:"mode"`
	Verbose         bool          `mapstructure:"verbose"`
	LocalConfigPath string        `mapstructure:"local_config_path"`
	TemplatesPath   string        `mapstructure:"templates_path"`
	MaxNewTickets   int           `mapstructure:"max_new_tickets"`
	PRDelay         time.Duration `mapstructure:"pr_delay"`
	OutputDir       string        `mapstructure:"output_dir"`
	ExportReport    bool          `mapstructure:"export_report"`
	Trace           bool          `mapstructure:"trace"`
}

// NewApp loads configuration from the environment using viper with typed
// defaults and validation. A .env file in the working directory seeds missing
// variables first.
func NewApp() (*App, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvs(v)

	var app App
	if err := v.Unmarshal(&app); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := app.Validate(); err != nil {
		return nil, err
	}

	return &app, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("github.page_size", 50)

	v.SetDefault("jira.api_version", "2")
	v.SetDefault("jira.project_key", "DEV")
	v.SetDefault("jira.fix_version", "CCD CI/CD Release")
	v.SetDefault("jira.epic_link_field", "customfield_10008")
	v.SetDefault("jira.epic_key", "CCD-7071")
	v.SetDefault("jira.workstream_field", "customfield_10110")
	v.SetDefault("jira.workstream", "")

	v.SetDefault("http.timeout", 30*time.Second)

	v.SetDefault("run.mode", RUN_MODE_DRY_RUN)
	v.SetDefault("run.pr_delay", 500*time.Millisecond)
	v.SetDefault("run.output_dir", "./output")
}

// bindEnvs binds each key to its canonical variable plus the legacy aliases
// the agent has always honored.
func bindEnvs(v *viper.Viper) {
	binds := map[string][]string{
		"github.token":          {"GITHUB_TOKEN", "GH_TOKEN"},
		"github.repo":           {"GITHUB_REPO"},
		"github.repo_list":      {"GITHUB_REPO_LIST", "REPO_LIST"},
		"github.repo_list_file": {"GITHUB_REPO_LIST_FILE", "REPO_LIST_FILE"},
		"github.org":            {"GITHUB_ORG", "ORG_NAME"},
		"github.topic_filter":   {"GITHUB_TOPIC_FILTER", "REPO_TOPIC_FILTER"},
		"github.name_regex":     {"GITHUB_NAME_REGEX", "REPO_NAME_REGEX"},
		"github.page_size":      {"GITHUB_PAGE_SIZE", "PAGE_SIZE"},
		"jira.base_url":         {"JIRA_BASE_URL"},
		"jira.user_email":       {"JIRA_USER_EMAIL"},
		"jira.api_token":        {"JIRA_API_TOKEN"},
		"jira.pat":              {"JIRA_PAT"},
		"jira.api_version":      {"JIRA_API_VERSION"},
		"jira.project_key":      {"JIRA_PROJECT_KEY"},
		"jira.fix_version":      {"JIRA_FIX_VERSION"},
		"jira.epic_link_field":  {"JIRA_EPIC_LINK_FIELD"},
		"jira.epic_key":         {"JIRA_EPIC_KEY"},
		"jira.workstream_field": {"JIRA_WORKSTREAM_FIELD"},
		"jira.workstream":       {"JIRA_WORKSTREAM"},
		"http.timeout":          {"HTTP_TIMEOUT"},
		"run.mode":              {"RUN_MODE", "MODE"},
		"run.verbose":           {"RUN_VERBOSE", "VERBOSE"},
		"run.local_config_path": {"RUN_LOCAL_CONFIG_PATH", "LOCAL_CONFIG_PATH"},
		"run.templates_path":    {"RUN_TEMPLATES_PATH", "TEMPLATES_PATH"},
		"run.max_new_tickets":   {"RUN_MAX_NEW_TICKETS", "MAX_NEW_TICKETS"},
		"run.pr_delay":          {"RUN_PR_DELAY"},
		"run.output_dir":        {"RUN_OUTPUT_DIR"},
		"run.export_report":     {"RUN_EXPORT_REPORT"},
		"run.trace":             {"RUN_TRACE"},
	}
	for key, names := range binds {
		args := append([]string{key}, names...)
		_ = v.BindEnv(args...)
	}
}

// Validate ensures the credentials required to run at all are present.
func (a *App) Validate() error {
	if a.GitHub.Token == "" {
		return fmt.Errorf("GITHUB_TOKEN is required")
	}
	if a.Jira.BaseURL == "" {
		return fmt.Errorf("JIRA_BASE_URL is required")
	}
	if a.Jira.PAT == "" && (a.Jira.UserEmail == "" || a.Jira.APIToken == "") {
		return fmt.Errorf("jira credentials missing: set JIRA_PAT or JIRA_USER_EMAIL/JIRA_API_TOKEN")
	}
	if a.Run.Mode != RUN_MODE_DRY_RUN && a.Run.Mode != RUN_MODE_APPLY {
		return fmt.Errorf("run mode must be %q or %q, got: %s", RUN_MODE_DRY_RUN, RUN_MODE_APPLY, a.Run.Mode)
	}
	return nil
}

// Mutating reports whether the run is allowed to perform side effects.
func (a *App) Mutating() bool {
	return a.Run.Mode == RUN_MODE_APPLY
}

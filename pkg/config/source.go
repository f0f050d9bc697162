package config

import (
	"context"
	"fmt"
	"os"

	"github.com/ccd-ops/renovate-jira/pkg/models"
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "config")

// RepoFileFetcher reads a file from a repository on the source host.
type RepoFileFetcher interface {
	FetchRepoFile(ctx context.Context, repo, path string) ([]byte, error)
}

// Source loads per-repository configuration with defaults merged under any
// override.
type Source interface {
	// LoadRepositoryConfig returns the effective configuration for a
	// repository. On failure the returned config is the built-in defaults
	// and the error wraps models.ErrConfig; the caller logs and continues.
	LoadRepositoryConfig(ctx context.Context, repo string) (RepositoryConfig, error)
}

// Loader fetches .github/renovate-jira.yml through the source host, with an
// optional local file override that wins for every repository.
type Loader struct {
	fetcher   RepoFileFetcher
	localPath string
	defaults  RepositoryConfig
}

// Ensure Loader implements Source
var _ Source = (*Loader)(nil)

// NewLoader creates a repository-config loader.
func NewLoader(fetcher RepoFileFetcher, localPath string, defaults RepositoryConfig) *Loader {
	return &Loader{
		fetcher:   fetcher,
		localPath: localPath,
		defaults:  defaults,
	}
}

// LoadRepositoryConfig implements Source.
func (l *Loader) LoadRepositoryConfig(ctx context.Context, repo string) (RepositoryConfig, error) {
	if l.localPath != "" {
		data, err := os.ReadFile(l.localPath)
		if err != nil {
			return l.defaults, fmt.Errorf("%w: read local config %s: %v", models.ErrConfig, l.localPath, err)
		}
		merged, err := MergeRepositoryConfig(l.defaults, data)
		if err != nil {
			return l.defaults, fmt.Errorf("%w: parse local config %s: %v", models.ErrConfig, l.localPath, err)
		}
		logger.WithField("repo", repo).WithField("path", l.localPath).Debug("Loaded local repository config")
		return merged, nil
	}

	data, err := l.fetcher.FetchRepoFile(ctx, repo, REPO_CONFIG_PATH)
	if err != nil {
		// Missing file is the common case: the repository simply runs on
		// defaults.
		return l.defaults, fmt.Errorf("%w: fetch %s from %s: %v", models.ErrConfig, REPO_CONFIG_PATH, repo, err)
	}

	merged, err := MergeRepositoryConfig(l.defaults, data)
	if err != nil {
		return l.defaults, fmt.Errorf("%w: parse %s from %s: %v", models.ErrConfig, REPO_CONFIG_PATH, repo, err)
	}
	logger.WithField("repo", repo).Debug("Loaded repository config override")
	return merged, nil
}

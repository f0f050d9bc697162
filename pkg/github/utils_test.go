package github

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseOwnerRepo(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{name: "owner and repo", input: "acme/api", wantOwner: "acme", wantRepo: "api"},
		{name: "extra segments ignored", input: "acme/api/sub", wantOwner: "acme", wantRepo: "api"},
		{name: "missing slash", input: "acme", wantErr: true},
		{name: "empty owner", input: "/api", wantErr: true},
		{name: "empty repo", input: "acme/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, err := ParseOwnerRepo(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantOwner, owner)
			require.Equal(t, tt.wantRepo, repo)
		})
	}
}

func TestSplitRepoList(t *testing.T) {
	require.Equal(t, []string{"acme/api", "acme/web"}, SplitRepoList("acme/api, acme/web"))
	require.Equal(t, []string{"acme/api"}, SplitRepoList(",acme/api,,"))
	require.Nil(t, SplitRepoList(" , "))
}

func TestReadRepoListFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repos.txt")
	content := "# managed repos\nacme/api\n\n  acme/web  \n# comment\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	repos, err := ReadRepoListFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{"acme/api", "acme/web"}, repos)

	_, err = ReadRepoListFile(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

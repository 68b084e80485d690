package gitsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// initRepo creates a local repository with one committed registry file.
func initRepo(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	commitFile(t, repo, dir, content)
	return dir
}

func commitFile(t *testing.T, repo *git.Repository, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "alice"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alice", "solved.md"), []byte(content), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("alice/solved.md")
	require.NoError(t, err)
	_, err = wt.Commit("update", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
}

func TestSyncClonesThenPulls(t *testing.T) {
	ctx := context.Background()
	origin := initRepo(t, "ID: two-sum\n")
	local := filepath.Join(t.TempDir(), "clone")

	require.NoError(t, Sync(ctx, origin, local, nil))
	got, err := os.ReadFile(filepath.Join(local, "alice", "solved.md"))
	require.NoError(t, err)
	require.Equal(t, "ID: two-sum\n", string(got))

	repo, err := git.PlainOpen(origin)
	require.NoError(t, err)
	commitFile(t, repo, origin, "ID: three-sum\n")

	require.NoError(t, Sync(ctx, origin, local, nil))
	got, err = os.ReadFile(filepath.Join(local, "alice", "solved.md"))
	require.NoError(t, err)
	require.Equal(t, "ID: three-sum\n", string(got))

	// Nothing new upstream is not an error.
	require.NoError(t, Sync(ctx, origin, local, nil))
}

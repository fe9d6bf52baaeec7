package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localcoder/agentkernel/internal/tools"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	filePath := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("line one\nline two\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("a.txt")
	require.NoError(t, err)

	_, err = wt.Commit("initial commit", &gogit.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	return dir
}

func execCtx(root string) tools.ExecutionContext {
	return tools.ExecutionContext{ProjectRoot: root, WorkingDirectory: root}
}

func TestTool_Log(t *testing.T) {
	dir := initRepo(t)
	tool := New()

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"operation": "log",
	}, execCtx(dir))
	require.NoError(t, err)
	require.True(t, result.Success)

	entries := result.Data.([]LogEntry)
	require.Len(t, entries, 1)
	assert.Equal(t, "initial commit", entries[0].Message)
}

func TestTool_Status_DetectsModifiedFile(t *testing.T) {
	dir := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("changed\n"), 0o644))

	tool := New()
	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"operation": "status",
	}, execCtx(dir))
	require.NoError(t, err)

	entries := result.Data.([]FileStatus)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.txt", entries[0].Path)
}

func TestTool_Blame(t *testing.T) {
	dir := initRepo(t)
	tool := New()

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"operation": "blame", "path": "a.txt",
	}, execCtx(dir))
	require.NoError(t, err)

	lines := result.Data.([]BlameLine)
	require.Len(t, lines, 2)
	assert.Equal(t, "tester", lines[0].Author)
}

func TestTool_RejectsNonGitDirectory(t *testing.T) {
	dir := t.TempDir()
	tool := New()

	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"operation": "status",
	}, execCtx(dir))
	assert.Error(t, err)
}

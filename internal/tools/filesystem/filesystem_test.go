package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/localcoder/agentkernel/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execCtx(root string) tools.ExecutionContext {
	return tools.ExecutionContext{ProjectRoot: root, WorkingDirectory: root}
}

func TestTool_WriteThenRead(t *testing.T) {
	dir := t.TempDir()
	tool := New()

	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"operation": "write", "path": "a.txt", "content": "hello",
	}, execCtx(dir))
	require.NoError(t, err)

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"operation": "read", "path": "a.txt",
	}, execCtx(dir))
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Data)
}

func TestTool_RejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	tool := New()

	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"operation": "read", "path": "../../etc/passwd",
	}, execCtx(dir))
	assert.Error(t, err)
}

func TestTool_RejectsAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	tool := New()

	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"operation": "read", "path": "/etc/passwd",
	}, execCtx(dir))
	assert.Error(t, err)
}

func TestTool_WriteIsAtomic(t *testing.T) {
	dir := t.TempDir()
	tool := New()
	path := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"operation": "write", "path": "b.txt", "content": "updated",
	}, execCtx(dir))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "updated", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no leftover temp file after atomic rename")
}

func TestTool_Exists(t *testing.T) {
	dir := t.TempDir()
	tool := New()

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"operation": "exists", "path": "missing.txt",
	}, execCtx(dir))
	require.NoError(t, err)
	assert.Equal(t, false, result.Data)
}

func TestTool_ListDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	tool := New()
	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"operation": "list", "path": ".",
	}, execCtx(dir))
	require.NoError(t, err)
	names := result.Data.([]string)
	assert.Contains(t, names, "x.txt")
	assert.Contains(t, names, "sub/")
}

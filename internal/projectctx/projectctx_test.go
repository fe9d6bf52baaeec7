package projectctx

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndexesFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# hi\n"), 0o644))

	idx, err := New(dir)
	require.NoError(t, err)

	files := idx.Files()
	require.Len(t, files, 2)
	assert.Equal(t, "Go", idx.PrimaryLanguage())
}

func TestNew_RespectsGitIgnore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("ignored.txt\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "visible.txt"), []byte("x"), 0o644))

	idx, err := New(dir)
	require.NoError(t, err)

	files := idx.Files()
	for _, f := range files {
		assert.NotEqual(t, "ignored.txt", f.RelativePath)
	}
}

func TestNew_SkipsExcludedDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "pkg", "a.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))

	idx, err := New(dir)
	require.NoError(t, err)

	files := idx.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "main.go", files[0].RelativePath)
}

func TestGetRelevantContext_BoundsByTokenBudget(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		content := make([]byte, 1000)
		require.NoError(t, os.WriteFile(filepath.Join(dir, string(rune('a'+i))+".go"), content, 0o644))
	}

	idx, err := New(dir)
	require.NoError(t, err)

	relevant := idx.GetRelevantContext("", 100)
	assert.LessOrEqual(t, len(relevant), 5)
	assert.NotEmpty(t, relevant)
}

func TestWatch_InvalidatesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))

	idx, err := New(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, idx.Watch(ctx))

	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc main() {}\n"), 0o644))

	require.Eventually(t, func() bool {
		for _, f := range idx.Files() {
			if f.RelativePath == "a.go" && f.Size > 20 {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
}

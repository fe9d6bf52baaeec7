package editor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCreateEdit_DoesNotTouchDisk(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "main.go", "package main\n")

	ed := New(filepath.Join(dir, "backups"))
	_, res := ed.CreateEdit(path, "package main\n\nfunc main() {}\n", "add main func", LevelSyntax)
	require.True(t, res.Success)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "package main\n", string(raw), "pending edit must not mutate disk")
}

func TestApplyEdit_WritesBackupBeforeMutating(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "backups")
	path := writeFile(t, dir, "note.md", "# original\n")

	ed := New(backupDir)
	edit, res := ed.CreateEdit(path, "# updated\n", "update heading", LevelSyntax)
	require.True(t, res.Success)

	applyRes := ed.ApplyEdit(edit.ID)
	require.True(t, applyRes.Success)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# updated\n", string(content))

	backup, err := os.ReadFile(edit.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, "# original\n", string(backup), "backup must hold the pre-edit content")
}

func TestApplyEdits_RollsBackOnFailure(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "backups")
	pathA := writeFile(t, dir, "a.json", `{"ok":true}`)
	pathB := writeFile(t, dir, "b.json", `{"ok":true}`)

	ed := New(backupDir)
	editA, resA := ed.CreateEdit(pathA, `{"ok":false}`, "flip a", LevelSyntax)
	require.True(t, resA.Success)

	// Deliberately invalid JSON so SYNTAX validation fails for b.json.
	editB, resB := ed.CreateEdit(pathB, `{not valid json`, "break b", LevelSyntax)
	require.False(t, resB.Success)
	require.NotEmpty(t, resB.ValidationErrors)

	results := ed.ApplyEdits([]string{editA.ID, editB.ID})
	require.Len(t, results, 2)

	contentA, err := os.ReadFile(pathA)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(contentA), "a.json must be rolled back since the transaction as a whole failed")

	contentB, err := os.ReadFile(pathB)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(contentB), "b.json must remain untouched; its edit never applied")
}

func TestApplyEdits_AllSucceedWhenValid(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "backups")
	pathA := writeFile(t, dir, "a.txt", "a1")
	pathB := writeFile(t, dir, "b.txt", "b1")

	ed := New(backupDir)
	editA, _ := ed.CreateEdit(pathA, "a2", "", LevelSyntax)
	editB, _ := ed.CreateEdit(pathB, "b2", "", LevelSyntax)

	results := ed.ApplyEdits([]string{editA.ID, editB.ID})
	for _, r := range results {
		assert.True(t, r.Success)
	}

	contentA, _ := os.ReadFile(pathA)
	contentB, _ := os.ReadFile(pathB)
	assert.Equal(t, "a2", string(contentA))
	assert.Equal(t, "b2", string(contentB))
}

func TestRollbackEdit_RestoresOriginal(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "backups")
	path := writeFile(t, dir, "f.txt", "before")

	ed := New(backupDir)
	edit, _ := ed.CreateEdit(path, "after", "", LevelSyntax)
	require.True(t, ed.ApplyEdit(edit.ID).Success)

	require.NoError(t, ed.RollbackEdit(edit.ID))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "before", string(content))
}

func TestCancelEdit_RemovesPendingWithoutDiskWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "f.txt", "unchanged")

	ed := New(filepath.Join(dir, "backups"))
	edit, _ := ed.CreateEdit(path, "changed", "", LevelSyntax)

	require.NoError(t, ed.CancelEdit(edit.ID))
	assert.Error(t, ed.CancelEdit(edit.ID), "cancelling twice should fail")

	res := ed.ApplyEdit(edit.ID)
	assert.False(t, res.Success, "applying a cancelled edit should fail")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "unchanged", string(content))
}

func TestCreateEdit_RejectsUnbalancedBraces(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.js", "function f() { return 1; }\n")

	ed := New(filepath.Join(dir, "backups"))
	_, res := ed.CreateEdit(path, "function f() { return 1; \n", "break it", LevelSyntax)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.ValidationErrors)
}

func TestCreateEdit_RejectsMarkdownHeadingLevelSkip(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doc.md", "# Title\n\nbody\n")

	ed := New(filepath.Join(dir, "backups"))
	_, res := ed.CreateEdit(path, "# Title\n\n### Subsection\n", "skip a level", LevelSyntax)
	assert.False(t, res.Success)
	assert.Contains(t, res.ValidationErrors[0], "skips from h1 to h3")
}

func TestCreateEdit_SemanticFlagsDroppedImport(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.py", "import os\nimport sys\n\nprint('hi')\n")

	ed := New(filepath.Join(dir, "backups"))
	_, res := ed.CreateEdit(path, "print('hi')\n", "strip imports", LevelSemantic)
	assert.False(t, res.Success)
	assert.Contains(t, res.ValidationErrors[0], "import removed")
}

func TestCleanupBackups_ZeroMaxAgeRemovesEveryBackup(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "backups")
	path := writeFile(t, dir, "f.txt", "v1")

	ed := New(backupDir)
	edit, _ := ed.CreateEdit(path, "v2", "", LevelSyntax)
	require.True(t, ed.ApplyEdit(edit.ID).Success)

	require.NoError(t, ed.CleanupBackups(0))

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "a zero maxAge should clean up every backup immediately")
}

package testing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/localcoder/agentkernel/internal/config"
	"github.com/localcoder/agentkernel/internal/tools"
	"github.com/localcoder/agentkernel/internal/tools/execute"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execCtx(root string) tools.ExecutionContext {
	return tools.ExecutionContext{ProjectRoot: root, WorkingDirectory: root}
}

func TestDetectCommand_GoModule(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example\n"), 0o644))

	cmd, err := DetectCommand(dir)
	require.NoError(t, err)
	assert.Equal(t, "go test ./...", cmd)
}

func TestDetectCommand_NoMarkerFound(t *testing.T) {
	dir := t.TempDir()

	_, err := DetectCommand(dir)
	assert.Error(t, err)
}

func TestTool_RunsCommandOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte("{}"), 0o644))

	exec := execute.New(config.DefaultDenylist, dir, 5*time.Second)
	tool := New(exec)

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"command": "echo ran-tests",
	}, execCtx(dir))
	require.NoError(t, err)
	require.True(t, result.Success)

	payload := result.Data.(execute.Result)
	assert.Contains(t, payload.Stdout, "ran-tests")
}

func TestTool_FailsWithoutMarkerOrOverride(t *testing.T) {
	dir := t.TempDir()
	exec := execute.New(config.DefaultDenylist, dir, 5*time.Second)
	tool := New(exec)

	_, err := tool.Execute(context.Background(), map[string]interface{}{}, execCtx(dir))
	assert.Error(t, err)
}

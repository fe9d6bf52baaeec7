// Package testing implements the C11 test-runner tool: detects a
// project's test command from marker files in its root and runs it
// through the execute tool, returning the same {exitCode, stdout,
// stderr} shape. It adds no process-spawning logic of its own.
package testing

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/localcoder/agentkernel/internal/apperrors"
	"github.com/localcoder/agentkernel/internal/tools"
)

// marker maps a file found at the project root to the command that
// project's toolchain normally uses to run its test suite.
type marker struct {
	file    string
	command string
}

var markers = []marker{
	{file: "go.mod", command: "go test ./..."},
	{file: "package.json", command: "npm test"},
	{file: "Cargo.toml", command: "cargo test"},
	{file: "pyproject.toml", command: "pytest"},
	{file: "requirements.txt", command: "pytest"},
	{file: "pom.xml", command: "mvn test"},
	{file: "build.gradle", command: "gradle test"},
}

// runner is the subset of the execute tool this package depends on.
type runner interface {
	Execute(ctx context.Context, params map[string]interface{}, execCtx tools.ExecutionContext) (tools.ToolResult, error)
}

// Tool is the test-runner tool.
type Tool struct {
	executor runner
}

// New creates a test-runner tool that delegates process spawning to the
// given execute tool instance.
func New(executor runner) *Tool {
	return &Tool{executor: executor}
}

func (t *Tool) Info() tools.ToolInfo {
	return tools.ToolInfo{
		Name:        "test_runner",
		Category:    "testing",
		Version:     "1.0.0",
		Description: "Detect and run the project's test suite.",
		Parameters: []tools.ToolParameter{
			{Name: "command", Type: "string", Required: false, Description: "override the auto-detected test command"},
			{Name: "timeout", Type: "number", Required: false, Description: "seconds before the test run is terminated"},
		},
	}
}

func (t *Tool) Execute(ctx context.Context, params map[string]interface{}, execCtx tools.ExecutionContext) (tools.ToolResult, error) {
	start := time.Now()

	command, _ := params["command"].(string)
	if command == "" {
		detected, err := DetectCommand(execCtx.ProjectRoot)
		if err != nil {
			wrapped := apperrors.Validation("test_runner", "Execute", "could not detect a test command for this project", err)
			return errResult(wrapped, start), wrapped
		}
		command = detected
	}

	execParams := map[string]interface{}{"command": command}
	if timeout, ok := params["timeout"]; ok {
		execParams["timeout"] = timeout
	}

	return t.executor.Execute(ctx, execParams, execCtx)
}

// DetectCommand inspects projectRoot for known build-tool marker files
// and returns the conventional test command for the first one found.
func DetectCommand(projectRoot string) (string, error) {
	for _, m := range markers {
		if _, err := os.Stat(filepath.Join(projectRoot, m.file)); err == nil {
			return m.command, nil
		}
	}
	return "", apperrors.Validation("test_runner", "DetectCommand", "no recognized project marker file found", nil)
}

func errResult(err error, start time.Time) tools.ToolResult {
	return tools.ToolResult{Success: false, Error: err.Error(), Metadata: tools.ToolResultMetadata{ExecutionTime: time.Since(start)}}
}

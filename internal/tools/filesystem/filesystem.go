// Package filesystem implements the C11 filesystem tool: read, write,
// list, create, delete, exists, and a simple recursive search — all
// paths resolved under ExecutionContext.ProjectRoot, grounded on the
// teacher's FileWriterTool path-safety checks and atomic-write idiom.
package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/localcoder/agentkernel/internal/apperrors"
	"github.com/localcoder/agentkernel/internal/tools"
)

// Tool is the filesystem tool.
type Tool struct{}

// New creates the filesystem tool.
func New() *Tool { return &Tool{} }

func (t *Tool) Info() tools.ToolInfo {
	return tools.ToolInfo{
		Name:        "filesystem",
		Category:    "filesystem",
		Version:     "1.0.0",
		Description: "Read, write, list, create, delete, and search files and directories within the project.",
		Parameters: []tools.ToolParameter{
			{Name: "operation", Type: "string", Required: true, Description: "one of read|write|list|create|delete|exists|search"},
			{Name: "path", Type: "string", Required: true, Description: "path relative to the working directory"},
			{Name: "content", Type: "string", Required: false, Description: "content for write/create"},
			{Name: "isDir", Type: "boolean", Required: false, Default: false, Description: "for create: make a directory instead of a file"},
			{Name: "query", Type: "string", Required: false, Description: "substring to search for within the file/dir tree (operation=search)"},
		},
	}
}

// resolvePath applies the path-safety invariant from spec §3: the
// resolved absolute path must lie inside ExecutionContext.ProjectRoot.
func resolvePath(execCtx tools.ExecutionContext, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", apperrors.Safety("filesystem", "resolvePath", "absolute paths are not allowed", nil)
	}
	if strings.Contains(filepath.Clean(rel), "..") {
		return "", apperrors.Safety("filesystem", "resolvePath", "path traversal is not allowed", nil)
	}

	base := execCtx.WorkingDirectory
	if base == "" {
		base = execCtx.ProjectRoot
	}

	full := filepath.Join(base, rel)
	absFull, err := filepath.Abs(full)
	if err != nil {
		return "", apperrors.Validation("filesystem", "resolvePath", "invalid path", err)
	}
	absRoot, err := filepath.Abs(execCtx.ProjectRoot)
	if err != nil {
		return "", apperrors.Validation("filesystem", "resolvePath", "invalid project root", err)
	}
	if absFull != absRoot && !strings.HasPrefix(absFull, absRoot+string(os.PathSeparator)) {
		return "", apperrors.Safety("filesystem", "resolvePath", "path escapes project root", nil)
	}
	return absFull, nil
}

func (t *Tool) Execute(ctx context.Context, params map[string]interface{}, execCtx tools.ExecutionContext) (tools.ToolResult, error) {
	start := time.Now()

	op, _ := params["operation"].(string)
	relPath, _ := params["path"].(string)

	fullPath, err := resolvePath(execCtx, relPath)
	if err != nil {
		return errResult(err, start), err
	}

	switch op {
	case "read":
		return t.read(fullPath, start)
	case "write":
		content, _ := params["content"].(string)
		return t.write(fullPath, content, start)
	case "list":
		return t.list(fullPath, start)
	case "create":
		isDir, _ := params["isDir"].(bool)
		content, _ := params["content"].(string)
		return t.create(fullPath, isDir, content, start)
	case "delete":
		return t.delete(fullPath, start)
	case "exists":
		return t.exists(fullPath, start)
	case "search":
		query, _ := params["query"].(string)
		return t.search(fullPath, query, start)
	default:
		err := apperrors.Validation("filesystem", "Execute", fmt.Sprintf("unknown operation %q", op), nil)
		return errResult(err, start), err
	}
}

func (t *Tool) read(fullPath string, start time.Time) (tools.ToolResult, error) {
	data, err := os.ReadFile(fullPath)
	if err != nil {
		wrapped := apperrors.IO("filesystem", "read", "failed to read file", err)
		return errResult(wrapped, start), wrapped
	}
	if !utf8.Valid(data) {
		wrapped := apperrors.Validation("filesystem", "read", "file is not valid UTF-8 (binary?)", nil)
		return errResult(wrapped, start), wrapped
	}
	return tools.ToolResult{
		Success:  true,
		Data:     string(data),
		Metadata: tools.ToolResultMetadata{ExecutionTime: time.Since(start), ResourcesUsed: tools.ResourcesUsed{BytesRead: int64(len(data))}},
	}, nil
}

// write is atomic: write to a temp file in the same directory, then
// rename over the destination (spec §4.3 "writes are atomic").
func (t *Tool) write(fullPath, content string, start time.Time) (tools.ToolResult, error) {
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		wrapped := apperrors.IO("filesystem", "write", "failed to create directory", err)
		return errResult(wrapped, start), wrapped
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		wrapped := apperrors.IO("filesystem", "write", "failed to create temp file", err)
		return errResult(wrapped, start), wrapped
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		wrapped := apperrors.IO("filesystem", "write", "failed to write temp file", err)
		return errResult(wrapped, start), wrapped
	}
	if err := tmp.Close(); err != nil {
		wrapped := apperrors.IO("filesystem", "write", "failed to close temp file", err)
		return errResult(wrapped, start), wrapped
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		wrapped := apperrors.IO("filesystem", "write", "failed to rename temp file into place", err)
		return errResult(wrapped, start), wrapped
	}

	return tools.ToolResult{
		Success:  true,
		Data:     map[string]interface{}{"path": fullPath, "bytesWritten": len(content)},
		Metadata: tools.ToolResultMetadata{ExecutionTime: time.Since(start), ResourcesUsed: tools.ResourcesUsed{BytesWritten: int64(len(content))}},
	}, nil
}

func (t *Tool) list(fullPath string, start time.Time) (tools.ToolResult, error) {
	entries, err := os.ReadDir(fullPath)
	if err != nil {
		wrapped := apperrors.IO("filesystem", "list", "failed to list directory", err)
		return errResult(wrapped, start), wrapped
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return tools.ToolResult{
		Success:  true,
		Data:     names,
		Metadata: tools.ToolResultMetadata{ExecutionTime: time.Since(start)},
	}, nil
}

func (t *Tool) create(fullPath string, isDir bool, content string, start time.Time) (tools.ToolResult, error) {
	if isDir {
		if err := os.MkdirAll(fullPath, 0o755); err != nil {
			wrapped := apperrors.IO("filesystem", "create", "failed to create directory", err)
			return errResult(wrapped, start), wrapped
		}
		return tools.ToolResult{Success: true, Data: map[string]interface{}{"path": fullPath, "isDir": true}, Metadata: tools.ToolResultMetadata{ExecutionTime: time.Since(start)}}, nil
	}
	if _, err := os.Stat(fullPath); err == nil {
		wrapped := apperrors.Validation("filesystem", "create", "file already exists", nil)
		return errResult(wrapped, start), wrapped
	}
	return t.write(fullPath, content, start)
}

func (t *Tool) delete(fullPath string, start time.Time) (tools.ToolResult, error) {
	if err := os.RemoveAll(fullPath); err != nil {
		wrapped := apperrors.IO("filesystem", "delete", "failed to delete path", err)
		return errResult(wrapped, start), wrapped
	}
	return tools.ToolResult{Success: true, Metadata: tools.ToolResultMetadata{ExecutionTime: time.Since(start)}}, nil
}

func (t *Tool) exists(fullPath string, start time.Time) (tools.ToolResult, error) {
	_, err := os.Stat(fullPath)
	exists := err == nil
	return tools.ToolResult{
		Success:  true,
		Data:     exists,
		Metadata: tools.ToolResultMetadata{ExecutionTime: time.Since(start)},
	}, nil
}

// search walks fullPath recursively and returns absolute paths of files
// whose name or content contains query. Binary files are silently
// skipped, matching the search tool's own skip policy.
func (t *Tool) search(fullPath, query string, start time.Time) (tools.ToolResult, error) {
	var matches []string
	err := filepath.Walk(fullPath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if strings.Contains(info.Name(), query) {
			matches = append(matches, p)
			return nil
		}
		data, readErr := os.ReadFile(p)
		if readErr != nil || !utf8.Valid(data) {
			return nil
		}
		if strings.Contains(string(data), query) {
			matches = append(matches, p)
		}
		return nil
	})
	if err != nil {
		wrapped := apperrors.IO("filesystem", "search", "walk failed", err)
		return errResult(wrapped, start), wrapped
	}
	return tools.ToolResult{
		Success:  true,
		Data:     matches,
		Metadata: tools.ToolResultMetadata{ExecutionTime: time.Since(start)},
	}, nil
}

func errResult(err error, start time.Time) tools.ToolResult {
	return tools.ToolResult{
		Success:  false,
		Error:    err.Error(),
		Metadata: tools.ToolResultMetadata{ExecutionTime: time.Since(start)},
	}
}

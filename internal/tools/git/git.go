// Package git implements the C11 read-only git inspection tool: status,
// diff, log, and blame over the project's working tree. Grounded on the
// filesystem/search tool's path-safety and result shape, using
// go-git/go-git for repository access (no hector analogue; go-git is the
// git library the retrieved coding-agent CLIs depend on).
package git

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/localcoder/agentkernel/internal/apperrors"
	"github.com/localcoder/agentkernel/internal/tools"
)

// FileStatus is one entry in a status report.
type FileStatus struct {
	Path     string `json:"path"`
	Staging  string `json:"staging"`
	Worktree string `json:"worktree"`
}

// LogEntry is one commit in a log report.
type LogEntry struct {
	Hash    string    `json:"hash"`
	Author  string    `json:"author"`
	When    time.Time `json:"when"`
	Message string    `json:"message"`
}

// BlameLine is one line of a blame report.
type BlameLine struct {
	Line   int    `json:"line"`
	Hash   string `json:"hash"`
	Author string `json:"author"`
	Text   string `json:"text"`
}

// Tool is the git inspection tool. It never mutates the repository.
type Tool struct{}

// New creates the git inspection tool.
func New() *Tool { return &Tool{} }

func (t *Tool) Info() tools.ToolInfo {
	return tools.ToolInfo{
		Name:        "git",
		Category:    "git",
		Version:     "1.0.0",
		Description: "Read-only git inspection: status, diff, log, and blame over the project's working tree.",
		Parameters: []tools.ToolParameter{
			{Name: "operation", Type: "string", Required: true, Description: "one of status|diff|log|blame"},
			{Name: "path", Type: "string", Required: false, Description: "file path relative to the project root (required for diff/blame)"},
			{Name: "maxEntries", Type: "number", Required: false, Default: 20, Description: "max commits to return for log"},
		},
	}
}

func (t *Tool) Execute(ctx context.Context, params map[string]interface{}, execCtx tools.ExecutionContext) (tools.ToolResult, error) {
	start := time.Now()

	repo, err := git.PlainOpen(execCtx.ProjectRoot)
	if err != nil {
		wrapped := apperrors.Tool("git", "Execute", "not a git repository", err)
		return errResult(wrapped, start), wrapped
	}

	op, _ := params["operation"].(string)
	switch op {
	case "status":
		return t.status(repo, start)
	case "diff":
		path, _ := params["path"].(string)
		return t.diff(repo, path, start)
	case "log":
		maxEntries := intOr(params["maxEntries"], 20)
		return t.log(repo, maxEntries, start)
	case "blame":
		path, _ := params["path"].(string)
		return t.blame(repo, path, start)
	default:
		err := apperrors.Validation("git", "Execute", fmt.Sprintf("unknown operation %q", op), nil)
		return errResult(err, start), err
	}
}

func (t *Tool) status(repo *git.Repository, start time.Time) (tools.ToolResult, error) {
	wt, err := repo.Worktree()
	if err != nil {
		wrapped := apperrors.Tool("git", "status", "failed to open worktree", err)
		return errResult(wrapped, start), wrapped
	}
	st, err := wt.Status()
	if err != nil {
		wrapped := apperrors.Tool("git", "status", "failed to compute status", err)
		return errResult(wrapped, start), wrapped
	}

	entries := make([]FileStatus, 0, len(st))
	for path, fs := range st {
		entries = append(entries, FileStatus{
			Path:     path,
			Staging:  string(fs.Staging),
			Worktree: string(fs.Worktree),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	return tools.ToolResult{
		Success:  true,
		Data:     entries,
		Metadata: tools.ToolResultMetadata{ExecutionTime: time.Since(start)},
	}, nil
}

// diff reads path's blob at HEAD and its working-tree version and
// returns both contents side by side; it computes no line diff itself.
func (t *Tool) diff(repo *git.Repository, path string, start time.Time) (tools.ToolResult, error) {
	if path == "" {
		err := apperrors.Validation("git", "diff", "path is required", nil)
		return errResult(err, start), err
	}

	head, err := repo.Head()
	if err != nil {
		wrapped := apperrors.Tool("git", "diff", "failed to resolve HEAD", err)
		return errResult(wrapped, start), wrapped
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		wrapped := apperrors.Tool("git", "diff", "failed to load HEAD commit", err)
		return errResult(wrapped, start), wrapped
	}
	tree, err := commit.Tree()
	if err != nil {
		wrapped := apperrors.Tool("git", "diff", "failed to load commit tree", err)
		return errResult(wrapped, start), wrapped
	}

	file, err := tree.File(path)
	if err != nil {
		wrapped := apperrors.Tool("git", "diff", fmt.Sprintf("%s has no HEAD version", path), err)
		return errResult(wrapped, start), wrapped
	}
	headContent, err := file.Contents()
	if err != nil {
		wrapped := apperrors.IO("git", "diff", "failed to read HEAD blob", err)
		return errResult(wrapped, start), wrapped
	}

	wt, err := repo.Worktree()
	if err != nil {
		wrapped := apperrors.Tool("git", "diff", "failed to open worktree", err)
		return errResult(wrapped, start), wrapped
	}
	worktreeFile, err := wt.Filesystem.Open(path)
	if err != nil {
		wrapped := apperrors.IO("git", "diff", "failed to read working tree file", err)
		return errResult(wrapped, start), wrapped
	}
	defer worktreeFile.Close()

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, readErr := worktreeFile.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if readErr != nil {
			break
		}
	}

	return tools.ToolResult{
		Success: true,
		Data: map[string]interface{}{
			"path":           path,
			"headContent":    headContent,
			"workingContent": string(buf),
		},
		Metadata: tools.ToolResultMetadata{ExecutionTime: time.Since(start)},
	}, nil
}

func (t *Tool) log(repo *git.Repository, maxEntries int, start time.Time) (tools.ToolResult, error) {
	head, err := repo.Head()
	if err != nil {
		wrapped := apperrors.Tool("git", "log", "failed to resolve HEAD", err)
		return errResult(wrapped, start), wrapped
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		wrapped := apperrors.Tool("git", "log", "failed to walk commit history", err)
		return errResult(wrapped, start), wrapped
	}

	var entries []LogEntry
	err = iter.ForEach(func(c *object.Commit) error {
		if len(entries) >= maxEntries {
			return nil
		}
		entries = append(entries, LogEntry{
			Hash:    c.Hash.String(),
			Author:  c.Author.Name,
			When:    c.Author.When,
			Message: c.Message,
		})
		return nil
	})
	if err != nil {
		wrapped := apperrors.Tool("git", "log", "failed to iterate commits", err)
		return errResult(wrapped, start), wrapped
	}

	return tools.ToolResult{
		Success:  true,
		Data:     entries,
		Metadata: tools.ToolResultMetadata{ExecutionTime: time.Since(start)},
	}, nil
}

func (t *Tool) blame(repo *git.Repository, path string, start time.Time) (tools.ToolResult, error) {
	if path == "" {
		err := apperrors.Validation("git", "blame", "path is required", nil)
		return errResult(err, start), err
	}

	head, err := repo.Head()
	if err != nil {
		wrapped := apperrors.Tool("git", "blame", "failed to resolve HEAD", err)
		return errResult(wrapped, start), wrapped
	}

	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		wrapped := apperrors.Tool("git", "blame", "failed to load HEAD commit", err)
		return errResult(wrapped, start), wrapped
	}
	br, err := git.Blame(commit, path)
	if err != nil {
		wrapped := apperrors.Tool("git", "blame", fmt.Sprintf("failed to blame %s", path), err)
		return errResult(wrapped, start), wrapped
	}

	lines := make([]BlameLine, 0, len(br.Lines))
	for i, l := range br.Lines {
		lines = append(lines, BlameLine{
			Line:   i + 1,
			Hash:   l.Hash.String(),
			Author: l.AuthorName,
			Text:   l.Text,
		})
	}

	return tools.ToolResult{
		Success:  true,
		Data:     lines,
		Metadata: tools.ToolResultMetadata{ExecutionTime: time.Since(start)},
	}, nil
}

func errResult(err error, start time.Time) tools.ToolResult {
	return tools.ToolResult{Success: false, Error: err.Error(), Metadata: tools.ToolResultMetadata{ExecutionTime: time.Since(start)}}
}

func intOr(v interface{}, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return def
	}
}

// Package search implements the C11 search tool: combined filename and
// content search with context lines, gitignore awareness, and a bounded
// result count, grounded on the teacher's GrepSearchTool.
package search

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/yargevad/filepathx"

	"github.com/localcoder/agentkernel/internal/apperrors"
	"github.com/localcoder/agentkernel/internal/tools"
)

// Match is one search hit, matching spec §4.3's Match record.
type Match struct {
	File    string   `json:"file"`
	Line    int      `json:"line"`
	Column  int      `json:"column"`
	Content string   `json:"content"`
	Before  []string `json:"before"`
	After   []string `json:"after"`
}

// SearchType selects which facet of a file search matches against.
type SearchType string

const (
	TypeContent  SearchType = "content"
	TypeFilename SearchType = "filename"
	TypeBoth     SearchType = "both"
)

// Tool is the search tool.
type Tool struct {
	maxResults   int
	contextLines int
}

// New creates a search tool with the given defaults.
func New(maxResults, contextLines int) *Tool {
	if maxResults <= 0 {
		maxResults = 100
	}
	if contextLines < 0 {
		contextLines = 2
	}
	return &Tool{maxResults: maxResults, contextLines: contextLines}
}

func (t *Tool) Info() tools.ToolInfo {
	return tools.ToolInfo{
		Name:        "search",
		Category:    "search",
		Version:     "1.0.0",
		Description: "Search files by filename and/or content using a regex pattern, with context lines and gitignore awareness.",
		Parameters: []tools.ToolParameter{
			{Name: "query", Type: "string", Required: true, Description: "search text or regex pattern"},
			{Name: "path", Type: "string", Required: false, Default: ".", Description: "root path to search under"},
			{Name: "type", Type: "string", Required: false, Default: "content", Description: "content|filename|both"},
			{Name: "filePattern", Type: "string", Required: false, Description: "glob to filter candidate files, e.g. *.go"},
			{Name: "caseSensitive", Type: "boolean", Required: false, Default: false, Description: "match case exactly"},
			{Name: "useRegex", Type: "boolean", Required: false, Default: false, Description: "treat query as a regular expression instead of literal text"},
			{Name: "contextLines", Type: "number", Required: false, Default: 2, Description: "lines of context before and after each content match"},
			{Name: "maxResults", Type: "number", Required: false, Default: 100, Description: "cap on the number of matches returned"},
			{Name: "respectGitIgnore", Type: "boolean", Required: false, Default: true, Description: "skip files matched by the project's .gitignore"},
		},
	}
}

func (t *Tool) Execute(ctx context.Context, params map[string]interface{}, execCtx tools.ExecutionContext) (tools.ToolResult, error) {
	start := time.Now()

	query, _ := params["query"].(string)
	if query == "" {
		err := apperrors.Validation("search", "Execute", "query is required", nil)
		return errResult(err, start), err
	}

	searchType := SearchType(stringOr(params["type"], string(TypeContent)))
	path := stringOr(params["path"], ".")
	filePattern := stringOr(params["filePattern"], "")
	caseSensitive := boolOr(params["caseSensitive"], false)
	useRegex := boolOr(params["useRegex"], false)
	contextLines := intOr(params["contextLines"], t.contextLines)
	maxResults := intOr(params["maxResults"], t.maxResults)
	respectGitIgnore := boolOr(params["respectGitIgnore"], true)

	pattern := query
	if !useRegex {
		pattern = regexp.QuoteMeta(query)
	}
	if !caseSensitive {
		pattern = "(?i)" + pattern
	}
	regex, err := regexp.Compile(pattern)
	if err != nil {
		wrapped := apperrors.Validation("search", "Execute", "invalid pattern", err)
		return errResult(wrapped, start), wrapped
	}

	root := filepath.Join(execCtx.WorkingDirectory, path)

	var ignorer *gitignore.GitIgnore
	if respectGitIgnore {
		ignorer, _ = gitignore.CompileIgnoreFile(filepath.Join(execCtx.ProjectRoot, ".gitignore"))
	}

	var matches []Match
	visit := func(p string, info os.FileInfo) {
		if len(matches) >= maxResults || info.IsDir() {
			return
		}
		rel, _ := filepath.Rel(execCtx.ProjectRoot, p)
		if ignorer != nil && ignorer.MatchesPath(rel) {
			return
		}

		if searchType == TypeFilename || searchType == TypeBoth {
			if regex.MatchString(info.Name()) {
				matches = append(matches, Match{File: rel})
			}
		}
		if searchType == TypeContent || searchType == TypeBoth {
			fileMatches, skip := searchFileContent(p, rel, regex, contextLines)
			if !skip {
				matches = append(matches, fileMatches...)
			}
		}
	}

	// Patterns containing "**" need recursive expansion that
	// filepath.Match can't express; filepathx.Glob walks the tree once
	// and returns every matching path directly.
	if strings.Contains(filePattern, "**") {
		candidates, globErr := filepathx.Glob(filepath.Join(root, filePattern))
		if globErr != nil {
			wrapped := apperrors.IO("search", "Execute", "glob failed", globErr)
			return errResult(wrapped, start), wrapped
		}
		for _, p := range candidates {
			if len(matches) >= maxResults {
				break
			}
			info, statErr := os.Stat(p)
			if statErr != nil {
				continue
			}
			visit(p, info)
		}
	} else {
		err = filepath.Walk(root, func(p string, info os.FileInfo, walkErr error) error {
			if len(matches) >= maxResults {
				return filepath.SkipAll
			}
			if walkErr != nil {
				return nil
			}
			if info.IsDir() {
				return nil
			}
			if filePattern != "" {
				if ok, _ := filepath.Match(filePattern, info.Name()); !ok {
					return nil
				}
			}
			visit(p, info)
			return nil
		})
		if err != nil {
			wrapped := apperrors.IO("search", "Execute", "walk failed", err)
			return errResult(wrapped, start), wrapped
		}
	}

	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}

	return tools.ToolResult{
		Success:  true,
		Data:     matches,
		Metadata: tools.ToolResultMetadata{ExecutionTime: time.Since(start)},
	}, nil
}

// searchFileContent scans a single file line by line. Binary or
// unreadable files are skipped and logged at debug level, matching
// spec §4.3.
func searchFileContent(fullPath, relPath string, regex *regexp.Regexp, contextLines int) ([]Match, bool) {
	data, err := os.ReadFile(fullPath)
	if err != nil {
		slog.Debug("search: skipping unreadable file", "file", relPath, "error", err)
		return nil, true
	}
	if isBinary(data) {
		slog.Debug("search: skipping binary file", "file", relPath)
		return nil, true
	}

	lines := strings.Split(string(data), "\n")
	var matches []Match
	for i, line := range lines {
		loc := regex.FindStringIndex(line)
		if loc == nil {
			continue
		}
		matches = append(matches, Match{
			File:    relPath,
			Line:    i + 1,
			Column:  loc[0] + 1,
			Content: line,
			Before:  contextSlice(lines, i-contextLines, i),
			After:   contextSlice(lines, i+1, i+1+contextLines),
		})
	}
	return matches, false
}

func contextSlice(lines []string, from, to int) []string {
	if from < 0 {
		from = 0
	}
	if to > len(lines) {
		to = len(lines)
	}
	if from >= to {
		return nil
	}
	out := make([]string, to-from)
	copy(out, lines[from:to])
	return out
}

func isBinary(data []byte) bool {
	for _, b := range data {
		if b == 0 {
			return true
		}
	}
	return false
}

func errResult(err error, start time.Time) tools.ToolResult {
	return tools.ToolResult{Success: false, Error: err.Error(), Metadata: tools.ToolResultMetadata{ExecutionTime: time.Since(start)}}
}

func stringOr(v interface{}, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func boolOr(v interface{}, def bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return def
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

// Package codeanalysis implements the C11 heuristic analysis tool: a
// pluggable rule-table scan for complexity hotspots and common security
// anti-patterns, shaped like the search tool's ranked result list. Rule
// content is data, not code, so new checks are added to the table rather
// than by branching logic.
package codeanalysis

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/localcoder/agentkernel/internal/apperrors"
	"github.com/localcoder/agentkernel/internal/tools"
)

// Severity classifies a finding.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityHigh    Severity = "high"
)

// Finding is one reported issue.
type Finding struct {
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// rule is one entry of the pluggable table: a compiled regex paired with
// the metadata to report when it matches a line.
type rule struct {
	name     string
	pattern  *regexp.Regexp
	severity Severity
	message  string
}

// defaultRules is the built-in heuristic table. Content here is what
// varies across projects/languages; the scan logic below never changes
// to accommodate a new pattern.
var defaultRules = []rule{
	{
		name:     "hardcoded-secret",
		pattern:  regexp.MustCompile(`(?i)(api[_-]?key|secret|password|token)\s*[:=]{1,2}\s*["'][A-Za-z0-9+/=_-]{8,}["']`),
		severity: SeverityHigh,
		message:  "possible hardcoded credential",
	},
	{
		name:     "sql-string-concat",
		pattern:  regexp.MustCompile(`(?i)(select|insert|update|delete)\s+.*["']\s*\+`),
		severity: SeverityHigh,
		message:  "SQL built by string concatenation, review for injection",
	},
	{
		name:     "todo-marker",
		pattern:  regexp.MustCompile(`(?i)\b(TODO|FIXME|XXX)\b`),
		severity: SeverityInfo,
		message:  "unresolved marker",
	},
	{
		name:     "long-line",
		pattern:  regexp.MustCompile(`^.{200,}$`),
		severity: SeverityWarning,
		message:  "line exceeds 200 characters",
	},
}

// Tool is the heuristic analysis tool.
type Tool struct {
	rules []rule
}

// New creates an analysis tool with the default rule table. Callers may
// extend the table via WithRules for project-specific checks.
func New() *Tool {
	return &Tool{rules: defaultRules}
}

// WithRules returns a copy of the tool using an additional set of rules
// alongside the defaults.
func (t *Tool) WithRules(extra []rule) *Tool {
	combined := make([]rule, 0, len(t.rules)+len(extra))
	combined = append(combined, t.rules...)
	combined = append(combined, extra...)
	return &Tool{rules: combined}
}

func (t *Tool) Info() tools.ToolInfo {
	return tools.ToolInfo{
		Name:        "codeanalysis",
		Category:    "analysis",
		Version:     "1.0.0",
		Description: "Scan files for complexity hotspots and common security anti-patterns using a pluggable heuristic rule table.",
		Parameters: []tools.ToolParameter{
			{Name: "path", Type: "string", Required: true, Description: "file or directory relative to the working directory"},
			{Name: "maxFindings", Type: "number", Required: false, Default: 200, Description: "cap on the number of findings returned"},
		},
	}
}

func (t *Tool) Execute(ctx context.Context, params map[string]interface{}, execCtx tools.ExecutionContext) (tools.ToolResult, error) {
	start := time.Now()

	relPath, _ := params["path"].(string)
	if relPath == "" {
		err := apperrors.Validation("codeanalysis", "Execute", "path is required", nil)
		return errResult(err, start), err
	}
	maxFindings := intOr(params["maxFindings"], 200)

	root := filepath.Join(execCtx.WorkingDirectory, relPath)
	if _, err := os.Stat(root); err != nil {
		wrapped := apperrors.IO("codeanalysis", "Execute", "path not found", err)
		return errResult(wrapped, start), wrapped
	}

	var findings []Finding
	walkErr := filepath.Walk(root, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if fi.IsDir() {
			return nil
		}
		if len(findings) >= maxFindings {
			return filepath.SkipAll
		}
		rel, _ := filepath.Rel(execCtx.WorkingDirectory, p)
		fileFindings, skip := t.scanFile(p, rel)
		if !skip {
			findings = append(findings, fileFindings...)
		}
		return nil
	})
	if walkErr != nil {
		wrapped := apperrors.IO("codeanalysis", "Execute", "walk failed", walkErr)
		return errResult(wrapped, start), wrapped
	}

	if len(findings) > maxFindings {
		findings = findings[:maxFindings]
	}

	return tools.ToolResult{
		Success:  true,
		Data:     findings,
		Metadata: tools.ToolResultMetadata{ExecutionTime: time.Since(start)},
	}, nil
}

// scanFile applies every rule to every line of one file. Binary files
// are silently skipped, matching the search tool's own policy.
func (t *Tool) scanFile(fullPath, relPath string) ([]Finding, bool) {
	f, err := os.Open(fullPath)
	if err != nil {
		return nil, true
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var findings []Finding
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		for i := 0; i < len(line); i++ {
			if line[i] == 0 {
				return nil, true
			}
		}
		for _, r := range t.rules {
			if r.pattern.MatchString(line) {
				findings = append(findings, Finding{
					File:     relPath,
					Line:     lineNo,
					Rule:     r.name,
					Severity: r.severity,
					Message:  r.message,
				})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, true
	}
	return findings, false
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

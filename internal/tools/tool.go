// Package tools defines the base Tool contract (C4) shared by every
// concrete tool family and consumed by the orchestrator.
package tools

import (
	"context"
	"time"
)

// ToolParameter describes one named input a Tool accepts.
type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	// Validator, when non-nil, is run against a supplied value before
	// Execute is invoked; it returns a human-readable error or "".
	Validator func(value interface{}) string `json:"-"`
}

// ToolInfo is a Tool's identity and declared contract.
type ToolInfo struct {
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Examples    []string        `json:"examples,omitempty"`
}

// ResourcesUsed summarizes what a tool consumed while executing.
type ResourcesUsed struct {
	CPUTimeMs    int64 `json:"cpuTimeMs,omitempty"`
	BytesRead    int64 `json:"bytesRead,omitempty"`
	BytesWritten int64 `json:"bytesWritten,omitempty"`
}

// ToolResultMetadata is the fixed metadata envelope every ToolResult carries.
type ToolResultMetadata struct {
	ExecutionTime time.Duration `json:"executionTime"`
	ResourcesUsed ResourcesUsed `json:"resourcesUsed"`
	Warnings      []string      `json:"warnings,omitempty"`
}

// ToolResult is the outcome of a single tool invocation (spec §6.3).
type ToolResult struct {
	Success  bool               `json:"success"`
	Data     interface{}        `json:"data,omitempty"`
	Error    string             `json:"error,omitempty"`
	Metadata ToolResultMetadata `json:"metadata"`
}

// ExecutionContext is passed into every tool call. workingDirectory must
// resolve under projectRoot (path-traversal protection, spec §3).
type ExecutionContext struct {
	ProjectRoot      string
	WorkingDirectory string
	Environment      map[string]string
	Timeout          time.Duration
	Cancel           context.Context
}

// Tool is a named, validated, stateless operation invocable by the
// orchestrator. A Tool holds no mutable state of its own; any mutable
// state (pending edits, backups) belongs to the surrounding system.
type Tool interface {
	Info() ToolInfo
	Execute(ctx context.Context, params map[string]interface{}, execCtx ExecutionContext) (ToolResult, error)
}

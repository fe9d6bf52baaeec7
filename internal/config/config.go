// Package config loads the kernel's configuration from a YAML file with
// environment-variable overrides, using koanf as the teacher's own
// config stack does.
package config

import (
	"fmt"
	"time"
)

// RiskTolerance controls how aggressively the kernel auto-executes plans.
type RiskTolerance string

const (
	RiskConservative RiskTolerance = "conservative"
	RiskBalanced     RiskTolerance = "balanced"
	RiskAggressive   RiskTolerance = "aggressive"
)

// ExecutionPreferences shapes the kernel's auto-execute decision (spec §4.8).
type ExecutionPreferences struct {
	Parallelism   int           `koanf:"parallelism" yaml:"parallelism"`
	RiskTolerance RiskTolerance `koanf:"riskTolerance" yaml:"riskTolerance"`
	AutoExecute   bool          `koanf:"autoExecute" yaml:"autoExecute"`
}

// Config is the recognized option set from spec.md §6.4, plus the tool
// sub-configs the ambient stack needs to construct C11's tool instances.
type Config struct {
	Model                    string        `koanf:"model" yaml:"model"`
	BaseURL                  string        `koanf:"baseUrl" yaml:"baseUrl"`
	ContextWindow            int           `koanf:"contextWindow" yaml:"contextWindow"`
	Temperature              float64       `koanf:"temperature" yaml:"temperature"`
	EnableTaskPlanning       bool          `koanf:"enableTaskPlanning" yaml:"enableTaskPlanning"`
	EnableConversationHistory bool         `koanf:"enableConversationHistory" yaml:"enableConversationHistory"`
	EnableContextAwareness   bool          `koanf:"enableContextAwareness" yaml:"enableContextAwareness"`
	MaxConversationHistory   int           `koanf:"maxConversationHistory" yaml:"maxConversationHistory"`
	AutoSaveConversations    bool          `koanf:"autoSaveConversations" yaml:"autoSaveConversations"`

	ExecutionPreferences ExecutionPreferences `koanf:"executionPreferences" yaml:"executionPreferences"`

	LogLevel string `koanf:"logLevel" yaml:"logLevel"`
	DataDir  string `koanf:"dataDir" yaml:"dataDir"`

	MaxConcurrentTools int           `koanf:"maxConcurrentTools" yaml:"maxConcurrentTools"`
	ToolTimeout        time.Duration `koanf:"toolTimeout" yaml:"toolTimeout"`
	CacheTTL           time.Duration `koanf:"cacheTTL" yaml:"cacheTTL"`

	Execute    ExecuteToolConfig `koanf:"execute" yaml:"execute"`
	Filesystem FilesystemConfig  `koanf:"filesystem" yaml:"filesystem"`
	Search     SearchConfig      `koanf:"search" yaml:"search"`
	Editor     EditorConfig      `koanf:"editor" yaml:"editor"`
}

// ExecuteToolConfig configures the execution tool's denylist-first safety
// model (spec §4.3): a fixed denylist always applies unless the caller's
// allowlist explicitly names the command.
type ExecuteToolConfig struct {
	AllowedCommands  []string      `koanf:"allowedCommands" yaml:"allowedCommands"`
	DeniedCommands   []string      `koanf:"deniedCommands" yaml:"deniedCommands"`
	WorkingDirectory string        `koanf:"workingDirectory" yaml:"workingDirectory"`
	MaxExecutionTime time.Duration `koanf:"maxExecutionTime" yaml:"maxExecutionTime"`
}

// DefaultDenylist is the fixed set of dangerous command basenames from
// spec.md §4.3.
var DefaultDenylist = []string{
	"rm", "rmdir", "del", "format", "fdisk", "sudo", "su",
	"chmod", "chown", "wget", "curl", "nc", "netcat",
	"eval", "exec", "sh", "bash", "cmd", "powershell", "pwsh",
}

type FilesystemConfig struct {
	BackupDir      string   `koanf:"backupDir" yaml:"backupDir"`
	DeniedExtensions []string `koanf:"deniedExtensions" yaml:"deniedExtensions"`
}

type SearchConfig struct {
	MaxResults int `koanf:"maxResults" yaml:"maxResults"`
	// RespectGitIgnore is a pointer so SetDefaults can tell "unset" from
	// an explicit false apart, per the teacher's BoolPtr idiom
	// (pkg/config/tool.go) — a plain bool can't distinguish the two, so
	// filling it unconditionally would stomp a user's `false` back to true.
	RespectGitIgnore    *bool `koanf:"respectGitIgnore" yaml:"respectGitIgnore"`
	DefaultContextLines int   `koanf:"defaultContextLines" yaml:"defaultContextLines"`
}

// BoolPtr returns a pointer to b, for filling optional *bool config fields.
func BoolPtr(b bool) *bool { return &b }

type EditorConfig struct {
	BackupDir string `koanf:"backupDir" yaml:"backupDir"`
}

// SetDefaults fills unset fields with the kernel's operating defaults.
// Mirrors the teacher's per-section SetDefaults idiom (pkg/config/tool.go).
func (c *Config) SetDefaults() {
	if c.Model == "" {
		c.Model = "llama3"
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.ContextWindow == 0 {
		c.ContextWindow = 8192
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.MaxConversationHistory == 0 {
		c.MaxConversationHistory = 50
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DataDir == "" {
		c.DataDir = "./.agentkernel"
	}
	if c.MaxConcurrentTools == 0 {
		c.MaxConcurrentTools = 4
	}
	if c.ToolTimeout == 0 {
		c.ToolTimeout = 30 * time.Second
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 5 * time.Minute
	}
	if c.ExecutionPreferences.Parallelism == 0 {
		c.ExecutionPreferences.Parallelism = c.MaxConcurrentTools
	}
	if c.ExecutionPreferences.RiskTolerance == "" {
		c.ExecutionPreferences.RiskTolerance = RiskBalanced
	}

	if len(c.Execute.DeniedCommands) == 0 {
		c.Execute.DeniedCommands = DefaultDenylist
	}
	if c.Execute.WorkingDirectory == "" {
		c.Execute.WorkingDirectory = "."
	}
	if c.Execute.MaxExecutionTime == 0 {
		c.Execute.MaxExecutionTime = 30 * time.Second
	}

	if c.Filesystem.BackupDir == "" {
		c.Filesystem.BackupDir = c.DataDir + "/backups"
	}

	if c.Search.MaxResults == 0 {
		c.Search.MaxResults = 100
	}
	if c.Search.DefaultContextLines == 0 {
		c.Search.DefaultContextLines = 2
	}
	if c.Search.RespectGitIgnore == nil {
		c.Search.RespectGitIgnore = BoolPtr(true)
	}

	if c.Editor.BackupDir == "" {
		c.Editor.BackupDir = c.Filesystem.BackupDir
	}
}

// Validate checks the assembled configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("config: model is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("config: baseUrl is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("config: temperature must be within [0,2]")
	}
	switch c.ExecutionPreferences.RiskTolerance {
	case RiskConservative, RiskBalanced, RiskAggressive:
	default:
		return fmt.Errorf("config: invalid riskTolerance %q", c.ExecutionPreferences.RiskTolerance)
	}
	if c.MaxConcurrentTools <= 0 {
		return fmt.Errorf("config: maxConcurrentTools must be positive")
	}
	return nil
}

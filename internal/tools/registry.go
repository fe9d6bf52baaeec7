package tools

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/localcoder/agentkernel/internal/apperrors"
	"github.com/localcoder/agentkernel/internal/registry"
)

// ToolEntry wraps a registered Tool with registry-level bookkeeping.
// Internal marks tools that exist to support another tool (e.g. a
// code-analysis tool's internal helper) and should be hidden from
// LLM-facing tool listings, grounded on hector's ToolEntry.Internal.
type ToolEntry struct {
	Tool     Tool
	Category string
	Internal bool
}

// Registry is the C4 Tool Registry: lookup by name, category, and
// free-text search with a relevance score.
type Registry struct {
	base *registry.BaseRegistry[ToolEntry]
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{base: registry.NewBaseRegistry[ToolEntry]()}
}

// validateInfo enforces spec §4.1's register() contract: non-empty
// name/description/category/version, every parameter has name+type+description.
func validateInfo(info ToolInfo) error {
	if info.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if info.Description == "" {
		return fmt.Errorf("tool %q: description is required", info.Name)
	}
	if info.Category == "" {
		return fmt.Errorf("tool %q: category is required", info.Name)
	}
	if info.Version == "" {
		return fmt.Errorf("tool %q: version is required", info.Name)
	}
	for _, p := range info.Parameters {
		if p.Name == "" || p.Type == "" || p.Description == "" {
			return fmt.Errorf("tool %q: parameter missing name/type/description", info.Name)
		}
	}
	return nil
}

// Register validates t's metadata and adds it to the registry. A second
// registration of the same name overwrites the first, logging a warning,
// matching spec §4.1 ("re-registration overwrites with a warning"); the
// underlying generic registry itself rejects duplicates, so overwrite is
// implemented here as remove-then-register.
func (r *Registry) Register(t Tool, internal bool) error {
	info := t.Info()
	if err := validateInfo(info); err != nil {
		return apperrors.Validation("toolRegistry", "Register", err.Error(), nil)
	}

	entry := ToolEntry{Tool: t, Category: info.Category, Internal: internal}

	if _, exists := r.base.Get(info.Name); exists {
		slog.Warn("tool re-registered, overwriting", "name", info.Name)
		_ = r.base.Remove(info.Name)
	}
	return r.base.Register(info.Name, entry)
}

// Get is total: returns (tool, false) when absent rather than erroring.
func (r *Registry) Get(name string) (Tool, bool) {
	entry, ok := r.base.Get(name)
	if !ok {
		return nil, false
	}
	return entry.Tool, true
}

// Remove unregisters a tool by name.
func (r *Registry) Remove(name string) error {
	return r.base.Remove(name)
}

// List enumerates every registered tool's metadata, visible ones only
// unless includeInternal is set.
func (r *Registry) List(includeInternal bool) []ToolInfo {
	var out []ToolInfo
	for _, entry := range r.base.List() {
		if entry.Internal && !includeInternal {
			continue
		}
		out = append(out, entry.Tool.Info())
	}
	return out
}

// GetByCategory returns every tool registered under the given category.
func (r *Registry) GetByCategory(category string) []Tool {
	var out []Tool
	for _, entry := range r.base.List() {
		if entry.Category == category {
			out = append(out, entry.Tool)
		}
	}
	return out
}

// scoredTool pairs a tool with its relevance score for a search query.
type scoredTool struct {
	tool  Tool
	score int
}

// Search ranks registered tools against a free-text query: name match
// scores highest, then description match, then parameter name/description
// match (spec §4.1).
func (r *Registry) Search(query string) []Tool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var scored []scoredTool
	for _, entry := range r.base.List() {
		info := entry.Tool.Info()
		score := 0

		name := strings.ToLower(info.Name)
		if name == q {
			score += 100
		} else if strings.Contains(name, q) {
			score += 50
		}

		desc := strings.ToLower(info.Description)
		if strings.Contains(desc, q) {
			score += 20
		}

		for _, p := range info.Parameters {
			if strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.Description), q) {
				score += 5
			}
		}

		if score > 0 {
			scored = append(scored, scoredTool{tool: entry.Tool, score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	out := make([]Tool, len(scored))
	for i, s := range scored {
		out[i] = s.tool
	}
	return out
}

// ValidateParams applies spec §4.1's pre-execute validation: required
// parameters present, validators pass, defaults filled in for missing
// optional parameters. Returns the params merged with defaults.
func ValidateParams(info ToolInfo, params map[string]interface{}) (map[string]interface{}, error) {
	merged := make(map[string]interface{}, len(params))
	for k, v := range params {
		merged[k] = v
	}

	for _, p := range info.Parameters {
		v, present := merged[p.Name]
		if !present {
			if p.Required {
				return nil, apperrors.Validation("toolRegistry", "ValidateParams",
					fmt.Sprintf("missing required parameter %q", p.Name), nil)
			}
			if p.Default != nil {
				merged[p.Name] = p.Default
			}
			continue
		}
		if p.Validator != nil {
			if msg := p.Validator(v); msg != "" {
				return nil, apperrors.Validation("toolRegistry", "ValidateParams",
					fmt.Sprintf("parameter %q: %s", p.Name, msg), nil)
			}
		}
	}
	return merged, nil
}

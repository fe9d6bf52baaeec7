// Package orchestrator implements the C5 Tool Orchestrator: a
// dependency-ordered executor for heterogeneous tools with a bounded
// concurrency pool, a result binding scheme between dependent
// executions, an optional TTL cache, and cancellation. The scheduling
// loop is a bespoke DAG walker (ready-set selection, priority/insertion
// tie-break) rather than a generic workflow engine, because the
// teacher's own `workflow` package only composes sequential/parallel/
// loop steps — not a general DAG. Its ExecutionContext shape (shared
// result map behind a mutex) follows that package's executor state.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/localcoder/agentkernel/internal/apperrors"
	"github.com/localcoder/agentkernel/internal/tools"
)

// Status is an execution's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusBlocked   Status = "blocked"
	StatusCancelled Status = "cancelled"
)

// Binding references a dependency's result by execution id and a dot
// path into its Data payload: {from: "exec-1", path: "x"} reads the
// dependency's Data["x"].
type Binding struct {
	From string `json:"from"`
	Path string `json:"path"`
}

// ExecutionSpec is the caller-supplied description of one tool
// invocation before plan ids are assigned.
type ExecutionSpec struct {
	ToolName     string
	Parameters   map[string]interface{}
	Dependencies []string // refers to sibling specs by their index-assigned id, resolved by CreatePlan
	Priority     int
}

// Execution is one scheduled tool invocation within a Plan.
type Execution struct {
	ID           string
	ToolName     string
	Parameters   map[string]interface{}
	Dependencies []string
	Priority     int
	Status       Status
	Result       tools.ToolResult
	Err          error
	insertion    int
}

// Plan is a flat, ordered set of tool Executions plus their derived
// dependency map (spec §3: "Orchestration Plan").
type Plan struct {
	Executions        map[string]*Execution
	order             []string
	EstimatedDuration time.Duration
}

// Progress reports how many of a plan's executions are terminal.
type Progress struct {
	Completed int
	Failed    int
	Blocked   int
	Total     int
}

// CreatePlan assigns ids, builds the dependency map, and estimates
// duration as a flat per-tool constant (spec §4.2: "estimates duration").
func CreatePlan(specs []ExecutionSpec) (*Plan, error) {
	plan := &Plan{Executions: make(map[string]*Execution, len(specs))}

	ids := make([]string, len(specs))
	for i := range specs {
		ids[i] = fmt.Sprintf("exec-%d", i+1)
	}

	const perToolEstimate = 2 * time.Second
	for i, spec := range specs {
		deps := make([]string, 0, len(spec.Dependencies))
		for _, d := range spec.Dependencies {
			idx, err := indexOf(d, ids)
			if err != nil {
				return nil, apperrors.Plan("orchestrator", "CreatePlan", fmt.Sprintf("dependency %q does not refer to a plan execution", d), nil)
			}
			deps = append(deps, ids[idx])
		}
		plan.Executions[ids[i]] = &Execution{
			ID:           ids[i],
			ToolName:     spec.ToolName,
			Parameters:   spec.Parameters,
			Dependencies: deps,
			Priority:     spec.Priority,
			Status:       StatusPending,
			insertion:    i,
		}
		plan.order = append(plan.order, ids[i])
		plan.EstimatedDuration += perToolEstimate
	}

	if err := validateDAG(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// indexOf treats a bare numeric-looking dependency reference ("0", "1",
// ...) as an index into ids, since callers build specs before ids exist.
func indexOf(ref string, ids []string) (int, error) {
	for i, id := range ids {
		if id == ref {
			return i, nil
		}
	}
	var idx int
	if _, err := fmt.Sscanf(ref, "%d", &idx); err == nil && idx >= 0 && idx < len(ids) {
		return idx, nil
	}
	return 0, fmt.Errorf("unknown dependency %q", ref)
}

// validateDAG rejects cycles via DFS with a recursion stack (spec §4.6's
// cycle-detection idiom, reused here for orchestration plans per
// testable-property 2: "DAG invariant").
func validateDAG(plan *Plan) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(plan.Executions))

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case gray:
			return apperrors.Plan("orchestrator", "validateDAG", "circular dependency detected", nil)
		case black:
			return nil
		}
		color[id] = gray
		exec, ok := plan.Executions[id]
		if !ok {
			return apperrors.Plan("orchestrator", "validateDAG", fmt.Sprintf("dangling dependency %q", id), nil)
		}
		for _, dep := range exec.Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}

	for id := range plan.Executions {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// Progress summarizes the plan's current terminal-execution counts
// (testable property 9: "progress.completed is non-decreasing").
func (p *Plan) Progress() Progress {
	var pr Progress
	pr.Total = len(p.Executions)
	for _, e := range p.Executions {
		switch e.Status {
		case StatusCompleted:
			pr.Completed++
		case StatusFailed:
			pr.Failed++
		case StatusBlocked, StatusCancelled:
			pr.Blocked++
		}
	}
	return pr
}

// Orchestrator schedules and executes tool Executions against a Registry.
type Orchestrator struct {
	registry      *tools.Registry
	maxConcurrent int
	cache         *lru.LRU[string, tools.ToolResult]
}

// New creates an orchestrator bound to reg, allowing at most
// maxConcurrent tool executions in flight at once (spec §5 default: 4).
// If both cacheSize and cacheTTL are positive, successful single-tool
// results are cached.
func New(reg *tools.Registry, maxConcurrent int, cacheSize int, cacheTTL time.Duration) *Orchestrator {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	o := &Orchestrator{registry: reg, maxConcurrent: maxConcurrent}
	if cacheTTL > 0 && cacheSize > 0 {
		o.cache = lru.NewLRU[string, tools.ToolResult](cacheSize, nil, cacheTTL)
	}
	return o
}

// cacheKey hashes (toolName, canonical params JSON, relevant ctx fields)
// per spec §4.2 — projectRoot and workingDirectory are folded in so a
// cached read from one working directory never leaks into another.
func cacheKey(toolName string, params map[string]interface{}, execCtx tools.ExecutionContext) (string, error) {
	canonical, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(toolName))
	h.Write(canonical)
	h.Write([]byte(execCtx.ProjectRoot))
	h.Write([]byte(execCtx.WorkingDirectory))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ExecuteTool runs a single named tool: validates parameters, applies a
// cache lookup when enabled, invokes the tool, and stores the result.
func (o *Orchestrator) ExecuteTool(ctx context.Context, name string, params map[string]interface{}, execCtx tools.ExecutionContext) (tools.ToolResult, error) {
	tool, ok := o.registry.Get(name)
	if !ok {
		err := apperrors.Validation("orchestrator", "ExecuteTool", fmt.Sprintf("unknown tool %q", name), nil)
		return tools.ToolResult{Success: false, Error: err.Error()}, err
	}

	merged, err := tools.ValidateParams(tool.Info(), params)
	if err != nil {
		return tools.ToolResult{Success: false, Error: err.Error()}, err
	}

	var key string
	if o.cache != nil {
		key, err = cacheKey(name, merged, execCtx)
		if err == nil {
			if cached, hit := o.cache.Get(key); hit {
				return cached, nil
			}
		}
	}

	result, err := tool.Execute(ctx, merged, execCtx)
	if err != nil {
		return result, err
	}

	if o.cache != nil && key != "" && result.Success {
		o.cache.Add(key, result)
	}
	return result, nil
}

// ExecuteOrchestration drives plan to completion per spec §4.2's
// scheduling algorithm: repeatedly select the ready set (pending
// executions whose dependencies are all completed), launch up to the
// remaining concurrency budget, and react to the first to finish.
// Failure marks all transitive dependents blocked rather than aborting
// the whole plan; cancellation marks every non-terminal execution
// blocked/cancelled and returns.
func (o *Orchestrator) ExecuteOrchestration(ctx context.Context, plan *Plan, execCtx tools.ExecutionContext) (map[string]tools.ToolResult, error) {
	results := make(map[string]tools.ToolResult)
	done := make(chan execOutcome, len(plan.Executions))
	active := 0

	for {
		if ctx.Err() != nil {
			o.cancelRemaining(plan)
			return results, nil
		}
		if allTerminal(plan) {
			return results, nil
		}

		ready := readySet(plan)
		for _, id := range ready {
			if active >= o.maxConcurrent {
				break
			}
			exec := plan.Executions[id]
			exec.Status = StatusRunning
			active++

			resolved, err := resolveBindings(exec.Parameters, results)
			if err != nil {
				exec.Status = StatusFailed
				exec.Err = err
				active--
				markDependentsBlocked(plan, id)
				continue
			}

			go func(exec *Execution, params map[string]interface{}) {
				result, err := o.ExecuteTool(ctx, exec.ToolName, params, execCtx)
				done <- execOutcome{id: exec.ID, result: result, err: err}
			}(exec, resolved)
		}

		if active == 0 {
			if allTerminal(plan) {
				return results, nil
			}
			// No execution is ready, none is running, and the plan is not
			// terminal: since the plan passed DAG validation, every pending
			// node is reachable by completion or by failure-propagated
			// blocking, so this can only indicate a scheduler bug.
			return results, apperrors.Plan("orchestrator", "ExecuteOrchestration", "scheduling deadlock: no progress possible with pending executions remaining", nil)
		}

		select {
		case <-ctx.Done():
			o.cancelRemaining(plan)
			return results, nil
		case out := <-done:
			active--
			exec := plan.Executions[out.id]
			if out.err != nil || !out.result.Success {
				exec.Status = StatusFailed
				exec.Result = out.result
				exec.Err = out.err
				markDependentsBlocked(plan, out.id)
			} else {
				exec.Status = StatusCompleted
				exec.Result = out.result
				results[out.id] = out.result
			}
		}
	}
}

type execOutcome struct {
	id     string
	result tools.ToolResult
	err    error
}

// readySet returns pending executions whose dependencies are all
// completed, ordered by priority descending then insertion order.
func readySet(plan *Plan) []string {
	var ready []string
	for _, id := range plan.order {
		exec := plan.Executions[id]
		if exec.Status != StatusPending {
			continue
		}
		if allDepsCompleted(plan, exec) {
			ready = append(ready, id)
		}
	}
	sort.SliceStable(ready, func(i, j int) bool {
		a, b := plan.Executions[ready[i]], plan.Executions[ready[j]]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.insertion < b.insertion
	})
	return ready
}

func allDepsCompleted(plan *Plan, exec *Execution) bool {
	for _, dep := range exec.Dependencies {
		if plan.Executions[dep].Status != StatusCompleted {
			return false
		}
	}
	return true
}

func allTerminal(plan *Plan) bool {
	for _, e := range plan.Executions {
		switch e.Status {
		case StatusPending, StatusRunning:
			return false
		}
	}
	return true
}

// markDependentsBlocked marks every execution transitively depending on
// failedID as blocked, skipping ones already terminal.
func markDependentsBlocked(plan *Plan, failedID string) {
	changed := true
	for changed {
		changed = false
		for _, exec := range plan.Executions {
			if exec.Status != StatusPending {
				continue
			}
			for _, dep := range exec.Dependencies {
				depExec := plan.Executions[dep]
				if dep == failedID || depExec.Status == StatusBlocked || depExec.Status == StatusFailed {
					exec.Status = StatusBlocked
					changed = true
					break
				}
			}
		}
	}
}

// cancelRemaining marks every non-terminal execution cancelled/blocked
// on plan cancellation (spec §5: "pending tasks are marked blocked").
func (o *Orchestrator) cancelRemaining(plan *Plan) {
	for _, exec := range plan.Executions {
		switch exec.Status {
		case StatusRunning:
			exec.Status = StatusCancelled
		case StatusPending:
			exec.Status = StatusBlocked
		}
	}
}

// resolveBindings replaces any parameter value shaped like
// {"from": execID, "path": "x"} with the value at that dot path inside
// the referenced dependency result's Data payload.
func resolveBindings(params map[string]interface{}, results map[string]tools.ToolResult) (map[string]interface{}, error) {
	resolved := make(map[string]interface{}, len(params))
	for k, v := range params {
		binding, ok := asBinding(v)
		if !ok {
			resolved[k] = v
			continue
		}
		depResult, ok := results[binding.From]
		if !ok {
			return nil, apperrors.Plan("orchestrator", "resolveBindings", fmt.Sprintf("binding references unknown execution %q", binding.From), nil)
		}
		value, err := extractPath(depResult.Data, binding.Path)
		if err != nil {
			return nil, apperrors.Plan("orchestrator", "resolveBindings", err.Error(), nil)
		}
		resolved[k] = value
	}
	return resolved, nil
}

func asBinding(v interface{}) (Binding, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return Binding{}, false
	}
	from, fromOK := m["from"].(string)
	path, pathOK := m["path"].(string)
	if !fromOK || !pathOK {
		return Binding{}, false
	}
	return Binding{From: from, Path: path}, true
}

// extractPath walks a dot-separated path ("x.y") into a generic
// value by round-tripping through JSON, since ToolResult.Data may hold
// any concrete type.
func extractPath(data interface{}, path string) (interface{}, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("binding source is not serializable: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("binding source could not be decoded: %w", err)
	}

	current := generic
	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			continue
		}
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("path %q does not resolve against binding source", path)
		}
		current, ok = m[segment]
		if !ok {
			return nil, fmt.Errorf("path %q: no field %q", path, segment)
		}
	}
	return current, nil
}

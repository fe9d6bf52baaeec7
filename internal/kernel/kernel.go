// Package kernel implements the C10 Agent Kernel: the top-level
// coordinator that drives one user message through intent analysis,
// routing, planning, execution, and turn bookkeeping (spec §4.8).
package kernel

import (
	"context"
	"fmt"
	"time"

	"github.com/localcoder/agentkernel/internal/config"
	"github.com/localcoder/agentkernel/internal/conversation"
	"github.com/localcoder/agentkernel/internal/domain"
	"github.com/localcoder/agentkernel/internal/editor"
	"github.com/localcoder/agentkernel/internal/intent"
	"github.com/localcoder/agentkernel/internal/orchestrator"
	"github.com/localcoder/agentkernel/internal/planner"
	"github.com/localcoder/agentkernel/internal/projectctx"
	"github.com/localcoder/agentkernel/internal/router"
	"github.com/localcoder/agentkernel/internal/tools"
)

// PlanState is the active-plan state machine (spec §4.8):
// proposal -> {approved -> executing -> {completed, failed, cancelled}} | rejected.
type PlanState string

const (
	PlanStateProposal  PlanState = "proposal"
	PlanStateApproved  PlanState = "approved"
	PlanStateExecuting PlanState = "executing"
	PlanStateCompleted PlanState = "completed"
	PlanStateFailed    PlanState = "failed"
	PlanStateCancelled PlanState = "cancelled"
	PlanStateRejected  PlanState = "rejected"
)

// SessionMetrics tracks the kernel's running statistics for a session
// (spec §4.8 step 6).
type SessionMetrics struct {
	MessageCount       int
	AvgProcessingTime  time.Duration
	totalProcessingTime time.Duration
}

func (m *SessionMetrics) record(d time.Duration) {
	m.MessageCount++
	m.totalProcessingTime += d
	m.AvgProcessingTime = m.totalProcessingTime / time.Duration(m.MessageCount)
}

// cacheEntry is a cached high-value response keyed by (intent.type, intent.action).
type cacheEntry struct {
	response string
}

// Kernel is the per-session coordinator gluing every other component.
type Kernel struct {
	cfg                *config.Config
	conv               *conversation.Conversation
	store              *conversation.Store
	index              *projectctx.Index
	registry           *tools.Registry
	orch               *orchestrator.Orchestrator
	editorSvc          *editor.Editor
	intentSvc          *intent.Analyzer
	plannerSvc         *planner.Planner
	registeredCommands map[string]bool

	metrics SessionMetrics
	cache   map[string]cacheEntry

	ActivePlan      *domain.TaskPlan
	ActivePlanState PlanState
}

// Deps bundles the collaborators a Kernel is built from.
type Deps struct {
	Config             *config.Config
	Conversation       *conversation.Conversation
	Store              *conversation.Store
	Index              *projectctx.Index
	Registry           *tools.Registry
	Orchestrator       *orchestrator.Orchestrator
	Editor             *editor.Editor
	Intent             *intent.Analyzer
	Planner            *planner.Planner
	RegisteredCommands map[string]bool
}

// New assembles a Kernel from its collaborators.
func New(d Deps) *Kernel {
	if d.RegisteredCommands == nil {
		d.RegisteredCommands = map[string]bool{}
	}
	return &Kernel{
		cfg:                d.Config,
		conv:               d.Conversation,
		store:               d.Store,
		index:               d.Index,
		registry:            d.Registry,
		orch:                d.Orchestrator,
		editorSvc:           d.Editor,
		intentSvc:           d.Intent,
		plannerSvc:          d.Planner,
		registeredCommands:  d.RegisteredCommands,
		cache:               make(map[string]cacheEntry),
		ActivePlanState:      "",
	}
}

// HandleMessage drives one user message through the full turn
// lifecycle (spec §4.8 steps 1-6) and returns the updated turn.
func (k *Kernel) HandleMessage(ctx context.Context, input string) (*domain.Turn, error) {
	start := time.Now()

	snapshot := domain.ContextSnapshot{
		WorkingDirectory: k.workingDirectory(),
		RecentFiles:      k.conv.RecentFiles(10),
	}
	turn := k.conv.AppendTurn(input, snapshot)

	ictx := domain.IntentContext{
		ProjectAware: k.index != nil,
		FollowUp:     k.conv.Len() > 1,
	}
	parsedIntent, err := k.intentSvc.Analyze(ctx, input, ictx)
	if err != nil {
		k.finishTurn(turn, domain.OutcomeFailure, "", nil)
		return turn, err
	}
	turn.Intent = parsedIntent

	if cached, ok := k.cache[cacheKeyFor(parsedIntent)]; ok {
		k.finishTurn(turn, domain.OutcomeSuccess, cached.response, nil)
		k.metrics.record(time.Since(start))
		return turn, nil
	}

	route := router.Route(input, parsedIntent, router.Context{
		RegisteredCommands: k.registeredCommands,
		WorkingDirectory:   k.workingDirectory(),
	})

	var (
		response string
		actions  []domain.ActionTaken
		outcome  domain.Outcome
	)

	switch route.Kind {
	case router.RouteCommand:
		response, actions, outcome = k.handleCommand(ctx, route)
	case router.RouteTaskPlan:
		response, actions, outcome = k.handleTaskPlan(ctx, input, parsedIntent)
	default:
		response, outcome = fmt.Sprintf("noted: %s", input), domain.OutcomeSuccess
	}

	k.finishTurn(turn, outcome, response, actions)
	if outcome == domain.OutcomeSuccess {
		k.cache[cacheKeyFor(parsedIntent)] = cacheEntry{response: response}
	}
	k.metrics.record(time.Since(start))

	if k.store != nil {
		_ = k.store.Save(k.conv)
	}

	return turn, nil
}

func cacheKeyFor(i *domain.Intent) string {
	return string(i.Type) + "|" + i.Action
}

func (k *Kernel) workingDirectory() string {
	if k.index != nil {
		return k.index.Root()
	}
	return "."
}

func (k *Kernel) finishTurn(turn *domain.Turn, outcome domain.Outcome, response string, actions []domain.ActionTaken) {
	_ = k.conv.UpdateTurn(turn.ID, func(t *domain.Turn) {
		t.Outcome = outcome
		t.Response = response
		if actions != nil {
			t.Actions = actions
		}
	})
}

func (k *Kernel) handleCommand(ctx context.Context, route router.Route) (string, []domain.ActionTaken, domain.Outcome) {
	tool, ok := k.registry.Get(route.CommandName)
	if !ok {
		return fmt.Sprintf("unknown command: %s", route.CommandName), nil, domain.OutcomeFailure
	}

	params := map[string]interface{}{}
	if len(route.Args) > 0 {
		params["args"] = route.Args
	}

	execCtx := tools.ExecutionContext{ProjectRoot: k.workingDirectory(), WorkingDirectory: k.workingDirectory()}
	result, err := tool.Execute(ctx, params, execCtx)
	action := domain.ActionTaken{ToolName: route.CommandName, Success: err == nil && result.Success, Timestamp: time.Now()}
	if err != nil {
		action.Summary = err.Error()
		return err.Error(), []domain.ActionTaken{action}, domain.OutcomeFailure
	}
	action.Summary = fmt.Sprintf("%v", result.Data)
	outcome := domain.OutcomeSuccess
	if !result.Success {
		outcome = domain.OutcomeFailure
	}
	return fmt.Sprintf("%v", result.Data), []domain.ActionTaken{action}, outcome
}

// handleTaskPlan builds a plan and either auto-executes it or stores it
// as a proposal awaiting user approval (spec §4.8 step 4).
func (k *Kernel) handleTaskPlan(ctx context.Context, input string, parsedIntent *domain.Intent) (string, []domain.ActionTaken, domain.Outcome) {
	pc := planner.PlanningContext{
		ProjectRoot:    k.workingDirectory(),
		AvailableTools: k.toolNames(),
	}
	plan, err := k.plannerSvc.CreatePlan(ctx, parsedIntent, input, pc)
	if err != nil {
		return err.Error(), nil, domain.OutcomeFailure
	}

	k.ActivePlan = plan
	k.ActivePlanState = PlanStateProposal

	if k.shouldAutoExecute(parsedIntent, plan) {
		return k.ExecutePlan(ctx, plan)
	}

	return fmt.Sprintf("proposed plan %q with %d task(s); reply to approve", plan.Title, len(plan.Tasks)), nil, domain.OutcomePending
}

// shouldAutoExecute implements spec §4.8 step 4's auto-execute rule.
func (k *Kernel) shouldAutoExecute(i *domain.Intent, plan *domain.TaskPlan) bool {
	if i.Type == domain.IntentQuestion && i.Complexity == domain.ComplexitySimple {
		return true
	}
	if k.cfg == nil || k.cfg.ExecutionPreferences.RiskTolerance != config.RiskAggressive {
		return false
	}
	if len(plan.Tasks) > 3 || plan.EstimatedDuration > 5 {
		return false
	}
	for _, t := range plan.Tasks {
		if t.Priority == domain.PriorityCritical {
			return false
		}
	}
	return true
}

// ExecutePlan drives a plan's tasks in computed order through the
// Orchestrator, aggregating results into a turn-facing summary (spec
// §4.8 step 5).
func (k *Kernel) ExecutePlan(ctx context.Context, plan *domain.TaskPlan) (string, []domain.ActionTaken, domain.Outcome) {
	k.ActivePlanState = PlanStateExecuting
	plan.Status = domain.PlanExecuting

	var actions []domain.ActionTaken
	for {
		next := planner.NextExecutable(plan)
		if next == nil {
			break
		}

		now := time.Now()
		next.Status = domain.TaskInProgress
		next.StartedAt = &now

		// A task with no declared tools is carried out directly (e.g. an
		// analysis/documentation task answered from the model rather than
		// via a registered tool) and needs no orchestration round-trip.
		success := true
		if toolName := firstOrEmpty(next.ToolsRequired); toolName != "" {
			specs := []orchestrator.ExecutionSpec{{ToolName: toolName, Parameters: map[string]interface{}{"task": next.Title}}}
			execPlan, err := orchestrator.CreatePlan(specs)
			success = false
			if err == nil && k.orch != nil {
				execCtx := tools.ExecutionContext{ProjectRoot: k.workingDirectory(), WorkingDirectory: k.workingDirectory()}
				results, execErr := k.orch.ExecuteOrchestration(ctx, execPlan, execCtx)
				success = execErr == nil && allSucceeded(execPlan, results)
			}
		}

		completed := time.Now()
		if success {
			next.Status = domain.TaskCompleted
			next.CompletedAt = &completed
		} else {
			next.Status = domain.TaskFailed
			if adaptErr := planner.Adapt(plan, next.ID); adaptErr != nil {
				actions = append(actions, domain.ActionTaken{ToolName: "planner", Summary: adaptErr.Error(), Timestamp: time.Now()})
				k.ActivePlanState = PlanStateFailed
				plan.Status = domain.PlanFailed
				plan.RecomputeProgress()
				return summarize(plan), actions, domain.OutcomeFailure
			}
		}
		actions = append(actions, domain.ActionTaken{ToolName: next.Title, Success: success, Timestamp: time.Now()})
		plan.RecomputeProgress()
	}

	k.ActivePlanState = PlanStateCompleted
	plan.Status = domain.PlanCompleted
	outcome := domain.OutcomeSuccess
	if plan.Progress.Completed != plan.Progress.Total {
		outcome = domain.OutcomePartial
	}
	return summarize(plan), actions, outcome
}

func firstOrEmpty(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return items[0]
}

func allSucceeded(plan *orchestrator.Plan, results map[string]tools.ToolResult) bool {
	for id := range plan.Executions {
		r, ok := results[id]
		if !ok || !r.Success {
			return false
		}
	}
	return true
}

func summarize(plan *domain.TaskPlan) string {
	return fmt.Sprintf("plan %q: %d/%d tasks completed", plan.Title, plan.Progress.Completed, plan.Progress.Total)
}

// ProposeEdit hands a file mutation to the Safe Code Editor, returning
// the pending edit without touching disk. Task execution that mutates
// source files (rather than invoking a registered tool) goes through
// this path so every write still gets a backup-before-mutate guarantee.
func (k *Kernel) ProposeEdit(path, newContent, description string, level editor.ValidationLevel) (*domain.Edit, domain.EditResult) {
	return k.editorSvc.CreateEdit(path, newContent, description, level)
}

// ApplyPendingEdits commits a set of previously proposed edits as one
// transaction via the Safe Code Editor.
func (k *Kernel) ApplyPendingEdits(editIDs []string) []domain.EditResult {
	return k.editorSvc.ApplyEdits(editIDs)
}

func (k *Kernel) toolNames() []string {
	infos := k.registry.List(false)
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return names
}

// ApprovePlan transitions the active plan from proposal to approved and
// executes it.
func (k *Kernel) ApprovePlan(ctx context.Context) (string, []domain.ActionTaken, domain.Outcome) {
	if k.ActivePlan == nil || k.ActivePlanState != PlanStateProposal {
		return "no plan awaiting approval", nil, domain.OutcomeFailure
	}
	k.ActivePlanState = PlanStateApproved
	return k.ExecutePlan(ctx, k.ActivePlan)
}

// RejectPlan discards the active proposal without executing it.
func (k *Kernel) RejectPlan() {
	k.ActivePlanState = PlanStateRejected
	k.ActivePlan = nil
}

// CancelActivePlan marks the active plan cancelled: its pending and
// in-progress tasks become blocked and the plan status becomes failed.
// Pending edits held by the Safe Code Editor are not discarded here.
func (k *Kernel) CancelActivePlan() {
	if k.ActivePlan == nil {
		return
	}
	for _, t := range k.ActivePlan.Tasks {
		if t.Status == domain.TaskPending || t.Status == domain.TaskInProgress {
			t.Status = domain.TaskBlocked
		}
	}
	k.ActivePlanState = PlanStateCancelled
	k.ActivePlan.Status = domain.PlanFailed
}

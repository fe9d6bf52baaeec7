// Package planner implements the C8 Task Planner: it turns an Intent
// plus a PlanningContext into a validated, topologically-ordered
// TaskPlan, requesting the task breakdown itself from the model and
// falling back to a single-task plan when the model's response can't
// be parsed. Grounded on alantheprice-ledit's context-gather-then-plan
// flow and hector's Task struct shape.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/localcoder/agentkernel/internal/apperrors"
	"github.com/localcoder/agentkernel/internal/domain"
	"github.com/localcoder/agentkernel/internal/llm"
)

// completer is the narrow LLM dependency, mirroring internal/intent's
// seam so tests can inject a fake completion.
type completer interface {
	Complete(ctx context.Context, messages []llm.Message, system string, opts llm.Options) (*llm.CompletionResult, error)
}

const maxAdaptations = 3

// CodebaseSize and QualityRequirements band the planning context for
// complexity escalation (spec §4.6 step 1).
type CodebaseSize string

const (
	CodebaseSmall  CodebaseSize = "small"
	CodebaseMedium CodebaseSize = "medium"
	CodebaseLarge  CodebaseSize = "large"
)

type QualityRequirements string

const (
	QualityBasic      QualityRequirements = "basic"
	QualityProduction QualityRequirements = "production"
	QualityEnterprise QualityRequirements = "enterprise"
)

// PlanningContext is the caller-supplied environment the planner
// reasons within.
type PlanningContext struct {
	ProjectRoot         string
	AvailableTools      []string
	ProjectLanguages    []string
	CodebaseSize        CodebaseSize
	UserExperience      string
	QualityRequirements QualityRequirements
	TimeConstraints     string
}

// Planner builds and adapts TaskPlans.
type Planner struct {
	model completer
}

// New constructs a Planner backed by the given completion client.
func New(model completer) *Planner {
	return &Planner{model: model}
}

// complexityKeywords escalate the intent's own complexity banding
// before the model is ever asked (spec §4.6 step 1).
var complexityKeywords = map[string]domain.Complexity{
	"migrate":   domain.ComplexityExpert,
	"architect": domain.ComplexityExpert,
	"redesign":  domain.ComplexityExpert,
	"refactor":  domain.ComplexityComplex,
	"integrate": domain.ComplexityComplex,
	"implement": domain.ComplexityModerate,
	"add":       domain.ComplexityModerate,
	"fix":       domain.ComplexitySimple,
	"rename":    domain.ComplexitySimple,
}

func estimateComplexity(intent *domain.Intent, pc PlanningContext) domain.Complexity {
	complexity := intent.Complexity
	if banded, ok := complexityKeywords[strings.ToLower(intent.Action)]; ok {
		complexity = maxComplexity(complexity, banded)
	}
	if pc.CodebaseSize == CodebaseLarge {
		complexity = escalateComplexity(complexity)
	}
	if pc.QualityRequirements == QualityEnterprise {
		complexity = escalateComplexity(complexity)
	}
	return complexity
}

var complexityOrder = []domain.Complexity{
	domain.ComplexitySimple, domain.ComplexityModerate, domain.ComplexityComplex, domain.ComplexityExpert,
}

func complexityRank(c domain.Complexity) int {
	for i, v := range complexityOrder {
		if v == c {
			return i
		}
	}
	return 0
}

func maxComplexity(a, b domain.Complexity) domain.Complexity {
	if complexityRank(b) > complexityRank(a) {
		return b
	}
	return a
}

func escalateComplexity(c domain.Complexity) domain.Complexity {
	rank := complexityRank(c)
	if rank >= len(complexityOrder)-1 {
		return c
	}
	return complexityOrder[rank+1]
}

// planResponse mirrors spec §6.2's task-plan JSON schema.
type planResponse struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Tasks       []planResponseTask `json:"tasks"`
}

type planResponseTask struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Type               string   `json:"type"`
	Priority           string   `json:"priority"`
	Dependencies       []string `json:"dependencies"`
	EstimatedDuration  int      `json:"estimatedDuration"`
	ToolsRequired      []string `json:"toolsRequired"`
	FilesInvolved      []string `json:"filesInvolved"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
}

const planSystemPromptTemplate = `You are a software task planner. Break the request into tasks sized 15-60 minutes each.
Available tools: %s
Respond with a single JSON object matching this schema, no prose:
{"title":string,"description":string,"tasks":[{"title":string,"description":string,"type":"analysis|implementation|testing|documentation|refactoring","priority":"low|medium|high|critical","dependencies":[string (task titles)],"estimatedDuration":number,"toolsRequired":[string],"filesInvolved":[string],"acceptance_criteria":[string]}]}`

// CreatePlan builds a TaskPlan for the given intent within pc. On model
// or parse failure it falls back to a single-task plan rather than
// erroring (spec §4.6 step 3).
func (p *Planner) CreatePlan(ctx context.Context, intent *domain.Intent, utterance string, pc PlanningContext) (*domain.TaskPlan, error) {
	complexity := estimateComplexity(intent, pc)

	resp, confidence := p.requestPlan(ctx, utterance, pc)
	if resp == nil {
		resp = fallbackPlan(utterance, intent)
		confidence = 0.3
	}

	plan := assemble(resp, complexity, confidence)
	if err := validateDAG(plan); err != nil {
		return nil, err
	}
	pruneDangling(plan)
	reorderByPriority(plan)
	plan.RecomputeProgress()
	return plan, nil
}

func (p *Planner) requestPlan(ctx context.Context, utterance string, pc PlanningContext) (*planResponse, float64) {
	if p.model == nil {
		return nil, 0
	}

	system := fmt.Sprintf(planSystemPromptTemplate, strings.Join(pc.AvailableTools, ", "))
	messages := []llm.Message{{Role: "user", Content: utterance}}
	result, err := p.model.Complete(ctx, messages, system, llm.Options{Temperature: 0.2, Format: "json"})
	if err != nil {
		return nil, 0
	}

	var resp planResponse
	if err := json.Unmarshal([]byte(result.Content), &resp); err != nil || len(resp.Tasks) == 0 {
		return nil, 0
	}
	return &resp, 0.8
}

func fallbackPlan(utterance string, intent *domain.Intent) *planResponse {
	return &planResponse{
		Title:       "Single-task fallback plan",
		Description: utterance,
		Tasks: []planResponseTask{{
			Title:             utterance,
			Description:       utterance,
			Type:              string(domain.TaskImplementation),
			Priority:          string(domain.PriorityMedium),
			EstimatedDuration: intent.EstimatedDuration,
		}},
	}
}

// assemble assigns ids, builds the dependency map (resolving declared
// dependencies by task title, the only stable handle the model has
// before ids exist), and sets initial metadata.
func assemble(resp *planResponse, complexity domain.Complexity, confidence float64) *domain.TaskPlan {
	titleToID := make(map[string]string, len(resp.Tasks))
	tasks := make([]*domain.Task, 0, len(resp.Tasks))
	now := time.Now()

	for _, rt := range resp.Tasks {
		id := uuid.NewString()
		titleToID[rt.Title] = id
		tasks = append(tasks, &domain.Task{
			ID:                 id,
			Title:              rt.Title,
			Description:        rt.Description,
			Type:               domain.TaskType(orDefault(rt.Type, string(domain.TaskImplementation))),
			Priority:           domain.Priority(orDefault(rt.Priority, string(domain.PriorityMedium))),
			Status:             domain.TaskPending,
			EstimatedDuration:  rt.EstimatedDuration,
			ToolsRequired:      rt.ToolsRequired,
			FilesInvolved:      rt.FilesInvolved,
			AcceptanceCriteria: rt.AcceptanceCriteria,
			CreatedAt:          now,
		})
	}

	deps := make(map[string][]string, len(tasks))
	totalDuration := 0
	for i, rt := range resp.Tasks {
		var resolved []string
		for _, depTitle := range rt.Dependencies {
			if depID, ok := titleToID[depTitle]; ok {
				resolved = append(resolved, depID)
			}
		}
		tasks[i].Dependencies = resolved
		deps[tasks[i].ID] = resolved
		totalDuration += tasks[i].EstimatedDuration
	}

	return &domain.TaskPlan{
		ID:                uuid.NewString(),
		Title:             resp.Title,
		Description:       resp.Description,
		Tasks:             tasks,
		Dependencies:      deps,
		EstimatedDuration: totalDuration,
		Status:            domain.PlanPlanning,
		Metadata:          domain.PlanMetadata{Complexity: complexity, Confidence: confidence},
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// validateDAG runs a white/gray/black DFS cycle check over the plan's
// dependency edges (spec §4.6 step 4, invariant a).
func validateDAG(plan *domain.TaskPlan) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(plan.Tasks))
	for _, t := range plan.Tasks {
		color[t.ID] = white
	}

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, dep := range plan.Dependencies[id] {
			switch color[dep] {
			case gray:
				return apperrors.Plan("planner", "validateDAG", "circular dependency detected", nil)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, t := range plan.Tasks {
		if color[t.ID] == white {
			if err := visit(t.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// pruneDangling drops dependency ids with no matching task, per spec
// §4.6 step 4's "drop the dangling reference with a warning" rule. No
// logger is threaded through here; callers wanting the warning surfaced
// can diff before/after Dependencies.
func pruneDangling(plan *domain.TaskPlan) {
	known := make(map[string]bool, len(plan.Tasks))
	for _, t := range plan.Tasks {
		known[t.ID] = true
	}
	for _, t := range plan.Tasks {
		var kept []string
		for _, dep := range t.Dependencies {
			if known[dep] {
				kept = append(kept, dep)
			}
		}
		t.Dependencies = kept
		plan.Dependencies[t.ID] = kept
	}
}

var priorityRank = map[domain.Priority]int{
	domain.PriorityCritical: 3,
	domain.PriorityHigh:     2,
	domain.PriorityMedium:   1,
	domain.PriorityLow:      0,
}

// reorderByPriority performs a topological sort with priority as the
// secondary key, grouping tasks that share filesInvolved adjacently to
// reduce working-set thrash (spec §4.6 step 5).
func reorderByPriority(plan *domain.TaskPlan) {
	indegree := make(map[string]int, len(plan.Tasks))
	for _, t := range plan.Tasks {
		indegree[t.ID] = len(plan.Dependencies[t.ID])
	}

	byID := make(map[string]*domain.Task, len(plan.Tasks))
	for _, t := range plan.Tasks {
		byID[t.ID] = t
	}

	var ordered []*domain.Task
	remaining := make(map[string]bool, len(plan.Tasks))
	for _, t := range plan.Tasks {
		remaining[t.ID] = true
	}

	lastFiles := map[string]bool{}
	for len(remaining) > 0 {
		var ready []*domain.Task
		for id := range remaining {
			if indegree[id] == 0 {
				ready = append(ready, byID[id])
			}
		}
		sort.Slice(ready, func(i, j int) bool {
			if shares(ready[i], lastFiles) != shares(ready[j], lastFiles) {
				return shares(ready[i], lastFiles)
			}
			if priorityRank[ready[i].Priority] != priorityRank[ready[j].Priority] {
				return priorityRank[ready[i].Priority] > priorityRank[ready[j].Priority]
			}
			return ready[i].CreatedAt.Before(ready[j].CreatedAt)
		})

		next := ready[0]
		ordered = append(ordered, next)
		delete(remaining, next.ID)
		lastFiles = toSet(next.FilesInvolved)

		for id := range remaining {
			stillBlocked := 0
			for _, dep := range plan.Dependencies[id] {
				if remaining[dep] {
					stillBlocked++
				}
			}
			indegree[id] = stillBlocked
		}
	}

	plan.Tasks = ordered
}

func shares(t *domain.Task, files map[string]bool) bool {
	for _, f := range t.FilesInvolved {
		if files[f] {
			return true
		}
	}
	return false
}

func toSet(files []string) map[string]bool {
	set := make(map[string]bool, len(files))
	for _, f := range files {
		set[f] = true
	}
	return set
}

// NextExecutable returns the highest-priority task whose dependencies
// are all completed, tie-broken by earliest CreatedAt (spec §4.6's
// deterministic execution-order rule), or nil if none is ready.
func NextExecutable(plan *domain.TaskPlan) *domain.Task {
	var best *domain.Task
	for _, t := range plan.Tasks {
		if t.Status != domain.TaskPending {
			continue
		}
		if !depsCompleted(plan, t) {
			continue
		}
		if best == nil ||
			priorityRank[t.Priority] > priorityRank[best.Priority] ||
			(priorityRank[t.Priority] == priorityRank[best.Priority] && t.CreatedAt.Before(best.CreatedAt)) {
			best = t
		}
	}
	return best
}

func depsCompleted(plan *domain.TaskPlan, t *domain.Task) bool {
	for _, depID := range t.Dependencies {
		dep := plan.TaskByID(depID)
		if dep == nil || dep.Status != domain.TaskCompleted {
			return false
		}
	}
	return true
}

// Adapt appends a retry task (estimate halved) for a failed or
// overrunning task, up to maxAdaptations total per plan; beyond that
// the plan transitions to failed (spec §4.6's adaptive re-planning rule).
func Adapt(plan *domain.TaskPlan, failedTaskID string) error {
	if plan.Metadata.Adaptations >= maxAdaptations {
		plan.Status = domain.PlanFailed
		return apperrors.Plan("planner", "Adapt", "adaptation budget exhausted", nil)
	}

	failed := plan.TaskByID(failedTaskID)
	if failed == nil {
		return apperrors.Validation("planner", "Adapt", "unknown task id", nil)
	}

	retry := &domain.Task{
		ID:                uuid.NewString(),
		Title:             failed.Title + " (retry)",
		Description:       failed.Description,
		Type:              failed.Type,
		Priority:          failed.Priority,
		Status:            domain.TaskPending,
		Dependencies:      append([]string{}, failed.Dependencies...),
		EstimatedDuration: failed.EstimatedDuration / 2,
		ToolsRequired:     failed.ToolsRequired,
		FilesInvolved:     failed.FilesInvolved,
		CreatedAt:         time.Now(),
	}

	plan.Tasks = append(plan.Tasks, retry)
	plan.Dependencies[retry.ID] = retry.Dependencies
	plan.Metadata.Adaptations++
	plan.RecomputeProgress()
	return nil
}

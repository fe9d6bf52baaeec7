package domain

import "time"

type TaskType string

const (
	TaskAnalysis      TaskType = "analysis"
	TaskImplementation TaskType = "implementation"
	TaskTesting       TaskType = "testing"
	TaskDocumentation TaskType = "documentation"
	TaskRefactoring   TaskType = "refactoring"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskBlocked    TaskStatus = "blocked"
)

// Task is the smallest schedulable unit of work within a TaskPlan.
type Task struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Type               TaskType   `json:"type"`
	Priority           Priority   `json:"priority"`
	Status             TaskStatus `json:"status"`
	Dependencies       []string   `json:"dependencies"`
	EstimatedDuration  int        `json:"estimatedDuration"`
	ToolsRequired      []string   `json:"toolsRequired"`
	FilesInvolved      []string   `json:"filesInvolved"`
	AcceptanceCriteria []string   `json:"acceptance_criteria"`
	CreatedAt          time.Time  `json:"createdAt"`
	StartedAt          *time.Time `json:"startedAt,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	Result             string     `json:"result,omitempty"`
	Error              string     `json:"error,omitempty"`
}

type PlanStatus string

const (
	PlanPlanning  PlanStatus = "planning"
	PlanExecuting PlanStatus = "executing"
	PlanCompleted PlanStatus = "completed"
	PlanFailed    PlanStatus = "failed"
)

// Progress tracks a plan's completion fraction; Completed must equal the
// count of tasks in TaskCompleted (spec §3 invariant d).
type Progress struct {
	Completed  int     `json:"completed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// PlanMetadata carries the planner's bookkeeping about how a plan was built.
type PlanMetadata struct {
	Complexity  Complexity `json:"complexity"`
	Confidence  float64    `json:"confidence"`
	Adaptations int        `json:"adaptations"`
}

// TaskPlan is a DAG of Tasks together with lifecycle state and progress.
// Invariants (spec §3): (a) dependency graph is acyclic; (b) every
// dependency refers to an id present in Tasks; (c) a task enters
// TaskInProgress only once all its dependencies are TaskCompleted; (d)
// Progress.Completed equals the count of TaskCompleted tasks.
type TaskPlan struct {
	ID                string              `json:"id"`
	Title             string              `json:"title"`
	Description       string              `json:"description"`
	Tasks             []*Task             `json:"tasks"`
	Dependencies      map[string][]string `json:"dependencies"`
	EstimatedDuration int                 `json:"estimatedDuration"`
	Status            PlanStatus          `json:"status"`
	Progress          Progress            `json:"progress"`
	Metadata          PlanMetadata        `json:"metadata"`
}

// TaskByID returns the task with the given id, or nil.
func (p *TaskPlan) TaskByID(id string) *Task {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// RecomputeProgress recalculates Progress from the current task statuses,
// preserving invariant (d).
func (p *TaskPlan) RecomputeProgress() {
	completed := 0
	for _, t := range p.Tasks {
		if t.Status == TaskCompleted {
			completed++
		}
	}
	total := len(p.Tasks)
	pct := 0.0
	if total > 0 {
		pct = float64(completed) / float64(total) * 100
	}
	p.Progress = Progress{Completed: completed, Total: total, Percentage: pct}
}

// Package intent implements the C7 Intent Analyzer: a two-stage
// pipeline that turns a raw user utterance into a structured Intent.
// The first stage is a fast, deterministic keyword/regex prefilter; the
// second asks the model to refine the prefilter's guess and merges the
// two field-by-field, keeping whichever side is more confident.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/localcoder/agentkernel/internal/apperrors"
	"github.com/localcoder/agentkernel/internal/domain"
	"github.com/localcoder/agentkernel/internal/llm"
)

// completer is the subset of llm.Client the analyzer depends on, kept
// narrow so tests can inject a fake without standing up an HTTP server.
type completer interface {
	Complete(ctx context.Context, messages []llm.Message, system string, opts llm.Options) (*llm.CompletionResult, error)
}

// actionVerbs maps a recognized leading verb to its risk band (spec §4.5).
var actionVerbs = map[string]domain.RiskLevel{
	"delete":   domain.RiskHigh,
	"remove":   domain.RiskHigh,
	"drop":     domain.RiskHigh,
	"migrate":  domain.RiskHigh,
	"refactor": domain.RiskHigh,
	"deploy":   domain.RiskHigh,
	"create":   domain.RiskMedium,
	"add":      domain.RiskMedium,
	"modify":   domain.RiskMedium,
	"update":   domain.RiskMedium,
	"install":  domain.RiskMedium,
	"explain":  domain.RiskLow,
	"show":     domain.RiskLow,
	"describe": domain.RiskLow,
	"analyze":  domain.RiskLow,
	"list":     domain.RiskLow,
}

var (
	pathLikeRe       = regexp.MustCompile(`[\w./-]+\.(go|ts|tsx|js|jsx|py|rb|java|rs|c|h|cpp|md|yaml|yml|json)\b`)
	dirLikeRe        = regexp.MustCompile(`\b([\w-]+/){1,}[\w-]*\b`)
	identifierLikeRe = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9]*[A-Z][a-zA-Z0-9]*\b|\b[a-z]+_[a-z_]+\b`)
	questionRe       = regexp.MustCompile(`(?i)^(what|why|how|where|who|when|is|are|does|do|can)\b`)
	multiStepRe      = regexp.MustCompile(`(?i)\b(and then|after that|first|then|finally)\b`)
)

// Analyzer produces a structured Intent from free-text input.
type Analyzer struct {
	model completer
}

// New constructs an Analyzer backed by the given completion client.
func New(model completer) *Analyzer {
	return &Analyzer{model: model}
}

// Analyze runs the prefilter, then (if a model client is configured)
// asks the model to refine it, merging field-by-field on confidence.
func (a *Analyzer) Analyze(ctx context.Context, utterance string, ictx domain.IntentContext) (*domain.Intent, error) {
	pre := prefilter(utterance, ictx)

	if a.model == nil {
		return pre, nil
	}

	refined, err := a.refine(ctx, utterance, pre)
	if err != nil {
		// Fall back to the prefilter result, flagged low-confidence
		// per spec §4.5's "on refinement failure" rule.
		pre.Confidence = 0.3
		pre.RequiresClarification = true
		return pre, nil
	}
	return merge(pre, refined), nil
}

// prefilter is a fast, deterministic first pass: verb table for
// action/risk, regexes for entity extraction, no model call.
func prefilter(utterance string, ictx domain.IntentContext) *domain.Intent {
	trimmed := strings.TrimSpace(utterance)
	lower := strings.ToLower(trimmed)

	intentType := domain.IntentTaskRequest
	if questionRe.MatchString(trimmed) {
		intentType = domain.IntentQuestion
	}
	if strings.HasPrefix(trimmed, "/") {
		intentType = domain.IntentCommand
	}

	action := firstWord(lower)
	risk, known := actionVerbs[action]
	if !known {
		risk = domain.RiskLow
	}

	entities := extractEntities(trimmed)
	if entities.Count() > 10 {
		risk = escalate(risk)
	}

	complexity := domain.ComplexitySimple
	multiStep := multiStepRe.MatchString(lower)
	if multiStep {
		complexity = domain.ComplexityModerate
	}
	if entities.Count() > 5 {
		complexity = domain.ComplexityComplex
	}

	confidence := 0.5
	if known {
		confidence += 0.2
	}
	if entities.Count() > 0 {
		confidence += 0.1
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	return &domain.Intent{
		Type:                  intentType,
		Action:                action,
		Entities:              entities,
		Confidence:            confidence,
		Complexity:            complexity,
		MultiStep:             multiStep,
		RiskLevel:             risk,
		RequiresClarification: confidence < 0.4,
		EstimatedDuration:     estimateDuration(complexity),
		Context:               ictx,
	}
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], ".,!?:;")
}

func extractEntities(utterance string) domain.Entities {
	var e domain.Entities
	for _, m := range pathLikeRe.FindAllString(utterance, -1) {
		e.Files = append(e.Files, m)
	}
	for _, m := range dirLikeRe.FindAllString(utterance, -1) {
		if !strings.Contains(m, ".") {
			e.Directories = append(e.Directories, m)
		}
	}
	for _, m := range identifierLikeRe.FindAllString(utterance, -1) {
		if strings.Contains(m, "_") {
			e.Variables = append(e.Variables, m)
		} else {
			e.Functions = append(e.Functions, m)
		}
	}
	return e
}

func escalate(r domain.RiskLevel) domain.RiskLevel {
	switch r {
	case domain.RiskLow:
		return domain.RiskMedium
	case domain.RiskMedium:
		return domain.RiskHigh
	default:
		return domain.RiskHigh
	}
}

func estimateDuration(c domain.Complexity) int {
	switch c {
	case domain.ComplexitySimple:
		return 1
	case domain.ComplexityModerate:
		return 5
	case domain.ComplexityComplex:
		return 15
	default:
		return 30
	}
}

// refineResponse is the JSON shape asked of the model.
type refineResponse struct {
	Type                  string   `json:"type"`
	Action                string   `json:"action"`
	Complexity            string   `json:"complexity"`
	MultiStep             bool     `json:"multiStep"`
	RiskLevel             string   `json:"riskLevel"`
	Confidence            float64  `json:"confidence"`
	RequiresClarification bool     `json:"requiresClarification"`
	SuggestedQuestions    []string `json:"suggestedQuestions,omitempty"`
}

const refineSystemPrompt = `You refine a draft intent classification for a coding assistant.
Respond with a single JSON object matching:
{"type":"task_request|question|command|conversation|clarification","action":"...","complexity":"simple|moderate|complex|expert","multiStep":bool,"riskLevel":"low|medium|high","confidence":0.0-1.0,"requiresClarification":bool,"suggestedQuestions":["..."]}
No prose, JSON only.`

func (a *Analyzer) refine(ctx context.Context, utterance string, pre *domain.Intent) (*refineResponse, error) {
	draft, err := json.Marshal(pre)
	if err != nil {
		return nil, apperrors.Validation("intent", "refine", "failed to encode draft intent", err)
	}

	messages := []llm.Message{
		{Role: "user", Content: fmt.Sprintf("Utterance: %s\nDraft: %s", utterance, string(draft))},
	}
	result, err := a.model.Complete(ctx, messages, refineSystemPrompt, llm.Options{Temperature: 0.1, Format: "json"})
	if err != nil {
		return nil, err
	}

	var refined refineResponse
	if err := json.Unmarshal([]byte(result.Content), &refined); err != nil {
		return nil, apperrors.Model("intent", "refine", "model did not return valid JSON", err)
	}
	return &refined, nil
}

// merge takes the model's refinement for every refined field when its
// confidence is at least the prefilter's, and keeps the prefilter result
// unchanged otherwise. Entities, EstimatedDuration and Context always
// come from the prefilter.
func merge(pre *domain.Intent, refined *refineResponse) *domain.Intent {
	out := *pre

	if refined.Confidence >= pre.Confidence {
		if refined.Type != "" {
			out.Type = domain.IntentType(refined.Type)
		}
		if refined.Action != "" {
			out.Action = refined.Action
		}
		if refined.Complexity != "" {
			out.Complexity = domain.Complexity(refined.Complexity)
		}
		if refined.RiskLevel != "" {
			out.RiskLevel = domain.RiskLevel(refined.RiskLevel)
		}
		out.MultiStep = refined.MultiStep
		out.RequiresClarification = refined.RequiresClarification
		out.SuggestedQuestions = refined.SuggestedQuestions
		out.Confidence = refined.Confidence
	}

	return &out
}

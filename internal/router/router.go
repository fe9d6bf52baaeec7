// Package router implements the C9 NL Router: a pure dispatcher that
// decides whether an utterance is a registered command invocation, a
// task-plan candidate, or plain conversation. It holds no state of its
// own and calls nothing else.
package router

import (
	"strings"

	"github.com/localcoder/agentkernel/internal/domain"
)

// RouteKind identifies which of the three routing destinations applies.
type RouteKind string

const (
	RouteCommand      RouteKind = "command"
	RouteTaskPlan     RouteKind = "task_plan"
	RouteConversation RouteKind = "conversation"
)

// Route is the router's decision for one utterance.
type Route struct {
	Kind        RouteKind
	CommandName string
	Args        []string
	Intent      *domain.Intent
}

// Context carries the collaborators the router needs to resolve a
// command name; it otherwise does not touch any of them.
type Context struct {
	RegisteredCommands map[string]bool
	WorkingDirectory   string
}

// Route classifies an utterance given its already-computed intent.
// Command matching takes priority over task/conversation routing
// (spec §4.7).
func Route(utterance string, intent *domain.Intent, rctx Context) Route {
	if name, args, ok := matchCommand(utterance, rctx.RegisteredCommands); ok {
		return Route{Kind: RouteCommand, CommandName: name, Args: args, Intent: intent}
	}

	if isTaskPlan(intent) {
		return Route{Kind: RouteTaskPlan, Intent: intent}
	}

	return Route{Kind: RouteConversation, Intent: intent}
}

// matchCommand recognizes a "/name arg1 arg2" command line, or a bare
// registered command name used as the first word (near-prefix match).
func matchCommand(utterance string, registered map[string]bool) (string, []string, bool) {
	trimmed := strings.TrimSpace(utterance)
	if trimmed == "" {
		return "", nil, false
	}

	if strings.HasPrefix(trimmed, "/") {
		fields := strings.Fields(strings.TrimPrefix(trimmed, "/"))
		if len(fields) == 0 {
			return "", nil, false
		}
		return fields[0], fields[1:], true
	}

	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return "", nil, false
	}
	if registered[fields[0]] {
		return fields[0], fields[1:], true
	}
	return "", nil, false
}

// isTaskPlan implements spec §4.7's escalation rule.
func isTaskPlan(intent *domain.Intent) bool {
	if intent == nil {
		return false
	}
	return intent.MultiStep ||
		intent.Complexity == domain.ComplexityComplex ||
		intent.Complexity == domain.ComplexityExpert ||
		intent.RiskLevel == domain.RiskHigh
}

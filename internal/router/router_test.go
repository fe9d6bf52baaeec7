package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/localcoder/agentkernel/internal/domain"
)

func TestRoute_MatchesSlashCommand(t *testing.T) {
	route := Route("/status --verbose", nil, Context{})
	assert.Equal(t, RouteCommand, route.Kind)
	assert.Equal(t, "status", route.CommandName)
	assert.Equal(t, []string{"--verbose"}, route.Args)
}

func TestRoute_MatchesRegisteredBareCommand(t *testing.T) {
	route := Route("deploy staging", nil, Context{RegisteredCommands: map[string]bool{"deploy": true}})
	assert.Equal(t, RouteCommand, route.Kind)
	assert.Equal(t, "deploy", route.CommandName)
}

func TestRoute_CommandTakesPriorityOverTaskPlan(t *testing.T) {
	intent := &domain.Intent{MultiStep: true, RiskLevel: domain.RiskHigh}
	route := Route("/status", intent, Context{})
	assert.Equal(t, RouteCommand, route.Kind)
}

func TestRoute_TaskPlanOnMultiStep(t *testing.T) {
	intent := &domain.Intent{MultiStep: true}
	route := Route("do several things", intent, Context{})
	assert.Equal(t, RouteTaskPlan, route.Kind)
}

func TestRoute_TaskPlanOnHighComplexity(t *testing.T) {
	intent := &domain.Intent{Complexity: domain.ComplexityExpert}
	route := Route("redesign the whole auth system", intent, Context{})
	assert.Equal(t, RouteTaskPlan, route.Kind)
}

func TestRoute_TaskPlanOnHighRisk(t *testing.T) {
	intent := &domain.Intent{RiskLevel: domain.RiskHigh}
	route := Route("delete the database", intent, Context{})
	assert.Equal(t, RouteTaskPlan, route.Kind)
}

func TestRoute_ConversationOtherwise(t *testing.T) {
	intent := &domain.Intent{Complexity: domain.ComplexitySimple, RiskLevel: domain.RiskLow}
	route := Route("what does this function do?", intent, Context{})
	assert.Equal(t, RouteConversation, route.Kind)
}

func TestRoute_UnregisteredBareWordIsNotACommand(t *testing.T) {
	route := Route("explain this", nil, Context{RegisteredCommands: map[string]bool{"deploy": true}})
	assert.Equal(t, RouteConversation, route.Kind)
}

package kernel

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localcoder/agentkernel/internal/conversation"
	"github.com/localcoder/agentkernel/internal/domain"
	"github.com/localcoder/agentkernel/internal/editor"
	"github.com/localcoder/agentkernel/internal/intent"
	"github.com/localcoder/agentkernel/internal/orchestrator"
	"github.com/localcoder/agentkernel/internal/planner"
	"github.com/localcoder/agentkernel/internal/tools"
)

type echoTool struct{}

func (echoTool) Info() tools.ToolInfo {
	return tools.ToolInfo{Name: "greet", Category: "test", Version: "1.0.0", Description: "says hi"}
}

func (echoTool) Execute(ctx context.Context, params map[string]interface{}, execCtx tools.ExecutionContext) (tools.ToolResult, error) {
	return tools.ToolResult{Success: true, Data: "hello"}, nil
}

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	dir := t.TempDir()

	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(echoTool{}, false))

	orch := orchestrator.New(reg, 4, 0, 0)
	ed := editor.New(filepath.Join(dir, "backups"))

	return New(Deps{
		Conversation:       conversation.New(),
		Store:              conversation.NewStore(filepath.Join(dir, "sessions")),
		Registry:           reg,
		Orchestrator:       orch,
		Editor:             ed,
		Intent:             intent.New(nil),
		Planner:            planner.New(nil),
		RegisteredCommands: map[string]bool{"greet": true},
	})
}

func TestHandleMessage_RoutesCommandThroughRegistry(t *testing.T) {
	k := newTestKernel(t)
	turn, err := k.HandleMessage(context.Background(), "greet")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, turn.Outcome)
	assert.Contains(t, turn.Response, "hello")
}

func TestHandleMessage_ConversationForPlainQuestion(t *testing.T) {
	k := newTestKernel(t)
	turn, err := k.HandleMessage(context.Background(), "what does this do?")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, turn.Outcome)
}

func TestHandleMessage_HighRiskProducesProposalNotAutoExecution(t *testing.T) {
	k := newTestKernel(t)
	turn, err := k.HandleMessage(context.Background(), "delete a.go b.go c.go d.go e.go f.go g.go h.go i.go j.go k.go")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomePending, turn.Outcome)
	assert.Equal(t, PlanStateProposal, k.ActivePlanState)
	assert.NotNil(t, k.ActivePlan)
}

func TestApprovePlan_ExecutesAfterApproval(t *testing.T) {
	k := newTestKernel(t)
	_, err := k.HandleMessage(context.Background(), "delete a.go b.go c.go d.go e.go f.go g.go h.go i.go j.go k.go")
	require.NoError(t, err)
	require.Equal(t, PlanStateProposal, k.ActivePlanState)

	response, _, outcome := k.ApprovePlan(context.Background())
	assert.NotEmpty(t, response)
	assert.Contains(t, []domain.Outcome{domain.OutcomeSuccess, domain.OutcomePartial}, outcome)
	assert.Equal(t, PlanStateCompleted, k.ActivePlanState)
}

func TestRejectPlan_ClearsActivePlan(t *testing.T) {
	k := newTestKernel(t)
	_, err := k.HandleMessage(context.Background(), "delete a.go b.go c.go d.go e.go f.go g.go h.go i.go j.go k.go")
	require.NoError(t, err)

	k.RejectPlan()
	assert.Equal(t, PlanStateRejected, k.ActivePlanState)
	assert.Nil(t, k.ActivePlan)
}

func TestHandleMessage_CachesSuccessfulResponseByIntentKey(t *testing.T) {
	k := newTestKernel(t)
	_, err := k.HandleMessage(context.Background(), "greet")
	require.NoError(t, err)
	assert.Len(t, k.cache, 1)

	turn2, err := k.HandleMessage(context.Background(), "greet")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, turn2.Outcome)
}

func TestProposeEdit_DoesNotTouchDiskUntilApplied(t *testing.T) {
	k := newTestKernel(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	edit, res := k.ProposeEdit(path, "v2", "bump", editor.LevelSyntax)
	require.True(t, res.Success)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(content))

	results := k.ApplyPendingEdits([]string{edit.ID})
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)

	content, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(content))
}

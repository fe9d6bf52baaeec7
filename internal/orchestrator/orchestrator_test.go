package orchestrator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/localcoder/agentkernel/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoTool returns its "value" parameter wrapped in {"data": {"x": value}}.
type echoTool struct {
	calls *int32
	delay time.Duration
	fail  bool
}

func (e *echoTool) Info() tools.ToolInfo {
	return tools.ToolInfo{
		Name: "echo", Category: "test", Version: "1.0.0", Description: "echoes input",
		Parameters: []tools.ToolParameter{{Name: "value", Type: "string", Required: false, Description: "value to echo"}},
	}
}

func (e *echoTool) Execute(ctx context.Context, params map[string]interface{}, execCtx tools.ExecutionContext) (tools.ToolResult, error) {
	if e.calls != nil {
		atomic.AddInt32(e.calls, 1)
	}
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return tools.ToolResult{Success: false, Error: "cancelled"}, ctx.Err()
		}
	}
	if e.fail {
		return tools.ToolResult{Success: false, Error: "forced failure"}, nil
	}
	return tools.ToolResult{Success: true, Data: map[string]interface{}{"x": params["value"]}}, nil
}

func newTestRegistry(t *testing.T, tool tools.Tool) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tool, false))
	return reg
}

func TestCreatePlan_RejectsCycle(t *testing.T) {
	_, err := CreatePlan([]ExecutionSpec{
		{ToolName: "echo", Dependencies: []string{"1"}},
		{ToolName: "echo", Dependencies: []string{"0"}},
	})
	assert.Error(t, err)
}

func TestCreatePlan_RejectsDanglingDependency(t *testing.T) {
	_, err := CreatePlan([]ExecutionSpec{
		{ToolName: "echo", Dependencies: []string{"99"}},
	})
	assert.Error(t, err)
}

func TestExecuteOrchestration_RunsInDependencyOrder(t *testing.T) {
	reg := newTestRegistry(t, &echoTool{})
	orch := New(reg, 4, 0, 0)

	plan, err := CreatePlan([]ExecutionSpec{
		{ToolName: "echo", Parameters: map[string]interface{}{"value": "first"}},
		{ToolName: "echo", Dependencies: []string{"0"}, Parameters: map[string]interface{}{
			"value": map[string]interface{}{"from": "exec-1", "path": "x"},
		}},
	})
	require.NoError(t, err)

	results, err := orch.ExecuteOrchestration(context.Background(), plan, tools.ExecutionContext{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "first", results["exec-2"].Data.(map[string]interface{})["x"])
	assert.Equal(t, StatusCompleted, plan.Executions["exec-1"].Status)
	assert.Equal(t, StatusCompleted, plan.Executions["exec-2"].Status)
}

func TestExecuteOrchestration_FailurePropagatesBlocked(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(&echoTool{fail: true}, false))

	orch := New(reg, 4, 0, 0)
	plan, err := CreatePlan([]ExecutionSpec{
		{ToolName: "echo"},
		{ToolName: "echo", Dependencies: []string{"0"}},
	})
	require.NoError(t, err)

	_, err = orch.ExecuteOrchestration(context.Background(), plan, tools.ExecutionContext{})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, plan.Executions["exec-1"].Status)
	assert.Equal(t, StatusBlocked, plan.Executions["exec-2"].Status)
}

func TestExecuteOrchestration_RunsAllUnderConcurrencyBound(t *testing.T) {
	var calls int32
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(&echoTool{calls: &calls, delay: 50 * time.Millisecond}, false))

	orch := New(reg, 2, 0, 0)
	specs := make([]ExecutionSpec, 6)
	for i := range specs {
		specs[i] = ExecutionSpec{ToolName: "echo"}
	}
	plan, err := CreatePlan(specs)
	require.NoError(t, err)

	results, err := orch.ExecuteOrchestration(context.Background(), plan, tools.ExecutionContext{})
	require.NoError(t, err)
	assert.Len(t, results, 6)
	assert.Equal(t, int32(6), atomic.LoadInt32(&calls))
}

func TestExecuteOrchestration_CancellationBlocksPending(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(&echoTool{delay: 2 * time.Second}, false))

	orch := New(reg, 1, 0, 0)
	plan, err := CreatePlan([]ExecutionSpec{
		{ToolName: "echo"},
		{ToolName: "echo"},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = orch.ExecuteOrchestration(ctx, plan, tools.ExecutionContext{})
	require.NoError(t, err)

	progress := plan.Progress()
	assert.Equal(t, 2, progress.Blocked+progress.Completed+progress.Failed)
}

func TestExecuteTool_CachesSuccessfulResult(t *testing.T) {
	var calls int32
	reg := newTestRegistry(t, &echoTool{calls: &calls})
	orch := New(reg, 4, 10, time.Minute)

	params := map[string]interface{}{"value": "cached"}
	_, err := orch.ExecuteTool(context.Background(), "echo", params, tools.ExecutionContext{ProjectRoot: "/r", WorkingDirectory: "/r"})
	require.NoError(t, err)
	_, err = orch.ExecuteTool(context.Background(), "echo", params, tools.ExecutionContext{ProjectRoot: "/r", WorkingDirectory: "/r"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

package intent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localcoder/agentkernel/internal/domain"
	"github.com/localcoder/agentkernel/internal/llm"
)

type fakeCompleter struct {
	content string
	err     error
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []llm.Message, system string, opts llm.Options) (*llm.CompletionResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResult{Content: f.content}, nil
}

func TestPrefilter_ClassifiesHighRiskDelete(t *testing.T) {
	a := New(nil)
	result, err := a.Analyze(context.Background(), "delete the auth.go file", domain.IntentContext{})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, result.RiskLevel)
	assert.Equal(t, "delete", result.Action)
	assert.Contains(t, result.Entities.Files, "auth.go")
}

func TestPrefilter_ClassifiesLowRiskQuestion(t *testing.T) {
	a := New(nil)
	result, err := a.Analyze(context.Background(), "how does the router dispatch commands?", domain.IntentContext{})
	require.NoError(t, err)
	assert.Equal(t, domain.IntentQuestion, result.Type)
	assert.Equal(t, domain.RiskLow, result.RiskLevel)
}

func TestPrefilter_EscalatesRiskOnManyEntities(t *testing.T) {
	a := New(nil)
	utterance := "update a.go b.go c.go d.go e.go f.go g.go h.go i.go j.go k.go"
	result, err := a.Analyze(context.Background(), utterance, domain.IntentContext{})
	require.NoError(t, err)
	assert.Greater(t, result.Entities.Count(), 10)
	assert.Equal(t, domain.RiskHigh, result.RiskLevel, "medium risk verb + >10 entities should escalate one level")
}

func TestAnalyze_MergesModelRefinementWhenMoreConfident(t *testing.T) {
	refined := refineResponse{
		Type:       "task_request",
		Action:     "refactor",
		Complexity: "complex",
		RiskLevel:  "high",
		Confidence: 0.95,
	}
	body, err := json.Marshal(refined)
	require.NoError(t, err)

	a := New(&fakeCompleter{content: string(body)})
	result, err := a.Analyze(context.Background(), "clean up the auth module", domain.IntentContext{})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, result.RiskLevel)
	assert.Equal(t, domain.ComplexityComplex, result.Complexity)
	assert.Equal(t, 0.95, result.Confidence)
}

func TestAnalyze_FallsBackToPrefilterOnModelJSONFailure(t *testing.T) {
	a := New(&fakeCompleter{content: "not json at all"})
	result, err := a.Analyze(context.Background(), "create a new handler", domain.IntentContext{})
	require.NoError(t, err)
	assert.Equal(t, 0.3, result.Confidence)
	assert.True(t, result.RequiresClarification)
}

func TestAnalyze_FallsBackToPrefilterOnModelError(t *testing.T) {
	a := New(&fakeCompleter{err: assertErr{}})
	result, err := a.Analyze(context.Background(), "create a new handler", domain.IntentContext{})
	require.NoError(t, err)
	assert.Equal(t, 0.3, result.Confidence)
	assert.True(t, result.RequiresClarification)
}

type assertErr struct{}

func (assertErr) Error() string { return "model unavailable" }

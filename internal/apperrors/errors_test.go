package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	err := Validation("intent", "parse", "missing field", nil)
	assert.Contains(t, err.Error(), "intent")
	assert.Contains(t, err.Error(), "missing field")
}

func TestError_WrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := IO("editor", "applyEdit", "write failed", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "disk full")
}

func TestError_IsKind(t *testing.T) {
	err := Safety("execute", "run", "denylisted", nil)
	wrapped := fmt.Errorf("command rejected: %w", err)

	assert.True(t, IsKind(wrapped, KindSafety))
	assert.False(t, IsKind(wrapped, KindPlan))
}

func TestError_IsMatchesSameKindOnly(t *testing.T) {
	a := Plan("planner", "validate", "cycle detected", nil)
	b := Plan("planner", "validate", "dangling dependency", nil)

	assert.True(t, errors.Is(a, b))

	c := Tool("orchestrator", "execute", "tool failed", nil)
	assert.False(t, errors.Is(a, c))
}

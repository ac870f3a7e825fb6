package contract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStepLimiterAllowsUpToBudget(t *testing.T) {
	limiter := NewStepLimiter(3, 1000)

	require.NoError(t, limiter.Step())
	require.NoError(t, limiter.Step())
	require.NoError(t, limiter.Step())
	require.Equal(t, 3, limiter.Used())
}

func TestStepLimiterTrapsOnceBudgetExceeded(t *testing.T) {
	limiter := NewStepLimiter(2, 1000)

	require.NoError(t, limiter.Step())
	require.NoError(t, limiter.Step())
	require.Error(t, limiter.Step(), "the third step must exceed a budget of 2")
}

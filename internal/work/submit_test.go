package work

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSubmit_DeliversExactlyOneOutcome(t *testing.T) {
	ch := Submit(context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	})

	outcome, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, 42, outcome.Value)
	assert.NoError(t, outcome.Err)

	_, ok = <-ch
	assert.False(t, ok, "channel is closed after the outcome")
}

func TestSubmit_Error(t *testing.T) {
	boom := errors.New("boom")
	outcome := <-Submit(context.Background(), func(ctx context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, outcome.Err, boom)
}

func TestSubmit_PanicBecomesError(t *testing.T) {
	outcome := <-Submit(context.Background(), func(ctx context.Context) (*int, error) {
		panic("division by zero")
	})
	require.Error(t, outcome.Err)
	assert.Contains(t, outcome.Err.Error(), "division by zero")
	assert.Nil(t, outcome.Value)
}

func TestSubmit_PassesContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := <-Submit(ctx, func(ctx context.Context) (int, error) {
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, outcome.Err, context.Canceled)
}

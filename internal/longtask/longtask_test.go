package longtask

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsValueOnSuccess(t *testing.T) {
	res := Run(context.Background(), Config{Name: "ok"}, func(ctx context.Context, report func(string)) (any, error) {
		report("halfway")
		return 42, nil
	})
	require.NoError(t, res.Err)
	assert.False(t, res.Panicked)
	assert.Equal(t, 42, res.Value)
}

func TestRunCapturesError(t *testing.T) {
	boom := errors.New("boom")
	res := Run(context.Background(), Config{Name: "fail"}, func(ctx context.Context, report func(string)) (any, error) {
		return nil, boom
	})
	assert.Equal(t, boom, res.Err)
	assert.False(t, res.Panicked)
}

func TestRunRecoversPanic(t *testing.T) {
	res := Run(context.Background(), Config{Name: "panicky"}, func(ctx context.Context, report func(string)) (any, error) {
		panic("kaboom")
	})
	require.Error(t, res.Err)
	assert.True(t, res.Panicked)
}

func TestRunReturnsOnContextCancelBeforeCompletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	res := func() Result {
		go func() {
			<-started
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		return Run(ctx, Config{Name: "slow"}, func(ctx context.Context, report func(string)) (any, error) {
			close(started)
			time.Sleep(time.Second)
			return "done", nil
		})
	}()
	require.Error(t, res.Err)
}

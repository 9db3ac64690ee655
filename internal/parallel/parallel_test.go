package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForEach(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}

	var counter atomic.Int64
	err := ForEach(context.Background(), 64, func(_ context.Context, _ int) error {
		counter.Add(1)
		return nil
	}, cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(64), counter.Load())
}

func TestForEach_ReturnsFirstError(t *testing.T) {
	boom := errors.New("copy failed")
	for _, cfg := range []Config{
		{Enabled: false},
		{Enabled: true, NumWorkers: 4, MinChunkSize: 1},
	} {
		err := ForEach(context.Background(), 16, func(_ context.Context, i int) error {
			if i == 7 {
				return boom
			}
			return nil
		}, cfg)
		assert.ErrorIs(t, err, boom)
	}
}

func TestForEach_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ForEach(ctx, 8, func(_ context.Context, _ int) error { return nil }, Config{Enabled: false})
	assert.ErrorIs(t, err, context.Canceled)
}

package clock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscascade/cascade/optree/clock"
)

func Test_Fake_Delay_Advances(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake()
	done := make(chan error, 1)

	go func() {
		done <- fake.Delay(context.Background(), 100*time.Millisecond)
	}()

	fake.BlockUntil(1)
	fake.Advance(100 * time.Millisecond)

	require.NoError(t, <-done)
}

func Test_Fake_Delay_ZeroIsNoop(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake()
	assert.NoError(t, fake.Delay(context.Background(), 0))
}

func Test_Fake_Delay_CanceledContext(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fake.Delay(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

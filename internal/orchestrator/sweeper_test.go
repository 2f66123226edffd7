package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/cuongbtq/push-orchestrator/internal/job"
	"github.com/cuongbtq/push-orchestrator/internal/store"
	"github.com/cuongbtq/push-orchestrator/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_RunSweepsUntilCancelled(t *testing.T) {
	clock := newFakeClock()
	o := newTestOrchestrator(t, store.NewMemoryStore(), clock)

	_, err := o.Create(context.Background(), "done", "c", job.TargetA)
	require.NoError(t, err)
	_, err = o.UpdateTargetStatus(context.Background(), "done", job.TargetA, job.SubStatusSuccess, nil)
	require.NoError(t, err)
	clock.Advance(DefaultCompletedTTL + time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewSweeper(o, time.Hour, logger.NewNop()).Run(ctx)
	}()

	assert.Eventually(t, func() bool { return o.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestNewSweeper_DefaultInterval(t *testing.T) {
	s := NewSweeper(nil, 0, logger.NewNop())
	assert.Equal(t, DefaultSweepInterval, s.interval)
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/push-orchestrator/internal/job"
	"github.com/cuongbtq/push-orchestrator/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	routingKey  string
	body        []byte
	contentType string
}

type fakeBroker struct {
	mu       sync.Mutex
	messages []published
	fail     bool
	block    chan struct{}
}

func (b *fakeBroker) PublishWithRetry(_ context.Context, routingKey string, body []byte, contentType string) error {
	if b.block != nil {
		<-b.block
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("channel closed")
	}
	b.messages = append(b.messages, published{routingKey: routingKey, body: body, contentType: contentType})
	return nil
}

func (b *fakeBroker) sent() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.messages...)
}

func newJob(t *testing.T, id string) job.Job {
	t.Helper()
	j, err := job.New(id, "c", job.TargetBoth, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return j
}

func TestPublisher_PublishesInOrder(t *testing.T) {
	broker := &fakeBroker{}
	p := NewPublisher(broker, logger.NewNop(), 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	j := newJob(t, "j1")
	p.JobChanged(j)
	_, err := j.SetSubStatus(job.TargetA, job.SubStatusFailed, nil, time.Now())
	require.NoError(t, err)
	p.JobChanged(j)

	require.Eventually(t, func() bool { return len(broker.sent()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	msgs := broker.sent()
	assert.Equal(t, "job.pending", msgs[0].routingKey)
	assert.Equal(t, "job.failed", msgs[1].routingKey)
	assert.Equal(t, "application/json", msgs[1].contentType)

	var event Event
	require.NoError(t, json.Unmarshal(msgs[1].body, &event))
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "j1", event.Job.JobID)
	assert.Equal(t, job.SubStatusFailed, event.Job.TargetAStatus)
}

func TestPublisher_DropsWhenBufferFull(t *testing.T) {
	broker := &fakeBroker{}
	p := NewPublisher(broker, logger.NewNop(), 2)

	for _, id := range []string{"a", "b", "c", "d"} {
		p.JobChanged(newJob(t, id))
	}
	assert.Len(t, p.queue, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))

	msgs := broker.sent()
	require.Len(t, msgs, 2, "queued events are drained on shutdown")
}

func TestPublisher_FailureDoesNotStopRun(t *testing.T) {
	broker := &fakeBroker{fail: true}
	p := NewPublisher(broker, logger.NewNop(), 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.JobChanged(newJob(t, "j1"))
	require.Eventually(t, func() bool { return len(p.queue) == 0 }, time.Second, 5*time.Millisecond)

	broker.mu.Lock()
	broker.fail = false
	broker.mu.Unlock()
	p.JobChanged(newJob(t, "j2"))
	require.Eventually(t, func() bool {
		for _, m := range broker.sent() {
			var event Event
			if json.Unmarshal(m.body, &event) == nil && event.Job.JobID == "j2" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestPublisher_JobChangedNeverBlocks(t *testing.T) {
	broker := &fakeBroker{block: make(chan struct{})}
	defer close(broker.block)
	p := NewPublisher(broker, logger.NewNop(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	j := newJob(t, "j")
	finished := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			p.JobChanged(j)
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("JobChanged blocked on a stalled broker")
	}
}

func TestRoutingKey(t *testing.T) {
	j := newJob(t, "j1")
	assert.Equal(t, "job.pending", RoutingKey(j))
	j.OverallStatus = job.StatusTargetBDone
	assert.Equal(t, "job.targetB-done", RoutingKey(j))
}

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/push-orchestrator/internal/job"
	"github.com/cuongbtq/push-orchestrator/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	messages []Message
	failSend bool
	closed   int
	sends    int
}

func (c *fakeConn) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends++
	if c.failSend {
		return errors.New("broken pipe")
	}
	c.messages = append(c.messages, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) received() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

func (c *fakeConn) types() []MessageType {
	msgs := c.received()
	out := make([]MessageType, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

func (c *fakeConn) setFailSend(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failSend = v
}

type fakeSource struct {
	jobs    map[string]job.Job
	listErr error
}

func (s *fakeSource) GetStatus(_ context.Context, jobID string) (job.Job, error) {
	j, ok := s.jobs[jobID]
	if !ok {
		return job.Job{}, fmt.Errorf("%w: %s", job.ErrJobNotFound, jobID)
	}
	return j, nil
}

func (s *fakeSource) ListActive(context.Context) ([]job.Job, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []job.Job
	for _, j := range s.jobs {
		if !j.IsTerminal() {
			out = append(out, j)
		}
	}
	return out, nil
}

func mustJob(t *testing.T, id string) job.Job {
	t.Helper()
	j, err := job.New(id, "commit-"+id, job.TargetBoth, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return j
}

func newTestRegistry(t *testing.T, jobs ...job.Job) *Registry {
	t.Helper()
	source := &fakeSource{jobs: make(map[string]job.Job)}
	for _, j := range jobs {
		source.jobs[j.JobID] = j
	}
	return NewRegistry(source, logger.NewNop())
}

func TestRegistry_RegisterSendsConnected(t *testing.T) {
	r := newTestRegistry(t)
	conn := &fakeConn{}

	s := r.Register(conn, "user-1")

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "user-1", s.UserID)
	assert.Equal(t, 1, r.Count())
	msgs := conn.received()
	require.Len(t, msgs, 1)
	assert.Equal(t, MessageConnected, msgs[0].Type)
	assert.NotZero(t, msgs[0].Timestamp)
}

func TestRegistry_SubscribeReplaysCurrentState(t *testing.T) {
	r := newTestRegistry(t, mustJob(t, "j1"))
	conn := &fakeConn{}
	s := r.Register(conn, "")

	r.HandleMessage(context.Background(), s, []byte(`{"type":"subscribe","jobId":"j1"}`))

	msgs := conn.received()
	require.Len(t, msgs, 2, "connected ack plus exactly one replay")
	assert.Equal(t, MessageStatus, msgs[1].Type)
	assert.Equal(t, "j1", msgs[1].JobID)
	replayed, ok := msgs[1].Data.(job.Job)
	require.True(t, ok)
	assert.Equal(t, job.StatusPending, replayed.OverallStatus)
}

func TestRegistry_SubscribeUnknownJobWaitsForBroadcast(t *testing.T) {
	r := newTestRegistry(t)
	conn := &fakeConn{}
	s := r.Register(conn, "")

	r.HandleMessage(context.Background(), s, []byte(`{"type":"subscribe","jobId":"later"}`))
	assert.Equal(t, []MessageType{MessageConnected}, conn.types())

	r.Broadcast(mustJob(t, "later"))
	assert.Equal(t, []MessageType{MessageConnected, MessageStatus}, conn.types())
}

func TestRegistry_BroadcastFiltersBySubscription(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	watcher := &fakeConn{}
	everything := &fakeConn{}
	idle := &fakeConn{}
	r.HandleMessage(ctx, r.Register(watcher, ""), []byte(`{"type":"subscribe","jobId":"j1"}`))
	r.HandleMessage(ctx, r.Register(everything, ""), []byte(`{"type":"subscribe","jobId":"all"}`))
	r.Register(idle, "")

	r.Broadcast(mustJob(t, "j1"))
	r.Broadcast(mustJob(t, "j2"))

	assert.Equal(t, []MessageType{MessageConnected, MessageStatus}, watcher.types())
	assert.Equal(t, []MessageType{MessageConnected, MessageStatus, MessageStatus}, everything.types())
	assert.Equal(t, []MessageType{MessageConnected}, idle.types())
}

func TestRegistry_Unsubscribe(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	conn := &fakeConn{}
	s := r.Register(conn, "")

	r.HandleMessage(ctx, s, []byte(`{"type":"subscribe","jobId":"j1"}`))
	r.HandleMessage(ctx, s, []byte(`{"type":"unsubscribe","jobId":"j1"}`))
	r.Broadcast(mustJob(t, "j1"))

	assert.Equal(t, []MessageType{MessageConnected}, conn.types())
}

func TestRegistry_PingAndListActive(t *testing.T) {
	done := mustJob(t, "done")
	_, err := done.SetSubStatus(job.TargetA, job.SubStatusFailed, nil, time.Now())
	require.NoError(t, err)

	r := newTestRegistry(t, mustJob(t, "active"), done)
	ctx := context.Background()
	conn := &fakeConn{}
	s := r.Register(conn, "")

	r.HandleMessage(ctx, s, []byte(`{"type":"ping"}`))
	r.HandleMessage(ctx, s, []byte(`{"type":"list-active"}`))

	msgs := conn.received()
	require.Len(t, msgs, 3)
	assert.Equal(t, MessagePong, msgs[1].Type)
	assert.Equal(t, MessageActiveJobs, msgs[2].Type)
	active, ok := msgs[2].Data.([]job.Job)
	require.True(t, ok)
	require.Len(t, active, 1)
	assert.Equal(t, "active", active[0].JobID)
}

func TestRegistry_ListActiveEmptyIsArray(t *testing.T) {
	r := newTestRegistry(t)
	conn := &fakeConn{}
	s := r.Register(conn, "")

	r.HandleMessage(context.Background(), s, []byte(`{"type":"list-active"}`))

	msgs := conn.received()
	require.Len(t, msgs, 2)
	assert.NotNil(t, msgs[1].Data)
	assert.Empty(t, msgs[1].Data)
}

func TestRegistry_MalformedMessagesAreIgnored(t *testing.T) {
	r := newTestRegistry(t, mustJob(t, "j1"))
	conn := &fakeConn{}
	s := r.Register(conn, "")

	inputs := []string{
		`not json`,
		`{"type":"explode"}`,
		`{"type":"subscribe"}`,
		`{"type":"unsubscribe"}`,
		`[]`,
	}
	for _, in := range inputs {
		r.HandleMessage(context.Background(), s, []byte(in))
	}

	assert.Equal(t, 1, r.Count())
	assert.Equal(t, 0, conn.closed)
	assert.Equal(t, []MessageType{MessageConnected}, conn.types())

	r.HandleMessage(context.Background(), s, []byte(`{"type":"ping"}`))
	assert.Equal(t, []MessageType{MessageConnected, MessagePong}, conn.types())
}

func TestRegistry_SendFailureRemovesSession(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	healthy := &fakeConn{}
	broken := &fakeConn{}
	r.HandleMessage(ctx, r.Register(healthy, ""), []byte(`{"type":"subscribe","jobId":"all"}`))
	r.HandleMessage(ctx, r.Register(broken, ""), []byte(`{"type":"subscribe","jobId":"all"}`))
	require.Equal(t, 2, r.Count())

	broken.setFailSend(true)
	r.Broadcast(mustJob(t, "j1"))

	assert.Equal(t, 1, r.Count())
	assert.Equal(t, 1, broken.closed)
	assert.Equal(t, []MessageType{MessageConnected, MessageStatus}, healthy.types())

	attempts := broken.sends
	r.Broadcast(mustJob(t, "j2"))
	assert.Equal(t, attempts, broken.sends, "dropped session must not be retried")
	assert.Len(t, healthy.received(), 3)
}

func TestRegistry_ReplyFailureRemovesSession(t *testing.T) {
	r := newTestRegistry(t)
	conn := &fakeConn{}
	s := r.Register(conn, "")

	conn.setFailSend(true)
	r.HandleMessage(context.Background(), s, []byte(`{"type":"ping"}`))

	assert.Equal(t, 0, r.Count())
	assert.Equal(t, 1, conn.closed)
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	conn := &fakeConn{}
	s := r.Register(conn, "")

	r.Unregister(s)
	r.Unregister(s)

	assert.Equal(t, 0, r.Count())
	assert.Equal(t, 1, conn.closed)

	// subscribing after removal is ignored
	r.HandleMessage(context.Background(), s, []byte(`{"type":"subscribe","jobId":"all"}`))
	r.Broadcast(mustJob(t, "j1"))
	assert.Equal(t, []MessageType{MessageConnected}, conn.types())
}

func TestRegistry_CloseAll(t *testing.T) {
	r := newTestRegistry(t)
	conns := []*fakeConn{{}, {}, {}}
	for _, c := range conns {
		r.Register(c, "")
	}

	r.CloseAll()

	assert.Equal(t, 0, r.Count())
	for _, c := range conns {
		assert.Equal(t, 1, c.closed)
	}
}

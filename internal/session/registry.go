package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/push-orchestrator/internal/job"
	"github.com/cuongbtq/push-orchestrator/internal/metrics"
	"github.com/google/uuid"
)

// Conn is one live viewer connection. Send must not block: a connection that
// cannot accept a message returns an error and is dropped.
type Conn interface {
	Send(msg Message) error
	Close() error
}

// JobSource provides the job snapshots replayed to sessions
type JobSource interface {
	GetStatus(ctx context.Context, jobID string) (job.Job, error)
	ListActive(ctx context.Context) ([]job.Job, error)
}

// Session is a registered connection and its subscriptions
type Session struct {
	ID          string
	UserID      string
	ConnectedAt time.Time

	conn          Conn
	subscriptions map[string]struct{}
}

func (s *Session) subscribed(jobID string) bool {
	if _, ok := s.subscriptions[SubscribeAll]; ok {
		return true
	}
	_, ok := s.subscriptions[jobID]
	return ok
}

// Registry tracks live sessions and fans job changes out to them.
//
// Broadcast runs with the orchestrator lock held, so the registry never
// calls back into the JobSource while holding its own lock.
type Registry struct {
	source JobSource
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry
func NewRegistry(source JobSource, logger *slog.Logger) *Registry {
	return &Registry{
		source:   source,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Register adds a connection with no subscriptions and acknowledges it
func (r *Registry) Register(conn Conn, userID string) *Session {
	s := &Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		ConnectedAt:   r.now(),
		conn:          conn,
		subscriptions: make(map[string]struct{}),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	count := len(r.sessions)
	r.mu.Unlock()
	metrics.LiveConnections.Set(float64(count))

	r.logger.Info("Live connection registered",
		slog.String("session_id", s.ID),
		slog.String("user_id", userID),
	)

	r.deliver(s, newMessage(MessageConnected, "", map[string]string{
		"sessionId": s.ID,
		"userId":    userID,
	}, r.now()))
	return s
}

// Unregister removes the session and closes its connection. It is safe to
// call more than once.
func (r *Registry) Unregister(s *Session) {
	if r.remove(s) {
		r.logger.Info("Live connection unregistered",
			slog.String("session_id", s.ID),
		)
	}
}

// Count returns the number of registered sessions
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// HandleMessage dispatches one inbound message. Malformed or unknown
// messages are logged and ignored.
func (r *Registry) HandleMessage(ctx context.Context, s *Session, raw []byte) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		r.logger.Warn("Ignoring malformed live message",
			slog.String("session_id", s.ID),
			slog.Any("error", err),
		)
		return
	}

	switch req.Type {
	case RequestSubscribe:
		r.subscribe(ctx, s, req.JobID)
	case RequestUnsubscribe:
		if req.JobID == "" {
			r.ignore(s, req, "missing jobId")
			return
		}
		r.mu.Lock()
		delete(s.subscriptions, req.JobID)
		r.mu.Unlock()
	case RequestPing:
		r.deliver(s, newMessage(MessagePong, "", nil, r.now()))
	case RequestListActive:
		r.listActive(ctx, s)
	default:
		r.ignore(s, req, "unknown message type")
	}
}

func (r *Registry) ignore(s *Session, req Request, reason string) {
	r.logger.Warn("Ignoring live message",
		slog.String("session_id", s.ID),
		slog.String("type", string(req.Type)),
		slog.String("reason", reason),
	)
}

func (r *Registry) subscribe(ctx context.Context, s *Session, jobID string) {
	if jobID == "" {
		r.ignore(s, Request{Type: RequestSubscribe}, "missing jobId")
		return
	}

	r.mu.Lock()
	if _, ok := r.sessions[s.ID]; !ok {
		r.mu.Unlock()
		return
	}
	s.subscriptions[jobID] = struct{}{}
	r.mu.Unlock()

	if jobID == SubscribeAll {
		return
	}

	// subscription is recorded first so a change racing with the replay is
	// still delivered
	current, err := r.source.GetStatus(ctx, jobID)
	if err != nil {
		if !errors.Is(err, job.ErrJobNotFound) {
			r.logger.Error("Failed to load job for subscription replay",
				slog.String("session_id", s.ID),
				slog.String("job_id", jobID),
				slog.Any("error", err),
			)
		}
		return
	}
	r.deliver(s, newMessage(MessageStatus, jobID, current, r.now()))
}

func (r *Registry) listActive(ctx context.Context, s *Session) {
	active, err := r.source.ListActive(ctx)
	if err != nil {
		r.logger.Error("Failed to list active jobs",
			slog.String("session_id", s.ID),
			slog.Any("error", err),
		)
		return
	}
	if active == nil {
		active = []job.Job{}
	}
	r.deliver(s, newMessage(MessageActiveJobs, "", active, r.now()))
}

// Broadcast sends the job snapshot to every session subscribed to it or to
// all jobs. Sessions whose send fails are removed; delivery to the others
// continues.
func (r *Registry) Broadcast(j job.Job) {
	msg := newMessage(MessageStatus, j.JobID, j, r.now())

	var dead []*Session
	r.mu.Lock()
	for _, s := range r.sessions {
		if !s.subscribed(j.JobID) {
			continue
		}
		if err := s.conn.Send(msg); err != nil {
			r.logSendFailure(s, msg, err)
			dead = append(dead, s)
			continue
		}
		metrics.MessagesSent.WithLabelValues(string(msg.Type)).Inc()
	}
	r.mu.Unlock()

	for _, s := range dead {
		r.remove(s)
	}
}

// JobChanged broadcasts committed job changes
func (r *Registry) JobChanged(j job.Job) {
	r.Broadcast(j)
}

// CloseAll drops every session
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		r.remove(s)
	}
}

func (r *Registry) deliver(s *Session, msg Message) {
	if err := s.conn.Send(msg); err != nil {
		r.logSendFailure(s, msg, err)
		r.remove(s)
		return
	}
	metrics.MessagesSent.WithLabelValues(string(msg.Type)).Inc()
}

func (r *Registry) logSendFailure(s *Session, msg Message, err error) {
	metrics.SendFailures.Inc()
	r.logger.Warn("Dropping live connection after send failure",
		slog.String("session_id", s.ID),
		slog.String("type", string(msg.Type)),
		slog.Any("error", err),
	)
}

func (r *Registry) remove(s *Session) bool {
	r.mu.Lock()
	_, ok := r.sessions[s.ID]
	delete(r.sessions, s.ID)
	count := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return false
	}
	metrics.LiveConnections.Set(float64(count))
	if err := s.conn.Close(); err != nil {
		r.logger.Debug("Failed to close live connection",
			slog.String("session_id", s.ID),
			slog.Any("error", err),
		)
	}
	return true
}

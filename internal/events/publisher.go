package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cuongbtq/push-orchestrator/internal/job"
	"github.com/cuongbtq/push-orchestrator/internal/metrics"
	"github.com/google/uuid"
)

const (
	defaultBufferSize     = 256
	defaultPublishTimeout = 30 * time.Second
	contentTypeJSON       = "application/json"
)

// Broker publishes a message under a routing key
type Broker interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// Event is the payload published for every committed job change
type Event struct {
	EventID    string    `json:"eventId"`
	OccurredAt time.Time `json:"occurredAt"`
	Job        job.Job   `json:"job"`
}

// RoutingKey returns the routing key for a job in its current state
func RoutingKey(j job.Job) string {
	return "job." + string(j.OverallStatus)
}

// Publisher forwards job changes to the broker. JobChanged only enqueues;
// a single Run goroutine publishes so events leave in commit order.
type Publisher struct {
	broker  Broker
	logger  *slog.Logger
	timeout time.Duration
	queue   chan job.Job
}

// NewPublisher creates a publisher with a bounded buffer
func NewPublisher(broker Broker, logger *slog.Logger, bufferSize int) *Publisher {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Publisher{
		broker:  broker,
		logger:  logger,
		timeout: defaultPublishTimeout,
		queue:   make(chan job.Job, bufferSize),
	}
}

// JobChanged enqueues the snapshot, dropping it when the buffer is full
func (p *Publisher) JobChanged(j job.Job) {
	select {
	case p.queue <- j:
	default:
		metrics.EventsPublished.WithLabelValues("dropped").Inc()
		p.logger.Warn("Event buffer full, dropping job event",
			slog.String("job_id", j.JobID),
			slog.String("overall_status", string(j.OverallStatus)),
		)
	}
}

// Run publishes queued events until ctx is done, then drains what is left
// with a bounded grace period
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("Job event publisher started")

	for {
		select {
		case <-ctx.Done():
			p.drain()
			p.logger.Info("Job event publisher stopped")
			return nil
		case j := <-p.queue:
			p.publish(ctx, j)
		}
	}
}

func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	for {
		select {
		case j := <-p.queue:
			p.publish(ctx, j)
		default:
			return
		}
	}
}

func (p *Publisher) publish(ctx context.Context, j job.Job) {
	body, err := json.Marshal(Event{
		EventID:    uuid.NewString(),
		OccurredAt: j.UpdatedAt,
		Job:        j,
	})
	if err != nil {
		metrics.EventsPublished.WithLabelValues("failed").Inc()
		p.logger.Error("Failed to encode job event",
			slog.String("job_id", j.JobID),
			slog.Any("error", err),
		)
		return
	}

	if err := p.broker.PublishWithRetry(ctx, RoutingKey(j), body, contentTypeJSON); err != nil {
		metrics.EventsPublished.WithLabelValues("failed").Inc()
		p.logger.Error("Failed to publish job event",
			slog.String("job_id", j.JobID),
			slog.String("routing_key", RoutingKey(j)),
			slog.Any("error", err),
		)
		return
	}
	metrics.EventsPublished.WithLabelValues("published").Inc()
}

package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cuongbtq/push-orchestrator/internal/job"
	"github.com/cuongbtq/push-orchestrator/internal/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrDeliveriesClosed is returned by Run when the broker closes the delivery channel
var ErrDeliveriesClosed = errors.New("rabbitmq delivery channel closed")

// Source is the broker side of the consumer
type Source interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// StatusUpdater applies a target status report to a job
type StatusUpdater interface {
	UpdateTargetStatus(ctx context.Context, jobID string, target job.Target, status job.SubStatus, result *job.Result) (job.Job, error)
}

// Config holds consumer configuration
type Config struct {
	Logger        *slog.Logger
	Source        Source
	Jobs          StatusUpdater
	ConsumerTag   string
	Concurrency   int
	PrefetchCount int
}

// Consumer feeds status messages from RabbitMQ into the job state machine
// through a pool of workers. All messages for one job go to the same worker,
// so they are applied in delivery order.
type Consumer struct {
	logger        *slog.Logger
	source        Source
	jobs          StatusUpdater
	consumerTag   string
	concurrency   int
	prefetchCount int
	wg            sync.WaitGroup
}

type task struct {
	msg      *StatusMessage
	delivery amqp.Delivery
}

// NewConsumer creates a consumer
func NewConsumer(cfg *Config) *Consumer {
	c := &Consumer{
		logger:        cfg.Logger,
		source:        cfg.Source,
		jobs:          cfg.Jobs,
		consumerTag:   cfg.ConsumerTag,
		concurrency:   cfg.Concurrency,
		prefetchCount: cfg.PrefetchCount,
	}
	if c.concurrency <= 0 {
		c.concurrency = 1
	}
	if c.prefetchCount <= 0 {
		c.prefetchCount = c.concurrency
	}
	if c.consumerTag == "" {
		c.consumerTag = "push-orchestrator"
	}
	return c
}

// Run consumes until ctx is done. In-flight messages are finished before it
// returns.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.setupConsumer()
	if err != nil {
		return err
	}

	lanes := c.spawnWorkerPool(ctx)

	err = c.dispatch(ctx, deliveries, lanes)
	for _, lane := range lanes {
		close(lane)
	}
	c.wg.Wait()

	c.logger.Info("Status consumer stopped")
	return err
}

func (c *Consumer) setupConsumer() (<-chan amqp.Delivery, error) {
	if err := c.source.Qos(c.prefetchCount); err != nil {
		return nil, err
	}
	c.logger.Info("RabbitMQ QoS configured",
		slog.Int("prefetch_count", c.prefetchCount),
	)

	deliveries, err := c.source.Consume(c.consumerTag)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return deliveries, nil
}

// laneFor picks the worker that owns jobID
func laneFor(jobID string, workers int) int {
	return int(xxhash.Sum64String(jobID) % uint64(workers))
}

// dispatch decodes deliveries and hands each one to the worker owning its job
func (c *Consumer) dispatch(ctx context.Context, deliveries <-chan amqp.Delivery, lanes []chan *task) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("RabbitMQ delivery channel closed")
				return ErrDeliveriesClosed
			}

			msg, err := decodeStatusMessage(delivery.Body)
			if err != nil {
				c.logger.Error("Failed to parse status message",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				metrics.IntakeMessages.WithLabelValues("malformed").Inc()
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					c.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			lane := laneFor(msg.JobID, len(lanes))
			select {
			case lanes[lane] <- &task{msg: msg, delivery: delivery}:
				c.logger.Debug("Status message dispatched to worker pool",
					slog.String("job_id", msg.JobID),
					slog.Int("worker", lane),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					c.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return nil
			}
		}
	}
}

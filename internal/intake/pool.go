package intake

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/push-orchestrator/internal/metrics"
)

// spawnWorkerPool spawns the configured number of worker goroutines, each
// reading its own task channel
func (c *Consumer) spawnWorkerPool(ctx context.Context) []chan *task {
	lanes := make([]chan *task, c.concurrency)
	for i := range lanes {
		lanes[i] = make(chan *task)
		c.wg.Add(1)
		go c.workerLoop(ctx, i, lanes[i])
	}

	c.logger.Info("Status worker pool spawned",
		slog.Int("worker_count", c.concurrency),
	)
	return lanes
}

// workerLoop applies status messages until the task channel is closed
func (c *Consumer) workerLoop(ctx context.Context, workerNum int, tasks <-chan *task) {
	defer c.wg.Done()

	workerName := fmt.Sprintf("%s-%d", c.consumerTag, workerNum)
	for t := range tasks {
		err := c.process(ctx, t.msg)
		if err == nil {
			metrics.IntakeMessages.WithLabelValues("acked").Inc()
			if ackErr := t.delivery.Ack(false); ackErr != nil {
				c.logger.Error("Failed to ACK message",
					slog.String("worker_name", workerName),
					slog.String("job_id", t.msg.JobID),
					slog.String("error", ackErr.Error()),
				)
			}
			continue
		}

		requeue := shouldRequeue(err)
		outcome := "rejected"
		if requeue {
			outcome = "requeued"
		}
		metrics.IntakeMessages.WithLabelValues(outcome).Inc()

		c.logger.Error("Status message processing failed",
			slog.String("worker_name", workerName),
			slog.String("job_id", t.msg.JobID),
			slog.Bool("requeue", requeue),
			slog.String("error", err.Error()),
		)
		if nackErr := t.delivery.Nack(false, requeue); nackErr != nil {
			c.logger.Error("Failed to NACK message",
				slog.String("worker_name", workerName),
				slog.String("job_id", t.msg.JobID),
				slog.String("error", nackErr.Error()),
			)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg *StatusMessage) error {
	updated, err := c.jobs.UpdateTargetStatus(ctx, msg.JobID, msg.Target, msg.Status, msg.Result)
	if err != nil {
		return fmt.Errorf("failed to apply status for job %s: %w", msg.JobID, err)
	}

	c.logger.Debug("Status message applied",
		slog.String("job_id", msg.JobID),
		slog.String("target", string(msg.Target)),
		slog.String("overall_status", string(updated.OverallStatus)),
	)
	return nil
}

package intake

import (
	"context"
	"errors"

	"github.com/cuongbtq/push-orchestrator/internal/job"
)

// ErrMalformedMessage is returned for a delivery that cannot be decoded
var ErrMalformedMessage = errors.New("malformed status message")

// shouldRequeue decides whether a failed delivery is worth redelivering.
// Only transient failures of the job store are; a message that names an
// unknown job or carries invalid values fails the same way every time.
func shouldRequeue(err error) bool {
	if errors.Is(err, ErrMalformedMessage) {
		return false
	}
	if errors.Is(err, job.ErrJobNotFound) ||
		errors.Is(err, job.ErrInvalidTarget) ||
		errors.Is(err, job.ErrInvalidStatus) ||
		errors.Is(err, job.ErrInvalidJobID) {
		return false
	}
	if job.IsPersistenceError(err) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

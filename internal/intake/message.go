package intake

import (
	"encoding/json"
	"fmt"

	"github.com/cuongbtq/push-orchestrator/internal/job"
)

// StatusMessage is a target status report published by the pushing caller
type StatusMessage struct {
	JobID  string        `json:"jobId"`
	Target job.Target    `json:"target"`
	Status job.SubStatus `json:"status"`
	Result *job.Result   `json:"result,omitempty"`
}

func decodeStatusMessage(body []byte) (*StatusMessage, error) {
	var msg StatusMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.JobID == "" || msg.Target == "" || msg.Status == "" {
		return nil, fmt.Errorf("%w: jobId, target and status are required", ErrMalformedMessage)
	}
	return &msg, nil
}

package job

import (
	"fmt"
	"strings"
	"time"
)

// Job is one tracked push spanning up to two downstream targets
type Job struct {
	JobID         string        `json:"jobId"`
	CommitID      string        `json:"commitId"`
	Target        Target        `json:"target"`
	OverallStatus OverallStatus `json:"overallStatus"`
	TargetAStatus SubStatus     `json:"targetAStatus"`
	TargetBStatus SubStatus     `json:"targetBStatus"`
	TargetAResult *Result       `json:"targetAResult,omitempty"`
	TargetBResult *Result       `json:"targetBResult,omitempty"`
	StartedAt     time.Time     `json:"startedAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`
}

// New creates a pending job. Targets excluded by target start as skipped.
func New(jobID, commitID string, target Target, now time.Time) (Job, error) {
	if strings.TrimSpace(jobID) == "" {
		return Job{}, ErrInvalidJobID
	}
	if !target.Valid() {
		return Job{}, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}

	j := Job{
		JobID:         jobID,
		CommitID:      commitID,
		Target:        target,
		OverallStatus: StatusPending,
		TargetAStatus: SubStatusPending,
		TargetBStatus: SubStatusPending,
		StartedAt:     now,
		UpdatedAt:     now,
	}
	if !target.Includes(TargetA) {
		j.TargetAStatus = SubStatusSkipped
	}
	if !target.Includes(TargetB) {
		j.TargetBStatus = SubStatusSkipped
	}
	return j, nil
}

// Derive computes the overall status from the two sub-statuses.
// Branch order is significant: failure on either side wins over any done
// signal from the other.
func Derive(a, b SubStatus, target Target, current OverallStatus) OverallStatus {
	switch {
	case a == SubStatusFailed || b == SubStatusFailed:
		return StatusFailed
	case a.done() && b.done():
		return StatusCompleted
	case a.done() && target == TargetBoth:
		return StatusTargetADone
	case b.done() && target == TargetBoth:
		return StatusTargetBDone
	case a == SubStatusInProgress || b == SubStatusInProgress:
		return StatusInProgress
	default:
		return current
	}
}

// IsTerminal reports whether the job reached completed or failed
func (j *Job) IsTerminal() bool {
	return j.OverallStatus.Terminal()
}

// Recompute re-derives the overall status and stamps CompletedAt the first
// time the job becomes terminal.
func (j *Job) Recompute(now time.Time) {
	j.OverallStatus = Derive(j.TargetAStatus, j.TargetBStatus, j.Target, j.OverallStatus)
	if j.OverallStatus.Terminal() && j.CompletedAt == nil {
		completed := now
		j.CompletedAt = &completed
	}
}

// SetSubStatus applies a status (and optional result) for a single target.
// It returns false without touching the job when the job is already terminal.
func (j *Job) SetSubStatus(target Target, status SubStatus, result *Result, now time.Time) (bool, error) {
	if target != TargetA && target != TargetB {
		return false, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	if !status.Updatable() {
		return false, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if !j.Target.Includes(target) {
		return false, fmt.Errorf("%w: %s is not part of job %s (target %s)", ErrInvalidTarget, target, j.JobID, j.Target)
	}
	if j.IsTerminal() {
		return false, nil
	}

	switch target {
	case TargetA:
		j.TargetAStatus = status
		if result != nil {
			j.TargetAResult = result.Clone()
		}
	case TargetB:
		j.TargetBStatus = status
		if result != nil {
			j.TargetBResult = result.Clone()
		}
	}

	j.UpdatedAt = now
	j.Recompute(now)
	return true, nil
}

// Clone returns a deep copy of the job
func (j Job) Clone() Job {
	c := j
	c.TargetAResult = j.TargetAResult.Clone()
	c.TargetBResult = j.TargetBResult.Clone()
	if j.CompletedAt != nil {
		completed := *j.CompletedAt
		c.CompletedAt = &completed
	}
	return c
}

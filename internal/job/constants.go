package job

// Target names which downstream service(s) a job has to reach.
type Target string

const (
	TargetBoth Target = "both"
	TargetA    Target = "targetA"
	TargetB    Target = "targetB"
)

// Valid reports whether t is a known target value.
func (t Target) Valid() bool {
	switch t {
	case TargetBoth, TargetA, TargetB:
		return true
	}
	return false
}

// Includes reports whether a job created for t has to reach other.
func (t Target) Includes(other Target) bool {
	return t == TargetBoth || t == other
}

// SubStatus is the progress of a single target within a job.
type SubStatus string

const (
	SubStatusPending    SubStatus = "pending"
	SubStatusInProgress SubStatus = "in-progress"
	SubStatusSuccess    SubStatus = "success"
	SubStatusFailed     SubStatus = "failed"
	SubStatusSkipped    SubStatus = "skipped"
)

// Updatable reports whether s may be set by a status update or webhook.
func (s SubStatus) Updatable() bool {
	switch s {
	case SubStatusInProgress, SubStatusSuccess, SubStatusFailed:
		return true
	}
	return false
}

func (s SubStatus) done() bool {
	return s == SubStatusSuccess || s == SubStatusSkipped
}

// OverallStatus is derived from the two sub-statuses and never set directly.
type OverallStatus string

const (
	StatusPending     OverallStatus = "pending"
	StatusInProgress  OverallStatus = "in-progress"
	StatusTargetADone OverallStatus = "targetA-done"
	StatusTargetBDone OverallStatus = "targetB-done"
	StatusCompleted   OverallStatus = "completed"
	StatusFailed      OverallStatus = "failed"
)

// Terminal reports whether no transition out of s is possible.
func (s OverallStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/push-orchestrator/internal/job"
)

// JobCursor marks the last job of a page. Jobs are listed by UpdatedAt
// descending, then job id ascending.
type JobCursor struct {
	UpdatedAt time.Time
	JobID     string
}

// after reports whether j sorts strictly after the cursor position
func (c *JobCursor) after(j job.Job) bool {
	if j.UpdatedAt.Equal(c.UpdatedAt) {
		return j.JobID > c.JobID
	}
	return j.UpdatedAt.Before(c.UpdatedAt)
}

func DecodeJobCursor(cursorStr string) (*JobCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var updatedAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updatedAt in cursor: %w", err)
	}

	return &JobCursor{
		UpdatedAt: time.Unix(0, updatedAt),
		JobID:     parts[1],
	}, nil
}

func EncodeJobCursor(cursor *JobCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.UpdatedAt.UnixNano(), cursor.JobID)
	return base64.URLEncoding.EncodeToString([]byte(cs))
}

// paginate returns the page of jobs following cursor and the cursor for the
// next page, if any. jobs must already be sorted.
func paginate(jobs []job.Job, cursor *JobCursor, pageSize int) ([]job.Job, string) {
	start := 0
	if cursor != nil {
		start = len(jobs)
		for i, j := range jobs {
			if cursor.after(j) {
				start = i
				break
			}
		}
	}

	page := jobs[start:]
	if len(page) <= pageSize {
		return page, ""
	}
	page = page[:pageSize]
	last := page[len(page)-1]
	return page, EncodeJobCursor(&JobCursor{UpdatedAt: last.UpdatedAt, JobID: last.JobID})
}

package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuongbtq/push-orchestrator/internal/job"
	"github.com/cuongbtq/push-orchestrator/shared/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &JobHandler{logger: logger.NewNop()}

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "not found", err: fmt.Errorf("%w: j1", job.ErrJobNotFound), wantStatus: http.StatusNotFound},
		{name: "exists", err: job.ErrJobExists, wantStatus: http.StatusConflict},
		{name: "invalid target", err: job.ErrInvalidTarget, wantStatus: http.StatusBadRequest},
		{name: "invalid status", err: job.ErrInvalidStatus, wantStatus: http.StatusBadRequest},
		{name: "invalid id", err: job.ErrInvalidJobID, wantStatus: http.StatusBadRequest},
		{name: "persistence", err: job.NewPersistenceError("save", errors.New("disk full")), wantStatus: http.StatusInternalServerError},
		{name: "store not ready", err: fmt.Errorf("waiting: %w", context.DeadlineExceeded), wantStatus: http.StatusServiceUnavailable},
		{name: "unknown", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			h.writeError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), `"success":false`)
		})
	}
}

func TestJobCursor(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 123, time.UTC)
	encoded := EncodeJobCursor(&JobCursor{UpdatedAt: at, JobID: "job|with|pipes"})

	decoded, err := DecodeJobCursor(encoded)
	require.NoError(t, err)
	assert.True(t, at.Equal(decoded.UpdatedAt))
	assert.Equal(t, "job|with|pipes", decoded.JobID)

	empty, err := DecodeJobCursor("")
	require.NoError(t, err)
	assert.Nil(t, empty)

	for _, bad := range []string{"!!!", "bm8tc2VwYXJhdG9y", "YWJjfGpvYg=="} {
		_, err := DecodeJobCursor(bad)
		assert.Error(t, err, bad)
	}
}

func TestPaginate(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	jobs := []job.Job{
		{JobID: "e", UpdatedAt: base.Add(3 * time.Second)},
		{JobID: "c", UpdatedAt: base.Add(2 * time.Second)},
		{JobID: "d", UpdatedAt: base.Add(2 * time.Second)},
		{JobID: "a", UpdatedAt: base.Add(time.Second)},
		{JobID: "b", UpdatedAt: base},
	}

	var seen []string
	var cursor *JobCursor
	for page := 0; page < 5; page++ {
		items, next := paginate(jobs, cursor, 2)
		for _, j := range items {
			seen = append(seen, j.JobID)
		}
		if next == "" {
			break
		}
		var err error
		cursor, err = DecodeJobCursor(next)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"e", "c", "d", "a", "b"}, seen)

	items, next := paginate(jobs, &JobCursor{UpdatedAt: base.Add(-time.Hour), JobID: "z"}, 2)
	assert.Empty(t, items)
	assert.Empty(t, next)
}

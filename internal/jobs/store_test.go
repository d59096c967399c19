package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Steivan/LEG-analysis-sub001/internal/errors"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()

	require.NoError(t, s.Create(&Job{ID: "a", Status: StatusCompleted, CreatedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, s.Create(&Job{ID: "b", Status: StatusPending, CreatedAt: now.Add(-time.Minute)}))
	require.NoError(t, s.Create(&Job{ID: "c", Status: StatusFailed, CreatedAt: now}))

	t.Run("duplicate id", func(t *testing.T) {
		err := s.Create(&Job{ID: "a"})
		var apiErr *apperrors.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 409, apiErr.StatusCode)
	})

	t.Run("get returns a copy", func(t *testing.T) {
		job, err := s.Get("b")
		require.NoError(t, err)
		job.Status = StatusRunning

		again, err := s.Get("b")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, again.Status)
	})

	t.Run("list filters and orders newest first", func(t *testing.T) {
		tests := []struct {
			name    string
			filter  Filter
			wantIDs []string
		}{
			{name: "all", filter: Filter{}, wantIDs: []string{"c", "b", "a"}},
			{name: "by status", filter: Filter{Status: StatusPending}, wantIDs: []string{"b"}},
			{name: "since", filter: Filter{Since: now.Add(-time.Hour)}, wantIDs: []string{"c", "b"}},
			{name: "limit", filter: Filter{Limit: 1}, wantIDs: []string{"c"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				jobs, err := s.List(tt.filter)
				require.NoError(t, err)
				ids := make([]string, len(jobs))
				for i, j := range jobs {
					ids[i] = j.ID
				}
				assert.Equal(t, tt.wantIDs, ids)
			})
		}
	})

	t.Run("stats", func(t *testing.T) {
		stats := s.Stats()
		assert.Equal(t, 1, stats[StatusCompleted])
		assert.Equal(t, 1, stats[StatusPending])
		assert.Equal(t, 1, stats[StatusFailed])
	})

	t.Run("cleanup removes old finished jobs only", func(t *testing.T) {
		assert.Equal(t, 1, s.CleanupOld(time.Hour))
		_, err := s.Get("a")
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
		_, err = s.Get("b")
		assert.NoError(t, err)
	})

	t.Run("update and delete unknown", func(t *testing.T) {
		assert.Error(t, s.Update(&Job{ID: "zzz"}))
		assert.Error(t, s.Delete("zzz"))
		assert.NoError(t, s.Delete("c"))
	})
}

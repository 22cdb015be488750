package cleanup

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"facegate/config"
	"facegate/internal/util/timezone"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPruner struct {
	mock.Mock
}

func (m *mockPruner) PruneVerifications(before time.Time) (int64, error) {
	args := m.Called(before)
	return args.Get(0).(int64), args.Error(1)
}

func TestRunCleanupUsesRetention(t *testing.T) {
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	defer timezone.SetClock(func() time.Time { return now })()

	pruner := new(mockPruner)
	cutoff := now.AddDate(0, 0, -30)
	pruner.On("PruneVerifications", mock.MatchedBy(func(before time.Time) bool {
		return before.Equal(cutoff)
	})).Return(int64(4), nil).Once()

	svc := NewCleanupService(pruner, config.CleanupConfig{RetentionDays: 30})
	deleted, err := svc.RunCleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)
	pruner.AssertExpectations(t)
}

func TestRunCleanupDisabled(t *testing.T) {
	pruner := new(mockPruner)
	svc := NewCleanupService(pruner, config.CleanupConfig{RetentionDays: 0})

	deleted, err := svc.RunCleanup(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
	pruner.AssertNotCalled(t, "PruneVerifications", mock.Anything)

	// Start kehrt sofort zurück
	svc.Start(context.Background())
}

func TestRunCleanupWrapsStoreError(t *testing.T) {
	pruner := new(mockPruner)
	pruner.On("PruneVerifications", mock.Anything).Return(int64(0), errors.New("disk full"))

	svc := NewCleanupService(pruner, config.CleanupConfig{RetentionDays: 7})
	_, err := svc.RunCleanup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestStartRunsUntilCancelled(t *testing.T) {
	var runs atomic.Int32
	pruner := new(mockPruner)
	pruner.On("PruneVerifications", mock.Anything).Return(int64(0), nil).Run(func(mock.Arguments) {
		runs.Add(1)
	})

	svc := NewCleanupService(pruner, config.CleanupConfig{RetentionDays: 1, Interval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return runs.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup service did not stop")
	}
}

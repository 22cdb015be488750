package utils

import (
	"testing"

	"facegate/internal/core/processor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStats processor.Stats

func (f fixedStats) Stats() processor.Stats { return processor.Stats(f) }

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 Bytes", FormatBytes(512))
	assert.Equal(t, "1.50 KB", FormatBytes(1536))
	assert.Equal(t, "2.00 MB", FormatBytes(2*1024*1024))
	assert.Equal(t, "1.00 GB", FormatBytes(1024*1024*1024))
}

func TestGetSystemStats(t *testing.T) {
	stats := GetSystemStats(fixedStats{Running: true, Mode: "verifying", Frames: 12}, 3)

	assert.Positive(t, stats.NumCPU)
	assert.Positive(t, stats.GoRoutines)
	assert.Equal(t, 3, stats.Identities)
	require.NotNil(t, stats.Worker)
	assert.Equal(t, "verifying", stats.Worker.Mode)
	assert.Equal(t, uint64(12), stats.Worker.Frames)

	assert.Nil(t, GetSystemStats(nil, 0).Worker)
}

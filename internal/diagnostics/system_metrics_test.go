package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectReturnsHardwareInfo(t *testing.T) {
	c := NewSystemMetricsCollector()
	stats := c.Collect()

	require.Positive(t, stats.CPUThreads, "thread count should always be available")
	assert.GreaterOrEqual(t, stats.MemPercent, 0.0)
	assert.LessOrEqual(t, stats.MemPercent, 100.0)
}

func TestCollectCachesHardwareIdentity(t *testing.T) {
	c := NewSystemMetricsCollector()

	first := c.Collect()
	second := c.Collect()

	assert.Equal(t, first.CPUModel, second.CPUModel)
	assert.Equal(t, first.CPUCores, second.CPUCores)
	assert.Equal(t, first.CPUThreads, second.CPUThreads)
}

func TestCollectConcurrentAccess(t *testing.T) {
	c := NewSystemMetricsCollector()

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 10; j++ {
				_ = c.Collect()
			}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
}

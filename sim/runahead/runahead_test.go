package runahead

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(false, 0, 0)
	assert.Error(t, err)
	_, err = New(false, time.Millisecond, -time.Millisecond)
	assert.Error(t, err)
}

func TestGet_StaticUsesMinPossible(t *testing.T) {
	r, err := New(false, 10*time.Millisecond, 0)
	require.NoError(t, err)
	assert.False(t, r.IsDynamic())
	assert.Equal(t, 10*time.Millisecond, r.Get())

	// static runahead ignores observed latencies
	r.UpdateLowestUsedLatency(50 * time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, r.Get())
}

func TestGet_ConfiguredMinimumIsLowerBound(t *testing.T) {
	r, err := New(true, 5*time.Millisecond, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, r.Get())

	r.UpdateLowestUsedLatency(8 * time.Millisecond)
	assert.Equal(t, 20*time.Millisecond, r.Get())
}

// TestUpdate_DynamicTracksLowestUsedLatency verifies the dynamic runahead
// follows the smallest latency seen and never increases again.
func TestUpdate_DynamicTracksLowestUsedLatency(t *testing.T) {
	r, err := New(true, 5*time.Millisecond, 0)
	require.NoError(t, err)
	assert.True(t, r.IsDynamic())
	assert.Equal(t, 5*time.Millisecond, r.Get(), "before traffic the network minimum applies")

	r.UpdateLowestUsedLatency(40 * time.Millisecond)
	assert.Equal(t, 40*time.Millisecond, r.Get())

	r.UpdateLowestUsedLatency(25 * time.Millisecond)
	assert.Equal(t, 25*time.Millisecond, r.Get())

	r.UpdateLowestUsedLatency(60 * time.Millisecond)
	assert.Equal(t, 25*time.Millisecond, r.Get(), "a larger latency never loosens the bound")
}

func TestUpdate_ImpossibleLatencyPanics(t *testing.T) {
	r, err := New(true, 5*time.Millisecond, 0)
	require.NoError(t, err)
	assert.Panics(t, func() { r.UpdateLowestUsedLatency(0) })
	assert.Panics(t, func() { r.UpdateLowestUsedLatency(time.Millisecond) })
}

func TestUpdate_ConcurrentUpdatesKeepMinimum(t *testing.T) {
	r, err := New(true, time.Millisecond, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.UpdateLowestUsedLatency(time.Duration(i) * time.Millisecond)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, time.Millisecond, r.Get())
}

package checkout

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncerRunsOnlyLatest(t *testing.T) {
	d := NewDebouncer(15 * time.Millisecond)
	var last int32
	var runs int32
	for i := 1; i <= 3; i++ {
		n := int32(i)
		d.Schedule(func() {
			atomic.StoreInt32(&last, n)
			atomic.AddInt32(&runs, 1)
		})
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&last))
	assert.False(t, d.Pending())
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	var runs int32
	d.Schedule(func() { atomic.AddInt32(&runs, 1) })
	assert.True(t, d.Cancel())
	assert.False(t, d.Cancel())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&runs))
}

package worker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsItemsInOrder(t *testing.T) {
	q := NewQueue("test")
	defer q.Close()

	var mu sync.Mutex
	var order []int

	for i := 0; i < 10; i++ {
		i := i
		q.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	q.Drain()

	require.Len(t, order, 10)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestQueueSubmitAfterCloseIsDropped(t *testing.T) {
	q := NewQueue("test")
	q.Close()

	ran := int32(0)
	q.Submit(func() { atomic.StoreInt32(&ran, 1) })

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
}

func TestWorkScheduleIsIdempotentWhileQueued(t *testing.T) {
	q := NewQueue("test")
	defer q.Close()

	block := make(chan struct{})
	q.Submit(func() { <-block })

	count := int32(0)
	w := NewWork(q, func() { atomic.AddInt32(&count, 1) })

	assert.True(t, w.Schedule())
	assert.False(t, w.Schedule())
	assert.False(t, w.Schedule())
	assert.True(t, w.Pending())

	close(block)
	q.Drain()

	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
	assert.False(t, w.Pending())
}

func TestWorkCanBeScheduledAgainAfterRunning(t *testing.T) {
	q := NewQueue("test")
	defer q.Close()

	count := int32(0)
	w := NewWork(q, func() { atomic.AddInt32(&count, 1) })

	require.True(t, w.Schedule())
	q.Drain()
	require.True(t, w.Schedule())
	q.Drain()

	assert.Equal(t, int32(2), atomic.LoadInt32(&count))
}

func TestDelayedWorkRunsAfterDelay(t *testing.T) {
	q := NewQueue("test")
	defer q.Close()

	done := make(chan struct{})
	w := NewDelayedWork(q, func() { close(done) })

	require.True(t, w.Schedule(5*time.Millisecond))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("delayed work never ran")
	}
}

func TestDelayedWorkCancelBeforeExpiry(t *testing.T) {
	q := NewQueue("test")
	defer q.Close()

	ran := int32(0)
	w := NewDelayedWork(q, func() { atomic.AddInt32(&ran, 1) })

	require.True(t, w.Schedule(50*time.Millisecond))
	require.True(t, w.Cancel())

	time.Sleep(100 * time.Millisecond)
	q.Drain()

	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
	assert.False(t, w.Pending())
}

func TestDelayedWorkCancelAfterRunIsNoop(t *testing.T) {
	q := NewQueue("test")
	defer q.Close()

	w := NewDelayedWork(q, func() {})

	require.True(t, w.Schedule(time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	q.Drain()

	assert.False(t, w.Cancel())
	assert.False(t, w.Cancel())
}

func TestDelayedWorkScheduleWhileArmedIsNoop(t *testing.T) {
	q := NewQueue("test")
	defer q.Close()

	w := NewDelayedWork(q, func() {})

	require.True(t, w.Schedule(50*time.Millisecond))
	assert.False(t, w.Schedule(time.Millisecond))

	w.Cancel()
}

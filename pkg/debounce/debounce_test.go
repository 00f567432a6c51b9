package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncer_CollapsesBurst(t *testing.T) {
	d := New(50*time.Millisecond, time.Second)
	var calls, last atomic.Int32
	for i := 1; i <= 5; i++ {
		i := int32(i)
		d.Call(func() { calls.Add(1); last.Store(i) })
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(5), last.Load(), "the latest function wins")
}

func TestDebouncer_MaxWaitBoundsDelay(t *testing.T) {
	d := New(80*time.Millisecond, 150*time.Millisecond)
	var calls atomic.Int32
	start := time.Now()
	var firedAt atomic.Int64

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) && calls.Load() == 0 {
		d.Call(func() {
			if calls.Add(1) == 1 {
				firedAt.Store(int64(time.Since(start)))
			}
		})
		time.Sleep(20 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	assert.Less(t, time.Duration(firedAt.Load()), 280*time.Millisecond,
		"continuous calls must not postpone the run past maxWait")
	d.Stop()
}

func TestDebouncer_FlushAndStop(t *testing.T) {
	d := New(time.Hour, 0)
	ran := false
	d.Call(func() { ran = true })
	assert.True(t, d.Pending())

	d.Flush()
	assert.True(t, ran)
	assert.False(t, d.Pending())

	d.Stop()
	d.Call(func() { t.Fatal("called after Stop") })
	assert.False(t, d.Pending())
}

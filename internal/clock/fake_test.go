package clock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClock_AfterFiresOnlyPastDeadline(t *testing.T) {
	c := Fake(epoch)
	ch := c.After(3 * time.Second)

	c.Advance(2 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before deadline")
	default:
	}

	c.Advance(time.Second)
	select {
	case got := <-ch:
		assert.Equal(t, epoch.Add(3*time.Second), got)
	default:
		t.Fatal("After did not fire at deadline")
	}
}

func TestFakeClock_AfterFunc(t *testing.T) {
	t.Run("runs synchronously during advance", func(t *testing.T) {
		c := Fake(epoch)
		var calls atomic.Int32
		c.AfterFunc(time.Minute, func() { calls.Add(1) })

		c.Advance(59 * time.Second)
		assert.Equal(t, int32(0), calls.Load())

		c.Advance(time.Second)
		assert.Equal(t, int32(1), calls.Load())

		c.Advance(time.Hour)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("stop prevents the call", func(t *testing.T) {
		c := Fake(epoch)
		var calls atomic.Int32
		timer := c.AfterFunc(time.Second, func() { calls.Add(1) })

		assert.True(t, timer.Stop())
		assert.False(t, timer.Stop())
		c.Advance(time.Minute)
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("callback may register a new timer", func(t *testing.T) {
		c := Fake(epoch)
		var calls atomic.Int32
		c.AfterFunc(time.Second, func() {
			calls.Add(1)
			c.AfterFunc(time.Second, func() { calls.Add(1) })
		})

		c.Advance(time.Second)
		assert.Equal(t, int32(1), calls.Load())
		c.Advance(time.Second)
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestFakeClock_SleepWithWaitForTimers(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})

	go func() {
		c.Sleep(5 * time.Second)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(5 * time.Second)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sleeper was not released")
	}
	require.Equal(t, 0, c.PendingCount())
}

func TestFakeClock_TickerDropsWhenBehind(t *testing.T) {
	c := Fake(epoch)
	tk := c.NewTicker(time.Second)
	defer tk.Stop()

	c.Advance(3 * time.Second)
	<-tk.C
	select {
	case <-tk.C:
		t.Fatal("ticker buffered more than one tick")
	default:
	}
	assert.Equal(t, 1, c.PendingCount())
}

package timer_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/hetman/internal/game/timer"
)

const wait = 2 * time.Second

func newRegistry() (*timer.Registry, *clockwork.FakeClock, *sync.Mutex) {
	clock := clockwork.NewFakeClock()
	var mu sync.Mutex
	return timer.NewRegistry(clock, &mu), clock, &mu
}

func TestSchedule_Fires(t *testing.T) {
	reg, clock, _ := newRegistry()
	var fired atomic.Int32

	reg.Schedule(timer.Advance, 5*time.Second, func() { fired.Add(1) })
	assert.True(t, reg.Active(timer.Advance))

	clock.Advance(4 * time.Second)
	assert.Equal(t, int32(0), fired.Load())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, wait, time.Millisecond)
	assert.False(t, reg.Active(timer.Advance))
}

func TestSchedule_ReplacesSameName(t *testing.T) {
	reg, clock, _ := newRegistry()
	var first, second atomic.Int32

	reg.Schedule(timer.Inactivity, time.Second, func() { first.Add(1) })
	reg.Schedule(timer.Inactivity, 3*time.Second, func() { second.Add(1) })

	clock.Advance(3 * time.Second)
	require.Eventually(t, func() bool { return second.Load() == 1 }, wait, time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}

func TestScheduleOnce_NeverDoubleArms(t *testing.T) {
	reg, clock, _ := newRegistry()
	var fired atomic.Int32

	assert.True(t, reg.ScheduleOnce(timer.Bot("p1", "submit"), time.Second, func() { fired.Add(1) }))
	assert.False(t, reg.ScheduleOnce(timer.Bot("p1", "submit"), time.Second, func() { fired.Add(1) }))

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, wait, time.Millisecond)

	// once fired the name is free again
	assert.True(t, reg.ScheduleOnce(timer.Bot("p1", "submit"), time.Second, func() { fired.Add(1) }))
}

func TestCancel(t *testing.T) {
	reg, clock, _ := newRegistry()
	var fired atomic.Int32

	reg.Schedule(timer.Grace("p1"), time.Second, func() { fired.Add(1) })
	assert.True(t, reg.Cancel(timer.Grace("p1")))
	assert.False(t, reg.Cancel(timer.Grace("p1")))

	clock.Advance(2 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestCancelAfterClockFiredButBeforeLock(t *testing.T) {
	reg, clock, mu := newRegistry()
	var fired atomic.Int32

	reg.Schedule(timer.Submission, time.Second, func() { fired.Add(1) })

	// Hold the room lock so the callback blocks, then cancel while it waits.
	mu.Lock()
	clock.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)
	reg.Cancel(timer.Submission)
	mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestCallbackRunsUnderRoomLock(t *testing.T) {
	reg, clock, mu := newRegistry()
	held := make(chan bool, 1)

	reg.Schedule(timer.Advance, time.Second, func() {
		held <- !mu.TryLock()
	})
	clock.Advance(time.Second)

	select {
	case locked := <-held:
		assert.True(t, locked, "callback must run while the room lock is held")
	case <-time.After(wait):
		t.Fatal("callback did not run")
	}
}

func TestCallbackMayReschedule(t *testing.T) {
	reg, clock, _ := newRegistry()
	var fired atomic.Int32

	reg.Schedule(timer.Advance, time.Second, func() {
		fired.Add(1)
		reg.Schedule(timer.Advance, time.Second, func() { fired.Add(1) })
	})
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return reg.Active(timer.Advance) && fired.Load() == 1 }, wait, time.Millisecond)

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 2 }, wait, time.Millisecond)
}

func TestCancelAllAndClose(t *testing.T) {
	reg, clock, _ := newRegistry()
	var fired atomic.Int32

	for _, name := range []string{timer.Inactivity, timer.Session, timer.Grace("a")} {
		reg.Schedule(name, time.Second, func() { fired.Add(1) })
	}
	assert.Equal(t, []string{"grace:a", "inactivity", "session"}, reg.Names())

	reg.CancelAll()
	assert.Empty(t, reg.Names())

	reg.Close()
	reg.Schedule(timer.Cleanup, time.Second, func() { fired.Add(1) })
	assert.False(t, reg.ScheduleOnce(timer.Cleanup, time.Second, func() { fired.Add(1) }))
	assert.Empty(t, reg.Names())

	clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestCancelPrefix(t *testing.T) {
	reg, clock, _ := newRegistry()
	var fired atomic.Int32

	for _, name := range []string{timer.Bot("a", "pick"), timer.Bot("b", "submit"), timer.Grace("a"), timer.Advance} {
		reg.Schedule(name, time.Second, func() { fired.Add(1) })
	}
	assert.Equal(t, 2, reg.CancelPrefix(timer.BotPrefix))
	assert.Equal(t, []string{"advance", "grace:a"}, reg.Names())
	assert.Equal(t, 0, reg.CancelPrefix(timer.BotPrefix))

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 2 }, wait, time.Millisecond)
}

func TestNames_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		reg, _, _ := newRegistry()
		names := rapid.SliceOf(rapid.SampledFrom([]string{"a", "b", "c", "d"})).Draw(rt, "names")
		cancel := rapid.SliceOf(rapid.SampledFrom([]string{"a", "b", "c", "d"})).Draw(rt, "cancel")

		want := map[string]bool{}
		for _, n := range names {
			reg.Schedule(n, time.Hour, func() {})
			want[n] = true
		}
		for _, n := range cancel {
			reg.Cancel(n)
			delete(want, n)
		}
		assert.Len(rt, reg.Names(), len(want))
		for n := range want {
			assert.True(rt, reg.Active(n))
		}
	})
}

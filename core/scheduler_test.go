package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeBefore(t *testing.T) {
	tests := []struct {
		a, b uint32
		want bool
	}{
		{1, 2, true},
		{2, 1, false},
		{5, 5, false},
		{0xFFFFFFF0, 0x10, true}, // b is after the wrap
		{0x10, 0xFFFFFFF0, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TimeBefore(tt.a, tt.b), "TimeBefore(%#x, %#x)", tt.a, tt.b)
	}
}

func TestTimerConversions(t *testing.T) {
	assert.Equal(t, uint32(50000), TimerFromUS(50000))
	assert.Equal(t, uint32(1900), TimerToUS(1900))
	assert.Equal(t, uint32(0xFFFFFFFF), TimerToUS(TimerFromUS(0xFFFFFFFF)), "no overflow in conversion")
}

func TestTimerDispatchOrder(t *testing.T) {
	resetCore(t, 0xFFFFFF00)

	var fired []string
	mk := func(name string, wake uint32) *Timer {
		return &Timer{
			WakeTime: wake,
			Handler: func(*Timer) uint8 {
				fired = append(fired, name)
				return SF_DONE
			},
		}
	}

	// "late" wraps past zero and must still sort after "early"
	late := mk("late", 0x00000020)
	early := mk("early", 0xFFFFFF80)
	mid := mk("mid", 0xFFFFFFF0)
	ScheduleTimer(late)
	ScheduleTimer(early)
	ScheduleTimer(mid)

	AdvanceTime(0x80)
	ProcessTimers()
	assert.Equal(t, []string{"early"}, fired)

	AdvanceTime(0x100)
	ProcessTimers()
	assert.Equal(t, []string{"early", "mid", "late"}, fired)
}

func TestTimerReschedule(t *testing.T) {
	resetCore(t, 0)

	count := 0
	tm := &Timer{WakeTime: 100}
	tm.Handler = func(self *Timer) uint8 {
		count++
		if count == 3 {
			return SF_DONE
		}
		self.WakeTime += 100
		return SF_RESCHEDULE
	}
	ScheduleTimer(tm)

	for i := 0; i < 5; i++ {
		AdvanceTime(100)
		ProcessTimers()
	}
	assert.Equal(t, 3, count)
}

func TestDeleteTimer(t *testing.T) {
	resetCore(t, 0)

	fired := false
	tm := &Timer{WakeTime: 10, Handler: func(*Timer) uint8 {
		fired = true
		return SF_DONE
	}}
	other := &Timer{WakeTime: 5, Handler: func(*Timer) uint8 { return SF_DONE }}
	ScheduleTimer(other)
	ScheduleTimer(tm)

	DeleteTimer(tm)
	DeleteTimer(tm) // not scheduled: no-op

	AdvanceTime(20)
	ProcessTimers()
	assert.False(t, fired)
}

func TestTimeoutWakeHold(t *testing.T) {
	resetCore(t, 1000)

	fired := 0
	var to Timeout
	to.Init(func() { fired++ })

	to.Arm(100)
	to.Arm(200) // re-arming takes no extra hold
	require.True(t, to.Pending())
	assert.False(t, DeepSleepAllowed())

	to.Cancel()
	assert.False(t, to.Pending())
	assert.True(t, DeepSleepAllowed())

	to.Arm(50)
	AdvanceTime(49)
	ProcessTimers()
	assert.Zero(t, fired)

	AdvanceTime(1)
	ProcessTimers()
	assert.Equal(t, 1, fired)
	assert.False(t, to.Pending())
	assert.True(t, DeepSleepAllowed(), "firing releases the hold")

	to.Cancel() // after firing: no-op
	assert.True(t, DeepSleepAllowed())
}

func TestTimeoutPoll(t *testing.T) {
	resetCore(t, 1000)

	fired := 0
	var to Timeout
	to.Init(func() { fired++ })

	assert.False(t, to.Poll(), "not armed")

	to.Arm(100)
	AdvanceTime(99)
	assert.False(t, to.Poll())
	assert.True(t, to.Pending())

	AdvanceTime(1)
	assert.True(t, to.Poll())
	assert.Equal(t, 1, fired)
	assert.True(t, DeepSleepAllowed())

	// Already expired, the timer list must not fire it again
	assert.False(t, to.Poll())
	ProcessTimers()
	assert.Equal(t, 1, fired)
}

func TestUnlockDeepSleepClamps(t *testing.T) {
	resetCore(t, 0)

	for i := 0; i < 3; i++ {
		UnlockDeepSleep()
	}
	assert.Equal(t, int32(0), deepSleepLocks.Load())
	LockDeepSleep()
	assert.False(t, DeepSleepAllowed(), "an unbalanced unlock must not cancel a later hold")
	UnlockDeepSleep()
	assert.True(t, DeepSleepAllowed())
}

func TestGetUptimeCountsWraps(t *testing.T) {
	resetCore(t, 0xFFFFFF00)
	TimerInit()

	assert.Equal(t, uint64(0), GetUptime())
	AdvanceTime(0x80)
	assert.Equal(t, uint64(0x80), GetUptime())
	AdvanceTime(0x100)
	assert.Equal(t, uint64(0x180), GetUptime())
	AdvanceTime(0xFFFFFF00)
	assert.Equal(t, uint64(0x100000080), GetUptime())
}

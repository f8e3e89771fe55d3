package core

// Timer represents a scheduled event
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

var (
	timerList   *Timer
	currentTime uint32
)

// ScheduleTimer adds a timer to the schedule
func ScheduleTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	insertTimer(t)
}

// DeleteTimer removes a timer from the schedule if it is pending.
// Mirrors Klipper's sched_del_timer.
func DeleteTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	removeTimer(t)
}

// insertTimer inserts a timer in sorted order by WakeTime.
// Caller must have interrupts masked.
func insertTimer(t *Timer) {
	if timerList == nil || TimeBefore(t.WakeTime, timerList.WakeTime) {
		t.Next = timerList
		timerList = t
		return
	}

	current := timerList
	for current.Next != nil && TimeBefore(current.Next.WakeTime, t.WakeTime) {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// removeTimer unlinks t and reports whether it was scheduled.
// Caller must have interrupts masked.
func removeTimer(t *Timer) bool {
	if timerList == t {
		timerList = t.Next
		t.Next = nil
		return true
	}
	for current := timerList; current != nil; current = current.Next {
		if current.Next == t {
			current.Next = t.Next
			t.Next = nil
			return true
		}
	}
	return false
}

// timerScheduled reports whether t is on the list.
// Caller must have interrupts masked.
func timerScheduled(t *Timer) bool {
	for current := timerList; current != nil; current = current.Next {
		if current == t {
			return true
		}
	}
	return false
}

// TimerDispatch runs every timer whose WakeTime has been reached.
// Handlers execute with interrupts masked.
func TimerDispatch() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	currentTime = GetTime()
	for timerList != nil && !TimeBefore(currentTime, timerList.WakeTime) {
		timer := timerList
		timerList = timer.Next
		timer.Next = nil

		result := timer.Handler(timer)

		if result == SF_RESCHEDULE {
			insertTimer(timer)
		}
	}
}

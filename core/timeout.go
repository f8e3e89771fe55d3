package core

// Timeout is a one-shot deadline on the timer list that holds a wake-hold
// for as long as it is armed. The handler runs from TimerDispatch with
// interrupts masked.
type Timeout struct {
	timer     Timer
	handler   func()
	sleepLock bool
}

// Init binds the expiry handler. Must be called before the first Arm.
func (t *Timeout) Init(handler func()) {
	t.handler = handler
	t.timer.Handler = t.fire
}

// Arm (re)schedules the deadline relUS microseconds from now
func (t *Timeout) Arm(relUS uint32) {
	state := disableInterrupts()
	t.armLocked(GetTime(), relUS)
	restoreInterrupts(state)
}

// Cancel removes a pending deadline; a no-op if it already fired
func (t *Timeout) Cancel() {
	state := disableInterrupts()
	t.cancelLocked()
	restoreInterrupts(state)
}

// Pending reports whether the deadline is armed and has not fired
func (t *Timeout) Pending() bool {
	state := disableInterrupts()
	pending := timerScheduled(&t.timer)
	restoreInterrupts(state)
	return pending
}

// Poll fires the deadline if it is armed and due, as TimerDispatch would.
// Reports whether it fired.
func (t *Timeout) Poll() bool {
	state := disableInterrupts()
	due := timerScheduled(&t.timer) && !TimeBefore(GetTime(), t.timer.WakeTime)
	if due {
		removeTimer(&t.timer)
		t.fire(&t.timer)
	}
	restoreInterrupts(state)
	return due
}

// armLocked schedules the deadline relUS after base.
// Caller must have interrupts masked.
func (t *Timeout) armLocked(base, relUS uint32) {
	if !t.sleepLock {
		LockDeepSleep()
		t.sleepLock = true
	}
	removeTimer(&t.timer)
	t.timer.WakeTime = base + TimerFromUS(relUS)
	insertTimer(&t.timer)
}

// cancelLocked is Cancel for callers that already masked interrupts
func (t *Timeout) cancelLocked() {
	removeTimer(&t.timer)
	t.releaseSleep()
}

func (t *Timeout) releaseSleep() {
	if t.sleepLock {
		UnlockDeepSleep()
		t.sleepLock = false
	}
}

func (t *Timeout) fire(_ *Timer) uint8 {
	t.releaseSleep()
	if t.handler != nil {
		t.handler()
	}
	return SF_DONE
}

package core

// TimerFreq is the system timer frequency. Every supported target exposes a
// free-running 1MHz counter, so one tick is one microsecond.
const (
	TimerFreq = 1000000
)

var (
	// clockSource reads the hardware counter when a target registers one
	clockSource func() uint32

	bootTime   uint32 // Time at boot for uptime calculation
	uptimeLast uint32
	uptimeHigh uint32
)

// SetClockSource registers the platform's free-running counter. The source
// must be safe to call from interrupt context.
func SetClockSource(src func() uint32) {
	clockSource = src
}

// GetTime returns the current system time in timer ticks
func GetTime() uint32 {
	return getSystemTicks()
}

// SetTime sets the current system time (for testing/hardware integration)
func SetTime(ticks uint32) {
	setSystemTicks(ticks)
}

// GetUptime returns 64-bit uptime in timer ticks.
// Must be called often enough to observe every 32-bit wrap (~71 minutes).
func GetUptime() uint64 {
	state := disableInterrupts()
	now := GetTime() - bootTime
	if now < uptimeLast {
		uptimeHigh++
	}
	uptimeLast = now
	high := uptimeHigh
	restoreInterrupts(state)
	return uint64(high)<<32 | uint64(now)
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * TimerFreq / 1000000)
}

// TimerToUS converts timer ticks to microseconds
func TimerToUS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / TimerFreq)
}

// TimeBefore reports whether a is earlier than b on the wrapping 32-bit clock.
// Valid while the two instants are less than half the counter period apart.
func TimeBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

// TimerInit initializes the system timer
func TimerInit() {
	bootTime = GetTime()
	uptimeLast = 0
	uptimeHigh = 0
}

// ProcessTimers processes scheduled timers
func ProcessTimers() {
	TimerDispatch()
}

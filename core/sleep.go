package core

import "sync/atomic"

// deepSleepLocks counts outstanding wake-holds. While non-zero the target
// must not enter a low-power state that stops the system timer.
var deepSleepLocks atomic.Int32

// LockDeepSleep takes a wake-hold. Safe from interrupt context.
func LockDeepSleep() {
	deepSleepLocks.Add(1)
}

// UnlockDeepSleep releases a wake-hold taken with LockDeepSleep.
// An unbalanced unlock is ignored.
func UnlockDeepSleep() {
	for {
		n := deepSleepLocks.Load()
		if n <= 0 {
			return
		}
		if deepSleepLocks.CompareAndSwap(n, n-1) {
			return
		}
	}
}

// DeepSleepAllowed reports whether no wake-hold is outstanding
func DeepSleepAllowed() bool {
	return deepSleepLocks.Load() == 0
}

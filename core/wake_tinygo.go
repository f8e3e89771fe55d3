//go:build tinygo

package core

import (
	"runtime"
	"sync/atomic"
)

// wakeSignal is a single-slot signal set from interrupt context and waited
// on by one task. TinyGo channels may not be touched from an ISR, so the
// slot is an atomic flag and the waiter yields to the scheduler until it is set.
type wakeSignal struct {
	flag atomic.Bool
}

func (w *wakeSignal) init() {}

func (w *wakeSignal) clear() {
	w.flag.Store(false)
}

func (w *wakeSignal) set() {
	w.flag.Store(true)
}

// wait yields until set, running poll between yields
func (w *wakeSignal) wait(poll func()) {
	for !w.flag.Swap(false) {
		poll()
		runtime.Gosched()
	}
}

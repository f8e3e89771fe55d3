//go:build !tinygo

package core

import "time"

// wakePollInterval is how often a waiter runs its poll function
const wakePollInterval = 500 * time.Microsecond

// wakeSignal is a single-slot signal set from interrupt context and waited
// on by one task. A set between clear and wait is not lost.
type wakeSignal struct {
	ch chan struct{}
}

func (w *wakeSignal) init() {
	w.ch = make(chan struct{}, 1)
}

func (w *wakeSignal) clear() {
	select {
	case <-w.ch:
	default:
	}
}

// set never blocks
func (w *wakeSignal) set() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// wait blocks until set, running poll periodically meanwhile
func (w *wakeSignal) wait(poll func()) {
	ticker := time.NewTicker(wakePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.ch:
			return
		case <-ticker.C:
			poll()
		}
	}
}

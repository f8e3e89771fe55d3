//go:build rp2040

package main

import (
	"machine"
	"strconv"
	"time"

	"sonar/core"
	"sonar/protocol"
	"sonar/targets/pio"
	"sonar/targets/rp2"
)

const (
	// Main loop pause while a measurement holds the wake lock
	busyPoll = 10 * time.Microsecond
	// Main loop pause when nothing is pending
	idlePoll = 500 * time.Microsecond

	// Failed writes in a row before the host is considered gone
	maxWriteFailures = 10
)

// usbLink carries the host session over USB CDC. The reader goroutine
// fills in; the main loop drains it and flushes out.
type usbLink struct {
	in  *protocol.FifoBuffer
	out *protocol.ScratchOutput
	tr  *protocol.Transport

	errors        uint32
	writeFailures uint32
	stale         bool // Writes failed; restart the session on the next byte
}

var link *usbLink

func newUSBLink() *usbLink {
	l := &usbLink{
		in:  protocol.NewFifoBuffer(256),
		out: protocol.NewScratchOutput(),
	}
	l.tr = protocol.NewTransport(l.out, core.DispatchCommand)
	// Responses queued for the old session are stale
	l.tr.SetResetCallback(func() {
		l.out.Reset()
		core.ResetFirmwareState()
	})
	// serialqueue expects the ACK before any response
	l.tr.SetFlushCallback(l.flush)
	return l
}

func main() {
	// Clear any watchdog left running across a reset
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	InitUSB()
	rp2.InitClock()
	core.TimerInit()

	core.InitCoreCommands()
	core.InitHCSR04Commands()
	core.InitDigitalOutCommands()
	// *_pin arguments are looked up in the "pin" enumeration
	registerPins()

	gpio := rp2.NewRPGPIODriver()
	core.SetGPIODriver(gpio)
	core.SetEdgeDriver(gpio)
	pio.InitTriggerPulsers()

	core.GetGlobalDictionary().BuildDictionary()

	link = newUSBLink()
	core.SetGlobalTransport(link.tr)
	core.SetResetHandler(watchdogReset)

	go link.readLoop()

	for {
		link.service()

		// Keep polling fast while a measurement deadline is pending
		if core.DeepSleepAllowed() && link.in.Available() == 0 {
			time.Sleep(idlePoll)
		} else {
			time.Sleep(busyPoll)
		}
	}
}

// watchdogReset reboots through the watchdog, which re-enumerates USB
// more reliably than SYSRESETREQ
func watchdogReset() {
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1}); err != nil {
		return
	}
	if err := machine.Watchdog.Start(); err != nil {
		return
	}
	for {
		time.Sleep(time.Millisecond)
	}
}

// service is one main loop pass
func (l *usbLink) service() {
	defer func() {
		if recover() != nil {
			l.errors++
			l.in.Reset()
			l.out.Reset()
		}
	}()

	if n := l.in.Available(); n > 0 {
		input := protocol.NewSliceInputBuffer(l.in.Data())
		l.tr.Receive(input)
		l.in.Pop(n - input.Available())
	}

	core.ProcessTimers()
	core.HCSR04Task()

	if l.out.CurPosition() > 0 {
		l.flush()
	}
	// After the flush so the reset ACK reaches the host
	core.CheckPendingReset()
	// Observe 32-bit clock wraps for get_uptime
	core.GetUptime()
}

func (l *usbLink) readLoop() {
	defer func() {
		if recover() != nil {
			l.errors++
			time.Sleep(100 * time.Millisecond)
			go l.readLoop()
		}
	}()

	for {
		if USBAvailable() == 0 {
			time.Sleep(100 * time.Microsecond)
			continue
		}
		b, err := USBRead()
		if err != nil {
			l.errors++
			time.Sleep(time.Millisecond)
			continue
		}
		if l.stale {
			l.restart()
		}
		if l.in.Write([]byte{b}) == 0 {
			l.errors++
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// restart begins a clean session after the host reconnects
func (l *usbLink) restart() {
	l.stale = false
	l.writeFailures = 0
	l.in.Reset()
	l.out.Reset()
	l.tr.Reset()
	core.ResetFirmwareState()
}

// flush writes all pending output. Output is dropped once the host looks
// gone.
func (l *usbLink) flush() {
	pending := l.out.Result()
	for len(pending) > 0 {
		n, err := USBWriteBytes(pending)
		if err != nil || n == 0 {
			if l.writeFailures++; l.writeFailures > maxWriteFailures {
				l.stale = true
				l.writeFailures = 0
				l.out.Reset()
				l.in.Reset()
			}
			return
		}
		pending = pending[n:]
	}
	l.writeFailures = 0
	l.out.Reset()
}

// registerPins names gpio0 to gpio29 in the "pin" enumeration
func registerPins() {
	names := make([]string, rp2.GPIOCount)
	for i := range names {
		names[i] = "gpio" + strconv.Itoa(i)
	}
	core.RegisterEnumeration("pin", names)
}

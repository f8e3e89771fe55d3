//go:build rp2040 && debuguart

package main

import (
	"machine"

	"sonar/core"
)

// Built with -tags debuguart, core debug output and the timing ring dump
// go to UART0 on GPIO0 (TX) / GPIO1 (RX) at 115200 baud. Those pins are
// then unavailable to sensors.
func init() {
	uart := machine.UART0
	err := uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO0,
		RX:       machine.GPIO1,
	})
	if err != nil {
		return
	}

	core.SetDebugWriter(func(s string) {
		uart.Write([]byte(s))
		uart.Write([]byte("\r\n"))
	})
	core.SetDebugEnabled(true)
	core.InitAsyncDebug()
}

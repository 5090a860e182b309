//go:build tinygo

package main

import "machine"

const (
	// Site identifier written into every record
	SITE_ID = 1

	// Poll cadence of the main loop
	POLL_INTERVAL_MS = 2000

	// ADC configuration. TinyGo scales readings to 16 bits; the estimator
	// works on the board's native 10-bit range.
	ADC_RESOLUTION = 10
	ADC_MAX        = 1<<ADC_RESOLUTION - 1
	ADC_SHIFT      = 16 - ADC_RESOLUTION

	// MQ sensor analog inputs (A4, A6, A0, A2)
	PIN_MQ4   = machine.PF4
	PIN_MQ136 = machine.PF6
	PIN_MQ8   = machine.PF0
	PIN_MQ135 = machine.PF2

	// RS485 transceiver direction pins (D6, D7), driven together
	PIN_RS485_RE = machine.PH3
	PIN_RS485_DE = machine.PH4

	// Serial configuration
	// The console carries ~12 records of ~50 bytes every 2 s; 9600 baud
	// matches the host logger. The soil sensor ships at 4800 baud.
	CONSOLE_BAUD_RATE = 9600
	RS485_BAUD_RATE   = 4800
)

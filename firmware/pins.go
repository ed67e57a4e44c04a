//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_MS = 1   // ADC read interval in milliseconds
	NUM_SAMPLES        = 200 // Number of samples in one average

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits; Get() always scales to 16 bits

	// TMP36: 500 mV at 0 C, 10 mV per C
	TMP36_OFFSET_MV = 500
	TMP36_MV_PER_C  = 10

	// Sensor and status pins
	PIN_TEMPERATURE = machine.A1
	PIN_LED         = machine.LED

	// Serial configuration. Must match sensor.baud_rate on the host.
	UART_BAUD_RATE = 115200
)

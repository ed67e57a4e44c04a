//go:build tinygo

//go:generate tinygo flash -target=xiao

// Sensor bridge firmware. Answers every "M" line with one
// "temperature\n" line, the average of the last NUM_SAMPLES readings.
package main

import (
	"machine"
	"time"
)

var (
	adcTemperature machine.ADC
	uart           = machine.UART0

	// ADC averaging - running sum and count of the current batch
	temperatureSum   uint32
	temperatureCount int
	// Last complete average, 16 bit scaled; valid once a batch finished
	lastAverage uint16
	haveAverage bool

	// Timing
	lastADCRead time.Time

	// Serial buffer for reading lines
	serialBuffer [16]byte
	serialPos    int
)

func main() {
	PIN_LED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_TEMPERATURE.Configure(machine.PinConfig{Mode: machine.PinInput})

	adcTemperature = machine.ADC{Pin: PIN_TEMPERATURE}
	adcTemperature.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	lastADCRead = time.Now()

	for {
		now := time.Now()

		processSerial()

		if now.Sub(lastADCRead) >= time.Duration(SAMPLE_INTERVAL_MS)*time.Millisecond {
			readTemperatureADC()
			lastADCRead = now
		}

		if temperatureCount >= NUM_SAMPLES {
			lastAverage = uint16(temperatureSum / uint32(temperatureCount))
			haveAverage = true
			temperatureSum = 0
			temperatureCount = 0
		}

		// Small delay to prevent tight loop
		time.Sleep(100 * time.Microsecond)
	}
}

func readTemperatureADC() {
	temperatureSum += uint32(adcTemperature.Get())
	temperatureCount++
}

// centiCelsius converts a 16 bit scaled ADC value to hundredths of a degree.
func centiCelsius(raw uint16) int32 {
	mv := int32(uint32(raw) * ADC_REFERENCE_MV / 0xFFFF)
	return (mv - TMP36_OFFSET_MV) * 100 / TMP36_MV_PER_C
}

// writeMeasurement prints "21.50\n". Without a complete average the
// disconnected sentinel is reported so the host rejects the sample.
func writeMeasurement() {
	PIN_LED.High()
	defer PIN_LED.Low()

	if !haveAverage {
		print("-127.00\n")
		return
	}

	c := centiCelsius(lastAverage)
	if c < 0 {
		print("-")
		c = -c
	}
	print(c / 100)
	print(".")
	if c%100 < 10 {
		print("0")
	}
	print(c % 100)
	print("\n")
}

func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		// End of line
		if data == '\n' || data == '\r' {
			if serialPos == 1 && serialBuffer[0] == 'M' {
				writeMeasurement()
			}
			serialPos = 0
			continue
		}

		// Ignore whitespace
		if data == ' ' || data == '\t' {
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		}
	}
}

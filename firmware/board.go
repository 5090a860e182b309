//go:build tinygo

package main

import (
	"errors"
	"fmt"
	"machine"
	"time"

	"tinygo.org/x/drivers/bme280"

	"github.com/obseract/sciencebox/pkg/hal"
	"github.com/obseract/sciencebox/pkg/record"
)

var errNoBME = errors.New("bme280 not detected")

// analogInputs maps estimator channel handles onto ADC pins.
type analogInputs []machine.ADC

func (a analogInputs) ReadADC(channel int) int {
	if channel < 0 || channel >= len(a) {
		return 0
	}
	return int(a[channel].Get() >> ADC_SHIFT)
}

// directionPins drives the transceiver's RE and DE inputs together.
type directionPins struct {
	re, de machine.Pin
}

func (d directionPins) Set(high bool) error {
	d.re.Set(high)
	d.de.Set(high)
	return nil
}

// uartStream adapts a hardware UART to hal.ByteStream.
type uartStream struct {
	uart    *machine.UART
	baud    uint32
	clock   hal.Clock
	pending int
}

func (u *uartStream) Write(p []byte) (int, error) {
	n, err := u.uart.Write(p)
	u.pending += n
	return n, err
}

// Flush waits for the shift register to empty. The UART driver returns
// once the last byte is queued, so the remaining frame time is slept off.
func (u *uartStream) Flush() error {
	if u.pending == 0 {
		return nil
	}
	// 8N1 is 10 bits per byte
	bits := time.Duration(u.pending * 10)
	u.clock.Sleep(bits * time.Second / time.Duration(u.baud))
	u.pending = 0
	return nil
}

func (u *uartStream) Available() int {
	return u.uart.Buffered()
}

func (u *uartStream) ReadByte() (byte, error) {
	return u.uart.ReadByte()
}

// envSensor reads the BME280 on the I2C bus.
type envSensor struct {
	dev       bme280.Device
	connected bool
}

func newEnvSensor(bus *machine.I2C) *envSensor {
	dev := bme280.New(bus)
	dev.Configure()
	return &envSensor{dev: dev, connected: dev.Connected()}
}

func (s *envSensor) ReadEnvironment() (record.Environment, error) {
	if !s.connected {
		return record.Environment{}, errNoBME
	}

	temp, err := s.dev.ReadTemperature() // milli °C
	if err != nil {
		return record.Environment{}, err
	}
	hum, err := s.dev.ReadHumidity() // hundredths of %
	if err != nil {
		return record.Environment{}, err
	}
	press, err := s.dev.ReadPressure() // mPa
	if err != nil {
		return record.Environment{}, err
	}

	return record.Environment{
		TempC:       float64(temp) / 1000,
		HumidityPct: float64(hum) / 100,
		PressureHPa: float64(press) / 100000,
	}, nil
}

// consoleLogger prints status lines. The host logger skips them because
// they are not CSV records.
type consoleLogger struct{}

func (consoleLogger) Infof(format string, args ...any) {
	println(fmt.Sprintf(format, args...))
}

func (consoleLogger) Warnf(format string, args ...any) {
	println("WARN: " + fmt.Sprintf(format, args...))
}

func (consoleLogger) Debugw(string, ...any) {}

func (consoleLogger) Warnw(msg string, keysAndValues ...any) {
	println("WARN: " + msg + " " + fmt.Sprint(keysAndValues...))
}

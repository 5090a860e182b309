package hal

import "time"

// DefaultBaudRate is the factory baud rate of the 7-in-1 soil sensors.
const DefaultBaudRate = 4800

// AnalogSource reads instantaneous analog values in the range 0..ADC max.
type AnalogSource interface {
	ReadADC(channel int) int
}

// DigitalSink drives a single digital output line, such as the RS485
// transceiver drive-enable pin.
type DigitalSink interface {
	Set(high bool) error
}

// ByteStream is a half-duplex serial byte stream.
type ByteStream interface {
	Write(p []byte) (int, error)
	// Flush blocks until every written byte has physically left the UART.
	Flush() error
	// Available returns the number of bytes that can be read without blocking.
	Available() int
	ReadByte() (byte, error)
}

// Clock abstracts wall-clock time and blocking delays.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Ensure implementations satisfy the interfaces.
var (
	_ Clock        = SystemClock{}
	_ Clock        = (*FakeClock)(nil)
	_ AnalogSource = (*MockAnalog)(nil)
	_ DigitalSink  = NopLine{}
)

// NopLine is a DigitalSink for transceivers with automatic direction control.
type NopLine struct{}

// Set does nothing.
func (NopLine) Set(bool) error { return nil }

//go:build !tinygo

package hal

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// readPoll bounds how long Available may block while peeking the port.
const readPoll = time.Millisecond

var (
	_ ByteStream  = (*Serial)(nil)
	_ DigitalSink = (*RTSLine)(nil)
)

// PortConfig describes how to open a serial port.
type PortConfig struct {
	Name     string
	BaudRate int
	DataBits int
	Parity   string // N, E or O
	StopBits int
}

// Port represents a serial port discovered on the host.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(names))
	for _, name := range names {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// OpenPort opens a raw go.bug.st serial port with cfg applied.
func OpenPort(cfg PortConfig) (serial.Port, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.DataBits == 0 {
		cfg.DataBits = 8
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: serial.OneStopBit,
	}
	if cfg.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch strings.ToUpper(strings.TrimSpace(cfg.Parity)) {
	case "E", "EVEN":
		mode.Parity = serial.EvenParity
	case "O", "ODD":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}

	port, err := serial.Open(cfg.Name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Name, err)
	}
	return port, nil
}

// Serial adapts a go.bug.st serial port to ByteStream. Bytes peeked by
// Available are buffered until consumed by ReadByte.
type Serial struct {
	port serial.Port
	name string

	mu  sync.Mutex
	buf []byte
	tmp [64]byte
}

// NewSerial opens the port described by cfg and wraps it.
func NewSerial(cfg PortConfig) (*Serial, error) {
	port, err := OpenPort(cfg)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(readPoll); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", cfg.Name, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to reset input buffer on %s: %w", cfg.Name, err)
	}
	return &Serial{port: port, name: cfg.Name}, nil
}

// Name returns the device path.
func (s *Serial) Name() string {
	return s.name
}

// Write writes p to the port.
func (s *Serial) Write(p []byte) (int, error) {
	n, err := s.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("failed to write to %s: %w", s.name, err)
	}
	return n, nil
}

// Flush waits until the OS has transmitted all pending output.
func (s *Serial) Flush() error {
	if err := s.port.Drain(); err != nil {
		return fmt.Errorf("failed to drain %s: %w", s.name, err)
	}
	return nil
}

// Available peeks the port and reports buffered bytes.
func (s *Serial) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buf) > 0 {
		return len(s.buf)
	}
	n, err := s.port.Read(s.tmp[:])
	if err != nil || n == 0 {
		return 0
	}
	s.buf = append(s.buf, s.tmp[:n]...)
	return len(s.buf)
}

// ReadByte returns the next buffered byte, reading from the port if needed.
func (s *Serial) ReadByte() (byte, error) {
	if s.Available() == 0 {
		return 0, fmt.Errorf("no data available on %s", s.name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.buf[0]
	s.buf = s.buf[1:]
	return b, nil
}

// RTS returns the port's RTS line, which USB RS485 adapters commonly wire to
// the transceiver's DE/RE pins.
func (s *Serial) RTS() *RTSLine {
	return &RTSLine{port: s.port}
}

// Close closes the underlying port.
func (s *Serial) Close() error {
	return s.port.Close()
}

// RTSLine drives a serial port's RTS modem line.
type RTSLine struct {
	port serial.Port
}

// Set raises or lowers RTS.
func (l *RTSLine) Set(high bool) error {
	if err := l.port.SetRTS(high); err != nil {
		return fmt.Errorf("failed to set RTS: %w", err)
	}
	return nil
}

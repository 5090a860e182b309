package modbus

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	"github.com/obseract/sciencebox/pkg/hal"
)

// Fault selects a corruption the Simulator applies to its replies.
type Fault int

const (
	FaultNone Fault = iota
	FaultSilent
	FaultTruncate
	FaultWrongAddress
	FaultWrongFunction
	FaultWrongByteCount
	FaultBadCRC
)

// Simulator is an in-memory RS485 soil sensor. It implements hal.ByteStream
// from the master's point of view and answers read-holding-register requests
// from its register bank after a configurable latency.
type Simulator struct {
	slave   byte
	clock   hal.Clock
	latency time.Duration

	mu        sync.Mutex
	registers []uint16
	fault     Fault
	rx        []byte
	tx        []byte
	readyAt   time.Time
	requests  int
}

var _ hal.ByteStream = (*Simulator)(nil)

// NewSimulator creates a slave at address slave with a zeroed register bank.
func NewSimulator(slave byte, clock hal.Clock, latency time.Duration) *Simulator {
	if clock == nil {
		clock = hal.SystemClock{}
	}
	return &Simulator{
		slave:     slave,
		clock:     clock,
		latency:   latency,
		registers: make([]uint16, 16),
	}
}

// SetRegisters replaces the register bank starting at address 0.
func (s *Simulator) SetRegisters(regs []uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registers = append(s.registers[:0], regs...)
}

// SetSoil encodes r into the 7-in-1 register layout.
func (s *Simulator) SetSoil(r SoilReading) {
	s.SetRegisters([]uint16{
		uint16(math.Round(r.Moisture * 10)),
		uint16(int16(math.Round(r.Temperature * 10))),
		uint16(math.Round(r.Conductivity)),
		uint16(math.Round(r.PH * 10)),
		r.Nitrogen,
		r.Phosphorus,
		r.Potassium,
	})
}

// SetFault selects the corruption applied to subsequent replies.
func (s *Simulator) SetFault(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

// Requests returns the number of well-formed requests received.
func (s *Simulator) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// Write accepts request bytes from the master.
func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rx = append(s.rx, p...)
	return len(p), nil
}

// Flush completes the transmission; the slave parses what it received.
func (s *Simulator) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := s.rx
	s.rx = nil
	if len(req) != RequestLength || !CheckCRC(req) || req[0] != s.slave {
		return nil
	}
	s.requests++

	if req[1] != FuncReadHoldingRegisters {
		return nil
	}
	start := binary.BigEndian.Uint16(req[2:4])
	count := binary.BigEndian.Uint16(req[4:6])
	s.tx = s.reply(start, count)
	s.readyAt = s.clock.Now().Add(s.latency)
	return nil
}

// Available reports reply bytes once the latency has elapsed.
func (s *Simulator) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clock.Now().Before(s.readyAt) {
		return 0
	}
	return len(s.tx)
}

// ReadByte returns the next reply byte.
func (s *Simulator) ReadByte() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tx) == 0 || s.clock.Now().Before(s.readyAt) {
		return 0, io.EOF
	}
	b := s.tx[0]
	s.tx = s.tx[1:]
	return b, nil
}

// Close releases nothing; it exists so the simulator can stand in for a port.
func (s *Simulator) Close() error {
	return nil
}

func (s *Simulator) reply(start, count uint16) []byte {
	if s.fault == FaultSilent {
		return nil
	}

	frame := make([]byte, 3, ResponseLength(count))
	frame[0] = s.slave
	frame[1] = FuncReadHoldingRegisters
	frame[2] = byte(2 * count)
	for i := uint16(0); i < count; i++ {
		var v uint16
		if idx := int(start) + int(i); idx < len(s.registers) {
			v = s.registers[idx]
		}
		frame = binary.BigEndian.AppendUint16(frame, v)
	}

	switch s.fault {
	case FaultWrongAddress:
		frame[0]++
	case FaultWrongFunction:
		frame[1] = 0x04
	case FaultWrongByteCount:
		frame[2]--
	}
	frame = AppendCRC(frame)

	switch s.fault {
	case FaultBadCRC:
		frame[len(frame)-1] ^= 0xFF
	case FaultTruncate:
		frame = frame[:len(frame)/2]
	}
	return frame
}

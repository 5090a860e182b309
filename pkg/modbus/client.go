package modbus

import (
	"fmt"
	"time"

	"github.com/obseract/sciencebox/pkg/hal"
)

const (
	DefaultSlaveID       = 0x01
	DefaultStartRegister = 0x0000
	DefaultTimeout       = 500 * time.Millisecond
	// DefaultGuard is the line-settle time around a transmission.
	DefaultGuard = 50 * time.Microsecond
	// DefaultPollInterval is the idle wait between receive buffer polls.
	DefaultPollInterval = time.Millisecond
)

// Config is the static configuration of a register client.
type Config struct {
	SlaveID       byte
	StartRegister uint16
	RegisterCount uint16
	Timeout       time.Duration // Wall-clock response timeout
	Guard         time.Duration // Drive-enable settle time before and after sending
	PollInterval  time.Duration
}

// SoilReader produces soil readings. Implemented by Client and HostReader.
type SoilReader interface {
	ReadSoil() (SoilReading, error)
}

var (
	_ SoilReader = (*Client)(nil)
	_ SoilReader = (*HostReader)(nil)
)

// Client performs half-duplex Modbus RTU read-holding-registers transactions
// over an RS485 transceiver whose direction is driven by de. A Client owns
// the bus: it must not be used from more than one goroutine.
type Client struct {
	cfg    Config
	stream hal.ByteStream
	de     hal.DigitalSink
	clock  hal.Clock

	request []byte
	resp    []byte
}

// NewClient builds a client and its reusable request frame.
func NewClient(cfg Config, stream hal.ByteStream, de hal.DigitalSink, clock hal.Clock) *Client {
	if cfg.SlaveID == 0 {
		cfg.SlaveID = DefaultSlaveID
	}
	if cfg.RegisterCount == 0 {
		cfg.RegisterCount = SoilRegisterCount
	}
	if cfg.RegisterCount > MaxRegisters {
		cfg.RegisterCount = MaxRegisters
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Guard <= 0 {
		cfg.Guard = DefaultGuard
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if de == nil {
		de = hal.NopLine{}
	}
	if clock == nil {
		clock = hal.SystemClock{}
	}

	return &Client{
		cfg:     cfg,
		stream:  stream,
		de:      de,
		clock:   clock,
		request: BuildReadRequest(cfg.SlaveID, cfg.StartRegister, cfg.RegisterCount),
		resp:    make([]byte, 0, ResponseLength(cfg.RegisterCount)),
	}
}

// Request returns a copy of the request frame sent on every poll.
func (c *Client) Request() []byte {
	return append([]byte(nil), c.request...)
}

// ReadRegisters runs one transaction and returns the validated register
// payload (2 bytes per register, big-endian). The returned slice is only
// valid until the next call.
func (c *Client) ReadRegisters() ([]byte, error) {
	if err := c.transmit(); err != nil {
		return nil, err
	}

	resp, err := c.receive()
	if err != nil {
		return nil, err
	}
	if err := ValidateResponse(resp, c.cfg.SlaveID, c.cfg.RegisterCount); err != nil {
		return nil, err
	}
	return Registers(resp), nil
}

// ReadSoil polls the sensor and decodes the register block. Any failure
// yields a zero reading with Valid false.
func (c *Client) ReadSoil() (SoilReading, error) {
	data, err := c.ReadRegisters()
	if err != nil {
		return SoilReading{}, err
	}
	return DecodeSoilRegisters(data)
}

// transmit sends the request with the drive-enable line asserted for the
// whole frame plus a guard interval on each side.
func (c *Client) transmit() error {
	// Discard bytes left over from an earlier, late reply
	for c.stream.Available() > 0 {
		if _, err := c.stream.ReadByte(); err != nil {
			break
		}
	}

	if err := c.de.Set(true); err != nil {
		return fmt.Errorf("failed to enable transmitter: %w", err)
	}
	c.clock.Sleep(c.cfg.Guard)

	_, err := c.stream.Write(c.request)
	if err == nil {
		err = c.stream.Flush()
	}

	c.clock.Sleep(c.cfg.Guard)
	if derr := c.de.Set(false); derr != nil && err == nil {
		err = fmt.Errorf("failed to release transmitter: %w", derr)
	}
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return nil
}

// receive collects bytes until a full response has arrived or the wall-clock
// timeout expires. The byte count is the only framing signal.
func (c *Client) receive() ([]byte, error) {
	want := ResponseLength(c.cfg.RegisterCount)
	resp := c.resp[:0]
	deadline := c.clock.Now().Add(c.cfg.Timeout)

	for len(resp) < want && c.clock.Now().Before(deadline) {
		if c.stream.Available() == 0 {
			c.clock.Sleep(c.cfg.PollInterval)
			continue
		}
		b, err := c.stream.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		resp = append(resp, b)
	}
	c.resp = resp

	if len(resp) < want {
		return nil, fmt.Errorf("%w: got %d of %d bytes within %v",
			ErrIncompleteResponse, len(resp), want, c.cfg.Timeout)
	}
	return resp, nil
}

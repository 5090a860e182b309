//go:build !tinygo

package modbus

import (
	"fmt"
	"time"

	mb "github.com/goburrow/modbus"
	"github.com/goburrow/serial"
)

// HostConfig configures a HostReader.
type HostConfig struct {
	Port          string
	BaudRate      int
	DataBits      int
	StopBits      int
	Parity        string
	SlaveID       byte
	StartRegister uint16
	RegisterCount uint16
	Timeout       time.Duration
	// RS485 enables kernel-driven RTS direction control for adapters that
	// need it; Guard is then used as the RTS delay around each frame.
	RS485 bool
	Guard time.Duration
}

// HostReader reads the soil sensor through goburrow/modbus. Used on Linux
// hosts whose RS485 adapter switches direction by itself or through the
// kernel's RS485 mode, where the byte-level Client is unnecessary.
type HostReader struct {
	cfg     HostConfig
	handler *mb.RTUClientHandler
	client  mb.Client
}

// NewHostReader creates an unconnected reader.
func NewHostReader(cfg HostConfig) *HostReader {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 4800
	}
	if cfg.DataBits == 0 {
		cfg.DataBits = 8
	}
	if cfg.StopBits == 0 {
		cfg.StopBits = 1
	}
	if cfg.Parity == "" {
		cfg.Parity = "N"
	}
	if cfg.SlaveID == 0 {
		cfg.SlaveID = DefaultSlaveID
	}
	if cfg.RegisterCount == 0 {
		cfg.RegisterCount = SoilRegisterCount
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	h := mb.NewRTUClientHandler(cfg.Port)
	h.BaudRate = cfg.BaudRate
	h.DataBits = cfg.DataBits
	h.StopBits = cfg.StopBits
	h.Parity = cfg.Parity
	h.SlaveId = cfg.SlaveID
	h.Timeout = cfg.Timeout
	if cfg.RS485 {
		h.RS485 = serial.RS485Config{
			Enabled:            true,
			DelayRtsBeforeSend: cfg.Guard,
			DelayRtsAfterSend:  cfg.Guard,
			RtsHighDuringSend:  true,
			RtsHighAfterSend:   false,
		}
	}

	return &HostReader{
		cfg:     cfg,
		handler: h,
		client:  mb.NewClient(h),
	}
}

// Connect opens the serial port.
func (r *HostReader) Connect() error {
	if err := r.handler.Connect(); err != nil {
		return fmt.Errorf("failed to connect %s: %w", r.cfg.Port, err)
	}
	return nil
}

// Close closes the serial port.
func (r *HostReader) Close() error {
	return r.handler.Close()
}

// ReadSoil reads and decodes the soil register block.
func (r *HostReader) ReadSoil() (SoilReading, error) {
	data, err := r.client.ReadHoldingRegisters(r.cfg.StartRegister, r.cfg.RegisterCount)
	if err != nil {
		return SoilReading{}, fmt.Errorf("failed to read holding registers from %s: %w", r.cfg.Port, err)
	}
	return DecodeSoilRegisters(data)
}

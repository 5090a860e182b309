package board

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/obseract/sciencebox/pkg/calibration"
	"github.com/obseract/sciencebox/pkg/config"
	"github.com/obseract/sciencebox/pkg/gas"
	"github.com/obseract/sciencebox/pkg/hal"
	"github.com/obseract/sciencebox/pkg/modbus"
	"github.com/obseract/sciencebox/pkg/record"
	"github.com/obseract/sciencebox/pkg/station"
)

// Mock simulates the board's console output for testing and development.
// It runs the real station pipeline over simulated sensors on a fake clock,
// so warm-up and calibration complete instantly while lines are emitted at
// the configured poll interval.
type Mock struct {
	cfg *config.Config

	lines     chan Line
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool

	clock   *hal.FakeClock
	station *station.Station
}

// NewMock creates a new mocked board. A nil cfg uses config.Default.
func NewMock(cfg *config.Config) *Mock {
	if cfg == nil {
		cfg = config.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Mock{
		cfg:    cfg,
		lines:  make(chan Line, DefaultBufferSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Connect boots the simulated board and starts emitting lines.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.clock = hal.NewFakeClock(time.Now())
	m.connected = true

	go m.run()

	return nil
}

// Close stops the mocked board and waits for the lines channel to close.
func (m *Mock) Close() error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.connected = false
	m.mu.Unlock()

	<-m.done
	return nil
}

// Lines returns the channel of parsed lines.
func (m *Mock) Lines() <-chan Line {
	return m.lines
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Infof emits calibration progress as chatter.
func (m *Mock) Infof(format string, args ...any) {
	m.emit(fmt.Sprintf(format, args...))
}

// Warnf emits calibration warnings as chatter.
func (m *Mock) Warnf(format string, args ...any) {
	m.emit("WARN: " + fmt.Sprintf(format, args...))
}

func (m *Mock) emit(raw string) bool {
	select {
	case m.lines <- ParseLine(raw, time.Now()):
		return true
	case <-m.ctx.Done():
		return false
	}
}

func (m *Mock) boot() {
	cfg := m.cfg

	m.emit("Science box starting")
	calibration.New(cfg.Calibration(), m.clock, m).WarmUp()

	// Simulated gas events are timed from here
	analog := hal.NewMockAnalog(cfg.MockAnalog(), m.clock)

	sim := modbus.NewSimulator(cfg.Modbus.SlaveID, m.clock, cfg.Mock.SoilLatency)
	sim.SetSoil(modbus.SoilReading{
		Moisture:     23.4,
		Temperature:  21.5,
		Conductivity: 310,
		PH:           6.6,
		Nitrogen:     18,
		Phosphorus:   9,
		Potassium:    42,
	})
	soil := modbus.NewClient(cfg.ModbusClient(), sim, hal.NopLine{}, m.clock)

	var (
		gases    []station.Gas
		channels []calibration.Channel
	)
	for _, g := range cfg.Gas {
		e := gas.New(cfg.Estimator(g), analog, m.clock)
		gases = append(gases, station.Gas{Estimator: e, Curve: g.Curve(), Unit: g.Unit, CompensateCO2: g.CompensateCO2})
		channels = append(channels, calibration.Channel{Estimator: e, CleanAirRatio: g.CleanAirRatio})
	}

	calibration.New(cfg.Calibration(), m.clock, m, channels...).CalibrateAll()

	m.station = station.New(station.Config{
		SiteID: cfg.SiteID,
		CO2:    cfg.CO2,
	}, m.clock, nil, station.FixedEnvironment{
		TempC:       cfg.Mock.TempC,
		HumidityPct: cfg.Mock.HumidityPct,
		PressureHPa: cfg.Mock.PressureHPa,
	}, soil, gases...)
}

// run generates the board's output.
func (m *Mock) run() {
	defer close(m.done)
	defer close(m.lines)

	m.boot()
	if !m.emit(record.Header) || !m.emit(modbus.SoilCSVHeader) {
		return
	}

	interval := m.cfg.Station.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p := m.station.Poll()
		for _, r := range p.Records {
			if !m.emit(r.String()) {
				return
			}
		}
		if p.Soil != nil {
			if !m.emit(strings.Join(p.Soil.Reading.CSVFields(record.ErrorMarker), ",")) {
				return
			}
		}

		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.clock.Advance(interval)
		}
	}
}

package station

import (
	"context"
	"sync"
	"time"

	"github.com/obseract/sciencebox/pkg/gas"
	"github.com/obseract/sciencebox/pkg/hal"
	"github.com/obseract/sciencebox/pkg/modbus"
	"github.com/obseract/sciencebox/pkg/record"
)

// Logger is the subset of *zap.SugaredLogger the station reports through.
type Logger interface {
	Debugw(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debugw(string, ...any) {}
func (nopLogger) Warnw(string, ...any)  {}

// EnvSource reads the ambient temperature, humidity and pressure.
type EnvSource interface {
	ReadEnvironment() (record.Environment, error)
}

// FixedEnvironment is an EnvSource that always reports the same conditions.
type FixedEnvironment record.Environment

// ReadEnvironment implements EnvSource.
func (f FixedEnvironment) ReadEnvironment() (record.Environment, error) {
	return record.Environment(f), nil
}

// Gas is one calibrated gas channel polled every cycle.
type Gas struct {
	Estimator     *gas.Estimator
	Curve         gas.Curve
	Unit          string
	CompensateCO2 bool
}

// Config contains station parameters.
type Config struct {
	SiteID   int
	Interval time.Duration
	CO2      gas.CO2Reference
}

// Soil is the outcome of one soil sensor transaction.
type Soil struct {
	Reading  modbus.SoilReading
	Err      error
	Warnings []string
}

// Poll is everything measured in one cycle.
type Poll struct {
	TimeMs  uint64
	Env     record.Environment
	Records []record.Record // Gas channels first, then BME_TEMP, BME_HUM, BME_PRESS if present
	Soil    *Soil           // nil when no soil sensor is attached
}

// Station runs the measurement loop: every gas channel, the environment
// sensor and the soil probe are read once per cycle.
type Station struct {
	cfg   Config
	clock hal.Clock
	log   Logger
	env   EnvSource
	soil  modbus.SoilReader
	gases []Gas
	start time.Time

	callbacks []func(Poll)
	cbMu      sync.RWMutex
}

// New creates a station. env and soil may be nil when the sensor is absent.
func New(cfg Config, clock hal.Clock, log Logger, env EnvSource, soil modbus.SoilReader, gases ...Gas) *Station {
	if log == nil {
		log = nopLogger{}
	}
	if cfg.CO2.Max == 0 {
		cfg.CO2 = gas.DefaultCO2Reference()
	}
	return &Station{
		cfg:   cfg,
		clock: clock,
		log:   log,
		env:   env,
		soil:  soil,
		gases: gases,
		start: clock.Now(),
	}
}

// OnPoll registers a callback invoked after every cycle.
func (s *Station) OnPoll(cb func(Poll)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// Poll performs one measurement cycle.
func (s *Station) Poll() Poll {
	p := Poll{
		TimeMs: uint64(s.clock.Now().Sub(s.start).Milliseconds()),
	}

	var (
		env    record.Environment
		envErr error
	)
	if s.env != nil {
		if env, envErr = s.env.ReadEnvironment(); envErr != nil {
			s.log.Warnw("environment read failed", "error", envErr)
		}
	}
	p.Env = env
	envOK := s.env != nil && envErr == nil

	for _, g := range s.gases {
		p.Records = append(p.Records, s.readGas(p.TimeMs, g, env, envOK))
	}

	if s.env != nil {
		envRecords := record.EnvironmentRecords(p.TimeMs, s.cfg.SiteID, env)
		for i := range envRecords {
			envRecords[i].Valid = envOK
		}
		p.Records = append(p.Records, envRecords...)
	}

	if s.soil != nil {
		p.Soil = s.readSoil()
	}
	return p
}

func (s *Station) readGas(timeMs uint64, g Gas, env record.Environment, envOK bool) record.Record {
	name := g.Estimator.Name()
	r := record.Record{
		TimeMs: timeMs,
		Site:   s.cfg.SiteID,
		Sensor: name,
		Unit:   g.Unit,
		Env:    env,
	}

	value, outcome := g.Estimator.ReadSmoothed(g.Curve)
	switch outcome {
	case gas.Held:
		s.log.Warnw("gas read failed", "sensor", name, "error", g.Estimator.LastError())
		return r
	case gas.SpikeRejected:
		s.log.Debugw("spike rejected", "sensor", name, "average", value)
	}

	if g.CompensateCO2 && envOK {
		value = gas.CompensateCO2(value, env.TempC, env.HumidityPct, s.cfg.CO2)
	}
	r.Value = value
	r.Valid = true
	return r
}

func (s *Station) readSoil() *Soil {
	reading, err := s.soil.ReadSoil()
	if err != nil {
		s.log.Warnw("soil read failed", "error", err)
		return &Soil{Reading: reading, Err: err}
	}
	warnings := reading.Check()
	for _, w := range warnings {
		s.log.Warnw("soil reading out of range", "check", w)
	}
	return &Soil{Reading: reading, Warnings: warnings}
}

// Run polls every Interval until ctx is cancelled, handing each cycle to
// the registered callbacks.
func (s *Station) Run(ctx context.Context) error {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.notify(s.Poll())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Station) notify(p Poll) {
	s.cbMu.RLock()
	callbacks := make([]func(Poll), len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.cbMu.RUnlock()

	for _, cb := range callbacks {
		cb(p)
	}
}

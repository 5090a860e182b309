package calibration

import (
	"time"

	"github.com/obseract/sciencebox/pkg/gas"
	"github.com/obseract/sciencebox/pkg/hal"
)

const (
	// DefaultWarmUp is the MQ heater burn-in time before calibration.
	DefaultWarmUp = 120 * time.Second
	// DefaultReportEvery is how often the warm-up countdown is logged.
	DefaultReportEvery = 10 * time.Second
)

// Logger is the logging surface the coordinator needs. *zap.SugaredLogger
// satisfies it.
type Logger interface {
	Infof(template string, args ...any)
	Warnf(template string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...any) {}
func (nopLogger) Warnf(string, ...any) {}

// Channel pairs an estimator with its datasheet clean-air Rs/Ro ratio.
type Channel struct {
	Estimator     *gas.Estimator
	CleanAirRatio float64
}

// Config controls warm-up and calibration sampling.
type Config struct {
	WarmUp      time.Duration
	ReportEvery time.Duration
	Samples     int
	Delay       time.Duration
}

// Result is the calibration outcome of one channel.
type Result struct {
	Name         string
	BaselineKOhm float64
	OK           bool
}

// Coordinator sequences the one-time clean-air calibration of a sensor array.
type Coordinator struct {
	cfg      Config
	channels []Channel
	clock    hal.Clock
	log      Logger
}

// New creates a coordinator over channels, calibrated in the given order.
func New(cfg Config, clock hal.Clock, log Logger, channels ...Channel) *Coordinator {
	if cfg.WarmUp < 0 {
		cfg.WarmUp = 0
	}
	if cfg.ReportEvery <= 0 {
		cfg.ReportEvery = DefaultReportEvery
	}
	if cfg.Samples <= 0 {
		cfg.Samples = gas.DefaultCleanAirSamples
	}
	if cfg.Delay < 0 {
		cfg.Delay = gas.DefaultCleanAirDelay
	}
	if clock == nil {
		clock = hal.SystemClock{}
	}
	if log == nil {
		log = nopLogger{}
	}

	return &Coordinator{
		cfg:      cfg,
		channels: channels,
		clock:    clock,
		log:      log,
	}
}

// WarmUp blocks for the configured heater burn-in, logging the remaining
// time every ReportEvery.
func (c *Coordinator) WarmUp() {
	if c.cfg.WarmUp == 0 {
		return
	}

	c.log.Infof("Warming MQ sensors (%v)...", c.cfg.WarmUp)
	for remaining := c.cfg.WarmUp; remaining > 0; {
		if remaining%c.cfg.ReportEvery == 0 {
			c.log.Infof("%v remaining...", remaining)
		}
		step := remaining % c.cfg.ReportEvery
		if step == 0 {
			step = c.cfg.ReportEvery
		}
		c.clock.Sleep(step)
		remaining -= step
	}
	c.log.Infof("Warm-up complete")
}

// CalibrateAll calibrates every channel in order and returns the baselines.
func (c *Coordinator) CalibrateAll() []Result {
	c.log.Infof("Calibrating %d MQ sensors in clean air...", len(c.channels))

	for _, ch := range c.channels {
		if !ch.Estimator.Calibrate(ch.CleanAirRatio, c.cfg.Samples, c.cfg.Delay) {
			c.log.Warnf("%s calibration failed (clean-air ratio %.2f)", ch.Estimator.Name(), ch.CleanAirRatio)
			continue
		}
		c.log.Infof("%s Ro: %.3f kOhm", ch.Estimator.Name(), ch.Estimator.Baseline())
	}

	c.log.Infof("Calibration complete")
	return c.Baselines()
}

// Baselines reports the current baseline of every channel.
func (c *Coordinator) Baselines() []Result {
	out := make([]Result, 0, len(c.channels))
	for _, ch := range c.channels {
		out = append(out, Result{
			Name:         ch.Estimator.Name(),
			BaselineKOhm: ch.Estimator.Baseline(),
			OK:           ch.Estimator.Calibrated(),
		})
	}
	return out
}

// Calibrated reports whether every channel holds a baseline.
func (c *Coordinator) Calibrated() bool {
	for _, ch := range c.channels {
		if !ch.Estimator.Calibrated() {
			return false
		}
	}
	return true
}

package gas

import (
	"time"

	"github.com/obseract/sciencebox/pkg/hal"
)

const (
	// DefaultADCMax is the full-scale reading of a 10-bit ADC.
	DefaultADCMax = 1023
	// DefaultVRef is the ADC reference voltage (V).
	DefaultVRef = 5.0
	// DefaultLoadOhms is the common MQ breakout load resistor.
	DefaultLoadOhms = 10000.0

	// OpenCircuitKOhm is reported for adc ≤ 0 (sensor missing).
	OpenCircuitKOhm = 999.9
	// ShortCircuitKOhm is reported for adc ≥ ADC max (saturated input).
	ShortCircuitKOhm = 0.01
	// Invalid marks a failed ratio or concentration.
	Invalid = -1.0

	DefaultSampleCount     = 8
	DefaultSampleDelay     = 5 * time.Millisecond
	DefaultCleanAirSamples = 50
	DefaultCleanAirDelay   = 50 * time.Millisecond

	// Averaged readings outside [DefaultMinPlausible, DefaultMaxPlausible]
	// come from a floating or unpowered input.
	DefaultMinPlausible = 10
	DefaultMaxPlausible = 1000
)

// Config holds the fixed hardware parameters of one sensor channel.
type Config struct {
	Name         string
	Channel      int           // Analog input handle
	LoadOhms     float64       // Load resistor RL (Ω)
	ADCMax       int           // Full-scale ADC reading
	VRef         float64       // ADC reference (V)
	SampleCount  int           // Samples per averaged read
	SampleDelay  time.Duration // Delay after each sample
	MinPlausible int           // Lowest averaged ADC value accepted
	MaxPlausible int           // Highest averaged ADC value accepted
	Filter       FilterConfig
}

// Estimator converts raw analog samples from a resistive MQ-family sensor into
// a smoothed gas concentration in ppm.
type Estimator struct {
	cfg   Config
	src   hal.AnalogSource
	clock hal.Clock

	baseline float64 // Ro in kΩ, Invalid until calibrated
	filter   *EMA
	lastErr  error
}

// New creates an uncalibrated estimator reading cfg.Channel from src.
func New(cfg Config, src hal.AnalogSource, clock hal.Clock) *Estimator {
	if cfg.LoadOhms <= 0 {
		cfg.LoadOhms = DefaultLoadOhms
	}
	if cfg.ADCMax <= 0 {
		cfg.ADCMax = DefaultADCMax
	}
	if cfg.VRef <= 0 {
		cfg.VRef = DefaultVRef
	}
	if cfg.SampleCount <= 0 {
		cfg.SampleCount = DefaultSampleCount
	}
	if cfg.SampleDelay < 0 {
		cfg.SampleDelay = DefaultSampleDelay
	}
	if cfg.MinPlausible == 0 && cfg.MaxPlausible == 0 {
		cfg.MinPlausible = DefaultMinPlausible
		cfg.MaxPlausible = DefaultMaxPlausible
	}
	if clock == nil {
		clock = hal.SystemClock{}
	}

	return &Estimator{
		cfg:      cfg,
		src:      src,
		clock:    clock,
		baseline: Invalid,
		filter:   NewEMA(cfg.Filter),
	}
}

// Name returns the channel name.
func (e *Estimator) Name() string {
	return e.cfg.Name
}

// SampleRaw performs a single immediate analog read.
func (e *Estimator) SampleRaw() int {
	return e.src.ReadADC(e.cfg.Channel)
}

// SampleAveraged returns the integer mean of count raw samples, sleeping delay
// after each one. Blocks for count×delay.
func (e *Estimator) SampleAveraged(count int, delay time.Duration) int {
	if count < 1 {
		count = 1
	}

	var sum int64
	for i := 0; i < count; i++ {
		sum += int64(e.SampleRaw())
		e.clock.Sleep(delay)
	}
	return int(sum / int64(count))
}

// Voltage converts an ADC reading to volts.
func (e *Estimator) Voltage(adc int) float64 {
	return float64(adc) * e.cfg.VRef / float64(e.cfg.ADCMax)
}

// ResistanceFromSample returns the sensor resistance Rs in kΩ for an ADC reading.
func (e *Estimator) ResistanceFromSample(adc int) float64 {
	return ResistanceKOhm(adc, e.cfg.ADCMax, e.cfg.LoadOhms)
}

// ResistanceKOhm inverts the voltage divider: Rs = RL·(ADCmax − adc)/adc, in kΩ.
// adc ≤ 0 yields OpenCircuitKOhm and adc ≥ adcMax yields ShortCircuitKOhm.
func ResistanceKOhm(adc, adcMax int, loadOhms float64) float64 {
	if adc <= 0 {
		return OpenCircuitKOhm
	}
	if adc >= adcMax {
		return ShortCircuitKOhm
	}
	return float64(adcMax-adc) / float64(adc) * (loadOhms / 1000.0)
}

// MeasureCleanAirResistance averages Rs over count individual samples. Only
// meaningful after thermal warm-up with the sensor in gas-free air.
func (e *Estimator) MeasureCleanAirResistance(count int, delay time.Duration) float64 {
	if count < 1 {
		count = 1
	}

	var sum float64
	for i := 0; i < count; i++ {
		sum += e.ResistanceFromSample(e.SampleRaw())
		e.clock.Sleep(delay)
	}
	return sum / float64(count)
}

// Calibrate sets the baseline Ro = Rs(clean air) / cleanAirRatio. The baseline
// is left untouched when the measurement or ratio is not positive. Reports
// whether a new baseline was stored.
func (e *Estimator) Calibrate(cleanAirRatio float64, count int, delay time.Duration) bool {
	if cleanAirRatio <= 0 {
		return false
	}
	rs := e.MeasureCleanAirResistance(count, delay)
	if rs <= 0 {
		return false
	}
	e.baseline = rs / cleanAirRatio
	return true
}

// Baseline returns Ro in kΩ, or Invalid when uncalibrated.
func (e *Estimator) Baseline() float64 {
	return e.baseline
}

// SetBaseline installs a known Ro. Non-positive values reset the channel to
// the uncalibrated state.
func (e *Estimator) SetBaseline(kohm float64) {
	if kohm <= 0 {
		e.baseline = Invalid
		return
	}
	e.baseline = kohm
}

// Calibrated reports whether a baseline is set.
func (e *Estimator) Calibrated() bool {
	return e.baseline > 0
}

// RatioToBaseline returns Rs/Ro. Fails with Invalid when uncalibrated or rs ≤ 0.
func (e *Estimator) RatioToBaseline(rs float64) (float64, error) {
	if !e.Calibrated() {
		return Invalid, ErrUncalibrated
	}
	if rs <= 0 {
		return Invalid, ErrSensorDisconnected
	}
	return rs / e.baseline, nil
}

// ReadInstant takes one averaged reading and converts it to ppm on curve.
// Implausible ADC averages are reported as ErrSensorDisconnected.
func (e *Estimator) ReadInstant(curve Curve) (float64, error) {
	if !e.Calibrated() {
		return Invalid, ErrUncalibrated
	}

	adc := e.SampleAveraged(e.cfg.SampleCount, e.cfg.SampleDelay)
	if adc < e.cfg.MinPlausible || adc > e.cfg.MaxPlausible {
		return Invalid, ErrSensorDisconnected
	}

	ratio, err := e.RatioToBaseline(e.ResistanceFromSample(adc))
	if err != nil {
		return Invalid, err
	}
	return ConcentrationFromRatio(ratio, curve), nil
}

// ReadSmoothed filters ReadInstant through the channel's EMA. On a sensor
// error the last good value (0 before the first one) is returned with Held;
// LastError then reports the cause.
func (e *Estimator) ReadSmoothed(curve Curve) (float64, Outcome) {
	ppm, err := e.ReadInstant(curve)
	e.lastErr = err
	if err != nil {
		return e.filter.Value(), Held
	}
	return e.filter.Update(ppm)
}

// LastError returns the error of the most recent ReadSmoothed call.
func (e *Estimator) LastError() error {
	return e.lastErr
}

// Filter exposes the channel's smoothing state.
func (e *Estimator) Filter() *EMA {
	return e.filter
}

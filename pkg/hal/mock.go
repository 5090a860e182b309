package hal

import (
	"math"
	"sync"
	"time"
)

// MockChannel describes one simulated resistive gas sensor wired as the upper
// leg of a voltage divider with a load resistor to ground.
type MockChannel struct {
	LoadOhms     float64 // Load resistor (Ω)
	CleanAirKOhm float64 // Sensor resistance in clean air (kΩ)
	EventKOhm    float64 // Sensor resistance while a gas event is active (kΩ), 0 disables events
}

// MockAnalogConfig configures MockAnalog.
type MockAnalogConfig struct {
	ADCMax        int
	NoiseLevel    float64       // Relative resistance noise amplitude (0.01 = ±1%)
	EventPeriod   time.Duration // Time between simulated gas events
	EventDuration time.Duration // Length of each gas event
	Channels      map[int]MockChannel
}

// MockAnalog simulates the analog front end of an MQ sensor array.
// Channels that are not configured read as a floating, disconnected input.
type MockAnalog struct {
	cfg   MockAnalogConfig
	clock Clock
	start time.Time

	mu sync.Mutex
}

// NewMockAnalog creates a simulated analog source.
func NewMockAnalog(cfg MockAnalogConfig, clock Clock) *MockAnalog {
	if cfg.ADCMax == 0 {
		cfg.ADCMax = 1023
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &MockAnalog{
		cfg:   cfg,
		clock: clock,
		start: clock.Now(),
	}
}

// ReadADC returns the simulated divider reading for channel.
func (m *MockAnalog) ReadADC(channel int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.cfg.Channels[channel]
	if !ok || ch.LoadOhms <= 0 {
		return 0
	}

	elapsed := m.clock.Now().Sub(m.start)
	rs := ch.CleanAirKOhm
	if m.eventActive(elapsed) && ch.EventKOhm > 0 {
		rs = ch.EventKOhm
	}

	// Deterministic pseudo-noise, same shape as a slow beat of two tones
	noise := (math.Sin(float64(elapsed.Milliseconds())*0.37+float64(channel)) +
		math.Cos(float64(elapsed.Milliseconds())*0.53)) * 0.5 * m.cfg.NoiseLevel
	rs *= 1 + noise

	// Vout/Vref = RL / (RL + Rs)
	rsOhms := rs * 1000.0
	adc := float64(m.cfg.ADCMax) * ch.LoadOhms / (ch.LoadOhms + rsOhms)
	if adc < 0 {
		adc = 0
	} else if adc > float64(m.cfg.ADCMax) {
		adc = float64(m.cfg.ADCMax)
	}
	return int(math.Round(adc))
}

func (m *MockAnalog) eventActive(elapsed time.Duration) bool {
	if m.cfg.EventPeriod <= 0 || m.cfg.EventDuration <= 0 {
		return false
	}
	phase := elapsed % m.cfg.EventPeriod
	return elapsed >= m.cfg.EventPeriod && phase < m.cfg.EventDuration
}

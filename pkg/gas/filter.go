package gas

const (
	// DefaultAlpha gives roughly a ten-sample time constant.
	DefaultAlpha = 0.1
	// DefaultSpikeThreshold rejects readings above 10× the current average.
	DefaultSpikeThreshold = 10.0
	// DefaultSpikeFloor disables spike rejection while the average is tiny.
	DefaultSpikeFloor = 0.1
)

// FilterConfig parameterises the EMA filter.
type FilterConfig struct {
	Alpha          float64 `yaml:"alpha"`
	SpikeThreshold float64 `yaml:"spike_threshold"`
	SpikeFloor     float64 `yaml:"spike_floor"`
}

// Outcome describes what a filter update did.
type Outcome int

const (
	// Held means the input was an error and the previous value was kept.
	Held Outcome = iota
	// Seeded means the first valid reading initialised the filter.
	Seeded
	// Updated means the reading was blended into the average.
	Updated
	// SpikeRejected means the reading was discarded as noise.
	SpikeRejected
)

func (o Outcome) String() string {
	switch o {
	case Held:
		return "held"
	case Seeded:
		return "seeded"
	case Updated:
		return "updated"
	case SpikeRejected:
		return "spike_rejected"
	default:
		return "unknown"
	}
}

// EMA is an exponential moving average with spike rejection.
type EMA struct {
	cfg         FilterConfig
	value       float64
	initialized bool
}

// NewEMA creates an uninitialised filter. Zero fields take defaults.
func NewEMA(cfg FilterConfig) *EMA {
	if cfg.Alpha <= 0 || cfg.Alpha > 1 {
		cfg.Alpha = DefaultAlpha
	}
	if cfg.SpikeThreshold <= 0 {
		cfg.SpikeThreshold = DefaultSpikeThreshold
	}
	if cfg.SpikeFloor <= 0 {
		cfg.SpikeFloor = DefaultSpikeFloor
	}
	return &EMA{cfg: cfg}
}

// Update feeds one valid reading and returns the smoothed value.
func (f *EMA) Update(raw float64) (float64, Outcome) {
	if !f.initialized {
		f.value = raw
		f.initialized = true
		return f.value, Seeded
	}

	if raw > f.value*f.cfg.SpikeThreshold && f.value > f.cfg.SpikeFloor {
		return f.value, SpikeRejected
	}

	f.value = f.cfg.Alpha*raw + (1-f.cfg.Alpha)*f.value
	return f.value, Updated
}

// Value returns the smoothed value, or 0 before the first reading.
func (f *EMA) Value() float64 {
	if !f.initialized {
		return 0
	}
	return f.value
}

// Initialized reports whether the filter has been seeded.
func (f *EMA) Initialized() bool {
	return f.initialized
}

// Reset returns the filter to the uninitialised state.
func (f *EMA) Reset() {
	f.value = 0
	f.initialized = false
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obseract/sciencebox/pkg/calibration"
	"github.com/obseract/sciencebox/pkg/gas"
	"github.com/obseract/sciencebox/pkg/hal"
	"github.com/obseract/sciencebox/pkg/modbus"
	"github.com/obseract/sciencebox/pkg/telemetry"
)

// Config represents the science box configuration.
type Config struct {
	SiteID   int              `yaml:"site_id"`
	ADC      ADCConfig        `yaml:"adc"`
	Sampling SamplingConfig   `yaml:"sampling"`
	Filter   gas.FilterConfig `yaml:"filter"`
	WarmUp   WarmUpConfig     `yaml:"warmup"`
	Gas      []GasChannel     `yaml:"gas"`
	CO2      gas.CO2Reference `yaml:"co2"`
	Modbus   ModbusConfig     `yaml:"modbus"`
	Station  StationConfig    `yaml:"station"`
	Logger   LoggerConfig     `yaml:"logger"`
	MQTT     MQTTConfig       `yaml:"mqtt"`
	Mock     MockConfig       `yaml:"mock"`
}

// ADCConfig describes the analog front end.
type ADCConfig struct {
	Max  int     `yaml:"max"`  // Full-scale reading (1023 for 10-bit)
	VRef float64 `yaml:"vref"` // Reference voltage (V)
}

// SamplingConfig contains gas sampling parameters.
type SamplingConfig struct {
	Count         int           `yaml:"count"`           // Samples per averaged read
	Delay         time.Duration `yaml:"delay"`           // Delay after each sample
	CleanAirCount int           `yaml:"clean_air_count"` // Samples per clean-air measurement
	CleanAirDelay time.Duration `yaml:"clean_air_delay"`
	MinPlausible  int           `yaml:"min_plausible"` // Lowest believable averaged ADC value
	MaxPlausible  int           `yaml:"max_plausible"` // Highest believable averaged ADC value
}

// WarmUpConfig controls the heater burn-in before calibration.
type WarmUpConfig struct {
	Duration    time.Duration `yaml:"duration"`
	ReportEvery time.Duration `yaml:"report_every"`
}

// GasChannel describes one MQ sensor.
type GasChannel struct {
	Name          string  `yaml:"name"`
	Channel       int     `yaml:"channel"`
	LoadOhms      float64 `yaml:"load_ohms"`
	CleanAirRatio float64 `yaml:"clean_air_ratio"`
	Slope         float64 `yaml:"slope"`
	Intercept     float64 `yaml:"intercept"`
	Unit          string  `yaml:"unit"`
	CompensateCO2 bool    `yaml:"compensate_co2"`
}

// Curve returns the channel's log-log curve.
func (g GasChannel) Curve() gas.Curve {
	return gas.Curve{M: g.Slope, B: g.Intercept}
}

// ModbusConfig contains the RS485 soil sensor parameters.
type ModbusConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Port          string        `yaml:"port"`
	BaudRate      int           `yaml:"baud_rate"`
	Parity        string        `yaml:"parity"`
	SlaveID       byte          `yaml:"slave_id"`
	StartRegister uint16        `yaml:"start_register"`
	RegisterCount uint16        `yaml:"register_count"`
	Timeout       time.Duration `yaml:"timeout"`
	Guard         time.Duration `yaml:"guard"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	// Direction selects how the transceiver's DE/RE line is driven:
	// "rts" toggles the port's RTS line, "auto" assumes self-switching
	// hardware, "kernel" uses the Linux RS485 ioctl through goburrow/serial.
	Direction string `yaml:"direction"`
}

// StationConfig contains the polling cadence.
type StationConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// LoggerConfig contains host-side serial logger parameters.
type LoggerConfig struct {
	Port      string        `yaml:"port"`
	BaudRate  int           `yaml:"baud_rate"`
	OutputDir string        `yaml:"output_dir"`
	DBPath    string        `yaml:"db_path"`
	Duration  time.Duration `yaml:"duration"`
}

// MQTTConfig contains the optional telemetry uplink.
type MQTTConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"client_id"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	TopicPrefix string        `yaml:"topic_prefix"`
	QoS         byte          `yaml:"qos"`
	Timeout     time.Duration `yaml:"timeout"`
}

// MockConfig contains simulated hardware parameters.
type MockConfig struct {
	NoiseLevel    float64       `yaml:"noise_level"`
	EventPeriod   time.Duration `yaml:"event_period"`
	EventDuration time.Duration `yaml:"event_duration"`
	Channels      []MockChannel `yaml:"channels"`
	SoilLatency   time.Duration `yaml:"soil_latency"`
	TempC         float64       `yaml:"temp_c"`
	HumidityPct   float64       `yaml:"hum_pct"`
	PressureHPa   float64       `yaml:"press_hpa"`
}

// MockChannel sets the simulated resistance of a named gas channel.
type MockChannel struct {
	Name         string  `yaml:"name"`
	CleanAirKOhm float64 `yaml:"clean_air_kohm"`
	EventKOhm    float64 `yaml:"event_kohm"`
}

// Default returns a default configuration matching the rover hardware.
func Default() *Config {
	cfg := &Config{
		SiteID: 1,
		ADC: ADCConfig{
			Max:  gas.DefaultADCMax,
			VRef: gas.DefaultVRef,
		},
		Sampling: SamplingConfig{
			Count:         gas.DefaultSampleCount,
			Delay:         gas.DefaultSampleDelay,
			CleanAirCount: gas.DefaultCleanAirSamples,
			CleanAirDelay: gas.DefaultCleanAirDelay,
			MinPlausible:  gas.DefaultMinPlausible,
			MaxPlausible:  gas.DefaultMaxPlausible,
		},
		Filter: gas.FilterConfig{
			Alpha:          gas.DefaultAlpha,
			SpikeThreshold: gas.DefaultSpikeThreshold,
			SpikeFloor:     gas.DefaultSpikeFloor,
		},
		WarmUp: WarmUpConfig{
			Duration:    calibration.DefaultWarmUp,
			ReportEvery: calibration.DefaultReportEvery,
		},
		CO2: gas.DefaultCO2Reference(),
		Modbus: ModbusConfig{
			Port:          "/dev/ttyUSB0",
			BaudRate:      hal.DefaultBaudRate,
			Parity:        "N",
			SlaveID:       modbus.DefaultSlaveID,
			StartRegister: modbus.DefaultStartRegister,
			RegisterCount: modbus.SoilRegisterCount,
			Timeout:       modbus.DefaultTimeout,
			Guard:         modbus.DefaultGuard,
			PollInterval:  modbus.DefaultPollInterval,
			Direction:     "rts",
		},
		Station: StationConfig{
			Interval: 2 * time.Second,
		},
		Logger: LoggerConfig{
			Port:      "/dev/ttyACM0",
			BaudRate:  9600,
			OutputDir: "data",
			DBPath:    "data/science.db",
			Duration:  420 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			TopicPrefix: "sciencebox",
			QoS:         1,
			Timeout:     5 * time.Second,
		},
		Mock: MockConfig{
			NoiseLevel:    0.01,
			EventPeriod:   90 * time.Second,
			EventDuration: 10 * time.Second,
			SoilLatency:   40 * time.Millisecond,
			TempC:         20,
			HumidityPct:   60,
			PressureHPa:   1013.25,
		},
	}

	// Analog pins A4, A6, A0, A2 on the Mega
	pins := []int{4, 6, 0, 2}
	for i, p := range gas.Presets() {
		cfg.Gas = append(cfg.Gas, GasChannel{
			Name:          p.Name,
			Channel:       pins[i],
			LoadOhms:      p.LoadOhms,
			CleanAirRatio: p.CleanAirRatio,
			Slope:         p.Curve.M,
			Intercept:     p.Curve.B,
			Unit:          p.Unit,
			CompensateCO2: p.CompensateCO2,
		})
		// Simulated sensors sit at Ro = 10 kΩ
		cfg.Mock.Channels = append(cfg.Mock.Channels, MockChannel{
			Name:         p.Name,
			CleanAirKOhm: 10 * p.CleanAirRatio,
			EventKOhm:    10 * p.CleanAirRatio / 4,
		})
	}
	return cfg
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, default values are used.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", filename, err)
	}
	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.ADC.Max == 0 {
		c.ADC.Max = def.ADC.Max
	}
	if c.ADC.VRef == 0 {
		c.ADC.VRef = def.ADC.VRef
	}

	if c.Sampling.Count == 0 {
		c.Sampling.Count = def.Sampling.Count
	}
	if c.Sampling.CleanAirCount == 0 {
		c.Sampling.CleanAirCount = def.Sampling.CleanAirCount
	}
	if c.Sampling.MinPlausible == 0 && c.Sampling.MaxPlausible == 0 {
		c.Sampling.MinPlausible = def.Sampling.MinPlausible
		c.Sampling.MaxPlausible = def.Sampling.MaxPlausible
	}

	if c.Filter.Alpha == 0 {
		c.Filter.Alpha = def.Filter.Alpha
	}
	if c.Filter.SpikeThreshold == 0 {
		c.Filter.SpikeThreshold = def.Filter.SpikeThreshold
	}
	if c.Filter.SpikeFloor == 0 {
		c.Filter.SpikeFloor = def.Filter.SpikeFloor
	}

	if c.WarmUp.ReportEvery == 0 {
		c.WarmUp.ReportEvery = def.WarmUp.ReportEvery
	}

	if len(c.Gas) == 0 {
		c.Gas = def.Gas
	}
	for i := range c.Gas {
		if c.Gas[i].Unit == "" {
			c.Gas[i].Unit = "ppm"
		}
		if c.Gas[i].LoadOhms == 0 {
			c.Gas[i].LoadOhms = gas.DefaultLoadOhms
		}
	}

	if c.CO2.Max == 0 {
		c.CO2 = def.CO2
	}

	if c.Modbus.BaudRate == 0 {
		c.Modbus.BaudRate = def.Modbus.BaudRate
	}
	if c.Modbus.SlaveID == 0 {
		c.Modbus.SlaveID = def.Modbus.SlaveID
	}
	if c.Modbus.RegisterCount == 0 {
		c.Modbus.RegisterCount = def.Modbus.RegisterCount
	}
	if c.Modbus.Timeout == 0 {
		c.Modbus.Timeout = def.Modbus.Timeout
	}
	if c.Modbus.Guard == 0 {
		c.Modbus.Guard = def.Modbus.Guard
	}
	if c.Modbus.PollInterval == 0 {
		c.Modbus.PollInterval = def.Modbus.PollInterval
	}
	if c.Modbus.Direction == "" {
		c.Modbus.Direction = def.Modbus.Direction
	}

	if c.Station.Interval == 0 {
		c.Station.Interval = def.Station.Interval
	}

	if c.Logger.BaudRate == 0 {
		c.Logger.BaudRate = def.Logger.BaudRate
	}
	if c.Logger.OutputDir == "" {
		c.Logger.OutputDir = def.Logger.OutputDir
	}

	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = def.MQTT.TopicPrefix
	}
	if c.MQTT.Timeout == 0 {
		c.MQTT.Timeout = def.MQTT.Timeout
	}

	if len(c.Mock.Channels) == 0 {
		c.Mock.Channels = def.Mock.Channels
	}
}

// Validate checks values that would make the pipeline misbehave.
func (c *Config) Validate() error {
	var errs []error

	if c.ADC.Max <= 0 {
		errs = append(errs, fmt.Errorf("adc.max must be positive, got %d", c.ADC.Max))
	}
	if c.Sampling.MinPlausible >= c.Sampling.MaxPlausible {
		errs = append(errs, fmt.Errorf("sampling.min_plausible (%d) must be below max_plausible (%d)",
			c.Sampling.MinPlausible, c.Sampling.MaxPlausible))
	}
	if c.Filter.Alpha <= 0 || c.Filter.Alpha > 1 {
		errs = append(errs, fmt.Errorf("filter.alpha must be in (0, 1], got %v", c.Filter.Alpha))
	}

	seen := make(map[string]bool)
	for i, g := range c.Gas {
		if g.Name == "" {
			errs = append(errs, fmt.Errorf("gas[%d]: name is required", i))
		} else if seen[g.Name] {
			errs = append(errs, fmt.Errorf("gas[%d]: duplicate name %q", i, g.Name))
		}
		seen[g.Name] = true
		if g.CleanAirRatio <= 0 {
			errs = append(errs, fmt.Errorf("gas %s: clean_air_ratio must be positive", g.Name))
		}
		if g.Slope == 0 {
			errs = append(errs, fmt.Errorf("gas %s: slope must be non-zero", g.Name))
		}
	}

	if c.Modbus.RegisterCount < modbus.SoilRegisterCount || c.Modbus.RegisterCount > modbus.MaxRegisters {
		errs = append(errs, fmt.Errorf("modbus.register_count must be in [%d, %d], got %d",
			modbus.SoilRegisterCount, modbus.MaxRegisters, c.Modbus.RegisterCount))
	}
	switch c.Modbus.Direction {
	case "rts", "auto", "kernel":
	default:
		errs = append(errs, fmt.Errorf("modbus.direction must be rts, auto or kernel, got %q", c.Modbus.Direction))
	}

	return errors.Join(errs...)
}

// Estimator returns the estimator configuration of gas channel g.
func (c *Config) Estimator(g GasChannel) gas.Config {
	return gas.Config{
		Name:         g.Name,
		Channel:      g.Channel,
		LoadOhms:     g.LoadOhms,
		ADCMax:       c.ADC.Max,
		VRef:         c.ADC.VRef,
		SampleCount:  c.Sampling.Count,
		SampleDelay:  c.Sampling.Delay,
		MinPlausible: c.Sampling.MinPlausible,
		MaxPlausible: c.Sampling.MaxPlausible,
		Filter:       c.Filter,
	}
}

// Calibration returns the coordinator configuration.
func (c *Config) Calibration() calibration.Config {
	return calibration.Config{
		WarmUp:      c.WarmUp.Duration,
		ReportEvery: c.WarmUp.ReportEvery,
		Samples:     c.Sampling.CleanAirCount,
		Delay:       c.Sampling.CleanAirDelay,
	}
}

// ModbusClient returns the byte-level client configuration.
func (c *Config) ModbusClient() modbus.Config {
	return modbus.Config{
		SlaveID:       c.Modbus.SlaveID,
		StartRegister: c.Modbus.StartRegister,
		RegisterCount: c.Modbus.RegisterCount,
		Timeout:       c.Modbus.Timeout,
		Guard:         c.Modbus.Guard,
		PollInterval:  c.Modbus.PollInterval,
	}
}

// ModbusHost returns the goburrow-backed reader configuration.
func (c *Config) ModbusHost() modbus.HostConfig {
	return modbus.HostConfig{
		Port:          c.Modbus.Port,
		BaudRate:      c.Modbus.BaudRate,
		Parity:        c.Modbus.Parity,
		SlaveID:       c.Modbus.SlaveID,
		StartRegister: c.Modbus.StartRegister,
		RegisterCount: c.Modbus.RegisterCount,
		Timeout:       c.Modbus.Timeout,
		RS485:         c.Modbus.Direction == "kernel",
		Guard:         c.Modbus.Guard,
	}
}

// ModbusPort returns the serial settings of the RS485 port.
func (c *Config) ModbusPort() hal.PortConfig {
	return hal.PortConfig{
		Name:     c.Modbus.Port,
		BaudRate: c.Modbus.BaudRate,
		Parity:   c.Modbus.Parity,
	}
}

// Telemetry returns the MQTT publisher configuration.
func (c *Config) Telemetry() telemetry.Config {
	return telemetry.Config{
		Broker:      c.MQTT.Broker,
		ClientID:    c.MQTT.ClientID,
		Username:    c.MQTT.Username,
		Password:    c.MQTT.Password,
		TopicPrefix: c.MQTT.TopicPrefix,
		QoS:         c.MQTT.QoS,
		Timeout:     c.MQTT.Timeout,
	}
}

// MockAnalog returns the simulated analog front end for the gas channels.
func (c *Config) MockAnalog() hal.MockAnalogConfig {
	byName := make(map[string]MockChannel, len(c.Mock.Channels))
	for _, m := range c.Mock.Channels {
		byName[m.Name] = m
	}

	out := hal.MockAnalogConfig{
		ADCMax:        c.ADC.Max,
		NoiseLevel:    c.Mock.NoiseLevel,
		EventPeriod:   c.Mock.EventPeriod,
		EventDuration: c.Mock.EventDuration,
		Channels:      make(map[int]hal.MockChannel, len(c.Gas)),
	}
	for _, g := range c.Gas {
		m, ok := byName[g.Name]
		if !ok {
			continue
		}
		out.Channels[g.Channel] = hal.MockChannel{
			LoadOhms:     g.LoadOhms,
			CleanAirKOhm: m.CleanAirKOhm,
			EventKOhm:    m.EventKOhm,
		}
	}
	return out
}

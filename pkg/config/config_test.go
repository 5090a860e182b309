package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obseract/sciencebox/pkg/modbus"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, 1, cfg.SiteID)
	assert.Equal(t, 1023, cfg.ADC.Max)
	assert.Equal(t, 5.0, cfg.ADC.VRef)
	assert.Equal(t, 8, cfg.Sampling.Count)
	assert.Equal(t, 5*time.Millisecond, cfg.Sampling.Delay)
	assert.Equal(t, 50, cfg.Sampling.CleanAirCount)
	assert.Equal(t, 10, cfg.Sampling.MinPlausible)
	assert.Equal(t, 1000, cfg.Sampling.MaxPlausible)
	assert.Equal(t, 0.1, cfg.Filter.Alpha)
	assert.Equal(t, 120*time.Second, cfg.WarmUp.Duration)
	assert.Equal(t, 4800, cfg.Modbus.BaudRate)
	assert.Equal(t, byte(1), cfg.Modbus.SlaveID)
	assert.Equal(t, uint16(7), cfg.Modbus.RegisterCount)
	assert.Equal(t, 500*time.Millisecond, cfg.Modbus.Timeout)
	assert.Equal(t, 420*time.Second, cfg.Logger.Duration)
	assert.False(t, cfg.MQTT.Enabled)

	require.Len(t, cfg.Gas, 4)
	assert.Equal(t, "MQ4_CH4", cfg.Gas[0].Name)
	assert.Equal(t, 4, cfg.Gas[0].Channel)
	assert.Equal(t, 4.4, cfg.Gas[0].CleanAirRatio)
	assert.Equal(t, []int{4, 6, 0, 2}, []int{cfg.Gas[0].Channel, cfg.Gas[1].Channel, cfg.Gas[2].Channel, cfg.Gas[3].Channel})
	assert.True(t, cfg.Gas[3].CompensateCO2)
	assert.Len(t, cfg.Mock.Channels, 4)

	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, 4800, cfg.Modbus.BaudRate)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
site_id: 7

adc:
  max: 4095
  vref: 3.3

sampling:
  count: 16
  delay: 2ms
  min_plausible: 40
  max_plausible: 4000

filter:
  alpha: 0.25

warmup:
  duration: 30s

gas:
  - name: "MQ4_CH4"
    channel: 1
    load_ohms: 20000
    clean_air_ratio: 4.4
    slope: -0.36
    intercept: 1.1

modbus:
  port: "/dev/ttyUSB1"
  baud_rate: 9600
  slave_id: 2
  timeout: 1s
  direction: auto

mqtt:
  enabled: true
  broker: "tcp://rover:1883"
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, 7, cfg.SiteID)
	assert.Equal(t, 4095, cfg.ADC.Max)
	assert.Equal(t, 3.3, cfg.ADC.VRef)
	assert.Equal(t, 16, cfg.Sampling.Count)
	assert.Equal(t, 2*time.Millisecond, cfg.Sampling.Delay)
	assert.Equal(t, 40, cfg.Sampling.MinPlausible)
	assert.Equal(t, 0.25, cfg.Filter.Alpha)
	assert.Equal(t, 30*time.Second, cfg.WarmUp.Duration)

	require.Len(t, cfg.Gas, 1)
	assert.Equal(t, 1, cfg.Gas[0].Channel)
	assert.Equal(t, "ppm", cfg.Gas[0].Unit)
	assert.Equal(t, -0.36, cfg.Gas[0].Curve().M)

	assert.Equal(t, "/dev/ttyUSB1", cfg.Modbus.Port)
	assert.Equal(t, 9600, cfg.Modbus.BaudRate)
	assert.Equal(t, byte(2), cfg.Modbus.SlaveID)
	assert.Equal(t, time.Second, cfg.Modbus.Timeout)
	assert.Equal(t, "auto", cfg.Modbus.Direction)

	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://rover:1883", cfg.MQTT.Broker)
}

func TestLoad_PartialYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
modbus:
  port: "COM5"
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)

	assert.Equal(t, "COM5", cfg.Modbus.Port)
	assert.Equal(t, 4800, cfg.Modbus.BaudRate)
	assert.Len(t, cfg.Gas, 4)
	assert.Equal(t, 1023, cfg.ADC.Max)
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("gas: [unclosed")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	_, err = Load(tmpfile.Name())
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
modbus:
  register_count: 200
`
	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	_, err = Load(tmpfile.Name())
	assert.ErrorContains(t, err, "register_count")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero adc max", func(c *Config) { c.ADC.Max = 0 }, "adc.max"},
		{"inverted plausibility", func(c *Config) { c.Sampling.MinPlausible = 2000 }, "min_plausible"},
		{"alpha above one", func(c *Config) { c.Filter.Alpha = 1.5 }, "filter.alpha"},
		{"duplicate gas", func(c *Config) { c.Gas[1].Name = c.Gas[0].Name }, "duplicate"},
		{"missing gas name", func(c *Config) { c.Gas[0].Name = "" }, "name is required"},
		{"zero ratio", func(c *Config) { c.Gas[0].CleanAirRatio = 0 }, "clean_air_ratio"},
		{"flat curve", func(c *Config) { c.Gas[0].Slope = 0 }, "slope"},
		{"too few registers", func(c *Config) { c.Modbus.RegisterCount = 3 }, "register_count"},
		{"unknown direction", func(c *Config) { c.Modbus.Direction = "gpio" }, "direction"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "science.yaml")

	cfg := Default()
	cfg.SiteID = 3
	cfg.Modbus.Port = "/dev/ttyS2"
	cfg.Gas[0].Channel = 9

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.SiteID)
	assert.Equal(t, "/dev/ttyS2", loaded.Modbus.Port)
	assert.Equal(t, 9, loaded.Gas[0].Channel)
	assert.Equal(t, cfg.Modbus.Timeout, loaded.Modbus.Timeout)
}

func TestConverters(t *testing.T) {
	cfg := Default()
	g := cfg.Gas[2]

	est := cfg.Estimator(g)
	assert.Equal(t, g.Name, est.Name)
	assert.Equal(t, g.Channel, est.Channel)
	assert.Equal(t, g.LoadOhms, est.LoadOhms)
	assert.Equal(t, cfg.ADC.Max, est.ADCMax)
	assert.Equal(t, cfg.Filter, est.Filter)

	cal := cfg.Calibration()
	assert.Equal(t, 120*time.Second, cal.WarmUp)
	assert.Equal(t, 50, cal.Samples)

	mb := cfg.ModbusClient()
	assert.Equal(t, modbus.Config{
		SlaveID:       1,
		StartRegister: 0,
		RegisterCount: 7,
		Timeout:       500 * time.Millisecond,
		Guard:         50 * time.Microsecond,
		PollInterval:  time.Millisecond,
	}, mb)

	host := cfg.ModbusHost()
	assert.False(t, host.RS485)
	cfg.Modbus.Direction = "kernel"
	assert.True(t, cfg.ModbusHost().RS485)

	mq := cfg.Telemetry()
	assert.Equal(t, "tcp://localhost:1883", mq.Broker)
	assert.Equal(t, "sciencebox", mq.TopicPrefix)
	assert.Equal(t, byte(1), mq.QoS)

	mock := cfg.MockAnalog()
	require.Len(t, mock.Channels, 4)
	ch, ok := mock.Channels[g.Channel]
	require.True(t, ok)
	assert.Equal(t, g.LoadOhms, ch.LoadOhms)
	assert.InDelta(t, 10*g.CleanAirRatio, ch.CleanAirKOhm, 1e-9)
}

package station

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/obseract/sciencebox/pkg/gas"
	"github.com/obseract/sciencebox/pkg/hal"
	"github.com/obseract/sciencebox/pkg/modbus"
	"github.com/obseract/sciencebox/pkg/record"
)

// fixedADC returns a constant reading per channel.
type fixedADC map[int]int

func (f fixedADC) ReadADC(channel int) int { return f[channel] }

type failingEnv struct{}

func (failingEnv) ReadEnvironment() (record.Environment, error) {
	return record.Environment{}, errors.New("bme280: no response")
}

var testCurve = gas.Curve{M: -0.5, B: 1}

func newGas(t *testing.T, name string, channel int, src hal.AnalogSource, clock hal.Clock, co2 bool) Gas {
	t.Helper()
	e := gas.New(gas.Config{Name: name, Channel: channel, SampleDelay: gas.DefaultSampleDelay}, src, clock)
	e.SetBaseline(gas.ResistanceKOhm(511, gas.DefaultADCMax, gas.DefaultLoadOhms))
	return Gas{Estimator: e, Curve: testCurve, Unit: "ppm", CompensateCO2: co2}
}

func TestPoll_GasAndEnvironment(t *testing.T) {
	clock := hal.NewFakeClock(time.Unix(0, 0))
	src := fixedADC{0: 511, 1: 511}
	env := FixedEnvironment{TempC: 20, HumidityPct: 60, PressureHPa: 1013.25}

	s := New(Config{SiteID: 3}, clock, nil, env, nil,
		newGas(t, "MQ4_CH4", 0, src, clock, false),
		newGas(t, "MQ135_CO2", 1, src, clock, true),
	)

	p := s.Poll()
	assert.Equal(t, uint64(0), p.TimeMs)
	assert.Nil(t, p.Soil)
	require.Len(t, p.Records, 5)

	// Ratio 1 on a slope -0.5, intercept 1 curve is 100 ppm
	ch4 := p.Records[0]
	assert.Equal(t, "MQ4_CH4", ch4.Sensor)
	assert.Equal(t, 3, ch4.Site)
	assert.True(t, ch4.Valid)
	assert.InDelta(t, 100.0, ch4.Value, 1e-6)
	assert.Equal(t, 1013.25, ch4.Env.PressureHPa)

	// At reference conditions compensation only adds the outdoor baseline
	co2 := p.Records[1]
	assert.True(t, co2.Valid)
	assert.InDelta(t, 500.0, co2.Value, 1e-6)

	assert.Equal(t, record.SensorTemperature, p.Records[2].Sensor)
	assert.Equal(t, 20.0, p.Records[2].Value)
	assert.Equal(t, record.SensorHumidity, p.Records[3].Sensor)
	assert.Equal(t, record.SensorPressure, p.Records[4].Sensor)
	for _, r := range p.Records[2:] {
		assert.True(t, r.Valid)
	}

	// Sampling took simulated time, so the next poll is later
	next := s.Poll()
	assert.Greater(t, next.TimeMs, p.TimeMs)
}

func TestPoll_DisconnectedSensorMarksRecordInvalid(t *testing.T) {
	clock := hal.NewFakeClock(time.Unix(0, 0))
	src := fixedADC{0: 511}
	core, logs := observer.New(zap.WarnLevel)

	s := New(Config{SiteID: 1}, clock, zap.New(core).Sugar(), FixedEnvironment{}, nil,
		newGas(t, "MQ4_CH4", 0, src, clock, false),
		newGas(t, "MQ8_H2", 5, src, clock, false),
	)

	p := s.Poll()
	require.Len(t, p.Records, 5)
	assert.True(t, p.Records[0].Valid)
	assert.False(t, p.Records[1].Valid)
	assert.Equal(t, record.ErrorMarker, p.Records[1].Fields()[3])

	failed := logs.FilterMessage("gas read failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "MQ8_H2", failed[0].ContextMap()["sensor"])
}

func TestPoll_UncalibratedChannel(t *testing.T) {
	clock := hal.NewFakeClock(time.Unix(0, 0))
	e := gas.New(gas.Config{Name: "MQ136_H2S", Channel: 0}, fixedADC{0: 400}, clock)

	s := New(Config{}, clock, nil, nil, nil, Gas{Estimator: e, Curve: testCurve, Unit: "ppm"})

	p := s.Poll()
	require.Len(t, p.Records, 1)
	assert.False(t, p.Records[0].Valid)
	assert.ErrorIs(t, e.LastError(), gas.ErrUncalibrated)
}

func TestPoll_NoEnvironmentSensor(t *testing.T) {
	clock := hal.NewFakeClock(time.Unix(0, 0))
	src := fixedADC{0: 511}

	s := New(Config{}, clock, nil, nil, nil, newGas(t, "MQ135_CO2", 0, src, clock, true))

	p := s.Poll()
	require.Len(t, p.Records, 1)
	// Uncompensated without ambient data
	assert.InDelta(t, 100.0, p.Records[0].Value, 1e-6)
}

func TestPoll_EnvironmentFailure(t *testing.T) {
	clock := hal.NewFakeClock(time.Unix(0, 0))
	src := fixedADC{0: 511}

	s := New(Config{}, clock, nil, failingEnv{}, nil, newGas(t, "MQ135_CO2", 0, src, clock, true))

	p := s.Poll()
	require.Len(t, p.Records, 4)

	// No compensation without ambient data
	assert.True(t, p.Records[0].Valid)
	assert.InDelta(t, 100.0, p.Records[0].Value, 1e-6)
	for _, r := range p.Records[1:] {
		assert.False(t, r.Valid)
	}
}

func TestPoll_Soil(t *testing.T) {
	clock := hal.NewFakeClock(time.Unix(0, 0))
	sim := modbus.NewSimulator(modbus.DefaultSlaveID, clock, 20*time.Millisecond)
	client := modbus.NewClient(modbus.Config{}, sim, hal.NopLine{}, clock)

	want := modbus.SoilReading{
		Moisture:     31.5,
		Temperature:  18.2,
		Conductivity: 420,
		PH:           6.8,
		Nitrogen:     12,
		Phosphorus:   7,
		Potassium:    30,
		Valid:        true,
	}
	sim.SetSoil(want)

	s := New(Config{}, clock, nil, nil, client)

	p := s.Poll()
	require.NotNil(t, p.Soil)
	require.NoError(t, p.Soil.Err)
	assert.Equal(t, want, p.Soil.Reading)
	assert.Empty(t, p.Soil.Warnings)

	sim.SetFault(modbus.FaultSilent)
	p = s.Poll()
	require.NotNil(t, p.Soil)
	assert.ErrorIs(t, p.Soil.Err, modbus.ErrIncompleteResponse)
	assert.False(t, p.Soil.Reading.Valid)
}

func TestPoll_SoilOutOfRange(t *testing.T) {
	clock := hal.NewFakeClock(time.Unix(0, 0))
	sim := modbus.NewSimulator(modbus.DefaultSlaveID, clock, 0)
	sim.SetSoil(modbus.SoilReading{Moisture: 120, Temperature: 20, PH: 7, Valid: true})

	s := New(Config{}, clock, nil, nil, modbus.NewClient(modbus.Config{}, sim, nil, clock))

	p := s.Poll()
	require.NoError(t, p.Soil.Err)
	assert.True(t, p.Soil.Reading.Valid)
	assert.Len(t, p.Soil.Warnings, 1)
}

func TestRun_NotifiesUntilCancelled(t *testing.T) {
	clock := hal.NewFakeClock(time.Unix(0, 0))
	s := New(Config{Interval: time.Millisecond}, clock, nil, FixedEnvironment{TempC: 21}, nil)

	var mu sync.Mutex
	polls := 0
	ctx, cancel := context.WithCancel(context.Background())
	s.OnPoll(func(p Poll) {
		mu.Lock()
		defer mu.Unlock()
		polls++
		assert.Len(t, p.Records, 3)
		if polls == 3 {
			cancel()
		}
	})

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, polls)
}

package calibration

import (
	"fmt"
	"testing"
	"time"

	"github.com/obseract/sciencebox/pkg/gas"
	"github.com/obseract/sciencebox/pkg/hal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memLogger struct {
	infos []string
	warns []string
}

func (l *memLogger) Infof(template string, args ...any) {
	l.infos = append(l.infos, fmt.Sprintf(template, args...))
}

func (l *memLogger) Warnf(template string, args ...any) {
	l.warns = append(l.warns, fmt.Sprintf(template, args...))
}

type fixedADC map[int]int

func (f fixedADC) ReadADC(channel int) int { return f[channel] }

func newArray(clock hal.Clock, adc fixedADC) []Channel {
	var out []Channel
	for i, p := range gas.Presets() {
		e := gas.New(gas.Config{Name: p.Name, Channel: i, LoadOhms: p.LoadOhms}, adc, clock)
		out = append(out, Channel{Estimator: e, CleanAirRatio: p.CleanAirRatio})
	}
	return out
}

func TestCalibrateAll(t *testing.T) {
	clock := hal.NewFakeClock(time.Unix(0, 0))
	adc := fixedADC{0: 200, 1: 300, 2: 400, 3: 500}
	log := &memLogger{}
	channels := newArray(clock, adc)

	c := New(Config{Samples: 10, Delay: 10 * time.Millisecond}, clock, log, channels...)
	require.False(t, c.Calibrated())

	results := c.CalibrateAll()
	require.Len(t, results, 4)
	assert.True(t, c.Calibrated())

	for i, p := range gas.Presets() {
		want := gas.ResistanceKOhm(adc[i], gas.DefaultADCMax, p.LoadOhms) / p.CleanAirRatio
		assert.Equal(t, p.Name, results[i].Name)
		assert.True(t, results[i].OK)
		assert.InDelta(t, want, results[i].BaselineKOhm, 1e-9)
	}

	// Fixed order, one diagnostic line per channel
	assert.Contains(t, log.infos[1], "MQ4_CH4 Ro:")
	assert.Contains(t, log.infos[4], "MQ135_CO2 Ro:")
	assert.Empty(t, log.warns)
	assert.Equal(t, 4*10*10*time.Millisecond, clock.Slept())
}

func TestCalibrateAll_BadRatioLeavesChannelUncalibrated(t *testing.T) {
	clock := hal.NewFakeClock(time.Unix(0, 0))
	log := &memLogger{}
	channels := newArray(clock, fixedADC{0: 200, 1: 300, 2: 400, 3: 500})
	channels[2].CleanAirRatio = 0

	c := New(Config{Samples: 1}, clock, log, channels...)
	results := c.CalibrateAll()

	assert.False(t, results[2].OK)
	assert.Equal(t, gas.Invalid, results[2].BaselineKOhm)
	assert.True(t, results[3].OK)
	assert.False(t, c.Calibrated())
	require.Len(t, log.warns, 1)
	assert.Contains(t, log.warns[0], "MQ8_H2")
}

func TestWarmUp(t *testing.T) {
	clock := hal.NewFakeClock(time.Unix(0, 0))
	log := &memLogger{}

	c := New(Config{WarmUp: 2 * time.Minute}, clock, log)
	c.WarmUp()

	assert.Equal(t, 2*time.Minute, clock.Slept())
	// Banner, 12 countdown lines, completion
	assert.Len(t, log.infos, 14)
	assert.Equal(t, "2m0s remaining...", log.infos[1])
	assert.Equal(t, "10s remaining...", log.infos[12])
}

func TestWarmUp_Disabled(t *testing.T) {
	clock := hal.NewFakeClock(time.Unix(0, 0))
	New(Config{}, clock, nil).WarmUp()
	assert.Zero(t, clock.Slept())
}

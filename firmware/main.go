//go:build tinygo

//go:generate tinygo flash -target=arduino-mega2560

package main

import (
	"context"
	"machine"
	"strings"
	"time"

	"github.com/obseract/sciencebox/pkg/calibration"
	"github.com/obseract/sciencebox/pkg/gas"
	"github.com/obseract/sciencebox/pkg/hal"
	"github.com/obseract/sciencebox/pkg/modbus"
	"github.com/obseract/sciencebox/pkg/record"
	"github.com/obseract/sciencebox/pkg/station"
)

func main() {
	clock := hal.SystemClock{}
	log := consoleLogger{}

	// Give the host logger time to open the port after reset
	time.Sleep(2 * time.Second)
	println("Science box starting")

	// Analog front end, channel order matches gas.Presets()
	machine.InitADC()
	adcs := analogInputs{
		{Pin: PIN_MQ4},
		{Pin: PIN_MQ136},
		{Pin: PIN_MQ8},
		{Pin: PIN_MQ135},
	}
	for _, adc := range adcs {
		adc.Configure(machine.ADCConfig{})
	}

	// RS485 soil sensor on UART1, receiver enabled while idle
	PIN_RS485_RE.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_RS485_DE.Configure(machine.PinConfig{Mode: machine.PinOutput})
	direction := directionPins{re: PIN_RS485_RE, de: PIN_RS485_DE}
	direction.Set(false)

	machine.UART1.Configure(machine.UARTConfig{BaudRate: RS485_BAUD_RATE})
	rs485 := &uartStream{uart: machine.UART1, baud: RS485_BAUD_RATE, clock: clock}
	soil := modbus.NewClient(modbus.Config{}, rs485, direction, clock)

	machine.I2C0.Configure(machine.I2CConfig{})
	env := newEnvSensor(machine.I2C0)
	if !env.connected {
		println("WARN: BME280 not found, environment columns will read ERR")
	}

	var (
		gases    []station.Gas
		channels []calibration.Channel
	)
	for i, p := range gas.Presets() {
		e := gas.New(gas.Config{
			Name:        p.Name,
			Channel:     i,
			LoadOhms:    p.LoadOhms,
			ADCMax:      ADC_MAX,
			SampleDelay: gas.DefaultSampleDelay,
		}, adcs, clock)
		gases = append(gases, station.Gas{Estimator: e, Curve: p.Curve, Unit: p.Unit, CompensateCO2: p.CompensateCO2})
		channels = append(channels, calibration.Channel{Estimator: e, CleanAirRatio: p.CleanAirRatio})
	}

	coord := calibration.New(calibration.Config{
		WarmUp: calibration.DefaultWarmUp,
		Delay:  gas.DefaultCleanAirDelay,
	}, clock, log, channels...)
	coord.WarmUp()
	coord.CalibrateAll()

	println(record.Header)
	println(modbus.SoilCSVHeader)

	st := station.New(station.Config{
		SiteID:   SITE_ID,
		Interval: POLL_INTERVAL_MS * time.Millisecond,
	}, clock, log, env, soil, gases...)

	st.OnPoll(func(p station.Poll) {
		for _, r := range p.Records {
			println(r.String())
		}
		if p.Soil != nil {
			println(strings.Join(p.Soil.Reading.CSVFields(record.ErrorMarker), ","))
		}
	})
	st.Run(context.Background())
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/obseract/sciencebox/pkg/calibration"
	"github.com/obseract/sciencebox/pkg/config"
	"github.com/obseract/sciencebox/pkg/gas"
	"github.com/obseract/sciencebox/pkg/hal"
	"github.com/obseract/sciencebox/pkg/modbus"
	"github.com/obseract/sciencebox/pkg/record"
	"github.com/obseract/sciencebox/pkg/station"
	"github.com/obseract/sciencebox/pkg/telemetry"
)

func main() {
	var (
		configFlag  = flag.String("config", "config.yaml", "Configuration file path")
		portFlag    = flag.String("p", "", "RS485 serial port override (e.g., COM3 or /dev/ttyUSB0)")
		mockFlag    = flag.Bool("mock", false, "Simulate the gas sensors and the soil probe")
		noWarmFlag  = flag.Bool("skip-warmup", false, "Calibrate immediately without the heater warm-up")
		outFlag     = flag.String("o", "", "Record CSV output file (default stdout)")
		soilFlag    = flag.String("soil", "", "Soil CSV output file (default: log only)")
		listFlag    = flag.Bool("list", false, "List serial ports and exit")
		verboseFlag = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	logger := newLogger(*verboseFlag)
	defer logger.Sync()

	if *listFlag {
		listPorts(logger)
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Modbus.Port = *portFlag
	}
	if *noWarmFlag {
		cfg.WarmUp.Duration = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		logger.Infow("shutting down", "signal", s.String())
		cancel()
	}()

	if err := run(ctx, cfg, *mockFlag, *outFlag, *soilFlag, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalw("station stopped", "error", err)
	}
}

func newLogger(verbose bool) *zap.SugaredLogger {
	zcfg := zap.NewDevelopmentConfig()
	if !verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	// Records go to stdout
	zcfg.OutputPaths = []string{"stderr"}
	l, err := zcfg.Build()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	return l.Sugar()
}

func listPorts(logger *zap.SugaredLogger) {
	ports, err := hal.Ports()
	if err != nil {
		logger.Fatalw("failed to list serial ports", "error", err)
	}
	for _, p := range ports {
		fmt.Printf("%s\t%s\n", p.Name, p.Description)
	}
}

// hardware is the set of instruments the station polls.
type hardware struct {
	analog hal.AnalogSource
	env    station.EnvSource
	soil   modbus.SoilReader
	close  func() error
}

func openHardware(cfg *config.Config, mock bool, clock hal.Clock, logger *zap.SugaredLogger) (*hardware, error) {
	if mock {
		sim := modbus.NewSimulator(cfg.Modbus.SlaveID, clock, cfg.Mock.SoilLatency)
		sim.SetSoil(modbus.SoilReading{
			Moisture:     23.4,
			Temperature:  21.5,
			Conductivity: 310,
			PH:           6.6,
			Nitrogen:     18,
			Phosphorus:   9,
			Potassium:    42,
		})
		logger.Infow("using simulated hardware", "channels", len(cfg.Gas), "slave", cfg.Modbus.SlaveID)
		return &hardware{
			analog: hal.NewMockAnalog(cfg.MockAnalog(), clock),
			env: station.FixedEnvironment{
				TempC:       cfg.Mock.TempC,
				HumidityPct: cfg.Mock.HumidityPct,
				PressureHPa: cfg.Mock.PressureHPa,
			},
			soil:  modbus.NewClient(cfg.ModbusClient(), sim, hal.NopLine{}, clock),
			close: sim.Close,
		}, nil
	}

	// A host has no analog front end; only the soil probe is reachable.
	logger.Infow("opening RS485 adapter", "port", cfg.Modbus.Port, "baud", cfg.Modbus.BaudRate, "direction", cfg.Modbus.Direction)

	if cfg.Modbus.Direction == "kernel" {
		reader := modbus.NewHostReader(cfg.ModbusHost())
		if err := reader.Connect(); err != nil {
			return nil, err
		}
		return &hardware{soil: reader, close: reader.Close}, nil
	}

	port, err := hal.NewSerial(cfg.ModbusPort())
	if err != nil {
		return nil, err
	}
	var de hal.DigitalSink = hal.NopLine{}
	if cfg.Modbus.Direction == "rts" {
		de = port.RTS()
	}
	return &hardware{
		soil:  modbus.NewClient(cfg.ModbusClient(), port, de, clock),
		close: port.Close,
	}, nil
}

func run(ctx context.Context, cfg *config.Config, mock bool, outPath, soilPath string, logger *zap.SugaredLogger) error {
	clock := hal.SystemClock{}

	hw, err := openHardware(cfg, mock, clock, logger)
	if err != nil {
		return fmt.Errorf("failed to open hardware: %w", err)
	}
	defer hw.close()

	var (
		gases    []station.Gas
		channels []calibration.Channel
	)
	if hw.analog != nil {
		for _, g := range cfg.Gas {
			e := gas.New(cfg.Estimator(g), hw.analog, clock)
			gases = append(gases, station.Gas{Estimator: e, Curve: g.Curve(), Unit: g.Unit, CompensateCO2: g.CompensateCO2})
			channels = append(channels, calibration.Channel{Estimator: e, CleanAirRatio: g.CleanAirRatio})
		}

		coord := calibration.New(cfg.Calibration(), clock, logger, channels...)
		coord.WarmUp()
		for _, r := range coord.CalibrateAll() {
			logger.Infow("calibrated", "sensor", r.Name, "ro_kohm", r.BaselineKOhm, "ok", r.OK)
		}
	}

	out := io.Writer(os.Stdout)
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", outPath, err)
		}
		defer f.Close()
		out = f
	}
	w := record.NewWriter(out)
	if err := w.WriteHeader(); err != nil {
		return err
	}

	var soilOut io.Writer
	if soilPath != "" {
		f, err := os.Create(soilPath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", soilPath, err)
		}
		defer f.Close()
		fmt.Fprintln(f, modbus.SoilCSVHeader)
		soilOut = f
	}

	var pub *telemetry.Publisher
	if cfg.MQTT.Enabled {
		session := uuid.NewString()
		pub, err = telemetry.Connect(cfg.Telemetry(), session, logger)
		if err != nil {
			logger.Warnw("telemetry disabled", "error", err)
		} else {
			defer pub.Close()
			logger.Infow("publishing telemetry", "broker", cfg.MQTT.Broker, "session", session)
		}
	}

	st := station.New(station.Config{
		SiteID:   cfg.SiteID,
		Interval: cfg.Station.Interval,
		CO2:      cfg.CO2,
	}, clock, logger, hw.env, hw.soil, gases...)

	st.OnPoll(func(p station.Poll) {
		for _, r := range p.Records {
			if err := w.Write(r); err != nil {
				logger.Errorw("failed to write record", "error", err)
			}
			if pub != nil {
				if err := pub.PublishRecord(r); err != nil {
					logger.Warnw("publish failed", "sensor", r.Sensor, "error", err)
				}
			}
		}
		if err := w.Flush(); err != nil {
			logger.Errorw("failed to flush records", "error", err)
		}

		if p.Soil == nil {
			return
		}
		line := strings.Join(p.Soil.Reading.CSVFields(record.ErrorMarker), ",")
		if soilOut != nil {
			fmt.Fprintln(soilOut, line)
		} else {
			logger.Infow("soil", "reading", line)
		}
		if pub != nil {
			if err := pub.PublishSoil(cfg.SiteID, p.Soil.Reading); err != nil {
				logger.Warnw("publish failed", "sensor", "soil", "error", err)
			}
		}
	})

	logger.Infow("station running", "site", cfg.SiteID, "interval", cfg.Station.Interval, "gas_channels", len(gases))
	return st.Run(ctx)
}

package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/obseract/sciencebox/pkg/config"
	"github.com/obseract/sciencebox/pkg/hal"
	"github.com/obseract/sciencebox/pkg/modbus"
	"github.com/obseract/sciencebox/pkg/record"
)

func main() {
	var (
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		portFlag     = flag.String("p", "", "RS485 serial port override")
		baudFlag     = flag.Int("b", 0, "Baud rate override (sensors ship at 4800; try 9600 or 2400)")
		slaveFlag    = flag.Int("slave", 0, "Slave address override (try 1, 2 or 255)")
		countFlag    = flag.Int("n", 1, "Number of reads (0 = until interrupted)")
		intervalFlag = flag.Duration("interval", 2*time.Second, "Delay between reads")
		directFlag   = flag.String("direction", "", "Direction control override: rts, auto or kernel")
	)
	flag.Parse()

	zl, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	logger := zl.Sugar()
	defer logger.Sync()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Modbus.Port = *portFlag
	}
	if *baudFlag > 0 {
		cfg.Modbus.BaudRate = *baudFlag
	}
	if *slaveFlag > 0 {
		cfg.Modbus.SlaveID = byte(*slaveFlag)
	}
	if *directFlag != "" {
		cfg.Modbus.Direction = *directFlag
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalw("invalid settings", "error", err)
	}

	reader, closeFn, err := open(cfg)
	if err != nil {
		logger.Fatalw("failed to open RS485 port", "port", cfg.Modbus.Port, "error", err)
	}
	defer closeFn()

	logger.Infow("probing soil sensor",
		"port", cfg.Modbus.Port,
		"baud", cfg.Modbus.BaudRate,
		"slave", cfg.Modbus.SlaveID,
		"direction", cfg.Modbus.Direction,
		"request", fmt.Sprintf("% X", modbus.BuildReadRequest(cfg.Modbus.SlaveID, cfg.Modbus.StartRegister, cfg.Modbus.RegisterCount)))

	fmt.Println(modbus.SoilCSVHeader)
	for i := 0; *countFlag == 0 || i < *countFlag; i++ {
		if i > 0 {
			time.Sleep(*intervalFlag)
		}

		r, err := reader.ReadSoil()
		fmt.Println(strings.Join(r.CSVFields(record.ErrorMarker), ","))
		if err != nil {
			logger.Warnw("read failed", "error", err, "hint", hint(err))
			continue
		}
		for _, w := range r.Check() {
			logger.Warnw("suspicious value", "check", w)
		}
	}
}

func open(cfg *config.Config) (modbus.SoilReader, func() error, error) {
	if cfg.Modbus.Direction == "kernel" {
		reader := modbus.NewHostReader(cfg.ModbusHost())
		if err := reader.Connect(); err != nil {
			return nil, nil, err
		}
		return reader, reader.Close, nil
	}

	port, err := hal.NewSerial(cfg.ModbusPort())
	if err != nil {
		return nil, nil, err
	}
	var de hal.DigitalSink = hal.NopLine{}
	if cfg.Modbus.Direction == "rts" {
		de = port.RTS()
	}
	return modbus.NewClient(cfg.ModbusClient(), port, de, hal.SystemClock{}), port.Close, nil
}

// hint suggests the usual wiring or settings fault behind err.
func hint(err error) string {
	switch {
	case errors.Is(err, modbus.ErrIncompleteResponse):
		return "check A/B wiring, sensor power, baud rate and the DE/RE line"
	case errors.Is(err, modbus.ErrAddressMismatch):
		return "another slave answered; check the slave address"
	case errors.Is(err, modbus.ErrCRCMismatch):
		return "line noise or wrong baud rate; check termination and ground"
	case errors.Is(err, modbus.ErrFunctionMismatch), errors.Is(err, modbus.ErrByteCountMismatch):
		return "unexpected reply; check register count and slave address"
	default:
		return "transport error"
	}
}

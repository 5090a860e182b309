package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/obseract/sciencebox/pkg/board"
	"github.com/obseract/sciencebox/pkg/config"
	"github.com/obseract/sciencebox/pkg/hal"
	"github.com/obseract/sciencebox/pkg/modbus"
	"github.com/obseract/sciencebox/pkg/record"
	"github.com/obseract/sciencebox/pkg/store"
	"github.com/obseract/sciencebox/pkg/telemetry"
)

func main() {
	var (
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		portFlag     = flag.String("p", "", "Board serial port (default: auto-detect)")
		baudFlag     = flag.Int("b", 0, "Baud rate override")
		durationFlag = flag.Duration("d", 0, "Logging duration override (e.g. 7m)")
		outFlag      = flag.String("o", "", "Output directory override")
		dbFlag       = flag.String("db", "", "SQLite database path override (\"-\" disables)")
		mockFlag     = flag.Bool("mock", false, "Log a simulated board")
		verboseFlag  = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	zcfg := zap.NewDevelopmentConfig()
	if !*verboseFlag {
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zl, err := zcfg.Build()
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
		cfg.Logger.Port = *portFlag
	}
	if *baudFlag > 0 {
		cfg.Logger.BaudRate = *baudFlag
	}
	if *durationFlag > 0 {
		cfg.Logger.Duration = *durationFlag
	}
	if *outFlag != "" {
		cfg.Logger.OutputDir = *outFlag
	}
	switch *dbFlag {
	case "":
	case "-":
		cfg.Logger.DBPath = ""
	default:
		cfg.Logger.DBPath = *dbFlag
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		logger.Infow("stopping", "signal", s.String())
		cancel()
	}()

	var dev board.Device
	if *mockFlag {
		dev = board.NewMock(cfg)
	} else {
		port := *portFlag
		if port == "" {
			port = detectPort(logger)
		}
		if port == "" {
			port = cfg.Logger.Port
		}
		dev = board.New(port, cfg.Logger.BaudRate, 0, logger)
		logger.Infow("connecting", "port", port, "baud", cfg.Logger.BaudRate)
	}

	if err := dev.Connect(); err != nil {
		logger.Fatalw("failed to connect", "error", err)
	}
	defer dev.Close()

	if err := run(ctx, cfg, dev, logger); err != nil {
		logger.Fatalw("logging failed", "error", err)
	}
}

func detectPort(logger *zap.SugaredLogger) string {
	ports, err := hal.Ports()
	if err != nil {
		logger.Warnw("failed to list serial ports", "error", err)
		return ""
	}
	port := board.PickPort(ports)
	if port == "" {
		for _, p := range ports {
			logger.Infow("available port", "name", p.Name, "description", p.Description)
		}
	}
	return port
}

// session writes every record it is handed to the configured sinks.
type session struct {
	id      string
	site    int
	records *record.Writer
	soil    io.Writer
	db      *store.DB
	pub     *telemetry.Publisher
	log     *zap.SugaredLogger

	recordCount int
	soilCount   int
}

func run(ctx context.Context, cfg *config.Config, dev board.Device, logger *zap.SugaredLogger) error {
	if err := os.MkdirAll(cfg.Logger.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	stamp := time.Now().Format("20060102_150405")
	dataPath := filepath.Join(cfg.Logger.OutputDir, "data_"+stamp+".csv")
	soilPath := filepath.Join(cfg.Logger.OutputDir, "soil_"+stamp+".csv")

	dataFile, err := os.Create(dataPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dataPath, err)
	}
	defer dataFile.Close()

	soilFile, err := os.Create(soilPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", soilPath, err)
	}
	defer soilFile.Close()

	s := &session{
		id:      uuid.NewString(),
		site:    cfg.SiteID,
		records: record.NewWriter(dataFile),
		soil:    soilFile,
		log:     logger,
	}
	if err := s.records.WriteHeader(); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(soilFile, "time,"+modbus.SoilCSVHeader); err != nil {
		return err
	}

	if cfg.Logger.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logger.DBPath), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		s.db, err = store.Open(ctx, cfg.Logger.DBPath, s.id)
		if err != nil {
			return err
		}
		defer s.db.Close()
	}

	if cfg.MQTT.Enabled {
		s.pub, err = telemetry.Connect(cfg.Telemetry(), s.id, logger)
		if err != nil {
			logger.Warnw("telemetry disabled", "error", err)
		} else {
			defer s.pub.Close()
		}
	}

	logger.Infow("logging", "session", s.id, "duration", cfg.Logger.Duration, "data", dataPath, "soil", soilPath, "db", cfg.Logger.DBPath)

	var deadline <-chan time.Time
	if cfg.Logger.Duration > 0 {
		timer := time.NewTimer(cfg.Logger.Duration)
		defer timer.Stop()
		deadline = timer.C
	}

	start := time.Now()
	lines := dev.Lines()
	for {
		select {
		case <-ctx.Done():
			s.summary(time.Since(start))
			return nil
		case <-deadline:
			s.summary(time.Since(start))
			return s.latest(cfg.Logger.OutputDir, dataPath)
		case l, ok := <-lines:
			if !ok {
				s.summary(time.Since(start))
				return fmt.Errorf("board disconnected")
			}
			s.handle(ctx, l, time.Since(start))
		}
	}
}

func (s *session) handle(ctx context.Context, l board.Line, elapsed time.Duration) {
	switch l.Kind {
	case board.KindChatter:
		s.log.Infow("board", "line", l.Raw)
	case board.KindHeader:
		s.log.Debugw("header", "line", l.Raw)
	case board.KindRecord:
		s.recordCount++
		if err := s.records.Write(l.Record); err != nil {
			s.log.Errorw("failed to write record", "error", err)
		}
		if err := s.records.Flush(); err != nil {
			s.log.Errorw("failed to flush records", "error", err)
		}
		if s.db != nil {
			if err := s.db.InsertRecord(ctx, l.Record, l.Received); err != nil {
				s.log.Errorw("failed to store record", "error", err)
			}
		}
		if s.pub != nil {
			if err := s.pub.PublishRecord(l.Record); err != nil {
				s.log.Warnw("publish failed", "sensor", l.Record.Sensor, "error", err)
			}
		}
		s.log.Debugw("record", "elapsed", elapsed.Truncate(time.Second), "count", s.recordCount, "line", l.Raw)
	case board.KindSoil:
		s.soilCount++
		fields := append([]string{l.Received.Format(time.RFC3339)}, l.Soil.CSVFields(record.ErrorMarker)...)
		if _, err := fmt.Fprintln(s.soil, strings.Join(fields, ",")); err != nil {
			s.log.Errorw("failed to write soil row", "error", err)
		}
		if s.db != nil {
			if err := s.db.InsertSoil(ctx, s.site, l.Soil, l.Received); err != nil {
				s.log.Errorw("failed to store soil reading", "error", err)
			}
		}
		if s.pub != nil {
			if err := s.pub.PublishSoil(s.site, l.Soil); err != nil {
				s.log.Warnw("publish failed", "sensor", "soil", "error", err)
			}
		}
	}
}

func (s *session) summary(elapsed time.Duration) {
	s.log.Infow("logging finished", "session", s.id, "elapsed", elapsed.Truncate(time.Second), "records", s.recordCount, "soil_rows", s.soilCount)
}

// latest copies the finished log to data.csv next to it, where plotting
// scripts expect the most recent run.
func (s *session) latest(dir, dataPath string) error {
	data, err := os.ReadFile(dataPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dataPath, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "data.csv"), data, 0644); err != nil {
		return fmt.Errorf("failed to write data.csv: %w", err)
	}
	return nil
}

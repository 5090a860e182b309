package record

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// Header is the first line of every gas/environment log.
	Header = "time_ms,site,sensor,value,unit,temp_C,hum_%,press_hPa"
	// ErrorMarker replaces the value of a failed poll so rows stay fixed-width.
	ErrorMarker = "ERR"

	fieldCount = 8
)

// Environmental pseudo-sensors logged alongside the gas channels.
const (
	SensorTemperature = "BME_TEMP"
	SensorHumidity    = "BME_HUM"
	SensorPressure    = "BME_PRESS"
)

var (
	// ErrHeader is returned by Parse for the header line.
	ErrHeader = errors.New("record: header line")
	// ErrNotRecord is returned by Parse for lines that are not log records.
	ErrNotRecord = errors.New("record: not a log record")
)

// Environment is the ambient reading attached to every record.
type Environment struct {
	TempC       float64
	HumidityPct float64
	PressureHPa float64
}

// Record is one CSV log line: one sensor value for one poll.
type Record struct {
	TimeMs uint64
	Site   int
	Sensor string
	Value  float64
	Unit   string
	Env    Environment
	Valid  bool
}

// Fields renders r in Header column order.
func (r Record) Fields() []string {
	value := ErrorMarker
	if r.Valid {
		value = strconv.FormatFloat(r.Value, 'f', 3, 64)
	}
	return []string{
		strconv.FormatUint(r.TimeMs, 10),
		strconv.Itoa(r.Site),
		r.Sensor,
		value,
		r.Unit,
		strconv.FormatFloat(r.Env.TempC, 'f', 2, 64),
		strconv.FormatFloat(r.Env.HumidityPct, 'f', 2, 64),
		strconv.FormatFloat(r.Env.PressureHPa, 'f', 2, 64),
	}
}

// String renders r as a CSV line without the trailing newline.
func (r Record) String() string {
	return strings.Join(r.Fields(), ",")
}

// EnvironmentRecords returns the three ambient records for one poll.
func EnvironmentRecords(timeMs uint64, site int, env Environment) []Record {
	return []Record{
		{TimeMs: timeMs, Site: site, Sensor: SensorTemperature, Value: env.TempC, Unit: "C", Env: env, Valid: true},
		{TimeMs: timeMs, Site: site, Sensor: SensorHumidity, Value: env.HumidityPct, Unit: "%", Env: env, Valid: true},
		{TimeMs: timeMs, Site: site, Sensor: SensorPressure, Value: env.PressureHPa, Unit: "hPa", Env: env, Valid: true},
	}
}

// Parse decodes one CSV log line. Banner and status chatter printed by the
// board yields ErrNotRecord.
func Parse(line string) (Record, error) {
	line = strings.TrimSpace(line)
	if line == Header {
		return Record{}, ErrHeader
	}
	if strings.Count(line, ",") != fieldCount-1 {
		return Record{}, fmt.Errorf("%w: %q", ErrNotRecord, line)
	}

	parts, err := csv.NewReader(strings.NewReader(line)).Read()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrNotRecord, err)
	}

	var r Record
	if r.TimeMs, err = strconv.ParseUint(parts[0], 10, 64); err != nil {
		return Record{}, fmt.Errorf("%w: invalid time: %v", ErrNotRecord, err)
	}
	if r.Site, err = strconv.Atoi(parts[1]); err != nil {
		return Record{}, fmt.Errorf("%w: invalid site: %v", ErrNotRecord, err)
	}
	r.Sensor = parts[2]
	r.Unit = parts[4]

	if parts[3] != ErrorMarker {
		if r.Value, err = strconv.ParseFloat(parts[3], 64); err != nil {
			return Record{}, fmt.Errorf("%w: invalid value: %v", ErrNotRecord, err)
		}
		r.Valid = true
	}

	env := []*float64{&r.Env.TempC, &r.Env.HumidityPct, &r.Env.PressureHPa}
	for i, dst := range env {
		if *dst, err = strconv.ParseFloat(parts[5+i], 64); err != nil {
			return Record{}, fmt.Errorf("%w: invalid environment column %d: %v", ErrNotRecord, 5+i, err)
		}
	}
	return r, nil
}

// Writer writes records as CSV.
type Writer struct {
	w *csv.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: csv.NewWriter(w)}
}

// WriteHeader writes the column header.
func (w *Writer) WriteHeader() error {
	return w.w.Write(strings.Split(Header, ","))
}

// Write writes one record.
func (w *Writer) Write(r Record) error {
	return w.w.Write(r.Fields())
}

// Flush flushes buffered output and reports any write error.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

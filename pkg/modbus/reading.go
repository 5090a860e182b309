package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SoilRegisterCount is the size of the 7-in-1 sensor's register block.
const SoilRegisterCount = 7

// SoilCSVHeader is the column header for soil readings.
const SoilCSVHeader = "Moisture(%),Temperature(C),EC(uS/cm),pH,Nitrogen(mg/kg),Phosphorus(mg/kg),Potassium(mg/kg)"

// ErrNotSoilLine is returned by ParseSoilCSV for lines that are not soil rows.
var ErrNotSoilLine = errors.New("modbus: not a soil CSV line")

// SoilReading is one decoded 7-in-1 soil sensor sample.
type SoilReading struct {
	Moisture     float64 // % (0-100)
	Temperature  float64 // °C
	Conductivity float64 // µS/cm
	PH           float64
	Nitrogen     uint16 // mg/kg
	Phosphorus   uint16 // mg/kg
	Potassium    uint16 // mg/kg
	Valid        bool
}

// DecodeSoilRegisters maps the big-endian register block onto a reading.
// Register order: moisture, temperature, EC, pH, N, P, K. Moisture,
// temperature and pH are tenths; temperature is signed.
func DecodeSoilRegisters(data []byte) (SoilReading, error) {
	if len(data) < 2*SoilRegisterCount {
		return SoilReading{}, fmt.Errorf("%w: %d register bytes, need %d",
			ErrByteCountMismatch, len(data), 2*SoilRegisterCount)
	}

	reg := func(i int) uint16 {
		return binary.BigEndian.Uint16(data[2*i:])
	}

	return SoilReading{
		Moisture:     float64(reg(0)) / 10.0,
		Temperature:  float64(int16(reg(1))) / 10.0,
		Conductivity: float64(reg(2)),
		PH:           float64(reg(3)) / 10.0,
		Nitrogen:     reg(4),
		Phosphorus:   reg(5),
		Potassium:    reg(6),
		Valid:        true,
	}, nil
}

// Check returns warnings for values outside the sensor's physical range.
// Out-of-range values usually mean a wrong baud rate or wiring.
func (r SoilReading) Check() []string {
	var warnings []string
	if r.Moisture < 0 || r.Moisture > 100 {
		warnings = append(warnings, fmt.Sprintf("moisture %.1f%% out of range (0-100%%)", r.Moisture))
	}
	if r.Temperature < -40 || r.Temperature > 80 {
		warnings = append(warnings, fmt.Sprintf("temperature %.1fC out of range (-40 to 80C)", r.Temperature))
	}
	if r.PH < 0 || r.PH > 14 {
		warnings = append(warnings, fmt.Sprintf("pH %.1f out of range (0-14)", r.PH))
	}
	return warnings
}

// CSVFields renders the reading in SoilCSVHeader column order. Invalid
// readings render every column as marker.
func (r SoilReading) CSVFields(marker string) []string {
	if !r.Valid {
		out := make([]string, SoilRegisterCount)
		for i := range out {
			out[i] = marker
		}
		return out
	}
	return []string{
		strconv.FormatFloat(r.Moisture, 'f', 1, 64),
		strconv.FormatFloat(r.Temperature, 'f', 1, 64),
		strconv.FormatFloat(r.Conductivity, 'f', 0, 64),
		strconv.FormatFloat(r.PH, 'f', 1, 64),
		strconv.FormatUint(uint64(r.Nitrogen), 10),
		strconv.FormatUint(uint64(r.Phosphorus), 10),
		strconv.FormatUint(uint64(r.Potassium), 10),
	}
}

// ParseSoilCSV decodes a line produced from CSVFields. A row made of
// markers decodes to an invalid reading.
func ParseSoilCSV(line, marker string) (SoilReading, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != SoilRegisterCount {
		return SoilReading{}, fmt.Errorf("%w: %d columns", ErrNotSoilLine, len(parts))
	}
	if parts[0] == marker {
		return SoilReading{}, nil
	}

	var (
		r   SoilReading
		err error
	)
	floats := []*float64{&r.Moisture, &r.Temperature, &r.Conductivity, &r.PH}
	for i, dst := range floats {
		if *dst, err = strconv.ParseFloat(parts[i], 64); err != nil {
			return SoilReading{}, fmt.Errorf("%w: column %d: %v", ErrNotSoilLine, i, err)
		}
	}
	counts := []*uint16{&r.Nitrogen, &r.Phosphorus, &r.Potassium}
	for i, dst := range counts {
		v, err := strconv.ParseUint(parts[4+i], 10, 16)
		if err != nil {
			return SoilReading{}, fmt.Errorf("%w: column %d: %v", ErrNotSoilLine, 4+i, err)
		}
		*dst = uint16(v)
	}
	r.Valid = true
	return r, nil
}

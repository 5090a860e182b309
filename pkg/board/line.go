package board

import (
	"errors"
	"strings"
	"time"

	"github.com/obseract/sciencebox/pkg/modbus"
	"github.com/obseract/sciencebox/pkg/record"
)

// Kind classifies a line printed by the board.
type Kind int

const (
	// KindChatter is a banner or status message.
	KindChatter Kind = iota
	// KindHeader is the record or soil CSV header.
	KindHeader
	// KindRecord is a gas or environment record.
	KindRecord
	// KindSoil is a soil sensor row.
	KindSoil
)

func (k Kind) String() string {
	switch k {
	case KindChatter:
		return "chatter"
	case KindHeader:
		return "header"
	case KindRecord:
		return "record"
	case KindSoil:
		return "soil"
	default:
		return "unknown"
	}
}

// Line is one line of board output.
type Line struct {
	Received time.Time
	Raw      string
	Kind     Kind
	Record   record.Record      // Set for KindRecord
	Soil     modbus.SoilReading // Set for KindSoil
}

// ParseLine classifies a line. Anything that is neither a header nor a
// well-formed CSV row is chatter.
func ParseLine(raw string, received time.Time) Line {
	raw = strings.TrimSpace(raw)
	l := Line{Received: received, Raw: raw, Kind: KindChatter}

	if raw == modbus.SoilCSVHeader {
		l.Kind = KindHeader
		return l
	}

	r, err := record.Parse(raw)
	switch {
	case err == nil:
		l.Kind = KindRecord
		l.Record = r
		return l
	case errors.Is(err, record.ErrHeader):
		l.Kind = KindHeader
		return l
	}

	if soil, err := modbus.ParseSoilCSV(raw, record.ErrorMarker); err == nil {
		l.Kind = KindSoil
		l.Soil = soil
	}
	return l
}

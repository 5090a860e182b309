package record

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_String(t *testing.T) {
	r := Record{
		TimeMs: 123456,
		Site:   1,
		Sensor: "MQ4_CH4",
		Value:  2.34567,
		Unit:   "ppm",
		Env:    Environment{TempC: 21.5, HumidityPct: 55.25, PressureHPa: 1013.2},
		Valid:  true,
	}
	assert.Equal(t, "123456,1,MQ4_CH4,2.346,ppm,21.50,55.25,1013.20", r.String())

	r.Valid = false
	assert.Equal(t, "123456,1,MQ4_CH4,ERR,ppm,21.50,55.25,1013.20", r.String())
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Record
		wantErr error
	}{
		{
			name: "gas record",
			line: "5000,2,MQ136_H2S,0.812,ppm,19.00,61.00,1008.50\r\n",
			want: Record{TimeMs: 5000, Site: 2, Sensor: "MQ136_H2S", Value: 0.812, Unit: "ppm",
				Env: Environment{TempC: 19, HumidityPct: 61, PressureHPa: 1008.5}, Valid: true},
		},
		{
			name: "failed poll",
			line: "5000,2,MQ8_H2,ERR,ppm,19.00,61.00,1008.50",
			want: Record{TimeMs: 5000, Site: 2, Sensor: "MQ8_H2", Unit: "ppm",
				Env: Environment{TempC: 19, HumidityPct: 61, PressureHPa: 1008.5}},
		},
		{name: "header", line: Header, wantErr: ErrHeader},
		{name: "banner", line: "Warming MQ sensors (120s)...", wantErr: ErrNotRecord},
		{name: "calibration", line: "MQ4 Ro: 12.40 kOhm", wantErr: ErrNotRecord},
		{name: "bad number", line: "x,2,MQ8_H2,1,ppm,19.00,61.00,1008.50", wantErr: ErrNotRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.line)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnvironmentRecords(t *testing.T) {
	env := Environment{TempC: 20, HumidityPct: 50, PressureHPa: 1000}
	recs := EnvironmentRecords(10, 3, env)

	require.Len(t, recs, 3)
	assert.Equal(t, "10,3,BME_TEMP,20.000,C,20.00,50.00,1000.00", recs[0].String())
	assert.Equal(t, "10,3,BME_HUM,50.000,%,20.00,50.00,1000.00", recs[1].String())
	assert.Equal(t, "10,3,BME_PRESS,1000.000,hPa,20.00,50.00,1000.00", recs[2].String())
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.Write(Record{TimeMs: 1, Site: 1, Sensor: "MQ8_H2", Unit: "ppm"}))
	require.NoError(t, w.Flush())

	assert.Equal(t, Header+"\n1,1,MQ8_H2,ERR,ppm,0.00,0.00,0.00\n", buf.String())
}

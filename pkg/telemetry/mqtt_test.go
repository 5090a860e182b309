package telemetry

import (
	"encoding/json"
	"testing"

	"github.com/obseract/sciencebox/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopic(t *testing.T) {
	assert.Equal(t, "rover/site/2/MQ4_CH4", Topic("rover", 2, "MQ4_CH4"))
}

func TestNewMessage(t *testing.T) {
	r := record.Record{TimeMs: 10, Site: 1, Sensor: "MQ8_H2", Value: 3.25, Unit: "ppm", Valid: true,
		Env: record.Environment{TempC: 20, HumidityPct: 40, PressureHPa: 990}}

	data, err := json.Marshal(NewMessage("abc", r))
	require.NoError(t, err)
	assert.JSONEq(t, `{"session":"abc","time_ms":10,"site":1,"sensor":"MQ8_H2","value":3.25,
		"unit":"ppm","temp_c":20,"hum_pct":40,"press_hpa":990}`, string(data))

	r.Valid = false
	data, err = json.Marshal(NewMessage("abc", r))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"value":null`)
}

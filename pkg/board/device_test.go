package board

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	dev := New("COM3", 115200, 10, nil)
	assert.NotNil(t, dev)
	assert.Equal(t, "COM3", dev.port)
	assert.Equal(t, 115200, dev.baudRate)
	assert.Equal(t, 10, dev.bufSize)
	assert.NotNil(t, dev.lines)
	assert.False(t, dev.IsConnected())
}

func TestNew_Defaults(t *testing.T) {
	dev := New("COM3", 0, 0, nil)
	assert.NotNil(t, dev)
	assert.Equal(t, DefaultBaudRate, dev.baudRate)
	assert.Equal(t, DefaultBufferSize, dev.bufSize)
}

func TestClose_NotConnected(t *testing.T) {
	dev := New("COM3", 0, 0, nil)
	assert.NoError(t, dev.Close())
}

func TestConnect_MissingPort(t *testing.T) {
	dev := New("/dev/does-not-exist", 0, 0, nil)
	assert.Error(t, dev.Connect())
	assert.False(t, dev.IsConnected())
}

func TestScan(t *testing.T) {
	input := strings.Join([]string{
		"Science box starting",
		"",
		"time_ms,site,sensor,value,unit,temp_C,hum_%,press_hPa",
		"2000,1,MQ4_CH4,1.875,ppm,20.00,60.00,1013.25",
		"   ",
		"23.4,21.5,310,6.6,18,9,42",
	}, "\r\n")

	out := make(chan Line, 10)
	scan(context.Background(), strings.NewReader(input), out, zap.NewNop().Sugar())
	close(out)

	var kinds []Kind
	for l := range out {
		kinds = append(kinds, l.Kind)
	}
	assert.Equal(t, []Kind{KindChatter, KindHeader, KindRecord, KindSoil}, kinds)
}

func TestScan_DropsWhenFull(t *testing.T) {
	input := "a\nb\nc\n"
	out := make(chan Line, 1)
	scan(context.Background(), strings.NewReader(input), out, zap.NewNop().Sugar())

	require.Len(t, out, 1)
	assert.Equal(t, "a", (<-out).Raw)
}

func TestScan_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan Line, 10)
	scan(ctx, strings.NewReader("a\nb\n"), out, zap.NewNop().Sugar())
	assert.Empty(t, out)
}

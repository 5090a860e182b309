package board

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/obseract/sciencebox/pkg/hal"
)

func TestPickPort(t *testing.T) {
	tests := []struct {
		name  string
		ports []string
		want  string
	}{
		{"none", nil, ""},
		{"no board", []string{"/dev/ttyS0", "/dev/ttyS1"}, ""},
		{"linux acm", []string{"/dev/ttyS0", "/dev/ttyACM0"}, "/dev/ttyACM0"},
		{"linux usb", []string{"/dev/ttyUSB1", "/dev/ttyACM0"}, "/dev/ttyUSB1"},
		{"macos", []string{"/dev/cu.Bluetooth-Incoming-Port", "/dev/cu.usbmodem14201"}, "/dev/cu.usbmodem14201"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ports []hal.Port
			for _, name := range tt.ports {
				ports = append(ports, hal.Port{Name: name, Description: name})
			}
			assert.Equal(t, tt.want, PickPort(ports))
		})
	}
}

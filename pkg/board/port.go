package board

import (
	"strings"

	"github.com/obseract/sciencebox/pkg/hal"
)

// boardPortHints are substrings of the device names USB serial bridges get
// on macOS and Linux.
var boardPortHints = []string{"usbmodem", "usbserial", "ttyUSB", "ttyACM"}

// PickPort returns the first port that looks like a USB-attached board, or
// "" if none does.
func PickPort(ports []hal.Port) string {
	for _, p := range ports {
		for _, hint := range boardPortHints {
			if strings.Contains(p.Name, hint) {
				return p.Name
			}
		}
	}
	return ""
}

package gas

import "errors"

var (
	// ErrUncalibrated is returned while the baseline resistance is unset.
	ErrUncalibrated = errors.New("gas sensor not calibrated")
	// ErrSensorDisconnected is returned when the averaged ADC value is outside
	// the plausible range of a powered sensor.
	ErrSensorDisconnected = errors.New("gas sensor disconnected or unpowered")
)

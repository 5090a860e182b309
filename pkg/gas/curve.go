package gas

import "math"

// Curve is a datasheet log-log sensitivity curve:
//
//	log10(Rs/Ro) = M·log10(ppm) + B
type Curve struct {
	M float64 `yaml:"slope"`     // Slope (negative for MQ sensors)
	B float64 `yaml:"intercept"` // Intercept
}

// ConcentrationFromRatio inverts the curve: ppm = 10^((log10(ratio) − B) / M).
// Returns 0 when ratio ≤ 0 or the curve slope is zero.
func ConcentrationFromRatio(ratio float64, curve Curve) float64 {
	if ratio <= 0 || curve.M == 0 {
		return 0
	}
	logPPM := (math.Log10(ratio) - curve.B) / curve.M
	return math.Pow(10, logPPM)
}

// RatioFromConcentration evaluates the forward curve for ppm > 0.
func RatioFromConcentration(ppm float64, curve Curve) float64 {
	if ppm <= 0 {
		return 0
	}
	return math.Pow(10, curve.M*math.Log10(ppm)+curve.B)
}

package gas

// CO2Reference holds the MQ-135 environmental correction constants.
type CO2Reference struct {
	TempC       float64 `yaml:"temp_ref"`   // Reference temperature (°C)
	HumidityPct float64 `yaml:"hum_ref"`    // Reference relative humidity (%)
	Baseline    float64 `yaml:"baseline"`   // Outdoor CO2 background (ppm)
	Min         float64 `yaml:"min"`        // Lower clamp (ppm)
	Max         float64 `yaml:"max"`        // Upper clamp (ppm)
	TempCoeff   float64 `yaml:"temp_coeff"` // Fractional correction per °C
	HumCoeff    float64 `yaml:"hum_coeff"`  // Fractional correction per %RH
}

// DefaultCO2Reference returns the winter field-test reference conditions.
func DefaultCO2Reference() CO2Reference {
	return CO2Reference{
		TempC:       20.0,
		HumidityPct: 60.0,
		Baseline:    400.0,
		Min:         400.0,
		Max:         5000.0,
		TempCoeff:   0.02,
		HumCoeff:    0.01,
	}
}

// CompensateCO2 corrects a smoothed MQ-135 reading for temperature and humidity
// and offsets it onto the atmospheric background. Warmer or wetter air lowers
// Rs, so readings are scaled down above the reference and up below it.
func CompensateCO2(raw, tempC, humidityPct float64, ref CO2Reference) float64 {
	tempCorrection := 1.0 + (ref.TempC-tempC)*ref.TempCoeff
	humCorrection := 1.0 + (ref.HumidityPct-humidityPct)*ref.HumCoeff

	ppm := raw*tempCorrection*humCorrection + ref.Baseline
	if ppm < ref.Min {
		return ref.Min
	}
	if ref.Max > ref.Min && ppm > ref.Max {
		return ref.Max
	}
	return ppm
}

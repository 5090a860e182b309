package gas

// Preset bundles the datasheet constants of a sensor/gas pair.
type Preset struct {
	Name          string
	Unit          string
	LoadOhms      float64
	CleanAirRatio float64 // Datasheet Rs/Ro in clean air
	Curve         Curve
	CompensateCO2 bool
}

// MQ4 detects methane.
func MQ4() Preset {
	return Preset{Name: "MQ4_CH4", Unit: "ppm", LoadOhms: 25000, CleanAirRatio: 4.4, Curve: Curve{M: -0.36, B: 1.10}}
}

// MQ136 detects hydrogen sulfide.
func MQ136() Preset {
	return Preset{Name: "MQ136_H2S", Unit: "ppm", LoadOhms: 20000, CleanAirRatio: 3.6, Curve: Curve{M: -0.44, B: 0.70}}
}

// MQ8 detects hydrogen.
func MQ8() Preset {
	return Preset{Name: "MQ8_H2", Unit: "ppm", LoadOhms: 15000, CleanAirRatio: 70.0, Curve: Curve{M: -0.42, B: 1.30}}
}

// MQ135 is used as a CO2 proxy with environmental compensation.
func MQ135() Preset {
	return Preset{Name: "MQ135_CO2", Unit: "ppm", LoadOhms: 15000, CleanAirRatio: 3.6, Curve: Curve{M: -0.42, B: 0.30}, CompensateCO2: true}
}

// Presets returns the science box sensor array in polling order.
func Presets() []Preset {
	return []Preset{MQ4(), MQ136(), MQ8(), MQ135()}
}

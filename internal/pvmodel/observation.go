package pvmodel

import "time"

// Meteorology holds the weather inputs for one sampling period.
type Meteorology struct {
	GlobalHorizontal   float64 `json:"global_horizontal"`   // W/m²
	DiffuseHorizontal  float64 `json:"diffuse_horizontal"`  // W/m²
	SunshineDuration   float64 `json:"sunshine_duration"`   // minutes within the period
	AmbientTemperature float64 `json:"ambient_temperature"` // °C
	WindSpeed          float64 `json:"wind_speed"`          // m/s
	SnowDepth          float64 `json:"snow_depth"`          // cm
}

// Geometry holds the irradiance geometry factors precomputed from sun position
// and roof orientation.
type Geometry struct {
	DirectFactor  float64 `json:"direct_factor"`
	DiffuseFactor float64 `json:"diffuse_factor"`
	SinElevation  float64 `json:"sin_elevation"`
	CosElevation  float64 `json:"cos_elevation"`
}

// HasIrradiance reports whether the plane of array can receive any light: either
// the direct beam hits it, or the sun is above the horizon and diffuse light
// reaches it.
func (g Geometry) HasIrradiance() bool {
	return g.DirectFactor > 0 || (g.DiffuseFactor > 0 && g.SinElevation > 0)
}

// Observation is one telemetry sample.
type Observation struct {
	Timestamp time.Time `json:"timestamp"`
	// MeasuredPower is only meaningful when HasMeasurement is set.
	MeasuredPower  float64     `json:"measured_power"`
	HasMeasurement bool        `json:"has_measurement"`
	Weight         float64     `json:"weight"`
	Geometry       Geometry    `json:"geometry"`
	Meteo          Meteorology `json:"meteo"`
	// Age is the time since commissioning in years.
	Age float64 `json:"age"`
}

// Measured returns the measured power, or 0 when no meter reading exists.
func (o Observation) Measured() float64 {
	if !o.HasMeasurement {
		return 0
	}
	return o.MeasuredPower
}

// EffectiveWeight is the regression weight of the observation. Unmeasured
// records keep their row but contribute nothing.
func (o Observation) EffectiveWeight() float64 {
	if !o.HasMeasurement {
		return 0
	}
	return o.Weight
}

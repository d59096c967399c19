// Package simulate generates synthetic PV telemetry from a known parameter
// vector. The generator models the sun path with a simple annual and diurnal
// cosine, cloudiness as an autoregressive direct irradiance, temperature and
// wind, and can inject noise, foggy mornings, snow spells and outliers so the
// anomaly filters and the calibrator can be exercised end to end.
package simulate

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/Steivan/LEG-analysis-sub001/internal/config"
	apperrors "github.com/Steivan/LEG-analysis-sub001/internal/errors"
	"github.com/Steivan/LEG-analysis-sub001/internal/pvmodel"
)

const (
	earthTilt   = 23.4 // degrees
	daysPerYear = 365.2422

	solarConstant    = 1361.0 // W/m²
	diffuseRatio     = 0.3
	meanDiffuse      = solarConstant * diffuseRatio
	maxDirect        = solarConstant - meanDiffuse
	cloudPersistence = 0.7

	meanTemperature     = 15.0
	annualTempAmplitude = 10.0
	dailyTempAmplitude  = 5.0

	maxWindSpeed     = 150.0
	maxGust          = 10.0
	gustProbability  = 0.1
	windPersistence  = 0.95
	initialWindSpeed = 10.0

	noiseScale       = 0.1
	outlierFactor    = 1.5
	snowDepthOnSnowy = 20.0 // cm
)

var (
	fogDaysPerMonth  = [12]int{10, 5, 0, 0, 0, 0, 0, 0, 0, 5, 10, 10}
	snowDaysPerMonth = [12]int{10, 10, 0, 0, 0, 0, 0, 0, 0, 0, 5, 10}
)

// Outlier probabilities per period, per hour and per three-hour block.
const (
	pPeriodOutlier = 0.001
	pHourOutlier   = 0.001
	pBlockOutlier  = 0.001
)

// Options configures a simulation run.
type Options struct {
	Params         pvmodel.Params
	Evaluator      pvmodel.Evaluator
	InstalledPower float64
	Start          time.Time
	Days           int
	PeriodsPerHour int
	Latitude       float64 // degrees
	RoofAzimuth    float64 // degrees, 0 = south, negative = east
	RoofElevation  float64 // degrees
	Seed           uint64

	Noise    bool
	Fog      bool
	Snow     bool
	Outliers bool
}

// DefaultOptions returns a clean one-year run starting 2020-01-01.
func DefaultOptions(p pvmodel.Params) Options {
	return Options{
		Params:         p,
		Evaluator:      pvmodel.RTWA{},
		InstalledPower: 10000,
		Start:          time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Days:           365,
		PeriodsPerHour: 4,
		Latitude:       46,
		RoofAzimuth:    -30,
		RoofElevation:  20,
		Seed:           1,
	}
}

// OptionsFromConfig builds generator options for a plant with the given
// installed power and true parameters.
func OptionsFromConfig(cfg config.SimulationConfig, installedPower float64, p pvmodel.Params) (Options, error) {
	start, err := cfg.Start()
	if err != nil {
		return Options{}, apperrors.NewOutOfBoundsError("simulation.start_date", err.Error())
	}
	return Options{
		Params:         p,
		Evaluator:      pvmodel.RTWA{},
		InstalledPower: installedPower,
		Start:          start,
		Days:           cfg.Days,
		PeriodsPerHour: cfg.PeriodsPerHour,
		Latitude:       cfg.Latitude,
		RoofAzimuth:    cfg.RoofAzimuth,
		RoofElevation:  cfg.RoofElevation,
		Seed:           cfg.Seed,
		Noise:          cfg.Noise,
		Fog:            cfg.Fog,
		Snow:           cfg.Snow,
		Outliers:       cfg.Outliers,
	}, nil
}

// Dataset is the generated telemetry together with ground truth labels.
type Dataset struct {
	Observations   []pvmodel.Observation
	Params         pvmodel.Params
	Evaluator      pvmodel.Evaluator
	InstalledPower float64
	PeriodsPerHour int
	// ModelValid flags daylight records untouched by fog, snow and outliers.
	ModelValid pvmodel.Mask
	FogPeriod  pvmodel.Mask
	SnowDay    pvmodel.Mask
	Outlier    pvmodel.Mask
}

// Reference returns the evaluator, true parameters and plant constants the
// dataset was generated with.
func (d *Dataset) Reference() pvmodel.Reference {
	return pvmodel.Reference{
		Evaluator:      d.Evaluator,
		Params:         d.Params,
		InstalledPower: d.InstalledPower,
		PeriodsPerHour: d.PeriodsPerHour,
	}
}

func (o Options) validate() error {
	if err := pvmodel.ValidatePlant(o.Evaluator, o.InstalledPower, o.PeriodsPerHour); err != nil {
		return err
	}
	switch {
	case o.Days < 1:
		return apperrors.NewOutOfBoundsError("days", fmt.Sprintf("must be at least 1, got %d", o.Days))
	case o.Latitude < -90 || o.Latitude > 90:
		return apperrors.NewOutOfBoundsError("latitude", fmt.Sprintf("%g outside [-90, 90]", o.Latitude))
	case o.RoofElevation < 0 || o.RoofElevation > 90:
		return apperrors.NewOutOfBoundsError("roof_elevation", fmt.Sprintf("%g outside [0, 90]", o.RoofElevation))
	}
	return nil
}

// dayState holds the per-day random draws.
type dayState struct {
	foggy          bool
	fogDissolveBeg float64
	fogDissolveEnd float64
	snowy          bool
}

type generator struct {
	opts Options
	rng  *rand.Rand

	direct    float64
	windSpeed float64
	snowFirst int
	snowLast  int
}

// Generate produces opts.Days days of telemetry starting at midnight of
// opts.Start. The same seed always yields the same dataset.
func Generate(opts Options) (*Dataset, error) {
	if opts.Evaluator == nil {
		opts.Evaluator = pvmodel.RTWA{}
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	g := &generator{
		opts:      opts,
		rng:       rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		direct:    maxDirect / 2,
		windSpeed: initialWindSpeed,
		snowFirst: -1,
		snowLast:  -1,
	}

	pph := opts.PeriodsPerHour
	total := opts.Days * 24 * pph
	ds := &Dataset{
		Observations:   make([]pvmodel.Observation, 0, total),
		Params:         opts.Params,
		Evaluator:      opts.Evaluator,
		InstalledPower: opts.InstalledPower,
		PeriodsPerHour: pph,
		ModelValid:     make(pvmodel.Mask, 0, total),
		FogPeriod:      make(pvmodel.Mask, 0, total),
		SnowDay:        make(pvmodel.Mask, 0, total),
		Outlier:        make(pvmodel.Mask, 0, total),
	}

	start := time.Date(opts.Start.Year(), opts.Start.Month(), opts.Start.Day(), 0, 0, 0, 0, time.UTC)
	for day := 0; day < opts.Days; day++ {
		date := start.AddDate(0, 0, day)
		state := g.drawDay(date, day == 0)

		for block := 0; block < 8; block++ {
			blockOutlier := g.rng.Float64() < pBlockOutlier
			for blockHour := 0; blockHour < 3; blockHour++ {
				hourOutlier := g.rng.Float64() < pHourOutlier
				hour := 3*block + blockHour
				for period := 0; period < pph; period++ {
					periodOutlier := g.rng.Float64() < pPeriodOutlier
					outlier := blockOutlier || hourOutlier || periodOutlier
					g.appendRecord(ds, start, date, hour, period, state, outlier)
				}
			}
		}
	}
	return ds, nil
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// intN returns a uniform integer in [lo, hi].
func (g *generator) intN(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo+1)
}

func (g *generator) drawDay(date time.Time, first bool) dayState {
	month := int(date.Month()) - 1
	monthDays := daysIn(date)

	var s dayState
	s.foggy = g.intN(1, monthDays) <= fogDaysPerMonth[month]
	s.fogDissolveBeg = float64(g.intN(6, 8))
	s.fogDissolveEnd = float64(g.intN(10, 14))

	if date.Day() == 1 || first {
		g.snowFirst, g.snowLast = -1, -1
		if n := snowDaysPerMonth[month]; n > 0 {
			duration := g.intN(0, 2*n)
			g.snowFirst = g.intN(1, monthDays-duration+1)
			g.snowLast = g.snowFirst + duration - 1
		}
	}
	s.snowy = g.snowFirst <= date.Day() && date.Day() <= g.snowLast
	return s
}

func (g *generator) appendRecord(ds *Dataset, start, date time.Time, hour, period int, state dayState, outlier bool) {
	opts := g.opts
	pph := opts.PeriodsPerHour
	minutesPerPeriod := 60 / pph

	ts := date.Add(time.Duration(hour)*time.Hour + time.Duration(period*minutesPerPeriod)*time.Minute)
	age := ts.Sub(start).Minutes() / (daysPerYear * 24 * 60)
	timeOfDay := float64(hour) + float64(period)/float64(pph)
	dayOfYear := float64(date.YearDay() - 1)

	cosYear := math.Cos(2 * math.Pi / daysPerYear * dayOfYear)
	cosDay := math.Cos(2 * math.Pi / 24 * timeOfDay)

	geometry := sunGeometry(cosYear, cosDay, timeOfDay, opts.Latitude, opts.RoofAzimuth, opts.RoofElevation)
	sunUp := geometry.SinElevation > 0

	g.direct = g.direct*cloudPersistence + (1-cloudPersistence)*maxDirect*g.rng.Float64()
	diffuse := meanDiffuse + (maxDirect-g.direct)*0.1

	var meteo pvmodel.Meteorology
	weight := 0.0
	if sunUp {
		meteo.GlobalHorizontal = g.direct*geometry.SinElevation + diffuse
		meteo.DiffuseHorizontal = diffuse
		meteo.SunshineDuration = math.Floor(g.direct / maxDirect * float64(minutesPerPeriod))
		weight = 1e-3 + math.Pow(g.direct/maxDirect, 3)
	}
	meteo.AmbientTemperature = meanTemperature - annualTempAmplitude*cosYear - dailyTempAmplitude*cosDay

	gust := 0.0
	if g.rng.Float64() < gustProbability {
		gust = g.rng.Float64() * maxGust
	}
	g.windSpeed = math.Max(0, math.Min(maxWindSpeed, g.windSpeed*windPersistence+gust))
	meteo.WindSpeed = g.windSpeed

	if opts.Snow && state.snowy {
		meteo.SnowDepth = snowDepthOnSnowy
	}

	obs := pvmodel.Observation{
		Timestamp: ts,
		Weight:    weight,
		Geometry:  geometry,
		Meteo:     meteo,
		Age:       age,
	}

	power := opts.Evaluator.Evaluate(obs, opts.InstalledPower, pph, opts.Params).Power
	noise := power * noiseScale * (g.rng.Float64() - 0.5)
	if opts.Noise {
		power += noise
	}

	h := float64(hour)
	fogPeriod := state.foggy && h < state.fogDissolveEnd
	if opts.Fog && fogPeriod {
		switch {
		case h <= state.fogDissolveBeg:
			power = 0
		default:
			power *= (h - state.fogDissolveBeg) / (state.fogDissolveEnd - state.fogDissolveBeg)
		}
	}
	if opts.Snow && state.snowy {
		power = 0
	}
	if opts.Outliers && outlier {
		power *= outlierFactor
	}

	obs.MeasuredPower = power
	obs.HasMeasurement = true

	ds.Observations = append(ds.Observations, obs)
	ds.FogPeriod = append(ds.FogPeriod, opts.Fog && fogPeriod)
	ds.SnowDay = append(ds.SnowDay, opts.Snow && state.snowy)
	ds.Outlier = append(ds.Outlier, opts.Outliers && outlier)
	ds.ModelValid = append(ds.ModelValid, weight > 0 &&
		!(opts.Snow && state.snowy) && !(opts.Fog && fogPeriod) && !(opts.Outliers && outlier))
}

// sunGeometry derives the geometry factors from a cosine sun path: the zenith
// angle swings by the earth tilt over the year and by 90° - latitude over the
// day.
func sunGeometry(cosYear, cosDay, timeOfDay, latitude, roofAzimuth, roofElevation float64) pvmodel.Geometry {
	const rad = math.Pi / 180

	zenith := 90 + earthTilt*cosYear + (90-latitude)*cosDay
	elevation := 90 - zenith
	azimuth := (timeOfDay - 12) * 15

	sinElev, cosElev := math.Sin(elevation*rad), math.Cos(elevation*rad)
	sinRoof, cosRoof := math.Sin(roofElevation*rad), math.Cos(roofElevation*rad)

	direct := sinElev*cosRoof + cosElev*sinRoof*math.Cos((azimuth-roofAzimuth)*rad)
	if sinElev <= 0 {
		direct = math.Min(direct, 0)
	}

	return pvmodel.Geometry{
		DirectFactor:  direct,
		DiffuseFactor: (1 + cosRoof) / 2,
		SinElevation:  sinElev,
		CosElevation:  cosElev,
	}
}

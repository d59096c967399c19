package pvmodel

import (
	"fmt"
	"math"

	apperrors "github.com/Steivan/LEG-analysis-sub001/internal/errors"
)

// NumParams is the dimension of the parameter vector.
const NumParams = 5

// ParamIndex addresses one element of the parameter vector.
type ParamIndex int

const (
	Efficiency ParamIndex = iota
	TempCoefficient
	ThermalU0
	ThermalU1
	Degradation
)

var paramNames = [NumParams]string{"efficiency", "temp_coefficient", "u0", "u1", "degradation"}

func (i ParamIndex) String() string {
	if i < 0 || int(i) >= NumParams {
		return fmt.Sprintf("param(%d)", int(i))
	}
	return paramNames[i]
}

// Params is the model parameter vector θ.
type Params struct {
	Efficiency      float64 `json:"efficiency"`
	TempCoefficient float64 `json:"temp_coefficient"`
	U0              float64 `json:"u0"`
	U1              float64 `json:"u1"`
	Degradation     float64 `json:"degradation"`
}

// Vector returns θ in ParamIndex order.
func (p Params) Vector() [NumParams]float64 {
	return [NumParams]float64{p.Efficiency, p.TempCoefficient, p.U0, p.U1, p.Degradation}
}

// ParamsFromVector is the inverse of Params.Vector.
func ParamsFromVector(v [NumParams]float64) Params {
	return Params{
		Efficiency:      v[Efficiency],
		TempCoefficient: v[TempCoefficient],
		U0:              v[ThermalU0],
		U1:              v[ThermalU1],
		Degradation:     v[Degradation],
	}
}

// Prior is an independent Gaussian prior with hard bounds.
type Prior struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Clamp projects v into [Min, Max].
func (p Prior) Clamp(v float64) float64 {
	return math.Min(math.Max(v, p.Min), p.Max)
}

// PriorSet holds one prior per parameter. Cross-correlations are not modelled.
type PriorSet struct {
	Efficiency      Prior `json:"efficiency"`
	TempCoefficient Prior `json:"temp_coefficient"`
	U0              Prior `json:"u0"`
	U1              Prior `json:"u1"`
	Degradation     Prior `json:"degradation"`
}

// DefaultPriors returns the priors used when nothing better is known.
func DefaultPriors() PriorSet {
	return PriorSet{
		Efficiency:      Prior{Mean: 0.85, StdDev: 0.05, Min: 0, Max: 1},
		TempCoefficient: Prior{Mean: -0.004, StdDev: 0.0005, Min: -math.MaxFloat64, Max: 0},
		U0:              Prior{Mean: 29, StdDev: 4, Min: 1e-6, Max: math.MaxFloat64},
		U1:              Prior{Mean: 0.5, StdDev: 0.1, Min: 1e-6, Max: math.MaxFloat64},
		Degradation:     Prior{Mean: 0.008, StdDev: 0.002, Min: 0, Max: 0.03},
	}
}

// Array returns the priors in ParamIndex order.
func (s PriorSet) Array() [NumParams]Prior {
	return [NumParams]Prior{s.Efficiency, s.TempCoefficient, s.U0, s.U1, s.Degradation}
}

// PriorSetFromArray is the inverse of PriorSet.Array.
func PriorSetFromArray(a [NumParams]Prior) PriorSet {
	return PriorSet{
		Efficiency:      a[Efficiency],
		TempCoefficient: a[TempCoefficient],
		U0:              a[ThermalU0],
		U1:              a[ThermalU1],
		Degradation:     a[Degradation],
	}
}

// With returns a copy of s with the prior at i replaced.
func (s PriorSet) With(i ParamIndex, p Prior) PriorSet {
	a := s.Array()
	a[i] = p
	return PriorSetFromArray(a)
}

// Means returns the vector of prior means.
func (s PriorSet) Means() Params {
	var v [NumParams]float64
	for i, p := range s.Array() {
		v[i] = p.Mean
	}
	return ParamsFromVector(v)
}

// Clamp projects every element of p into its prior bounds.
func (s PriorSet) Clamp(p Params) Params {
	v := p.Vector()
	for i, prior := range s.Array() {
		v[i] = prior.Clamp(v[i])
	}
	return ParamsFromVector(v)
}

// Contains reports whether every element of p lies within its bounds.
func (s PriorSet) Contains(p Params) bool {
	v := p.Vector()
	for i, prior := range s.Array() {
		if v[i] < prior.Min || v[i] > prior.Max {
			return false
		}
	}
	return true
}

// Validate rejects priors the solver cannot work with: non-positive or
// non-finite standard deviations, empty bounds, and means outside their bounds.
func (s PriorSet) Validate() error {
	for i, p := range s.Array() {
		name := ParamIndex(i).String()
		switch {
		case math.IsNaN(p.Mean) || math.IsInf(p.Mean, 0):
			return apperrors.NewOutOfBoundsError("priors."+name+".mean", "must be finite")
		case !(p.StdDev > 0) || math.IsInf(p.StdDev, 0):
			return apperrors.NewOutOfBoundsError("priors."+name+".std_dev", "must be positive and finite")
		case math.IsNaN(p.Min) || math.IsNaN(p.Max) || !(p.Min < p.Max):
			return apperrors.NewOutOfBoundsError("priors."+name, "min must be less than max")
		case p.Mean < p.Min || p.Mean > p.Max:
			return apperrors.NewOutOfBoundsError("priors."+name+".mean",
				fmt.Sprintf("%g outside [%g, %g]", p.Mean, p.Min, p.Max))
		}
	}
	return nil
}

package pvmodel

import (
	"fmt"

	apperrors "github.com/Steivan/LEG-analysis-sub001/internal/errors"
)

// Mask flags which observations take part in a calibration pass. It has the
// same length and order as the observation sequence.
type Mask []bool

// NewMask returns a mask of length n with every flag set to value.
func NewMask(n int, value bool) Mask {
	m := make(Mask, n)
	if value {
		for i := range m {
			m[i] = true
		}
	}
	return m
}

// HasIrradianceMask flags every observation whose geometry admits light.
func HasIrradianceMask(observations []Observation) Mask {
	m := make(Mask, len(observations))
	for i, o := range observations {
		m[i] = o.Geometry.HasIrradiance()
	}
	return m
}

// Count returns the number of set flags.
func (m Mask) Count() int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}

// Clone returns an independent copy.
func (m Mask) Clone() Mask {
	if m == nil {
		return nil
	}
	out := make(Mask, len(m))
	copy(out, m)
	return out
}

// And returns the element-wise conjunction of m and other.
func (m Mask) And(other Mask) Mask {
	out := make(Mask, len(m))
	for i := range m {
		out[i] = m[i] && i < len(other) && other[i]
	}
	return out
}

// CheckLength returns an OutOfBounds error unless the mask covers n observations.
func (m Mask) CheckLength(n int) error {
	if len(m) != n {
		return apperrors.NewOutOfBoundsError("mask", fmt.Sprintf("length %d does not match %d observations", len(m), n))
	}
	return nil
}

// Package hull estimates the long-horizon efficiency trend of a plant from the
// upper envelope of its measured to theoretical power ratio.
//
// Observations are binned per (year, month, intraday period). Each bin keeps
// its best measured value together with the theoretical value of the same
// record, so clouds and soiling only pull a bin down when they persist for the
// whole month. The day is then split into three segments of equal theoretical
// energy and the best segment ratio represents the month. A straight line
// fitted through the monthly ratios against their time lag gives the initial
// efficiency and the annual trend, which can seed the calibrator as priors.
package hull

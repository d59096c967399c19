// Package filter narrows validity masks over telemetry before calibration.
//
// Every pass takes the current mask and returns a new one that is narrower or
// equal; no pass ever re-includes a record. The sub-horizon pass establishes
// the initial mask. The fog, snow and outlier passes compare measured power
// with a reference model and may run in any order after it. A Pipeline chains
// the passes configured for a run and reports how many records each removed.
package filter

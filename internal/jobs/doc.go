// Package jobs runs the calibration tool flow asynchronously. A Queue feeds
// submitted runs to a fixed pool of workers and records their progress in a
// Store, from which clients poll the outcome.
package jobs

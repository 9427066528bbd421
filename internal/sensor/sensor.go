// Package sensor defines the temperature/humidity capability the node
// samples each cycle, and the drivers that implement it.
//
// Read failures are signaled with NaN, not errors: a transient
// sensor-bus glitch is an expected value in this domain, and the
// caller checks for it with [Reading.Valid] before doing anything with
// the sample.
package sensor

import "math"

// Reading is one temperature/humidity sample. It is produced fresh
// each cycle and discarded after the publish attempt.
type Reading struct {
	Temperature float64 // degrees Celsius
	Humidity    float64 // percent relative humidity
}

// Valid reports whether both fields carry real values. A NaN in either
// field means the read failed and the sample must not be published.
func (r Reading) Valid() bool {
	return !math.IsNaN(r.Temperature) && !math.IsNaN(r.Humidity)
}

// Sensor is the acquisition capability. Each call performs one
// synchronous read and returns NaN on failure. Reads can block for
// hundreds of milliseconds depending on the bus.
type Sensor interface {
	ReadTemperature() float64
	ReadHumidity() float64
}

package sensor

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// IIO reads a hygrometer through the Linux Industrial I/O sysfs
// interface. The kernel driver exposes calibrated values as text
// attributes under the device directory: temperature in millidegrees
// Celsius (in_temp_input) and relative humidity in thousandths of a
// percent (in_humidityrelative_input).
type IIO struct {
	// Device is the sysfs device directory, e.g.
	// /sys/bus/iio/devices/iio:device0.
	Device string
	// Model is a free-form tag for logs (e.g. "dht22").
	Model string
}

// NewIIO creates a driver for the IIO device directory.
func NewIIO(device, model string) *IIO {
	return &IIO{Device: device, Model: model}
}

// ReadTemperature returns degrees Celsius, or NaN if the attribute
// could not be read or parsed.
func (s *IIO) ReadTemperature() float64 {
	return s.readMilli("in_temp_input")
}

// ReadHumidity returns percent relative humidity, or NaN on failure.
func (s *IIO) ReadHumidity() float64 {
	return s.readMilli("in_humidityrelative_input")
}

func (s *IIO) readMilli(attr string) float64 {
	data, err := os.ReadFile(filepath.Join(s.Device, attr))
	if err != nil {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return math.NaN()
	}
	return v / 1000
}

package sensor

import (
	"math"
	"math/rand"
	"sync"
)

// Sim is a simulated hygrometer for development and tests. Readings
// drift around a fixed baseline; a configurable fraction of reads
// return the NaN failure sentinel so the skip-cycle path can be
// exercised without real hardware.
type Sim struct {
	mu          sync.Mutex
	rng         *rand.Rand
	failureRate float64
}

// NewSim creates a simulated sensor. failureRate is the probability
// (0..1) that any single read fails.
func NewSim(seed int64, failureRate float64) *Sim {
	return &Sim{
		rng:         rand.New(rand.NewSource(seed)),
		failureRate: failureRate,
	}
}

// ReadTemperature returns a value around 22°C, or NaN on a simulated
// failure.
func (s *Sim) ReadTemperature() float64 {
	return s.read(22.0, 3.0)
}

// ReadHumidity returns a value around 55%, or NaN on a simulated
// failure.
func (s *Sim) ReadHumidity() float64 {
	return s.read(55.0, 10.0)
}

func (s *Sim) read(base, spread float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failureRate > 0 && s.rng.Float64() < s.failureRate {
		return math.NaN()
	}
	return base + (s.rng.Float64()-0.5)*spread
}

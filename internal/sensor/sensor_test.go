package sensor

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestReadingValid(t *testing.T) {
	cases := []struct {
		name string
		r    Reading
		want bool
	}{
		{"both finite", Reading{23.5, 60.2}, true},
		{"nan temperature", Reading{math.NaN(), 60.2}, false},
		{"nan humidity", Reading{23.5, math.NaN()}, false},
		{"both nan", Reading{math.NaN(), math.NaN()}, false},
		{"zero values", Reading{0, 0}, true},
		{"negative temperature", Reading{-12.3, 80}, true},
	}

	for _, tc := range cases {
		if got := tc.r.Valid(); got != tc.want {
			t.Errorf("%s: Valid() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func testIIODevice(t *testing.T, temp, humidity string) *IIO {
	t.Helper()
	dir := t.TempDir()
	if temp != "" {
		os.WriteFile(filepath.Join(dir, "in_temp_input"), []byte(temp), 0600)
	}
	if humidity != "" {
		os.WriteFile(filepath.Join(dir, "in_humidityrelative_input"), []byte(humidity), 0600)
	}
	return NewIIO(dir, "dht22")
}

func TestIIO_Reads(t *testing.T) {
	s := testIIODevice(t, "23500\n", "60200\n")

	if got := s.ReadTemperature(); got != 23.5 {
		t.Errorf("ReadTemperature() = %v, want 23.5", got)
	}
	if got := s.ReadHumidity(); got != 60.2 {
		t.Errorf("ReadHumidity() = %v, want 60.2", got)
	}
}

func TestIIO_MissingAttribute(t *testing.T) {
	s := testIIODevice(t, "23500\n", "") // no humidity attribute

	if got := s.ReadHumidity(); !math.IsNaN(got) {
		t.Errorf("ReadHumidity() = %v, want NaN for missing attribute", got)
	}
	if got := s.ReadTemperature(); math.IsNaN(got) {
		t.Error("ReadTemperature() = NaN, want real value")
	}
}

func TestIIO_GarbageAttribute(t *testing.T) {
	s := testIIODevice(t, "not-a-number\n", "60200\n")

	if got := s.ReadTemperature(); !math.IsNaN(got) {
		t.Errorf("ReadTemperature() = %v, want NaN for unparseable attribute", got)
	}
}

func TestSim_NeverFails(t *testing.T) {
	s := NewSim(1, 0)

	for i := 0; i < 100; i++ {
		r := Reading{s.ReadTemperature(), s.ReadHumidity()}
		if !r.Valid() {
			t.Fatalf("read %d: got invalid reading %+v with zero failure rate", i, r)
		}
	}
}

func TestSim_AlwaysFails(t *testing.T) {
	s := NewSim(1, 1)

	if got := s.ReadTemperature(); !math.IsNaN(got) {
		t.Errorf("ReadTemperature() = %v, want NaN with failure rate 1", got)
	}
	if got := s.ReadHumidity(); !math.IsNaN(got) {
		t.Errorf("ReadHumidity() = %v, want NaN with failure rate 1", got)
	}
}

// Package sensor reads the room's analog sensors: temperature and humidity
// from a DHT11 and light level from a light-dependent resistor on an ADC.
//
// Both are exposed by Linux drivers through the IIO sysfs interface, so a
// reading is a small text file.
package sensor

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Reader takes one reading. ok is false on a transient fault; the caller
// skips that cycle and tries again on the next.
type Reader interface {
	Read() (value float64, ok bool)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func() (float64, bool)

// Read calls f.
func (f ReaderFunc) Read() (float64, bool) {
	return f()
}

// IIO attribute names exposed by the dht11 driver (milli-units).
const (
	attrTemperature = "in_temp_input"
	attrHumidity    = "in_humidityrelative_input"
)

// Climate reads a DHT11 through the kernel dht11 IIO driver.
type Climate struct {
	dir string
}

// NewClimate returns a reader for the IIO device directory dir.
func NewClimate(dir string) *Climate {
	return &Climate{dir: dir}
}

// Probe takes one temperature reading to confirm the sensor answers.
func (c *Climate) Probe() error {
	if _, err := readMilli(filepath.Join(c.dir, attrTemperature)); err != nil {
		return fmt.Errorf("probe climate sensor: %w", err)
	}
	return nil
}

// Temperature returns a reader yielding degrees Celsius.
func (c *Climate) Temperature() Reader {
	path := filepath.Join(c.dir, attrTemperature)
	return ReaderFunc(func() (float64, bool) { return valid(readMilli(path)) })
}

// Humidity returns a reader yielding percent relative humidity.
func (c *Climate) Humidity() Reader {
	path := filepath.Join(c.dir, attrHumidity)
	return ReaderFunc(func() (float64, bool) { return valid(readMilli(path)) })
}

// Light reads a raw ADC channel and scales it to 0..100.
type Light struct {
	path      string
	fullScale int
}

// NewLight returns a reader for the raw value file at path. fullScale is
// the ADC maximum (4095 for a 12-bit converter).
func NewLight(path string, fullScale int) *Light {
	return &Light{path: path, fullScale: fullScale}
}

// Probe checks that the channel reads strictly between the rails. A value
// pinned at 0 or full scale means the divider is not connected.
func (l *Light) Probe() error {
	raw, err := readInt(l.path)
	if err != nil {
		return fmt.Errorf("probe light sensor: %w", err)
	}
	if raw <= 0 || raw >= l.fullScale {
		return fmt.Errorf("probe light sensor: raw value %d at rail", raw)
	}
	return nil
}

// Read returns the light level on a 0..100 scale.
func (l *Light) Read() (float64, bool) {
	raw, err := readInt(l.path)
	if err != nil {
		return 0, false
	}
	return ScaleLight(raw, l.fullScale), true
}

// ScaleLight maps a raw ADC value in [0, fullScale] linearly onto [0, 100]
// using integer arithmetic. Out-of-range values are clamped.
func ScaleLight(raw, fullScale int) float64 {
	if raw < 0 {
		raw = 0
	}
	if raw > fullScale {
		raw = fullScale
	}
	return float64(raw * 100 / fullScale)
}

func readInt(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}

func readMilli(path string) (float64, error) {
	v, err := readInt(path)
	if err != nil {
		return 0, err
	}
	return float64(v) / 1000, nil
}

func valid(v float64, err error) (float64, bool) {
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

package logic

import (
	"fmt"
	"strconv"
)

// Range is an inclusive acceptable band for a reading.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies within [Min, Max].
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// CoolingSuggestion is the air-conditioning hint derived from temperature.
type CoolingSuggestion int

const (
	CoolingNone CoolingSuggestion = iota
	CoolingOn
	CoolingOff
)

func (c CoolingSuggestion) String() string {
	switch c {
	case CoolingOn:
		return "ON"
	case CoolingOff:
		return "OFF"
	}
	return ""
}

// coolingOffMargin is how far above the minimum a reading still suggests
// switching cooling off.
const coolingOffMargin = 1.0

// TemperatureVerdict is the outcome of evaluating one temperature reading.
type TemperatureVerdict struct {
	OutOfRange bool
	Cooling    CoolingSuggestion
}

// CheckTemperature evaluates a temperature reading against its band. Above
// the maximum suggests cooling on; below min+1 suggests cooling off.
func CheckTemperature(v float64, r Range) TemperatureVerdict {
	verdict := TemperatureVerdict{OutOfRange: !r.Contains(v)}
	switch {
	case v > r.Max:
		verdict.Cooling = CoolingOn
	case v < r.Min+coolingOffMargin:
		verdict.Cooling = CoolingOff
	}
	return verdict
}

// CheckHumidity reports whether a humidity reading is out of its band.
func CheckHumidity(v float64, r Range) bool {
	return !r.Contains(v)
}

// TemperatureAlert returns the alert text for an out-of-range temperature.
func TemperatureAlert(v float64) string {
	return fmt.Sprintf("Temperature out of range (%s °C)", FormatReading(v))
}

// HumidityAlert returns the alert text for an out-of-range humidity.
func HumidityAlert(v float64) string {
	return fmt.Sprintf("Humidity out of range (%s %%)", FormatReading(v))
}

// FormatReading renders a reading with two decimal places. Unlike a fixed
// width buffer it never truncates large magnitudes.
func FormatReading(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

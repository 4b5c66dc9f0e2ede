package main

import (
	"fmt"
	"io"

	"github.com/sweeney/room-sensor/internal/config"
	"github.com/sweeney/room-sensor/internal/gpio"
	"github.com/sweeney/room-sensor/internal/logic"
	"github.com/sweeney/room-sensor/internal/sensor"
)

func lineState(active bool) string {
	if active {
		return "ACTIVE"
	}
	return "IDLE"
}

func readingString(r sensor.Reader) string {
	if r == nil {
		return "absent"
	}
	v, ok := r.Read()
	if !ok {
		return "fault"
	}
	return logic.FormatReading(v)
}

// printState writes one line per input for -print-state.
func printState(w io.Writer, mode string, lines gpio.Reader, climate *sensor.Climate, light *sensor.Light) error {
	values, err := lines.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	if mode == config.ModeCrossing && len(values) >= 2 {
		fmt.Fprintf(w, "outer: %s, inner: %s\n", lineState(values[0]), lineState(values[1]))
	} else if len(values) >= 1 {
		fmt.Fprintf(w, "presence: %s\n", lineState(values[0]))
	}

	var temp, hum, lux sensor.Reader
	if climate != nil {
		temp, hum = climate.Temperature(), climate.Humidity()
	}
	if light != nil {
		lux = light
	}
	fmt.Fprintf(w, "temperature: %s, humidity: %s, light: %s\n",
		readingString(temp), readingString(hum), readingString(lux))
	return nil
}

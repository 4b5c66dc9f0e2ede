//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads sensor lines from actual hardware using Linux GPIO character device.
type RealReader struct {
	chip   *gpiocdev.Chip
	lines  *gpiocdev.Lines
	values []int
}

// NewRealReader requests the given BCM offsets as inputs on chip.
func NewRealReader(chipName string, pins ...int) (*RealReader, error) {
	if len(pins) == 0 {
		return nil, fmt.Errorf("no sensor pins configured")
	}

	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	// The optical sensors have open-collector outputs that idle high, so
	// request a pull-up to hold the line while the beam is clear.
	lines, err := chip.RequestLines(pins, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request sensor pins %v: %w", pins, err)
	}

	return &RealReader{
		chip:   chip,
		lines:  lines,
		values: make([]int, len(pins)),
	}, nil
}

// Read returns the logical state of each line.
// Inverts raw GPIO: raw low (0) = active, raw high (1) = idle.
func (r *RealReader) Read() ([]bool, error) {
	if err := r.lines.Values(r.values); err != nil {
		return nil, fmt.Errorf("read sensor pins: %w", err)
	}

	active := make([]bool, len(r.values))
	for i, v := range r.values {
		active[i] = v == 0
	}
	return active, nil
}

// Close releases GPIO resources.
// Reconfigures lines to plain inputs before closing so the pull-up is not
// left applied.
func (r *RealReader) Close() error {
	var errs []error

	if r.lines != nil {
		if err := r.lines.Reconfigure(gpiocdev.AsInput, gpiocdev.WithBiasDisabled); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure sensor pins: %w", err))
		}
		if err := r.lines.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sensor pins: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealIndicator drives an LED on a GPIO output line.
type RealIndicator struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealIndicator requests pin as an output, initially off.
func NewRealIndicator(chipName string, pin int) (*RealIndicator, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request indicator pin %d: %w", pin, err)
	}

	return &RealIndicator{chip: chip, line: line}, nil
}

// Set drives the LED high when on.
func (i *RealIndicator) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := i.line.SetValue(v); err != nil {
		return fmt.Errorf("set indicator: %w", err)
	}
	return nil
}

// Close turns the LED off and returns the line to an input.
func (i *RealIndicator) Close() error {
	var errs []error

	if i.line != nil {
		if err := i.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear indicator: %w", err))
		}
		if err := i.line.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure indicator pin: %w", err))
		}
		if err := i.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close indicator pin: %w", err))
		}
	}
	if i.chip != nil {
		if err := i.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

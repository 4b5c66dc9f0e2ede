// Package gpio provides doorway sensor input and occupancy indicator output
// with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the doorway proximity sensors.
type Reader interface {
	// Read returns one logical state per line, in the order the lines were
	// requested. The optical sensors idle high and pull low when the beam is
	// interrupted, so raw 0 reads as true (active).
	Read() ([]bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Indicator drives the occupancy LED.
type Indicator interface {
	// Set turns the indicator on or off.
	Set(on bool) error

	// Close turns the indicator off and releases the line.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	DefaultPinOuter     = 17 // Outer optical sensor (corridor side)
	DefaultPinInner     = 27 // Inner optical sensor (room side)
	DefaultPinIndicator = 22 // Occupancy LED
)

// Package gpio provides touch sensor inputs and relay outputs with hardware
// abstraction. The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "errors"

// ErrBusy is returned when a line is requested twice.
var ErrBusy = errors.New("gpio: line already requested")

// EdgeSink receives the edges of a touch input. Its methods are called from
// the line's event goroutine and must not block.
type EdgeSink interface {
	Press()
	Release()
}

// Output drives a relay.
type Output interface {
	Set(on bool) error
}

// Chip requests lines on a GPIO chip.
type Chip interface {
	// WatchInput delivers the edges of the input at offset to sink. A rising
	// edge of the logical level is a press.
	WatchInput(offset int, activeLow bool, sink EdgeSink) error

	// Output requests the line at offset as an output, initially off.
	Output(offset int, activeLow bool) (Output, error)

	// Close releases every requested line.
	Close() error
}

// Default chip and BCM offsets of the three channel sensors and relays.
const DefaultChip = "gpiochip0"

var (
	DefaultInputs  = [3]int{14, 12, 13}
	DefaultOutputs = [3]int{5, 4, 15}
)

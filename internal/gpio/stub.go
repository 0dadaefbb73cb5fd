//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealChip is not available on non-Linux platforms.
type RealChip struct{}

// OpenChip returns an error on non-Linux platforms.
func OpenChip(string) (*RealChip, error) {
	return nil, errUnsupported
}

// WatchInput is not implemented on non-Linux platforms.
func (c *RealChip) WatchInput(int, bool, EdgeSink) error { return errUnsupported }

// Output is not implemented on non-Linux platforms.
func (c *RealChip) Output(int, bool) (Output, error) { return nil, errUnsupported }

// Close is not implemented on non-Linux platforms.
func (c *RealChip) Close() error { return nil }

//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// RealChip requests lines from an actual GPIO chip.
type RealChip struct {
	chip *gpiocdev.Chip

	mu    sync.Mutex
	lines map[int]*gpiocdev.Line
}

// OpenChip opens a GPIO chip by name, e.g. "gpiochip0".
func OpenChip(name string) (*RealChip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	return &RealChip{chip: chip, lines: make(map[int]*gpiocdev.Line)}, nil
}

func (c *RealChip) request(offset int, opts ...gpiocdev.LineReqOption) (*gpiocdev.Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lines[offset]; ok {
		return nil, fmt.Errorf("pin %d: %w", offset, ErrBusy)
	}
	line, err := c.chip.RequestLine(offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request pin %d: %w", offset, err)
	}
	c.lines[offset] = line
	return line, nil
}

// WatchInput implements Chip. The input is pulled down so a disconnected
// sensor reads as released.
func (c *RealChip) WatchInput(offset int, activeLow bool, sink EdgeSink) error {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			switch evt.Type {
			case gpiocdev.LineEventRisingEdge:
				sink.Press()
			case gpiocdev.LineEventFallingEdge:
				sink.Release()
			}
		}),
	}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	_, err := c.request(offset, opts...)
	return err
}

// Output implements Chip.
func (c *RealChip) Output(offset int, activeLow bool) (Output, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := c.request(offset, opts...)
	if err != nil {
		return nil, err
	}
	return &realOutput{line: line, offset: offset}, nil
}

// Close implements Chip. Lines are returned to input with pull-down, the
// board's boot default, so relays fall off and sensors are left floating low.
func (c *RealChip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for offset, line := range c.lines {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", offset, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", offset, err))
		}
	}
	c.lines = make(map[int]*gpiocdev.Line)
	if err := c.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}
	return errors.Join(errs...)
}

type realOutput struct {
	line   *gpiocdev.Line
	offset int
}

func (o *realOutput) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("set pin %d: %w", o.offset, err)
	}
	return nil
}

package gpio

import (
	"fmt"
	"sync"
)

type fakeInput struct {
	activeLow bool
	sink      EdgeSink
	high      bool
}

// FakeChip is a test double that lets tests drive input levels and observe
// outputs.
type FakeChip struct {
	mu      sync.Mutex
	inputs  map[int]*fakeInput
	outputs map[int]*FakeOutput

	// Err, if set, is returned by WatchInput and Output.
	Err error
	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeChip creates a FakeChip with no lines requested.
func NewFakeChip() *FakeChip {
	return &FakeChip{
		inputs:  make(map[int]*fakeInput),
		outputs: make(map[int]*FakeOutput),
	}
}

func (f *FakeChip) busy(offset int) bool {
	_, in := f.inputs[offset]
	_, out := f.outputs[offset]
	return in || out
}

// WatchInput implements Chip.
func (f *FakeChip) WatchInput(offset int, activeLow bool, sink EdgeSink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if f.busy(offset) {
		return fmt.Errorf("pin %d: %w", offset, ErrBusy)
	}
	f.inputs[offset] = &fakeInput{activeLow: activeLow, sink: sink, high: activeLow}
	return nil
}

// Output implements Chip.
func (f *FakeChip) Output(offset int, activeLow bool) (Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if f.busy(offset) {
		return nil, fmt.Errorf("pin %d: %w", offset, ErrBusy)
	}
	o := &FakeOutput{ActiveLow: activeLow}
	f.outputs[offset] = o
	return o, nil
}

// SetLevel sets the physical level of an input. A change of the logical
// level delivers a press or release to the sink.
func (f *FakeChip) SetLevel(offset int, high bool) {
	f.mu.Lock()
	in, ok := f.inputs[offset]
	if !ok || in.high == high {
		f.mu.Unlock()
		return
	}
	in.high = high
	active := high != in.activeLow
	f.mu.Unlock()

	if active {
		in.sink.Press()
	} else {
		in.sink.Release()
	}
}

// Touch drives the input at offset active.
func (f *FakeChip) Touch(offset int) { f.SetLevel(offset, !f.activeLow(offset)) }

// Untouch drives the input at offset inactive.
func (f *FakeChip) Untouch(offset int) { f.SetLevel(offset, f.activeLow(offset)) }

func (f *FakeChip) activeLow(offset int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if in, ok := f.inputs[offset]; ok {
		return in.activeLow
	}
	return false
}

// Out returns the output requested at offset, or nil.
func (f *FakeChip) Out(offset int) *FakeOutput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outputs[offset]
}

// Watched reports whether an input is requested at offset.
func (f *FakeChip) Watched(offset int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.inputs[offset]
	return ok
}

// Close implements Chip.
func (f *FakeChip) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	for _, o := range f.outputs {
		o.mu.Lock()
		o.on = false
		o.mu.Unlock()
	}
	return nil
}

// FakeOutput records the states a relay was driven to.
type FakeOutput struct {
	mu sync.Mutex
	on bool

	ActiveLow bool
	// Writes holds every requested logical state in order.
	Writes []bool
	// Err, if set, is returned by Set.
	Err error
}

// Set implements Output.
func (o *FakeOutput) Set(on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.on = on
	o.Writes = append(o.Writes, on)
	return nil
}

// On reports the current logical state.
func (o *FakeOutput) On() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.on
}

// Level reports the physical line level.
func (o *FakeOutput) Level() bool {
	return o.On() != o.ActiveLow
}

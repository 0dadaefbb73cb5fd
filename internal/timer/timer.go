// Package timer measures elapsed time against a free-running 32-bit
// millisecond counter that wraps around.
package timer

import "time"

// Clock returns the current value of a free-running millisecond counter.
type Clock func() uint32

var processStart = time.Now()

// SystemClock returns a Clock backed by the process monotonic clock,
// truncated to 32 bits. It wraps roughly every 49.7 days.
func SystemClock() Clock {
	return func() uint32 {
		return Millis(time.Since(processStart))
	}
}

// Millis truncates a duration to a 32-bit millisecond counter value.
func Millis(d time.Duration) uint32 {
	return uint32(d.Milliseconds())
}

// Timer tracks the time between a start mark and a current mark.
// Not safe for concurrent use.
type Timer struct {
	clock Clock
	start uint32
	now   uint32
}

// New creates a Timer with both marks set to the current clock value.
func New(clock Clock) *Timer {
	t := &Timer{clock: clock}
	t.MarkAll()
	return t
}

// MarkAll resets the timer: start and now both take the current clock value.
func (t *Timer) MarkAll() {
	t.SetAll(t.clock())
}

// SetAll resets the timer to an explicit clock value.
func (t *Timer) SetAll(ms uint32) {
	t.start = ms
	t.now = ms
}

// MarkNow refreshes the current mark from the clock.
func (t *Timer) MarkNow() {
	t.Update(t.clock())
}

// Update refreshes the current mark with an explicit clock value.
func (t *Timer) Update(ms uint32) {
	t.now = ms
}

// MarkLast moves the start mark up to the current mark.
func (t *Timer) MarkLast() {
	t.start = t.now
}

// Delta returns the milliseconds between the start and current marks.
// Unsigned subtraction keeps it correct across one counter wraparound; two
// wraps between marks are not detected.
func (t *Timer) Delta() uint32 {
	return t.now - t.start
}

// Elapsed returns Delta as a time.Duration.
func (t *Timer) Elapsed() time.Duration {
	return time.Duration(t.Delta()) * time.Millisecond
}

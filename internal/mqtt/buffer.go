package mqtt

import "github.com/sirupsen/logrus"

// pendingMsg is an outbound message held while the broker is unreachable.
type pendingMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer holds outbound messages while disconnected, dropping the oldest
// once full. Not safe for concurrent use.
type ringBuffer struct {
	buf      []pendingMsg
	head     int // next write position
	count    int
	dropped  int
	overflow bool
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{buf: make([]pendingMsg, capacity)}
}

func (r *ringBuffer) push(msg pendingMsg) {
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
		return
	}
	r.dropped++
	if !r.overflow {
		logrus.WithField("capacity", len(r.buf)).Warn("mqtt: offline buffer full, dropping oldest")
		r.overflow = true
	}
}

// drainAll empties the buffer and returns its messages oldest first. Of
// several retained messages on one topic only the newest is returned, in the
// position of that newest message.
func (r *ringBuffer) drainAll() []pendingMsg {
	if r.count == 0 {
		return nil
	}
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	all := make([]pendingMsg, r.count)
	for i := range all {
		all[i] = r.buf[(start+i)%len(r.buf)]
	}
	r.count = 0
	r.head = 0
	r.overflow = false

	last := make(map[string]int)
	for i, m := range all {
		if m.retained {
			last[m.topic] = i
		}
	}
	out := all[:0]
	for i, m := range all {
		if m.retained && last[m.topic] != i {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}

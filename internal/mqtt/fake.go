package mqtt

import "sync"

// Published is a message recorded by FakeClient.
type Published struct {
	Topic    string
	Payload  string
	Retained bool
}

// FakeClient records published messages for test assertions and lets tests
// inject inbound messages.
type FakeClient struct {
	mu     sync.Mutex
	topics Topics
	sent   []Published

	// Err, if set, is returned by every publish.
	Err error
	// Connected controls IsConnected.
	Connected bool
	// Closed tracks if Close was called.
	Closed bool

	inbox    chan Message
	connects chan struct{}
}

// NewFakeClient creates a FakeClient using the given topic layout.
func NewFakeClient(topics Topics) *FakeClient {
	return &FakeClient{
		topics:    topics,
		Connected: true,
		inbox:     make(chan Message, DefaultInboxLen),
		connects:  make(chan struct{}, 1),
	}
}

func (f *FakeClient) record(topic, payload string, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.sent = append(f.sent, Published{Topic: topic, Payload: payload, Retained: retained})
	return nil
}

// PublishState implements Publisher.
func (f *FakeClient) PublishState(index int, on bool) error {
	return f.record(f.topics.ChannelStat(index), StatePayload(on), true)
}

// PublishGroup implements Publisher.
func (f *FakeClient) PublishGroup(payload []byte) error {
	return f.record(f.topics.Group, string(payload), false)
}

// PublishDevice implements Publisher.
func (f *FakeClient) PublishDevice(status string) error {
	return f.record(f.topics.DeviceStat(), status, true)
}

// PublishMgt implements Publisher.
func (f *FakeClient) PublishMgt(payload []byte) error {
	return f.record(f.topics.MgtReply(), string(payload), false)
}

// Inject queues an inbound message.
func (f *FakeClient) Inject(topic, payload string) {
	f.inbox <- Message{Topic: topic, Payload: []byte(payload)}
}

// Connect signals a (re)connection.
func (f *FakeClient) Connect() {
	f.mu.Lock()
	f.Connected = true
	f.mu.Unlock()
	select {
	case f.connects <- struct{}{}:
	default:
	}
}

// Sent returns a copy of the recorded messages.
func (f *FakeClient) Sent() []Published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Published(nil), f.sent...)
}

// SentTo returns the payloads recorded on topic.
func (f *FakeClient) SentTo(topic string) []string {
	var out []string
	for _, p := range f.Sent() {
		if p.Topic == topic {
			out = append(out, p.Payload)
		}
	}
	return out
}

// Reset clears recorded messages.
func (f *FakeClient) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
	f.Err = nil
}

// Messages implements Client.
func (f *FakeClient) Messages() <-chan Message { return f.inbox }

// Connects implements Client.
func (f *FakeClient) Connects() <-chan struct{} { return f.connects }

// IsConnected implements Client.
func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Close implements Client.
func (f *FakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	f.Connected = false
	return nil
}

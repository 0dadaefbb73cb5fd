package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// Defaults for Options.
const (
	DefaultBufferSize = 64
	DefaultInboxLen   = 32
	publishTimeout    = 5 * time.Second
)

// Options configures a RealClient.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topics   Topics
	// BufferSize bounds the messages held while disconnected.
	BufferSize int
	// InboxLen bounds the inbound messages awaiting the main loop.
	InboxLen int
	// ConnectTimeout bounds the initial connection; 0 returns without waiting.
	ConnectTimeout time.Duration
}

// RealClient talks to an actual MQTT broker.
//
// Inbound messages arrive on paho's goroutines and are handed to the main
// loop through a bounded channel. Outbound messages published while the
// connection is down are buffered and replayed on reconnect.
type RealClient struct {
	client paho.Client
	topics Topics

	inbox    chan Message
	connects chan struct{}

	mu  sync.Mutex
	buf *ringBuffer

	log *logrus.Entry
}

// NewRealClient connects to the broker. The device availability topic carries
// a retained "offline" will.
func NewRealClient(o Options) (*RealClient, error) {
	if err := o.Topics.Validate(); err != nil {
		return nil, err
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.InboxLen <= 0 {
		o.InboxLen = DefaultInboxLen
	}

	c := &RealClient{
		topics:   o.Topics,
		inbox:    make(chan Message, o.InboxLen),
		connects: make(chan struct{}, 1),
		buf:      newRingBuffer(o.BufferSize),
		log:      logrus.WithFields(logrus.Fields{"broker": o.Broker, "client_id": o.ClientID}),
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetOrderMatters(false).
		SetWill(o.Topics.DeviceStat(), PayloadOffline, 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)
	if o.Username != "" {
		opts.SetUsername(o.Username).SetPassword(o.Password)
	}

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if o.ConnectTimeout > 0 {
		if !token.WaitTimeout(o.ConnectTimeout) {
			c.log.Warn("broker not reachable yet, retrying in background")
			return c, nil
		}
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("connect to broker: %w", err)
		}
	}
	return c, nil
}

func (c *RealClient) onConnect(client paho.Client) {
	c.log.Info("connected")
	for _, topic := range c.topics.Subscriptions() {
		token := client.Subscribe(topic, 0, c.receive)
		if !token.WaitTimeout(publishTimeout) {
			c.log.WithField("topic", topic).Warn("subscribe timeout")
			continue
		}
		if err := token.Error(); err != nil {
			c.log.WithError(err).WithField("topic", topic).Warn("subscribe failed")
		}
	}

	c.mu.Lock()
	dropped := c.buf.dropped
	c.buf.dropped = 0
	pending := c.buf.drainAll()
	c.mu.Unlock()
	if len(pending) > 0 || dropped > 0 {
		c.log.WithFields(logrus.Fields{"replay": len(pending), "dropped": dropped}).Info("replaying buffered messages")
	}
	for _, m := range pending {
		client.Publish(m.topic, m.qos, m.retained, m.payload)
	}

	select {
	case c.connects <- struct{}{}:
	default:
	}
}

func (c *RealClient) onConnectionLost(_ paho.Client, err error) {
	c.log.WithError(err).Warn("connection lost")
}

func (c *RealClient) receive(_ paho.Client, m paho.Message) {
	msg := Message{Topic: m.Topic(), Payload: append([]byte(nil), m.Payload()...)}
	select {
	case c.inbox <- msg:
	default:
		c.log.WithField("topic", msg.Topic).Warn("inbox full, message dropped")
	}
}

// publish sends a message, or buffers it while the connection is down.
func (c *RealClient) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		c.mu.Lock()
		c.buf.push(pendingMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		c.mu.Unlock()
		return nil
	}
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishState publishes a retained channel state.
func (c *RealClient) PublishState(index int, on bool) error {
	return c.publish(c.topics.ChannelStat(index), 1, true, []byte(StatePayload(on)))
}

// PublishGroup publishes a group command. Group commands are never buffered;
// ErrNotConnected is returned while the connection is down.
func (c *RealClient) PublishGroup(payload []byte) error {
	if c.topics.Group == "" {
		return nil
	}
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	return c.publish(c.topics.Group, 0, false, payload)
}

// PublishDevice publishes the retained device availability.
func (c *RealClient) PublishDevice(status string) error {
	return c.publish(c.topics.DeviceStat(), 1, true, []byte(status))
}

// PublishMgt publishes a management reply.
func (c *RealClient) PublishMgt(payload []byte) error {
	if c.topics.Mgt == "" {
		return nil
	}
	return c.publish(c.topics.MgtReply(), 0, false, payload)
}

// Messages implements Client.
func (c *RealClient) Messages() <-chan Message { return c.inbox }

// Connects implements Client.
func (c *RealClient) Connects() <-chan struct{} { return c.connects }

// IsConnected reports whether the connection to the broker is up.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker. A clean disconnect does not trigger the
// will; publish "offline" first.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000)
	return nil
}

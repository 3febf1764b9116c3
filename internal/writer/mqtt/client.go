// internal/writer/mqtt/client.go
package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const queueDepth = 256

var (
	errNotConnected = errors.New("writer mqtt: not connected")
	errQueueFull    = errors.New("writer mqtt: publish queue full")
	errClosed       = errors.New("writer mqtt: closed")
)

// broker is the part of paho.Client the sender uses.
type broker interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

type outgoing struct {
	topic    string
	payload  []byte
	retained bool
}

// Client is one broker connection. It publishes the bridge availability as
// a retained message and registers "offline" as the last will.
//
// Publish only queues; a sender goroutine talks to the broker so a slow or
// stalled broker never holds up the caller. A failed send is reported by the
// next Publish call.
type Client struct {
	cli        broker
	timeout    time.Duration
	availTopic string

	queue chan outgoing
	done  chan struct{}

	mu      sync.Mutex
	closed  bool
	lastErr error
}

type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Prefix   string
	QoS      byte
	Timeout  time.Duration
}

func New(cfg Config) (*Client, error) {
	if cfg.Broker == "" {
		return nil, errors.New("writer mqtt: broker required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	availTopic := cfg.Prefix + "/status"

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(10 * time.Second).
		SetWriteTimeout(cfg.Timeout)
	opts.SetWill(availTopic, "offline", cfg.QoS, true)
	opts.OnConnect = func(cl paho.Client) {
		// re-announce after every reconnect; the broker fired the will
		cl.Publish(availTopic, cfg.QoS, true, "online")
	}

	pc := paho.NewClient(opts)
	tok := pc.Connect()
	if tok.WaitTimeout(cfg.Timeout) {
		if err := tok.Error(); err != nil {
			return nil, fmt.Errorf("writer mqtt: connect %s: %w", cfg.Broker, err)
		}
	}
	// On a connect timeout SetConnectRetry keeps trying in the background.

	return newClient(pc, availTopic, cfg.Timeout, queueDepth), nil
}

func newClient(b broker, availTopic string, timeout time.Duration, depth int) *Client {
	c := &Client{
		cli:        b,
		timeout:    timeout,
		availTopic: availTopic,
		queue:      make(chan outgoing, depth),
		done:       make(chan struct{}),
	}
	go c.sender()
	return c
}

// Publish queues one message and returns without waiting for the broker.
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClosed
	}
	if err := c.lastErr; err != nil {
		c.lastErr = nil
		return err
	}
	if !c.cli.IsConnectionOpen() {
		return errNotConnected
	}

	select {
	case c.queue <- outgoing{topic: topic, payload: payload, retained: retained}:
		return nil
	default:
		return errQueueFull
	}
}

func (c *Client) sender() {
	defer close(c.done)

	for m := range c.queue {
		if err := c.send(m); err != nil {
			c.mu.Lock()
			if c.lastErr == nil {
				c.lastErr = err
			}
			c.mu.Unlock()
		}
	}
}

func (c *Client) send(m outgoing) error {
	if !c.cli.IsConnectionOpen() {
		return fmt.Errorf("writer mqtt: publish %s: %w", m.topic, errNotConnected)
	}
	tok := c.cli.Publish(m.topic, 0, m.retained, m.payload)
	if !tok.WaitTimeout(c.timeout) {
		return fmt.Errorf("writer mqtt: publish %s: timeout", m.topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("writer mqtt: publish %s: %w", m.topic, err)
	}
	return nil
}

// Close flushes what is queued, announces offline and disconnects.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	select {
	case <-c.done:
	case <-time.After(c.timeout):
	}

	if c.cli.IsConnectionOpen() {
		c.cli.Publish(c.availTopic, 0, true, "offline").WaitTimeout(c.timeout)
	}
	c.cli.Disconnect(250)
	return nil
}

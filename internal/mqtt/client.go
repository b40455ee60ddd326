package mqtt

import (
	"log/slog"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/Ekorz-boop/ragflow/internal/events"
)

const DefaultBrokerURL = "tcp://localhost:1883"

// Broker is the part of an MQTT connection the bridge needs.
type Broker interface {
	Subscribe(topic string, handler paho.MessageHandler) error
	Publish(topic string, payload []byte) error
	IsConnected() bool
}

// Client wraps the Paho MQTT client.
type Client struct {
	client paho.Client
	url    string
	mu     sync.Mutex

	onConnect func()
}

var _ Broker = (*Client)(nil)

// BrokerURL returns url when set, then MQTT_URL, then the default.
func BrokerURL(url string) string {
	if url != "" {
		return url
	}
	if url := os.Getenv("MQTT_URL"); url != "" {
		return url
	}
	return DefaultBrokerURL
}

// NewClient creates a new MQTT client but does not connect. onConnect runs
// after every (re)connect, which is where subscriptions are restored.
func NewClient(url, clientID string, onConnect func()) *Client {
	c := &Client{url: BrokerURL(url), onConnect: onConnect}

	opts := paho.NewClientOptions().
		AddBroker(c.url).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetOnConnectHandler(func(paho.Client) {
			events.Emit("info", "mqtt.connected", "", map[string]interface{}{"broker": c.url})
			if c.onConnect != nil {
				go c.onConnect()
			}
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			events.Emit("warning", "mqtt.disconnected", "MQTT connection lost", map[string]interface{}{
				"broker": c.url,
				"error":  err.Error(),
			})
		})

	c.client = paho.NewClient(opts)
	return c
}

// URL returns the broker address.
func (c *Client) URL() string { return c.url }

// Connect attempts to connect to the broker.
// Returns an error if connection fails, but does not block indefinitely.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return &ConnectTimeoutError{}
	}
	return token.Error()
}

// Subscribe subscribes to a topic with the given handler.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Subscribe(topic, 1, handler)
	if !token.WaitTimeout(10 * time.Second) {
		return &TimeoutError{Op: "subscribe", Topic: topic}
	}
	return token.Error()
}

// Publish sends a QoS 1, non-retained message.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return &TimeoutError{Op: "publish", Topic: topic}
	}
	return token.Error()
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.client.Disconnect(1000)
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// ConnectTimeoutError indicates connection timed out.
type ConnectTimeoutError struct{}

func (e *ConnectTimeoutError) Error() string {
	return "mqtt connect timeout"
}

// TimeoutError indicates a subscribe or publish timed out.
type TimeoutError struct {
	Op    string
	Topic string
}

func (e *TimeoutError) Error() string {
	return "mqtt " + e.Op + " timeout: " + e.Topic
}

// ConnectOrWarn connects and logs a failure instead of returning it.
func (c *Client) ConnectOrWarn() bool {
	if err := c.Connect(); err != nil {
		slog.Warn("mqtt: failed to connect", "broker", c.url, "error", err)
		return false
	}
	slog.Info("mqtt: connected", "broker", c.url)
	return true
}

package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mijia-gateway/internal/config"
)

const publishTimeout = 5 * time.Second

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

type Client struct {
	client    mqtt.Client
	qos       byte
	status    string
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewClient(cfg config.Config, logger *slog.Logger) (*Client, error) {
	if cfg.MQTTQoS > 2 {
		return nil, fmt.Errorf("invalid qos %d", cfg.MQTTQoS)
	}
	c := &Client{
		qos:    cfg.MQTTQoS,
		status: StatusTopic(cfg.MQTTTopicPrefix),
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTPassword)
	}

	opts.SetCleanSession(true)
	opts.SetOrderMatters(false)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// The broker flips the status topic to offline if we vanish.
	opts.SetWill(c.status, statusOffline, 1, true)

	opts.SetOnConnectHandler(func(pc mqtt.Client) {
		c.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
		// Called on paho's goroutine; do not wait on the token here.
		pc.Publish(c.status, 1, true, statusOnline)
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	return c, nil
}

// StatusTopic is where the gateway's online/offline state is retained.
func StatusTopic(prefix string) string {
	return prefix + "/gateway/status"
}

// Connect waits for the initial connection, and respects ctx and Disconnect().
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return fmt.Errorf("client stopped")
	default:
	}

	if c.IsConnected() {
		return nil
	}

	// With ConnectRetry(true) paho keeps retrying internally.
	token := c.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return fmt.Errorf("client stopped")
		default:
		}
	}
}

// Publish sends body to topic at the configured QoS.
func (c *Client) Publish(topic string, body []byte) error {
	return c.publish(topic, false, body)
}

// PublishRetained sends body to topic with the retain flag set.
func (c *Client) PublishRetained(topic string, body []byte) error {
	return c.publish(topic, true, body)
}

func (c *Client) publish(topic string, retained bool, body []byte) error {
	if !c.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	token := c.client.Publish(topic, c.qos, retained, body)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		c.logger.Error("failed to publish", "topic", topic, "error", err)
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	c.logger.Debug("published", "topic", topic, "retained", retained, "bytes", len(body))
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect marks the gateway offline and closes the connection. It is
// idempotent; afterwards Connect returns "client stopped".
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() {
		close(c.stopCh)

		if c.IsConnected() {
			t := c.client.Publish(c.status, 1, true, statusOffline)
			t.WaitTimeout(time.Second)
		}
		c.client.Disconnect(250)
		c.setConnected(false)
		c.logger.Info("mqtt disconnected")
	})
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
